// Package openai provides the OpenAI-compatible HTTP endpoints: model
// listing and chat completions in both streaming and non-streaming modes.
// Each completion request is served by one Cursor agent session behind
// the client layer.
package openai

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/net/context"

	"github.com/cursor-proxy/CursorProxyAPI/internal/api/handlers"
	"github.com/cursor-proxy/CursorProxyAPI/internal/registry"
	"github.com/cursor-proxy/CursorProxyAPI/internal/usage"
)

// OpenAIAPIHandler serves the OpenAI-compatible endpoints.
type OpenAIAPIHandler struct {
	*handlers.BaseAPIHandler
}

// NewOpenAIAPIHandler creates an OpenAI API handler over the shared base.
func NewOpenAIAPIHandler(apiHandlers *handlers.BaseAPIHandler) *OpenAIAPIHandler {
	return &OpenAIAPIHandler{BaseAPIHandler: apiHandlers}
}

// OpenAIModels returns the advertised model list.
func (h *OpenAIAPIHandler) OpenAIModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   registry.GetGlobalRegistry().GetAvailableModels(),
	})
}

// ChatCompletions handles POST /v1/chat/completions, dispatching to the
// streaming or non-streaming path based on the request's stream flag.
func (h *OpenAIAPIHandler) ChatCompletions(c *gin.Context) {
	rawJSON, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, handlers.ErrorResponse{
			Error: handlers.ErrorDetail{
				Message: fmt.Sprintf("failed to read request body: %v", err),
				Type:    "invalid_request_error",
			},
		})
		return
	}
	if !gjson.ValidBytes(rawJSON) {
		c.JSON(http.StatusBadRequest, handlers.ErrorResponse{
			Error: handlers.ErrorDetail{
				Message: "request body is not valid JSON",
				Type:    "invalid_request_error",
			},
		})
		return
	}
	if gjson.GetBytes(rawJSON, "model").String() == "" {
		c.JSON(http.StatusBadRequest, handlers.ErrorResponse{
			Error: handlers.ErrorDetail{
				Message: "model is required",
				Type:    "invalid_request_error",
			},
		})
		return
	}

	if gjson.GetBytes(rawJSON, "stream").Bool() {
		h.handleStreamingResponse(c, rawJSON)
	} else {
		h.handleNonStreamingResponse(c, rawJSON)
	}
}

// handleNonStreamingResponse aggregates one session into a single
// chat.completion body.
func (h *OpenAIAPIHandler) handleNonStreamingResponse(c *gin.Context, rawJSON []byte) {
	c.Header("Content-Type", "application/json")

	modelName := gjson.GetBytes(rawJSON, "model").String()
	started := time.Now()

	resp, errMsg := h.Client.SendRawMessage(c.Request.Context(), modelName, rawJSON)
	// Nothing has been written yet, so upstream failures are safe to retry.
	for attempt := 0; errMsg != nil && errMsg.StatusCode >= http.StatusInternalServerError && attempt < h.Cfg().RequestRetry; attempt++ {
		log.Debugf("request failed with status %d, retrying (%d)", errMsg.StatusCode, attempt+1)
		resp, errMsg = h.Client.SendRawMessage(c.Request.Context(), modelName, rawJSON)
	}
	if errMsg != nil {
		c.Status(errMsg.StatusCode)
		_, _ = c.Writer.Write([]byte(errMsg.Error.Error()))
		return
	}
	_, _ = c.Writer.Write(resp)
	h.recordUsage(modelName, false, rawJSON, resp, started)
}

// handleStreamingResponse forwards session chunks as Server-Sent Events,
// keeping the connection warm with periodic flushes while the agent
// thinks.
func (h *OpenAIAPIHandler) handleStreamingResponse(c *gin.Context, rawJSON []byte) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, handlers.ErrorResponse{
			Error: handlers.ErrorDetail{
				Message: "Streaming not supported",
				Type:    "server_error",
			},
		})
		return
	}

	modelName := gjson.GetBytes(rawJSON, "model").String()
	started := time.Now()
	cliCtx, cliCancel := context.WithCancel(c.Request.Context())
	defer cliCancel()

	respChan, errChan := h.Client.SendRawMessageStream(cliCtx, modelName, rawJSON)
	var responseChars, toolCalls int

	for {
		select {
		case <-c.Request.Context().Done():
			log.Debugf("client disconnected: %v", c.Request.Context().Err())
			cliCancel()
			return
		case chunk, okStream := <-respChan:
			if !okStream {
				// Stream is closed, send the final [DONE] message.
				_, _ = fmt.Fprintf(c.Writer, "data: [DONE]\n\n")
				flusher.Flush()
				h.recordStreamUsage(modelName, rawJSON, responseChars, toolCalls, started)
				return
			}
			responseChars += len(gjson.GetBytes(chunk, "choices.0.delta.content").String())
			toolCalls += len(gjson.GetBytes(chunk, "choices.0.delta.tool_calls").Array())
			_, _ = fmt.Fprintf(c.Writer, "data: %s\n\n", string(chunk))
			flusher.Flush()
		case errMsg, okError := <-errChan:
			if okError && errMsg != nil {
				c.Status(errMsg.StatusCode)
				_, _ = fmt.Fprint(c.Writer, errMsg.Error.Error())
				flusher.Flush()
				return
			}
		// Send a keep-alive signal to the client.
		case <-time.After(500 * time.Millisecond):
			flusher.Flush()
		}
	}
}

func (h *OpenAIAPIHandler) recordUsage(modelName string, streaming bool, rawJSON, resp []byte, started time.Time) {
	if h.Usage == nil {
		return
	}
	h.Usage.Add(usage.Record{
		Model:         modelName,
		Streaming:     streaming,
		PromptChars:   len(rawJSON),
		ResponseChars: len(gjson.GetBytes(resp, "choices.0.message.content").String()),
		ToolCalls:     len(gjson.GetBytes(resp, "choices.0.message.tool_calls").Array()),
		DurationMs:    time.Since(started).Milliseconds(),
	})
}

func (h *OpenAIAPIHandler) recordStreamUsage(modelName string, rawJSON []byte, responseChars, toolCalls int, started time.Time) {
	if h.Usage == nil {
		return
	}
	h.Usage.Add(usage.Record{
		Model:         modelName,
		Streaming:     true,
		PromptChars:   len(rawJSON),
		ResponseChars: responseChars,
		ToolCalls:     toolCalls,
		DurationMs:    time.Since(started).Milliseconds(),
	})
}
