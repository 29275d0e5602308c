// Package client implements the Cursor-facing side of the proxy: the
// HTTP transport for the agent protocol and a client that turns one
// OpenAI Chat Completions request into one agent session, streaming the
// session's events back as Chat Completions chunks.
package client

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/cursor-proxy/CursorProxyAPI/internal/agent"
	"github.com/cursor-proxy/CursorProxyAPI/internal/auth"
	"github.com/cursor-proxy/CursorProxyAPI/internal/bridge"
	"github.com/cursor-proxy/CursorProxyAPI/internal/config"
	"github.com/cursor-proxy/CursorProxyAPI/internal/registry"
	"github.com/cursor-proxy/CursorProxyAPI/internal/session"
	openaitr "github.com/cursor-proxy/CursorProxyAPI/internal/translator/openai"
)

// CursorClient serves OpenAI requests over the Cursor agent protocol.
// Every request gets a fresh session; conversation history rides in the
// flattened prompt.
type CursorClient struct {
	cfg       *config.Config
	transport *CursorTransport
	registry  *bridge.Registry
}

// NewCursorClient creates a client bound to the credential manager.
//
// Parameters:
//   - cfg: The application configuration.
//   - credentials: The process-global credential manager.
//
// Returns:
//   - *CursorClient: The client.
func NewCursorClient(cfg *config.Config, credentials *auth.Manager) *CursorClient {
	return &CursorClient{
		cfg:       cfg,
		transport: NewCursorTransport(cfg, credentials),
		registry:  bridge.GetGlobalRegistry(),
	}
}

// Transport exposes the underlying transport for sidecar RPCs.
func (c *CursorClient) Transport() *CursorTransport {
	return c.transport
}

// SendRawMessageStream sends one Chat Completions request and streams the
// response chunks. Chunks are raw chat.completion.chunk JSON objects; the
// handler wraps them in SSE framing.
//
// Parameters:
//   - ctx: The context for the request.
//   - modelName: The requested model name.
//   - rawJSON: The raw Chat Completions request body.
//
// Returns:
//   - <-chan []byte: Channel of chunk JSON objects, closed on completion.
//   - <-chan *ErrorMessage: Channel for a terminal error, closed on completion.
func (c *CursorClient) SendRawMessageStream(ctx context.Context, modelName string, rawJSON []byte) (<-chan []byte, <-chan *ErrorMessage) {
	dataChan := make(chan []byte)
	errChan := make(chan *ErrorMessage, 1)
	go func() {
		defer close(dataChan)
		defer close(errChan)
		builder := openaitr.NewChunkBuilder(modelName)
		c.runSession(ctx, modelName, rawJSON, builder, func(chunk string) {
			select {
			case dataChan <- []byte(chunk):
			case <-ctx.Done():
			}
		}, errChan)
	}()
	return dataChan, errChan
}

// SendRawMessage sends one Chat Completions request and returns the
// complete chat.completion object.
func (c *CursorClient) SendRawMessage(ctx context.Context, modelName string, rawJSON []byte) ([]byte, *ErrorMessage) {
	builder := openaitr.NewChunkBuilder(modelName)
	errChan := make(chan *ErrorMessage, 1)
	done := c.runSession(ctx, modelName, rawJSON, builder, func(string) {}, errChan)
	if !done {
		if errMsg := <-errChan; errMsg != nil {
			return nil, errMsg
		}
		return nil, &ErrorMessage{StatusCode: http.StatusInternalServerError, Error: context.Canceled}
	}
	return []byte(builder.Completion()), nil
}

// runSession drives one agent session to completion, feeding every chunk
// through emit. It reports whether the turn ended normally; failures go
// to errChan.
func (c *CursorClient) runSession(ctx context.Context, modelName string, rawJSON []byte, builder *openaitr.ChunkBuilder, emit func(string), errChan chan<- *ErrorMessage) bool {
	// Results answering a previous turn go to the owning live session
	// first; the flattened prompt carries them for the fresh session
	// either way.
	for _, result := range openaitr.TrailingToolResults(rawJSON) {
		c.registry.Deliver(ctx, result.ToolCallID, result.Content)
	}

	sess := session.New(session.Options{
		Transport: c.transport,
		Run:       c.buildRunOptions(modelName, rawJSON),
		Deadline:  time.Duration(c.cfg.Cursor.RequestTimeoutMs) * time.Millisecond,
		Idle:      c.idlePolicy(),
		Timing:    c.cfg.Cursor.Timing,
	})
	c.registry.Register(sess)
	defer c.registry.Unregister(sess.ID())

	events, errs := sess.Run(ctx)
	defer sess.Close()

	for {
		select {
		case <-ctx.Done():
			errChan <- &ErrorMessage{StatusCode: http.StatusRequestTimeout, Error: ctx.Err()}
			return false
		case err := <-errs:
			if err == nil {
				continue
			}
			errChan <- &ErrorMessage{StatusCode: http.StatusBadGateway, Error: err}
			return false
		case ev, ok := <-events:
			if !ok {
				// Stream closed without an explicit turn end event.
				emit(builder.FinishChunk())
				return true
			}
			if finished := c.emitEvent(ev, builder, emit); finished {
				return true
			}
		}
	}
}

// emitEvent converts one session event into zero or more chunks. It
// returns true on turn end.
func (c *CursorClient) emitEvent(ev session.Event, builder *openaitr.ChunkBuilder, emit func(string)) bool {
	switch event := ev.(type) {
	case session.TextEvent:
		if chunk, ok := builder.RoleChunk(); ok {
			emit(chunk)
		}
		emit(builder.TextChunk(event.Text))
	case session.ExecEvent:
		if chunk, ok := builder.RoleChunk(); ok {
			emit(chunk)
		}
		emit(builder.ToolCallChunk(event.ToolCallID, event.Name, event.Arguments))
	case session.ToolCallBeginEvent, session.ToolCallDeltaEvent:
		// Model-side tool calls are surfaced when completed.
	case session.ToolCallEndEvent:
		log.Debugf("model tool call %s completed upstream", event.CallID)
	case session.AbortEvent:
		log.Debugf("upstream aborted exec %d", event.ExecID)
	case session.CheckpointEvent:
	case session.TurnEndEvent:
		emit(builder.FinishChunk())
		return true
	}
	return false
}

// buildRunOptions assembles the agent run request for one OpenAI request.
func (c *CursorClient) buildRunOptions(modelName string, rawJSON []byte) agent.RunOptions {
	mode := agent.ModeAgent
	if c.cfg.Cursor.AgentMode == "ask" {
		mode = agent.ModeAsk
	}
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	return agent.RunOptions{
		Prompt:         openaitr.BuildAgentPrompt(rawJSON),
		MessageID:      uuid.New().String(),
		ConversationID: uuid.New().String(),
		Model:          registry.GetGlobalRegistry().ResolveUpstream(modelName),
		Mode:           mode,
		OSDescriptor:   runtime.GOOS + " " + runtime.GOARCH,
		WorkspacePath:  c.cfg.Cursor.WorkspacePath,
		Shell:          shell,
		Timezone:       time.Local.String(),
		Tools:          openaitr.ExtractTools(rawJSON),
	}
}

func (c *CursorClient) idlePolicy() session.IdlePolicy {
	cur := c.cfg.Cursor
	policy := session.DefaultIdlePolicy()
	if cur.IdleTimeoutMs > 0 {
		policy.IdleNoProgress = time.Duration(cur.IdleTimeoutMs) * time.Millisecond
	}
	if cur.IdleTimeoutAfterProgressMs > 0 {
		policy.IdleAfterProgress = time.Duration(cur.IdleTimeoutAfterProgressMs) * time.Millisecond
	}
	if cur.MaxHeartbeats > 0 {
		policy.MaxBeatsNoProgress = cur.MaxHeartbeats
	}
	if cur.MaxHeartbeatsAfterProgress > 0 {
		policy.MaxBeatsAfterProgress = cur.MaxHeartbeatsAfterProgress
	}
	return policy
}
