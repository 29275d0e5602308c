package openai

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
)

// Finish reasons reported to Chat Completions clients.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
)

// ChunkBuilder produces Chat Completions streaming chunks for one
// response. The same builder also accumulates content so a non-streaming
// caller can ask for the final chat.completion object instead.
type ChunkBuilder struct {
	ID      string
	Model   string
	Created int64

	content   strings.Builder
	toolCalls []builtToolCall
	sentRole  bool
}

type builtToolCall struct {
	id        string
	name      string
	arguments string
}

// NewChunkBuilder creates a builder for one response with a fresh
// chatcmpl id.
func NewChunkBuilder(model string) *ChunkBuilder {
	return &ChunkBuilder{
		ID:      "chatcmpl-" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		Model:   model,
		Created: time.Now().Unix(),
	}
}

func (b *ChunkBuilder) baseChunk() string {
	out := `{"id":"","object":"chat.completion.chunk","created":0,"model":"","choices":[{"index":0,"delta":{},"finish_reason":null}]}`
	out, _ = sjson.Set(out, "id", b.ID)
	out, _ = sjson.Set(out, "created", b.Created)
	out, _ = sjson.Set(out, "model", b.Model)
	return out
}

// RoleChunk returns the opening chunk that carries the assistant role. It
// is emitted at most once per response.
func (b *ChunkBuilder) RoleChunk() (string, bool) {
	if b.sentRole {
		return "", false
	}
	b.sentRole = true
	out, _ := sjson.Set(b.baseChunk(), "choices.0.delta.role", "assistant")
	return out, true
}

// TextChunk returns a content delta chunk and records the text for the
// non-streaming aggregate.
func (b *ChunkBuilder) TextChunk(text string) string {
	b.content.WriteString(text)
	out, _ := sjson.Set(b.baseChunk(), "choices.0.delta.content", text)
	return out
}

// ToolCallChunk returns a complete tool_call delta chunk. The agent
// protocol hands over exec requests whole, so each tool call is emitted
// as a single chunk carrying id, name, and full arguments.
func (b *ChunkBuilder) ToolCallChunk(callID, name, arguments string) string {
	index := len(b.toolCalls)
	b.toolCalls = append(b.toolCalls, builtToolCall{id: callID, name: name, arguments: arguments})

	out := b.baseChunk()
	call := `{"index":0,"id":"","type":"function","function":{"name":"","arguments":""}}`
	call, _ = sjson.Set(call, "index", index)
	call, _ = sjson.Set(call, "id", callID)
	call, _ = sjson.Set(call, "function.name", name)
	call, _ = sjson.Set(call, "function.arguments", arguments)
	out, _ = sjson.SetRaw(out, "choices.0.delta.tool_calls.-1", call)
	return out
}

// FinishReason reports how the response should close: tool_calls when any
// tool call was emitted, stop otherwise.
func (b *ChunkBuilder) FinishReason() string {
	if len(b.toolCalls) > 0 {
		return FinishToolCalls
	}
	return FinishStop
}

// FinishChunk returns the closing chunk carrying the finish reason.
func (b *ChunkBuilder) FinishChunk() string {
	out, _ := sjson.Set(b.baseChunk(), "choices.0.finish_reason", b.FinishReason())
	return out
}

// Completion returns the accumulated non-streaming chat.completion
// object.
//
// Returns:
//   - string: The complete response JSON.
func (b *ChunkBuilder) Completion() string {
	out := `{"id":"","object":"chat.completion","created":0,"model":"","choices":[{"index":0,"message":{"role":"assistant","content":null},"finish_reason":null}],"usage":{"prompt_tokens":0,"completion_tokens":0,"total_tokens":0}}`
	out, _ = sjson.Set(out, "id", b.ID)
	out, _ = sjson.Set(out, "created", b.Created)
	out, _ = sjson.Set(out, "model", b.Model)
	if b.content.Len() > 0 {
		out, _ = sjson.Set(out, "choices.0.message.content", b.content.String())
	}
	for _, call := range b.toolCalls {
		callJSON := `{"id":"","type":"function","function":{"name":"","arguments":""}}`
		callJSON, _ = sjson.Set(callJSON, "id", call.id)
		callJSON, _ = sjson.Set(callJSON, "function.name", call.name)
		callJSON, _ = sjson.Set(callJSON, "function.arguments", call.arguments)
		out, _ = sjson.SetRaw(out, "choices.0.message.tool_calls.-1", callJSON)
	}
	out, _ = sjson.Set(out, "choices.0.finish_reason", b.FinishReason())
	return out
}
