package openai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestRoleChunkEmittedOnce(t *testing.T) {
	b := NewChunkBuilder("sonnet-4.5")
	chunk, ok := b.RoleChunk()
	require.True(t, ok)
	require.True(t, gjson.Valid(chunk))
	require.Equal(t, "assistant", gjson.Get(chunk, "choices.0.delta.role").String())
	require.Equal(t, "chat.completion.chunk", gjson.Get(chunk, "object").String())
	require.Equal(t, "sonnet-4.5", gjson.Get(chunk, "model").String())
	require.True(t, strings.HasPrefix(b.ID, "chatcmpl-"))

	_, ok = b.RoleChunk()
	require.False(t, ok)
}

func TestTextChunks(t *testing.T) {
	b := NewChunkBuilder("m")
	chunk := b.TextChunk("hel")
	require.Equal(t, "hel", gjson.Get(chunk, "choices.0.delta.content").String())
	require.Equal(t, gjson.Null, gjson.Get(chunk, "choices.0.finish_reason").Type)
	b.TextChunk("lo")

	require.Equal(t, FinishStop, b.FinishReason())
	finish := b.FinishChunk()
	require.Equal(t, FinishStop, gjson.Get(finish, "choices.0.finish_reason").String())
}

func TestToolCallChunks(t *testing.T) {
	b := NewChunkBuilder("m")
	first := b.ToolCallChunk("sess_a__call_1", "bash", `{"command":"ls"}`)
	calls := gjson.Get(first, "choices.0.delta.tool_calls").Array()
	require.Len(t, calls, 1)
	require.Equal(t, int64(0), calls[0].Get("index").Int())
	require.Equal(t, "sess_a__call_1", calls[0].Get("id").String())
	require.Equal(t, "function", calls[0].Get("type").String())
	require.Equal(t, "bash", calls[0].Get("function.name").String())
	require.Equal(t, `{"command":"ls"}`, calls[0].Get("function.arguments").String())

	second := b.ToolCallChunk("sess_a__call_2", "read", `{}`)
	require.Equal(t, int64(1), gjson.Get(second, "choices.0.delta.tool_calls.0.index").Int())

	require.Equal(t, FinishToolCalls, b.FinishReason())
}

func TestCompletionAggregate(t *testing.T) {
	b := NewChunkBuilder("gpt-5.2")
	b.TextChunk("Hello ")
	b.TextChunk("world")
	b.ToolCallChunk("sess_a__call_1", "grep", `{"pattern":"x"}`)

	out := b.Completion()
	require.True(t, gjson.Valid(out))
	require.Equal(t, "chat.completion", gjson.Get(out, "object").String())
	require.Equal(t, b.ID, gjson.Get(out, "id").String())
	require.Equal(t, "Hello world", gjson.Get(out, "choices.0.message.content").String())
	calls := gjson.Get(out, "choices.0.message.tool_calls").Array()
	require.Len(t, calls, 1)
	require.Equal(t, "grep", calls[0].Get("function.name").String())
	require.Equal(t, FinishToolCalls, gjson.Get(out, "choices.0.finish_reason").String())
	require.Equal(t, int64(0), gjson.Get(out, "usage.total_tokens").Int())
}

func TestCompletionEmptyContentStaysNull(t *testing.T) {
	b := NewChunkBuilder("m")
	out := b.Completion()
	require.Equal(t, gjson.Null, gjson.Get(out, "choices.0.message.content").Type)
	require.Equal(t, FinishStop, gjson.Get(out, "choices.0.finish_reason").String())
}
