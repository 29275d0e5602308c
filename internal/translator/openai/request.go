// Package openai translates between the OpenAI Chat Completions API and
// the Cursor agent protocol. Inbound requests are flattened into a single
// agent prompt (every session is fresh, so the whole conversation history
// rides in the prompt), tool declarations become MCP tool definitions, and
// outbound agent events become Chat Completions chunks or a complete
// response object.
package openai

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/cursor-proxy/CursorProxyAPI/internal/agent"
)

// ToolResult is a trailing tool message from the inbound request, kept
// separate so it can be offered to a still-live session before the
// history is flattened.
type ToolResult struct {
	ToolCallID string
	Content    string
}

// ExtractTools converts the request's tool declarations into agent tool
// definitions. Only function tools are understood; anything else is
// skipped.
//
// Parameters:
//   - rawJSON: The raw Chat Completions request body.
//
// Returns:
//   - []agent.ToolDefinition: The declared tools, in request order.
func ExtractTools(rawJSON []byte) []agent.ToolDefinition {
	root := gjson.ParseBytes(rawJSON)
	var tools []agent.ToolDefinition
	root.Get("tools").ForEach(func(_, tool gjson.Result) bool {
		if tool.Get("type").String() != "function" {
			return true
		}
		fn := tool.Get("function")
		name := fn.Get("name").String()
		if name == "" {
			return true
		}
		tools = append(tools, agent.ToolDefinition{
			Name:        name,
			Description: fn.Get("description").String(),
			Parameters:  fn.Get("parameters"),
		})
		return true
	})
	return tools
}

// TrailingToolResults returns the tool messages that sit at the very end
// of the conversation, newest request first broken at the first non-tool
// message scanning backwards. These are the results the client is
// answering the previous turn's tool calls with.
func TrailingToolResults(rawJSON []byte) []ToolResult {
	messages := gjson.GetBytes(rawJSON, "messages").Array()
	var results []ToolResult
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Get("role").String() != "tool" {
			break
		}
		results = append(results, ToolResult{
			ToolCallID: messages[i].Get("tool_call_id").String(),
			Content:    contentText(messages[i].Get("content")),
		})
	}
	// Restore request order.
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results
}

// BuildAgentPrompt flattens the full message history into one prompt for
// a fresh agent session. System text leads, then each turn is labeled by
// role; assistant tool calls and tool results are rendered as readable
// lines so the model can reconstruct the conversation.
//
// Parameters:
//   - rawJSON: The raw Chat Completions request body.
//
// Returns:
//   - string: The flattened prompt.
func BuildAgentPrompt(rawJSON []byte) string {
	root := gjson.ParseBytes(rawJSON)
	var sb strings.Builder

	messages := root.Get("messages").Array()
	for _, msg := range messages {
		role := msg.Get("role").String()
		text := contentText(msg.Get("content"))
		switch role {
		case "system", "developer":
			writeSection(&sb, "System", text)
		case "user":
			writeSection(&sb, "User", text)
		case "assistant":
			if text != "" {
				writeSection(&sb, "Assistant", text)
			}
			msg.Get("tool_calls").ForEach(func(_, call gjson.Result) bool {
				fn := call.Get("function")
				line := "Called tool " + fn.Get("name").String() +
					" (id " + call.Get("id").String() + ") with arguments: " +
					fn.Get("arguments").String()
				writeSection(&sb, "Assistant", line)
				return true
			})
		case "tool":
			label := "Tool result for " + msg.Get("tool_call_id").String()
			writeSection(&sb, label, text)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeSection(sb *strings.Builder, label, text string) {
	if text == "" {
		return
	}
	if sb.Len() > 0 {
		sb.WriteString("\n\n")
	}
	sb.WriteString(label)
	sb.WriteString(":\n")
	sb.WriteString(text)
}

// contentText joins a message content value into plain text. Content may
// be a string or a list of typed parts; only text parts contribute.
func contentText(content gjson.Result) string {
	switch {
	case content.Type == gjson.String:
		return content.Str
	case content.IsArray():
		var parts []string
		content.ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "text" {
				if text := part.Get("text").String(); text != "" {
					parts = append(parts, text)
				}
			}
			return true
		})
		return strings.Join(parts, "\n")
	}
	return ""
}
