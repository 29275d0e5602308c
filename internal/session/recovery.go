package session

import (
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/cursor-proxy/CursorProxyAPI/internal/wire"
)

// minRecoverableTextLen filters protobuf string fields that are too short
// to plausibly be assistant prose.
const minRecoverableTextLen = 50

// ExtractAssistantTexts analyzes blob bytes written by the server and
// recovers any assistant message text they carry. The server sometimes
// persists the model's reply into a conversation blob instead of streaming
// it; texts recovered here are replayed as synthetic events when a turn
// ends without streamed output.
func ExtractAssistantTexts(data []byte) []string {
	if !utf8.Valid(data) {
		return extractFromBinary(data)
	}
	text := string(data)
	if !gjson.Valid(text) {
		return extractFromBinary(data)
	}
	root := gjson.Parse(text)
	if !root.IsObject() {
		return nil
	}

	var texts []string
	texts = append(texts, assistantContent(root)...)
	if messages := root.Get("messages"); messages.IsArray() {
		messages.ForEach(func(_, msg gjson.Result) bool {
			texts = append(texts, assistantContent(msg)...)
			return true
		})
	}
	return texts
}

// assistantContent pulls text out of one message-shaped JSON object when
// its role is assistant. Content may be a plain string or a list of
// {type:"text", text} parts.
func assistantContent(msg gjson.Result) []string {
	if msg.Get("role").String() != "assistant" {
		return nil
	}
	content := msg.Get("content")
	switch {
	case content.Type == gjson.String:
		if content.Str != "" {
			return []string{content.Str}
		}
	case content.IsArray():
		var texts []string
		content.ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "text" {
				if text := part.Get("text").String(); text != "" {
					texts = append(texts, text)
				}
			}
			return true
		})
		return texts
	}
	return nil
}

// extractFromBinary treats the blob as protobuf fields and records every
// length-delimited payload that looks like prose: valid UTF-8, longer than
// minRecoverableTextLen, and not JSON (which the caller handled already).
func extractFromBinary(data []byte) []string {
	fields, err := wire.ParseFields(data)
	if err != nil {
		return nil
	}
	var texts []string
	for _, f := range fields {
		if f.Type != wire.TypeBytes || len(f.Bytes) <= minRecoverableTextLen {
			continue
		}
		if !utf8.Valid(f.Bytes) {
			continue
		}
		if f.Bytes[0] == '{' || f.Bytes[0] == '[' {
			continue
		}
		texts = append(texts, string(f.Bytes))
	}
	return texts
}
