// Package bridge translates between Cursor exec requests and OpenAI tool
// calls. It produces the synthetic tool_call ids exposed to OpenAI clients,
// maps exec arguments to OpenAI tool arguments, and re-encodes OpenAI tool
// results into the per-type Cursor reply messages.
package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/cursor-proxy/CursorProxyAPI/internal/agent"
)

const (
	sessionPrefix = "sess_"
	callInfix     = "__call_"
	maxBaseLen    = 32
)

// MakeToolCallID builds the stable OpenAI tool_call id for an exec request:
// sess_<sid>__call_<base>. The base is the sanitized Cursor tool_call_id
// for mcp requests, otherwise the exec_id or numeric id.
func MakeToolCallID(sessionID string, req *agent.ExecRequest) string {
	base := ""
	if req.Mcp != nil && req.Mcp.ToolCallID != "" {
		base = req.Mcp.ToolCallID
	} else if req.ExecID != "" {
		base = req.ExecID
	} else if req.ID != 0 {
		base = strconv.FormatUint(uint64(req.ID), 10)
	}
	base = sanitizeBase(base)
	if base == "" {
		base = sanitizeBase(strings.ReplaceAll(uuid.New().String(), "-", ""))
	}
	return sessionPrefix + sessionID + callInfix + base
}

// ParseSessionID recovers the session id from a synthetic tool_call id.
func ParseSessionID(toolCallID string) (string, bool) {
	if !strings.HasPrefix(toolCallID, sessionPrefix) {
		return "", false
	}
	rest := toolCallID[len(sessionPrefix):]
	sid, _, found := strings.Cut(rest, callInfix)
	if !found || sid == "" {
		return "", false
	}
	return sid, true
}

func sanitizeBase(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() >= maxBaseLen {
				break
			}
		}
	}
	return b.String()
}

// MapExec maps an exec request to the OpenAI tool name and JSON arguments
// surfaced in the tool_calls delta.
func MapExec(req *agent.ExecRequest) (string, string) {
	switch req.Type {
	case agent.ExecShell:
		args := `{}`
		args, _ = sjson.Set(args, "command", req.Shell.Command)
		if req.Shell.Description != "" {
			args, _ = sjson.Set(args, "description", req.Shell.Description)
		}
		if req.Shell.Workdir != "" {
			args, _ = sjson.Set(args, "workdir", req.Shell.Workdir)
		}
		return "bash", args
	case agent.ExecRead:
		args, _ := sjson.Set(`{}`, "filePath", req.Read.Path)
		return "read", args
	case agent.ExecLs:
		args, _ := sjson.Set(`{}`, "path", req.Ls.Path)
		return "list", args
	case agent.ExecGrep:
		name := "grep"
		pattern := req.Grep.Pattern
		if req.Grep.Glob != "" {
			name = "glob"
			pattern = req.Grep.Glob
		}
		args := `{}`
		args, _ = sjson.Set(args, "pattern", pattern)
		args, _ = sjson.Set(args, "path", req.Grep.Path)
		return name, args
	case agent.ExecWrite:
		args := `{}`
		args, _ = sjson.Set(args, "filePath", req.Write.Path)
		args, _ = sjson.Set(args, "content", req.Write.Content)
		return "write", args
	case agent.ExecMcp:
		args := req.Mcp.ArgsJSON
		if !gjson.Valid(args) {
			args = `{}`
		}
		return req.Mcp.ToolName, args
	default:
		return req.Type, `{}`
	}
}

// BuildResultMessages reconstructs the per-type Cursor reply for an OpenAI
// tool result and returns the encoded (result, stream_close) client message
// pair. The pair must be appended contiguously for this exec id.
func BuildResultMessages(req *agent.ExecRequest, content string) ([]byte, []byte, error) {
	var result []byte
	switch req.Type {
	case agent.ExecShell:
		res := agent.ShellResult{Stdout: content}
		if req.Shell != nil {
			res.Command = req.Shell.Command
			res.Cwd = req.Shell.Workdir
		}
		if parsed := gjson.Parse(content); parsed.IsObject() {
			if stdout := parsed.Get("stdout"); stdout.Exists() {
				res.Stdout = stdout.String()
				res.Stderr = parsed.Get("stderr").String()
				res.ExitCode = int32(parsed.Get("exitCode").Int())
				res.ExecTimeMs = parsed.Get("executionTimeMs").Int()
			}
		}
		result = agent.EncodeShellResult(req.ID, req.ExecID, res)
	case agent.ExecRead:
		result = agent.EncodeReadResult(req.ID, req.ExecID, agent.ReadResult{
			Content:    content,
			TotalLines: int32(len(strings.Split(content, "\n"))),
			FileSize:   int64(len(content)),
			Truncated:  false,
		})
	case agent.ExecLs:
		result = agent.EncodeLsResult(req.ID, req.ExecID, content)
	case agent.ExecGrep:
		var matches []string
		for _, line := range strings.Split(content, "\n") {
			if line != "" {
				matches = append(matches, line)
			}
		}
		result = agent.EncodeGrepResult(req.ID, req.ExecID, matches)
	case agent.ExecWrite:
		res := agent.WriteResult{
			LinesCreated: int32(strings.Count(content, "\n") + 1),
			FileSize:     int64(len(content)),
		}
		if parsed := gjson.Parse(content); parsed.IsObject() {
			if errMsg := parsed.Get("error"); errMsg.Exists() {
				res = agent.WriteResult{Error: errMsg.String()}
			} else if parsed.Get("linesCreated").Exists() || parsed.Get("fileSize").Exists() {
				res.LinesCreated = int32(parsed.Get("linesCreated").Int())
				res.FileSize = parsed.Get("fileSize").Int()
				res.FileContentAfterWrite = parsed.Get("fileContentAfterWrite").String()
			}
		}
		result = agent.EncodeWriteResult(req.ID, req.ExecID, res)
	case agent.ExecMcp:
		errMsg := ""
		if parsed := gjson.Parse(content); parsed.IsObject() {
			if e := parsed.Get("error"); e.Exists() && e.String() != "" {
				errMsg = e.String()
			}
		}
		result = agent.EncodeMcpResult(req.ID, req.ExecID, content, errMsg)
	case agent.ExecRequestContext:
		result = agent.EncodeRequestContextResult(req.ID, req.ExecID)
	default:
		return nil, nil, fmt.Errorf("bridge: cannot build result for exec type %q", req.Type)
	}
	return result, agent.EncodeStreamClose(req.ID), nil
}
