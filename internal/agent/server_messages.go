package agent

import (
	log "github.com/sirupsen/logrus"

	"github.com/cursor-proxy/CursorProxyAPI/internal/wire"
)

// Exec request types. The type is identified by which per-type payload
// field of ExecServerMessage is populated.
const (
	ExecShell          = "shell"
	ExecRead           = "read"
	ExecLs             = "ls"
	ExecGrep           = "grep"
	ExecWrite          = "write"
	ExecMcp            = "mcp"
	ExecRequestContext = "request_context"
)

// ServerMessage is one decoded AgentServerMessage. Exactly one member is
// populated per message; unknown variants decode to a nil message and are
// skipped by the session loop.
type ServerMessage struct {
	Interaction *InteractionUpdate
	Exec        *ExecRequest
	Checkpoint  []byte
	Kv          *KvRequest
	AbortID     *uint32
	Query       []byte
}

// InteractionUpdate carries model output and turn control signals.
type InteractionUpdate struct {
	TextDelta         *string
	TokenDelta        *string
	ToolCallStarted   *ToolCall
	ToolCallCompleted *ToolCall
	PartialToolCall   *PartialToolCall
	Heartbeat         bool
	TurnEnded         bool
}

// ToolCall is the payload of tool_call_started / tool_call_completed.
type ToolCall struct {
	CallID string
	Name   string
	Args   string
}

// PartialToolCall streams incremental tool-call argument text.
type PartialToolCall struct {
	CallID        string
	ArgsTextDelta string
}

// ExecRequest is a server instruction to run a tool on the client side.
// The original request is retained verbatim in pending-exec maps so the
// eventual result can be re-encoded against it.
type ExecRequest struct {
	ID     uint32
	ExecID string
	Type   string
	Shell  *ShellArgs
	Read   *ReadArgs
	Ls     *LsArgs
	Grep   *GrepArgs
	Write  *WriteArgs
	Mcp    *McpArgs
}

// ShellArgs asks the client to run a command.
type ShellArgs struct {
	Command     string
	Description string
	Workdir     string
}

// ReadArgs asks the client to read a file.
type ReadArgs struct {
	Path string
}

// LsArgs asks the client to list a directory.
type LsArgs struct {
	Path string
}

// GrepArgs asks the client to search. A populated Glob switches the
// request to glob matching.
type GrepArgs struct {
	Pattern string
	Path    string
	Glob    string
}

// WriteArgs asks the client to write a file.
type WriteArgs struct {
	Path    string
	Content string
}

// McpArgs asks the client to invoke one of the forwarded MCP tools.
type McpArgs struct {
	ToolName   string
	ArgsJSON   string
	ToolCallID string
}

// KvRequest is a server blob read or write against the session blob store.
type KvRequest struct {
	ID  uint32
	Get *GetBlobArgs
	Set *SetBlobArgs
}

// GetBlobArgs requests the blob stored under a content address.
type GetBlobArgs struct {
	BlobID []byte
}

// SetBlobArgs stores blob bytes under a content address.
type SetBlobArgs struct {
	BlobID   []byte
	BlobData []byte
}

// ParseServerMessage decodes one inbound frame payload. Malformed field
// encodings are fatal for the session; unknown fields are ignored.
func ParseServerMessage(payload []byte) (*ServerMessage, error) {
	fields, err := wire.ParseFields(payload)
	if err != nil {
		return nil, err
	}
	msg := &ServerMessage{}
	for _, f := range fields {
		switch f.Num {
		case serverInteractionField:
			if msg.Interaction, err = parseInteractionUpdate(f.Bytes); err != nil {
				return nil, err
			}
		case serverExecField:
			if msg.Exec, err = parseExecRequest(f.Bytes); err != nil {
				return nil, err
			}
		case serverCheckpointField:
			msg.Checkpoint = f.Bytes
		case serverKvField:
			if msg.Kv, err = parseKvRequest(f.Bytes); err != nil {
				return nil, err
			}
		case serverExecControlField:
			id, errAbort := parseAbort(f.Bytes)
			if errAbort != nil {
				return nil, errAbort
			}
			msg.AbortID = &id
		case serverQueryField:
			msg.Query = f.Bytes
		default:
			log.Debugf("agent: skipping unknown server message field %d", f.Num)
		}
	}
	return msg, nil
}

func parseInteractionUpdate(data []byte) (*InteractionUpdate, error) {
	fields, err := wire.ParseFields(data)
	if err != nil {
		return nil, err
	}
	update := &InteractionUpdate{}
	for _, f := range fields {
		switch f.Num {
		case interactionTextDeltaField:
			text, errText := parseTextWrapper(f.Bytes)
			if errText != nil {
				return nil, errText
			}
			update.TextDelta = &text
		case interactionTokenDeltaField:
			text, errText := parseTextWrapper(f.Bytes)
			if errText != nil {
				return nil, errText
			}
			update.TokenDelta = &text
		case interactionToolStartedField:
			call, errCall := parseToolCall(f.Bytes)
			if errCall != nil {
				return nil, errCall
			}
			update.ToolCallStarted = call
		case interactionToolCompletedField:
			call, errCall := parseToolCall(f.Bytes)
			if errCall != nil {
				return nil, errCall
			}
			update.ToolCallCompleted = call
		case interactionPartialToolField:
			partial, errPartial := parsePartialToolCall(f.Bytes)
			if errPartial != nil {
				return nil, errPartial
			}
			update.PartialToolCall = partial
		case interactionHeartbeatField:
			update.Heartbeat = true
		case interactionTurnEndedField:
			update.TurnEnded = true
		}
	}
	return update, nil
}

func parseTextWrapper(data []byte) (string, error) {
	fields, err := wire.ParseFields(data)
	if err != nil {
		return "", err
	}
	if f := wire.FindField(fields, deltaTextField); f != nil {
		return string(f.Bytes), nil
	}
	return "", nil
}

func parseToolCall(data []byte) (*ToolCall, error) {
	fields, err := wire.ParseFields(data)
	if err != nil {
		return nil, err
	}
	call := &ToolCall{}
	for _, f := range fields {
		switch f.Num {
		case toolCallIDField:
			call.CallID = string(f.Bytes)
		case toolCallNameField:
			call.Name = string(f.Bytes)
		case toolCallArgsField:
			call.Args = string(f.Bytes)
		}
	}
	return call, nil
}

func parsePartialToolCall(data []byte) (*PartialToolCall, error) {
	fields, err := wire.ParseFields(data)
	if err != nil {
		return nil, err
	}
	partial := &PartialToolCall{}
	for _, f := range fields {
		switch f.Num {
		case partialCallIDField:
			partial.CallID = string(f.Bytes)
		case partialArgsDeltaField:
			partial.ArgsTextDelta = string(f.Bytes)
		}
	}
	return partial, nil
}

func parseExecRequest(data []byte) (*ExecRequest, error) {
	fields, err := wire.ParseFields(data)
	if err != nil {
		return nil, err
	}
	req := &ExecRequest{}
	for _, f := range fields {
		switch f.Num {
		case execIDField:
			req.ID = uint32(f.Varint)
		case execExecIDField:
			req.ExecID = string(f.Bytes)
		case execShellField:
			args, errArgs := parseStringFields(f.Bytes, 3)
			if errArgs != nil {
				return nil, errArgs
			}
			req.Type = ExecShell
			req.Shell = &ShellArgs{Command: args[0], Description: args[1], Workdir: args[2]}
		case execLsField:
			args, errArgs := parseStringFields(f.Bytes, 1)
			if errArgs != nil {
				return nil, errArgs
			}
			req.Type = ExecLs
			req.Ls = &LsArgs{Path: args[0]}
		case execReadField:
			args, errArgs := parseStringFields(f.Bytes, 1)
			if errArgs != nil {
				return nil, errArgs
			}
			req.Type = ExecRead
			req.Read = &ReadArgs{Path: args[0]}
		case execGrepField:
			args, errArgs := parseStringFields(f.Bytes, 3)
			if errArgs != nil {
				return nil, errArgs
			}
			req.Type = ExecGrep
			req.Grep = &GrepArgs{Pattern: args[0], Path: args[1], Glob: args[2]}
		case execWriteField:
			args, errArgs := parseStringFields(f.Bytes, 2)
			if errArgs != nil {
				return nil, errArgs
			}
			req.Type = ExecWrite
			req.Write = &WriteArgs{Path: args[0], Content: args[1]}
		case execMcpField:
			args, errArgs := parseStringFields(f.Bytes, 3)
			if errArgs != nil {
				return nil, errArgs
			}
			req.Type = ExecMcp
			req.Mcp = &McpArgs{ToolName: args[0], ArgsJSON: args[1], ToolCallID: args[2]}
		case execRequestContextField:
			req.Type = ExecRequestContext
		default:
			log.Debugf("agent: unknown exec request field %d, skipping", f.Num)
		}
	}
	return req, nil
}

// parseStringFields collects string fields numbered 1..n from a per-type
// args message.
func parseStringFields(data []byte, n int) ([]string, error) {
	fields, err := wire.ParseFields(data)
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for _, f := range fields {
		if f.Num >= 1 && f.Num <= n && f.Type == wire.TypeBytes {
			out[f.Num-1] = string(f.Bytes)
		}
	}
	return out, nil
}

func parseKvRequest(data []byte) (*KvRequest, error) {
	fields, err := wire.ParseFields(data)
	if err != nil {
		return nil, err
	}
	req := &KvRequest{}
	for _, f := range fields {
		switch f.Num {
		case kvIDField:
			req.ID = uint32(f.Varint)
		case kvGetField:
			inner, errInner := wire.ParseFields(f.Bytes)
			if errInner != nil {
				return nil, errInner
			}
			req.Get = &GetBlobArgs{}
			if id := wire.FindField(inner, kvBlobIDField); id != nil {
				req.Get.BlobID = id.Bytes
			}
		case kvSetField:
			inner, errInner := wire.ParseFields(f.Bytes)
			if errInner != nil {
				return nil, errInner
			}
			req.Set = &SetBlobArgs{}
			if id := wire.FindField(inner, kvBlobIDField); id != nil {
				req.Set.BlobID = id.Bytes
			}
			if blob := wire.FindField(inner, kvBlobDataField); blob != nil {
				req.Set.BlobData = blob.Bytes
			}
		}
	}
	return req, nil
}

func parseAbort(data []byte) (uint32, error) {
	fields, err := wire.ParseFields(data)
	if err != nil {
		return 0, err
	}
	if f := wire.FindField(fields, controlStreamCloseField); f != nil {
		inner, errInner := wire.ParseFields(f.Bytes)
		if errInner != nil {
			return 0, errInner
		}
		if id := wire.FindField(inner, streamCloseIDField); id != nil {
			return uint32(id.Varint), nil
		}
	}
	return 0, nil
}
