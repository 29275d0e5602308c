package agent

import (
	"encoding/hex"

	"github.com/tidwall/gjson"

	"github.com/cursor-proxy/CursorProxyAPI/internal/wire"
)

// ToolDefinition is one OpenAI tool forwarded to the agent as an MCP tool.
// Parameters holds the caller's JSON schema and passes through the generic
// Value encoder untouched.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  gjson.Result
}

// RunOptions carries everything needed to encode the initial
// AgentRunRequest of a session.
type RunOptions struct {
	Prompt          string
	MessageID       string
	ConversationID  string
	Model           string
	Mode            int32
	OSDescriptor    string
	WorkspacePath   string
	Shell           string
	Timezone        string
	Tools           []ToolDefinition
	MCPInstructions string
}

// EncodeBidiRequestID encodes the BidiRequestId message that opens the
// RunSSE inbound channel.
func EncodeBidiRequestID(requestID string) []byte {
	return wire.AppendString(nil, bidiRequestIDField, requestID)
}

// EncodeBidiAppend wraps one AgentClientMessage into a BidiAppendRequest.
// The client message travels hex-encoded in field 1; the append sequence
// number must be strictly increasing and gap-free within a session.
func EncodeBidiAppend(requestID string, seqno int64, clientMessage []byte) []byte {
	var dst []byte
	dst = wire.AppendString(dst, appendDataHexField, hex.EncodeToString(clientMessage))
	dst = wire.AppendMessage(dst, appendRequestIDField, EncodeBidiRequestID(requestID))
	dst = wire.AppendInt64(dst, appendSeqnoField, seqno)
	return dst
}

// EncodeRunRequest builds AgentClientMessage{run_request} for the first
// append of a session.
func EncodeRunRequest(opts RunOptions) []byte {
	var user []byte
	user = wire.AppendString(user, userTextField, opts.Prompt)
	user = wire.AppendString(user, userMessageIDField, opts.MessageID)
	user = wire.AppendInt32(user, userModeField, opts.Mode)

	var env []byte
	env = wire.AppendString(env, envOSField, opts.OSDescriptor)
	env = wire.AppendString(env, envWorkspaceField, opts.WorkspacePath)
	env = wire.AppendString(env, envShellField, opts.Shell)
	env = wire.AppendString(env, envTimezoneField, opts.Timezone)
	env = wire.AppendString(env, envWorkspace2Field, opts.WorkspacePath)

	var reqCtx []byte
	reqCtx = wire.AppendMessage(reqCtx, contextEnvField, env)
	for _, tool := range opts.Tools {
		reqCtx = wire.AppendMessage(reqCtx, contextMcpToolField, encodeToolDefinition(tool))
	}
	if opts.MCPInstructions != "" {
		reqCtx = wire.AppendString(reqCtx, contextInstructionsField, opts.MCPInstructions)
	}

	var userAction []byte
	userAction = wire.AppendMessage(userAction, userMessageField, user)
	userAction = wire.AppendMessage(userAction, requestContextField, reqCtx)

	var action []byte
	action = wire.AppendMessage(action, actionUserMessageField, userAction)

	var model []byte
	model = wire.AppendString(model, modelNameField, opts.Model)

	var tools []byte
	for _, tool := range opts.Tools {
		tools = wire.AppendMessage(tools, 1, encodeToolDefinition(tool))
	}

	var fs []byte
	fs = wire.AppendBool(fs, fsEnabledField, true)
	fs = wire.AppendString(fs, fsProjectDirField, opts.WorkspacePath)
	fs = wire.AppendString(fs, fsDescriptorField, ToolServerName)

	var run []byte
	run = wire.AppendMessage(run, runConversationStateField, nil)
	run = wire.AppendMessage(run, runActionField, action)
	run = wire.AppendMessage(run, runModelDetailsField, model)
	run = wire.AppendMessage(run, runMcpToolsField, tools)
	run = wire.AppendString(run, runConversationIDField, opts.ConversationID)
	run = wire.AppendMessage(run, runFileSystemField, fs)

	return wire.AppendMessage(nil, clientRunRequestField, run)
}

func encodeToolDefinition(tool ToolDefinition) []byte {
	var dst []byte
	dst = wire.AppendString(dst, toolQualifiedNameField, ToolNamePrefix+tool.Name)
	dst = wire.AppendString(dst, toolDescriptionField, tool.Description)
	if tool.Parameters.Exists() {
		dst = wire.AppendMessage(dst, toolSchemaField, wire.EncodeValue(tool.Parameters))
	}
	dst = wire.AppendString(dst, toolServerField, ToolServerName)
	dst = wire.AppendString(dst, toolNameField, tool.Name)
	return dst
}

// EncodeStreamClose builds AgentClientMessage{exec_client_control_message}
// closing the exec stream for one id. It always follows the matching result
// message on the wire.
func EncodeStreamClose(id uint32) []byte {
	var closeMsg []byte
	closeMsg = wire.AppendUint(closeMsg, streamCloseIDField, uint64(id))
	var control []byte
	control = wire.AppendMessage(control, controlStreamCloseField, closeMsg)
	return wire.AppendMessage(nil, clientExecControlField, control)
}

// EncodeGetBlobResult answers a get_blob_args request. An absent blob is a
// reply with no blob_data field.
func EncodeGetBlobResult(id uint32, blobData []byte) []byte {
	var result []byte
	result = wire.AppendBytes(result, kvGetResultDataField, blobData)
	var kv []byte
	kv = wire.AppendUint(kv, kvIDField, uint64(id))
	kv = wire.AppendMessage(kv, kvGetField, result)
	return wire.AppendMessage(nil, clientKvField, kv)
}

// EncodeSetBlobResult acknowledges a set_blob_args request.
func EncodeSetBlobResult(id uint32) []byte {
	var kv []byte
	kv = wire.AppendUint(kv, kvIDField, uint64(id))
	kv = wire.AppendMessage(kv, kvSetField, nil)
	return wire.AppendMessage(nil, clientKvField, kv)
}

// ShellResult is the payload of a successful shell execution reply.
type ShellResult struct {
	Command    string
	Cwd        string
	ExitCode   int32
	Stderr     string
	Stdout     string
	Aborted    bool
	ExecTimeMs int64
}

// EncodeShellResult builds AgentClientMessage{exec_client_message} with a
// shell result envelope.
func EncodeShellResult(id uint32, execID string, res ShellResult) []byte {
	var success []byte
	success = wire.AppendString(success, 1, res.Command)
	success = wire.AppendString(success, 2, res.Cwd)
	success = wire.AppendInt32(success, 3, res.ExitCode)
	success = wire.AppendString(success, 4, res.Stderr)
	success = wire.AppendString(success, 5, res.Stdout)
	success = wire.AppendBool(success, 6, res.Aborted)
	success = wire.AppendInt64(success, 7, res.ExecTimeMs)
	return encodeExecResult(id, execID, execShellField, wire.AppendMessage(nil, 1, success))
}

// EncodeLsResult replies to an ls exec request with the listing text.
func EncodeLsResult(id uint32, execID, files string) []byte {
	var success []byte
	success = wire.AppendString(success, 1, files)
	return encodeExecResult(id, execID, execLsField, wire.AppendMessage(nil, 1, success))
}

// ReadResult is the payload of a successful file read reply.
type ReadResult struct {
	Content    string
	TotalLines int32
	FileSize   int64
	Truncated  bool
}

// EncodeReadResult replies to a read exec request.
func EncodeReadResult(id uint32, execID string, res ReadResult) []byte {
	var success []byte
	success = wire.AppendString(success, 1, res.Content)
	success = wire.AppendInt32(success, 2, res.TotalLines)
	success = wire.AppendInt64(success, 3, res.FileSize)
	success = wire.AppendBool(success, 4, res.Truncated)
	return encodeExecResult(id, execID, execReadField, wire.AppendMessage(nil, 1, success))
}

// EncodeGrepResult replies to a grep exec request with matched lines.
func EncodeGrepResult(id uint32, execID string, matches []string) []byte {
	var success []byte
	for _, m := range matches {
		success = wire.AppendString(success, 1, m)
	}
	return encodeExecResult(id, execID, execGrepField, wire.AppendMessage(nil, 1, success))
}

// WriteResult is the payload of a file write reply. A non-empty Error
// selects the failure variant.
type WriteResult struct {
	LinesCreated          int32
	FileSize              int64
	FileContentAfterWrite string
	Error                 string
}

// EncodeWriteResult replies to a write exec request.
func EncodeWriteResult(id uint32, execID string, res WriteResult) []byte {
	var body []byte
	if res.Error != "" {
		var failure []byte
		failure = wire.AppendString(failure, 1, res.Error)
		body = wire.AppendMessage(nil, 2, failure)
	} else {
		var success []byte
		success = wire.AppendInt32(success, 1, res.LinesCreated)
		success = wire.AppendInt64(success, 2, res.FileSize)
		success = wire.AppendString(success, 3, res.FileContentAfterWrite)
		body = wire.AppendMessage(nil, 1, success)
	}
	return encodeExecResult(id, execID, execWriteField, body)
}

// EncodeMcpResult replies to an mcp exec request. Text becomes a single
// TextContentBlock inside the success variant; a non-empty errMsg selects
// the failure variant instead.
func EncodeMcpResult(id uint32, execID, text, errMsg string) []byte {
	var body []byte
	if errMsg != "" {
		var failure []byte
		failure = wire.AppendString(failure, 1, errMsg)
		body = wire.AppendMessage(nil, 2, failure)
	} else {
		var textBlock []byte
		textBlock = wire.AppendString(textBlock, 1, text)
		var contentBlock []byte
		contentBlock = wire.AppendMessage(contentBlock, 1, textBlock)
		var success []byte
		success = wire.AppendMessage(success, 1, contentBlock)
		body = wire.AppendMessage(nil, 1, success)
	}
	return encodeExecResult(id, execID, execMcpField, body)
}

// EncodeRequestContextResult acknowledges a request_context exec request.
func EncodeRequestContextResult(id uint32, execID string) []byte {
	return encodeExecResult(id, execID, execRequestContextField, nil)
}

func encodeExecResult(id uint32, execID string, resultField int, body []byte) []byte {
	var exec []byte
	exec = wire.AppendUint(exec, execIDField, uint64(id))
	exec = wire.AppendMessage(exec, resultField, body)
	exec = wire.AppendString(exec, execExecIDField, execID)
	return wire.AppendMessage(nil, clientExecField, exec)
}
