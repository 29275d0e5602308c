// Package agent holds the field-number tables and codecs for the message
// kinds exchanged over a Cursor AgentService session. The schema is fixed
// at design time; unknown inbound fields are skipped so the proxy survives
// silent server-side additions.
package agent

// Conversation modes carried in UserMessage field 4.
const (
	ModeAsk   int32 = 1
	ModeAgent int32 = 2
)

// BidiRequestId / BidiAppendRequest (outbound envelope).
const (
	bidiRequestIDField = 1

	appendDataHexField   = 1
	appendRequestIDField = 2
	appendSeqnoField     = 3
)

// AgentClientMessage oneof (by presence).
const (
	clientRunRequestField  = 1
	clientExecField        = 2
	clientKvField          = 3
	clientExecControlField = 5
)

// ExecClientMessage: the same numbering identifies the per-type payload of
// inbound ExecServerMessage, which mirrors it symmetrically.
const (
	execIDField             = 1
	execShellField          = 2
	execLsField             = 4
	execReadField           = 6
	execGrepField           = 7
	execWriteField          = 8
	execMcpField            = 11
	execRequestContextField = 12
	execExecIDField         = 15
)

// ExecClientControlMessage / ExecServerControlMessage.
const (
	controlStreamCloseField = 1
	streamCloseIDField      = 1
)

// KvClientMessage / KvServerMessage.
const (
	kvIDField            = 1
	kvGetField           = 2
	kvSetField           = 3
	kvBlobIDField        = 1
	kvBlobDataField      = 2
	kvGetResultDataField = 1
)

// AgentRunRequest.
const (
	runConversationStateField = 1
	runActionField            = 2
	runModelDetailsField      = 3
	runMcpToolsField          = 4
	runConversationIDField    = 5
	runFileSystemField        = 6
)

// ConversationAction → UserMessageAction.
const (
	actionUserMessageField = 1

	userMessageField    = 1
	requestContextField = 2
)

// UserMessage.
const (
	userTextField      = 1
	userMessageIDField = 2
	userModeField      = 4
)

// RequestContext and its env message.
const (
	contextEnvField          = 4
	contextMcpToolField      = 7
	contextInstructionsField = 14

	envOSField         = 1
	envWorkspaceField  = 2
	envShellField      = 3
	envTimezoneField   = 10
	envWorkspace2Field = 11
)

// McpToolDefinition.
const (
	toolQualifiedNameField = 1
	toolDescriptionField   = 2
	toolSchemaField        = 3
	toolServerField        = 4
	toolNameField          = 5
)

// McpFileSystemOptions.
const (
	fsEnabledField    = 1
	fsProjectDirField = 2
	fsDescriptorField = 3
)

// ModelDetails.
const (
	modelNameField    = 1
	modelMaxModeField = 2
)

// AgentServerMessage oneof.
const (
	serverInteractionField = 1
	serverExecField        = 2
	serverCheckpointField  = 3
	serverKvField          = 4
	serverExecControlField = 5
	serverQueryField       = 7
)

// InteractionUpdate.
const (
	interactionTextDeltaField     = 1
	interactionToolStartedField   = 2
	interactionToolCompletedField = 3
	interactionPartialToolField   = 7
	interactionTokenDeltaField    = 8
	interactionHeartbeatField     = 13
	interactionTurnEndedField     = 14
)

// Tool call payloads inside InteractionUpdate.
const (
	toolCallIDField       = 1
	toolCallNameField     = 2
	toolCallArgsField     = 3
	partialCallIDField    = 1
	partialArgsDeltaField = 2
	deltaTextField        = 1
)

// The ToolServerName prefixes every forwarded tool definition so the agent
// treats proxied OpenAI tools as belonging to one MCP server.
const (
	ToolServerName = "cursor-tools"
	ToolNamePrefix = "cursor-tools-"
)
