package session

// Event is one demultiplexed inbound occurrence yielded to the OpenAI
// adapter in arrival order.
type Event interface {
	isEvent()
}

// TextEvent is streamed assistant text. Synthetic marks text recovered
// from blob writes after a silent turn.
type TextEvent struct {
	Text      string
	Synthetic bool
}

// ToolCallBeginEvent mirrors the agent's tool_call_started update.
type ToolCallBeginEvent struct {
	CallID string
	Name   string
	Args   string
}

// ToolCallDeltaEvent streams incremental tool-call argument text.
type ToolCallDeltaEvent struct {
	CallID    string
	ArgsDelta string
}

// ToolCallEndEvent mirrors the agent's tool_call_completed update.
type ToolCallEndEvent struct {
	CallID string
	Name   string
	Args   string
}

// ExecEvent is a server-initiated tool execution request, already mapped
// to its OpenAI tool name and arguments. The session holds the original
// exec request in its pending map under ToolCallID.
type ExecEvent struct {
	ToolCallID string
	Name       string
	Arguments  string
}

// CheckpointEvent marks a conversation checkpoint update. It never
// terminates the turn.
type CheckpointEvent struct{}

// AbortEvent surfaces an exec_server_control_message. The stream continues
// unless a turn end follows.
type AbortEvent struct {
	ExecID uint32
}

// TurnEndEvent closes the turn. Forced marks synthetic turn ends produced
// by the heartbeat starvation policy.
type TurnEndEvent struct {
	Forced bool
}

func (TextEvent) isEvent()          {}
func (ToolCallBeginEvent) isEvent() {}
func (ToolCallDeltaEvent) isEvent() {}
func (ToolCallEndEvent) isEvent()   {}
func (ExecEvent) isEvent()          {}
func (CheckpointEvent) isEvent()    {}
func (AbortEvent) isEvent()         {}
func (TurnEndEvent) isEvent()       {}
