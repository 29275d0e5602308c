package bridge

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/cursor-proxy/CursorProxyAPI/internal/agent"
	"github.com/cursor-proxy/CursorProxyAPI/internal/wire"
)

func TestMakeToolCallIDRoundTrip(t *testing.T) {
	req := &agent.ExecRequest{ID: 4, ExecID: "exec-1", Type: agent.ExecShell}
	id := MakeToolCallID("ab12cd34ef56", req)
	require.Equal(t, "sess_ab12cd34ef56__call_exec1", id)

	sid, ok := ParseSessionID(id)
	require.True(t, ok)
	require.Equal(t, "ab12cd34ef56", sid)
}

func TestMakeToolCallIDBasePrecedence(t *testing.T) {
	mcp := &agent.ExecRequest{ID: 9, ExecID: "exec-2", Type: agent.ExecMcp,
		Mcp: &agent.McpArgs{ToolCallID: "call-77"}}
	require.Equal(t, "sess_s__call_call77", MakeToolCallID("s", mcp))

	numeric := &agent.ExecRequest{ID: 12, Type: agent.ExecLs}
	require.Equal(t, "sess_s__call_12", MakeToolCallID("s", numeric))
}

func TestMakeToolCallIDSanitization(t *testing.T) {
	long := &agent.ExecRequest{ExecID: strings.Repeat("a!", 40), Type: agent.ExecRead}
	id := MakeToolCallID("s", long)
	base := strings.TrimPrefix(id, "sess_s__call_")
	require.Len(t, base, 32)
	require.Equal(t, strings.Repeat("a", 32), base)

	// A base with no usable characters falls back to a random one.
	empty := &agent.ExecRequest{ExecID: "!!!", Type: agent.ExecRead}
	id = MakeToolCallID("s", empty)
	base = strings.TrimPrefix(id, "sess_s__call_")
	require.NotEmpty(t, base)
	require.LessOrEqual(t, len(base), 32)
}

func TestParseSessionIDRejectsForeignIDs(t *testing.T) {
	for _, id := range []string{"", "call_123", "sess_", "sess___call_x", "sess_abc"} {
		_, ok := ParseSessionID(id)
		require.False(t, ok, "id %q", id)
	}
}

func TestMapExecShell(t *testing.T) {
	name, args := MapExec(&agent.ExecRequest{Type: agent.ExecShell,
		Shell: &agent.ShellArgs{Command: "go list ./...", Description: "list packages", Workdir: "/repo"}})
	require.Equal(t, "bash", name)
	require.Equal(t, "go list ./...", gjson.Get(args, "command").String())
	require.Equal(t, "list packages", gjson.Get(args, "description").String())
	require.Equal(t, "/repo", gjson.Get(args, "workdir").String())

	// Optional fields stay out of the arguments object when empty.
	_, args = MapExec(&agent.ExecRequest{Type: agent.ExecShell, Shell: &agent.ShellArgs{Command: "pwd"}})
	require.False(t, gjson.Get(args, "description").Exists())
	require.False(t, gjson.Get(args, "workdir").Exists())
}

func TestMapExecGrepGlobSwitch(t *testing.T) {
	name, args := MapExec(&agent.ExecRequest{Type: agent.ExecGrep,
		Grep: &agent.GrepArgs{Pattern: "func main", Path: "/repo"}})
	require.Equal(t, "grep", name)
	require.Equal(t, "func main", gjson.Get(args, "pattern").String())

	name, args = MapExec(&agent.ExecRequest{Type: agent.ExecGrep,
		Grep: &agent.GrepArgs{Pattern: "ignored", Path: "/repo", Glob: "**/*.go"}})
	require.Equal(t, "glob", name)
	require.Equal(t, "**/*.go", gjson.Get(args, "pattern").String())
	require.Equal(t, "/repo", gjson.Get(args, "path").String())
}

func TestMapExecFileTools(t *testing.T) {
	name, args := MapExec(&agent.ExecRequest{Type: agent.ExecRead, Read: &agent.ReadArgs{Path: "/f.go"}})
	require.Equal(t, "read", name)
	require.Equal(t, "/f.go", gjson.Get(args, "filePath").String())

	name, args = MapExec(&agent.ExecRequest{Type: agent.ExecLs, Ls: &agent.LsArgs{Path: "/dir"}})
	require.Equal(t, "list", name)
	require.Equal(t, "/dir", gjson.Get(args, "path").String())

	name, args = MapExec(&agent.ExecRequest{Type: agent.ExecWrite,
		Write: &agent.WriteArgs{Path: "/f.go", Content: "package main\n"}})
	require.Equal(t, "write", name)
	require.Equal(t, "package main\n", gjson.Get(args, "content").String())
}

func TestMapExecMcpPassthrough(t *testing.T) {
	name, args := MapExec(&agent.ExecRequest{Type: agent.ExecMcp,
		Mcp: &agent.McpArgs{ToolName: "jira-search", ArgsJSON: `{"query":"open bugs"}`}})
	require.Equal(t, "jira-search", name)
	require.Equal(t, `{"query":"open bugs"}`, args)

	// Invalid upstream arguments degrade to an empty object.
	_, args = MapExec(&agent.ExecRequest{Type: agent.ExecMcp,
		Mcp: &agent.McpArgs{ToolName: "x", ArgsJSON: "not json"}})
	require.Equal(t, `{}`, args)
}

// decodeExecResult unwraps AgentClientMessage{exec} and returns its fields.
func decodeExecResult(t *testing.T, msg []byte) []wire.Field {
	t.Helper()
	outer, err := wire.ParseFields(msg)
	require.NoError(t, err)
	require.Equal(t, 2, outer[0].Num)
	fields, err := wire.ParseFields(outer[0].Bytes)
	require.NoError(t, err)
	return fields
}

func TestBuildResultMessagesShellJSON(t *testing.T) {
	req := &agent.ExecRequest{ID: 3, ExecID: "e", Type: agent.ExecShell,
		Shell: &agent.ShellArgs{Command: "false", Workdir: "/w"}}
	content := `{"stdout":"","stderr":"oops","exitCode":1,"executionTimeMs":40}`
	result, streamClose, err := BuildResultMessages(req, content)
	require.NoError(t, err)

	fields := decodeExecResult(t, result)
	shell, err := wire.ParseFields(wire.FindField(fields, 2).Bytes)
	require.NoError(t, err)
	success, err := wire.ParseFields(wire.FindField(shell, 1).Bytes)
	require.NoError(t, err)
	require.Equal(t, "false", string(wire.FindField(success, 1).Bytes))
	require.Equal(t, "/w", string(wire.FindField(success, 2).Bytes))
	require.Equal(t, uint64(1), wire.FindField(success, 3).Varint)
	require.Equal(t, "oops", string(wire.FindField(success, 4).Bytes))
	require.Equal(t, uint64(40), wire.FindField(success, 7).Varint)

	require.Equal(t, agent.EncodeStreamClose(3), streamClose)
}

func TestBuildResultMessagesShellPlainText(t *testing.T) {
	req := &agent.ExecRequest{ID: 1, Type: agent.ExecShell, Shell: &agent.ShellArgs{Command: "echo hi"}}
	result, _, err := BuildResultMessages(req, "hi\n")
	require.NoError(t, err)

	fields := decodeExecResult(t, result)
	shell, err := wire.ParseFields(wire.FindField(fields, 2).Bytes)
	require.NoError(t, err)
	success, err := wire.ParseFields(wire.FindField(shell, 1).Bytes)
	require.NoError(t, err)
	require.Equal(t, "hi\n", string(wire.FindField(success, 5).Bytes))
}

func TestBuildResultMessagesRead(t *testing.T) {
	req := &agent.ExecRequest{ID: 2, Type: agent.ExecRead, Read: &agent.ReadArgs{Path: "/f"}}
	content := "line one\nline two\nline three"
	result, _, err := BuildResultMessages(req, content)
	require.NoError(t, err)

	fields := decodeExecResult(t, result)
	read, err := wire.ParseFields(wire.FindField(fields, 6).Bytes)
	require.NoError(t, err)
	success, err := wire.ParseFields(wire.FindField(read, 1).Bytes)
	require.NoError(t, err)
	require.Equal(t, content, string(wire.FindField(success, 1).Bytes))
	require.Equal(t, uint64(3), wire.FindField(success, 2).Varint)
	require.Equal(t, uint64(len(content)), wire.FindField(success, 3).Varint)
}

func TestBuildResultMessagesGrep(t *testing.T) {
	req := &agent.ExecRequest{ID: 2, Type: agent.ExecGrep, Grep: &agent.GrepArgs{Pattern: "x"}}
	result, _, err := BuildResultMessages(req, "match one\n\nmatch two\n")
	require.NoError(t, err)

	fields := decodeExecResult(t, result)
	grep, err := wire.ParseFields(wire.FindField(fields, 7).Bytes)
	require.NoError(t, err)
	success, err := wire.ParseFields(wire.FindField(grep, 1).Bytes)
	require.NoError(t, err)
	require.Len(t, success, 2)
	require.Equal(t, "match one", string(success[0].Bytes))
	require.Equal(t, "match two", string(success[1].Bytes))
}

func TestBuildResultMessagesWriteError(t *testing.T) {
	req := &agent.ExecRequest{ID: 5, Type: agent.ExecWrite, Write: &agent.WriteArgs{Path: "/f"}}
	result, _, err := BuildResultMessages(req, `{"error":"permission denied"}`)
	require.NoError(t, err)

	fields := decodeExecResult(t, result)
	write, err := wire.ParseFields(wire.FindField(fields, 8).Bytes)
	require.NoError(t, err)
	require.Nil(t, wire.FindField(write, 1))
	failure, err := wire.ParseFields(wire.FindField(write, 2).Bytes)
	require.NoError(t, err)
	require.Equal(t, "permission denied", string(wire.FindField(failure, 1).Bytes))
}

func TestBuildResultMessagesMcpError(t *testing.T) {
	req := &agent.ExecRequest{ID: 6, Type: agent.ExecMcp, Mcp: &agent.McpArgs{ToolName: "t"}}
	result, _, err := BuildResultMessages(req, `{"error":"tool crashed"}`)
	require.NoError(t, err)

	fields := decodeExecResult(t, result)
	mcp, err := wire.ParseFields(wire.FindField(fields, 11).Bytes)
	require.NoError(t, err)
	require.Nil(t, wire.FindField(mcp, 1))
	require.NotNil(t, wire.FindField(mcp, 2))
}

func TestBuildResultMessagesUnknownType(t *testing.T) {
	_, _, err := BuildResultMessages(&agent.ExecRequest{Type: "teleport"}, "x")
	require.Error(t, err)
}

type fakeSender struct {
	id      string
	gotID   string
	gotBody string
}

func (f *fakeSender) ID() string { return f.id }

func (f *fakeSender) SendToolResult(_ context.Context, toolCallID, content string) error {
	f.gotID = toolCallID
	f.gotBody = content
	return nil
}

func TestRegistryDeliver(t *testing.T) {
	r := NewRegistry()
	sender := &fakeSender{id: "abc"}
	r.Register(sender)

	require.True(t, r.Deliver(context.Background(), "sess_abc__call_1", "done"))
	require.Equal(t, "sess_abc__call_1", sender.gotID)
	require.Equal(t, "done", sender.gotBody)

	require.False(t, r.Deliver(context.Background(), "sess_other__call_1", "done"))
	require.False(t, r.Deliver(context.Background(), "garbage", "done"))

	r.Unregister("abc")
	require.False(t, r.Deliver(context.Background(), "sess_abc__call_1", "done"))
}
