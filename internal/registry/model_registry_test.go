package registry

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalModelID(t *testing.T) {
	cases := map[string]string{
		"sonnet-4.5":           "sonnet-4.5",
		"Sonnet-4.5":           "sonnet-4.5",
		" sonnet-4.5-thinking": "sonnet-4.5",
		"gpt-5.2-high":         "gpt-5.2",
		"gpt-5.2-codex":        "gpt-5.2",
		"gpt-5.2-codex-high":   "gpt-5.2",
		"grok-4-fast":          "grok-4",
		"opus-4.1-thinking":    "opus-4.1",
		"totally-new-model":    "totally-new-model",
	}
	for input, want := range cases {
		require.Equal(t, want, CanonicalModelID(input), "input %q", input)
	}
}

func TestLimitsFor(t *testing.T) {
	limits := LimitsFor("sonnet-4.5-thinking")
	require.Equal(t, 200000, limits.ContextWindow)
	require.Equal(t, 64000, limits.MaxOutput)

	limits = LimitsFor("gemini-3-pro")
	require.Equal(t, 1048576, limits.ContextWindow)

	limits = LimitsFor("unknown-model")
	require.Equal(t, DefaultContextWindow, limits.ContextWindow)
	require.Equal(t, DefaultMaxOutput, limits.MaxOutput)
}

func TestRegistrySeed(t *testing.T) {
	r := NewModelRegistry()
	models := r.GetAvailableModels()
	require.Len(t, models, len(defaultModelIDs))
	require.True(t, sort.SliceIsSorted(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	}))
	for _, m := range models {
		require.Equal(t, "model", m.Object)
		require.Equal(t, "cursor", m.OwnedBy)
		require.Positive(t, m.ContextLength)
	}
}

func TestResolveUpstreamPassThrough(t *testing.T) {
	r := NewModelRegistry()
	require.Equal(t, "sonnet-4.5", r.ResolveUpstream("Sonnet-4.5"))
	require.Equal(t, "brand-new", r.ResolveUpstream("brand-new"))
	require.Equal(t, "gpt-5.2", r.ResolveUpstream(" gpt-5.2 "))
}

func TestSetDefault(t *testing.T) {
	r := NewModelRegistry()
	require.Equal(t, "auto", r.ResolveUpstream("auto"))

	r.SetDefault("gpt-5.2")
	require.Equal(t, "gpt-5.2", r.ResolveUpstream("auto"))
	require.Equal(t, "gpt-5.2", r.ResolveUpstream("AUTO"))

	// An unseen default joins the advertised list.
	r.SetDefault("composer-2")
	require.Equal(t, "composer-2", r.ResolveUpstream("auto"))
	var ids []string
	for _, m := range r.GetAvailableModels() {
		ids = append(ids, m.ID)
	}
	require.Contains(t, ids, "composer-2")

	// An empty default changes nothing.
	r.SetDefault("")
	require.Equal(t, "composer-2", r.ResolveUpstream("auto"))
}

func TestMergeRemote(t *testing.T) {
	r := NewModelRegistry()
	r.MergeRemote([]RemoteModel{
		{ModelID: "sonnet-5", Aliases: []string{"claude-sonnet-5", "sonnet-5"}},
		{ModelID: ""},
	})

	require.Equal(t, "sonnet-5", r.ResolveUpstream("claude-sonnet-5"))
	require.Equal(t, "sonnet-5", r.ResolveUpstream("Claude-Sonnet-5"))

	var ids []string
	for _, m := range r.GetAvailableModels() {
		ids = append(ids, m.ID)
	}
	require.Contains(t, ids, "sonnet-5")
	require.NotContains(t, ids, "claude-sonnet-5")

	// An empty merge leaves the registry untouched.
	before := len(r.GetAvailableModels())
	r.MergeRemote(nil)
	require.Len(t, r.GetAvailableModels(), before)
}
