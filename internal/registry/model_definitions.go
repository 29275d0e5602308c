package registry

import "strings"

// ModelLimits holds the context-window and output caps for one model
// family.
type ModelLimits struct {
	ContextWindow int
	MaxOutput     int
}

// Default limits for models without a static entry.
const (
	DefaultContextWindow = 128000
	DefaultMaxOutput     = 16384
)

// modelLimits maps canonical Cursor model families to their limits.
// Variant suffixes collapse onto these entries via CanonicalModelID.
var modelLimits = map[string]ModelLimits{
	"sonnet-4.5":   {ContextWindow: 200000, MaxOutput: 64000},
	"sonnet-4":     {ContextWindow: 200000, MaxOutput: 64000},
	"opus-4.1":     {ContextWindow: 200000, MaxOutput: 32000},
	"haiku-4.5":    {ContextWindow: 200000, MaxOutput: 64000},
	"gpt-5.2":      {ContextWindow: 272000, MaxOutput: 128000},
	"gpt-5.1":      {ContextWindow: 272000, MaxOutput: 128000},
	"gpt-5":        {ContextWindow: 272000, MaxOutput: 128000},
	"gemini-3-pro": {ContextWindow: 1048576, MaxOutput: 65535},
	"grok-4":       {ContextWindow: 256000, MaxOutput: 64000},
	"deepseek-v3":  {ContextWindow: 128000, MaxOutput: 16384},
	"kimi-k2":      {ContextWindow: 128000, MaxOutput: 16384},
	"auto":         {ContextWindow: 128000, MaxOutput: 16384},
}

// variantSuffixes are reasoning/effort decorations on a base model name.
// They keep the base family's limits.
var variantSuffixes = []string{"-thinking", "-high", "-low", "-fast", "-max"}

// CanonicalModelID collapses a model name variant to the base family used
// for limits lookup: -thinking / -high / -codex* style suffixes are
// stripped until a known family or a stable name remains.
func CanonicalModelID(modelID string) string {
	id := strings.ToLower(strings.TrimSpace(modelID))
	for {
		if _, ok := modelLimits[id]; ok {
			return id
		}
		trimmed := id
		for _, suffix := range variantSuffixes {
			if strings.HasSuffix(trimmed, suffix) {
				trimmed = strings.TrimSuffix(trimmed, suffix)
				break
			}
		}
		if idx := strings.Index(trimmed, "-codex"); idx > 0 {
			trimmed = trimmed[:idx]
		}
		if trimmed == id {
			return id
		}
		id = trimmed
	}
}

// LimitsFor returns the limits of the model's canonical family, falling
// back to the defaults for unmapped models.
func LimitsFor(modelID string) ModelLimits {
	if limits, ok := modelLimits[CanonicalModelID(modelID)]; ok {
		return limits
	}
	return ModelLimits{ContextWindow: DefaultContextWindow, MaxOutput: DefaultMaxOutput}
}

// defaultModelIDs seeds the registry before the remote model list is
// known.
var defaultModelIDs = []string{
	"auto",
	"sonnet-4.5",
	"sonnet-4.5-thinking",
	"opus-4.1",
	"haiku-4.5",
	"gpt-5.2",
	"gpt-5.2-high",
	"gemini-3-pro",
	"grok-4",
}
