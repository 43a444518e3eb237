package skilled

import (
	"github.com/cortexhq/cortex/internal/message"
	"github.com/cortexhq/cortex/internal/skill"
)

// TaskSpec is one delegable unit of a decomposed goal.
type TaskSpec struct {
	Capability    string `json:"capability"`
	Description   string `json:"description"`
	AuthorityTier string `json:"authority_tier"`
}

// DecompositionResult is the structured outcome of a planning pipeline: the
// tasks a goal breaks into, a one-line summary, and the planner's confidence
// in the split.
type DecompositionResult struct {
	Tasks      []TaskSpec `json:"tasks"`
	Summary    string     `json:"summary"`
	Confidence float64    `json:"confidence"`
}

// ParseDecomposition interprets a pipeline output as a decomposition. Two
// shapes are accepted: the tasks shape
//
//	{"tasks": [{"capability", "description", "authorityTier"}...],
//	 "summary", "confidence"}
//
// and the legacy flat shape {"capability", "authorityTier", "summary",
// "confidence"}, which reads as a single-task decomposition. Anything else
// reports ok=false.
func ParseDecomposition(v any) (*DecompositionResult, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}

	if rawTasks, ok := m["tasks"]; ok {
		list, ok := rawTasks.([]any)
		if !ok {
			return nil, false
		}
		out := &DecompositionResult{
			Tasks:      make([]TaskSpec, 0, len(list)),
			Summary:    stringAt(m, "summary"),
			Confidence: floatAt(m, "confidence"),
		}
		for _, raw := range list {
			tm, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			out.Tasks = append(out.Tasks, TaskSpec{
				Capability:    stringAt(tm, "capability"),
				Description:   stringAt(tm, "description"),
				AuthorityTier: stringAt(tm, "authorityTier", "authority_tier"),
			})
		}
		return out, true
	}

	capability := stringAt(m, "capability")
	if capability == "" {
		return nil, false
	}
	summary := stringAt(m, "summary")
	return &DecompositionResult{
		Tasks: []TaskSpec{{
			Capability:    capability,
			Description:   summary,
			AuthorityTier: stringAt(m, "authorityTier", "authority_tier"),
		}},
		Summary:    summary,
		Confidence: floatAt(m, "confidence"),
	}, true
}

// extractDecomposition scans the pipeline outputs in execution order and
// returns the first that parses. Non-structured outputs are skipped.
func extractDecomposition(run *skill.RunContext) *DecompositionResult {
	for _, result := range run.ResultsInOrder() {
		if decomp, ok := ParseDecomposition(result.Output); ok {
			return decomp
		}
	}
	return nil
}

// parseTierOr resolves an authority tier name, falling back when the name
// is empty or unknown.
func parseTierOr(s string, fallback message.Tier) message.Tier {
	tier, err := message.ParseTier(s)
	if err != nil {
		return fallback
	}
	return tier
}

func stringAt(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok {
			return s
		}
	}
	return ""
}

func floatAt(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		switch v := m[key].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		}
	}
	return 0
}
