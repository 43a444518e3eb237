package skilled

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecomposition(t *testing.T) {
	t.Run("list shape", func(t *testing.T) {
		result, ok := ParseDecomposition(map[string]any{
			"tasks": []any{
				map[string]any{
					"capability":    "email-drafting",
					"description":   "Draft the reply",
					"authorityTier": "DoItAndShowMe",
				},
				map[string]any{
					"capability":     "calendar",
					"description":    "Book a slot",
					"authority_tier": "JustDoIt",
				},
			},
			"summary":    "Handle the request",
			"confidence": 0.85,
		})
		require.True(t, ok)
		assert.Equal(t, "Handle the request", result.Summary)
		assert.InDelta(t, 0.85, result.Confidence, 1e-9)
		require.Len(t, result.Tasks, 2)
		assert.Equal(t, TaskSpec{
			Capability:    "email-drafting",
			Description:   "Draft the reply",
			AuthorityTier: "DoItAndShowMe",
		}, result.Tasks[0])
		assert.Equal(t, "JustDoIt", result.Tasks[1].AuthorityTier, "snake_case tier key is accepted")
	})

	t.Run("flat legacy shape", func(t *testing.T) {
		result, ok := ParseDecomposition(map[string]any{
			"capability":    "email-drafting",
			"authorityTier": "JustDoIt",
			"summary":       "Draft the reply",
			"confidence":    0.7,
		})
		require.True(t, ok)
		require.Len(t, result.Tasks, 1)
		assert.Equal(t, "email-drafting", result.Tasks[0].Capability)
		assert.Equal(t, "Draft the reply", result.Tasks[0].Description,
			"flat shape reuses the summary as the task description")
	})

	t.Run("empty tasks list still parses", func(t *testing.T) {
		result, ok := ParseDecomposition(map[string]any{
			"tasks":      []any{},
			"summary":    "nothing to do",
			"confidence": 0.9,
		})
		require.True(t, ok)
		assert.Empty(t, result.Tasks)
	})

	t.Run("non-map task entries are skipped", func(t *testing.T) {
		result, ok := ParseDecomposition(map[string]any{
			"tasks": []any{
				"free text",
				map[string]any{"capability": "email-drafting", "description": "d"},
				42,
			},
			"confidence": 0.9,
		})
		require.True(t, ok)
		require.Len(t, result.Tasks, 1)
	})

	t.Run("integer confidence", func(t *testing.T) {
		result, ok := ParseDecomposition(map[string]any{
			"capability": "x",
			"confidence": 1,
		})
		require.True(t, ok)
		assert.InDelta(t, 1.0, result.Confidence, 1e-9)
	})

	t.Run("not a decomposition", func(t *testing.T) {
		for _, v := range []any{
			nil,
			"plain text",
			map[string]any{"summary": "no capability, no tasks"},
			[]any{"a", "b"},
		} {
			_, ok := ParseDecomposition(v)
			assert.False(t, ok, "%v must not parse", v)
		}
	})
}

func TestParseTierOr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"JustDoIt", "JustDoIt"},
		{"doitandshowme", "DoItAndShowMe"},
		{"ASKMEFIRST", "AskMeFirst"},
		{"", "JustDoIt"},
		{"bogus", "JustDoIt"},
	}
	for _, tc := range tests {
		got := parseTierOr(tc.in, 0)
		assert.Equal(t, tc.want, got.String(), "input %q", tc.in)
	}
}
