package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cortexhq/cortex/internal/common/logger"
	"github.com/cortexhq/cortex/internal/skill"
)

// ExecutorType is the skill executor type handled by this package.
const ExecutorType = "llm"

// Executor runs "llm" skills: it renders a prompt from the skill definition
// and the triggering message, completes it through a Client, and extracts
// the first JSON object from the output. Unparseable output yields nil
// rather than an error so a chatty model does not fail the pipeline.
type Executor struct {
	client Client
	logger *logger.Logger
}

// NewExecutor creates an LLM skill executor.
func NewExecutor(client Client, log *logger.Logger) *Executor {
	return &Executor{
		client: client,
		logger: log.WithFields(zap.String("component", "llm-executor")),
	}
}

// Type returns the executor type name.
func (e *Executor) Type() string { return ExecutorType }

// Execute completes the skill prompt and returns the decoded JSON object.
func (e *Executor) Execute(ctx context.Context, def skill.Definition, params map[string]any) (any, error) {
	prompt := buildPrompt(def, params)

	output, err := e.client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm skill %s: %w", def.ID, err)
	}

	parsed := ExtractJSON(output)
	if parsed == nil {
		e.logger.Warn("llm output contained no JSON object",
			zap.String("skill_id", def.ID),
			zap.Int("output_bytes", len(output)))
		return nil, nil
	}
	return parsed, nil
}

// buildPrompt assembles the instruction body, the capabilities the fleet
// offers, and the message content into one prompt.
func buildPrompt(def skill.Definition, params map[string]any) string {
	base := def.Content
	if base == "" {
		base = def.Description
	}

	var sb strings.Builder
	sb.WriteString(base)

	if caps, ok := params["availableCapabilities"]; ok {
		sb.WriteString("\n\nAvailable capabilities:\n")
		switch v := caps.(type) {
		case []string:
			for _, name := range v {
				sb.WriteString("- ")
				sb.WriteString(name)
				sb.WriteByte('\n')
			}
		case string:
			sb.WriteString(v)
			sb.WriteByte('\n')
		default:
			fmt.Fprintf(&sb, "%v\n", v)
		}
	}

	if content, ok := params["messageContent"].(string); ok && content != "" {
		sb.WriteString("\nMessage:\n")
		sb.WriteString(content)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ExtractJSON returns the first JSON object embedded in the text as a map,
// or nil when nothing parses. Markdown code fences are removed first.
func ExtractJSON(text string) map[string]any {
	cleaned := stripCodeFences(text)

	for start := strings.IndexByte(cleaned, '{'); start >= 0; {
		dec := json.NewDecoder(strings.NewReader(cleaned[start:]))
		var out map[string]any
		if err := dec.Decode(&out); err == nil {
			return out
		}
		next := strings.IndexByte(cleaned[start+1:], '{')
		if next < 0 {
			return nil
		}
		start += 1 + next
	}
	return nil
}

// stripCodeFences drops markdown fence lines so a ```json block parses as
// plain JSON.
func stripCodeFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
