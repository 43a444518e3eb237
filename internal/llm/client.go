// Package llm provides the language-model client contract used by skill
// executors, with two implementations: a CLI client that shells out to a
// local model command, and an Anthropic Messages API client.
package llm

import "context"

// Client completes a prompt and returns the raw model output.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
