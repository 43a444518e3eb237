package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cortexhq/cortex/internal/common/logger"
)

const (
	defaultCLITimeout = 60 * time.Second
	maxOutputSize     = 1024 * 1024 // 1MB max output
)

// CLIClient completes prompts by running a local command. The prompt is
// piped to stdin and stdout is the completion. The command is executed
// directly, not through a shell.
type CLIClient struct {
	command []string
	timeout time.Duration
	logger  *logger.Logger
}

// NewCLIClient creates a client for the given command and argument list.
func NewCLIClient(command []string, timeout time.Duration, log *logger.Logger) (*CLIClient, error) {
	if len(command) == 0 {
		return nil, errors.New("llm: command is required")
	}
	if timeout <= 0 {
		timeout = defaultCLITimeout
	}
	return &CLIClient{
		command: append([]string(nil), command...),
		timeout: timeout,
		logger:  log.WithFields(zap.String("component", "llm-cli")),
	}, nil
}

// Complete runs the command with the prompt on stdin and returns stdout.
func (c *CLIClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.command[0], c.command[1:]...)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("llm command timed out after %v", c.timeout)
		}
		return "", fmt.Errorf("llm command failed: %w (stderr: %s)", err, stderr.String())
	}
	if stdout.Len() > maxOutputSize {
		return "", fmt.Errorf("llm output exceeds maximum size of %d bytes", maxOutputSize)
	}

	c.logger.Debug("llm command completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("output_bytes", stdout.Len()))
	return stdout.String(), nil
}
