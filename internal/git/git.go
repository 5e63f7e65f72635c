// Package git wraps the git binary behind a narrow interface. Every
// operation shells out; git's own locking and atomic ref updates are what
// the sync protocol relies on. The Runner interface keeps the orchestrator
// testable without a real repository.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes one git invocation in a directory. Run returns trimmed
// stdout for ref and status plumbing; RunRaw returns stdout byte-for-byte
// for blob content, where trailing newlines are data.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
	RunRaw(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// CLI is the production Runner, shelling out to the git binary.
type CLI struct {
	// GitPath overrides the binary name; empty means "git" from PATH.
	GitPath string
}

// Run executes git with -C dir and returns trimmed stdout. Failures carry
// git's combined output in the error message.
func (c *CLI) Run(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := c.RunRaw(ctx, dir, args...)
	return strings.TrimSpace(string(out)), err
}

// RunRaw executes git with -C dir and returns stdout untouched.
func (c *CLI) RunRaw(ctx context.Context, dir string, args ...string) ([]byte, error) {
	bin := c.GitPath
	if bin == "" {
		bin = "git"
	}
	full := append([]string{"-C", dir}, args...)
	cmd := exec.CommandContext(ctx, bin, full...) // #nosec G204 - args are built internally
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &CommandError{
			Args:   args,
			Err:    err,
			Output: strings.TrimSpace(stderr.String() + stdout.String()),
		}
	}
	return []byte(stdout.String()), nil
}

// CommandError is a failed git invocation with its output attached.
type CommandError struct {
	Args   []string
	Err    error
	Output string
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("git %s: %v\n%s", strings.Join(e.Args, " "), e.Err, e.Output)
}

func (e *CommandError) Unwrap() error { return e.Err }
