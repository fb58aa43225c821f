// Package tools wraps the external programs the harness shells out to: 7z for
// package extraction and scp (optionally through sshpass) for copying files
// off the dashboard host. Failures are reported as a false result plus a warn
// log, never as errors.
package tools

import (
	"context"
	"os/exec"
)

// Runner executes an external command in dir and returns its combined
// output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// LookPath implements Runner.
func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
