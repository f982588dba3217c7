// Package localexec runs job commands on the local host, restricted to an allowlist.
package localexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/akuafrica/jobrunr/internal/models"
)

// ErrNotAllowed is returned when a job's command is not in the allowlist.
var ErrNotAllowed = errors.New("command not allowed")

// DefaultAllowlist is used when no allowlist is configured. A command mapped
// to an empty list accepts any arguments; otherwise the first argument must
// be one of the listed subcommands.
var DefaultAllowlist = map[string][]string{
	"echo": nil,
	"go":   {"test", "build", "vet"},
	"git":  {"fetch", "status"},
}

// LocalExec runs job commands as local processes.
type LocalExec struct {
	workDir string
	allow   map[string][]string
}

// New creates a LocalExec connector. A nil allowlist selects DefaultAllowlist.
func New(workDir string, allow map[string][]string) *LocalExec {
	if allow == nil {
		allow = DefaultAllowlist
	}
	return &LocalExec{workDir: workDir, allow: allow}
}

// Name returns the connector identifier.
func (l *LocalExec) Name() string {
	return "localexec"
}

// IsAllowed checks if a command is in the allowlist.
func (l *LocalExec) IsAllowed(cmd string, args []string) bool {
	subcmds, ok := l.allow[cmd]
	if !ok {
		return false
	}
	if len(subcmds) == 0 {
		return true
	}
	if len(args) == 0 {
		return false
	}
	for _, allowed := range subcmds {
		if args[0] == allowed {
			return true
		}
	}
	return false
}

// Execute runs the job's command in the work directory, subject to the allowlist.
func (l *LocalExec) Execute(ctx context.Context, job *models.Job) (*models.JobOutput, error) {
	if !l.IsAllowed(job.Command, job.Args) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotAllowed, job.Command, strings.Join(job.Args, " "))
	}

	execCmd := exec.CommandContext(ctx, job.Command, job.Args...)
	if l.workDir != "" {
		execCmd.Dir = l.workDir
	}

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	exitCode := 0
	if err := execCmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("exec error: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &models.JobOutput{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}
