package localexec

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/akuafrica/jobrunr/internal/models"
)

func TestIsAllowed(t *testing.T) {
	exec := New("", nil)

	tests := []struct {
		cmd     string
		args    []string
		allowed bool
	}{
		{"go", []string{"test", "./..."}, true},
		{"git", []string{"status"}, true},
		{"git", []string{"push"}, false},    // subcommand not listed
		{"rm", []string{"-rf", "/"}, false}, // command not listed
		{"go", []string{}, false},           // no subcommand
		{"echo", nil, true},                 // any arguments
		{"echo", []string{"a", "b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.cmd+" "+strings.Join(tt.args, " "), func(t *testing.T) {
			got := exec.IsAllowed(tt.cmd, tt.args)
			if got != tt.allowed {
				t.Errorf("IsAllowed(%s, %v) = %v, want %v", tt.cmd, tt.args, got, tt.allowed)
			}
		})
	}
}

func TestIsAllowed_CustomAllowlist(t *testing.T) {
	exec := New("", map[string][]string{"make": {"build"}})
	if exec.IsAllowed("echo", []string{"hi"}) {
		t.Error("Expected custom allowlist to replace the default")
	}
	if !exec.IsAllowed("make", []string{"build"}) {
		t.Error("Expected make build to be allowed")
	}
}

func TestExecute_Allowed(t *testing.T) {
	exec := New(t.TempDir(), nil)

	result, err := exec.Execute(context.Background(), &models.Job{Name: "greet", Command: "echo", Args: []string{"hello"}})
	if err != nil {
		t.Skipf("echo not available: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", result.ExitCode)
	}
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Errorf("Expected stdout 'hello', got %q", result.Stdout)
	}
}

func TestExecute_NotAllowed(t *testing.T) {
	exec := New("", nil)

	_, err := exec.Execute(context.Background(), &models.Job{Name: "wipe", Command: "rm", Args: []string{"-rf", "/"}})
	if !errors.Is(err, ErrNotAllowed) {
		t.Errorf("Expected ErrNotAllowed, got %v", err)
	}
}

func TestExecute_NonZeroExit(t *testing.T) {
	exec := New(t.TempDir(), map[string][]string{"false": nil})

	result, err := exec.Execute(context.Background(), &models.Job{Name: "fail", Command: "false"})
	if err != nil {
		t.Skipf("false not available: %v", err)
	}
	if result.ExitCode == 0 {
		t.Error("Expected non-zero exit code to be reported in the output")
	}
}

func TestName(t *testing.T) {
	if name := New("", nil).Name(); name != "localexec" {
		t.Errorf("Expected name 'localexec', got %s", name)
	}
}
