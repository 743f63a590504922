package sched

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bartgol/createtest/internal/config"
	"github.com/bartgol/createtest/internal/display"
	"github.com/bartgol/createtest/internal/runner"
)

// stubRunner records every command and answers through an optional callback,
// so scheduler tests run without the real helper executables.
type stubRunner struct {
	mu    sync.Mutex
	calls []stubCall
	fn    func(command, dir string) runner.Result
}

type stubCall struct {
	command string
	dir     string
}

func (r *stubRunner) Run(command, dir string) runner.Result {
	r.mu.Lock()
	r.calls = append(r.calls, stubCall{command: command, dir: dir})
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(command, dir)
	}
	return runner.Result{}
}

func (r *stubRunner) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.command
	}
	return out
}

func (r *stubRunner) ran(substr string) bool {
	for _, c := range r.commands() {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

// newTestScheduler builds a scheduler over temp directories with fast polls.
func newTestScheduler(t *testing.T, opts Options, run runner.Runner) *Scheduler {
	t.Helper()

	if opts.TestRoot == "" {
		opts.TestRoot = t.TempDir()
	}
	if opts.TestID == "" {
		opts.TestID = "t01"
	}

	cfg := config.DefaultConfig()
	cfg.Machine.MaxTasksPerNode = 4
	cfg.Machine.ScratchRoot = t.TempDir()
	cfg.Paths.CIMERoot = t.TempDir()
	cfg.Paths.ScriptsRoot = filepath.Join(cfg.Paths.CIMERoot, "scripts")

	s, err := New(opts, cfg, run, display.NewWithOptions(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.producerPoll = time.Millisecond
	s.consumerPoll = time.Millisecond
	return s
}

// mustPanic asserts that fn panics.
func mustPanic(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", what)
		}
	}()
	fn()
}
