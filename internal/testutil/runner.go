package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/outpost-os/shieldmeta/internal/command"
)

// Call is one recorded command invocation.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// String renders the call as a shell-like line.
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Handler answers a fake command invocation.
type Handler func(call Call) ([]byte, error)

// FakeRunner is a command.Runner test double that records every call and
// answers from per-tool handlers.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeRunner struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
}

// NewFakeRunner creates a runner with no handlers. Unhandled tools fail
// with a *command.Error.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{handlers: make(map[string]Handler)}
}

// Handle registers the handler for a tool name.
func (f *FakeRunner) Handle(name string, h Handler) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[name] = h
	return f
}

// Output registers a handler that always prints out.
func (f *FakeRunner) Output(name, out string) *FakeRunner {
	return f.Handle(name, func(Call) ([]byte, error) { return []byte(out), nil })
}

// Fail registers a handler that always fails with stderr.
func (f *FakeRunner) Fail(name, stderr string) *FakeRunner {
	return f.Handle(name, func(c Call) ([]byte, error) {
		return nil, &command.Error{Name: c.Name, Args: c.Args, Stderr: stderr, Err: fmt.Errorf("exit status 1")}
	})
}

// Run implements command.Runner.
func (f *FakeRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	call := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	h, ok := f.handlers[name]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, &command.Error{Name: name, Args: args, Err: fmt.Errorf("executable file not found")}
	}
	return h(call)
}

// Calls returns a copy of the recorded calls.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the recorded calls of one tool.
func (f *FakeRunner) CallsTo(name string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
