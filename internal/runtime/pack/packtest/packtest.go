// Package packtest provides an in-memory pack runtime for tests.
package packtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/drblury/packflow/internal/runtime/pack"
)

// OpFunc handles one fake pack operation.
type OpFunc func(ctx context.Context, call pack.Call) ([]byte, error)

// FakeRuntime is a pack.Runtime backed by registered functions, keyed by
// provider and operation. It records every call for assertions.
type FakeRuntime struct {
	mu    sync.Mutex
	ops   map[string]OpFunc
	calls []pack.Call
}

// NewFakeRuntime returns an empty fake runtime.
func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{ops: make(map[string]OpFunc)}
}

// Handle registers fn for the given provider and operation.
func (f *FakeRuntime) Handle(provider, op string, fn OpFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops[provider+"/"+op] = fn
}

// Invoke implements pack.Runtime.
func (f *FakeRuntime) Invoke(ctx context.Context, call pack.Call) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	fn, ok := f.ops[call.Provider+"/"+call.Op]
	f.mu.Unlock()
	if !ok {
		return nil, &pack.OpError{
			Code:    "op-not-found",
			Message: fmt.Sprintf("no handler for %s/%s", call.Provider, call.Op),
		}
	}
	return fn(ctx, call)
}

// Calls returns a copy of all recorded calls.
func (f *FakeRuntime) Calls() []pack.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pack.Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns recorded calls for one provider and operation.
func (f *FakeRuntime) CallsTo(provider, op string) []pack.Call {
	var out []pack.Call
	for _, call := range f.Calls() {
		if call.Provider == provider && call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

// Reset clears recorded calls but keeps registered operations.
func (f *FakeRuntime) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
