package dbconfig

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/graystore/internal/trace"
)

// fakeHandle is a scripted Handle that records every operation.
type fakeHandle struct {
	mu sync.Mutex

	path     string
	readonly bool

	// results maps a query to the text of its single row.
	results map[string]string

	prepareErr map[string]error
	stepErr    map[string]error
	execErr    map[string]error
	cipherErr  error

	ops       []string
	cipherKey []byte
	perf      trace.PerformanceTrace
	sql       trace.SQLTrace
	hooks     []CommittedHook
}

func newFakeHandle(path string) *fakeHandle {
	return &fakeHandle{
		path:       path,
		results:    make(map[string]string),
		prepareErr: make(map[string]error),
		stepErr:    make(map[string]error),
		execErr:    make(map[string]error),
	}
}

func (h *fakeHandle) record(op string) {
	h.mu.Lock()
	h.ops = append(h.ops, op)
	h.mu.Unlock()
}

func (h *fakeHandle) Ops() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ops...)
}

func (h *fakeHandle) Path() string     { return h.path }
func (h *fakeHandle) IsReadonly() bool { return h.readonly }

func (h *fakeHandle) Prepare(_ context.Context, query string) (Statement, error) {
	h.record("prepare:" + query)
	if err := h.prepareErr[query]; err != nil {
		return nil, err
	}
	return &fakeStatement{handle: h, query: query}, nil
}

func (h *fakeHandle) Exec(_ context.Context, query string) error {
	h.record("exec:" + query)
	return h.execErr[query]
}

func (h *fakeHandle) SetCipherKey(_ context.Context, key []byte) error {
	h.record(fmt.Sprintf("cipherkey:%d", len(key)))
	h.cipherKey = key
	return h.cipherErr
}

func (h *fakeHandle) SetPerformanceTrace(fn trace.PerformanceTrace) {
	h.record("perftrace")
	h.perf = fn
}

func (h *fakeHandle) SetSQLTrace(fn trace.SQLTrace) {
	h.record("sqltrace")
	h.sql = fn
}

func (h *fakeHandle) RegisterCommittedHook(hook CommittedHook) {
	h.record("hook")
	h.hooks = append(h.hooks, hook)
}

// fakeStatement returns at most one row taken from the handle's results.
type fakeStatement struct {
	handle  *fakeHandle
	query   string
	stepped bool
}

func (s *fakeStatement) Bind(index int, value any) {
	switch v := value.(type) {
	case []byte:
		s.handle.record(fmt.Sprintf("bind:%d=%x", index, v))
	default:
		s.handle.record(fmt.Sprintf("bind:%d=%v", index, v))
	}
}

func (s *fakeStatement) Step() (bool, error) {
	s.handle.record("step:" + s.query)
	if err := s.handle.stepErr[s.query]; err != nil {
		return false, err
	}
	if s.stepped {
		return false, nil
	}
	s.stepped = true
	_, ok := s.handle.results[s.query]
	return ok, nil
}

func (s *fakeStatement) Text(int) string {
	return s.handle.results[s.query]
}

func (s *fakeStatement) Finalize() error {
	s.handle.record("finalize:" + s.query)
	return nil
}

// fakeObserver records commit notifications.
type fakeObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *fakeObserver) Observe(path string, pages int) {
	o.mu.Lock()
	o.events = append(o.events, fmt.Sprintf("%s:%d", path, pages))
	o.mu.Unlock()
}

// fakeLookup is a static tokenizer table.
type fakeLookup map[string][]byte

func (l fakeLookup) Address(name string) ([]byte, error) {
	address, ok := l[name]
	if !ok {
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
	return address, nil
}
