package obc

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

var goroutinePrefix = []byte("goroutine ")

// resolutionState is the chain of keys one goroutine is currently building.
type resolutionState struct {
	chain map[ServiceKey]bool
	order []ServiceKey
}

// resolutionTracker detects factories that re-enter their own resolution.
// Chains are kept per goroutine so concurrent resolutions of the same key
// never look circular.
type resolutionTracker struct {
	mu     sync.Mutex
	states map[int64]*resolutionState
	pool   sync.Pool
}

func newResolutionTracker() *resolutionTracker {
	return &resolutionTracker{
		states: make(map[int64]*resolutionState),
		pool: sync.Pool{
			New: func() any {
				return &resolutionState{
					chain: make(map[ServiceKey]bool, 8),
					order: make([]ServiceKey, 0, 8),
				}
			},
		},
	}
}

func (t *resolutionTracker) enter(key ServiceKey) error {
	id := goid()
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[id]
	if !ok {
		state = t.pool.Get().(*resolutionState)
		t.states[id] = state
	}
	if state.chain[key] {
		chain := make([]string, 0, len(state.order)+1)
		for _, k := range state.order {
			chain = append(chain, k.String())
		}
		return &CircularDependencyError{Chain: append(chain, key.String())}
	}
	state.chain[key] = true
	state.order = append(state.order, key)
	return nil
}

func (t *resolutionTracker) leave(key ServiceKey) {
	id := goid()
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[id]
	if !ok {
		return
	}
	delete(state.chain, key)
	if n := len(state.order); n > 0 && state.order[n-1] == key {
		state.order = state.order[:n-1]
	}
	if len(state.chain) == 0 {
		delete(t.states, id)
		state.order = state.order[:0]
		t.pool.Put(state)
	}
}

// goid identifies the calling goroutine so each resolution chain is tracked
// on its own: two goroutines building the same key at once must not see each
// other's entry as a cycle. The runtime exposes no accessor, so the ID is read
// from the "goroutine N [...]" header of the stack trace.
func goid() int64 {
	var header [64]byte
	trace := header[:runtime.Stack(header[:], false)]
	trace = bytes.TrimPrefix(trace, goroutinePrefix)
	if end := bytes.IndexByte(trace, ' '); end > 0 {
		trace = trace[:end]
	}
	id, err := strconv.ParseInt(string(trace), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
