package auth

import (
	"sync"
	"time"
)

const guardPruneThreshold = 1024

// failureGuard counts rejected tokens per client. A client that reaches max
// failures inside window is refused until the window has passed, without
// another bcrypt round.
type failureGuard struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	now    func() time.Time
	states map[string]*guardState
}

type guardState struct {
	failed int
	since  time.Time
}

func newFailureGuard(max int, window time.Duration) *failureGuard {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &failureGuard{
		max:    max,
		window: window,
		now:    time.Now,
		states: make(map[string]*guardState),
	}
}

func (g *failureGuard) blocked(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.states[key]
	if !ok {
		return false
	}
	if g.now().Sub(st.since) > g.window {
		delete(g.states, key)
		return false
	}
	return st.failed >= g.max
}

func (g *failureGuard) fail(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if len(g.states) > guardPruneThreshold {
		for k, st := range g.states {
			if now.Sub(st.since) > g.window {
				delete(g.states, k)
			}
		}
	}
	st, ok := g.states[key]
	if !ok || now.Sub(st.since) > g.window {
		g.states[key] = &guardState{failed: 1, since: now}
		return
	}
	st.failed++
}

func (g *failureGuard) reset(key string) {
	g.mu.Lock()
	delete(g.states, key)
	g.mu.Unlock()
}
