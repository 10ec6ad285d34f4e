package http

import (
	"sync"

	"github.com/quorumtrade/confluence/internal/signalgen"
)

// RecentSignals is a small bounded in-memory buffer of dispatched signals,
// backing the /signals endpoint, plus a fan-out broadcast for /stream
// websocket subscribers. It sits alongside sink.Dispatcher rather than
// inside it: the dispatcher's job is reliable delivery, this one is
// read-only introspection (spec.md §6 "external interfaces are read-only").
type RecentSignals struct {
	mu   sync.RWMutex
	buf  []signalgen.Signal
	cap  int
	subs map[chan signalgen.Signal]struct{}
}

// NewRecentSignals builds a RecentSignals with the given capacity.
func NewRecentSignals(capacity int) *RecentSignals {
	if capacity <= 0 {
		capacity = 200
	}
	return &RecentSignals{cap: capacity, subs: make(map[chan signalgen.Signal]struct{})}
}

// Record appends a signal, evicting the oldest if at capacity, and fans it
// out to any subscribed websocket writers without blocking on a slow one.
func (r *RecentSignals) Record(sig signalgen.Signal) {
	r.mu.Lock()
	r.buf = append(r.buf, sig)
	if len(r.buf) > r.cap {
		r.buf = r.buf[len(r.buf)-r.cap:]
	}
	for ch := range r.subs {
		select {
		case ch <- sig:
		default:
		}
	}
	r.mu.Unlock()
}

// List returns a snapshot of the most recent signals, newest last.
func (r *RecentSignals) List() []signalgen.Signal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]signalgen.Signal, len(r.buf))
	copy(out, r.buf)
	return out
}

// Subscribe registers a channel to receive every subsequently recorded
// signal. Call Unsubscribe when the consumer goes away.
func (r *RecentSignals) Subscribe() chan signalgen.Signal {
	ch := make(chan signalgen.Signal, 16)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a previously subscribed channel.
func (r *RecentSignals) Unsubscribe(ch chan signalgen.Signal) {
	r.mu.Lock()
	delete(r.subs, ch)
	r.mu.Unlock()
	close(ch)
}
