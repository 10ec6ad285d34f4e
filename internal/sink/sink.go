// Package sink defines C6, the external alert/delivery sink contract, plus
// a bounded-queue dispatcher that decouples signal delivery from analysis
// (spec.md §4.6, §5) and a demo webhook sink for cmd/confluence.
package sink

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/quorumtrade/confluence/internal/signalgen"
)

// Sink is the external collaborator contract (spec.md §4.6): deliver must
// be non-blocking from the core's perspective. Dispatcher satisfies that by
// always calling it from its own goroutine.
type Sink interface {
	Deliver(ctx context.Context, sig signalgen.Signal) error
}

// Dispatcher decouples signal delivery from analysis via a bounded queue
// drained by a single goroutine, so upstream analysis never blocks on a
// slow sink (spec.md §5).
type Dispatcher struct {
	sink    Sink
	queue   chan signalgen.Signal
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
	done    chan struct{}
}

// NewDispatcher builds a Dispatcher with the given queue depth, wrapping
// sink calls in a circuit breaker so a stuck sink cannot back-pressure the
// queue indefinitely (SPEC_FULL.md §6).
func NewDispatcher(s Sink, queueDepth int, log zerolog.Logger) *Dispatcher {
	if queueDepth <= 0 {
		queueDepth = 1000
	}
	settings := gobreaker.Settings{
		Name:        "signal-sink",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}
	return &Dispatcher{
		sink:    s,
		queue:   make(chan signalgen.Signal, queueDepth),
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     log,
		done:    make(chan struct{}),
	}
}

// Enqueue hands a signal to the dispatcher; it never blocks the caller
// beyond the bounded channel's own backpressure, and drops the signal with
// a warning log if the queue is full rather than blocking forever.
func (d *Dispatcher) Enqueue(sig signalgen.Signal) {
	select {
	case d.queue <- sig:
	default:
		d.log.Warn().Str("symbol", sig.Symbol).Msg("dispatcher queue full, dropping signal")
	}
}

// Run drains the queue until ctx is cancelled. Call it from its own
// goroutine once at startup.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(d.done)
			return
		case sig := <-d.queue:
			d.dispatch(ctx, sig)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, sig signalgen.Signal) {
	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.sink.Deliver(ctx, sig)
	})
	if err != nil {
		// SinkError: logged, never propagated back to C3 (spec.md §7).
		d.log.Error().Err(err).Str("symbol", sig.Symbol).Str("type", string(sig.Type)).Msg("sink delivery failed")
	}
}

// Done is closed once Run has observed context cancellation.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}
