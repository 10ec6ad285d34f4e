// Package provider adapts the teacher's exchange-provider fallback chain
// (internal/provider/fallback_chain.go) to this system's actual external
// dependency: a source of MarketSnapshot values to analyze. Where the
// teacher tried REST providers in order for order books/trades/klines,
// SupplierChain tries configured snapshot sources in order for one
// MarketSnapshot, health-checking and reordering the same way.
package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quorumtrade/confluence/internal/snapshot"
)

// SnapshotSupplier is the external collaborator contract for anything that
// can produce a MarketSnapshot for a symbol (spec.md §1 treats snapshot
// ingestion as external; this is the seam cmd/confluence wires a concrete
// source into).
type SnapshotSupplier interface {
	Name() string
	Supply(ctx context.Context, symbol string) (*snapshot.MarketSnapshot, error)
	Health() SupplierHealth
}

// SupplierHealth mirrors the teacher's ProviderHealth, trimmed to the
// fields a snapshot source can actually report.
type SupplierHealth struct {
	Healthy      bool
	Status       string
	LastCheck    time.Time
	ResponseTime time.Duration
	SuccessRate  float64
}

// SupplierChain tries each configured supplier in order, skipping unhealthy
// ones, and falls through on error — the same resilience shape as the
// teacher's ProviderChain, generalized from exchange REST calls to
// snapshot supply.
type SupplierChain struct {
	name      string
	mu        sync.RWMutex
	suppliers []SnapshotSupplier
	breakers  map[string]*CircuitBreaker
}

// NewSupplierChain builds a SupplierChain; each supplier gets its own
// circuit breaker with default settings.
func NewSupplierChain(name string, suppliers []SnapshotSupplier) *SupplierChain {
	if len(suppliers) == 0 {
		panic("supplier chain must have at least one supplier")
	}
	breakers := make(map[string]*CircuitBreaker, len(suppliers))
	for _, s := range suppliers {
		breakers[s.Name()] = NewCircuitBreaker(s.Name(), DefaultCircuitConfig())
	}
	return &SupplierChain{name: name, suppliers: suppliers, breakers: breakers}
}

// Supply attempts each supplier in order until one succeeds, wrapping each
// attempt in that supplier's circuit breaker.
func (sc *SupplierChain) Supply(ctx context.Context, symbol string) (*snapshot.MarketSnapshot, error) {
	sc.mu.RLock()
	suppliers := make([]SnapshotSupplier, len(sc.suppliers))
	copy(suppliers, sc.suppliers)
	sc.mu.RUnlock()

	var lastErr error
	for _, s := range suppliers {
		if h := s.Health(); !h.Healthy {
			lastErr = fmt.Errorf("supplier %s is unhealthy: %s", s.Name(), h.Status)
			continue
		}

		breaker := sc.breakers[s.Name()]
		var snap *snapshot.MarketSnapshot
		err := breaker.Call(func() error {
			var supplyErr error
			snap, supplyErr = s.Supply(ctx, symbol)
			return supplyErr
		})
		if err == nil {
			return snap, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("supplier chain %s: all suppliers failed: %w", sc.name, lastErr)
}

// ReorderByHealth moves healthier, lower-latency suppliers to the front,
// the same scoring idiom as the teacher's ReorderProviders.
func (sc *SupplierChain) ReorderByHealth() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	scored := make([]struct {
		s     SnapshotSupplier
		score float64
	}, len(sc.suppliers))
	for i, s := range sc.suppliers {
		scored[i].s = s
		scored[i].score = supplierScore(s.Health())
	}
	for i := 0; i < len(scored)-1; i++ {
		for j := i + 1; j < len(scored); j++ {
			if scored[j].score > scored[i].score {
				scored[i], scored[j] = scored[j], scored[i]
			}
		}
	}
	for i, sc2 := range scored {
		sc.suppliers[i] = sc2.s
	}
}

func supplierScore(h SupplierHealth) float64 {
	score := 0.0
	if h.Healthy {
		score += 100.0
	}
	score += h.SuccessRate * 50.0
	if h.ResponseTime > 0 {
		ms := float64(h.ResponseTime.Milliseconds())
		if ms < 100 {
			score += 25.0
		} else if ms < 1000 {
			score += 25.0 * (1000.0 - ms) / 900.0
		}
	}
	return score
}
