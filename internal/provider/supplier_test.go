package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumtrade/confluence/internal/snapshot"
)

type stubSupplier struct {
	name    string
	healthy bool
	err     error
	snap    *snapshot.MarketSnapshot
	calls   int
}

func (s *stubSupplier) Name() string { return s.name }
func (s *stubSupplier) Health() SupplierHealth {
	return SupplierHealth{Healthy: s.healthy, Status: "stub", LastCheck: time.Now(), SuccessRate: 1}
}
func (s *stubSupplier) Supply(ctx context.Context, symbol string) (*snapshot.MarketSnapshot, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

func TestSupplierChainFallsThroughOnError(t *testing.T) {
	primary := &stubSupplier{name: "primary", healthy: true, err: errors.New("boom")}
	secondary := &stubSupplier{name: "secondary", healthy: true, snap: &snapshot.MarketSnapshot{Symbol: "BTC-USD"}}

	chain := NewSupplierChain("test", []SnapshotSupplier{primary, secondary})
	snap, err := chain.Supply(context.Background(), "BTC-USD")

	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", snap.Symbol)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestSupplierChainSkipsUnhealthy(t *testing.T) {
	primary := &stubSupplier{name: "primary", healthy: false}
	secondary := &stubSupplier{name: "secondary", healthy: true, snap: &snapshot.MarketSnapshot{Symbol: "ETH-USD"}}

	chain := NewSupplierChain("test", []SnapshotSupplier{primary, secondary})
	snap, err := chain.Supply(context.Background(), "ETH-USD")

	require.NoError(t, err)
	assert.Equal(t, "ETH-USD", snap.Symbol)
	assert.Equal(t, 0, primary.calls)
}

func TestSupplierChainAllFail(t *testing.T) {
	a := &stubSupplier{name: "a", healthy: true, err: errors.New("down")}
	b := &stubSupplier{name: "b", healthy: true, err: errors.New("down")}

	chain := NewSupplierChain("test", []SnapshotSupplier{a, b})
	_, err := chain.Supply(context.Background(), "BTC-USD")

	assert.Error(t, err)
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cfg := DefaultCircuitConfig()
	cfg.MinRequests = 2
	cfg.MaxFailures = 2
	cb := NewCircuitBreaker("test", cfg)

	for i := 0; i < 2; i++ {
		_ = cb.Call(func() error { return errors.New("fail") })
	}
	assert.Equal(t, CircuitOpen, cb.GetState())

	err := cb.Call(func() error { return nil })
	var supplierErr *SupplierError
	assert.ErrorAs(t, err, &supplierErr)
	assert.Equal(t, ErrCodeCircuitOpen, supplierErr.Code)
}
