package signalgen

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumtrade/confluence/internal/confluence"
)

func fusionResult(score, confidence, disagreement float64) confluence.FusionResult {
	return confluence.FusionResult{
		Symbol:       "BTC-USD",
		TimestampMs:  time.Now().UnixMilli(),
		Score:        score,
		Consensus:    1 - disagreement,
		Confidence:   confidence,
		Disagreement: disagreement,
	}
}

func TestGenerateHoldInsideNeutralBand(t *testing.T) {
	gen := New(DefaultThresholds(), zerolog.Nop())
	sig, dispatch, reason := gen.Generate(fusionResult(50, 0.5, 0.1), 100)

	assert.Nil(t, sig)
	assert.False(t, dispatch)
	assert.Equal(t, ReasonHold, reason)
}

func TestGenerateBuyAboveThreshold(t *testing.T) {
	gen := New(DefaultThresholds(), zerolog.Nop())
	sig, dispatch, reason := gen.Generate(fusionResult(90, 0.8, 0.05), 100)

	require.True(t, dispatch)
	require.NotNil(t, sig)
	assert.Equal(t, Buy, sig.Type)
	assert.Equal(t, VeryStrong, sig.Strength)
	assert.Equal(t, ReasonNone, reason)
}

func TestGenerateSellBelowThreshold(t *testing.T) {
	gen := New(DefaultThresholds(), zerolog.Nop())
	sig, dispatch, _ := gen.Generate(fusionResult(10, 0.8, 0.05), 100)

	require.True(t, dispatch)
	require.NotNil(t, sig)
	assert.Equal(t, Sell, sig.Type)
	assert.Equal(t, VeryStrong, sig.Strength)
}

func TestGenerateFiltersLowConfidence(t *testing.T) {
	gen := New(DefaultThresholds(), zerolog.Nop())
	sig, dispatch, reason := gen.Generate(fusionResult(90, 0.1, 0.05), 100)

	assert.Nil(t, sig)
	assert.False(t, dispatch)
	assert.Equal(t, ReasonLowConfidence, reason)
}

func TestGenerateFiltersHighDisagreement(t *testing.T) {
	gen := New(DefaultThresholds(), zerolog.Nop())
	sig, dispatch, reason := gen.Generate(fusionResult(90, 0.8, 0.9), 100)

	assert.Nil(t, sig)
	assert.False(t, dispatch)
	assert.Equal(t, ReasonHighDisagreement, reason)
}

func TestGenerateSuppressesWithinCooldown(t *testing.T) {
	gen := New(DefaultThresholds(), zerolog.Nop())
	fr := fusionResult(90, 0.8, 0.05)

	_, dispatch1, _ := gen.Generate(fr, 100)
	_, dispatch2, reason2 := gen.Generate(fr, 100)

	assert.True(t, dispatch1)
	assert.False(t, dispatch2)
	assert.Equal(t, ReasonCooldown, reason2)
}

func TestGenerateAllowsAfterTypeFlip(t *testing.T) {
	th := DefaultThresholds()
	gen := New(th, zerolog.Nop())

	_, dispatch1, _ := gen.Generate(fusionResult(90, 0.8, 0.05), 100)
	_, dispatch2, _ := gen.Generate(fusionResult(10, 0.8, 0.05), 100)

	assert.True(t, dispatch1)
	assert.True(t, dispatch2, "a type flip (BUY -> SELL) should not be suppressed by the same-type cooldown")
}

func TestInProcessDedupSuppressesSameTypeWithinWindow(t *testing.T) {
	d := NewInProcessDedup()
	cooldown := time.Minute

	assert.False(t, d.Suppressed("ETH-USD", Buy, cooldown))
	assert.True(t, d.Suppressed("ETH-USD", Buy, cooldown))
	assert.False(t, d.Suppressed("ETH-USD", Sell, cooldown), "different type is not suppressed")
}

func TestClassifyBoundaries(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, Buy, classify(th.Buy, th))
	assert.Equal(t, Sell, classify(th.Sell, th))
	assert.Equal(t, Hold, classify((th.Buy+th.Sell)/2, th))
}
