package confluence

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuseEmptyScoresReturnsNeutral(t *testing.T) {
	scoreRaw, disagreement, consensus, confidence, score, qualityImpact := Fuse(nil, DefaultWeights())
	assert.Zero(t, scoreRaw)
	assert.Zero(t, disagreement)
	assert.Equal(t, 1.0, consensus)
	assert.Zero(t, confidence)
	assert.Equal(t, 50.0, score)
	assert.Zero(t, qualityImpact)
}

func TestFuseSingleIndicatorHasFullConsensus(t *testing.T) {
	scores := map[string]float64{"technical": 80}
	_, disagreement, consensus, _, score, _ := Fuse(scores, DefaultWeights())

	assert.Zero(t, disagreement, "variance of one sample is defined as 0")
	assert.Equal(t, 1.0, consensus)
	assert.Greater(t, score, 50.0, "bullish indicator should push score above neutral")
}

func TestFuseAllIndicatorsAgreeBullish(t *testing.T) {
	scores := map[string]float64{
		"technical":       90,
		"volume":          90,
		"orderflow":       90,
		"sentiment":       90,
		"orderbook":       90,
		"price_structure": 90,
	}
	scoreRaw, disagreement, consensus, confidence, score, _ := Fuse(scores, DefaultWeights())

	assert.InDelta(t, 0.8, scoreRaw, 1e-9)
	assert.Zero(t, disagreement)
	assert.Equal(t, 1.0, consensus)
	assert.Greater(t, confidence, 0.0)
	assert.Greater(t, score, 50.0)
}

func TestFuseDisagreementReducesConsensusAndScore(t *testing.T) {
	agree := map[string]float64{"technical": 80, "volume": 80}
	disagree := map[string]float64{"technical": 80, "volume": 20}

	_, _, consensusAgree, _, scoreAgree, _ := Fuse(agree, Weights{"technical": 0.5, "volume": 0.5})
	_, _, consensusDisagree, _, scoreDisagree, _ := Fuse(disagree, Weights{"technical": 0.5, "volume": 0.5})

	assert.Greater(t, consensusAgree, consensusDisagree)
	assert.Greater(t, scoreAgree, scoreDisagree)
}

func TestFuseMissingWeightsFallBackToEqualSplit(t *testing.T) {
	scores := map[string]float64{"unknown_a": 70, "unknown_b": 70}
	scoreRaw, _, _, _, score, _ := Fuse(scores, Weights{})

	assert.False(t, math.IsNaN(scoreRaw))
	assert.Greater(t, score, 50.0)
}

func TestFuseScoreStaysInBounds(t *testing.T) {
	scores := map[string]float64{"technical": 0, "volume": 100}
	_, _, _, _, score, _ := Fuse(scores, Weights{"technical": 0.5, "volume": 0.5})

	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 100.0)
}
