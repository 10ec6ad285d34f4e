// Package confluence implements C3: the orchestrator that fans out a
// prepared snapshot to the six C2 indicators and fuses their scores with
// consensus/confidence/disagreement quality metrics (spec.md §4.3).
package confluence

import (
	"time"

	"github.com/quorumtrade/confluence/internal/indicator"
)

// FusionResult is C3's output (spec.md §3).
type FusionResult struct {
	Symbol       string                       `json:"symbol"`
	TimestampMs  int64                        `json:"timestamp_ms"`
	Score        float64                      `json:"score"`        // quality-adjusted, [0,100]
	ScoreRaw     float64                      `json:"score_raw"`    // signed directional, [-1,1]
	Consensus    float64                      `json:"consensus"`    // (0,1]
	Confidence   float64                      `json:"confidence"`   // [0,1]
	Disagreement float64                      `json:"disagreement"` // >=0
	Components   map[string]indicator.Result  `json:"components"`
	// Reliability is the fraction of indicators that completed without
	// error (spec.md §9 Open Question: "implementers should pick one and
	// document it" — this implementation chose completion-without-error
	// over the legacy non-50.0-score definition; see DESIGN.md).
	Reliability float64 `json:"reliability"`
	// Timings is a supplemental per-indicator latency breakdown not named
	// in spec.md's FusionResult shape but present in the original source;
	// carried as an additive field (SPEC_FULL.md §10).
	Timings map[string]time.Duration `json:"-"`
}

// Weights maps indicator name to its fusion weight.
type Weights map[string]float64

// DefaultWeights is the default weight set from spec.md §4.3.a.
func DefaultWeights() Weights {
	return Weights{
		"technical":       0.20,
		"volume":          0.10,
		"orderflow":       0.25,
		"sentiment":       0.15,
		"orderbook":       0.20,
		"price_structure": 0.10,
	}
}
