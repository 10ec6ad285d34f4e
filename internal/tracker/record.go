// Package tracker implements C5, the Quality Metrics Tracker: an
// append-only observational record used to tune thresholds offline
// (spec.md §4.5).
package tracker

import "time"

// QualityRecord is C5's unit of record (spec.md §3).
type QualityRecord struct {
	TsISO          string                 `json:"ts_iso"`
	TsMs           int64                  `json:"ts_ms"`
	Symbol         string                 `json:"symbol"`
	ScoreAdjusted  float64                `json:"score_adjusted"`
	ScoreBase      float64                `json:"score_base"`
	QualityImpact  float64                `json:"quality_impact"`
	Consensus      float64                `json:"consensus"`
	Confidence     float64                `json:"confidence"`
	Disagreement   float64                `json:"disagreement"`
	SignalType     string                 `json:"signal_type,omitempty"`
	Filtered       bool                   `json:"filtered"`
	FilterReason   string                 `json:"filter_reason,omitempty"`
	Extras         map[string]interface{} `json:"extras,omitempty"`
}

// NewRecord builds a QualityRecord stamped at ts.
func NewRecord(ts time.Time, symbol string, scoreAdjusted, scoreBase, qualityImpact, consensus, confidence, disagreement float64, signalType string, filtered bool, reason string) QualityRecord {
	return QualityRecord{
		TsISO:         ts.UTC().Format(time.RFC3339Nano),
		TsMs:          ts.UnixMilli(),
		Symbol:        symbol,
		ScoreAdjusted: scoreAdjusted,
		ScoreBase:     scoreBase,
		QualityImpact: qualityImpact,
		Consensus:     consensus,
		Confidence:    confidence,
		Disagreement:  disagreement,
		SignalType:    signalType,
		Filtered:      filtered,
		FilterReason:  reason,
	}
}
