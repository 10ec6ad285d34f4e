// Package signalgen implements C4: threshold classification, quality
// filtering, deduplication/cooldown, and dispatch hand-off (spec.md §4.4).
package signalgen

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quorumtrade/confluence/internal/confluence"
)

// SignalType is the generated signal's direction.
type SignalType string

const (
	Buy  SignalType = "BUY"
	Sell SignalType = "SELL"
	Hold SignalType = "HOLD"
)

// Strength is the generated signal's magnitude bucket.
type Strength string

const (
	VeryStrong Strength = "very_strong"
	StrongS    Strength = "strong"
	Moderate   Strength = "moderate"
)

// Thresholds configures the classifier and quality filter (spec.md §4.4, §6).
type Thresholds struct {
	Buy            float64 // default 68
	Sell           float64 // default 35
	NeutralBuffer  float64 // default 5
	MinConfidence  float64 // default 0.3
	MaxDisagreement float64 // default 0.3
	FilterEnabled  bool
	CooldownSeconds int64 // default 300
}

// DefaultThresholds returns spec.md §4.4/§6 documented defaults. The buy
// threshold default is recorded in DESIGN.md's Open Questions section: the
// source carries both 68 and 70 in different configurations; 68 is used
// here because it matches the worked scenario vignettes in spec.md §8.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Buy: 68, Sell: 35, NeutralBuffer: 5,
		MinConfidence: 0.3, MaxDisagreement: 0.3, FilterEnabled: true,
		CooldownSeconds: 300,
	}
}

// Signal is C4's output (spec.md §3).
type Signal struct {
	Symbol       string             `json:"symbol"`
	TimestampMs  int64              `json:"timestamp_ms"`
	Type         SignalType         `json:"type"`
	Strength     Strength           `json:"strength"`
	Score        float64            `json:"score"`
	Consensus    float64            `json:"consensus"`
	Confidence   float64            `json:"confidence"`
	Disagreement float64            `json:"disagreement"`
	Price        float64            `json:"price"`
	Components   map[string]float64 `json:"components"`
	Thresholds   struct {
		Buy  float64 `json:"buy"`
		Sell float64 `json:"sell"`
	} `json:"thresholds"`
}

// FilterReason names why a candidate signal was suppressed.
type FilterReason string

const (
	ReasonNone            FilterReason = ""
	ReasonLowConfidence   FilterReason = "low_confidence"
	ReasonHighDisagreement FilterReason = "high_disagreement"
	ReasonCooldown        FilterReason = "cooldown"
	ReasonHold            FilterReason = "hold"
)

// dedupShardCount controls how many independent mutex-guarded buckets the
// dedup table is split across (spec.md §5: "guarded per-bucket (symbol
// hashed) for independent symbols to progress concurrently").
const dedupShardCount = 32

type dedupEntry struct {
	lastType SignalType
	at       time.Time
}

type dedupShard struct {
	mu      sync.Mutex
	entries map[string]dedupEntry
}

// DedupBackend is the per-symbol, per-type dedup/cooldown table C4 consults
// (spec.md §4.4 rule 4). InProcessDedup is the default, sharded-map
// implementation; RedisDedup (signalgen/redis_dedup.go) is an optional
// backend for multi-process deployments sharing one cooldown table
// (SPEC_FULL.md §6).
type DedupBackend interface {
	// Suppressed reports whether a signal of type t for symbol should be
	// suppressed given the cooldown window, and records the dispatch when
	// it is not suppressed (so the two never race against each other).
	Suppressed(symbol string, t SignalType, cooldown time.Duration) bool
}

// InProcessDedup is the default sharded in-memory DedupBackend.
type InProcessDedup struct {
	shards [dedupShardCount]*dedupShard
	now    func() time.Time
}

// NewInProcessDedup builds an InProcessDedup backend.
func NewInProcessDedup() *InProcessDedup {
	d := &InProcessDedup{now: time.Now}
	for i := range d.shards {
		d.shards[i] = &dedupShard{entries: make(map[string]dedupEntry)}
	}
	return d
}

func (d *InProcessDedup) shardFor(symbol string) *dedupShard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return d.shards[h.Sum32()%dedupShardCount]
}

// Suppressed implements DedupBackend.
func (d *InProcessDedup) Suppressed(symbol string, t SignalType, cooldown time.Duration) bool {
	shard := d.shardFor(symbol)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	prev, ok := shard.entries[symbol]
	suppress := false
	if ok && prev.lastType == t && d.now().Sub(prev.at) < cooldown {
		suppress = true
	}
	if !suppress {
		shard.entries[symbol] = dedupEntry{lastType: t, at: d.now()}
	}
	return suppress
}

// Generator is C4.
type Generator struct {
	th      Thresholds
	log     zerolog.Logger
	backend DedupBackend
}

// New builds a Generator backed by the default in-process dedup table.
func New(th Thresholds, log zerolog.Logger) *Generator {
	return NewWithBackend(th, log, NewInProcessDedup())
}

// NewWithBackend builds a Generator against an explicit DedupBackend, e.g.
// RedisDedup for a shared multi-process cooldown table.
func NewWithBackend(th Thresholds, log zerolog.Logger, backend DedupBackend) *Generator {
	return &Generator{th: th, log: log, backend: backend}
}

// Generate implements C4's contract: generate(fusion_result) -> (Signal,
// dispatch bool, reason). A nil Signal with dispatch=false and a non-empty
// reason means the result was not dispatched but should still be recorded
// by the tracker (HOLD, or a filtered BUY/SELL).
func (g *Generator) Generate(fr confluence.FusionResult, lastPrice float64) (*Signal, bool, FilterReason) {
	hasQuality := fr.Confidence != 0 || fr.Disagreement != 0
	if g.th.FilterEnabled && hasQuality {
		if fr.Confidence < g.th.MinConfidence {
			return nil, false, ReasonLowConfidence
		}
		if fr.Disagreement > g.th.MaxDisagreement {
			return nil, false, ReasonHighDisagreement
		}
	}

	sigType := classify(fr.Score, g.th)
	if sigType == Hold {
		return nil, false, ReasonHold
	}

	cooldown := time.Duration(g.th.CooldownSeconds) * time.Second
	if g.backend.Suppressed(fr.Symbol, sigType, cooldown) {
		return nil, false, ReasonCooldown
	}

	sig := &Signal{
		Symbol: fr.Symbol, TimestampMs: fr.TimestampMs, Type: sigType,
		Strength: strengthBucket(sigType, fr.Score), Score: fr.Score,
		Consensus: fr.Consensus, Confidence: fr.Confidence, Disagreement: fr.Disagreement,
		Price:      lastPrice,
		Components: componentScores(fr),
	}
	sig.Thresholds.Buy = g.th.Buy
	sig.Thresholds.Sell = g.th.Sell

	return sig, true, ReasonNone
}

func classify(score float64, th Thresholds) SignalType {
	switch {
	case score >= th.Buy:
		return Buy
	case score <= th.Sell:
		return Sell
	default:
		return Hold
	}
}

func strengthBucket(t SignalType, score float64) Strength {
	switch t {
	case Buy:
		switch {
		case score >= 80:
			return VeryStrong
		case score >= 70:
			return StrongS
		default:
			return Moderate
		}
	case Sell:
		switch {
		case score <= 20:
			return VeryStrong
		case score <= 30:
			return StrongS
		default:
			return Moderate
		}
	default:
		return Moderate
	}
}

func componentScores(fr confluence.FusionResult) map[string]float64 {
	out := make(map[string]float64, len(fr.Components))
	for name, r := range fr.Components {
		out[name] = r.Score
	}
	return out
}

