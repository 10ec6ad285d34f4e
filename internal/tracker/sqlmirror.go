package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// SQLMirror optionally mirrors each appended QualityRecord into a Postgres
// table, purely additive to the JSONL file which remains the source of
// truth (SPEC_FULL.md §6, spec.md §4.5). Construct with NewSQLMirror and
// attach it to a Tracker via AttachMirror.
type SQLMirror struct {
	db *sqlx.DB
}

const createMirrorTableSQL = `
CREATE TABLE IF NOT EXISTS quality_records (
	ts_ms           BIGINT PRIMARY KEY,
	symbol          TEXT NOT NULL,
	score_adjusted  DOUBLE PRECISION NOT NULL,
	score_base      DOUBLE PRECISION NOT NULL,
	quality_impact  DOUBLE PRECISION NOT NULL,
	consensus       DOUBLE PRECISION NOT NULL,
	confidence      DOUBLE PRECISION NOT NULL,
	disagreement    DOUBLE PRECISION NOT NULL,
	signal_type     TEXT,
	filtered        BOOLEAN NOT NULL,
	filter_reason   TEXT,
	extras          JSONB
)`

// NewSQLMirror opens a Postgres connection via lib/pq and ensures the
// mirror table exists.
func NewSQLMirror(dsn string) (*SQLMirror, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("tracker: sql mirror connect: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createMirrorTableSQL); err != nil {
		return nil, fmt.Errorf("tracker: sql mirror schema: %w", err)
	}
	return &SQLMirror{db: db}, nil
}

// Insert mirrors one record; failures are the caller's (Tracker's) to log
// and swallow, matching the JSONL path's error policy.
func (m *SQLMirror) Insert(ctx context.Context, rec QualityRecord) error {
	var extras []byte
	if rec.Extras != nil {
		var err error
		extras, err = json.Marshal(rec.Extras)
		if err != nil {
			return fmt.Errorf("marshal extras: %w", err)
		}
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO quality_records
			(ts_ms, symbol, score_adjusted, score_base, quality_impact, consensus, confidence, disagreement, signal_type, filtered, filter_reason, extras)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (ts_ms) DO NOTHING`,
		rec.TsMs, rec.Symbol, rec.ScoreAdjusted, rec.ScoreBase, rec.QualityImpact,
		rec.Consensus, rec.Confidence, rec.Disagreement, rec.SignalType, rec.Filtered, rec.FilterReason, extras)
	return err
}

// Close releases the underlying connection pool.
func (m *SQLMirror) Close() error {
	return m.db.Close()
}

// AttachMirror enables mirroring of every subsequent Record call. Mirror
// errors are logged through the Tracker's own logger and never block or
// drop the JSONL append.
func (t *Tracker) AttachMirror(mirror *SQLMirror) {
	t.mirror = mirror
}
