// Package store provides Postgres-backed implementations of the engine's
// SignalLog and EpisodeStore collaborators, plus the prior-file hand-off
// for the nightly batch job.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/discovery-engine/pkg/model"
)

type pgxRows = pgx.Rows

// PostgresStore persists Signals (append-only) and Episodes, and answers
// Signal-log replay queries.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool, ping-verified.
func Connect(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}
	log.Println("Successfully connected to PostgreSQL for Discovery Engine")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS signals (
	signal_id            TEXT PRIMARY KEY,
	evidence_id          TEXT NOT NULL,
	hypothesis_id        TEXT NOT NULL,
	entity_id            TEXT NOT NULL,
	category             TEXT NOT NULL,
	decision             TEXT NOT NULL,
	reasoning            TEXT,
	confidence_delta_raw DOUBLE PRECISION NOT NULL,
	category_multiplier  DOUBLE PRECISION NOT NULL,
	temporal_multiplier  DOUBLE PRECISION NOT NULL,
	applied_delta        DOUBLE PRECISION NOT NULL,
	pre_confidence       DOUBLE PRECISION NOT NULL,
	post_confidence       DOUBLE PRECISION NOT NULL,
	category_saturated    BOOLEAN NOT NULL DEFAULT FALSE,
	confidence_saturated  BOOLEAN NOT NULL DEFAULT FALSE,
	model_used            TEXT NOT NULL,
	pass_number            INT NOT NULL,
	created_at             TIMESTAMPTZ NOT NULL,
	seq                    BIGSERIAL
);
CREATE INDEX IF NOT EXISTS idx_signals_entity_pass ON signals (entity_id, pass_number, seq);

CREATE TABLE IF NOT EXISTS episodes (
	episode_id       TEXT PRIMARY KEY,
	entity_id        TEXT NOT NULL,
	signal_category  TEXT NOT NULL,
	episode_type     TEXT NOT NULL,
	occurred_at      TIMESTAMPTZ NOT NULL,
	description      TEXT,
	confidence_score DOUBLE PRECISION NOT NULL,
	source_signal_id TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_episodes_source_signal ON episodes (source_signal_id);
CREATE INDEX IF NOT EXISTS idx_episodes_entity ON episodes (entity_id, occurred_at);
`

// InitSchema creates the signals/episodes tables if absent.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}
	log.Println("Discovery engine schema initialized")
	return nil
}

// Append durably persists a Signal before returning.
func (s *PostgresStore) Append(ctx context.Context, sig model.Signal) error {
	const insertSQL = `
		INSERT INTO signals (
			signal_id, evidence_id, hypothesis_id, entity_id, category, decision,
			reasoning, confidence_delta_raw, category_multiplier, temporal_multiplier,
			applied_delta, pre_confidence, post_confidence, category_saturated,
			confidence_saturated, model_used, pass_number, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (signal_id) DO NOTHING;
	`
	_, err := s.pool.Exec(ctx, insertSQL,
		sig.SignalID, sig.EvidenceID, sig.HypothesisID, sig.EntityID, sig.Category, sig.Decision,
		sig.Reasoning, sig.ConfidenceDeltaRaw, sig.CategoryMultiplier, sig.TemporalMultiplier,
		sig.AppliedDelta, sig.PreConfidence, sig.PostConfidence, sig.SaturationFlags.CategorySaturated,
		sig.SaturationFlags.ConfidenceSaturated, sig.ModelUsed, sig.PassNumber, sig.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append signal: %v", err)
	}
	return nil
}

// Replay returns all signals for (entityID, passNumber) in append order.
func (s *PostgresStore) Replay(ctx context.Context, entityID string, passNumber int) ([]model.Signal, error) {
	const querySQL = `
		SELECT signal_id, evidence_id, hypothesis_id, entity_id, category, decision,
		       reasoning, confidence_delta_raw, category_multiplier, temporal_multiplier,
		       applied_delta, pre_confidence, post_confidence, category_saturated,
		       confidence_saturated, model_used, pass_number, created_at
		FROM signals
		WHERE entity_id = $1 AND pass_number = $2
		ORDER BY seq ASC;
	`
	rows, err := s.pool.Query(ctx, querySQL, entityID, passNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to replay signals: %v", err)
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		var sig model.Signal
		var categorySaturated, confidenceSaturated bool
		if err := rows.Scan(
			&sig.SignalID, &sig.EvidenceID, &sig.HypothesisID, &sig.EntityID, &sig.Category, &sig.Decision,
			&sig.Reasoning, &sig.ConfidenceDeltaRaw, &sig.CategoryMultiplier, &sig.TemporalMultiplier,
			&sig.AppliedDelta, &sig.PreConfidence, &sig.PostConfidence, &categorySaturated,
			&confidenceSaturated, &sig.ModelUsed, &sig.PassNumber, &sig.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signal row: %v", err)
		}
		sig.SaturationFlags = model.SaturationFlags{CategorySaturated: categorySaturated, ConfidenceSaturated: confidenceSaturated}
		out = append(out, sig)
	}
	return out, nil
}

// SaveEpisode persists a TemporalEpisode; a unique index on
// source_signal_id makes re-running on the same signal a no-op rather than
// a duplicate.
func (s *PostgresStore) SaveEpisode(ctx context.Context, ep model.TemporalEpisode) error {
	const insertSQL = `
		INSERT INTO episodes (episode_id, entity_id, signal_category, episode_type, occurred_at, description, confidence_score, source_signal_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (source_signal_id) DO NOTHING;
	`
	_, err := s.pool.Exec(ctx, insertSQL,
		ep.EpisodeID, ep.EntityID, ep.SignalCategory, ep.EpisodeType, ep.OccurredAt, ep.Description, ep.ConfidenceScore, ep.SourceSignalID,
	)
	if err != nil {
		return fmt.Errorf("failed to save episode: %v", err)
	}
	return nil
}

// Episodes returns an entity's episode history, optionally bounded below.
func (s *PostgresStore) Episodes(ctx context.Context, entityID string, since *time.Time) ([]model.TemporalEpisode, error) {
	var rows pgxRows
	var err error
	if since != nil {
		r, e := s.pool.Query(ctx, `SELECT episode_id, entity_id, signal_category, episode_type, occurred_at, description, confidence_score, source_signal_id FROM episodes WHERE entity_id = $1 AND occurred_at >= $2 ORDER BY occurred_at ASC`, entityID, *since)
		rows, err = r, e
	} else {
		r, e := s.pool.Query(ctx, `SELECT episode_id, entity_id, signal_category, episode_type, occurred_at, description, confidence_score, source_signal_id FROM episodes WHERE entity_id = $1 ORDER BY occurred_at ASC`, entityID)
		rows, err = r, e
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %v", err)
	}
	defer rows.Close()

	var out []model.TemporalEpisode
	for rows.Next() {
		var ep model.TemporalEpisode
		if err := rows.Scan(&ep.EpisodeID, &ep.EntityID, &ep.SignalCategory, &ep.EpisodeType, &ep.OccurredAt, &ep.Description, &ep.ConfidenceScore, &ep.SourceSignalID); err != nil {
			return nil, fmt.Errorf("failed to scan episode row: %v", err)
		}
		out = append(out, ep)
	}
	return out, nil
}

// WritePriorFile serializes a computed prior table to JSON for the
// Temporal Prior Service to load at next startup — the nightly job's
// hand-off point; the service itself never queries Postgres at runtime.
func WritePriorFile(priors map[string]model.TemporalPrior) ([]byte, error) {
	return json.MarshalIndent(priors, "", "  ")
}

// GetPool exposes the connection pool for callers that need direct access
// (e.g. the nightly prior-computation batch job).
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}
