package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"provingbroker/internal/artifacts"
	"provingbroker/internal/jobs"
	"provingbroker/internal/proofclass"
)

// defaultInlineThresholdBytes bounds how large a payload or value may be before
// PostgresStore spills it to the configured artifacts.Store instead of
// writing it inline as bytea.
const defaultInlineThresholdBytes = 256 * 1024

// PostgresStore is the production DurableStore, wrapping pgxpool the same
// way the teacher's internal/store.Store does.
type PostgresStore struct {
	pool      *pgxpool.Pool
	blobs     artifacts.Store
	threshold int
}

// NewPostgresStore creates a pooled connection to Postgres. blobs may be nil
// to disable offload (every payload/value is stored inline).
func NewPostgresStore(ctx context.Context, dsn string, blobs artifacts.Store) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool, blobs: blobs, threshold: defaultInlineThresholdBytes}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// AddJob idempotently persists a job, spilling an oversized payload to the
// configured blob store first.
func (s *PostgresStore) AddJob(ctx context.Context, job jobs.Job) error {
	payload, payloadRef, err := s.deflate(ctx, "payload/"+job.ID, job.Payload)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, class, epoch, payload, payload_ref)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, job.ID, string(job.Class), int64(job.Epoch), payload, payloadRef)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// SetResult persists a terminal outcome, spilling an oversized success value
// the same way AddJob spills payloads.
func (s *PostgresStore) SetResult(ctx context.Context, jobID string, outcome jobs.Outcome) error {
	value, valueRef, err := s.deflate(ctx, "value/"+jobID, outcome.Value)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO results (job_id, failed, value, value_ref, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id) DO NOTHING
	`, jobID, outcome.Failed, value, valueRef, outcome.Reason)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Result already settled; terminal outcomes are never overwritten (§3).
		return nil
	}
	return nil
}

// DeleteJobAndResult removes both rows. Results are deleted before jobs so
// that a concurrent SetResult landing mid-delete never leaves an orphaned
// result referencing a job that no longer exists (see SPEC_FULL.md's
// decision on the cancel/in-flight-write ordering open question).
func (s *PostgresStore) DeleteJobAndResult(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM results WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, jobID); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// IterateAll loads every job and any settled result, rehydrating offloaded
// blobs, for startup recovery (§4.5).
func (s *PostgresStore) IterateAll(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT j.id, j.class, j.epoch, j.payload, j.payload_ref,
		       r.failed, r.value, r.value_ref, r.reason
		FROM jobs j
		LEFT JOIN results r ON r.job_id = j.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			id, class          string
			epoch              int64
			payload, valueBlob []byte
			payloadRef, valRef pgtype.Text
			failed             pgtype.Bool
			reason             pgtype.Text
		)
		if err := rows.Scan(&id, &class, &epoch, &payload, &payloadRef, &failed, &valueBlob, &valRef, &reason); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		resolvedPayload, err := s.inflate(ctx, payload, payloadRef)
		if err != nil {
			return nil, err
		}
		rec := Record{Job: jobs.Job{
			ID:      id,
			Class:   proofclass.Class(class),
			Epoch:   uint64(epoch),
			Payload: resolvedPayload,
		}}
		if failed.Valid {
			resolvedValue, err := s.inflate(ctx, valueBlob, valRef)
			if err != nil {
				return nil, err
			}
			outcome := jobs.Outcome{Failed: failed.Bool, Value: resolvedValue, Reason: reason.String}
			rec.Result = &outcome
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

// deflate returns (inline bytes, ref) — exactly one populated — spilling to
// the blob store when body exceeds the inline threshold.
func (s *PostgresStore) deflate(ctx context.Context, key string, body []byte) ([]byte, *string, error) {
	if s.blobs == nil || len(body) <= s.threshold {
		return body, nil, nil
	}
	ref, err := s.blobs.Put(ctx, key, body)
	if err != nil {
		return nil, nil, fmt.Errorf("offload artifact: %w", err)
	}
	return nil, &ref, nil
}

func (s *PostgresStore) inflate(ctx context.Context, inline []byte, ref pgtype.Text) ([]byte, error) {
	if !ref.Valid || ref.String == "" {
		return inline, nil
	}
	if s.blobs == nil {
		return nil, errors.New("store: artifact ref present but no blob store configured")
	}
	body, err := s.blobs.Get(ctx, ref.String)
	if err != nil {
		return nil, fmt.Errorf("rehydrate artifact %s: %w", ref.String, err)
	}
	return body, nil
}
