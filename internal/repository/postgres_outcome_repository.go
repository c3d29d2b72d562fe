package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresOutcomeRepository implements OutcomeRepository on PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE saga_outcomes (
//	    id                UUID PRIMARY KEY,
//	    booking_id        TEXT NOT NULL,
//	    payment_id        TEXT,
//	    kind              TEXT NOT NULL,
//	    booking_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
//	    tickets_issued    INT NOT NULL DEFAULT 0,
//	    tickets_failed    INT NOT NULL DEFAULT 0,
//	    degraded          BOOLEAN NOT NULL DEFAULT FALSE,
//	    reason            TEXT,
//	    created_at        TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX idx_saga_outcomes_booking ON saga_outcomes (booking_id, created_at DESC);
//	CREATE INDEX idx_saga_outcomes_degraded ON saga_outcomes (created_at) WHERE degraded;
type PostgresOutcomeRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresOutcomeRepository creates a PostgreSQL-backed outcome repository
func NewPostgresOutcomeRepository(pool *pgxpool.Pool) *PostgresOutcomeRepository {
	return &PostgresOutcomeRepository{pool: pool}
}

// Save inserts the outcome
func (r *PostgresOutcomeRepository) Save(ctx context.Context, outcome *SagaOutcome) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO saga_outcomes (
			id, booking_id, payment_id, kind, booking_confirmed,
			tickets_issued, tickets_failed, degraded, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		outcome.ID, outcome.BookingID, outcome.PaymentID, outcome.Kind,
		outcome.BookingConfirmed, outcome.TicketsIssued, outcome.TicketsFailed,
		outcome.Degraded, outcome.Reason, outcome.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save saga outcome: %w", err)
	}
	return nil
}

// GetByBookingID returns all outcomes for a booking, newest first
func (r *PostgresOutcomeRepository) GetByBookingID(ctx context.Context, bookingID string) ([]*SagaOutcome, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, booking_id, payment_id, kind, booking_confirmed,
		       tickets_issued, tickets_failed, degraded, reason, created_at
		FROM saga_outcomes
		WHERE booking_id = $1
		ORDER BY created_at DESC`,
		bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query saga outcomes: %w", err)
	}
	defer rows.Close()

	outcomes, err := scanOutcomes(rows)
	if err != nil {
		return nil, err
	}
	if len(outcomes) == 0 {
		return nil, ErrOutcomeNotFound
	}
	return outcomes, nil
}

// ListDegraded returns degraded outcomes for reconciliation, oldest first
func (r *PostgresOutcomeRepository) ListDegraded(ctx context.Context, limit int) ([]*SagaOutcome, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, booking_id, payment_id, kind, booking_confirmed,
		       tickets_issued, tickets_failed, degraded, reason, created_at
		FROM saga_outcomes
		WHERE degraded
		ORDER BY created_at ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query degraded outcomes: %w", err)
	}
	defer rows.Close()

	return scanOutcomes(rows)
}

func scanOutcomes(rows pgx.Rows) ([]*SagaOutcome, error) {
	var outcomes []*SagaOutcome
	for rows.Next() {
		o := &SagaOutcome{}
		if err := rows.Scan(
			&o.ID, &o.BookingID, &o.PaymentID, &o.Kind, &o.BookingConfirmed,
			&o.TicketsIssued, &o.TicketsFailed, &o.Degraded, &o.Reason, &o.CreatedAt,
		); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrOutcomeNotFound
			}
			return nil, fmt.Errorf("failed to scan saga outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read saga outcomes: %w", err)
	}
	return outcomes, nil
}
