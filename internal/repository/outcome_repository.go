// Package repository records terminal saga outcomes. The saga itself
// holds no durable state; these records exist so degraded runs (paid but
// not fully confirmed or ticketed) are visible to a reconciliation job
// instead of vanishing with the process.
package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrOutcomeNotFound is returned when no outcome exists for the query
var ErrOutcomeNotFound = errors.New("saga outcome not found")

// SagaOutcome is a persisted snapshot of one terminal fulfillment result
type SagaOutcome struct {
	ID               string    `json:"id"`
	BookingID        string    `json:"booking_id"`
	PaymentID        string    `json:"payment_id,omitempty"`
	Kind             string    `json:"kind"`
	BookingConfirmed bool      `json:"booking_confirmed"`
	TicketsIssued    int       `json:"tickets_issued"`
	TicketsFailed    int       `json:"tickets_failed"`
	Degraded         bool      `json:"degraded"`
	Reason           string    `json:"reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewSagaOutcome assigns identity and timestamp to an outcome snapshot
func NewSagaOutcome(bookingID string) *SagaOutcome {
	return &SagaOutcome{
		ID:        uuid.New().String(),
		BookingID: bookingID,
		CreatedAt: time.Now().UTC(),
	}
}

// OutcomeRepository persists terminal saga outcomes
type OutcomeRepository interface {
	Save(ctx context.Context, outcome *SagaOutcome) error
	// GetByBookingID returns all outcomes for a booking, newest first
	GetByBookingID(ctx context.Context, bookingID string) ([]*SagaOutcome, error)
	// ListDegraded returns degraded outcomes for reconciliation, oldest first
	ListDegraded(ctx context.Context, limit int) ([]*SagaOutcome, error)
}

// MemoryOutcomeRepository is an in-memory OutcomeRepository for tests and
// standalone mode
type MemoryOutcomeRepository struct {
	mu        sync.RWMutex
	outcomes  map[string]*SagaOutcome
	byBooking map[string][]string
}

// NewMemoryOutcomeRepository creates an in-memory outcome repository
func NewMemoryOutcomeRepository() *MemoryOutcomeRepository {
	return &MemoryOutcomeRepository{
		outcomes:  make(map[string]*SagaOutcome),
		byBooking: make(map[string][]string),
	}
}

// Save stores a copy of the outcome
func (r *MemoryOutcomeRepository) Save(ctx context.Context, outcome *SagaOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *outcome
	r.outcomes[outcome.ID] = &copied
	r.byBooking[outcome.BookingID] = append(r.byBooking[outcome.BookingID], outcome.ID)
	return nil
}

// GetByBookingID returns all outcomes for a booking, newest first
func (r *MemoryOutcomeRepository) GetByBookingID(ctx context.Context, bookingID string) ([]*SagaOutcome, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.byBooking[bookingID]
	if !ok || len(ids) == 0 {
		return nil, ErrOutcomeNotFound
	}

	result := make([]*SagaOutcome, 0, len(ids))
	for _, id := range ids {
		if o, exists := r.outcomes[id]; exists {
			copied := *o
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// ListDegraded returns degraded outcomes, oldest first
func (r *MemoryOutcomeRepository) ListDegraded(ctx context.Context, limit int) ([]*SagaOutcome, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*SagaOutcome
	for _, o := range r.outcomes {
		if o.Degraded {
			copied := *o
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
