package saga

import (
	"fmt"
	"time"

	"github.com/metrolink/fulfillment/internal/domain"
)

// ResultKind classifies the terminal outcome of a fulfillment run
type ResultKind string

const (
	// ResultCompleted means payment succeeded; confirmation and ticket
	// issuance may still be partially degraded (see Degraded).
	ResultCompleted ResultKind = "completed"
	// ResultPaymentFailed means payment creation or processing failed;
	// nothing downstream was attempted.
	ResultPaymentFailed ResultKind = "payment_failed"
	// ResultAborted means approval was declined, cancelled or timed out
	// before any payment collaborator call was made.
	ResultAborted ResultKind = "aborted"
	// ResultDuplicate means another run already holds the booking's
	// in-flight flag; this invocation was a no-op.
	ResultDuplicate ResultKind = "duplicate"
)

// TicketFailure records one passenger whose ticket issuance failed
type TicketFailure struct {
	Passenger domain.Passenger `json:"passenger"`
	Error     string           `json:"error"`
}

// Result is the sole output of a fulfillment run; intermediate saga state
// is never exposed to callers.
type Result struct {
	Kind             ResultKind       `json:"kind"`
	BookingID        string           `json:"booking_id"`
	PaymentID        string           `json:"payment_id,omitempty"`
	TransactionRef   string           `json:"transaction_ref,omitempty"`
	BookingConfirmed bool             `json:"booking_confirmed"`
	Tickets          []*domain.Ticket `json:"tickets,omitempty"`
	TicketFailures   []TicketFailure  `json:"ticket_failures,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	FinishedAt       time.Time        `json:"finished_at"`
}

// TicketsIssued returns the number of tickets successfully issued
func (r *Result) TicketsIssued() int { return len(r.Tickets) }

// TicketsFailed returns the number of failed issuance calls
func (r *Result) TicketsFailed() int { return len(r.TicketFailures) }

// Degraded reports whether the customer was charged but something
// downstream did not fully complete. A degraded run is still a success
// from the customer's point of view and must never be reported as a
// failure; the warnings exist so the remainder can be reconciled.
func (r *Result) Degraded() bool {
	if r.Kind != ResultCompleted {
		return false
	}
	return !r.BookingConfirmed || len(r.TicketFailures) > 0
}

// Warnings renders the degraded details for the caller
func (r *Result) Warnings() []string {
	if !r.Degraded() {
		return nil
	}
	var warnings []string
	if !r.BookingConfirmed {
		warnings = append(warnings, "payment succeeded but booking confirmation failed; confirmation pending reconciliation")
	}
	if n := len(r.TicketFailures); n > 0 {
		total := n + len(r.Tickets)
		if len(r.Tickets) == 0 {
			warnings = append(warnings, fmt.Sprintf("payment succeeded but all %d ticket issuance calls failed", total))
		} else {
			warnings = append(warnings, fmt.Sprintf("%d of %d tickets issued; %d pending reconciliation", len(r.Tickets), total, n))
		}
	}
	return warnings
}
