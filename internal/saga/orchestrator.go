// Package saga sequences the booking-fulfillment flow: approval, payment,
// booking confirmation and ticket issuance are separate network calls to
// independently-failable services, with no shared transaction to lean on.
// The orchestrator decides continue/abort at each step and always resolves
// to a single terminal Result; raw transport errors never escape to the
// caller.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/metrolink/fulfillment/internal/approval"
	"github.com/metrolink/fulfillment/internal/domain"
	"github.com/metrolink/fulfillment/internal/events"
	"github.com/metrolink/fulfillment/internal/repository"
	"github.com/metrolink/fulfillment/pkg/singleflight"
	"github.com/metrolink/fulfillment/pkg/telemetry"
)

// Approver obtains the terminal approval outcome for a payment method
// that needs one. Tests substitute this to force either branch.
type Approver interface {
	RequestApproval(ctx context.Context, booking *domain.Booking, script approval.Script) approval.Outcome
}

// SimulatedApprover runs a fresh approval simulator per request
type SimulatedApprover struct {
	cfg *approval.Config
}

// NewSimulatedApprover creates the default approver
func NewSimulatedApprover(cfg *approval.Config) *SimulatedApprover {
	return &SimulatedApprover{cfg: cfg}
}

// RequestApproval runs one simulator to its terminal outcome
func (a *SimulatedApprover) RequestApproval(ctx context.Context, booking *domain.Booking, script approval.Script) approval.Outcome {
	sim := approval.NewSimulator(a.cfg)
	return sim.RunScripted(ctx, script)
}

// Config tunes the orchestrator
type Config struct {
	// StepTimeout bounds each collaborator step
	StepTimeout time.Duration
	// RunTimeout bounds a whole run, approval included
	RunTimeout time.Duration
}

// DefaultConfig returns the orchestrator defaults
func DefaultConfig() *Config {
	return &Config{
		StepTimeout: 15 * time.Second,
		RunTimeout:  2 * time.Minute,
	}
}

// RunRequest carries everything a run needs. Booking and route context
// are explicit parameters, never ambient state, so sagas for different
// bookings run concurrently and server-side without any shared store.
type RunRequest struct {
	Booking  *domain.Booking
	Route    *domain.Route
	Method   domain.PaymentMethod
	UPIID    string
	Approval approval.Script
}

// Orchestrator runs the fulfillment saga for one booking at a time
// (enforced by the single-flight guard); runs for different bookings are
// fully independent.
type Orchestrator struct {
	guard    singleflight.Guard
	approver Approver
	payment  *PaymentStep
	confirm  *BookingConfirmStep
	tickets  *TicketIssuanceStep
	outcomes repository.OutcomeRepository
	events   events.Publisher
	cfg      *Config
	logger   *zap.Logger
}

// NewOrchestrator wires the saga
func NewOrchestrator(
	guard singleflight.Guard,
	approver Approver,
	payment *PaymentStep,
	confirm *BookingConfirmStep,
	tickets *TicketIssuanceStep,
	outcomes repository.OutcomeRepository,
	publisher events.Publisher,
	cfg *Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultConfig().StepTimeout
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultConfig().RunTimeout
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		guard:    guard,
		approver: approver,
		payment:  payment,
		confirm:  confirm,
		tickets:  tickets,
		outcomes: outcomes,
		events:   publisher,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes the saga to a terminal Result. The error return is
// reserved for caller mistakes (nil booking, unfulfillable state) and
// guard backend failures; every collaborator failure resolves into the
// Result instead.
func (o *Orchestrator) Run(ctx context.Context, req *RunRequest) (*Result, error) {
	if req == nil || req.Booking == nil {
		return nil, errors.New("saga: run request requires a booking")
	}
	if req.Route == nil {
		return nil, errors.New("saga: run request requires a route")
	}
	booking := req.Booking
	if err := booking.Validate(); err != nil {
		return nil, fmt.Errorf("saga: booking %s: %w", booking.ID, err)
	}
	if !booking.CanFulfill() {
		return nil, fmt.Errorf("saga: booking %s in status %s: %w",
			booking.ID, booking.Status, domain.ErrBookingNotFulfillable)
	}

	// Single-flight: a duplicate invocation (double submit, double click)
	// is a no-op, not an error; the first run is already progressing.
	acquired, err := o.guard.TryAcquire(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("saga: booking %s: %w", booking.ID, err)
	}
	if !acquired {
		o.logger.Info("fulfillment already in flight, ignoring duplicate run",
			zap.String("booking_id", booking.ID))
		return &Result{Kind: ResultDuplicate, BookingID: booking.ID, FinishedAt: time.Now().UTC()}, nil
	}
	// Release on every exit path. The run may outlive the caller's
	// context, so the release must not depend on it.
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := o.guard.Release(releaseCtx, booking.ID); err != nil {
			o.logger.Error("failed to release fulfillment guard",
				zap.String("booking_id", booking.ID), zap.Error(err))
		}
	}()

	ctx, span := telemetry.StartSpan(ctx, "fulfillment.run",
		trace.WithAttributes(
			attribute.String("booking.id", booking.ID),
			attribute.String("payment.method", string(req.Method)),
		))
	defer span.End()

	o.logger.Info("fulfillment run started",
		zap.String("booking_id", booking.ID),
		zap.String("booking_number", booking.BookingNumber),
		zap.String("method", string(req.Method)),
		zap.Int("passengers", len(booking.Passengers)))

	// Phase 1: approval. UPI-style methods need the customer's explicit
	// approval first; a decline, cancel or expiry aborts before any
	// payment collaborator call is made.
	outcome := approval.Outcome{Decision: approval.DecisionApproved}
	if req.Method.RequiresApproval() {
		approvalCtx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
		outcome = o.approver.RequestApproval(approvalCtx, booking, req.Approval)
		cancel()
		if !outcome.Approved() {
			res := &Result{
				Kind:       ResultAborted,
				BookingID:  booking.ID,
				Reason:     outcome.Reason,
				FinishedAt: time.Now().UTC(),
			}
			return o.finish(ctx, res), nil
		}
	}

	// Once payment begins the saga runs to completion regardless of the
	// caller's lifetime: a charged customer must never be stranded by a
	// closed connection.
	runCtx, cancelRun := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.RunTimeout)
	defer cancelRun()

	// Phase 2: payment. Failure here is terminal; nothing downstream is
	// attempted.
	payCtx, cancelPay := context.WithTimeout(runCtx, o.cfg.StepTimeout)
	attempt, err := o.payment.CreateAndProcess(payCtx, booking, req.Method, req.UPIID, outcome)
	cancelPay()
	if err != nil {
		o.logger.Warn("fulfillment payment failed",
			zap.String("booking_id", booking.ID), zap.Error(err))
		res := &Result{
			Kind:       ResultPaymentFailed,
			BookingID:  booking.ID,
			Reason:     err.Error(),
			FinishedAt: time.Now().UTC(),
		}
		if attempt != nil {
			res.PaymentID = attempt.ID
		}
		return o.finish(ctx, res), nil
	}

	res := &Result{
		Kind:           ResultCompleted,
		BookingID:      booking.ID,
		PaymentID:      attempt.ID,
		TransactionRef: attempt.TransactionID,
	}

	// Phase 3: confirm. The customer is charged; a confirmation failure
	// downgrades to a warning and the saga proceeds to issuance, because
	// aborting after the charge would be worse.
	confirmCtx, cancelConfirm := context.WithTimeout(runCtx, o.cfg.StepTimeout)
	confirmErr := o.confirm.Confirm(confirmCtx, booking.ID, attempt.ID)
	cancelConfirm()
	if confirmErr != nil {
		o.logger.Warn("booking confirmation failed after successful payment",
			zap.String("booking_id", booking.ID),
			zap.String("payment_id", attempt.ID),
			zap.Error(confirmErr))
	} else {
		res.BookingConfirmed = true
	}

	// Phase 4: tickets, unconditionally once payment succeeded.
	issueCtx, cancelIssue := context.WithTimeout(runCtx, o.cfg.StepTimeout)
	report := o.tickets.IssueAll(issueCtx, booking, attempt.ID, req.Route)
	cancelIssue()
	res.Tickets = report.Issued
	res.TicketFailures = report.Failed
	res.FinishedAt = time.Now().UTC()

	if report.AllFailed() {
		o.logger.Error("all ticket issuance calls failed after successful payment",
			zap.String("booking_id", booking.ID),
			zap.String("payment_id", attempt.ID))
	}

	return o.finish(ctx, res), nil
}

// finish records and publishes the terminal result. Both are best-effort:
// a lost audit row or event never changes the result handed to the
// caller.
func (o *Orchestrator) finish(ctx context.Context, res *Result) *Result {
	if res.FinishedAt.IsZero() {
		res.FinishedAt = time.Now().UTC()
	}

	o.logger.Info("fulfillment run finished",
		zap.String("booking_id", res.BookingID),
		zap.String("kind", string(res.Kind)),
		zap.Bool("booking_confirmed", res.BookingConfirmed),
		zap.Int("tickets_issued", res.TicketsIssued()),
		zap.Int("tickets_failed", res.TicketsFailed()))

	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if o.outcomes != nil {
		outcome := repository.NewSagaOutcome(res.BookingID)
		outcome.PaymentID = res.PaymentID
		outcome.Kind = string(res.Kind)
		outcome.BookingConfirmed = res.BookingConfirmed
		outcome.TicketsIssued = res.TicketsIssued()
		outcome.TicketsFailed = res.TicketsFailed()
		outcome.Degraded = res.Degraded()
		outcome.Reason = res.Reason
		if err := o.outcomes.Save(sideCtx, outcome); err != nil {
			o.logger.Error("failed to record saga outcome",
				zap.String("booking_id", res.BookingID), zap.Error(err))
		}
	}

	event := &events.FulfillmentEvent{
		EventType:        eventType(res),
		BookingID:        res.BookingID,
		PaymentID:        res.PaymentID,
		BookingConfirmed: res.BookingConfirmed,
		TicketsIssued:    res.TicketsIssued(),
		TicketsFailed:    res.TicketsFailed(),
		Reason:           res.Reason,
		Timestamp:        res.FinishedAt,
	}
	if err := o.events.Publish(sideCtx, event); err != nil {
		o.logger.Error("failed to publish fulfillment event",
			zap.String("booking_id", res.BookingID), zap.Error(err))
	}

	return res
}

func eventType(res *Result) string {
	switch {
	case res.Kind == ResultAborted:
		return "aborted"
	case res.Kind == ResultPaymentFailed:
		return "failed"
	case res.Degraded():
		return "degraded"
	default:
		return "completed"
	}
}
