package saga

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrolink/fulfillment/internal/approval"
	"github.com/metrolink/fulfillment/internal/client"
	"github.com/metrolink/fulfillment/internal/domain"
	"github.com/metrolink/fulfillment/internal/events"
	"github.com/metrolink/fulfillment/internal/repository"
	"github.com/metrolink/fulfillment/pkg/singleflight"
)

// fakePayments implements client.PaymentAPI with injectable failures
type fakePayments struct {
	mu           sync.Mutex
	createCalls  int
	processCalls int
	createErr    error
	processErr   error
	rejectCharge bool
	createdIDs   []string
}

func (f *fakePayments) Create(ctx context.Context, req *client.CreatePaymentRequest) (*domain.PaymentAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdIDs = append(f.createdIDs, req.PaymentID)
	return &domain.PaymentAttempt{
		ID:        req.PaymentID,
		BookingID: req.BookingID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Method:    req.Method,
		Status:    domain.PaymentStatusCreated,
	}, nil
}

func (f *fakePayments) Process(ctx context.Context, req *client.ProcessPaymentRequest) (*domain.PaymentAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processCalls++
	if f.processErr != nil {
		return nil, f.processErr
	}
	status := domain.PaymentStatusSucceeded
	if f.rejectCharge {
		status = domain.PaymentStatusFailed
	}
	return &domain.PaymentAttempt{
		ID:            req.PaymentID,
		Status:        status,
		TransactionID: req.TransactionID,
	}, nil
}

// fakeBookings implements client.BookingAPI
type fakeBookings struct {
	mu           sync.Mutex
	confirmCalls int
	confirmErr   error
	booking      *domain.Booking
}

func (f *fakeBookings) Get(ctx context.Context, bookingID string) (*domain.Booking, error) {
	if f.booking == nil {
		return nil, domain.ErrBookingNotFound
	}
	return f.booking, nil
}

func (f *fakeBookings) Confirm(ctx context.Context, bookingID, paymentID string) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmCalls++
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return &domain.Booking{ID: bookingID, Status: domain.BookingStatusConfirmed}, nil
}

// fakeTickets implements client.TicketAPI; failFor rejects issuance for
// the named passengers.
type fakeTickets struct {
	mu          sync.Mutex
	createCalls int
	failFor     map[string]error
}

func (f *fakeTickets) Create(ctx context.Context, req *client.CreateTicketRequest) (*domain.Ticket, error) {
	f.mu.Lock()
	f.createCalls++
	f.mu.Unlock()
	if err, ok := f.failFor[req.PassengerName]; ok {
		return nil, err
	}
	return &domain.Ticket{
		ID:            "tkt-" + req.PassengerName,
		BookingID:     req.BookingID,
		PaymentID:     req.PaymentID,
		PassengerName: req.PassengerName,
		Status:        domain.TicketStatusActive,
		ValidFrom:     req.ValidFrom,
		ValidUntil:    req.ValidUntil,
	}, nil
}

// scriptedApprover returns a fixed outcome without running the simulator
type scriptedApprover struct {
	mu      sync.Mutex
	calls   int
	outcome approval.Outcome
	delay   time.Duration
}

func (a *scriptedApprover) RequestApproval(ctx context.Context, booking *domain.Booking, script approval.Script) approval.Outcome {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return approval.Outcome{Decision: approval.DecisionDeclined, Reason: "approval aborted: " + ctx.Err().Error()}
		}
	}
	return a.outcome
}

// capturePublisher records every published event
type capturePublisher struct {
	mu     sync.Mutex
	events []*events.FulfillmentEvent
}

func (p *capturePublisher) Publish(ctx context.Context, event *events.FulfillmentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) Close() {}

func (p *capturePublisher) last() *events.FulfillmentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}

type fixture struct {
	payments *fakePayments
	bookings *fakeBookings
	tickets  *fakeTickets
	approver *scriptedApprover
	outcomes *repository.MemoryOutcomeRepository
	events   *capturePublisher
	orch     *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		payments: &fakePayments{},
		bookings: &fakeBookings{},
		tickets:  &fakeTickets{},
		approver: &scriptedApprover{outcome: approval.Outcome{
			Decision:       approval.DecisionApproved,
			TransactionRef: "UPI1234",
		}},
		outcomes: repository.NewMemoryOutcomeRepository(),
		events:   &capturePublisher{},
	}
	f.orch = NewOrchestrator(
		singleflight.NewMemoryGuard(),
		f.approver,
		NewPaymentStep(f.payments, nil),
		NewBookingConfirmStep(f.bookings, nil),
		NewTicketIssuanceStep(f.tickets, time.Hour, nil),
		f.outcomes,
		f.events,
		&Config{StepTimeout: time.Second, RunTimeout: 5 * time.Second},
		nil,
	)
	return f
}

func testBooking(passengers int) *domain.Booking {
	b := &domain.Booking{
		ID:            "bk-001",
		BookingNumber: "MTL-2025-0001",
		RouteID:       "rt-1",
		ContactEmail:  "rider@example.com",
		ContactPhone:  "+919900000000",
		TotalAmount:   90,
		Currency:      "INR",
		Status:        domain.BookingStatusPaymentPending,
	}
	names := []string{"Asha", "Vikram", "Meera", "Dev"}
	for i := 0; i < passengers; i++ {
		b.Passengers = append(b.Passengers, domain.Passenger{
			FirstName: names[i%len(names)],
			LastName:  "Rao",
			Type:      domain.PassengerTypeAdult,
			Fare:      30,
		})
	}
	return b
}

func testRoute() *domain.Route {
	return &domain.Route{
		ID:            "rt-1",
		SourceStation: domain.Station{ID: "st-1", Name: "Central", Code: "CTL"},
		DestStation:   domain.Station{ID: "st-9", Name: "Airport", Code: "APT"},
		TransferCount: 1,
	}
}

func run(t *testing.T, f *fixture, booking *domain.Booking) *Result {
	t.Helper()
	res, err := f.orch.Run(context.Background(), &RunRequest{
		Booking:  booking,
		Route:    testRoute(),
		Method:   domain.PaymentMethodUPI,
		UPIID:    "rider@upi",
		Approval: approval.Script{Action: approval.ActionApprove},
	})
	require.NoError(t, err)
	return res
}

func TestRun_HappyPath(t *testing.T) {
	f := newFixture()
	res := run(t, f, testBooking(3))

	require.Equal(t, ResultCompleted, res.Kind)
	assert.True(t, res.BookingConfirmed)
	assert.Len(t, res.Tickets, 3)
	assert.Empty(t, res.TicketFailures)
	assert.False(t, res.Degraded())
	assert.Empty(t, res.Warnings())
	assert.Equal(t, "UPI1234", res.TransactionRef)
	assert.NotEmpty(t, res.PaymentID)

	assert.Equal(t, 1, f.payments.createCalls)
	assert.Equal(t, 1, f.payments.processCalls)
	assert.Equal(t, 1, f.bookings.confirmCalls)
	assert.Equal(t, 3, f.tickets.createCalls)

	event := f.events.last()
	require.NotNil(t, event)
	assert.Equal(t, "completed", event.EventType)

	saved, err := f.outcomes.GetByBookingID(context.Background(), "bk-001")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, string(ResultCompleted), saved[0].Kind)
	assert.False(t, saved[0].Degraded)
}

func TestRun_DeclineMakesNoPaymentCalls(t *testing.T) {
	f := newFixture()
	f.approver.outcome = approval.Outcome{
		Decision: approval.DecisionDeclined,
		Reason:   "declined by customer",
	}

	res := run(t, f, testBooking(1))

	require.Equal(t, ResultAborted, res.Kind)
	assert.Equal(t, "declined by customer", res.Reason)
	assert.Equal(t, 0, f.payments.createCalls)
	assert.Equal(t, 0, f.payments.processCalls)
	assert.Equal(t, 0, f.bookings.confirmCalls)
	assert.Equal(t, 0, f.tickets.createCalls)

	event := f.events.last()
	require.NotNil(t, event)
	assert.Equal(t, "aborted", event.EventType)
}

func TestRun_CancelAborts(t *testing.T) {
	f := newFixture()
	f.approver.outcome = approval.Outcome{
		Decision: approval.DecisionCancelled,
		Reason:   "cancelled by customer",
	}

	res := run(t, f, testBooking(1))

	require.Equal(t, ResultAborted, res.Kind)
	assert.Equal(t, 0, f.payments.createCalls)
}

func TestRun_ProcessFailureStopsDownstream(t *testing.T) {
	f := newFixture()
	f.payments.processErr = errors.New("gateway timeout")

	res := run(t, f, testBooking(2))

	require.Equal(t, ResultPaymentFailed, res.Kind)
	assert.Equal(t, 1, f.payments.createCalls)
	assert.Equal(t, 0, f.bookings.confirmCalls, "confirm must not run after a failed charge")
	assert.Equal(t, 0, f.tickets.createCalls, "tickets must not be issued after a failed charge")

	event := f.events.last()
	require.NotNil(t, event)
	assert.Equal(t, "failed", event.EventType)
}

func TestRun_GatewayRejectionIsPaymentFailed(t *testing.T) {
	f := newFixture()
	f.payments.rejectCharge = true

	res := run(t, f, testBooking(1))

	require.Equal(t, ResultPaymentFailed, res.Kind)
	assert.Contains(t, res.Reason, "payment step")
	assert.Equal(t, 0, f.tickets.createCalls)
}

func TestRun_ConfirmFailureStillIssuesTickets(t *testing.T) {
	f := newFixture()
	f.bookings.confirmErr = errors.New("booking service unavailable")

	res := run(t, f, testBooking(2))

	require.Equal(t, ResultCompleted, res.Kind, "a charged customer must never see a failure here")
	assert.False(t, res.BookingConfirmed)
	assert.Len(t, res.Tickets, 2)
	assert.True(t, res.Degraded())
	require.NotEmpty(t, res.Warnings())
	assert.Contains(t, res.Warnings()[0], "confirmation")

	event := f.events.last()
	require.NotNil(t, event)
	assert.Equal(t, "degraded", event.EventType)

	saved, err := f.outcomes.GetByBookingID(context.Background(), "bk-001")
	require.NoError(t, err)
	require.NotEmpty(t, saved)
	assert.True(t, saved[0].Degraded)
}

func TestRun_PartialTicketFailureIsCompletedWithWarnings(t *testing.T) {
	f := newFixture()
	f.tickets.failFor = map[string]error{"Meera Rao": errors.New("issuance rejected")}

	res := run(t, f, testBooking(3))

	require.Equal(t, ResultCompleted, res.Kind)
	assert.Len(t, res.Tickets, 2)
	require.Len(t, res.TicketFailures, 1)
	assert.Equal(t, "Meera Rao", res.TicketFailures[0].Passenger.FullName())
	assert.True(t, res.Degraded())
	assert.Contains(t, res.Warnings()[0], "2 of 3 tickets issued")
}

func TestRun_AllTicketsFailedIsStillCompleted(t *testing.T) {
	f := newFixture()
	f.tickets.failFor = map[string]error{
		"Asha Rao":   errors.New("down"),
		"Vikram Rao": errors.New("down"),
	}

	res := run(t, f, testBooking(2))

	require.Equal(t, ResultCompleted, res.Kind)
	assert.Empty(t, res.Tickets)
	assert.Len(t, res.TicketFailures, 2)
	assert.True(t, res.Degraded())
}

func TestRun_DuplicateInvocationIsNoOp(t *testing.T) {
	f := newFixture()
	f.approver.delay = 100 * time.Millisecond
	booking := testBooking(1)

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.orch.Run(context.Background(), &RunRequest{
				Booking:  booking,
				Route:    testRoute(),
				Method:   domain.PaymentMethodUPI,
				UPIID:    "rider@upi",
				Approval: approval.Script{Action: approval.ActionApprove},
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		require.NoError(t, errs[i])
	}

	kinds := map[ResultKind]int{}
	for _, res := range results {
		kinds[res.Kind]++
	}
	assert.Equal(t, 1, kinds[ResultCompleted])
	assert.Equal(t, 1, kinds[ResultDuplicate])
	assert.Equal(t, 1, f.payments.createCalls, "exactly one payment attempt for concurrent invocations")
}

func TestRun_GuardReleasedAfterCompletion(t *testing.T) {
	f := newFixture()
	booking := testBooking(1)

	first := run(t, f, booking)
	require.Equal(t, ResultCompleted, first.Kind)

	booking.Status = domain.BookingStatusPaymentPending
	second := run(t, f, booking)
	require.Equal(t, ResultCompleted, second.Kind, "the guard must be released once the run settles")
}

func TestRun_FreshAttemptIDPerRun(t *testing.T) {
	f := newFixture()
	f.payments.processErr = errors.New("gateway timeout")
	booking := testBooking(1)

	first := run(t, f, booking)
	require.Equal(t, ResultPaymentFailed, first.Kind)

	f.payments.mu.Lock()
	f.payments.processErr = nil
	f.payments.mu.Unlock()

	second := run(t, f, booking)
	require.Equal(t, ResultCompleted, second.Kind)

	require.Len(t, f.payments.createdIDs, 2)
	assert.NotEqual(t, f.payments.createdIDs[0], f.payments.createdIDs[1],
		"a retried saga must use a fresh payment attempt id")
}

func TestRun_GuardReleasedAfterAbort(t *testing.T) {
	f := newFixture()
	f.approver.outcome = approval.Outcome{Decision: approval.DecisionDeclined, Reason: "declined"}
	booking := testBooking(1)

	first := run(t, f, booking)
	require.Equal(t, ResultAborted, first.Kind)

	f.approver.outcome = approval.Outcome{Decision: approval.DecisionApproved, TransactionRef: "UPI9"}
	second := run(t, f, booking)
	require.Equal(t, ResultCompleted, second.Kind)
}

func TestRun_NonApprovalMethodSkipsApprover(t *testing.T) {
	f := newFixture()

	res, err := f.orch.Run(context.Background(), &RunRequest{
		Booking: testBooking(1),
		Route:   testRoute(),
		Method:  domain.PaymentMethodCard,
	})
	require.NoError(t, err)

	require.Equal(t, ResultCompleted, res.Kind)
	assert.Equal(t, 0, f.approver.calls)
	assert.Equal(t, 1, f.payments.processCalls)
}

func TestRun_RejectsUnfulfillableBooking(t *testing.T) {
	f := newFixture()
	booking := testBooking(1)
	booking.Status = domain.BookingStatusConfirmed

	_, err := f.orch.Run(context.Background(), &RunRequest{
		Booking: booking,
		Route:   testRoute(),
		Method:  domain.PaymentMethodUPI,
	})

	require.ErrorIs(t, err, domain.ErrBookingNotFulfillable)
	assert.Equal(t, 0, f.payments.createCalls)
}

func TestRun_RejectsMissingInput(t *testing.T) {
	f := newFixture()

	_, err := f.orch.Run(context.Background(), nil)
	require.Error(t, err)

	_, err = f.orch.Run(context.Background(), &RunRequest{Booking: testBooking(1)})
	require.Error(t, err, "route is required")
}

func TestRun_CallerDisconnectAfterApprovalStillCompletes(t *testing.T) {
	f := newFixture()
	booking := testBooking(1)

	// The caller's context dies the moment approval resolves; the charge
	// must still settle and tickets must still be issued.
	ctx, cancel := context.WithCancel(context.Background())
	f.approver.delay = 20 * time.Millisecond
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	res, err := f.orch.Run(ctx, &RunRequest{
		Booking:  booking,
		Route:    testRoute(),
		Method:   domain.PaymentMethodUPI,
		UPIID:    "rider@upi",
		Approval: approval.Script{Action: approval.ActionApprove},
	})
	require.NoError(t, err)

	require.Equal(t, ResultCompleted, res.Kind)
	assert.Equal(t, 1, f.tickets.createCalls)
}
