package saga

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/metrolink/fulfillment/internal/client"
	"github.com/metrolink/fulfillment/internal/domain"
)

// TicketIssuanceStep issues one ticket per passenger. The per-passenger
// calls run concurrently with all-settle semantics: every call finishes,
// success or failure, before the step returns, and one malformed
// passenger record never blocks ticket delivery for the rest of the
// party.
type TicketIssuanceStep struct {
	tickets  client.TicketAPI
	validity time.Duration
	logger   *zap.Logger
}

// IssueReport is the partition of issuance outcomes. Partial failure is
// not an error; only a total outage (AllFailed) warrants the stronger
// warning.
type IssueReport struct {
	Issued []*domain.Ticket
	Failed []TicketFailure
}

// AllFailed reports a total collaborator outage: every call failed
func (r *IssueReport) AllFailed() bool {
	return len(r.Issued) == 0 && len(r.Failed) > 0
}

// NewTicketIssuanceStep creates the issuance step
func NewTicketIssuanceStep(tickets client.TicketAPI, validity time.Duration, logger *zap.Logger) *TicketIssuanceStep {
	if validity <= 0 {
		validity = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketIssuanceStep{tickets: tickets, validity: validity, logger: logger}
}

// IssueAll dispatches one issuance call per passenger and waits for every
// one of them. It never fails for partial failure; the report carries the
// full partition.
func (s *TicketIssuanceStep) IssueAll(
	ctx context.Context,
	booking *domain.Booking,
	paymentID string,
	route *domain.Route,
) *IssueReport {
	type settled struct {
		ticket *domain.Ticket
		err    error
	}

	validFrom := time.Now().UTC()
	validUntil := validFrom.Add(s.validity)

	results := make([]settled, len(booking.Passengers))
	var wg sync.WaitGroup
	for i := range booking.Passengers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := s.buildRequest(booking, &booking.Passengers[i], paymentID, route, validFrom, validUntil)
			ticket, err := s.tickets.Create(ctx, req)
			results[i] = settled{ticket: ticket, err: err}
		}(i)
	}
	wg.Wait()

	report := &IssueReport{}
	for i, res := range results {
		if res.err != nil {
			report.Failed = append(report.Failed, TicketFailure{
				Passenger: booking.Passengers[i],
				Error:     res.err.Error(),
			})
			continue
		}
		report.Issued = append(report.Issued, res.ticket)
	}

	s.logger.Info("ticket issuance settled",
		zap.String("booking_id", booking.ID),
		zap.String("payment_id", paymentID),
		zap.Int("issued", len(report.Issued)),
		zap.Int("failed", len(report.Failed)))
	return report
}

func (s *TicketIssuanceStep) buildRequest(
	booking *domain.Booking,
	passenger *domain.Passenger,
	paymentID string,
	route *domain.Route,
	validFrom, validUntil time.Time,
) *client.CreateTicketRequest {
	return &client.CreateTicketRequest{
		BookingID:      booking.ID,
		BookingNumber:  booking.BookingNumber,
		PaymentID:      paymentID,
		PassengerName:  passenger.FullName(),
		PassengerType:  string(passenger.Type),
		PassengerPhone: booking.ContactPhone,
		PassengerEmail: booking.ContactEmail,
		SourceStation:  route.SourceStation,
		DestStation:    route.DestStation,
		RouteID:        route.ID,
		RouteName:      route.Name,
		RouteCode:      route.Code,
		TransportMode:  route.TransportMode,
		Fare:           passenger.Fare,
		Currency:       booking.Currency,
		ValidFrom:      validFrom,
		ValidUntil:     validUntil,
		MaxUsageCount:  1,
		AllowsTransfer: route.TransferCount > 0,
		MaxTransfers:   route.TransferCount,
	}
}
