// Package approval simulates the external, human-mediated approval flow a
// UPI-style payment goes through before it can be processed. There is no
// real gateway behind it: a timed state machine stands in for the customer
// opening their payment app and approving or declining the charge.
package approval

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// State is the current state of the approval state machine
type State string

const (
	StateRequesting State = "requesting"
	StateApproval   State = "approval"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Decision is the terminal decision of an approval run
type Decision string

const (
	// DecisionApproved means the customer approved and the gateway accepted the charge
	DecisionApproved Decision = "approved"
	// DecisionDeclined covers explicit declines, countdown expiry and gateway rejection
	DecisionDeclined Decision = "declined"
	// DecisionCancelled means the caller cancelled from the approval screen
	DecisionCancelled Decision = "cancelled"
)

// Outcome is the single terminal event emitted by a simulator run.
// It is transient: produced exactly once, never persisted.
type Outcome struct {
	Decision       Decision `json:"decision"`
	TransactionRef string   `json:"transaction_ref,omitempty"`
	Reason         string   `json:"reason,omitempty"`
}

// Approved reports whether the run ended with an accepted charge
func (o Outcome) Approved() bool {
	return o.Decision == DecisionApproved
}

// Config tunes the simulator's timing and stochastic outcome
type Config struct {
	// OpenDelay simulates the payment app opening (Requesting -> Approval)
	OpenDelay time.Duration
	// ApprovalWindow is the countdown; expiry is an implicit decline
	ApprovalWindow time.Duration
	// ProcessingDelay simulates gateway processing after approval
	ProcessingDelay time.Duration
	// SuccessRate is the probability the gateway accepts an approved charge
	SuccessRate float64
	// Rand overrides the random source so tests can force either branch
	Rand func() float64
}

// DefaultConfig returns the demo timing used by the original flow
func DefaultConfig() *Config {
	return &Config{
		OpenDelay:       2 * time.Second,
		ApprovalWindow:  10 * time.Second,
		ProcessingDelay: 2 * time.Second,
		SuccessRate:     0.95,
	}
}

type inputKind int

const (
	inputApprove inputKind = iota
	inputDecline
	inputCancel
)

// Simulator drives a single approval run. A Simulator is single-use:
// Run may be called once, and exactly one terminal outcome is produced.
type Simulator struct {
	cfg    *Config
	rand   func() float64
	inputs chan inputKind

	mu    sync.RWMutex
	state State
}

// NewSimulator creates a simulator and applies config defaults. The
// config is copied: simulators for concurrent runs may share one.
func NewSimulator(in *Config) *Simulator {
	if in == nil {
		in = DefaultConfig()
	}
	cfg := &Config{}
	*cfg = *in
	def := DefaultConfig()
	if cfg.OpenDelay <= 0 {
		cfg.OpenDelay = def.OpenDelay
	}
	if cfg.ApprovalWindow <= 0 {
		cfg.ApprovalWindow = def.ApprovalWindow
	}
	if cfg.ProcessingDelay <= 0 {
		cfg.ProcessingDelay = def.ProcessingDelay
	}
	if cfg.SuccessRate <= 0 || cfg.SuccessRate > 1 {
		cfg.SuccessRate = def.SuccessRate
	}

	randFn := cfg.Rand
	if randFn == nil {
		randFn = rand.Float64
	}

	return &Simulator{
		cfg:    cfg,
		rand:   randFn,
		inputs: make(chan inputKind, 1),
		state:  StateRequesting,
	}
}

// State returns the current state of the run
func (s *Simulator) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Simulator) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Approve records the customer's explicit approval. Effective only while
// the run is in the approval state; later calls are ignored.
func (s *Simulator) Approve() { s.send(inputApprove) }

// Decline records the customer's explicit decline
func (s *Simulator) Decline() { s.send(inputDecline) }

// Cancel aborts from the approval screen. Once processing has started the
// charge can no longer be aborted and Cancel has no effect.
func (s *Simulator) Cancel() { s.send(inputCancel) }

func (s *Simulator) send(in inputKind) {
	select {
	case s.inputs <- in:
	default:
		// An input is already queued or the run is terminal; drop it.
	}
}

// Run executes the state machine to its single terminal outcome:
// Requesting -> Approval(countdown) -> Processing -> Success | Failed,
// with Cancel available from Approval only. Every timer is stopped the
// instant a terminal transition fires. A ctx timeout is treated as a
// decline, never as success.
func (s *Simulator) Run(ctx context.Context) Outcome {
	// Requesting: the payment app is opening
	open := time.NewTimer(s.cfg.OpenDelay)
	select {
	case <-ctx.Done():
		open.Stop()
		return s.terminal(StateFailed, Outcome{
			Decision: DecisionDeclined,
			Reason:   "approval aborted: " + ctx.Err().Error(),
		})
	case <-open.C:
	}

	// Approval: countdown running, three ways out
	s.setState(StateApproval)
	countdown := time.NewTimer(s.cfg.ApprovalWindow)
	defer countdown.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.terminal(StateFailed, Outcome{
				Decision: DecisionDeclined,
				Reason:   "approval aborted: " + ctx.Err().Error(),
			})
		case <-countdown.C:
			// Countdown reached zero: implicit decline
			return s.terminal(StateFailed, Outcome{
				Decision: DecisionDeclined,
				Reason:   "approval request expired",
			})
		case in := <-s.inputs:
			countdown.Stop()
			switch in {
			case inputDecline:
				return s.terminal(StateFailed, Outcome{
					Decision: DecisionDeclined,
					Reason:   "declined by customer",
				})
			case inputCancel:
				return s.terminal(StateCancelled, Outcome{
					Decision: DecisionCancelled,
					Reason:   "cancelled by customer",
				})
			case inputApprove:
				return s.process(ctx)
			}
		}
	}
}

// process simulates gateway processing of an approved charge
func (s *Simulator) process(ctx context.Context) Outcome {
	s.setState(StateProcessing)
	proc := time.NewTimer(s.cfg.ProcessingDelay)
	defer proc.Stop()

	select {
	case <-ctx.Done():
		return s.terminal(StateFailed, Outcome{
			Decision: DecisionDeclined,
			Reason:   "gateway processing aborted: " + ctx.Err().Error(),
		})
	case <-proc.C:
	}

	if s.rand() < s.cfg.SuccessRate {
		return s.terminal(StateSuccess, Outcome{
			Decision:       DecisionApproved,
			TransactionRef: newTransactionRef(),
		})
	}
	return s.terminal(StateFailed, Outcome{
		Decision: DecisionDeclined,
		Reason:   "transaction declined by bank",
	})
}

func (s *Simulator) terminal(state State, out Outcome) Outcome {
	s.setState(state)
	return out
}

// newTransactionRef synthesizes a UPI-style transaction reference
func newTransactionRef() string {
	return fmt.Sprintf("UPI%d%04d", time.Now().UnixMilli(), rand.Intn(10000))
}
