package approval

import (
	"context"
	"time"
)

// Action is a scripted customer decision for a simulator run
type Action string

const (
	ActionApprove Action = "approve"
	ActionDecline Action = "decline"
	ActionCancel  Action = "cancel"
	// ActionNone lets the countdown expire into an implicit decline
	ActionNone Action = "none"
)

// Script drives a simulator run without an interactive customer: the
// action fires After the approval screen has been reached. Used by the
// HTTP entry point, where the caller supplies the decision up front.
type Script struct {
	Action Action        `json:"action"`
	After  time.Duration `json:"after"`
}

// RunScripted runs the simulator, applying the scripted decision once the
// run is underway. With ActionNone no input is ever sent.
func (s *Simulator) RunScripted(ctx context.Context, script Script) Outcome {
	if script.Action != ActionNone && script.Action != "" {
		timer := time.AfterFunc(s.cfg.OpenDelay+script.After, func() {
			switch script.Action {
			case ActionApprove:
				s.Approve()
			case ActionDecline:
				s.Decline()
			case ActionCancel:
				s.Cancel()
			}
		})
		defer timer.Stop()
	}
	return s.Run(ctx)
}
