package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"github.com/openmorph/metamorph/internal/domain"
)

// Compile-time check: Validator implements domain.TransitionValidator.
var _ domain.TransitionValidator = (*Validator)(nil)

// advanceEvent is the single event in the stage machine; each source
// stage has exactly one destination, so one event name covers the
// whole ladder.
const advanceEvent = "advance"

// events converts domain.Transitions into looplab/fsm EventDesc format,
// one entry per adjacent stage pair.
var events = buildEvents()

func buildEvents() []loopfsm.EventDesc {
	out := make([]loopfsm.EventDesc, 0, len(domain.Transitions))
	for _, t := range domain.Transitions {
		out = append(out, loopfsm.EventDesc{
			Name: advanceEvent,
			Src:  []string{t.Src.Name()},
			Dst:  t.Dst.Name(),
		})
	}
	return out
}

// Validator implements domain.TransitionValidator using looplab/fsm.
// It creates a short-lived FSM instance per Next call, initialized
// with the token's current stage. This is necessary because
// looplab/fsm is stateful (it tracks the current state internally).
type Validator struct{}

// New creates a new FSM-backed transition validator.
func New() *Validator {
	return &Validator{}
}

// Next returns the only stage reachable from current by a single-step
// advance. Returns a domain.InvalidTransitionError when current is the
// maximum stage (or outside the enumeration).
func (v *Validator) Next(ctx context.Context, current domain.Stage) (domain.Stage, error) {
	machine := loopfsm.NewFSM(current.Name(), events, nil)

	if err := machine.Event(ctx, advanceEvent); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &noTransition) {
			return 0, &domain.InvalidTransitionError{
				From: current,
				To:   current + 1,
			}
		}
		return 0, err
	}

	next, ok := domain.StageFromName(machine.Current())
	if !ok {
		return 0, &domain.InvalidTransitionError{From: current, To: current + 1}
	}
	return next, nil
}
