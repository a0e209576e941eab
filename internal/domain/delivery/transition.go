package delivery

import (
	"fmt"
	"time"
)

// IllegalTransitionError is returned for a workflow request the current state
// cannot accept.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal delivery request transition %s -> %s", e.From, e.To)
}

// CutoffExpiredError is returned when a user-initiated cancellation arrives
// inside the cutoff window before the slot start.
type CutoffExpiredError struct {
	SlotStart time.Time
	Cutoff    time.Duration
}

func (e CutoffExpiredError) Error() string {
	return fmt.Sprintf("cancellation cutoff expired: slot starts %s, cutoff window %s",
		e.SlotStart.Format(time.RFC3339), e.Cutoff)
}

// Advance decides a forward transition (confirm, prepare, markReady, fulfill).
// It returns already=true when the request has reached or passed the target
// state, which callers absorb as an idempotent no-op success.
func Advance(state State, target Status) (already bool, err error) {
	if state.Status == StatusCancelled {
		return false, IllegalTransitionError{From: state.Status, To: target}
	}
	current := state.Status.rank()
	want := target.rank()
	if want < 1 || want > 4 {
		return false, IllegalTransitionError{From: state.Status, To: target}
	}
	if current >= want {
		return true, nil
	}
	if current != want-1 {
		return false, IllegalTransitionError{From: state.Status, To: target}
	}
	return false, nil
}

// Cancel decides a cancellation. Re-cancelling is an idempotent no-op;
// cancelling a fulfilled request is illegal. The cutoff rule applies only to
// user actors; slotStart may be zero when the slot is unknown, in which case
// the cutoff check is skipped.
func Cancel(state State, actor ActorType, slotStart time.Time, cutoff time.Duration, now time.Time) (already bool, err error) {
	if state.Status == StatusCancelled {
		return true, nil
	}
	if state.Status == StatusFulfilled {
		return false, IllegalTransitionError{From: state.Status, To: StatusCancelled}
	}
	if actor == ActorUser && cutoff > 0 && !slotStart.IsZero() {
		if slotStart.Sub(now) < cutoff {
			return false, CutoffExpiredError{SlotStart: slotStart, Cutoff: cutoff}
		}
	}
	return false, nil
}

// CanChangeSlot reports whether a slot change is legal from the current
// state. Rescheduling is allowed while the box has not entered preparation.
func CanChangeSlot(state State) error {
	switch state.Status {
	case StatusPending, StatusConfirmed:
		return nil
	}
	return IllegalTransitionError{From: state.Status, To: state.Status}
}
