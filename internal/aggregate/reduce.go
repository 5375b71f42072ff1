package aggregate

import (
	"fmt"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

type Reason string

const (
	ReasonEmpty             Reason = "empty"
	ReasonIllegalTransition Reason = "illegal_transition"
	ReasonOutOfOrder        Reason = "out_of_order"
	ReasonForeignEvent      Reason = "foreign_event"
	ReasonInvalidPayload    Reason = "invalid_payload"
)

// ReductionError reports an event sequence that cannot be folded. Apart from
// ReasonEmpty it signals a broken log, never a bad request.
type ReductionError struct {
	Reason    Reason
	From      Status
	EventKind domain.EventKind
	Version   int64
	Detail    string
}

func (e *ReductionError) Error() string {
	switch e.Reason {
	case ReasonEmpty:
		return "reduce: no events"
	case ReasonIllegalTransition:
		return fmt.Sprintf("reduce: event %s (v%d) not valid in state %s", e.EventKind, e.Version, fromLabel(e.From))
	default:
		return fmt.Sprintf("reduce: %s at v%d: %s", e.Reason, e.Version, e.Detail)
	}
}

func (e *ReductionError) Unwrap() error {
	if e.Reason == ReasonEmpty {
		return domain.ErrTransactionNotFound
	}
	return domain.ErrCorruptLog
}

func fromLabel(s Status) string {
	if s == "" {
		return "<none>"
	}
	return string(s)
}

// Reduce folds a complete log, ordered by version starting at 1, into the
// current state.
func Reduce(events []domain.Event) (Transaction, error) {
	if len(events) == 0 {
		return nil, &ReductionError{Reason: ReasonEmpty}
	}
	for i, ev := range events {
		if ev.Version != int64(i+1) {
			return nil, &ReductionError{
				Reason:    ReasonOutOfOrder,
				EventKind: ev.Kind(),
				Version:   ev.Version,
				Detail:    fmt.Sprintf("expected version %d", i+1),
			}
		}
	}
	return Fold(nil, events)
}

// Fold applies events on top of state. A nil state means no events yet.
// Fold(Fold(nil, a), b) equals Fold(nil, append(a, b...)).
func Fold(state Transaction, events []domain.Event) (Transaction, error) {
	for _, ev := range events {
		next, err := Apply(state, ev)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}

// Apply advances state by a single event.
func Apply(state Transaction, ev domain.Event) (Transaction, error) {
	if state != nil && state.ID() != ev.TransactionID {
		return nil, &ReductionError{
			Reason:    ReasonForeignEvent,
			From:      state.Status(),
			EventKind: ev.Kind(),
			Version:   ev.Version,
			Detail:    fmt.Sprintf("event belongs to %s, state to %s", ev.TransactionID, state.ID()),
		}
	}

	next, ok, err := transition(state, ev)
	if err != nil {
		return nil, &ReductionError{
			Reason:    ReasonInvalidPayload,
			From:      statusOf(state),
			EventKind: ev.Kind(),
			Version:   ev.Version,
			Detail:    err.Error(),
		}
	}
	if !ok {
		return nil, &ReductionError{
			Reason:    ReasonIllegalTransition,
			From:      statusOf(state),
			EventKind: ev.Kind(),
			Version:   ev.Version,
		}
	}
	return next, nil
}

func statusOf(state Transaction) Status {
	if state == nil {
		return ""
	}
	return state.Status()
}

// transition dispatches on (state, event kind). ok is false when the pair is
// not a legal edge of the state machine.
func transition(state Transaction, ev domain.Event) (Transaction, bool, error) {
	at := ev.CreatedAt

	switch s := state.(type) {
	case nil:
		if d, ok := ev.Data.(domain.ActivationRequestedData); ok {
			return NewActivationRequested(ev.TransactionID, d, at), true, nil
		}

	case ActivationRequested:
		if d, ok := ev.Data.(domain.ActivatedData); ok {
			next, err := Activate(s, d, at)
			return next, true, err
		}

	case Activated:
		switch d := ev.Data.(type) {
		case domain.AuthorizationRequestedData:
			return RequestAuthorization(s, d, at), true, nil
		case domain.UserCanceledData:
			return CancelActivated(s, at), true, nil
		}

	case AuthorizationRequested:
		switch d := ev.Data.(type) {
		case domain.AuthorizationCompletedData:
			return CompleteAuthorization(s, d, at), true, nil
		case domain.UserCanceledData:
			return CancelAuthorizationRequested(s, at), true, nil
		}

	case AuthorizationCompleted:
		switch d := ev.Data.(type) {
		case domain.ClosureRequestedData:
			if s.AuthorizationResult.Outcome == domain.OutcomeOK {
				return RequestClosure(s, at), true, nil
			}
		case domain.RefundRequestedData:
			if s.AuthorizationResult.Outcome == domain.OutcomeKO {
				return RequestRefundAfterAuthorization(s, d, at), true, nil
			}
		}

	case ClosureRequested:
		switch d := ev.Data.(type) {
		case domain.ClosedData:
			return Close(s, d, at), true, nil
		case domain.ClosureFailedData:
			return FailClosure(s, d, at), true, nil
		}

	case Closed:
		switch d := ev.Data.(type) {
		case domain.UserReceiptAddedData:
			if s.Closure.Outcome == domain.OutcomeOK {
				return AddUserReceipt(s, d, at), true, nil
			}
		case domain.RefundRequestedData:
			if s.Closure.Outcome == domain.OutcomeKO {
				return RequestRefundAfterClosure(s, d, at), true, nil
			}
		}

	case ClosureError:
		switch d := ev.Data.(type) {
		case domain.ClosureRequestedData:
			return RetryClosure(s, at), true, nil
		case domain.RefundRequestedData:
			return RequestRefundAfterClosureError(s, d, at), true, nil
		}

	case RefundRequested:
		switch d := ev.Data.(type) {
		case domain.RefundedData:
			return CompleteRefund(s, d, at), true, nil
		case domain.RefundFailedData:
			return FailRefund(s, d, at), true, nil
		}

	case RefundError:
		if d, ok := ev.Data.(domain.RefundRequestedData); ok {
			return RetryRefund(s, d, at), true, nil
		}
	}

	return nil, false, nil
}
