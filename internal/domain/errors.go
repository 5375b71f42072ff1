package domain

import "errors"

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindIllegalTransition
	KindAlreadyProcessed
	KindConflict
	KindNotFound
	KindUpstreamTimeout
	KindUpstreamFailure
	KindUnavailable
	KindCorruption
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindIllegalTransition:
		return "illegal_transition"
	case KindAlreadyProcessed:
		return "already_processed"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUpstreamTimeout:
		return "upstream_timeout"
	case KindUpstreamFailure:
		return "upstream_failure"
	case KindUnavailable:
		return "unavailable"
	case KindCorruption:
		return "corruption"
	default:
		return "internal"
	}
}

// Error is a classified domain failure. Values are compared by identity, so
// callers wrap them with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidRequest       = newError(KindValidation, "INVALID_REQUEST", "invalid request")
	ErrInvalidRptID         = newError(KindValidation, "INVALID_RPT_ID", "rpt id must be 11-digit fiscal code followed by 18-digit notice number")
	ErrInvalidAmount        = newError(KindValidation, "INVALID_AMOUNT", "amount out of range")
	ErrInvalidDescription   = newError(KindValidation, "INVALID_DESCRIPTION", "invalid payment notice description")
	ErrInvalidEmail         = newError(KindValidation, "INVALID_EMAIL", "invalid email")
	ErrInvalidClientID      = newError(KindValidation, "INVALID_CLIENT_ID", "unknown client id")
	ErrEmptyCart            = newError(KindValidation, "EMPTY_CART", "at least one payment notice is required")
	ErrCartTooLarge         = newError(KindValidation, "CART_TOO_LARGE", "too many payment notices")
	ErrDuplicateNotice      = newError(KindValidation, "DUPLICATE_NOTICE", "payment notice appears more than once")
	ErrAmountMismatch       = newError(KindValidation, "AMOUNT_MISMATCH", "authorization amount does not match payment notices total")
	ErrInvalidFee           = newError(KindValidation, "INVALID_FEE", "fee must not be negative")
	ErrInvalidGateway       = newError(KindValidation, "INVALID_GATEWAY", "unknown payment gateway")
	ErrInvalidOutcome       = newError(KindValidation, "INVALID_OUTCOME", "outcome must be OK or KO")
	ErrPspMismatch          = newError(KindValidation, "PSP_MISMATCH", "psp id does not match pending authorization")
	ErrGatewayTxnMismatch   = newError(KindValidation, "GATEWAY_TRANSACTION_MISMATCH", "gateway transaction id does not match pending authorization")
	ErrAuthorizationTimeout = newError(KindValidation, "AUTHORIZATION_TIMEOUT", "authorization outcome received after timeout")
	ErrNoticeNotPayable     = newError(KindValidation, "NOTICE_NOT_PAYABLE", "payment notice cannot be paid")

	ErrIllegalTransition = newError(KindIllegalTransition, "ALREADY_PROCESSED", "transaction state does not accept this operation")
	ErrAlreadyProcessed  = newError(KindAlreadyProcessed, "OPERATION_ALREADY_PROCESSED", "external operation already processed")

	ErrVersionConflict      = newError(KindConflict, "VERSION_CONFLICT", "event log advanced concurrently")
	ErrAlreadyLocked        = newError(KindConflict, "TRANSACTION_LOCKED", "transaction is being processed by another request")
	ErrConcurrencyExhausted = newError(KindConflict, "CONCURRENT_MODIFICATION", "transaction was modified concurrently, please retry")

	ErrTransactionNotFound = newError(KindNotFound, "TRANSACTION_NOT_FOUND", "transaction not found")
	ErrNotFound            = newError(KindNotFound, "RESOURCE_NOT_FOUND", "not found")

	ErrUpstreamTimeout = newError(KindUpstreamTimeout, "GATEWAY_TIMEOUT", "upstream collaborator did not respond")
	ErrUpstreamFailure = newError(KindUpstreamFailure, "BAD_GATEWAY", "upstream collaborator failed")

	ErrStoreUnavailable = newError(KindUnavailable, "STORE_UNAVAILABLE", "storage unavailable")

	ErrCorruptLog       = newError(KindCorruption, "CORRUPT_EVENT_LOG", "event log cannot be reduced")
	ErrUnknownEventKind = newError(KindCorruption, "UNKNOWN_EVENT_KIND", "unknown event kind")
	ErrUnknownSchema    = newError(KindCorruption, "UNKNOWN_SCHEMA_VERSION", "unknown event schema version")
	ErrViewNotFound     = newError(KindCorruption, "VIEW_NOT_FOUND", "projection view missing for non-initial event")
	ErrProjectionGap    = newError(KindCorruption, "PROJECTION_GAP", "projection is missing earlier events")
)

// KindOf returns the classification of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain, or "INTERNAL_ERROR".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "INTERNAL_ERROR"
}
