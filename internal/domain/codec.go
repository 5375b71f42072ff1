package domain

import (
	"encoding/json"
	"fmt"
)

// currentSchema is the schema version written for each event kind. Bump it
// when a payload changes shape and register an upcaster from the old version.
var currentSchema = map[EventKind]int{
	EventActivationRequested:    2,
	EventActivated:              1,
	EventAuthorizationRequested: 1,
	EventAuthorizationCompleted: 1,
	EventClosureRequested:       1,
	EventClosed:                 1,
	EventClosureFailed:          1,
	EventUserReceiptAdded:       1,
	EventUserCanceled:           1,
	EventRefundRequested:        1,
	EventRefunded:               1,
	EventRefundFailed:           1,
}

type upcastKey struct {
	kind    EventKind
	version int
}

// upcasters rewrite a payload from version N to N+1.
var upcasters = map[upcastKey]func(json.RawMessage) (json.RawMessage, error){
	{EventActivationRequested, 1}: upcastActivationRequestedV1,
}

func newEventData(kind EventKind) (EventData, error) {
	switch kind {
	case EventActivationRequested:
		return &ActivationRequestedData{}, nil
	case EventActivated:
		return &ActivatedData{}, nil
	case EventAuthorizationRequested:
		return &AuthorizationRequestedData{}, nil
	case EventAuthorizationCompleted:
		return &AuthorizationCompletedData{}, nil
	case EventClosureRequested:
		return &ClosureRequestedData{}, nil
	case EventClosed:
		return &ClosedData{}, nil
	case EventClosureFailed:
		return &ClosureFailedData{}, nil
	case EventUserReceiptAdded:
		return &UserReceiptAddedData{}, nil
	case EventUserCanceled:
		return &UserCanceledData{}, nil
	case EventRefundRequested:
		return &RefundRequestedData{}, nil
	case EventRefunded:
		return &RefundedData{}, nil
	case EventRefundFailed:
		return &RefundFailedData{}, nil
	}
	return nil, fmt.Errorf("%s: %w", kind, ErrUnknownEventKind)
}

// EncodeEventData returns the serialized payload and the schema version it was written with.
func EncodeEventData(data EventData) (json.RawMessage, int, error) {
	version, ok := currentSchema[data.Kind()]
	if !ok {
		return nil, 0, fmt.Errorf("EncodeEventData: %s: %w", data.Kind(), ErrUnknownEventKind)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, 0, fmt.Errorf("EncodeEventData: %w", err)
	}
	return raw, version, nil
}

// DecodeEventData upcasts raw to the current schema and decodes it into the
// value type for kind.
func DecodeEventData(kind EventKind, version int, raw json.RawMessage) (EventData, error) {
	current, ok := currentSchema[kind]
	if !ok {
		return nil, fmt.Errorf("DecodeEventData: %s: %w", kind, ErrUnknownEventKind)
	}
	if version < 1 || version > current {
		return nil, fmt.Errorf("DecodeEventData: %s v%d: %w", kind, version, ErrUnknownSchema)
	}
	for v := version; v < current; v++ {
		up, ok := upcasters[upcastKey{kind, v}]
		if !ok {
			return nil, fmt.Errorf("DecodeEventData: no upcaster for %s v%d: %w", kind, v, ErrUnknownSchema)
		}
		var err error
		if raw, err = up(raw); err != nil {
			return nil, fmt.Errorf("DecodeEventData: upcast %s v%d: %w: %w", kind, v, ErrCorruptLog, err)
		}
	}

	ptr, err := newEventData(kind)
	if err != nil {
		return nil, fmt.Errorf("DecodeEventData: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, ptr); err != nil {
			return nil, fmt.Errorf("DecodeEventData: %s: %w: %w", kind, ErrCorruptLog, err)
		}
	}
	return deref(ptr), nil
}

// deref turns the decode target back into the value type stored in Event.Data.
func deref(ptr EventData) EventData {
	switch d := ptr.(type) {
	case *ActivationRequestedData:
		return *d
	case *ActivatedData:
		return *d
	case *AuthorizationRequestedData:
		return *d
	case *AuthorizationCompletedData:
		return *d
	case *ClosureRequestedData:
		return *d
	case *ClosedData:
		return *d
	case *ClosureFailedData:
		return *d
	case *UserReceiptAddedData:
		return *d
	case *UserCanceledData:
		return *d
	case *RefundRequestedData:
		return *d
	case *RefundedData:
		return *d
	case *RefundFailedData:
		return *d
	}
	return ptr
}

// v1 activation requests carried a single notice at the top level.
type activationRequestedV1 struct {
	RptID                       RptID        `json:"rpt_id"`
	Amount                      Amount       `json:"amount"`
	Description                 string       `json:"description"`
	Email                       Confidential `json:"email"`
	ClientID                    ClientID     `json:"client_id"`
	PaymentTokenValiditySeconds int          `json:"payment_token_validity_seconds"`
}

func upcastActivationRequestedV1(raw json.RawMessage) (json.RawMessage, error) {
	var v1 activationRequestedV1
	if err := json.Unmarshal(raw, &v1); err != nil {
		return nil, err
	}
	return json.Marshal(ActivationRequestedData{
		Notices:                     []PaymentNotice{{RptID: v1.RptID, Amount: v1.Amount, Description: v1.Description}},
		Email:                       v1.Email,
		ClientID:                    v1.ClientID,
		PaymentTokenValiditySeconds: v1.PaymentTokenValiditySeconds,
	})
}
