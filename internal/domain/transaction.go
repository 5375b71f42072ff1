package domain

import (
	"fmt"

	"github.com/google/uuid"
)

type TransactionID uuid.UUID

func NewTransactionID() TransactionID { return TransactionID(uuid.New()) }

func ParseTransactionID(s string) (TransactionID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return TransactionID{}, fmt.Errorf("ParseTransactionID: %w", ErrTransactionNotFound)
	}
	return TransactionID(id), nil
}

func (id TransactionID) UUID() uuid.UUID { return uuid.UUID(id) }
func (id TransactionID) String() string  { return uuid.UUID(id).String() }
func (id TransactionID) IsZero() bool    { return uuid.UUID(id) == uuid.Nil }

func (id TransactionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *TransactionID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

type ClientID string

const (
	ClientCheckout     ClientID = "CHECKOUT"
	ClientCheckoutCart ClientID = "CHECKOUT_CART"
	ClientIO           ClientID = "IO"
)

func (c ClientID) IsValid() bool {
	switch c {
	case ClientCheckout, ClientCheckoutCart, ClientIO:
		return true
	}
	return false
}

type Gateway string

const (
	GatewayNPG      Gateway = "NPG"
	GatewayRedirect Gateway = "REDIRECT"
	GatewayXPay     Gateway = "XPAY"
	GatewayVPOS     Gateway = "VPOS"
)

func (g Gateway) IsValid() bool {
	switch g {
	case GatewayNPG, GatewayRedirect, GatewayXPay, GatewayVPOS:
		return true
	}
	return false
}

type Outcome string

const (
	OutcomeOK Outcome = "OK"
	OutcomeKO Outcome = "KO"
)

func (o Outcome) IsValid() bool { return o == OutcomeOK || o == OutcomeKO }

// Confidential is an opaque encrypted value. Plaintext never reaches the log.
type Confidential string

func (c Confidential) String() string { return "[confidential]" }
