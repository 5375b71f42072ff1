package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxAmount            Amount = 99_999_999
	MaxDescriptionLength        = 140
)

var rptIDPattern = regexp.MustCompile(`^\d{29}$`)

// RptID identifies a payment notice: the creditor's 11-digit fiscal code
// followed by the 18-digit notice number.
type RptID string

func ParseRptID(s string) (RptID, error) {
	if !rptIDPattern.MatchString(s) {
		return "", fmt.Errorf("ParseRptID: %q: %w", s, ErrInvalidRptID)
	}
	return RptID(s), nil
}

func (r RptID) FiscalCode() string { return string(r)[:11] }
func (r RptID) NoticeID() string   { return string(r)[11:] }
func (r RptID) String() string     { return string(r) }

// Amount is expressed in euro cents.
type Amount int64

func (a Amount) Valid() bool { return a > 0 && a <= MaxAmount }

type PaymentNotice struct {
	RptID        RptID  `json:"rpt_id"`
	Amount       Amount `json:"amount"`
	Description  string `json:"description"`
	PaymentToken string `json:"payment_token,omitempty"`
}

func NewPaymentNotice(rptID string, amount Amount, description string) (PaymentNotice, error) {
	id, err := ParseRptID(rptID)
	if err != nil {
		return PaymentNotice{}, fmt.Errorf("NewPaymentNotice: %w", err)
	}
	if !amount.Valid() {
		return PaymentNotice{}, fmt.Errorf("NewPaymentNotice: %d: %w", amount, ErrInvalidAmount)
	}
	description = strings.TrimSpace(description)
	if description == "" || utf8.RuneCountInString(description) > MaxDescriptionLength {
		return PaymentNotice{}, fmt.Errorf("NewPaymentNotice: %w", ErrInvalidDescription)
	}
	return PaymentNotice{RptID: id, Amount: amount, Description: description}, nil
}

// ValidateCart checks cart-level constraints over already constructed notices.
func ValidateCart(notices []PaymentNotice, maxSize int) error {
	if len(notices) == 0 {
		return ErrEmptyCart
	}
	if len(notices) > maxSize {
		return fmt.Errorf("%d notices, max %d: %w", len(notices), maxSize, ErrCartTooLarge)
	}
	seen := make(map[RptID]struct{}, len(notices))
	for _, n := range notices {
		if _, dup := seen[n.RptID]; dup {
			return fmt.Errorf("%s: %w", n.RptID, ErrDuplicateNotice)
		}
		seen[n.RptID] = struct{}{}
	}
	return nil
}

func TotalAmount(notices []PaymentNotice) Amount {
	var total Amount
	for _, n := range notices {
		total += n.Amount
	}
	return total
}
