package payment

import (
	"context"
	"errors"
	"strconv"

	"github.com/shopspring/decimal"
)

var (
	// ErrSessionNotFound is returned when the processor does not know the session.
	ErrSessionNotFound = errors.New("checkout session not found")
	// ErrInvalidSignature is returned for webhook payloads that fail verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Payment statuses reported by the processor for a checkout session.
const (
	StatusPaid   = "paid"
	StatusUnpaid = "unpaid"
)

// Verifier retrieves checkout sessions from the payment processor. The
// deposit processor trusts nothing but what the processor reports here.
type Verifier interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

// CheckoutSession is the subset of a processor checkout session the ledger needs.
type CheckoutSession struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"`
	Status        string            `json:"status"`
	AmountTotal   int64             `json:"amount_total"` // minor units
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

// Paid reports whether the processor confirmed the payment.
func (s *CheckoutSession) Paid() bool {
	return s.PaymentStatus == StatusPaid
}

// UserID is the platform user the session was created for.
func (s *CheckoutSession) UserID() string {
	return s.Metadata["user_id"]
}

// PlanAmount is the plan key (major currency units) stored at checkout creation.
func (s *CheckoutSession) PlanAmount() string {
	return s.Metadata["amount"]
}

// MetadataCredits returns the credits recorded at checkout creation, or 0.
func (s *CheckoutSession) MetadataCredits() int64 {
	n, err := strconv.ParseInt(s.Metadata["credits"], 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// CurrencyAmount is the amount paid in major units. It prefers the
// processor's amount_total and falls back to the plan amount.
func (s *CheckoutSession) CurrencyAmount() decimal.Decimal {
	if s.AmountTotal > 0 {
		return decimal.New(s.AmountTotal, -2)
	}
	d, err := decimal.NewFromString(s.PlanAmount())
	if err != nil {
		return decimal.Zero
	}
	return d
}
