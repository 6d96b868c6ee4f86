package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a top-up request.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentApproved, PaymentRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentApproved || s == PaymentRejected
}

// PaymentRequest is a buyer-submitted balance top-up. AmountTarget is frozen at submission.
type PaymentRequest struct {
	ID           string          `json:"id"`
	BuyerID      string          `json:"buyer_id"`
	BuyerEmail   string          `json:"buyer_email"`
	AmountSource decimal.Decimal `json:"amount_source"`
	Rate         decimal.Decimal `json:"rate"`
	AmountTarget decimal.Decimal `json:"amount_target"`
	Address      string          `json:"address"`
	Status       PaymentStatus   `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	ProcessedBy  string          `json:"processed_by,omitempty"`
}
