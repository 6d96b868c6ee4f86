package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseRecord is the frozen proof of ownership created when an item is sold.
type PurchaseRecord struct {
	ID                string          `json:"id"`
	BuyerID           string          `json:"buyer_id"`
	ItemID            string          `json:"item_id"`
	CategoryID        string          `json:"category_id"`
	CategoryName      string          `json:"category_name"`
	Payload           string          `json:"payload"`
	SecondaryPassword string          `json:"secondary_password,omitempty"`
	Price             decimal.Decimal `json:"price"`
	PurchasedAt       time.Time       `json:"purchased_at"`
}

// PurchaseOutcome is returned by a successful purchase.
type PurchaseOutcome struct {
	Purchased  int              `json:"purchased"`
	TotalPaid  decimal.Decimal  `json:"total_paid"`
	NewBalance decimal.Decimal  `json:"new_balance"`
	Records    []PurchaseRecord `json:"records"`
}

// PurchaseTotals aggregates all purchase records.
type PurchaseTotals struct {
	Count   int64           `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}
