package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemStatus is the availability of an inventory item. The only transition is available -> sold.
type ItemStatus string

const (
	ItemAvailable ItemStatus = "available"
	ItemSold      ItemStatus = "sold"
)

// Category groups inventory items sold together.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// CategoryView is a category with live inventory figures.
type CategoryView struct {
	Category
	AvailableCount int64           `json:"available_count"`
	SoldCount      int64           `json:"sold_count"`
	Price          decimal.Decimal `json:"price"`
}

// InventoryItem is one sellable unit. Payload is opaque credential/session material.
type InventoryItem struct {
	ID                string          `json:"id"`
	CategoryID        string          `json:"category_id"`
	Payload           string          `json:"payload"`
	SecondaryPassword string          `json:"secondary_password,omitempty"`
	Price             decimal.Decimal `json:"price"`
	Status            ItemStatus      `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	Seq               int64           `json:"-"`
}

// ItemFilter narrows item listings. Empty fields match everything.
type ItemFilter struct {
	CategoryID string
	Status     ItemStatus
}
