package model

import "github.com/shopspring/decimal"

// MarketStats is the operator dashboard summary.
type MarketStats struct {
	Buyers           int64           `json:"buyers"`
	Operators        int64           `json:"operators"`
	PendingPayments  int64           `json:"pending_payments"`
	ApprovedPayments int64           `json:"approved_payments"`
	RejectedPayments int64           `json:"rejected_payments"`
	Categories       int64           `json:"categories"`
	AvailableItems   int64           `json:"available_items"`
	SoldItems        int64           `json:"sold_items"`
	Purchases        int64           `json:"purchases"`
	Revenue          decimal.Decimal `json:"revenue"`
	TotalCredited    decimal.Decimal `json:"total_credited"`
}

// TelegramSettings is the operator view of the notification channel.
// The bot token is never returned in full.
type TelegramSettings struct {
	BotToken   string `json:"bot_token"`
	ChatID     string `json:"chat_id"`
	Configured bool   `json:"configured"`
}
