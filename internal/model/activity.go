package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActivityEntry is an append-only audit log entry.
type ActivityEntry struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// Activity actions.
const (
	ActionRegister       = "register"
	ActionOperatorLogin  = "operator_login"
	ActionPurchase       = "purchase"
	ActionPaymentSubmit  = "payment_submit"
	ActionPaymentApprove = "payment_approve"
	ActionPaymentReject  = "payment_reject"
	ActionBalanceSet     = "balance_set"
	ActionPasswordReset  = "password_reset"
	ActionUserPurge      = "user_purge"
	ActionCategoryCreate = "category_create"
	ActionCategoryUpdate = "category_update"
	ActionCategoryDelete = "category_delete"
	ActionItemCreate     = "item_create"
	ActionItemDelete     = "item_delete"
	ActionRecordDelete   = "record_delete"
	ActionSettingsUpdate = "settings_update"
)

// Setting keys.
const (
	SettingPayoutAddress    = "payout_address"
	SettingTelegramBotToken = "telegram_bot_token"
	SettingTelegramChatID   = "telegram_chat_id"
)

// Setting is a singleton key/value pair.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DailySales is one bucket of the sales-by-day report.
type DailySales struct {
	Date    string          `json:"date"`
	Count   int64           `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}
