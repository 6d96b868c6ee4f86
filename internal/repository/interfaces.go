package repository

import (
	"context"
	"time"

	"accountmart-api/internal/model"

	"github.com/shopspring/decimal"
)

// UserRepository defines user data access methods.
type UserRepository interface {
	// CreateUser inserts a user. Returns apperr.ErrDuplicateIdentity if the email exists.
	CreateUser(ctx context.Context, user *model.User) error

	// GetUserByID returns apperr.ErrNotFound when missing.
	GetUserByID(ctx context.Context, id string) (*model.User, error)

	// GetUserByEmail returns apperr.ErrNotFound when missing.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	// ListUsers lists users with the given role, or all users when role is empty.
	ListUsers(ctx context.Context, role model.Role) ([]model.User, error)

	// CountUsers counts users with the given role, or all users when role is empty.
	CountUsers(ctx context.Context, role model.Role) (int64, error)

	// DebitBalance subtracts amount only if the balance covers it.
	// Returns apperr.ErrInsufficientBalance otherwise.
	DebitBalance(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)

	// CreditBalance atomically adds amount and returns the new balance.
	CreditBalance(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)

	// SetBalance overwrites the balance (operator adjustment).
	SetBalance(ctx context.Context, userID string, amount decimal.Decimal) error

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	// DeleteUser removes the user with their purchases, payment requests and activity.
	DeleteUser(ctx context.Context, userID string) error
}

// CatalogRepository defines category and inventory item data access methods.
type CatalogRepository interface {
	CreateCategory(ctx context.Context, category *model.Category) error
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	UpdateCategory(ctx context.Context, category *model.Category) error

	// DeleteCategory removes the category and all of its items. Purchase records are untouched.
	DeleteCategory(ctx context.Context, id string) error

	CountCategories(ctx context.Context) (int64, error)

	// CreateItem inserts an item and assigns its insertion sequence.
	CreateItem(ctx context.Context, item *model.InventoryItem) error
	GetItem(ctx context.Context, id string) (*model.InventoryItem, error)
	ListItems(ctx context.Context, filter model.ItemFilter) ([]model.InventoryItem, error)
	DeleteItem(ctx context.Context, id string) error

	// CountItems counts items matching the filter.
	CountItems(ctx context.Context, filter model.ItemFilter) (int64, error)

	// ListAvailableItems returns up to limit available items of a category in insertion order.
	ListAvailableItems(ctx context.Context, categoryID string, limit int) ([]model.InventoryItem, error)

	// MarkItemSold flips available -> sold. Returns apperr.ErrConcurrentConflict if the item is not available.
	MarkItemSold(ctx context.Context, itemID string) error

	// ReleaseItem flips sold -> available. Only used to compensate a purchase that never completed.
	ReleaseItem(ctx context.Context, itemID string) error
}

// PurchaseRepository defines purchase record data access methods.
type PurchaseRepository interface {
	// CreatePurchases inserts records. Returns apperr.ErrConcurrentConflict if an item already has a record.
	CreatePurchases(ctx context.Context, records []model.PurchaseRecord) error
	ListPurchasesByBuyer(ctx context.Context, buyerID string) ([]model.PurchaseRecord, error)
	GetPurchase(ctx context.Context, buyerID, id string) (*model.PurchaseRecord, error)
	DeletePurchase(ctx context.Context, buyerID, id string) error

	// ListPurchasesSince returns records purchased at or after since, oldest first.
	ListPurchasesSince(ctx context.Context, since time.Time) ([]model.PurchaseRecord, error)
	PurchaseTotals(ctx context.Context) (model.PurchaseTotals, error)
}

// PaymentRepository defines payment request data access methods.
type PaymentRepository interface {
	CreatePaymentRequest(ctx context.Context, req *model.PaymentRequest) error
	GetPaymentRequest(ctx context.Context, id string) (*model.PaymentRequest, error)

	// ListPaymentRequests lists requests newest first. Empty buyerID or status match everything.
	ListPaymentRequests(ctx context.Context, buyerID string, status model.PaymentStatus) ([]model.PaymentRequest, error)
	CountPaymentRequests(ctx context.Context, status model.PaymentStatus) (int64, error)

	// SumApproved returns the total credited by approved requests.
	SumApproved(ctx context.Context) (decimal.Decimal, error)

	// TransitionPaymentRequest moves a pending request to a terminal status.
	// Returns apperr.ErrInvalidStateTransition if it is no longer pending.
	TransitionPaymentRequest(ctx context.Context, id string, to model.PaymentStatus, at time.Time, by string) error

	// RevertPaymentRequest moves a request from status back to pending.
	// Only used to compensate an approval whose credit failed.
	RevertPaymentRequest(ctx context.Context, id string, from model.PaymentStatus) error
}

// ActivityRepository defines audit log data access methods.
type ActivityRepository interface {
	AppendActivity(ctx context.Context, entry *model.ActivityEntry) error

	// ListActivity returns the newest entries first.
	ListActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error)
}

// SettingsRepository defines singleton key/value data access methods.
type SettingsRepository interface {
	// GetSetting returns "" when the key has never been set.
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
}

// Store is the ledger store backing every marketplace entity.
type Store interface {
	UserRepository
	CatalogRepository
	PurchaseRepository
	PaymentRepository
	ActivityRepository
	SettingsRepository

	// RunAtomic runs fn inside a transaction when the backend supports one.
	RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error

	// Transactional reports whether RunAtomic rolls back on error.
	Transactional() bool

	// Stats returns backend statistics for the admin surface.
	Stats(ctx context.Context) (map[string]interface{}, error)

	// Close closes the repository connection.
	Close() error
}
