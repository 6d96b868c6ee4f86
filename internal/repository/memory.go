package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"accountmart-api/internal/apperr"
	"accountmart-api/internal/model"

	"github.com/shopspring/decimal"
)

// MemoryStore implements Store in process memory.
// Every method is atomic on its own; RunAtomic provides no rollback.
// Use this for development/testing or single-instance demos.
type MemoryStore struct {
	mu sync.RWMutex

	users      map[string]*model.User
	emails     map[string]string
	categories map[string]*model.Category
	items      map[string]*model.InventoryItem
	purchases  map[string]*model.PurchaseRecord
	soldItems  map[string]string
	payments   map[string]*model.PaymentRequest
	activity   []model.ActivityEntry
	settings   map[string]string
	seq        int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]*model.User),
		emails:     make(map[string]string),
		categories: make(map[string]*model.Category),
		items:      make(map[string]*model.InventoryItem),
		purchases:  make(map[string]*model.PurchaseRecord),
		soldItems:  make(map[string]string),
		payments:   make(map[string]*model.PaymentRequest),
		settings:   make(map[string]string),
	}
}

// RunAtomic runs fn directly; callers compensate on failure.
func (s *MemoryStore) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Transactional reports false: the memory store has no rollback.
func (s *MemoryStore) Transactional() bool { return false }

// ---- users ----

func (s *MemoryStore) CreateUser(ctx context.Context, user *model.User) error {
	if err := checkAmounts(user.Balance); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.emails[user.Email]; exists {
		return apperr.ErrDuplicateIdentity
	}
	if _, exists := s.users[user.ID]; exists {
		return apperr.ErrDuplicateIdentity
	}
	u := *user
	s.users[u.ID] = &u
	s.emails[u.Email] = u.ID
	return nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	out := *u
	return &out, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[email]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	out := *s.users[id]
	return &out, nil
}

func (s *MemoryStore) ListUsers(ctx context.Context, role model.Role) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		if role == "" || u.Role == role {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (s *MemoryStore) CountUsers(ctx context.Context, role model.Role) (int64, error) {
	users, _ := s.ListUsers(ctx, role)
	return int64(len(users)), nil
}

func (s *MemoryStore) DebitBalance(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return decimal.Zero, apperr.NotFound("user")
	}
	if u.Balance.LessThan(amount) {
		return u.Balance, apperr.ErrInsufficientBalance
	}
	u.Balance = u.Balance.Sub(amount)
	return u.Balance, nil
}

func (s *MemoryStore) CreditBalance(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return decimal.Zero, apperr.NotFound("user")
	}
	next := u.Balance.Add(amount)
	if !model.WithinMaxAmount(next) {
		return u.Balance, errBalanceLimit()
	}
	u.Balance = next
	return u.Balance, nil
}

func (s *MemoryStore) SetBalance(ctx context.Context, userID string, amount decimal.Decimal) error {
	if err := checkAmounts(amount); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return apperr.NotFound("user")
	}
	u.Balance = amount
	return nil
}

func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return apperr.NotFound("user")
	}
	u.PasswordHash = hash
	return nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return apperr.NotFound("user")
	}
	delete(s.users, userID)
	delete(s.emails, u.Email)

	for id, p := range s.purchases {
		if p.BuyerID == userID {
			delete(s.purchases, id)
			delete(s.soldItems, p.ItemID)
		}
	}
	for id, p := range s.payments {
		if p.BuyerID == userID {
			delete(s.payments, id)
		}
	}
	kept := s.activity[:0]
	for _, e := range s.activity {
		if e.Actor != userID {
			kept = append(kept, e)
		}
	}
	s.activity = kept
	return nil
}

// ---- catalog ----

func (s *MemoryStore) CreateCategory(ctx context.Context, category *model.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *category
	s.categories[c.ID] = &c
	return nil
}

func (s *MemoryStore) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	if !ok {
		return nil, apperr.NotFound("category")
	}
	out := *c
	return &out, nil
}

func (s *MemoryStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) UpdateCategory(ctx context.Context, category *model.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[category.ID]
	if !ok {
		return apperr.NotFound("category")
	}
	c.Name = category.Name
	c.Description = category.Description
	return nil
}

func (s *MemoryStore) DeleteCategory(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return apperr.NotFound("category")
	}
	delete(s.categories, id)
	for itemID, item := range s.items {
		if item.CategoryID == id {
			delete(s.items, itemID)
		}
	}
	return nil
}

func (s *MemoryStore) CountCategories(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.categories)), nil
}

func (s *MemoryStore) CreateItem(ctx context.Context, item *model.InventoryItem) error {
	if err := checkAmounts(item.Price); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[item.CategoryID]; !ok {
		return apperr.NotFound("category")
	}
	s.seq++
	item.Seq = s.seq
	it := *item
	s.items[it.ID] = &it
	return nil
}

func (s *MemoryStore) GetItem(ctx context.Context, id string) (*model.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok {
		return nil, apperr.NotFound("item")
	}
	out := *it
	return &out, nil
}

// filterItems must be called with s.mu held.
func (s *MemoryStore) filterItems(filter model.ItemFilter) []model.InventoryItem {
	out := make([]model.InventoryItem, 0)
	for _, it := range s.items {
		if filter.CategoryID != "" && it.CategoryID != filter.CategoryID {
			continue
		}
		if filter.Status != "" && it.Status != filter.Status {
			continue
		}
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (s *MemoryStore) ListItems(ctx context.Context, filter model.ItemFilter) ([]model.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterItems(filter), nil
}

func (s *MemoryStore) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return apperr.NotFound("item")
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) CountItems(ctx context.Context, filter model.ItemFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.filterItems(filter))), nil
}

func (s *MemoryStore) ListAvailableItems(ctx context.Context, categoryID string, limit int) ([]model.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.filterItems(model.ItemFilter{CategoryID: categoryID, Status: model.ItemAvailable})
	if limit >= 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) MarkItemSold(ctx context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID]
	if !ok || it.Status != model.ItemAvailable {
		return apperr.ErrConcurrentConflict
	}
	it.Status = model.ItemSold
	return nil
}

func (s *MemoryStore) ReleaseItem(ctx context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID]
	if !ok {
		return apperr.NotFound("item")
	}
	if it.Status == model.ItemSold {
		it.Status = model.ItemAvailable
	}
	return nil
}

// ---- purchases ----

func (s *MemoryStore) CreatePurchases(ctx context.Context, records []model.PurchaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if _, taken := s.soldItems[r.ItemID]; taken {
			return fmt.Errorf("item %s already has a purchase record: %w", r.ItemID, apperr.ErrConcurrentConflict)
		}
	}
	for _, r := range records {
		rec := r
		s.purchases[rec.ID] = &rec
		s.soldItems[rec.ItemID] = rec.ID
	}
	return nil
}

func (s *MemoryStore) ListPurchasesByBuyer(ctx context.Context, buyerID string) ([]model.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PurchaseRecord, 0)
	for _, p := range s.purchases {
		if p.BuyerID == buyerID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PurchasedAt.Equal(out[j].PurchasedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].PurchasedAt.After(out[j].PurchasedAt)
	})
	return out, nil
}

func (s *MemoryStore) GetPurchase(ctx context.Context, buyerID, id string) (*model.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.purchases[id]
	if !ok || p.BuyerID != buyerID {
		return nil, apperr.NotFound("purchase")
	}
	out := *p
	return &out, nil
}

func (s *MemoryStore) DeletePurchase(ctx context.Context, buyerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[id]
	if !ok || p.BuyerID != buyerID {
		return apperr.NotFound("purchase")
	}
	delete(s.purchases, id)
	return nil
}

func (s *MemoryStore) ListPurchasesSince(ctx context.Context, since time.Time) ([]model.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PurchaseRecord, 0)
	for _, p := range s.purchases {
		if !p.PurchasedAt.Before(since) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchasedAt.Before(out[j].PurchasedAt) })
	return out, nil
}

func (s *MemoryStore) PurchaseTotals(ctx context.Context) (model.PurchaseTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := model.PurchaseTotals{Revenue: decimal.Zero}
	for _, p := range s.purchases {
		totals.Count++
		totals.Revenue = totals.Revenue.Add(p.Price)
	}
	return totals, nil
}

// ---- payments ----

func (s *MemoryStore) CreatePaymentRequest(ctx context.Context, req *model.PaymentRequest) error {
	if err := checkAmounts(req.AmountSource, req.AmountTarget); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *req
	s.payments[r.ID] = &r
	return nil
}

func (s *MemoryStore) GetPaymentRequest(ctx context.Context, id string) (*model.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.payments[id]
	if !ok {
		return nil, apperr.NotFound("payment request")
	}
	out := *r
	return &out, nil
}

func (s *MemoryStore) ListPaymentRequests(ctx context.Context, buyerID string, status model.PaymentStatus) ([]model.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PaymentRequest, 0)
	for _, r := range s.payments {
		if buyerID != "" && r.BuyerID != buyerID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) CountPaymentRequests(ctx context.Context, status model.PaymentStatus) (int64, error) {
	reqs, _ := s.ListPaymentRequests(ctx, "", status)
	return int64(len(reqs)), nil
}

func (s *MemoryStore) SumApproved(ctx context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	for _, r := range s.payments {
		if r.Status == model.PaymentApproved {
			sum = sum.Add(r.AmountTarget)
		}
	}
	return sum, nil
}

func (s *MemoryStore) TransitionPaymentRequest(ctx context.Context, id string, to model.PaymentStatus, at time.Time, by string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.payments[id]
	if !ok {
		return apperr.NotFound("payment request")
	}
	if r.Status != model.PaymentPending {
		return apperr.ErrInvalidStateTransition
	}
	processed := at
	r.Status = to
	r.ProcessedAt = &processed
	r.ProcessedBy = by
	return nil
}

func (s *MemoryStore) RevertPaymentRequest(ctx context.Context, id string, from model.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.payments[id]
	if !ok {
		return apperr.NotFound("payment request")
	}
	if r.Status != from {
		return apperr.ErrInvalidStateTransition
	}
	r.Status = model.PaymentPending
	r.ProcessedAt = nil
	r.ProcessedBy = ""
	return nil
}

// ---- activity & settings ----

func (s *MemoryStore) AppendActivity(ctx context.Context, entry *model.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activity = append(s.activity, *entry)
	return nil
}

func (s *MemoryStore) ListActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.activity)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.ActivityEntry, 0, n)
	for i := len(s.activity) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.activity[i])
	}
	return out, nil
}

func (s *MemoryStore) GetSetting(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings[key], nil
}

func (s *MemoryStore) PutSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

// Stats returns entity counts held in memory.
func (s *MemoryStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"users":            len(s.users),
		"categories":       len(s.categories),
		"items":            len(s.items),
		"purchases":        len(s.purchases),
		"payment_requests": len(s.payments),
		"activity_entries": len(s.activity),
	}, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
