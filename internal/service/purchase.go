package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"accountmart-api/internal/apperr"
	"accountmart-api/internal/model"
	"accountmart-api/internal/repository"
	"accountmart-api/internal/service/notify"
	"accountmart-api/pkg/uid"

	"github.com/shopspring/decimal"
)

// PurchaseService sells inventory items against buyer balances and serves
// the resulting purchase records.
type PurchaseService struct {
	store    repository.Store
	notifier notify.Notifier
	now      Clock
}

// NewPurchaseService creates a purchase service.
func NewPurchaseService(store repository.Store, notifier notify.Notifier, now Clock) *PurchaseService {
	return &PurchaseService{store: store, notifier: notifier, now: clockOrDefault(now)}
}

// Purchase sells quantity items of a category to a buyer in allocation order.
// Either every item is sold and paid for or nothing changes.
func (s *PurchaseService) Purchase(ctx context.Context, buyerID, categoryID string, quantity int) (*model.PurchaseOutcome, error) {
	if quantity < 1 {
		return nil, apperr.InvalidInput("quantity must be at least 1")
	}

	buyer, err := s.store.GetUserByID(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	category, err := s.store.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	var outcome *model.PurchaseOutcome
	err = s.store.RunAtomic(ctx, func(ctx context.Context) error {
		var err error
		outcome, err = s.allocate(ctx, buyer.ID, category, quantity)
		return err
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	log.Printf("[PurchaseService] User %s bought %d x %s for %s", buyer.ID, outcome.Purchased, category.Name, outcome.TotalPaid.StringFixed(2))
	recordActivity(ctx, s.store, now, buyer.ID, model.ActionPurchase,
		fmt.Sprintf("category=%s quantity=%d total=%s", category.Name, outcome.Purchased, outcome.TotalPaid.StringFixed(2)))
	sendNotification(ctx, s.notifier, now, notify.KindPurchase,
		fmt.Sprintf("New purchase: %s bought %d x %s for %s", buyer.Email, outcome.Purchased, category.Name, outcome.TotalPaid.StringFixed(2)))

	return outcome, nil
}

// allocate runs inside RunAtomic. On stores without rollback it undoes its
// own writes before returning an error.
func (s *PurchaseService) allocate(ctx context.Context, buyerID string, category *model.Category, quantity int) (*model.PurchaseOutcome, error) {
	items, err := s.store.ListAvailableItems(ctx, category.ID, quantity)
	if err != nil {
		return nil, err
	}
	if len(items) < quantity {
		return nil, apperr.InsufficientInventory(len(items))
	}

	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price)
	}

	newBalance, err := s.store.DebitBalance(ctx, buyerID, total)
	if err != nil {
		return nil, err
	}

	flipped := make([]string, 0, len(items))
	fail := func(cause error) (*model.PurchaseOutcome, error) {
		if !s.store.Transactional() {
			s.compensate(context.WithoutCancel(ctx), buyerID, total, flipped)
		}
		return nil, cause
	}

	for _, it := range items {
		if err := s.store.MarkItemSold(ctx, it.ID); err != nil {
			if errors.Is(err, apperr.ErrConcurrentConflict) {
				return fail(apperr.ErrConcurrentConflict)
			}
			return fail(err)
		}
		flipped = append(flipped, it.ID)
	}

	now := s.now()
	records := make([]model.PurchaseRecord, 0, len(items))
	for _, it := range items {
		records = append(records, model.PurchaseRecord{
			ID:                uid.New(),
			BuyerID:           buyerID,
			ItemID:            it.ID,
			CategoryID:        category.ID,
			CategoryName:      category.Name,
			Payload:           it.Payload,
			SecondaryPassword: it.SecondaryPassword,
			Price:             it.Price,
			PurchasedAt:       now,
		})
	}
	if err := s.store.CreatePurchases(ctx, records); err != nil {
		return fail(err)
	}

	return &model.PurchaseOutcome{
		Purchased:  len(records),
		TotalPaid:  total,
		NewBalance: newBalance,
		Records:    records,
	}, nil
}

// compensate releases the items this purchase flipped and refunds the debit.
func (s *PurchaseService) compensate(ctx context.Context, buyerID string, total decimal.Decimal, flipped []string) {
	for _, id := range flipped {
		if err := s.store.ReleaseItem(ctx, id); err != nil {
			log.Printf("[PurchaseService] CRITICAL: failed to release item %s: %v", id, err)
		}
	}
	if _, err := s.store.CreditBalance(ctx, buyerID, total); err != nil {
		log.Printf("[PurchaseService] CRITICAL: failed to refund %s to user %s: %v", total.StringFixed(2), buyerID, err)
		return
	}
	log.Printf("[PurchaseService] Rolled back purchase for user %s (%d items released)", buyerID, len(flipped))
}

// ListOwned returns the buyer's purchase records, newest first.
func (s *PurchaseService) ListOwned(ctx context.Context, buyerID string) ([]model.PurchaseRecord, error) {
	return s.store.ListPurchasesByBuyer(ctx, buyerID)
}

// Export renders one owned record as a plain-text bundle.
func (s *PurchaseService) Export(ctx context.Context, buyerID, recordID string) (filename, content string, err error) {
	rec, err := s.store.GetPurchase(ctx, buyerID, recordID)
	if err != nil {
		return "", "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Order: %s\n", rec.ID)
	fmt.Fprintf(&b, "Item: %s\n", rec.ItemID)
	fmt.Fprintf(&b, "Category: %s\n", rec.CategoryName)
	fmt.Fprintf(&b, "Purchased: %s\n", rec.PurchasedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Price: %s\n", rec.Price.StringFixed(2))
	if rec.SecondaryPassword != "" {
		fmt.Fprintf(&b, "Secondary password: %s\n", rec.SecondaryPassword)
	}
	b.WriteString("\n")
	b.WriteString(rec.Payload)
	if !strings.HasSuffix(rec.Payload, "\n") {
		b.WriteString("\n")
	}

	return fmt.Sprintf("purchase-%s.txt", uid.Short(rec.ID)), b.String(), nil
}

// DeleteOwned removes a purchase record from the buyer's history.
// The item stays sold.
func (s *PurchaseService) DeleteOwned(ctx context.Context, buyerID, recordID string) error {
	if err := s.store.DeletePurchase(ctx, buyerID, recordID); err != nil {
		return err
	}
	recordActivity(ctx, s.store, s.now(), buyerID, model.ActionRecordDelete, recordID)
	return nil
}
