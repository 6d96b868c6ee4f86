package service

import (
	"context"
	"fmt"
	"strings"

	"accountmart-api/internal/apperr"
	"accountmart-api/internal/model"
	"accountmart-api/internal/repository"
	"accountmart-api/pkg/uid"

	"github.com/shopspring/decimal"
)

// CatalogService manages categories and inventory items.
type CatalogService struct {
	store repository.Store
	now   Clock
}

// NewCatalogService creates a catalog service.
func NewCatalogService(store repository.Store, now Clock) *CatalogService {
	return &CatalogService{store: store, now: clockOrDefault(now)}
}

// ItemInput describes an item to add to a category.
type ItemInput struct {
	CategoryID        string          `json:"category_id"`
	Payload           string          `json:"payload"`
	SecondaryPassword string          `json:"secondary_password"`
	Price             decimal.Decimal `json:"price"`
}

func (s *CatalogService) view(ctx context.Context, c model.Category) (model.CategoryView, error) {
	v := model.CategoryView{Category: c, Price: decimal.Zero}

	available, err := s.store.CountItems(ctx, model.ItemFilter{CategoryID: c.ID, Status: model.ItemAvailable})
	if err != nil {
		return v, err
	}
	sold, err := s.store.CountItems(ctx, model.ItemFilter{CategoryID: c.ID, Status: model.ItemSold})
	if err != nil {
		return v, err
	}
	v.AvailableCount = available
	v.SoldCount = sold

	// The displayed price is that of the next item to be allocated.
	next, err := s.store.ListAvailableItems(ctx, c.ID, 1)
	if err != nil {
		return v, err
	}
	if len(next) > 0 {
		v.Price = next[0].Price
	}
	return v, nil
}

// ListCategories returns every category with live availability.
func (s *CatalogService) ListCategories(ctx context.Context) ([]model.CategoryView, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]model.CategoryView, 0, len(categories))
	for _, c := range categories {
		v, err := s.view(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("failed to load category %s: %w", c.ID, err)
		}
		views = append(views, v)
	}
	return views, nil
}

// CategoryAvailability returns one category with live availability.
func (s *CatalogService) CategoryAvailability(ctx context.Context, id string) (*model.CategoryView, error) {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := s.view(ctx, *c)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateCategory adds a category.
func (s *CatalogService) CreateCategory(ctx context.Context, operatorID, name, description string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.InvalidInput("category name is required")
	}
	now := s.now()
	c := &model.Category{
		ID:          uid.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	recordActivity(ctx, s.store, now, operatorID, model.ActionCategoryCreate, name)
	return c, nil
}

// UpdateCategory renames or re-describes a category.
func (s *CatalogService) UpdateCategory(ctx context.Context, operatorID, id, name, description string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.InvalidInput("category name is required")
	}
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Name = name
	c.Description = strings.TrimSpace(description)
	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return nil, err
	}
	recordActivity(ctx, s.store, s.now(), operatorID, model.ActionCategoryUpdate, id)
	return c, nil
}

// DeleteCategory removes a category and its items. Purchase records keep their snapshots.
func (s *CatalogService) DeleteCategory(ctx context.Context, operatorID, id string) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return err
	}
	recordActivity(ctx, s.store, s.now(), operatorID, model.ActionCategoryDelete, id)
	return nil
}

// CreateItem adds one available item to a category.
func (s *CatalogService) CreateItem(ctx context.Context, operatorID string, in ItemInput) (*model.InventoryItem, error) {
	if strings.TrimSpace(in.Payload) == "" {
		return nil, apperr.InvalidInput("payload is required")
	}
	price := in.Price.Round(2)
	if !price.IsPositive() {
		return nil, apperr.InvalidInput("price must be positive")
	}
	if !model.WithinMaxAmount(price) {
		return nil, apperr.InvalidInput("price exceeds %s", model.MaxAmount)
	}
	now := s.now()
	item := &model.InventoryItem{
		ID:                uid.New(),
		CategoryID:        in.CategoryID,
		Payload:           in.Payload,
		SecondaryPassword: in.SecondaryPassword,
		Price:             price,
		Status:            model.ItemAvailable,
		CreatedAt:         now,
	}
	if err := s.store.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	recordActivity(ctx, s.store, now, operatorID, model.ActionItemCreate,
		fmt.Sprintf("category=%s item=%s", item.CategoryID, item.ID))
	return item, nil
}

// ListItems lists items, optionally for one category.
func (s *CatalogService) ListItems(ctx context.Context, categoryID string, status model.ItemStatus) ([]model.InventoryItem, error) {
	if status != "" && status != model.ItemAvailable && status != model.ItemSold {
		return nil, apperr.InvalidInput("unknown item status %q", status)
	}
	return s.store.ListItems(ctx, model.ItemFilter{CategoryID: categoryID, Status: status})
}

// DeleteItem removes an item. Sold items keep their purchase record.
func (s *CatalogService) DeleteItem(ctx context.Context, operatorID, id string) error {
	if err := s.store.DeleteItem(ctx, id); err != nil {
		return err
	}
	recordActivity(ctx, s.store, s.now(), operatorID, model.ActionItemDelete, id)
	return nil
}
