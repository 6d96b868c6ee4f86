package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"accountmart-api/internal/apperr"
	"accountmart-api/internal/model"
	"accountmart-api/internal/repository"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSalesDays     = 7
	MaxSalesDays         = 90
	DefaultActivityLimit = 50
	MaxActivityLimit     = 500
)

// AdminService serves the operator dashboard.
type AdminService struct {
	store repository.Store
	now   Clock
}

// NewAdminService creates an admin service.
func NewAdminService(store repository.Store, now Clock) *AdminService {
	return &AdminService{store: store, now: clockOrDefault(now)}
}

// Stats aggregates marketplace counters. Each counter is read independently,
// so the result is not a single snapshot.
func (s *AdminService) Stats(ctx context.Context) (*model.MarketStats, error) {
	var stats model.MarketStats
	g, ctx := errgroup.WithContext(ctx)

	count := func(dst *int64, fn func(context.Context) (int64, error)) {
		g.Go(func() error {
			n, err := fn(ctx)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		})
	}

	count(&stats.Buyers, func(ctx context.Context) (int64, error) {
		return s.store.CountUsers(ctx, model.RoleBuyer)
	})
	count(&stats.Operators, func(ctx context.Context) (int64, error) {
		return s.store.CountUsers(ctx, model.RoleOperator)
	})
	count(&stats.PendingPayments, func(ctx context.Context) (int64, error) {
		return s.store.CountPaymentRequests(ctx, model.PaymentPending)
	})
	count(&stats.ApprovedPayments, func(ctx context.Context) (int64, error) {
		return s.store.CountPaymentRequests(ctx, model.PaymentApproved)
	})
	count(&stats.RejectedPayments, func(ctx context.Context) (int64, error) {
		return s.store.CountPaymentRequests(ctx, model.PaymentRejected)
	})
	count(&stats.Categories, s.store.CountCategories)
	count(&stats.AvailableItems, func(ctx context.Context) (int64, error) {
		return s.store.CountItems(ctx, model.ItemFilter{Status: model.ItemAvailable})
	})
	count(&stats.SoldItems, func(ctx context.Context) (int64, error) {
		return s.store.CountItems(ctx, model.ItemFilter{Status: model.ItemSold})
	})

	g.Go(func() error {
		totals, err := s.store.PurchaseTotals(ctx)
		if err != nil {
			return err
		}
		stats.Purchases = totals.Count
		stats.Revenue = totals.Revenue
		return nil
	})
	g.Go(func() error {
		credited, err := s.store.SumApproved(ctx)
		if err != nil {
			return err
		}
		stats.TotalCredited = credited
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to collect stats: %w", err)
	}
	return &stats, nil
}

// SalesByDay buckets purchases over the trailing days by UTC calendar day,
// oldest first. Days without sales are included with zero values.
func (s *AdminService) SalesByDay(ctx context.Context, days int) ([]model.DailySales, error) {
	if days <= 0 {
		days = DefaultSalesDays
	}
	if days > MaxSalesDays {
		days = MaxSalesDays
	}

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -(days - 1))

	records, err := s.store.ListPurchasesSince(ctx, start)
	if err != nil {
		return nil, err
	}

	buckets := make([]model.DailySales, days)
	index := make(map[string]int, days)
	for i := range buckets {
		date := start.AddDate(0, 0, i).Format(time.DateOnly)
		buckets[i] = model.DailySales{Date: date, Revenue: decimal.Zero}
		index[date] = i
	}
	for _, r := range records {
		i, ok := index[r.PurchasedAt.UTC().Format(time.DateOnly)]
		if !ok {
			continue
		}
		buckets[i].Count++
		buckets[i].Revenue = buckets[i].Revenue.Add(r.Price)
	}
	return buckets, nil
}

// ActivityFeed returns the newest audit entries.
func (s *AdminService) ActivityFeed(ctx context.Context, limit int) ([]model.ActivityEntry, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	if limit > MaxActivityLimit {
		limit = MaxActivityLimit
	}
	return s.store.ListActivity(ctx, limit)
}

// TelegramSettings returns the stored notification channel with the token masked.
func (s *AdminService) TelegramSettings(ctx context.Context) (*model.TelegramSettings, error) {
	token, err := s.store.GetSetting(ctx, model.SettingTelegramBotToken)
	if err != nil {
		return nil, err
	}
	chatID, err := s.store.GetSetting(ctx, model.SettingTelegramChatID)
	if err != nil {
		return nil, err
	}
	return &model.TelegramSettings{
		BotToken:   maskSecret(token),
		ChatID:     chatID,
		Configured: token != "" && chatID != "",
	}, nil
}

// SetTelegramSettings stores the notification channel. Both values must be
// given, or both empty to fall back to the deployment defaults.
func (s *AdminService) SetTelegramSettings(ctx context.Context, operatorID, botToken, chatID string) (*model.TelegramSettings, error) {
	botToken = strings.TrimSpace(botToken)
	chatID = strings.TrimSpace(chatID)
	if (botToken == "") != (chatID == "") {
		return nil, apperr.InvalidInput("bot token and chat id must be set together")
	}

	err := s.store.RunAtomic(ctx, func(ctx context.Context) error {
		if err := s.store.PutSetting(ctx, model.SettingTelegramBotToken, botToken); err != nil {
			return err
		}
		return s.store.PutSetting(ctx, model.SettingTelegramChatID, chatID)
	})
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, s.store, s.now(), operatorID, model.ActionSettingsUpdate, "telegram")
	return s.TelegramSettings(ctx)
}

func maskSecret(v string) string {
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
}
