package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"accountmart-api/internal/apperr"
	"accountmart-api/internal/model"
	"accountmart-api/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmin_Stats(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		f := newFixture(t, s)
		ctx := context.Background()
		buyer := f.buyer(t, "a@example.com", "100")
		f.buyer(t, "b@example.com", "0")
		_, err := f.auth.OperatorLogin(ctx, "admin", "admin-pass")
		require.NoError(t, err)
		cat, _ := f.category(t, "steam", "10", "15", "20")

		_, err = f.purchase.Purchase(ctx, buyer, cat.ID, 2)
		require.NoError(t, err)

		p1, err := f.payment.Submit(ctx, buyer, dec("2"), "addr")
		require.NoError(t, err)
		p2, err := f.payment.Submit(ctx, buyer, dec("3"), "addr")
		require.NoError(t, err)
		_, err = f.payment.Submit(ctx, buyer, dec("4"), "addr")
		require.NoError(t, err)
		_, err = f.payment.Approve(ctx, "op", p1.ID)
		require.NoError(t, err)
		_, err = f.payment.Reject(ctx, "op", p2.ID)
		require.NoError(t, err)

		stats, err := f.admin.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, stats.Buyers)
		assert.EqualValues(t, 1, stats.Operators)
		assert.EqualValues(t, 1, stats.PendingPayments)
		assert.EqualValues(t, 1, stats.ApprovedPayments)
		assert.EqualValues(t, 1, stats.RejectedPayments)
		assert.EqualValues(t, 1, stats.Categories)
		assert.EqualValues(t, 1, stats.AvailableItems)
		assert.EqualValues(t, 2, stats.SoldItems)
		assert.EqualValues(t, 2, stats.Purchases)
		assertMoney(t, "25", stats.Revenue)
		assertMoney(t, "69", stats.TotalCredited)
	})
}

func TestAdmin_SalesByDay(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		f := newFixture(t, s)
		buyer := f.buyer(t, "a@example.com", "100")
		cat, _ := f.category(t, "steam", "10", "10", "10", "10")

		// Purchases two days ago and today.
		day := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
		past := NewPurchaseService(s, nil, fixedClock(day.AddDate(0, 0, -2)))
		_, err := past.Purchase(ctx, buyer, cat.ID, 1)
		require.NoError(t, err)
		old := NewPurchaseService(s, nil, fixedClock(day.AddDate(0, 0, -30)))
		_, err = old.Purchase(ctx, buyer, cat.ID, 1)
		require.NoError(t, err)
		today := NewPurchaseService(s, nil, fixedClock(day))
		_, err = today.Purchase(ctx, buyer, cat.ID, 2)
		require.NoError(t, err)

		admin := NewAdminService(s, fixedClock(day.Add(10*time.Hour)))
		sales, err := admin.SalesByDay(ctx, 0)
		require.NoError(t, err)
		require.Len(t, sales, DefaultSalesDays)

		assert.Equal(t, "2025-03-04", sales[0].Date)
		assert.Equal(t, "2025-03-10", sales[6].Date)
		assert.EqualValues(t, 1, sales[4].Count)
		assertMoney(t, "10", sales[4].Revenue)
		assert.EqualValues(t, 0, sales[5].Count)
		assertMoney(t, "0", sales[5].Revenue)
		assert.EqualValues(t, 2, sales[6].Count)
		assertMoney(t, "20", sales[6].Revenue)

		var total int64
		for _, d := range sales {
			total += d.Count
		}
		assert.EqualValues(t, 3, total)

		wide, err := admin.SalesByDay(ctx, 1000)
		require.NoError(t, err)
		assert.Len(t, wide, MaxSalesDays)
	})
}

func TestAdmin_ActivityFeed(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		for i := 0; i < 60; i++ {
			require.NoError(t, s.AppendActivity(ctx, &model.ActivityEntry{
				ID:        fmt.Sprintf("act-%02d", i),
				Actor:     "op",
				Action:    model.ActionSettingsUpdate,
				CreatedAt: baseTime.Add(time.Duration(i) * time.Second),
			}))
		}
		admin := NewAdminService(s, fixedClock(baseTime))

		feed, err := admin.ActivityFeed(ctx, 0)
		require.NoError(t, err)
		require.Len(t, feed, DefaultActivityLimit)
		assert.Equal(t, "act-59", feed[0].ID)

		feed, err = admin.ActivityFeed(ctx, 5)
		require.NoError(t, err)
		assert.Len(t, feed, 5)
	})
}

func TestAdmin_TelegramSettings(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		admin := NewAdminService(s, fixedClock(baseTime))

		got, err := admin.TelegramSettings(ctx)
		require.NoError(t, err)
		assert.False(t, got.Configured)

		_, err = admin.SetTelegramSettings(ctx, "op", "123:abc", "")
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)

		got, err = admin.SetTelegramSettings(ctx, "op", "123456:secret", "-100")
		require.NoError(t, err)
		assert.True(t, got.Configured)
		assert.Equal(t, "-100", got.ChatID)
		assert.Equal(t, "*********cret", got.BotToken)

		token, err := s.GetSetting(ctx, model.SettingTelegramBotToken)
		require.NoError(t, err)
		assert.Equal(t, "123456:secret", token)
	})
}
