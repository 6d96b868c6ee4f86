package service

import (
	"context"
	"sync"
	"testing"

	"accountmart-api/internal/apperr"
	"accountmart-api/internal/model"
	"accountmart-api/internal/repository"
	"accountmart-api/internal/service/notify"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayment_SubmitFreezesConvertedAmount(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		f := newFixture(t, s)
		ctx := context.Background()
		buyer := f.buyer(t, "a@example.com", "0")

		req, err := f.payment.Submit(ctx, buyer, dec("100"), "  TX-ADDR  ")
		require.NoError(t, err)
		assert.Equal(t, model.PaymentPending, req.Status)
		assert.Equal(t, "TX-ADDR", req.Address)
		assert.Equal(t, "a@example.com", req.BuyerEmail)
		assertMoney(t, "34.5", req.Rate)
		assertMoney(t, "3450.00", req.AmountTarget)
		assertMoney(t, "0", f.balance(t, buyer))

		// The rate moves before approval; the frozen amount does not.
		f.rates.set("40")

		approved, err := f.payment.Approve(ctx, "op", req.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentApproved, approved.Status)
		assert.Equal(t, "op", approved.ProcessedBy)
		require.NotNil(t, approved.ProcessedAt)
		assertMoney(t, "3450.00", approved.AmountTarget)
		assertMoney(t, "3450.00", f.balance(t, buyer))

		assert.Equal(t, []notify.Kind{
			notify.KindRegistration,
			notify.KindPaymentRequest,
			notify.KindPaymentApproved,
		}, f.notifier.kinds())
	})
}

func TestPayment_SubmitValidation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		f := newFixture(t, s)
		ctx := context.Background()
		buyer := f.buyer(t, "a@example.com", "0")

		tests := []struct {
			name    string
			amount  string
			address string
		}{
			{"zero amount", "0", "addr"},
			{"negative amount", "-5", "addr"},
			{"blank address", "10", "   "},
			{"rounds to zero", "0.001", "addr"},
		}
		for _, tt := range tests {
			_, err := f.payment.Submit(ctx, buyer, dec(tt.amount), tt.address)
			assert.ErrorIs(t, err, apperr.ErrInvalidInput, tt.name)
		}

		_, err := f.payment.Submit(ctx, "missing", dec("10"), "addr")
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		mine, err := f.payment.ListMine(ctx, buyer)
		require.NoError(t, err)
		assert.Empty(t, mine)
	})
}

func TestPayment_ProcessedOnlyOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		f := newFixture(t, s)
		ctx := context.Background()
		buyer := f.buyer(t, "a@example.com", "0")

		first, err := f.payment.Submit(ctx, buyer, dec("10"), "addr")
		require.NoError(t, err)
		second, err := f.payment.Submit(ctx, buyer, dec("20"), "addr")
		require.NoError(t, err)

		_, err = f.payment.Approve(ctx, "op", first.ID)
		require.NoError(t, err)
		_, err = f.payment.Approve(ctx, "op", first.ID)
		assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)
		_, err = f.payment.Reject(ctx, "op", first.ID)
		assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)

		rejected, err := f.payment.Reject(ctx, "op", second.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentRejected, rejected.Status)
		_, err = f.payment.Approve(ctx, "op", second.ID)
		assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)

		_, err = f.payment.Approve(ctx, "op", "missing")
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		assertMoney(t, "345.00", f.balance(t, buyer))
	})
}

func TestPayment_AmountsStayWithinStoredRange(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		f := newFixture(t, s)
		ctx := context.Background()
		buyer := f.buyer(t, "a@example.com", "0")

		_, err := f.payment.Submit(ctx, buyer, dec("100000000000000000"), "addr")
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)

		// In range before conversion, out of range after.
		_, err = f.payment.Submit(ctx, buyer, dec("100000000000"), "addr")
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)

		mine, err := f.payment.ListMine(ctx, buyer)
		require.NoError(t, err)
		assert.Empty(t, mine)

		_, err = f.auth.SetBalance(ctx, "op", buyer, model.MaxAmount.Add(dec("1")))
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)

		_, err = f.auth.SetBalance(ctx, "op", buyer, dec("999999999999"))
		require.NoError(t, err)

		req, err := f.payment.Submit(ctx, buyer, dec("10"), "addr")
		require.NoError(t, err)
		_, err = f.payment.Approve(ctx, "op", req.ID)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)

		pending, err := f.payment.List(ctx, model.PaymentPending)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, req.ID, pending[0].ID)
		assertMoney(t, "999999999999", f.balance(t, buyer))
		assert.False(t, f.balance(t, buyer).IsNegative())
	})
}

func TestPayment_ConcurrentApprovalsCreditOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		f := newFixture(t, s)
		ctx := context.Background()
		buyer := f.buyer(t, "a@example.com", "0")
		req, err := f.payment.Submit(ctx, buyer, dec("1"), "addr")
		require.NoError(t, err)

		var wg sync.WaitGroup
		var mu sync.Mutex
		ok := 0
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := f.payment.Approve(ctx, "op", req.ID); err == nil {
					mu.Lock()
					ok++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, ok)
		assertMoney(t, "34.50", f.balance(t, buyer))
	})
}

// creditFailingStore fails every CreditBalance call.
type creditFailingStore struct {
	repository.Store
}

func (creditFailingStore) CreditBalance(context.Context, string, decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, apperr.NotFound("user")
}

func TestPayment_FailedCreditLeavesRequestPending(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		f := newFixture(t, s)
		ctx := context.Background()
		buyer := f.buyer(t, "a@example.com", "0")
		req, err := f.payment.Submit(ctx, buyer, dec("10"), "addr")
		require.NoError(t, err)

		failing := NewPaymentService(creditFailingStore{s}, f.rates, nil, fixedClock(baseTime))
		_, err = failing.Approve(ctx, "op", req.ID)
		require.ErrorIs(t, err, apperr.ErrNotFound)

		got, err := s.GetPaymentRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentPending, got.Status)
		assert.Nil(t, got.ProcessedAt)

		_, err = f.payment.Approve(ctx, "op", req.ID)
		require.NoError(t, err)
		assertMoney(t, "345.00", f.balance(t, buyer))
	})
}

func TestPayment_ListingsAndPayoutAddress(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		f := newFixture(t, s)
		ctx := context.Background()
		a := f.buyer(t, "a@example.com", "0")
		b := f.buyer(t, "b@example.com", "0")

		ra, err := f.payment.Submit(ctx, a, dec("1"), "addr")
		require.NoError(t, err)
		_, err = f.payment.Submit(ctx, b, dec("2"), "addr")
		require.NoError(t, err)
		_, err = f.payment.Approve(ctx, "op", ra.ID)
		require.NoError(t, err)

		mine, err := f.payment.ListMine(ctx, a)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, ra.ID, mine[0].ID)

		all, err := f.payment.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)
		pending, err := f.payment.List(ctx, model.PaymentPending)
		require.NoError(t, err)
		assert.Len(t, pending, 1)
		_, err = f.payment.List(ctx, "bogus")
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)

		addr, err := f.payment.PayoutAddress(ctx)
		require.NoError(t, err)
		assert.Empty(t, addr)
		assert.ErrorIs(t, f.payment.SetPayoutAddress(ctx, "op", " "), apperr.ErrInvalidInput)
		require.NoError(t, f.payment.SetPayoutAddress(ctx, "op", "IBAN TR00"))
		addr, err = f.payment.PayoutAddress(ctx)
		require.NoError(t, err)
		assert.Equal(t, "IBAN TR00", addr)
	})
}
