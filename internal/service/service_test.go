package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"accountmart-api/internal/model"
	"accountmart-api/internal/repository"
	"accountmart-api/internal/service/notify"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) Clock { return func() time.Time { return t } }

// forEachStore runs fn against the non-transactional memory store and the
// transactional SQLite store.
func forEachStore(t *testing.T, fn func(t *testing.T, s repository.Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, repository.NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Kind, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

type stubRates struct {
	mu   sync.Mutex
	rate decimal.Decimal
}

func (r *stubRates) Rate(context.Context) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rate
}

func (r *stubRates) set(v string) {
	r.mu.Lock()
	r.rate = dec(v)
	r.mu.Unlock()
}

// fixture wires every service over one store.
type fixture struct {
	store    repository.Store
	notifier *recordingNotifier
	rates    *stubRates
	tokens   *TokenService
	auth     *AuthService
	catalog  *CatalogService
	purchase *PurchaseService
	payment  *PaymentService
	admin    *AdminService
}

func newFixture(t *testing.T, store repository.Store) *fixture {
	t.Helper()
	clock := fixedClock(baseTime)
	n := &recordingNotifier{}
	r := &stubRates{rate: dec("34.5")}

	tokens, err := NewTokenService("test-secret", 0, clock)
	require.NoError(t, err)
	auth, err := NewAuthService(store, tokens, n, AuthConfig{
		Operator:   OperatorCredentials{Username: "admin", Password: "admin-pass"},
		BcryptCost: bcrypt.MinCost,
	}, clock)
	require.NoError(t, err)

	return &fixture{
		store:    store,
		notifier: n,
		rates:    r,
		tokens:   tokens,
		auth:     auth,
		catalog:  NewCatalogService(store, clock),
		purchase: NewPurchaseService(store, n, clock),
		payment:  NewPaymentService(store, r, n, clock),
		admin:    NewAdminService(store, clock),
	}
}

// buyer registers a buyer and sets its balance.
func (f *fixture) buyer(t *testing.T, email, balance string) string {
	t.Helper()
	ctx := context.Background()
	sess, err := f.auth.Register(ctx, email, "secret123")
	require.NoError(t, err)
	if balance != "0" {
		_, err = f.auth.SetBalance(ctx, "op", sess.User.ID, dec(balance))
		require.NoError(t, err)
	}
	return sess.User.ID
}

// category creates a category stocked with one item per price.
func (f *fixture) category(t *testing.T, name string, prices ...string) (*model.Category, []*model.InventoryItem) {
	t.Helper()
	ctx := context.Background()
	c, err := f.catalog.CreateCategory(ctx, "op", name, "")
	require.NoError(t, err)
	items := make([]*model.InventoryItem, 0, len(prices))
	for i, p := range prices {
		it, err := f.catalog.CreateItem(ctx, "op", ItemInput{
			CategoryID: c.ID,
			Payload:    name + "-payload-" + string(rune('a'+i)),
			Price:      dec(p),
		})
		require.NoError(t, err)
		items = append(items, it)
	}
	return c, items
}

func (f *fixture) balance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	u, err := f.store.GetUserByID(context.Background(), userID)
	require.NoError(t, err)
	return u.Balance
}
