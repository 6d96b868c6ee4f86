package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"accountmart-api/internal/apperr"
	"accountmart-api/internal/model"

	"github.com/shopspring/decimal"
)

// SQLStore implements Store on database/sql for SQLite, PostgreSQL and MySQL.
// RunAtomic opens a transaction that travels in the context; every method
// picks it up, so a purchase or approval either commits entirely or not at all.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

type txKey struct{}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return &SQLStore{db: db, d: d}, nil
}

func (s *SQLStore) conn(ctx context.Context) executor {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

func (s *SQLStore) execContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.conn(ctx).ExecContext(ctx, s.d.rebind(query), args...)
}

func (s *SQLStore) queryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.conn(ctx).QueryContext(ctx, s.d.rebind(query), args...)
}

func (s *SQLStore) queryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.conn(ctx).QueryRowContext(ctx, s.d.rebind(query), args...)
}

// RunAtomic runs fn inside a transaction. Nested calls join the outer transaction.
func (s *SQLStore) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("[SQLStore] Rollback failed: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Transactional reports true: RunAtomic rolls back on error.
func (s *SQLStore) Transactional() bool { return true }

// affected returns the rows matched by a conditional statement.
func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

func (s *SQLStore) exists(ctx context.Context, table, id string) (bool, error) {
	var n int
	err := s.queryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", table, err)
	}
	return n > 0, nil
}

// ---- users ----

const userColumns = `id, email, password_hash, balance, role, created_at`

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u         model.User
		balance   int64
		role      string
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &balance, &role, &createdAt); err != nil {
		return nil, err
	}
	u.Balance = fromMinor(balance)
	u.Role = model.Role(role)
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

func (s *SQLStore) CreateUser(ctx context.Context, user *model.User) error {
	if err := checkAmounts(user.Balance); err != nil {
		return err
	}
	_, err := s.execContext(ctx,
		`INSERT INTO users (id, email, password_hash, balance, role, created_at, schema_version) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, toMinor(user.Balance), string(user.Role), toMillis(user.CreatedAt), model.SchemaVersion)
	if err != nil {
		if s.d.isUniqueViolation(err) {
			return apperr.ErrDuplicateIdentity
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *SQLStore) getUser(ctx context.Context, where string, arg string) (*model.User, error) {
	u, err := scanUser(s.queryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, "email = ?", email)
}

func (s *SQLStore) ListUsers(ctx context.Context, role model.Role) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []interface{}
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, string(role))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *SQLStore) CountUsers(ctx context.Context, role model.Role) (int64, error) {
	query := `SELECT COUNT(*) FROM users`
	var args []interface{}
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, string(role))
	}
	var n int64
	if err := s.queryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (s *SQLStore) balanceOf(ctx context.Context, userID string) (decimal.Decimal, error) {
	var balance int64
	err := s.queryRowContext(ctx, `SELECT balance FROM users WHERE id = ?`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, apperr.NotFound("user")
		}
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	return fromMinor(balance), nil
}

func (s *SQLStore) DebitBalance(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !model.WithinMaxAmount(amount) {
		balance, err := s.balanceOf(ctx, userID)
		if err != nil {
			return decimal.Zero, err
		}
		return balance, apperr.ErrInsufficientBalance
	}
	minor := toMinor(amount)
	res, err := s.execContext(ctx,
		`UPDATE users SET balance = balance - ? WHERE id = ? AND balance >= ?`, minor, userID, minor)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to debit balance: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return decimal.Zero, err
	}
	balance, err := s.balanceOf(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if n == 0 {
		return balance, apperr.ErrInsufficientBalance
	}
	return balance, nil
}

func (s *SQLStore) CreditBalance(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := checkAmounts(amount); err != nil {
		return decimal.Zero, err
	}
	minor := toMinor(amount)
	res, err := s.execContext(ctx,
		`UPDATE users SET balance = balance + ? WHERE id = ? AND balance <= ?`, minor, userID, maxMinor-minor)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to credit balance: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return decimal.Zero, err
	}
	balance, err := s.balanceOf(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if n == 0 {
		return balance, errBalanceLimit()
	}
	return balance, nil
}

func (s *SQLStore) updateUser(ctx context.Context, set string, value interface{}, userID string) error {
	res, err := s.execContext(ctx, `UPDATE users SET `+set+` = ? WHERE id = ?`, value, userID)
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", set, err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

func (s *SQLStore) SetBalance(ctx context.Context, userID string, amount decimal.Decimal) error {
	if err := checkAmounts(amount); err != nil {
		return err
	}
	return s.updateUser(ctx, "balance", toMinor(amount), userID)
}

func (s *SQLStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return s.updateUser(ctx, "password_hash", hash, userID)
}

func (s *SQLStore) DeleteUser(ctx context.Context, userID string) error {
	return s.RunAtomic(ctx, func(ctx context.Context) error {
		ok, err := s.exists(ctx, "users", userID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("user")
		}
		for _, q := range []string{
			`DELETE FROM purchase_records WHERE buyer_id = ?`,
			`DELETE FROM payment_requests WHERE buyer_id = ?`,
			`DELETE FROM activity_log WHERE actor = ?`,
			`DELETE FROM users WHERE id = ?`,
		} {
			if _, err := s.execContext(ctx, q, userID); err != nil {
				return fmt.Errorf("failed to delete user: %w", err)
			}
		}
		return nil
	})
}

// ---- catalog ----

func (s *SQLStore) CreateCategory(ctx context.Context, category *model.Category) error {
	_, err := s.execContext(ctx,
		`INSERT INTO categories (id, name, description, created_at, schema_version) VALUES (?, ?, ?, ?, ?)`,
		category.ID, category.Name, category.Description, toMillis(category.CreatedAt), model.SchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

func scanCategory(row rowScanner) (*model.Category, error) {
	var (
		c         model.Category
		createdAt int64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &createdAt); err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(createdAt)
	return &c, nil
}

func (s *SQLStore) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	c, err := scanCategory(s.queryRowContext(ctx,
		`SELECT id, name, description, created_at FROM categories WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("category")
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return c, nil
}

func (s *SQLStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.queryContext(ctx,
		`SELECT id, name, description, created_at FROM categories ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	out := make([]model.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateCategory(ctx context.Context, category *model.Category) error {
	res, err := s.execContext(ctx, `UPDATE categories SET name = ?, description = ? WHERE id = ?`,
		category.Name, category.Description, category.ID)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("category")
	}
	return nil
}

func (s *SQLStore) DeleteCategory(ctx context.Context, id string) error {
	return s.RunAtomic(ctx, func(ctx context.Context) error {
		res, err := s.execContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("category")
		}
		if _, err := s.execContext(ctx, `DELETE FROM inventory_items WHERE category_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete category items: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) CountCategories(ctx context.Context) (int64, error) {
	var n int64
	if err := s.queryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count categories: %w", err)
	}
	return n, nil
}

const itemColumns = `seq, id, category_id, payload, secondary_password, price, status, created_at`

func scanItem(row rowScanner) (*model.InventoryItem, error) {
	var (
		it        model.InventoryItem
		price     int64
		status    string
		createdAt int64
	)
	if err := row.Scan(&it.Seq, &it.ID, &it.CategoryID, &it.Payload, &it.SecondaryPassword, &price, &status, &createdAt); err != nil {
		return nil, err
	}
	it.Price = fromMinor(price)
	it.Status = model.ItemStatus(status)
	it.CreatedAt = fromMillis(createdAt)
	return &it, nil
}

func (s *SQLStore) CreateItem(ctx context.Context, item *model.InventoryItem) error {
	if err := checkAmounts(item.Price); err != nil {
		return err
	}
	return s.RunAtomic(ctx, func(ctx context.Context) error {
		ok, err := s.exists(ctx, "categories", item.CategoryID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("category")
		}
		_, err = s.execContext(ctx,
			`INSERT INTO inventory_items (id, category_id, payload, secondary_password, price, status, created_at, schema_version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.CategoryID, item.Payload, item.SecondaryPassword, toMinor(item.Price), string(item.Status),
			toMillis(item.CreatedAt), model.SchemaVersion)
		if err != nil {
			return fmt.Errorf("failed to create item: %w", err)
		}
		if err := s.queryRowContext(ctx, `SELECT seq FROM inventory_items WHERE id = ?`, item.ID).Scan(&item.Seq); err != nil {
			return fmt.Errorf("failed to read item sequence: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) GetItem(ctx context.Context, id string) (*model.InventoryItem, error) {
	it, err := scanItem(s.queryRowContext(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("item")
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return it, nil
}

func itemWhere(filter model.ItemFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.CategoryID != "" {
		conds = append(conds, "category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *SQLStore) scanItems(rows *sql.Rows) ([]model.InventoryItem, error) {
	defer rows.Close()
	items := make([]model.InventoryItem, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (s *SQLStore) ListItems(ctx context.Context, filter model.ItemFilter) ([]model.InventoryItem, error) {
	where, args := itemWhere(filter)
	rows, err := s.queryContext(ctx, `SELECT `+itemColumns+` FROM inventory_items`+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return s.scanItems(rows)
}

func (s *SQLStore) DeleteItem(ctx context.Context, id string) error {
	res, err := s.execContext(ctx, `DELETE FROM inventory_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("item")
	}
	return nil
}

func (s *SQLStore) CountItems(ctx context.Context, filter model.ItemFilter) (int64, error) {
	where, args := itemWhere(filter)
	var n int64
	if err := s.queryRowContext(ctx, `SELECT COUNT(*) FROM inventory_items`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

func (s *SQLStore) ListAvailableItems(ctx context.Context, categoryID string, limit int) ([]model.InventoryItem, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE category_id = ? AND status = ? ORDER BY seq LIMIT ?`
	// Row locks only make sense inside a transaction.
	if _, inTx := ctx.Value(txKey{}).(*sql.Tx); inTx {
		query += s.d.lockClause
	}
	rows, err := s.queryContext(ctx, query, categoryID, string(model.ItemAvailable), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select available items: %w", err)
	}
	return s.scanItems(rows)
}

func (s *SQLStore) MarkItemSold(ctx context.Context, itemID string) error {
	res, err := s.execContext(ctx, `UPDATE inventory_items SET status = ? WHERE id = ? AND status = ?`,
		string(model.ItemSold), itemID, string(model.ItemAvailable))
	if err != nil {
		return fmt.Errorf("failed to mark item sold: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrConcurrentConflict
	}
	return nil
}

func (s *SQLStore) ReleaseItem(ctx context.Context, itemID string) error {
	_, err := s.execContext(ctx, `UPDATE inventory_items SET status = ? WHERE id = ? AND status = ?`,
		string(model.ItemAvailable), itemID, string(model.ItemSold))
	if err != nil {
		return fmt.Errorf("failed to release item: %w", err)
	}
	return nil
}

// ---- purchases ----

const purchaseColumns = `id, buyer_id, item_id, category_id, category_name, payload, secondary_password, price, purchased_at`

func scanPurchase(row rowScanner) (*model.PurchaseRecord, error) {
	var (
		p           model.PurchaseRecord
		price       int64
		purchasedAt int64
	)
	if err := row.Scan(&p.ID, &p.BuyerID, &p.ItemID, &p.CategoryID, &p.CategoryName, &p.Payload,
		&p.SecondaryPassword, &price, &purchasedAt); err != nil {
		return nil, err
	}
	p.Price = fromMinor(price)
	p.PurchasedAt = fromMillis(purchasedAt)
	return &p, nil
}

func (s *SQLStore) CreatePurchases(ctx context.Context, records []model.PurchaseRecord) error {
	return s.RunAtomic(ctx, func(ctx context.Context) error {
		for _, r := range records {
			_, err := s.execContext(ctx,
				`INSERT INTO purchase_records (`+purchaseColumns+`, schema_version) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				r.ID, r.BuyerID, r.ItemID, r.CategoryID, r.CategoryName, r.Payload, r.SecondaryPassword,
				toMinor(r.Price), toMillis(r.PurchasedAt), model.SchemaVersion)
			if err != nil {
				if s.d.isUniqueViolation(err) {
					return fmt.Errorf("item %s already has a purchase record: %w", r.ItemID, apperr.ErrConcurrentConflict)
				}
				return fmt.Errorf("failed to create purchase record: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLStore) listPurchases(ctx context.Context, query string, args ...interface{}) ([]model.PurchaseRecord, error) {
	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	out := make([]model.PurchaseRecord, 0)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListPurchasesByBuyer(ctx context.Context, buyerID string) ([]model.PurchaseRecord, error) {
	return s.listPurchases(ctx,
		`SELECT `+purchaseColumns+` FROM purchase_records WHERE buyer_id = ? ORDER BY purchased_at DESC, id DESC`, buyerID)
}

func (s *SQLStore) GetPurchase(ctx context.Context, buyerID, id string) (*model.PurchaseRecord, error) {
	p, err := scanPurchase(s.queryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchase_records WHERE id = ? AND buyer_id = ?`, id, buyerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("purchase")
		}
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	return p, nil
}

func (s *SQLStore) DeletePurchase(ctx context.Context, buyerID, id string) error {
	res, err := s.execContext(ctx, `DELETE FROM purchase_records WHERE id = ? AND buyer_id = ?`, id, buyerID)
	if err != nil {
		return fmt.Errorf("failed to delete purchase: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("purchase")
	}
	return nil
}

func (s *SQLStore) ListPurchasesSince(ctx context.Context, since time.Time) ([]model.PurchaseRecord, error) {
	return s.listPurchases(ctx,
		`SELECT `+purchaseColumns+` FROM purchase_records WHERE purchased_at >= ? ORDER BY purchased_at, id`, toMillis(since))
}

func (s *SQLStore) PurchaseTotals(ctx context.Context) (model.PurchaseTotals, error) {
	var count, revenue int64
	err := s.queryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(price), 0) FROM purchase_records`).Scan(&count, &revenue)
	if err != nil {
		return model.PurchaseTotals{}, fmt.Errorf("failed to total purchases: %w", err)
	}
	return model.PurchaseTotals{Count: count, Revenue: fromMinor(revenue)}, nil
}

// ---- payments ----

const paymentColumns = `id, buyer_id, buyer_email, amount_source, rate, amount_target, address, status, created_at, processed_at, processed_by`

func scanPayment(row rowScanner) (*model.PaymentRequest, error) {
	var (
		r            model.PaymentRequest
		amountSource int64
		rate         string
		amountTarget int64
		status       string
		createdAt    int64
		processedAt  sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.BuyerID, &r.BuyerEmail, &amountSource, &rate, &amountTarget, &r.Address,
		&status, &createdAt, &processedAt, &r.ProcessedBy); err != nil {
		return nil, err
	}
	parsedRate, err := decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid stored rate %q: %w", rate, err)
	}
	r.AmountSource = fromMinor(amountSource)
	r.Rate = parsedRate
	r.AmountTarget = fromMinor(amountTarget)
	r.Status = model.PaymentStatus(status)
	r.CreatedAt = fromMillis(createdAt)
	if processedAt.Valid {
		t := fromMillis(processedAt.Int64)
		r.ProcessedAt = &t
	}
	return &r, nil
}

func (s *SQLStore) CreatePaymentRequest(ctx context.Context, req *model.PaymentRequest) error {
	if err := checkAmounts(req.AmountSource, req.AmountTarget); err != nil {
		return err
	}
	var processedAt sql.NullInt64
	if req.ProcessedAt != nil {
		processedAt = sql.NullInt64{Int64: toMillis(*req.ProcessedAt), Valid: true}
	}
	_, err := s.execContext(ctx,
		`INSERT INTO payment_requests (`+paymentColumns+`, schema_version) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.BuyerID, req.BuyerEmail, toMinor(req.AmountSource), req.Rate.String(), toMinor(req.AmountTarget),
		req.Address, string(req.Status), toMillis(req.CreatedAt), processedAt, req.ProcessedBy, model.SchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to create payment request: %w", err)
	}
	return nil
}

func (s *SQLStore) GetPaymentRequest(ctx context.Context, id string) (*model.PaymentRequest, error) {
	r, err := scanPayment(s.queryRowContext(ctx, `SELECT `+paymentColumns+` FROM payment_requests WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("payment request")
		}
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	return r, nil
}

func paymentWhere(buyerID string, status model.PaymentStatus) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if buyerID != "" {
		conds = append(conds, "buyer_id = ?")
		args = append(args, buyerID)
	}
	if status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(status))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *SQLStore) ListPaymentRequests(ctx context.Context, buyerID string, status model.PaymentStatus) ([]model.PaymentRequest, error) {
	where, args := paymentWhere(buyerID, status)
	rows, err := s.queryContext(ctx,
		`SELECT `+paymentColumns+` FROM payment_requests`+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment requests: %w", err)
	}
	defer rows.Close()

	out := make([]model.PaymentRequest, 0)
	for rows.Next() {
		r, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment request: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountPaymentRequests(ctx context.Context, status model.PaymentStatus) (int64, error) {
	where, args := paymentWhere("", status)
	var n int64
	if err := s.queryRowContext(ctx, `SELECT COUNT(*) FROM payment_requests`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count payment requests: %w", err)
	}
	return n, nil
}

func (s *SQLStore) SumApproved(ctx context.Context) (decimal.Decimal, error) {
	var sum int64
	err := s.queryRowContext(ctx, `SELECT COALESCE(SUM(amount_target), 0) FROM payment_requests WHERE status = ?`,
		string(model.PaymentApproved)).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum approved payments: %w", err)
	}
	return fromMinor(sum), nil
}

func (s *SQLStore) TransitionPaymentRequest(ctx context.Context, id string, to model.PaymentStatus, at time.Time, by string) error {
	res, err := s.execContext(ctx,
		`UPDATE payment_requests SET status = ?, processed_at = ?, processed_by = ? WHERE id = ? AND status = ?`,
		string(to), toMillis(at), by, id, string(model.PaymentPending))
	if err != nil {
		return fmt.Errorf("failed to transition payment request: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	ok, err := s.exists(ctx, "payment_requests", id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("payment request")
	}
	return apperr.ErrInvalidStateTransition
}

func (s *SQLStore) RevertPaymentRequest(ctx context.Context, id string, from model.PaymentStatus) error {
	res, err := s.execContext(ctx,
		`UPDATE payment_requests SET status = ?, processed_at = NULL, processed_by = '' WHERE id = ? AND status = ?`,
		string(model.PaymentPending), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to revert payment request: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrInvalidStateTransition
	}
	return nil
}

// ---- activity & settings ----

func (s *SQLStore) AppendActivity(ctx context.Context, entry *model.ActivityEntry) error {
	_, err := s.execContext(ctx,
		`INSERT INTO activity_log (id, actor, action, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.Actor, entry.Action, entry.Detail, toMillis(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (s *SQLStore) ListActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error) {
	query := `SELECT id, actor, action, detail, created_at FROM activity_log ORDER BY seq DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	out := make([]model.ActivityEntry, 0)
	for rows.Next() {
		var (
			e         model.ActivityEntry
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.queryRowContext(ctx, `SELECT value FROM settings WHERE setting_key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

func (s *SQLStore) PutSetting(ctx context.Context, key, value string) error {
	if _, err := s.execContext(ctx, s.d.upsertSetting, key, value, toMillis(time.Now())); err != nil {
		return fmt.Errorf("failed to put setting: %w", err)
	}
	return nil
}

// Stats returns table counts and connection pool statistics.
func (s *SQLStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{
		"type": s.d.name,
	}

	for _, table := range []string{"users", "categories", "inventory_items", "purchase_records", "payment_requests", "activity_log"} {
		var count int64
		if err := s.queryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table] = count
	}

	dbStats := s.db.Stats()
	stats["connections"] = map[string]interface{}{
		"open":     dbStats.OpenConnections,
		"in_use":   dbStats.InUse,
		"idle":     dbStats.Idle,
		"max_open": dbStats.MaxOpenConnections,
	}

	return stats, nil
}

// Close closes the database connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ensure SQLStore implements Store
var _ Store = (*SQLStore)(nil)
