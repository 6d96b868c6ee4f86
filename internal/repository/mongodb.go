package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"accountmart-api/internal/apperr"
	"accountmart-api/internal/model"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBStore implements Store using MongoDB.
// Every write is a single-document conditional update; RunAtomic offers no
// rollback, so multi-document operations compensate in the service layer.
type MongoDBStore struct {
	client *mongo.Client
	db     *mongo.Database

	users      *mongo.Collection
	categories *mongo.Collection
	items      *mongo.Collection
	purchases  *mongo.Collection
	payments   *mongo.Collection
	activity   *mongo.Collection
	settings   *mongo.Collection
	counters   *mongo.Collection
}

// NewMongoDBStore connects to MongoDB and ensures indexes.
func NewMongoDBStore(uri, database string) (*MongoDBStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	s := &MongoDBStore{
		client:     client,
		db:         db,
		users:      db.Collection("users"),
		categories: db.Collection("categories"),
		items:      db.Collection("inventory_items"),
		purchases:  db.Collection("purchase_records"),
		payments:   db.Collection("payment_requests"),
		activity:   db.Collection("activity_log"),
		settings:   db.Collection("settings"),
		counters:   db.Collection("counters"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	log.Printf("[MongoDB] Connected to %s", database)
	return s, nil
}

func (s *MongoDBStore) ensureIndexes(ctx context.Context) error {
	unique := []struct {
		coll *mongo.Collection
		key  string
	}{
		{s.users, "email"},
		{s.purchases, "item_id"},
	}
	for _, u := range unique {
		_, err := u.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: u.key, Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			return fmt.Errorf("failed to create unique index on %s.%s: %w", u.coll.Name(), u.key, err)
		}
	}

	secondary := []struct {
		coll *mongo.Collection
		keys bson.D
	}{
		{s.items, bson.D{{Key: "category_id", Value: 1}, {Key: "status", Value: 1}, {Key: "seq", Value: 1}}},
		{s.purchases, bson.D{{Key: "buyer_id", Value: 1}, {Key: "purchased_at", Value: -1}}},
		{s.payments, bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{s.activity, bson.D{{Key: "seq", Value: -1}}},
	}
	for _, idx := range secondary {
		if _, err := idx.coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: idx.keys}); err != nil {
			log.Printf("[MongoDB] Warning: failed to create index on %s: %v", idx.coll.Name(), err)
		}
	}
	return nil
}

// nextSeq atomically increments a named counter.
func (s *MongoDBStore) nextSeq(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Value int64 `bson:"value"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.counters.FindOneAndUpdate(ctx, bson.M{"_id": name}, bson.M{"$inc": bson.M{"value": int64(1)}}, opts).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s sequence: %w", name, err)
	}
	return doc.Value, nil
}

// RunAtomic runs fn directly; callers compensate on failure.
func (s *MongoDBStore) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Transactional reports false: writes are committed one document at a time.
func (s *MongoDBStore) Transactional() bool { return false }

// ---- documents ----

type userDocument struct {
	ID            string    `bson:"_id"`
	Email         string    `bson:"email"`
	PasswordHash  string    `bson:"password_hash"`
	Balance       int64     `bson:"balance"`
	Role          string    `bson:"role"`
	CreatedAt     time.Time `bson:"created_at"`
	SchemaVersion int       `bson:"schema_version"`
}

func (d userDocument) toModel() *model.User {
	return &model.User{
		ID:           d.ID,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Balance:      fromMinor(d.Balance),
		Role:         model.Role(d.Role),
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

type categoryDocument struct {
	ID            string    `bson:"_id"`
	Name          string    `bson:"name"`
	Description   string    `bson:"description"`
	CreatedAt     time.Time `bson:"created_at"`
	SchemaVersion int       `bson:"schema_version"`
}

func (d categoryDocument) toModel() model.Category {
	return model.Category{ID: d.ID, Name: d.Name, Description: d.Description, CreatedAt: d.CreatedAt.UTC()}
}

type itemDocument struct {
	ID                string    `bson:"_id"`
	Seq               int64     `bson:"seq"`
	CategoryID        string    `bson:"category_id"`
	Payload           string    `bson:"payload"`
	SecondaryPassword string    `bson:"secondary_password"`
	Price             int64     `bson:"price"`
	Status            string    `bson:"status"`
	CreatedAt         time.Time `bson:"created_at"`
	SchemaVersion     int       `bson:"schema_version"`
}

func (d itemDocument) toModel() model.InventoryItem {
	return model.InventoryItem{
		ID:                d.ID,
		CategoryID:        d.CategoryID,
		Payload:           d.Payload,
		SecondaryPassword: d.SecondaryPassword,
		Price:             fromMinor(d.Price),
		Status:            model.ItemStatus(d.Status),
		CreatedAt:         d.CreatedAt.UTC(),
		Seq:               d.Seq,
	}
}

type purchaseDocument struct {
	ID                string    `bson:"_id"`
	BuyerID           string    `bson:"buyer_id"`
	ItemID            string    `bson:"item_id"`
	CategoryID        string    `bson:"category_id"`
	CategoryName      string    `bson:"category_name"`
	Payload           string    `bson:"payload"`
	SecondaryPassword string    `bson:"secondary_password"`
	Price             int64     `bson:"price"`
	PurchasedAt       time.Time `bson:"purchased_at"`
	SchemaVersion     int       `bson:"schema_version"`
}

func (d purchaseDocument) toModel() model.PurchaseRecord {
	return model.PurchaseRecord{
		ID:                d.ID,
		BuyerID:           d.BuyerID,
		ItemID:            d.ItemID,
		CategoryID:        d.CategoryID,
		CategoryName:      d.CategoryName,
		Payload:           d.Payload,
		SecondaryPassword: d.SecondaryPassword,
		Price:             fromMinor(d.Price),
		PurchasedAt:       d.PurchasedAt.UTC(),
	}
}

type paymentDocument struct {
	ID            string     `bson:"_id"`
	BuyerID       string     `bson:"buyer_id"`
	BuyerEmail    string     `bson:"buyer_email"`
	AmountSource  int64      `bson:"amount_source"`
	Rate          string     `bson:"rate"`
	AmountTarget  int64      `bson:"amount_target"`
	Address       string     `bson:"address"`
	Status        string     `bson:"status"`
	CreatedAt     time.Time  `bson:"created_at"`
	ProcessedAt   *time.Time `bson:"processed_at,omitempty"`
	ProcessedBy   string     `bson:"processed_by,omitempty"`
	SchemaVersion int        `bson:"schema_version"`
}

func (d paymentDocument) toModel() (model.PaymentRequest, error) {
	rate, err := decimal.NewFromString(d.Rate)
	if err != nil {
		return model.PaymentRequest{}, fmt.Errorf("invalid stored rate %q: %w", d.Rate, err)
	}
	r := model.PaymentRequest{
		ID:           d.ID,
		BuyerID:      d.BuyerID,
		BuyerEmail:   d.BuyerEmail,
		AmountSource: fromMinor(d.AmountSource),
		Rate:         rate,
		AmountTarget: fromMinor(d.AmountTarget),
		Address:      d.Address,
		Status:       model.PaymentStatus(d.Status),
		CreatedAt:    d.CreatedAt.UTC(),
		ProcessedBy:  d.ProcessedBy,
	}
	if d.ProcessedAt != nil {
		t := d.ProcessedAt.UTC()
		r.ProcessedAt = &t
	}
	return r, nil
}

type activityDocument struct {
	ID        string    `bson:"_id"`
	Seq       int64     `bson:"seq"`
	Actor     string    `bson:"actor"`
	Action    string    `bson:"action"`
	Detail    string    `bson:"detail"`
	CreatedAt time.Time `bson:"created_at"`
}

// ---- users ----

func (s *MongoDBStore) CreateUser(ctx context.Context, user *model.User) error {
	if err := checkAmounts(user.Balance); err != nil {
		return err
	}
	_, err := s.users.InsertOne(ctx, userDocument{
		ID:            user.ID,
		Email:         user.Email,
		PasswordHash:  user.PasswordHash,
		Balance:       toMinor(user.Balance),
		Role:          string(user.Role),
		CreatedAt:     user.CreatedAt,
		SchemaVersion: model.SchemaVersion,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.ErrDuplicateIdentity
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *MongoDBStore) findUser(ctx context.Context, filter bson.M) (*model.User, error) {
	var doc userDocument
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return doc.toModel(), nil
}

func (s *MongoDBStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *MongoDBStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func roleFilter(role model.Role) bson.M {
	if role == "" {
		return bson.M{}
	}
	return bson.M{"role": string(role)}
}

func (s *MongoDBStore) ListUsers(ctx context.Context, role model.Role) ([]model.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.users.Find(ctx, roleFilter(role), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	users := make([]model.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, *d.toModel())
	}
	return users, nil
}

func (s *MongoDBStore) CountUsers(ctx context.Context, role model.Role) (int64, error) {
	n, err := s.users.CountDocuments(ctx, roleFilter(role))
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (s *MongoDBStore) DebitBalance(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !model.WithinMaxAmount(amount) {
		u, err := s.GetUserByID(ctx, userID)
		if err != nil {
			return decimal.Zero, err
		}
		return u.Balance, apperr.ErrInsufficientBalance
	}
	minor := toMinor(amount)
	var doc userDocument
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": userID, "balance": bson.M{"$gte": minor}},
		bson.M{"$inc": bson.M{"balance": -minor}},
		opts,
	).Decode(&doc)
	if err == nil {
		return fromMinor(doc.Balance), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return decimal.Zero, fmt.Errorf("failed to debit balance: %w", err)
	}

	u, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return u.Balance, apperr.ErrInsufficientBalance
}

func (s *MongoDBStore) CreditBalance(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := checkAmounts(amount); err != nil {
		return decimal.Zero, err
	}
	minor := toMinor(amount)
	var doc userDocument
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": userID, "balance": bson.M{"$lte": maxMinor - minor}},
		bson.M{"$inc": bson.M{"balance": minor}},
		opts,
	).Decode(&doc)
	if err == nil {
		return fromMinor(doc.Balance), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return decimal.Zero, fmt.Errorf("failed to credit balance: %w", err)
	}

	u, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return u.Balance, errBalanceLimit()
}

func (s *MongoDBStore) setUserField(ctx context.Context, userID, field string, value interface{}) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{field: value}})
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", field, err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

func (s *MongoDBStore) SetBalance(ctx context.Context, userID string, amount decimal.Decimal) error {
	if err := checkAmounts(amount); err != nil {
		return err
	}
	return s.setUserField(ctx, userID, "balance", toMinor(amount))
}

func (s *MongoDBStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return s.setUserField(ctx, userID, "password_hash", hash)
}

func (s *MongoDBStore) DeleteUser(ctx context.Context, userID string) error {
	res, err := s.users.DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("user")
	}

	cascades := []struct {
		coll   *mongo.Collection
		filter bson.M
	}{
		{s.purchases, bson.M{"buyer_id": userID}},
		{s.payments, bson.M{"buyer_id": userID}},
		{s.activity, bson.M{"actor": userID}},
	}
	for _, c := range cascades {
		if _, err := c.coll.DeleteMany(ctx, c.filter); err != nil {
			return fmt.Errorf("failed to delete user %s from %s: %w", userID, c.coll.Name(), err)
		}
	}
	return nil
}

// ---- catalog ----

func (s *MongoDBStore) CreateCategory(ctx context.Context, category *model.Category) error {
	_, err := s.categories.InsertOne(ctx, categoryDocument{
		ID:            category.ID,
		Name:          category.Name,
		Description:   category.Description,
		CreatedAt:     category.CreatedAt,
		SchemaVersion: model.SchemaVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

func (s *MongoDBStore) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	var doc categoryDocument
	err := s.categories.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("category")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	c := doc.toModel()
	return &c, nil
}

func (s *MongoDBStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.categories.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	var docs []categoryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}
	out := make([]model.Category, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (s *MongoDBStore) UpdateCategory(ctx context.Context, category *model.Category) error {
	res, err := s.categories.UpdateOne(ctx, bson.M{"_id": category.ID}, bson.M{"$set": bson.M{
		"name":        category.Name,
		"description": category.Description,
	}})
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("category")
	}
	return nil
}

func (s *MongoDBStore) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.categories.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("category")
	}
	if _, err := s.items.DeleteMany(ctx, bson.M{"category_id": id}); err != nil {
		return fmt.Errorf("failed to delete category items: %w", err)
	}
	return nil
}

func (s *MongoDBStore) CountCategories(ctx context.Context) (int64, error) {
	n, err := s.categories.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count categories: %w", err)
	}
	return n, nil
}

func (s *MongoDBStore) CreateItem(ctx context.Context, item *model.InventoryItem) error {
	if err := checkAmounts(item.Price); err != nil {
		return err
	}
	if _, err := s.GetCategory(ctx, item.CategoryID); err != nil {
		return err
	}
	seq, err := s.nextSeq(ctx, "inventory_items")
	if err != nil {
		return err
	}
	_, err = s.items.InsertOne(ctx, itemDocument{
		ID:                item.ID,
		Seq:               seq,
		CategoryID:        item.CategoryID,
		Payload:           item.Payload,
		SecondaryPassword: item.SecondaryPassword,
		Price:             toMinor(item.Price),
		Status:            string(item.Status),
		CreatedAt:         item.CreatedAt,
		SchemaVersion:     model.SchemaVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	item.Seq = seq
	return nil
}

func (s *MongoDBStore) GetItem(ctx context.Context, id string) (*model.InventoryItem, error) {
	var doc itemDocument
	err := s.items.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("item")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	it := doc.toModel()
	return &it, nil
}

func itemFilter(filter model.ItemFilter) bson.M {
	f := bson.M{}
	if filter.CategoryID != "" {
		f["category_id"] = filter.CategoryID
	}
	if filter.Status != "" {
		f["status"] = string(filter.Status)
	}
	return f
}

func (s *MongoDBStore) findItems(ctx context.Context, filter bson.M, limit int) ([]model.InventoryItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.items.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	var docs []itemDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	items := make([]model.InventoryItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toModel())
	}
	return items, nil
}

func (s *MongoDBStore) ListItems(ctx context.Context, filter model.ItemFilter) ([]model.InventoryItem, error) {
	return s.findItems(ctx, itemFilter(filter), 0)
}

func (s *MongoDBStore) DeleteItem(ctx context.Context, id string) error {
	res, err := s.items.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("item")
	}
	return nil
}

func (s *MongoDBStore) CountItems(ctx context.Context, filter model.ItemFilter) (int64, error) {
	n, err := s.items.CountDocuments(ctx, itemFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

func (s *MongoDBStore) ListAvailableItems(ctx context.Context, categoryID string, limit int) ([]model.InventoryItem, error) {
	if limit <= 0 {
		return []model.InventoryItem{}, nil
	}
	return s.findItems(ctx, bson.M{"category_id": categoryID, "status": string(model.ItemAvailable)}, limit)
}

func (s *MongoDBStore) MarkItemSold(ctx context.Context, itemID string) error {
	res, err := s.items.UpdateOne(ctx,
		bson.M{"_id": itemID, "status": string(model.ItemAvailable)},
		bson.M{"$set": bson.M{"status": string(model.ItemSold)}})
	if err != nil {
		return fmt.Errorf("failed to mark item sold: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.ErrConcurrentConflict
	}
	return nil
}

func (s *MongoDBStore) ReleaseItem(ctx context.Context, itemID string) error {
	_, err := s.items.UpdateOne(ctx,
		bson.M{"_id": itemID, "status": string(model.ItemSold)},
		bson.M{"$set": bson.M{"status": string(model.ItemAvailable)}})
	if err != nil {
		return fmt.Errorf("failed to release item: %w", err)
	}
	return nil
}

// ---- purchases ----

// CreatePurchases inserts records one by one; on a duplicate the records
// already inserted by this call are removed again.
func (s *MongoDBStore) CreatePurchases(ctx context.Context, records []model.PurchaseRecord) error {
	inserted := make([]string, 0, len(records))
	for _, r := range records {
		_, err := s.purchases.InsertOne(ctx, purchaseDocument{
			ID:                r.ID,
			BuyerID:           r.BuyerID,
			ItemID:            r.ItemID,
			CategoryID:        r.CategoryID,
			CategoryName:      r.CategoryName,
			Payload:           r.Payload,
			SecondaryPassword: r.SecondaryPassword,
			Price:             toMinor(r.Price),
			PurchasedAt:       r.PurchasedAt,
			SchemaVersion:     model.SchemaVersion,
		})
		if err == nil {
			inserted = append(inserted, r.ID)
			continue
		}
		if len(inserted) > 0 {
			if _, delErr := s.purchases.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": inserted}}); delErr != nil {
				log.Printf("[MongoDB] Failed to remove partial purchase records: %v", delErr)
			}
		}
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("item %s already has a purchase record: %w", r.ItemID, apperr.ErrConcurrentConflict)
		}
		return fmt.Errorf("failed to create purchase record: %w", err)
	}
	return nil
}

func (s *MongoDBStore) findPurchases(ctx context.Context, filter bson.M, sort bson.D) ([]model.PurchaseRecord, error) {
	cursor, err := s.purchases.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	var docs []purchaseDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode purchases: %w", err)
	}
	out := make([]model.PurchaseRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (s *MongoDBStore) ListPurchasesByBuyer(ctx context.Context, buyerID string) ([]model.PurchaseRecord, error) {
	return s.findPurchases(ctx, bson.M{"buyer_id": buyerID},
		bson.D{{Key: "purchased_at", Value: -1}, {Key: "_id", Value: -1}})
}

func (s *MongoDBStore) GetPurchase(ctx context.Context, buyerID, id string) (*model.PurchaseRecord, error) {
	var doc purchaseDocument
	err := s.purchases.FindOne(ctx, bson.M{"_id": id, "buyer_id": buyerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("purchase")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	p := doc.toModel()
	return &p, nil
}

func (s *MongoDBStore) DeletePurchase(ctx context.Context, buyerID, id string) error {
	res, err := s.purchases.DeleteOne(ctx, bson.M{"_id": id, "buyer_id": buyerID})
	if err != nil {
		return fmt.Errorf("failed to delete purchase: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("purchase")
	}
	return nil
}

func (s *MongoDBStore) ListPurchasesSince(ctx context.Context, since time.Time) ([]model.PurchaseRecord, error) {
	return s.findPurchases(ctx, bson.M{"purchased_at": bson.M{"$gte": since}},
		bson.D{{Key: "purchased_at", Value: 1}, {Key: "_id", Value: 1}})
}

func (s *MongoDBStore) PurchaseTotals(ctx context.Context) (model.PurchaseTotals, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "revenue", Value: bson.D{{Key: "$sum", Value: "$price"}}},
		}}},
	}
	cursor, err := s.purchases.Aggregate(ctx, pipeline)
	if err != nil {
		return model.PurchaseTotals{}, fmt.Errorf("failed to total purchases: %w", err)
	}
	var rows []struct {
		Count   int64 `bson:"count"`
		Revenue int64 `bson:"revenue"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return model.PurchaseTotals{}, fmt.Errorf("failed to decode purchase totals: %w", err)
	}
	if len(rows) == 0 {
		return model.PurchaseTotals{Revenue: decimal.Zero}, nil
	}
	return model.PurchaseTotals{Count: rows[0].Count, Revenue: fromMinor(rows[0].Revenue)}, nil
}

// ---- payments ----

func (s *MongoDBStore) CreatePaymentRequest(ctx context.Context, req *model.PaymentRequest) error {
	if err := checkAmounts(req.AmountSource, req.AmountTarget); err != nil {
		return err
	}
	_, err := s.payments.InsertOne(ctx, paymentDocument{
		ID:            req.ID,
		BuyerID:       req.BuyerID,
		BuyerEmail:    req.BuyerEmail,
		AmountSource:  toMinor(req.AmountSource),
		Rate:          req.Rate.String(),
		AmountTarget:  toMinor(req.AmountTarget),
		Address:       req.Address,
		Status:        string(req.Status),
		CreatedAt:     req.CreatedAt,
		ProcessedAt:   req.ProcessedAt,
		ProcessedBy:   req.ProcessedBy,
		SchemaVersion: model.SchemaVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to create payment request: %w", err)
	}
	return nil
}

func (s *MongoDBStore) GetPaymentRequest(ctx context.Context, id string) (*model.PaymentRequest, error) {
	var doc paymentDocument
	err := s.payments.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("payment request")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	r, err := doc.toModel()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func paymentFilter(buyerID string, status model.PaymentStatus) bson.M {
	f := bson.M{}
	if buyerID != "" {
		f["buyer_id"] = buyerID
	}
	if status != "" {
		f["status"] = string(status)
	}
	return f
}

func (s *MongoDBStore) ListPaymentRequests(ctx context.Context, buyerID string, status model.PaymentStatus) ([]model.PaymentRequest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.payments.Find(ctx, paymentFilter(buyerID, status), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment requests: %w", err)
	}
	var docs []paymentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode payment requests: %w", err)
	}
	out := make([]model.PaymentRequest, 0, len(docs))
	for _, d := range docs {
		r, err := d.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *MongoDBStore) CountPaymentRequests(ctx context.Context, status model.PaymentStatus) (int64, error) {
	n, err := s.payments.CountDocuments(ctx, paymentFilter("", status))
	if err != nil {
		return 0, fmt.Errorf("failed to count payment requests: %w", err)
	}
	return n, nil
}

func (s *MongoDBStore) SumApproved(ctx context.Context) (decimal.Decimal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "status", Value: string(model.PaymentApproved)}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$amount_target"}}},
		}}},
	}
	cursor, err := s.payments.Aggregate(ctx, pipeline)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum approved payments: %w", err)
	}
	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode approved sum: %w", err)
	}
	if len(rows) == 0 {
		return decimal.Zero, nil
	}
	return fromMinor(rows[0].Total), nil
}

func (s *MongoDBStore) TransitionPaymentRequest(ctx context.Context, id string, to model.PaymentStatus, at time.Time, by string) error {
	res, err := s.payments.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(model.PaymentPending)},
		bson.M{"$set": bson.M{"status": string(to), "processed_at": at, "processed_by": by}})
	if err != nil {
		return fmt.Errorf("failed to transition payment request: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if _, err := s.GetPaymentRequest(ctx, id); err != nil {
		return err
	}
	return apperr.ErrInvalidStateTransition
}

func (s *MongoDBStore) RevertPaymentRequest(ctx context.Context, id string, from model.PaymentStatus) error {
	res, err := s.payments.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(from)},
		bson.M{
			"$set":   bson.M{"status": string(model.PaymentPending)},
			"$unset": bson.M{"processed_at": "", "processed_by": ""},
		})
	if err != nil {
		return fmt.Errorf("failed to revert payment request: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.ErrInvalidStateTransition
	}
	return nil
}

// ---- activity & settings ----

func (s *MongoDBStore) AppendActivity(ctx context.Context, entry *model.ActivityEntry) error {
	seq, err := s.nextSeq(ctx, "activity_log")
	if err != nil {
		return err
	}
	_, err = s.activity.InsertOne(ctx, activityDocument{
		ID:        entry.ID,
		Seq:       seq,
		Actor:     entry.Actor,
		Action:    entry.Action,
		Detail:    entry.Detail,
		CreatedAt: entry.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (s *MongoDBStore) ListActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.activity.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	var docs []activityDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode activity: %w", err)
	}
	out := make([]model.ActivityEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, model.ActivityEntry{
			ID:        d.ID,
			Actor:     d.Actor,
			Action:    d.Action,
			Detail:    d.Detail,
			CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (s *MongoDBStore) GetSetting(ctx context.Context, key string) (string, error) {
	var doc struct {
		Value string `bson:"value"`
	}
	err := s.settings.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return doc.Value, nil
}

func (s *MongoDBStore) PutSetting(ctx context.Context, key, value string) error {
	opts := options.Update().SetUpsert(true)
	_, err := s.settings.UpdateOne(ctx, bson.M{"_id": key},
		bson.M{"$set": bson.M{"value": value, "updated_at": time.Now().UTC()}}, opts)
	if err != nil {
		return fmt.Errorf("failed to put setting: %w", err)
	}
	return nil
}

// Stats returns collection counts and storage size.
func (s *MongoDBStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{
		"type":   "mongodb",
		"status": "connected",
	}

	for _, coll := range []*mongo.Collection{s.users, s.categories, s.items, s.purchases, s.payments, s.activity} {
		n, err := coll.EstimatedDocumentCount(ctx)
		if err != nil {
			return stats, fmt.Errorf("failed to count %s: %w", coll.Name(), err)
		}
		stats[coll.Name()] = n
	}

	var dbStats bson.M
	if err := s.db.RunCommand(ctx, bson.D{{Key: "dbStats", Value: 1}}).Decode(&dbStats); err == nil {
		switch size := dbStats["dataSize"].(type) {
		case int64:
			stats["db_size_bytes"] = size
		case int32:
			stats["db_size_bytes"] = int64(size)
		case float64:
			stats["db_size_bytes"] = int64(size)
		}
	}

	return stats, nil
}

// Close closes the MongoDB connection.
func (s *MongoDBStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ensure MongoDBStore implements Store
var _ Store = (*MongoDBStore)(nil)
