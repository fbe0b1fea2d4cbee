package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/openbank-sync/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type transactionDocument struct {
	ID              string               `bson:"id"`
	AccountID       string               `bson:"accountId"`
	UserID          string               `bson:"userId"`
	Date            time.Time            `bson:"date"`
	BookingDateTime *time.Time           `bson:"bookingDateTime"`
	Description     string               `bson:"description"`
	Amount          primitive.Decimal128 `bson:"amount"`
	Currency        string               `bson:"currency"`
	Status          string               `bson:"status"`
	Reference       string               `bson:"reference"`
	Category        string               `bson:"category"`
}

// toDecimal128 converts without passing through a float.
func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("amount %s does not fit decimal128: %w", d.String(), err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing decimal128 %s: %w", v.String(), err)
	}
	return d, nil
}

func toTransactionDocument(tx domain.Transaction) (transactionDocument, error) {
	amount, err := toDecimal128(tx.Amount)
	if err != nil {
		return transactionDocument{}, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	return transactionDocument{
		ID:              tx.ID,
		AccountID:       tx.AccountID,
		UserID:          tx.UserID,
		Date:            tx.Date,
		BookingDateTime: tx.BookingDateTime,
		Description:     tx.Description,
		Amount:          amount,
		Currency:        tx.Currency,
		Status:          tx.Status,
		Reference:       tx.Reference,
		Category:        tx.Category,
	}, nil
}

func (d transactionDocument) toDomain() (domain.Transaction, error) {
	amount, err := fromDecimal128(d.Amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", d.ID, err)
	}
	return domain.Transaction{
		ID:              d.ID,
		AccountID:       d.AccountID,
		UserID:          d.UserID,
		Date:            d.Date,
		BookingDateTime: d.BookingDateTime,
		Description:     d.Description,
		Amount:          amount,
		Currency:        d.Currency,
		Status:          d.Status,
		Reference:       d.Reference,
		Category:        d.Category,
	}, nil
}

// TransactionRepository implements domain.TransactionRepository.
type TransactionRepository struct {
	provider CollectionProvider
	now      func() time.Time
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(provider CollectionProvider) *TransactionRepository {
	return &TransactionRepository{provider: provider, now: time.Now}
}

// BulkUpsert writes the batch as one unordered bulk write keyed by transaction id.
// Every field is overwritten on conflict; createdAt is only set on insert.
func (r *TransactionRepository) BulkUpsert(ctx context.Context, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil // Nothing to upsert
	}

	now := r.now().UTC()
	txs = domain.DedupeByID(txs)
	models := make([]mongo.WriteModel, 0, len(txs))
	for _, tx := range txs {
		doc, err := toTransactionDocument(tx)
		if err != nil {
			return fmt.Errorf("BulkUpsert: %w", err)
		}
		update := bson.M{
			"$set":         doc,
			"$setOnInsert": bson.M{"createdAt": now},
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"id": tx.ID}).
			SetUpdate(update).
			SetUpsert(true))
	}

	_, err := r.provider.Collection(TransactionsCollection).
		BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("BulkUpsert: %w", err)
	}
	return nil
}

// ListByAccount returns a page of the account's transactions, newest first.
func (r *TransactionRepository) ListByAccount(ctx context.Context, q domain.TransactionQuery) ([]domain.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "id", Value: 1}})
	if q.Limit > 0 {
		opts.SetSkip(int64(q.Offset())).SetLimit(int64(q.Limit))
	}

	cur, err := r.provider.Collection(TransactionsCollection).
		Find(ctx, bson.M{"userId": q.UserID, "accountId": q.AccountID}, opts)
	if err != nil {
		return nil, fmt.Errorf("ListByAccount: %w", err)
	}

	var docs []transactionDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("ListByAccount: decoding: %w", err)
	}

	result := make([]domain.Transaction, 0, len(docs))
	for _, d := range docs {
		tx, err := d.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ListByAccount: %w", err)
		}
		result = append(result, tx)
	}
	return result, nil
}

// CountByAccount returns the number of stored transactions for the account.
func (r *TransactionRepository) CountByAccount(ctx context.Context, userID, accountID string) (int64, error) {
	n, err := r.provider.Collection(TransactionsCollection).
		CountDocuments(ctx, bson.M{"userId": userID, "accountId": accountID})
	if err != nil {
		return 0, fmt.Errorf("CountByAccount: %w", err)
	}
	return n, nil
}

var _ domain.TransactionRepository = (*TransactionRepository)(nil)
