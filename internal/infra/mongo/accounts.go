package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/openbank-sync/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type accountDocument struct {
	ID            string               `bson:"id"`
	UserID        string               `bson:"userId"`
	AccountType   string               `bson:"accountType"`
	AccountNumber string               `bson:"accountNumber"`
	Balance       primitive.Decimal128 `bson:"balance"`
	Currency      string               `bson:"currency"`
	InstitutionID string               `bson:"institutionId"`
}

func (d accountDocument) toDomain() (domain.Account, error) {
	balance, err := fromDecimal128(d.Balance)
	if err != nil {
		return domain.Account{}, fmt.Errorf("account %s: %w", d.ID, err)
	}
	return domain.Account{
		ID:            d.ID,
		UserID:        d.UserID,
		AccountType:   d.AccountType,
		AccountNumber: d.AccountNumber,
		Balance:       balance,
		Currency:      d.Currency,
		InstitutionID: d.InstitutionID,
	}, nil
}

// AccountRepository implements domain.AccountRepository.
type AccountRepository struct {
	provider CollectionProvider
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(provider CollectionProvider) *AccountRepository {
	return &AccountRepository{provider: provider}
}

// UpsertAccounts upserts keyed by (userId, id).
func (r *AccountRepository) UpsertAccounts(ctx context.Context, accounts []domain.Account) ([]domain.Account, error) {
	if len(accounts) == 0 {
		return []domain.Account{}, nil
	}

	models := make([]mongo.WriteModel, 0, len(accounts))
	for _, a := range accounts {
		balance, err := toDecimal128(a.Balance)
		if err != nil {
			return nil, fmt.Errorf("UpsertAccounts: account %s: %w", a.ID, err)
		}
		doc := accountDocument{
			ID:            a.ID,
			UserID:        a.UserID,
			AccountType:   a.AccountType,
			AccountNumber: a.AccountNumber,
			Balance:       balance,
			Currency:      a.Currency,
			InstitutionID: a.InstitutionID,
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"id": a.ID, "userId": a.UserID}).
			SetUpdate(bson.M{"$set": doc}).
			SetUpsert(true))
	}

	_, err := r.provider.Collection(AccountsCollection).
		BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return nil, fmt.Errorf("UpsertAccounts: %w", err)
	}
	return accounts, nil
}

// FindForUser returns domain.ErrAccountNotFound when the user has no such account.
func (r *AccountRepository) FindForUser(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	var doc accountDocument
	err := r.provider.Collection(AccountsCollection).
		FindOne(ctx, bson.M{"id": accountID, "userId": userID}).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("FindForUser: %w", err)
	}

	acc, err := doc.toDomain()
	if err != nil {
		return nil, fmt.Errorf("FindForUser: %w", err)
	}
	return &acc, nil
}

// ListForUser returns the user's accounts ordered by id.
func (r *AccountRepository) ListForUser(ctx context.Context, userID string) ([]domain.Account, error) {
	cur, err := r.provider.Collection(AccountsCollection).
		Find(ctx, bson.M{"userId": userID}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("ListForUser: %w", err)
	}

	var docs []accountDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("ListForUser: decoding: %w", err)
	}

	result := make([]domain.Account, 0, len(docs))
	for _, d := range docs {
		acc, err := d.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ListForUser: %w", err)
		}
		result = append(result, acc)
	}
	return result, nil
}

var _ domain.AccountRepository = (*AccountRepository)(nil)
