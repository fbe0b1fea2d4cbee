package mongo

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Indexes lists the indexes each collection needs.
func Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		TransactionsCollection: {
			{
				Keys:    bson.D{{Key: "id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_id"),
			},
			{
				Keys:    bson.D{{Key: "accountId", Value: 1}, {Key: "date", Value: -1}},
				Options: options.Index().SetName("account_date"),
			},
			{
				Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "accountId", Value: 1}, {Key: "date", Value: -1}},
				Options: options.Index().SetName("user_account_date"),
			},
		},
		AccountsCollection: {
			{
				Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_user_account"),
			},
		},
		JobsCollection: {
			{
				Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "startedAt", Value: -1}},
				Options: options.Index().SetName("user_started"),
			},
		},
	}
}

// EnsureIndexes creates every index from Indexes. It is safe to run repeatedly.
func EnsureIndexes(ctx context.Context, provider CollectionProvider, log zerolog.Logger) error {
	for _, name := range []string{TransactionsCollection, AccountsCollection, JobsCollection} {
		created, err := provider.Collection(name).CreateIndexes(ctx, Indexes()[name])
		if err != nil {
			return fmt.Errorf("EnsureIndexes: %w", err)
		}
		log.Info().
			Str("collection", name).
			Strs("indexes", created).
			Msg("Indexes ensured")
	}
	return nil
}
