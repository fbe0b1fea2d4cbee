package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/openbank-sync/internal/domain"
	"google.golang.org/api/iterator"
)

const (
	// DefaultDatasetID is used when no dataset is configured.
	DefaultDatasetID  = "finance"
	transactionsTable = "transactions"
)

// TransactionRepository implements domain.TransactionRepository on BigQuery.
type TransactionRepository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewTransactionRepository creates a repository using a shared BigQuery client.
func NewTransactionRepository(client *bigquery.Client, datasetID string) *TransactionRepository {
	if datasetID == "" {
		datasetID = DefaultDatasetID
	}
	return &TransactionRepository{
		client:    client,
		projectID: client.Project(),
		datasetID: datasetID,
	}
}

func (r *TransactionRepository) table() string {
	return tableRef(r.projectID, r.datasetID, transactionsTable)
}

func tableRef(projectID, datasetID, table string) string {
	return fmt.Sprintf("`%s.%s.%s`", projectID, datasetID, table)
}

// mergeTransactionsSQL upserts @rows keyed by transaction_id.
func mergeTransactionsSQL(table string) string {
	return fmt.Sprintf(`
		MERGE %s T
		USING (SELECT * FROM UNNEST(@rows)) S
		ON T.transaction_id = S.transaction_id
		WHEN MATCHED THEN UPDATE SET
			user_id = S.user_id,
			account_id = S.account_id,
			transaction_date = DATE(S.transaction_ts),
			transaction_ts = S.transaction_ts,
			booking_ts = IF(S.booking_ts = '', NULL, TIMESTAMP(S.booking_ts)),
			description = S.description,
			amount = S.amount,
			currency = S.currency,
			status = S.status,
			reference = NULLIF(S.reference, ''),
			category = NULLIF(S.category, ''),
			updated_ts = CURRENT_TIMESTAMP()
		WHEN NOT MATCHED THEN INSERT (
			transaction_id, user_id, account_id, transaction_date, transaction_ts, booking_ts,
			description, amount, currency, status, reference, category, created_ts
		) VALUES (
			S.transaction_id, S.user_id, S.account_id, DATE(S.transaction_ts), S.transaction_ts,
			IF(S.booking_ts = '', NULL, TIMESTAMP(S.booking_ts)),
			S.description, S.amount, S.currency, S.status,
			NULLIF(S.reference, ''), NULLIF(S.category, ''), CURRENT_TIMESTAMP()
		)
	`, table)
}

// BulkUpsert merges the batch into the transactions table in a single DML job.
// MERGE rejects duplicate source keys, so repeated ids are collapsed first.
func (r *TransactionRepository) BulkUpsert(ctx context.Context, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	txs = domain.DedupeByID(txs)
	rows := make([]transactionParam, 0, len(txs))
	for _, tx := range txs {
		p, err := toParam(tx)
		if err != nil {
			return fmt.Errorf("BulkUpsert: %w", err)
		}
		rows = append(rows, p)
	}

	q := r.client.Query(mergeTransactionsSQL(r.table()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "rows", Value: rows},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("BulkUpsert: running merge: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("BulkUpsert: waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("BulkUpsert: job error: %w", err)
	}

	return nil
}

// ListByAccount returns a page of the account's transactions, newest first.
func (r *TransactionRepository) ListByAccount(ctx context.Context, query domain.TransactionQuery) ([]domain.Transaction, error) {
	sql := fmt.Sprintf(`
		SELECT
			transaction_id,
			user_id,
			account_id,
			transaction_date,
			transaction_ts,
			booking_ts,
			description,
			amount,
			currency,
			status,
			reference,
			category,
			created_ts,
			updated_ts
		FROM %s
		WHERE user_id = @user_id
		  AND account_id = @account_id
		ORDER BY transaction_ts DESC, transaction_id
		LIMIT @limit OFFSET @offset
	`, r.table())

	limit := query.Limit
	if limit <= 0 {
		limit = 10
	}

	q := r.client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: query.UserID},
		{Name: "account_id", Value: query.AccountID},
		{Name: "limit", Value: limit},
		{Name: "offset", Value: query.Offset()},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListByAccount: query read: %w", err)
	}

	var txs []domain.Transaction
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListByAccount: iter next: %w", err)
		}

		tx, err := row.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("ListByAccount: %w", err)
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

// CountByAccount returns the number of stored transactions for the account.
func (r *TransactionRepository) CountByAccount(ctx context.Context, userID, accountID string) (int64, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT COUNT(*) AS n
		FROM %s
		WHERE user_id = @user_id
		  AND account_id = @account_id
	`, r.table()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "account_id", Value: accountID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("CountByAccount: query read: %w", err)
	}

	var row struct {
		N int64 `bigquery:"n"`
	}
	if err := it.Next(&row); err != nil {
		return 0, fmt.Errorf("CountByAccount: iter next: %w", err)
	}

	return row.N, nil
}

var _ domain.TransactionRepository = (*TransactionRepository)(nil)
