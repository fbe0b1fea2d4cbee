package txsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/openbank-sync/internal/domain"
	txmem "github.com/dvloznov/openbank-sync/internal/infra/inmemory"
	"github.com/dvloznov/openbank-sync/internal/jobs"
	jobsmem "github.com/dvloznov/openbank-sync/internal/jobs/inmemory"
	"github.com/dvloznov/openbank-sync/internal/openbanking"
	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// mockSource is a TransactionSource and AccountSource driven by Func fields.
type mockSource struct {
	fetchFunc    func(ctx context.Context, accountID, consentToken string) (*openbanking.TransactionsResponse, error)
	accountsFunc func(ctx context.Context, consentToken string) (*openbanking.AccountsResponse, error)

	mu    sync.Mutex
	calls int
}

func (m *mockSource) FetchTransactions(ctx context.Context, accountID, consentToken string) (*openbanking.TransactionsResponse, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, accountID, consentToken)
	}
	return &openbanking.TransactionsResponse{Items: []openbanking.Transaction{}}, nil
}

func (m *mockSource) GetAccounts(ctx context.Context, consentToken string) (*openbanking.AccountsResponse, error) {
	if m.accountsFunc != nil {
		return m.accountsFunc(ctx, consentToken)
	}
	return &openbanking.AccountsResponse{Items: []openbanking.Account{}}, nil
}

func (m *mockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func itemsResponse(items []openbanking.Transaction) *openbanking.TransactionsResponse {
	return &openbanking.TransactionsResponse{Items: items}
}

func makeItems(n int) []openbanking.Transaction {
	items := make([]openbanking.Transaction, n)
	for i := range items {
		items[i] = openbanking.Transaction{
			ID:          fmt.Sprintf("tx-%03d", i),
			Date:        fixedNow.AddDate(0, 0, -i),
			Description: fmt.Sprintf("item %d", i),
			Amount:      decimal.New(int64(-(i+1)*101), -2),
			Currency:    "GBP",
			Status:      "BOOKED",
		}
	}
	return items
}

// failingWriter wraps the in-memory transaction store and returns err from
// BulkUpsert once failAfter batches have been accepted. A nil err never fails.
type failingWriter struct {
	*txmem.TransactionStore

	err       error
	failAfter int
}

func newFailingWriter() *failingWriter {
	return &failingWriter{TransactionStore: txmem.NewTransactionStore()}
}

func (w *failingWriter) BulkUpsert(ctx context.Context, txs []domain.Transaction) error {
	if w.err != nil && w.Batches() >= w.failAfter {
		return w.err
	}
	return w.TransactionStore.BulkUpsert(ctx, txs)
}

// recordingStore wraps the in-memory job store, recording every committed
// save and optionally failing chosen Save calls (1-based).
type recordingStore struct {
	*jobsmem.Store

	mu       sync.Mutex
	saves    int
	failOn   map[int]error
	snapshot []jobs.SyncJob
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Store: jobsmem.NewStore(), failOn: map[int]error{}}
}

func (r *recordingStore) Save(ctx context.Context, job jobs.SyncJob) error {
	r.mu.Lock()
	r.saves++
	err := r.failOn[r.saves]
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if err := r.Store.Save(ctx, job); err != nil {
		return err
	}

	r.mu.Lock()
	r.snapshot = append(r.snapshot, job)
	r.mu.Unlock()
	return nil
}

func (r *recordingStore) history() []jobs.SyncJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]jobs.SyncJob{}, r.snapshot...)
}

// mockPublisher is a jobs.Publisher driven by a Func field.
type mockPublisher struct {
	publishFunc func(ctx context.Context, task jobs.SyncTask) error
	published   []jobs.SyncTask
}

func (m *mockPublisher) PublishSync(ctx context.Context, task jobs.SyncTask) error {
	if m.publishFunc != nil {
		if err := m.publishFunc(ctx, task); err != nil {
			return err
		}
	}
	m.published = append(m.published, task)
	return nil
}

func (m *mockPublisher) Close() error { return nil }
