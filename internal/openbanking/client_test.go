package openbanking

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server, retries int) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:              srv.URL,
		ClientID:             "client-id",
		ClientSecret:         "client-secret",
		MaxRetries:           retries,
		RetryInitialInterval: time.Millisecond,
	}, srv.Client(), zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "not a url"}, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(Config{}, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL.String())
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
	assert.Equal(t, uint(1), c.maxTries)
}

func TestFetchTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/accounts/acc-1/transactions", r.URL.Path)
		assert.Equal(t, "consent-xyz", r.Header.Get("Consent"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"tx-1","date":"2024-01-15T10:00:00Z","description":"Coffee","amount":-3.10,"currency":"GBP","status":"BOOKED","accountId":"someone-else"},
			{"id":"tx-2","date":"2024-01-16T00:00:00Z","description":"Salary","amount":"2500.123456789","currency":"GBP","status":"PENDING","reference":"ACME"}
		]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv, 0).FetchTransactions(context.Background(), "acc-1", "consent-xyz")
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)

	first := resp.Items[0]
	assert.Equal(t, "tx-1", first.ID)
	assert.Equal(t, "-3.1", first.Amount.String())
	assert.Equal(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), first.Date.UTC())

	second := resp.Items[1]
	assert.True(t, second.Amount.Equal(decimal.RequireFromString("2500.123456789")))
	assert.Equal(t, "ACME", second.Reference)

	tx := first.ToDomain("acc-1", "user-1")
	assert.Equal(t, "acc-1", tx.AccountID)
	assert.Equal(t, "user-1", tx.UserID)
}

func TestFetchTransactions_DateOnlyValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[
			{"id":"tx-1","date":"2024-01-02","description":"Rent","amount":"-950.00","currency":"GBP","status":"BOOKED"},
			{"id":"tx-2","date":"2024-01-03T09:15:00Z","bookingDateTime":"2024-01-04","description":"Refund","amount":"12.00","currency":"GBP","status":"BOOKED"}
		]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv, 0).FetchTransactions(context.Background(), "acc-1", "c")
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), resp.Items[0].Date)
	assert.Nil(t, resp.Items[0].BookingDateTime)
	require.NotNil(t, resp.Items[1].BookingDateTime)
	assert.Equal(t, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), *resp.Items[1].BookingDateTime)

	tx := resp.Items[0].ToDomain("acc-1", "user-1")
	assert.Equal(t, "2024-01-02", tx.Date.Format("2006-01-02"))
}

func TestFetchTransactions_MissingAndEmptyData(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantNil bool
	}{
		{name: "missing data field", body: `{}`, wantNil: true},
		{name: "empty data field", body: `{"data":[]}`, wantNil: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resp, err := newTestClient(t, srv, 0).FetchTransactions(context.Background(), "acc-1", "c")
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, resp.Items)
			} else {
				assert.NotNil(t, resp.Items)
				assert.Empty(t, resp.Items)
			}
		})
	}
}

func TestFetchTransactions_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"consent expired"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 3).FetchTransactions(context.Background(), "acc-1", "c")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.True(t, errors.Is(err, ErrAPI))
	assert.Equal(t, `open banking API error: 401 - {"error":"consent expired"}`, err.Error())
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchTransactions_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv, 3).FetchTransactions(context.Background(), "acc-1", "c")
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchTransactions_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 2).FetchTransactions(context.Background(), "acc-1", "c")
	require.Error(t, err)
	assert.Equal(t, "open banking API error: 503 - down", err.Error())
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchTransactions_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 3).FetchTransactions(context.Background(), "acc-1", "c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestGetAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts", r.URL.Path)
		assert.Equal(t, "consent-abc", r.Header.Get("Consent"))
		_, _ = w.Write([]byte(`{"data":[{"id":"acc-1","accountType":"CURRENT","accountNumber":"12345678","balance":1050.75,"currency":"GBP","institutionId":"modelo-sandbox"}]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv, 0).GetAccounts(context.Background(), "consent-abc")
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)

	acc := resp.Items[0].ToDomain("user-1")
	assert.Equal(t, "acc-1", acc.ID)
	assert.Equal(t, "user-1", acc.UserID)
	assert.Equal(t, "1050.75", acc.Balance.String())
	assert.Equal(t, "modelo-sandbox", acc.InstitutionID)
}

func TestGetInstitutions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/institutions", r.URL.Path)
		assert.Empty(t, r.Header.Get("Consent"))
		_, _ = w.Write([]byte(`{"data":[{"id":"modelo-sandbox","name":"Modelo","fullName":"Modelo Sandbox"}]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv, 0).GetInstitutions(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Modelo Sandbox", resp.Items[0].FullName)
}

func TestFetchTransactions_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, srv, 3).FetchTransactions(ctx, "acc-1", "c")
	assert.Error(t, err)
}
