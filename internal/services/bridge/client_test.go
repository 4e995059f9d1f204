package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crest/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) Client {
	return NewClient(config.BridgeConfig{
		BaseURL: serverURL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	})
}

func TestCreateExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/exchanges", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "1.500000000", body["amount"])
		assert.Equal(t, "dest-addr", body["destination"])

		json.NewEncoder(w).Encode(map[string]string{
			"id":              "ex-1",
			"deposit_address": "funding-addr",
		})
	}))
	defer server.Close()

	exchange, err := newTestClient(server.URL).CreateExchange(
		context.Background(), decimal.RequireFromString("1.5"), "dest-addr")
	require.NoError(t, err)
	assert.Equal(t, "ex-1", exchange.ID)
	assert.Equal(t, "funding-addr", exchange.DepositAddress)
}

func TestCreateExchangeIncompleteResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "ex-1"})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreateExchange(
		context.Background(), decimal.RequireFromString("1"), "dest")
	assert.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestGetExchangeStatusMapsProviderVocabulary(t *testing.T) {
	tests := []struct {
		provider string
		want     HopState
	}{
		{"waiting", HopPending},
		{"confirming", HopPending},
		{"exchanging", HopExchanging},
		{"sending", HopExchanging},
		{"finished", HopDelivered},
		{"refunded", HopRefunded},
		{"expired", HopExpired},
		{"failed", HopFailed},
		{"something-new", HopFailed},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/exchanges/ex-9", r.URL.Path)
				json.NewEncoder(w).Encode(map[string]string{
					"id":     "ex-9",
					"status": tt.provider,
				})
			}))
			defer server.Close()

			status, err := newTestClient(server.URL).GetExchangeStatus(context.Background(), "ex-9")
			require.NoError(t, err)
			assert.Equal(t, tt.want, status.State)
		})
	}
}

func TestGetExchangeStatusDeliveredPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"id":               "ex-9",
			"status":           "finished",
			"second_hop_id":    "ex-10",
			"delivered_amount": "0.495000000",
			"destination_tx":   "tx-777",
		})
	}))
	defer server.Close()

	status, err := newTestClient(server.URL).GetExchangeStatus(context.Background(), "ex-9")
	require.NoError(t, err)
	assert.Equal(t, HopDelivered, status.State)
	assert.Equal(t, "ex-10", status.SecondHopID)
	assert.Equal(t, "0.495", status.DeliveredAmount.String())
	assert.Equal(t, "tx-777", status.DestinationTxRef)
}

func TestErrorClassification(t *testing.T) {
	t.Run("5xx is transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).GetExchangeStatus(context.Background(), "ex-1")
		assert.True(t, IsTransient(err))
	})

	t.Run("404 is exchange not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).GetExchangeStatus(context.Background(), "ex-1")
		assert.ErrorIs(t, err, ErrExchangeNotFound)
		assert.False(t, IsTransient(err))
	})

	t.Run("4xx is terminal", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).CreateExchange(
			context.Background(), decimal.RequireFromString("1"), "dest")
		assert.Error(t, err)
		assert.False(t, IsTransient(err))
	})

	t.Run("network failure is transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		_, err := newTestClient(server.URL).GetExchangeStatus(context.Background(), "ex-1")
		assert.True(t, IsTransient(err))
	})

	t.Run("malformed body is transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).GetExchangeStatus(context.Background(), "ex-1")
		assert.True(t, IsTransient(err))
	})
}
