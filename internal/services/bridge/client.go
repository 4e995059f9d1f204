// Package bridge adapts the external two-hop exchange provider. The rest of
// the platform sees exactly two operations: create an exchange and query its
// status. The provider is eventually consistent and occasionally failing;
// callers must treat every answer as an observation, not a promise.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"crest/internal/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Client is the adapter boundary to the bridge provider.
type Client interface {
	// CreateExchange opens a two-hop exchange converting sourceAmount of the
	// native currency through the intermediate currency to destinationAddress.
	CreateExchange(ctx context.Context, sourceAmount decimal.Decimal, destinationAddress string) (*Exchange, error)

	// GetExchangeStatus reports where the exchange currently stands.
	GetExchangeStatus(ctx context.Context, exchangeID string) (*ExchangeStatus, error)
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates the HTTP bridge client.
func NewClient(cfg config.BridgeConfig) Client {
	return &httpClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

type createExchangeRequest struct {
	Amount      string `json:"amount"`
	Destination string `json:"destination"`
}

type createExchangeResponse struct {
	ID             string `json:"id"`
	DepositAddress string `json:"deposit_address"`
}

type exchangeStatusResponse struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	SecondHopID     string `json:"second_hop_id"`
	DeliveredAmount string `json:"delivered_amount"`
	DestinationTx   string `json:"destination_tx"`
}

func (c *httpClient) CreateExchange(ctx context.Context, sourceAmount decimal.Decimal, destinationAddress string) (*Exchange, error) {
	body := createExchangeRequest{
		Amount:      sourceAmount.StringFixed(9),
		Destination: destinationAddress,
	}

	var resp createExchangeResponse
	if err := c.do(ctx, http.MethodPost, "/exchanges", body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" || resp.DepositAddress == "" {
		return nil, fmt.Errorf("bridge returned incomplete exchange: %+v", resp)
	}

	zap.L().Info("Bridge exchange created",
		zap.String("exchange_id", resp.ID),
		zap.String("amount", sourceAmount.StringFixed(9)))

	return &Exchange{ID: resp.ID, DepositAddress: resp.DepositAddress}, nil
}

func (c *httpClient) GetExchangeStatus(ctx context.Context, exchangeID string) (*ExchangeStatus, error) {
	var resp exchangeStatusResponse
	if err := c.do(ctx, http.MethodGet, "/exchanges/"+exchangeID, nil, &resp); err != nil {
		return nil, err
	}

	status := &ExchangeStatus{
		State:            mapProviderStatus(resp.Status),
		SecondHopID:      resp.SecondHopID,
		DestinationTxRef: resp.DestinationTx,
	}

	if resp.DeliveredAmount != "" {
		amount, err := decimal.NewFromString(resp.DeliveredAmount)
		if err != nil {
			return nil, fmt.Errorf("bridge returned malformed delivered amount %q: %w", resp.DeliveredAmount, err)
		}
		status.DeliveredAmount = amount
	}

	return status, nil
}

// mapProviderStatus collapses the provider's status vocabulary onto the
// internal hop states.
func mapProviderStatus(status string) HopState {
	switch status {
	case "waiting", "confirming":
		return HopPending
	case "exchanging", "sending":
		return HopExchanging
	case "finished":
		return HopDelivered
	case "refunded":
		return HopRefunded
	case "expired":
		return HopExpired
	default:
		// Unknown vocabulary is treated as failed rather than guessed at.
		return HopFailed
	}
}

func (c *httpClient) do(ctx context.Context, method, path string, body, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode bridge request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build bridge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return &TransientError{Err: fmt.Errorf("bridge responded %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusNotFound:
		return ErrExchangeNotFound
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bridge rejected request with %d: %s", resp.StatusCode, data)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &TransientError{Err: fmt.Errorf("failed to decode bridge response: %w", err)}
	}
	return nil
}
