package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementConfig holds the tunables of the settlement engine.
type SettlementConfig struct {
	// MinTransferAmount is the platform minimum for both deposits and
	// withdrawals, in the native settlement currency.
	MinTransferAmount decimal.Decimal

	// FeeBufferPercent is the defensive buffer added to every withdrawal
	// debit, since the bridge's real fee is not known until delivery.
	FeeBufferPercent decimal.Decimal

	// PollInterval is the server-side reconciliation cadence.
	PollInterval time.Duration

	// ExpiryWindow bounds how long a transfer may sit in a waiting state
	// without progress before it is expired. It covers both unfunded deposit
	// addresses and exchanges stalled at the provider.
	ExpiryWindow time.Duration

	// AlertThreshold is the number of consecutive transient bridge failures
	// for a single transfer before an operator-visible alert is logged.
	AlertThreshold int

	// TreasuryAddress is the platform-controlled address that incoming
	// deposits are bridged to.
	TreasuryAddress string
}

// LoadSettlement builds the settlement configuration from the environment.
func LoadSettlement() SettlementConfig {
	return SettlementConfig{
		MinTransferAmount: GetDecimalEnv("SETTLEMENT_MIN_AMOUNT", "0.05"),
		FeeBufferPercent:  GetDecimalEnv("SETTLEMENT_FEE_BUFFER", "0.01"),
		PollInterval:      GetDurationEnv("SETTLEMENT_POLL_INTERVAL", 15*time.Second),
		ExpiryWindow:      GetDurationEnv("SETTLEMENT_EXPIRY_WINDOW", 24*time.Hour),
		AlertThreshold:    GetIntEnv("SETTLEMENT_ALERT_THRESHOLD", 10),
		TreasuryAddress:   GetEnv("SETTLEMENT_TREASURY_ADDRESS", ""),
	}
}

// BridgeConfig holds connection settings for the external bridge provider.
type BridgeConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// LoadBridge builds the bridge client configuration from the environment.
func LoadBridge() BridgeConfig {
	return BridgeConfig{
		BaseURL: GetEnv("BRIDGE_API_URL", "https://bridge.example.com/api/v2"),
		APIKey:  GetEnv("BRIDGE_API_KEY", ""),
		Timeout: GetDurationEnv("BRIDGE_TIMEOUT", 10*time.Second),
	}
}
