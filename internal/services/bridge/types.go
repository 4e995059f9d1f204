package bridge

import "github.com/shopspring/decimal"

// HopState is the internal view of where a two-hop exchange stands. The
// provider's own status vocabulary is mapped onto this set and nothing else
// leaks out of the adapter.
type HopState string

const (
	// HopPending: the first hop has not completed (waiting for funds or
	// confirmations).
	HopPending HopState = "pending"
	// HopExchanging: the first hop completed; the second hop is in flight.
	HopExchanging HopState = "exchanging"
	// HopDelivered: the second hop delivered funds at the destination.
	HopDelivered HopState = "delivered"

	HopFailed   HopState = "failed"
	HopRefunded HopState = "refunded"
	HopExpired  HopState = "expired"
)

// Exchange is the result of creating a two-hop exchange: the provider's id
// for the exchange and the address its first hop must be funded through.
type Exchange struct {
	ID             string
	DepositAddress string
}

// ExchangeStatus is a point-in-time observation of an exchange.
type ExchangeStatus struct {
	State HopState

	// SecondHopID is set once the provider assigns a distinct id to the
	// second hop; empty when the first id covers both.
	SecondHopID string

	// DeliveredAmount and DestinationTxRef are meaningful only when State is
	// HopDelivered.
	DeliveredAmount  decimal.Decimal
	DestinationTxRef string
}
