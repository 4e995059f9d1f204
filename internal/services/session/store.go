// Package session stores short-lived conversational state for external
// presentation clients, such as the amount a user is mid-way through typing
// into a chat bot. It is a convenience cache only: nothing here is ever a
// source of truth for a settlement or ledger decision, and losing the whole
// store is harmless.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// State is the per-principal conversation snapshot.
type State struct {
	// Stage names where the conversation currently stands, for example
	// "awaiting_deposit_amount" or "awaiting_withdrawal_address".
	Stage string `json:"stage"`

	// PendingAmount is the amount the user has entered so far, as a decimal
	// string, if the stage carries one.
	PendingAmount string `json:"pending_amount,omitempty"`

	// PendingAddress is the destination address entered so far, if any.
	PendingAddress string `json:"pending_address,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps conversation state in Redis with a sliding TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a session store. TTL bounds how long an abandoned
// conversation survives.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(principal string) string {
	return fmt.Sprintf("session:principal:%s", principal)
}

// Put replaces the principal's conversation state and resets its TTL.
func (s *Store) Put(ctx context.Context, principal string, state State) error {
	state.UpdatedAt = time.Now()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}
	return s.client.Set(ctx, s.key(principal), data, s.ttl).Err()
}

// Get loads the principal's conversation state. The second return is false
// when no state exists or it has expired.
func (s *Store) Get(ctx context.Context, principal string) (*State, bool, error) {
	data, err := s.client.Get(ctx, s.key(principal)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load session state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal session state: %w", err)
	}
	return &state, true, nil
}

// Clear drops the principal's conversation state.
func (s *Store) Clear(ctx context.Context, principal string) error {
	return s.client.Del(ctx, s.key(principal)).Err()
}
