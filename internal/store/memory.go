package store

import (
	"context"
	"sort"
	"sync"

	"github.com/punchamoorthee/chipledger/internal/domain"
)

// MemoryStore implements Store with an in-memory map. Used for testing and
// development. Not suitable for production (no persistence). A single mutex
// spans every read-validate-write sequence, which trivially satisfies
// per-account serialization.
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[string]int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[string]int64)}
}

func (s *MemoryStore) EnsureAccount(_ context.Context, userID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if balance, ok := s.balances[userID]; ok {
		return balance, false, nil
	}
	s.balances[userID] = domain.StartingBalance
	return domain.StartingBalance, true, nil
}

func (s *MemoryStore) GetBalance(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance, ok := s.balances[userID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return balance, nil
}

func (s *MemoryStore) SetBalance(_ context.Context, userID string, balance int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.balances[userID]; !ok {
		return 0, ErrAccountNotFound
	}
	s.balances[userID] = balance
	return balance, nil
}

func (s *MemoryStore) Transfer(_ context.Context, payerID, recipientID string, amount int64) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payerBal, payerOK := s.balances[payerID]
	recipientBal, recipientOK := s.balances[recipientID]

	switch {
	case !payerOK:
		return 0, 0, ErrPayerNotFound
	case payerBal < amount:
		return 0, 0, ErrInsufficientFunds
	case !recipientOK:
		return 0, 0, ErrRecipientNotFound
	}

	s.balances[payerID] = payerBal - amount
	s.balances[recipientID] = recipientBal + amount
	return payerBal - amount, recipientBal + amount, nil
}

func (s *MemoryStore) ForEachAccount(_ context.Context, mutate func(int64) int64) ([]BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userIDs := make([]string, 0, len(s.balances))
	for id := range s.balances {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	results := make([]BulkResult, 0, len(userIDs))
	for _, id := range userIDs {
		newBalance := mutate(s.balances[id])
		s.balances[id] = newBalance
		results = append(results, BulkResult{UserID: id, Balance: newBalance})
	}
	return results, nil
}

func (s *MemoryStore) ResetAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances = make(map[string]int64)
	return nil
}
