package ledger

import (
	"context"
	"sort"
	"sync"
)

// Store persists lots. Implementations must apply a MatchResult atomically:
// either every update and insert lands or none do, so a crash mid-exit cannot
// leave FIFO state half-consumed.
type Store interface {
	// InsertLot writes a new lot (open entry or split-off closed record).
	InsertLot(ctx context.Context, lot Lot) error
	// OpenLots returns open lots for owner+symbol, any order.
	OpenLots(ctx context.Context, owner, symbol string) ([]Lot, error)
	// LotsByOwner returns every lot for an owner, open and closed.
	LotsByOwner(ctx context.Context, owner string) ([]Lot, error)
	// ApplyMatch commits the outcome of one FIFO match.
	ApplyMatch(ctx context.Context, res MatchResult) error
	Close() error
}

// MemoryStore is the in-process Store used in tests and single-shot CLI runs.
type MemoryStore struct {
	mu   sync.RWMutex
	lots map[string]Lot // id -> lot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lots: make(map[string]Lot)}
}

func (m *MemoryStore) InsertLot(ctx context.Context, lot Lot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lots[lot.ID] = lot
	return nil
}

func (m *MemoryStore) OpenLots(ctx context.Context, owner, symbol string) ([]Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Lot
	for _, lot := range m.lots {
		if lot.Open && lot.Owner == owner && lot.Symbol == symbol {
			out = append(out, lot)
		}
	}
	return out, nil
}

func (m *MemoryStore) LotsByOwner(ctx context.Context, owner string) ([]Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Lot
	for _, lot := range m.lots {
		if lot.Owner == owner {
			out = append(out, lot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out, nil
}

func (m *MemoryStore) ApplyMatch(ctx context.Context, res MatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lot := range res.ClosedLots {
		m.lots[lot.ID] = lot
	}
	for _, lot := range res.UpdatedLots {
		m.lots[lot.ID] = lot
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
