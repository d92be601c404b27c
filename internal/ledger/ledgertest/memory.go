// Package ledgertest provides an in-memory ledger store for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/backoffice-billing/internal/ledger"
)

// Memory implements ledger.Repository and ledger.TxRepository. WithTx
// serialises callers and rolls back on error.
type Memory struct {
	mu      sync.Mutex
	entries map[string]ledger.Entry
	nextID  int64
}

// New returns an empty store.
func New() *Memory {
	return &Memory{entries: map[string]ledger.Entry{}}
}

func key(st ledger.SourceType, id int64) string {
	return fmt.Sprintf("%s:%d", st, id)
}

// WithTx runs fn holding the store lock.
func (m *Memory) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	restore := m.Snapshot()
	if err := fn(ctx, m.Tx()); err != nil {
		restore()
		return err
	}
	return nil
}

// Tx returns a lock-free view for callers that already serialise access.
func (m *Memory) Tx() ledger.TxRepository {
	return memoryTx{m: m}
}

// Snapshot captures the current state and returns a function restoring it.
func (m *Memory) Snapshot() func() {
	entries := make(map[string]ledger.Entry, len(m.entries))
	for k, v := range m.entries {
		entries[k] = v
	}
	nextID := m.nextID
	return func() {
		m.entries = entries
		m.nextID = nextID
	}
}

// ListBySource implements ledger.Repository.
func (m *Memory) ListBySource(_ context.Context, businessID int64, st ledger.SourceType, id int64) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key(st, id)]
	if !ok || entry.BusinessID != businessID {
		return []ledger.Entry{}, nil
	}
	return []ledger.Entry{entry}, nil
}

// Entries returns every entry ordered by id. Callers must not hold a
// transaction open.
func (m *Memory) Entries() []ledger.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memoryTx struct {
	m *Memory
}

func (tx memoryTx) FindBySource(_ context.Context, st ledger.SourceType, id int64) (ledger.Entry, error) {
	entry, ok := tx.m.entries[key(st, id)]
	if !ok {
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}
	return entry, nil
}

func (tx memoryTx) InsertEntry(_ context.Context, in ledger.PostingInput, postedAt time.Time) (ledger.Entry, error) {
	k := key(in.SourceType, in.SourceID)
	if _, ok := tx.m.entries[k]; ok {
		return ledger.Entry{}, ledger.ErrSourceConflict
	}
	tx.m.nextID++
	entry := ledger.Entry{
		ID:         tx.m.nextID,
		BusinessID: in.BusinessID,
		SourceType: in.SourceType,
		SourceID:   in.SourceID,
		Memo:       in.Memo,
		PostedBy:   in.PostedBy,
		PostedAt:   postedAt,
	}
	tx.m.entries[k] = entry
	return entry, nil
}

func (tx memoryTx) InsertLines(_ context.Context, entryID int64, lines []ledger.Line) error {
	for k, entry := range tx.m.entries {
		if entry.ID == entryID {
			entry.Lines = append([]ledger.Line(nil), lines...)
			tx.m.entries[k] = entry
			return nil
		}
	}
	return ledger.ErrEntryNotFound
}
