package rowfill

import (
	"fmt"
	"log/slog"
	"sync"
)

// ResultStore owns the Table for the duration of a run. A single mutex
// guards both row-cell writes and whole-table snapshots; cell writes are
// cheap and snapshots infrequent, so finer-grained locking would only
// invite ordering hazards. Workers receive a handle, never a copy, and all
// mutation funnels through RecordResult and Snapshot.
type ResultStore struct {
	mu    sync.Mutex
	table *Table
	col   int
	log   *slog.Logger
}

// NewResultStore takes ownership of the table. resultCol is the index of
// the synthesized result column (see Table.EnsureColumn).
func NewResultStore(t *Table, resultCol int, log *slog.Logger) *ResultStore {
	if log == nil {
		log = slog.Default()
	}
	return &ResultStore{table: t, col: resultCol, log: log}
}

// RecordResult writes a row's result cell. The write is atomic under the
// store lock; a row's result goes from empty to its final value in one
// step, never partially.
func (rs *ResultStore) RecordResult(row int, value string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.table.SetCell(row, rs.col, value)
	rs.log.Debug("recorded result", "row", row, "bytes", len(value))
}

// Snapshot persists the whole table to durable storage under the store
// lock, so every result recorded before the call is included.
func (rs *ResultStore) Snapshot() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.table.Save(); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	rs.log.Debug("snapshot written", "path", rs.table.OutputPath())
	return nil
}

// Result reads a row's result cell under the lock.
func (rs *ResultStore) Result(row int) string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.table.Cell(row, rs.col)
}
