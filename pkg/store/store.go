// Package store holds the latest known execution record for every node and
// loop iteration of every tracked canvas.
package store

import (
	"cmp"
	"slices"
	"sync"

	"github.com/dukex/runwatch/pkg/models"
)

// ChangeKind identifies what happened to a canvas in the store.
type ChangeKind string

const (
	ChangeReconciled ChangeKind = "reconciled"
	ChangeCleared    ChangeKind = "cleared"
)

// Change is delivered to listeners after every mutation.
type Change struct {
	CanvasID string
	Kind     ChangeKind
	// Count is the number of records written or removed.
	Count int
}

// Listener observes store changes. It is called outside the store lock and may
// read from the store.
type Listener func(Change)

// Store is an in-memory, concurrency-safe map of execution records keyed by
// (canvas, node, sub index). Writes are last-writer-wins.
type Store struct {
	mu          sync.RWMutex
	records     map[models.RecordKey]models.ExecutionRecord
	generations map[string]uint64

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
}

func New() *Store {
	return &Store{
		records:     make(map[models.RecordKey]models.ExecutionRecord),
		generations: make(map[string]uint64),
		listeners:   make(map[int]Listener),
	}
}

// Reconcile overwrites the entry of every incoming record. Keys absent from the
// batch are left untouched.
func (s *Store) Reconcile(canvasID string, records []models.ExecutionRecord) {
	s.mu.Lock()
	s.apply(canvasID, records)
	s.mu.Unlock()

	s.notify(Change{CanvasID: canvasID, Kind: ChangeReconciled, Count: len(records)})
}

// BeginRun discards every record of the canvas and returns its new generation.
// Only writes tagged with the returned generation are accepted by ReconcileRun.
func (s *Store) BeginRun(canvasID string) uint64 {
	s.mu.Lock()
	removed := s.clearCanvasLocked(canvasID)
	s.generations[canvasID]++
	generation := s.generations[canvasID]
	s.mu.Unlock()

	s.notify(Change{CanvasID: canvasID, Kind: ChangeCleared, Count: removed})

	return generation
}

// Generation returns the current generation of a canvas, zero if no run began.
func (s *Store) Generation(canvasID string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.generations[canvasID]
}

// ReconcileRun applies records only when generation is still the canvas's
// current one. It reports whether the batch was applied.
func (s *Store) ReconcileRun(canvasID string, generation uint64, records []models.ExecutionRecord) bool {
	s.mu.Lock()
	if s.generations[canvasID] != generation {
		s.mu.Unlock()

		return false
	}

	s.apply(canvasID, records)
	s.mu.Unlock()

	s.notify(Change{CanvasID: canvasID, Kind: ChangeReconciled, Count: len(records)})

	return true
}

func (s *Store) apply(canvasID string, records []models.ExecutionRecord) {
	for _, record := range records {
		key := models.NewRecordKey(canvasID, record.NodeID, record.SubIndex)

		stored := record.Clone()
		stored.SubIndex = key.SubIndex
		s.records[key] = stored
	}
}

// Get returns the node's own record. The boolean is false when nothing has
// been observed for the node yet.
func (s *Store) Get(canvasID, nodeID string) (models.ExecutionRecord, bool) {
	return s.GetIteration(canvasID, nodeID, models.NoSubIndex)
}

// GetIteration returns the record of one loop iteration of a node.
func (s *Store) GetIteration(canvasID, nodeID string, subIndex int) (models.ExecutionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[models.NewRecordKey(canvasID, nodeID, subIndex)]
	if !ok {
		return models.ExecutionRecord{}, false
	}

	return record.Clone(), true
}

// Records returns every record of a canvas ordered by node and sub index.
func (s *Store) Records(canvasID string) []models.ExecutionRecord {
	s.mu.RLock()
	records := s.recordsLocked(canvasID)
	s.mu.RUnlock()

	sortRecords(records)

	return records
}

// RecordsAt returns the records of a canvas only while generation is still
// current. It reports false once a newer run has begun.
func (s *Store) RecordsAt(canvasID string, generation uint64) ([]models.ExecutionRecord, bool) {
	s.mu.RLock()

	if s.generations[canvasID] != generation {
		s.mu.RUnlock()

		return nil, false
	}

	records := s.recordsLocked(canvasID)
	s.mu.RUnlock()

	sortRecords(records)

	return records, true
}

func (s *Store) recordsLocked(canvasID string) []models.ExecutionRecord {
	records := make([]models.ExecutionRecord, 0)

	for key, record := range s.records {
		if key.CanvasID == canvasID {
			records = append(records, record.Clone())
		}
	}

	return records
}

func sortRecords(records []models.ExecutionRecord) {
	slices.SortFunc(records, func(a, b models.ExecutionRecord) int {
		return cmp.Or(cmp.Compare(a.NodeID, b.NodeID), cmp.Compare(a.SubIndex, b.SubIndex))
	})
}

// Statuses returns the (node, status) set of a canvas for status projectors.
func (s *Store) Statuses(canvasID string) []models.NodeStatus {
	records := s.Records(canvasID)
	statuses := make([]models.NodeStatus, 0, len(records))

	for _, record := range records {
		statuses = append(statuses, models.NodeStatus{
			NodeID:   record.NodeID,
			SubIndex: record.SubIndex,
			Status:   record.Status,
			Error:    record.Error,
		})
	}

	return statuses
}

// Canvases lists every canvas that currently holds at least one record.
func (s *Store) Canvases() []string {
	s.mu.RLock()

	seen := make(map[string]struct{})
	for key := range s.records {
		seen[key.CanvasID] = struct{}{}
	}

	s.mu.RUnlock()

	canvases := make([]string, 0, len(seen))
	for canvasID := range seen {
		canvases = append(canvases, canvasID)
	}

	slices.Sort(canvases)

	return canvases
}

// Len returns the total number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// ClearCanvas removes every record of the canvas. Its generation is kept.
func (s *Store) ClearCanvas(canvasID string) {
	s.mu.Lock()
	removed := s.clearCanvasLocked(canvasID)
	s.mu.Unlock()

	s.notify(Change{CanvasID: canvasID, Kind: ChangeCleared, Count: removed})
}

func (s *Store) clearCanvasLocked(canvasID string) int {
	removed := 0

	for key := range s.records {
		if key.CanvasID == canvasID {
			delete(s.records, key)

			removed++
		}
	}

	return removed
}

// ClearAll removes every record of every canvas.
func (s *Store) ClearAll() {
	s.mu.Lock()

	counts := make(map[string]int)
	for key := range s.records {
		counts[key.CanvasID]++
	}

	s.records = make(map[models.RecordKey]models.ExecutionRecord)
	s.mu.Unlock()

	for canvasID, count := range counts {
		s.notify(Change{CanvasID: canvasID, Kind: ChangeCleared, Count: count})
	}
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Store) Subscribe(listener Listener) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Store) notify(change Change) {
	s.listenersMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))

	for _, listener := range s.listeners {
		listeners = append(listeners, listener)
	}

	s.listenersMu.RUnlock()

	for _, listener := range listeners {
		listener(change)
	}
}
