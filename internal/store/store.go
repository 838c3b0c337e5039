// SPDX-License-Identifier: Apache-2.0

// Package store holds the per-schema in-memory event cache. One background
// sync path mutates each store; request handlers only read. The content
// fingerprint is recomputed inside the same critical section as the mutation
// batch that invalidated it, so a reader can never observe a store whose
// fingerprint disagrees with its contents.
package store

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/seisreview/cct-service/internal/domain"
)

type Store struct {
	mu          sync.RWMutex
	events      map[string]domain.EventRecord
	fingerprint uint64
}

func New() *Store {
	return &Store{
		events: make(map[string]domain.EventRecord),
	}
}

// Batch applies a group of mutations under one lock acquisition. The batch
// is only valid for the duration of the Mutate callback.
type Batch struct {
	store   *Store
	changed bool
}

// Insert adds a new record and fails with domain.ErrDuplicateEvent if the
// identifier is already present.
func (b *Batch) Insert(record domain.EventRecord) error {
	if _, ok := b.store.events[record.Identifier]; ok {
		return domain.ErrDuplicateEvent
	}
	b.store.events[record.Identifier] = record
	b.changed = true
	return nil
}

// Upsert inserts the record or replaces the existing one wholesale. The
// light and full payloads are always replaced together.
func (b *Batch) Upsert(record domain.EventRecord) {
	b.store.events[record.Identifier] = record
	b.changed = true
}

// Mutate runs apply under the store's exclusive lock and, when the batch
// changed anything, recomputes the fingerprint before the lock is released.
// It returns whether a recompute happened alongside apply's error; mutations
// already applied before an error stay applied, and the fingerprint is still
// brought back in sync with them.
func (s *Store) Mutate(apply func(*Batch) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := &Batch{store: s}
	err := apply(batch)
	if batch.changed {
		s.recomputeLocked()
	}
	return batch.changed, err
}

// recomputeLocked hashes the light payloads in ascending identifier order.
// Callers must hold the write lock.
func (s *Store) recomputeLocked() {
	if len(s.events) == 0 {
		s.fingerprint = 0
		return
	}

	digest := xxhash.New()
	for _, identifier := range s.sortedIdentifiersLocked() {
		_, _ = digest.Write(s.events[identifier].Light)
	}
	s.fingerprint = digest.Sum64()
}

func (s *Store) sortedIdentifiersLocked() []string {
	identifiers := make([]string, 0, len(s.events))
	for identifier := range s.events {
		identifiers = append(identifiers, identifier)
	}
	sort.Strings(identifiers)
	return identifiers
}

func (s *Store) Contains(identifier string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.events[identifier]
	return ok
}

// Get returns a copy of the record or domain.ErrEventNotFound.
func (s *Store) Get(identifier string) (domain.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.events[identifier]
	if !ok {
		return domain.EventRecord{}, domain.ErrEventNotFound
	}
	return record, nil
}

func (s *Store) Fingerprint() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fingerprint
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Snapshot serializes the current light payloads as one JSON array in
// ascending identifier order. The payloads are stored verbatim, so the
// array is assembled by concatenation rather than re-marshalling.
func (s *Store) Snapshot() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]byte, 0, 2+len(s.events)*256)
	out = append(out, '[')
	for i, identifier := range s.sortedIdentifiersLocked() {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, s.events[identifier].Light...)
	}
	return append(out, ']')
}
