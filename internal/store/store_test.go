// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"errors"
	"testing"

	"github.com/seisreview/cct-service/internal/domain"
)

func record(id, light string) domain.EventRecord {
	return domain.EventRecord{
		Identifier: id,
		Light:      []byte(light),
		Full:       []byte(`{"detail":` + light + `}`),
	}
}

func mustMutate(t *testing.T, s *Store, apply func(*Batch) error) bool {
	t.Helper()
	changed, err := s.Mutate(apply)
	if err != nil {
		t.Fatalf("unexpected mutate error: %v", err)
	}
	return changed
}

func TestEmptyStore(t *testing.T) {
	s := New()

	if got := s.Fingerprint(); got != 0 {
		t.Fatalf("expected zero fingerprint for empty store, got %d", got)
	}
	if s.Contains("1") {
		t.Fatal("expected empty store to contain nothing")
	}
	if _, err := s.Get("1"); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
	if got := s.Snapshot(); !bytes.Equal(got, []byte("[]")) {
		t.Fatalf("expected empty snapshot, got %s", got)
	}
}

func TestInsertDuplicate(t *testing.T) {
	s := New()

	mustMutate(t, s, func(b *Batch) error {
		return b.Insert(record("100", `{"id":"100"}`))
	})

	_, err := s.Mutate(func(b *Batch) error {
		return b.Insert(record("100", `{"id":"100","v":2}`))
	})
	if !errors.Is(err, domain.ErrDuplicateEvent) {
		t.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}

	// The first payload must survive the rejected insert.
	got, err := s.Get("100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got.Light) != `{"id":"100"}` {
		t.Fatalf("unexpected light payload: %s", got.Light)
	}
}

func TestUpsertReplacesWholesale(t *testing.T) {
	s := New()

	mustMutate(t, s, func(b *Batch) error {
		b.Upsert(record("42", `{"id":"42","reviewStatus":"C"}`))
		return nil
	})
	mustMutate(t, s, func(b *Batch) error {
		b.Upsert(record("42", `{"id":"42","reviewStatus":"A"}`))
		return nil
	})

	got, err := s.Get("42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got.Light) != `{"id":"42","reviewStatus":"A"}` {
		t.Fatalf("expected exactly the second payload, got %s", got.Light)
	}
	if s.Len() != 1 {
		t.Fatalf("expected one record, got %d", s.Len())
	}
}

func TestFingerprintTracksContent(t *testing.T) {
	s := New()

	mustMutate(t, s, func(b *Batch) error {
		b.Upsert(record("1", `{"id":"1"}`))
		b.Upsert(record("2", `{"id":"2"}`))
		return nil
	})
	first := s.Fingerprint()
	if first == 0 {
		t.Fatal("expected non-zero fingerprint")
	}

	// Replaying identical content leaves the fingerprint unchanged.
	mustMutate(t, s, func(b *Batch) error {
		b.Upsert(record("1", `{"id":"1"}`))
		return nil
	})
	if got := s.Fingerprint(); got != first {
		t.Fatalf("fingerprint changed without content change: %d vs %d", got, first)
	}

	// Changing one payload changes the fingerprint.
	mustMutate(t, s, func(b *Batch) error {
		b.Upsert(record("1", `{"id":"1","reviewStatus":"A"}`))
		return nil
	})
	if got := s.Fingerprint(); got == first {
		t.Fatal("expected fingerprint to change with content")
	}
}

func TestFingerprintOrderIndependent(t *testing.T) {
	a := New()
	b := New()

	mustMutate(t, a, func(batch *Batch) error {
		batch.Upsert(record("1", `{"id":"1"}`))
		batch.Upsert(record("2", `{"id":"2"}`))
		return nil
	})
	mustMutate(t, b, func(batch *Batch) error {
		batch.Upsert(record("2", `{"id":"2"}`))
		batch.Upsert(record("1", `{"id":"1"}`))
		return nil
	})

	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("expected insertion order not to affect the fingerprint")
	}
}

func TestMutateSkipsRecomputeWhenUnchanged(t *testing.T) {
	s := New()
	mustMutate(t, s, func(b *Batch) error {
		b.Upsert(record("1", `{"id":"1"}`))
		return nil
	})

	changed := mustMutate(t, s, func(b *Batch) error { return nil })
	if changed {
		t.Fatal("expected no-op batch to report unchanged")
	}
}

func TestSnapshotSortedByIdentifier(t *testing.T) {
	s := New()
	mustMutate(t, s, func(b *Batch) error {
		b.Upsert(record("b", `{"id":"b"}`))
		b.Upsert(record("a", `{"id":"a"}`))
		return nil
	})

	want := `[{"id":"a"},{"id":"b"}]`
	if got := s.Snapshot(); string(got) != want {
		t.Fatalf("expected %s got %s", want, got)
	}
}
