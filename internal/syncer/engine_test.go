// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/seisreview/cct-service/internal/domain"
)

type fakeReader struct {
	mu sync.Mutex

	recentCalls []recentCall
	sinceCalls  []sinceCall

	recent    map[string][]domain.EventRecord
	since     map[string][]domain.EventRecord
	recentErr error
	sinceErr  error
}

type recentCall struct {
	schema string
	limit  int
}

type sinceCall struct {
	schema    string
	watermark float64
}

func (f *fakeReader) FetchRecent(_ context.Context, schema string, limit int) ([]domain.EventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recentCalls = append(f.recentCalls, recentCall{schema: schema, limit: limit})
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	return f.recent[schema], nil
}

func (f *fakeReader) FetchSince(_ context.Context, schema string, watermark float64) ([]domain.EventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinceCalls = append(f.sinceCalls, sinceCall{schema: schema, watermark: watermark})
	if f.sinceErr != nil {
		return nil, f.sinceErr
	}
	return f.since[schema], nil
}

func record(id string, payload string, updatedAt float64) domain.EventRecord {
	return domain.EventRecord{
		Identifier: id,
		Light:      []byte(payload),
		Full:       []byte(`{}`),
		UpdatedAt:  updatedAt,
	}
}

func newTestEngine(t *testing.T, reader CatalogReader, schemas ...string) *Engine {
	t.Helper()
	engine, err := New(Deps{
		Reader:           reader,
		Schemas:          schemas,
		PollInterval:     time.Hour,
		InitialLoadLimit: 50,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return engine
}

func TestRefreshInitialLoadThenIncremental(t *testing.T) {
	reader := &fakeReader{
		recent: map[string][]domain.EventRecord{
			"production": {
				record("60012345", `{"eventIdentifier":60012345}`, 100.5),
				record("60012346", `{"eventIdentifier":60012346}`, 200.25),
			},
		},
		since: map[string][]domain.EventRecord{
			"production": {
				record("60012347", `{"eventIdentifier":60012347}`, 300.0),
			},
		},
	}
	engine := newTestEngine(t, reader, "production")

	if err := engine.Refresh(context.Background(), "production"); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	if len(reader.recentCalls) != 1 {
		t.Fatalf("recent calls = %d, want 1", len(reader.recentCalls))
	}
	if got := reader.recentCalls[0].limit; got != 50 {
		t.Fatalf("initial load limit = %d, want 50", got)
	}

	st, err := engine.Store("production")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if st.Len() != 2 {
		t.Fatalf("store size after initial load = %d, want 2", st.Len())
	}

	if err := engine.Refresh(context.Background(), "production"); err != nil {
		t.Fatalf("incremental refresh: %v", err)
	}
	if len(reader.sinceCalls) != 1 {
		t.Fatalf("since calls = %d, want 1", len(reader.sinceCalls))
	}
	if got := reader.sinceCalls[0].watermark; got != 200.25 {
		t.Fatalf("watermark = %v, want 200.25", got)
	}
	if st.Len() != 3 {
		t.Fatalf("store size after incremental = %d, want 3", st.Len())
	}
}

func TestRefreshAdvancesWatermarkMonotonically(t *testing.T) {
	reader := &fakeReader{
		recent: map[string][]domain.EventRecord{
			"test": {record("1", `{"a":1}`, 500.0)},
		},
		since: map[string][]domain.EventRecord{
			"test": {record("2", `{"a":2}`, 400.0)},
		},
	}
	engine := newTestEngine(t, reader, "test")

	if err := engine.Refresh(context.Background(), "test"); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	if err := engine.Refresh(context.Background(), "test"); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if err := engine.Refresh(context.Background(), "test"); err != nil {
		t.Fatalf("third refresh: %v", err)
	}

	// An older row must not regress the watermark.
	if got := reader.sinceCalls[1].watermark; got != 500.0 {
		t.Fatalf("watermark after older row = %v, want 500.0", got)
	}
}

func TestRefreshUnknownSchema(t *testing.T) {
	engine := newTestEngine(t, &fakeReader{}, "production")

	if err := engine.Refresh(context.Background(), "archive"); !errors.Is(err, domain.ErrSchemaNotFound) {
		t.Fatalf("Refresh(archive) = %v, want ErrSchemaNotFound", err)
	}
	if _, err := engine.Store("archive"); !errors.Is(err, domain.ErrSchemaNotFound) {
		t.Fatalf("Store(archive) = %v, want ErrSchemaNotFound", err)
	}
}

func TestRefreshErrorLeavesStoreUntouched(t *testing.T) {
	reader := &fakeReader{
		recent: map[string][]domain.EventRecord{
			"production": {record("1", `{"a":1}`, 10.0)},
		},
	}
	engine := newTestEngine(t, reader, "production")

	if err := engine.Refresh(context.Background(), "production"); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	st, _ := engine.Store("production")
	before := st.Fingerprint()

	reader.mu.Lock()
	reader.sinceErr = errors.New("connection reset")
	reader.mu.Unlock()

	if err := engine.Refresh(context.Background(), "production"); err == nil {
		t.Fatal("expected refresh error")
	}
	if got := st.Fingerprint(); got != before {
		t.Fatalf("fingerprint changed across failed refresh: %x != %x", got, before)
	}

	// Recovery: the next successful refresh resumes from the same watermark.
	reader.mu.Lock()
	reader.sinceErr = nil
	reader.mu.Unlock()
	if err := engine.Refresh(context.Background(), "production"); err != nil {
		t.Fatalf("recovery refresh: %v", err)
	}
	last := reader.sinceCalls[len(reader.sinceCalls)-1]
	if last.watermark != 10.0 {
		t.Fatalf("recovery watermark = %v, want 10.0", last.watermark)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	engine := newTestEngine(t, &fakeReader{}, "production", "test")

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := engine.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail while running")
	}

	engine.Stop()
	engine.Stop() // must not panic or block
}

func TestSchemasSortedAndIsolated(t *testing.T) {
	engine := newTestEngine(t, &fakeReader{}, "test", "production")

	got := engine.Schemas()
	if len(got) != 2 || got[0] != "production" || got[1] != "test" {
		t.Fatalf("Schemas() = %v, want [production test]", got)
	}

	got[0] = "mutated"
	if again := engine.Schemas(); again[0] != "production" {
		t.Fatal("Schemas() must return a copy")
	}
}
