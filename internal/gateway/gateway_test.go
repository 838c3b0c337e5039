// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"testing"

	"github.com/seisreview/cct-service/internal/domain"
	"github.com/seisreview/cct-service/internal/store"
)

const testEventID = "60012345"

// Hypocenter at the origin with stations due north and due east, so the
// azimuths are 0 and 90 and the expected gap is 270.
const testFullPayload = `{
	"measuredMwDetails": {
		"60012345": {"latitude": 0.0, "longitude": 0.0, "depth": 5.0}
	},
	"spectraMeasurements": {
		"60012345": [
			{"waveform": {"stream": {"station": {"latitude": 1.0, "longitude": 0.0}}}},
			{"waveform": {"stream": {"station": {"latitude": 1.0, "longitude": 0.0}}}},
			{"waveform": {"stream": {"station": {"latitude": 0.0, "longitude": 1.0}}}}
		]
	}
}`

const testLightPayload = `{"eventIdentifier":60012345,"cctMagnitude":4.2345,"reviewStatus":"C"}`

type fakeCache struct {
	stores     map[string]*store.Store
	refreshed  []string
	refreshErr error
}

func (f *fakeCache) Schemas() []string {
	out := make([]string, 0, len(f.stores))
	for schema := range f.stores {
		out = append(out, schema)
	}
	sort.Strings(out)
	return out
}

func (f *fakeCache) HaveSchema(schema string) bool {
	_, ok := f.stores[schema]
	return ok
}

func (f *fakeCache) Store(schema string) (*store.Store, error) {
	st, ok := f.stores[schema]
	if !ok {
		return nil, domain.ErrSchemaNotFound
	}
	return st, nil
}

func (f *fakeCache) Refresh(_ context.Context, schema string) error {
	f.refreshed = append(f.refreshed, schema)
	return f.refreshErr
}

type upsertCall struct {
	user      string
	eventID   int64
	magnitude *domain.NetworkMagnitude
}

type fakeWriter struct {
	origin    int64
	originErr error
	upserts   []upsertCall
	upsertErr error
	deletes   []int64
	deleteErr error
}

func (f *fakeWriter) PreferredOrigin(_ context.Context, _ int64) (int64, error) {
	if f.originErr != nil {
		return 0, f.originErr
	}
	return f.origin, nil
}

func (f *fakeWriter) Upsert(_ context.Context, user string, eventID int64, magnitude *domain.NetworkMagnitude) error {
	f.upserts = append(f.upserts, upsertCall{user: user, eventID: eventID, magnitude: magnitude})
	return f.upsertErr
}

func (f *fakeWriter) Delete(_ context.Context, _ string, eventID int64) error {
	f.deletes = append(f.deletes, eventID)
	return f.deleteErr
}

type statusCall struct {
	schema string
	id     string
	status domain.ReviewStatus
}

type fakeReview struct {
	calls []statusCall
	err   error
}

func (f *fakeReview) UpdateReviewStatus(_ context.Context, schema, id string, status domain.ReviewStatus) error {
	f.calls = append(f.calls, statusCall{schema: schema, id: id, status: status})
	return f.err
}

func newTestCache(t *testing.T) *fakeCache {
	t.Helper()
	st := store.New()
	_, err := st.Mutate(func(batch *store.Batch) error {
		return batch.Insert(domain.EventRecord{
			Identifier: testEventID,
			Light:      []byte(testLightPayload),
			Full:       []byte(testFullPayload),
			UpdatedAt:  100,
		})
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return &fakeCache{stores: map[string]*store.Store{"production": st, "test": store.New()}}
}

func TestAcceptPublishesMagnitude(t *testing.T) {
	cache := newTestCache(t)
	writer := &fakeWriter{origin: 9001}
	review := &fakeReview{}
	g := New(cache, writer, review, slog.Default())

	if err := g.Accept(context.Background(), "reviewer", "production", testEventID); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if len(writer.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(writer.upserts))
	}
	call := writer.upserts[0]
	if call.user != "reviewer" || call.eventID != 60012345 {
		t.Fatalf("upsert call = %+v", call)
	}

	mag := call.magnitude
	if mag.Value != 4.2345 {
		t.Fatalf("magnitude value = %v, want 4.2345", mag.Value)
	}
	if mag.OriginIdentifier != 9001 {
		t.Fatalf("origin = %d, want 9001", mag.OriginIdentifier)
	}
	if mag.ReviewFlag != domain.ReviewFlagHuman {
		t.Fatalf("review flag = %q, want %q", mag.ReviewFlag, domain.ReviewFlagHuman)
	}
	if mag.StationCount == nil || *mag.StationCount != 2 {
		t.Fatalf("station count = %v, want 2", mag.StationCount)
	}
	if mag.ObservationCount == nil || *mag.ObservationCount != 3 {
		t.Fatalf("observation count = %v, want 3", mag.ObservationCount)
	}
	if mag.Gap == nil || *mag.Gap < 269.9 || *mag.Gap > 270.1 {
		t.Fatalf("gap = %v, want ~270", mag.Gap)
	}
	if mag.Distance == nil || *mag.Distance < 110 || *mag.Distance > 112.5 {
		t.Fatalf("distance = %v, want ~111 km", mag.Distance)
	}

	if len(review.calls) != 1 || review.calls[0].status != domain.ReviewAccepted {
		t.Fatalf("review calls = %+v, want one accepted update", review.calls)
	}
	if len(cache.refreshed) != 1 || cache.refreshed[0] != "production" {
		t.Fatalf("refreshed = %v, want [production]", cache.refreshed)
	}
}

func TestAcceptWriterFailureLeavesStatusUntouched(t *testing.T) {
	cache := newTestCache(t)
	writer := &fakeWriter{origin: 9001, upsertErr: errors.New("catalog down")}
	review := &fakeReview{}
	g := New(cache, writer, review, slog.Default())

	if err := g.Accept(context.Background(), "reviewer", "production", testEventID); err == nil {
		t.Fatal("expected accept to fail")
	}
	if len(review.calls) != 0 {
		t.Fatalf("review status updated despite writer failure: %+v", review.calls)
	}
	if len(cache.refreshed) != 0 {
		t.Fatal("refresh triggered despite writer failure")
	}
}

func TestAcceptRefreshFailureDoesNotFailDecision(t *testing.T) {
	cache := newTestCache(t)
	cache.refreshErr = errors.New("transient")
	writer := &fakeWriter{origin: 9001}
	review := &fakeReview{}
	g := New(cache, writer, review, slog.Default())

	if err := g.Accept(context.Background(), "reviewer", "production", testEventID); err != nil {
		t.Fatalf("Accept should tolerate refresh failure: %v", err)
	}
}

func TestAcceptGeometryFailureStillWrites(t *testing.T) {
	st := store.New()
	_, _ = st.Mutate(func(batch *store.Batch) error {
		return batch.Insert(domain.EventRecord{
			Identifier: testEventID,
			Light:      []byte(testLightPayload),
			Full:       []byte(`{"measuredMwDetails":{}}`),
			UpdatedAt:  100,
		})
	})
	cache := &fakeCache{stores: map[string]*store.Store{"production": st}}
	writer := &fakeWriter{origin: 9001}
	g := New(cache, writer, &fakeReview{}, slog.Default())

	if err := g.Accept(context.Background(), "reviewer", "production", testEventID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	mag := writer.upserts[0].magnitude
	if mag.Gap != nil || mag.Distance != nil || mag.StationCount != nil {
		t.Fatalf("geometry should be omitted, got %+v", mag)
	}
}

func TestAcceptUnknownEvent(t *testing.T) {
	g := New(newTestCache(t), &fakeWriter{}, &fakeReview{}, slog.Default())

	err := g.Accept(context.Background(), "reviewer", "production", "99999999")
	if !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("err = %v, want ErrEventNotFound", err)
	}
}

func TestRejectWithdrawsMagnitude(t *testing.T) {
	cache := newTestCache(t)
	writer := &fakeWriter{}
	review := &fakeReview{}
	g := New(cache, writer, review, slog.Default())

	if err := g.Reject(context.Background(), "reviewer", "production", testEventID); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if len(writer.deletes) != 1 || writer.deletes[0] != 60012345 {
		t.Fatalf("deletes = %v, want [60012345]", writer.deletes)
	}
	if len(review.calls) != 1 || review.calls[0].status != domain.ReviewRejected {
		t.Fatalf("review calls = %+v, want one rejected update", review.calls)
	}
	if len(cache.refreshed) != 1 {
		t.Fatalf("refreshed = %v, want one refresh", cache.refreshed)
	}
}

func TestRejectUnknownSchema(t *testing.T) {
	g := New(newTestCache(t), &fakeWriter{}, &fakeReview{}, slog.Default())

	err := g.Reject(context.Background(), "reviewer", "archive", testEventID)
	if !errors.Is(err, domain.ErrSchemaNotFound) {
		t.Fatalf("err = %v, want ErrSchemaNotFound", err)
	}
}
