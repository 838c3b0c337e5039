// SPDX-License-Identifier: Apache-2.0

// Package syncer keeps the per-schema event stores in step with the review
// database: one bounded initial load per schema, then periodic incremental
// refreshes driven off the update watermark. A single background goroutine
// serves every schema; it is the sole writer to the stores.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/seisreview/cct-service/internal/domain"
	"github.com/seisreview/cct-service/internal/metrics"
	"github.com/seisreview/cct-service/internal/store"
)

// CatalogReader is the read-side contract the engine polls.
type CatalogReader interface {
	FetchRecent(ctx context.Context, schema string, limit int) ([]domain.EventRecord, error)
	FetchSince(ctx context.Context, schema string, watermark float64) ([]domain.EventRecord, error)
}

type Deps struct {
	Reader           CatalogReader
	Logger           *slog.Logger
	Schemas          []string
	PollInterval     time.Duration
	InitialLoadLimit int
}

// schemaState serializes every mutation path for one schema: the periodic
// tick and any request-triggered refresh go through the same mutex, so
// refreshes for a schema never overlap.
type schemaState struct {
	mu        sync.Mutex
	store     *store.Store
	watermark float64
	loaded    bool
}

type Engine struct {
	reader       CatalogReader
	logger       *slog.Logger
	interval     time.Duration
	initialLimit int
	schemas      []string
	states       map[string]*schemaState

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func New(deps Deps) (*Engine, error) {
	if deps.Reader == nil {
		return nil, fmt.Errorf("syncer: nil catalog reader")
	}
	if len(deps.Schemas) == 0 {
		return nil, fmt.Errorf("syncer: no schemas configured")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := deps.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}

	limit := deps.InitialLoadLimit
	if limit <= 0 {
		limit = 50
	}

	schemas := make([]string, len(deps.Schemas))
	copy(schemas, deps.Schemas)
	sort.Strings(schemas)

	states := make(map[string]*schemaState, len(schemas))
	for _, schema := range schemas {
		states[schema] = &schemaState{store: store.New()}
	}

	return &Engine{
		reader:       deps.Reader,
		logger:       logger,
		interval:     interval,
		initialLimit: limit,
		schemas:      schemas,
		states:       states,
	}, nil
}

// Schemas returns the fixed registry established at startup.
func (e *Engine) Schemas() []string {
	out := make([]string, len(e.schemas))
	copy(out, e.schemas)
	return out
}

func (e *Engine) HaveSchema(schema string) bool {
	_, ok := e.states[schema]
	return ok
}

// Store returns the event store for a schema, read-only for callers.
func (e *Engine) Store(schema string) (*store.Store, error) {
	state, ok := e.states[schema]
	if !ok {
		return nil, domain.ErrSchemaNotFound
	}
	return state.store, nil
}

// Start performs the initial load for every schema, then launches the
// background refresh loop. A schema whose initial load fails is left empty
// and retried by the loop; the service still starts.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("syncer: already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true
	e.mu.Unlock()

	for _, schema := range e.schemas {
		if err := e.Refresh(ctx, schema); err != nil {
			e.logger.Error("initial load failed; schema starts empty",
				"schema", schema,
				"error", err,
			)
		}
	}

	go e.run(loopCtx)
	return nil
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("event sync loop started",
		"interval", e.interval.String(),
		"schemas", e.schemas,
	)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("event sync loop stopped")
			return
		case <-ticker.C:
			for _, schema := range e.schemas {
				if err := e.Refresh(ctx, schema); err != nil {
					// One schema's failure must not starve the others;
					// the next tick retries.
					e.logger.Error("refresh failed",
						"schema", schema,
						"error", err,
					)
				}
			}
		}
	}
}

// Stop cancels the loop and waits until no refresh is in flight. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done
}

// Refresh brings one schema up to date: a bounded full load the first time,
// an incremental watermark query afterwards. Request-triggered refreshes
// (post accept/reject) and the periodic tick serialize on the same
// per-schema mutex.
func (e *Engine) Refresh(ctx context.Context, schema string) error {
	state, ok := e.states[schema]
	if !ok {
		return domain.ErrSchemaNotFound
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	started := time.Now()
	var (
		records []domain.EventRecord
		err     error
	)
	if !state.loaded {
		records, err = e.reader.FetchRecent(ctx, schema, e.initialLimit)
	} else {
		records, err = e.reader.FetchSince(ctx, schema, state.watermark)
	}
	if err != nil {
		metrics.IncRefresh(schema, "error")
		return err
	}

	recomputed, _ := state.store.Mutate(func(batch *store.Batch) error {
		for _, record := range records {
			batch.Upsert(record)
			if record.UpdatedAt > state.watermark {
				state.watermark = record.UpdatedAt
			}
		}
		return nil
	})
	state.loaded = true

	metrics.IncRefresh(schema, "ok")
	metrics.ObserveRefreshDuration(time.Since(started))
	metrics.SetCachedEvents(schema, state.store.Len())

	if recomputed {
		e.logger.Debug("schema refreshed",
			"schema", schema,
			"rows", len(records),
			"watermark", state.watermark,
		)
	}
	return nil
}
