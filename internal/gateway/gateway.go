// SPDX-License-Identifier: Apache-2.0

// Package gateway implements the review operations behind the request
// surface: schema and event queries answered from the in-memory stores, and
// the accept/reject decisions that write through to the catalog and the
// review database.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/seisreview/cct-service/internal/domain"
	"github.com/seisreview/cct-service/internal/metrics"
	"github.com/seisreview/cct-service/internal/seismo"
	"github.com/seisreview/cct-service/internal/store"
)

// EventCache is the synchronized view of the review database.
type EventCache interface {
	Schemas() []string
	HaveSchema(schema string) bool
	Store(schema string) (*store.Store, error)
	Refresh(ctx context.Context, schema string) error
}

// MagnitudeWriter persists review decisions to the seismic catalog.
type MagnitudeWriter interface {
	PreferredOrigin(ctx context.Context, eventIdentifier int64) (int64, error)
	Upsert(ctx context.Context, user string, eventIdentifier int64, magnitude *domain.NetworkMagnitude) error
	Delete(ctx context.Context, user string, eventIdentifier int64) error
}

// ReviewUpdater records the decision on the review database's event row.
type ReviewUpdater interface {
	UpdateReviewStatus(ctx context.Context, schema, eventIdentifier string, status domain.ReviewStatus) error
}

type Gateway struct {
	cache  EventCache
	writer MagnitudeWriter
	review ReviewUpdater
	logger *slog.Logger
}

func New(cache EventCache, writer MagnitudeWriter, review ReviewUpdater, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{cache: cache, writer: writer, review: review, logger: logger}
}

// AvailableSchemas lists the schemas the service synchronizes.
func (g *Gateway) AvailableSchemas() []string {
	return g.cache.Schemas()
}

// Fingerprint returns the current content fingerprint for a schema's cache.
func (g *Gateway) Fingerprint(schema string) (uint64, error) {
	st, err := g.cache.Store(schema)
	if err != nil {
		return 0, err
	}
	return st.Fingerprint(), nil
}

// Snapshot returns the light payloads for every cached event in a schema as
// one JSON array.
func (g *Gateway) Snapshot(schema string) ([]byte, error) {
	st, err := g.cache.Store(schema)
	if err != nil {
		return nil, err
	}
	return st.Snapshot(), nil
}

// Detail returns the full payload for one cached event.
func (g *Gateway) Detail(schema, eventIdentifier string) ([]byte, error) {
	st, err := g.cache.Store(schema)
	if err != nil {
		return nil, err
	}
	record, err := st.Get(eventIdentifier)
	if err != nil {
		return nil, err
	}
	return record.Full, nil
}

// HaveEvent reports whether the event is present in the schema's cache.
func (g *Gateway) HaveEvent(schema, eventIdentifier string) (bool, error) {
	st, err := g.cache.Store(schema)
	if err != nil {
		return false, err
	}
	return st.Contains(eventIdentifier), nil
}

// Accept publishes the event's coda-calibrated magnitude to the catalog as
// the preferred network magnitude and marks the event accepted. The catalog
// write must succeed before the review status changes; a failed cache
// refresh afterwards is logged but does not fail the decision.
func (g *Gateway) Accept(ctx context.Context, user, schema, eventIdentifier string) error {
	if err := g.accept(ctx, user, schema, eventIdentifier); err != nil {
		metrics.IncReviewDecision("accept", "error")
		return err
	}
	metrics.IncReviewDecision("accept", "ok")
	return nil
}

func (g *Gateway) accept(ctx context.Context, user, schema, eventIdentifier string) error {
	st, err := g.cache.Store(schema)
	if err != nil {
		return err
	}
	record, err := st.Get(eventIdentifier)
	if err != nil {
		return err
	}
	numericIdentifier, err := domain.ParseEventIdentifier(eventIdentifier)
	if err != nil {
		return err
	}

	value, err := codaMagnitude(record.Light)
	if err != nil {
		return err
	}

	originIdentifier, err := g.writer.PreferredOrigin(ctx, numericIdentifier)
	if err != nil {
		return fmt.Errorf("resolve preferred origin for %s: %w", eventIdentifier, err)
	}

	magnitude, err := domain.NewNetworkMagnitude(value, originIdentifier)
	if err != nil {
		return err
	}
	g.applyGeometry(magnitude, record.Full, eventIdentifier)

	if err := g.writer.Upsert(ctx, user, numericIdentifier, magnitude); err != nil {
		return fmt.Errorf("publish magnitude for %s: %w", eventIdentifier, err)
	}
	metrics.IncMagnitudeWrite("upsert")

	if err := g.review.UpdateReviewStatus(ctx, schema, eventIdentifier, domain.ReviewAccepted); err != nil {
		return fmt.Errorf("mark %s accepted: %w", eventIdentifier, err)
	}

	g.logger.Info("event accepted",
		"schema", schema,
		"event_id", eventIdentifier,
		"magnitude", value,
		"user", user,
	)
	g.refreshAfterDecision(ctx, schema)
	return nil
}

// Reject withdraws any previously published magnitude for the event and
// marks it rejected. A magnitude that was never published is not an error.
func (g *Gateway) Reject(ctx context.Context, user, schema, eventIdentifier string) error {
	if err := g.reject(ctx, user, schema, eventIdentifier); err != nil {
		metrics.IncReviewDecision("reject", "error")
		return err
	}
	metrics.IncReviewDecision("reject", "ok")
	return nil
}

func (g *Gateway) reject(ctx context.Context, user, schema, eventIdentifier string) error {
	st, err := g.cache.Store(schema)
	if err != nil {
		return err
	}
	if !st.Contains(eventIdentifier) {
		return fmt.Errorf("event %s: %w", eventIdentifier, domain.ErrEventNotFound)
	}
	numericIdentifier, err := domain.ParseEventIdentifier(eventIdentifier)
	if err != nil {
		return err
	}

	if err := g.writer.Delete(ctx, user, numericIdentifier); err != nil {
		return fmt.Errorf("withdraw magnitude for %s: %w", eventIdentifier, err)
	}
	metrics.IncMagnitudeWrite("delete")

	if err := g.review.UpdateReviewStatus(ctx, schema, eventIdentifier, domain.ReviewRejected); err != nil {
		return fmt.Errorf("mark %s rejected: %w", eventIdentifier, err)
	}

	g.logger.Info("event rejected",
		"schema", schema,
		"event_id", eventIdentifier,
		"user", user,
	)
	g.refreshAfterDecision(ctx, schema)
	return nil
}

// applyGeometry derives the station count, observation count, azimuthal gap
// and nearest-station distance from the full payload. Geometry is advisory:
// when the payload cannot be unpacked the magnitude is written without it.
func (g *Gateway) applyGeometry(magnitude *domain.NetworkMagnitude, full []byte, eventIdentifier string) {
	hypocenter, stations, observations, err := eventGeometry(full, eventIdentifier)
	if err != nil {
		g.logger.Warn("station geometry unavailable; writing magnitude without it",
			"event_id", eventIdentifier,
			"error", err,
		)
		return
	}

	if err := magnitude.SetStationCount(len(stations)); err != nil {
		g.logger.Warn("invalid station count", "event_id", eventIdentifier, "error", err)
	}
	if err := magnitude.SetObservationCount(observations); err != nil {
		g.logger.Warn("invalid observation count", "event_id", eventIdentifier, "error", err)
	}
	azimuths := make([]float64, len(stations))
	for i, station := range stations {
		azimuths[i] = seismo.Azimuth(hypocenter, station)
	}
	if err := magnitude.SetGap(seismo.AzimuthalGap(azimuths)); err != nil {
		g.logger.Warn("invalid azimuthal gap", "event_id", eventIdentifier, "error", err)
	}
	if nearest, ok := seismo.NearestDistance(hypocenter, stations); ok {
		if err := magnitude.SetDistance(nearest); err != nil {
			g.logger.Warn("invalid nearest distance", "event_id", eventIdentifier, "error", err)
		}
	}
}

func (g *Gateway) refreshAfterDecision(ctx context.Context, schema string) {
	if err := g.cache.Refresh(ctx, schema); err != nil {
		g.logger.Warn("post-decision refresh failed; cache catches up on next poll",
			"schema", schema,
			"error", err,
		)
	}
}

// codaMagnitude extracts the reviewable magnitude from the light payload.
func codaMagnitude(light []byte) (float64, error) {
	var payload struct {
		CCTMagnitude *float64 `json:"cctMagnitude"`
	}
	if err := json.Unmarshal(light, &payload); err != nil {
		return 0, fmt.Errorf("unpack light payload: %w", err)
	}
	if payload.CCTMagnitude == nil {
		return 0, domain.NewValidationError("cctMagnitude", "event has no magnitude to publish")
	}
	return *payload.CCTMagnitude, nil
}
