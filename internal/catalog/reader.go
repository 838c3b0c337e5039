// SPDX-License-Identifier: Apache-2.0

// Package catalog adapts the review database: read-side queries that feed
// the event cache and the review-status write used by accept/reject. Each
// schema is a catalog partition with its own event table.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/seisreview/cct-service/internal/domain"
)

type Reader struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewReader(pool *pgxpool.Pool, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		pool:   pool,
		logger: logger,
	}
}

const eventColumns = `identifier, CAST(mw_data AS TEXT), cct_magnitude,
	cct_magnitude_type, authoritative_magnitude, authoritative_magnitude_type,
	review_status, creation_mode, update_date`

// FetchRecent returns up to limit of the most recently loaded events for the
// schema. Rows that fail to unpack are logged and skipped; a partial load is
// better than no service.
func (r *Reader) FetchRecent(ctx context.Context, schema string, limit int) ([]domain.EventRecord, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM %s ORDER BY load_date DESC LIMIT $1`,
		eventColumns, eventTable(schema),
	)

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events for %s: %w", schema, err)
	}
	defer rows.Close()

	return r.collect(rows, schema)
}

// FetchSince returns events whose server-side update watermark is strictly
// newer than the given value.
func (r *Reader) FetchSince(ctx context.Context, schema string, watermark float64) ([]domain.EventRecord, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE update_date > $1`,
		eventColumns, eventTable(schema),
	)

	rows, err := r.pool.Query(ctx, query, watermark)
	if err != nil {
		return nil, fmt.Errorf("query events since %f for %s: %w", watermark, schema, err)
	}
	defer rows.Close()

	return r.collect(rows, schema)
}

func (r *Reader) collect(rows pgx.Rows, schema string) ([]domain.EventRecord, error) {
	var records []domain.EventRecord
	for rows.Next() {
		record, err := scanEvent(rows)
		if err != nil {
			r.logger.Warn("failed to unpack event row; skipping",
				"schema", schema,
				"error", err,
			)
			continue
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read event rows for %s: %w", schema, err)
	}
	return records, nil
}

// lightEvent is the list-view subset of one event row. Field order is fixed
// so the serialized payload, and therefore the store fingerprint, is
// deterministic.
type lightEvent struct {
	EventIdentifier            string   `json:"eventIdentifier"`
	CCTMagnitude               *float64 `json:"cctMagnitude"`
	CCTMagnitudeType           *string  `json:"cctMagnitudeType"`
	AuthoritativeMagnitude     *float64 `json:"authoritativeMagnitude"`
	AuthoritativeMagnitudeType *string  `json:"authoritativeMagnitudeType"`
	ReviewStatus               *string  `json:"reviewStatus"`
	CreationMode               *string  `json:"creationMode"`
	UpdateDate                 float64  `json:"updateDate"`
}

func scanEvent(rows pgx.Rows) (domain.EventRecord, error) {
	var (
		identifier int64
		mwData     []byte
		light      lightEvent
		updateDate *float64
	)

	err := rows.Scan(
		&identifier,
		&mwData,
		&light.CCTMagnitude,
		&light.CCTMagnitudeType,
		&light.AuthoritativeMagnitude,
		&light.AuthoritativeMagnitudeType,
		&light.ReviewStatus,
		&light.CreationMode,
		&updateDate,
	)
	if err != nil {
		return domain.EventRecord{}, err
	}

	light.EventIdentifier = fmt.Sprintf("%d", identifier)
	if updateDate != nil {
		light.UpdateDate = *updateDate
	}

	payload, err := json.Marshal(light)
	if err != nil {
		return domain.EventRecord{}, fmt.Errorf("marshal light payload: %w", err)
	}

	return domain.EventRecord{
		Identifier: light.EventIdentifier,
		Light:      payload,
		Full:       mwData,
		UpdatedAt:  light.UpdateDate,
	}, nil
}

// eventTable returns the quoted table reference for a schema. Schema names
// come from the fixed registry established at startup, never from request
// input, but they are still quoted as identifiers.
func eventTable(schema string) string {
	return pgx.Identifier{schema, "event"}.Sanitize()
}
