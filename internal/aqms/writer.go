// SPDX-License-Identifier: Apache-2.0

// Package aqms speaks the authoritative catalog's preferred-magnitude write
// protocol. Every multi-statement write runs inside one pgx transaction;
// the stored procedures are always called non-committing and the outer
// transaction boundary is the sole commit point.
package aqms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/seisreview/cct-service/internal/domain"
	"github.com/seisreview/cct-service/internal/seismo"
)

// Commit flags handed to the catalog's stored procedures. The outer
// transaction owns the commit, so these are always deferCommit.
const deferCommit = 0

const creditTableName = "NETMAG"

type Writer struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		pool:   pool,
		logger: logger,
	}
}

// The discovery join walks event -> preferred origin -> netmag so writes
// only ever see magnitudes attached to the event's preferred origin.
const magnitudeJoin = `FROM event
	INNER JOIN origin ON event.prefor = origin.orid
	INNER JOIN netmag ON netmag.orid = origin.orid
	WHERE event.evid = $1 AND netmag.magtype = $2 AND netmag.magalgo = $3`

// MagnitudeExists reports whether a magnitude of this service's algorithm
// and type already exists for the event's preferred origin.
func (w *Writer) MagnitudeExists(ctx context.Context, eventIdentifier int64) (bool, error) {
	var count int
	err := w.pool.QueryRow(ctx,
		`SELECT COUNT(*) `+magnitudeJoin,
		eventIdentifier, domain.MagnitudeType, domain.MagnitudeAlgorithm,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("magnitude existence query for event %d: %w",
			eventIdentifier, err)
	}
	return count >= 1, nil
}

// MagnitudeIdentifier discovers the existing magnitude row for the event's
// preferred origin. Fails with domain.ErrMagnitudeNotFound when absent.
func (w *Writer) MagnitudeIdentifier(ctx context.Context, eventIdentifier int64) (int64, error) {
	var magnitudeIdentifier int64
	err := w.pool.QueryRow(ctx,
		`SELECT netmag.magid `+magnitudeJoin+` LIMIT 1`,
		eventIdentifier, domain.MagnitudeType, domain.MagnitudeAlgorithm,
	).Scan(&magnitudeIdentifier)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrMagnitudeNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("magnitude identifier query for event %d: %w",
			eventIdentifier, err)
	}
	return magnitudeIdentifier, nil
}

// PreferredOrigin returns the catalog-selected origin for the event.
func (w *Writer) PreferredOrigin(ctx context.Context, eventIdentifier int64) (int64, error) {
	var originIdentifier int64
	err := w.pool.QueryRow(ctx,
		`SELECT prefor FROM event WHERE evid = $1 LIMIT 1`,
		eventIdentifier,
	).Scan(&originIdentifier)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrEventNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("preferred origin query for event %d: %w",
			eventIdentifier, err)
	}
	return originIdentifier, nil
}

// Upsert inserts a new magnitude when none exists for the event's preferred
// origin, and overwrites the existing row otherwise.
func (w *Writer) Upsert(
	ctx context.Context,
	user string,
	eventIdentifier int64,
	magnitude *domain.NetworkMagnitude,
) error {
	exists, err := w.MagnitudeExists(ctx, eventIdentifier)
	if err != nil {
		return err
	}
	if !exists {
		_, err := w.Insert(ctx, user, eventIdentifier, magnitude)
		return err
	}

	magnitudeIdentifier, err := w.MagnitudeIdentifier(ctx, eventIdentifier)
	if err != nil {
		return err
	}
	magnitude.Identifier = magnitudeIdentifier
	return w.Update(ctx, user, eventIdentifier, magnitude)
}

// Insert writes a new network magnitude, marks it as the event's preferred
// magnitude, records the event -> preferred-magnitude mapping and the audit
// credit row, all in one transaction. Fails with domain.ErrMagnitudeExists
// when a magnitude of this algorithm and type is already present. Returns
// the identifier minted by the catalog sequence.
func (w *Writer) Insert(
	ctx context.Context,
	user string,
	eventIdentifier int64,
	magnitude *domain.NetworkMagnitude,
) (int64, error) {
	if err := magnitude.Validate(); err != nil {
		return 0, err
	}

	exists, err := w.MagnitudeExists(ctx, eventIdentifier)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, fmt.Errorf("event %d: %w",
			eventIdentifier, domain.ErrMagnitudeExists)
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin magnitude insert: %w", err)
	}
	defer tx.Rollback(ctx)

	// Placeholders: the catalog schema requires uncertainty and quality
	// columns this service does not estimate.
	const uncertainty, quality = 0.0, 0.0

	var magnitudeIdentifier int64
	err = tx.QueryRow(ctx, `
		SELECT epref.insertNetMag(
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)`,
		magnitude.OriginIdentifier,
		seismo.RoundMagnitude(magnitude.Value),
		magnitude.Type,
		magnitude.Authority,
		magnitude.SubSource,
		magnitude.Algorithm,
		magnitude.StationCount,
		magnitude.ObservationCount,
		uncertainty,
		magnitude.Gap,
		magnitude.Distance,
		quality,
		string(magnitude.ReviewFlag),
		deferCommit,
	).Scan(&magnitudeIdentifier)
	if err != nil {
		return 0, fmt.Errorf("insertNetMag for event %d: %w", eventIdentifier, err)
	}

	if err := w.setPreferredMagnitude(ctx, tx, eventIdentifier); err != nil {
		return 0, err
	}
	if err := w.recordPreferredMapping(ctx, tx, eventIdentifier, magnitude.Type, magnitudeIdentifier); err != nil {
		return 0, err
	}
	if err := w.recordCredit(ctx, tx, magnitudeIdentifier, user); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit magnitude insert for event %d: %w",
			eventIdentifier, err)
	}

	w.logger.Info("network magnitude inserted",
		"event_id", eventIdentifier,
		"magnitude_id", magnitudeIdentifier,
		"user", user,
	)
	return magnitudeIdentifier, nil
}

// Update overwrites the existing magnitude row wholesale; it never patches
// individual columns. The magnitude's Identifier must already be set from a
// prior discovery.
func (w *Writer) Update(
	ctx context.Context,
	user string,
	eventIdentifier int64,
	magnitude *domain.NetworkMagnitude,
) error {
	if err := magnitude.Validate(); err != nil {
		return err
	}
	if magnitude.Identifier <= 0 {
		return domain.NewValidationError("magnitude identifier",
			"must be discovered before an update")
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin magnitude update: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE netmag
		SET (magnitude, magtype, auth, subsource, magalgo,
		     nsta, nobs, gap, distance, rflag, lddate)
		  = ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		WHERE magid = $11`,
		seismo.RoundMagnitude(magnitude.Value),
		magnitude.Type,
		magnitude.Authority,
		magnitude.SubSource,
		magnitude.Algorithm,
		magnitude.StationCount,
		magnitude.ObservationCount,
		magnitude.Gap,
		magnitude.Distance,
		string(magnitude.ReviewFlag),
		magnitude.Identifier,
	)
	if err != nil {
		return fmt.Errorf("update netmag %d: %w", magnitude.Identifier, err)
	}

	if err := w.setPreferredMagnitude(ctx, tx, eventIdentifier); err != nil {
		return err
	}
	if err := w.recordPreferredMapping(ctx, tx, eventIdentifier, magnitude.Type, magnitude.Identifier); err != nil {
		return err
	}
	if err := w.recordCredit(ctx, tx, magnitude.Identifier, user); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit magnitude update for event %d: %w",
			eventIdentifier, err)
	}

	w.logger.Info("network magnitude updated",
		"event_id", eventIdentifier,
		"magnitude_id", magnitude.Identifier,
		"user", user,
	)
	return nil
}

// Delete removes the event's magnitude of this algorithm, drops the
// preferred-magnitude mapping, and lets the catalog re-select a preferred
// magnitude from what remains. Deleting a magnitude that does not exist is
// a no-op with a warning, not an error.
func (w *Writer) Delete(ctx context.Context, user string, eventIdentifier int64) error {
	magnitudeIdentifier, err := w.MagnitudeIdentifier(ctx, eventIdentifier)
	if errors.Is(err, domain.ErrMagnitudeNotFound) {
		w.logger.Warn("network magnitude does not exist; skipping delete",
			"event_id", eventIdentifier,
			"user", user,
		)
		return nil
	}
	if err != nil {
		return err
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin magnitude delete: %w", err)
	}
	defer tx.Rollback(ctx)

	// Filter by algorithm so magnitudes from other sources are never touched.
	_, err = tx.Exec(ctx,
		`DELETE FROM netmag WHERE magid = $1 AND magalgo = $2`,
		magnitudeIdentifier, domain.MagnitudeAlgorithm,
	)
	if err != nil {
		return fmt.Errorf("delete netmag %d: %w", magnitudeIdentifier, err)
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM eventprefmag WHERE magid = $1`,
		magnitudeIdentifier,
	)
	if err != nil {
		return fmt.Errorf("delete eventprefmag for magnitude %d: %w",
			magnitudeIdentifier, err)
	}

	// Revert the preferred magnitude to whatever the catalog's own rule
	// selects from the preferred origin.
	_, err = tx.Exec(ctx,
		`SELECT magpref.setPrefMagOfEventByPrefor($1, $2)`,
		eventIdentifier, deferCommit,
	)
	if err != nil {
		return fmt.Errorf("setPrefMagOfEventByPrefor for event %d: %w",
			eventIdentifier, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit magnitude delete for event %d: %w",
			eventIdentifier, err)
	}

	w.logger.Info("network magnitude deleted",
		"event_id", eventIdentifier,
		"magnitude_id", magnitudeIdentifier,
		"user", user,
	)
	return nil
}

func (w *Writer) setPreferredMagnitude(ctx context.Context, tx pgx.Tx, eventIdentifier int64) error {
	var status int64
	err := tx.QueryRow(ctx,
		`SELECT magpref.setPrefMagOfEvent($1, $2)`,
		eventIdentifier, deferCommit,
	).Scan(&status)
	if err != nil {
		return fmt.Errorf("setPrefMagOfEvent for event %d: %w", eventIdentifier, err)
	}

	w.logger.Debug("setPrefMagOfEvent",
		"event_id", eventIdentifier,
		"status", status,
	)
	return nil
}

func (w *Writer) recordPreferredMapping(
	ctx context.Context,
	tx pgx.Tx,
	eventIdentifier int64,
	magnitudeType string,
	magnitudeIdentifier int64,
) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO eventprefmag (evid, magtype, magid)
		VALUES ($1, $2, $3)
		ON CONFLICT (magid) DO NOTHING`,
		eventIdentifier, magnitudeType, magnitudeIdentifier,
	)
	if err != nil {
		return fmt.Errorf("upsert eventprefmag for event %d: %w",
			eventIdentifier, err)
	}
	return nil
}

func (w *Writer) recordCredit(ctx context.Context, tx pgx.Tx, magnitudeIdentifier int64, user string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO credit (id, tname, refer) VALUES ($1, $2, $3)`,
		magnitudeIdentifier, creditTableName, user,
	)
	if err != nil {
		return fmt.Errorf("insert credit for magnitude %d: %w",
			magnitudeIdentifier, err)
	}
	return nil
}
