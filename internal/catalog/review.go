// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/seisreview/cct-service/internal/domain"
)

// ReviewWriter records analyst verdicts on the review database. Writing a
// fresh update watermark alongside the status is what lets the next
// incremental sync pick the change up.
type ReviewWriter struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

func NewReviewWriter(pool *pgxpool.Pool, logger *slog.Logger) *ReviewWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewWriter{
		pool:   pool,
		logger: logger,
		now:    time.Now,
	}
}

// UpdateReviewStatus sets the review status for one event and advances its
// update watermark to the current time. Fails with domain.ErrEventNotFound
// when the row does not exist.
func (w *ReviewWriter) UpdateReviewStatus(
	ctx context.Context,
	schema string,
	eventIdentifier string,
	status domain.ReviewStatus,
) error {
	identifier, err := domain.ParseEventIdentifier(eventIdentifier)
	if err != nil {
		return err
	}

	updatedAt := float64(w.now().UnixNano()) / float64(time.Second)

	query := fmt.Sprintf(
		`UPDATE %s SET review_status = $1, update_date = $2 WHERE identifier = $3`,
		eventTable(schema),
	)
	tag, err := w.pool.Exec(ctx, query, string(status), updatedAt, identifier)
	if err != nil {
		return fmt.Errorf("update review status for %s/%s: %w",
			schema, eventIdentifier, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}

	w.logger.Info("review status updated",
		"schema", schema,
		"event_id", eventIdentifier,
		"status", string(status),
	)
	return nil
}
