package pgorders

import (
	"context"

	"github.com/BearBump/ReshipDesk/internal/models"
	"github.com/pkg/errors"
)

// EnqueueFailure: upsert по номеру отправления. Повторная ошибка увеличивает retry_count,
// всегда перезаписывает last_error, а вес и исходную строку только если пришли новые.
func (s *Storage) EnqueueFailure(ctx context.Context, in models.FailureInput) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO reconcile_failures (
  tracking_number, weight_kg, raw_message, retry_count, last_error, created_at, updated_at
)
VALUES ($1, $2::numeric, $3, 1, $4, now(), now())
ON CONFLICT (tracking_number) DO UPDATE SET
  retry_count = reconcile_failures.retry_count + 1,
  last_error = EXCLUDED.last_error,
  weight_kg = COALESCE(EXCLUDED.weight_kg, reconcile_failures.weight_kg),
  raw_message = COALESCE(EXCLUDED.raw_message, reconcile_failures.raw_message),
  updated_at = now()
`, in.TrackingNumber, nullDecimalParam(in.WeightKg), in.RawMessage, models.TruncateError(in.Error))
	if err != nil {
		return errors.Wrap(err, "upsert reconcile failure")
	}
	return nil
}

func (s *Storage) ListFailures(ctx context.Context) ([]*models.FailureEntry, error) {
	rows, err := s.db.Query(ctx, `
SELECT tracking_number, weight_kg::text, raw_message, retry_count, last_error, created_at, updated_at
FROM reconcile_failures
ORDER BY updated_at DESC, tracking_number ASC
`)
	if err != nil {
		return nil, errors.Wrap(err, "select reconcile failures")
	}
	defer rows.Close()

	var out []*models.FailureEntry
	for rows.Next() {
		var e models.FailureEntry
		var w *string
		if err := rows.Scan(&e.TrackingNumber, &w, &e.RawMessage, &e.RetryCount, &e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan reconcile failure")
		}
		if e.WeightKg, err = parseNullDecimal(w); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) DeleteFailure(ctx context.Context, trackingNumber string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM reconcile_failures WHERE tracking_number = $1`, trackingNumber)
	return errors.Wrap(err, "delete reconcile failure")
}

func (s *Storage) ClearFailures(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DELETE FROM reconcile_failures`)
	return errors.Wrap(err, "clear reconcile failures")
}
