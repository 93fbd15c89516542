package pgorders

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS orders (
  order_id BIGSERIAL PRIMARY KEY,
  order_time DATE NOT NULL,
  customer_name TEXT NOT NULL,
  platform TEXT NOT NULL,
  tracking_number TEXT NOT NULL DEFAULT '',
  amount_rmb NUMERIC(12,2) NOT NULL DEFAULT 0,
  service_fee NUMERIC(12,2) NOT NULL DEFAULT 0,
  weight_kg NUMERIC(10,2) NULL CHECK (weight_kg >= 0),
  is_arrived BOOLEAN NOT NULL DEFAULT FALSE,
  is_returned BOOLEAN NOT NULL DEFAULT FALSE,
  is_early_returned BOOLEAN NOT NULL DEFAULT FALSE,
  remarks TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		// Номер отправления не уникален: несколько строк заказа могут ехать одной посылкой.
		`CREATE INDEX IF NOT EXISTS idx_orders_tracking_number ON orders(tracking_number)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_customer_name ON orders(customer_name)`,
		`
CREATE TABLE IF NOT EXISTS reconcile_failures (
  tracking_number TEXT PRIMARY KEY,
  weight_kg NUMERIC(10,2) NULL,
  raw_message TEXT NULL,
  retry_count INT NOT NULL DEFAULT 1,
  last_error VARCHAR(250) NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_reconcile_failures_updated_at ON reconcile_failures(updated_at DESC)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
