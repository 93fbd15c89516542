package pgorders

import (
	"context"
	"fmt"
	"strings"

	"github.com/BearBump/ReshipDesk/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const orderColumns = `
  order_id, order_time, customer_name, platform, tracking_number,
  amount_rmb::text, service_fee::text, weight_kg::text,
  is_arrived, is_returned, is_early_returned, remarks,
  created_at, updated_at`

// Заметка дописывается в конец remarks, прежнее содержимое не трогаем.
const appendRemark = `CASE WHEN remarks = '' THEN $%d ELSE remarks || E'\n' || $%d END`

const maxShippable = 5000

func remarkExpr(n int) string {
	return fmt.Sprintf(appendRemark, n, n)
}

func (s *Storage) FindOrdersByTracking(ctx context.Context, trackingNumber string) ([]*models.OrderRef, error) {
	rows, err := s.db.Query(ctx, `
SELECT order_id, customer_name, weight_kg::text
FROM orders
WHERE tracking_number = $1
ORDER BY order_id ASC
`, trackingNumber)
	if err != nil {
		return nil, errors.Wrap(err, "select orders by tracking")
	}
	defer rows.Close()

	var out []*models.OrderRef
	for rows.Next() {
		var r models.OrderRef
		var w *string
		if err := rows.Scan(&r.OrderID, &r.CustomerName, &w); err != nil {
			return nil, errors.Wrap(err, "scan order ref")
		}
		if r.WeightKg, err = parseNullDecimal(w); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) UpdateWeightAndArrival(ctx context.Context, orderID int64, weight decimal.Decimal, remark string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE orders
SET
  weight_kg = $2::numeric,
  is_arrived = TRUE,
  remarks = `+remarkExpr(3)+`,
  updated_at = now()
WHERE order_id = $1
`, orderID, weight.String(), remark)
	if err != nil {
		return 0, errors.Wrap(err, "update order weight")
	}
	return tag.RowsAffected(), nil
}

// UpdateWeightAndArrivalByTracking ставит вес первым limit строкам с этим номером (по order_id).
func (s *Storage) UpdateWeightAndArrivalByTracking(ctx context.Context, trackingNumber string, weight decimal.Decimal, remark string, limit int) (int64, error) {
	if limit <= 0 {
		limit = 1
	}
	tag, err := s.db.Exec(ctx, `
UPDATE orders
SET
  weight_kg = $2::numeric,
  is_arrived = TRUE,
  remarks = `+remarkExpr(3)+`,
  updated_at = now()
WHERE order_id IN (
  SELECT order_id FROM orders
  WHERE tracking_number = $1
  ORDER BY order_id ASC
  LIMIT $4
)
`, trackingNumber, weight.String(), remark, limit)
	if err != nil {
		return 0, errors.Wrap(err, "update order weight by tracking")
	}
	return tag.RowsAffected(), nil
}

func (s *Storage) BulkZeroWeightAndMarkArrived(ctx context.Context, trackingNumber, remark string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE orders
SET
  weight_kg = 0,
  is_arrived = TRUE,
  remarks = `+remarkExpr(2)+`,
  updated_at = now()
WHERE tracking_number = $1
`, trackingNumber, remark)
	if err != nil {
		return 0, errors.Wrap(err, "zero order weights")
	}
	return tag.RowsAffected(), nil
}

func (s *Storage) CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
INSERT INTO orders (
  order_time, customer_name, platform, tracking_number,
  amount_rmb, service_fee, weight_kg, remarks
)
VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7::numeric,$8)
RETURNING order_id
`, in.OrderTime, in.CustomerName, in.Platform, in.TrackingNumber,
		in.AmountRMB.String(), in.ServiceFee.String(), nullDecimalParam(in.WeightKg), in.Remarks).Scan(&id)
	if err != nil {
		return nil, errors.Wrap(err, "insert order")
	}
	return s.GetOrder(ctx, id)
}

func (s *Storage) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	rows, err := s.db.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "select order")
	}
	out, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.Errorf("order %d not found", orderID)
	}
	return out[0], nil
}

func (s *Storage) SearchOrders(ctx context.Context, f models.OrderFilter) ([]*models.Order, error) {
	var w whereBuilder
	if f.OrderID > 0 {
		w.add("order_id = ?", f.OrderID)
	}
	if f.CustomerName != "" {
		w.add(`customer_name LIKE ? ESCAPE '\'`, "%"+escapeLike(f.CustomerName)+"%")
	}
	if f.TrackingNumber != "" {
		w.add(`tracking_number LIKE ? ESCAPE '\'`, "%"+escapeLike(f.TrackingNumber)+"%")
	}
	if f.Platform != "" {
		w.add("platform = ?", f.Platform)
	}
	if f.OrderDate != nil {
		w.add("order_time = ?::date", f.OrderDate.Format("2006-01-02"))
	}
	if f.IsArrived != nil {
		w.add("is_arrived = ?", *f.IsArrived)
	}
	if f.IsReturned != nil {
		w.add("is_returned = ?", *f.IsReturned)
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	w.args = append(w.args, limit)

	q := `SELECT ` + orderColumns + ` FROM orders` + w.sql() +
		fmt.Sprintf(" ORDER BY order_id DESC LIMIT $%d", len(w.args))

	rows, err := s.db.Query(ctx, q, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "search orders")
	}
	return scanOrders(rows)
}

func (s *Storage) ListCustomerOrders(ctx context.Context, name string) ([]*models.CustomerOrder, error) {
	rows, err := s.db.Query(ctx, `
SELECT order_time, platform, tracking_number, amount_rmb::text, is_arrived, is_returned
FROM orders
WHERE customer_name LIKE $1 ESCAPE '\'
ORDER BY order_time DESC, order_id DESC
`, "%"+escapeLike(name)+"%")
	if err != nil {
		return nil, errors.Wrap(err, "select customer orders")
	}
	defer rows.Close()

	var out []*models.CustomerOrder
	for rows.Next() {
		var o models.CustomerOrder
		var amount string
		if err := rows.Scan(&o.OrderTime, &o.Platform, &o.TrackingNumber, &amount, &o.IsArrived, &o.IsReturned); err != nil {
			return nil, errors.Wrap(err, "scan customer order")
		}
		if o.AmountRMB, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Wrap(err, "parse amount")
		}
		out = append(out, &o)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// MarkReturned помечает заказы как отправленные клиенту (early=true: досрочная отправка).
func (s *Storage) MarkReturned(ctx context.Context, orderIDs []int64, early bool) (int64, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	column := "is_returned"
	if early {
		column = "is_early_returned"
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE orders SET `+column+` = TRUE, updated_at = now() WHERE order_id = ANY($1)`, orderIDs)
	if err != nil {
		return 0, errors.Wrap(err, "mark returned")
	}
	return tag.RowsAffected(), nil
}

// ListShippable: заказы, готовые к отправке клиенту. Строка попадает в список, если она
// ещё не отправлена и либо у клиента прибыли все заказы, либо сама строка прибыла
// и помечена на досрочную отправку.
func (s *Storage) ListShippable(ctx context.Context) ([]*models.ShippableOrder, error) {
	rows, err := s.db.Query(ctx, `SELECT `+orderColumns+`
FROM orders o
WHERE NOT o.is_returned
  AND (
    NOT EXISTS (
      SELECT 1 FROM orders o2
      WHERE o2.customer_name = o.customer_name AND NOT o2.is_arrived
    )
    OR (o.is_arrived AND o.is_early_returned)
  )
ORDER BY o.customer_name, o.order_id
LIMIT $1`, maxShippable)
	if err != nil {
		return nil, errors.Wrap(err, "select shippable orders")
	}
	list, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	out := make([]*models.ShippableOrder, 0, len(list))
	for _, o := range list {
		out = append(out, &models.ShippableOrder{Order: *o, TrackingTail: models.TrackingTail(o.TrackingNumber)})
	}
	return out, nil
}

func scanOrders(rows pgx.Rows) ([]*models.Order, error) {
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		var o models.Order
		var amount, fee string
		var w *string
		if err := rows.Scan(
			&o.ID, &o.OrderTime, &o.CustomerName, &o.Platform, &o.TrackingNumber,
			&amount, &fee, &w,
			&o.IsArrived, &o.IsReturned, &o.IsEarlyReturned, &o.Remarks,
			&o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		var err error
		if o.AmountRMB, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Wrap(err, "parse amount")
		}
		if o.ServiceFee, err = decimal.NewFromString(fee); err != nil {
			return nil, errors.Wrap(err, "parse service fee")
		}
		if o.WeightKg, err = parseNullDecimal(w); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func parseNullDecimal(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, errors.Wrap(err, "parse weight")
	}
	return decimal.NewNullDecimal(d), nil
}

func nullDecimalParam(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

// whereBuilder собирает WHERE из фиксированных условий; пользовательские значения идут
// только параметрами. "?" в условии заменяется на очередной $n.
type whereBuilder struct {
	conds []string
	args  []any
}

func (b *whereBuilder) add(cond string, arg any) {
	b.args = append(b.args, arg)
	b.conds = append(b.conds, strings.Replace(cond, "?", fmt.Sprintf("$%d", len(b.args)), 1))
}

func (b *whereBuilder) sql() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
