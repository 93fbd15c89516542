// Package redisqueue is a key-value backend for the reconcile failure queue: one hash per
// tracking number plus a sorted set ordered by the last update time.
package redisqueue

import (
	"context"
	"strconv"
	"time"

	"github.com/BearBump/ReshipDesk/internal/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const defaultPrefix = "reship"

// upsertScript: первый enqueue создаёт запись с retry_count=1, следующие увеличивают счётчик.
// Вес и исходная строка перезаписываются только если переданы.
var upsertScript = redis.NewScript(`
local key = KEYS[1]
local idx = KEYS[2]
if redis.call('EXISTS', key) == 0 then
  redis.call('HSET', key, 'tracking_number', ARGV[1], 'retry_count', 1, 'created_at', ARGV[5])
else
  redis.call('HINCRBY', key, 'retry_count', 1)
end
redis.call('HSET', key, 'last_error', ARGV[4], 'updated_at', ARGV[5])
if ARGV[7] == '1' then
  redis.call('HSET', key, 'weight_kg', ARGV[2])
end
if ARGV[8] == '1' then
  redis.call('HSET', key, 'raw_message', ARGV[3])
end
redis.call('ZADD', idx, ARGV[6], ARGV[1])
return redis.call('HGET', key, 'retry_count')
`)

type Queue struct {
	c      *redis.Client
	prefix string
	now    func() time.Time
}

func New(addr string) *Queue {
	return newWithClient(redis.NewClient(&redis.Options{Addr: addr}), defaultPrefix)
}

func newWithClient(c *redis.Client, prefix string) *Queue {
	return &Queue{c: c, prefix: prefix, now: func() time.Time { return time.Now().UTC() }}
}

func (q *Queue) Close() error {
	return q.c.Close()
}

func (q *Queue) indexKey() string {
	return q.prefix + ":failures"
}

func (q *Queue) entryKey(trackingNumber string) string {
	return q.prefix + ":failure:" + trackingNumber
}

func (q *Queue) EnqueueFailure(ctx context.Context, in models.FailureInput) error {
	now := q.now()

	weight, hasWeight := "", "0"
	if in.WeightKg.Valid {
		weight, hasWeight = in.WeightKg.Decimal.String(), "1"
	}
	raw, hasRaw := "", "0"
	if in.RawMessage != nil {
		raw, hasRaw = *in.RawMessage, "1"
	}

	err := upsertScript.Run(ctx, q.c,
		[]string{q.entryKey(in.TrackingNumber), q.indexKey()},
		in.TrackingNumber, weight, raw, models.TruncateError(in.Error),
		now.Format(time.RFC3339Nano), now.UnixMicro(), hasWeight, hasRaw,
	).Err()
	if err != nil {
		return errors.Wrap(err, "redis upsert failure")
	}
	return nil
}

func (q *Queue) ListFailures(ctx context.Context) ([]*models.FailureEntry, error) {
	tns, err := q.c.ZRevRange(ctx, q.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis list failures")
	}
	if len(tns) == 0 {
		return nil, nil
	}

	pipe := q.c.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, len(tns))
	for _, tn := range tns {
		cmds = append(cmds, pipe.HGetAll(ctx, q.entryKey(tn)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrap(err, "redis read failures")
	}

	out := make([]*models.FailureEntry, 0, len(tns))
	for _, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			// запись удалили между ZREVRANGE и HGETALL
			continue
		}
		e, err := decodeEntry(h)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (q *Queue) DeleteFailure(ctx context.Context, trackingNumber string) error {
	pipe := q.c.TxPipeline()
	pipe.Del(ctx, q.entryKey(trackingNumber))
	pipe.ZRem(ctx, q.indexKey(), trackingNumber)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis delete failure")
	}
	return nil
}

func (q *Queue) ClearFailures(ctx context.Context) error {
	tns, err := q.c.ZRange(ctx, q.indexKey(), 0, -1).Result()
	if err != nil {
		return errors.Wrap(err, "redis list failures")
	}
	keys := make([]string, 0, len(tns)+1)
	for _, tn := range tns {
		keys = append(keys, q.entryKey(tn))
	}
	keys = append(keys, q.indexKey())
	if err := q.c.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "redis clear failures")
	}
	return nil
}

func decodeEntry(h map[string]string) (*models.FailureEntry, error) {
	e := &models.FailureEntry{
		TrackingNumber: h["tracking_number"],
		LastError:      h["last_error"],
	}
	n, err := strconv.Atoi(h["retry_count"])
	if err != nil {
		return nil, errors.Wrap(err, "parse retry_count")
	}
	e.RetryCount = n
	if w, ok := h["weight_kg"]; ok {
		d, err := decimal.NewFromString(w)
		if err != nil {
			return nil, errors.Wrap(err, "parse weight")
		}
		e.WeightKg = decimal.NewNullDecimal(d)
	}
	if raw, ok := h["raw_message"]; ok {
		e.RawMessage = &raw
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, h["created_at"]); err != nil {
		return nil, errors.Wrap(err, "parse created_at")
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, h["updated_at"]); err != nil {
		return nil, errors.Wrap(err, "parse updated_at")
	}
	return e, nil
}
