// Package reconcile applies parsed warehouse notices to orders and keeps a durable queue of
// the notices that could not be applied.
package reconcile

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/BearBump/ReshipDesk/internal/broker/messages"
	"github.com/BearBump/ReshipDesk/internal/logger"
	"github.com/BearBump/ReshipDesk/internal/models"
	"github.com/BearBump/ReshipDesk/internal/parser"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderStore interface {
	OrderLookup
	UpdateWeightAndArrival(ctx context.Context, orderID int64, weight decimal.Decimal, remark string) (int64, error)
	BulkZeroWeightAndMarkArrived(ctx context.Context, trackingNumber, remark string) (int64, error)
}

type FailureQueue interface {
	EnqueueFailure(ctx context.Context, in models.FailureInput) error
	ListFailures(ctx context.Context) ([]*models.FailureEntry, error)
	DeleteFailure(ctx context.Context, trackingNumber string) error
	ClearFailures(ctx context.Context) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Service struct {
	store   OrderStore
	queue   FailureQueue
	matcher *Matcher
	parser  *parser.Parser

	publisher Publisher
	topic     string

	log *zap.Logger
	now func() time.Time

	// Один проход сверки за раз: HTTP и консьюмер Kafka делят один сервис.
	mu sync.Mutex
}

func New(store OrderStore, queue FailureQueue) *Service {
	return &Service{
		store:   store,
		queue:   queue,
		matcher: NewMatcher(store),
		parser:  parser.New(),
		log:     zap.NewNop(),
		now:     time.Now,
	}
}

func (s *Service) WithLogger(l *zap.Logger) *Service {
	s.log = logger.OrNop(l)
	return s
}

func (s *Service) WithPublisher(p Publisher, topic string) *Service {
	s.publisher = p
	s.topic = topic
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) WithParser(p *parser.Parser) *Service {
	if p != nil {
		s.parser = p
	}
	return s
}

// Reconcile разбирает вставленный текст и применяет каждое совпадение по порядку строк.
// Ошибки отдельных совпадений не возвращаются, а попадают в Failures и в очередь ошибок.
// Ошибка возвращается только если очередь ошибок сама не принимает запись; остальные
// совпадения при этом всё равно применяются, результат возвращается вместе с ошибкой.
func (s *Service) Reconcile(ctx context.Context, rawText string) (*models.ReconcileResult, error) {
	return s.ReconcileMatches(ctx, s.parser.Parse(rawText))
}

func (s *Service) ReconcileMatches(ctx context.Context, matches []models.InboundMatch) (*models.ReconcileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &models.ReconcileResult{
		RunID:    uuid.NewString(),
		Success:  []models.SuccessRow{},
		Failures: []models.FailureRow{},
	}
	log := s.log.With(zap.String("run_id", res.RunID), zap.String("kind", messages.PassKindReconcile))
	log.Info("reconcile pass started", zap.Int("matches", len(matches)))

	var lost queueLoss

	for _, m := range matches {
		row, err := s.apply(ctx, m)
		if err == nil {
			res.Updated++
			res.Success = append(res.Success, row)
			s.forgetFailure(ctx, log, m.TrackingNumber)
			log.Debug("match applied", zap.String("tracking_number", m.TrackingNumber), zap.String("weight_kg", m.WeightKg.String()))
			continue
		}

		fr, qerr := s.queueFailure(ctx, m.TrackingNumber, decimal.NewNullDecimal(m.WeightKg), m.SourceLine, err)
		res.Failures = append(res.Failures, fr)
		log.Warn("match failed", zap.String("tracking_number", m.TrackingNumber), zap.String("failure_kind", string(fr.Kind)), zap.Error(err))
		if qerr != nil {
			log.Error("failure queue rejected entry", zap.String("tracking_number", m.TrackingNumber), zap.Error(qerr))
			lost.add(qerr)
		}
	}

	log.Info("reconcile pass finished", zap.Int("updated", res.Updated), zap.Int("failed", len(res.Failures)))
	s.publish(ctx, log, messages.ReconcileCompleted{
		RunID:     res.RunID,
		Kind:      messages.PassKindReconcile,
		Updated:   res.Updated,
		Failed:    len(res.Failures),
		Succeeded: successTNs(res.Success),
		FailedTNs: failureTNs(res.Failures),
	})
	return res, lost.err()
}

// RetryAll проходит по снимку очереди ошибок (самые свежие первыми) и повторяет сверку.
// Удачные записи удаляются из очереди, неудачные получают +1 к retry_count.
func (s *Service) RetryAll(ctx context.Context) (*models.RetryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.queue.ListFailures(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list failures")
	}

	res := &models.RetryResult{
		RunID:                  uuid.NewString(),
		SuccessTrackingNumbers: []string{},
		Failures:               []models.FailureRow{},
	}
	log := s.log.With(zap.String("run_id", res.RunID), zap.String("kind", messages.PassKindRetry))
	log.Info("retry pass started", zap.Int("entries", len(entries)))

	var lost queueLoss

	for _, e := range entries {
		raw := ""
		if e.RawMessage != nil {
			raw = *e.RawMessage
		}

		var applyErr error
		if e.WeightKg.Valid {
			_, applyErr = s.apply(ctx, models.InboundMatch{
				TrackingNumber: e.TrackingNumber,
				WeightKg:       e.WeightKg.Decimal,
				SourceLine:     raw,
			})
		} else {
			applyErr = updateFailed(ErrNoRetryWeight)
		}

		if applyErr == nil {
			res.Success++
			res.SuccessTrackingNumbers = append(res.SuccessTrackingNumbers, e.TrackingNumber)
			s.forgetFailure(ctx, log, e.TrackingNumber)
			continue
		}

		res.Failure++
		fr, qerr := s.queueFailure(ctx, e.TrackingNumber, e.WeightKg, raw, applyErr)
		res.Failures = append(res.Failures, fr)
		log.Warn("retry failed", zap.String("tracking_number", e.TrackingNumber), zap.String("failure_kind", string(fr.Kind)), zap.Error(applyErr))
		if qerr != nil {
			log.Error("failure queue rejected entry", zap.String("tracking_number", e.TrackingNumber), zap.Error(qerr))
			lost.add(qerr)
		}
	}

	log.Info("retry pass finished", zap.Int("success", res.Success), zap.Int("failure", res.Failure))
	s.publish(ctx, log, messages.ReconcileCompleted{
		RunID:     res.RunID,
		Kind:      messages.PassKindRetry,
		Updated:   res.Success,
		Failed:    res.Failure,
		Succeeded: res.SuccessTrackingNumbers,
		FailedTNs: failureTNs(res.Failures),
	})
	return res, lost.err()
}

func (s *Service) ListFailures(ctx context.Context) ([]*models.FailureEntry, error) {
	out, err := s.queue.ListFailures(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*models.FailureEntry{}
	}
	return out, nil
}

func (s *Service) DeleteFailure(ctx context.Context, trackingNumber string) error {
	if trackingNumber == "" {
		return errors.New("trackingNumber is required")
	}
	return s.queue.DeleteFailure(ctx, trackingNumber)
}

func (s *Service) ClearFailures(ctx context.Context) error {
	return s.queue.ClearFailures(ctx)
}

// apply применяет одно совпадение к заказам. Все строки с номером помечаются
// прибывшими; при нескольких строках вес обнуляется у всех, а затем реальный вес получает
// строка с наименьшим order_id. Повторный запуск даёт то же состояние.
func (s *Service) apply(ctx context.Context, m models.InboundMatch) (models.SuccessRow, error) {
	found, err := s.matcher.Find(ctx, m.TrackingNumber)
	if err != nil {
		return models.SuccessRow{}, storageError(err, "find orders")
	}
	if !found.Found() {
		return models.SuccessRow{}, notFound()
	}

	now := s.now()
	rows := len(found.Orders)
	if found.Shared() {
		if _, err := s.store.BulkZeroWeightAndMarkArrived(ctx, m.TrackingNumber, sharedRemark(now, rows)); err != nil {
			return models.SuccessRow{}, storageError(err, "zero shared rows")
		}
	}

	primary := found.Primary()
	n, err := s.store.UpdateWeightAndArrival(ctx, primary.OrderID, m.WeightKg, primaryRemark(now, m.WeightKg, rows))
	if err != nil {
		return models.SuccessRow{}, storageError(err, "update primary row")
	}
	if n == 0 {
		return models.SuccessRow{}, updateFailed(ErrPrimaryUpdateFailed)
	}

	return models.SuccessRow{
		TrackingNumber: m.TrackingNumber,
		CustomerName:   primary.CustomerName,
		WeightKg:       m.WeightKg,
		ProcessedAt:    now,
	}, nil
}

func (s *Service) queueFailure(ctx context.Context, tn string, w decimal.NullDecimal, sourceLine string, cause error) (models.FailureRow, error) {
	msg := models.TruncateError(cause.Error())
	row := models.FailureRow{
		TrackingNumber: tn,
		WeightKg:       w,
		SourceLine:     sourceLine,
		Kind:           KindOf(cause),
		Error:          msg,
	}

	var raw *string
	if sourceLine != "" {
		raw = &sourceLine
	}
	err := s.queue.EnqueueFailure(ctx, models.FailureInput{
		TrackingNumber: tn,
		WeightKg:       w,
		RawMessage:     raw,
		Error:          msg,
	})
	if err != nil {
		return row, errors.Wrap(err, "enqueue failure")
	}
	return row, nil
}

// queueLoss копит отказы очереди ошибок за проход. Проход при этом доходит до конца,
// а первая ошибка возвращается вызывающему вместе с результатом.
type queueLoss struct {
	first error
	count int
}

func (l *queueLoss) add(err error) {
	if l.first == nil {
		l.first = err
	}
	l.count++
}

func (l *queueLoss) err() error {
	if l.first == nil {
		return nil
	}
	return errors.Wrapf(l.first, "%d failure entries not queued", l.count)
}

// forgetFailure убирает номер из очереди после успешной сверки. Ошибка здесь не откатывает
// уже записанный вес, поэтому только логируется.
func (s *Service) forgetFailure(ctx context.Context, log *zap.Logger, tn string) {
	if err := s.queue.DeleteFailure(ctx, tn); err != nil {
		log.Warn("delete failure entry", zap.String("tracking_number", tn), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, log *zap.Logger, ev messages.ReconcileCompleted) {
	if s.publisher == nil || s.topic == "" {
		return
	}
	ev.FinishedAt = s.now().UTC()
	b, err := json.Marshal(ev)
	if err != nil {
		log.Error("marshal reconcile event", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, s.topic, []byte(ev.RunID), b); err != nil {
		log.Warn("publish reconcile event", zap.Error(err))
	}
}

func successTNs(rows []models.SuccessRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.TrackingNumber)
	}
	return out
}

func failureTNs(rows []models.FailureRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.TrackingNumber)
	}
	return out
}
