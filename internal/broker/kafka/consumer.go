package kafka

import (
	"context"
	"time"

	"github.com/BearBump/ReshipDesk/internal/logger"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrSkipMessage: обработчик говорит «сообщение битое, повторять бессмысленно».
// Такое сообщение коммитится и чтение продолжается.
var ErrSkipMessage = errors.New("skip message")

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Handler func(ctx context.Context, key, value []byte) error

type Consumer struct {
	r messageReader

	minBackoff time.Duration
	maxBackoff time.Duration
	log        *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{
		r:   kafka.NewReader(cfg),
		log: zap.NewNop(),
	}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r, log: zap.NewNop()}
}

// WithHandlerRetry: ошибка обработчика не останавливает чтение, то же сообщение повторяется
// с паузой от minBackoff до maxBackoff (удваивается). Без этого Consume возвращает первую
// ошибку обработчика.
func (c *Consumer) WithHandlerRetry(minBackoff, maxBackoff time.Duration, log *zap.Logger) *Consumer {
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}
	c.minBackoff = minBackoff
	c.maxBackoff = maxBackoff
	c.log = logger.OrNop(log)
	return c
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume читает сообщения до ошибки или отмены ctx. Коммит только после успешной обработки,
// иначе пачка уведомлений со склада потеряется.
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := c.handle(ctx, handler, msg); err != nil {
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler Handler, msg kafka.Message) error {
	backoff := c.minBackoff
	for {
		err := handler(ctx, msg.Key, msg.Value)
		if err == nil || errors.Is(err, ErrSkipMessage) {
			return nil
		}
		if backoff <= 0 {
			return err
		}

		c.log.Error("handler failed, retrying message",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Wrap(ctx.Err(), err.Error())
		case <-t.C:
		}
		if backoff *= 2; backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}
