package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ReshipDesk/config"
	reshipapi "github.com/BearBump/ReshipDesk/internal/api/reship_api"
	"github.com/BearBump/ReshipDesk/internal/broker/kafka"
	"github.com/BearBump/ReshipDesk/internal/cache/rediscache"
	"github.com/BearBump/ReshipDesk/internal/logger"
	"github.com/BearBump/ReshipDesk/internal/services/orders"
	"github.com/BearBump/ReshipDesk/internal/services/reconcile"
	"github.com/BearBump/ReshipDesk/internal/storage/pgorders"
	"github.com/BearBump/ReshipDesk/internal/storage/redisqueue"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type reshipAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     reshipAPIOpts
	log      *zap.Logger
	api      *reshipapi.ReshipAPI
	engine   *reconcile.Service
	health   pinger
	consumer *kafka.Consumer
	closers  []func()
}

func mustBootstrapReshipAPI() *reshipAPIApp {
	// .env необязателен: в контейнере переменные приходят из окружения.
	_ = godotenv.Load()

	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	log, err := logger.New(cfg.Reship.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("ошибка создания логгера, %v", err))
	}

	app := &reshipAPIApp{log: log}

	st := mustOpenPostgresWithRetry(cfg.Database.ConnString(), 60*time.Second)
	app.closers = append(app.closers, st.Close)

	var queue reconcile.FailureQueue = st
	if cfg.Reship.FailureQueueBackend == config.FailureQueueRedis {
		rq := redisqueue.New(cfg.Redis.Addr())
		app.closers = append(app.closers, func() { _ = rq.Close() })
		queue = rq
	}

	rc := rediscache.New(cfg.Redis.Addr())
	rl := rediscache.NewRateLimiter(cfg.Redis.Addr())
	app.closers = append(app.closers, func() { _ = rc.Close() }, func() { _ = rl.Close() })

	brokers := cfg.Kafka.Brokers()
	producer := kafka.NewProducer(brokers)
	app.closers = append(app.closers, func() { _ = producer.Close() })

	app.engine = reconcile.New(st, queue).
		WithLogger(log.Named("reconcile")).
		WithPublisher(producer, cfg.Kafka.ReconcileEventsTopicName)

	ordersSvc := orders.New(st, rc, time.Duration(cfg.Reship.CustomerLookupTTLSeconds)*time.Second)
	app.api = reshipapi.New(app.engine, ordersSvc, log.Named("http")).
		WithCustomerRateLimit(rl, int64(cfg.Reship.CustomerLookupRateLimitPerMinute))
	app.health = st

	app.consumer = kafka.NewConsumer(brokers, cfg.Kafka.InboundTopicName, cfg.Reship.KafkaConsumerGroup).
		WithHandlerRetry(time.Second, 30*time.Second, log.Named("kafka"))

	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app.opts = reshipAPIOpts{
		httpAddr:      cfg.Reship.HTTPAddr,
		swaggerPath:   swaggerPath,
		topic:         cfg.Kafka.InboundTopicName,
		consumerGroup: cfg.Reship.KafkaConsumerGroup,
	}

	log.Info("reship-api bootstrapped",
		zap.String("failure_queue_backend", cfg.Reship.FailureQueueBackend),
		zap.String("http_addr", cfg.Reship.HTTPAddr))
	return app
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgorders.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgorders.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *reshipAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	// в обратном порядке открытия
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func (a *reshipAPIApp) Run() error {
	return runReshipAPI(a.ctx, a.opts, a.api, a.engine, a.health, a.consumer, a.log)
}
