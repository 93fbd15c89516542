package main

import (
	"context"
	"fmt"

	"github.com/BearBump/ReshipDesk/config"
	"github.com/BearBump/ReshipDesk/internal/broker/kafka"
	"github.com/BearBump/ReshipDesk/internal/cli"
	"github.com/BearBump/ReshipDesk/internal/logger"
	"github.com/BearBump/ReshipDesk/internal/services/reconcile"
	"github.com/BearBump/ReshipDesk/internal/storage/pgorders"
	"github.com/BearBump/ReshipDesk/internal/storage/redisqueue"
)

// openEngine собирает тот же движок, что и reship-api, но без HTTP и консьюмера.
func openEngine(ctx context.Context, configPath string) (cli.Engine, func(), error) {
	if configPath == "" {
		return nil, nil, fmt.Errorf("config path is required (--config or configPath env)")
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Reship.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	st, err := pgorders.New(cfg.Database.ConnString())
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){st.Close}

	var queue reconcile.FailureQueue = st
	if cfg.Reship.FailureQueueBackend == config.FailureQueueRedis {
		rq := redisqueue.New(cfg.Redis.Addr())
		closers = append(closers, func() { _ = rq.Close() })
		queue = rq
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers())
	closers = append(closers, func() { _ = producer.Close() })

	eng := reconcile.New(st, queue).
		WithLogger(log.Named("reconcile")).
		WithPublisher(producer, cfg.Kafka.ReconcileEventsTopicName)

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		_ = log.Sync()
	}
	return eng, closeAll, nil
}
