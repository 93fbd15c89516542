package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	reshipapi "github.com/BearBump/ReshipDesk/internal/api/reship_api"
	"github.com/BearBump/ReshipDesk/internal/broker/kafka"
	"github.com/BearBump/ReshipDesk/internal/broker/messages"
	"github.com/BearBump/ReshipDesk/internal/logger"
	"github.com/BearBump/ReshipDesk/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

type reshipAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler kafka.Handler) error
}

type inboundReconciler interface {
	Reconcile(ctx context.Context, rawText string) (*models.ReconcileResult, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

func runReshipAPI(ctx context.Context, opts reshipAPIOpts, api *reshipapi.ReshipAPI, engine inboundReconciler, health pinger, consumer kafkaConsumer, log *zap.Logger) error {
	log = logger.OrNop(log)
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	httpLis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(httpLis.Addr().String())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, httpLis, newRouter(api, opts.swaggerPath, health), log)
	}()

	// Потребитель сам повторяет пачку при ошибке сверки. Если он всё же остановился
	// (reader закрыт, коммит не прошёл), останавливаем и HTTP: процесс перезапустит оркестратор.
	consumerErr := make(chan error, 1)
	go func() {
		log.Info("kafka consumer started", zap.String("topic", opts.topic), zap.String("group", opts.consumerGroup))
		consumerErr <- consumer.Consume(ctx, inboundHandler(engine, log))
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		if err == nil {
			return ctx.Err()
		}
		return err
	case err := <-consumerErr:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("kafka consumer stopped", zap.Error(err))
		if err == nil {
			err = errors.New("kafka consumer stopped")
		}
		return errors.Wrap(err, "kafka consumer")
	}
}

// inboundHandler превращает пачку из топика в проход сверки. Битый JSON пропускаем с коммитом,
// ошибку самой сверки (очередь ошибок недоступна) отдаём наверх без коммита.
func inboundHandler(engine inboundReconciler, log *zap.Logger) kafka.Handler {
	return func(ctx context.Context, _ []byte, value []byte) error {
		var b messages.InboundBatch
		if err := json.Unmarshal(value, &b); err != nil {
			log.Warn("skip malformed inbound batch", zap.Error(err))
			return errors.Wrap(kafka.ErrSkipMessage, err.Error())
		}
		if strings.TrimSpace(b.Text) == "" {
			log.Warn("skip empty inbound batch", zap.String("batch_id", b.BatchID))
			return kafka.ErrSkipMessage
		}

		res, err := engine.Reconcile(ctx, b.Text)
		if err != nil {
			return errors.Wrapf(err, "reconcile batch %s", b.BatchID)
		}
		log.Info("inbound batch reconciled",
			zap.String("batch_id", b.BatchID),
			zap.String("source", b.Source),
			zap.String("run_id", res.RunID),
			zap.Int("updated", res.Updated),
			zap.Int("failed", len(res.Failures)))
		return nil
	}
}

func newRouter(api *reshipapi.ReshipAPI, swaggerPath string, health pinger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := health.Ping(ctx); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	if api != nil {
		api.Routes(r)
	}
	return r
}

func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("HTTP server listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
