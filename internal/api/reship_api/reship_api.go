package reship_api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ReshipDesk/internal/logger"
	"github.com/BearBump/ReshipDesk/internal/models"
	"github.com/BearBump/ReshipDesk/internal/services/orders"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Reconciler interface {
	Reconcile(ctx context.Context, rawText string) (*models.ReconcileResult, error)
	RetryAll(ctx context.Context) (*models.RetryResult, error)
	ListFailures(ctx context.Context) ([]*models.FailureEntry, error)
	DeleteFailure(ctx context.Context, trackingNumber string) error
	ClearFailures(ctx context.Context) error
}

type OrderService interface {
	CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error)
	SearchOrders(ctx context.Context, f models.OrderFilter) ([]*models.Order, error)
	MarkReturned(ctx context.Context, orderIDs []int64, early bool) (int64, error)
	LookupCustomerOrders(ctx context.Context, name string) ([]*models.CustomerOrder, error)
	ListShippable(ctx context.Context) ([]*models.ShippableOrder, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

const maxBodyBytes = 4 << 20

type ReshipAPI struct {
	engine Reconciler
	orders OrderService

	limiter      RateLimiter
	lookupPerMin int64
	log          *zap.Logger
}

func New(engine Reconciler, ordersSvc OrderService, log *zap.Logger) *ReshipAPI {
	return &ReshipAPI{engine: engine, orders: ordersSvc, log: logger.OrNop(log)}
}

// WithCustomerRateLimit ограничивает публичный поиск по имени: perMinute запросов с одного адреса.
func (a *ReshipAPI) WithCustomerRateLimit(rl RateLimiter, perMinute int64) *ReshipAPI {
	a.limiter = rl
	a.lookupPerMin = perMinute
	return a
}

func (a *ReshipAPI) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/reconcile", a.reconcile)

		r.Get("/failures", a.listFailures)
		r.Delete("/failures", a.clearFailures)
		r.Post("/failures/retry", a.retryFailures)
		r.Delete("/failures/{trackingNumber}", a.deleteFailure)

		r.Get("/orders", a.searchOrders)
		r.Post("/orders", a.createOrder)
		r.Post("/orders/returned", a.markReturned)
		r.Get("/orders/shippable", a.listShippable)

		r.Get("/customer/orders", a.customerOrders)
	})
}

type reconcileRequest struct {
	Text string `json:"text"`
}

func (a *ReshipAPI) reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		a.writeError(w, badRequest("text is required"))
		return
	}
	res, err := a.engine.Reconcile(r.Context(), req.Text)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *ReshipAPI) retryFailures(w http.ResponseWriter, r *http.Request) {
	res, err := a.engine.RetryAll(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *ReshipAPI) listFailures(w http.ResponseWriter, r *http.Request) {
	out, err := a.engine.ListFailures(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"failures": out})
}

func (a *ReshipAPI) deleteFailure(w http.ResponseWriter, r *http.Request) {
	tn := strings.TrimSpace(chi.URLParam(r, "trackingNumber"))
	if tn == "" {
		a.writeError(w, badRequest("trackingNumber is required"))
		return
	}
	if err := a.engine.DeleteFailure(r.Context(), tn); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *ReshipAPI) clearFailures(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.ClearFailures(r.Context()); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *ReshipAPI) searchOrders(w http.ResponseWriter, r *http.Request) {
	f, err := parseOrderFilter(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	out, err := a.orders.SearchOrders(r.Context(), f)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (a *ReshipAPI) createOrder(w http.ResponseWriter, r *http.Request) {
	var in models.OrderCreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		a.writeError(w, err)
		return
	}
	o, err := a.orders.CreateOrder(r.Context(), in)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

type markReturnedRequest struct {
	OrderIDs []int64 `json:"orderIds"`
	Early    bool    `json:"early"`
}

func (a *ReshipAPI) markReturned(w http.ResponseWriter, r *http.Request) {
	var req markReturnedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	n, err := a.orders.MarkReturned(r.Context(), req.OrderIDs, req.Early)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": n})
}

func (a *ReshipAPI) listShippable(w http.ResponseWriter, r *http.Request) {
	out, err := a.orders.ListShippable(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (a *ReshipAPI) customerOrders(w http.ResponseWriter, r *http.Request) {
	if a.limiter != nil && a.lookupPerMin > 0 {
		key := "ratelimit:customer:" + clientIP(r)
		ok, _, err := a.limiter.Allow(r.Context(), key, a.lookupPerMin, time.Minute)
		if err != nil {
			// Redis недоступен, не блокируем клиентов.
			a.log.Warn("customer lookup rate limit", zap.Error(err))
		} else if !ok {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many requests"})
			return
		}
	}

	out, err := a.orders.LookupCustomerOrders(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func parseOrderFilter(r *http.Request) (models.OrderFilter, error) {
	q := r.URL.Query()
	f := models.OrderFilter{
		CustomerName:   q.Get("customerName"),
		TrackingNumber: q.Get("trackingNumber"),
		Platform:       q.Get("platform"),
	}

	var err error
	if v := q.Get("orderId"); v != "" {
		if f.OrderID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return f, badRequest("orderId must be an integer")
		}
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return f, badRequest("limit must be an integer")
		}
	}
	if v := q.Get("orderDate"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, badRequest("orderDate must be YYYY-MM-DD")
		}
		f.OrderDate = &d
	}
	if f.IsArrived, err = parseOptBool(q.Get("isArrived")); err != nil {
		return f, badRequest("isArrived must be a boolean")
	}
	if f.IsReturned, err = parseOptBool(q.Get("isReturned")); err != nil {
		return f, badRequest("isReturned must be a boolean")
	}
	return f, nil
}

func parseOptBool(v string) (*bool, error) {
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type errorBody struct {
	Error string `json:"error"`
}

var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return errors.Wrap(errBadRequest, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid json: " + err.Error())
	}
	return nil
}

func (a *ReshipAPI) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, errBadRequest) || errors.Is(err, orders.ErrInvalidInput) {
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		a.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
