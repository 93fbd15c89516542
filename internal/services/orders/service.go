package orders

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/BearBump/ReshipDesk/internal/cache"
	"github.com/BearBump/ReshipDesk/internal/models"
	"github.com/pkg/errors"
)

// ErrInvalidInput помечает ошибки валидации; HTTP отдаёт по ним 400.
var ErrInvalidInput = errors.New("invalid input")

const maxReturnBatch = 1000

type Repository interface {
	CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error)
	SearchOrders(ctx context.Context, f models.OrderFilter) ([]*models.Order, error)
	ListCustomerOrders(ctx context.Context, name string) ([]*models.CustomerOrder, error)
	MarkReturned(ctx context.Context, orderIDs []int64, early bool) (int64, error)
	ListShippable(ctx context.Context) ([]*models.ShippableOrder, error)
}

type Service struct {
	repo        Repository
	cache       cache.BytesCache
	customerTTL time.Duration
}

func New(repo Repository, c cache.BytesCache, customerTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, customerTTL: customerTTL}
}

func invalid(msg string) error {
	return errors.Wrap(ErrInvalidInput, msg)
}

func (s *Service) CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.TrackingNumber = strings.ToUpper(strings.TrimSpace(in.TrackingNumber))

	if in.CustomerName == "" {
		return nil, invalid("customerName is required")
	}
	if !models.IsKnownPlatform(in.Platform) {
		return nil, invalid("unknown platform " + in.Platform)
	}
	if in.AmountRMB.IsNegative() || in.ServiceFee.IsNegative() || (in.WeightKg.Valid && in.WeightKg.Decimal.IsNegative()) {
		return nil, invalid("amounts must be non-negative")
	}
	if in.OrderTime.IsZero() {
		in.OrderTime = time.Now()
	}

	o, err := s.repo.CreateOrder(ctx, in)
	if err != nil {
		return nil, err
	}

	// Перекладываем кэш клиента, чтобы новый заказ сразу был виден на странице поиска.
	// Обновляется только ключ полного имени: поиск по части имени, а также изменения от
	// сверки и MarkReturned видны после истечения customerTTL.
	if s.cache != nil && s.customerTTL > 0 {
		if list, err := s.repo.ListCustomerOrders(ctx, o.CustomerName); err == nil {
			b, _ := json.Marshal(list)
			_ = s.cache.Set(ctx, customerKey(o.CustomerName), b, s.customerTTL)
		}
	}
	return o, nil
}

func (s *Service) SearchOrders(ctx context.Context, f models.OrderFilter) ([]*models.Order, error) {
	if f.OrderID < 0 || f.Limit < 0 {
		return nil, invalid("orderId and limit must be non-negative")
	}
	f.CustomerName = strings.TrimSpace(f.CustomerName)
	f.TrackingNumber = strings.TrimSpace(f.TrackingNumber)
	if f.Platform != "" && !models.IsKnownPlatform(f.Platform) {
		return nil, invalid("unknown platform " + f.Platform)
	}

	out, err := s.repo.SearchOrders(ctx, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*models.Order{}
	}
	return out, nil
}

func (s *Service) MarkReturned(ctx context.Context, orderIDs []int64, early bool) (int64, error) {
	if len(orderIDs) == 0 {
		return 0, invalid("orderIds is empty")
	}
	if len(orderIDs) > maxReturnBatch {
		return 0, invalid("too many orderIds (max 1000)")
	}

	seen := make(map[int64]struct{}, len(orderIDs))
	clean := make([]int64, 0, len(orderIDs))
	for _, id := range orderIDs {
		if id <= 0 {
			return 0, invalid("orderIds must be positive")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		clean = append(clean, id)
	}
	return s.repo.MarkReturned(ctx, clean, early)
}

// ListShippable: список к отправке клиентам. Кэш не используется, склад смотрит свежие данные.
func (s *Service) ListShippable(ctx context.Context) ([]*models.ShippableOrder, error) {
	out, err := s.repo.ListShippable(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*models.ShippableOrder{}
	}
	return out, nil
}

// LookupCustomerOrders: публичный поиск по имени. Кэш лучшее усилие: ошибки Redis
// не мешают ответу из БД.
func (s *Service) LookupCustomerOrders(ctx context.Context, name string) ([]*models.CustomerOrder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name is required")
	}

	useCache := s.cache != nil && s.customerTTL > 0
	if useCache {
		b, ok, err := s.cache.Get(ctx, customerKey(name))
		if err == nil && ok {
			var cached []*models.CustomerOrder
			if json.Unmarshal(b, &cached) == nil {
				return cached, nil
			}
		}
	}

	out, err := s.repo.ListCustomerOrders(ctx, name)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*models.CustomerOrder{}
	}
	if useCache {
		b, _ := json.Marshal(out)
		_ = s.cache.Set(ctx, customerKey(name), b, s.customerTTL)
	}
	return out, nil
}

func customerKey(name string) string {
	return "customer:" + name + ":orders"
}
