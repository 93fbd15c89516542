package orders

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/ReshipDesk/internal/models"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	createIn  models.OrderCreateInput
	createOut *models.Order
	createErr error

	searchIn  models.OrderFilter
	searchOut []*models.Order

	customerCalls int
	customerIn    string
	customerOut   []*models.CustomerOrder
	customerErr   error

	returnedIDs   []int64
	returnedEarly bool

	shippableOut []*models.ShippableOrder
	shippableErr error
}

func (f *fakeRepo) CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	f.createIn = in
	return f.createOut, f.createErr
}
func (f *fakeRepo) SearchOrders(ctx context.Context, fl models.OrderFilter) ([]*models.Order, error) {
	f.searchIn = fl
	return f.searchOut, nil
}
func (f *fakeRepo) ListCustomerOrders(ctx context.Context, name string) ([]*models.CustomerOrder, error) {
	f.customerCalls++
	f.customerIn = name
	return f.customerOut, f.customerErr
}
func (f *fakeRepo) MarkReturned(ctx context.Context, ids []int64, early bool) (int64, error) {
	f.returnedIDs = ids
	f.returnedEarly = early
	return int64(len(ids)), nil
}

func (f *fakeRepo) ListShippable(ctx context.Context) ([]*models.ShippableOrder, error) {
	return f.shippableOut, f.shippableErr
}

type fakeCache struct {
	m map[string][]byte
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}
func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}

func validInput() models.OrderCreateInput {
	return models.OrderCreateInput{
		CustomerName:   "  王小明 ",
		Platform:       models.PlatformPinduoduo,
		TrackingNumber: " sf123456789 ",
		AmountRMB:      decimal.RequireFromString("12.50"),
		ServiceFee:     decimal.RequireFromString("3"),
	}
}

func TestService_CreateOrder_validate(t *testing.T) {
	s := New(&fakeRepo{}, nil, 0)
	ctx := context.Background()

	in := validInput()
	in.CustomerName = "  "
	_, err := s.CreateOrder(ctx, in)
	require.ErrorIs(t, err, ErrInvalidInput)

	in = validInput()
	in.Platform = "Amazon"
	_, err = s.CreateOrder(ctx, in)
	require.ErrorIs(t, err, ErrInvalidInput)

	in = validInput()
	in.AmountRMB = decimal.RequireFromString("-1")
	_, err = s.CreateOrder(ctx, in)
	require.ErrorIs(t, err, ErrInvalidInput)

	in = validInput()
	in.WeightKg = decimal.NewNullDecimal(decimal.RequireFromString("-0.1"))
	_, err = s.CreateOrder(ctx, in)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_CreateOrder_normalizes(t *testing.T) {
	r := &fakeRepo{createOut: &models.Order{ID: 1, CustomerName: "王小明"}}
	s := New(r, nil, 0)

	o, err := s.CreateOrder(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, int64(1), o.ID)
	require.Equal(t, "王小明", r.createIn.CustomerName)
	require.Equal(t, "SF123456789", r.createIn.TrackingNumber)
	require.False(t, r.createIn.OrderTime.IsZero())
	require.Equal(t, 0, r.customerCalls) // без кэша не трогаем
}

func TestService_CreateOrder_repoError(t *testing.T) {
	r := &fakeRepo{createErr: errors.New("insert order: conn reset")}
	s := New(r, nil, 0)

	_, err := s.CreateOrder(context.Background(), validInput())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidInput)
}

func TestService_CreateOrder_refreshesCustomerCache(t *testing.T) {
	r := &fakeRepo{
		createOut:   &models.Order{ID: 1, CustomerName: "王小明"},
		customerOut: []*models.CustomerOrder{{TrackingNumber: "SF123456789"}},
	}
	c := &fakeCache{m: map[string][]byte{"customer:小明:orders": []byte("[]")}}
	s := New(r, c, time.Minute)

	_, err := s.CreateOrder(context.Background(), validInput())
	require.NoError(t, err)
	require.Contains(t, c.m, "customer:王小明:orders")
	require.Equal(t, 1, r.customerCalls)
	// ключ поиска по части имени не трогаем, он истечёт по TTL
	require.Equal(t, []byte("[]"), c.m["customer:小明:orders"])
}

func TestService_SearchOrders(t *testing.T) {
	r := &fakeRepo{}
	s := New(r, nil, 0)
	arrived := true

	out, err := s.SearchOrders(context.Background(), models.OrderFilter{CustomerName: " 王 ", IsArrived: &arrived})
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Equal(t, "王", r.searchIn.CustomerName)
	require.True(t, *r.searchIn.IsArrived)

	_, err = s.SearchOrders(context.Background(), models.OrderFilter{Platform: "eBay"})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.SearchOrders(context.Background(), models.OrderFilter{Limit: -1})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_MarkReturned(t *testing.T) {
	r := &fakeRepo{}
	s := New(r, nil, 0)

	_, err := s.MarkReturned(context.Background(), nil, false)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.MarkReturned(context.Background(), []int64{1, 0}, false)
	require.ErrorIs(t, err, ErrInvalidInput)

	n, err := s.MarkReturned(context.Background(), []int64{3, 1, 3}, true)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.Equal(t, []int64{3, 1}, r.returnedIDs)
	require.True(t, r.returnedEarly)
}

func TestService_LookupCustomerOrders_cacheHit(t *testing.T) {
	r := &fakeRepo{}
	c := &fakeCache{m: map[string][]byte{}}
	s := New(r, c, time.Minute)

	want := []*models.CustomerOrder{{TrackingNumber: "SF1", Platform: models.PlatformTaobao}}
	b, _ := json.Marshal(want)
	c.m["customer:陳:orders"] = b

	out, err := s.LookupCustomerOrders(context.Background(), " 陳 ")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "SF1", out[0].TrackingNumber)
	require.Equal(t, 0, r.customerCalls) // БД не трогали
}

func TestService_LookupCustomerOrders_missFillsCache(t *testing.T) {
	r := &fakeRepo{}
	c := &fakeCache{m: map[string][]byte{}}
	s := New(r, c, time.Minute)

	out, err := s.LookupCustomerOrders(context.Background(), "陳")
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Empty(t, out)
	require.Equal(t, "陳", r.customerIn)
	require.Equal(t, []byte("[]"), c.m["customer:陳:orders"])

	_, err = s.LookupCustomerOrders(context.Background(), "  ")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_ListShippable(t *testing.T) {
	r := &fakeRepo{}
	s := New(r, nil, 0)

	out, err := s.ListShippable(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Empty(t, out)

	r.shippableOut = []*models.ShippableOrder{{Order: models.Order{ID: 7, TrackingNumber: "SF3280813696247"}, TrackingTail: "6247"}}
	out, err = s.ListShippable(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "6247", out[0].TrackingTail)

	r.shippableErr = errors.New("select shippable orders: timeout")
	_, err = s.ListShippable(context.Background())
	require.Error(t, err)
}
