package pgorders

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/ReshipDesk/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "reship_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/reship_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func mustCreate(t *testing.T, st *Storage, name, tracking string) *models.Order {
	t.Helper()
	o, err := st.CreateOrder(context.Background(), models.OrderCreateInput{
		OrderTime:      time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		CustomerName:   name,
		Platform:       models.PlatformTaobao,
		TrackingNumber: tracking,
		AmountRMB:      decimal.RequireFromString("88.5"),
		ServiceFee:     decimal.RequireFromString("30"),
	})
	require.NoError(t, err)
	return o
}

func TestPGOrders_ReconcileOperations(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	first := mustCreate(t, st, "王小明", "ABC12345678")
	second := mustCreate(t, st, "王小明", "ABC12345678")
	other := mustCreate(t, st, "林美美", "SF3280813696247")
	require.Less(t, first.ID, second.ID)
	require.False(t, first.IsArrived)
	require.False(t, first.WeightKg.Valid)

	refs, err := st.FindOrdersByTracking(ctx, "ABC12345678")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	require.Equal(t, first.ID, refs[0].OrderID)
	require.Equal(t, second.ID, refs[1].OrderID)

	n, err := st.BulkZeroWeightAndMarkArrived(ctx, "ABC12345678", "zeroed")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	n, err = st.UpdateWeightAndArrival(ctx, first.ID, decimal.RequireFromString("0.27"), "primary 0.27")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, err := st.GetOrder(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, got.IsArrived)
	require.True(t, got.WeightKg.Valid)
	require.Equal(t, "0.27", got.WeightKg.Decimal.StringFixed(2))
	require.Equal(t, "zeroed\nprimary 0.27", got.Remarks)

	got, err = st.GetOrder(ctx, second.ID)
	require.NoError(t, err)
	require.True(t, got.IsArrived)
	require.True(t, got.WeightKg.Decimal.IsZero())

	n, err = st.UpdateWeightAndArrival(ctx, 999999, decimal.RequireFromString("1"), "x")
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = st.UpdateWeightAndArrivalByTracking(ctx, "SF3280813696247", decimal.RequireFromString("0.15"), "by tracking", 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	got, err = st.GetOrder(ctx, other.ID)
	require.NoError(t, err)
	require.Equal(t, "0.15", got.WeightKg.Decimal.StringFixed(2))

	refs, err = st.FindOrdersByTracking(ctx, "NOPE")
	require.NoError(t, err)
	require.Empty(t, refs)
}

func TestPGOrders_SearchAndCustomerLookup(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	a := mustCreate(t, st, "王小明", "ABC12345678")
	mustCreate(t, st, "林美美", "SF3280813696247")
	mustCreate(t, st, "100%_王", "X1")

	out, err := st.SearchOrders(ctx, models.OrderFilter{CustomerName: "小明"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, a.ID, out[0].ID)

	// % и _ из ввода не работают как шаблон.
	out, err = st.SearchOrders(ctx, models.OrderFilter{CustomerName: "%_"})
	require.NoError(t, err)
	require.Len(t, out, 1)

	arrived := false
	out, err = st.SearchOrders(ctx, models.OrderFilter{TrackingNumber: "SF", IsArrived: &arrived, Platform: models.PlatformTaobao})
	require.NoError(t, err)
	require.Len(t, out, 1)

	n, err := st.MarkReturned(ctx, []int64{a.ID}, false)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	returned := true
	out, err = st.SearchOrders(ctx, models.OrderFilter{IsReturned: &returned})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, a.ID, out[0].ID)

	co, err := st.ListCustomerOrders(ctx, "美美")
	require.NoError(t, err)
	require.Len(t, co, 1)
	require.Equal(t, "SF3280813696247", co[0].TrackingNumber)
	require.Equal(t, "88.50", co[0].AmountRMB.StringFixed(2))
}

func TestPGOrders_ListShippable(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	// у 王小明 одна посылка прибыла, вторая нет
	wangArrived := mustCreate(t, st, "王小明", "ABC12345678")
	mustCreate(t, st, "王小明", "JT0000000001")
	// у 林美美 прибыло всё, одна строка уже отправлена
	linA := mustCreate(t, st, "林美美", "SF3280813696247")
	linB := mustCreate(t, st, "林美美", "YT9876543210")
	// 陳大文: прибыла одна из двух, но помечена на досрочную отправку
	chenEarly := mustCreate(t, st, "陳大文", "RR123456789CN")
	mustCreate(t, st, "陳大文", "773012345678")

	for _, tn := range []string{"ABC12345678", "SF3280813696247", "YT9876543210", "RR123456789CN"} {
		_, err := st.BulkZeroWeightAndMarkArrived(ctx, tn, "arrived")
		require.NoError(t, err)
	}
	_, err := st.MarkReturned(ctx, []int64{linB.ID}, false)
	require.NoError(t, err)
	_, err = st.MarkReturned(ctx, []int64{chenEarly.ID}, true)
	require.NoError(t, err)

	out, err := st.ListShippable(ctx)
	require.NoError(t, err)

	ids := make([]int64, 0, len(out))
	for _, o := range out {
		ids = append(ids, o.ID)
	}
	require.ElementsMatch(t, []int64{linA.ID, chenEarly.ID}, ids)
	require.NotContains(t, ids, wangArrived.ID)

	for _, o := range out {
		switch o.ID {
		case linA.ID:
			require.Equal(t, "6247", o.TrackingTail)
		case chenEarly.ID:
			require.Equal(t, "89CN", o.TrackingTail)
			require.True(t, o.IsEarlyReturned)
		}
	}
}

func TestPGOrders_FailureQueue(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	raw := "順豐快遞SF1，入庫重量 0.14 KG"
	w := decimal.NewNullDecimal(decimal.RequireFromString("0.15"))
	require.NoError(t, st.EnqueueFailure(ctx, models.FailureInput{
		TrackingNumber: "T1", WeightKg: w, RawMessage: &raw, Error: "order not found",
	}))

	list, err := st.ListFailures(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 1, list[0].RetryCount)

	// повтор без веса и строки: контекст сохраняется, счётчик растёт
	require.NoError(t, st.EnqueueFailure(ctx, models.FailureInput{
		TrackingNumber: "T1", Error: strings.Repeat("錯", 300),
	}))
	list, err = st.ListFailures(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 2, list[0].RetryCount)
	require.Equal(t, "0.15", list[0].WeightKg.Decimal.StringFixed(2))
	require.NotNil(t, list[0].RawMessage)
	require.Equal(t, raw, *list[0].RawMessage)
	require.Len(t, []rune(list[0].LastError), models.MaxLastErrorRunes)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, st.EnqueueFailure(ctx, models.FailureInput{TrackingNumber: "T2", Error: "boom"}))
	list, err = st.ListFailures(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "T2", list[0].TrackingNumber)

	require.NoError(t, st.DeleteFailure(ctx, "T2"))
	require.NoError(t, st.DeleteFailure(ctx, "T2"))
	list, err = st.ListFailures(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, st.ClearFailures(ctx))
	require.NoError(t, st.ClearFailures(ctx))
	list, err = st.ListFailures(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}
