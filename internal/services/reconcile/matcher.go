package reconcile

import (
	"context"
	"sort"

	"github.com/BearBump/ReshipDesk/internal/models"
)

type OrderLookup interface {
	FindOrdersByTracking(ctx context.Context, trackingNumber string) ([]*models.OrderRef, error)
}

// Matcher находит все строки заказов с данным номером отправления.
type Matcher struct {
	lookup OrderLookup
}

func NewMatcher(lookup OrderLookup) *Matcher {
	return &Matcher{lookup: lookup}
}

type MatchResult struct {
	TrackingNumber string
	// Orders отсортированы по order_id по возрастанию.
	Orders []*models.OrderRef
}

func (r MatchResult) Found() bool { return len(r.Orders) > 0 }

// Primary: строка, которая получает реальный вес: наименьший order_id.
func (r MatchResult) Primary() *models.OrderRef {
	if len(r.Orders) == 0 {
		return nil
	}
	return r.Orders[0]
}

func (r MatchResult) Shared() bool { return len(r.Orders) > 1 }

func (m *Matcher) Find(ctx context.Context, trackingNumber string) (MatchResult, error) {
	orders, err := m.lookup.FindOrdersByTracking(ctx, trackingNumber)
	if err != nil {
		return MatchResult{}, err
	}
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].OrderID < orders[j].OrderID })
	return MatchResult{TrackingNumber: trackingNumber, Orders: orders}, nil
}
