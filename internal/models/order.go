package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Платформы, с которых принимаются заказы.
const (
	PlatformForwarding  = "集運"
	PlatformPinduoduo   = "拼多多"
	PlatformTaobao      = "淘寶"
	PlatformXianyu      = "閒魚"
	Platform1688        = "1688"
	PlatformWeidian     = "微店"
	PlatformXiaohongshu = "小紅書"
)

var Platforms = []string{
	PlatformForwarding, PlatformPinduoduo, PlatformTaobao, PlatformXianyu,
	Platform1688, PlatformWeidian, PlatformXiaohongshu,
}

func IsKnownPlatform(p string) bool {
	for _, v := range Platforms {
		if v == p {
			return true
		}
	}
	return false
}

type Order struct {
	ID              int64               `json:"orderId"`
	OrderTime       time.Time           `json:"orderTime"`
	CustomerName    string              `json:"customerName"`
	Platform        string              `json:"platform"`
	TrackingNumber  string              `json:"trackingNumber"`
	AmountRMB       decimal.Decimal     `json:"amountRmb"`
	ServiceFee      decimal.Decimal     `json:"serviceFee"`
	WeightKg        decimal.NullDecimal `json:"weightKg"`
	IsArrived       bool                `json:"isArrived"`
	IsReturned      bool                `json:"isReturned"`
	IsEarlyReturned bool                `json:"isEarlyReturned"`
	Remarks         string              `json:"remarks"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// OrderRef: срез заказа, который нужен сверке: id, клиент, текущий вес.
type OrderRef struct {
	OrderID      int64
	CustomerName string
	WeightKg     decimal.NullDecimal
}

type OrderCreateInput struct {
	OrderTime      time.Time           `json:"orderTime"`
	CustomerName   string              `json:"customerName"`
	Platform       string              `json:"platform"`
	TrackingNumber string              `json:"trackingNumber"`
	AmountRMB      decimal.Decimal     `json:"amountRmb"`
	ServiceFee     decimal.Decimal     `json:"serviceFee"`
	WeightKg       decimal.NullDecimal `json:"weightKg"`
	Remarks        string              `json:"remarks"`
}

// OrderFilter: набор необязательных условий поиска. Пустые поля не участвуют в запросе.
type OrderFilter struct {
	OrderID        int64
	CustomerName   string
	TrackingNumber string
	Platform       string
	OrderDate      *time.Time
	IsArrived      *bool
	IsReturned     *bool
	Limit          int
}

// CustomerOrder: то, что видит сам клиент на странице поиска по имени.
type CustomerOrder struct {
	OrderTime      time.Time       `json:"orderTime"`
	Platform       string          `json:"platform"`
	TrackingNumber string          `json:"trackingNumber"`
	AmountRMB      decimal.Decimal `json:"amountRmb"`
	IsArrived      bool            `json:"isArrived"`
	IsReturned     bool            `json:"isReturned"`
}

// ShippableOrder: строка списка к отправке. TrackingTail: последние четыре символа номера,
// по ним склад сверяет посылку на полке.
type ShippableOrder struct {
	Order
	TrackingTail string `json:"trackingTail"`
}

// TrackingTail возвращает последние четыре символа номера (по рунам).
func TrackingTail(tn string) string {
	r := []rune(tn)
	if len(r) <= 4 {
		return tn
	}
	return string(r[len(r)-4:])
}
