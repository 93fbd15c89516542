package models

import (
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxLastErrorRunes: ширина колонки last_error в очереди ошибок.
const MaxLastErrorRunes = 250

type FailureKind string

const (
	FailureNotFound     FailureKind = "NOT_FOUND"
	FailureUpdateFailed FailureKind = "UPDATE_FAILED"
	FailureStorageError FailureKind = "STORAGE_ERROR"
)

// InboundMatch: одна распознанная строка уведомления склада.
type InboundMatch struct {
	TrackingNumber string
	WeightKg       decimal.Decimal
	SourceLine     string
}

type FailureEntry struct {
	TrackingNumber string              `json:"trackingNumber"`
	WeightKg       decimal.NullDecimal `json:"weightKg"`
	RawMessage     *string             `json:"rawMessage,omitempty"`
	RetryCount     int                 `json:"retryCount"`
	LastError      string              `json:"lastError"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

type FailureInput struct {
	TrackingNumber string
	WeightKg       decimal.NullDecimal
	RawMessage     *string
	Error          string
}

type SuccessRow struct {
	TrackingNumber string          `json:"trackingNumber"`
	CustomerName   string          `json:"customerName"`
	WeightKg       decimal.Decimal `json:"weightKg"`
	ProcessedAt    time.Time       `json:"processedAt"`
}

type FailureRow struct {
	TrackingNumber string              `json:"trackingNumber"`
	WeightKg       decimal.NullDecimal `json:"weightKg"`
	SourceLine     string              `json:"sourceLine"`
	Kind           FailureKind         `json:"kind"`
	Error          string              `json:"error"`
}

type ReconcileResult struct {
	RunID    string       `json:"runId"`
	Updated  int          `json:"updated"`
	Success  []SuccessRow `json:"successRows"`
	Failures []FailureRow `json:"failureRows"`
}

type RetryResult struct {
	RunID                  string       `json:"runId"`
	Success                int          `json:"success"`
	Failure                int          `json:"failure"`
	SuccessTrackingNumbers []string     `json:"successTrackingNumbers"`
	Failures               []FailureRow `json:"failureRows"`
}

// TruncateError обрезает текст ошибки по символам, а не байтам: сообщения бывают на китайском.
func TruncateError(s string) string {
	if utf8.RuneCountInString(s) <= MaxLastErrorRunes {
		return s
	}
	r := []rune(s)
	return string(r[:MaxLastErrorRunes])
}
