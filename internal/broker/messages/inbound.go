package messages

import "time"

// InboundBatch: вставка из чата склада, пришедшая через топик входящих уведомлений.
type InboundBatch struct {
	BatchID    string    `json:"batch_id"`
	Source     string    `json:"source,omitempty"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}
