package messages

import "time"

const (
	PassKindReconcile = "reconcile"
	PassKindRetry     = "retry"
)

// ReconcileCompleted публикуется после каждого прохода сверки (обычного или повторного).
type ReconcileCompleted struct {
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"`
	Updated    int       `json:"updated"`
	Failed     int       `json:"failed"`
	Succeeded  []string  `json:"succeeded,omitempty"`
	FailedTNs  []string  `json:"failed_tracking_numbers,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}
