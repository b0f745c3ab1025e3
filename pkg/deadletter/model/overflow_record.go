package model

import (
	"time"

	eventModel "github.com/Avi18971911/Logship/pkg/event/model"
)

// OverflowRecord is a failed batch persisted for later retry. Records are
// append-only on disk; resolution is tracked by a commit watermark, never by
// editing a written record.
type OverflowRecord struct {
	Seq        uint64                `json:"seq"`
	Index      string                `json:"index"`
	Events     []eventModel.LogEvent `json:"events"`
	Attempts   int                   `json:"attempts"`
	LastError  string                `json:"last_error,omitempty"`
	EnqueuedAt time.Time             `json:"enqueued_at"`
}
