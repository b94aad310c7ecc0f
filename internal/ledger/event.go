// Package ledger keeps an append-only local record of pipeline runs.
package ledger

import "time"

// EventType names a stage transition.
type EventType string

const (
	EventStarted   EventType = "started"
	EventSucceeded EventType = "succeeded"
	EventFailed    EventType = "failed"
)

// Event is one row of the ledger.
type Event struct {
	ID        int64
	RunID     string
	Stage     string
	Type      EventType
	Timestamp time.Time
	Base      string
	Head      string
	Tag       string
	Category  string
	Message   string
	Metadata  map[string]string
}
