package queue

import (
	"context"
	"encoding/json"
)

// Job handles every message of one type.
type Job interface {
	Name() string
	Type() string
	// Handle receives the payload exactly as it was published. A returned
	// error schedules a retry until the queue's retry limit is reached.
	Handle(ctx context.Context, payload json.RawMessage) error
}
