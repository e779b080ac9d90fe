package queue

import "context"

// Job consumes messages of one type from the queue. Handle returning
// an error sends the message through the retry path and eventually to
// the dead-letter list.
type Job interface {
	// Name identifies the job in logs and metrics.
	Name() string

	// Type is the message type this job consumes.
	Type() string

	// Handle processes one message payload.
	Handle(ctx context.Context, payload interface{}) error
}
