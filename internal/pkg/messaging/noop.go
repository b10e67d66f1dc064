package messaging

import (
	"context"
	"sync"
)

// Noop discards every message. It backs the "none" driver.
type Noop struct{}

func (Noop) Publish(_ context.Context, destination string, _ OutgoingMessage) (PublishResult, error) {
	return PublishResult{Topic: destination}, nil
}

func (Noop) Close() error { return nil }

// Recorder keeps published messages in memory. Tests use it to assert on
// events without a broker.
type Recorder struct {
	mu   sync.Mutex
	sent map[string][]OutgoingMessage
}

func NewRecorder() *Recorder {
	return &Recorder{sent: make(map[string][]OutgoingMessage)}
}

func (r *Recorder) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}

	r.mu.Lock()
	r.sent[destination] = append(r.sent[destination], msg)
	r.mu.Unlock()

	return PublishResult{Topic: destination}, nil
}

// Messages returns a copy of what was published to destination.
func (r *Recorder) Messages(destination string) []OutgoingMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]OutgoingMessage(nil), r.sent[destination]...)
}

func (r *Recorder) Close() error { return nil }
