package messaging

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("pkgmessage: publisher is closed")

// Publisher is a broker-agnostic client that publishes messages.
//
// Business code depends on this interface so the broker can be swapped, or
// replaced by Noop when no broker is configured.
type Publisher interface {
	io.Closer

	// Publish sends a message to the destination subject.
	Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error)
}

// OutgoingMessage represents a broker-agnostic message to be published.
type OutgoingMessage struct {
	// Body is the message payload.
	Body []byte

	// Headers support arbitrary binary values and duplicate keys.
	Headers []Header
}

// Header is a key/value pair used for message headers.
type Header struct {
	Key   string
	Value []byte
}

// PublishResult carries optional broker-specific publish metadata.
type PublishResult struct {
	// Topic is the destination the message was published to.
	Topic string

	// Timestamp is when the broker accepted the message.
	Timestamp time.Time
}
