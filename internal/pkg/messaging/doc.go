// Package messaging provides a broker-agnostic API for publishing messages.
//
// Business code depends on Publisher, so the NATS backend can be replaced by
// Noop when no broker is configured or by Recorder in tests.
package messaging
