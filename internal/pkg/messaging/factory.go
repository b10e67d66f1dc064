package messaging

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DriverNone discards messages.
	DriverNone = "none"
	// DriverNATS selects the NATS backend.
	DriverNATS = "nats"
)

// ErrUnknownDriver indicates an unsupported messaging driver.
var ErrUnknownDriver = errors.New("messaging: unknown driver")

// FactoryOptions groups config for supported messaging backends.
type FactoryOptions struct {
	// NATS provides configuration for the NATS driver.
	NATS NATSConfig
}

// NewFromDriver constructs a Publisher by driver name. An empty driver is
// treated as DriverNone.
func NewFromDriver(driver string, opts FactoryOptions) (Publisher, error) {
	switch strings.TrimSpace(driver) {
	case "", DriverNone:
		return Noop{}, nil
	case DriverNATS:
		return NewNATS(opts.NATS)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
