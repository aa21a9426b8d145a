// Package bus carries scoring events between the API and the worker.
package bus

import (
	"errors"
	"fmt"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

var (
	ErrClosed = errors.New("bus is closed")
	ErrFull   = errors.New("subscriber queue is full")
)

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
