package broker

import (
	"fmt"

	"fileforge/internal/config"
)

// Open builds the broker selected by configuration.
func Open(cfg config.Broker) (Broker, error) {
	switch cfg.Driver {
	case config.BrokerDriverNATS:
		return ConnectNATS(cfg)
	case config.BrokerDriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.Driver)
	}
}
