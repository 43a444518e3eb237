package bus

import (
	"fmt"
	"strings"

	"github.com/cortexhq/cortex/internal/common/config"
	"github.com/cortexhq/cortex/internal/common/logger"
)

// Provided wraps the active bus implementation. Exactly one of Memory and
// NATS is non-nil.
type Provided struct {
	Bus    Bus
	Memory *MemoryBus
	NATS   *NATSBus
}

// Provide builds the configured bus implementation: NATS when a broker URL
// is configured, the in-memory bus otherwise. The returned cleanup closes
// the bus.
func Provide(cfg *config.Config, log *logger.Logger) (*Provided, func() error, error) {
	if strings.TrimSpace(cfg.NATS.URL) != "" {
		natsBus, err := NewNATSBus(cfg.NATS, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize NATS bus: %w", err)
		}
		cleanup := func() error {
			natsBus.Close()
			return nil
		}
		return &Provided{Bus: natsBus, NATS: natsBus}, cleanup, nil
	}

	memBus := NewMemoryBus(log)
	cleanup := func() error {
		memBus.Close()
		return nil
	}
	return &Provided{Bus: memBus, Memory: memBus}, cleanup, nil
}
