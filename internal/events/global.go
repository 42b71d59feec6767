package events

import "sync"

var (
	globalBus EventBus
	globalMu  sync.RWMutex
)

// SetGlobalEventBus registers the application-wide event bus.
func SetGlobalEventBus(bus EventBus) {
	globalMu.Lock()
	globalBus = bus
	globalMu.Unlock()
}

// GetGlobalEventBus returns the application-wide event bus, creating a
// default one on first use so modules can publish during early startup.
func GetGlobalEventBus() EventBus {
	globalMu.RLock()
	if globalBus != nil {
		defer globalMu.RUnlock()
		return globalBus
	}
	globalMu.RUnlock()

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalBus == nil {
		globalBus = NewEventBus(256)
	}
	return globalBus
}
