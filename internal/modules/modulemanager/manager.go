// Package modulemanager holds the registry that wires feature modules into
// the application lifecycle: schema migration first, then initialization.
package modulemanager

import (
	"fmt"
	"sync"

	"github.com/jmherbst/aria/internal/logger"
	"gorm.io/gorm"
)

// Module is implemented by every feature module.
type Module interface {
	ID() string
	Name() string
	Migrate(db *gorm.DB) error
	Init() error
}

var (
	mu       sync.Mutex
	registry []Module
	disabled = make(map[string]bool)
)

// Register adds a module to the registry. Called from module init() funcs.
func Register(m Module) {
	mu.Lock()
	defer mu.Unlock()
	for _, existing := range registry {
		if existing.ID() == m.ID() {
			return
		}
	}
	registry = append(registry, m)
}

// DisableModule excludes a module from initialization (development only).
func DisableModule(id string) {
	mu.Lock()
	defer mu.Unlock()
	disabled[id] = true
}

// Initialize migrates and initializes all registered modules in
// registration order.
func Initialize(db *gorm.DB) error {
	mu.Lock()
	modules := make([]Module, len(registry))
	copy(modules, registry)
	mu.Unlock()

	for _, m := range modules {
		if disabled[m.ID()] {
			logger.Info("module disabled, skipping", []logger.Field{logger.String("module", m.ID())})
			continue
		}
		if err := m.Migrate(db); err != nil {
			return fmt.Errorf("module %s migration failed: %w", m.ID(), err)
		}
		if err := m.Init(); err != nil {
			return fmt.Errorf("module %s initialization failed: %w", m.ID(), err)
		}
		logger.Info("module initialized", []logger.Field{
			logger.String("module", m.ID()),
			logger.String("name", m.Name()),
		})
	}
	return nil
}

// All returns the registered modules.
func All() []Module {
	mu.Lock()
	defer mu.Unlock()
	modules := make([]Module, len(registry))
	copy(modules, registry)
	return modules
}
