// Package scannermodule exposes library scanning as an application module
// with its HTTP surface.
package scannermodule

import (
	"gorm.io/gorm"

	"github.com/jmherbst/aria/internal/config"
	"github.com/jmherbst/aria/internal/database"
	"github.com/jmherbst/aria/internal/events"
	"github.com/jmherbst/aria/internal/modules/modulemanager"
	"github.com/jmherbst/aria/internal/modules/scannermodule/scanner"
)

const (
	// ModuleID is the unique module identifier
	ModuleID = "system.scanner"
	// ModuleName is the human readable name
	ModuleName = "Library Scanner"
)

// Module manages background library scans.
type Module struct {
	manager *scanner.Manager
}

func init() {
	modulemanager.Register(&Module{})
}

// ID returns the module ID
func (m *Module) ID() string {
	return ModuleID
}

// Name returns the module name
func (m *Module) Name() string {
	return ModuleName
}

// Migrate runs module schema migrations.
func (m *Module) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&database.ScanJob{})
}

// Init sets up the scan manager.
func (m *Module) Init() error {
	m.manager = scanner.NewManager(
		database.GetDB(),
		events.GetGlobalEventBus(),
		config.Get().Scanner,
	)
	return nil
}

// Manager returns the scan manager, for other modules and tests.
func (m *Module) Manager() *scanner.Manager {
	return m.manager
}

// Shutdown stops any running scan.
func (m *Module) Shutdown() {
	if m.manager != nil {
		m.manager.Shutdown()
	}
}
