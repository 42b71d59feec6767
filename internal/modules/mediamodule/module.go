// Package mediamodule owns the canonical library tables and the read API
// over ingested entries.
package mediamodule

import (
	"gorm.io/gorm"

	"github.com/jmherbst/aria/internal/database"
	"github.com/jmherbst/aria/internal/modules/modulemanager"
)

const (
	// ModuleID is the unique module identifier
	ModuleID = "system.media"
	// ModuleName is the human readable name
	ModuleName = "Media Library"
)

// Module serves the ingested library.
type Module struct{}

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
	return db.AutoMigrate(&database.LibraryEntry{}, &database.EntryAlias{})
}

// Init is a no-op; the module only serves reads.
func (m *Module) Init() error {
	return nil
}
