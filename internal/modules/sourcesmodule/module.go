// Package sourcesmodule manages configured media sources (remote shares)
// and the credentials used to reach them.
package sourcesmodule

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jmherbst/aria/internal/database"
	"github.com/jmherbst/aria/internal/mediasource"
	"github.com/jmherbst/aria/internal/modules/modulemanager"
)

const (
	// ModuleID is the unique module identifier
	ModuleID = "system.sources"
	// ModuleName is the human readable name
	ModuleName = "Media Sources"
)

// ErrSourceNotFound is returned for lookups of unknown sources.
var ErrSourceNotFound = errors.New("sources: media source not found")

// Module manages media source configuration.
type Module struct{}

// ConnectFunc opens an accessor for a source. Swapped in tests.
type ConnectFunc func(ctx context.Context, cfg mediasource.SourceConfig, cred mediasource.Credential) (mediasource.Accessor, error)

// connect is the accessor factory used by OpenAccessor. Package-level so
// tests can inject a fake provider.
var connect ConnectFunc = mediasource.Connect

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
	return db.AutoMigrate(&database.MediaSource{}, &database.Credential{})
}

// Init is a no-op; the module state lives in the database.
func (m *Module) Init() error {
	return nil
}

// OpenAccessor connects to the given source using its stored credential.
// Callers own the returned accessor and must Close it.
func (m *Module) OpenAccessor(ctx context.Context, sourceID uint32) (mediasource.Accessor, *database.MediaSource, error) {
	return OpenAccessor(ctx, sourceID)
}

// OpenAccessor connects to a stored source by ID. Used by playback to reach
// the bytes behind a library entry.
func OpenAccessor(ctx context.Context, sourceID uint32) (mediasource.Accessor, *database.MediaSource, error) {
	db := database.GetDB()

	var source database.MediaSource
	err := db.First(&source, sourceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("sources: loading source: %w", err)
	}

	var cred mediasource.Credential
	if source.CredentialID != nil {
		var row database.Credential
		if err := db.First(&row, *source.CredentialID).Error; err != nil {
			return nil, nil, fmt.Errorf("sources: loading credential: %w", err)
		}
		cred = mediasource.Credential{
			Username: row.Username,
			Password: row.Password,
			Domain:   row.Domain,
		}
	}

	accessor, err := connect(ctx, mediasource.SourceConfig{
		Provider:  source.Provider,
		Host:      source.Host,
		ShareName: source.ShareName,
		RootPath:  source.RootPath,
	}, cred)
	if err != nil {
		return nil, nil, err
	}
	return accessor, &source, nil
}
