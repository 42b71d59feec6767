// Package playbackmodule delivers library audio to players, either as raw
// bytes with range support or through an ffmpeg transcode.
package playbackmodule

import (
	"os"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/jmherbst/aria/internal/config"
	"github.com/jmherbst/aria/internal/modules/modulemanager"
	"github.com/jmherbst/aria/internal/modules/playbackmodule/core"
)

const (
	// ModuleID is the unique module identifier
	ModuleID = "system.playback"
	// ModuleName is the human readable name
	ModuleName = "Playback"
)

// Module serves streaming requests.
type Module struct {
	log      hclog.Logger
	streamer *core.DirectStreamer
	sessions *core.SessionManager
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

// Migrate is a no-op; playback has no persisted state.
func (m *Module) Migrate(db *gorm.DB) error {
	return nil
}

// Init builds the streamer and the transcode session manager.
func (m *Module) Init() error {
	cfg := config.Get().Playback

	m.log = hclog.New(&hclog.LoggerOptions{
		Name:  "playback",
		Level: hclog.LevelFromString(logLevel()),
	})
	m.streamer = core.NewDirectStreamer(m.log)
	m.sessions = core.NewSessionManager(cfg, core.NewFFmpegRunner(cfg.FFmpegPath, m.log), m.log)
	return nil
}

func logLevel() string {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return "info"
}

// Sessions returns the transcode session manager.
func (m *Module) Sessions() *core.SessionManager {
	return m.sessions
}

// Shutdown ends all live sessions.
func (m *Module) Shutdown() {
	if m.sessions != nil {
		m.sessions.Shutdown()
	}
}
