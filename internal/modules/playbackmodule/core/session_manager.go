package core

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/jmherbst/aria/internal/config"
)

// Session is one live transcode for one client and one entry. A seek does
// not mutate a session; it replaces it with a new one starting at the new
// offset.
type Session struct {
	ID        string
	ClientID  string
	EntryID   string
	StartTime int
	StartedAt time.Time

	process Process
	input   io.Closer

	mu         sync.Mutex
	lastActive time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// end stops the process and releases the input stream.
func (s *Session) end() {
	s.process.Stop()
	if s.input != nil {
		_ = s.input.Close()
	}
}

// SessionInfo is the read-only view served by the status endpoint.
type SessionInfo struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	EntryID   string    `json:"entry_id"`
	StartTime int       `json:"start_time"`
	StartedAt time.Time `json:"started_at"`
}

// SessionManager tracks live transcode sessions. It enforces one session per
// (client, entry) pair and reaps sessions that stop being read.
type SessionManager struct {
	log    hclog.Logger
	cfg    config.PlaybackConfig
	runner Runner
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSessionManager creates a manager and starts its idle reaper.
func NewSessionManager(cfg config.PlaybackConfig, runner Runner, log hclog.Logger) *SessionManager {
	m := &SessionManager{
		log:      log.Named("sessions"),
		cfg:      cfg,
		runner:   runner,
		now:      time.Now,
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
	}
	go m.reapLoop()
	return m
}

// Start begins a transcode session. Any existing session for the same
// (client, entry) pair is killed first; its process must not keep reading
// the share while the replacement runs.
func (m *SessionManager) Start(ctx context.Context, clientID, entryID string, input io.ReadCloser, startTime int) (*Session, error) {
	key := sessionKey(clientID, entryID)

	m.mu.Lock()
	prev := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if prev != nil {
		m.log.Info("superseding transcode session",
			"session_id", prev.ID, "entry_id", entryID, "new_start_time", startTime)
		prev.end()
	}

	process, err := m.runner.Start(ctx, TranscodeSpec{
		Input:       input,
		StartTime:   startTime,
		BitrateKbps: m.cfg.TranscodeBitrateKbps,
	})
	if err != nil {
		_ = input.Close()
		return nil, fmt.Errorf("playback: starting transcode: %w", err)
	}

	now := m.now()
	session := &Session{
		ID:         uuid.NewString(),
		ClientID:   clientID,
		EntryID:    entryID,
		StartTime:  startTime,
		StartedAt:  now,
		process:    process,
		input:      input,
		lastActive: now,
	}

	m.mu.Lock()
	m.sessions[key] = session
	m.mu.Unlock()

	m.log.Info("transcode session started",
		"session_id", session.ID, "entry_id", entryID,
		"client_id", clientID, "start_time", startTime)
	return session, nil
}

// Reader returns the session's encoded output. Every read refreshes the
// session's idle deadline.
func (m *SessionManager) Reader(s *Session) io.Reader {
	return &touchReader{r: s.process.Output(), session: s, now: m.now}
}

// End terminates a session and removes it from tracking. Ending an already
// superseded or reaped session is a no-op.
func (m *SessionManager) End(s *Session) {
	key := sessionKey(s.ClientID, s.EntryID)

	m.mu.Lock()
	current, ok := m.sessions[key]
	if !ok || current.ID != s.ID {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, key)
	m.mu.Unlock()

	s.end()
	m.log.Info("transcode session ended", "session_id", s.ID, "entry_id", s.EntryID)
}

// Active returns info on all live sessions.
func (m *SessionManager) Active() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, SessionInfo{
			ID:        s.ID,
			ClientID:  s.ClientID,
			EntryID:   s.EntryID,
			StartTime: s.StartTime,
			StartedAt: s.StartedAt,
		})
	}
	return infos
}

// Shutdown stops the reaper and ends every session.
func (m *SessionManager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.end()
	}
}

// ReapIdle ends every session whose last read is older than the idle
// timeout. Called periodically by the reap loop; exported for tests.
func (m *SessionManager) ReapIdle() int {
	cutoff := m.now().Add(-m.cfg.SessionIdleTimeout)

	m.mu.Lock()
	var idle []*Session
	for key, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.log.Info("reaping idle transcode session",
			"session_id", s.ID, "entry_id", s.EntryID)
		s.end()
	}
	return len(idle)
}

func (m *SessionManager) reapLoop() {
	interval := m.cfg.SessionIdleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.ReapIdle()
		case <-m.stop:
			return
		}
	}
}

func sessionKey(clientID, entryID string) string {
	return clientID + "|" + entryID
}

// touchReader refreshes session activity on every read.
type touchReader struct {
	r       io.Reader
	session *Session
	now     func() time.Time
}

func (t *touchReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		t.session.touch(t.now())
	}
	return n, err
}
