package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/jmherbst/aria/internal/config"
	"github.com/jmherbst/aria/internal/database"
	"github.com/jmherbst/aria/internal/events"
	"github.com/jmherbst/aria/internal/hashing"
	"github.com/jmherbst/aria/internal/logger"
	"github.com/jmherbst/aria/internal/mediasource"
	"github.com/jmherbst/aria/internal/metadata"
)

// Scan orchestrator states. The machine is idle -> scanning -> completed or
// failed; terminal states return to idle when the next scan starts.
const (
	StateIdle      = "idle"
	StateScanning  = "scanning"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

var (
	// ErrScanInProgress is returned when a scan is requested while another
	// one is still running. At most one scan runs system-wide.
	ErrScanInProgress = errors.New("scanner: a scan is already in progress")
	// ErrSourceNotFound is returned for an unknown or disabled source.
	ErrSourceNotFound = errors.New("scanner: media source not found or disabled")
)

// Status is a point-in-time snapshot of the orchestrator, served by the
// polling status endpoint.
type Status struct {
	State          string     `json:"state"`
	JobID          uint32     `json:"job_id,omitempty"`
	SourceID       uint32     `json:"source_id,omitempty"`
	Message        string     `json:"message,omitempty"`
	FilesFound     int        `json:"files_found"`
	FilesProcessed int        `json:"files_processed"`
	FilesSkipped   int        `json:"files_skipped"`
	DirsSkipped    int        `json:"dirs_skipped"`
	EntriesCreated int        `json:"entries_created"`
	AliasesCreated int        `json:"aliases_created"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// ConnectFunc opens an accessor for a source. Swapped in tests.
type ConnectFunc func(ctx context.Context, cfg mediasource.SourceConfig, cred mediasource.Credential) (mediasource.Accessor, error)

// Manager owns the single-flight scan lifecycle: it guards the state machine,
// runs the walk/resolve pipeline in the background and mirrors progress into
// the persisted job row.
type Manager struct {
	db        *gorm.DB
	bus       events.EventBus
	cfg       config.ScannerConfig
	store     LibraryStore
	hasher    hashing.Hasher
	extractor metadata.Extractor
	prober    metadata.Prober
	connect   ConnectFunc
	throttle  *Throttle

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	doneWg sync.WaitGroup
}

// NewManager creates a scan manager with production collaborators.
func NewManager(db *gorm.DB, bus events.EventBus, cfg config.ScannerConfig) *Manager {
	m := &Manager{
		db:        db,
		bus:       bus,
		cfg:       cfg,
		store:     NewGormStore(db),
		hasher:    hashing.NewSHA256Hasher(),
		extractor: metadata.NewTagExtractor(),
		prober:    metadata.NewFFprobeProber(cfg.FFprobePath),
		connect:   mediasource.Connect,
		status:    Status{State: StateIdle},
	}
	if cfg.ThrottleEnabled {
		m.throttle = NewThrottle(cfg.ThrottleCPULimit)
	}
	return m
}

// StartScan begins a background scan of the given source and returns the
// persisted job ID. Returns ErrScanInProgress while another scan is running.
func (m *Manager) StartScan(sourceID uint32) (uint32, error) {
	source, err := m.loadSource(sourceID)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	if m.status.State == StateScanning {
		m.mu.Unlock()
		return 0, ErrScanInProgress
	}

	now := time.Now().UTC()
	job := &database.ScanJob{
		SourceID:  sourceID,
		Status:    database.ScanStatusRunning,
		StartedAt: &now,
	}
	if err := m.db.Create(job).Error; err != nil {
		m.mu.Unlock()
		return 0, fmt.Errorf("scanner: creating scan job: %w", err)
	}

	m.status = Status{
		State:     StateScanning,
		JobID:     job.ID,
		SourceID:  sourceID,
		Message:   fmt.Sprintf("connecting to %s", source.Name),
		StartedAt: &now,
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.doneWg.Add(1)
	m.mu.Unlock()

	m.bus.PublishAsync(events.NewSystemEvent(events.EventScanStarted,
		"Library scan started",
		fmt.Sprintf("Scanning source %s", source.Name)))
	logger.Info("scan started", []logger.Field{
		logger.Int("job_id", int(job.ID)),
		logger.String("source", source.Name),
	})

	go m.run(ctx, job.ID, source)
	return job.ID, nil
}

// Status returns a snapshot of the current or most recent scan.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Shutdown cancels any running scan and waits for it to wind down.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.doneWg.Wait()
}

func (m *Manager) loadSource(sourceID uint32) (*database.MediaSource, error) {
	var source database.MediaSource
	err := m.db.Where("id = ? AND enabled = ?", sourceID, true).First(&source).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanner: loading source: %w", err)
	}
	return &source, nil
}

// openAccessorFor connects to a source that is not the one being scanned,
// for verifying content against entries recorded from other shares. The
// enabled flag is ignored here; existing entries stay comparable even when
// their source is switched off.
func (m *Manager) openAccessorFor(ctx context.Context, sourceID uint32) (mediasource.Accessor, error) {
	var source database.MediaSource
	if err := m.db.First(&source, sourceID).Error; err != nil {
		return nil, fmt.Errorf("scanner: loading source %d: %w", sourceID, err)
	}
	cred, err := m.loadCredential(&source)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, m.cfg.RemoteTimeout)
	defer cancel()
	return m.connect(connectCtx, mediasource.SourceConfig{
		Provider:  source.Provider,
		Host:      source.Host,
		ShareName: source.ShareName,
		RootPath:  source.RootPath,
	}, cred)
}

func (m *Manager) loadCredential(source *database.MediaSource) (mediasource.Credential, error) {
	if source.CredentialID == nil {
		return mediasource.Credential{}, nil
	}
	var cred database.Credential
	if err := m.db.First(&cred, *source.CredentialID).Error; err != nil {
		return mediasource.Credential{}, fmt.Errorf("scanner: loading credential: %w", err)
	}
	return mediasource.Credential{
		Username: cred.Username,
		Password: cred.Password,
		Domain:   cred.Domain,
	}, nil
}

func (m *Manager) run(ctx context.Context, jobID uint32, source *database.MediaSource) {
	defer m.doneWg.Done()

	err := m.scan(ctx, source)

	m.mu.Lock()
	now := time.Now().UTC()
	m.status.CompletedAt = &now
	if err != nil {
		m.status.State = StateFailed
		m.status.Error = err.Error()
	} else {
		m.status.State = StateCompleted
		m.status.Message = fmt.Sprintf("%d entries, %d aliases",
			m.status.EntriesCreated, m.status.AliasesCreated)
	}
	final := m.status
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()

	m.persistProgress(jobID, final)

	if err != nil {
		m.bus.PublishAsync(events.NewSystemEvent(events.EventScanFailed,
			"Library scan failed", err.Error()))
		logger.Error("scan failed", []logger.Field{
			logger.Int("job_id", int(jobID)),
			logger.Err("error", err),
		})
		return
	}

	m.bus.PublishAsync(events.NewSystemEvent(events.EventScanCompleted,
		"Library scan completed",
		fmt.Sprintf("%d files processed, %d new entries, %d aliases",
			final.FilesProcessed, final.EntriesCreated, final.AliasesCreated)))
	logger.Info("scan completed", []logger.Field{
		logger.Int("job_id", int(jobID)),
		logger.Int("files_found", final.FilesFound),
		logger.Int("files_processed", final.FilesProcessed),
		logger.Int("files_skipped", final.FilesSkipped),
		logger.Int("entries_created", final.EntriesCreated),
		logger.Int("aliases_created", final.AliasesCreated),
	})
}

// scan runs the full pipeline for one source: connect, walk, resolve. The
// walker produces on its own goroutine; this goroutine is the single
// consumer, which keeps library writes serialized.
func (m *Manager) scan(ctx context.Context, source *database.MediaSource) error {
	cred, err := m.loadCredential(source)
	if err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, m.cfg.RemoteTimeout)
	accessor, err := m.connect(connectCtx, mediasource.SourceConfig{
		Provider:  source.Provider,
		Host:      source.Host,
		ShareName: source.ShareName,
		RootPath:  source.RootPath,
	}, cred)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting to source %s: %w", source.Name, err)
	}
	defer accessor.Close()

	walker := NewWalker(accessor, m.cfg.RemoteTimeout)
	walker.OnDir(func(path string) {
		m.mu.Lock()
		m.status.Message = "scanning " + path
		m.mu.Unlock()
	})
	walker.OnDirSkip(func(path string, err error) {
		m.mu.Lock()
		m.status.DirsSkipped++
		m.mu.Unlock()
	})

	// Accessors for hash backfills, keyed by source. A canonical entry may
	// live on a share other than the one being scanned. Only the single
	// consumer goroutine touches this map.
	accessors := map[uint32]mediasource.Accessor{source.ID: accessor}
	defer func() {
		for id, acc := range accessors {
			if id != source.ID {
				_ = acc.Close()
			}
		}
	}()
	openEntry := func(ctx context.Context, entry *database.LibraryEntry) (io.ReadCloser, error) {
		acc, ok := accessors[entry.SourceID]
		if !ok {
			var err error
			acc, err = m.openAccessorFor(ctx, entry.SourceID)
			if err != nil {
				return nil, err
			}
			accessors[entry.SourceID] = acc
		}
		// The timeout must span the reads that follow, not just the open
		// call; the helper releases it on Close.
		return mediasource.OpenWithTimeout(ctx, acc, entry.Path, m.cfg.RemoteTimeout)
	}

	resolver := NewResolver(m.store, m.hasher, m.extractor, m.prober, m.throttle, openEntry, m.cfg.RemoteTimeout)

	// Walking local paths for local providers is relative to the root, so
	// the walk always starts at the share-relative top.
	root := "/"
	if source.Provider == "smb" && source.RootPath != "" {
		root = source.RootPath
	}

	candidates := make(chan FileCandidate, m.cfg.CandidateBuffer)
	walkErr := make(chan error, 1)
	go func() {
		defer close(candidates)
		walkErr <- walker.Walk(ctx, root, candidates)
	}()

	flushDone := m.startProgressFlusher(ctx)
	defer flushDone()

	for cand := range candidates {
		m.mu.Lock()
		m.status.FilesFound++
		m.mu.Unlock()

		outcome, procErr := resolver.Process(ctx, accessor, source.ID, cand)
		if procErr != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Warn("skipping unreadable file", []logger.Field{
				logger.String("path", cand.Path),
				logger.Err("error", procErr),
			})
			m.mu.Lock()
			m.status.FilesProcessed++
			m.status.FilesSkipped++
			m.mu.Unlock()
			continue
		}

		m.mu.Lock()
		m.status.FilesProcessed++
		switch outcome {
		case OutcomeCreated:
			m.status.EntriesCreated++
		case OutcomeAliased:
			m.status.AliasesCreated++
		}
		m.mu.Unlock()

		switch outcome {
		case OutcomeCreated:
			m.bus.PublishAsync(events.NewSystemEvent(events.EventEntryCreated,
				"Library entry created", cand.Path))
		case OutcomeAliased:
			m.bus.PublishAsync(events.NewSystemEvent(events.EventAliasCreated,
				"Duplicate location recorded", cand.Path))
		}
	}

	// Drain the producer result after the channel closes.
	if err := <-walkErr; err != nil {
		return fmt.Errorf("walking source %s: %w", source.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scan canceled: %w", err)
	}
	return nil
}

// startProgressFlusher mirrors in-memory progress to the job row on an
// interval. The returned func stops the flusher.
func (m *Manager) startProgressFlusher(ctx context.Context) func() {
	stop := make(chan struct{})
	done := make(chan struct{})

	interval := m.cfg.ProgressFlushInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.mu.Lock()
				snapshot := m.status
				m.mu.Unlock()
				m.persistProgress(snapshot.JobID, snapshot)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}

func (m *Manager) persistProgress(jobID uint32, s Status) {
	updates := map[string]interface{}{
		"files_found":     s.FilesFound,
		"files_processed": s.FilesProcessed,
		"files_skipped":   s.FilesSkipped,
		"entries_created": s.EntriesCreated,
		"aliases_created": s.AliasesCreated,
	}
	switch s.State {
	case StateCompleted:
		updates["status"] = database.ScanStatusCompleted
		updates["completed_at"] = s.CompletedAt
		updates["status_message"] = fmt.Sprintf("%d entries, %d aliases", s.EntriesCreated, s.AliasesCreated)
	case StateFailed:
		updates["status"] = database.ScanStatusFailed
		updates["completed_at"] = s.CompletedAt
		updates["error_message"] = s.Error
	default:
		message := s.Message
		if message == "" {
			message = fmt.Sprintf("%d/%d files processed", s.FilesProcessed, s.FilesFound)
		}
		updates["status_message"] = message
	}

	if err := m.db.Model(&database.ScanJob{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		logger.Warn("failed to persist scan progress", []logger.Field{
			logger.Int("job_id", int(jobID)),
			logger.Err("error", err),
		})
	}
}
