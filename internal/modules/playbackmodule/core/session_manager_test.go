package core

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmherbst/aria/internal/config"
)

type fakeProcess struct {
	out  io.Reader
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	stopped bool
}

func newFakeProcess(output string) *fakeProcess {
	return &fakeProcess{
		out:  strings.NewReader(output),
		done: make(chan struct{}),
	}
}

func (p *fakeProcess) Output() io.Reader { return p.out }

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Err() error { return nil }

func (p *fakeProcess) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.once.Do(func() { close(p.done) })
}

func (p *fakeProcess) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

type fakeRunner struct {
	mu      sync.Mutex
	started []*fakeProcess
	specs   []TranscodeSpec
}

func (r *fakeRunner) Start(ctx context.Context, spec TranscodeSpec) (Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := newFakeProcess("encoded audio bytes")
	r.started = append(r.started, p)
	r.specs = append(r.specs, spec)
	return p, nil
}

type countingCloser struct {
	io.Reader
	mu     sync.Mutex
	closed int
}

func (c *countingCloser) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return nil
}

func (c *countingCloser) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestSessionManager(t *testing.T) (*SessionManager, *fakeRunner) {
	t.Helper()
	cfg := config.PlaybackConfig{
		TranscodeBitrateKbps: 192,
		SessionIdleTimeout:   2 * time.Minute,
	}
	runner := &fakeRunner{}
	m := NewSessionManager(cfg, runner, hclog.NewNullLogger())
	t.Cleanup(m.Shutdown)
	return m, runner
}

func newInput() *countingCloser {
	return &countingCloser{Reader: strings.NewReader("raw file bytes")}
}

func TestSeekSupersedesExistingSession(t *testing.T) {
	m, runner := newTestSessionManager(t)
	ctx := context.Background()

	firstInput := newInput()
	first, err := m.Start(ctx, "client-1", "entry-1", firstInput, 30)
	require.NoError(t, err)

	second, err := m.Start(ctx, "client-1", "entry-1", newInput(), 90)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// The seek killed the first process and released its input.
	assert.True(t, runner.started[0].isStopped())
	assert.Equal(t, 1, firstInput.closeCount())
	assert.False(t, runner.started[1].isStopped())
	assert.Equal(t, 90, runner.specs[1].StartTime)

	active := m.Active()
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
	assert.Equal(t, 90, active[0].StartTime)
}

func TestSessionsForDifferentEntriesCoexist(t *testing.T) {
	m, runner := newTestSessionManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "client-1", "entry-1", newInput(), 0)
	require.NoError(t, err)
	_, err = m.Start(ctx, "client-1", "entry-2", newInput(), 0)
	require.NoError(t, err)

	assert.Len(t, m.Active(), 2)
	assert.False(t, runner.started[0].isStopped())
	assert.False(t, runner.started[1].isStopped())
}

func TestEndStopsProcessAndReleasesInput(t *testing.T) {
	m, runner := newTestSessionManager(t)

	input := newInput()
	session, err := m.Start(context.Background(), "client-1", "entry-1", input, 0)
	require.NoError(t, err)

	m.End(session)
	assert.True(t, runner.started[0].isStopped())
	assert.Equal(t, 1, input.closeCount())
	assert.Empty(t, m.Active())

	// Ending a session that was already replaced or ended is a no-op.
	m.End(session)
	assert.Equal(t, 1, input.closeCount())
}

func TestEndOfSupersededSessionDoesNotKillReplacement(t *testing.T) {
	m, runner := newTestSessionManager(t)
	ctx := context.Background()

	first, err := m.Start(ctx, "client-1", "entry-1", newInput(), 0)
	require.NoError(t, err)
	second, err := m.Start(ctx, "client-1", "entry-1", newInput(), 60)
	require.NoError(t, err)

	// The handler of the first request unwinds after being superseded.
	m.End(first)

	assert.False(t, runner.started[1].isStopped())
	active := m.Active()
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
}

func TestIdleSessionsAreReaped(t *testing.T) {
	m, runner := newTestSessionManager(t)

	now := time.Now()
	m.now = func() time.Time { return now }

	_, err := m.Start(context.Background(), "client-1", "entry-1", newInput(), 0)
	require.NoError(t, err)

	// Still fresh, nothing to reap.
	assert.Zero(t, m.ReapIdle())

	now = now.Add(3 * time.Minute)
	assert.Equal(t, 1, m.ReapIdle())
	assert.True(t, runner.started[0].isStopped())
	assert.Empty(t, m.Active())
}

func TestReadingKeepsSessionAlive(t *testing.T) {
	m, _ := newTestSessionManager(t)

	now := time.Now()
	m.now = func() time.Time { return now }

	session, err := m.Start(context.Background(), "client-1", "entry-1", newInput(), 0)
	require.NoError(t, err)

	reader := m.Reader(session)
	now = now.Add(90 * time.Second)

	buf := make([]byte, 8)
	_, readErr := reader.Read(buf)
	require.NoError(t, readErr)

	// The read refreshed the idle deadline.
	now = now.Add(90 * time.Second)
	assert.Zero(t, m.ReapIdle())
}
