// Package core implements playback delivery: direct range streaming and
// restart-on-seek transcoding with ffmpeg.
package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
)

// TranscodeSpec describes one transcode run. Input is streamed to ffmpeg's
// stdin; seeking is expressed as a start offset and handled by restarting
// the process, never by seeking a live one.
type TranscodeSpec struct {
	Input       io.Reader
	StartTime   int // seconds into the track
	BitrateKbps int
}

// Process is a running transcode.
type Process interface {
	// Output is the encoded stream.
	Output() io.Reader
	// Stop terminates the process, escalating if it does not exit.
	Stop()
	// Done is closed when the process has exited.
	Done() <-chan struct{}
	// Err reports the exit error after Done is closed.
	Err() error
}

// Runner starts transcode processes. The production runner execs ffmpeg;
// tests substitute a fake.
type Runner interface {
	Start(ctx context.Context, spec TranscodeSpec) (Process, error)
}

// FFmpegRunner runs the system ffmpeg binary.
type FFmpegRunner struct {
	path string
	log  hclog.Logger
}

// NewFFmpegRunner creates a runner for the given ffmpeg binary path.
func NewFFmpegRunner(path string, log hclog.Logger) *FFmpegRunner {
	return &FFmpegRunner{path: path, log: log.Named("ffmpeg")}
}

// Start launches ffmpeg decoding from stdin and writing mp3 to stdout. The
// context kills the process when canceled.
func (r *FFmpegRunner) Start(ctx context.Context, spec TranscodeSpec) (Process, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if spec.StartTime > 0 {
		args = append(args, "-ss", strconv.Itoa(spec.StartTime))
	}
	args = append(args,
		"-i", "pipe:0",
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", spec.BitrateKbps),
		"-f", "mp3",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, r.path, args...)
	cmd.Stdin = spec.Input
	// Own process group so Stop can signal ffmpeg and any children together;
	// Pdeathsig covers us dying without cleanup.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("playback: creating stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("playback: starting ffmpeg: %w", err)
	}

	p := &ffmpegProcess{
		cmd:    cmd,
		stdout: stdout,
		stderr: &stderr,
		done:   make(chan struct{}),
		log:    r.log,
	}
	go p.monitor()

	r.log.Debug("ffmpeg started", "pid", cmd.Process.Pid, "start_time", spec.StartTime)
	return p, nil
}

type ffmpegProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	done   chan struct{}
	err    error
	log    hclog.Logger
}

func (p *ffmpegProcess) Output() io.Reader {
	return p.stdout
}

func (p *ffmpegProcess) Done() <-chan struct{} {
	return p.done
}

func (p *ffmpegProcess) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Stop asks the process group to terminate, escalating to SIGKILL if it
// ignores the request.
func (p *ffmpegProcess) Stop() {
	pid := p.cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		_ = p.cmd.Process.Kill()
	}

	select {
	case <-p.done:
		return
	case <-time.After(3 * time.Second):
	}

	p.log.Warn("ffmpeg ignored SIGTERM, killing", "pid", pid)
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	<-p.done
}

func (p *ffmpegProcess) monitor() {
	err := p.cmd.Wait()
	if err != nil && p.stderr.Len() > 0 {
		err = fmt.Errorf("%w: %s", err, p.stderr.String())
	}
	p.err = err
	close(p.done)

	if err != nil {
		p.log.Debug("ffmpeg exited", "pid", p.cmd.Process.Pid, "error", err)
	}
}
