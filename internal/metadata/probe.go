package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeResult carries the stream properties ffprobe reported for one file.
// Zero values mean the property was not reported.
type ProbeResult struct {
	DurationSeconds int
	BitrateKbps     int
}

// Prober inspects audio content for duration and bitrate.
type Prober interface {
	Probe(ctx context.Context, r io.Reader) (ProbeResult, error)
}

// FFprobeProber shells out to ffprobe, feeding the content over stdin so
// remote files never touch the local filesystem.
type FFprobeProber struct {
	binary string
}

// NewFFprobeProber creates a prober using the given ffprobe binary, or the
// one on PATH when empty.
func NewFFprobeProber(binary string) *FFprobeProber {
	if binary == "" {
		binary = "ffprobe"
	}
	return &FFprobeProber{binary: binary}
}

// Probe runs ffprobe over the content. Containers that need seeking to reach
// their index (some m4a layouts) fail on a pipe; callers treat any error as
// "properties unknown".
func (p *FFprobeProber) Probe(ctx context.Context, r io.Reader) (ProbeResult, error) {
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-show_entries", "format=duration,bit_rate",
		"-of", "json",
		"pipe:0",
	)
	cmd.Stdin = r

	out, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && len(ee.Stderr) > 0 {
			return ProbeResult{}, fmt.Errorf("metadata: ffprobe: %w: %s", err, strings.TrimSpace(string(ee.Stderr)))
		}
		return ProbeResult{}, fmt.Errorf("metadata: ffprobe: %w", err)
	}
	return parseProbeOutput(out)
}

func parseProbeOutput(out []byte) (ProbeResult, error) {
	var doc struct {
		Format struct {
			Duration string `json:"duration"`
			BitRate  string `json:"bit_rate"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &doc); err != nil {
		return ProbeResult{}, fmt.Errorf("metadata: parsing ffprobe output: %w", err)
	}

	var res ProbeResult
	if v, err := strconv.ParseFloat(strings.TrimSpace(doc.Format.Duration), 64); err == nil && v > 0 {
		res.DurationSeconds = int(math.Round(v))
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(doc.Format.BitRate), 64); err == nil && v > 0 {
		res.BitrateKbps = int(math.Round(v / 1000))
	}
	return res, nil
}
