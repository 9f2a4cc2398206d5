// Package media composes generated clips into the final short: intro card,
// captions, background music and the single ffmpeg render.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Runner executes external media tools. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs ffmpeg/ffprobe from PATH.
type ExecRunner struct {
	logger *zap.Logger
}

func NewExecRunner(logger *zap.Logger) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{logger: logger}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	r.logger.Debug("exec", zap.String("cmd", name), zap.Strings("args", args))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, tail(stderr.String(), 2000))
	}
	return nil
}

func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, tail(stderr.String(), 2000))
	}
	return out, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// MediaInfo is what the compositor needs to know about a media file.
type MediaInfo struct {
	Width    int
	Height   int
	FPS      float64
	Duration float64 // seconds
	HasVideo bool
	HasAudio bool
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns dimensions, frame rate and duration using ffprobe.
func Probe(ctx context.Context, runner Runner, path string) (MediaInfo, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type,width,height,r_frame_rate,avg_frame_rate,duration",
		"-of", "json",
		path,
	}

	out, err := runner.Output(ctx, "ffprobe", args...)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (MediaInfo, error) {
	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return MediaInfo{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	var info MediaInfo
	var streamDuration float64
	for _, st := range probe.Streams {
		switch st.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.Width = st.Width
			info.Height = st.Height
			info.FPS = parseRate(st.RFrameRate)
			if info.FPS == 0 {
				info.FPS = parseRate(st.AvgFrameRate)
			}
			streamDuration, _ = strconv.ParseFloat(st.Duration, 64)
		case "audio":
			info.HasAudio = true
			if streamDuration == 0 {
				streamDuration, _ = strconv.ParseFloat(st.Duration, 64)
			}
		}
	}

	if d, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64); err == nil {
		info.Duration = d
	} else {
		info.Duration = streamDuration
	}
	if info.Duration <= 0 {
		return info, fmt.Errorf("ffprobe reported no duration")
	}
	return info, nil
}

// parseRate turns "30000/1001" or "24" into frames per second.
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(rate), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// ExtractFrame writes the first frame of a video as a PNG.
func ExtractFrame(ctx context.Context, runner Runner, videoPath, outputPath string) error {
	args := []string{
		"-i", videoPath,
		"-frames:v", "1",
		"-y",
		outputPath,
	}
	if err := runner.Run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("ffmpeg extract frame failed: %w", err)
	}
	return nil
}
