package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// audioTolerance is how far (seconds) the music may differ from the picture.
const audioTolerance = 1e-3

// Timeline is the ordered list of segments plus at most one audio track.
// The canvas is the largest segment size; smaller segments are centered.
type Timeline struct {
	Segments []Clip
	Width    int
	Height   int
	Audio    *AudioClip
}

// Assemble concatenates intro and clips in order.
func Assemble(intro Clip, clips ...Clip) Timeline {
	segments := append([]Clip{intro}, clips...)
	t := Timeline{Segments: segments}
	for _, s := range segments {
		t.Width = max(t.Width, s.Width)
		t.Height = max(t.Height, s.Height)
	}
	return t
}

// Duration is the sum of segment durations.
func (t Timeline) Duration() float64 {
	var total float64
	for _, s := range t.Segments {
		total += s.Duration
	}
	return total
}

// AttachAudio sets the timeline's audio track. The audio must already match
// the timeline duration.
func AttachAudio(t Timeline, audio AudioClip) (Timeline, error) {
	if !audio.Known {
		return t, errors.New("audio duration is unknown")
	}
	if diff := math.Abs(audio.Duration - t.Duration()); diff > audioTolerance {
		return t, fmt.Errorf("audio duration %.3fs does not match timeline duration %.3fs", audio.Duration, t.Duration())
	}
	out := t
	out.Audio = &audio
	return out, nil
}

// RenderOptions are the encoder settings for the final file.
type RenderOptions struct {
	Codec      string
	AudioCodec string
	FPS        int
	Preset     string
	Threads    int
}

// Render writes the timeline to outputPath with one ffmpeg invocation.
func (c *Compositor) Render(ctx context.Context, t Timeline, outputPath string, opts RenderOptions) error {
	args, err := BuildRenderArgs(t, outputPath, opts)
	if err != nil {
		return err
	}

	c.logger.Info("rendering timeline",
		zap.Int("segments", len(t.Segments)),
		zap.Float64("duration", t.Duration()),
		zap.Bool("audio", t.Audio != nil),
		zap.String("output", outputPath))

	if err := c.runner.Run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("ffmpeg render failed: %w", err)
	}
	return nil
}

// BuildRenderArgs builds the ffmpeg command line for a timeline.
//
// Inputs are the segments in order, then every caption overlay, then the
// audio source. The filter graph overlays captions, pads every segment to the
// canvas, normalizes frame rate, concatenates video, and trims + concatenates
// the audio windows.
func BuildRenderArgs(t Timeline, outputPath string, opts RenderOptions) ([]string, error) {
	if len(t.Segments) == 0 {
		return nil, errors.New("timeline has no segments")
	}
	if opts.FPS <= 0 {
		return nil, errors.New("render fps must be positive")
	}

	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	fps := strconv.Itoa(opts.FPS)

	for _, s := range t.Segments {
		dur := formatSeconds(s.Duration)
		if s.Still {
			args = append(args, "-loop", "1", "-framerate", fps, "-t", dur, "-i", s.Path)
		} else {
			args = append(args, "-t", dur, "-i", s.Path)
		}
	}

	input := len(t.Segments)
	overlayInput := make(map[int]int)
	for i, s := range t.Segments {
		if s.Overlay == "" {
			continue
		}
		args = append(args, "-i", s.Overlay)
		overlayInput[i] = input
		input++
	}

	audioInput := -1
	if t.Audio != nil {
		args = append(args, "-i", t.Audio.Source)
		audioInput = input
	}

	var graph []string
	var labels strings.Builder
	for i := range t.Segments {
		src := fmt.Sprintf("[%d:v]", i)
		if oi, ok := overlayInput[i]; ok {
			graph = append(graph, fmt.Sprintf("%s[%d:v]overlay=0:0[ov%d]", src, oi, i))
			src = fmt.Sprintf("[ov%d]", i)
		}
		graph = append(graph, fmt.Sprintf(
			"%spad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1,fps=%s,format=yuv420p[v%d]",
			src, t.Width, t.Height, fps, i))
		fmt.Fprintf(&labels, "[v%d]", i)
	}
	graph = append(graph, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[vout]", labels.String(), len(t.Segments)))

	if t.Audio != nil {
		graph = append(graph, audioGraph(audioInput, t.Audio.Parts())...)
	}

	args = append(args, "-filter_complex", strings.Join(graph, ";"), "-map", "[vout]")
	if t.Audio != nil {
		args = append(args, "-map", "[aout]", "-c:a", defaultString(opts.AudioCodec, "aac"), "-b:a", "192k")
	} else {
		args = append(args, "-an")
	}

	args = append(args, "-c:v", defaultString(opts.Codec, "libx264"))
	if opts.Preset != "" {
		args = append(args, "-preset", opts.Preset)
	}
	if opts.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(opts.Threads))
	}
	args = append(args, "-r", fps, "-pix_fmt", "yuv420p", "-t", formatSeconds(t.Duration()), outputPath)
	return args, nil
}

func audioGraph(input int, parts []AudioSegment) []string {
	var graph []string
	var labels strings.Builder

	src := make([]string, len(parts))
	if len(parts) == 1 {
		src[0] = fmt.Sprintf("[%d:a]", input)
	} else {
		var split strings.Builder
		for i := range parts {
			src[i] = fmt.Sprintf("[as%d]", i)
			split.WriteString(src[i])
		}
		graph = append(graph, fmt.Sprintf("[%d:a]asplit=%d%s", input, len(parts), split.String()))
	}

	for i, p := range parts {
		graph = append(graph, fmt.Sprintf("%satrim=start=%s:end=%s,asetpts=PTS-STARTPTS[a%d]",
			src[i], formatSeconds(p.Start), formatSeconds(p.End), i))
		fmt.Fprintf(&labels, "[a%d]", i)
	}
	graph = append(graph, fmt.Sprintf("%sconcat=n=%d:v=0:a=1[aout]", labels.String(), len(parts)))
	return graph
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 6, 64)
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
