package media

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/shy020501/Video-Automation/internal/naming"
)

const (
	introBlurSigma = 12.0
	introLine1     = "What if ____ was a"
)

// Clip is one segment of the timeline. Still clips are a single image held
// for Duration; Overlay, when set, is a frame-sized transparent PNG drawn on
// every frame at render time.
type Clip struct {
	Path     string
	Still    bool
	Width    int
	Height   int
	FPS      float64
	Duration float64
	Overlay  string
}

// TextLine is one positioned line of text. X/Y are the top-left of the
// text's bounding box, Shadow the drop shadow offset in pixels.
type TextLine struct {
	Text   string
	Size   float64
	X      int
	Y      int
	Shadow int
}

// measureFunc returns the bounding box width/height of text at size.
type measureFunc func(text string, size float64) (int, int)

// IntroLayout positions the two intro lines on a W×H frame.
func IntroLayout(width, height int, job string, measure measureFunc) [2]TextLine {
	mainSize := float64(max(48, width/13))
	jobSize := float64(max(96, width/10))
	line2 := `"` + naming.Capitalize(job) + `"`

	w1, h1 := measure(introLine1, mainSize)
	w2, h2 := measure(line2, jobSize)

	y1 := int(float64(height) * 0.18)
	y2 := y1 + h1 + int(float64(h2)*0.3)

	return [2]TextLine{
		{Text: introLine1, Size: mainSize, X: (width - w1) / 2, Y: y1, Shadow: max(2, int(mainSize)/18)},
		{Text: line2, Size: jobSize, X: (width - w2) / 2, Y: y2, Shadow: max(2, int(jobSize)/18)},
	}
}

// CaptionLayout positions a single caption line near the top of a W×H frame.
func CaptionLayout(width, height int, text string, measure measureFunc) TextLine {
	size := float64(max(54, width/12))
	w, _ := measure(text, size)
	return TextLine{
		Text:   text,
		Size:   size,
		X:      (width - w) / 2,
		Y:      int(float64(height) * 0.035),
		Shadow: max(2, int(size)/14),
	}
}

// Compositor renders intro cards, caption overlays and the final timeline.
type Compositor struct {
	runner   Runner
	fontPath string
	logger   *zap.Logger

	fontOnce sync.Once
	font     *truetype.Font
	fontErr  error
}

func NewCompositor(runner Runner, fontPath string, logger *zap.Logger) *Compositor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compositor{runner: runner, fontPath: fontPath, logger: logger}
}

// LoadClip probes a generated video and wraps it as a timeline segment.
func (c *Compositor) LoadClip(ctx context.Context, path string) (Clip, error) {
	info, err := Probe(ctx, c.runner, path)
	if err != nil {
		return Clip{}, err
	}
	if !info.HasVideo || info.Width == 0 || info.Height == 0 {
		return Clip{}, fmt.Errorf("%s has no video stream", path)
	}
	return Clip{
		Path:     path,
		Width:    info.Width,
		Height:   info.Height,
		FPS:      info.FPS,
		Duration: info.Duration,
	}, nil
}

// LoadAudio probes an audio file. A duration that cannot be determined
// leaves the clip with Known=false.
func (c *Compositor) LoadAudio(ctx context.Context, path string) (AudioClip, error) {
	if _, err := os.Stat(path); err != nil {
		return AudioClip{}, fmt.Errorf("audio file not found: %w", err)
	}
	info, err := Probe(ctx, c.runner, path)
	if err != nil {
		c.logger.Warn("could not probe audio duration", zap.String("path", path), zap.Error(err))
		return AudioClip{Source: path}, nil
	}
	return NewAudioClip(path, info.Duration), nil
}

// MakeIntro builds the title card: the first frame of first, blurred, with
// "What if ____ was a" over the quoted job name. The card is held for seconds
// at the source clip's frame rate.
func (c *Compositor) MakeIntro(ctx context.Context, first Clip, job string, seconds float64, workDir string) (Clip, error) {
	framePath := filepath.Join(workDir, naming.Slug(job)+"_frame0.png")
	if err := ExtractFrame(ctx, c.runner, first.Path, framePath); err != nil {
		return Clip{}, err
	}

	frame, err := imaging.Open(framePath)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to open first frame: %w", err)
	}
	blurred := imaging.Blur(frame, introBlurSigma)

	bounds := blurred.Bounds()
	dc := gg.NewContextForImage(blurred)
	lines := IntroLayout(bounds.Dx(), bounds.Dy(), job, c.measure)
	for _, line := range lines {
		if err := c.drawLine(dc, line); err != nil {
			return Clip{}, err
		}
	}

	introPath := filepath.Join(workDir, naming.Slug(job)+"_intro.png")
	if err := dc.SavePNG(introPath); err != nil {
		return Clip{}, fmt.Errorf("failed to save intro card: %w", err)
	}

	c.logger.Info("intro card rendered", zap.String("path", introPath), zap.Float64("seconds", seconds))
	return Clip{
		Path:     introPath,
		Still:    true,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		FPS:      first.FPS,
		Duration: seconds,
	}, nil
}

// OverlayTopCaption attaches a caption drawn near the top of every frame of clip.
// Pixels outside the caption are left untouched.
func (c *Compositor) OverlayTopCaption(clip Clip, text, workDir string) (Clip, error) {
	dc := gg.NewContext(clip.Width, clip.Height)
	line := CaptionLayout(clip.Width, clip.Height, text, c.measure)
	if err := c.drawLine(dc, line); err != nil {
		return Clip{}, err
	}

	base := filepath.Base(clip.Path)
	overlayPath := filepath.Join(workDir, base[:len(base)-len(filepath.Ext(base))]+"_caption.png")
	if err := dc.SavePNG(overlayPath); err != nil {
		return Clip{}, fmt.Errorf("failed to save caption overlay: %w", err)
	}

	out := clip
	out.Overlay = overlayPath
	return out, nil
}

func (c *Compositor) drawLine(dc *gg.Context, line TextLine) error {
	face, err := c.face(line.Size)
	if err != nil {
		return err
	}
	dc.SetFontFace(face)

	// gg draws from the baseline; the layout is in bounding-box coordinates
	b, _ := font.BoundString(face, line.Text)
	ox := float64(line.X) - float64(b.Min.X.Floor())
	oy := float64(line.Y) - float64(b.Min.Y.Floor())

	dc.SetColor(color.Black)
	dc.DrawString(line.Text, ox+float64(line.Shadow), oy+float64(line.Shadow))
	dc.SetColor(color.White)
	dc.DrawString(line.Text, ox, oy)
	return nil
}

func (c *Compositor) measure(text string, size float64) (int, int) {
	face, err := c.face(size)
	if err != nil {
		return 0, 0
	}
	b, _ := font.BoundString(face, text)
	return (b.Max.X - b.Min.X).Ceil(), (b.Max.Y - b.Min.Y).Ceil()
}

func (c *Compositor) face(size float64) (font.Face, error) {
	c.fontOnce.Do(func() {
		c.font, c.fontErr = loadFont(c.fontPath, c.logger)
	})
	if c.fontErr != nil {
		return nil, c.fontErr
	}
	return truetype.NewFace(c.font, &truetype.Options{Size: size}), nil
}

// loadFont parses the TTF at path, falling back to Go Regular when the file
// is missing or unreadable.
func loadFont(path string, logger *zap.Logger) (*truetype.Font, error) {
	if data, err := os.ReadFile(path); err == nil {
		f, err := truetype.Parse(data)
		if err == nil {
			return f, nil
		}
		logger.Warn("font could not be parsed, using Go Regular", zap.String("path", path), zap.Error(err))
	} else if path != "" {
		logger.Warn("font not found, using Go Regular", zap.String("path", path))
	}

	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fallback font: %w", err)
	}
	return f, nil
}
