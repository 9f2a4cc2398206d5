package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/shy020501/Video-Automation/internal/dataset"
	"github.com/shy020501/Video-Automation/internal/media"
	"github.com/shy020501/Video-Automation/internal/models"
	"github.com/shy020501/Video-Automation/internal/naming"
	"github.com/shy020501/Video-Automation/internal/services"
	"github.com/shy020501/Video-Automation/internal/storage"
)

type ImageGenerator interface {
	GenerateImage(ctx context.Context, job, animal string) ([]byte, error)
}

type VideoGenerator interface {
	GenerateVideo(ctx context.Context, job, animal, imagePath string) ([]byte, error)
}

type MusicGenerator interface {
	GenerateBGM(ctx context.Context, job string, targetSeconds float64) ([]byte, error)
}

type Uploader interface {
	Upload(ctx context.Context, path string, meta services.UploadMetadata) (string, error)
}

type Archiver interface {
	UploadFile(ctx context.Context, storagePath, localPath, contentType string) error
	GetPublicURL(storagePath string) string
}

type Notifier interface {
	NotifyCrash(ctx context.Context, runErr error, runContext map[string]string) error
}

// Composer is the media backend: probing, text overlays and the final render.
type Composer interface {
	LoadClip(ctx context.Context, path string) (media.Clip, error)
	LoadAudio(ctx context.Context, path string) (media.AudioClip, error)
	MakeIntro(ctx context.Context, first media.Clip, job string, seconds float64, workDir string) (media.Clip, error)
	OverlayTopCaption(clip media.Clip, text, workDir string) (media.Clip, error)
	Render(ctx context.Context, t media.Timeline, outputPath string, opts media.RenderOptions) error
}

type PipelineConfig struct {
	DatasetPath   string
	OutputDir     string
	IntroSeconds  float64
	Render        media.RenderOptions
	CategoryID    string
	PrivacyStatus string
}

// Deps are the pipeline's collaborators. Only the ones needed by the
// enabled stages must be set.
type Deps struct {
	Dataset  dataset.Generator
	Images   ImageGenerator
	Videos   VideoGenerator
	Music    MusicGenerator
	Uploader Uploader
	Archive  Archiver
	Composer Composer
	Notifier Notifier
	Rand     *rand.Rand
	Logger   *zap.Logger
}

type Request struct {
	Job    string // empty picks a random unused job
	Stages models.Stages
}

type Result struct {
	Job        string
	Animals    []string
	Images     []string
	Videos     []string
	BGMPath    string
	FinalPath  string
	VideoID    string
	ArchiveURL string
}

// Pipeline is the single staged run: select a job, generate per-animal media,
// compose, add music, render, then publish.
type Pipeline struct {
	cfg    PipelineConfig
	deps   Deps
	logger *zap.Logger
}

func NewPipeline(cfg PipelineConfig, deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IntroSeconds <= 0 {
		cfg.IntroSeconds = 1.5
	}
	return &Pipeline{cfg: cfg, deps: deps, logger: logger}
}

// Run executes the enabled stages. Any failure aborts the run and is reported
// to the notifier when one is configured.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Stages == nil {
		req.Stages = models.DefaultStages()
	}
	res := &Result{Job: req.Job}
	err := p.run(ctx, req, res)
	if err != nil && p.deps.Notifier != nil {
		runContext := map[string]string{
			"job":     res.Job,
			"stages":  req.Stages.String(),
			"dataset": p.cfg.DatasetPath,
		}
		if nerr := p.deps.Notifier.NotifyCrash(ctx, err, runContext); nerr != nil {
			p.logger.Warn("crash notification failed", zap.Error(nerr))
		}
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, req Request, res *Result) error {
	if err := p.checkDeps(req.Stages); err != nil {
		return err
	}

	lock, err := dataset.AcquireLock(p.cfg.DatasetPath)
	if err != nil {
		return err
	}
	defer lock.Release()

	store, err := dataset.Load(p.cfg.DatasetPath, p.logger)
	if err != nil {
		return err
	}

	if len(store.UnusedPairs()) == 0 {
		p.logger.Info("no unused jobs left, asking for more", zap.Int("existing", store.Len()))
		added, err := store.Replenish(ctx, p.deps.Dataset)
		if err != nil {
			return err
		}
		if added == 0 {
			return fmt.Errorf("%w: dataset generator returned no new jobs", models.ErrNotFound)
		}
	}

	pair, err := store.Select(req.Job, p.deps.Rand)
	if err != nil {
		return err
	}
	res.Job = pair.Job
	res.Animals = pair.Animals
	log := p.logger.With(zap.String("job", pair.Job))
	log.Info("selected job", zap.Strings("animals", pair.Animals), zap.String("stages", req.Stages.String()))

	if err := p.generateMedia(ctx, pair, res, log); err != nil {
		return err
	}
	if !req.Stages.Has(models.StageCompose) {
		log.Info("media ready, composition disabled")
		return nil
	}

	timeline, err := p.compose(ctx, pair, res)
	if err != nil {
		return err
	}

	if req.Stages.Has(models.StageMusic) {
		if timeline, err = p.addMusic(ctx, pair.Job, timeline, res, log); err != nil {
			return err
		}
	}

	final, err := naming.FinalPath(p.cfg.OutputDir, pair.Job)
	if err != nil {
		return err
	}
	log.Info("rendering", zap.String("path", final), zap.Float64("seconds", timeline.Duration()))
	if err := p.deps.Composer.Render(ctx, timeline, final, p.cfg.Render); err != nil {
		return fmt.Errorf("render %s: %w", final, err)
	}
	res.FinalPath = final

	if req.Stages.Has(models.StageUpload) {
		id, err := p.deps.Uploader.Upload(ctx, final, p.uploadMetadata(pair))
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		res.VideoID = id
		log.Info("uploaded", zap.String("video_id", id))
	}

	if req.Stages.Has(models.StageArchive) {
		key := storage.ArchivePath(pair.Job, final)
		if err := p.deps.Archive.UploadFile(ctx, key, final, "video/mp4"); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		res.ArchiveURL = p.deps.Archive.GetPublicURL(key)
	}

	// Only a run that got through every enabled stage consumes the job; a
	// failed upload or archive is retried by rerunning the same job.
	if err := store.MarkUsed(pair.Job); err != nil {
		return err
	}

	log.Info("run complete", zap.String("final", final))
	return nil
}

func (p *Pipeline) checkDeps(stages models.Stages) error {
	var missing []string
	need := func(ok bool, name string) {
		if !ok {
			missing = append(missing, name)
		}
	}
	need(p.deps.Dataset != nil, "dataset generator")
	need(p.deps.Images != nil, "image generator")
	need(p.deps.Videos != nil, "video generator")
	if stages.Has(models.StageCompose) {
		need(p.deps.Composer != nil, "composer")
	}
	if stages.Has(models.StageMusic) {
		need(p.deps.Music != nil, "music generator")
	}
	if stages.Has(models.StageUpload) {
		need(p.deps.Uploader != nil, "uploader")
	}
	if stages.Has(models.StageArchive) {
		need(p.deps.Archive != nil, "archive storage")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: pipeline missing %s", models.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// generateMedia creates the still then the clip for each animal in order.
// Files already on disk are reused.
func (p *Pipeline) generateMedia(ctx context.Context, pair models.JobPair, res *Result, log *zap.Logger) error {
	for _, animal := range pair.Animals {
		imagePath, err := naming.AssetPath(p.cfg.OutputDir, pair.Job, animal, models.MediaKindImage.Extension())
		if err != nil {
			return err
		}
		if fileExists(imagePath) {
			log.Debug("image exists, skipping", zap.String("path", imagePath))
		} else {
			log.Info("generating image", zap.String("animal", animal))
			data, err := p.deps.Images.GenerateImage(ctx, pair.Job, animal)
			if err != nil {
				return fmt.Errorf("generate image for %s: %w", animal, err)
			}
			if err := writeAsset(imagePath, data); err != nil {
				return err
			}
		}
		res.Images = append(res.Images, imagePath)

		videoPath, err := naming.AssetPath(p.cfg.OutputDir, pair.Job, animal, models.MediaKindVideo.Extension())
		if err != nil {
			return err
		}
		if fileExists(videoPath) {
			log.Debug("video exists, skipping", zap.String("path", videoPath))
		} else {
			log.Info("generating video", zap.String("animal", animal))
			data, err := p.deps.Videos.GenerateVideo(ctx, pair.Job, animal, imagePath)
			if err != nil {
				return fmt.Errorf("generate video for %s: %w", animal, err)
			}
			if err := writeAsset(videoPath, data); err != nil {
				return err
			}
		}
		res.Videos = append(res.Videos, videoPath)
	}
	return nil
}

// compose builds intro + captioned clips. The intro uses the first clip's
// first frame before any caption is applied.
func (p *Pipeline) compose(ctx context.Context, pair models.JobPair, res *Result) (media.Timeline, error) {
	if len(res.Videos) == 0 {
		return media.Timeline{}, fmt.Errorf("%w: job %q has no animals", models.ErrNotFound, pair.Job)
	}
	workDir, err := naming.WorkDir(p.cfg.OutputDir, pair.Job)
	if err != nil {
		return media.Timeline{}, err
	}

	clips := make([]media.Clip, 0, len(res.Videos))
	for _, path := range res.Videos {
		clip, err := p.deps.Composer.LoadClip(ctx, path)
		if err != nil {
			return media.Timeline{}, fmt.Errorf("load clip %s: %w", path, err)
		}
		clips = append(clips, clip)
	}

	intro, err := p.deps.Composer.MakeIntro(ctx, clips[0], pair.Job, p.cfg.IntroSeconds, workDir)
	if err != nil {
		return media.Timeline{}, fmt.Errorf("intro: %w", err)
	}

	for i := range clips {
		caption := fmt.Sprintf("%d. %s", i+1, naming.Capitalize(pair.Animals[i]))
		if clips[i], err = p.deps.Composer.OverlayTopCaption(clips[i], caption, workDir); err != nil {
			return media.Timeline{}, fmt.Errorf("caption %q: %w", caption, err)
		}
	}

	return media.Assemble(intro, clips...), nil
}

// addMusic generates the track once per job, then loops or trims it to the
// timeline length.
func (p *Pipeline) addMusic(ctx context.Context, job string, t media.Timeline, res *Result, log *zap.Logger) (media.Timeline, error) {
	bgmPath, err := naming.BGMPath(p.cfg.OutputDir, job)
	if err != nil {
		return t, err
	}
	target := t.Duration()

	if fileExists(bgmPath) {
		log.Debug("bgm exists, skipping", zap.String("path", bgmPath))
	} else {
		log.Info("generating bgm", zap.Float64("seconds", math.Ceil(target)))
		data, err := p.deps.Music.GenerateBGM(ctx, job, target)
		if err != nil {
			return t, fmt.Errorf("generate bgm: %w", err)
		}
		if err := writeAsset(bgmPath, data); err != nil {
			return t, err
		}
	}
	res.BGMPath = bgmPath

	audio, err := p.deps.Composer.LoadAudio(ctx, bgmPath)
	if err != nil {
		return t, err
	}
	fitted := media.Fit(audio, target)
	log.Debug("fitted bgm", zap.Float64("source", audio.Duration), zap.Float64("target", target), zap.Int("parts", len(fitted.Parts())))
	return media.AttachAudio(t, fitted)
}

func (p *Pipeline) uploadMetadata(pair models.JobPair) services.UploadMetadata {
	job := naming.Capitalize(pair.Job)
	lines := make([]string, 0, len(pair.Animals)+2)
	for i, animal := range pair.Animals {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, naming.Capitalize(animal)))
	}
	lines = append(lines, "", "#shorts #animals #ai")

	tags := []string{"shorts", "animals", "ai", pair.Job}
	tags = append(tags, pair.Animals...)

	return services.UploadMetadata{
		Title:         fmt.Sprintf("What if animals were a %s? #shorts", job),
		Description:   strings.Join(lines, "\n"),
		Tags:          tags,
		CategoryID:    p.cfg.CategoryID,
		PrivacyStatus: p.cfg.PrivacyStatus,
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// writeAsset writes through a temp file so an interrupted run never leaves a
// partial asset that the next run would skip.
func writeAsset(path string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload for %s", models.ErrExternalService, filepath.Base(path))
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Join(fmt.Errorf("rename %s: %w", tmp, err), os.Remove(tmp))
	}
	return nil
}
