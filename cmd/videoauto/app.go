package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shy020501/Video-Automation/internal/config"
	"github.com/shy020501/Video-Automation/internal/db"
	"github.com/shy020501/Video-Automation/internal/media"
	"github.com/shy020501/Video-Automation/internal/services"
	"github.com/shy020501/Video-Automation/internal/storage"
	"github.com/shy020501/Video-Automation/internal/worker"
)

// buildPipeline wires the configured providers into a pipeline.
func buildPipeline(cfg *config.Config, logger *zap.Logger) *worker.Pipeline {
	deps := worker.Deps{
		Dataset:  services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIModel, logger.Named("openai")),
		Music:    services.NewSunoService(cfg.SunoKey, cfg.SunoBaseURL, services.SunoPollPolicy, logger.Named("suno")),
		Uploader: newYouTube(cfg, logger),
		Composer: media.NewCompositor(media.NewExecRunner(logger.Named("ffmpeg")), cfg.FontPath, logger.Named("compose")),
		Logger:   logger.Named("pipeline"),
	}

	replicate := services.NewReplicateService(services.ReplicateConfig{
		Token:      cfg.ReplicateToken,
		BaseURL:    cfg.ReplicateBaseURL,
		ImageModel: cfg.ImageModel,
		VideoModel: cfg.VideoModel,
	}, logger.Named("replicate"))

	switch cfg.ImageProvider {
	case "gemini":
		deps.Images = services.NewGeminiService(cfg.GeminiKey, cfg.GeminiModel, "", logger.Named("gemini"))
	default:
		deps.Images = replicate
	}
	switch cfg.VideoProvider {
	case "veo":
		deps.Videos = services.NewVeoService(cfg.GeminiKey, cfg.VeoModel, "", logger.Named("veo"))
	default:
		deps.Videos = replicate
	}

	if cfg.SupabaseURL != "" {
		deps.Archive = storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket, logger.Named("storage"))
	}
	if cfg.Notify.Enabled() {
		deps.Notifier = services.NewNotifier(services.SMTPConfig{
			Host:        cfg.Notify.SMTPHost,
			Port:        cfg.Notify.SMTPPort,
			From:        cfg.Notify.From,
			To:          cfg.Notify.To,
			AppPassword: cfg.Notify.AppPassword,
		}, logger.Named("notify"))
	}

	return worker.NewPipeline(worker.PipelineConfig{
		DatasetPath:  cfg.DatasetPath(),
		OutputDir:    cfg.OutputDir,
		IntroSeconds: cfg.IntroSeconds,
		Render: media.RenderOptions{
			Codec:      cfg.Render.Codec,
			AudioCodec: cfg.Render.AudioCodec,
			FPS:        cfg.Render.FPS,
			Preset:     cfg.Render.Preset,
			Threads:    cfg.Render.Threads,
		},
		CategoryID:    cfg.YouTube.CategoryID,
		PrivacyStatus: cfg.YouTube.PrivacyStatus,
	}, deps)
}

func newYouTube(cfg *config.Config, logger *zap.Logger) *services.YouTubeService {
	return services.NewYouTubeService(services.YouTubeConfig{
		ClientSecretsPath: cfg.YouTube.ClientSecretsPath,
		TokenPath:         cfg.YouTube.TokenPath,
	}, logger.Named("youtube"))
}

// openLedger connects to Postgres when DATABASE_URL is set. A nil DB means
// runs are not recorded.
func openLedger(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("prepare run ledger: %w", err)
	}
	return database, nil
}
