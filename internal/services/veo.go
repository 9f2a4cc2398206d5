package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/shy020501/Video-Automation/internal/models"
)

// ---------------------------------------------------------------------------
// Veo image-to-video, the alternative to Replicate's seedance.
// The still is passed as the first frame; the motion prompt drives the clip.
// ---------------------------------------------------------------------------

const (
	defaultVeoModel   = "veo-3.1-generate-preview"
	veoClipSeconds    = 4
	veoAspectRatio    = "9:16"
	veoResolution     = "720p"
	veoPollInterval   = 10 * time.Second
	veoMaxPollAttempt = 30 // 5 minutes
)

type VeoService struct {
	apiKey  string
	model   string
	baseURL string // empty uses the SDK default endpoint
	poll    RetryPolicy
	logger  *zap.Logger
}

// NewVeoService creates a Veo client. The Gemini API key works for both.
func NewVeoService(apiKey, model, baseURL string, logger *zap.Logger) *VeoService {
	if model == "" {
		model = defaultVeoModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VeoService{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		poll:    RetryPolicy{MaxAttempts: veoMaxPollAttempt, Interval: veoPollInterval},
		logger:  logger,
	}
}

// GenerateVideo animates the still at imagePath into a 4 second portrait clip.
func (s *VeoService) GenerateVideo(ctx context.Context, job, animal, imagePath string) ([]byte, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read source image: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      s.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: s.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create genai client: %v", models.ErrConfiguration, err)
	}

	firstFrame := &genai.Image{
		ImageBytes: imageData,
		MIMEType:   http.DetectContentType(imageData),
	}

	duration := int32(veoClipSeconds)
	config := &genai.GenerateVideosConfig{
		AspectRatio:      veoAspectRatio,
		Resolution:       veoResolution,
		DurationSeconds:  &duration,
		PersonGeneration: "allow_adult",
		NumberOfVideos:   1,
	}

	s.logger.Info("creating video", zap.String("model", s.model), zap.String("animal", animal), zap.Int("image_bytes", len(imageData)))

	operation, err := client.Models.GenerateVideos(ctx, s.model, VideoPrompt(job, animal), firstFrame, config)
	if err != nil {
		return nil, models.ExternalError("veo", err)
	}

	if !operation.Done {
		err = s.poll.Poll(ctx, "veo operation "+operation.Name, func(attempt int) (bool, error) {
			next, err := client.Operations.GetVideosOperation(ctx, operation, nil)
			if err != nil {
				return false, models.ExternalError("veo", fmt.Errorf("poll attempt %d: %w", attempt, err))
			}
			operation = next
			s.logger.Debug("veo poll", zap.Int("attempt", attempt), zap.Bool("done", operation.Done))
			return operation.Done, nil
		})
		if err != nil {
			return nil, err
		}
	}

	if len(operation.Error) > 0 {
		errJSON, _ := json.Marshal(operation.Error)
		return nil, fmt.Errorf("%w: veo operation failed: %s", models.ErrExternalService, string(errJSON))
	}
	if operation.Response == nil {
		return nil, fmt.Errorf("%w: no response in completed veo operation %s", models.ErrExternalService, operation.Name)
	}

	if operation.Response.RAIMediaFilteredCount > 0 {
		reasons := "unknown"
		if len(operation.Response.RAIMediaFilteredReasons) > 0 {
			reasons = strings.Join(operation.Response.RAIMediaFilteredReasons, ", ")
		}
		return nil, fmt.Errorf("%w: video blocked by safety filters: %s", models.ErrExternalService, reasons)
	}

	if len(operation.Response.GeneratedVideos) == 0 || operation.Response.GeneratedVideos[0].Video == nil {
		return nil, fmt.Errorf("%w: no videos in veo response", models.ErrExternalService)
	}

	downloadURI := genai.NewDownloadURIFromVideo(operation.Response.GeneratedVideos[0].Video)
	videoBytes, err := client.Files.Download(ctx, downloadURI, nil)
	if err != nil {
		return nil, models.ExternalError("veo", fmt.Errorf("download: %w", err))
	}
	if len(videoBytes) == 0 {
		return nil, fmt.Errorf("%w: downloaded veo video is empty", models.ErrExternalService)
	}

	s.logger.Info("video downloaded", zap.String("model", s.model), zap.Int("bytes", len(videoBytes)))
	return videoBytes, nil
}
