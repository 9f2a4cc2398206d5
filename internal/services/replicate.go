package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shy020501/Video-Automation/internal/models"
)

// ---------------------------------------------------------------------------
// Replicate prediction API
// Submit a prediction for a model → poll by prediction id → download the output.
// ---------------------------------------------------------------------------

const (
	replicateDefaultBaseURL = "https://api.replicate.com/v1"
	replicateImageModel     = "bytedance/seedream-4"
	replicateVideoModel     = "bytedance/seedance-1-pro-fast"
	replicateAspectRatio    = "9:16"
	replicateVideoFPS       = 24
	replicateVideoDuration  = 4
	replicateVideoRes       = "720p"
)

type ReplicateConfig struct {
	Token      string
	BaseURL    string
	ImageModel string
	VideoModel string
	Poll       RetryPolicy
}

// ReplicateService generates stills with seedream and animates them with seedance.
type ReplicateService struct {
	cfg        ReplicateConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewReplicateService(cfg ReplicateConfig, logger *zap.Logger) *ReplicateService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = replicateDefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ImageModel == "" {
		cfg.ImageModel = replicateImageModel
	}
	if cfg.VideoModel == "" {
		cfg.VideoModel = replicateVideoModel
	}
	if cfg.Poll.MaxAttempts == 0 {
		cfg.Poll = ReplicatePollPolicy
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplicateService{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second, // Per HTTP call, not the full poll cycle
		},
		logger: logger,
	}
}

type replicatePredictionRequest struct {
	Input map[string]any `json:"input"`
}

// replicatePrediction is returned by both POST /models/{model}/predictions and
// GET /predictions/{id}. Output is a URL or a list of URLs depending on the model.
type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"` // starting, processing, succeeded, failed, canceled
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

// firstOutputURL returns the first URL from a string or []string output.
func (p *replicatePrediction) firstOutputURL() (string, error) {
	if len(p.Output) == 0 || string(p.Output) == "null" {
		return "", fmt.Errorf("%w: replicate prediction %s has no output", models.ErrExternalService, p.ID)
	}

	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil && single != "" {
		return single, nil
	}

	var list []string
	if err := json.Unmarshal(p.Output, &list); err == nil && len(list) > 0 && list[0] != "" {
		return list[0], nil
	}

	return "", fmt.Errorf("%w: unexpected replicate output %s", models.ErrExternalService, string(p.Output))
}

// GenerateImage creates the still for one animal.
func (s *ReplicateService) GenerateImage(ctx context.Context, job, animal string) ([]byte, error) {
	s.logger.Info("creating image", zap.String("model", s.cfg.ImageModel), zap.String("animal", animal))

	return s.run(ctx, s.cfg.ImageModel, map[string]any{
		"prompt":       ImagePrompt(job, animal),
		"aspect_ratio": replicateAspectRatio,
	})
}

// GenerateVideo animates the still at imagePath.
func (s *ReplicateService) GenerateVideo(ctx context.Context, job, animal, imagePath string) ([]byte, error) {
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read source image: %w", err)
	}

	s.logger.Info("creating video", zap.String("model", s.cfg.VideoModel), zap.String("animal", animal))

	return s.run(ctx, s.cfg.VideoModel, map[string]any{
		"image":        dataURI(image),
		"prompt":       VideoPrompt(job, animal),
		"fps":          replicateVideoFPS,
		"duration":     replicateVideoDuration,
		"aspect_ratio": replicateAspectRatio,
		"resolution":   replicateVideoRes,
	})
}

// run submits a prediction, waits for it, and downloads the first output.
func (s *ReplicateService) run(ctx context.Context, model string, input map[string]any) ([]byte, error) {
	pred, err := s.submit(ctx, model, input)
	if err != nil {
		return nil, fmt.Errorf("failed to submit %s prediction: %w", model, err)
	}
	s.logger.Debug("prediction submitted", zap.String("model", model), zap.String("id", pred.ID))

	if !isTerminal(pred.Status) {
		err = s.cfg.Poll.Poll(ctx, "replicate prediction "+pred.ID, func(attempt int) (bool, error) {
			next, err := s.get(ctx, pred.ID)
			if err != nil {
				return false, fmt.Errorf("failed to poll prediction (attempt %d): %w", attempt, err)
			}
			pred = next
			return isTerminal(pred.Status), nil
		})
		if err != nil {
			return nil, err
		}
	}

	if pred.Status != "succeeded" {
		return nil, fmt.Errorf("%w: replicate prediction %s %s: %v", models.ErrExternalService, pred.ID, pred.Status, pred.Error)
	}

	url, err := pred.firstOutputURL()
	if err != nil {
		return nil, err
	}

	data, err := downloadFile(ctx, url, "replicate")
	if err != nil {
		return nil, err
	}
	s.logger.Info("prediction output downloaded", zap.String("model", model), zap.Int("bytes", len(data)))
	return data, nil
}

func isTerminal(status string) bool {
	return status == "succeeded" || status == "failed" || status == "canceled"
}

func (s *ReplicateService) submit(ctx context.Context, model string, input map[string]any) (*replicatePrediction, error) {
	jsonData, err := json.Marshal(replicatePredictionRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s/predictions", s.cfg.BaseURL, model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func (s *ReplicateService) get(ctx context.Context, id string) (*replicatePrediction, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/predictions/%s", s.cfg.BaseURL, id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return s.do(req)
}

func (s *ReplicateService) do(req *http.Request) (*replicatePrediction, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, models.ExternalError("replicate", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &models.ServiceError{Service: "replicate", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var pred replicatePrediction
	if err := json.Unmarshal(body, &pred); err != nil {
		return nil, fmt.Errorf("%w: failed to parse prediction: %v (body: %s)", models.ErrExternalService, err, string(body))
	}
	if pred.ID == "" {
		return nil, fmt.Errorf("%w: no id in prediction response: %s", models.ErrExternalService, string(body))
	}
	return &pred, nil
}

// dataURI inlines a file for APIs that accept images as URLs.
func dataURI(data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", http.DetectContentType(data), base64.StdEncoding.EncodeToString(data))
}

// downloadFile fetches a generated asset.
func downloadFile(ctx context.Context, url, service string) ([]byte, error) {
	// Longer timeout than API calls, generated videos can be large
	downloadClient := &http.Client{Timeout: 120 * time.Second}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := downloadClient.Do(req)
	if err != nil {
		return nil, models.ExternalError(service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &models.ServiceError{Service: service + " download", StatusCode: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read downloaded data: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: downloaded %s output is empty", models.ErrExternalService, service)
	}
	return data, nil
}
