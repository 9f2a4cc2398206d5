package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shy020501/Video-Automation/internal/models"
)

const (
	sunoDefaultBaseURL = "https://api.sunoapi.org/api/v1"
	sunoModel          = "V4_5ALL"
	sunoStyle          = "hybrid electronic cinematic short"
	sunoNegativeTags   = "vocals, piano, lyrics, singing, heavy metal"
	sunoCallbackURL    = "https://api.example.com/callback"
)

// SunoService generates instrumental background music.
type SunoService struct {
	apiKey     string
	baseURL    string
	poll       RetryPolicy
	httpClient *http.Client
	logger     *zap.Logger
}

func NewSunoService(apiKey, baseURL string, poll RetryPolicy, logger *zap.Logger) *SunoService {
	if baseURL == "" {
		baseURL = sunoDefaultBaseURL
	}
	if poll.MaxAttempts == 0 {
		poll = SunoPollPolicy
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SunoService{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		poll:    poll,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type sunoGenerateRequest struct {
	CustomMode          bool    `json:"customMode"`
	Instrumental        bool    `json:"instrumental"`
	Model               string  `json:"model"`
	CallBackURL         string  `json:"callBackUrl"`
	Prompt              string  `json:"prompt"`
	Style               string  `json:"style"`
	Title               string  `json:"title"`
	PersonaID           string  `json:"personaId"`
	NegativeTags        string  `json:"negativeTags"`
	VocalGender         string  `json:"vocalGender"`
	StyleWeight         float64 `json:"styleWeight"`
	WeirdnessConstraint float64 `json:"weirdnessConstraint"`
	AudioWeight         float64 `json:"audioWeight"`
}

type sunoGenerateResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
}

type sunoRecordInfoResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID   string `json:"taskId"`
		Status   string `json:"status"` // PENDING, TEXT_SUCCESS, FIRST_SUCCESS, SUCCESS, ...
		Response struct {
			SunoData []struct {
				ID       string  `json:"id"`
				AudioURL string  `json:"audioUrl"`
				Duration float64 `json:"duration"`
			} `json:"sunoData"`
		} `json:"response"`
	} `json:"data"`
}

// GenerateBGM requests a track of roughly targetSeconds and returns the MP3 bytes.
// The track is fitted to the exact timeline length later.
func (s *SunoService) GenerateBGM(ctx context.Context, job string, targetSeconds float64) ([]byte, error) {
	duration := int(math.Ceil(targetSeconds))

	taskID, err := s.submit(ctx, sunoGenerateRequest{
		CustomMode:          true,
		Instrumental:        true,
		Model:               sunoModel,
		CallBackURL:         sunoCallbackURL,
		Prompt:              BGMPrompt(job, duration),
		Style:               sunoStyle,
		Title:               job + " bgm",
		NegativeTags:        sunoNegativeTags,
		StyleWeight:         0.65,
		WeirdnessConstraint: 0.5,
		AudioWeight:         0.65,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit music generation: %w", err)
	}
	s.logger.Info("music generation submitted", zap.String("task_id", taskID), zap.Int("target_seconds", duration))

	var audioURL string
	err = s.poll.Poll(ctx, "suno task "+taskID, func(attempt int) (bool, error) {
		info, err := s.recordInfo(ctx, taskID)
		if err != nil {
			return false, err
		}
		s.logger.Debug("music poll", zap.Int("attempt", attempt), zap.String("status", info.Data.Status))

		if info.Data.Status != "SUCCESS" {
			return false, nil
		}
		if len(info.Data.Response.SunoData) == 0 || info.Data.Response.SunoData[0].AudioURL == "" {
			return false, fmt.Errorf("%w: suno task %s succeeded without audio", models.ErrExternalService, taskID)
		}
		audioURL = info.Data.Response.SunoData[0].AudioURL
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("downloading music", zap.String("url", audioURL))
	return downloadFile(ctx, audioURL, "suno")
}

func (s *SunoService) submit(ctx context.Context, payload sunoGenerateRequest) (string, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := s.do(req)
	if err != nil {
		return "", err
	}

	var genResp sunoGenerateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("%w: failed to parse generate response: %v (body: %s)", models.ErrExternalService, err, string(body))
	}
	if genResp.Data.TaskID == "" {
		return "", fmt.Errorf("%w: no taskId in generate response: %s", models.ErrExternalService, string(body))
	}
	return genResp.Data.TaskID, nil
}

func (s *SunoService) recordInfo(ctx context.Context, taskID string) (*sunoRecordInfoResponse, error) {
	endpoint := s.baseURL + "/generate/record-info?taskId=" + url.QueryEscape(taskID)
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := s.do(req)
	if err != nil {
		return nil, err
	}

	var info sunoRecordInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: failed to parse record info: %v (body: %s)", models.ErrExternalService, err, string(body))
	}
	return &info, nil
}

func (s *SunoService) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, models.ExternalError("suno", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &models.ServiceError{Service: "suno", StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
