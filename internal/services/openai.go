package services

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/shy020501/Video-Automation/internal/models"
)

type OpenAIService struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAIService(apiKey, model string, logger *zap.Logger) *OpenAIService {
	return NewOpenAIServiceWithConfig(openai.DefaultConfig(apiKey), model, logger)
}

// NewOpenAIServiceWithConfig allows overriding the client config (base URL, HTTP client).
func NewOpenAIServiceWithConfig(cfg openai.ClientConfig, model string, logger *zap.Logger) *OpenAIService {
	if model == "" {
		model = "gpt-5-nano"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

// GenerateEntries asks the model for new job/animal pairings. The raw text is
// returned as-is; extracting and validating the JSON is the dataset's job.
func (s *OpenAIService) GenerateEntries(ctx context.Context, existingJobs []string) (string, error) {
	prompt := DatasetPrompt(existingJobs)

	s.logger.Info("requesting new dataset entries",
		zap.String("model", s.model),
		zap.Int("existing_jobs", len(existingJobs)))

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", models.ExternalError("openai", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no response from openai", models.ErrExternalService)
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	s.logger.Debug("dataset response", zap.String("raw", truncateString(raw, 2000)))
	return raw, nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
