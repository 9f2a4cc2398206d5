package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/shy020501/Video-Automation/internal/models"
)

// KeysFileName is the flat JSON credentials file inside the data directory.
const KeysFileName = "keys.json"

type Config struct {
	// Paths
	DataDir   string
	OutputDir string
	Concept   string // Dataset name: <DataDir>/<Concept>.json

	// OpenAI (dataset generation)
	OpenAIKey   string
	OpenAIModel string

	// Replicate (default image + video provider)
	ReplicateToken   string
	ReplicateBaseURL string
	ImageModel       string
	VideoModel       string

	// Google providers (alternative image + video generation)
	ImageProvider string // "replicate" or "gemini"
	VideoProvider string // "replicate" or "veo"
	GeminiKey     string
	GeminiModel   string
	VeoModel      string

	// Suno (background music)
	SunoKey     string
	SunoBaseURL string

	// Composition
	FontPath     string
	IntroSeconds float64
	Render       RenderConfig

	// YouTube
	YouTube YouTubeConfig

	// Database (optional run ledger)
	DatabaseURL string

	// Redis (run queue)
	RedisURL string

	// Supabase (optional archive stage)
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Crash notification (optional)
	Notify NotifyConfig

	// Server
	APIPort            string
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	Logger Logger
}

type RenderConfig struct {
	FPS        int
	Codec      string
	AudioCodec string
	Preset     string
	Threads    int
}

type YouTubeConfig struct {
	ClientSecretsPath string
	TokenPath         string
	CategoryID        string
	PrivacyStatus     string
}

type NotifyConfig struct {
	To          string
	From        string
	AppPassword string
	SMTPHost    string
	SMTPPort    int
}

// Enabled reports whether crash mails can be sent.
func (n NotifyConfig) Enabled() bool {
	return n.To != "" && n.From != "" && n.AppPassword != ""
}

type Logger struct {
	Development       bool
	DisableCaller     bool
	DisableStacktrace bool
	Encoding          string
	Level             string
}

// DatasetPath is the JSON mapping of jobs to animals.
func (c *Config) DatasetPath() string {
	return filepath.Join(c.DataDir, c.Concept+".json")
}

// Load reads .env (if present), then <dataDir>/keys.json (if present), with
// environment variables taking precedence over both.
func Load(dataDir string) (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	if dataDir == "" {
		dataDir = "./data"
	}

	v := viper.New()
	setDefaults(v, dataDir)
	v.SetConfigFile(filepath.Join(dataDir, KeysFileName))
	v.SetConfigType("json")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: read %s: %v", models.ErrConfiguration, KeysFileName, err)
		}
	}

	return parse(v, dataDir), nil
}

func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("OUTPUT_PATH", "./output")
	v.SetDefault("CONCEPT", "animal_with_job")
	v.SetDefault("OPENAI_MODEL", "gpt-5-nano")
	v.SetDefault("REPLICATE_BASE_URL", "https://api.replicate.com/v1")
	v.SetDefault("REPLICATE_IMAGE_MODEL", "bytedance/seedream-4")
	v.SetDefault("REPLICATE_VIDEO_MODEL", "bytedance/seedance-1-pro-fast")
	v.SetDefault("IMAGE_PROVIDER", "replicate")
	v.SetDefault("VIDEO_PROVIDER", "replicate")
	v.SetDefault("GEMINI_IMAGE_MODEL", "gemini-3-pro-image-preview")
	v.SetDefault("VEO_MODEL", "veo-3.1-generate-preview")
	v.SetDefault("SUNO_BASE_URL", "https://api.sunoapi.org/api/v1")
	v.SetDefault("FONT_PATH", filepath.Join(dataDir, "fonts", "PlayfairDisplay-VariableFont_wght.ttf"))
	v.SetDefault("INTRO_SECONDS", 1.5)
	v.SetDefault("RENDER_FPS", 24)
	v.SetDefault("RENDER_CODEC", "libx264")
	v.SetDefault("RENDER_AUDIO_CODEC", "aac")
	v.SetDefault("RENDER_PRESET", "medium")
	v.SetDefault("RENDER_THREADS", 4)
	v.SetDefault("YOUTUBE_CLIENT_SECRETS", filepath.Join(dataDir, "client_secret.json"))
	v.SetDefault("YOUTUBE_TOKEN_PATH", filepath.Join(dataDir, "youtube_token.json"))
	v.SetDefault("YOUTUBE_CATEGORY_ID", "15")
	v.SetDefault("YOUTUBE_PRIVACY_STATUS", "public")
	v.SetDefault("REDIS_URL", "redis://localhost:6379")
	v.SetDefault("SUPABASE_STORAGE_BUCKET", "video-automation")
	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 465)
	v.SetDefault("API_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_ENCODING", "console")
}

func parse(v *viper.Viper, dataDir string) *Config {
	return &Config{
		DataDir:          dataDir,
		OutputDir:        v.GetString("OUTPUT_PATH"),
		Concept:          v.GetString("CONCEPT"),
		OpenAIKey:        v.GetString("OPENAI_API_KEY"),
		OpenAIModel:      v.GetString("OPENAI_MODEL"),
		ReplicateToken:   v.GetString("REPLICATE_API_TOKEN"),
		ReplicateBaseURL: v.GetString("REPLICATE_BASE_URL"),
		ImageModel:       v.GetString("REPLICATE_IMAGE_MODEL"),
		VideoModel:       v.GetString("REPLICATE_VIDEO_MODEL"),
		ImageProvider:    strings.ToLower(v.GetString("IMAGE_PROVIDER")),
		VideoProvider:    strings.ToLower(v.GetString("VIDEO_PROVIDER")),
		GeminiKey:        v.GetString("GEMINI_API_KEY"),
		GeminiModel:      v.GetString("GEMINI_IMAGE_MODEL"),
		VeoModel:         v.GetString("VEO_MODEL"),
		SunoKey:          v.GetString("SUNO_API_KEY"),
		SunoBaseURL:      v.GetString("SUNO_BASE_URL"),
		FontPath:         v.GetString("FONT_PATH"),
		IntroSeconds:     v.GetFloat64("INTRO_SECONDS"),
		Render: RenderConfig{
			FPS:        v.GetInt("RENDER_FPS"),
			Codec:      v.GetString("RENDER_CODEC"),
			AudioCodec: v.GetString("RENDER_AUDIO_CODEC"),
			Preset:     v.GetString("RENDER_PRESET"),
			Threads:    v.GetInt("RENDER_THREADS"),
		},
		YouTube: YouTubeConfig{
			ClientSecretsPath: v.GetString("YOUTUBE_CLIENT_SECRETS"),
			TokenPath:         v.GetString("YOUTUBE_TOKEN_PATH"),
			CategoryID:        v.GetString("YOUTUBE_CATEGORY_ID"),
			PrivacyStatus:     v.GetString("YOUTUBE_PRIVACY_STATUS"),
		},
		DatabaseURL:           v.GetString("DATABASE_URL"),
		RedisURL:              v.GetString("REDIS_URL"),
		SupabaseURL:           v.GetString("SUPABASE_URL"),
		SupabaseServiceKey:    v.GetString("SUPABASE_SERVICE_KEY"),
		SupabaseStorageBucket: v.GetString("SUPABASE_STORAGE_BUCKET"),
		Notify: NotifyConfig{
			To:          v.GetString("NOTIFY_TO_EMAIL"),
			From:        v.GetString("NOTIFY_FROM_EMAIL"),
			AppPassword: v.GetString("NOTIFY_APP_PASSWORD"),
			SMTPHost:    v.GetString("SMTP_HOST"),
			SMTPPort:    v.GetInt("SMTP_PORT"),
		},
		APIPort:            v.GetString("API_PORT"),
		BackendAPIKey:      v.GetString("BACKEND_API_KEY"),
		CorsAllowedOrigins: v.GetString("CORS_ALLOWED_ORIGINS"),
		Logger: Logger{
			Development:       v.GetBool("LOG_DEVELOPMENT"),
			DisableCaller:     v.GetBool("LOG_DISABLE_CALLER"),
			DisableStacktrace: v.GetBool("LOG_DISABLE_STACKTRACE"),
			Encoding:          v.GetString("LOG_ENCODING"),
			Level:             v.GetString("LOG_LEVEL"),
		},
	}
}

// Validate checks that every key required by the enabled stages is present.
func (c *Config) Validate(stages models.Stages) error {
	var missing []string
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	// Dataset replenishment can happen on any run
	require("OPENAI_API_KEY", c.OpenAIKey)

	switch c.ImageProvider {
	case "replicate":
		require("REPLICATE_API_TOKEN", c.ReplicateToken)
	case "gemini":
		require("GEMINI_API_KEY", c.GeminiKey)
	default:
		return fmt.Errorf("%w: unknown IMAGE_PROVIDER %q", models.ErrConfiguration, c.ImageProvider)
	}

	switch c.VideoProvider {
	case "replicate":
		require("REPLICATE_API_TOKEN", c.ReplicateToken)
	case "veo":
		require("GEMINI_API_KEY", c.GeminiKey)
	default:
		return fmt.Errorf("%w: unknown VIDEO_PROVIDER %q", models.ErrConfiguration, c.VideoProvider)
	}

	if stages.Has(models.StageMusic) {
		require("SUNO_API_KEY", c.SunoKey)
	}
	if stages.Has(models.StageUpload) {
		require("YOUTUBE_CLIENT_SECRETS", c.YouTube.ClientSecretsPath)
	}
	if stages.Has(models.StageArchive) {
		require("SUPABASE_URL", c.SupabaseURL)
		require("SUPABASE_SERVICE_KEY", c.SupabaseServiceKey)
	}

	if c.IntroSeconds <= 0 {
		return fmt.Errorf("%w: INTRO_SECONDS must be positive", models.ErrConfiguration)
	}
	if c.Render.FPS <= 0 {
		return fmt.Errorf("%w: RENDER_FPS must be positive", models.ErrConfiguration)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s (set in %s or the environment)",
			models.ErrConfiguration, strings.Join(dedupe(missing), ", "), KeysFileName)
	}
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
