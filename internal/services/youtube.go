package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/shy020501/Video-Automation/internal/models"
)

const (
	youtubeChunkSize     = 8 * 1024 * 1024
	youtubeAuthTimeout   = 5 * time.Minute
	youtubeDefaultCatID  = "15"
	youtubeDefaultStatus = "public"
)

type YouTubeConfig struct {
	ClientSecretsPath string
	TokenPath         string
	// Endpoint overrides the API base path. Empty uses the public API.
	Endpoint string
}

// UploadMetadata is the snippet and status sent with a video.
type UploadMetadata struct {
	Title         string
	Description   string
	Tags          []string
	CategoryID    string
	PrivacyStatus string
}

// YouTubeService authenticates with an installed-app OAuth flow and uploads
// videos with the resumable media protocol.
type YouTubeService struct {
	cfg        YouTubeConfig
	httpClient *http.Client
	logger     *zap.Logger

	// prompt shows the consent URL to the operator.
	prompt func(authURL string)
}

func NewYouTubeService(cfg YouTubeConfig, logger *zap.Logger) *YouTubeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YouTubeService{
		cfg:    cfg,
		logger: logger,
		prompt: func(authURL string) {
			fmt.Fprintf(os.Stderr, "Open this URL in a browser to authorize YouTube uploads:\n\n%s\n\n", authURL)
		},
	}
}

// Authenticate returns an HTTP client carrying a valid upload token.
// The cached token is used when valid, refreshed when possible, and otherwise
// replaced through the interactive loopback flow. New tokens are persisted.
func (s *YouTubeService) Authenticate(ctx context.Context) (*http.Client, error) {
	secrets, err := os.ReadFile(s.cfg.ClientSecretsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read client secrets: %v", models.ErrAuth, err)
	}
	oc, err := google.ConfigFromJSON(secrets, youtube.YoutubeUploadScope)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid client secrets: %v", models.ErrAuth, err)
	}

	tok, err := loadToken(s.cfg.TokenPath)
	switch {
	case err == nil && tok.Valid():
		return oc.Client(ctx, tok), nil
	case err == nil && tok.RefreshToken != "":
		fresh, rerr := oc.TokenSource(ctx, tok).Token()
		if rerr == nil {
			if err := saveToken(s.cfg.TokenPath, fresh); err != nil {
				return nil, err
			}
			s.logger.Info("refreshed youtube token")
			return oc.Client(ctx, fresh), nil
		}
		s.logger.Warn("token refresh failed, starting authorization", zap.Error(rerr))
	case err != nil && !errors.Is(err, os.ErrNotExist):
		s.logger.Warn("ignoring unreadable token cache", zap.String("path", s.cfg.TokenPath), zap.Error(err))
	}

	tok, err = s.authorize(ctx, oc)
	if err != nil {
		return nil, err
	}
	if err := saveToken(s.cfg.TokenPath, tok); err != nil {
		return nil, err
	}
	return oc.Client(ctx, tok), nil
}

// authorize runs the installed-app flow against a loopback redirect.
func (s *YouTubeService) authorize(ctx context.Context, oc *oauth2.Config) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open loopback listener: %v", models.ErrAuth, err)
	}
	oc.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())

	state, err := randomState()
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("%w: %v", models.ErrAuth, err)
	}

	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)

	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			var res result
			switch {
			case q.Get("state") != state:
				res.err = errors.New("state mismatch in authorization callback")
			case q.Get("error") != "":
				res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
			case q.Get("code") == "":
				res.err = errors.New("no authorization code in callback")
			default:
				res.code = q.Get("code")
			}
			if res.err != nil {
				http.Error(w, res.err.Error(), http.StatusBadRequest)
			} else {
				fmt.Fprintln(w, "Authorization complete. You may close this window.")
			}
			select {
			case done <- res:
			default:
			}
		}),
	}
	go srv.Serve(ln)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.prompt(oc.AuthCodeURL(state, oauth2.AccessTypeOffline))

	timer := time.NewTimer(youtubeAuthTimeout)
	defer timer.Stop()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: timed out waiting for authorization", models.ErrAuth)
	}
	if res.err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrAuth, res.err)
	}

	tok, err := oc.Exchange(ctx, res.code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange failed: %v", models.ErrAuth, err)
	}
	s.logger.Info("youtube authorization complete")
	return tok, nil
}

// Upload sends the file at path and returns the new video id.
func (s *YouTubeService) Upload(ctx context.Context, path string, meta UploadMetadata) (string, error) {
	client := s.httpClient
	if client == nil {
		var err error
		if client, err = s.Authenticate(ctx); err != nil {
			return "", err
		}
		s.httpClient = client
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if s.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.cfg.Endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create youtube client: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open video: %w", err)
	}
	defer f.Close()

	if meta.CategoryID == "" {
		meta.CategoryID = youtubeDefaultCatID
	}
	if meta.PrivacyStatus == "" {
		meta.PrivacyStatus = youtubeDefaultStatus
	}
	tags := meta.Tags
	if tags == nil {
		tags = []string{}
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        tags,
			CategoryId:  meta.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           meta.PrivacyStatus,
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "video/mp4"
	}

	s.logger.Info("uploading video", zap.String("path", path), zap.String("title", meta.Title))

	call := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(f, googleapi.ChunkSize(youtubeChunkSize), googleapi.ContentType(contentType)).
		ProgressUpdater(func(current, total int64) {
			if total > 0 {
				s.logger.Info("uploading", zap.Int64("percent", current*100/total))
			}
		})

	resp, err := call.Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return "", &models.ServiceError{Service: "youtube", StatusCode: gerr.Code, Body: gerr.Message}
		}
		return "", models.ExternalError("youtube", err)
	}
	if resp.Id == "" {
		return "", fmt.Errorf("%w: youtube response has no video id", models.ErrExternalService)
	}

	s.logger.Info("upload complete", zap.String("video_id", resp.Id))
	return resp.Id, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to decode token cache: %w", err)
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create token dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token cache: %w", err)
	}
	return nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
