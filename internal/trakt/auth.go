package trakt

import (
	"context"
	"os"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/Belphemur/watchmirror/internal/apperrors"
)

// TokenSource supplies the bearer token for the remote service. Refresh is
// invoked after the service rejects a token; implementations may re-read a
// token that an external re-authentication flow has rewritten.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
}

type storedToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// FileTokenSource reads the bearer token from a JSON document on disk. The
// device-flow UI owns that document; Refresh simply re-reads it.
type FileTokenSource struct {
	path string

	mu  sync.Mutex
	tok *storedToken
}

// NewFileTokenSource creates a token source backed by the given file.
func NewFileTokenSource(path string) *FileTokenSource {
	return &FileTokenSource{path: path}
}

// Token returns the current access token, loading the file on first use.
// A missing or empty token is a distinguished re-authentication outcome.
func (s *FileTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok == nil {
		if err := s.load(); err != nil {
			return "", err
		}
	}
	if s.tok.AccessToken == "" {
		return "", apperrors.NewReauthRequired("empty access token")
	}
	return s.tok.AccessToken, nil
}

// Refresh drops the cached token so the next Token call re-reads the file.
func (s *FileTokenSource) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = nil
	return nil
}

func (s *FileTokenSource) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.NewReauthRequired("token file missing")
		}
		return err
	}
	var tok storedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return apperrors.NewReauthRequired("token file unreadable")
	}
	s.tok = &tok
	return nil
}

// isReauthBody matches the known failure signatures the service uses for
// expired or revoked credentials.
func isReauthBody(body []byte) bool {
	s := strings.ToLower(string(body))
	return strings.Contains(s, "invalid_grant") ||
		strings.Contains(s, "invalid_token") ||
		strings.Contains(s, "expired")
}
