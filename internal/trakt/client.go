package trakt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"

	"github.com/Belphemur/watchmirror/internal/apperrors"
	"github.com/Belphemur/watchmirror/internal/config"
	"github.com/Belphemur/watchmirror/internal/gateway"
	"github.com/Belphemur/watchmirror/internal/models"
)

// Client defines the read surface of the remote watch-history service. Every
// call is admitted through the rate-limited gateway.
type Client interface {
	WatchedShows(ctx context.Context) ([]WatchedShow, error)
	WatchedMovies(ctx context.Context) ([]WatchedMovie, error)
	CollectedShows(ctx context.Context) ([]CollectedShow, error)
	CollectedMovies(ctx context.Context) ([]CollectedMovie, error)
	History(ctx context.Context, since time.Time) ([]HistoryItem, error)
	ShowProgress(ctx context.Context, showID int64) (*ShowProgress, error)
	LastActivities(ctx context.Context) (*models.ActivityTimestamps, error)
}

// client implements the Client interface.
type client struct {
	gw       *gateway.Gateway
	baseURL  string
	clientID string
	tokens   TokenSource
}

// NewClient creates a client that talks to the service configured in cfg
// through the given gateway.
func NewClient(cfg *config.Config, gw *gateway.Gateway, tokens TokenSource) Client {
	return &client{
		gw:       gw,
		baseURL:  cfg.Trakt.BaseURL,
		clientID: cfg.Trakt.ClientID,
		tokens:   tokens,
	}
}

// NewHTTPClient builds the HTTP client the gateway should use for this
// service: configured timeout plus transparent response decompression.
func NewHTTPClient(cfg *config.Config) *http.Client {
	timeout := config.Duration(cfg.ClientTimeout, 30*time.Second)
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(http.DefaultTransport.(*http.Transport).Clone()),
	}
}

func (c *client) WatchedShows(ctx context.Context) ([]WatchedShow, error) {
	var shows []WatchedShow
	if err := c.getJSON(ctx, "/sync/watched/shows", &shows); err != nil {
		return nil, err
	}
	return shows, nil
}

func (c *client) WatchedMovies(ctx context.Context) ([]WatchedMovie, error) {
	var movies []WatchedMovie
	if err := c.getJSON(ctx, "/sync/watched/movies", &movies); err != nil {
		return nil, err
	}
	return movies, nil
}

func (c *client) CollectedShows(ctx context.Context) ([]CollectedShow, error) {
	var shows []CollectedShow
	if err := c.getJSON(ctx, "/sync/collection/shows", &shows); err != nil {
		return nil, err
	}
	return shows, nil
}

func (c *client) CollectedMovies(ctx context.Context) ([]CollectedMovie, error) {
	var movies []CollectedMovie
	if err := c.getJSON(ctx, "/sync/collection/movies", &movies); err != nil {
		return nil, err
	}
	return movies, nil
}

func (c *client) History(ctx context.Context, since time.Time) ([]HistoryItem, error) {
	path := fmt.Sprintf("/sync/history?limit=1000&start_at=%s", url.QueryEscape(since.UTC().Format(time.RFC3339)))
	var items []HistoryItem
	if err := c.getJSON(ctx, path, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *client) ShowProgress(ctx context.Context, showID int64) (*ShowProgress, error) {
	var progress ShowProgress
	if err := c.getJSON(ctx, fmt.Sprintf("/shows/%d/progress/watched", showID), &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

func (c *client) LastActivities(ctx context.Context) (*models.ActivityTimestamps, error) {
	var activities models.ActivityTimestamps
	if err := c.getJSON(ctx, "/sync/last_activities", &activities); err != nil {
		return nil, err
	}
	return &activities, nil
}

// getJSON performs one read-class call through the gateway and decodes the
// response. When the service rejects the token, the token source is refreshed
// and the call retried once: the device-flow UI may have rewritten the token
// file since it was cached. 404 maps to ErrNotFound; other non-2xx statuses
// are plain errors.
func (c *client) getJSON(ctx context.Context, path string, out any) error {
	err := c.doJSON(ctx, path, out)
	var reauth *apperrors.ErrReauthRequired
	if !errors.As(err, &reauth) {
		return err
	}
	if rerr := c.tokens.Refresh(ctx); rerr != nil {
		return err
	}
	return c.doJSON(ctx, path, out)
}

func (c *client) doJSON(ctx context.Context, path string, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", config.GetUserAgent())
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("trakt-api-version", "2")
	req.Header.Set("trakt-api-key", c.clientID)

	res, err := c.gw.Execute(ctx, gateway.ClassRead, req)
	if err != nil {
		return err
	}

	switch {
	case res.Status == http.StatusUnauthorized:
		return apperrors.NewReauthRequired("token rejected")
	case res.Status == http.StatusForbidden && isReauthBody(res.Body):
		return apperrors.NewReauthRequired("token revoked")
	case res.Status == http.StatusNotFound:
		return apperrors.NewNotFoundError("resource", path)
	case res.Status < 200 || res.Status >= 300:
		return fmt.Errorf("unexpected status %d from %s", res.Status, path)
	}

	if err := json.Unmarshal(res.Body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
