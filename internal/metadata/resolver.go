package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	json "github.com/goccy/go-json"

	"github.com/Belphemur/watchmirror/internal/config"
	"github.com/Belphemur/watchmirror/internal/models"
)

// Meta is the display metadata resolved for one entity. Zero values mean
// "no poster / no overview"; resolution failures are never fatal.
type Meta struct {
	Poster   string
	Overview string
}

// Resolver looks up poster references and synopses for shows and movies.
type Resolver interface {
	Resolve(ctx context.Context, kind models.Kind, tmdbID int64, title string, year int) (Meta, error)
}

// tmdbResolver resolves metadata against a TMDB-compatible API. Transient
// failures are retried with exponential backoff before giving up.
type tmdbResolver struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	retry      retrypolicy.RetryPolicy[[]byte]
}

// NewResolver creates a metadata resolver from configuration.
func NewResolver(cfg *config.Config) Resolver {
	retry := retrypolicy.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool { return err != nil }).
		WithBackoff(500*time.Millisecond, 4*time.Second).
		WithMaxRetries(2).
		Build()

	return &tmdbResolver{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    cfg.Metadata.BaseURL,
		apiKey:     cfg.Metadata.APIKey,
		retry:      retry,
	}
}

type tmdbDocument struct {
	PosterPath string `json:"poster_path"`
	Overview   string `json:"overview"`
}

type tmdbSearchResponse struct {
	Results []tmdbDocument `json:"results"`
}

// Resolve looks the entity up by TMDB id when one is known, falling back to a
// title/year search. Any failure degrades to empty metadata at the caller.
func (r *tmdbResolver) Resolve(ctx context.Context, kind models.Kind, tmdbID int64, title string, year int) (Meta, error) {
	if r.apiKey == "" {
		return Meta{}, nil
	}

	section := "movie"
	if kind == models.KindShow {
		section = "tv"
	}

	if tmdbID > 0 {
		var doc tmdbDocument
		endpoint := fmt.Sprintf("%s/3/%s/%d?api_key=%s", r.baseURL, section, tmdbID, url.QueryEscape(r.apiKey))
		if err := r.getJSON(ctx, endpoint, &doc); err != nil {
			return Meta{}, err
		}
		return Meta{Poster: doc.PosterPath, Overview: doc.Overview}, nil
	}

	endpoint := fmt.Sprintf("%s/3/search/%s?api_key=%s&query=%s", r.baseURL, section, url.QueryEscape(r.apiKey), url.QueryEscape(title))
	if year > 0 {
		if kind == models.KindShow {
			endpoint += fmt.Sprintf("&first_air_date_year=%d", year)
		} else {
			endpoint += fmt.Sprintf("&year=%d", year)
		}
	}

	var search tmdbSearchResponse
	if err := r.getJSON(ctx, endpoint, &search); err != nil {
		return Meta{}, err
	}
	if len(search.Results) == 0 {
		return Meta{}, nil
	}
	return Meta{Poster: search.Results[0].PosterPath, Overview: search.Results[0].Overview}, nil
}

// getJSON fetches one endpoint under the retry policy and decodes the body.
func (r *tmdbResolver) getJSON(ctx context.Context, endpoint string, out any) error {
	body, err := failsafe.With[[]byte](r.retry).WithContext(ctx).Get(func() ([]byte, error) {
		return r.fetch(ctx, endpoint)
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (r *tmdbResolver) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", config.GetUserAgent())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata lookup returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
