package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Belphemur/watchmirror/internal/config"
	"github.com/Belphemur/watchmirror/internal/models"
)

func newTestResolver(serverURL string) Resolver {
	cfg := &config.Config{}
	cfg.Metadata.BaseURL = serverURL
	cfg.Metadata.APIKey = "test-key"
	return NewResolver(cfg)
}

func TestResolve_ByTMDBID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/3/tv/4200" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("api_key"); got != "test-key" {
			t.Errorf("api_key %q", got)
		}
		_, _ = w.Write([]byte(`{"poster_path": "/p.jpg", "overview": "a show"}`))
	}))
	defer server.Close()

	meta, err := newTestResolver(server.URL).Resolve(context.Background(), models.KindShow, 4200, "Some Show", 2020)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta.Poster != "/p.jpg" || meta.Overview != "a show" {
		t.Fatalf("Meta mismatch: %+v", meta)
	}
}

func TestResolve_SearchFallbackWhenIDUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/3/search/movie" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("query"); got != "Some Movie" {
			t.Errorf("query %q", got)
		}
		if got := r.URL.Query().Get("year"); got != "1999" {
			t.Errorf("year %q", got)
		}
		_, _ = w.Write([]byte(`{"results": [{"poster_path": "/m.jpg", "overview": "a movie"}, {"poster_path": "/other.jpg"}]}`))
	}))
	defer server.Close()

	meta, err := newTestResolver(server.URL).Resolve(context.Background(), models.KindMovie, 0, "Some Movie", 1999)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta.Poster != "/m.jpg" {
		t.Fatalf("Expected first search result, got %+v", meta)
	}
}

func TestResolve_ShowSearchUsesFirstAirDateYear(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/3/search/tv" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("first_air_date_year"); got != "2015" {
			t.Errorf("first_air_date_year %q", got)
		}
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	meta, err := newTestResolver(server.URL).Resolve(context.Background(), models.KindShow, 0, "Unknown", 2015)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta != (Meta{}) {
		t.Fatalf("Expected empty meta for no results, got %+v", meta)
	}
}

func TestResolve_TransientFailureIsRetried(t *testing.T) {
	var mu sync.Mutex
	count := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		n := count
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"poster_path": "/p.jpg"}`))
	}))
	defer server.Close()

	meta, err := newTestResolver(server.URL).Resolve(context.Background(), models.KindMovie, 9, "", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta.Poster != "/p.jpg" {
		t.Fatalf("Expected success after retry, got %+v", meta)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Fatalf("Expected 2 attempts, got %d", count)
	}
}

func TestResolve_NoAPIKeyIsNoOp(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	cfg := &config.Config{}
	cfg.Metadata.BaseURL = server.URL

	meta, err := NewResolver(cfg).Resolve(context.Background(), models.KindShow, 42, "Show", 2020)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta != (Meta{}) {
		t.Fatalf("Expected empty meta, got %+v", meta)
	}
	if called {
		t.Fatal("Resolver must not call the API without a key")
	}
}
