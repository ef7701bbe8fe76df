package releases_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Love-Rox/rox-homepage/internal/releases"
)

const releaseList = `[
  {"tag_name":"v0.3.0-beta.1","name":"Beta 1","html_url":"https://github.com/Love-Rox/rox/releases/tag/v0.3.0-beta.1","published_at":"2025-02-01T00:00:00Z","prerelease":true},
  {"tag_name":"v0.2.1","name":"","html_url":"https://github.com/Love-Rox/rox/releases/tag/v0.2.1","published_at":"2025-01-20T00:00:00Z","prerelease":false},
  {"tag_name":"v0.2.0","name":"v0.2.0","html_url":"https://github.com/Love-Rox/rox/releases/tag/v0.2.0","published_at":"2025-01-01T00:00:00Z","prerelease":false},
  {"tag_name":"v0.2.0-rc.1","name":"RC","html_url":"https://github.com/Love-Rox/rox/releases/tag/v0.2.0-rc.1","published_at":"2024-12-01T00:00:00Z","prerelease":true}
]`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newUpstream(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestLatestSelectsStableAndPrerelease(t *testing.T) {
	t.Parallel()

	srv, hits := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/Love-Rox/rox/releases" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("per_page"); got != "20" {
			t.Errorf("expected per_page=20, got %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/vnd.github.v3+json" {
			t.Errorf("unexpected Accept %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "Rox-Homepage" {
			t.Errorf("unexpected User-Agent %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("expected no Authorization header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, releaseList)
	})

	client, err := releases.NewClient(releases.Options{BaseURL: srv.URL, Repo: "Love-Rox/rox"}, quietLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	info, err := client.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest returned error: %v", err)
	}
	if info.Stable == nil || info.Stable.Version != "v0.2.1" {
		t.Fatalf("expected stable v0.2.1, got %+v", info.Stable)
	}
	if info.Stable.Name != "v0.2.1" {
		t.Fatalf("expected empty name to fall back to tag, got %q", info.Stable.Name)
	}
	if info.Prerelease == nil || info.Prerelease.Version != "v0.3.0-beta.1" || info.Prerelease.PublishedAt != "2025-02-01T00:00:00Z" {
		t.Fatalf("unexpected prerelease %+v", info.Prerelease)
	}

	if _, err := client.Latest(context.Background()); err != nil {
		t.Fatalf("second Latest: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected cached result, upstream hit %d times", got)
	}
}

func TestLatestMissingKinds(t *testing.T) {
	t.Parallel()

	srv, _ := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"tag_name":"v1.0.0","name":"One","html_url":"u","published_at":"p","prerelease":false},{"tag_name":"v2","draft":true,"prerelease":true}]`)
	})
	client, err := releases.NewClient(releases.Options{BaseURL: srv.URL, Repo: "Love-Rox/rox"}, quietLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	info, err := client.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if info.Stable == nil || info.Prerelease != nil {
		t.Fatalf("expected stable only, got %+v", info)
	}
}

func TestLatestUpstreamFailureIsNotCached(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	fail.Store(true)
	srv, hits := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			http.Error(w, "rate limited", http.StatusForbidden)
			return
		}
		_, _ = io.WriteString(w, releaseList)
	})
	client, err := releases.NewClient(releases.Options{BaseURL: srv.URL, Repo: "Love-Rox/rox", Token: "secret"}, quietLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := client.Latest(context.Background()); !errors.Is(err, releases.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}

	fail.Store(false)
	info, err := client.Latest(context.Background())
	if err != nil {
		t.Fatalf("expected recovery after failure, got %v", err)
	}
	if info.Stable == nil {
		t.Fatalf("expected stable release after recovery")
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("expected 2 upstream hits, got %d", got)
	}
}

func TestLatestMalformedBody(t *testing.T) {
	t.Parallel()

	srv, _ := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"message":"not a list"}`)
	})
	client, err := releases.NewClient(releases.Options{BaseURL: srv.URL, Repo: "Love-Rox/rox"}, quietLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Latest(context.Background()); !errors.Is(err, releases.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestLatestExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	srv, hits := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, releaseList)
	})
	client, err := releases.NewClient(releases.Options{BaseURL: srv.URL, Repo: "Love-Rox/rox", TTL: 20 * time.Millisecond}, quietLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Latest(context.Background()); err != nil {
		t.Fatalf("Latest: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := client.Latest(context.Background()); err != nil {
		t.Fatalf("Latest after expiry: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("expected refetch after TTL, got %d hits", got)
	}
}

func TestNewClientValidatesRepo(t *testing.T) {
	t.Parallel()

	for _, repo := range []string{"", "rox", "/rox", "Love-Rox/", "a/b/c"} {
		if _, err := releases.NewClient(releases.Options{Repo: repo}, nil); err == nil {
			t.Fatalf("expected error for repo %q", repo)
		}
	}
}
