// Package releases fetches the latest stable and pre-release versions from GitHub.
package releases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

const (
	defaultBaseURL = "https://api.github.com"
	userAgent      = "Rox-Homepage"
	acceptHeader   = "application/vnd.github.v3+json"
	perPage        = 20
	maxBodyBytes   = 4 << 20
	cacheKey       = "latest"
)

// ErrUpstream reports a release listing that could not be fetched or decoded.
var ErrUpstream = errors.New("release upstream failure")

// Release is one published version.
type Release struct {
	Version     string `json:"version"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

// Info holds the newest stable release and the newest pre-release, either of which may be absent.
type Info struct {
	Stable     *Release `json:"stable"`
	Prerelease *Release `json:"prerelease"`
}

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client
	// BaseURL of the GitHub REST API.
	BaseURL string
	// Repo is "owner/name".
	Repo  string
	Token string
	// TTL bounds how long a successful result is reused.
	TTL time.Duration
}

// Client reads releases and caches successful results.
type Client struct {
	http    *http.Client
	cache   *ttlcache.Cache[string, Info]
	logger  *slog.Logger
	baseURL string
	repo    string
	token   string
	group   singleflight.Group
}

// NewClient validates opts and returns a client.
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	owner, name, ok := strings.Cut(opts.Repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("repository must be owner/name, got %q", opts.Repo)
	}
	if logger == nil {
		logger = slog.Default()
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		http: hc,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, Info](ttl),
			ttlcache.WithDisableTouchOnHit[string, Info](),
		),
		logger:  logger.With("component", "releases"),
		baseURL: base,
		repo:    url.PathEscape(owner) + "/" + url.PathEscape(name),
		token:   opts.Token,
	}, nil
}

// Latest returns the cached release info, fetching it when the cache is empty or expired.
// Concurrent misses share one upstream request.
func (c *Client) Latest(ctx context.Context) (Info, error) {
	if item := c.cache.Get(cacheKey); item != nil {
		return item.Value(), nil
	}

	ch := c.group.DoChan(cacheKey, func() (any, error) {
		info, err := c.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return Info{}, err
		}
		c.cache.Set(cacheKey, info, ttlcache.DefaultTTL)
		return info, nil
	})

	select {
	case <-ctx.Done():
		return Info{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.logger.WarnContext(ctx, "fetch releases failed", slog.Any("err", res.Err))
			return Info{}, res.Err
		}
		return res.Val.(Info), nil
	}
}

type githubRelease struct {
	TagName     string `json:"tag_name"`
	Name        string `json:"name"`
	HTMLURL     string `json:"html_url"`
	PublishedAt string `json:"published_at"`
	Prerelease  bool   `json:"prerelease"`
	Draft       bool   `json:"draft"`
}

func (c *Client) fetch(ctx context.Context) (Info, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/releases?per_page=%d", c.baseURL, c.repo, perPage)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Info{}, fmt.Errorf("%w: build request: %w", ErrUpstream, err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Info{}, fmt.Errorf("%w: GitHub API error: %s", ErrUpstream, resp.Status)
	}

	var list []githubRelease
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&list); err != nil {
		return Info{}, fmt.Errorf("%w: decode releases: %w", ErrUpstream, err)
	}
	return pick(list), nil
}

// pick selects the first stable and the first pre-release in API order, which is newest first.
func pick(list []githubRelease) Info {
	var info Info
	for _, r := range list {
		if r.Draft {
			continue
		}
		rel := &Release{
			Version:     r.TagName,
			Name:        r.Name,
			URL:         r.HTMLURL,
			PublishedAt: r.PublishedAt,
		}
		if rel.Name == "" {
			rel.Name = r.TagName
		}
		switch {
		case r.Prerelease && info.Prerelease == nil:
			info.Prerelease = rel
		case !r.Prerelease && info.Stable == nil:
			info.Stable = rel
		}
		if info.Stable != nil && info.Prerelease != nil {
			break
		}
	}
	return info
}
