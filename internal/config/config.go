// Package config manages application configuration from environment variables and flags.
package config

import (
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const envPrefix = "ROX_"

// Config holds runtime configuration for the web server and the SEO generator.
type Config struct {
	ContentDir string
	SiteFile   string
	AssetsDir  string
	OutputDir  string
	Port       int
	Verbose    bool
	Dev        bool

	OGFont string
	OGLogo string

	GitHubAPI    string
	GitHubRepo   string
	GitHubToken  string
	ReleasesTTL  time.Duration
	UpstreamWait time.Duration

	TurnstileSecret string
	TurnstileURL    string
	TurnstileSite   string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	ContactTo    string
}

// Default returns ready-to-use defaults prior to env/flag overrides.
func Default() Config {
	return Config{
		ContentDir:   "content",
		OutputDir:    "public",
		Port:         8080,
		GitHubAPI:    "https://api.github.com",
		GitHubRepo:   "Love-Rox/rox",
		ReleasesTTL:  time.Hour,
		UpstreamWait: 10 * time.Second,
		TurnstileURL: "https://challenges.cloudflare.com/turnstile/v0/siteverify",
		SMTPHost:     "smtp.gmail.com",
		SMTPPort:     587,
		ContactTo:    "dev@love-rox.cc",
	}
}

// RegisterFlags attaches configuration flags to the provided FlagSet.
// Credentials are deliberately absent: they are read from the environment only.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.ContentDir, "content", "c", cfg.ContentDir, "directory containing docs/ and blog/ markdown trees")
	fs.StringVar(&cfg.SiteFile, "site", cfg.SiteFile, "site definition YAML (empty = built-in)")
	fs.StringVar(&cfg.AssetsDir, "assets", cfg.AssetsDir, "serve /static from this directory instead of the embedded assets")
	fs.StringVarP(&cfg.OutputDir, "out", "o", cfg.OutputDir, "output directory for sitemap.xml and robots.txt")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to bind the HTTP server (0 = auto-assign)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "enable verbose logging (HTTP requests)")
	fs.BoolVar(&cfg.Dev, "dev", cfg.Dev, "development mode: debug logging and live reload on content changes")
	fs.StringVar(&cfg.OGFont, "og-font", cfg.OGFont, "TrueType/OpenType font for preview images (empty = built-in)")
	fs.StringVar(&cfg.OGLogo, "og-logo", cfg.OGLogo, "SVG logo for preview images (empty = built-in)")
	fs.StringVar(&cfg.GitHubRepo, "github-repo", cfg.GitHubRepo, "owner/name of the repository whose releases are advertised")
	fs.DurationVar(&cfg.ReleasesTTL, "releases-ttl", cfg.ReleasesTTL, "how long release info is cached")
	fs.StringVar(&cfg.ContactTo, "contact-to", cfg.ContactTo, "address receiving contact form notifications")
}

// ApplyEnvOverrides reads supported environment variables and overrides cfg in place.
func ApplyEnvOverrides(cfg *Config) {
	applyStringEnv("CONTENT", func(v string) { cfg.ContentDir = v })
	applyStringEnv("SITE", func(v string) { cfg.SiteFile = v })
	applyStringEnv("ASSETS", func(v string) { cfg.AssetsDir = v })
	applyStringEnv("OUT", func(v string) { cfg.OutputDir = v })
	applyIntEnv("PORT", func(v int) { cfg.Port = v })
	applyBoolEnv("VERBOSE", func(v bool) { cfg.Verbose = v })
	applyBoolEnv("DEV", func(v bool) { cfg.Dev = v })
	applyStringEnv("OG_FONT", func(v string) { cfg.OGFont = v })
	applyStringEnv("OG_LOGO", func(v string) { cfg.OGLogo = v })
	applyStringEnv("GITHUB_API", func(v string) { cfg.GitHubAPI = v })
	applyStringEnv("GITHUB_REPO", func(v string) { cfg.GitHubRepo = v })
	applyStringEnv("GITHUB_TOKEN", func(v string) { cfg.GitHubToken = v })
	applyDurationEnv("RELEASES_TTL", func(v time.Duration) { cfg.ReleasesTTL = v })
	applyDurationEnv("UPSTREAM_TIMEOUT", func(v time.Duration) { cfg.UpstreamWait = v })
	applyStringEnv("TURNSTILE_SECRET", func(v string) { cfg.TurnstileSecret = v })
	applyStringEnv("TURNSTILE_SITE_KEY", func(v string) { cfg.TurnstileSite = v })
	applyStringEnv("TURNSTILE_URL", func(v string) { cfg.TurnstileURL = v })
	applyStringEnv("SMTP_HOST", func(v string) { cfg.SMTPHost = v })
	applyIntEnv("SMTP_PORT", func(v int) { cfg.SMTPPort = v })
	applyStringEnv("SMTP_USER", func(v string) { cfg.SMTPUser = v })
	applyStringEnv("SMTP_PASSWORD", func(v string) { cfg.SMTPPassword = v })
	applyStringEnv("CONTACT_TO", func(v string) { cfg.ContactTo = v })
}

func applyStringEnv(key string, apply func(string)) {
	if raw, ok := lookupNonEmpty(key); ok {
		apply(raw)
	}
}

func applyIntEnv(key string, apply func(int)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.Atoi(raw); err == nil {
			apply(value)
		}
	}
}

func applyBoolEnv(key string, apply func(bool)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.ParseBool(raw); err == nil {
			apply(value)
		}
	}
}

func applyDurationEnv(key string, apply func(time.Duration)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := time.ParseDuration(raw); err == nil {
			apply(value)
		}
	}
}

func lookupNonEmpty(key string) (string, bool) {
	raw, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	return value, true
}

// Finalize validates and normalizes paths.
func Finalize(cfg *Config) error {
	if cfg.ContentDir == "" {
		cfg.ContentDir = "content"
	}
	content, err := filepath.Abs(cfg.ContentDir)
	if err != nil {
		return fmt.Errorf("resolve content directory: %w", err)
	}
	cfg.ContentDir = content

	if cfg.OutputDir == "" {
		cfg.OutputDir = "public"
	}
	out, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}
	cfg.OutputDir = out

	for _, p := range []*string{&cfg.SiteFile, &cfg.AssetsDir, &cfg.OGFont, &cfg.OGLogo} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolve path %q: %w", *p, err)
		}
		*p = abs
	}

	// Allow port 0 for dynamic allocation, otherwise validate range
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.SMTPPort <= 0 || cfg.SMTPPort > 65535 {
		return fmt.Errorf("invalid smtp port: %d", cfg.SMTPPort)
	}

	owner, name, ok := strings.Cut(cfg.GitHubRepo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("invalid github repo %q: want owner/name", cfg.GitHubRepo)
	}
	if cfg.ReleasesTTL <= 0 {
		return fmt.Errorf("invalid releases ttl: %s", cfg.ReleasesTTL)
	}
	if cfg.UpstreamWait <= 0 {
		cfg.UpstreamWait = 10 * time.Second
	}

	if _, err := mail.ParseAddress(cfg.ContactTo); err != nil {
		return fmt.Errorf("invalid contact address %q: %w", cfg.ContactTo, err)
	}

	return nil
}
