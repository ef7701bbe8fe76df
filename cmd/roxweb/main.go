// Package main provides the Rox homepage server entrypoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/Love-Rox/rox-homepage/internal/buildinfo"
	"github.com/Love-Rox/rox-homepage/internal/config"
	"github.com/Love-Rox/rox-homepage/internal/contact"
	"github.com/Love-Rox/rox-homepage/internal/content"
	"github.com/Love-Rox/rox-homepage/internal/exporter"
	"github.com/Love-Rox/rox-homepage/internal/ogimage"
	"github.com/Love-Rox/rox-homepage/internal/releases"
	"github.com/Love-Rox/rox-homepage/internal/renderer"
	d2renderer "github.com/Love-Rox/rox-homepage/internal/renderer/d2"
	"github.com/Love-Rox/rox-homepage/internal/search"
	"github.com/Love-Rox/rox-homepage/internal/server"
	"github.com/Love-Rox/rox-homepage/internal/site"
)

func main() {
	cfg := config.Default()
	config.ApplyEnvOverrides(&cfg)

	flags := pflag.NewFlagSet("roxweb", pflag.ExitOnError)
	config.RegisterFlags(flags, &cfg)
	versionFlag := flags.Bool("version", false, "Print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("parse flags", slog.Any("err", err))
		os.Exit(1)
	}
	if *versionFlag {
		fmt.Println(buildinfo.Summary())
		os.Exit(0)
	}
	if err := config.Finalize(&cfg); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	logLevel := slog.LevelWarn
	switch {
	case cfg.Dev:
		logLevel = slog.LevelDebug
	case cfg.Verbose:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger = logger.With("app", "roxweb")
	slog.SetDefault(logger)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		logger.Warn("set GOMAXPROCS", slog.Any("err", err))
	}
	logger.Log(context.Background(), slog.LevelInfo-1, "starting roxweb", slog.String("version", buildinfo.Summary()))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("shutdown complete")
			return
		}
		cancel()
		logger.Error("server error", slog.Any("err", err))
		//nolint:gocritic // exitAfterDefer: cancel() explicitly called before os.Exit
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	st, err := site.Load(cfg.SiteFile)
	if err != nil {
		return fmt.Errorf("load site definition: %w", err)
	}

	diagrams := d2renderer.New(logger, nil)
	rendererSvc := renderer.NewService(logger, renderer.Options{Diagrams: diagrams})
	contentSvc, err := content.NewService(cfg.ContentDir, rendererSvc, st.Locales, logger)
	if err != nil {
		return fmt.Errorf("content service init: %w", err)
	}

	svc := server.Services{
		Site:     st,
		Content:  contentSvc,
		Exporter: exporter.New(contentSvc, diagrams, st.Name, logger),
		OG:       ogimage.NewGenerator(ogimage.NewAssetCache(), ogimage.DefaultAssets(cfg.OGFont, cfg.OGLogo), logger),
	}

	releaseClient, err := releases.NewClient(releases.Options{
		BaseURL: cfg.GitHubAPI,
		Repo:    cfg.GitHubRepo,
		Token:   cfg.GitHubToken,
		TTL:     cfg.ReleasesTTL,
	}, logger)
	if err != nil {
		return fmt.Errorf("releases client init: %w", err)
	}
	svc.Releases = releaseClient

	if cfg.TurnstileSecret == "" {
		logger.Warn("turnstile secret not set; contact submissions will be rejected")
	}
	if cfg.SMTPUser == "" || cfg.SMTPPassword == "" {
		logger.Warn("smtp credentials not set; contact emails cannot be sent")
	}
	svc.Contact = contact.NewService(
		contact.NewTurnstile(cfg.TurnstileSecret, cfg.TurnstileURL, cfg.UpstreamWait, logger),
		contact.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		cfg.SMTPUser,
		cfg.ContactTo,
		logger,
	)

	searchSvc, err := search.NewService(cfg.ContentDir, logger)
	if err != nil {
		logger.Warn("search disabled", slog.Any("err", err))
	} else {
		svc.Search = searchSvc
	}

	if cfg.Dev {
		watcher, err := content.NewWatcher(ctx, cfg.ContentDir, logger)
		if err != nil {
			return fmt.Errorf("content watcher init: %w", err)
		}
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Error("close content watcher", slog.Any("err", err))
			}
		}()
		svc.Watcher = watcher
	}

	srv, err := server.New(cfg, logger, svc)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}
	return srv.Start(ctx)
}
