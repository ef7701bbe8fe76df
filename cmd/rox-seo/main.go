// Package main generates sitemap.xml and robots.txt for the Rox homepage.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Love-Rox/rox-homepage/internal/buildinfo"
	"github.com/Love-Rox/rox-homepage/internal/config"
	"github.com/Love-Rox/rox-homepage/internal/content"
	"github.com/Love-Rox/rox-homepage/internal/renderer"
	"github.com/Love-Rox/rox-homepage/internal/seo"
	"github.com/Love-Rox/rox-homepage/internal/site"
)

func main() {
	cfg := config.Default()
	config.ApplyEnvOverrides(&cfg)

	flags := pflag.NewFlagSet("rox-seo", pflag.ExitOnError)
	config.RegisterFlags(flags, &cfg)
	versionFlag := flags.Bool("version", false, "Print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "parse flags: %v\n", err)
		os.Exit(1)
	}
	if *versionFlag {
		fmt.Println(buildinfo.Summary())
		os.Exit(0)
	}
	if err := config.Finalize(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})).With("app", "rox-seo")
	logger.Info("starting rox-seo", slog.String("version", buildinfo.Summary()))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := generate(ctx, cfg, logger); err != nil {
		cancel()
		logger.Error("generate failed", slog.Any("err", err))
		//nolint:gocritic // exitAfterDefer: cancel() explicitly called before os.Exit
		os.Exit(1)
	}
}

func generate(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	st, err := site.Load(cfg.SiteFile)
	if err != nil {
		return fmt.Errorf("load site definition: %w", err)
	}
	svc, err := content.NewService(cfg.ContentDir, renderer.NewService(logger, renderer.Options{}), st.Locales, logger)
	if err != nil {
		return fmt.Errorf("content service init: %w", err)
	}
	if err := seo.Generate(ctx, svc, st, cfg.OutputDir); err != nil {
		return err
	}
	fmt.Printf("Wrote %s and %s\n",
		filepath.Join(cfg.OutputDir, "sitemap.xml"),
		filepath.Join(cfg.OutputDir, "robots.txt"))
	return nil
}
