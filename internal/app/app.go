// Package app wires configuration into a ready job runner and HTTP adapter.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/chromeserver/internal/api"
	"github.com/shehryarbajwa/chromeserver/internal/browser"
	"github.com/shehryarbajwa/chromeserver/internal/config"
	"github.com/shehryarbajwa/chromeserver/internal/metrics"
	"github.com/shehryarbajwa/chromeserver/internal/runner"
	"github.com/shehryarbajwa/chromeserver/internal/scratch"
	"github.com/shehryarbajwa/chromeserver/internal/script"
	"github.com/shehryarbajwa/chromeserver/internal/storage"
)

// App holds the long-lived components of one process
type App struct {
	Runner  *runner.Runner
	Adapter *api.Adapter
	Metrics *metrics.Metrics
	Store   storage.Store

	docker *browser.DockerLauncher
	logger *zap.Logger
}

// New builds every component from cfg
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		Metrics: metrics.New(),
		logger:  logger,
	}

	var launcher browser.Launcher
	switch cfg.Browser.Mode {
	case config.BrowserModeDocker:
		docker, err := browser.NewDockerLauncher(browser.DockerOptions{
			Image:        cfg.Browser.Image,
			ReadyTimeout: cfg.Browser.ReadyTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.docker = docker
		launcher = docker
	default:
		launcher = browser.NewExecLauncher(browser.ExecOptions{
			ExecPath:     cfg.Browser.ChromePath,
			WindowWidth:  cfg.Browser.WindowWidth,
			WindowHeight: cfg.Browser.WindowHeight,
			NoSandbox:    cfg.Browser.NoSandbox,
		}, logger)
	}

	store, err := storage.New(ctx, storage.S3Options{
		Bucket:        cfg.Artifact.Bucket,
		Region:        cfg.Artifact.Region,
		PublicBaseURL: cfg.Artifact.PublicBaseURL,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	if _, ok := store.(storage.Unconfigured); ok {
		logger.Warn("artifact uploads disabled, BUCKET_NAME not set")
	}
	a.Store = store

	a.Runner = runner.New(runner.Options{
		Scripts:  scratch.NewMaterializer(cfg.Scratch.Dir),
		Launcher: launcher,
		Loader:   script.NewGojaLoader(),
		Logger:   logger,
		Metrics:  a.Metrics,
		Timeout:  cfg.Job.Timeout,
	})

	a.Adapter = api.NewAdapter(api.AdapterOptions{
		Runner:         a.Runner,
		Store:          store,
		ArtifactPrefix: cfg.Artifact.Prefix,
		Logger:         logger,
	})

	return a, nil
}

// Warmup pulls the browser image ahead of the first job in docker mode
func (a *App) Warmup(ctx context.Context) error {
	if a.docker == nil {
		return nil
	}
	a.logger.Info("ensuring browser image is available")
	if err := a.docker.EnsureImage(ctx); err != nil {
		return fmt.Errorf("failed to ensure browser image: %w", err)
	}
	return nil
}

// Close releases process-wide resources
func (a *App) Close() error {
	if a.docker != nil {
		return a.docker.Close()
	}
	return nil
}
