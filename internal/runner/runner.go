// Package runner drives one job invocation from script source to result record.
//
// Lifecycle:
//
//	materialize script -> acquire browser -> load unit -> run handler
//	  -> (on failure) best-effort screenshot -> release browser -> release script
//
// Releases run on every exit path, browser first, and a failing release never
// changes the result.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/chromeserver/internal/browser"
	"github.com/shehryarbajwa/chromeserver/internal/invocation"
	"github.com/shehryarbajwa/chromeserver/internal/metrics"
	"github.com/shehryarbajwa/chromeserver/internal/scratch"
	"github.com/shehryarbajwa/chromeserver/internal/script"
	"github.com/shehryarbajwa/chromeserver/pkg/models"
)

const (
	// AutoScreenshotName is the artifact name of failure screenshots
	AutoScreenshotName = "errorAutoScreenshot.png"

	loadErrorPrefix       = "error loading job: "
	defaultCleanupTimeout = 30 * time.Second
)

// Materializer writes and removes scratch scripts
type Materializer interface {
	Materialize(id, source string) (*scratch.Script, error)
	Release(s *scratch.Script) error
}

// Options holds the runner's collaborators
type Options struct {
	Scripts  Materializer
	Launcher browser.Launcher
	Loader   script.Loader
	Logger   *zap.Logger
	// Metrics may be nil
	Metrics *metrics.Metrics
	// Timeout bounds a whole invocation. Zero means no limit.
	Timeout time.Duration
	// CleanupTimeout bounds releases and the failure screenshot, which run
	// even after the invocation context is done
	CleanupTimeout time.Duration
}

// Runner executes job invocations. It holds no per-invocation state and is
// safe for concurrent use.
type Runner struct {
	scripts        Materializer
	launcher       browser.Launcher
	loader         script.Loader
	logger         *zap.Logger
	metrics        *metrics.Metrics
	timeout        time.Duration
	cleanupTimeout time.Duration
}

// New creates a runner
func New(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cleanup := opts.CleanupTimeout
	if cleanup <= 0 {
		cleanup = defaultCleanupTimeout
	}
	return &Runner{
		scripts:        opts.Scripts,
		launcher:       opts.Launcher,
		loader:         opts.Loader,
		logger:         logger,
		metrics:        opts.Metrics,
		timeout:        opts.Timeout,
		cleanupTimeout: cleanup,
	}
}

// Run executes source for inv and returns its result record. Failures of the
// job are reported inside the record, never as an error.
func (r *Runner) Run(ctx context.Context, inv *invocation.Context, source string) models.Output {
	start := time.Now()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	logger := inv.Logger()
	logger.Info("job started", zap.Int("script_bytes", len(source)))

	outcome := r.execute(ctx, inv, source)

	elapsed := time.Since(start)
	if r.metrics != nil {
		r.metrics.Invocations.WithLabelValues(outcome).Inc()
		r.metrics.InvocationDuration.Observe(elapsed.Seconds())
	}
	logger.Info("job finished", zap.String("outcome", outcome), zap.Duration("duration", elapsed))

	return inv.Output()
}

func (r *Runner) execute(ctx context.Context, inv *invocation.Context, source string) (outcome string) {
	logger := inv.Logger()

	// registered first so it runs after both releases
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("job panicked", zap.Any("panic", rec), zap.Stack("stack"))
			inv.Fail(fmt.Sprintf("panic: %v", rec))
			outcome = metrics.OutcomeFailed
		}
	}()

	s, err := r.scripts.Materialize(inv.ID(), source)
	if err != nil {
		inv.Fail(loadErrorPrefix + err.Error())
		return metrics.OutcomeLoadError
	}
	defer r.releaseScript(logger, s)

	sb, err := r.launcher.Acquire(ctx, inv.ID())
	if err != nil {
		inv.Fail(loadErrorPrefix + err.Error())
		return metrics.OutcomeLoadError
	}
	defer r.releaseSandbox(ctx, logger, sb)

	unit, err := r.loader.Load(s.Path())
	if err != nil {
		inv.Fail(loadErrorPrefix + err.Error())
		return metrics.OutcomeLoadError
	}

	if err := unit.Run(ctx, inv, sb); err != nil {
		var loadErr *script.LoadError
		if errors.As(err, &loadErr) {
			inv.Fail(loadErrorPrefix + err.Error())
			return metrics.OutcomeLoadError
		}

		inv.Fail(err.Error())
		if inv.AutoScreenshot() {
			r.captureFailure(ctx, inv, sb)
		}
		return metrics.OutcomeFailed
	}

	return metrics.OutcomeSucceeded
}

// captureFailure uploads a screenshot of the most recently opened page. Its
// own failures are reported as an error message and never replace the job's error.
func (r *Runner) captureFailure(ctx context.Context, inv *invocation.Context, sb browser.Sandbox) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cleanupTimeout)
	defer cancel()

	url, err := screenshotLastPage(ctx, inv, sb)
	switch {
	case err != nil:
		r.countUpload("failed")
		inv.Error("errorAutoScreenshot: " + err.Error())
	case url != "":
		r.countUpload("ok")
		inv.SetScreenshotURL(url)
	}
}

// screenshotLastPage returns "" without uploading when no page is open
func screenshotLastPage(ctx context.Context, inv *invocation.Context, sb browser.Sandbox) (string, error) {
	pages, err := sb.Pages(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list pages: %w", err)
	}
	if len(pages) == 0 {
		return "", nil
	}

	png, err := pages[len(pages)-1].Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to capture page: %w", err)
	}

	url, err := inv.UploadArtifact(ctx, AutoScreenshotName, png, "image/png")
	if err != nil {
		return "", fmt.Errorf("failed to upload screenshot: %w", err)
	}
	return url, nil
}

func (r *Runner) releaseSandbox(ctx context.Context, logger *zap.Logger, sb browser.Sandbox) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cleanupTimeout)
	defer cancel()

	if err := sb.Close(ctx); err != nil {
		logger.Error("failed to release browser", zap.Error(err))
		r.countCleanupFailure("sandbox")
	}
}

func (r *Runner) releaseScript(logger *zap.Logger, s *scratch.Script) {
	if err := r.scripts.Release(s); err != nil {
		logger.Error("failed to release script", zap.String("path", s.Path()), zap.Error(err))
		r.countCleanupFailure("script")
	}
}

func (r *Runner) countCleanupFailure(resource string) {
	if r.metrics != nil {
		r.metrics.CleanupFailures.WithLabelValues(resource).Inc()
	}
}

func (r *Runner) countUpload(status string) {
	if r.metrics != nil {
		r.metrics.ArtifactUploads.WithLabelValues(status).Inc()
	}
}
