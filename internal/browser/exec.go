package browser

import (
	"context"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ExecOptions configures local Chrome processes
type ExecOptions struct {
	// ExecPath of the Chrome binary. Empty lets chromedp find one.
	ExecPath     string
	WindowWidth  int
	WindowHeight int
	NoSandbox    bool
}

// ExecLauncher starts a headless Chrome process on this host per invocation
type ExecLauncher struct {
	opts   ExecOptions
	logger *zap.Logger
}

// NewExecLauncher creates a launcher for local Chrome processes
func NewExecLauncher(opts ExecOptions, logger *zap.Logger) *ExecLauncher {
	return &ExecLauncher{opts: opts, logger: logger}
}

func (l *ExecLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Headless,
		chromedp.DisableGPU,
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
	)
	if l.opts.WindowWidth > 0 && l.opts.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(l.opts.WindowWidth, l.opts.WindowHeight))
	}
	if l.opts.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if l.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.opts.ExecPath))
	}
	return opts
}

// Acquire launches a new browser process. chromedp gives it a private
// temporary profile that is deleted when the allocator is cancelled.
func (l *ExecLauncher) Acquire(ctx context.Context, invocationID string) (Sandbox, error) {
	logger := l.logger.With(zap.String("invocation_id", invocationID), zap.String("launcher", "exec"))

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	sb, err := startChrome(ctx, allocCtx, cancelAlloc, logger, nil)
	if err != nil {
		return nil, err
	}

	logger.Debug("browser launched")
	return sb, nil
}
