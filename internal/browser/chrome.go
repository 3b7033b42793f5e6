package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// chromeSandbox drives one browser through the DevTools protocol. The browser
// itself may be a local process or a container, depending on the allocator.
type chromeSandbox struct {
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	// release runs after the browser is closed, e.g. to remove its container
	release func(ctx context.Context) error

	pages  pageList
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// startChrome connects to the allocator and opens the initial browser target.
// On failure every resource created so far is released.
func startChrome(ctx context.Context, allocCtx context.Context, cancelAlloc context.CancelFunc, logger *zap.Logger, release func(context.Context) error) (*chromeSandbox, error) {
	sugar := logger.Sugar()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	stop := context.AfterFunc(ctx, cancelBrowser)
	err := chromedp.Run(browserCtx)
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		cancelBrowser()
		cancelAlloc()
		if release != nil {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				logger.Warn("failed to release browser after launch failure", zap.Error(rerr))
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	return &chromeSandbox{
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		release:       release,
		logger:        logger,
	}, nil
}

func (s *chromeSandbox) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// NewPage opens a new tab in the browser
func (s *chromeSandbox) NewPage(ctx context.Context) (Page, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	pageCtx, cancel := chromedp.NewContext(s.browserCtx)
	p := &chromePage{ctx: pageCtx, cancel: cancel, owner: s}
	if err := p.run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	if c := chromedp.FromContext(pageCtx); c != nil && c.Target != nil {
		p.id = string(c.Target.TargetID)
	}
	s.pages.add(p)

	s.logger.Debug("page opened", zap.String("page_id", p.id))
	return p, nil
}

// Pages lists pages opened through NewPage that are still alive
func (s *chromeSandbox) Pages(ctx context.Context) ([]Page, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	runCtx, cancel := context.WithCancel(s.browserCtx)
	defer cancel()
	defer context.AfterFunc(ctx, cancel)()

	infos, err := chromedp.Targets(runCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	live := make(map[string]bool, len(infos))
	for _, info := range infos {
		if info.Type == "page" {
			live[string(info.TargetID)] = true
		}
	}
	return s.pages.list(live), nil
}

// Close shuts the browser down and releases its allocator
func (s *chromeSandbox) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if err := chromedp.Cancel(s.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
	}
	s.cancelBrowser()
	s.cancelAlloc()

	if s.release != nil {
		if err := s.release(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// chromePage is one tab, bound to its own chromedp target context
type chromePage struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	owner  *chromeSandbox

	closeOnce sync.Once
}

func (p *chromePage) ID() string {
	return p.id
}

// run executes actions on the tab, aborting when ctx is done. Cancelling a
// derived context leaves the tab open.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.owner.isClosed() {
		return ErrClosed
	}
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	defer context.AfterFunc(ctx, cancel)()

	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) Evaluate(ctx context.Context, expression string) (any, error) {
	expr := strings.TrimRight(strings.TrimSpace(expression), ";")
	wrapped := fmt.Sprintf("(async () => (%s))().then(v => v === undefined ? null : v)", expr)

	var res any
	err := p.run(ctx, chromedp.Evaluate(wrapped, &res, func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true)
	}))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p *chromePage) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := p.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return text, nil
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *chromePage) Type(ctx context.Context, selector, text string) error {
	return p.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *chromePage) SetViewport(ctx context.Context, width, height int) error {
	return p.run(ctx, chromedp.EmulateViewport(int64(width), int64(height)))
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close closes the tab
func (p *chromePage) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		p.owner.pages.remove(p.id)
	})
	return nil
}
