// Package browser drives a headless Chrome through chromedp.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/coopco/lunchbot/internal/submitter"
)

// pickAttr marks the element an action should target.
const pickAttr = "data-lunchbot-pick"

var pickSelector = fmt.Sprintf(`[%s="1"]`, pickAttr)

// Config controls how Chrome is launched.
type Config struct {
	Headless  bool
	ExecPath  string
	UserAgent string
	// SlowMo pauses after every action.
	SlowMo time.Duration
}

// Chrome launches one fresh browser per Open call.
type Chrome struct {
	cfg Config
}

func New(cfg Config) *Chrome {
	return &Chrome{cfg: cfg}
}

// Open starts Chrome. The browser lives until the page is closed or ctx ends.
func (c *Chrome) Open(ctx context.Context) (submitter.Page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.cfg.Headless),
		chromedp.WindowSize(1280, 1024),
	)
	if c.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.ExecPath))
	}
	if c.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.cfg.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser.
	if err := chromedp.Run(taskCtx); err != nil {
		cancelTask()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}
	slog.Debug("browser: chrome started", "headless", c.cfg.Headless)
	return &page{ctx: taskCtx, cancelTask: cancelTask, cancelAlloc: cancelAlloc, slowMo: c.cfg.SlowMo}, nil
}

type page struct {
	ctx         context.Context
	cancelTask  context.CancelFunc
	cancelAlloc context.CancelFunc
	slowMo      time.Duration
}

// run executes actions on the browser context, aborting when ctx ends.
func (p *page) run(ctx context.Context, actions ...chromedp.Action) error {
	rctx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if p.slowMo > 0 {
		actions = append(actions, chromedp.Sleep(p.slowMo))
	}
	return chromedp.Run(rctx, actions...)
}

// pick tags the target element with pickAttr. It fails if nothing matches.
func (p *page) pick(ctx context.Context, selector string, index int, visibleOnly bool, text string) error {
	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(pickScript(selector, index, visibleOnly, text), &ok)); err != nil {
		return err
	}
	if !ok {
		if text != "" {
			return fmt.Errorf("no element %s with text %q", selector, text)
		}
		return fmt.Errorf("no element %s at index %d", selector, index)
	}
	return nil
}

func (p *page) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *page) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *page) Fill(ctx context.Context, selector string, index int, value string) error {
	if err := p.pick(ctx, selector, index, false, ""); err != nil {
		return err
	}
	return p.run(ctx,
		chromedp.Click(pickSelector, chromedp.ByQuery),
		chromedp.SetValue(pickSelector, "", chromedp.ByQuery),
		chromedp.SendKeys(pickSelector, value, chromedp.ByQuery),
	)
}

func (p *page) Click(ctx context.Context, selector string, index int) error {
	if err := p.pick(ctx, selector, index, false, ""); err != nil {
		return err
	}
	return p.run(ctx, chromedp.Click(pickSelector, chromedp.ByQuery))
}

func (p *page) ClickText(ctx context.Context, selector, text string) error {
	if err := p.pick(ctx, selector, 0, false, text); err != nil {
		return err
	}
	return p.run(ctx, chromedp.Click(pickSelector, chromedp.ByQuery))
}

func (p *page) ClickVisible(ctx context.Context, selector string, index int) error {
	if err := p.pick(ctx, selector, index, true, ""); err != nil {
		return err
	}
	return p.run(ctx, chromedp.Click(pickSelector, chromedp.ByQuery))
}

func (p *page) VisibleTexts(ctx context.Context, selector string) ([]string, error) {
	var texts []string
	if err := p.run(ctx, chromedp.Evaluate(visibleTextsScript(selector), &texts)); err != nil {
		return nil, err
	}
	return texts, nil
}

// Close shuts the browser down and waits for the process to exit.
func (p *page) Close() error {
	err := chromedp.Cancel(p.ctx)
	p.cancelTask()
	p.cancelAlloc()
	if err != nil && err != context.Canceled {
		return fmt.Errorf("failed to close chrome: %w", err)
	}
	return nil
}
