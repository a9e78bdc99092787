package trawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrRendererDisabled indicates rendering has been disabled via configuration.
var ErrRendererDisabled = errors.New("renderer disabled")

// RenderedPage is the outcome of a headless render: the visible text for
// whole-page matching plus the DOM snapshot for listing extraction.
type RenderedPage struct {
	Text string
	HTML []byte
}

// Renderer loads a page through a shared headless browser. One browser
// process serves the whole run; each Render opens an isolated tab.
// Close must be called exactly once when the run ends.
type Renderer interface {
	Render(ctx context.Context, rawURL string, settle time.Duration) (RenderedPage, error)
	Close(ctx context.Context) error
}

// RenderConfig controls the headless rendering path for one run.
type RenderConfig struct {
	UserAgent  string
	NavTimeout time.Duration
}

// RendererFactory builds a run-scoped Renderer.
type RendererFactory func(cfg RenderConfig, logger *zap.Logger) (Renderer, error)

// ChromedpRenderer renders pages using headless Chrome via chromedp. The
// browser process starts lazily on the first Render call, so runs that
// never need the fallback pay nothing.
type ChromedpRenderer struct {
	cfg    RenderConfig
	logger *zap.Logger

	startOnce       sync.Once
	startErr        error
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
}

// NewChromedpRenderer creates a renderer using the provided configuration.
func NewChromedpRenderer(cfg RenderConfig, logger *zap.Logger) (Renderer, error) {
	if cfg.NavTimeout <= 0 {
		return nil, ErrRendererDisabled
	}
	return &ChromedpRenderer{cfg: cfg, logger: logger}, nil
}

func (r *ChromedpRenderer) start() error {
	r.startOnce.Do(func() {
		opts := chromedp.DefaultExecAllocatorOptions[:]
		opts = append(opts,
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.NoSandbox,
			chromedp.UserAgent(r.cfg.UserAgent),
		)
		allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
		if err := chromedp.Run(browserCtx); err != nil {
			allocatorCancel()
			browserCancel()
			r.startErr = fmt.Errorf("chromedp warmup: %w", err)
			return
		}
		r.allocatorCancel = allocatorCancel
		r.browserCtx = browserCtx
		r.browserCancel = browserCancel
		r.logger.Debug("shared headless browser started")
	})
	return r.startErr
}

// Render opens a tab, navigates, waits the settle delay for dynamic
// content, and returns the visible body text plus the DOM snapshot.
func (r *ChromedpRenderer) Render(ctx context.Context, rawURL string, settle time.Duration) (RenderedPage, error) {
	if r == nil {
		return RenderedPage{}, ErrRendererDisabled
	}
	if err := r.start(); err != nil {
		return RenderedPage{}, err
	}

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, r.cfg.NavTimeout+settle)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	var text, html string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(r.cfg.UserAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if settle > 0 {
		tasks = append(tasks, chromedp.Sleep(settle))
	}
	tasks = append(tasks,
		chromedp.Text("body", &text, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return RenderedPage{}, fmt.Errorf("chromedp run: %w", err)
	}
	return RenderedPage{Text: text, HTML: []byte(html)}, nil
}

// Close tears down the browser process if it was ever started.
func (r *ChromedpRenderer) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if r.browserCancel != nil {
		r.browserCancel()
	}
	if r.allocatorCancel != nil {
		r.allocatorCancel()
	}
	select {
	case <-ctx.Done():
	default:
	}
	return nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
