// Package browser implements page.Session on top of a chromedp-controlled
// Chrome instance. One Session owns one browser process and one tab.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/williampepple1/speedscraper/internal/config"
	"github.com/williampepple1/speedscraper/internal/page"
)

// lifecycleInit is the lifecycle event fired when a new document commits
const lifecycleInit = "init"

// Session is a single browser tab reused for every provider
type Session struct {
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *zap.Logger
	navTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

var _ page.Session = (*Session)(nil)

// launchFlags returns the Chrome command line switches for cfg
func launchFlags(cfg config.BrowserConfig, proxyServer string) map[string]interface{} {
	flags := map[string]interface{}{
		"headless": cfg.Headless,
	}
	if cfg.NoSandbox {
		flags["no-sandbox"] = true
	}
	if cfg.DisableWebSecurity {
		flags["disable-web-security"] = true
		// site isolation is already off in chromedp's defaults
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", cfg.ViewportWidth, cfg.ViewportHeight)
	}
	if proxyServer != "" {
		flags["proxy-server"] = proxyServer
	}
	return flags
}

// AllocatorOptions builds the exec allocator options for cfg
func AllocatorOptions(cfg config.BrowserConfig, proxyServer string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range launchFlags(cfg, proxyServer) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Launch starts Chrome and opens the tab. The returned Session must be
// closed; closing it terminates the browser.
func Launch(ctx context.Context, cfg config.BrowserConfig, proxyServer string, logger *zap.Logger) (*Session, error) {
	id := uuid.New().String()
	log := logger.With(zap.String("session_id", id))

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg, proxyServer)...)
	sugar := log.Named("cdp").Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	)

	cancel := func() {
		tabCancel()
		allocCancel()
	}

	// The first Run starts the browser process.
	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(cfg.ViewportWidth), int64(cfg.ViewportHeight)),
		cdppage.SetLifecycleEventsEnabled(true),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	log.Info("Browser session started.",
		zap.Bool("headless", cfg.Headless),
		zap.String("proxy", proxyServer),
		zap.Duration("navigation_timeout", cfg.NavigationTimeout))

	return &Session{
		ctx:        tabCtx,
		cancel:     cancel,
		logger:     log,
		navTimeout: cfg.NavigationTimeout,
	}, nil
}

// Navigate loads url and waits until every lifecycle event in ready has
// fired for the new document. With a zero navigation timeout the wait is
// bounded only by ctx.
func (s *Session) Navigate(ctx context.Context, url string, ready page.ReadyCondition) error {
	if s.navTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.navTimeout)
		defer cancel()
	}

	runCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()

	var frameID cdp.FrameID
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(c context.Context) error {
		tree, err := cdppage.GetFrameTree().Do(c)
		if err != nil {
			return err
		}
		frameID = tree.Frame.ID
		return nil
	}))
	if err != nil {
		return fmt.Errorf("resolve main frame: %w", err)
	}

	events := make(chan string, 256)
	chromedp.ListenTarget(runCtx, func(ev interface{}) {
		e, ok := ev.(*cdppage.EventLifecycleEvent)
		if !ok || e.FrameID != frameID {
			return
		}
		select {
		case events <- e.Name:
		default:
		}
	})

	// Page.navigate returns on commit; the lifecycle events decide readiness
	err = chromedp.Run(runCtx, chromedp.ActionFunc(func(c context.Context) error {
		var res cdppage.NavigateReturns
		if err := cdp.Execute(c, cdppage.CommandNavigate, cdppage.Navigate(url), &res); err != nil {
			return err
		}
		if res.ErrorText != "" {
			return errors.New(res.ErrorText)
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}

	required := ready.Events()
	pending := pendingSet(required)
	for len(pending) > 0 {
		select {
		case name := <-events:
			if name == lifecycleInit {
				pending = pendingSet(required)
				continue
			}
			delete(pending, page.LoadEvent(name))
		case <-runCtx.Done():
			return fmt.Errorf("wait for %s on %s: %w", joinEvents(pending), url, runCtx.Err())
		}
	}

	s.logger.Debug("Page ready.", zap.String("url", url), zap.Int("events", len(required)))
	return nil
}

// Click clicks the first element matching selector once it is visible
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// Evaluate runs script in the page and decodes the result into res
func (s *Session) Evaluate(ctx context.Context, script string, res interface{}) error {
	return s.run(ctx, chromedp.Evaluate(script, res))
}

// Document snapshots the rendered DOM for goquery extraction
func (s *Session) Document(ctx context.Context) (*goquery.Document, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// Close shuts the browser down. It is safe to call more than once; only
// the first call has an effect.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		// Cancel closes the browser gracefully before the contexts go away
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancel()
		s.logger.Info("Browser session closed.")
	})
	return s.closeErr
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// combineContext derives from the chromedp context so its values are kept,
// and cancels as soon as either parent is done.
func combineContext(chromeCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(chromeCtx)
	stop := context.AfterFunc(callerCtx, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

func pendingSet(events []page.LoadEvent) map[page.LoadEvent]bool {
	pending := make(map[page.LoadEvent]bool, len(events))
	for _, e := range events {
		pending[e] = true
	}
	return pending
}

func joinEvents(pending map[page.LoadEvent]bool) string {
	names := make([]string, 0, len(pending))
	for e := range pending {
		names = append(names, string(e))
	}
	return strings.Join(names, ",")
}
