package chromedp_renderer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/internal/repository"
)

const doctype = "<!DOCTYPE html>\n"

// ChromedpRenderer drives a single headless tab, reused serially for every page.
type ChromedpRenderer struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	timeout     time.Duration
	hydration   time.Duration
	logger      *zap.Logger
}

var _ repository.Renderer = (*ChromedpRenderer)(nil)

// NewChromedpRenderer starts the browser and opens the tab.
func NewChromedpRenderer(userAgent string, navTimeout, hydration time.Duration, logger *zap.Logger) (*ChromedpRenderer, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1440, 900),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
	); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &ChromedpRenderer{
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		timeout:     navTimeout,
		hydration:   hydration,
		logger:      logger,
	}, nil
}

// Render navigates the tab to url, waits for network idle plus the hydration
// delay and captures the serialized DOM.
func (r *ChromedpRenderer) Render(ctx context.Context, url string) (*entity.RenderedPage, error) {
	// Cancelling a derived context aborts the actions without closing the tab.
	navCtx, cancel := context.WithTimeout(r.tabCtx, r.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	idle := make(chan struct{})
	var once sync.Once
	started := false
	chromedp.ListenTarget(navCtx, func(ev interface{}) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok {
			return
		}
		switch e.Name {
		case "init":
			started = true
		case "networkIdle":
			if started {
				once.Do(func() { close(idle) })
			}
		}
	})

	start := time.Now()
	resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(url))
	if err != nil {
		return nil, r.classify(ctx, navCtx, url, err)
	}

	status := 0
	if resp != nil {
		status = int(resp.Status)
	}
	if status < 200 || status > 299 {
		return &entity.RenderedPage{URL: url, StatusCode: status, Duration: time.Since(start)},
			fmt.Errorf("%w: %s returned %d", repository.ErrBadStatus, url, status)
	}

	select {
	case <-idle:
	case <-navCtx.Done():
		return nil, r.classify(ctx, navCtx, url, navCtx.Err())
	}

	var html string
	if err := chromedp.Run(navCtx,
		chromedp.Sleep(r.hydration),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, r.classify(ctx, navCtx, url, err)
	}

	return &entity.RenderedPage{
		URL:        url,
		StatusCode: status,
		HTML:       doctype + html,
		Duration:   time.Since(start),
	}, nil
}

func (r *ChromedpRenderer) classify(parent, navCtx context.Context, url string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", repository.ErrNavigationTimeout, url, r.timeout)
	}
	return fmt.Errorf("%w: %s: %v", repository.ErrNavigationFailed, url, err)
}

func (r *ChromedpRenderer) Close() {
	r.tabCancel()
	r.allocCancel()
}
