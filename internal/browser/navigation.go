package browser

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
)

const (
	navTimeout         = 30 * time.Second
	readySelectorWait  = 5 * time.Second
	networkIdleWait    = 8 * time.Second
	networkQuietPeriod = 300 * time.Millisecond
	settleDelay        = 500 * time.Millisecond
	sitemapOnlySettle  = 200 * time.Millisecond
	readySelector      = `main,[data-wf-page],.w-nav,article,#root`
)

// navigate performs spec §4.3 step 2: navigate, then race a ready-selector
// wait against a network-idle wait, then settle. On navigation timeout it
// retries once.
func (s *Session) navigate(ctx context.Context, pageURL string) error {
	if err := runNavigate(ctx, pageURL, navTimeout); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		s.log.Warn("navigation timed out, retrying once", logger.String("url", pageURL))
		if err := runNavigate(ctx, pageURL, navTimeout); err != nil {
			return err
		}
	}

	awaitReady(ctx)

	settle := settleDelay
	if s.sitemapOnly {
		settle = sitemapOnlySettle
	}
	_ = chromedp.Run(ctx, chromedp.Sleep(settle))
	return nil
}

func runNavigate(ctx context.Context, pageURL string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := chromedp.Run(navCtx, chromedp.Navigate(pageURL)); err != nil {
		if navCtx.Err() != nil {
			return context.DeadlineExceeded
		}
		return fmt.Errorf("navigate: %w", err)
	}
	return nil
}

// awaitReady races a ready-selector wait against a network-idle wait, per
// spec §4.3 step 2. Either signal is sufficient; both are best-effort.
func awaitReady(parent context.Context) {
	selReady := make(chan struct{})
	go func() {
		selCtx, cancel := context.WithTimeout(parent, readySelectorWait)
		defer cancel()
		_ = chromedp.Run(selCtx, chromedp.WaitVisible(readySelector, chromedp.ByQuery))
		close(selReady)
	}()

	idleReady := make(chan struct{})
	go func() {
		waitNetworkIdle(parent, networkIdleWait)
		close(idleReady)
	}()

	select {
	case <-selReady:
	case <-idleReady:
	case <-parent.Done():
	}
}

// waitNetworkIdle blocks until no network requests have been in flight for
// networkQuietPeriod, or timeout elapses, tracked via cdproto network
// lifecycle events on the page's chromedp context.
func waitNetworkIdle(parent context.Context, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	var inFlight int32
	activity := make(chan struct{}, 1)
	signal := func() {
		select {
		case activity <- struct{}{}:
		default:
		}
	}

	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&inFlight, 1)
			signal()
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			atomic.AddInt32(&inFlight, -1)
			signal()
		}
	})

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	quietSince := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-activity:
			if atomic.LoadInt32(&inFlight) > 0 {
				quietSince = time.Time{}
			} else {
				quietSince = time.Now()
			}
		case <-ticker.C:
			if atomic.LoadInt32(&inFlight) <= 0 {
				if quietSince.IsZero() {
					quietSince = time.Now()
				}
				if time.Since(quietSince) >= networkQuietPeriod {
					return
				}
			}
		}
	}
}
