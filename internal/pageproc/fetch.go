package pageproc

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// staticFetchTimeout is the per-request timeout for the plain HTTP GET
// path (spec §4.3 step 1).
const staticFetchTimeout = 10 * time.Second

// desktopUserAgent is sent on every static fetch and asset download (spec
// §4.3 step 1, §4.4 "Asset Downloader contract").
const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// staticFetcher issues the static-path GET (spec §4.3 steps 1-2) using a
// single-use colly collector per request: the Page Processor needs one
// deterministic fetch-and-inspect, not colly's depth/link-following
// machinery, so OnResponse/OnError callbacks replace the multi-page
// crawl loop colly is normally wired for.
type staticFetcher struct {
	newCollector func() *colly.Collector
}

func newStaticFetcher() *staticFetcher {
	return &staticFetcher{
		newCollector: func() *colly.Collector {
			c := colly.NewCollector(
				colly.UserAgent(desktopUserAgent),
				colly.IgnoreRobotsTxt(),
				colly.ParseHTTPErrorResponse(),
			)
			c.SetRequestTimeout(staticFetchTimeout)
			return c
		},
	}
}

// ctxAbortTransport wires ctx into every request colly issues through it,
// so the underlying net/http transport tears down the in-flight connection
// the moment ctx is done, the same way crawlexec.Downloader.fetch
// propagates cancellation via http.NewRequestWithContext (spec §5
// "Page-processor static fetches propagate the abort via their HTTP
// client"). Grounded on the teacher's collector.go setupCallbacks, which
// pairs this with an OnRequest pre-flight check below.
type ctxAbortTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t ctxAbortTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

// fetch returns the page body as a string, or an error if the request
// fails, times out, or the response isn't a 2xx HTML/XHTML document (spec
// §4.3 steps 1-2).
func (f *staticFetcher) fetch(ctx context.Context, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := f.newCollector()
	c.WithTransport(ctxAbortTransport{ctx: ctx, base: http.DefaultTransport})

	var (
		body        string
		status      int
		contentType string
		fetchErr    error
	)

	// Pre-flight abort: skip issuing the request at all if ctx is already
	// done by the time colly is about to dial (teacher's collector.go
	// "Set up request callback" pattern).
	c.OnRequest(func(r *colly.Request) {
		select {
		case <-ctx.Done():
			r.Abort()
		default:
		}
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		contentType = r.Headers.Get("Content-Type")
		body = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		status = r.StatusCode
		contentType = r.Headers.Get("Content-Type")
	})

	visitErr := c.Visit(pageURL)
	// ctxAbortTransport's context wins over whatever error colly surfaces
	// for a request torn down mid-flight (a wrapped net error, not
	// necessarily context.Canceled/DeadlineExceeded itself).
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if visitErr != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, visitErr)
	}
	if fetchErr != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, fetchErr)
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("fetch %s: status %d", pageURL, status)
	}
	if !isHTMLContentType(contentType) {
		return "", fmt.Errorf("fetch %s: unsupported content type %q", pageURL, contentType)
	}
	return body, nil
}

func isHTMLContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}
