package upstream

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"epg-relay/work/config"
	"epg-relay/work/logger"
	"epg-relay/work/utils"

	"go.uber.org/ratelimit"
)

// Fetcher opens HTTP(S) connections to upstream stream sources. It follows
// redirects itself with a bounded hop count, stamps a stable User-Agent on
// every request, and rate limits connection attempts per upstream host so a
// flapping client cannot hammer a source.
//
// The returned response body is a live byte stream; the caller owns it and
// cancels it through the request context when the client disconnects.
type Fetcher struct {
	cfg    *config.Config
	client *http.Client

	limiterMu sync.Mutex
	limiters  map[string]ratelimit.Limiter
}

// connection attempts allowed per host per second
const attemptsPerHostPerSecond = 5

// NewFetcher builds a Fetcher around an http.Client tuned for live streams:
// no overall timeout (streams run until cancelled), but a bounded response
// header timeout so a dead upstream fails fast. Automatic redirect handling
// is disabled; Fetch walks redirects itself to enforce the hop bound.
func NewFetcher(cfg *config.Config) *Fetcher {
	client := &http.Client{
		Timeout: 0,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.UpstreamTimeout,
		},
	}

	return &Fetcher{
		cfg:      cfg,
		client:   client,
		limiters: make(map[string]ratelimit.Limiter),
	}
}

// Fetch issues a GET against rawURL and follows redirect responses until a
// terminal status arrives or the hop bound is exceeded. clientRange, when
// non-empty, is forwarded as the Range header for on-demand sources.
//
// On 200/206 the response is returned with its body open. Every other
// outcome maps onto the package error taxonomy: RejectedError for non-success
// statuses, ErrTooManyRedirects past the hop bound, ErrTimeout and
// ErrUnreachable for transport failures.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, clientRange string) (*http.Response, error) {
	current, err := url.Parse(rawURL)
	if err != nil {
		return nil, ErrUnreachable
	}

	for hop := 0; hop <= f.cfg.MaxRedirects; hop++ {
		f.limiterForHost(current.Host).Take()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current.String(), nil)
		if err != nil {
			return nil, ErrUnreachable
		}
		f.setHeaders(req, clientRange)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, classifyTransportError(err)
		}

		// redirect: resolve the Location against the current URL and retry
		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			location := resp.Header.Get("Location")
			resp.Body.Close()
			if location == "" {
				return nil, &RejectedError{Status: resp.StatusCode}
			}
			next, err := current.Parse(location)
			if err != nil {
				return nil, ErrUnreachable
			}
			logger.Debug("upstream redirect %d -> %s", resp.StatusCode, utils.LogURL(f.cfg, next.String()))
			current = next
			continue
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
			status := resp.StatusCode
			resp.Body.Close()
			return nil, &RejectedError{Status: status}
		}

		return resp, nil
	}

	return nil, ErrTooManyRedirects
}

func (f *Fetcher) setHeaders(req *http.Request, clientRange string) {
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")
	if clientRange != "" {
		req.Header.Set("Range", clientRange)
	}
}

// limiterForHost returns the per-host connection-attempt limiter, creating
// it on first use.
func (f *Fetcher) limiterForHost(host string) ratelimit.Limiter {
	f.limiterMu.Lock()
	defer f.limiterMu.Unlock()

	if limiter, ok := f.limiters[host]; ok {
		return limiter
	}
	limiter := ratelimit.New(attemptsPerHostPerSecond)
	f.limiters[host] = limiter
	return limiter
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrUnreachable
}
