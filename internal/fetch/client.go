// Package fetch performs the direct HTTP work of the submission pipeline:
// HEAD size lookups, status queries, and streamed downloads that only reach their
// final path after an integrity check.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tunesmith/internal/capture"
	"tunesmith/internal/fileutil"
	"tunesmith/internal/logging"
	"tunesmith/internal/services"
)

const (
	userAgent      = "tunesmith/1.0"
	maxStatusBytes = 4 << 20
	headLimit     = 4
)

// Client wraps an http.Client with the headers and error mapping the
// pipelines expect.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

// New builds a client whose requests time out after timeout. Downloads are
// bounded by their context instead.
func New(timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: timeout},
		logger: logging.NewComponentLogger(logger, "fetch"),
	}
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	clone := *c
	clone.http = hc
	return &clone
}

func (c *Client) newRequest(ctx context.Context, method, rawURL, auth string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "fetch", method, "invalid URL", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if auth = strings.TrimSpace(auth); auth != "" {
		if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			auth = "Bearer " + auth
		}
		req.Header.Set("Authorization", auth)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, stage string) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(req.Context(), stage, req.Method+" "+redact(req.URL.String()), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		httpErr := &services.HTTPError{StatusCode: resp.StatusCode, URL: redact(req.URL.String())}
		return nil, services.Wrap(services.ErrNetwork, stage, req.Method, "unexpected status", httpErr)
	}
	return resp, nil
}

// Size returns the Content-Length reported by a HEAD request.
func (c *Client) Size(ctx context.Context, rawURL string) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodHead, rawURL, "")
	if err != nil {
		return 0, err
	}
	resp, err := c.do(req, "downloading")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("no Content-Length for %s", redact(rawURL))
	}
	return resp.ContentLength, nil
}

// HeadSizes issues HEAD requests concurrently. URLs that fail are absent
// from the result.
func (c *Client) HeadSizes(ctx context.Context, urls []string) map[string]int64 {
	var (
		mu    sync.Mutex
		sizes = make(map[string]int64, len(urls))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(headLimit)
	for _, u := range urls {
		if u == "" {
			continue
		}
		g.Go(func() error {
			size, err := c.Size(gctx, u)
			if err != nil {
				c.logger.Debug("HEAD request failed", logging.String("url", redact(u)), logging.Error(err))
				return nil
			}
			mu.Lock()
			sizes[u] = size
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return sizes
}

// Status queries the generator's status endpoint for a task.
func (c *Client) Status(ctx context.Context, endpoint, taskID, authToken string) (any, error) {
	req, err := c.newRequest(ctx, http.MethodGet, capture.StatusURL(endpoint, taskID), authToken)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(req, "polling")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBytes))
	if err != nil {
		return nil, classify(ctx, "polling", "read status body", err)
	}
	tree, err := capture.Decode(body)
	if err != nil {
		return nil, services.Wrap(services.ErrNetwork, "polling", "decode status", "malformed response", err)
	}
	return tree, nil
}

// Progress receives bytes written so far and the expected total (-1 when
// unknown).
type Progress func(written, total int64)

// Check inspects the fully written temporary file before it is committed.
type Check func(tmpPath string) error

// Download streams rawURL into dest. The data lands in a temporary sibling
// first; check runs against it and only an accepted file is renamed into
// place. A rejected or interrupted download leaves nothing at dest.
func (c *Client) Download(ctx context.Context, rawURL, dest string, check Check, progress Progress) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, "")
	if err != nil {
		return 0, err
	}
	// Downloads can outlive the per-request timeout; the context bounds them.
	hc := *c.http
	hc.Timeout = 0
	resp, err := (&Client{http: &hc, logger: c.logger}).do(req, "downloading")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	tmp, err := fileutil.CreateAtomic(dest)
	if err != nil {
		return 0, fmt.Errorf("prepare download: %w", err)
	}
	defer tmp.Abort()

	var w io.Writer = tmp
	if progress != nil {
		w = &progressWriter{w: tmp, total: resp.ContentLength, fn: progress}
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, classify(ctx, "downloading", "copy body", err)
	}
	if err := tmp.Sync(); err != nil {
		return n, fmt.Errorf("flush download: %w", err)
	}
	if check != nil {
		if err := check(tmp.Name()); err != nil {
			return n, err
		}
	}
	if err := tmp.Commit(); err != nil {
		return n, fmt.Errorf("commit download: %w", err)
	}
	c.logger.Debug("download committed", logging.String("path", dest), logging.Int64("bytes", n))
	return n, nil
}

type progressWriter struct {
	w       io.Writer
	total   int64
	written int64
	fn      Progress
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	p.fn(p.written, p.total)
	return n, err
}

func classify(ctx context.Context, stage, op string, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return services.Wrap(services.ErrCancelled, stage, op, "cancelled", err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, stage, op, "timed out", err)
	}
	return services.Wrap(services.ErrNetwork, stage, op, "request failed", err)
}

// redact drops the query string, which may carry signatures.
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
