// Package fetch is the retrieval capability boundary. The pipeline
// only ever sees the Fetcher interface; authentication flow, CAPTCHA
// handling, and site navigation live behind it, out of scope here.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Credentials for an authenticated court session.
type Credentials struct {
	Username string
	Password string
}

// Fetcher retrieves document bytes for the pipeline.
type Fetcher interface {
	Login(ctx context.Context, creds Credentials) error
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// HTTPFetcher is an authenticated-session implementation over plain
// HTTP. Browser-automation drivers plug in behind the same interface.
type HTTPFetcher struct {
	client   *http.Client
	loginURL string
	maxBytes int64
	logger   *slog.Logger
}

type Option func(*HTTPFetcher)

func WithMaxBytes(n int64) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

func NewHTTPFetcher(loginURL string, logger *slog.Logger, opts ...Option) *HTTPFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	jar, _ := cookiejar.New(nil)
	f := &HTTPFetcher{
		client:   &http.Client{Jar: jar, Timeout: 60 * time.Second},
		loginURL: loginURL,
		maxBytes: 64 << 20, // refuse pathological downloads
		logger:   logger,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Login posts credentials and keeps the session cookie in the jar. A
// fetcher without a login URL is treated as an anonymous session.
func (f *HTTPFetcher) Login(ctx context.Context, creds Credentials) error {
	if f.loginURL == "" {
		return nil
	}
	form := url.Values{
		"username": {creds.Username},
		"password": {creds.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.loginURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("login status %d", resp.StatusCode)
	}
	f.logger.Info("court session established", "login_url", f.loginURL)
	return nil
}

// Fetch downloads one document's bytes.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if int64(len(b)) > f.maxBytes {
		return nil, fmt.Errorf("fetch %s: exceeds %d byte cap", rawURL, f.maxBytes)
	}
	f.logger.Debug("document fetched",
		"url", rawURL, "bytes", len(b), "duration_ms", time.Since(start).Milliseconds())
	return b, nil
}
