// Package collyfetcher implements an authenticated HTTP session using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
)

// DefaultTimeout bounds a single request when Config.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Session performs requests that share one cookie jar, so cookies set by a
// login form are sent with every later request.
type Session struct {
	cfg           Config
	jar           http.CookieJar
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Session.
func New(cfg Config) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	c.SetCookieJar(jar)
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}

	return &Session{
		cfg:           cfg,
		jar:           jar,
		baseCollector: c,
	}, nil
}

// Get fetches rawURL and returns the response body. Non-2xx responses are
// errors.
func (s *Session) Get(ctx context.Context, rawURL string) ([]byte, error) {
	var (
		body     []byte
		fetchErr error
	)
	collector := s.baseCollector.Clone()
	s.configureCollectorHooks(collector, &body, &fetchErr)
	if err := s.runCollector(ctx, func() error { return collector.Visit(rawURL) }, &fetchErr); err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	return body, nil
}

// PostForm submits fields as an urlencoded form and discards the body.
func (s *Session) PostForm(ctx context.Context, rawURL string, fields map[string]string) error {
	var (
		body     []byte
		fetchErr error
	)
	collector := s.baseCollector.Clone()
	s.configureCollectorHooks(collector, &body, &fetchErr)
	if err := s.runCollector(ctx, func() error { return collector.Post(rawURL, fields) }, &fetchErr); err != nil {
		return fmt.Errorf("post %s: %w", rawURL, err)
	}
	return nil
}

// cookies returns the cookies the session would send to rawURL.
func (s *Session) cookies(rawURL string) ([]*http.Cookie, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	return s.jar.Cookies(u), nil
}

func (s *Session) configureCollectorHooks(hooks collectorHooks, body *[]byte, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (s *Session) runCollector(ctx context.Context, visit func() error, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- visit()
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly request canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
