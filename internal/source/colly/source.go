// Package collysource talks to a lobby backend over HTTP using gocolly.
package collysource

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/tablepilot/internal/pilot"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Source implements pilot.StructuredSource using the Colly collector.
type Source struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Source with a pooled transport shared by all requests.
func New(cfg Config, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Source{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// Available reports whether the source can serve requests.
func (s *Source) Available() bool {
	return s.baseCollector != nil
}

// Request executes one call against the endpoint. Non-2xx statuses come back
// in the response; only transport failures are errors.
func (s *Source) Request(ctx context.Context, ep pilot.Endpoint, proxyURL string, params map[string]string) (pilot.SourceResponse, error) {
	if !s.Available() {
		return pilot.SourceResponse{}, pilot.ErrSourceUnavailable
	}

	method := strings.ToUpper(ep.Method)
	if method == "" {
		method = http.MethodGet
	}
	merged := mergeParams(ep.Params, params)

	requestURL, body, err := buildRequest(ep, method, merged)
	if err != nil {
		return pilot.SourceResponse{}, err
	}

	var (
		result   pilot.SourceResponse
		fetchErr error
	)
	start := time.Now()
	collector, err := s.buildCollector(ep, method, proxyURL, &result, &fetchErr, start)
	if err != nil {
		return pilot.SourceResponse{}, err
	}

	if err := s.runCollector(ctx, collector, method, requestURL, body, &fetchErr); err != nil {
		return pilot.SourceResponse{}, err
	}
	return result, nil
}

func (s *Source) buildCollector(
	ep pilot.Endpoint,
	method string,
	proxyURL string,
	result *pilot.SourceResponse,
	fetchErr *error,
	start time.Time,
) (*colly.Collector, error) {
	collector := s.baseCollector.Clone()
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	// Backend errors are data here: a 403 or 500 must reach the scheduler
	// with its status instead of dying inside the collector.
	collector.ParseHTTPErrorResponse = true

	timeout := s.cfg.Timeout
	if ep.TimeoutSeconds > 0 {
		timeout = time.Duration(ep.TimeoutSeconds) * time.Second
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	if proxyURL != "" {
		if err := collector.SetProxy(proxyURL); err != nil {
			return nil, fmt.Errorf("set proxy %s: %w", proxyURL, err)
		}
	}

	s.configureCollectorHooks(collector, ep, method, result, fetchErr, start)
	return collector, nil
}

func (s *Source) configureCollectorHooks(
	hooks collectorHooks,
	ep pilot.Endpoint,
	method string,
	result *pilot.SourceResponse,
	fetchErr *error,
	start time.Time,
) {
	hooks.OnRequest(func(r *colly.Request) {
		if method == http.MethodPost && ep.Format == pilot.FormatJSON {
			r.Headers.Set("Content-Type", "application/json")
		}
		r.Headers.Set("Accept", acceptFor(ep.Format))
		for key, value := range authHeaders(ep.Auth, method, ep.Path, time.Now()) {
			r.Headers.Set(key, value)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = pilot.SourceResponse{
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Elapsed:    time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		// HTTP-level failures still carry a status; the scheduler decides
		// what a 403 or 500 means. Only transport failures become errors.
		if r != nil && r.StatusCode > 0 {
			*result = pilot.SourceResponse{
				StatusCode: r.StatusCode,
				Body:       append([]byte(nil), r.Body...),
				Elapsed:    time.Since(start),
			}
			return
		}
		*fetchErr = err
	})
}

func (s *Source) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	method, requestURL string,
	body []byte,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		if reader == nil {
			done <- collector.Request(method, requestURL, nil, nil, nil)
			return
		}
		done <- collector.Request(method, requestURL, reader, nil, nil)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("lobby request canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("lobby request failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("lobby transport failed: %w", *fetchErr)
		}
		return nil
	}
}

// buildRequest assembles the final URL and, for POST, the JSON body.
func buildRequest(ep pilot.Endpoint, method string, params map[string]string) (string, []byte, error) {
	base := strings.TrimRight(ep.BaseURL, "/")
	if base == "" {
		return "", nil, fmt.Errorf("endpoint %q has no base url", ep.Name)
	}
	u, err := url.Parse(base + ep.Path)
	if err != nil {
		return "", nil, fmt.Errorf("endpoint url: %w", err)
	}

	if method == http.MethodPost {
		if len(params) == 0 {
			return u.String(), nil, nil
		}
		body, merr := json.Marshal(params)
		if merr != nil {
			return "", nil, fmt.Errorf("encode request body: %w", merr)
		}
		return u.String(), body, nil
	}

	q := u.Query()
	for key, value := range params {
		q.Set(key, value)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil, nil
}

// mergeParams overlays call parameters on the endpoint's fixed ones.
func mergeParams(fixed, call map[string]string) map[string]string {
	if len(fixed) == 0 && len(call) == 0 {
		return nil
	}
	merged := make(map[string]string, len(fixed)+len(call))
	for k, v := range fixed {
		merged[k] = v
	}
	for k, v := range call {
		merged[k] = v
	}
	return merged
}

// authHeaders renders the endpoint credentials as request headers. HMAC
// requests sign method, path and timestamp so replays expire.
func authHeaders(auth pilot.EndpointAuth, method, path string, now time.Time) map[string]string {
	switch auth.Kind {
	case pilot.AuthBearer:
		if auth.Token == "" {
			return nil
		}
		return map[string]string{"Authorization": "Bearer " + auth.Token}
	case pilot.AuthBasic:
		if auth.Username == "" && auth.Password == "" {
			return nil
		}
		cred := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
		return map[string]string{"Authorization": "Basic " + cred}
	case pilot.AuthHMAC:
		if auth.Secret == "" {
			return nil
		}
		ts := strconv.FormatInt(now.Unix(), 10)
		mac := hmac.New(sha256.New, []byte(auth.Secret))
		mac.Write([]byte(method + "\n" + path + "\n" + ts))
		headers := map[string]string{
			"X-Timestamp": ts,
			"X-Signature": hex.EncodeToString(mac.Sum(nil)),
		}
		if auth.KeyID != "" {
			headers["X-Key-Id"] = auth.KeyID
		}
		return headers
	default:
		return nil
	}
}

func acceptFor(format pilot.BodyFormat) string {
	if format == pilot.FormatHTML {
		return "text/html"
	}
	return "application/json"
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
