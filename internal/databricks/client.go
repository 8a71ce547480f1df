// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package databricks is the shared REST plumbing for the Databricks workspace APIs.
// It owns bearer authentication, request timeouts, and probing across API
// version variants. Response bodies are decoded liberally, since the workspace
// APIs differ across versions in which keys they return.
package databricks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	bierrors "bichat/cli/internal/errors"
	"bichat/cli/internal/httperrors"
)

// DefaultTimeout bounds a single HTTP request.
const DefaultTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	Host    string
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client performs authenticated JSON requests against one workspace.
type Client struct {
	// host is the workspace URL without trailing slash (e.g., "https://adb-1.azuredatabricks.net")
	host  string
	token string
	http  *http.Client
	log   *slog.Logger
}

// New creates a workspace client. Missing host or token is allowed; callers
// check Configured before making requests.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Client{
		host:  NormalizeHost(opts.Host),
		token: strings.TrimSpace(opts.Token),
		http:  hc,
		log:   log,
	}
}

// NormalizeHost trims whitespace and trailing slashes and adds https:// when no scheme is given.
func NormalizeHost(host string) string {
	h := strings.TrimRight(strings.TrimSpace(host), "/")
	if h != "" && !strings.Contains(h, "://") {
		h = "https://" + h
	}
	return h
}

// Host returns the normalized workspace URL.
func (c *Client) Host() string { return c.host }

// Token returns the bearer token in use.
func (c *Client) Token() string { return c.token }

// Configured reports whether both host and token are set.
func (c *Client) Configured() bool { return c.host != "" && c.token != "" }

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Body   []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Do sends a request to host+path. A nil body sends no payload. Transport
// errors are returned unchanged so callers can classify them.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("databricks request failed", "method", method, "path", path, "error", err)
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	c.log.Debug("databricks request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))
	return &Response{Status: resp.StatusCode, Body: data}, nil
}

// URL joins the host and an API path.
func (c *Client) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.host + path
}

// Attempt records one endpoint variant tried during a probe.
type Attempt struct {
	URL    string
	Kind   bierrors.Kind
	Status int
	// Detail holds the transport error text or the first bytes of the response body.
	Detail string
}

// ProbeError reports that every endpoint variant failed.
type ProbeError struct {
	Attempts []Attempt
}

// Last returns the final attempt made.
func (e *ProbeError) Last() Attempt {
	if len(e.Attempts) == 0 {
		return Attempt{Kind: bierrors.HTTP}
	}
	return e.Attempts[len(e.Attempts)-1]
}

// Kind returns the classification of the last attempt.
func (e *ProbeError) Kind() bierrors.Kind { return e.Last().Kind }

func (e *ProbeError) Error() string {
	last := e.Last()
	if last.Status != 0 {
		return fmt.Sprintf("all %d endpoint variants failed; last: %s (HTTP %d)", len(e.Attempts), last.Kind, last.Status)
	}
	return fmt.Sprintf("all %d endpoint variants failed; last: %s", len(e.Attempts), last.Kind)
}

// Probe sends the same request to each path in order and returns the first
// HTTP 200 response. 401 and 403 stop the probe early. When no variant
// succeeds the error is a *ProbeError. Cancellation of ctx is returned as is.
func (c *Client) Probe(ctx context.Context, method string, paths []string, body any) (*Response, error) {
	var attempts []Attempt
	for _, p := range paths {
		resp, err := c.Do(ctx, method, p, body)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			attempts = append(attempts, Attempt{URL: c.URL(p), Kind: httperrors.Classify(err), Detail: err.Error()})
			continue
		}
		if resp.Status == http.StatusOK {
			return resp, nil
		}
		kind := httperrors.ClassifyStatus(resp.Status)
		attempts = append(attempts, Attempt{
			URL:    c.URL(p),
			Kind:   kind,
			Status: resp.Status,
			Detail: httperrors.Truncate(string(resp.Body), 100),
		})
		c.log.Debug("endpoint variant rejected", "path", p, "status", resp.Status)
		if httperrors.Terminal(kind) {
			break
		}
	}
	return nil, &ProbeError{Attempts: attempts}
}

// Versioned expands a path template containing "{v}" into the 2.0 and 2.1 API variants.
func Versioned(template string) []string {
	return []string{
		strings.ReplaceAll(template, "{v}", "2.0"),
		strings.ReplaceAll(template, "{v}", "2.1"),
	}
}
