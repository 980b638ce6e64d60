// Package classify provides the HTTP client for the external URL
// classification service. The service itself is a black box: it receives a
// URL and returns a three-way classification with a 0-100 threat score. How
// it decides is not this codebase's concern.
package classify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/urlsentry/urlsentry/pkg/duration"
	"github.com/urlsentry/urlsentry/pkg/jsonutil"
	"github.com/urlsentry/urlsentry/pkg/retry"
)

// Request is the wire shape of one classification call.
type Request struct {
	URL       string `json:"url"`
	ScanID    string `json:"scan_id"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// Response is the service's verdict for one URL.
type Response struct {
	// Classification is one of BENIGN, SUSPICIOUS, MALICIOUS.
	Classification string `json:"classification"`
	// ThreatScore is the service's 0-100 risk score.
	ThreatScore int `json:"threat_score"`
	// ThreatNames lists matched threat signatures, if any.
	ThreatNames []string `json:"threat_names,omitempty"`
}

// Benign reports whether the service considered the content clean.
func (r *Response) Benign() bool {
	return r.Classification == "BENIGN"
}

// Config holds client configuration.
type Config struct {
	// Endpoint is the classification service URL.
	Endpoint string

	// Timeout bounds a single call including retries' individual attempts.
	Timeout time.Duration

	// Retry controls backoff for transient network failures. Permanent
	// failures (4xx) are never retried.
	Retry retry.Config

	// UserAgent overrides the default User-Agent header.
	UserAgent string

	// Client optionally supplies a custom *http.Client.
	Client *http.Client
}

// DefaultConfig returns sensible defaults for the classification client.
func DefaultConfig() *Config {
	return &Config{
		Timeout: duration.Classify,
		Retry:   retry.DefaultConfig(),
	}
}

// Client calls the classification service. Safe for concurrent use.
type Client struct {
	cfg    *Config
	client *http.Client
}

// New creates a classification client. cfg may be nil for defaults.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = duration.Classify
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: duration.ClassifyConnect,
				}).DialContext,
				TLSHandshakeTimeout: duration.ClassifyConnect,
				MaxIdleConnsPerHost: 10,
			},
		}
	}

	return &Client{cfg: cfg, client: client}
}

// Classify submits url under scanID and returns the service verdict.
// Transient network failures are retried per the configured policy; a 4xx
// status stops retrying immediately.
func (c *Client) Classify(ctx context.Context, rawURL, scanID string) (*Response, error) {
	body, err := jsonutil.Marshal(Request{
		URL:       rawURL,
		ScanID:    scanID,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("classify: encoding request: %w", err)
	}

	var out *Response
	err = retry.Do(ctx, c.cfg.Retry, func() error {
		resp, err := c.do(ctx, body)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Stop(fmt.Errorf("classify: building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to decode
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, retry.Stop(fmt.Errorf("classify: %w (status %d)", ErrRejected, resp.StatusCode))
	default:
		return nil, fmt.Errorf("classify: %w (status %d)", ErrUnavailable, resp.StatusCode)
	}

	var out Response
	if err := jsonutil.UnmarshalRead(resp.Body, &out); err != nil {
		return nil, retry.Stop(fmt.Errorf("classify: decoding response: %w", err))
	}
	return &out, nil
}
