package endpoint

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gookit/goutil/fsutil"
	"github.com/pkg/errors"

	"github.com/prajaktaborse1234/synthmerge/internal/config"
	"github.com/prajaktaborse1234/synthmerge/internal/ui"
	"github.com/prajaktaborse1234/synthmerge/pkg/helpers"
)

// ResponseEntry is one answer of an endpoint
type ResponseEntry struct {
	Text        string
	Logprob     *float64
	TotalTokens *uint64
	Duration    time.Duration
}

// Result is the outcome of one variant and beam; Err is set when the variant failed
type Result struct {
	Label    string
	Response ResponseEntry
	Err      error
}

// backend speaks the wire protocol of one endpoint kind. A nil error always
// comes with at least one entry.
type backend interface {
	query(ctx context.Context, v config.Variant, req *Request) ([]ResponseEntry, error)
}

// Client queries one configured endpoint. It is safe for concurrent use.
type Client struct {
	cfg     *config.Endpoint
	http    *http.Client
	apiKey  string
	backend backend
	sleep   func(context.Context, time.Duration) error
}

// NewClient builds the HTTP transport and protocol backend of an endpoint
func NewClient(cfg *config.Endpoint) (*Client, error) {
	apiKey, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}
	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg, http: httpClient, apiKey: apiKey, sleep: sleepContext}

	switch p := cfg.Protocol.(type) {
	case *config.OpenAI:
		c.backend = &openAI{c: c, noChat: p.NoChat}
	case *config.Anthropic:
		c.backend = &anthropic{c: c}
	case *config.Patchpal:
		c.backend = &patchpal{c: c}
	case *config.Ollama:
		if c.backend, err = newOllama(c, p); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("endpoint %s: unsupported protocol %T", cfg.Name, p)
	}
	return c, nil
}

func newHTTPClient(cfg *config.Endpoint) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.RootCertificatePEM != "" {
		path := fsutil.ExpandPath(cfg.RootCertificatePEM)
		pem, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read root certificate of %s", cfg.Name)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Errorf("no certificate found in %s", path)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return &http.Client{Timeout: cfg.TimeoutDuration(), Transport: transport}, nil
}

// Name returns the configured endpoint name
func (c *Client) Name() string {
	return c.cfg.Name
}

// Labels returns the label of every variant, in configuration order
func (c *Client) Labels() []string {
	variants := c.cfg.Variants()
	labels := make([]string, len(variants))
	for i, v := range variants {
		labels[i] = c.cfg.Label(v)
	}
	return labels
}

// Query sends the request once per variant, one variant after the other.
// The outer slice is indexed by variant, the inner one by beam; a failed
// variant yields a single Result carrying the error.
func (c *Client) Query(ctx context.Context, req *Request) [][]Result {
	variants := c.cfg.Variants()
	results := make([][]Result, len(variants))
	for i, v := range variants {
		label := c.cfg.Label(v)
		start := time.Now()
		entries, attempts, err := c.retry(ctx, label, func(ctx context.Context) ([]ResponseEntry, error) {
			return c.backend.query(ctx, v, req)
		})
		elapsed := time.Since(start)
		if err != nil {
			ui.LogDebug("%s failed after %d attempt(s) in %.2f s", label, attempts, elapsed.Seconds())
			results[i] = []Result{{Label: label, Err: err}}
			continue
		}
		for n, entry := range entries {
			entry.Duration = elapsed
			results[i] = append(results[i], Result{Label: BeamLabel(label, n), Response: entry})
		}
		if wait := c.cfg.WaitDuration(); wait > 0 {
			_ = c.sleep(ctx, wait)
		}
	}
	return results
}

// retry runs fn until it succeeds, a timeout occurs or the backoff gives up.
// It returns the number of attempts made.
func (c *Client) retry(ctx context.Context, label string, fn func(context.Context) ([]ResponseEntry, error)) ([]ResponseEntry, int, error) {
	backoff := NewBackoff(int(c.cfg.Retries), c.cfg.DelayDuration(), c.cfg.MaxDelayDuration())
	for attempt := 1; ; attempt++ {
		entries, err := fn(ctx)
		if err == nil {
			return entries, attempt, nil
		}
		if IsTimeout(err) || ctx.Err() != nil {
			return nil, attempt, err
		}
		delay, ok := backoff.Next()
		if !ok {
			return nil, attempt, err
		}
		ui.LogWarning("%s: %v; retrying in %s (%d attempt(s) left)", label, err, delay, backoff.Remaining())
		if err := c.sleep(ctx, delay); err != nil {
			return nil, attempt, err
		}
	}
}

// postJSON sends payload and decodes a 2xx response body into out
func (c *Client) postJSON(ctx context.Context, url string, headers map[string]string, payload, out any) error {
	body, err := sonic.ConfigStd.Marshal(payload)
	if err != nil {
		return &ProtocolError{Reason: "cannot encode request: " + err.Error()}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	ui.LogDebug("%s: POST %s %s", c.cfg.Name, url, helpers.TruncateString(string(body), 2000))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify(err)
	}
	ui.LogDebug("%s: %s %s", c.cfg.Name, resp.Status, helpers.TruncateString(string(data), 2000))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{
			StatusCode: resp.StatusCode,
			Err:        errors.New(helpers.TruncateString(helpers.SingleLine(string(data)), 200)),
		}
	}
	if err := sonic.ConfigStd.Unmarshal(data, out); err != nil {
		return protocolError("invalid JSON: "+err.Error(), data)
	}
	return nil
}

// BeamLabel appends the beam number to label for every beam after the first
func BeamLabel(label string, beam int) string {
	if beam == 0 {
		return label
	}
	return fmt.Sprintf("%s #%d", label, beam+1)
}

// MultiLabel appends the block number to label for every answer block after the first
func MultiLabel(label string, multi int) string {
	if multi == 0 {
		return label
	}
	return fmt.Sprintf("%s $%d", label, multi+1)
}
