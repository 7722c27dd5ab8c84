// Package fireeye is a client for the FireEye AX web services API
// (wsapis v2.0.0).
//
// Every call takes the caller's Token explicitly; the client itself holds no
// credential, so one Client serves requests on behalf of many users.
package fireeye

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fireeye-analysis/internal/metrics"
)

// TokenHeader carries the AX API session token.
const TokenHeader = "X-FeApi-Token"

// Token is an AX API session token.
type Token string

// ClientOption configures a Client.
type ClientOption func(*Client)

// Client is immutable after construction and safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// NewClient creates a Client for the API rooted at baseURL,
// e.g. https://ax.example/wsapis/v2.0.0.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithMetrics records every call on m.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// Config returns the appliance configuration, including sensor profiles.
func (c *Client) Config(ctx context.Context, tok Token) (*Config, error) {
	var out Config
	if err := c.call(ctx, "config", tok, http.MethodGet, "/config", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitFile uploads one file for analysis with the given options.
func (c *Client) SubmitFile(ctx context.Context, tok Token, opts SubmissionOptions, filename string, file io.Reader) ([]Submission, error) {
	body, contentType, err := multipartBody(opts, filename, file)
	if err != nil {
		return nil, err
	}
	var out []Submission
	if err := c.call(ctx, "submit_file", tok, http.MethodPost, "/submissions", body, contentType, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitURL submits a list of URLs for analysis.
func (c *Client) SubmitURL(ctx context.Context, tok Token, opts SubmissionOptions) (*URLSubmission, error) {
	b, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	var out URLSubmission
	if err := c.call(ctx, "submit_url", tok, http.MethodPost, "/submissions/url", bytes.NewReader(b), "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmissionStatus looks up a submission or URL list by id.
func (c *Client) SubmissionStatus(ctx context.Context, tok Token, id string) (*SubmissionStatus, error) {
	var out SubmissionStatus
	path := "/submissions/status/" + url.PathEscape(id)
	if err := c.call(ctx, "status", tok, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmissionResults returns the analysis result document at infoLevel
// ("normal", "concise" or "extended") without interpreting it.
func (c *Client) SubmissionResults(ctx context.Context, tok Token, id, infoLevel string) (json.RawMessage, error) {
	path := "/submissions/results/" + url.PathEscape(id)
	if infoLevel != "" {
		path += "?" + url.Values{"info_level": {infoLevel}}.Encode()
	}
	var out json.RawMessage
	if err := c.call(ctx, "results", tok, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NewRequest creates a request carrying the token and JSON accept header.
func (c *Client) NewRequest(ctx context.Context, tok Token, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(TokenHeader, string(tok))
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) call(ctx context.Context, op string, tok Token, method, path string, body io.Reader, contentType string, out any) (err error) {
	started := time.Now()
	defer func() { c.metrics.ObserveVendorCall(op, started, err) }()

	req, err := c.NewRequest(ctx, tok, method, path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func multipartBody(opts SubmissionOptions, filename string, file io.Reader) (io.Reader, string, error) {
	options, err := json.Marshal(opts)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal options: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("options", string(options)); err != nil {
		return nil, "", err
	}
	part, err := w.CreateFormFile("filename", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("read sample: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
