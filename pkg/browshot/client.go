package browshot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

const (
	// DefaultEndpoint is the base URL for all API requests. Use HTTPS: the
	// API key travels as a query parameter.
	DefaultEndpoint = "https://api.browshot.com/api/v1/"

	// MinImageSize is the smallest 200-response body accepted as an image.
	// The service occasionally returns a short error page with a 200 status;
	// the body size is the only discriminator available.
	MinImageSize = 500

	// APIVersion is the remote API version this client targets.
	APIVersion = "1.16"
)

// Client talks to the screenshot API. Each method performs exactly one
// network round trip; retrying is the caller's concern.
type Client struct {
	key          string
	endpoint     string
	httpClient   *http.Client
	minImageSize int
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithEndpoint overrides the API base URL.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		if !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		c.endpoint = endpoint
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithMinImageSize overrides the minimum accepted image size in bytes.
func WithMinImageSize(n int) ClientOption {
	return func(c *Client) {
		c.minImageSize = n
	}
}

// NewClient creates a client for the given API key. Find your key on the
// account dashboard.
func NewClient(key string, opts ...ClientOption) *Client {
	c := &Client{
		key:          key,
		endpoint:     DefaultEndpoint,
		httpClient:   http.DefaultClient,
		minImageSize: MinImageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildURL assembles a signed request URL for the given API action. Every
// parameter value is percent-encoded. The keys "urls" and "instances" are
// collection-valued: each element is rendered as its own "url" or
// "instance_id" parameter. The caller's params are never modified.
func (c *Client) BuildURL(action string, params url.Values) string {
	merged := url.Values{}
	merged.Set("key", c.key)

	for key, values := range params {
		switch key {
		case "urls":
			for _, v := range values {
				merged.Add("url", v)
			}
		case "instances":
			for _, v := range values {
				merged.Add("instance_id", v)
			}
		default:
			for _, v := range values {
				merged.Add(key, v)
			}
		}
	}

	return c.endpoint + action + "?" + merged.Encode()
}

// Simple retrieves a screenshot of pageURL in one attempt and classifies the
// result. It never returns an error: every failure mode is folded into the
// Outcome so the caller can decide whether to retry.
func (c *Client) Simple(ctx context.Context, pageURL string, params url.Values) Outcome {
	merged := cloneValues(params)
	merged.Set("url", pageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BuildURL("simple", merged), nil)
	if err != nil {
		return Outcome{Class: ClassTransient, StatusCode: StatusNetworkError, Detail: err.Error()}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{Class: ClassTransient, StatusCode: StatusNetworkError, Detail: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{Class: ClassTransient, StatusCode: StatusNetworkError, Detail: err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusOK && len(body) < c.minImageSize:
		return Outcome{
			Class:      ClassTransient,
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("body of %d bytes is too small to be an image", len(body)),
		}
	case resp.StatusCode == http.StatusOK:
		return Outcome{Class: ClassSuccess, StatusCode: resp.StatusCode, Image: body}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Outcome{Class: ClassPermanent, StatusCode: resp.StatusCode, Detail: trimBody(body)}
	default:
		return Outcome{Class: ClassTransient, StatusCode: resp.StatusCode, Detail: trimBody(body)}
	}
}

// SimpleFile retrieves a screenshot and saves it to file in one attempt.
// The file is created only on a successful outcome.
func (c *Client) SimpleFile(ctx context.Context, pageURL, file string, params url.Values) (Outcome, error) {
	outcome := c.Simple(ctx, pageURL, params)
	if !outcome.OK() {
		return outcome, nil
	}

	f, err := os.Create(file)
	if err != nil {
		return outcome, err
	}
	defer f.Close()

	if _, err := f.Write(outcome.Image); err != nil {
		return outcome, err
	}

	return outcome, nil
}

// cloneValues copies params so merging request keys never mutates the
// caller's map.
func cloneValues(params url.Values) url.Values {
	cloned := make(url.Values, len(params))
	for key, values := range params {
		cloned[key] = append([]string(nil), values...)
	}
	return cloned
}

// trimBody turns a short error body into a loggable detail string.
func trimBody(body []byte) string {
	const maxDetail = 200
	detail := strings.TrimSpace(string(body))
	if len(detail) > maxDetail {
		detail = detail[:maxDetail]
	}
	return detail
}
