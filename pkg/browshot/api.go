package browshot

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
)

// Call performs one GET against the given API action and returns the raw JSON
// reply. Failures surface immediately as TransportError, APIError or
// DecodeError; there are no retries at this level.
func (c *Client) Call(ctx context.Context, action string, params url.Values) (json.RawMessage, error) {
	body, err := c.get(ctx, action, params)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &DecodeError{Err: errInvalidJSON(action)}
	}
	return json.RawMessage(body), nil
}

// CallString performs one GET and returns the raw body. Used by actions that
// reply with HTML or image bytes instead of JSON.
func (c *Client) CallString(ctx context.Context, action string, params url.Values) ([]byte, error) {
	return c.get(ctx, action, params)
}

// CallPost uploads file as a multipart POST to the given action and returns
// the raw JSON reply.
func (c *Client) CallPost(ctx context.Context, action, file string, params url.Values) (json.RawMessage, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(file))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BuildURL(action, params), &buf)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &DecodeError{Err: errInvalidJSON(action)}
	}
	return json.RawMessage(body), nil
}

func (c *Client) get(ctx context.Context, action string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BuildURL(action, params), nil)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: trimBody(body)}
	}
	return body, nil
}

// AccountInfo returns details about the user account.
func (c *Client) AccountInfo(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "account/info", nil)
}

// InstanceList returns the list of available instances.
func (c *Client) InstanceList(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "instance/list", nil)
}

// InstanceInfo returns the details of an instance.
func (c *Client) InstanceInfo(ctx context.Context, id int) (json.RawMessage, error) {
	return c.Call(ctx, "instance/info", url.Values{"id": {strconv.Itoa(id)}})
}

// BrowserList returns the list of available browsers.
func (c *Client) BrowserList(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "browser/list", nil)
}

// BrowserInfo returns the details of a browser.
func (c *Client) BrowserInfo(ctx context.Context, id int) (json.RawMessage, error) {
	return c.Call(ctx, "browser/info", url.Values{"id": {strconv.Itoa(id)}})
}

// ScreenshotCreate requests a new screenshot. Screenshots are cached by the
// service for 24 hours by default; tune with the cache parameter.
func (c *Client) ScreenshotCreate(ctx context.Context, pageURL string, params url.Values) (json.RawMessage, error) {
	merged := cloneValues(params)
	merged.Set("url", pageURL)
	return c.Call(ctx, "screenshot/create", merged)
}

// ScreenshotInfo returns information about a screenshot requested previously.
func (c *Client) ScreenshotInfo(ctx context.Context, id int, params url.Values) (json.RawMessage, error) {
	merged := cloneValues(params)
	merged.Set("id", strconv.Itoa(id))
	return c.Call(ctx, "screenshot/info", merged)
}

// ScreenshotList returns details about requested screenshots.
func (c *Client) ScreenshotList(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return c.Call(ctx, "screenshot/list", params)
}

// ScreenshotSearch returns screenshots whose URL matches the given string.
func (c *Client) ScreenshotSearch(ctx context.Context, match string, params url.Values) (json.RawMessage, error) {
	merged := cloneValues(params)
	merged.Set("url", match)
	return c.Call(ctx, "screenshot/search", merged)
}

// ScreenshotDelete deletes the details of a screenshot.
func (c *Client) ScreenshotDelete(ctx context.Context, id int, params url.Values) (json.RawMessage, error) {
	merged := cloneValues(params)
	merged.Set("id", strconv.Itoa(id))
	return c.Call(ctx, "screenshot/delete", merged)
}

// ScreenshotHost hosts a screenshot or thumbnail.
func (c *Client) ScreenshotHost(ctx context.Context, id int, params url.Values) (json.RawMessage, error) {
	merged := cloneValues(params)
	merged.Set("id", strconv.Itoa(id))
	return c.Call(ctx, "screenshot/host", merged)
}

// ScreenshotShare shares a screenshot.
func (c *Client) ScreenshotShare(ctx context.Context, id int, params url.Values) (json.RawMessage, error) {
	merged := cloneValues(params)
	merged.Set("id", strconv.Itoa(id))
	return c.Call(ctx, "screenshot/share", merged)
}

// ScreenshotHTML returns the HTML code of the rendered page.
func (c *Client) ScreenshotHTML(ctx context.Context, id int, params url.Values) (string, error) {
	merged := cloneValues(params)
	merged.Set("id", strconv.Itoa(id))
	body, err := c.CallString(ctx, "screenshot/html", merged)
	return string(body), err
}

// ScreenshotMultiple requests multiple screenshots in one call. Use the
// collection-valued "urls" and "instances" parameters.
func (c *Client) ScreenshotMultiple(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return c.Call(ctx, "screenshot/multiple", params)
}

// ScreenshotThumbnail retrieves the screenshot, or a thumbnail, as raw bytes.
func (c *Client) ScreenshotThumbnail(ctx context.Context, id int, params url.Values) ([]byte, error) {
	merged := cloneValues(params)
	merged.Set("id", strconv.Itoa(id))
	return c.CallString(ctx, "screenshot/thumbnail", merged)
}

// ScreenshotThumbnailFile retrieves the screenshot, or a thumbnail, and saves
// it to file. Returns the file name.
func (c *Client) ScreenshotThumbnailFile(ctx context.Context, id int, file string, params url.Values) (string, error) {
	content, err := c.ScreenshotThumbnail(ctx, id, params)
	if err != nil {
		return "", err
	}

	f, err := os.Create(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.Write(content); err != nil {
		return "", err
	}
	return file, nil
}

// BatchCreate uploads a file with URLs to capture as a batch.
func (c *Client) BatchCreate(ctx context.Context, file string, params url.Values) (json.RawMessage, error) {
	return c.CallPost(ctx, "batch/create", file, params)
}

// BatchInfo returns the status of a batch.
func (c *Client) BatchInfo(ctx context.Context, id int, params url.Values) (json.RawMessage, error) {
	merged := cloneValues(params)
	merged.Set("id", strconv.Itoa(id))
	return c.Call(ctx, "batch/info", merged)
}

type jsonError struct {
	action string
}

func (e jsonError) Error() string {
	return "response from " + e.action + " is not valid JSON"
}

func errInvalidJSON(action string) error {
	return jsonError{action: action}
}
