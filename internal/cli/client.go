package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Client talks to a running pachat server. Using the server avoids opening the SQLite
// database and the Bleve index a second time.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL. timeout 0 means no timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// CreateSession starts a session and returns its id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var out struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}
	code, err := c.do(ctx, http.MethodPost, "/api/v1/sessions", "", nil, &out)
	if err != nil {
		return "", err
	}
	if code != http.StatusCreated {
		return "", statusError(code, out.Error)
	}
	return out.ID, nil
}

// Upload sends the file at path to the session. On an ingestion failure the decoded
// result is returned together with the error.
func (c *Client) Upload(ctx context.Context, sessionID, path string) (*IngestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out IngestResult
	code, err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/upload", mw.FormDataContentType(), &body, &out)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return &out, statusError(code, out.Error)
	}
	return &out, nil
}

// Ask sends a chat message to the session.
func (c *Client) Ask(ctx context.Context, sessionID, text string) (*Answer, error) {
	payload, err := json.Marshal(map[string]string{"message": text})
	if err != nil {
		return nil, err
	}
	var out Answer
	code, err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/chat", "application/json", bytes.NewReader(payload), &out)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return &out, statusError(code, out.Error)
	}
	return &out, nil
}

// Status fetches collection counts and configuration.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out struct {
		Status
		Error string `json:"error"`
	}
	code, err := c.do(ctx, http.MethodGet, "/api/v1/status", "", nil, &out)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, statusError(code, out.Error)
	}
	return &out.Status, nil
}

// WatchDirectories lists the inbox directories the server watches.
func (c *Client) WatchDirectories(ctx context.Context) ([]string, error) {
	var out struct {
		Directories []string `json:"directories"`
		Error       string   `json:"error"`
	}
	code, err := c.do(ctx, http.MethodGet, "/api/v1/watch/directories", "", nil, &out)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, statusError(code, out.Error)
	}
	return out.Directories, nil
}

// AddWatchDirectory asks the server to watch path; existing files are ingested.
func (c *Client) AddWatchDirectory(ctx context.Context, path string) error {
	payload, err := json.Marshal(map[string]interface{}{"path": path, "sync": true})
	if err != nil {
		return err
	}
	var out struct {
		Error string `json:"error"`
	}
	code, err := c.do(ctx, http.MethodPost, "/api/v1/watch/directories", "application/json", bytes.NewReader(payload), &out)
	if err != nil {
		return err
	}
	if code != http.StatusCreated {
		return statusError(code, out.Error)
	}
	return nil
}

// RemoveWatchDirectory asks the server to stop watching path.
func (c *Client) RemoveWatchDirectory(ctx context.Context, path string) error {
	var out struct {
		Error string `json:"error"`
	}
	code, err := c.do(ctx, http.MethodDelete, "/api/v1/watch/directories?path="+url.QueryEscape(path), "", nil, &out)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return statusError(code, out.Error)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp.StatusCode, nil
}

func statusError(code int, msg string) error {
	if msg == "" {
		msg = http.StatusText(code)
	}
	return fmt.Errorf("server returned %d: %s", code, msg)
}
