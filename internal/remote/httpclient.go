package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// httpClient talks to the deployment server's file API over HTTP. One
// instance represents one authenticated session.
type httpClient struct {
	cfg       ConnectionConfig
	http      *resty.Client
	connected bool
}

// ClientFactory creates httpClient sessions.
type ClientFactory struct{}

// NewClient builds an unconnected client from cfg.
func (ClientFactory) NewClient(cfg ConnectionConfig) (Client, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &httpClient{cfg: cfg}
	c.http = resty.New().
		SetBaseURL(strings.TrimRight(cfg.ServerURL, "/")).
		SetBasicAuth(cfg.Username, cfg.Password).
		SetHeader("User-Agent", "sitedeploy").
		SetTimeout(timeout)
	return c, nil
}

func (c *httpClient) Connect(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/api/status")
	if err != nil {
		return &ConnectionError{Host: c.cfg.ServerURL, Op: "connect", Err: err, Transient: true}
	}
	switch {
	case resp.IsSuccess():
		c.connected = true
		return nil
	case resp.StatusCode() == 401 || resp.StatusCode() == 403:
		return &AuthError{Host: c.cfg.ServerURL, Username: c.cfg.Username}
	default:
		return &ConnectionError{
			Host:      c.cfg.ServerURL,
			Op:        "connect",
			Err:       fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.String()),
			Transient: resp.StatusCode() >= 500,
		}
	}
}

func (c *httpClient) IsConnected() bool { return c.connected }

func (c *httpClient) UploadFile(ctx context.Context, localPath, remotePath string, overwrite, createDirs bool) (bool, error) {
	if !c.connected {
		return false, &ConnectionError{Host: c.cfg.ServerURL, Op: "upload", Err: fmt.Errorf("not connected"), Transient: false}
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return false, fmt.Errorf("failed to read local file %s: %w", localPath, err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetQueryParams(map[string]string{
			"overwrite": fmt.Sprintf("%t", overwrite),
			"mkdirs":    fmt.Sprintf("%t", createDirs),
		}).
		SetBody(data).
		Put(c.fileURL(remotePath))
	if err != nil {
		c.connected = false
		return false, &ConnectionError{Host: c.cfg.ServerURL, Op: "upload", Err: err, Transient: true}
	}

	switch {
	case resp.IsSuccess():
		return true, nil
	case resp.StatusCode() == 409 && !overwrite:
		// Remote file exists and overwrite is off.
		return false, nil
	case resp.StatusCode() == 401 || resp.StatusCode() == 403:
		return false, &AuthError{Host: c.cfg.ServerURL, Username: c.cfg.Username}
	default:
		return false, &ConnectionError{
			Host:      c.cfg.ServerURL,
			Op:        "upload",
			Err:       fmt.Errorf("HTTP %d uploading %s: %s", resp.StatusCode(), remotePath, resp.String()),
			Transient: resp.StatusCode() >= 500 || resp.StatusCode() == 429,
		}
	}
}

func (c *httpClient) ListDirectory(ctx context.Context, dirPath string) ([]Entry, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("recursive", "true").
		Get(c.fileURL(dirPath))
	if err != nil {
		return nil, &ConnectionError{Host: c.cfg.ServerURL, Op: "list", Err: err, Transient: true}
	}
	if !resp.IsSuccess() {
		return nil, &ConnectionError{
			Host:      c.cfg.ServerURL,
			Op:        "list",
			Err:       fmt.Errorf("HTTP %d listing %s", resp.StatusCode(), dirPath),
			Transient: resp.StatusCode() >= 500,
		}
	}

	var result struct {
		Entries []Entry `json:"entries"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse directory listing: %w", err)
	}
	return result.Entries, nil
}

func (c *httpClient) DeleteFile(ctx context.Context, filePath string) error {
	resp, err := c.http.R().SetContext(ctx).Delete(c.fileURL(filePath))
	if err != nil {
		return &ConnectionError{Host: c.cfg.ServerURL, Op: "delete", Err: err, Transient: true}
	}
	// A missing file is already the desired end state.
	if resp.IsSuccess() || resp.StatusCode() == 404 {
		return nil
	}
	return &ConnectionError{
		Host:      c.cfg.ServerURL,
		Op:        "delete",
		Err:       fmt.Errorf("HTTP %d deleting %s", resp.StatusCode(), filePath),
		Transient: resp.StatusCode() >= 500,
	}
}

func (c *httpClient) Close() error {
	c.connected = false
	return nil
}

// fileURL maps a remote path under the configured root to its API URL.
func (c *httpClient) fileURL(remotePath string) string {
	p := path.Join("/", c.cfg.RemoteRoot, strings.TrimPrefix(remotePath, "/"))
	return "/api/files" + p
}
