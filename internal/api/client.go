// Package api talks to the platform API: config var merges and slug releases.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fastertools/slugship/internal/auth"
	"github.com/fastertools/slugship/internal/deploy"
)

const (
	// DefaultAPIBaseURL is the default platform API endpoint
	DefaultAPIBaseURL = "https://api.heroku.com"

	acceptHeader = "application/vnd.heroku+json; version=3"
)

// Client is a platform API client. Credentials are passed per call.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	// blobClient uploads slugs; uploads can outlast the API timeout
	blobClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the client used for API calls
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBlobClient sets the client used for slug uploads
func WithBlobClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.blobClient = c
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// NewClient creates a new platform API client
func NewClient(baseURL string, options ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}

	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: "slugship",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		blobClient: &http.Client{
			Timeout: 15 * time.Minute,
		},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the base URL for the API
func (c *Client) BaseURL() string {
	return c.baseURL
}

// MergeConfigVars upserts vars into the app's config vars. Vars not named in
// the request are left as they are on the platform.
func (c *Client) MergeConfigVars(ctx context.Context, cred auth.Credential, app string, vars map[string]string) error {
	if vars == nil {
		vars = map[string]string{}
	}
	path := "/apps/" + url.PathEscape(app) + "/config-vars"
	return c.do(ctx, cred, http.MethodPatch, path, app, "merge config vars", vars, nil)
}

// Release creates a slug, uploads the archive and releases it
func (c *Client) Release(ctx context.Context, cred auth.Credential, req deploy.ReleaseRequest) (*deploy.Release, error) {
	slug, err := c.CreateSlug(ctx, cred, req.App, SlugRequest{
		ProcessTypes: req.ProcessTypes,
		Stack:        req.Stack,
		Commit:       req.Commit,
	})
	if err != nil {
		return nil, err
	}

	if err := c.UploadSlug(ctx, slug.Blob, req.SlugPath); err != nil {
		return nil, err
	}

	rel, err := c.CreateRelease(ctx, cred, req.App, ReleaseCreateRequest{
		Slug:        slug.ID,
		Description: req.Description,
	})
	if err != nil {
		return nil, err
	}

	return &deploy.Release{
		ID:      rel.ID,
		Version: rel.Version,
		SlugID:  slug.ID,
	}, nil
}

// CreateSlug registers a slug and returns where to upload its archive
func (c *Client) CreateSlug(ctx context.Context, cred auth.Credential, app string, req SlugRequest) (*Slug, error) {
	var slug Slug
	path := "/apps/" + url.PathEscape(app) + "/slugs"
	if err := c.do(ctx, cred, http.MethodPost, path, app, "create slug", req, &slug); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(slug.ID); err != nil {
		return nil, deploy.NewTransportError("create slug", 0, fmt.Errorf("invalid slug id %q: %w", slug.ID, err))
	}
	if slug.Blob.URL == "" {
		return nil, deploy.NewTransportError("create slug", 0, fmt.Errorf("response has no upload URL"))
	}
	return &slug, nil
}

// UploadSlug sends the archive at slugPath to the blob location
func (c *Client) UploadSlug(ctx context.Context, blob Blob, slugPath string) error {
	f, err := os.Open(filepath.Clean(slugPath))
	if err != nil {
		return deploy.NewPackagingError(err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return deploy.NewPackagingError(err)
	}

	method := strings.ToUpper(blob.Method)
	if method == "" {
		method = http.MethodPut
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, blob.URL, f)
	if err != nil {
		return deploy.NewTransportError("upload slug", 0, err)
	}
	httpReq.ContentLength = info.Size()
	httpReq.Header.Set("Content-Type", "")

	resp, err := c.blobClient.Do(httpReq)
	if err != nil {
		return deploy.NewTransportError("upload slug", 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return deploy.NewTransportError("upload slug", resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}
	return nil
}

// CreateRelease releases a previously uploaded slug
func (c *Client) CreateRelease(ctx context.Context, cred auth.Credential, app string, req ReleaseCreateRequest) (*ReleaseInfo, error) {
	var rel ReleaseInfo
	path := "/apps/" + url.PathEscape(app) + "/releases"
	if err := c.do(ctx, cred, http.MethodPost, path, app, "create release", req, &rel); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(rel.ID); err != nil {
		return nil, deploy.NewTransportError("create release", 0, fmt.Errorf("invalid release id %q: %w", rel.ID, err))
	}
	return &rel, nil
}

// do sends a JSON request. A 404 maps to AppNotFoundError for app; any other
// failure becomes a TransportError for op.
func (c *Client) do(ctx context.Context, cred auth.Credential, method, path, app, op string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return deploy.NewTransportError(op, 0, fmt.Errorf("failed to marshal request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return deploy.NewTransportError(op, 0, err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Authorization", cred.Header())
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return deploy.NewTransportError(op, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return &deploy.AppNotFoundError{App: app}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return deploy.NewTransportError(op, resp.StatusCode, errorFromBody(resp.Body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return deploy.NewTransportError(op, resp.StatusCode, fmt.Errorf("unexpected response format: %w", err))
	}
	return nil
}

func errorFromBody(r io.Reader) error {
	data, _ := io.ReadAll(io.LimitReader(r, 64*1024))
	var apiErr Error
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Message != "" {
		return &apiErr
	}
	return fmt.Errorf("API error: %s", strings.TrimSpace(string(data)))
}
