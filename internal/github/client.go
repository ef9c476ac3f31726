package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewClient creates a new GitHub client with default retry and rate-limit
// settings.
func NewClient(token, owner, repo string) *Client {
	return &Client{
		Token:           token,
		Owner:           owner,
		Repo:            repo,
		BaseURL:         DefaultAPIEndpoint,
		HTTPClient:      &http.Client{Timeout: DefaultTimeout},
		MaxRetries:      DefaultMaxRetries,
		RetryDelay:      DefaultRetryDelay,
		RateLimitBuffer: DefaultRateLimitBuffer,
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	clone := c.clone()
	clone.HTTPClient = httpClient
	return clone
}

// WithBaseURL returns a new client with a custom base URL (for testing or
// GitHub Enterprise).
func (c *Client) WithBaseURL(baseURL string) *Client {
	clone := c.clone()
	clone.BaseURL = baseURL
	return clone
}

// WithRetry returns a new client with a custom retry budget and base delay.
func (c *Client) WithRetry(maxRetries int, retryDelay time.Duration) *Client {
	clone := c.clone()
	clone.MaxRetries = maxRetries
	clone.RetryDelay = retryDelay
	return clone
}

// WithRateLimitBuffer returns a new client with a custom safety buffer.
func (c *Client) WithRateLimitBuffer(buffer int) *Client {
	clone := c.clone()
	clone.RateLimitBuffer = buffer
	return clone
}

func (c *Client) clone() *Client {
	return &Client{
		Token:           c.Token,
		Owner:           c.Owner,
		Repo:            c.Repo,
		BaseURL:         c.BaseURL,
		HTTPClient:      c.HTTPClient,
		MaxRetries:      c.MaxRetries,
		RetryDelay:      c.RetryDelay,
		RateLimitBuffer: c.RateLimitBuffer,
	}
}

// repoPath returns the "owner/repo" path segment.
func (c *Client) repoPath() string {
	return c.Owner + "/" + c.Repo
}

// buildURL constructs a full API URL.
func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + path
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}
	return u
}

func (c *Client) maxRetries() int {
	if c.MaxRetries >= 0 {
		return c.MaxRetries
	}
	return DefaultMaxRetries
}

func (c *Client) retryDelay() time.Duration {
	if c.RetryDelay > 0 {
		return c.RetryDelay
	}
	return DefaultRetryDelay
}

// rawRequest performs one authenticated HTTP request with no retry. Failures
// come back as *APIError.
func (c *Client) rawRequest(ctx context.Context, op, method, urlStr string, jsonBody []byte) ([]byte, error) {
	var reqBody io.Reader
	if jsonBody != nil {
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return nil, transportError(op, err)
	}

	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}

	const maxResponseSize = 10 * 1024 * 1024
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	_ = resp.Body.Close()
	if err != nil {
		return nil, transportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classify(op, resp.StatusCode, respBody)
	}

	return respBody, nil
}

// doRequest performs an authenticated request with retry. Each call is
// attempted up to MaxRetries+1 times; retryable failures (429, 5xx,
// transport) wait RetryDelay * 2^(attempt-1) between attempts, other client
// errors stop immediately. The last error propagates after exhaustion.
func (c *Client) doRequest(ctx context.Context, op, method, urlStr string, body interface{}) ([]byte, error) {
	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s request: %w", op, err)
		}
	}

	var respBody []byte
	operation := func() error {
		resp, err := c.rawRequest(ctx, op, method, urlStr, jsonBody)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok && !apiErr.Retryable() {
				return backoff.Permanent(apiErr)
			}
			return err
		}
		respBody = resp
		return nil
	}

	expo := &backoff.ExponentialBackOff{
		InitialInterval:     c.retryDelay(),
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         5 * time.Minute,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	schedule := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(c.maxRetries())), ctx)

	if err := backoff.Retry(operation, schedule); err != nil {
		return nil, err
	}
	return respBody, nil
}

// CreateIssue creates a new issue and returns it.
func (c *Client) CreateIssue(ctx context.Context, title, body string, labels []string) (*Issue, error) {
	if err := c.checkRateLimit(ctx); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"title": title,
		"body":  body,
	}
	if len(labels) > 0 {
		payload["labels"] = labels
	}

	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues", nil)
	respBody, err := c.doRequest(ctx, "create_issue", http.MethodPost, urlStr, payload)
	if err != nil {
		return nil, err
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("parsing create response: %w", err)
	}
	return &issue, nil
}

// UpdateIssue replaces an issue's title and body. GitHub uses PATCH.
func (c *Client) UpdateIssue(ctx context.Context, number int, title, body string) (*Issue, error) {
	if err := c.checkRateLimit(ctx); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"title": title,
		"body":  body,
	}

	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	respBody, err := c.doRequest(ctx, "update_issue", http.MethodPatch, urlStr, payload)
	if err != nil {
		return nil, err
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("parsing update response: %w", err)
	}
	return &issue, nil
}

// CloseIssue marks an issue closed.
func (c *Client) CloseIssue(ctx context.Context, number int) error {
	if err := c.checkRateLimit(ctx); err != nil {
		return err
	}

	payload := map[string]interface{}{"state": "closed"}
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	_, err := c.doRequest(ctx, "close_issue", http.MethodPatch, urlStr, payload)
	return err
}

// FindIssueByLabel returns the first open-or-closed issue carrying the given
// label, or nil when none exists. The engine uses this with a task id as the
// label to re-locate an issue after state-file loss. Pull requests are
// filtered out.
func (c *Client) FindIssueByLabel(ctx context.Context, label string) (*Issue, error) {
	if err := c.checkRateLimit(ctx); err != nil {
		return nil, err
	}

	params := map[string]string{
		"labels":   label,
		"state":    "all",
		"per_page": "100",
	}
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues", params)
	respBody, err := c.doRequest(ctx, "find_issue_by_label", http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	if err := json.Unmarshal(respBody, &issues); err != nil {
		return nil, fmt.Errorf("parsing find response: %w", err)
	}

	for i := range issues {
		if issues[i].PullRequest == nil {
			return &issues[i], nil
		}
	}
	return nil, nil
}

// TestConnection verifies, in order: authentication, read access to the
// repository, and read access to its issues. Fast-fail startup check.
func (c *Client) TestConnection(ctx context.Context) error {
	respBody, err := c.doRequest(ctx, "auth_check", http.MethodGet, c.buildURL("/user", nil), nil)
	if err != nil {
		return fmt.Errorf("authentication check failed: %w", err)
	}
	var user User
	if err := json.Unmarshal(respBody, &user); err != nil {
		return fmt.Errorf("parsing user response: %w", err)
	}

	repoURL := c.buildURL("/repos/"+c.repoPath(), nil)
	if _, err := c.doRequest(ctx, "repo_check", http.MethodGet, repoURL, nil); err != nil {
		return fmt.Errorf("repository access check failed for %s: %w", c.repoPath(), err)
	}

	issuesURL := c.buildURL("/repos/"+c.repoPath()+"/issues", map[string]string{"per_page": "1"})
	if _, err := c.doRequest(ctx, "issues_check", http.MethodGet, issuesURL, nil); err != nil {
		return fmt.Errorf("issues access check failed for %s: %w", c.repoPath(), err)
	}

	return nil
}
