// Package github provides the client and data types for the GitHub REST API.
//
// Every mutating call is wrapped in proactive rate-limit gating and
// exponential-backoff retry, so the sync engine can drive it without its own
// failure handling. Works against github.com and enterprise installs via a
// configurable base URL.
package github

import (
	"net/http"
	"sync"
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitHub REST API base URL.
	DefaultAPIEndpoint = "https://api.github.com"

	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default retry budget for retryable failures.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the base delay between retries (exponential backoff).
	DefaultRetryDelay = time.Second

	// DefaultRateLimitBuffer is the remaining-call floor below which the
	// client waits for quota reset instead of risking a failed call.
	DefaultRateLimitBuffer = 10

	// rateLimitTTL bounds how often the rate-limit snapshot is refreshed.
	rateLimitTTL = 5 * time.Minute

	// resetMargin is added past the reported reset time before resuming.
	resetMargin = time.Second
)

// Client provides methods to interact with the GitHub REST API.
type Client struct {
	Token      string       // personal access token
	Owner      string       // repository owner (user or org)
	Repo       string       // repository name
	BaseURL    string       // API base URL (default: https://api.github.com)
	HTTPClient *http.Client // optional custom HTTP client

	MaxRetries      int           // retry budget; a call is attempted MaxRetries+1 times
	RetryDelay      time.Duration // base backoff delay
	RateLimitBuffer int           // safety buffer of remaining calls

	rateMu      sync.Mutex
	rateLimit   *RateLimit
	rateFetched time.Time
}

// RateLimit is a snapshot of the core API quota.
type RateLimit struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"` // epoch seconds
	Used      int   `json:"used"`
}

// rateLimitResponse is the shape of GET /rate_limit.
type rateLimitResponse struct {
	Rate RateLimit `json:"rate"`
}

// Issue represents an issue from the GitHub API.
type Issue struct {
	ID          int        `json:"id"`     // global unique ID
	Number      int        `json:"number"` // repository-scoped issue number
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	State       string     `json:"state"` // "open" or "closed"
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	Labels      []Label    `json:"labels"`
	HTMLURL     string     `json:"html_url"`
	PullRequest *PullRef   `json:"pull_request,omitempty"` // non-nil if this is a PR
}

// PullRef indicates an issue is actually a pull request. The GitHub Issues
// API returns PRs alongside issues; this field distinguishes them.
type PullRef struct {
	URL string `json:"url,omitempty"`
}

// Label represents a GitHub label.
type Label struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

// User represents a GitHub user (used by the connectivity self-test).
type User struct {
	ID    int    `json:"id"`
	Login string `json:"login"`
}

// Repository represents a GitHub repository (used by the connectivity self-test).
type Repository struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
}

// LabelNames extracts label name strings from a slice of Label structs.
func LabelNames(labels []Label) []string {
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.Name
	}
	return names
}
