package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// serveRateLimit registers a healthy /rate_limit endpoint on the mux so the
// proactive gate never blocks during tests.
func serveRateLimit(mux *http.ServeMux) {
	mux.HandleFunc("/rate_limit", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rateLimitResponse{Rate: RateLimit{
			Limit:     5000,
			Remaining: 4999,
			Reset:     time.Now().Add(time.Hour).Unix(),
			Used:      1,
		}})
	})
}

func testClient(serverURL string) *Client {
	return NewClient("test-token", "owner", "repo").
		WithBaseURL(serverURL).
		WithRetry(2, time.Millisecond)
}

// TestNewClient verifies the constructor defaults.
func TestNewClient(t *testing.T) {
	client := NewClient("test-token", "owner", "repo")

	if client.Token != "test-token" {
		t.Errorf("Token = %q, want %q", client.Token, "test-token")
	}
	if client.BaseURL != DefaultAPIEndpoint {
		t.Errorf("BaseURL = %q, want %q", client.BaseURL, DefaultAPIEndpoint)
	}
	if client.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", client.MaxRetries, DefaultMaxRetries)
	}
	if client.RateLimitBuffer != DefaultRateLimitBuffer {
		t.Errorf("RateLimitBuffer = %d, want %d", client.RateLimitBuffer, DefaultRateLimitBuffer)
	}
	if client.HTTPClient == nil {
		t.Error("HTTPClient is nil, want non-nil default client")
	}
}

// TestCreateIssue_Success verifies creating an issue via POST.
func TestCreateIssue_Success(t *testing.T) {
	var capturedBody map[string]interface{}

	mux := http.NewServeMux()
	serveRateLimit(mux)
	mux.HandleFunc("/repos/owner/repo/issues", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Errorf("Authorization header = %q, want Bearer prefix", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&capturedBody)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Issue{ID: 100, Number: 42, Title: "New issue", State: "open"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	issue, err := testClient(server.URL).CreateIssue(context.Background(), "New issue", "Body here", []string{"kiro-task", "1.2"})
	if err != nil {
		t.Fatalf("CreateIssue() error = %v", err)
	}

	if issue.Number != 42 {
		t.Errorf("issue.Number = %d, want 42", issue.Number)
	}
	if capturedBody["title"] != "New issue" {
		t.Errorf("request body title = %v, want %q", capturedBody["title"], "New issue")
	}
	labels, ok := capturedBody["labels"].([]interface{})
	if !ok || len(labels) != 2 {
		t.Errorf("request body labels = %v, want 2 labels", capturedBody["labels"])
	}
}

// TestUpdateIssue_Success verifies updating an issue via PATCH.
func TestUpdateIssue_Success(t *testing.T) {
	mux := http.NewServeMux()
	serveRateLimit(mux)
	mux.HandleFunc("/repos/owner/repo/issues/42", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("Method = %s, want PATCH", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Issue{ID: 100, Number: 42, Title: "Updated title", State: "open"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	issue, err := testClient(server.URL).UpdateIssue(context.Background(), 42, "Updated title", "Updated body")
	if err != nil {
		t.Fatalf("UpdateIssue() error = %v", err)
	}
	if issue.Title != "Updated title" {
		t.Errorf("issue.Title = %q, want %q", issue.Title, "Updated title")
	}
}

// TestCloseIssue_Success verifies closing sends state=closed.
func TestCloseIssue_Success(t *testing.T) {
	var capturedBody map[string]interface{}

	mux := http.NewServeMux()
	serveRateLimit(mux)
	mux.HandleFunc("/repos/owner/repo/issues/7", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("Method = %s, want PATCH", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&capturedBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Issue{ID: 1, Number: 7, State: "closed"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	if err := testClient(server.URL).CloseIssue(context.Background(), 7); err != nil {
		t.Fatalf("CloseIssue() error = %v", err)
	}
	if capturedBody["state"] != "closed" {
		t.Errorf("request body state = %v, want %q", capturedBody["state"], "closed")
	}
}

// TestFindIssueByLabel verifies label filtering and PR exclusion.
func TestFindIssueByLabel(t *testing.T) {
	mux := http.NewServeMux()
	serveRateLimit(mux)
	mux.HandleFunc("/repos/owner/repo/issues", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("labels"); got != "1.2" {
			t.Errorf("labels param = %q, want %q", got, "1.2")
		}
		if got := r.URL.Query().Get("state"); got != "all" {
			t.Errorf("state param = %q, want %q", got, "all")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]Issue{
			{ID: 1, Number: 1, Title: "A PR", PullRequest: &PullRef{URL: "https://api.github.com/repos/o/r/pulls/1"}},
			{ID: 2, Number: 9, Title: "The task issue"},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	issue, err := testClient(server.URL).FindIssueByLabel(context.Background(), "1.2")
	if err != nil {
		t.Fatalf("FindIssueByLabel() error = %v", err)
	}
	if issue == nil || issue.Number != 9 {
		t.Fatalf("FindIssueByLabel() = %+v, want issue number 9", issue)
	}
}

// TestFindIssueByLabel_NotFound verifies a nil result when no issue matches.
func TestFindIssueByLabel_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	serveRateLimit(mux)
	mux.HandleFunc("/repos/owner/repo/issues", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]Issue{})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	issue, err := testClient(server.URL).FindIssueByLabel(context.Background(), "9.9")
	if err != nil {
		t.Fatalf("FindIssueByLabel() error = %v", err)
	}
	if issue != nil {
		t.Errorf("FindIssueByLabel() = %+v, want nil", issue)
	}
}

// TestRetry_ExhaustsBudget verifies a persistently failing call is attempted
// exactly MaxRetries+1 times before the final error surfaces.
func TestRetry_ExhaustsBudget(t *testing.T) {
	attempts := 0
	mux := http.NewServeMux()
	serveRateLimit(mux)
	mux.HandleFunc("/repos/owner/repo/issues", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message": "boom"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := testClient(server.URL) // MaxRetries = 2
	_, err := client.CreateIssue(context.Background(), "T", "B", nil)
	if err == nil {
		t.Fatal("CreateIssue() error = nil, want error after retry exhaustion")
	}
	if attempts != client.MaxRetries+1 {
		t.Errorf("attempts = %d, want %d", attempts, client.MaxRetries+1)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Kind != KindAPI || apiErr.StatusCode != 500 {
		t.Errorf("error = %v, want api kind with status 500", apiErr)
	}
}

// TestRetry_NonRetryableStopsImmediately verifies 4xx (other than 429) never
// retries.
func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	mux := http.NewServeMux()
	serveRateLimit(mux)
	mux.HandleFunc("/repos/owner/repo/issues", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "Not Found"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	_, err := testClient(server.URL).CreateIssue(context.Background(), "T", "B", nil)
	if err == nil {
		t.Fatal("CreateIssue() error = nil, want not-found error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retries for 404)", attempts)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Kind != KindNotFound {
		t.Errorf("Kind = %s, want not_found", apiErr.Kind)
	}
	if apiErr.Op != "create_issue" {
		t.Errorf("Op = %q, want %q", apiErr.Op, "create_issue")
	}
}

// TestRetry_RateLimited429IsRetryable verifies 429 retries and then succeeds.
func TestRetry_RateLimited429IsRetryable(t *testing.T) {
	attempts := 0
	mux := http.NewServeMux()
	serveRateLimit(mux)
	mux.HandleFunc("/repos/owner/repo/issues", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"message": "API rate limit exceeded"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Issue{Number: 1, Title: "After retry"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	issue, err := testClient(server.URL).CreateIssue(context.Background(), "T", "B", nil)
	if err != nil {
		t.Fatalf("CreateIssue() error = %v, want success after retry", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if issue.Title != "After retry" {
		t.Errorf("issue.Title = %q, want %q", issue.Title, "After retry")
	}
}

// TestTestConnection_ChecksInOrder verifies auth, repo, issues probes run in
// order.
func TestTestConnection_ChecksInOrder(t *testing.T) {
	var order []string
	mux := http.NewServeMux()
	serveRateLimit(mux)
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "user")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(User{ID: 1, Login: "octocat"})
	})
	mux.HandleFunc("/repos/owner/repo", func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "repo")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Repository{ID: 1, FullName: "owner/repo"})
	})
	mux.HandleFunc("/repos/owner/repo/issues", func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "issues")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]Issue{})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	if err := testClient(server.URL).TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection() error = %v", err)
	}
	want := []string{"user", "repo", "issues"}
	if len(order) != 3 || order[0] != want[0] || order[1] != want[1] || order[2] != want[2] {
		t.Errorf("probe order = %v, want %v", order, want)
	}
}

// TestTestConnection_AuthFailure verifies a 401 fails the first probe.
func TestTestConnection_AuthFailure(t *testing.T) {
	mux := http.NewServeMux()
	serveRateLimit(mux)
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message": "Bad credentials"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	err := testClient(server.URL).TestConnection(context.Background())
	if err == nil {
		t.Fatal("TestConnection() error = nil, want auth failure")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want wrapped *APIError", err)
	}
	if apiErr.Kind != KindAuth {
		t.Errorf("Kind = %s, want auth", apiErr.Kind)
	}
}
