// Package remote is the HTTP client for the sync service. Transient failures
// (network errors, 5xx) are retried with exponential backoff inside each
// call; authentication failures are surfaced as ErrUnauthorized and never
// retried — re-login is the only cure for those.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/focusd/internal/store"
)

const (
	defaultTimeout = 15 * time.Second
	maxAttempts    = 3
	initialBackoff = 500 * time.Millisecond
)

// ErrUnauthorized means the credential was rejected. Callers stop sending
// and queue records until a new login succeeds.
var ErrUnauthorized = errors.New("remote: unauthorized")

// transientError marks a failure worth retrying: the request may succeed
// unchanged on a later attempt.
type transientError struct {
	status int
	err    error
}

func (e *transientError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("transient: %v", e.err)
	}
	return fmt.Sprintf("transient: HTTP %d", e.status)
}

func (e *transientError) Unwrap() error { return e.err }

// IsTransient reports whether err is a retryable remote failure.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Client talks to the sync service.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu         sync.RWMutex
	credential string
}

// NewClient creates a client for the given base URL. The credential is set
// later, after login or after restoring one from the store.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// SetCredential installs the bearer credential used on subsequent calls.
func (c *Client) SetCredential(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credential = token
}

// Credential returns the current bearer credential, empty when logged out.
func (c *Client) Credential() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credential
}

// Authenticate exchanges credentials for a bearer token and installs it on
// the client. Not retried: a rejected login fails immediately.
func (c *Client) Authenticate(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", fmt.Errorf("marshaling login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &transientError{err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("decoding login response: %w", err)
	}
	c.SetCredential(lr.Token)
	return lr.Token, nil
}

// SubmitRecord sends one record.
func (c *Client) SubmitRecord(ctx context.Context, rec AttentionRecord) error {
	return c.doRetry(ctx, http.MethodPost, "/records", rec, nil)
}

// SubmitBatch sends records in queue order and returns how many the service
// ingested. The caller removes exactly that prefix from the queue.
func (c *Client) SubmitBatch(ctx context.Context, recs []AttentionRecord) (int, error) {
	var br batchResponse
	if err := c.doRetry(ctx, http.MethodPost, "/records/batch", batchRequest{Records: recs}, &br); err != nil {
		return 0, err
	}
	return br.Ingested, nil
}

// PendingAssignment fetches the user's explicit video-to-chapter assignment
// for a resource. Returns (nil, nil) when none is pending.
func (c *Client) PendingAssignment(ctx context.Context, resourceKey string) (*PendingAssignment, error) {
	var pa PendingAssignment
	path := "/assignments/pending?resource=" + url.QueryEscape(resourceKey)
	err := c.doRetry(ctx, http.MethodGet, path, nil, &pa)
	if errors.Is(err, errNoContent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pa, nil
}

// ListPlans fetches the plan and progress listings, converted to store shape
// for caching.
func (c *Client) ListPlans(ctx context.Context) ([]store.Plan, error) {
	var wire []wirePlan
	if err := c.doRetry(ctx, http.MethodGet, "/plans", nil, &wire); err != nil {
		return nil, err
	}
	plans := make([]store.Plan, 0, len(wire))
	for _, p := range wire {
		plans = append(plans, p.toStore())
	}
	return plans, nil
}

// ReportMatch submits a scored-match result.
func (c *Client) ReportMatch(ctx context.Context, m MatchReport) error {
	return c.doRetry(ctx, http.MethodPost, "/matches", m, nil)
}

// SetVideoForChapter binds a video resource to a plan chapter.
func (c *Client) SetVideoForChapter(ctx context.Context, planID string, chapterIndex int, resourceKey string) error {
	path := fmt.Sprintf("/plans/%s/chapters/%d/video", url.PathEscape(planID), chapterIndex)
	return c.doRetry(ctx, http.MethodPost, path, map[string]string{"resource_key": resourceKey}, nil)
}

// errNoContent is the internal marker for a 404/204 on an optional fetch.
var errNoContent = errors.New("remote: no content")

// doRetry runs one request with the retry policy: transient failures back
// off exponentially for a small fixed attempt count, everything else fails
// immediately.
func (c *Client) doRetry(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	var lastErr error
	for attempt := range maxAttempts {
		err := c.do(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}

		lastErr = err
		if attempt < maxAttempts-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cred := c.Credential(); cred != "" {
		req.Header.Set("Authorization", "Bearer "+cred)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transientError{err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		return errNoContent
	case resp.StatusCode >= 500:
		return &transientError{status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted:
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
