package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotFound reports a 404 from the API.
var ErrNotFound = errors.New("not found")

// HTTPClient is a custom HTTP client for the GitLab API endpoints the
// official client gets wrong or does not cover cleanly (discussion threads
// and note-level resolve toggles).
type HTTPClient struct {
	baseURL   string
	token     string
	requestID string
	limiter   *rate.Limiter
	client    *http.Client
}

// NewHTTPClient creates a new GitLab HTTP client.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	// Make sure baseURL doesn't end with a slash
	if baseURL != "" && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}

	return &HTTPClient{
		baseURL: fmt.Sprintf("%s/api/v4", baseURL),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// WithRequestID attaches a correlation identifier to every outbound request.
func (c *HTTPClient) WithRequestID(id string) *HTTPClient {
	c.requestID = id
	return c
}

// WithLimiter shares an outbound rate limiter with the rest of the run's
// platform calls.
func (c *HTTPClient) WithLimiter(l *rate.Limiter) *HTTPClient {
	c.limiter = l
	return c
}

// Discussion is one thread on a merge request.
type Discussion struct {
	ID             string `json:"id"`
	IndividualNote bool   `json:"individual_note"`
	Notes          []Note `json:"notes"`
}

// Note is one comment inside a discussion thread.
type Note struct {
	ID         int    `json:"id"`
	Body       string `json:"body"`
	System     bool   `json:"system"`
	Resolvable bool   `json:"resolvable"`
	Resolved   bool   `json:"resolved"`
}

func (c *HTTPClient) do(ctx context.Context, method, requestURL string, payload interface{}) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Add("PRIVATE-TOKEN", c.token)
	if payload != nil {
		req.Header.Add("Content-Type", "application/json")
	}
	if c.requestID != "" {
		req.Header.Add("X-Request-ID", c.requestID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

// ListMergeRequestDiscussions fetches every discussion thread on a merge
// request, following X-Next-Page pagination.
func (c *HTTPClient) ListMergeRequestDiscussions(ctx context.Context, projectID string, mrIID int) ([]Discussion, error) {
	var all []Discussion
	page := 1

	for {
		requestURL := fmt.Sprintf("%s/projects/%s/merge_requests/%d/discussions?per_page=100&page=%d",
			c.baseURL, url.PathEscape(projectID), mrIID, page)

		resp, err := c.do(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var batch []Discussion
		if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		resp.Body.Close()

		all = append(all, batch...)

		next := resp.Header.Get("X-Next-Page")
		if next == "" {
			break
		}
		n, err := strconv.Atoi(next)
		if err != nil || n <= page {
			break
		}
		page = n
	}

	return all, nil
}

// CreateMergeRequestDiscussion opens a new discussion thread with body.
func (c *HTTPClient) CreateMergeRequestDiscussion(ctx context.Context, projectID string, mrIID int, body string) (*Discussion, error) {
	requestURL := fmt.Sprintf("%s/projects/%s/merge_requests/%d/discussions",
		c.baseURL, url.PathEscape(projectID), mrIID)

	resp, err := c.do(ctx, http.MethodPost, requestURL, map[string]string{"body": body})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(data))
	}

	var discussion Discussion
	if err := json.NewDecoder(resp.Body).Decode(&discussion); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &discussion, nil
}

// UpdateMergeRequestNote replaces the body of an existing note.
func (c *HTTPClient) UpdateMergeRequestNote(ctx context.Context, projectID string, mrIID int, discussionID string, noteID int, body string) error {
	requestURL := fmt.Sprintf("%s/projects/%s/merge_requests/%d/discussions/%s/notes/%d",
		c.baseURL, url.PathEscape(projectID), mrIID, url.PathEscape(discussionID), noteID)

	resp, err := c.do(ctx, http.MethodPut, requestURL, map[string]string{"body": body})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(data))
	}

	return nil
}

// SetNoteResolved toggles the resolved state of a note.
func (c *HTTPClient) SetNoteResolved(ctx context.Context, projectID string, mrIID int, discussionID string, noteID int, resolved bool) error {
	requestURL := fmt.Sprintf("%s/projects/%s/merge_requests/%d/discussions/%s/notes/%d",
		c.baseURL, url.PathEscape(projectID), mrIID, url.PathEscape(discussionID), noteID)

	resp, err := c.do(ctx, http.MethodPut, requestURL, map[string]bool{"resolved": resolved})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(data))
	}

	return nil
}
