package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ratemymr/internal/retry"
	"github.com/ratemymr/pkg/models"
)

// subjectKind is the analysis-kind segment of the token subject string.
const subjectKind = "ratemymr"

// Config selects the backend mode and bounds every outbound attempt.
// Adapter mode is active exactly when IntermediaryHost is set.
type Config struct {
	CompletionURL    string        // direct mode endpoint
	IntermediaryHost string        // adapter mode base, e.g. "http://bfa.internal:8000/api"
	Timeout          time.Duration // per-attempt bound
	Retry            retry.Config
}

// Completer is what the analyses depend on; tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Client talks to the completion service for one pipeline run. It owns the
// run's session-token cache; two runs never share one.
type Client struct {
	cfg    Config
	sub    *models.Submission
	logger zerolog.Logger
	httpc  *http.Client
	cache  tokenCache
}

// New builds the run's client. Mode is fixed for the client's lifetime.
func New(cfg Config, sub *models.Submission, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return &Client{
		cfg:    cfg,
		sub:    sub,
		logger: logger,
		httpc:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) adapterMode() bool {
	return c.cfg.IntermediaryHost != ""
}

// Complete sends one analysis request under the retry policy. Callers are
// mode-agnostic: both backends answer with the normalized response shape.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var resp CompletionResponse

	result := retry.Do(ctx, c.cfg.Retry, c.logger, func() error {
		r, err := c.attempt(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})

	if !result.Success {
		return CompletionResponse{}, fmt.Errorf("completion call failed after %d attempt(s): %w",
			result.Attempts, result.LastError)
	}
	return resp, nil
}

// EnsureToken acquires the session token ahead of a concurrent fan-out so
// that every parallel call finds the cache warm. No-op in direct mode.
func (c *Client) EnsureToken(ctx context.Context) error {
	if !c.adapterMode() {
		return nil
	}
	result := retry.Do(ctx, c.cfg.Retry, c.logger, func() error {
		_, err := c.ensureToken(ctx)
		return err
	})
	if !result.Success {
		return fmt.Errorf("token acquisition failed after %d attempt(s): %w",
			result.Attempts, result.LastError)
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if c.adapterMode() {
		return c.attemptAdapter(ctx, req)
	}
	return c.attemptDirect(ctx, req)
}

func (c *Client) attemptDirect(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var resp CompletionResponse
	if err := c.post(ctx, c.cfg.CompletionURL, "", req, &resp); err != nil {
		return CompletionResponse{}, err
	}
	return resp, nil
}

func (c *Client) attemptAdapter(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return CompletionResponse{}, err
	}

	prompt, err := json.Marshal(req)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("failed to serialize prompt: %w", err)
	}

	wire := adapterRequest{
		Repo:   c.sub.ProjectID,
		Branch: c.sub.SourceBranch,
		Author: c.sub.Author,
		Commit: c.sub.HeadCommit,
		URL:    c.sub.WebURL,
		Prompt: string(prompt),
	}

	var raw adapterResponse
	if err := c.post(ctx, c.endpoint("/analyze"), token.Value, wire, &raw); err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			c.cache.clear()
			c.logger.Warn().
				Str("subject", token.Subject).
				Str("token_prefix", token.Prefix()).
				Msg("Session token rejected, cache cleared")
		}
		return CompletionResponse{}, err
	}

	// Normalize into the direct-mode shape so callers never branch on mode.
	return CompletionResponse{Content: []ContentBlock{{Type: "text", Text: raw.Metrics.SummaryText}}}, nil
}

// ensureToken returns the cached session token, acquiring one when the cache
// is empty or the token's readable expiry has passed.
func (c *Client) ensureToken(ctx context.Context) (*SessionToken, error) {
	if token := c.cache.get(time.Now()); token != nil {
		return token, nil
	}

	subject := fmt.Sprintf("%s-%s-%d", subjectKind, c.sub.ProjectID, c.sub.MRIID)

	var resp tokenResponse
	if err := c.post(ctx, c.endpoint("/token"), "", tokenRequest{Subject: subject}, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, &RequestError{Status: http.StatusOK, Body: "token endpoint returned an empty token"}
	}

	token := &SessionToken{
		Value:      resp.Token,
		Subject:    subject,
		AcquiredAt: time.Now(),
		ExpiresAt:  peekExpiry(resp.Token),
	}
	c.cache.set(token)

	c.logger.Debug().
		Str("subject", subject).
		Str("token_prefix", token.Prefix()).
		Time("expires_at", token.ExpiresAt).
		Msg("Session token acquired")

	return token, nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimSuffix(c.cfg.IntermediaryHost, "/") + path
}

// post issues one JSON request/response exchange. Non-2xx statuses map onto
// the error taxonomy; transport failures come back transient.
func (c *Client) post(ctx context.Context, url, bearer string, payload, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &TransientError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &RequestError{Status: resp.StatusCode, Body: fmt.Sprintf("undecodable response: %v", err)}
	}
	return nil
}
