package gitlab

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gitlab "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/time/rate"

	"github.com/ratemymr/pkg/models"
)

// Config contains connection settings for the GitLab platform.
type Config struct {
	URL   string `koanf:"url"`
	Token string `koanf:"token"`
}

// NewLimiter returns the shared outbound rate limiter used by every platform
// call in one run: 5 requests per second with a small burst.
func NewLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(200*time.Millisecond), 5)
}

// Client wraps the official GitLab client for the typed read operations
// (merge request metadata, commit list) and owns the shared rate limiter.
// Discussion writes go through HTTPClient instead; the official client's
// discussion endpoints do not cover note-level resolve toggles cleanly.
type Client struct {
	gl      *gitlab.Client
	http    *HTTPClient
	cfg     Config
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient builds a platform client from deployment configuration.
func NewClient(cfg Config, requestID string, logger zerolog.Logger) (*Client, error) {
	gl, err := gitlab.NewClient(cfg.Token, gitlab.WithBaseURL(fmt.Sprintf("%s/api/v4", cfg.URL)))
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}

	limiter := NewLimiter()
	http := NewHTTPClient(cfg.URL, cfg.Token).WithRequestID(requestID).WithLimiter(limiter)

	return &Client{
		gl:      gl,
		http:    http,
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// HTTP exposes the custom client used for discussion threads.
func (c *Client) HTTP() *HTTPClient {
	return c.http
}

// FetchSubmission loads the merge request metadata and its commit list and
// assembles the immutable submission context for the run. An authentication
// failure here is terminal for the pipeline.
func (c *Client) FetchSubmission(ctx context.Context, projectID string, mrIID int) (*models.Submission, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	mr, _, err := c.gl.MergeRequests.GetMergeRequest(projectID, mrIID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch merge request %s!%d: %w", projectID, mrIID, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var shas []string
	opt := &gitlab.GetMergeRequestCommitsOptions{PerPage: 100}
	for {
		commits, resp, err := c.gl.MergeRequests.GetMergeRequestCommits(projectID, mrIID, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch commits for %s!%d: %w", projectID, mrIID, err)
		}
		for _, commit := range commits {
			shas = append(shas, commit.ID)
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	author := ""
	if mr.Author != nil {
		author = mr.Author.Username
	}

	sub := &models.Submission{
		ProjectID:    projectID,
		MRIID:        mrIID,
		Title:        mr.Title,
		SourceBranch: mr.SourceBranch,
		TargetBranch: mr.TargetBranch,
		Author:       author,
		HeadCommit:   mr.SHA,
		WebURL:       mr.WebURL,
		Commits:      shas,
	}

	c.logger.Info().
		Str("project", projectID).
		Int("mr_iid", mrIID).
		Str("source_branch", sub.SourceBranch).
		Str("target_branch", sub.TargetBranch).
		Int("commits", len(shas)).
		Msg("Fetched submission context")

	return sub, nil
}

// CloneURLForSubmission returns the authenticated HTTPS remote for the
// submission's project, used by the diff reconstructor's throwaway
// workspace. The token never appears in logs; only this remote string
// carries it. The project path comes from the submission identifier when it
// is a path, otherwise from the canonical web URL.
func (c *Client) CloneURLForSubmission(sub *models.Submission) string {
	path := sub.ProjectID
	if !strings.Contains(path, "/") {
		// Numeric project id: derive the path from the web URL,
		// e.g. https://host/group/app/-/merge_requests/42.
		if u, err := url.Parse(sub.WebURL); err == nil {
			if i := strings.Index(u.Path, "/-/"); i > 0 {
				path = strings.TrimPrefix(u.Path[:i], "/")
			}
		}
	}

	u, err := url.Parse(c.cfg.URL)
	if err != nil || u.Host == "" {
		return fmt.Sprintf("%s/%s.git", strings.TrimSuffix(c.cfg.URL, "/"), path)
	}
	u.User = url.UserPassword("oauth2", c.cfg.Token)
	u.Path = ""
	return fmt.Sprintf("%s/%s.git", u.String(), path)
}
