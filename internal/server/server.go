// Package server is the thin webhook front door: it validates the GitLab
// secret token, filters merge request events, and hands each accepted event
// to the dispatcher before answering.
package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ratemymr/internal/correlation"
	"github.com/ratemymr/internal/dispatch"
	"github.com/ratemymr/internal/pipeline"
)

// gitlabTokenHeader carries the webhook secret configured on the project.
const gitlabTokenHeader = "X-Gitlab-Token"

// mrEvent is the slice of GitLab's merge request event payload the server
// reads; everything else is the pipeline's business to fetch fresh.
type mrEvent struct {
	ObjectKind string `json:"object_kind"`
	Project    struct {
		ID                int    `json:"id"`
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
	ObjectAttributes struct {
		IID    int    `json:"iid"`
		Action string `json:"action"`
		State  string `json:"state"`
	} `json:"object_attributes"`
}

// actionsHandled are the MR lifecycle actions that trigger an assessment.
var actionsHandled = map[string]bool{
	"open":   true,
	"update": true,
	"reopen": true,
}

// Server wires echo to the dispatcher.
type Server struct {
	echo   *echo.Echo
	pool   *dispatch.Pool
	secret string
	logger zerolog.Logger
}

// New builds the webhook server.
func New(pool *dispatch.Pool, secret string, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, pool: pool, secret: secret, logger: logger}

	e.GET("/healthz", s.health)
	e.POST("/webhook", s.webhook)

	return s
}

// Start blocks serving addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("Webhook server listening")
	return s.echo.Start(addr)
}

// Shutdown stops the listener first, so no webhook can enqueue onto a pool
// that is draining, then waits for in-flight runs.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Listener did not stop cleanly")
	}
	s.pool.Shutdown()
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) webhook(c echo.Context) error {
	if s.secret != "" {
		token := c.Request().Header.Get(gitlabTokenHeader)
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) != 1 {
			s.logger.Warn().Str("remote", c.RealIP()).Msg("Webhook rejected: bad secret token")
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		}
	}

	var event mrEvent
	if err := c.Bind(&event); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "undecodable payload"})
	}

	if event.ObjectKind != "merge_request" || !actionsHandled[event.ObjectAttributes.Action] {
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	projectID := event.Project.PathWithNamespace
	if projectID == "" {
		projectID = fmt.Sprint(event.Project.ID)
	}

	id := correlation.New()
	job := dispatch.Job{Params: pipeline.Params{
		ProjectID:     projectID,
		MRIID:         event.ObjectAttributes.IID,
		CorrelationID: id.String(),
	}}

	if err := s.pool.Enqueue(job); err != nil {
		s.logger.Warn().Err(err).Str("project", projectID).Int("mr_iid", job.Params.MRIID).Msg("Webhook dropped: queue full")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "busy, retry later"})
	}

	s.logger.Info().
		Str("request_id", id.String()).
		Str("project", projectID).
		Int("mr_iid", job.Params.MRIID).
		Str("action", event.ObjectAttributes.Action).
		Msg("Webhook accepted")

	return c.JSON(http.StatusAccepted, map[string]string{"request_id": id.String()})
}
