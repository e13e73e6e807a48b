// Package discussion keeps exactly one rating comment alive per merge
// request, however many times the pipeline re-runs for it.
package discussion

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ratemymr/internal/platform/gitlab"
	"github.com/ratemymr/pkg/models"
)

// API is the slice of the platform client the synchronizer needs; tests
// substitute a fake.
type API interface {
	ListMergeRequestDiscussions(ctx context.Context, projectID string, mrIID int) ([]gitlab.Discussion, error)
	CreateMergeRequestDiscussion(ctx context.Context, projectID string, mrIID int, body string) (*gitlab.Discussion, error)
	UpdateMergeRequestNote(ctx context.Context, projectID string, mrIID int, discussionID string, noteID int, body string) error
	SetNoteResolved(ctx context.Context, projectID string, mrIID int, discussionID string, noteID int, resolved bool) error
}

// SyncError is a failed platform write. It always carries the operation so
// the log line says exactly what could not be done.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("discussion sync failed during %s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Synchronizer finds-or-creates the marked comment and updates it in place.
type Synchronizer struct {
	api    API
	marker string
	logger zerolog.Logger
}

// New builds a synchronizer matching notes that start with marker.
func New(api API, marker string, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{api: api, marker: marker, logger: logger}
}

// Publish reconciles the remote comment with body, idempotently:
// an unchanged body issues no write; a changed body updates the existing
// note in place; a missing note creates one thread. The resolved state
// follows blocking (blocking comments stay unresolved) and is only toggled
// when it actually differs.
func (s *Synchronizer) Publish(ctx context.Context, sub *models.Submission, body string, blocking bool) error {
	state, err := s.find(ctx, sub)
	if err != nil {
		return err
	}

	if !state.Found {
		created, err := s.api.CreateMergeRequestDiscussion(ctx, sub.ProjectID, sub.MRIID, body)
		if err != nil {
			return s.fail("create discussion", err)
		}
		s.logger.Info().Str("discussion_id", created.ID).Msg("Rating comment created")

		if blocking {
			// New notes start unresolved, which is what blocking wants.
			return nil
		}
		if len(created.Notes) > 0 {
			if err := s.api.SetNoteResolved(ctx, sub.ProjectID, sub.MRIID, created.ID, created.Notes[0].ID, true); err != nil {
				return s.fail("resolve new note", err)
			}
		}
		return nil
	}

	// A resolved note cannot be updated into a blocking state last; unresolve
	// first so a mid-sequence failure still leaves the MR blocked.
	if state.Resolved && blocking {
		if err := s.api.SetNoteResolved(ctx, sub.ProjectID, sub.MRIID, state.DiscussionID, state.NoteID, false); err != nil {
			return s.fail("unresolve note", err)
		}
		state.Resolved = false
	}

	if state.Body != body {
		if err := s.api.UpdateMergeRequestNote(ctx, sub.ProjectID, sub.MRIID, state.DiscussionID, state.NoteID, body); err != nil {
			return s.fail("update note", err)
		}
		s.logger.Info().Str("discussion_id", state.DiscussionID).Int("note_id", state.NoteID).Msg("Rating comment updated")
	} else {
		s.logger.Debug().Int("note_id", state.NoteID).Msg("Rating comment unchanged, no write issued")
	}

	wantResolved := !blocking
	if state.Resolved != wantResolved {
		if err := s.api.SetNoteResolved(ctx, sub.ProjectID, sub.MRIID, state.DiscussionID, state.NoteID, wantResolved); err != nil {
			return s.fail("toggle resolved state", err)
		}
		s.logger.Info().Bool("resolved", wantResolved).Int("note_id", state.NoteID).Msg("Rating comment resolved state changed")
	}

	return nil
}

// find reads the remote state of the marked comment once, before mutation.
func (s *Synchronizer) find(ctx context.Context, sub *models.Submission) (models.DiscussionState, error) {
	discussions, err := s.api.ListMergeRequestDiscussions(ctx, sub.ProjectID, sub.MRIID)
	if err != nil {
		return models.DiscussionState{}, s.fail("list discussions", err)
	}

	for _, d := range discussions {
		for _, note := range d.Notes {
			if note.System {
				continue
			}
			if strings.HasPrefix(note.Body, s.marker) {
				return models.DiscussionState{
					Found:        true,
					DiscussionID: d.ID,
					NoteID:       note.ID,
					Body:         note.Body,
					Resolved:     note.Resolved,
				}, nil
			}
		}
	}
	return models.DiscussionState{}, nil
}

// fail logs the full detail before returning; a platform write failure is
// never silently discarded.
func (s *Synchronizer) fail(op string, err error) error {
	serr := &SyncError{Op: op, Err: err}
	s.logger.Error().Err(err).Str("operation", op).Msg("Discussion synchronization failed")
	return serr
}
