package discussion

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratemymr/internal/platform/gitlab"
	"github.com/ratemymr/pkg/models"
)

const marker = ":star2: MR Quality Rating Report :star2:"

// fakeAPI is an in-memory discussion store counting every write.
type fakeAPI struct {
	discussions []gitlab.Discussion
	listErr     error
	createErr   error
	updateErr   error
	resolveErr  error

	creates  int
	updates  int
	resolves int
}

func (f *fakeAPI) ListMergeRequestDiscussions(context.Context, string, int) ([]gitlab.Discussion, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.discussions, nil
}

func (f *fakeAPI) CreateMergeRequestDiscussion(_ context.Context, _ string, _ int, body string) (*gitlab.Discussion, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.creates++
	d := gitlab.Discussion{ID: "disc-1", Notes: []gitlab.Note{{ID: 100, Body: body, Resolvable: true}}}
	f.discussions = append(f.discussions, d)
	return &d, nil
}

func (f *fakeAPI) UpdateMergeRequestNote(_ context.Context, _ string, _ int, discussionID string, noteID int, body string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates++
	for i := range f.discussions {
		if f.discussions[i].ID != discussionID {
			continue
		}
		for j := range f.discussions[i].Notes {
			if f.discussions[i].Notes[j].ID == noteID {
				f.discussions[i].Notes[j].Body = body
			}
		}
	}
	return nil
}

func (f *fakeAPI) SetNoteResolved(_ context.Context, _ string, _ int, discussionID string, noteID int, resolved bool) error {
	if f.resolveErr != nil {
		return f.resolveErr
	}
	f.resolves++
	for i := range f.discussions {
		if f.discussions[i].ID != discussionID {
			continue
		}
		for j := range f.discussions[i].Notes {
			if f.discussions[i].Notes[j].ID == noteID {
				f.discussions[i].Notes[j].Resolved = resolved
			}
		}
	}
	return nil
}

func sub() *models.Submission {
	return &models.Submission{ProjectID: "group/app", MRIID: 42}
}

func existing(body string, resolved bool) *fakeAPI {
	return &fakeAPI{discussions: []gitlab.Discussion{
		{ID: "disc-7", Notes: []gitlab.Note{
			{ID: 9, Body: "unrelated human comment"},
		}},
		{ID: "disc-8", Notes: []gitlab.Note{
			{ID: 10, Body: body, Resolved: resolved, Resolvable: true},
		}},
	}}
}

func TestPublishCreatesWhenMissing(t *testing.T) {
	api := &fakeAPI{}
	s := New(api, marker, zerolog.Nop())

	err := s.Publish(context.Background(), sub(), marker+"\nbody v1", true)
	require.NoError(t, err)

	assert.Equal(t, 1, api.creates)
	assert.Equal(t, 0, api.updates)
	assert.Equal(t, 0, api.resolves, "blocking new notes stay unresolved, no toggle needed")
}

func TestPublishCreateResolvesPassingNote(t *testing.T) {
	api := &fakeAPI{}
	s := New(api, marker, zerolog.Nop())

	err := s.Publish(context.Background(), sub(), marker+"\nbody v1", false)
	require.NoError(t, err)

	assert.Equal(t, 1, api.creates)
	assert.Equal(t, 1, api.resolves)
	assert.True(t, api.discussions[0].Notes[0].Resolved)
}

func TestPublishIsIdempotent(t *testing.T) {
	body := marker + "\nbody v1"
	api := existing(body, true)
	s := New(api, marker, zerolog.Nop())

	// Unchanged body, already resolved, passing: no write at all.
	err := s.Publish(context.Background(), sub(), body, false)
	require.NoError(t, err)

	assert.Equal(t, 0, api.creates)
	assert.Equal(t, 0, api.updates)
	assert.Equal(t, 0, api.resolves)
}

func TestPublishUpdatesSameNoteOnChange(t *testing.T) {
	api := existing(marker+"\nbody v1", true)
	s := New(api, marker, zerolog.Nop())

	err := s.Publish(context.Background(), sub(), marker+"\nbody v2", false)
	require.NoError(t, err)

	assert.Equal(t, 0, api.creates, "must never open a second thread")
	assert.Equal(t, 1, api.updates)
	assert.Equal(t, marker+"\nbody v2", api.discussions[1].Notes[0].Body)
}

func TestPublishUnresolvesBeforeBlockingUpdate(t *testing.T) {
	api := existing(marker+"\nbody v1", true)
	s := New(api, marker, zerolog.Nop())

	err := s.Publish(context.Background(), sub(), marker+"\nbody v2", true)
	require.NoError(t, err)

	assert.Equal(t, 1, api.updates)
	assert.Equal(t, 1, api.resolves)
	assert.False(t, api.discussions[1].Notes[0].Resolved)
}

func TestPublishTogglesResolvedOnlyOnStateChange(t *testing.T) {
	body := marker + "\nbody v1"

	// Already unresolved and blocking: nothing to toggle.
	api := existing(body, false)
	s := New(api, marker, zerolog.Nop())
	require.NoError(t, s.Publish(context.Background(), sub(), body, true))
	assert.Equal(t, 0, api.resolves)

	// Unresolved but now passing: one toggle to resolved.
	api = existing(body, false)
	s = New(api, marker, zerolog.Nop())
	require.NoError(t, s.Publish(context.Background(), sub(), body, false))
	assert.Equal(t, 1, api.resolves)
	assert.True(t, api.discussions[1].Notes[0].Resolved)
}

func TestPublishIgnoresSystemAndForeignNotes(t *testing.T) {
	api := &fakeAPI{discussions: []gitlab.Discussion{
		{ID: "sys", Notes: []gitlab.Note{{ID: 1, Body: marker + " spoofed", System: true}}},
		{ID: "human", Notes: []gitlab.Note{{ID: 2, Body: "nice change!"}}},
	}}
	s := New(api, marker, zerolog.Nop())

	err := s.Publish(context.Background(), sub(), marker+"\nbody", true)
	require.NoError(t, err)
	assert.Equal(t, 1, api.creates, "system notes must not match the marker")
}

func TestPublishSurfacesWriteFailures(t *testing.T) {
	api := existing(marker+"\nbody v1", false)
	api.updateErr = errors.New("502 bad gateway")
	s := New(api, marker, zerolog.Nop())

	err := s.Publish(context.Background(), sub(), marker+"\nbody v2", true)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, "update note", syncErr.Op)
}

func TestPublishSurfacesListFailures(t *testing.T) {
	api := &fakeAPI{listErr: errors.New("401 unauthorized")}
	s := New(api, marker, zerolog.Nop())

	err := s.Publish(context.Background(), sub(), marker+"\nbody", false)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, "list discussions", syncErr.Op)
}
