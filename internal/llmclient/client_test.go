package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratemymr/internal/retry"
	"github.com/ratemymr/pkg/models"
)

func fastRetry(attempts int) retry.Config {
	return retry.Config{MaxAttempts: attempts, BaseDelay: time.Millisecond, Multiplier: 2.0}
}

func testSubmission() *models.Submission {
	return &models.Submission{
		ProjectID:    "group/app",
		MRIID:        42,
		SourceBranch: "feature/x",
		TargetBranch: "main",
		Author:       "alice",
		HeadCommit:   "cafe42",
		WebURL:       "https://gitlab.example.com/group/app/-/merge_requests/42",
	}
}

func sampleRequest() CompletionRequest {
	return CompletionRequest{Messages: []Message{{Role: "user", Content: "summarize this diff"}}}
}

// fakeIntermediary is the adapter-mode backend: a token endpoint and an
// analyze endpoint with programmable behavior.
type fakeIntermediary struct {
	tokenCalls    int64
	analyzeCalls  int64
	rejectAnalyze func(call int64) int // non-zero status rejects that call
	tokenStatus   int                  // non-zero fails every token call
}

func (f *fakeIntermediary) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&f.tokenCalls, 1)
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			return
		}
		var req tokenRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Subject == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(tokenResponse{Token: "opaque-session-token"})
	})
	mux.HandleFunc("/api/analyze", func(w http.ResponseWriter, r *http.Request) {
		call := atomic.AddInt64(&f.analyzeCalls, 1)
		if r.Header.Get("Authorization") != "Bearer opaque-session-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.rejectAnalyze != nil {
			if status := f.rejectAnalyze(call); status != 0 {
				w.WriteHeader(status)
				return
			}
		}
		var req adapterRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := adapterResponse{Status: "ok"}
		resp.Metrics.SummaryText = "adapter says: " + req.Repo
		json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func TestAdapterModeTokenReuse(t *testing.T) {
	fake := &fakeIntermediary{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := New(Config{
		IntermediaryHost: srv.URL + "/api",
		Retry:            fastRetry(3),
	}, testSubmission(), zerolog.Nop())

	for i := 0; i < 4; i++ {
		resp, err := client.Complete(context.Background(), sampleRequest())
		require.NoError(t, err)
		assert.Equal(t, "adapter says: group/app", resp.Text())
	}

	assert.EqualValues(t, 1, fake.tokenCalls, "token must be acquired exactly once across 4 calls")
	assert.EqualValues(t, 4, fake.analyzeCalls)
}

func TestAdapterModeReacquiresAfter401(t *testing.T) {
	fake := &fakeIntermediary{
		rejectAnalyze: func(call int64) int {
			if call == 3 {
				return http.StatusUnauthorized
			}
			return 0
		},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := New(Config{
		IntermediaryHost: srv.URL + "/api",
		Retry:            fastRetry(3),
	}, testSubmission(), zerolog.Nop())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := client.Complete(ctx, sampleRequest())
		require.NoError(t, err)
	}

	// Call 3 hits the 401: not retried, cache cleared.
	_, err := client.Complete(ctx, sampleRequest())
	require.Error(t, err)
	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)

	// Call 4 re-acquires exactly once.
	_, err = client.Complete(ctx, sampleRequest())
	require.NoError(t, err)

	assert.EqualValues(t, 2, fake.tokenCalls)
}

func TestAdapterModeTokenEndpointDown(t *testing.T) {
	fake := &fakeIntermediary{tokenStatus: http.StatusServiceUnavailable}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := New(Config{
		IntermediaryHost: srv.URL + "/api",
		Retry:            fastRetry(3),
	}, testSubmission(), zerolog.Nop())

	_, err := client.Complete(context.Background(), sampleRequest())
	require.Error(t, err)

	// 503 is transient: the full attempt budget is spent.
	assert.EqualValues(t, 3, fake.tokenCalls)
	assert.EqualValues(t, 0, fake.analyzeCalls)
}

func TestDirectMode(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		var req CompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		json.NewEncoder(w).Encode(CompletionResponse{Content: []ContentBlock{{Type: "text", Text: "direct answer"}}})
	}))
	defer srv.Close()

	client := New(Config{CompletionURL: srv.URL, Retry: fastRetry(3)}, testSubmission(), zerolog.Nop())

	resp, err := client.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "direct answer", resp.Text())
	assert.EqualValues(t, 1, calls)
}

func TestDirectModeRetriesOn5xx(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(CompletionResponse{Content: []ContentBlock{{Type: "text", Text: "eventually"}}})
	}))
	defer srv.Close()

	client := New(Config{CompletionURL: srv.URL, Retry: fastRetry(3)}, testSubmission(), zerolog.Nop())

	resp, err := client.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "eventually", resp.Text())
	assert.EqualValues(t, 3, calls)
}

func TestDirectModeNoRetryOn4xx(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := New(Config{CompletionURL: srv.URL, Retry: fastRetry(3)}, testSubmission(), zerolog.Nop())

	_, err := client.Complete(context.Background(), sampleRequest())
	require.Error(t, err)
	var reqErr *RequestError
	assert.ErrorAs(t, err, &reqErr)
	assert.EqualValues(t, 1, calls, "client errors must not be retried")
}

func TestAdapterRequestCarriesSubmissionMetadata(t *testing.T) {
	var got adapterRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tokenResponse{Token: "tok"})
	})
	mux.HandleFunc("/api/analyze", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		resp := adapterResponse{Status: "ok"}
		resp.Metrics.SummaryText = "fine"
		json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := New(Config{IntermediaryHost: srv.URL + "/api", Retry: fastRetry(1)}, testSubmission(), zerolog.Nop())

	_, err := client.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, "group/app", got.Repo)
	assert.Equal(t, "feature/x", got.Branch)
	assert.Equal(t, "alice", got.Author)
	assert.Equal(t, "cafe42", got.Commit)

	var inner CompletionRequest
	require.NoError(t, json.Unmarshal([]byte(got.Prompt), &inner))
	assert.Equal(t, sampleRequest(), inner)
}

func TestPeekExpiryNonJWT(t *testing.T) {
	assert.True(t, peekExpiry("not-a-jwt").IsZero())
}
