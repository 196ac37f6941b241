package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/roam/pkg/domain"
)

type fakeEngine struct {
	mu       sync.Mutex
	states   map[string]*domain.State
	runErr   error
	runGoals []string
	deleted  []string
	started  chan string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		states:  make(map[string]*domain.State),
		started: make(chan string, 8),
	}
}

func (f *fakeEngine) Run(_ context.Context, goal string) (*domain.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runGoals = append(f.runGoals, goal)

	state := domain.NewState("sess-"+goal, goal)
	sg := domain.NewSubgoal("do the thing")
	sg.Status = domain.SubgoalSuccess
	state.Plan = domain.Plan{sg}
	state.Done = f.runErr == nil
	f.states[state.SessionID] = state
	f.started <- state.SessionID
	return state, f.runErr
}

func (f *fakeEngine) Session(_ context.Context, sessionID string) (*domain.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return state, nil
}

func (f *fakeEngine) Sessions(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.states))
	for id := range f.states {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeEngine) DeleteSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, sessionID)
	delete(f.states, sessionID)
	return nil
}

func TestHealth(t *testing.T) {
	h := NewHandler(newFakeEngine(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateSession_WaitReturnsFinalState(t *testing.T) {
	eng := newFakeEngine()
	h := NewHandler(eng, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions",
		strings.NewReader(`{"goal":"open settings","wait":true}`))
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp createResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sess-open settings", resp.SessionID)
	assert.True(t, resp.Done)
	require.Len(t, resp.Plan, 1)
	assert.Equal(t, "SUCCESS", resp.Plan[0].Status)
	assert.Empty(t, resp.Error)
}

func TestCreateSession_WaitReportsRunError(t *testing.T) {
	eng := newFakeEngine()
	eng.runErr = errors.New("device unreachable")
	h := NewHandler(eng, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions",
		strings.NewReader(`{"goal":"open settings","wait":true}`))
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp createResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "device unreachable")
}

func TestCreateSession_DetachedRunsInBackground(t *testing.T) {
	eng := newFakeEngine()
	h := NewHandler(eng, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions",
		strings.NewReader(`{"goal":"open settings"}`))
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	id := <-eng.started
	assert.Equal(t, "sess-open settings", id)
}

func TestCreateSession_RejectsBadRequests(t *testing.T) {
	h := NewHandler(newFakeEngine(), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"goal":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSession(t *testing.T) {
	eng := newFakeEngine()
	_, _ = eng.Run(context.Background(), "g")
	h := NewHandler(eng, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/sess-g", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var state domain.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "g", state.Goal)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndDeleteSessions(t *testing.T) {
	eng := newFakeEngine()
	_, _ = eng.Run(context.Background(), "one")
	_, _ = eng.Run(context.Background(), "two")
	h := NewHandler(eng, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listed map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.ElementsMatch(t, []string{"sess-one", "sess-two"}, listed["sessions"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/sess-one", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"sess-one"}, eng.deleted)
}
