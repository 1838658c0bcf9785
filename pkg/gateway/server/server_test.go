package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadvoice/leadvoice/pkg/agent"
	"github.com/leadvoice/leadvoice/pkg/config"
	"github.com/leadvoice/leadvoice/pkg/queue"
	"github.com/leadvoice/leadvoice/pkg/session"
	"github.com/leadvoice/leadvoice/pkg/store"
)

type fakeLeadStore struct {
	leads   []store.Lead
	listErr error
}

func (f *fakeLeadStore) InsertLead(ctx context.Context, lead *store.Lead) (int64, error) {
	return 1, nil
}

func (f *fakeLeadStore) UpdateLeadStatus(ctx context.Context, id int64, status string) error {
	return nil
}

func (f *fakeLeadStore) ListLeads(ctx context.Context, limit int) ([]store.Lead, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.leads, nil
}

type noopNotifier struct{}

func (noopNotifier) Send(ctx context.Context, recipient, subject, body string) error { return nil }

func newTestServer(t *testing.T, leads *fakeLeadStore) *Server {
	t.Helper()
	cfg := config.Config{Addr: ":0"}
	registry := session.NewRegistry()
	q := queue.New(leads, noopNotifier{}, "sales@example.com", nil)
	return New(cfg, nil, registry, nil, q, leads)
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &fakeLeadStore{})
	rec := doRequest(s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestServer(t, &fakeLeadStore{})

	rec := doRequest(s, http.MethodPost, "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)

	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["session_id"]
	require.NotEmpty(t, id)

	rec = doRequest(s, http.MethodGet, "/api/sessions/"+id)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, id, got["session_id"])

	ctxBlock, ok := got["context"].(map[string]any)
	require.True(t, ok, "context block missing")
	assert.Equal(t, agent.Default().Name, ctxBlock["current_agent"])
}

// The snapshot endpoint reads a live session while its connection mutates
// it; this fails under the race detector if Session locking regresses.
func TestGetSessionConcurrentWithMutation(t *testing.T) {
	s := newTestServer(t, &fakeLeadStore{})

	rec := doRequest(s, http.MethodPost, "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["session_id"]

	sess := s.registry.Get(id)
	require.NotNil(t, sess)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			sess.SetName("Jane Doe")
			sess.AddProductInterest("Heritage Door")
			sess.SetVoiceMode(i%2 == 0)
			sess.AppendHistory(session.RoleUser, "hi", agent.Default().Name)
		}
	}()
	for i := 0; i < 100; i++ {
		rec := doRequest(s, http.MethodGet, "/api/sessions/"+id)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	<-done
}

func TestGetUnknownSessionReturns404(t *testing.T) {
	s := newTestServer(t, &fakeLeadStore{})
	rec := doRequest(s, http.MethodGet, "/api/sessions/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessions(t *testing.T) {
	s := newTestServer(t, &fakeLeadStore{})
	doRequest(s, http.MethodPost, "/api/sessions")
	doRequest(s, http.MethodPost, "/api/sessions")

	rec := doRequest(s, http.MethodGet, "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Sessions []string `json:"sessions"`
		Count    int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Count)
	assert.Len(t, got.Sessions, 2)
}

func TestQueueStats(t *testing.T) {
	s := newTestServer(t, &fakeLeadStore{})
	rec := doRequest(s, http.MethodGet, "/api/queue/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var got queue.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Zero(t, got.Pending)
	assert.Zero(t, got.Completed)
}

func TestListLeads(t *testing.T) {
	leads := &fakeLeadStore{leads: []store.Lead{{
		ID:              7,
		Name:            "Jane Doe",
		Email:           "jane@example.com",
		Phone:           "555-0100",
		SelectedProduct: "Heritage Door",
		SessionID:       "s1",
		Status:          "notified",
		CreatedAt:       time.Now().UTC(),
	}}}
	s := newTestServer(t, leads)

	rec := doRequest(s, http.MethodGet, "/api/leads")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Leads []leadView `json:"leads"`
		Count int        `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 1, got.Count)
	assert.Equal(t, "Jane Doe", got.Leads[0].Name)
	assert.Equal(t, "Heritage Door", got.Leads[0].SelectedProduct)
}

func TestListLeadsStoreError(t *testing.T) {
	leads := &fakeLeadStore{listErr: context.DeadlineExceeded}
	s := newTestServer(t, leads)
	rec := doRequest(s, http.MethodGet, "/api/leads")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
