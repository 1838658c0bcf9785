package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadvoice/leadvoice/pkg/store"
)

type fakeLeadStore struct {
	mu        sync.Mutex
	inserted  []store.Lead
	statuses  map[int64]string
	insertErr error
	// blockInsert, when non-nil, is received from before InsertLead returns.
	blockInsert chan struct{}
	nextID      int64
}

func (f *fakeLeadStore) InsertLead(_ context.Context, lead *store.Lead) (int64, error) {
	if f.blockInsert != nil {
		<-f.blockInsert
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.nextID++
	lead.ID = f.nextID
	f.inserted = append(f.inserted, *lead)
	return f.nextID, nil
}

func (f *fakeLeadStore) UpdateLeadStatus(_ context.Context, id int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = map[int64]string{}
	}
	f.statuses[id] = status
	return nil
}

func (f *fakeLeadStore) ListLeads(context.Context, int) ([]store.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Lead(nil), f.inserted...), nil
}

func (f *fakeLeadStore) insertedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.inserted))
	for _, l := range f.inserted {
		names = append(names, l.Name)
	}
	return names
}

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
}

func (f *fakeNotifier) Send(_ context.Context, recipient, subject, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, recipient+": "+subject)
	return nil
}

func (f *fakeNotifier) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func waitForTerminal(t *testing.T, q *Queue, id string) JobView {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, ok := q.Lookup(id); ok && (v.Status == StatusCompleted || v.Status == StatusFailed) {
			return v
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", id)
	return JobView{}
}

func TestStartRequiresDependencies(t *testing.T) {
	q := New(nil, &fakeNotifier{}, "sales@x.com", nil)
	require.Error(t, q.Start(context.Background()))

	q = New(&fakeLeadStore{}, nil, "sales@x.com", nil)
	require.Error(t, q.Start(context.Background()))

	q = New(&fakeLeadStore{}, &fakeNotifier{}, "", nil)
	require.Error(t, q.Start(context.Background()))
}

func TestProcessLeadHappyPath(t *testing.T) {
	leads := &fakeLeadStore{}
	notifier := &fakeNotifier{}
	q := New(leads, notifier, "sales@x.com", nil)
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	id := q.Enqueue(Job{
		Name:              "Jane Doe",
		Email:             "jane@x.com",
		Phone:             "555-0100",
		SelectedProduct:   "Heritage Door",
		ProductsDiscussed: []string{"Heritage Door"},
	})

	v := waitForTerminal(t, q, id)
	assert.Equal(t, StatusCompleted, v.Status)
	assert.True(t, v.DBSaved)
	assert.True(t, v.EmailSent)
	assert.Equal(t, int64(1), v.LeadID)
	assert.Equal(t, []string{"Jane Doe"}, leads.insertedNames())
	assert.Equal(t, 1, notifier.sentCount())
	assert.Equal(t, store.LeadStatusNotified, leads.statuses[1])
}

func TestStrictFIFOOrder(t *testing.T) {
	leads := &fakeLeadStore{blockInsert: make(chan struct{})}
	notifier := &fakeNotifier{}
	q := New(leads, notifier, "sales@x.com", nil)
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	idA := q.Enqueue(Job{Name: "A", Email: "a@x.com", Phone: "1", SelectedProduct: "Heritage Door"})
	idB := q.Enqueue(Job{Name: "B", Email: "b@x.com", Phone: "2", SelectedProduct: "Bay Window"})

	// A is blocked inside InsertLead; B must still be pending.
	time.Sleep(50 * time.Millisecond)
	vB, ok := q.Lookup(idB)
	require.True(t, ok)
	assert.Equal(t, StatusPending, vB.Status)
	assert.Empty(t, leads.insertedNames())

	leads.blockInsert <- struct{}{}
	waitForTerminal(t, q, idA)
	leads.blockInsert <- struct{}{}
	waitForTerminal(t, q, idB)

	assert.Equal(t, []string{"A", "B"}, leads.insertedNames())
}

func TestPersistenceFailureSkipsNotification(t *testing.T) {
	leads := &fakeLeadStore{insertErr: errors.New("db down")}
	notifier := &fakeNotifier{}
	q := New(leads, notifier, "sales@x.com", nil)
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	id := q.Enqueue(Job{Name: "Jane Doe", Email: "jane@x.com", Phone: "555-0100", SelectedProduct: "Heritage Door"})

	v := waitForTerminal(t, q, id)
	assert.Equal(t, StatusFailed, v.Status)
	assert.Contains(t, v.Error, "db down")
	assert.False(t, v.DBSaved)
	assert.Zero(t, notifier.sentCount())
}

func TestNotificationFailureIsPartialSuccess(t *testing.T) {
	leads := &fakeLeadStore{}
	notifier := &fakeNotifier{sendErr: errors.New("smtp refused")}
	q := New(leads, notifier, "sales@x.com", nil)
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	id := q.Enqueue(Job{Name: "Jane Doe", Email: "jane@x.com", Phone: "555-0100", SelectedProduct: "Heritage Door"})

	v := waitForTerminal(t, q, id)
	assert.Equal(t, StatusCompleted, v.Status)
	assert.True(t, v.DBSaved)
	assert.False(t, v.EmailSent)
	// The lead row stays at its insert status; only notified leads move on.
	assert.Empty(t, leads.statuses[v.LeadID])
}

func TestStatsCountsTerminalJobs(t *testing.T) {
	leads := &fakeLeadStore{}
	q := New(leads, &fakeNotifier{}, "sales@x.com", nil)
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	id1 := q.Enqueue(Job{Name: "A", SelectedProduct: "Heritage Door"})
	id2 := q.Enqueue(Job{Name: "B", SelectedProduct: "Bay Window"})
	waitForTerminal(t, q, id1)
	waitForTerminal(t, q, id2)

	st := q.Stats()
	assert.Equal(t, 2, st.Completed)
	assert.Zero(t, st.Failed)
	assert.Zero(t, st.Pending)
	assert.Len(t, st.Recent, 2)
}

func TestStopIsAwaited(t *testing.T) {
	q := New(&fakeLeadStore{}, &fakeNotifier{}, "sales@x.com", nil)
	require.NoError(t, q.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		q.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
