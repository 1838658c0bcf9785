// Package queue is the delivery queue for finalized leads: a single worker
// that persists each lead and then notifies the sales team, strictly in
// enqueue order. Queue jobs are decoupled from connection lifetime; a closed
// session never cancels its lead.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadvoice/leadvoice/pkg/notify"
	"github.com/leadvoice/leadvoice/pkg/store"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is one durable-delivery unit. After Enqueue the conversational path
// never touches it again; the worker owns it to a terminal status.
type Job struct {
	ID                string
	Name              string
	Email             string
	Phone             string
	SelectedProduct   string
	ProductsDiscussed []string
	Summary           string
	SessionID         string

	Status     Status
	Error      string
	Result     *Result
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Result records the outcome of the two delivery sub-steps. DBSaved without
// EmailSent is an accepted partial success, never retried.
type Result struct {
	LeadID         int64
	DBSaved        bool
	EmailSent      bool
	EmailRecipient string
}

// Stats is a point-in-time view of queue activity.
type Stats struct {
	Pending    int       `json:"pending"`
	Processing int       `json:"processing"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	Recent     []JobView `json:"recent"`
}

// JobView is the externally visible shape of a job.
type JobView struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	SelectedProduct string    `json:"selected_product"`
	Status          Status    `json:"status"`
	Error           string    `json:"error,omitempty"`
	LeadID          int64     `json:"lead_id,omitempty"`
	DBSaved         bool      `json:"db_saved"`
	EmailSent       bool      `json:"email_sent"`
	CreatedAt       time.Time `json:"created_at"`
}

const recentLimit = 20

// Queue is a strict-FIFO, single-worker delivery queue. Enqueue is safe for
// concurrent producers and never blocks; only the worker dequeues.
type Queue struct {
	leads     store.LeadStore
	notifier  notify.Notifier
	recipient string
	logger    *slog.Logger

	mu         sync.Mutex
	pending    []*Job
	processing *Job
	recent     []*Job
	completed  int
	failed     int

	signal chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func New(leads store.LeadStore, notifier notify.Notifier, recipient string, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		leads:     leads,
		notifier:  notifier,
		recipient: recipient,
		logger:    logger,
		signal:    make(chan struct{}, 1),
	}
}

// Start validates dependencies and spawns the worker loop. A Start failure
// is fatal to the application.
func (q *Queue) Start(ctx context.Context) error {
	if q.leads == nil {
		return fmt.Errorf("delivery queue: lead store is not configured")
	}
	if q.notifier == nil {
		return fmt.Errorf("delivery queue: notifier is not configured")
	}
	if q.recipient == "" {
		return fmt.Errorf("delivery queue: recipient is not configured")
	}
	if q.done != nil {
		return fmt.Errorf("delivery queue: already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.done = make(chan struct{})
	go q.run(ctx)
	return nil
}

// Stop cancels the worker and waits for it to finish. An in-flight job is
// abandoned mid-step, not resumed.
func (q *Queue) Stop() {
	if q.cancel == nil {
		return
	}
	q.cancel()
	<-q.done
}

// Enqueue accepts a job immediately. Fields are copied onto a fresh Job so
// callers cannot mutate queued state afterwards.
func (q *Queue) Enqueue(job Job) string {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = StatusPending
	job.CreatedAt = time.Now().UTC()
	queued := job

	q.mu.Lock()
	q.pending = append(q.pending, &queued)
	depth := len(q.pending)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}

	q.logger.Info("lead job enqueued", "job_id", queued.ID, "session_id", queued.SessionID, "queue_depth", depth)
	return queued.ID
}

// Stats returns current queue counters and recent terminal jobs.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := Stats{
		Pending:   len(q.pending),
		Completed: q.completed,
		Failed:    q.failed,
		Recent:    make([]JobView, 0, len(q.recent)),
	}
	if q.processing != nil {
		st.Processing = 1
	}
	for _, j := range q.recent {
		st.Recent = append(st.Recent, viewOf(j))
	}
	return st
}

// Lookup returns the visible state of a job by id.
func (q *Queue) Lookup(id string) (JobView, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.processing != nil && q.processing.ID == id {
		return viewOf(q.processing), true
	}
	for _, j := range q.pending {
		if j.ID == id {
			return viewOf(j), true
		}
	}
	for _, j := range q.recent {
		if j.ID == id {
			return viewOf(j), true
		}
	}
	return JobView{}, false
}

func viewOf(j *Job) JobView {
	v := JobView{
		ID:              j.ID,
		Name:            j.Name,
		SelectedProduct: j.SelectedProduct,
		Status:          j.Status,
		Error:           j.Error,
		CreatedAt:       j.CreatedAt,
	}
	if j.Result != nil {
		v.LeadID = j.Result.LeadID
		v.DBSaved = j.Result.DBSaved
		v.EmailSent = j.Result.EmailSent
	}
	return v
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	for {
		job := q.dequeue()
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.signal:
				continue
			}
		}
		q.process(ctx, job)
		q.finish(job)
		if ctx.Err() != nil {
			return
		}
	}
}

func (q *Queue) dequeue() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	job.Status = StatusProcessing
	job.StartedAt = time.Now().UTC()
	q.processing = job
	return job
}

func (q *Queue) finish(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processing = nil
	switch job.Status {
	case StatusCompleted:
		q.completed++
	case StatusFailed:
		q.failed++
	}
	q.recent = append(q.recent, job)
	if len(q.recent) > recentLimit {
		q.recent = q.recent[len(q.recent)-recentLimit:]
	}
}

// process runs the two delivery sub-steps. Persistence failure fails the job
// and skips notification: a notification without a durable record is worse
// than a dropped notification. Notification failure after a successful
// insert leaves the job completed with EmailSent=false.
func (q *Queue) process(ctx context.Context, job *Job) {
	lead := &store.Lead{
		Name:              job.Name,
		Email:             job.Email,
		Phone:             job.Phone,
		SelectedProduct:   job.SelectedProduct,
		ProductsDiscussed: job.ProductsDiscussed,
		Summary:           job.Summary,
		SessionID:         job.SessionID,
		Status:            store.LeadStatusNew,
	}

	leadID, err := q.leads.InsertLead(ctx, lead)
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		job.FinishedAt = time.Now().UTC()
		q.logger.Error("lead persistence failed", "job_id", job.ID, "error", err)
		return
	}

	lead.ID = leadID
	result := &Result{LeadID: leadID, DBSaved: true, EmailRecipient: q.recipient}
	job.Result = result

	subject, body := notify.FormatLeadEmail(lead)
	if err := q.notifier.Send(ctx, q.recipient, subject, body); err != nil {
		q.logger.Error("lead notification failed", "job_id", job.ID, "lead_id", leadID, "error", err)
	} else {
		result.EmailSent = true
		if err := q.leads.UpdateLeadStatus(ctx, leadID, store.LeadStatusNotified); err != nil {
			q.logger.Warn("lead status update failed", "job_id", job.ID, "lead_id", leadID, "error", err)
		}
	}

	job.Status = StatusCompleted
	job.FinishedAt = time.Now().UTC()
	q.logger.Info("lead job completed",
		"job_id", job.ID,
		"lead_id", leadID,
		"db_saved", result.DBSaved,
		"email_sent", result.EmailSent)
}
