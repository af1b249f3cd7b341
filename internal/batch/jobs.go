package batch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mailflock/mailflock/internal/recipient"
	"github.com/mailflock/mailflock/internal/sender"
	"github.com/mailflock/mailflock/internal/template"
)

// Job states.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
)

// ErrJobNotFound is returned when a job ID is unknown.
var ErrJobNotFound = errors.New("job not found")

// Job is an asynchronous batch run tracked by the manager.
type Job struct {
	ID         string     `json:"id"`
	State      string     `json:"state"`
	Total      int        `json:"total"`
	Sent       int        `json:"sent"`
	Failed     int        `json:"failed"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     *Result    `json:"result,omitempty"`
}

// JobManager launches batch runs in the background and exposes their
// progress for polling.
type JobManager struct {
	runner *Runner
	store  *sender.Store

	// runMu serializes batch execution. Senders are shared across batches:
	// running two at once would let each spend the full daily quota from its
	// own counter snapshot.
	runMu sync.Mutex

	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// NewJobManager creates a job manager backed by runner. store may be nil;
// when set, sender counters are persisted after each run.
func NewJobManager(runner *Runner, store *sender.Store) *JobManager {
	return &JobManager{
		runner: runner,
		store:  store,
		jobs:   make(map[string]*Job),
	}
}

// Start launches a batch in the background and returns its job ID
// immediately.
func (m *JobManager) Start(ctx context.Context, pool *sender.Pool, tmpl template.Template, recipients []recipient.Recipient) string {
	job := &Job{
		ID:        uuid.New().String(),
		State:     StateRunning,
		Total:     len(recipients),
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		m.runMu.Lock()
		defer m.runMu.Unlock()

		// A store-backed manager reloads the pool once it holds the run
		// lock, so this batch sees the counters committed and persisted by
		// the previous one rather than the snapshot taken at submission.
		if m.store != nil {
			identities, err := m.store.LoadForToday()
			if err != nil {
				m.runner.logger.Error("failed to reload senders", "batch_id", job.ID, "error", err)
			} else {
				pool = sender.NewPool(identities)
			}
		}

		progress := func(p Progress) {
			m.mu.Lock()
			if p.Sent {
				job.Sent++
			} else {
				job.Failed++
			}
			m.mu.Unlock()
		}

		result := m.runner.Run(ctx, job.ID, pool, tmpl, recipients, progress)

		if m.store != nil {
			if err := m.store.SaveCounters(pool.Identities()); err != nil {
				m.runner.logger.Error("failed to persist sender counters", "batch_id", job.ID, "error", err)
			}
		}

		now := time.Now()
		m.mu.Lock()
		job.State = StateCompleted
		job.FinishedAt = &now
		job.Result = result
		m.mu.Unlock()
	}()

	return job.ID
}

// Get returns a snapshot of the job with the given ID.
func (m *JobManager) Get(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}

	snapshot := *job
	return &snapshot, nil
}

// List returns snapshots of all jobs, newest first.
func (m *JobManager) List() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
	return jobs
}

// Wait blocks until all running jobs finish. Used during shutdown.
func (m *JobManager) Wait() {
	m.wg.Wait()
}
