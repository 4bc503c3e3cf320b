package ingest

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of an asynchronous ingest job.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Job is a snapshot of one ingest run triggered over the API.
type Job struct {
	ID         string     `json:"id"`
	State      JobState   `json:"state"`
	Directory  string     `json:"directory"`
	Fragments  int        `json:"fragments"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// JobTracker records ingest jobs by ID. Safe for concurrent use.
type JobTracker struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewJobTracker() *JobTracker {
	return &JobTracker{jobs: make(map[string]*Job)}
}

// Start registers a new running job and returns its snapshot.
func (t *JobTracker) Start(directory string) Job {
	job := &Job{
		ID:        uuid.New().String(),
		State:     JobRunning,
		Directory: directory,
		StartedAt: time.Now().UTC(),
	}

	t.mu.Lock()
	t.jobs[job.ID] = job
	t.mu.Unlock()
	return *job
}

// Complete marks the job as finished with the number of fragments added.
func (t *JobTracker) Complete(id string, fragments int) {
	t.finish(id, func(j *Job) {
		j.State = JobCompleted
		j.Fragments = fragments
	})
}

// Fail marks the job as failed with the error's message.
func (t *JobTracker) Fail(id string, err error) {
	t.finish(id, func(j *Job) {
		j.State = JobFailed
		if err != nil {
			j.Error = err.Error()
		}
	})
}

func (t *JobTracker) finish(id string, update func(*Job)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return
	}
	update(job)
	now := time.Now().UTC()
	job.FinishedAt = &now
}

// Get returns a snapshot of the job with the given ID.
func (t *JobTracker) Get(id string) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	job, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}
