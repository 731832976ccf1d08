package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/tablepilot/internal/pilot"
)

// SessionStore provides an in-memory seat-job store for development and
// tests. Jobs are cloned on the way in and out so callers cannot reach the
// store's copies through the result and timestamp pointers.
type SessionStore struct {
	mu   sync.RWMutex
	jobs map[string]pilot.SeatJob
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		jobs: make(map[string]pilot.SeatJob),
	}
}

// CreateSeatJob stores a new job in queued status.
func (s *SessionStore) CreateSeatJob(_ context.Context, job pilot.SeatJob) error {
	if job.ID == "" {
		return errors.New("seat job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("seat job already exists")
	}
	s.jobs[job.ID] = cloneSeatJob(job)
	return nil
}

// UpdateSeatJob updates status, error text and result for a job. The first
// transition to running stamps Started; terminal statuses stamp Finished.
func (s *SessionStore) UpdateSeatJob(
	_ context.Context,
	jobID string,
	status pilot.JobStatus,
	errText string,
	result *pilot.SeatResult,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return errors.New("seat job not found")
	}
	job.Status = status
	job.ErrorText = errText
	if result != nil {
		copied := *result
		job.Result = &copied
	}
	now := time.Now().UTC()
	if status == pilot.JobStatusRunning && job.Started == nil {
		job.Started = &now
	}
	if isTerminal(status) {
		stamp := now
		job.Finished = &stamp
	}
	s.jobs[jobID] = job
	return nil
}

// GetSeatJob fetches a job by ID.
func (s *SessionStore) GetSeatJob(_ context.Context, jobID string) (pilot.SeatJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return pilot.SeatJob{}, errors.New("seat job not found")
	}
	return cloneSeatJob(job), nil
}

// cloneSeatJob deep copies the pointer-typed fields of a job.
func cloneSeatJob(job pilot.SeatJob) pilot.SeatJob {
	out := job
	if job.Result != nil {
		res := *job.Result
		out.Result = &res
	}
	if job.Started != nil {
		ts := *job.Started
		out.Started = &ts
	}
	if job.Finished != nil {
		ts := *job.Finished
		out.Finished = &ts
	}
	return out
}

func isTerminal(status pilot.JobStatus) bool {
	switch status {
	case pilot.JobStatusSucceeded, pilot.JobStatusFailed, pilot.JobStatusCanceled:
		return true
	default:
		return false
	}
}
