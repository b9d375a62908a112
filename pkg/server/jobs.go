package server

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is a job posting created through the demo API.
type Job struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Description string    `json:"description,omitempty"`
	PostedBy    string    `json:"posted_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// JobStore is an in-memory job table. The postings themselves are demo
// payload; the point of the routes is exercising the throttle and audit
// layers around them.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobStore creates an empty job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*Job)}
}

// Create adds a job posting and returns it with ID and timestamp filled.
func (s *JobStore) Create(title, company, description, postedBy string) *Job {
	job := &Job{
		ID:          uuid.New().String(),
		Title:       title,
		Company:     company,
		Description: description,
		PostedBy:    postedBy,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job
}

// Get returns the job with the given ID, or nil.
func (s *JobStore) Get(id string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}

// Delete removes the job with the given ID. Returns false if absent.
func (s *JobStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	return true
}

// List returns all jobs, newest first.
func (s *JobStore) List() []*Job {
	s.mu.RLock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
