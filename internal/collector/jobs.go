package collector

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const JobStatusDone = "done"

// Job tracks one accepted upload by task id.
type Job struct {
	TaskID      string
	Status      string
	Filename    string
	TotalFrames int
	User        string
	Label       string
	SessionID   string
	CreatedAt   time.Time
}

// JobRegistry stores jobs by task id.
type JobRegistry struct {
	mu    sync.RWMutex
	items map[string]Job
}

func NewJobRegistry() *JobRegistry {
	return &JobRegistry{
		items: make(map[string]Job),
	}
}

func (r *JobRegistry) Upsert(job Job) {
	key := strings.TrimSpace(job.TaskID)
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = job
}

func (r *JobRegistry) Get(taskID string) (Job, bool) {
	key := strings.TrimSpace(taskID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.items[key]
	return job, ok
}

// List returns jobs oldest first.
func (r *JobRegistry) List() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Job, 0, len(r.items))
	for _, job := range r.items {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
