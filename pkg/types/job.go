package types

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of an indexing run
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobFetching  JobStatus = "fetching"
	JobChunking  JobStatus = "chunking"
	JobEmbedding JobStatus = "embedding"
	JobStoring   JobStatus = "storing"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// validTransitions encodes the indexing state machine. failed is reachable
// from every non-terminal state.
var validTransitions = map[JobStatus][]JobStatus{
	JobPending:   {JobFetching, JobFailed},
	JobFetching:  {JobChunking, JobFailed},
	JobChunking:  {JobEmbedding, JobFailed},
	JobEmbedding: {JobStoring, JobFailed},
	JobStoring:   {JobCompleted, JobFailed},
}

// Job tracks one indexing run for a (owner, repo, branch) key.
// A new run for the same key supersedes the prior record.
type Job struct {
	ID     string // Run identifier (UUID)
	Owner  string
	Repo   string
	Branch string

	Status JobStatus
	Error  string // Populated when Status is failed

	TotalFiles    int
	IndexedFiles  int
	SkippedFiles  int
	TotalChunks   int
	IndexedChunks int
	SkippedChunks int

	StartedAt   time.Time
	CompletedAt *time.Time
}

// Key returns the repository key for this job
func (j *Job) Key() RepoKey {
	return RepoKey{Owner: j.Owner, Repo: j.Repo, Branch: j.Branch}
}

// Terminal reports whether the job has finished (completed or failed)
func (j *Job) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// Transition moves the job to the next state, enforcing the state machine.
// Counters are never reset by a transition.
func (j *Job) Transition(next JobStatus) error {
	for _, allowed := range validTransitions[j.Status] {
		if next == allowed {
			j.Status = next
			if j.Terminal() {
				now := time.Now()
				j.CompletedAt = &now
			}
			return nil
		}
	}
	return fmt.Errorf("invalid job transition %s -> %s", j.Status, next)
}

// Fail marks the job failed with the given error
func (j *Job) Fail(err error) {
	j.Status = JobFailed
	if err != nil {
		j.Error = err.Error()
	}
	now := time.Now()
	j.CompletedAt = &now
}

// Progress returns completion as a percentage in [0, 100]. File progress
// and chunk progress each contribute half, so the figure moves during both
// the chunking and the embedding/storing stages.
func (j *Job) Progress() float64 {
	if j.Status == JobCompleted {
		return 100
	}
	var p float64
	if j.TotalFiles > 0 {
		p += 50 * float64(j.IndexedFiles+j.SkippedFiles) / float64(j.TotalFiles)
	}
	if j.TotalChunks > 0 {
		p += 50 * float64(j.IndexedChunks+j.SkippedChunks) / float64(j.TotalChunks)
	}
	if p > 100 {
		p = 100
	}
	return p
}

// Duration returns elapsed run time; for running jobs, time since start
func (j *Job) Duration() time.Duration {
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(j.StartedAt)
	}
	return time.Since(j.StartedAt)
}
