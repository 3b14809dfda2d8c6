package model

import (
	"time"
)

// JobStatus is the lifecycle status of a harvest job.
type JobStatus string

const (
	// JobStatusNew is set when the job is created and waiting for dispatch.
	JobStatusNew JobStatus = "New"
	// JobStatusRunning is set once the job has been published to the gather queue.
	JobStatusRunning JobStatus = "Running"
	// JobStatusFinished is set by reconciliation once every object is terminal.
	JobStatusFinished JobStatus = "Finished"
)

// Valid returns true if the status is known.
func (s JobStatus) Valid() bool {
	return s == JobStatusNew || s == JobStatusRunning || s == JobStatusFinished
}

// Active reports whether a job in this status blocks creation of another job for the same source.
func (s JobStatus) Active() bool {
	return s == JobStatusNew || s == JobStatusRunning
}

// Job is one scheduled execution of a source.
type Job struct {
	ID             string     `json:"id"                       db:"id"`
	SourceID       string     `json:"source_id"                db:"source_id"`
	Status         JobStatus  `json:"status"                   db:"status"`
	GatherStarted  *time.Time `json:"gather_started,omitempty" db:"gather_started"`
	GatherFinished *time.Time `json:"gather_finished,omitempty" db:"gather_finished"`
	CreatedAt      time.Time  `json:"created"                  db:"created"`
	FinishedAt     *time.Time `json:"finished,omitempty"       db:"finished"`
}

// IsGatherFinished reports whether the gather stage has completed.
func (j *Job) IsGatherFinished() bool {
	return j != nil && j.GatherFinished != nil
}

// JobListOptions filters job listings.
type JobListOptions struct {
	Status   JobStatus
	SourceID string
	// GatherFinished restricts results to jobs whose gather stage completed.
	GatherFinished bool
}

// JobStats counts object outcomes for a job.
type JobStats struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Errored int `json:"errored"`
}

// Total returns the number of counted objects.
func (s JobStats) Total() int {
	return s.Added + s.Updated + s.Deleted + s.Errored
}

// DispatchMessage is the payload published to the gather queue.
type DispatchMessage struct {
	HarvestJobID string `json:"harvest_job_id"`
}
