package store

import (
	"context"
	"time"
)

type JobStatus string

const (
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobSkipped   JobStatus = "skipped"
)

type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	// StepSkipped marks steps short-circuited after an earlier failure,
	// never started.
	StepSkipped StepStatus = "skipped"
)

// JobResult is the terminal record of one job within one run.
type JobResult struct {
	JobResultID int64
	JobRunID    int64
	Name        string
	Status      JobStatus
	Error       *string
	StartedOn   *time.Time
	EndedOn     *time.Time

	StepResults []StepResult `db:"-"`
}

func (jr *JobResult) Duration() time.Duration {
	if jr.StartedOn == nil || jr.EndedOn == nil {
		return 0
	}
	return jr.EndedOn.Sub(*jr.StartedOn)
}

type StepResult struct {
	StepResultID    int64
	StepJobResultID int64
	Position        int64
	Name            string
	Command         string
	Status          StepStatus
	ExitCode        *int64
	Output          *string
	StartedOn       *time.Time
	EndedOn         *time.Time
}

type JobResultStore interface {
	CreateJobResult(context.Context, *JobResult) error
	ListRunJobResults(context.Context, int64) ([]JobResult, error)
}
