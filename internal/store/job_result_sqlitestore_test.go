package store

import (
	"context"
	"testing"
	"time"

	"github.com/haatos/pipewright/internal/util"
	"github.com/stretchr/testify/assert"
)

func TestJobResultSQLiteStore_CreateJobResult(t *testing.T) {
	t.Run("success - job result stored with steps", func(t *testing.T) {
		// arrange
		c := generateCredential(t)
		a := generateAgent(t, c)
		p := generatePipeline(t, a)
		r := generateRun(t, p)
		started := time.Now().UTC()
		ended := started.Add(30 * time.Second)
		jr := &JobResult{
			JobRunID:  r.RunID,
			Name:      "test",
			Status:    JobSucceeded,
			StartedOn: &started,
			EndedOn:   &ended,
			StepResults: []StepResult{
				{
					Position:  0,
					Name:      "pytest",
					Command:   "pytest --cov openep",
					Status:    StepSucceeded,
					ExitCode:  util.AsPtr(int64(0)),
					Output:    util.AsPtr("all tests passed\n"),
					StartedOn: &started,
					EndedOn:   &ended,
				},
				{
					Position: 1,
					Name:     "codecov",
					Command:  "codecov",
					Status:   StepSkipped,
				},
			},
		}

		// act
		err := jobResultStore.CreateJobResult(context.Background(), jr)

		// assert
		assert.NoError(t, err)
		assert.NotEqual(t, 0, jr.JobResultID)
		assert.Equal(t, jr.JobResultID, jr.StepResults[0].StepJobResultID)
		assert.NotEqual(t, 0, jr.StepResults[0].StepResultID)
	})
}

func TestJobResultSQLiteStore_ListRunJobResults(t *testing.T) {
	t.Run("success - jobs returned with steps in position order", func(t *testing.T) {
		// arrange
		c := generateCredential(t)
		a := generateAgent(t, c)
		p := generatePipeline(t, a)
		r := generateRun(t, p)
		lint := &JobResult{
			JobRunID: r.RunID,
			Name:     "lint",
			Status:   JobSucceeded,
			StepResults: []StepResult{
				{Position: 1, Name: "flake8 full", Command: "flake8 .", Status: StepSucceeded},
				{Position: 0, Name: "flake8 errors", Command: "flake8 . --select E9", Status: StepSucceeded},
			},
		}
		test := &JobResult{
			JobRunID: r.RunID,
			Name:     "test",
			Status:   JobFailed,
			Error:    util.AsPtr("step 'pytest' exited with code 1"),
			StepResults: []StepResult{
				{
					Position: 0,
					Name:     "pytest",
					Command:  "pytest",
					Status:   StepFailed,
					ExitCode: util.AsPtr(int64(1)),
				},
			},
		}
		assert.NoError(t, jobResultStore.CreateJobResult(context.Background(), lint))
		assert.NoError(t, jobResultStore.CreateJobResult(context.Background(), test))

		// act
		jobResults, err := jobResultStore.ListRunJobResults(context.Background(), r.RunID)

		// assert
		assert.NoError(t, err)
		assert.Len(t, jobResults, 2)
		assert.Equal(t, "lint", jobResults[0].Name)
		assert.Equal(t, "test", jobResults[1].Name)
		assert.Len(t, jobResults[0].StepResults, 2)
		assert.Equal(t, "flake8 errors", jobResults[0].StepResults[0].Name)
		assert.Equal(t, "flake8 full", jobResults[0].StepResults[1].Name)
		assert.NotNil(t, jobResults[1].Error)
	})
	t.Run("success - run without job results returns empty slice", func(t *testing.T) {
		// arrange
		c := generateCredential(t)
		a := generateAgent(t, c)
		p := generatePipeline(t, a)
		r := generateRun(t, p)

		// act
		jobResults, err := jobResultStore.ListRunJobResults(context.Background(), r.RunID)

		// assert
		assert.NoError(t, err)
		assert.Empty(t, jobResults)
	})
}
