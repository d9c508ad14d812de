package store

import (
	"context"
	"database/sql"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type JobResultSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewJobResultSQLiteStore(rdb, rwdb *sql.DB) *JobResultSQLiteStore {
	return &JobResultSQLiteStore{rdb, rwdb}
}

// CreateJobResult inserts a job result together with its step results in one
// transaction.
func (store *JobResultSQLiteStore) CreateJobResult(
	ctx context.Context,
	jr *JobResult,
) error {
	tx, err := store.rwdb.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `insert into job_results (
		job_run_id,
		name,
		status,
		error,
		started_on,
		ended_on
	)
	values ($1, $2, $3, $4, $5, $6)
	returning job_result_id`
	if err := sqlscan.Get(
		ctx, tx, jr, query,
		jr.JobRunID,
		jr.Name,
		jr.Status,
		jr.Error,
		jr.StartedOn,
		jr.EndedOn,
	); err != nil {
		return err
	}

	stepQuery := `insert into step_results (
		step_job_result_id,
		position,
		name,
		command,
		status,
		exit_code,
		output,
		started_on,
		ended_on
	)
	values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	returning step_result_id`
	for i := range jr.StepResults {
		sr := &jr.StepResults[i]
		sr.StepJobResultID = jr.JobResultID
		if err := sqlscan.Get(
			ctx, tx, sr, stepQuery,
			sr.StepJobResultID,
			sr.Position,
			sr.Name,
			sr.Command,
			sr.Status,
			sr.ExitCode,
			sr.Output,
			sr.StartedOn,
			sr.EndedOn,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (store *JobResultSQLiteStore) ListRunJobResults(
	ctx context.Context,
	runID int64,
) ([]JobResult, error) {
	query := `select * from job_results
	where job_run_id = $1
	order by job_result_id`
	jobResults := make([]JobResult, 0)
	if err := sqlscan.Select(ctx, store.rdb, &jobResults, query, runID); err != nil {
		return nil, err
	}

	stepQuery := `select * from step_results
	where step_job_result_id = $1
	order by position`
	for i := range jobResults {
		steps := make([]StepResult, 0)
		if err := sqlscan.Select(
			ctx, store.rdb, &steps, stepQuery, jobResults[i].JobResultID,
		); err != nil {
			return nil, err
		}
		jobResults[i].StepResults = steps
	}

	return jobResults, nil
}
