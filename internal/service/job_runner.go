package service

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/haatos/pipewright/internal/store"
	"github.com/haatos/pipewright/internal/util"
)

type JobRunnerer interface {
	RunJob(
		ctx context.Context,
		prd *store.PipelineRunData,
		job Job,
		workdir string,
		event TriggerEvent,
		outputCh chan<- string,
	) store.JobResult
}

func NewJobRunner(gate GateEvaluator, provisioner Provisioner, executor StepRunner) *JobRunner {
	return &JobRunner{
		gate:        gate,
		provisioner: provisioner,
		executor:    executor,
	}
}

// JobRunner drives one job of a run to a terminal result: the gate is
// evaluated first, an environment is provisioned only when the gate
// passes, steps run sequentially and short-circuit on the first failure
// that fails the build, and the environment is torn down exactly once.
type JobRunner struct {
	gate        GateEvaluator
	provisioner Provisioner
	executor    StepRunner
}

func (jr *JobRunner) RunJob(
	ctx context.Context,
	prd *store.PipelineRunData,
	job Job,
	workdir string,
	event TriggerEvent,
	outputCh chan<- string,
) store.JobResult {
	result := store.JobResult{
		Name:        job.Job,
		StepResults: make([]store.StepResult, 0, len(job.Steps)),
	}

	gctx := GateContext{
		Repository: event.Repository,
		Branch:     event.Branch,
		Event:      string(event.Kind),
	}
	ok, err := jr.gate.Evaluate(job.If, gctx)
	if err != nil {
		// an unparseable gate fails the job rather than skipping it
		result.Status = store.JobFailed
		result.Error = util.AsPtr(err.Error())
		outputCh <- fmt.Sprintf("Job '%s' failed: %+v\n", job.Job, err)
		return result
	}
	if !ok {
		result.Status = store.JobSkipped
		outputCh <- fmt.Sprintf("Job '%s' skipped: gate '%s' did not pass\n", job.Job, job.If)
		return result
	}

	result.StartedOn = util.AsPtr(time.Now().UTC())
	outputCh <- fmt.Sprintf("Provisioning environment for job '%s'\n", job.Job)

	env, err := jr.provisioner.Provision(ctx, prd, &job, workdir, event.Branch, outputCh)
	if err != nil {
		result.Status = store.JobFailed
		result.Error = util.AsPtr(err.Error())
		result.EndedOn = util.AsPtr(time.Now().UTC())
		outputCh <- fmt.Sprintf("Job '%s' failed: %+v\n", job.Job, err)
		return result
	}
	defer func() {
		if err := env.Teardown(); err != nil {
			log.Printf("err tearing down environment for job '%s': %+v\n", job.Job, err)
		}
	}()

	failed := false
	for i, step := range job.Steps {
		if failed {
			result.StepResults = append(result.StepResults, store.StepResult{
				Position: int64(i),
				Name:     step.Step,
				Command:  step.Command(),
				Status:   store.StepSkipped,
			})
			continue
		}

		outputCh <- fmt.Sprintf("  |  Executing step '%s'\n", step.Step)
		sr, err := jr.executor.ExecuteStep(ctx, env, step, int64(i), outputCh)
		result.StepResults = append(result.StepResults, sr)

		if sr.Status == store.StepFailed && step.FailsBuild() {
			failed = true
			if err != nil {
				result.Error = util.AsPtr(err.Error())
			} else if sr.ExitCode != nil {
				result.Error = util.AsPtr(
					StepFailureError{Step: step.Step, ExitCode: *sr.ExitCode}.Error(),
				)
			}
		}
	}

	if !failed && job.Artifacts != "" {
		dst := filepath.Join(
			artifactsRoot,
			workdir,
			util.RemoveNonAlphabetChars(job.Job),
			job.Artifacts,
		)
		if err := env.Download(filepath.Join(env.Path(), job.Artifacts), dst); err != nil {
			log.Printf("err collecting artifacts for job '%s': %+v\n", job.Job, err)
			outputCh <- fmt.Sprintf("err collecting artifacts for job '%s': %+v\n", job.Job, err)
		} else {
			outputCh <- fmt.Sprintf("Collected artifacts for job '%s' into %s\n", job.Job, dst)
		}
	}

	result.EndedOn = util.AsPtr(time.Now().UTC())
	if failed {
		result.Status = store.JobFailed
		outputCh <- fmt.Sprintf("Job '%s' failed\n", job.Job)
	} else {
		result.Status = store.JobSucceeded
		outputCh <- fmt.Sprintf("Job '%s' succeeded\n", job.Job)
	}
	return result
}
