package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haatos/pipewright/internal"
	"github.com/haatos/pipewright/internal/store"
	"github.com/haatos/pipewright/internal/util"
)

type PipelineServicer interface {
	GetPipelineRunData(context.Context, int64) (*store.PipelineRunData, error)
	GetPipelineRunByID(context.Context, int64) (*store.Run, error)
	UpdatePipelineRunStartedOn(context.Context, int64, string, store.RunStatus, *time.Time) error
	UpdatePipelineRunEndedOn(context.Context, int64, store.RunStatus, *string, *time.Time) error
	AppendPipelineRunOutput(context.Context, int64, string) error
	CreateJobResult(context.Context, *store.JobResult) error
}

func NewRunQueue(
	pipelineService PipelineServicer,
	jobRunner JobRunnerer,
	maxRuns int64,
) *RunQueue {
	return &RunQueue{
		pipelineService:  pipelineService,
		jobRunner:        jobRunner,
		OutputSSEClients: NewSSEClientMap[string](),
		StatusSSEClients: NewSSEClientMap[store.Run](),
		queue:            make(chan *store.Run, maxRuns),
		done:             make(chan struct{}),
		cancelRunMap:     NewCancelMap[int64](),
	}
}

// RunQueue serializes the runs of one pipeline. Within a run all jobs
// execute concurrently; a failing job never interrupts its siblings.
type RunQueue struct {
	pipelineService  PipelineServicer
	jobRunner        JobRunnerer
	OutputSSEClients *SSEClientMap[string]
	StatusSSEClients *SSEClientMap[store.Run]

	queue        chan *store.Run
	done         chan struct{}
	cancelRunMap *CancelMap[int64]

	outputCh chan string
	statusCh chan store.Run
	mu       sync.Mutex
}

func (rq *RunQueue) CancelRun(runID int64) {
	rq.cancelRunMap.Call(runID)
}

func (rq *RunQueue) Enqueue(r *store.Run) error {
	select {
	case rq.queue <- r:
		return nil
	default:
		return NewErrRunQueueFull()
	}
}

func (rq *RunQueue) Run() {
	for {
		select {
		case run := <-rq.queue:
			rq.outputCh = make(chan string)
			rq.statusCh = make(chan store.Run)

			ctx, cancel := context.WithCancel(context.Background())
			rq.cancelRunMap.AddCancel(run.RunID, cancel)

			go rq.handleOutput(ctx, run.RunID)
			go rq.handleStatus()

			if err := rq.processRun(ctx, run); err != nil {
				endedOn := time.Now().UTC()
				run.EndedOn = &endedOn
				if _, ok := err.(RunCancelError); ok {
					run.Status = store.StatusCancelled
				} else {
					run.Status = store.StatusFailed
				}
				if sqlErr := rq.pipelineService.UpdatePipelineRunEndedOn(
					context.Background(),
					run.RunID,
					run.Status,
					run.Artifacts,
					run.EndedOn,
				); sqlErr != nil {
					log.Println("err updating run status to failed:", errors.Join(err, sqlErr))
				}
				log.Println("err processing run:", err)
				r, err := rq.pipelineService.GetPipelineRunByID(context.Background(), run.RunID)
				if err != nil {
					log.Println("err getting run by id")
				} else {
					run = r
					rq.statusCh <- *r
				}

				failMessage := `
=============================================
FAIL || Pipeline run failed.
=============================================
`
				rq.outputCh <- failMessage
			}

			close(rq.outputCh)
			close(rq.statusCh)
			rq.cancelRunMap.RemoveCancel(run.RunID)
		case <-rq.done:
			close(rq.queue)
			return
		}
	}
}

func (rq *RunQueue) Shutdown() {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	select {
	case <-rq.done:
	default:
		close(rq.done)
	}
}

func (rq *RunQueue) handleOutput(ctx context.Context, runID int64) {
	for out := range rq.outputCh {
		if err := rq.pipelineService.AppendPipelineRunOutput(ctx, runID, out); err != nil {
			log.Printf("err appending run output: %+v\n", err)
		}
		rq.OutputSSEClients.SendToClients(out)
	}
}

func (rq *RunQueue) handleStatus() {
	for r := range rq.statusCh {
		rq.StatusSSEClients.SendToClients(r)
	}
}

func (rq *RunQueue) processRun(
	ctx context.Context,
	run *store.Run,
) error {
	prd, err := rq.pipelineService.GetPipelineRunData(ctx, run.RunPipelineID)
	if err != nil {
		rq.outputCh <- fmt.Sprintf("err getting pipeline/agent/credential: %+v\n", err)
		return err
	}
	workdir := time.Now().UTC().Format(internal.RunDirLayout)

	// update run status to running
	run.Status = store.StatusRunning
	startedOn := time.Now().UTC()
	run.StartedOn = &startedOn

	if err := rq.pipelineService.UpdatePipelineRunStartedOn(
		context.Background(),
		run.RunID,
		workdir,
		run.Status,
		run.StartedOn,
	); err != nil {
		rq.outputCh <- "err updating run started on"
		return err
	}

	r, err := rq.pipelineService.GetPipelineRunByID(context.Background(), run.RunID)
	if err != nil {
		rq.outputCh <- "err getting run by ID"
		return err
	}
	rq.statusCh <- *r

	// the workflow script lives on the controller, so trigger matching
	// and gate evaluation never touch an agent
	scriptYaml, err := os.ReadFile(prd.ScriptPath)
	if err != nil {
		rq.outputCh <- fmt.Sprintf("err reading workflow script: %+v\n", err)
		return err
	}
	ws, err := ParseWorkflow(scriptYaml)
	if err != nil {
		rq.outputCh <- fmt.Sprintf("err parsing workflow script: %+v\n", err)
		return err
	}

	event := TriggerEvent{
		Kind:       EventKind(run.Event),
		Repository: RepositorySlug(prd.Repository),
		Branch:     run.Branch,
	}

	rq.outputCh <- fmt.Sprintf(
		"Parsed workflow script. Starting %d job(s)...\n", len(ws.Jobs),
	)

	results := make([]store.JobResult, len(ws.Jobs))
	var wg sync.WaitGroup
	for i, job := range ws.Jobs {
		wg.Go(func() {
			results[i] = rq.jobRunner.RunJob(ctx, prd, job, workdir, event, rq.outputCh)
		})
	}
	wg.Wait()

	failed := false
	for i := range results {
		results[i].JobRunID = run.RunID
		if err := rq.pipelineService.CreateJobResult(ctx, &results[i]); err != nil {
			log.Printf("err persisting job result '%s': %+v\n", results[i].Name, err)
		}
		if results[i].Status == store.JobFailed {
			failed = true
		}
	}

	if exists, _ := util.PathExists(filepath.Join(artifactsRoot, workdir)); exists {
		run.Artifacts = util.AsPtr(filepath.Join(artifactsRoot, workdir))
	}

	if ctx.Err() != nil {
		return RunCancelError{Message: "run cancelled by user"}
	}
	if failed {
		return fmt.Errorf("one or more jobs failed")
	}

	passMessage := `
=============================================
PASS || Executed workflow jobs successfully.
=============================================
`
	rq.outputCh <- passMessage

	// update run status and output
	run.Status = store.StatusPassed
	run.EndedOn = util.AsPtr(time.Now().UTC())
	if err := rq.pipelineService.UpdatePipelineRunEndedOn(
		context.Background(),
		run.RunID,
		run.Status,
		run.Artifacts,
		run.EndedOn,
	); err != nil {
		rq.outputCh <- "err updating run ended on"
		return err
	}

	r, err = rq.pipelineService.GetPipelineRunByID(context.Background(), run.RunID)
	if err != nil {
		rq.outputCh <- "err getting run by id"
		return err
	}

	rq.statusCh <- *r

	return nil
}
