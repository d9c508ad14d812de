package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/haatos/pipewright/internal"
	"github.com/haatos/pipewright/internal/security"
	"github.com/haatos/pipewright/internal/store"
	"github.com/haatos/pipewright/internal/util"
)

type PipelineWriter interface {
	CreatePipeline(
		context.Context,
		int64,
		string, string, string, string, string,
	) (*store.Pipeline, error)
	UpdatePipeline(context.Context, int64, int64, string, string, string, string, string) error
	UpdatePipelineSchedule(context.Context, int64, *string, *string, *string) error
	UpdatePipelineScheduleJobID(context.Context, int64, *string) error
	DeletePipeline(context.Context, int64) error
}

type PipelineReader interface {
	ReadPipelineByID(context.Context, int64) (*store.Pipeline, error)
	ReadPipelineRunData(context.Context, int64) (*store.PipelineRunData, error)
	ListPipelines(context.Context) ([]*store.Pipeline, error)
	ListScheduledPipelines(context.Context) ([]*store.Pipeline, error)
}

type PipelineStore interface {
	PipelineWriter
	PipelineReader
}

type RunWriter interface {
	CreateRun(context.Context, int64, string, string) (*store.Run, error)
	UpdateRunStartedOn(context.Context, int64, string, store.RunStatus, *time.Time) error
	UpdateRunEndedOn(context.Context, int64, store.RunStatus, *string, *time.Time) error
	AppendRunOutput(context.Context, int64, string) error
	DeleteRun(context.Context, int64) error
}

type RunReader interface {
	ReadRunByID(context.Context, int64) (*store.Run, error)
	ListPipelineRuns(context.Context, int64) ([]store.Run, error)
	ListLatestPipelineRuns(context.Context, int64, int64) ([]store.Run, error)
	ListPipelineRunsPaginated(context.Context, int64, int64, int64) ([]store.Run, error)
	CountPipelineRuns(context.Context, int64) (int64, error)
}

type RunStore interface {
	RunWriter
	RunReader
}

type PipelineService struct {
	pipelineStore  PipelineStore
	runStore       RunStore
	jobResultStore store.JobResultStore
	agentStore     store.AgentStore
	scheduler      gocron.Scheduler
	aesEncrypter   security.Encrypter
	jobRunner      JobRunnerer

	mu     sync.Mutex
	queues map[int64]*RunQueue
}

func NewPipelineService(
	pipelineStore PipelineStore,
	runStore RunStore,
	jobResultStore store.JobResultStore,
	agentStore store.AgentStore,
	scheduler gocron.Scheduler,
	aesEncrypter security.Encrypter,
	jobRunner JobRunnerer,
) *PipelineService {
	return &PipelineService{
		pipelineStore:  pipelineStore,
		runStore:       runStore,
		jobResultStore: jobResultStore,
		agentStore:     agentStore,
		scheduler:      scheduler,
		aesEncrypter:   aesEncrypter,
		jobRunner:      jobRunner,
		queues:         make(map[int64]*RunQueue),
	}
}

func (s *PipelineService) InitializeRunQueues(ctx context.Context) error {
	pipelines, err := s.ListPipelines(ctx)
	if err != nil {
		return err
	}

	ids := make([]int64, len(pipelines))
	for i, p := range pipelines {
		ids[i] = p.PipelineID
	}

	s.AddRunQueues(ids, internal.Config.QueueSize)
	s.StartRunQueues()
	return nil
}

// InitializeSchedules re-registers cron jobs for scheduled pipelines
// after a restart.
func (s *PipelineService) InitializeSchedules(ctx context.Context) error {
	pipelines, err := s.ListScheduledPipelines(ctx)
	if err != nil {
		return err
	}
	for _, p := range pipelines {
		if p.Schedule == nil || p.ScheduleBranch == nil {
			continue
		}
		jobID, err := s.scheduleRun(p.PipelineID, *p.Schedule, *p.ScheduleBranch)
		if err != nil {
			return err
		}
		if err := s.pipelineStore.UpdatePipelineScheduleJobID(
			ctx, p.PipelineID, jobID,
		); err != nil {
			return err
		}
	}
	return nil
}

// CreatePipeline registers a pipeline from a workflow script on the
// controller's disk. The script's triggers are denormalized onto the
// pipeline row so event matching never re-reads the script.
func (s *PipelineService) CreatePipeline(
	ctx context.Context,
	agentID int64,
	name, description, repository, scriptPath string,
) (*store.Pipeline, error) {
	triggers, err := readScriptTriggers(scriptPath)
	if err != nil {
		return nil, err
	}
	p, err := s.pipelineStore.CreatePipeline(
		ctx,
		agentID,
		name,
		description,
		repository,
		scriptPath,
		triggers,
	)
	if err != nil {
		return nil, err
	}
	s.AddRunQueue(p.PipelineID, internal.Config.QueueSize)
	if err := s.StartRunQueue(p.PipelineID); err != nil {
		return p, err
	}
	return p, nil
}

func readScriptTriggers(scriptPath string) (string, error) {
	scriptYaml, err := os.ReadFile(scriptPath)
	if err != nil {
		return "", ConfigError{
			Message: fmt.Sprintf("unable to read workflow script '%s': %+v", scriptPath, err),
		}
	}
	ws, err := ParseWorkflow(scriptYaml)
	if err != nil {
		return "", err
	}
	return ws.On.Set().JSON()
}

func (s *PipelineService) GetPipelineByID(
	ctx context.Context,
	pipelineID int64,
) (*store.Pipeline, error) {
	return s.pipelineStore.ReadPipelineByID(ctx, pipelineID)
}

func (s *PipelineService) GetPipelineAndAgents(
	ctx context.Context,
	id int64,
) (*store.Pipeline, []*store.Agent, error) {
	p, err := s.pipelineStore.ReadPipelineByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	agents, err := s.agentStore.ListAgents(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, err
	}
	return p, agents, nil
}

func (s *PipelineService) GetPipelineRunData(
	ctx context.Context,
	id int64,
) (*store.PipelineRunData, error) {
	prd, err := s.pipelineStore.ReadPipelineRunData(ctx, id)
	if err != nil {
		return nil, err
	}

	if prd.SSHPrivateKeyHash != nil {
		privateKey, err := s.aesEncrypter.DecryptAES(*prd.SSHPrivateKeyHash)
		if err != nil {
			return nil, err
		}
		prd.SSHPrivateKey = privateKey
	}

	return prd, nil
}

func (s *PipelineService) ListPipelines(
	ctx context.Context,
) ([]*store.Pipeline, error) {
	pipelines, err := s.pipelineStore.ListPipelines(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return pipelines, nil
}

func (s *PipelineService) ListScheduledPipelines(
	ctx context.Context,
) ([]*store.Pipeline, error) {
	pipelines, err := s.pipelineStore.ListScheduledPipelines(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return pipelines, nil
}

func (s *PipelineService) UpdatePipeline(
	ctx context.Context,
	pipelineID, agentID int64,
	name, description, repository, scriptPath string,
) error {
	triggers, err := readScriptTriggers(scriptPath)
	if err != nil {
		return err
	}
	return s.pipelineStore.UpdatePipeline(
		ctx,
		pipelineID,
		agentID,
		name,
		description,
		repository,
		scriptPath,
		triggers,
	)
}

func (s *PipelineService) UpdatePipelineSchedule(
	ctx context.Context,
	id int64,
	schedule, branch *string,
) error {
	p, err := s.pipelineStore.ReadPipelineByID(ctx, id)
	if err != nil {
		return err
	}

	if schedule == nil {
		if p.Schedule != nil && p.ScheduleJobID != nil && s.scheduler != nil {
			jobID, err := uuid.Parse(*p.ScheduleJobID)
			if err != nil {
				log.Printf(
					"invalid schedule job id '%s' on pipeline %d: %+v\n",
					*p.ScheduleJobID, p.PipelineID, err,
				)
			} else if err := s.scheduler.RemoveJob(jobID); err != nil {
				log.Println("unable to remove existing job: ", err)
			}
		}
		return s.pipelineStore.UpdatePipelineSchedule(ctx, p.PipelineID, nil, nil, nil)
	}

	jobID, err := s.scheduleRun(p.PipelineID, *schedule, *branch)
	if err != nil {
		return err
	}
	return s.pipelineStore.UpdatePipelineSchedule(
		ctx,
		p.PipelineID,
		schedule,
		branch,
		jobID,
	)
}

func (s *PipelineService) AppendPipelineRunOutput(
	ctx context.Context,
	runID int64,
	out string,
) error {
	return s.runStore.AppendRunOutput(ctx, runID, out)
}

func (s *PipelineService) DeletePipeline(
	ctx context.Context, pipelineID int64,
) error {
	err := s.pipelineStore.DeletePipeline(ctx, pipelineID)
	if err != nil {
		return err
	}
	s.RemoveRunQueue(pipelineID)
	return nil
}

// DispatchEvent fans a repository event out to every pipeline whose
// trigger set accepts it, creating and enqueueing one run per match.
// Gate expressions are evaluated later, per job, inside the run.
func (s *PipelineService) DispatchEvent(
	ctx context.Context,
	ev TriggerEvent,
) ([]*store.Run, error) {
	pipelines, err := s.ListPipelines(ctx)
	if err != nil {
		return nil, err
	}

	runs := make([]*store.Run, 0)
	for _, p := range pipelines {
		if RepositorySlug(p.Repository) != ev.Repository {
			continue
		}
		ts, err := ParseTriggerSet(p.Triggers)
		if err != nil {
			log.Printf("err parsing triggers for pipeline %d: %+v\n", p.PipelineID, err)
			continue
		}
		if !ts.Matches(ev.Kind, ev.Branch) {
			continue
		}

		r, err := s.CreatePipelineRun(ctx, p.PipelineID, string(ev.Kind), ev.Branch)
		if err != nil {
			return runs, err
		}
		if err := s.EnqueueRun(r); err != nil {
			return runs, err
		}
		runs = append(runs, r)
	}
	return runs, nil
}

func (s *PipelineService) CreatePipelineRun(
	ctx context.Context,
	pipelineID int64,
	event, branch string,
) (*store.Run, error) {
	r, err := s.runStore.CreateRun(ctx, pipelineID, event, branch)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PipelineService) GetPipelineRunByID(
	ctx context.Context, runID int64,
) (*store.Run, error) {
	r, err := s.runStore.ReadRunByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetRunResults returns a run with the job and step results recorded
// for it.
func (s *PipelineService) GetRunResults(
	ctx context.Context,
	runID int64,
) (*store.Run, []store.JobResult, error) {
	r, err := s.runStore.ReadRunByID(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	jobResults, err := s.jobResultStore.ListRunJobResults(ctx, runID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, err
	}
	return r, jobResults, nil
}

func (s *PipelineService) CreateJobResult(
	ctx context.Context,
	jr *store.JobResult,
) error {
	return s.jobResultStore.CreateJobResult(ctx, jr)
}

func (s *PipelineService) UpdatePipelineRunStartedOn(
	ctx context.Context,
	runID int64,
	workingDirectory string,
	status store.RunStatus,
	startedOn *time.Time,
) error {
	return s.runStore.UpdateRunStartedOn(
		ctx, runID, workingDirectory, status, startedOn,
	)
}

func (s *PipelineService) UpdatePipelineRunEndedOn(
	ctx context.Context,
	runID int64,
	status store.RunStatus,
	artifacts *string,
	endedOn *time.Time,
) error {
	return s.runStore.UpdateRunEndedOn(
		ctx, runID, status, artifacts, endedOn,
	)
}

func (s *PipelineService) DeletePipelineRun(
	ctx context.Context, runID int64,
) error {
	return s.runStore.DeleteRun(ctx, runID)
}

func (s *PipelineService) ListPipelineRuns(
	ctx context.Context,
	pipelineID int64,
) ([]store.Run, error) {
	runs, err := s.runStore.ListPipelineRuns(ctx, pipelineID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return runs, nil
}

func (s *PipelineService) ListLatestPipelineRuns(
	ctx context.Context,
	pipelineID, limit int64,
) ([]store.Run, error) {
	return s.runStore.ListLatestPipelineRuns(ctx, pipelineID, limit)
}

func (s *PipelineService) ListPipelineRunsPaginated(
	ctx context.Context,
	pipelineID, limit, offset int64,
) ([]store.Run, error) {
	return s.runStore.ListPipelineRunsPaginated(
		ctx, pipelineID, limit, offset,
	)
}

func (s *PipelineService) GetPipelineRunCount(
	ctx context.Context, id int64,
) (int64, error) {
	return s.runStore.CountPipelineRuns(ctx, id)
}

// GetRunArtifactsArchive zips the artifacts collected for a run and
// returns the archive path.
func (s *PipelineService) GetRunArtifactsArchive(
	ctx context.Context,
	runID int64,
) (string, error) {
	r, err := s.runStore.ReadRunByID(ctx, runID)
	if err != nil {
		return "", err
	}
	if r.Artifacts == nil {
		return "", fmt.Errorf("run %d has no artifacts", runID)
	}
	archive := *r.Artifacts + ".zip"
	if exists, _ := util.PathExists(archive); exists {
		return archive, nil
	}
	return util.ArchiveDirectory(*r.Artifacts)
}

func (s *PipelineService) scheduleRun(
	pipelineID int64,
	schedule, branch string,
) (*string, error) {
	if s.scheduler == nil {
		return nil, nil
	}
	job, err := s.scheduler.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(func() {
			if r, err := s.CreatePipelineRun(
				context.Background(),
				pipelineID,
				string(EventSchedule),
				branch,
			); err == nil {
				if err := s.EnqueueRun(r); err != nil {
					log.Println("queue is full")
					return
				}
			}
		}))
	if err != nil {
		return nil, fmt.Errorf("error scheduling pipeline job: %+w", err)
	}
	return util.AsPtr(job.ID().String()), nil
}

func (s *PipelineService) AddRunQueues(ids []int64, maxRuns int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.queues[id] = NewRunQueue(s, s.jobRunner, maxRuns)
	}
}

func (s *PipelineService) StartRunQueues() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.queues {
		go s.queues[i].Run()
	}
}

func (s *PipelineService) AddRunQueue(id int64, maxRuns int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[id] = NewRunQueue(s, s.jobRunner, maxRuns)
}

func (s *PipelineService) StartRunQueue(id int64) error {
	rq, ok := s.GetPipelineRunQueue(id)
	if !ok {
		return fmt.Errorf("run queue for pipeline %d does not exist", id)
	}
	go rq.Run()
	return nil
}

func (s *PipelineService) GetPipelineRunQueue(id int64) (*RunQueue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rq, ok := s.queues[id]
	return rq, ok
}

func (s *PipelineService) RemoveRunQueue(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queues, id)
}

func (s *PipelineService) EnqueueRun(r *store.Run) error {
	rq, ok := s.GetPipelineRunQueue(r.RunPipelineID)
	if !ok {
		return fmt.Errorf("run queue for pipeline %d does not exist", r.RunPipelineID)
	}

	return rq.Enqueue(r)
}

func (s *PipelineService) CancelRun(pipelineID, runID int64) {
	rq, ok := s.GetPipelineRunQueue(pipelineID)
	if !ok {
		return
	}
	rq.CancelRun(runID)
}

func (s *PipelineService) ShutdownRunQueue(id int64) {
	rq, ok := s.GetPipelineRunQueue(id)
	if !ok {
		return
	}
	rq.Shutdown()
}

func (s *PipelineService) ShutdownAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var wg sync.WaitGroup
	for _, rq := range s.queues {
		wg.Go(func() {
			rq.Shutdown()
		})
	}
	wg.Wait()
}
