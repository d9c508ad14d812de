package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haatos/pipewright/internal/service"
	"github.com/haatos/pipewright/internal/store"
	"github.com/labstack/echo/v4"
)

const maxRunsPerPage int64 = 10

func SetupPipelineRoutes(g *echo.Group, pipelineService PipelineServicer) {
	h := NewPipelineHandler(pipelineService)
	pipelinesGroup := g.Group("/pipelines")
	pipelinesGroup.GET("", h.GetPipelines)
	pipelinesGroup.POST("", h.PostPipeline)
	pipelinesGroup.GET("/:pipeline_id", h.GetPipeline)
	pipelinesGroup.PATCH("/:pipeline_id", h.PatchPipeline)
	pipelinesGroup.DELETE("/:pipeline_id", h.DeletePipeline)
	pipelinesGroup.PATCH("/:pipeline_id/schedule", h.PatchPipelineSchedule)
	pipelinesGroup.POST("/:pipeline_id/runs", h.PostPipelineRun)
	pipelinesGroup.GET("/:pipeline_id/runs", h.GetPipelineRuns)
	pipelinesGroup.GET("/:pipeline_id/latest-runs", h.GetLatestPipelineRuns)
	pipelinesGroup.GET("/:pipeline_id/runs/:run_id", h.GetPipelineRun)
	pipelinesGroup.DELETE("/:pipeline_id/runs/:run_id", h.DeletePipelineRun)
	pipelinesGroup.GET("/:pipeline_id/runs/:run_id/output", h.GetPipelineRunOutput)
	pipelinesGroup.GET("/:pipeline_id/runs/:run_id/status", h.GetPipelineRunStatus)
	pipelinesGroup.GET("/:pipeline_id/runs/:run_id/artifacts", h.GetPipelineRunArtifacts)
	pipelinesGroup.POST("/:pipeline_id/runs/:run_id/cancel", h.PostCancelPipelineRun)
}

func SetupEventRoutes(g *echo.Group, pipelineService PipelineServicer) {
	h := NewPipelineHandler(pipelineService)
	g.POST("/events", h.PostEvent)
}

type PipelineWriter interface {
	CreatePipeline(
		ctx context.Context,
		agentID int64,
		name, description, repository, scriptPath string,
	) (*store.Pipeline, error)
	UpdatePipeline(
		ctx context.Context,
		pipelineID, agentID int64,
		name, description, repository, scriptPath string,
	) error
	UpdatePipelineSchedule(ctx context.Context, id int64, schedule, branch *string) error
	DeletePipeline(ctx context.Context, pipelineID int64) error
}

type PipelineReader interface {
	GetPipelineByID(ctx context.Context, pipelineID int64) (*store.Pipeline, error)
	ListPipelines(ctx context.Context) ([]*store.Pipeline, error)
}

type PipelineRunWriter interface {
	CreatePipelineRun(
		ctx context.Context,
		pipelineID int64,
		event, branch string,
	) (*store.Run, error)
	DeletePipelineRun(ctx context.Context, runID int64) error
	DispatchEvent(ctx context.Context, ev service.TriggerEvent) ([]*store.Run, error)
}

type PipelineRunReader interface {
	GetPipelineRunByID(ctx context.Context, runID int64) (*store.Run, error)
	GetRunResults(ctx context.Context, runID int64) (*store.Run, []store.JobResult, error)
	GetRunArtifactsArchive(ctx context.Context, runID int64) (string, error)
	ListPipelineRuns(ctx context.Context, pipelineID int64) ([]store.Run, error)
	ListLatestPipelineRuns(ctx context.Context, id, limit int64) ([]store.Run, error)
	ListPipelineRunsPaginated(ctx context.Context, id, limit, offset int64) ([]store.Run, error)
	GetPipelineRunCount(ctx context.Context, id int64) (int64, error)
}

type RunQueueServicer interface {
	GetPipelineRunQueue(id int64) (*service.RunQueue, bool)
	EnqueueRun(run *store.Run) error
	CancelRun(pipelineID, runID int64)
}

type PipelineServicer interface {
	PipelineWriter
	PipelineReader
	PipelineRunWriter
	PipelineRunReader
	RunQueueServicer
}

type PipelineHandler struct {
	pipelineService PipelineServicer
}

func NewPipelineHandler(pipelineService PipelineServicer) *PipelineHandler {
	return &PipelineHandler{
		pipelineService: pipelineService,
	}
}

func (h *PipelineHandler) GetPipelines(c echo.Context) error {
	pipelines, err := h.pipelineService.ListPipelines(c.Request().Context())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err,
			http.StatusInternalServerError, "something went wrong listing pipelines",
		)
	}

	return c.JSON(http.StatusOK, pipelines)
}

func (h *PipelineHandler) PostPipeline(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}

	p, err := h.pipelineService.CreatePipeline(
		c.Request().Context(),
		pp.PipelineAgentID,
		pp.Name,
		pp.Description,
		pp.Repository,
		pp.ScriptPath,
	)
	if err != nil {
		var confErr service.ConfigError
		switch {
		case isUniqueConstraintError(err):
			return newError(err,
				http.StatusConflict,
				fmt.Sprintf("A pipeline with the name %s already exists", pp.Name),
			)
		case errors.As(err, &confErr):
			return newError(err, http.StatusBadRequest, confErr.Message)
		default:
			return newError(err,
				http.StatusInternalServerError, "Unable to create pipeline",
			)
		}
	}

	return c.JSON(http.StatusCreated, p)
}

func (h *PipelineHandler) GetPipeline(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}

	p, err := h.pipelineService.GetPipelineByID(c.Request().Context(), pp.PipelineID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "pipeline not found")
		}
		return newError(err,
			http.StatusInternalServerError,
			"something went wrong getting pipeline data",
		)
	}

	return c.JSON(http.StatusOK, p)
}

func (h *PipelineHandler) PatchPipeline(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}
	if err := bindPathID(c, "pipeline_id", &pp.PipelineID); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline id")
	}

	pp.Name = strings.TrimSpace(pp.Name)
	pp.Description = strings.TrimSpace(pp.Description)
	pp.ScriptPath = strings.TrimSpace(pp.ScriptPath)

	err := h.pipelineService.UpdatePipeline(
		c.Request().Context(),
		pp.PipelineID,
		pp.PipelineAgentID,
		pp.Name,
		pp.Description,
		pp.Repository,
		pp.ScriptPath,
	)
	if err != nil {
		var confErr service.ConfigError
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return newError(err, http.StatusNotFound, "pipeline not found")
		case errors.As(err, &confErr):
			return newError(err, http.StatusBadRequest, confErr.Message)
		default:
			return newError(err,
				http.StatusInternalServerError,
				"something went wrong updating the pipeline",
			)
		}
	}

	return c.NoContent(http.StatusOK)
}

func (h *PipelineHandler) PatchPipelineSchedule(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}
	if err := bindPathID(c, "pipeline_id", &pp.PipelineID); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline id")
	}

	if err := h.pipelineService.UpdatePipelineSchedule(
		c.Request().Context(), pp.PipelineID, pp.Schedule, pp.ScheduleBranch,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusBadRequest, "invalid pipeline id")
		}
		return newError(
			err, http.StatusInternalServerError, "unable to update pipeline schedule",
		)
	}

	return c.NoContent(http.StatusOK)
}

func (h *PipelineHandler) DeletePipeline(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}
	if err := bindPathID(c, "pipeline_id", &pp.PipelineID); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline id")
	}

	if pp.PipelineID == 0 {
		return newError(errors.New("pipeline id was zero"),
			http.StatusBadRequest, "invalid pipeline id",
		)
	}

	p, err := h.pipelineService.GetPipelineByID(c.Request().Context(), pp.PipelineID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "pipeline not found")
		}
		return newError(err, http.StatusInternalServerError, "unable to delete pipeline")
	}

	if err := h.pipelineService.DeletePipeline(
		c.Request().Context(), p.PipelineID,
	); err != nil {
		return newError(err, http.StatusInternalServerError, "unable to delete pipeline")
	}

	return c.NoContent(http.StatusOK)
}

// PostEvent fans a source forge event out to every pipeline whose
// triggers match it. Pipelines that do not match are left untouched.
func (h *PipelineHandler) PostEvent(c echo.Context) error {
	ep := new(EventParams)
	if err := c.Bind(ep); err != nil {
		return newError(err, http.StatusBadRequest, "invalid event data")
	}

	kind := service.EventKind(ep.Event)
	if kind != service.EventPush && kind != service.EventPullRequest {
		return newError(
			fmt.Errorf("unknown event kind '%s'", ep.Event),
			http.StatusBadRequest, "unknown event kind",
		)
	}
	if ep.Repository == "" {
		return newError(errors.New("repository was empty"),
			http.StatusBadRequest, "repository is required",
		)
	}

	runs, err := h.pipelineService.DispatchEvent(c.Request().Context(), service.TriggerEvent{
		Kind:       kind,
		Repository: service.RepositorySlug(ep.Repository),
		Branch:     ep.Branch,
	})
	if err != nil {
		return newError(err, http.StatusInternalServerError, "unable to dispatch event")
	}

	return c.JSON(http.StatusAccepted, runs)
}

func (h *PipelineHandler) PostPipelineRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}
	if err := bindPathID(c, "pipeline_id", &rp.PipelineID); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline id")
	}
	if rp.Event == "" {
		rp.Event = string(service.EventPush)
	}
	if rp.Branch == "" {
		rp.Branch = "main"
	}

	p, err := h.pipelineService.GetPipelineByID(c.Request().Context(), rp.PipelineID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "pipeline not found")
		}
		return newError(err, http.StatusInternalServerError, "unable to read pipeline data")
	}

	r, err := h.pipelineService.CreatePipelineRun(
		c.Request().Context(), p.PipelineID, rp.Event, rp.Branch,
	)
	if err != nil {
		return newError(err, http.StatusInternalServerError, "unable to create pipeline run")
	}

	if err := h.pipelineService.EnqueueRun(r); err != nil {
		return newError(err, http.StatusServiceUnavailable, "pipeline run queue is full")
	}

	return c.JSON(http.StatusCreated, r)
}

func (h *PipelineHandler) GetPipelineRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline or run ID")
	}

	r, jobResults, err := h.pipelineService.GetRunResults(c.Request().Context(), rp.RunID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "run not found")
		}
		return newError(err, http.StatusInternalServerError, "unable to read run data")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"run":  r,
		"jobs": jobResults,
	})
}

func (h *PipelineHandler) GetPipelineRuns(c echo.Context) error {
	lrp := new(ListRunsParams)
	if err := c.Bind(lrp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid request data")
	}

	count, err := h.pipelineService.GetPipelineRunCount(c.Request().Context(), lrp.PipelineID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err, http.StatusInternalServerError, "unable to count pipeline runs")
	}

	maxPages := count / maxRunsPerPage
	if maxPages >= 1 {
		maxPages++
	}

	runs, err := h.pipelineService.ListPipelineRunsPaginated(
		c.Request().Context(),
		lrp.PipelineID,
		maxRunsPerPage,
		(max(lrp.Page, 1)-1)*maxRunsPerPage,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err, http.StatusInternalServerError, "error listing pipeline runs")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"runs":      runs,
		"page":      max(lrp.Page, 1),
		"max_pages": maxPages,
	})
}

func (h *PipelineHandler) GetLatestPipelineRuns(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}

	runs, err := h.pipelineService.ListLatestPipelineRuns(
		c.Request().Context(), rp.PipelineID, 3,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err, http.StatusBadRequest, "unable to list pipeline runs")
	}

	return c.JSON(http.StatusOK, runs)
}

func (h *PipelineHandler) DeletePipelineRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline or run ID")
	}
	if err := bindPathID(c, "run_id", &rp.RunID); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run id")
	}

	if err := h.pipelineService.DeletePipelineRun(
		c.Request().Context(), rp.RunID,
	); err != nil {
		return newError(err, http.StatusInternalServerError, "unable to delete run")
	}

	return c.NoContent(http.StatusOK)
}

func (h *PipelineHandler) PostCancelPipelineRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline or run ID")
	}
	if err := bindPathID(c, "pipeline_id", &rp.PipelineID); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline id")
	}
	if err := bindPathID(c, "run_id", &rp.RunID); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run id")
	}

	h.pipelineService.CancelRun(rp.PipelineID, rp.RunID)

	return c.NoContent(http.StatusAccepted)
}

func (h *PipelineHandler) GetPipelineRunArtifacts(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline or run ID")
	}

	archive, err := h.pipelineService.GetRunArtifactsArchive(
		c.Request().Context(), rp.RunID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "run not found")
		}
		return newError(err, http.StatusNotFound, "run has no artifacts")
	}

	return c.File(archive)
}

func (h *PipelineHandler) GetPipelineRunOutput(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid request ID")
	}

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	rq, ok := h.pipelineService.GetPipelineRunQueue(rp.PipelineID)
	if !ok {
		return nil
	}

	id := uuid.NewString()

	rq.OutputSSEClients.AddClient(id)
	defer rq.OutputSSEClients.RemoveClient(id)

	for {
		select {
		case <-c.Request().Context().Done():
			// client disconnected
			return nil
		case out := <-rq.OutputSSEClients.GetClient(id):
			// worker's output channel has data
			event := &Event{Data: []byte(out)}
			if err := event.MarshalTo(w); err != nil {
				log.Println("err marshaling event data:", err)
			}
			w.Flush()
		default:
			// no new data, just wait
			time.Sleep(1 * time.Second)
		}
	}
}

func (h *PipelineHandler) GetPipelineRunStatus(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid request ID")
	}

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	rq, ok := h.pipelineService.GetPipelineRunQueue(rp.PipelineID)
	if !ok {
		return nil
	}

	id := uuid.NewString()
	rq.StatusSSEClients.AddClient(id)
	defer rq.StatusSSEClients.RemoveClient(id)

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case out := <-rq.StatusSSEClients.GetClient(id):
			b, err := json.Marshal(out)
			if err != nil {
				log.Println("err marshaling run status:", err)
				continue
			}
			event := &Event{Data: b}
			if err := event.MarshalTo(w); err != nil {
				log.Println("err marshaling event data:", err)
			}
			w.Flush()
		default:
			time.Sleep(1 * time.Second)
		}
	}
}
