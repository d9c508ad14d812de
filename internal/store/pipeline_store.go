package store

import (
	"context"
	"time"
)

type Pipeline struct {
	PipelineID      int64 `param:"pipeline_id"`
	PipelineAgentID int64
	Name            string
	Description     string
	// Git repository the pipeline builds, e.g. "github.com/openep/openep-py"
	Repository string
	// Workflow script path on the controller machine
	ScriptPath string
	// JSON object mapping trigger event kinds to accepted branches,
	// denormalized from the workflow script at registration
	Triggers string
	// Pipeline schedule in cron syntax
	Schedule *string
	// Git branch for scheduled runs
	ScheduleBranch *string
	// Scheduled job ID
	ScheduleJobID *string
	CreatedOn     time.Time
}

// PipelineRunData joins a pipeline with its agent and the agent's credential.
// The credential columns are null for the controller agent.
type PipelineRunData struct {
	PipelineID        int64
	AgentID           int64
	OSType            string
	CredentialID      *int64
	Repository        string
	ScriptPath        string
	Triggers          string
	Hostname          string
	Workspace         string
	Username          *string
	SSHPrivateKeyHash *string

	SSHPrivateKey []byte `db:"-"`
}

type PipelineStore interface {
	CreatePipeline(
		context.Context,
		int64,
		string,
		string,
		string,
		string,
		string,
	) (*Pipeline, error)
	ReadPipelineByID(context.Context, int64) (*Pipeline, error)
	ReadPipelineRunData(context.Context, int64) (*PipelineRunData, error)
	UpdatePipeline(context.Context, int64, int64, string, string, string, string, string) error
	UpdatePipelineSchedule(context.Context, int64, *string, *string, *string) error
	UpdatePipelineScheduleJobID(context.Context, int64, *string) error
	DeletePipeline(context.Context, int64) error
	ListPipelines(context.Context) ([]*Pipeline, error)
	ListScheduledPipelines(context.Context) ([]*Pipeline, error)
}
