package store

import (
	"context"
	"time"
)

// Agent is a machine pipeline jobs run on. The controller agent has no
// credential and executes locally; every other agent is reached over SSH.
type Agent struct {
	AgentID           int64 `param:"agent_id"`
	AgentCredentialID *int64
	Name              string
	Hostname          string
	Workspace         string
	Description       string
	OSType            string
	CreatedOn         time.Time
}

func (a *Agent) IsController() bool {
	return a.AgentCredentialID == nil
}

type AgentStore interface {
	CreateControllerAgent(context.Context) (*Agent, error)
	CreateAgent(context.Context, int64, string, string, string, string, string) (*Agent, error)
	ReadAgentByID(context.Context, int64) (*Agent, error)
	UpdateAgent(context.Context, int64, int64, string, string, string, string, string) error
	DeleteAgent(context.Context, int64) error
	ListAgents(context.Context) ([]*Agent, error)
}
