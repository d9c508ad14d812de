package handler

import "github.com/labstack/echo/v4"

// bindPathID re-reads a path parameter after c.Bind so a request body
// carrying the same key cannot override the route's target ID.
func bindPathID(c echo.Context, name string, id *int64) error {
	return echo.PathParamsBinder(c).Int64(name, id).BindError()
}

type CredentialParams struct {
	CredentialID  int64  `json:"credential_id"   param:"credential_id"`
	Username      string `json:"username"`
	Description   string `json:"description"`
	SSHPrivateKey string `json:"ssh_private_key"`
}

type AgentParams struct {
	AgentID           int64  `json:"agent_id"            param:"agent_id"`
	AgentCredentialID int64  `json:"agent_credential_id"`
	Name              string `json:"name"`
	Hostname          string `json:"hostname"`
	Workspace         string `json:"workspace"`
	Description       string `json:"description"`
	OSType            string `json:"os_type"`
}

type PipelineParams struct {
	PipelineID      int64   `json:"pipeline_id"       param:"pipeline_id"`
	PipelineAgentID int64   `json:"pipeline_agent_id"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Repository      string  `json:"repository"`
	ScriptPath      string  `json:"script_path"`
	Schedule        *string `json:"schedule"`
	ScheduleBranch  *string `json:"schedule_branch"`
}

type RunParams struct {
	PipelineID int64  `param:"pipeline_id"`
	RunID      int64  `param:"run_id"`
	Event      string `json:"event"`
	Branch     string `json:"branch"`
}

type ListRunsParams struct {
	PipelineID int64 `param:"pipeline_id"`
	Page       int64 `               query:"page"`
}

// EventParams is the payload posted by source forges (or anything
// imitating one) to trigger matching pipelines.
type EventParams struct {
	Event      string `json:"event"`
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
}

type APIKeyParams struct {
	ID int64 `param:"id"`
}
