package handler

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/haatos/pipewright/internal/service"
	"github.com/labstack/echo/v4"
)

func SetupAgentRoutes(g *echo.Group, agentService service.AgentServicer) {
	h := NewAgentHandler(agentService)
	agentsGroup := g.Group("/agents")
	agentsGroup.GET("", h.GetAgents)
	agentsGroup.POST("", h.PostAgent)
	agentsGroup.GET("/:agent_id", h.GetAgent)
	agentsGroup.PATCH("/:agent_id", h.PatchAgent)
	agentsGroup.DELETE("/:agent_id", h.DeleteAgent)
	agentsGroup.POST("/:agent_id/test-connection", h.PostTestAgentConnection)
}

type AgentHandler struct {
	agentService service.AgentServicer
}

func NewAgentHandler(agentService service.AgentServicer) *AgentHandler {
	return &AgentHandler{agentService}
}

func (h *AgentHandler) GetAgents(c echo.Context) error {
	agents, err := h.agentService.ListAgents(c.Request().Context())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err,
			http.StatusInternalServerError,
			"something went wrong listing agents",
		)
	}

	return c.JSON(http.StatusOK, agents)
}

func (h *AgentHandler) PostAgent(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err,
			http.StatusBadRequest, "invalid agent data",
		)
	}

	ap.Name = strings.TrimSpace(ap.Name)
	ap.Hostname = strings.TrimSpace(ap.Hostname)
	ap.Workspace = strings.TrimSpace(ap.Workspace)
	ap.Description = strings.TrimSpace(ap.Description)

	a, err := h.agentService.CreateAgent(
		c.Request().Context(),
		ap.AgentCredentialID,
		ap.Name,
		ap.Hostname,
		ap.Workspace,
		ap.Description,
		ap.OSType,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return newError(err,
				http.StatusConflict,
				fmt.Sprintf("An agent with the name %s already exists", ap.Name),
			)
		}
		return newError(err, http.StatusInternalServerError, "unable to create agent")
	}

	return c.JSON(http.StatusCreated, a)
}

func (h *AgentHandler) GetAgent(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err,
			http.StatusBadRequest, "invalid agent data",
		)
	}

	agent, err := h.agentService.GetAgentByID(c.Request().Context(), ap.AgentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err,
				http.StatusNotFound, "agent was not found",
			)
		}
		return newError(err,
			http.StatusInternalServerError,
			"something went wrong while getting agent data",
		)
	}

	return c.JSON(http.StatusOK, agent)
}

func (h *AgentHandler) PatchAgent(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err,
			http.StatusBadRequest, "invalid agent data",
		)
	}
	if err := bindPathID(c, "agent_id", &ap.AgentID); err != nil {
		return newError(err, http.StatusBadRequest, "invalid agent ID")
	}

	if err := h.agentService.UpdateAgent(
		c.Request().Context(),
		ap.AgentID,
		ap.AgentCredentialID,
		ap.Name,
		ap.Hostname,
		ap.Workspace,
		ap.Description,
		ap.OSType,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err,
				http.StatusNotFound, "agent was not found",
			)
		}
		return newError(err,
			http.StatusInternalServerError,
			"something went wrong while updating agent",
		)
	}

	return c.NoContent(http.StatusOK)
}

func (h *AgentHandler) DeleteAgent(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid agent ID")
	}
	if err := bindPathID(c, "agent_id", &ap.AgentID); err != nil || ap.AgentID == 0 {
		return newError(err, http.StatusBadRequest, "invalid agent ID")
	}

	a, err := h.agentService.GetAgentByID(c.Request().Context(), ap.AgentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "agent not found")
		}
		return newError(err, http.StatusInternalServerError, "unable to delete agent")
	}

	if err := h.agentService.DeleteAgent(c.Request().Context(), a.AgentID); err != nil {
		if isForeignKeyConstraintError(err) {
			return newError(err, http.StatusConflict, "agent is in use")
		}
		return newError(err, http.StatusInternalServerError, "unable to delete agent")
	}

	return c.NoContent(http.StatusOK)
}

func (h *AgentHandler) PostTestAgentConnection(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid agent ID")
	}
	if err := bindPathID(c, "agent_id", &ap.AgentID); err != nil || ap.AgentID == 0 {
		return newError(err, http.StatusBadRequest, "invalid agent ID")
	}

	if err := h.agentService.TestAgentConnection(
		c.Request().Context(), ap.AgentID,
	); err != nil {
		return newError(err,
			http.StatusInternalServerError,
			"testing agent connection failed, check logs for details",
		)
	}

	return c.NoContent(http.StatusOK)
}
