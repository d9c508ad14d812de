package service

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/haatos/pipewright/internal/store"
	"github.com/haatos/pipewright/internal/util"
	"github.com/haatos/pipewright/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockAgentStore struct {
	mock.Mock
}

func (m *MockAgentStore) CreateControllerAgent(ctx context.Context) (*store.Agent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Agent), args.Error(1)
}

func (m *MockAgentStore) CreateAgent(
	ctx context.Context,
	credentialID int64,
	name, hostname, workspace, description, osType string,
) (*store.Agent, error) {
	args := m.Called(ctx, credentialID, name, hostname, workspace, description, osType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Agent), args.Error(1)
}

func (m *MockAgentStore) ReadAgentByID(ctx context.Context, id int64) (*store.Agent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Agent), args.Error(1)
}

func (m *MockAgentStore) UpdateAgent(
	ctx context.Context,
	agentID, credentialID int64,
	name, hostname, workspace, description, osType string,
) error {
	args := m.Called(ctx, agentID, credentialID, name, hostname, workspace, description, osType)
	return args.Error(0)
}

func (m *MockAgentStore) DeleteAgent(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAgentStore) ListAgents(ctx context.Context) ([]*store.Agent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*store.Agent), args.Error(1)
}

func TestAgentService_CreateAgent(t *testing.T) {
	t.Run("success - agent is created", func(t *testing.T) {
		// arrange
		expectedAgent := generateAgent(0)
		mockStore := new(MockAgentStore)
		mockStore.On(
			"CreateAgent",
			context.Background(),
			*expectedAgent.AgentCredentialID,
			expectedAgent.Name,
			expectedAgent.Hostname,
			expectedAgent.Workspace,
			expectedAgent.Description,
			expectedAgent.OSType,
		).Return(expectedAgent, nil)
		agentService := NewAgentService(mockStore, nil)

		// act
		agent, err := agentService.CreateAgent(
			context.Background(),
			*expectedAgent.AgentCredentialID,
			expectedAgent.Name,
			expectedAgent.Hostname,
			expectedAgent.Workspace,
			expectedAgent.Description,
			expectedAgent.OSType,
		)

		// assert
		assert.NoError(t, err)
		assert.NotNil(t, agent)
		assert.Equal(t, expectedAgent.Name, agent.Name)
		assert.False(t, agent.IsController())
	})
}

func TestAgentService_GetAgentByID(t *testing.T) {
	t.Run("success - agent is found", func(t *testing.T) {
		// arrange
		expectedAgent := generateAgent(0)
		mockStore := new(MockAgentStore)
		mockStore.On("ReadAgentByID", context.Background(), expectedAgent.AgentID).
			Return(expectedAgent, nil)
		agentService := NewAgentService(mockStore, nil)

		// act
		agent, err := agentService.GetAgentByID(context.Background(), expectedAgent.AgentID)

		// assert
		assert.NoError(t, err)
		assert.NotNil(t, agent)
		assert.Equal(t, expectedAgent.AgentID, agent.AgentID)
	})
}

func TestAgentService_ListAgentsAndCredentials(t *testing.T) {
	t.Run("success - agents and credentials are listed", func(t *testing.T) {
		// arrange
		expectedAgents := []*store.Agent{generateAgent(0)}
		expectedCredentials := []*store.Credential{
			{CredentialID: rand.Int63(), Username: "ci"},
		}
		mockStore := new(MockAgentStore)
		mockStore.On("ListAgents", context.Background()).Return(expectedAgents, nil)
		mockService := new(testutil.MockCredentialService)
		mockService.On("ListCredentials", context.Background()).
			Return(expectedCredentials, nil)
		agentService := NewAgentService(mockStore, mockService)

		// act
		agents, credentials, err := agentService.ListAgentsAndCredentials(context.Background())

		// assert
		assert.NoError(t, err)
		assert.Equal(t, len(expectedAgents), len(agents))
		assert.Equal(t, len(expectedCredentials), len(credentials))
	})
}

func TestAgentService_DeleteAgent(t *testing.T) {
	t.Run("success - agent is deleted", func(t *testing.T) {
		// arrange
		expectedAgent := generateAgent(0)
		mockStore := new(MockAgentStore)
		mockStore.On("DeleteAgent", context.Background(), expectedAgent.AgentID).Return(nil)
		agentService := NewAgentService(mockStore, nil)

		// act
		err := agentService.DeleteAgent(context.Background(), expectedAgent.AgentID)

		// assert
		assert.NoError(t, err)
	})
}

func TestAgentService_TestAgentConnection(t *testing.T) {
	t.Run("success - controller agent is always reachable", func(t *testing.T) {
		// arrange
		controller := generateAgent(0)
		controller.AgentCredentialID = nil
		mockStore := new(MockAgentStore)
		mockStore.On("ReadAgentByID", context.Background(), controller.AgentID).
			Return(controller, nil)
		mockService := new(testutil.MockCredentialService)
		agentService := NewAgentService(mockStore, mockService)

		// act
		err := agentService.TestAgentConnection(context.Background(), controller.AgentID)

		// assert
		assert.NoError(t, err)
		mockService.AssertNotCalled(t, "GetCredentialByID", mock.Anything, mock.Anything)
	})
}

func generateAgent(credentialID int64) *store.Agent {
	if credentialID == 0 {
		credentialID = rand.Int63()
	}
	agent := &store.Agent{
		AgentID:           rand.Int63(),
		AgentCredentialID: util.AsPtr(credentialID),
		Name:              fmt.Sprintf("agent%d", time.Now().UnixNano()),
		Hostname:          "localhost",
		Workspace:         "/tmp",
		Description:       fmt.Sprintf("description%d", time.Now().UnixNano()),
		OSType:            "unix",
	}
	return agent
}
