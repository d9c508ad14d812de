package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/haatos/pipewright/internal"
	"github.com/stretchr/testify/assert"
)

var credentialStore *CredentialSQLiteStore
var agentStore *AgentSQLiteStore
var pipelineStore *PipelineSQLiteStore
var runStore *RunSQLiteStore
var jobResultStore *JobResultSQLiteStore
var apiKeyStore *APIKeySQLiteStore

func TestMain(m *testing.M) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		log.Fatal(err)
	}

	RunMigrations(db, "sqlite3")

	credentialStore = NewCredentialSQLiteStore(db, db)
	agentStore = NewAgentSQLiteStore(db, db)
	pipelineStore = NewPipelineSQLiteStore(db, db)
	runStore = NewRunSQLiteStore(db, db)
	jobResultStore = NewJobResultSQLiteStore(db, db)
	apiKeyStore = NewAPIKeySQLiteStore(db, db)
	code := m.Run()
	os.Exit(code)
}

func generateCredential(t *testing.T) *Credential {
	c, err := credentialStore.CreateCredential(
		context.Background(),
		"ci",
		"test credential",
		"encrypted-private-key",
	)
	assert.NoError(t, err)
	return c
}

func generateAgent(t *testing.T, c *Credential) *Agent {
	a, err := agentStore.CreateAgent(
		context.Background(),
		c.CredentialID,
		"agent"+fmt.Sprintf("%d", time.Now().UnixNano()),
		"10.0.0.5",
		"/home/ci/workspace",
		"test agent",
		"linux",
	)
	assert.NoError(t, err)
	return a
}

func TestAgentSQLiteStore_CreateControllerAgent(t *testing.T) {
	t.Run("success - controller agent has no credential", func(t *testing.T) {
		// act
		a, err := agentStore.CreateControllerAgent(context.Background())

		// assert
		assert.NoError(t, err)
		assert.Equal(t, internal.ControllerAgent, a.Name)
		assert.Nil(t, a.AgentCredentialID)
		assert.True(t, a.IsController())
	})
	t.Run("success - creating twice returns the existing agent", func(t *testing.T) {
		// arrange
		first, err := agentStore.CreateControllerAgent(context.Background())
		assert.NoError(t, err)

		// act
		second, err := agentStore.CreateControllerAgent(context.Background())

		// assert
		assert.NoError(t, err)
		assert.Equal(t, first.AgentID, second.AgentID)
	})
}

func TestAgentSQLiteStore_CreateAgent(t *testing.T) {
	t.Run("success - agent created", func(t *testing.T) {
		// arrange
		c := generateCredential(t)

		// act
		a, err := agentStore.CreateAgent(
			context.Background(),
			c.CredentialID,
			"create agent success",
			"build-1.internal",
			"/srv/ci",
			"remote build machine",
			"linux",
		)

		// assert
		assert.NoError(t, err)
		assert.NotEqual(t, 0, a.AgentID)
		assert.Equal(t, c.CredentialID, *a.AgentCredentialID)
		assert.False(t, a.IsController())
	})
	t.Run("failure - agent name already exists", func(t *testing.T) {
		// arrange
		c := generateCredential(t)
		a := generateAgent(t, c)

		// act
		_, err := agentStore.CreateAgent(
			context.Background(),
			c.CredentialID,
			a.Name,
			a.Hostname,
			a.Workspace,
			a.Description,
			a.OSType,
		)

		// assert
		assert.Error(t, err)
	})
}

func TestAgentSQLiteStore_UpdateAgent(t *testing.T) {
	t.Run("success - agent updated", func(t *testing.T) {
		// arrange
		c := generateCredential(t)
		a := generateAgent(t, c)

		// act
		err := agentStore.UpdateAgent(
			context.Background(),
			a.AgentID, c.CredentialID,
			a.Name, "build-2.internal", "/srv/ci2", "moved", "linux",
		)

		// assert
		assert.NoError(t, err)
		updated, err := agentStore.ReadAgentByID(context.Background(), a.AgentID)
		assert.NoError(t, err)
		assert.Equal(t, "build-2.internal", updated.Hostname)
		assert.Equal(t, "/srv/ci2", updated.Workspace)
	})
}

func TestAgentSQLiteStore_DeleteAgent(t *testing.T) {
	t.Run("success - agent deleted", func(t *testing.T) {
		// arrange
		c := generateCredential(t)
		a := generateAgent(t, c)

		// act
		err := agentStore.DeleteAgent(context.Background(), a.AgentID)

		// assert
		assert.NoError(t, err)
		_, err = agentStore.ReadAgentByID(context.Background(), a.AgentID)
		assert.Error(t, err)
	})
}
