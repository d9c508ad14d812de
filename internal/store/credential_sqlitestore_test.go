package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentialSQLiteStore_CreateCredential(t *testing.T) {
	t.Run("success - credential created", func(t *testing.T) {
		// act
		c, err := credentialStore.CreateCredential(
			context.Background(),
			"deploy",
			"deploy key",
			"encrypted-key",
		)

		// assert
		assert.NoError(t, err)
		assert.NotEqual(t, 0, c.CredentialID)
		assert.Equal(t, "deploy", c.Username)
		assert.Equal(t, "encrypted-key", c.SSHPrivateKeyHash)
	})
}

func TestCredentialSQLiteStore_ReadCredentialByID(t *testing.T) {
	t.Run("success - credential found", func(t *testing.T) {
		// arrange
		expected := generateCredential(t)

		// act
		c, err := credentialStore.ReadCredentialByID(
			context.Background(), expected.CredentialID,
		)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, expected.Username, c.Username)
		assert.Equal(t, expected.SSHPrivateKeyHash, c.SSHPrivateKeyHash)
	})
	t.Run("failure - credential not found", func(t *testing.T) {
		// act
		c, err := credentialStore.ReadCredentialByID(context.Background(), 98765)

		// assert
		assert.Error(t, err)
		assert.True(t, errors.Is(err, sql.ErrNoRows))
		assert.Nil(t, c)
	})
}

func TestCredentialSQLiteStore_UpdateCredential(t *testing.T) {
	t.Run("success - credential updated", func(t *testing.T) {
		// arrange
		c := generateCredential(t)

		// act
		err := credentialStore.UpdateCredential(
			context.Background(), c.CredentialID, "newuser", "rotated",
		)

		// assert
		assert.NoError(t, err)
		updated, err := credentialStore.ReadCredentialByID(
			context.Background(), c.CredentialID,
		)
		assert.NoError(t, err)
		assert.Equal(t, "newuser", updated.Username)
		assert.Equal(t, "rotated", updated.Description)
	})
}

func TestCredentialSQLiteStore_DeleteCredential(t *testing.T) {
	t.Run("success - credential deleted", func(t *testing.T) {
		// arrange
		c := generateCredential(t)

		// act
		err := credentialStore.DeleteCredential(context.Background(), c.CredentialID)

		// assert
		assert.NoError(t, err)
		_, err = credentialStore.ReadCredentialByID(
			context.Background(), c.CredentialID,
		)
		assert.Error(t, err)
	})
	t.Run("success - referencing agent loses its credential", func(t *testing.T) {
		// arrange
		c := generateCredential(t)
		a := generateAgent(t, c)

		// act
		err := credentialStore.DeleteCredential(context.Background(), c.CredentialID)

		// assert
		assert.NoError(t, err)
		updated, err := agentStore.ReadAgentByID(context.Background(), a.AgentID)
		assert.NoError(t, err)
		assert.Nil(t, updated.AgentCredentialID)
	})
}
