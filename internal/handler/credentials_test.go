package handler

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haatos/pipewright/internal/store"
	"github.com/haatos/pipewright/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func generateCredential() *store.Credential {
	return &store.Credential{
		CredentialID:      1,
		Username:          "ci",
		Description:       "build agent ssh key",
		SSHPrivateKeyHash: "encrypted-key-material",
		CreatedOn:         time.Now(),
	}
}

func TestCredentialsHandler_PostCredential(t *testing.T) {
	t.Run("success - credential created without key material", func(t *testing.T) {
		// arrange
		credential := generateCredential()
		mockCredentialService := new(testutil.MockCredentialService)
		mockCredentialService.On(
			"CreateCredential",
			context.Background(),
			credential.Username, credential.Description, "ssh-private-key",
		).Return(credential, nil)

		e := echo.New()
		req := jsonRequest(http.MethodPost, "/api/credentials", CredentialParams{
			Username:      credential.Username,
			Description:   credential.Description,
			SSHPrivateKey: "ssh-private-key",
		})
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		h := NewCredentialHandler(mockCredentialService)

		// act
		err := h.PostCredential(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, credential.Username)
		assert.NotContains(t, body, "encrypted-key-material")
	})
}

func TestCredentialsHandler_GetCredential(t *testing.T) {
	t.Run("success - credential returned without key material", func(t *testing.T) {
		// arrange
		credential := generateCredential()
		mockCredentialService := new(testutil.MockCredentialService)
		mockCredentialService.On(
			"GetCredentialByID", context.Background(), credential.CredentialID,
		).Return(credential, nil)

		e := echo.New()
		req := httptest.NewRequest(
			http.MethodGet,
			fmt.Sprintf("/api/credentials/%d", credential.CredentialID),
			nil,
		)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("credential_id")
		c.SetParamValues(fmt.Sprintf("%d", credential.CredentialID))
		h := NewCredentialHandler(mockCredentialService)

		// act
		err := h.GetCredential(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, credential.Username)
		assert.NotContains(t, body, "encrypted-key-material")
	})
	t.Run("failure - credential not found", func(t *testing.T) {
		// arrange
		mockCredentialService := new(testutil.MockCredentialService)
		mockCredentialService.On(
			"GetCredentialByID", context.Background(), int64(9),
		).Return(nil, sql.ErrNoRows)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/credentials/9", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("credential_id")
		c.SetParamValues("9")
		h := NewCredentialHandler(mockCredentialService)

		// act
		err := h.GetCredential(c)

		// assert
		assert.Error(t, err)
		httpErr, ok := err.(*echo.HTTPError)
		assert.True(t, ok)
		assert.Equal(t, http.StatusNotFound, httpErr.Code)
	})
}

func TestCredentialsHandler_DeleteCredential(t *testing.T) {
	t.Run("success - credential deleted", func(t *testing.T) {
		// arrange
		credential := generateCredential()
		mockCredentialService := new(testutil.MockCredentialService)
		mockCredentialService.On(
			"GetCredentialByID", context.Background(), credential.CredentialID,
		).Return(credential, nil)
		mockCredentialService.On(
			"DeleteCredential", context.Background(), credential.CredentialID,
		).Return(nil)

		e := echo.New()
		req := httptest.NewRequest(
			http.MethodDelete,
			fmt.Sprintf("/api/credentials/%d", credential.CredentialID),
			nil,
		)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("credential_id")
		c.SetParamValues(fmt.Sprintf("%d", credential.CredentialID))
		h := NewCredentialHandler(mockCredentialService)

		// act
		err := h.DeleteCredential(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
	t.Run("failure - credential id was zero", func(t *testing.T) {
		// arrange
		mockCredentialService := new(testutil.MockCredentialService)

		e := echo.New()
		req := httptest.NewRequest(http.MethodDelete, "/api/credentials/0", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("credential_id")
		c.SetParamValues("0")
		h := NewCredentialHandler(mockCredentialService)

		// act
		err := h.DeleteCredential(c)

		// assert
		assert.Error(t, err)
		mockCredentialService.AssertNotCalled(t, "DeleteCredential")
	})
}
