package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haatos/pipewright/internal/store"
	"github.com/haatos/pipewright/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestAPIKeysHandler_PostAPIKey(t *testing.T) {
	t.Run("success - api key created", func(t *testing.T) {
		// arrange
		ak := &store.APIKey{ID: 1, Value: "test-api-key", CreatedOn: time.Now()}
		mockAPIKeyService := new(testutil.MockAPIKeyService)
		mockAPIKeyService.On("CreateAPIKey", context.Background()).Return(ak, nil)

		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/api/api-keys", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		h := NewAPIKeyHandler(mockAPIKeyService)

		// act
		err := h.PostAPIKey(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), ak.Value)
	})
}

func TestAPIKeysHandler_GetAPIKeys(t *testing.T) {
	t.Run("success - api keys listed", func(t *testing.T) {
		// arrange
		apiKeys := []*store.APIKey{
			{ID: 1, Value: "first-key", CreatedOn: time.Now()},
			{ID: 2, Value: "second-key", CreatedOn: time.Now()},
		}
		mockAPIKeyService := new(testutil.MockAPIKeyService)
		mockAPIKeyService.On("ListAPIKeys", context.Background()).Return(apiKeys, nil)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/api-keys", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		h := NewAPIKeyHandler(mockAPIKeyService)

		// act
		err := h.GetAPIKeys(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "first-key")
		assert.Contains(t, rec.Body.String(), "second-key")
	})
}

func TestAPIKeysHandler_DeleteAPIKey(t *testing.T) {
	t.Run("success - api key deleted", func(t *testing.T) {
		// arrange
		mockAPIKeyService := new(testutil.MockAPIKeyService)
		mockAPIKeyService.On("DeleteAPIKey", context.Background(), int64(1)).Return(nil)

		e := echo.New()
		req := httptest.NewRequest(http.MethodDelete, "/api/api-keys/1", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("1")
		h := NewAPIKeyHandler(mockAPIKeyService)

		// act
		err := h.DeleteAPIKey(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
