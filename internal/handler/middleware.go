package handler

import (
	"context"
	"net/http"

	"github.com/haatos/pipewright/internal"
	"github.com/haatos/pipewright/internal/settings"
	"github.com/haatos/pipewright/internal/store"
	"github.com/labstack/echo/v4"
)

type APIKeyServicer interface {
	CreateAPIKey(ctx context.Context) (*store.APIKey, error)
	GetAPIKeyByValue(ctx context.Context, value string) (*store.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*store.APIKey, error)
	DeleteAPIKey(ctx context.Context, id int64) error
}

// APIKeyAuth guards API routes. The admin key from the settings is
// accepted alongside keys stored in the database so the first key can
// be created through the API itself.
func APIKeyAuth(apiKeyService APIKeyServicer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(internal.APIKeyHeader)
			if key == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing api key")
			}
			if settings.Settings != nil &&
				settings.Settings.AdminAPIKey != "" &&
				key == settings.Settings.AdminAPIKey {
				return next(c)
			}
			if _, err := apiKeyService.GetAPIKeyByValue(
				c.Request().Context(), key,
			); err != nil {
				return echo.NewHTTPError(
					http.StatusUnauthorized, "invalid api key",
				).WithInternal(err)
			}
			return next(c)
		}
	}
}
