package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/haatos/pipewright/internal/store"
	"github.com/labstack/echo/v4"
)

func SetupCredentialRoutes(g *echo.Group, credentialService CredentialServicer) {
	h := NewCredentialHandler(credentialService)
	credentialsGroup := g.Group("/credentials")
	credentialsGroup.GET("", h.GetCredentials)
	credentialsGroup.POST("", h.PostCredential)
	credentialsGroup.GET("/:credential_id", h.GetCredential)
	credentialsGroup.PATCH("/:credential_id", h.PatchCredential)
	credentialsGroup.DELETE("/:credential_id", h.DeleteCredential)
}

type CredentialWriter interface {
	CreateCredential(
		ctx context.Context,
		username, description, sshPrivateKey string,
	) (*store.Credential, error)
	UpdateCredential(ctx context.Context, id int64, username, description string) error
	DeleteCredential(ctx context.Context, id int64) error
}

type CredentialReader interface {
	GetCredentialByID(ctx context.Context, id int64) (*store.Credential, error)
	ListCredentials(ctx context.Context) ([]*store.Credential, error)
}

type CredentialServicer interface {
	CredentialWriter
	CredentialReader
}

type CredentialHandler struct {
	credentialService CredentialServicer
}

func NewCredentialHandler(credentialService CredentialServicer) *CredentialHandler {
	return &CredentialHandler{credentialService}
}

// The private key hash never leaves the server.
func sanitizeCredential(credential *store.Credential) *store.Credential {
	credential.SSHPrivateKeyHash = ""
	credential.SSHPrivateKey = nil
	return credential
}

func (h *CredentialHandler) GetCredentials(c echo.Context) error {
	credentials, err := h.credentialService.ListCredentials(c.Request().Context())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err,
			http.StatusInternalServerError,
			"something went wrong while listing credentials",
		)
	}
	for i := range credentials {
		sanitizeCredential(credentials[i])
	}

	return c.JSON(http.StatusOK, credentials)
}

func (h *CredentialHandler) GetCredential(c echo.Context) error {
	cp := new(CredentialParams)
	if err := c.Bind(cp); err != nil {
		return newError(err,
			http.StatusBadRequest, "invalid credential data",
		)
	}

	credential, err := h.credentialService.GetCredentialByID(
		c.Request().Context(), cp.CredentialID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err,
				http.StatusNotFound, "credential was not found",
			)
		}
		return newError(err,
			http.StatusInternalServerError,
			"something went wrong while getting credential data",
		)
	}

	return c.JSON(http.StatusOK, sanitizeCredential(credential))
}

func (h *CredentialHandler) PostCredential(c echo.Context) error {
	cp := new(CredentialParams)
	if err := c.Bind(cp); err != nil {
		return newError(err,
			http.StatusBadRequest, "invalid credential data",
		)
	}

	credential, err := h.credentialService.CreateCredential(
		c.Request().Context(), cp.Username, cp.Description, cp.SSHPrivateKey,
	)
	if err != nil {
		return newError(err,
			http.StatusInternalServerError,
			"something went wrong when creating new credentials",
		)
	}

	return c.JSON(http.StatusCreated, sanitizeCredential(credential))
}

func (h *CredentialHandler) PatchCredential(c echo.Context) error {
	cp := new(CredentialParams)
	if err := c.Bind(cp); err != nil {
		return newError(err,
			http.StatusBadRequest, "invalid credential data",
		)
	}

	if err := bindPathID(c, "credential_id", &cp.CredentialID); err != nil {
		return newError(err, http.StatusBadRequest, "invalid credential ID")
	}

	err := h.credentialService.UpdateCredential(
		c.Request().Context(),
		cp.CredentialID,
		strings.TrimSpace(cp.Username),
		strings.TrimSpace(cp.Description),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err,
				http.StatusNotFound, "credential was not found",
			)
		}
		return newError(err,
			http.StatusInternalServerError,
			"something went wrong while updating credential",
		)
	}

	return c.NoContent(http.StatusOK)
}

func (h *CredentialHandler) DeleteCredential(c echo.Context) error {
	cp := new(CredentialParams)
	if err := c.Bind(cp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid credential data")
	}
	if err := bindPathID(c, "credential_id", &cp.CredentialID); err != nil {
		return newError(err, http.StatusBadRequest, "invalid credential ID")
	}

	if cp.CredentialID == 0 {
		return newError(errors.New("credential id was zero"),
			http.StatusBadRequest, "invalid credential ID",
		)
	}

	credential, err := h.credentialService.GetCredentialByID(
		c.Request().Context(), cp.CredentialID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "credential not found")
		}
		return newError(err, http.StatusInternalServerError, "unable to delete credential")
	}

	if err := h.credentialService.DeleteCredential(
		c.Request().Context(), credential.CredentialID,
	); err != nil {
		if isForeignKeyConstraintError(err) {
			return newError(err, http.StatusConflict, "credential is in use")
		}
		return newError(err, http.StatusInternalServerError, "unable to delete credential")
	}

	return c.NoContent(http.StatusOK)
}
