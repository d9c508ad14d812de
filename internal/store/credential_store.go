package store

import (
	"context"
	"time"
)

type Credential struct {
	CredentialID      int64 `param:"credential_id"`
	Username          string
	Description       string
	SSHPrivateKeyHash string
	CreatedOn         time.Time

	SSHPrivateKey []byte `db:"-"`
}

type CredentialStore interface {
	CreateCredential(context.Context, string, string, string) (*Credential, error)
	ReadCredentialByID(context.Context, int64) (*Credential, error)
	UpdateCredential(context.Context, int64, string, string) error
	DeleteCredential(context.Context, int64) error
	ListCredentials(context.Context) ([]*Credential, error)
}
