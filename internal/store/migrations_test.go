package store

import (
	"testing"

	assets "github.com/haatos/pipewright"
	"github.com/haatos/pipewright/internal"
	"github.com/stretchr/testify/assert"
)

func TestMigrations_DialectParity(t *testing.T) {
	t.Run("success - sqlite and postgres carry the same migrations", func(t *testing.T) {
		// act
		sqliteEntries, err := assets.MigrationsFS.ReadDir(internal.MigrationsDirSQLite)
		assert.NoError(t, err)
		postgresEntries, err := assets.MigrationsFS.ReadDir(internal.MigrationsDirPostgres)

		// assert
		assert.NoError(t, err)
		assert.NotEmpty(t, sqliteEntries)
		assert.Len(t, postgresEntries, len(sqliteEntries))
		for i := range sqliteEntries {
			assert.Equal(t, sqliteEntries[i].Name(), postgresEntries[i].Name())
		}
	})
}
