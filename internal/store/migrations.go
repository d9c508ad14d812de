package store

import (
	"database/sql"
	"log"

	assets "github.com/haatos/pipewright"
	"github.com/haatos/pipewright/internal"
	"github.com/pressly/goose/v3"
)

func RunMigrations(db *sql.DB, dialect string) {
	goose.SetBaseFS(assets.MigrationsFS)
	if err := goose.SetDialect(dialect); err != nil {
		log.Fatal(err)
	}
	dir := internal.MigrationsDirSQLite
	if dialect == "postgres" {
		dir = internal.MigrationsDirPostgres
	}
	if err := goose.Up(db, dir); err != nil {
		log.Fatal(err)
	}
}
