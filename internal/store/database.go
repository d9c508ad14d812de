package store

import (
	"database/sql"
	"log"
	"runtime"

	"github.com/haatos/pipewright/internal/settings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// InitDatabase opens the configured database. SQLite is the default and uses
// a readonly/read-write connection pair; PostgreSQL (driver "postgres") uses
// a single shared pool for both.
func InitDatabase(readonly bool) *sql.DB {
	if settings.Settings.DatabaseDriver == "postgres" {
		db, err := sql.Open("pgx", settings.Settings.PostgresDSN)
		if err != nil {
			log.Fatal("fatal error opening postgres database:", err)
		}
		db.SetMaxOpenConns(max(4, runtime.NumCPU()))
		return db
	}

	db, err := sql.Open("sqlite", settings.Settings.SQLiteDbString(readonly))
	if err != nil {
		log.Fatal("fatal error opening sqlite database:", err)
	}

	if readonly {
		db.SetMaxOpenConns(max(4, runtime.NumCPU()))
	} else {
		if _, err := db.Exec("PRAGMA temp_store=memory"); err != nil {
			log.Fatal(err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			log.Fatal(err)
		}
		db.SetMaxOpenConns(1)
	}

	return db
}
