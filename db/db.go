package db

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pocketbase/dbx"
	"github.com/pressly/goose/v3"

	_ "github.com/maxepunk/ALN-Ecosystem-sub005/db/migrations"
	"github.com/maxepunk/ALN-Ecosystem-sub005/log"
)

//go:embed migrations/*.go
var embedMigrations embed.FS

// DB wraps the database handle and exposes a dbx builder for the
// repositories.
type DB struct {
	sqlDB *sql.DB
	dbx   *dbx.DB
}

// Open connects to Postgres and runs pending migrations.
func Open(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &DB{sqlDB: sqlDB, dbx: dbx.NewFromDB(sqlDB, "postgres")}, nil
}

func migrate(sqlDB *sql.DB) error {
	goose.SetLogger(gooseLogger{})
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting migration dialect: %w", err)
	}
	if err := goose.Up(sqlDB, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Builder returns the query builder the repositories run on.
func (d *DB) Builder() dbx.Builder {
	return d.dbx
}

func (d *DB) Close() error {
	return d.sqlDB.Close()
}

type gooseLogger struct{}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	log.Error(fmt.Sprintf("migration: "+format, v...))
}

func (gooseLogger) Printf(format string, v ...interface{}) {
	log.Info(fmt.Sprintf("migration: "+format, v...))
}
