package database

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

func prepare(driver string) error {
	goose.SetBaseFS(embedMigrations)
	dialect := "sqlite3"
	if driver == DriverPostgres {
		dialect = "postgres"
	}
	return goose.SetDialect(dialect)
}

// RunMigrations runs all pending goose migrations.
func RunMigrations(db *sql.DB, driver string) error {
	if err := prepare(driver); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// MigrateDown rolls back the last migration.
func MigrateDown(db *sql.DB, driver string) error {
	if err := prepare(driver); err != nil {
		return err
	}
	return goose.Down(db, "migrations")
}

// MigrateReset rolls back all migrations.
func MigrateReset(db *sql.DB, driver string) error {
	if err := prepare(driver); err != nil {
		return err
	}
	return goose.Reset(db, "migrations")
}

// MigrationVersion reports the applied schema version.
func MigrationVersion(db *sql.DB, driver string) (int64, error) {
	if err := prepare(driver); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(db)
}
