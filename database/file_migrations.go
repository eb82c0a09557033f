/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	migratemssql "github.com/golang-migrate/migrate/v4/database/sqlserver"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// FileMigrator applies versioned .up.sql/.down.sql files from a directory
// with golang-migrate, on top of the built-in migrations.
type FileMigrator struct {
	db       *sql.DB
	provider Provider
	dir      string
	logger   Logger
}

func NewFileMigrator(db *sql.DB, provider Provider, dir string, logger Logger) *FileMigrator {
	return &FileMigrator{db: db, provider: provider, dir: dir, logger: loggerOrNop(logger)}
}

// Up applies all pending migrations. Being up to date is not an error.
func (fm *FileMigrator) Up() error {
	m, err := fm.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: closing it would close the shared connection pool.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (fm *FileMigrator) Down() error {
	m, err := fm.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Version returns the current file migration version. 0, false, nil means
// none has been applied.
func (fm *FileMigrator) Version() (version uint, dirty bool, err error) {
	m, err := fm.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (fm *FileMigrator) newMigrate() (*migrate.Migrate, error) {
	if fm.db == nil {
		return nil, ErrNotConnected
	}
	absPath, err := filepath.Abs(fm.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for migrations: %w", err)
	}

	driver, name, err := fm.driver()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s migration driver: %w", fm.provider, err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(absPath), name, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logger: fm.logger}
	return m, nil
}

func (fm *FileMigrator) driver() (migratedb.Driver, string, error) {
	switch fm.provider {
	case ProviderMemory, ProviderSQLite:
		d, err := migratesqlite.WithInstance(fm.db, &migratesqlite.Config{})
		return d, "sqlite", err
	case ProviderPostgres:
		d, err := migratepg.WithInstance(fm.db, &migratepg.Config{})
		return d, "postgres", err
	case ProviderMySQL:
		d, err := migratemysql.WithInstance(fm.db, &migratemysql.Config{})
		return d, "mysql", err
	case ProviderSQLServer:
		d, err := migratemssql.WithInstance(fm.db, &migratemssql.Config{})
		return d, "sqlserver", err
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, fm.provider)
	}
}

// migrateLogger implements migrate.Logger on top of Logger.
type migrateLogger struct {
	logger Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf("[migrate] "+format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
