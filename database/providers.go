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
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mssqldialect"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

// openConnection opens the sql.DB for the configured provider and wraps it
// with the matching bun dialect. Unknown columns are discarded on scan since
// shadow columns exist in the tables but not on the models.
func openConnection(name string, cfg *ConnectionConfig) (*sql.DB, *bun.DB, error) {
	driverName, dsn, dialect, err := connectionTarget(name, cfg)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, bun.NewDB(sqlDB, dialect, bun.WithDiscardUnknownColumns()), nil
}

func connectionTarget(name string, cfg *ConnectionConfig) (driverName, dsn string, dialect schema.Dialect, err error) {
	switch cfg.Type {
	case ProviderMemory:
		return sqliteshim.ShimName, memoryDSN(name), sqlitedialect.New(), nil
	case ProviderSQLite:
		dsn = cfg.ConnectionString
		if dsn == "" {
			dsn = fmt.Sprintf("%s.db", cfg.DBName)
		}
		return sqliteshim.ShimName, dsn, sqlitedialect.New(), nil
	case ProviderPostgres:
		driverName = "postgres"
		if strings.EqualFold(cfg.PostgresDriver, "pgx") {
			driverName = "pgx"
		}
		return driverName, postgresDSN(cfg), pgdialect.New(), nil
	case ProviderMySQL:
		return "mysql", mysqlDSN(cfg), mysqldialect.New(), nil
	case ProviderSQLServer:
		if cfg.ConnectionString == "" {
			return "", "", nil, fmt.Errorf("%w: sqlserver requires a connection string", ErrMissingConnectionString)
		}
		return "sqlserver", cfg.ConnectionString, mssqldialect.New(), nil
	default:
		return "", "", nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Type)
	}
}

// memoryDSN names a shared-cache in-memory SQLite database. The database
// lives as long as one connection to it stays open.
func memoryDSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", url.PathEscape(name))
}

func postgresDSN(cfg *ConnectionConfig) string {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("connect_timeout", fmt.Sprintf("%d", int(cfg.ConnectTimeout.Seconds())))
	u.RawQuery = q.Encode()
	return u.String()
}

// mysqlDSN always sets clientFoundRows so an UPDATE that rewrites a row with
// identical values still reports it as affected. Without it the row-version
// check would read such a save as a concurrency conflict.
func mysqlDSN(cfg *ConnectionConfig) string {
	if cfg.ConnectionString != "" {
		parsed, err := mysql.ParseDSN(cfg.ConnectionString)
		if err != nil {
			return cfg.ConnectionString
		}
		parsed.ClientFoundRows = true
		return parsed.FormatDSN()
	}
	charset := cfg.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local&timeout=%s&readTimeout=%s&writeTimeout=%s&clientFoundRows=true",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		charset,
		cfg.ConnectTimeout,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
	)
}

// configurePool applies the pool settings. The in-memory provider keeps one
// connection open forever so the database is not dropped between queries.
func configurePool(sqlDB *sql.DB, cfg *ConnectionConfig) {
	if cfg.Type == ProviderMemory {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
		return
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}
