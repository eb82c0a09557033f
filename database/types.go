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
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/tomoncle/forge/entity"
)

// AbstractDatabaseManager defines the operations for managing a database
// connection, provisioning its schema, and reporting health.
type AbstractDatabaseManager interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Reconnect(ctx context.Context) error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	GetDB() *bun.DB
	GetSQLDB() *sql.DB
	Provision(ctx context.Context) error
	EnsureCreated(ctx context.Context) error
	EnsureDeleted(ctx context.Context) error
	RunMigrations(ctx context.Context) error
	AppliedMigrations(ctx context.Context) ([]Migration, error)
	InitData(ctx context.Context) error
	GetStats() *DBStats
	Metrics() *Metrics
	Config() *Config
	SetLogger(logger Logger)
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy" yaml:"healthy"`
	Connected     bool          `json:"connected" yaml:"connected"`
	Provider      Provider      `json:"provider" yaml:"provider"`
	ResponseTime  time.Duration `json:"response_time" yaml:"response_time"`
	ActiveConns   int           `json:"active_conns" yaml:"active_conns"`
	IdleConns     int           `json:"idle_conns" yaml:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns" yaml:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time" yaml:"last_check_time"`
}

// DBStats mirrors database/sql stats returned by the manager.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns" yaml:"max_open_conns"`
	OpenConns         int           `json:"open_conns" yaml:"open_conns"`
	InUse             int           `json:"in_use" yaml:"in_use"`
	Idle              int           `json:"idle" yaml:"idle"`
	WaitCount         int64         `json:"wait_count" yaml:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration" yaml:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed" yaml:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed" yaml:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed" yaml:"max_lifetime_closed"`
}

// Provider selects the database engine behind a context.
type Provider string

const (
	ProviderMemory    Provider = "memory"
	ProviderSQLite    Provider = "sqlite"
	ProviderPostgres  Provider = "postgres"
	ProviderMySQL     Provider = "mysql"
	ProviderSQLServer Provider = "sqlserver"
)

// ParseProvider accepts a provider name or one of its common aliases.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "memory", "inmemory", "in-memory":
		return ProviderMemory, nil
	case "sqlite", "sqlite3":
		return ProviderSQLite, nil
	case "postgres", "postgresql", "pg":
		return ProviderPostgres, nil
	case "mysql":
		return ProviderMySQL, nil
	case "sqlserver", "mssql":
		return ProviderSQLServer, nil
	default:
		return "", fmt.Errorf("%w: %q, supported: %v", ErrUnsupportedProvider, s, SupportedProviders())
	}
}

func SupportedProviders() []Provider {
	return []Provider{ProviderMemory, ProviderSQLite, ProviderPostgres, ProviderMySQL, ProviderSQLServer}
}

func (p Provider) String() string { return string(p) }

// ConnectionConfig describes how to connect to a database and tune its pool.
type ConnectionConfig struct {
	Type                Provider      `json:"type" yaml:"type"`
	ConnectionString    string        `json:"connection_string" yaml:"connection_string"`
	PostgresDriver      string        `json:"postgres_driver" yaml:"postgres_driver"` // pq (default) or pgx
	Host                string        `json:"host" yaml:"host"`
	Port                int           `json:"port" yaml:"port"`
	Username            string        `json:"username" yaml:"username"`
	Password            string        `json:"password" yaml:"password"`
	DBName              string        `json:"dbname" yaml:"dbname"`
	SSLMode             string        `json:"sslmode" yaml:"sslmode"`
	MaxIdleConns        int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxOpenConns        int           `json:"max_open_conns" yaml:"max_open_conns"`
	ConnMaxLifetime     time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout" yaml:"write_timeout"`
	EnableReconnect     bool          `json:"enable_reconnect" yaml:"enable_reconnect"`
	ReconnectInterval   time.Duration `json:"reconnect_interval" yaml:"reconnect_interval"`
	MaxReconnectTries   int           `json:"max_reconnect_tries" yaml:"max_reconnect_tries"`
	HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval"`
	EnableQueryLog      bool          `json:"enable_query_log" yaml:"enable_query_log"`
	LogErrors           bool          `json:"log_errors" yaml:"log_errors"`
	SlowQueryTime       time.Duration `json:"slow_query_time" yaml:"slow_query_time"`
	Charset             string        `json:"charset" yaml:"charset"` // MySQL:utf8mb4
}

// ProvisionConfig controls what happens to the schema on startup. EnsureCreated
// and Migrate are mutually exclusive.
type ProvisionConfig struct {
	EnsureCreated      bool          `json:"ensure_created" yaml:"ensure_created"`
	EnsureDeleted      bool          `json:"ensure_deleted" yaml:"ensure_deleted"`
	Migrate            bool          `json:"migrate" yaml:"migrate"`
	MigrationsDir      string        `json:"migrations_dir" yaml:"migrations_dir"`
	EnableForeignKey   bool          `json:"enable_foreign_key" yaml:"enable_foreign_key"`
	ForeignKeyFile     string        `json:"foreign_key_file" yaml:"foreign_key_file"`
	SchemaMetaCacheTTL time.Duration `json:"schema_meta_cache_ttl" yaml:"schema_meta_cache_ttl"`
	SchemaMetaAuditLog bool          `json:"schema_meta_audit_log" yaml:"schema_meta_audit_log"`
}

// ConventionConfig toggles the shadow columns and global query filters.
type ConventionConfig = entity.Conventions

// DataInitConfig controls data seeding behavior and environment selection.
type DataInitConfig struct {
	AutoInitOnStartup   bool   `json:"auto_init_on_startup" yaml:"auto_init_on_startup"`
	AutoInitOnMigration bool   `json:"auto_init_on_migration" yaml:"auto_init_on_migration"`
	Filepath            string `json:"filepath" yaml:"filepath"`
	Environment         string `json:"environment" yaml:"environment"`
}

// Config aggregates connection, provisioning, convention and data
// initialization settings for one context.
type Config struct {
	Name             string           `json:"name" yaml:"name"`
	ConnectionConfig ConnectionConfig `json:"connection_config" yaml:"connection"`
	ProvisionConfig  ProvisionConfig  `json:"provision_config" yaml:"provision"`
	ConventionConfig ConventionConfig `json:"convention_config" yaml:"conventions"`
	DataInitConfig   DataInitConfig   `json:"data_init_config" yaml:"data_init"`
	MetricsConfig    MetricsConfig    `json:"metrics_config" yaml:"metrics"`

	// Models are provisioned together with the globally registered ones.
	Models []any `json:"-" yaml:"-"`
}

const (
	defaultContextName = "forge"
	defaultSQLPath     = "configs/sql"
	defaultEnvironment = "prod"
)

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     time.Minute * 30,
		ConnectTimeout:      time.Second * 10,
		ReadTimeout:         time.Second * 30,
		WriteTimeout:        time.Second * 30,
		EnableReconnect:     true,
		ReconnectInterval:   time.Second * 5,
		MaxReconnectTries:   3,
		HealthCheckInterval: time.Minute * 5,
		EnableQueryLog:      false,
		SlowQueryTime:       time.Second * 2,
	}
}

// DefaultConfig returns an in-memory configuration with every shadow column
// enabled, no query filters and no provisioning.
func DefaultConfig() *Config {
	conn := DefaultConnectionConfig()
	conn.Type = ProviderMemory
	return &Config{
		Name:             defaultContextName,
		ConnectionConfig: *conn,
		ProvisionConfig: ProvisionConfig{
			SchemaMetaCacheTTL: time.Minute * 5,
		},
		ConventionConfig: entity.DefaultConventions(),
		DataInitConfig: DataInitConfig{
			Filepath:    defaultSQLPath,
			Environment: defaultEnvironment,
		},
		MetricsConfig: MetricsConfig{Namespace: defaultContextName},
	}
}

// Validate checks the configuration before anything connects.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.ProvisionConfig.EnsureCreated && c.ProvisionConfig.Migrate {
		return ErrConflictingProvision
	}
	provider, err := ParseProvider(string(c.ConnectionConfig.Type))
	if err != nil {
		return err
	}
	if provider == ProviderSQLServer && strings.TrimSpace(c.ConnectionConfig.ConnectionString) == "" {
		return fmt.Errorf("%w: sqlserver requires a connection string", ErrMissingConnectionString)
	}
	switch strings.ToLower(c.ConnectionConfig.PostgresDriver) {
	case "", "pq", "postgres", "pgx":
	default:
		return fmt.Errorf("unsupported postgres driver: %s", c.ConnectionConfig.PostgresDriver)
	}
	return nil
}

// ContextName returns the configured name or the default one.
func (c *Config) ContextName() string {
	if c == nil || strings.TrimSpace(c.Name) == "" {
		return defaultContextName
	}
	return c.Name
}
