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
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/extra/bundebug"
)

type defaultDatabaseManager struct {
	config          *Config
	db              *bun.DB
	sqlDB           *sql.DB
	schema          *SchemaManager
	metrics         *Metrics
	logger          Logger
	mu              sync.RWMutex
	connected       bool
	lastError       error
	lastHealthCheck time.Time
	healthStatus    *HealthStatus
	reconnectTries  int
	stopHealthCheck chan struct{}
}

// NewDatabaseManager returns an AbstractDatabaseManager backed by Bun.
// A nil config means DefaultConfig.
func NewDatabaseManager(config *Config) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConfig()
	}
	return &defaultDatabaseManager{
		config:       config,
		logger:       NopLogger(),
		healthStatus: &HealthStatus{},
	}
}

func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.connected && dm.db != nil {
		return nil
	}

	conn := &dm.config.ConnectionConfig
	if conn.ConnectTimeout <= 0 {
		conn.ConnectTimeout = 30 * time.Second
	}

	sqlDB, db, err := openConnection(dm.config.ContextName(), conn)
	if err != nil {
		dm.lastError = err
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	configurePool(sqlDB, conn)

	ctxTimeout, cancel := context.WithTimeout(ctx, conn.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctxTimeout); err != nil {
		_ = db.Close()
		dm.lastError = err
		return fmt.Errorf("database connection test failed: %w", err)
	}

	if err := dm.installHooks(db); err != nil {
		_ = db.Close()
		dm.lastError = err
		return err
	}
	if models := dm.config.AllModels(); len(models) > 0 {
		db.RegisterModel(models...)
	}

	dm.sqlDB, dm.db = sqlDB, db
	dm.schema = NewSchemaManager(db, dm.logger, dm.config.ConventionConfig, dm.config.ProvisionConfig.SchemaMetaCacheTTL)
	dm.schema.auditLog = dm.config.ProvisionConfig.SchemaMetaAuditLog
	dm.connected = true
	dm.lastError = nil
	dm.reconnectTries = 0

	if conn.HealthCheckInterval > 0 {
		dm.startHealthCheck()
	}

	dm.logger.Info("Database connected successfully", "provider", conn.Type, "context", dm.config.ContextName(), "host", conn.Host)
	return nil
}

func (dm *defaultDatabaseManager) installHooks(db *bun.DB) error {
	conn := dm.config.ConnectionConfig
	if conn.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if conn.LogErrors {
		db.AddQueryHook(NewQueryHook())
	}
	if conn.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(conn.SlowQueryTime, dm.logger))
	}
	if dm.config.MetricsConfig.Enabled {
		if dm.metrics == nil {
			m, err := NewMetrics(dm.config.MetricsConfig)
			if err != nil {
				return fmt.Errorf("failed to register metrics: %w", err)
			}
			dm.metrics = m
		}
		db.AddQueryHook(dm.metrics)
	}
	return nil
}

func (dm *defaultDatabaseManager) Disconnect() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.stopHealthCheck != nil {
		close(dm.stopHealthCheck)
		dm.stopHealthCheck = nil
	}

	if dm.db == nil {
		return nil
	}
	err := dm.db.Close()
	dm.db = nil
	dm.sqlDB = nil
	dm.schema = nil
	dm.connected = false

	if err != nil {
		dm.logger.Error("Failed to close database connection", "error", err)
	} else {
		dm.logger.Info("Database connection closed", "context", dm.config.ContextName())
	}
	return err
}

func (dm *defaultDatabaseManager) Reconnect(ctx context.Context) error {
	dm.logger.Info("Attempting to reconnect to the database")

	if err := dm.Disconnect(); err != nil {
		dm.logger.Warn("Error disconnecting existing connection", "error", err)
	}

	if err := dm.Connect(ctx); err != nil {
		return err
	}
	// Closing the last connection drops an in-memory database.
	if dm.config.ConnectionConfig.Type == ProviderMemory {
		return dm.Provision(ctx)
	}
	return nil
}

func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	dm.mu.RLock()
	db := dm.db
	dm.mu.RUnlock()

	if db == nil {
		return ErrNotConnected
	}

	return db.PingContext(ctx)
}

func (dm *defaultDatabaseManager) GetDB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

func (dm *defaultDatabaseManager) GetSQLDB() *sql.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.sqlDB
}

func (dm *defaultDatabaseManager) Config() *Config { return dm.config }

func (dm *defaultDatabaseManager) Metrics() *Metrics {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.metrics
}

func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	start := time.Now()
	status := &HealthStatus{
		LastCheckTime: start,
		Connected:     dm.connected,
		Provider:      dm.config.ConnectionConfig.Type,
	}

	if dm.db == nil {
		status.Healthy = false
		status.LastError = "Database not initialized"
		return status
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	err := dm.db.PingContext(ctxTimeout)
	status.ResponseTime = time.Since(start)

	if err != nil {
		status.Healthy = false
		status.Connected = false
		status.LastError = err.Error()
		dm.lastError = err
	} else {
		status.Healthy = true
		status.Connected = true
		dm.lastError = nil
	}

	if dm.sqlDB != nil {
		stats := dm.sqlDB.Stats()
		status.ActiveConns = stats.InUse
		status.IdleConns = stats.Idle
		status.MaxOpenConns = stats.MaxOpenConnections
	}

	dm.healthStatus = status
	dm.lastHealthCheck = start

	return status
}

// startHealthCheck must be called with dm.mu held.
func (dm *defaultDatabaseManager) startHealthCheck() {
	stop := make(chan struct{})
	dm.stopHealthCheck = stop
	interval := dm.config.ConnectionConfig.HealthCheckInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
				status := dm.HealthCheck(ctx)
				cancel()
				if !status.Healthy && dm.config.ConnectionConfig.EnableReconnect {
					dm.handleReconnect()
				}
			case <-stop:
				return
			}
		}
	}()
}

func (dm *defaultDatabaseManager) handleReconnect() {
	conn := dm.config.ConnectionConfig
	if dm.reconnectTries >= conn.MaxReconnectTries {
		dm.logger.Error("Max reconnect attempts reached, stopping", "tries", dm.reconnectTries)
		return
	}

	dm.reconnectTries++
	dm.logger.Info("Starting database reconnect", "try", dm.reconnectTries)

	time.Sleep(conn.ReconnectInterval)

	ctx, cancel := context.WithTimeout(context.Background(), conn.ConnectTimeout)
	defer cancel()

	if err := dm.Reconnect(ctx); err != nil {
		dm.logger.Error("Reconnect failed", "error", err, "try", dm.reconnectTries)
	} else {
		dm.reconnectTries = 0
		dm.logger.Info("Reconnect succeeded")
	}
}

func (dm *defaultDatabaseManager) GetStats() *DBStats {
	dm.mu.RLock()
	sqlDB := dm.sqlDB
	dm.mu.RUnlock()

	if sqlDB == nil {
		return &DBStats{}
	}

	stats := sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

// Provision runs the configured steps: EnsureDeleted first, then either
// EnsureCreated or Migrate, then startup seeding.
func (dm *defaultDatabaseManager) Provision(ctx context.Context) error {
	p := dm.config.ProvisionConfig
	if p.EnsureCreated && p.Migrate {
		return ErrConflictingProvision
	}
	if p.EnsureDeleted {
		if err := dm.EnsureDeleted(ctx); err != nil {
			return err
		}
	}
	switch {
	case p.EnsureCreated:
		if err := dm.EnsureCreated(ctx); err != nil {
			return err
		}
	case p.Migrate:
		if err := dm.RunMigrations(ctx); err != nil {
			return err
		}
	}
	if dm.config.DataInitConfig.AutoInitOnStartup {
		return dm.InitData(ctx)
	}
	return nil
}

func (dm *defaultDatabaseManager) schemaManager() (*SchemaManager, error) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if dm.db == nil || dm.schema == nil {
		return nil, ErrNotConnected
	}
	return dm.schema, nil
}

// EnsureCreated creates the tables of every model, with their shadow columns,
// when they do not exist yet.
func (dm *defaultDatabaseManager) EnsureCreated(ctx context.Context) error {
	sm, err := dm.schemaManager()
	if err != nil {
		return err
	}
	if err := sm.CreateTables(ctx, sm.db, dm.config.AllModels()); err != nil {
		return fmt.Errorf("ensure created failed: %w", err)
	}
	dm.logger.Info("Database schema ensured", "context", dm.config.ContextName())
	return nil
}

// EnsureDeleted drops the tables of every model.
func (dm *defaultDatabaseManager) EnsureDeleted(ctx context.Context) error {
	sm, err := dm.schemaManager()
	if err != nil {
		return err
	}
	if err := sm.DropTables(ctx, sm.db, dm.config.AllModels()); err != nil {
		return fmt.Errorf("ensure deleted failed: %w", err)
	}
	dm.logger.Info("Database schema dropped", "context", dm.config.ContextName())
	return nil
}

func (dm *defaultDatabaseManager) RunMigrations(ctx context.Context) error {
	sm, err := dm.schemaManager()
	if err != nil {
		return err
	}
	if err := NewMigrationManager(sm, dm.config, dm.logger).RunMigrations(ctx); err != nil {
		return err
	}
	if dir := dm.config.ProvisionConfig.MigrationsDir; dir != "" {
		fm := NewFileMigrator(dm.GetSQLDB(), dm.config.ConnectionConfig.Type, dir, dm.logger)
		if err := fm.Up(); err != nil {
			return err
		}
	}
	return nil
}

func (dm *defaultDatabaseManager) AppliedMigrations(ctx context.Context) ([]Migration, error) {
	sm, err := dm.schemaManager()
	if err != nil {
		return nil, err
	}
	return NewMigrationManager(sm, dm.config, dm.logger).GetAppliedMigrations(ctx)
}

func (dm *defaultDatabaseManager) InitData(ctx context.Context) error {
	sm, err := dm.schemaManager()
	if err != nil {
		return err
	}
	return NewMigrationManager(sm, dm.config, dm.logger).InitData(ctx)
}

func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.logger = loggerOrNop(logger)
	if dm.schema != nil {
		dm.schema.logger = dm.logger
	}
}
