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
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/forge/entity"
)

func TestEnsureCreatedAddsShadowColumns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newMemoryManager(t, nil)

	require.NoError(t, m.EnsureCreated(ctx))

	cols := columnsOf(t, m.GetDB(), "customers")
	for _, name := range []string{
		"id", "email", entity.ColumnRowVersion,
		entity.ColumnTenantID, entity.ColumnIsActive, entity.ColumnIsDelete,
		entity.ColumnCreatedDate, entity.ColumnCreatedUserID,
		entity.ColumnModifiedDate, entity.ColumnModifiedUserID,
		entity.ColumnDeletedDate, entity.ColumnDeletedUserID,
	} {
		assert.Contains(t, cols, name)
	}
	assert.Equal(t, map[string]struct{}{"id": {}, "name": {}}, columnsOf(t, m.GetDB(), "tenants"))
	assert.Empty(t, columnsOf(t, m.GetDB(), "ignored"), "not mapped models are skipped")

	// a second run finds everything in place
	require.NoError(t, m.EnsureCreated(ctx))
}

func TestEnsureCreatedHonoursShadowToggles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newMemoryManager(t, func(o *Options) {
		conv := entity.DefaultConventions()
		conv.AuditedShadow = false
		conv.TenantShadow = false
		o.WithConventions(conv)
	})

	require.NoError(t, m.EnsureCreated(ctx))

	cols := columnsOf(t, m.GetDB(), "customers")
	assert.Contains(t, cols, entity.ColumnIsActive)
	assert.NotContains(t, cols, entity.ColumnTenantID)
	assert.NotContains(t, cols, entity.ColumnCreatedDate)
}

func TestEnsureDeletedDropsTables(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newMemoryManager(t, nil)

	require.NoError(t, m.EnsureCreated(ctx))
	require.NoError(t, m.EnsureDeleted(ctx))
	assert.Empty(t, columnsOf(t, m.GetDB(), "customers"))

	// dropped tables are forgotten by the column cache
	require.NoError(t, m.EnsureCreated(ctx))
	assert.Contains(t, columnsOf(t, m.GetDB(), "customers"), entity.ColumnIsDelete)
}

func TestProvisionWithMigrate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newMemoryManager(t, func(o *Options) {
		o.WithMigrate(true)
		o.Config().ProvisionConfig.EnableForeignKey = true
		o.Config().ConventionConfig.TenantTable = "tenants"
	})

	applied, err := m.AppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	require.NoError(t, m.Provision(ctx))
	require.NoError(t, m.Provision(ctx), "applied versions are skipped")

	applied, err = m.AppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "001", applied[0].Version)
	assert.Equal(t, "create_base_tables", applied[0].Name)
	assert.Equal(t, "002", applied[1].Version)
	assert.Contains(t, columnsOf(t, m.GetDB(), "customers"), entity.ColumnTenantID)
}

func TestProvisionRejectsConflictingFlags(t *testing.T) {
	t.Parallel()
	m := newMemoryManager(t, nil)
	m.Config().ProvisionConfig.EnsureCreated = true
	m.Config().ProvisionConfig.Migrate = true

	assert.ErrorIs(t, m.Provision(context.Background()), ErrConflictingProvision)
}

func TestProvisionSeedsFromTemplates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := t.TempDir()
	writeSQL(t, filepath.Join(root, "common", "002_second.sql"),
		"INSERT INTO tenants (name) VALUES ('second');")
	writeSQL(t, filepath.Join(root, "common", "001_first.sql"),
		"-- first tenant\nINSERT INTO tenants (name)\nVALUES ('first');")
	writeSQL(t, filepath.Join(root, "environments", "test", "001_env.sql"),
		"INSERT INTO tenants (name) VALUES ('{{.ENVIRONMENT}}');")

	m := newMemoryManager(t, func(o *Options) {
		o.WithMigrate(true)
		o.Config().DataInitConfig = DataInitConfig{
			AutoInitOnMigration: true,
			Filepath:            root,
			Environment:         "test",
		}
	})
	require.NoError(t, m.Provision(ctx))

	var names []string
	require.NoError(t, m.GetDB().NewSelect().Table("tenants").Column("name").Order("id ASC").Scan(ctx, &names))
	assert.Equal(t, []string{"first", "second", "test"}, names)

	applied, err := m.AppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "003", applied[1].Version)
}

func TestFileMigrations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	writeSQL(t, filepath.Join(dir, "000001_create_notes.up.sql"),
		"CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL);")
	writeSQL(t, filepath.Join(dir, "000001_create_notes.down.sql"),
		"DROP TABLE notes;")

	m := newMemoryManager(t, func(o *Options) {
		o.WithMigrate(true).WithMigrationsDir(dir)
	})
	require.NoError(t, m.Provision(ctx))
	assert.Contains(t, columnsOf(t, m.GetDB(), "notes"), "body")

	fm := NewFileMigrator(m.GetSQLDB(), ProviderMemory, dir, nil)
	version, dirty, err := fm.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	require.NoError(t, fm.Down())
	assert.Empty(t, columnsOf(t, m.GetDB(), "notes"))
}

func TestHealthCheckAndStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newMemoryManager(t, nil)

	status := m.HealthCheck(ctx)
	assert.True(t, status.Healthy)
	assert.True(t, status.Connected)
	assert.Equal(t, ProviderMemory, status.Provider)
	assert.Equal(t, 1, status.MaxOpenConns)

	stats := m.GetStats()
	assert.Equal(t, 1, stats.MaxOpenConns)

	require.NoError(t, m.Disconnect())
	status = m.HealthCheck(ctx)
	assert.False(t, status.Healthy)
	assert.ErrorIs(t, m.EnsureCreated(ctx), ErrNotConnected)
}

func TestMetricsCountQueries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := newMemoryManager(t, func(o *Options) { o.WithMetrics(reg) })

	require.NoError(t, m.EnsureCreated(ctx))
	_, err := m.GetDB().NewSelect().Table("missing_table").Exists(ctx)
	require.Error(t, err)

	metrics := m.Metrics()
	require.NotNil(t, metrics)
	assert.Positive(t, testutil.ToFloat64(metrics.queries.WithLabelValues("create table")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.errors.WithLabelValues("select", NoTableErr.String())))

	metrics.ObserveSave(SaveConflict)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.saves.WithLabelValues(SaveConflict)))

	again, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: defaultContextName, Registerer: reg})
	require.NoError(t, err, "collectors are reused")
	assert.Same(t, metrics.saves, again.saves)

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.ObserveSave(SaveCommitted) })
}

func TestGlobalDatabase(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { _ = CloseDB() })

	assert.False(t, GetHealthStatus(ctx).Healthy)
	assert.Error(t, RunMigrations(ctx))

	cfg := newMemoryConfig(func(o *Options) { o.WithEnsureCreated(true) })
	db, err := InitDB(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, db)
	assert.Same(t, db, GetDB())
	assert.Contains(t, columnsOf(t, db, "customers"), entity.ColumnIsActive)
	assert.True(t, GetHealthStatus(ctx).Healthy)
	assert.Equal(t, 1, GetDatabaseStats().MaxOpenConns)

	require.NoError(t, CloseDB())
	assert.Nil(t, GetDB())
}

func writeSQL(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}
