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
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/forge/entity"
)

type tenantModel struct {
	bun.BaseModel `bun:"table:tenants"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}

type customerModel struct {
	bun.BaseModel `bun:"table:customers"`
	entity.Tenant
	entity.Active
	entity.SoftDelete
	entity.FullAudited
	entity.Versioned

	ID    int64  `bun:"id,pk,autoincrement"`
	Email string `bun:"email,notnull"`
}

type ignoredModel struct {
	bun.BaseModel `bun:"table:ignored"`
	entity.NotMapped

	ID int64 `bun:"id,pk,autoincrement"`
}

// newMemoryConfig returns an in-memory config with a unique database name.
func newMemoryConfig(configure func(*Options)) *Config {
	cfg := Configure(func(o *Options) {
		o.WithName("db-"+uuid.NewString()).
			WithModels((*tenantModel)(nil), (*customerModel)(nil), (*ignoredModel)(nil))
		if configure != nil {
			configure(o)
		}
	})
	cfg.ConnectionConfig.HealthCheckInterval = 0
	cfg.ConnectionConfig.SlowQueryTime = 0
	return cfg
}

func newMemoryManager(t *testing.T, configure func(*Options)) AbstractDatabaseManager {
	t.Helper()
	m, err := NewDatabaseFactory().CreateFromConfig(newMemoryConfig(configure))
	require.NoError(t, err)
	m.SetLogger(NopLogger())
	require.NoError(t, m.Connect(context.Background()))
	t.Cleanup(func() { _ = m.Disconnect() })
	return m
}

func columnsOf(t *testing.T, db bun.IDB, table string) map[string]struct{} {
	t.Helper()
	cols, err := listExistingColumns(context.Background(), db, table)
	require.NoError(t, err)
	return cols
}
