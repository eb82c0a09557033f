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

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/forge/database"
	"github.com/tomoncle/forge/entity"
	"github.com/tomoncle/forge/session"
	"github.com/tomoncle/forge/types"
)

type address struct {
	City   string `bun:"city"`
	Street string `bun:"street"`
}

type customer struct {
	bun.BaseModel `bun:"table:customers,alias:c"`
	entity.Tenant
	entity.Active
	entity.SoftDelete
	entity.FullAudited
	entity.Versioned

	ID      int64        `bun:"id,pk,autoincrement"`
	Name    string       `bun:"name,notnull"`
	Email   types.Email  `bun:"email"`
	Status  types.Status `bun:"status"`
	Address address      `bun:"embed:address_"`
	Static  bool         `bun:"is_static,notnull"`
}

func (c *customer) IsStatic() bool { return c.Static }

type note struct {
	bun.BaseModel `bun:"table:notes,alias:n"`

	ID    int64  `bun:"id,pk,autoincrement"`
	Title string `bun:"title,notnull"`
	Slug  string `bun:"slug,unique,nullzero"`
}

var testEpoch = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	db        *bun.DB
	uow       *Context
	ctx       context.Context
	customers Repository[customer]
	notes     Repository[note]
}

func newTestDB(t *testing.T, conv entity.Conventions) *bun.DB {
	t.Helper()
	cfg := database.Configure(func(o *database.Options) {
		o.WithName("repo-"+uuid.NewString()).
			WithConventions(conv).
			WithEnsureCreated(true).
			WithModels((*customer)(nil), (*note)(nil))
	})
	cfg.ConnectionConfig.HealthCheckInterval = 0
	cfg.ConnectionConfig.SlowQueryTime = 0

	m, err := database.NewDatabaseFactory().CreateFromConfig(cfg)
	require.NoError(t, err)
	m.SetLogger(database.NopLogger())
	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))
	t.Cleanup(func() { _ = m.Disconnect() })
	require.NoError(t, m.Provision(ctx))
	return m.GetDB()
}

func newFixture(t *testing.T, conv entity.Conventions, opts ...Option) *fixture {
	t.Helper()
	db := newTestDB(t, conv)
	opts = append([]Option{
		WithConventions(conv),
		WithClock(func() time.Time { return testEpoch }),
	}, opts...)
	uow := NewContext(db, opts...)
	return &fixture{
		db:        db,
		uow:       uow,
		ctx:       session.With(context.Background(), "tenant-a", "user-1"),
		customers: NewRepository[customer](uow),
		notes:     NewRepository[note](uow),
	}
}

// seed saves the customers through the unit of work in ctx.
func (f *fixture) seed(t *testing.T, ctx context.Context, items ...*customer) {
	t.Helper()
	require.NoError(t, f.customers.Add(items...))
	require.NoError(t, f.uow.Save(ctx))
}

func mustEmail(t *testing.T, s string) types.Email {
	t.Helper()
	e, err := types.NewEmail(s)
	require.NoError(t, err)
	return e
}

// truthy reads a boolean column the way either sqlite driver returns it.
func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case []byte:
		return string(b) == "1" || string(b) == "true"
	case string:
		return b == "1" || b == "true"
	default:
		return false
	}
}

func text(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}
