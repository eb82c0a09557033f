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

package forge

import (
	"context"
	"fmt"
	"sync"

	"github.com/uptrace/bun"

	"github.com/tomoncle/forge/database"
	"github.com/tomoncle/forge/repository"
)

// Registration is a connected and provisioned database together with the
// settings every unit of work created from it shares.
type Registration struct {
	factory *database.BaseDatabaseFactory
	manager database.AbstractDatabaseManager
	logger  database.Logger
	extra   []repository.Option
	pool    sync.Pool
}

type Option func(*Registration)

// WithLogger replaces the global logger for the database and its units of
// work.
func WithLogger(logger database.Logger) Option {
	return func(r *Registration) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithContextOptions adds options applied to every unit of work, after the
// registration defaults.
func WithContextOptions(opts ...repository.Option) Option {
	return func(r *Registration) { r.extra = append(r.extra, opts...) }
}

// LoadContext validates cfg, connects and provisions the database as cfg
// asks for.
func LoadContext(ctx context.Context, cfg *database.Config, opts ...Option) (*Registration, error) {
	r := &Registration{
		factory: database.NewDatabaseFactory(),
		logger:  database.GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.factory.SetLogger(r.logger)

	manager, err := r.factory.CreateFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err := r.factory.InitializeDatabase(ctx, true); err != nil {
		_ = r.factory.Close()
		return nil, err
	}
	r.manager = manager
	r.pool.New = func() any { return r.Scoped() }
	return r, nil
}

// LoadInMemoryDatabase registers an in-memory database named name. Tables
// are created from the registered models unless configure asks for
// migrations instead.
func LoadInMemoryDatabase(ctx context.Context, name string, configure func(*database.Options), opts ...Option) (*Registration, error) {
	cfg := database.Configure(func(o *database.Options) {
		o.WithProvider(database.ProviderMemory).
			WithName(name).
			WithEnsureCreated(true)
		if configure != nil {
			configure(o)
		}
	})
	return LoadContext(ctx, cfg, opts...)
}

// LoadSQLServer registers a SQL Server database built by configure.
func LoadSQLServer(ctx context.Context, configure func(*database.SQLServerOptions), opts ...Option) (*Registration, error) {
	return LoadContext(ctx, database.ConfigureSQLServer(configure), opts...)
}

// SQLServerSettings is the flat settings object of a SQL Server context, as
// bound from a configuration section.
type SQLServerSettings struct {
	Name             string                     `json:"name" yaml:"name"`
	ConnectionString string                     `json:"connection_string" yaml:"connection_string"`
	LogErrors        bool                       `json:"log_errors" yaml:"log_errors"`
	EnsureCreated    bool                       `json:"ensure_created" yaml:"ensure_created"`
	EnsureDeleted    bool                       `json:"ensure_deleted" yaml:"ensure_deleted"`
	Migrate          bool                       `json:"migrate" yaml:"migrate"`
	Conventions      *database.ConventionConfig `json:"conventions,omitempty" yaml:"conventions,omitempty"`
}

// LoadSQLServerSettings registers a SQL Server database from settings.
// Conflicting provisioning flags are rejected before anything connects.
func LoadSQLServerSettings(ctx context.Context, settings *SQLServerSettings, opts ...Option) (*Registration, error) {
	if settings == nil {
		return nil, database.ErrNilConfig
	}
	cfg := database.ConfigureSQLServer(func(o *database.SQLServerOptions) {
		o.WithConnectionString(settings.ConnectionString).WithLogErrors(settings.LogErrors)
		if settings.Name != "" {
			o.WithName(settings.Name)
		}
		if settings.Conventions != nil {
			o.WithConventions(*settings.Conventions)
		}
		o.WithEnsureDeleted(settings.EnsureDeleted)
		prov := &o.Config().ProvisionConfig
		prov.EnsureCreated = settings.EnsureCreated
		prov.Migrate = settings.Migrate
	})
	return LoadContext(ctx, cfg, opts...)
}

// Scoped returns a new unit of work on the shared connection pool. It
// resolves the database through the manager, so it keeps working after a
// reconnect.
func (r *Registration) Scoped() *repository.Context {
	opts := []repository.Option{
		repository.WithResolver(r.manager.GetDB),
		repository.WithConventions(r.manager.Config().ConventionConfig),
		repository.WithLogger(r.logger),
		repository.WithMetrics(r.manager.Metrics()),
	}
	return repository.NewContext(r.manager.GetDB(), append(opts, r.extra...)...)
}

// Pooled returns a unit of work from the registration pool. Hand it back
// with Release once the request is done.
func (r *Registration) Pooled() *repository.Context {
	return r.pool.Get().(*repository.Context)
}

// Release resets c and returns it to the pool.
func (r *Registration) Release(c *repository.Context) {
	if c == nil {
		return
	}
	c.Reset()
	r.pool.Put(c)
}

// Attach stores a new scoped unit of work in ctx. Handlers get it back with
// repository.FromContext.
func (r *Registration) Attach(ctx context.Context) (context.Context, *repository.Context) {
	c := r.Scoped()
	return repository.WithContext(ctx, c), c
}

func (r *Registration) Manager() database.AbstractDatabaseManager { return r.manager }

func (r *Registration) DB() *bun.DB { return r.manager.GetDB() }

func (r *Registration) Config() *database.Config { return r.manager.Config() }

func (r *Registration) Health(ctx context.Context) *database.HealthStatus {
	return r.factory.GetHealthStatus(ctx)
}

func (r *Registration) Stats() *database.DBStats { return r.factory.GetStats() }

// Close disconnects the database. Units of work created from r must not be
// used afterwards.
func (r *Registration) Close() error { return r.factory.Close() }

var (
	defaultMu           sync.RWMutex
	defaultRegistration *Registration
)

// Register makes reg the process-wide registration and returns the one it
// replaces, which the caller still owns.
func Register(reg *Registration) *Registration {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	previous := defaultRegistration
	defaultRegistration = reg
	return previous
}

// Default returns the process-wide registration.
func Default() (*Registration, error) {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultRegistration == nil {
		return nil, fmt.Errorf("forge: no registration, call Register first")
	}
	return defaultRegistration, nil
}
