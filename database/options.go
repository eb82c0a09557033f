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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Options builds a Config fluently, starting from DefaultConfig.
type Options struct {
	config *Config
}

func NewOptions() *Options { return &Options{config: DefaultConfig()} }

// Config returns the configuration built so far.
func (o *Options) Config() *Config { return o.config }

func (o *Options) WithName(name string) *Options {
	o.config.Name = name
	return o
}

func (o *Options) WithProvider(p Provider) *Options {
	o.config.ConnectionConfig.Type = p
	return o
}

// WithEnsureCreated turns EnsureCreated on or off and Migrate the other way.
func (o *Options) WithEnsureCreated(enabled bool) *Options {
	o.config.ProvisionConfig.EnsureCreated = enabled
	o.config.ProvisionConfig.Migrate = !enabled
	return o
}

// WithMigrate turns Migrate on or off and EnsureCreated the other way.
func (o *Options) WithMigrate(enabled bool) *Options {
	o.config.ProvisionConfig.Migrate = enabled
	o.config.ProvisionConfig.EnsureCreated = !enabled
	return o
}

func (o *Options) WithEnsureDeleted(enabled bool) *Options {
	o.config.ProvisionConfig.EnsureDeleted = enabled
	return o
}

func (o *Options) WithMigrationsDir(dir string) *Options {
	o.config.ProvisionConfig.MigrationsDir = dir
	return o
}

func (o *Options) WithLogErrors(enabled bool) *Options {
	o.config.ConnectionConfig.LogErrors = enabled
	return o
}

func (o *Options) WithQueryLog(enabled bool) *Options {
	o.config.ConnectionConfig.EnableQueryLog = enabled
	return o
}

func (o *Options) WithConnectionString(dsn string) *Options {
	o.config.ConnectionConfig.ConnectionString = dsn
	return o
}

func (o *Options) WithConventions(conv ConventionConfig) *Options {
	o.config.ConventionConfig = conv
	return o
}

// WithModels adds models to provision next to the registered ones.
func (o *Options) WithModels(models ...any) *Options {
	o.config.Models = append(o.config.Models, models...)
	return o
}

// WithMetrics enables the prometheus collectors on reg, or on the default
// registerer when reg is nil.
func (o *Options) WithMetrics(reg prometheus.Registerer) *Options {
	o.config.MetricsConfig.Enabled = true
	o.config.MetricsConfig.Registerer = reg
	return o
}

// SQLServerOptions builds a SQL Server configuration.
type SQLServerOptions struct {
	*Options
}

func NewSQLServerOptions() *SQLServerOptions {
	o := NewOptions()
	o.config.ConnectionConfig.Type = ProviderSQLServer
	return &SQLServerOptions{Options: o}
}

func (o *SQLServerOptions) WithConnectionString(dsn string) *SQLServerOptions {
	o.Options.WithConnectionString(dsn)
	return o
}

func (o *SQLServerOptions) WithLogErrors(enabled bool) *SQLServerOptions {
	o.Options.WithLogErrors(enabled)
	return o
}

// WithPool sets the connection pool limits.
func (o *SQLServerOptions) WithPool(maxOpen, maxIdle int, maxLifetime time.Duration) *SQLServerOptions {
	conn := &o.config.ConnectionConfig
	conn.MaxOpenConns = maxOpen
	conn.MaxIdleConns = maxIdle
	conn.ConnMaxLifetime = maxLifetime
	return o
}

func (o *SQLServerOptions) WithConnectTimeout(d time.Duration) *SQLServerOptions {
	o.config.ConnectionConfig.ConnectTimeout = d
	return o
}

// Configure returns DefaultConfig adjusted by configure.
func Configure(configure func(*Options)) *Config {
	o := NewOptions()
	if configure != nil {
		configure(o)
	}
	return o.config
}

// ConfigureSQLServer returns a SQL Server config adjusted by configure.
func ConfigureSQLServer(configure func(*SQLServerOptions)) *Config {
	o := NewSQLServerOptions()
	if configure != nil {
		configure(o)
	}
	return o.config
}
