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

// Command forge provisions and inspects the database described by a forge
// settings file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tomoncle/forge/database"
)

type cli struct {
	configPath string
	envFile    string
	timeout    time.Duration
	out        io.Writer
}

// open loads the settings and connects without provisioning.
func (c *cli) open(ctx context.Context) (*database.BaseDatabaseFactory, error) {
	if c.envFile != "" {
		if err := database.LoadEnvFile(c.envFile); err != nil {
			return nil, err
		}
	}
	cfg := database.DefaultConfig()
	if c.configPath != "" {
		loaded, err := database.LoadConfigFile(c.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ConnectionConfig.HealthCheckInterval = 0

	factory := database.NewDatabaseFactory()
	if _, err := factory.CreateFromConfig(cfg); err != nil {
		return nil, err
	}
	if err := factory.InitializeDatabase(ctx, false); err != nil {
		_ = factory.Close()
		return nil, err
	}
	return factory, nil
}

// run opens the database, calls fn and closes it again.
func (c *cli) run(fn func(ctx context.Context, m database.AbstractDatabaseManager) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	factory, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = factory.Close() }()
	return fn(ctx, factory.GetManager())
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out, timeout: 2 * time.Minute}

	root := &cobra.Command{
		Use:           "forge",
		Short:         "Provision and inspect a forge database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", envOr("FORGE_CONFIG", ""), "YAML settings file (env FORGE_CONFIG)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", ".env file loaded before DB_* overrides")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", c.timeout, "Timeout of the whole command")

	provisionCmd := &cobra.Command{
		Use:   "provision",
		Short: "Create or migrate the schema as configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(func(ctx context.Context, m database.AbstractDatabaseManager) error {
				if err := m.Provision(ctx); err != nil {
					return err
				}
				prov := m.Config().ProvisionConfig
				fmt.Fprintf(c.out, "provisioned %s (ensure_created=%t migrate=%t)\n",
					m.Config().ContextName(), prov.EnsureCreated, prov.Migrate)
				return nil
			})
		},
	}

	dropCmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop the registered tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(func(ctx context.Context, m database.AbstractDatabaseManager) error {
				if err := m.EnsureDeleted(ctx); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "dropped %s\n", m.Config().ContextName())
				return nil
			})
		},
	}

	migrationsCmd := &cobra.Command{
		Use:   "migrations",
		Short: "List applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(func(ctx context.Context, m database.AbstractDatabaseManager) error {
				applied, err := m.AppliedMigrations(ctx)
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Fprintln(c.out, "no migrations applied")
					return nil
				}
				for _, mg := range applied {
					fmt.Fprintf(c.out, "%s\t%s\t%s\n", mg.Version, mg.Name, mg.AppliedAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Print the health of the database as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(func(ctx context.Context, m database.AbstractDatabaseManager) error {
				report := struct {
					RequestID string                 `yaml:"request_id"`
					Context   string                 `yaml:"context"`
					Status    *database.HealthStatus `yaml:"status"`
					Stats     *database.DBStats      `yaml:"stats"`
				}{
					RequestID: uuid.NewString(),
					Context:   m.Config().ContextName(),
					Status:    m.HealthCheck(ctx),
					Stats:     m.GetStats(),
				}
				enc := yaml.NewEncoder(c.out)
				defer enc.Close()
				if err := enc.Encode(report); err != nil {
					return err
				}
				if !report.Status.Healthy {
					return fmt.Errorf("database %s is unhealthy: %s", report.Context, report.Status.LastError)
				}
				return nil
			})
		},
	}

	root.AddCommand(provisionCmd, dropCmd, migrationsCmd, healthCmd)
	return root
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
