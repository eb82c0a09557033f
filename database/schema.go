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
	"reflect"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/forge/entity"
)

// SchemaManager creates and drops model tables and provisions the shadow
// columns the conventions require. Column listings are cached per table.
type SchemaManager struct {
	db          *bun.DB
	logger      Logger
	conventions ConventionConfig
	columns     *gocache.Cache
	auditLog    bool
}

func NewSchemaManager(db *bun.DB, logger Logger, conv ConventionConfig, ttl time.Duration) *SchemaManager {
	if ttl <= 0 {
		ttl = time.Minute * 5
	}
	return &SchemaManager{
		db:          db,
		logger:      loggerOrNop(logger),
		conventions: conv,
		columns:     gocache.New(ttl, ttl*2),
	}
}

func (s *SchemaManager) DB() *bun.DB { return s.db }

// Table returns bun's metadata for model.
func (s *SchemaManager) Table(model any) *schema.Table {
	return s.db.Table(modelType(model))
}

func modelType(model any) reflect.Type {
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	return t
}

// CreateTables creates missing tables in slice order, then adds their
// missing shadow columns.
func (s *SchemaManager) CreateTables(ctx context.Context, idb bun.IDB, models []any) error {
	for _, model := range models {
		if entity.Capabilities(model).Has(entity.CapNotMapped) {
			continue
		}
		if _, err := idb.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			if is, kind := IsSqlError(err); !is || kind != ExistTableErr {
				return fmt.Errorf("failed to create table %T: %w", model, err)
			}
		}
		if err := s.EnsureShadowColumns(ctx, idb, model); err != nil {
			return err
		}
	}
	return nil
}

// DropTables drops tables in reverse slice order.
func (s *SchemaManager) DropTables(ctx context.Context, idb bun.IDB, models []any) error {
	for i := len(models) - 1; i >= 0; i-- {
		model := models[i]
		if entity.Capabilities(model).Has(entity.CapNotMapped) {
			continue
		}
		if _, err := idb.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table %T: %w", model, err)
		}
		s.Invalidate(s.Table(model).Name)
	}
	return nil
}

// EnsureShadowColumns adds the shadow columns of model that the table lacks.
func (s *SchemaManager) EnsureShadowColumns(ctx context.Context, idb bun.IDB, model any) error {
	cols := entity.ShadowColumns(entity.Capabilities(model), s.conventions)
	if len(cols) == 0 {
		return nil
	}
	table := s.Table(model).Name
	existing, err := s.ExistingColumns(ctx, idb, table)
	if err != nil {
		return fmt.Errorf("failed to list columns of %s: %w", table, err)
	}

	added := 0
	for _, col := range cols {
		if _, ok := existing[strings.ToLower(col.Name)]; ok {
			continue
		}
		query, args := buildAddColumnSQL(idb.Dialect().Name(), table, col)
		if _, err := idb.ExecContext(ctx, query, args...); err != nil {
			if is, kind := IsSqlError(err); is && kind == ExistColumnErr {
				continue
			}
			return fmt.Errorf("failed to add shadow column %s.%s: %w", table, col.Name, err)
		}
		added++
	}
	if added > 0 {
		s.Invalidate(table)
		s.logger.Debug("Shadow columns added", "table", table, "count", added)
	}
	return nil
}

// ExistingColumns returns the lower-cased column names of table.
func (s *SchemaManager) ExistingColumns(ctx context.Context, idb bun.IDB, table string) (map[string]struct{}, error) {
	key := strings.ToLower(table)
	if v, ok := s.columns.Get(key); ok {
		return v.(map[string]struct{}), nil
	}
	cols, err := listExistingColumns(ctx, idb, table)
	if err != nil {
		return nil, err
	}
	s.columns.SetDefault(key, cols)
	if s.auditLog {
		s.logger.Info("Schema metadata cache refreshed", "table", table, "columns", len(cols))
	}
	return cols, nil
}

// HasColumn reports whether table has column.
func (s *SchemaManager) HasColumn(ctx context.Context, idb bun.IDB, table, column string) (bool, error) {
	cols, err := s.ExistingColumns(ctx, idb, table)
	if err != nil {
		return false, err
	}
	_, ok := cols[strings.ToLower(column)]
	return ok, nil
}

func (s *SchemaManager) Invalidate(table string) {
	s.columns.Delete(strings.ToLower(table))
}

func listExistingColumns(ctx context.Context, idb bun.IDB, table string) (map[string]struct{}, error) {
	var (
		rows *sql.Rows
		err  error
	)
	name := idb.Dialect().Name()
	switch name {
	case dialect.PG:
		rows, err = idb.QueryContext(ctx, `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ?`, table)
	case dialect.MySQL:
		rows, err = idb.QueryContext(ctx, `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`, table)
	case dialect.MSSQL:
		rows, err = idb.QueryContext(ctx, `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = ?`, table)
	default:
		rows, err = idb.QueryContext(ctx, `PRAGMA table_info(?)`, bun.Ident(table))
	}
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	cols := make(map[string]struct{})
	for rows.Next() {
		var col string
		switch name {
		case dialect.PG, dialect.MySQL, dialect.MSSQL:
			if err := rows.Scan(&col); err != nil {
				return nil, err
			}
		default:
			var (
				cid, notnull, pk int
				typ              string
				def              sql.NullString
			)
			if err := rows.Scan(&cid, &col, &typ, &notnull, &def, &pk); err != nil {
				return nil, err
			}
		}
		cols[strings.ToLower(col)] = struct{}{}
	}
	return cols, rows.Err()
}

// buildAddColumnSQL returns an ALTER TABLE statement with bun placeholders
// for the identifiers.
func buildAddColumnSQL(name dialect.Name, table string, col entity.Column) (string, []any) {
	var b strings.Builder
	b.WriteString("ALTER TABLE ? ADD ")
	if name != dialect.MSSQL {
		b.WriteString("COLUMN ")
	}
	b.WriteString("? ")
	b.WriteString(shadowColumnType(name, col.Kind))
	if col.NotNull {
		b.WriteString(" NOT NULL")
	}
	if col.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(boolLiteral(name, col.Default == "true"))
	}
	return b.String(), []any{bun.Ident(table), bun.Ident(col.Name)}
}

func shadowColumnType(name dialect.Name, kind entity.ColumnKind) string {
	switch kind {
	case entity.KindBool:
		switch name {
		case dialect.MySQL:
			return "tinyint(1)"
		case dialect.PG:
			return "boolean"
		case dialect.MSSQL:
			return "bit"
		default:
			return "BOOLEAN"
		}
	case entity.KindTime:
		switch name {
		case dialect.MySQL:
			return "datetime(6)"
		case dialect.PG:
			return "timestamptz"
		case dialect.MSSQL:
			return "datetime2"
		default:
			return "TIMESTAMP"
		}
	default:
		switch name {
		case dialect.MySQL:
			return "varchar(255)"
		case dialect.PG:
			return "text"
		case dialect.MSSQL:
			return "nvarchar(255)"
		default:
			return "TEXT"
		}
	}
}

func boolLiteral(name dialect.Name, v bool) string {
	switch {
	case name == dialect.MSSQL && v:
		return "1"
	case name == dialect.MSSQL:
		return "0"
	case v:
		return "TRUE"
	default:
		return "FALSE"
	}
}

func (s *SchemaManager) tableExists(ctx context.Context, idb bun.IDB, model any) (bool, error) {
	cols, err := listExistingColumns(ctx, idb, s.Table(model).Name)
	if err != nil {
		return false, err
	}
	return len(cols) > 0, nil
}
