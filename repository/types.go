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
	"database/sql"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/forge/database"
	"github.com/tomoncle/forge/tracker"
	"github.com/tomoncle/forge/types"
)

// UnitOfWork tracks changes and writes them in one transaction.
type UnitOfWork interface {
	Save(ctx context.Context, opts ...SaveOption) error
	SaveWithTransaction(ctx context.Context, level sql.IsolationLevel, opts ...SaveOption) error
	OpenTransaction(ctx context.Context, level sql.IsolationLevel) error
	CommitTransaction() error
	RollbackTransaction() error
	HasTransaction() bool
	Reset()

	IDB() bun.IDB
	Conventions() database.ConventionConfig
	Add(entities ...any) error
	Update(entities ...any) error
	Remove(entities ...any) error
	Entry(e any) *tracker.Entry
	ChangeTracker() *tracker.ChangeTracker
}

var _ UnitOfWork = (*Context)(nil)

// ReadRepository defines the reads of a repository. Every read applies the
// enabled global filters unless IgnoreFilters is passed.
type ReadRepository[T any] interface {
	GetOne(ctx context.Context, opts ...QueryOption) (*T, error)
	GetAll(ctx context.Context, opts ...QueryOption) ([]*T, error)
	Find(ctx context.Context, key any, opts ...QueryOption) (*T, error)
	Any(ctx context.Context, opts ...QueryOption) (bool, error)
	Count(ctx context.Context, opts ...QueryOption) (int, error)
	GetPaged(ctx context.Context, property string, paged *types.PagedOptions, opts ...QueryOption) (*types.Pagination[T], error)
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
	Shadow(ctx context.Context, key any) (map[string]any, error)
}

// WriteRepository defines the writes of a repository. They are tracked by
// the unit of work and persisted by its Save.
type WriteRepository[T any] interface {
	Add(items ...*T) error
	AddRange(items []*T) error
	Update(ctx context.Context, key any, item *T) (*T, error)
	UpdatePartial(ctx context.Context, key any, values any) (*T, error)
	Delete(ctx context.Context, key any) error
	DeleteWhere(ctx context.Context, opts ...QueryOption) (int, error)
}

// Repository combines reads and tracked writes, and exposes Bun query
// builders bound to the current transaction for advanced use cases.
type Repository[T any] interface {
	ReadRepository[T]
	WriteRepository[T]
	UnitOfWork() UnitOfWork
	Table() *schema.Table
	Upsert(ctx context.Context, fields []string, duplicateKeys []string, items ...*T) error
	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
	NewInsert() *bun.InsertQuery
	NewUpdate() *bun.UpdateQuery
	NewDelete() *bun.DeleteQuery
}
