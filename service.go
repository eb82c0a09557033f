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
	"database/sql"

	"github.com/uptrace/bun"

	"github.com/tomoncle/forge/repository"
	"github.com/tomoncle/forge/types"
)

// Service is a use-case facade over a repository. Every write is saved
// before the method returns.
type Service[T any] interface {
	// Get returns a single entity by its identifier.
	Get(ctx context.Context, id any) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided filter.
	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	// Query executes a raw query and maps the results to entities.
	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Paged returns one page ordered by property.
	Paged(ctx context.Context, property string, paged *types.PagedOptions) (*types.Pagination[T], error)

	// Update writes a modified entity, checking its row version.
	Update(ctx context.Context, model *T) error

	// Delete removes an entity by its identifier.
	Delete(ctx context.Context, id any) error

	// Save inserts one or more new entities.
	Save(ctx context.Context, model ...*T) error

	// SaveOrUpdate upserts entities based on fields and duplicate keys.
	SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error

	// Transaction runs fn in a transaction at level and saves the work it
	// tracked. An error from fn rolls everything back.
	Transaction(ctx context.Context, level sql.IsolationLevel, fn func(ctx context.Context, repo repository.Repository[T]) error) error

	// Repository returns the underlying repository.
	Repository() repository.Repository[T]

	// SelectBuilder returns a Bun select query builder for the entity.
	SelectBuilder() *bun.SelectQuery

	// InsertBuilder returns a Bun insert query builder for the entity.
	InsertBuilder() *bun.InsertQuery

	// UpdateBuilder returns a Bun update query builder for the entity.
	UpdateBuilder() *bun.UpdateQuery

	// DeleteBuilder returns a Bun delete query builder for the entity.
	DeleteBuilder() *bun.DeleteQuery
}

type baseServiceImpl[T any] struct {
	repo repository.Repository[T]
}

// NewService returns a Service over a repository bound to uow.
func NewService[T any](uow repository.UnitOfWork) Service[T] {
	return &baseServiceImpl[T]{repo: repository.Repo[T](uow)}
}

// ServiceFrom returns a Service over the unit of work attached to ctx, or
// over a new scoped one from the default registration.
func ServiceFrom[T any](ctx context.Context) (Service[T], error) {
	if uow, ok := repository.FromContext(ctx); ok {
		return NewService[T](uow), nil
	}
	reg, err := Default()
	if err != nil {
		return nil, err
	}
	return NewService[T](reg.Scoped()), nil
}

func (s *baseServiceImpl[T]) uow() repository.UnitOfWork { return s.repo.UnitOfWork() }

func (s *baseServiceImpl[T]) Repository() repository.Repository[T] { return s.repo }

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) error {
	if err := s.repo.Add(model...); err != nil {
		return err
	}
	return s.uow().Save(ctx)
}

func (s *baseServiceImpl[T]) SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error {
	return s.repo.Upsert(ctx, fields, duplicateKeys, model...)
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	return s.repo.Find(ctx, id)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.repo.GetAll(ctx)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	return s.repo.GetAll(ctx, repository.Filter(filter))
}

func (s *baseServiceImpl[T]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	entities := make([]*T, 0)
	if err := s.uow().IDB().NewRaw(query, args...).Scan(ctx, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T) error {
	if err := s.uow().Update(model); err != nil {
		return err
	}
	return s.uow().Save(ctx)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	return s.uow().Save(ctx)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	return s.repo.Page(ctx, page)
}

func (s *baseServiceImpl[T]) Paged(ctx context.Context, property string, paged *types.PagedOptions) (*types.Pagination[T], error) {
	return s.repo.GetPaged(ctx, property, paged)
}

func (s *baseServiceImpl[T]) Transaction(ctx context.Context, level sql.IsolationLevel, fn func(ctx context.Context, repo repository.Repository[T]) error) error {
	uow := s.uow()
	if err := uow.OpenTransaction(ctx, level); err != nil {
		return err
	}
	if err := fn(ctx, s.repo); err != nil {
		uow.Reset()
		return err
	}
	return uow.Save(ctx)
}

func (s *baseServiceImpl[T]) SelectBuilder() *bun.SelectQuery {
	return s.repo.NewSelect()
}

func (s *baseServiceImpl[T]) InsertBuilder() *bun.InsertQuery {
	return s.repo.NewInsert()
}

func (s *baseServiceImpl[T]) UpdateBuilder() *bun.UpdateQuery {
	return s.repo.NewUpdate()
}

func (s *baseServiceImpl[T]) DeleteBuilder() *bun.DeleteQuery {
	return s.repo.NewDelete()
}
