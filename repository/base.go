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
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/forge/entity"
	"github.com/tomoncle/forge/tracker"
	"github.com/tomoncle/forge/types"
)

type baseRepositoryImpl[T any] struct {
	uow UnitOfWork
}

// NewRepository returns a generic repository bound to the unit of work c.
func NewRepository[T any](c *Context) Repository[T] {
	return Repo[T](c)
}

// Repo resolves a repository of T from a unit of work.
func Repo[T any](uow UnitOfWork) Repository[T] {
	return &baseRepositoryImpl[T]{uow: uow}
}

func (r *baseRepositoryImpl[T]) UnitOfWork() UnitOfWork { return r.uow }

func (r *baseRepositoryImpl[T]) Table() *schema.Table {
	return r.Dialect().Tables().Get(reflect.TypeFor[T]())
}

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.uow.IDB().Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.uow.IDB().NewSelect() }

func (r *baseRepositoryImpl[T]) NewInsert() *bun.InsertQuery { return r.uow.IDB().NewInsert() }

func (r *baseRepositoryImpl[T]) NewUpdate() *bun.UpdateQuery { return r.uow.IDB().NewUpdate() }

func (r *baseRepositoryImpl[T]) NewDelete() *bun.DeleteQuery { return r.uow.IDB().NewDelete() }

func (r *baseRepositoryImpl[T]) ValsToSlice(items ...*T) []*T {
	entities := make([]*T, len(items))
	copy(entities, items)
	return entities
}

// query starts a select of model with the options and filters applied.
func (r *baseRepositoryImpl[T]) query(ctx context.Context, model any, opts []QueryOption) (*bun.SelectQuery, error) {
	q := r.NewSelect().Model(model)
	return collect(opts).apply(ctx, q, r.Table(), (*T)(nil), r.uow.Conventions())
}

func (r *baseRepositoryImpl[T]) wherePK(q *bun.SelectQuery, key any) (*bun.SelectQuery, error) {
	pks := r.Table().PKs
	if len(pks) != 1 {
		return nil, fmt.Errorf("%s has %d primary key columns, lookups by key need exactly one", entity.TypeName((*T)(nil)), len(pks))
	}
	return q.Where("?TableAlias.? = ?", bun.Ident(pks[0].Name), key), nil
}

// tracked returns the instance of T the unit of work already tracks under
// key, so a key based write never attaches a second copy of the same row.
func (r *baseRepositoryImpl[T]) tracked(key any) *T {
	pks := r.Table().PKs
	if len(pks) != 1 || key == nil {
		return nil
	}
	pk, want := pks[0], fmt.Sprint(key)
	en := r.uow.ChangeTracker().Find(func(e any) bool {
		item, ok := e.(*T)
		if !ok {
			return false
		}
		v := pk.Value(reflect.ValueOf(item).Elem())
		return !v.IsZero() && fmt.Sprint(v.Interface()) == want
	})
	if en == nil {
		return nil
	}
	return en.Entity().(*T)
}

// load returns the tracked instance with key, or reads the row. A row
// tracked for deletion is not found.
func (r *baseRepositoryImpl[T]) load(ctx context.Context, key any) (*T, error) {
	item := r.tracked(key)
	if item == nil {
		return r.Find(ctx, key)
	}
	if en := r.uow.Entry(item); en != nil && en.State() == tracker.Deleted {
		return nil, notFound(entity.TypeName(item))
	}
	return item, nil
}

func (r *baseRepositoryImpl[T]) GetOne(ctx context.Context, opts ...QueryOption) (*T, error) {
	var item T
	q, err := r.query(ctx, &item, opts)
	if err != nil {
		return nil, err
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(entity.TypeName(&item))
		}
		return nil, err
	}
	return &item, nil
}

func (r *baseRepositoryImpl[T]) GetAll(ctx context.Context, opts ...QueryOption) ([]*T, error) {
	entities := make([]*T, 0)
	q, err := r.query(ctx, &entities, opts)
	if err != nil {
		return nil, err
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

// Find loads the entity with primary key key.
func (r *baseRepositoryImpl[T]) Find(ctx context.Context, key any, opts ...QueryOption) (*T, error) {
	var item T
	q, err := r.query(ctx, &item, opts)
	if err != nil {
		return nil, err
	}
	if q, err = r.wherePK(q, key); err != nil {
		return nil, err
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(entity.TypeName(&item))
		}
		return nil, err
	}
	return &item, nil
}

func (r *baseRepositoryImpl[T]) Any(ctx context.Context, opts ...QueryOption) (bool, error) {
	q, err := r.query(ctx, (*T)(nil), opts)
	if err != nil {
		return false, err
	}
	return q.Exists(ctx)
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, opts ...QueryOption) (int, error) {
	q, err := r.query(ctx, (*T)(nil), opts)
	if err != nil {
		return 0, err
	}
	return q.Count(ctx)
}

// GetPaged returns one page ordered by property. A nil paged means the
// first ten rows in ascending order.
func (r *baseRepositoryImpl[T]) GetPaged(ctx context.Context, property string, paged *types.PagedOptions, opts ...QueryOption) (*types.Pagination[T], error) {
	settings := paged.Normalized()
	column, err := resolveColumn(r.Table(), property)
	if err != nil {
		return nil, err
	}

	var entities []*T
	q, err := r.query(ctx, &entities, opts)
	if err != nil {
		return nil, err
	}
	pagination := types.NewDefaultPagination[T](settings.Index, settings.Size)
	total, err := q.
		OrderExpr("?TableAlias.? "+direction(!settings.Descending), bun.Ident(column)).
		Offset(settings.Offset()).
		Limit(settings.Size).
		ScanAndCount(ctx)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	if entities != nil {
		pagination.Items = entities
	}
	return pagination, nil
}

// Page keeps the PageRequest style paging. Orders are raw ORDER BY terms.
func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	if pageRequest == nil {
		pageRequest = types.NewDefaultPageRequest(types.DefaultPageIndex, types.DefaultPageSize)
	}
	var entities []*T
	query, err := r.query(ctx, &entities, []QueryOption{Filter(pageRequest.GetFilter())})
	if err != nil {
		return nil, err
	}
	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := query.Count(ctx)
	if err != nil || total == 0 {
		return pagination, err
	}
	err = query.
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize()).
		Order(pageRequest.GetOrders()...).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

// Shadow reads the shadow columns of the row with primary key key. Filters
// do not apply.
func (r *baseRepositoryImpl[T]) Shadow(ctx context.Context, key any) (map[string]any, error) {
	names := entity.ShadowColumnNames(entity.Capabilities((*T)(nil)), r.uow.Conventions())
	if len(names) == 0 {
		return map[string]any{}, nil
	}
	q, err := r.wherePK(r.NewSelect().Model((*T)(nil)).Column(names...), key)
	if err != nil {
		return nil, err
	}
	values := make(map[string]any, len(names))
	if err := q.Limit(1).Scan(ctx, &values); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(entity.TypeName((*T)(nil)))
		}
		return nil, err
	}
	return values, nil
}

func (r *baseRepositoryImpl[T]) Add(items ...*T) error {
	for _, item := range items {
		if err := r.uow.Add(item); err != nil {
			return err
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T]) AddRange(items []*T) error {
	return r.Add(items...)
}

// Update loads the row with key, copies every mapped non key field of item
// onto it, row version included, and tracks it as modified. The row version
// of item is the one the save checks. An instance already tracked under key
// is updated in place.
func (r *baseRepositoryImpl[T]) Update(ctx context.Context, key any, item *T) (*T, error) {
	if item == nil {
		return nil, fmt.Errorf("update %s: item is nil", entity.TypeName((*T)(nil)))
	}
	current, err := r.load(ctx, key)
	if err != nil {
		return nil, err
	}
	dst, src := reflect.ValueOf(current).Elem(), reflect.ValueOf(item).Elem()
	for _, f := range r.Table().Fields {
		if f.IsPK {
			continue
		}
		f.Value(dst).Set(f.Value(src))
	}
	if err := r.uow.Update(current); err != nil {
		return nil, err
	}
	if rv, ok := any(item).(entity.RowVersionedEntity); ok {
		if en := r.uow.Entry(current); en != nil && en.State() == tracker.Modified {
			en.SetOriginalRowVersion(rv.GetRowVersion())
		}
	}
	return current, nil
}

// UpdatePartial is Update restricted to the fields named by values: the
// fields of a struct, or the keys of a map[string]any. Names are Go field
// names, column names or dotted paths.
func (r *baseRepositoryImpl[T]) UpdatePartial(ctx context.Context, key any, values any) (*T, error) {
	assignments, err := r.partialValues(values)
	if err != nil {
		return nil, err
	}
	current, err := r.load(ctx, key)
	if err != nil {
		return nil, err
	}
	// Convert everything first so a bad value leaves a tracked instance as it was.
	dst := reflect.ValueOf(current).Elem()
	converted := make([]reflect.Value, len(assignments))
	for i, a := range assignments {
		typ := a.field.Value(dst).Type()
		v := a.value
		switch {
		case !v.IsValid():
			v = reflect.Zero(typ)
		case v.Type().AssignableTo(typ):
		case v.Type().ConvertibleTo(typ):
			v = v.Convert(typ)
		default:
			return nil, fmt.Errorf("update %s: cannot assign %s to %s", entity.TypeName(current), v.Type(), a.field.GoName)
		}
		converted[i] = v
	}
	for i, a := range assignments {
		a.field.Value(dst).Set(converted[i])
	}
	if err := r.uow.Update(current); err != nil {
		return nil, err
	}
	return current, nil
}

type assignment struct {
	field *schema.Field
	value reflect.Value
}

func (r *baseRepositoryImpl[T]) partialValues(values any) ([]assignment, error) {
	table := r.Table()
	lookup := func(name string) (*schema.Field, error) {
		column, err := resolveColumn(table, name)
		if err != nil {
			return nil, err
		}
		f := table.FieldMap[column]
		if f.IsPK {
			return nil, fmt.Errorf("update %s: primary key %s cannot change", table.TypeName, name)
		}
		return f, nil
	}

	if m, ok := values.(map[string]any); ok {
		out := make([]assignment, 0, len(m))
		for name, v := range m {
			f, err := lookup(name)
			if err != nil {
				return nil, err
			}
			out = append(out, assignment{field: f, value: reflect.ValueOf(v)})
		}
		return out, nil
	}

	v := reflect.ValueOf(values)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, fmt.Errorf("update %s: values is nil", table.TypeName)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("update %s: values must be a struct or map[string]any, got %T", table.TypeName, values)
	}
	var out []assignment
	typ := v.Type()
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		if !sf.IsExported() || sf.Type == reflect.TypeFor[bun.BaseModel]() {
			continue
		}
		f := fieldByGoName(table, sf.Name)
		if f == nil || f.IsPK {
			continue
		}
		out = append(out, assignment{field: f, value: v.Field(i)})
	}
	return out, nil
}

// Delete tracks the row with key for deletion. A missing key is ignored.
// An instance already tracked under key is the one removed.
func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, key any) error {
	item, err := r.load(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return r.uow.Remove(item)
}

// DeleteWhere tracks every matching row for deletion and returns how many
// were found.
func (r *baseRepositoryImpl[T]) DeleteWhere(ctx context.Context, opts ...QueryOption) (int, error) {
	items, err := r.GetAll(ctx, opts...)
	if err != nil {
		return 0, err
	}
	pks := r.Table().PKs
	for _, item := range items {
		if len(pks) == 1 {
			if same := r.tracked(pks[0].Value(reflect.ValueOf(item).Elem()).Interface()); same != nil {
				item = same
			}
		}
		if err := r.uow.Remove(item); err != nil {
			return 0, err
		}
	}
	return len(items), nil
}

// Upsert writes items immediately through the current transaction,
// updating fields when a row with the same duplicate keys exists.
func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, fields []string, duplicateKeys []string, items ...*T) error {
	if len(fields) == 0 {
		return fmt.Errorf("fields cannot be empty")
	}

	insertQuery := r.NewInsert()
	entities := r.ValsToSlice(items...)

	features := r.Dialect().Features()
	if features.Has(feature.InsertOnConflict) {
		return r.upsertWithPostgresqlOrSQLite(ctx, insertQuery, fields, duplicateKeys, entities)
	} else if features.Has(feature.InsertOnDuplicateKey) {
		return r.upsertWithMySQL(ctx, insertQuery, fields, entities)
	} else {
		return r.upsertFallback(ctx, entities)
	}
}

func (r *baseRepositoryImpl[T]) upsertWithMySQL(ctx context.Context, insertQuery *bun.InsertQuery, fields []string, entities []*T) error {
	var queryArgs []string
	for range fields {
		queryArgs = append(queryArgs, "? = VALUES(?)")
	}
	_, err := insertQuery.
		Model(&entities).
		On("DUPLICATE KEY UPDATE "+strings.Join(queryArgs, ", "), identPairs(fields)...).
		Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertWithPostgresqlOrSQLite(ctx context.Context, insertQuery *bun.InsertQuery, fields []string, duplicateKeys []string, entities []*T) error {
	if len(duplicateKeys) == 0 {
		for _, pk := range r.Table().PKs {
			duplicateKeys = append(duplicateKeys, pk.Name)
		}
	}
	keys := make([]any, len(duplicateKeys))
	for i, k := range duplicateKeys {
		keys[i] = bun.Ident(k)
	}
	q := insertQuery.
		Model(&entities).
		On("CONFLICT (?) DO UPDATE", bun.In(keys))
	for _, field := range fields {
		q = q.Set("? = EXCLUDED.?", bun.Ident(field), bun.Ident(field))
	}
	_, err := q.Exec(ctx)
	return err
}

// upsertFallback tries an insert and falls back to an update by primary
// key, each in its own savepoint so a failed insert does not abort the
// surrounding transaction.
func (r *baseRepositoryImpl[T]) upsertFallback(ctx context.Context, entities []*T) error {
	for _, item := range entities {
		err := r.uow.IDB().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			_, err := tx.NewInsert().Model(item).Exec(ctx)
			return err
		})
		if err == nil {
			continue
		}
		if _, updateErr := r.NewUpdate().Model(item).WherePK().Exec(ctx); updateErr != nil {
			return fmt.Errorf("upsert failed for entity: insert error: %v, update error: %v", err, updateErr)
		}
	}
	return nil
}

func identPairs(fields []string) []any {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, bun.Ident(f), bun.Ident(f))
	}
	return args
}

// Select projects the entities matched by opts through fn.
func Select[T, R any](ctx context.Context, repo ReadRepository[T], fn func(*T) R, opts ...QueryOption) ([]R, error) {
	items, err := repo.GetAll(ctx, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]R, len(items))
	for i, item := range items {
		out[i] = fn(item)
	}
	return out, nil
}

// SelectOne projects the first entity matched by opts through fn.
func SelectOne[T, R any](ctx context.Context, repo ReadRepository[T], fn func(*T) R, opts ...QueryOption) (R, error) {
	item, err := repo.GetOne(ctx, opts...)
	if err != nil {
		var zero R
		return zero, err
	}
	return fn(item), nil
}
