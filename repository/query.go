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
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/forge/database"
	"github.com/tomoncle/forge/entity"
	"github.com/tomoncle/forge/session"
	"github.com/tomoncle/forge/tracker"
	"github.com/tomoncle/forge/types"
)

type whereClause struct {
	query string
	args  []any
}

type orderClause struct {
	property  string
	ascending bool
}

type queryOptions struct {
	where         []whereClause
	relations     []string
	orders        []orderClause
	columns       []string
	ignoreFilters bool
}

// QueryOption narrows a repository read.
type QueryOption func(*queryOptions)

// Where adds a bun WHERE condition, e.g. Where("?TableAlias.email = ?", e).
func Where(query string, args ...any) QueryOption {
	return func(o *queryOptions) { o.where = append(o.where, whereClause{query: query, args: args}) }
}

// Filter adds a QueryFilter as a WHERE condition.
func Filter(filter *types.QueryFilter) QueryOption {
	return func(o *queryOptions) {
		if filter != nil && filter.Schema != "" {
			o.where = append(o.where, whereClause{query: filter.Schema, args: filter.Args})
		}
	}
}

// Include loads bun relations together with the entities.
func Include(relations ...string) QueryOption {
	return func(o *queryOptions) { o.relations = append(o.relations, relations...) }
}

// OrderBy sorts by a Go field name, a column name or a dotted path.
func OrderBy(property string, ascending bool) QueryOption {
	return func(o *queryOptions) {
		o.orders = append(o.orders, orderClause{property: property, ascending: ascending})
	}
}

// Columns restricts the selected columns.
func Columns(cols ...string) QueryOption {
	return func(o *queryOptions) { o.columns = append(o.columns, cols...) }
}

// IgnoreFilters disables the tenant, active and delete filters.
func IgnoreFilters() QueryOption {
	return func(o *queryOptions) { o.ignoreFilters = true }
}

func collect(opts []QueryOption) *queryOptions {
	o := &queryOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// applyFilters adds the global filters enabled in conv that model supports.
func applyFilters(ctx context.Context, q *bun.SelectQuery, model any, conv database.ConventionConfig) (*bun.SelectQuery, error) {
	caps := conv.Effective(entity.Capabilities(model))
	if conv.TenantFilter && caps.Has(entity.CapTenant) {
		tenantID, ok := session.TenantID(ctx)
		if !ok {
			return nil, fmt.Errorf("%w: %s", tracker.ErrMissingTenant, entity.TypeName(model))
		}
		q = q.Where("?TableAlias.? = ?", bun.Ident(entity.ColumnTenantID), tenantID)
	}
	if conv.ActiveFilter && caps.Has(entity.CapActive) {
		q = q.Where("?TableAlias.? = ?", bun.Ident(entity.ColumnIsActive), true)
	}
	if conv.DeleteFilter && caps.Has(entity.CapDelete) {
		q = q.Where("?TableAlias.? = ?", bun.Ident(entity.ColumnIsDelete), false)
	}
	return q, nil
}

// apply adds the options and the global filters to q.
func (o *queryOptions) apply(ctx context.Context, q *bun.SelectQuery, table *schema.Table, model any, conv database.ConventionConfig) (*bun.SelectQuery, error) {
	if !o.ignoreFilters {
		var err error
		if q, err = applyFilters(ctx, q, model, conv); err != nil {
			return nil, err
		}
	}
	for _, w := range o.where {
		q = q.Where(w.query, w.args...)
	}
	for _, rel := range o.relations {
		q = q.Relation(rel)
	}
	if len(o.columns) > 0 {
		q = q.Column(o.columns...)
	}
	for _, ord := range o.orders {
		col, err := resolveColumn(table, ord.property)
		if err != nil {
			return nil, err
		}
		q = q.OrderExpr("?TableAlias.? "+direction(ord.ascending), bun.Ident(col))
	}
	return q, nil
}

func direction(ascending bool) string {
	if ascending {
		return "ASC"
	}
	return "DESC"
}

// resolveColumn maps a property to its column. property is a column name,
// a Go field name or a dotted path of Go field names through embedded
// structs, such as "Address.City".
func resolveColumn(table *schema.Table, property string) (string, error) {
	property = strings.TrimSpace(property)
	if f, ok := table.FieldMap[property]; ok {
		return f.Name, nil
	}
	if strings.Contains(property, ".") {
		index, err := fieldIndex(table.Type, strings.Split(property, "."))
		if err != nil {
			return "", err
		}
		for _, f := range table.Fields {
			if slices.Equal(f.Index, index) {
				return f.Name, nil
			}
		}
		return "", fmt.Errorf("%w: %s.%s is not mapped", ErrUnknownProperty, table.TypeName, property)
	}
	if f := fieldByGoName(table, property); f != nil {
		return f.Name, nil
	}
	return "", fmt.Errorf("%w: %s.%s", ErrUnknownProperty, table.TypeName, property)
}

func fieldByGoName(table *schema.Table, name string) *schema.Field {
	for _, f := range table.Fields {
		if f.GoName == name {
			return f
		}
	}
	for _, f := range table.Fields {
		if strings.EqualFold(f.GoName, name) {
			return f
		}
	}
	return nil
}

func fieldIndex(typ reflect.Type, path []string) ([]int, error) {
	var index []int
	for _, name := range path {
		for typ.Kind() == reflect.Ptr {
			typ = typ.Elem()
		}
		if typ.Kind() != reflect.Struct {
			return nil, fmt.Errorf("%w: %s is not a struct", ErrUnknownProperty, name)
		}
		sf, ok := typ.FieldByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, name)
		}
		index = append(index, sf.Index...)
		typ = sf.Type
	}
	return index, nil
}
