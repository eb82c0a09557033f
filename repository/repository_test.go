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

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/forge/entity"
	"github.com/tomoncle/forge/session"
	"github.com/tomoncle/forge/tracker"
	"github.com/tomoncle/forge/types"
)

func names(items []*customer) []string {
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = c.Name
	}
	return out
}

func TestGlobalFilters(t *testing.T) {
	conv := entity.DefaultConventions()
	conv.TenantFilter = true
	conv.ActiveFilter = true
	conv.DeleteFilter = true
	f := newFixture(t, conv)

	other := session.With(context.Background(), "tenant-b", "user-2")
	a1, a2 := &customer{Name: "A1"}, &customer{Name: "A2"}
	f.seed(t, f.ctx, a1, a2)
	f.seed(t, other, &customer{Name: "B1"})

	count, err := f.customers.Count(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = f.customers.Count(other)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = f.customers.Count(context.Background(), IgnoreFilters())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = f.customers.GetAll(context.Background())
	assert.ErrorIs(t, err, tracker.ErrMissingTenant)

	_, err = f.db.NewUpdate().Table("customers").
		Set("is_active = ?", false).
		Where("id = ?", a2.ID).
		Exec(f.ctx)
	require.NoError(t, err)

	all, err := f.customers.GetAll(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, names(all))

	_, err = f.customers.Find(f.ctx, a2.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	found, err := f.customers.Find(f.ctx, a2.ID, IgnoreFilters())
	require.NoError(t, err)
	assert.Equal(t, "A2", found.Name)

	notes, err := f.notes.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, notes)
}

func TestReadOptions(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	f.seed(t, f.ctx,
		&customer{Name: "Cleo", Email: mustEmail(t, "cleo@example.com")},
		&customer{Name: "Bo"},
		&customer{Name: "Ada"},
	)

	all, err := f.customers.GetAll(f.ctx, OrderBy("Name", true))
	require.NoError(t, err)
	assert.Equal(t, []string{"Ada", "Bo", "Cleo"}, names(all))

	one, err := f.customers.GetOne(f.ctx, Where("?TableAlias.email = ?", mustEmail(t, "cleo@example.com")))
	require.NoError(t, err)
	assert.Equal(t, "Cleo", one.Name)

	_, err = f.customers.GetOne(f.ctx, Where("?TableAlias.name = ?", "Nobody"))
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := f.customers.Any(f.ctx, Filter(types.NewQueryFilter("name LIKE ?", "B%")))
	require.NoError(t, err)
	assert.True(t, exists)

	initials, err := Select(f.ctx, f.customers, func(c *customer) string { return c.Name[:1] }, OrderBy("name", false))
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, initials)

	first, err := SelectOne(f.ctx, f.customers, func(c *customer) int64 { return c.RowVersion }, OrderBy("ID", true))
	require.NoError(t, err)
	assert.EqualValues(t, 1, first)

	cols, err := f.customers.GetAll(f.ctx, Columns("id", "name"), OrderBy("Name", true))
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.True(t, cols[2].Email.IsZero())

	_, err = f.customers.GetAll(f.ctx, OrderBy("Missing", true))
	assert.ErrorIs(t, err, ErrUnknownProperty)

	empty, err := f.notes.GetAll(f.ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestGetPaged(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	for _, city := range []string{"Bergen", "Oslo", "Aalborg", "Tromso", "Copenhagen"} {
		f.seed(t, f.ctx, &customer{Name: "in " + city, Address: address{City: city}})
	}

	page, err := f.customers.GetPaged(f.ctx, "Address.City", types.NewPagedOptions(func(o *types.PagedOptions) {
		o.Index = 2
		o.Size = 2
	}))
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages())
	assert.Equal(t, []string{"in Copenhagen", "in Oslo"}, names(page.Items))

	page, err = f.customers.GetPaged(f.ctx, "address_city", &types.PagedOptions{Descending: true, Index: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"in Tromso", "in Oslo"}, names(page.Items))

	page, err = f.customers.GetPaged(f.ctx, "Name", nil)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultPageIndex, page.Page)
	assert.Equal(t, types.DefaultPageSize, page.PageSize)
	assert.Len(t, page.Items, 5)

	page, err = f.customers.GetPaged(f.ctx, "Name", &types.PagedOptions{Index: 9, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)

	_, err = f.customers.GetPaged(f.ctx, "Address.Zip", nil)
	assert.ErrorIs(t, err, ErrUnknownProperty)
	_, err = f.customers.GetPaged(f.ctx, "Nope", nil)
	assert.ErrorIs(t, err, ErrUnknownProperty)
}

func TestPage(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	for _, title := range []string{"a", "b", "c"} {
		require.NoError(t, f.notes.Add(&note{Title: title}))
	}
	require.NoError(t, f.uow.Save(f.ctx))

	page, err := f.notes.Page(f.ctx, types.NewPageRequest(1, 2,
		types.NewQueryFilter("title <> ?", "b"), []string{"title DESC"}))
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "c", page.Items[0].Title)

	page, err = f.notes.Page(f.ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
}

func TestResolveColumn(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	table := f.customers.Table()

	for property, column := range map[string]string{
		"name":         "name",
		"Name":         "name",
		"email":        "email",
		"RowVersion":   entity.ColumnRowVersion,
		"Address.City": "address_city",
		" Static ":     "is_static",
	} {
		got, err := resolveColumn(table, property)
		require.NoError(t, err, property)
		assert.Equal(t, column, got, property)
	}

	_, err := resolveColumn(table, "Address.Name.First")
	assert.ErrorIs(t, err, ErrUnknownProperty)
}

func TestUpdateReplacesFields(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	c := &customer{Name: "Dora", Status: types.StatusActive}
	f.seed(t, f.ctx, c)

	replacement := &customer{
		Name:      "Dora Lee",
		Email:     mustEmail(t, "dora@example.com"),
		Status:    types.StatusInactive,
		Address:   address{City: "Oslo", Street: "Storgata 1"},
		Versioned: entity.Versioned{RowVersion: 1},
	}
	updated, err := f.customers.Update(f.ctx, c.ID, replacement)
	require.NoError(t, err)
	assert.Equal(t, c.ID, updated.ID)
	assert.Equal(t, tracker.Modified, f.uow.Entry(updated).State())
	require.NoError(t, f.uow.Save(f.ctx))

	stored, err := f.customers.Find(f.ctx, c.ID)
	require.NoError(t, err)
	want := &customer{
		ID:        c.ID,
		Name:      "Dora Lee",
		Email:     mustEmail(t, "dora@example.com"),
		Status:    types.StatusInactive,
		Address:   address{City: "Oslo", Street: "Storgata 1"},
		Versioned: entity.Versioned{RowVersion: 2},
	}
	if diff := cmp.Diff(want, stored, cmp.AllowUnexported(customer{}, types.Email{}, types.Status{}, types.Enum[int]{})); diff != "" {
		t.Errorf("stored customer mismatch (-want +got):\n%s", diff)
	}

	shadow, err := f.customers.Shadow(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", text(shadow[entity.ColumnModifiedUserID]))
	assert.Equal(t, "tenant-a", text(shadow[entity.ColumnTenantID]))

	_, err = f.customers.Update(f.ctx, 404, replacement)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.customers.Update(f.ctx, c.ID, nil)
	assert.Error(t, err)
}

func TestUpdatePartial(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	c := &customer{Name: "Eve", Email: mustEmail(t, "eve@example.com"), Address: address{City: "Bergen"}}
	f.seed(t, f.ctx, c)

	_, err := f.customers.UpdatePartial(f.ctx, c.ID, map[string]any{
		"Name":         "Eva",
		"Address.City": "Oslo",
	})
	require.NoError(t, err)
	require.NoError(t, f.uow.Save(f.ctx))

	stored, err := f.customers.Find(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Eva", stored.Name)
	assert.Equal(t, "Oslo", stored.Address.City)
	assert.Equal(t, "eve@example.com", stored.Email.String())
	assert.EqualValues(t, 2, stored.RowVersion)

	patch := struct {
		Name  string
		Email types.Email
		Extra int
	}{Name: "Evelyn", Email: mustEmail(t, "evelyn@example.com"), Extra: 1}
	_, err = f.customers.UpdatePartial(f.ctx, c.ID, &patch)
	require.NoError(t, err)
	require.NoError(t, f.uow.Save(f.ctx))

	stored, err = f.customers.Find(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Evelyn", stored.Name)
	assert.Equal(t, "evelyn@example.com", stored.Email.String())
	assert.Equal(t, "Oslo", stored.Address.City)

	_, err = f.customers.UpdatePartial(f.ctx, c.ID, map[string]any{"ID": int64(9)})
	assert.ErrorContains(t, err, "primary key")
	_, err = f.customers.UpdatePartial(f.ctx, c.ID, map[string]any{"Unknown": 1})
	assert.ErrorIs(t, err, ErrUnknownProperty)
	_, err = f.customers.UpdatePartial(f.ctx, c.ID, map[string]any{"Static": "yes"})
	assert.ErrorContains(t, err, "cannot assign")
	_, err = f.customers.UpdatePartial(f.ctx, c.ID, 42)
	assert.Error(t, err)
}

func TestKeyWritesReuseTrackedInstance(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	n := &note{Title: "draft"}
	require.NoError(t, f.notes.Add(n))
	require.NoError(t, f.uow.Save(f.ctx))

	updated, err := f.notes.Update(f.ctx, n.ID, &note{Title: "final"})
	require.NoError(t, err)
	assert.Same(t, n, updated)
	assert.Equal(t, "final", n.Title)
	assert.Equal(t, 1, f.uow.ChangeTracker().Len())

	_, err = f.notes.UpdatePartial(f.ctx, n.ID, map[string]any{"Title": "again", "Slug": 3.5})
	assert.ErrorContains(t, err, "cannot assign")
	assert.Equal(t, "final", n.Title)
	require.NoError(t, f.uow.Save(f.ctx))

	stale, err := f.notes.Find(f.ctx, n.ID)
	require.NoError(t, err)
	require.NoError(t, f.notes.Delete(f.ctx, n.ID))
	assert.Equal(t, tracker.Deleted, f.uow.Entry(n).State())
	assert.Nil(t, f.uow.Entry(stale))

	_, err = f.notes.Update(f.ctx, n.ID, &note{Title: "late"})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.uow.Save(f.ctx))
	assert.Zero(t, f.uow.ChangeTracker().Len())
	count, err := f.notes.Count(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteWhere(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	for _, title := range []string{"keep", "drop-1", "drop-2"} {
		require.NoError(t, f.notes.Add(&note{Title: title}))
	}
	require.NoError(t, f.uow.Save(f.ctx))

	n, err := f.notes.DeleteWhere(f.ctx, Where("?TableAlias.title LIKE ?", "drop%"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, f.uow.ChangeTracker().Len())
	require.NoError(t, f.uow.Save(f.ctx))
	assert.Equal(t, 1, f.uow.ChangeTracker().Len())

	titles, err := Select(f.ctx, f.notes, func(n *note) string { return n.Title })
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, titles)
}

func TestUpsert(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	require.NoError(t, f.notes.Upsert(f.ctx, []string{"title"}, nil, &note{ID: 1, Title: "first"}))
	require.NoError(t, f.notes.Upsert(f.ctx, []string{"title"}, nil,
		&note{ID: 1, Title: "renamed"}, &note{ID: 2, Title: "second"}))

	all, err := f.notes.GetAll(f.ctx, OrderBy("ID", true))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "renamed", all[0].Title)
	assert.Equal(t, "second", all[1].Title)

	require.NoError(t, f.notes.Upsert(f.ctx, []string{"title"}, []string{"slug"}, &note{ID: 3, Title: "slugged", Slug: "s"}))
	require.NoError(t, f.notes.Upsert(f.ctx, []string{"title"}, []string{"slug"}, &note{ID: 4, Title: "reslugged", Slug: "s"}))
	one, err := f.notes.GetOne(f.ctx, Where("?TableAlias.slug = ?", "s"))
	require.NoError(t, err)
	assert.EqualValues(t, 3, one.ID)
	assert.Equal(t, "reslugged", one.Title)

	assert.Error(t, f.notes.Upsert(f.ctx, nil, nil, &note{ID: 5}))
}

func TestRepoFromUnitOfWork(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	repo := Repo[note](f.uow)
	assert.Same(t, f.uow, repo.UnitOfWork())
	assert.Equal(t, "notes", repo.Table().Name)
	assert.Equal(t, f.db.Dialect().Name(), repo.Dialect().Name())
}
