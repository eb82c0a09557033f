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
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/forge/database"
	"github.com/tomoncle/forge/entity"
	"github.com/tomoncle/forge/session"
	"github.com/tomoncle/forge/tracker"
	"github.com/tomoncle/forge/types"
)

func TestSaveStampsShadowColumns(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	c := &customer{Name: "Ana", Email: mustEmail(t, "ana@example.com"), Status: types.StatusActive}
	f.seed(t, f.ctx, c)

	require.NotZero(t, c.ID)
	assert.EqualValues(t, 1, c.RowVersion)
	assert.False(t, f.uow.ChangeTracker().HasChanges())
	assert.Equal(t, tracker.Unchanged, f.uow.Entry(c).State())

	shadow, err := f.customers.Shadow(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", text(shadow[entity.ColumnTenantID]))
	assert.Equal(t, "user-1", text(shadow[entity.ColumnCreatedUserID]))
	assert.NotNil(t, shadow[entity.ColumnCreatedDate])
	assert.True(t, truthy(shadow[entity.ColumnIsActive]))
	assert.False(t, truthy(shadow[entity.ColumnIsDelete]))
	assert.Nil(t, shadow[entity.ColumnModifiedUserID])

	found, err := f.customers.Find(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", found.Email.String())
	assert.Equal(t, types.StatusActive, found.Status)
}

func TestSaveRequiresSession(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())

	require.NoError(t, f.customers.Add(&customer{Name: "NoTenant"}))
	err := f.uow.Save(context.Background())
	require.ErrorIs(t, err, tracker.ErrMissingTenant)
	assert.Contains(t, err.Error(), "Entity of type customer in state Added could not be updated")
	assert.NotContains(t, err.Error(), "state Detached")
	assert.Zero(t, f.uow.ChangeTracker().Len())

	require.NoError(t, f.customers.Add(&customer{Name: "NoUser"}))
	err = f.uow.Save(session.WithTenant(context.Background(), "tenant-a"))
	require.ErrorIs(t, err, tracker.ErrMissingUser)

	count, err := f.customers.Count(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSaveRestoresVersionsWhenBeginFails(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	c := &customer{Name: "Late"}
	require.NoError(t, f.customers.Add(c))
	require.NoError(t, f.db.Close())

	err := f.uow.Save(f.ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin save transaction")
	assert.Contains(t, err.Error(), "Entity of type customer in state Added could not be updated")
	assert.Zero(t, c.RowVersion)
	assert.Zero(t, f.uow.ChangeTracker().Len())
}

func TestSaveWithoutChangeTracker(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())

	c := &customer{Name: "Raw"}
	require.NoError(t, f.customers.Add(c))
	require.NoError(t, f.uow.Save(context.Background(), WithoutChangeTracker()))
	assert.EqualValues(t, 1, c.RowVersion)

	shadow, err := f.customers.Shadow(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, shadow[entity.ColumnTenantID])
	assert.Nil(t, shadow[entity.ColumnCreatedUserID])
	assert.True(t, truthy(shadow[entity.ColumnIsActive]))
}

func TestSaveWithNothingPending(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	require.NoError(t, f.uow.Save(f.ctx))
	assert.False(t, f.uow.HasTransaction())
}

func TestUpdateDetectsConcurrencyConflict(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	c := &customer{Name: "Ana"}
	f.seed(t, f.ctx, c)

	first, err := f.customers.Find(f.ctx, c.ID)
	require.NoError(t, err)
	stale := *first

	first.Name = "Ana Maria"
	saved, err := f.customers.Update(f.ctx, c.ID, first)
	require.NoError(t, err)
	require.NoError(t, f.uow.Save(f.ctx))
	assert.EqualValues(t, 2, saved.RowVersion)

	stale.Name = "Stale"
	rejected, err := f.customers.Update(f.ctx, c.ID, &stale)
	require.NoError(t, err)
	err = f.uow.Save(f.ctx)

	var conflict *ConcurrencyError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Equal(t, []string{"Entity of type customer in state Modified could not be updated"}, conflict.Entries)
	assert.EqualValues(t, 1, rejected.RowVersion)
	assert.Zero(t, f.uow.ChangeTracker().Len())
	assert.False(t, f.uow.HasTransaction())

	stored, err := f.customers.Find(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", stored.Name)
	assert.EqualValues(t, 2, stored.RowVersion)
}

func TestRemoveStaticEntityIsRejected(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	c := &customer{Name: "System", Static: true}
	f.seed(t, f.ctx, c)

	require.NoError(t, f.customers.Delete(f.ctx, c.ID))
	err := f.uow.Save(f.ctx)

	var rejected *UpdateError
	require.ErrorAs(t, err, &rejected)
	assert.ErrorIs(t, err, ErrStaticEntity)
	assert.Contains(t, err.Error(), "Entity of type customer in state Deleted could not be updated")

	shadow, err := f.customers.Shadow(f.ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, truthy(shadow[entity.ColumnIsDelete]))
	assert.True(t, truthy(shadow[entity.ColumnIsActive]))
}

func TestRemoveStaticEntityWithoutDeleteShadow(t *testing.T) {
	conv := entity.DefaultConventions()
	conv.DeleteShadow = false
	f := newFixture(t, conv)
	c := &customer{Name: "System", Static: true}
	f.seed(t, f.ctx, c)

	require.NoError(t, f.customers.Delete(f.ctx, c.ID))
	var rejected *UpdateError
	require.ErrorAs(t, f.uow.Save(f.ctx), &rejected)

	exists, err := f.customers.Any(f.ctx, Where("?TableAlias.id = ?", c.ID))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRemoveSoftDeletes(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	c := &customer{Name: "Gone"}
	f.seed(t, f.ctx, c)

	require.NoError(t, f.customers.Delete(f.ctx, c.ID))
	require.NoError(t, f.uow.Save(f.ctx))

	shadow, err := f.customers.Shadow(f.ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, truthy(shadow[entity.ColumnIsDelete]))
	assert.False(t, truthy(shadow[entity.ColumnIsActive]))
	assert.Equal(t, "user-1", text(shadow[entity.ColumnDeletedUserID]))
	assert.NotNil(t, shadow[entity.ColumnDeletedDate])

	found, err := f.customers.Find(f.ctx, c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, found.RowVersion)

	conv := entity.DefaultConventions()
	conv.DeleteFilter = true
	filtered := NewRepository[customer](NewContext(f.db, WithConventions(conv)))
	count, err := filtered.Count(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	count, err = filtered.Count(f.ctx, IgnoreFilters())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRemoveHardDeletesPlainModels(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	n := &note{Title: "scratch"}
	require.NoError(t, f.notes.Add(n))
	require.NoError(t, f.uow.Save(f.ctx))

	require.NoError(t, f.notes.Delete(f.ctx, n.ID))
	require.NoError(t, f.uow.Save(f.ctx))
	assert.Nil(t, f.uow.Entry(n))

	_, err := f.notes.Find(f.ctx, n.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, f.notes.Delete(f.ctx, n.ID))
	assert.False(t, f.uow.ChangeTracker().HasChanges())
}

func TestConstraintViolationIsUpdateError(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	require.NoError(t, f.notes.Add(&note{Title: "a", Slug: "same"}, &note{Title: "b", Slug: "same"}))

	err := f.uow.Save(f.ctx)
	var rejected *UpdateError
	require.ErrorAs(t, err, &rejected)
	assert.Len(t, rejected.Entries, 1)

	count, err := f.notes.Count(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTransactionRollback(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())

	require.NoError(t, f.uow.OpenTransaction(f.ctx, sql.LevelDefault))
	assert.True(t, f.uow.HasTransaction())
	_, err := f.notes.NewInsert().Model(&note{Title: "draft"}).Exec(f.ctx)
	require.NoError(t, err)
	count, err := f.notes.Count(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, f.uow.RollbackTransaction())
	assert.False(t, f.uow.HasTransaction())
	count, err = f.notes.Count(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.NoError(t, f.uow.RollbackTransaction())
	assert.NoError(t, f.uow.CommitTransaction())
}

func TestSaveCommitsOpenTransaction(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())

	require.NoError(t, f.uow.OpenTransaction(f.ctx, sql.LevelReadCommitted))
	_, err := f.notes.NewInsert().Model(&note{Title: "direct"}).Exec(f.ctx)
	require.NoError(t, err)
	require.NoError(t, f.notes.Add(&note{Title: "tracked"}))
	require.NoError(t, f.uow.Save(f.ctx))
	assert.False(t, f.uow.HasTransaction())

	count, err := f.notes.Count(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSaveWithTransaction(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())

	require.NoError(t, f.notes.Add(&note{Title: "serial"}))
	require.NoError(t, f.uow.SaveWithTransaction(f.ctx, sql.LevelSerializable))
	assert.False(t, f.uow.HasTransaction())

	titles, err := Select(f.ctx, f.notes, func(n *note) string { return n.Title })
	require.NoError(t, err)
	assert.Equal(t, []string{"serial"}, titles)
}

func TestFailedSaveRollsBackOpenTransaction(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())

	require.NoError(t, f.uow.OpenTransaction(f.ctx, sql.LevelDefault))
	_, err := f.notes.NewInsert().Model(&note{Title: "lost"}).Exec(f.ctx)
	require.NoError(t, err)
	require.NoError(t, f.customers.Add(&customer{Name: "NoTenant"}))

	require.Error(t, f.uow.Save(context.Background()))
	assert.False(t, f.uow.HasTransaction())

	count, err := f.notes.Count(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestResetForgetsWork(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())

	require.NoError(t, f.uow.OpenTransaction(f.ctx, sql.LevelDefault))
	require.NoError(t, f.notes.Add(&note{Title: "pending"}))
	f.uow.Reset()

	assert.False(t, f.uow.HasTransaction())
	assert.Zero(t, f.uow.ChangeTracker().Len())
	require.NoError(t, f.uow.Save(f.ctx))
}

func TestAddRejectsNonPointers(t *testing.T) {
	f := newFixture(t, entity.DefaultConventions())
	assert.ErrorIs(t, f.uow.Add(note{Title: "value"}), tracker.ErrNotPointer)
}

func TestSaveMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := database.NewMetrics(database.MetricsConfig{Enabled: true, Namespace: "repo", Registerer: reg})
	require.NoError(t, err)
	f := newFixture(t, entity.DefaultConventions(), WithMetrics(metrics))

	c := &customer{Name: "Counted"}
	f.seed(t, f.ctx, c)

	f.uow.ChangeTracker().Detach(c)
	c.RowVersion = 7
	require.NoError(t, f.uow.Update(c))
	require.Error(t, f.uow.Save(f.ctx))

	expected := `
# HELP repo_uow_saves_total Unit of work saves by outcome
# TYPE repo_uow_saves_total counter
repo_uow_saves_total{outcome="committed"} 1
repo_uow_saves_total{outcome="conflict"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "repo_uow_saves_total"))
}

func TestContextRoundTrip(t *testing.T) {
	uow := NewContext(nil)
	ctx := WithContext(context.Background(), uow)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, uow, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
	assert.Equal(t, entity.DefaultConventions(), uow.Conventions())
}
