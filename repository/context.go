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
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/tomoncle/forge/database"
	"github.com/tomoncle/forge/entity"
	"github.com/tomoncle/forge/tracker"
)

// Context is a unit of work over one bun database. Entities are tracked with
// Add, Update and Remove and written together by Save. A Context is meant
// for one request at a time.
type Context struct {
	db          *bun.DB
	conventions database.ConventionConfig
	logger      database.Logger
	metrics     *database.Metrics
	now         func() time.Time
	tracker     *tracker.ChangeTracker
	resolve     func() *bun.DB

	mu sync.Mutex
	tx *bun.Tx
}

type Option func(*Context)

func WithConventions(conv database.ConventionConfig) Option {
	return func(c *Context) { c.conventions = conv }
}

func WithLogger(logger database.Logger) Option {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records the outcome of every save.
func WithMetrics(m *database.Metrics) Option {
	return func(c *Context) { c.metrics = m }
}

// WithResolver makes the context ask resolve for its database on every use,
// so it follows a manager that reconnects.
func WithResolver(resolve func() *bun.DB) Option {
	return func(c *Context) { c.resolve = resolve }
}

// WithClock replaces time.Now for the audit stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Context) {
		if now != nil {
			c.now = now
		}
	}
}

func NewContext(db *bun.DB, opts ...Option) *Context {
	c := &Context{
		db:          db,
		conventions: entity.DefaultConventions(),
		logger:      database.NopLogger(),
		now:         time.Now,
		tracker:     tracker.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Context) DB() *bun.DB {
	if c.resolve != nil {
		if db := c.resolve(); db != nil {
			return db
		}
	}
	return c.db
}

func (c *Context) Conventions() database.ConventionConfig { return c.conventions }

func (c *Context) ChangeTracker() *tracker.ChangeTracker { return c.tracker }

// Entry returns the tracker entry of e, or nil when e is not tracked.
func (c *Context) Entry(e any) *tracker.Entry { return c.tracker.Entry(e) }

// Add tracks entities to be inserted.
func (c *Context) Add(entities ...any) error { return c.track(tracker.Added, entities) }

// Update tracks entities to be updated by primary key.
func (c *Context) Update(entities ...any) error { return c.track(tracker.Modified, entities) }

// Remove tracks entities to be deleted, softly when they carry the delete
// convention.
func (c *Context) Remove(entities ...any) error { return c.track(tracker.Deleted, entities) }

func (c *Context) track(state tracker.EntityState, entities []any) error {
	for _, e := range entities {
		if _, err := c.tracker.Track(e, state); err != nil {
			return err
		}
	}
	return nil
}

// IDB returns the open transaction, or the database when none is open.
func (c *Context) IDB() bun.IDB {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil {
		return *c.tx
	}
	return c.DB()
}

func (c *Context) HasTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx != nil
}

// OpenTransaction begins a transaction at level, read committed when level
// is sql.LevelDefault. An already open transaction is rolled back first.
func (c *Context) OpenTransaction(ctx context.Context, level sql.IsolationLevel) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx != nil {
		if err := c.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			c.logger.Warn("Failed to roll back previous transaction", "error", err)
		}
		c.tx = nil
	}
	tx, err := c.DB().BeginTx(ctx, c.txOptions(level))
	if err != nil {
		return fmt.Errorf("failed to open transaction: %w", err)
	}
	c.tx = &tx
	return nil
}

// txOptions maps level for the dialect. SQLite only runs serializable
// transactions and rejects explicit levels on some drivers.
func (c *Context) txOptions(level sql.IsolationLevel) *sql.TxOptions {
	if c.DB().Dialect().Name() == dialect.SQLite {
		return nil
	}
	if level == sql.LevelDefault {
		level = sql.LevelReadCommitted
	}
	return &sql.TxOptions{Isolation: level}
}

func (c *Context) CommitTransaction() error {
	tx := c.takeTx()
	if tx == nil {
		return nil
	}
	return tx.Commit()
}

func (c *Context) RollbackTransaction() error {
	tx := c.takeTx()
	if tx == nil {
		return nil
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (c *Context) takeTx() *bun.Tx {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx := c.tx
	c.tx = nil
	return tx
}

type saveOptions struct {
	conventions bool
}

type SaveOption func(*saveOptions)

// WithoutChangeTracker skips the convention hook: shadow columns are not
// stamped and row versions are written as they are.
func WithoutChangeTracker() SaveOption {
	return func(o *saveOptions) { o.conventions = false }
}

// SaveWithTransaction opens a transaction at level and saves through it.
func (c *Context) SaveWithTransaction(ctx context.Context, level sql.IsolationLevel, opts ...SaveOption) error {
	if err := c.OpenTransaction(ctx, level); err != nil {
		return err
	}
	return c.Save(ctx, opts...)
}

// Save writes every pending entry. It commits the open transaction, or runs
// in a transaction of its own when none is open. On failure the transaction
// is rolled back, row versions are restored and the tracker is cleared.
func (c *Context) Save(ctx context.Context, opts ...SaveOption) error {
	o := saveOptions{conventions: true}
	for _, opt := range opts {
		opt(&o)
	}

	pending := c.tracker.Pending()
	versions := rowVersions(pending)
	if o.conventions {
		if err := tracker.ApplyConventions(ctx, pending, c.now(), c.conventions); err != nil {
			return c.failed(err, nil, pending, versions)
		}
	}

	tx := c.takeTx()
	if tx == nil {
		if len(pending) == 0 {
			return nil
		}
		begun, err := c.DB().BeginTx(ctx, c.txOptions(sql.LevelDefault))
		if err != nil {
			return c.failed(fmt.Errorf("failed to begin save transaction: %w", err), nil, pending, versions)
		}
		tx = &begun
	}

	for _, en := range pending {
		if err := c.execute(ctx, *tx, en); err != nil {
			_ = tx.Rollback()
			return c.failed(err, en, pending, versions)
		}
	}
	if err := tx.Commit(); err != nil {
		return c.failed(err, nil, pending, versions)
	}

	c.tracker.AcceptAll()
	c.metrics.ObserveSave(database.SaveCommitted)
	return nil
}

// failed classifies err, logs it and resets the unit of work.
func (c *Context) failed(err error, culprit *tracker.Entry, pending []*tracker.Entry, versions map[*tracker.Entry]int64) error {
	failedEntries := pending
	if culprit != nil {
		failedEntries = []*tracker.Entry{culprit}
	}
	lines := describe(failedEntries)
	c.fail(versions)

	var result error
	outcome := database.SaveFailed
	switch {
	case errors.Is(err, ErrConcurrencyConflict):
		result = &ConcurrencyError{Entries: lines, Err: err}
		outcome = database.SaveConflict
	case errors.Is(err, ErrStaticEntity):
		result = &UpdateError{Entries: lines, Err: err}
		outcome = database.SaveRejected
	default:
		if is, kind := database.IsSqlError(err); is && kind.IsConstraintViolation() {
			result = &UpdateError{Entries: lines, Err: err}
			outcome = database.SaveRejected
		} else {
			result = &saveError{entries: lines, err: err}
		}
	}
	c.metrics.ObserveSave(outcome)
	c.logger.Error("Failed to save changes", "outcome", outcome, "error", result.Error())
	return result
}

// rowVersions records the row version each pending entity holds before the
// save touches it.
func rowVersions(pending []*tracker.Entry) map[*tracker.Entry]int64 {
	versions := make(map[*tracker.Entry]int64)
	for _, en := range pending {
		if rv, ok := en.Entity().(entity.RowVersionedEntity); ok {
			versions[en] = rv.GetRowVersion()
		}
	}
	return versions
}

func (c *Context) fail(versions map[*tracker.Entry]int64) {
	for en, v := range versions {
		if rv, ok := en.Entity().(entity.RowVersionedEntity); ok {
			rv.SetRowVersion(v)
		}
	}
	if tx := c.takeTx(); tx != nil {
		_ = tx.Rollback()
	}
	c.tracker.Clear()
}

func (c *Context) execute(ctx context.Context, tx bun.Tx, en *tracker.Entry) error {
	caps := c.conventions.Effective(en.Capabilities())
	switch en.State() {
	case tracker.Added:
		return c.insert(ctx, tx, en)
	case tracker.Modified:
		return c.update(ctx, tx, en)
	case tracker.Deleted:
		if entity.IsStatic(en.Entity()) {
			return fmt.Errorf("%w: %s", ErrStaticEntity, en.TypeName())
		}
		if caps.Has(entity.CapDelete) {
			return c.softDelete(ctx, tx, en, caps)
		}
		return c.hardDelete(ctx, tx, en)
	}
	return nil
}

func (c *Context) insert(ctx context.Context, tx bun.Tx, en *tracker.Entry) error {
	if rv, ok := en.Entity().(entity.RowVersionedEntity); ok && rv.GetRowVersion() == 0 {
		rv.SetRowVersion(1)
	}
	q := tx.NewInsert().Model(en.Entity())
	for _, p := range en.Properties() {
		q = q.Value(p.Name, "?", p.Value)
	}
	_, err := q.Exec(ctx)
	return err
}

func (c *Context) update(ctx context.Context, tx bun.Tx, en *tracker.Entry) error {
	q := tx.NewUpdate().Model(en.Entity()).WherePK()
	for _, p := range en.Properties() {
		q = q.Value(p.Name, "?", p.Value)
	}
	if rv, ok := en.Entity().(entity.RowVersionedEntity); ok {
		read := en.OriginalRowVersion()
		rv.SetRowVersion(read + 1)
		q = q.Where("? = ?", bun.Ident(entity.ColumnRowVersion), read)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	return expectRows(res, en)
}

func (c *Context) softDelete(ctx context.Context, tx bun.Tx, en *tracker.Entry, caps entity.Capability) error {
	if _, ok := en.Property(entity.ColumnIsDelete); !ok {
		en.SetProperty(entity.ColumnIsDelete, true)
	}
	if _, ok := en.Property(entity.ColumnIsActive); !ok && caps.Has(entity.CapActive) {
		en.SetProperty(entity.ColumnIsActive, false)
	}
	q := tx.NewUpdate().Model(en.Entity()).WherePK()
	for _, p := range en.Properties() {
		q = q.Set("? = ?", bun.Ident(p.Name), p.Value)
	}
	if rv, ok := en.Entity().(entity.RowVersionedEntity); ok {
		read := en.OriginalRowVersion()
		rv.SetRowVersion(read + 1)
		q = q.Set("? = ?", bun.Ident(entity.ColumnRowVersion), read+1).
			Where("? = ?", bun.Ident(entity.ColumnRowVersion), read)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	return expectRows(res, en)
}

func (c *Context) hardDelete(ctx context.Context, tx bun.Tx, en *tracker.Entry) error {
	q := tx.NewDelete().Model(en.Entity()).WherePK()
	if _, ok := en.Entity().(entity.RowVersionedEntity); ok {
		q = q.Where("? = ?", bun.Ident(entity.ColumnRowVersion), en.OriginalRowVersion())
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	return expectRows(res, en)
}

// expectRows turns a write that touched no row into a concurrency conflict.
func expectRows(res sql.Result, en *tracker.Entry) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrConcurrencyConflict, en.TypeName())
	}
	return nil
}

// Reset rolls back any open transaction and forgets every tracked entity.
func (c *Context) Reset() {
	if tx := c.takeTx(); tx != nil {
		_ = tx.Rollback()
	}
	c.tracker.Clear()
}

type contextKey struct{}

// WithContext stores c in ctx.
func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the unit of work stored by WithContext.
func FromContext(ctx context.Context) (*Context, bool) {
	c, ok := ctx.Value(contextKey{}).(*Context)
	return c, ok && c != nil
}
