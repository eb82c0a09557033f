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

package tracker

import (
	"fmt"
	"sort"

	"github.com/tomoncle/forge/entity"
)

// EntityState is the lifecycle state of a tracked entity.
type EntityState int

const (
	Detached EntityState = iota
	Unchanged
	Added
	Modified
	Deleted
)

func (s EntityState) String() string {
	switch s {
	case Detached:
		return "Detached"
	case Unchanged:
		return "Unchanged"
	case Added:
		return "Added"
	case Modified:
		return "Modified"
	case Deleted:
		return "Deleted"
	default:
		return fmt.Sprintf("EntityState(%d)", int(s))
	}
}

// Entry is the tracker's view of one entity: its state, the conventions it
// carries and the current values of its shadow columns.
type Entry struct {
	entity   any
	state    EntityState
	caps     entity.Capability
	values   map[string]any
	original int64
}

func newEntry(e any, state EntityState) *Entry {
	en := &Entry{
		entity: e,
		state:  state,
		caps:   entity.Capabilities(e),
		values: make(map[string]any),
	}
	en.snapshotRowVersion()
	return en
}

func (e *Entry) Entity() any { return e.entity }

func (e *Entry) State() EntityState { return e.state }

func (e *Entry) SetState(state EntityState) { e.state = state }

func (e *Entry) Capabilities() entity.Capability { return e.caps }

func (e *Entry) TypeName() string { return entity.TypeName(e.entity) }

// Property returns the current value of a shadow column.
func (e *Entry) Property(name string) (any, bool) {
	v, ok := e.values[name]
	return v, ok
}

func (e *Entry) SetProperty(name string, value any) {
	e.values[name] = value
}

// Properties returns the shadow values sorted by column name.
func (e *Entry) Properties() []Property {
	props := make([]Property, 0, len(e.values))
	for k, v := range e.values {
		props = append(props, Property{Name: k, Value: v})
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	return props
}

// OriginalRowVersion is the concurrency stamp the entity carried when it
// was attached or last saved.
func (e *Entry) OriginalRowVersion() int64 { return e.original }

// SetOriginalRowVersion replaces the stamp the next save checks against.
func (e *Entry) SetOriginalRowVersion(v int64) { e.original = v }

func (e *Entry) snapshotRowVersion() {
	if rv, ok := e.entity.(entity.RowVersionedEntity); ok {
		e.original = rv.GetRowVersion()
	}
}

// Describe renders the entry the way save failures report it.
func (e *Entry) Describe() string {
	return fmt.Sprintf("Entity of type %s in state %s could not be updated", e.TypeName(), e.state)
}

// Property is a shadow column name and value pair.
type Property struct {
	Name  string
	Value any
}
