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
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var ErrNotPointer = errors.New("tracked entity must be a non-nil pointer to a struct")

// ChangeTracker records the entities a unit of work will persist. Entries
// are keyed by pointer identity and kept in tracking order.
type ChangeTracker struct {
	mu      sync.Mutex
	entries []*Entry
	index   map[any]*Entry
}

func New() *ChangeTracker {
	return &ChangeTracker{index: make(map[any]*Entry)}
}

// Track attaches e in the given state. Tracking an already attached entity
// moves it to the new state, except that an Added entity stays Added when
// modified and is detached when deleted.
func (t *ChangeTracker) Track(e any, state EntityState) (*Entry, error) {
	if err := checkPointer(e); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.index[e]; ok {
		switch {
		case existing.state == Added && state == Deleted:
			t.detachLocked(e)
			existing.state = Detached
		case existing.state == Added && state == Modified:
		default:
			existing.state = state
		}
		return existing, nil
	}
	if state == Detached {
		return nil, nil
	}
	en := newEntry(e, state)
	t.entries = append(t.entries, en)
	t.index[e] = en
	return en, nil
}

// Entry returns the entry for e, or nil when e is not tracked.
func (t *ChangeTracker) Entry(e any) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.index[e]
}

func (t *ChangeTracker) Entries() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Find returns the first attached entry whose entity satisfies match.
func (t *ChangeTracker) Find(match func(e any) bool) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, en := range t.entries {
		if en.state != Detached && match(en.entity) {
			return en
		}
	}
	return nil
}

// Pending returns the entries that a save has to write.
func (t *ChangeTracker) Pending() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Entry
	for _, en := range t.entries {
		switch en.state {
		case Added, Modified, Deleted:
			out = append(out, en)
		}
	}
	return out
}

func (t *ChangeTracker) HasChanges() bool {
	return len(t.Pending()) > 0
}

// AcceptAll marks saved entries Unchanged and forgets deleted ones.
func (t *ChangeTracker) AcceptAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.entries[:0]
	for _, en := range t.entries {
		switch en.state {
		case Deleted, Detached:
			delete(t.index, en.entity)
			en.state = Detached
			continue
		case Added, Modified:
			en.state = Unchanged
			en.snapshotRowVersion()
		}
		kept = append(kept, en)
	}
	t.entries = kept
}

func (t *ChangeTracker) Detach(e any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if en, ok := t.index[e]; ok {
		en.state = Detached
		t.detachLocked(e)
	}
}

func (t *ChangeTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, en := range t.entries {
		en.state = Detached
	}
	t.entries = nil
	t.index = make(map[any]*Entry)
}

func (t *ChangeTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *ChangeTracker) detachLocked(e any) {
	delete(t.index, e)
	for i, en := range t.entries {
		if en.entity == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

func checkPointer(e any) error {
	v := reflect.ValueOf(e)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w, got %T", ErrNotPointer, e)
	}
	return nil
}
