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

package types

import (
	"cmp"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

var ErrUnknownEnum = errors.New("unknown enumeration")

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// Enumeration is an enum with a typed key, looked up by EnumSet.
type Enumeration[V cmp.Ordered] interface {
	Key() V
	Name() string
}

// Enum is embedded by concrete enumeration types:
//
//	type Gender struct{ types.Enum[int] }
type Enum[V cmp.Ordered] struct {
	key  V
	name string
	desc string
}

func NewEnum[V cmp.Ordered](key V, name, desc string) Enum[V] {
	return Enum[V]{key: key, name: name, desc: desc}
}

func (e Enum[V]) Key() V { return e.key }

func (e Enum[V]) Name() string {
	if e.name == "" {
		return IllegalName
	}
	return e.name
}

func (e Enum[V]) String() string { return e.Name() }

func (e Enum[V]) Desc() string {
	if e.desc == "" {
		return IllegalDesc
	}
	return e.desc
}

func (e Enum[V]) IsValid() bool { return e.name != "" && e.name != IllegalName }

// Number returns the key as an int for integer keyed enums and
// IllegalValue otherwise.
func (e Enum[V]) Number() int {
	rv := reflect.ValueOf(e.key)
	switch {
	case rv.CanInt():
		return int(rv.Int())
	case rv.CanUint():
		return int(rv.Uint())
	default:
		return IllegalValue
	}
}

// EnumSet indexes the members of one enumeration type by name and key.
type EnumSet[V cmp.Ordered, E Enumeration[V]] struct {
	items  []E
	byName map[string]E
	byKey  map[V]E
}

func NewEnumSet[V cmp.Ordered, E Enumeration[V]](items ...E) *EnumSet[V, E] {
	s := &EnumSet[V, E]{
		items:  items,
		byName: make(map[string]E, len(items)),
		byKey:  make(map[V]E, len(items)),
	}
	for _, it := range items {
		s.byName[it.Name()] = it
		s.byKey[it.Key()] = it
	}
	return s
}

// ByName finds a member by name, falling back to a case-insensitive match.
func (s *EnumSet[V, E]) ByName(name string) (E, error) {
	if it, ok := s.byName[name]; ok {
		return it, nil
	}
	for _, it := range s.items {
		if strings.EqualFold(it.Name(), strings.TrimSpace(name)) {
			return it, nil
		}
	}
	var zero E
	return zero, fmt.Errorf("%w: name %q", ErrUnknownEnum, name)
}

func (s *EnumSet[V, E]) ByKey(key V) (E, error) {
	if it, ok := s.byKey[key]; ok {
		return it, nil
	}
	var zero E
	return zero, fmt.Errorf("%w: key %v", ErrUnknownEnum, key)
}

func (s *EnumSet[V, E]) All() []E {
	out := make([]E, len(s.items))
	copy(out, s.items)
	return out
}
