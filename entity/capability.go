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

package entity

import (
	"reflect"
	"strings"
	"sync"
)

// Capability is a bit set of the conventions a model opted into.
type Capability uint16

const (
	CapTenant Capability = 1 << iota
	CapActive
	CapDelete
	CapCreationAudited
	CapModificationAudited
	CapDeletionAudited
	CapStatic
	CapRowVersion
	CapNotMapped
)

var capabilityNames = []struct {
	cap  Capability
	name string
}{
	{CapTenant, "tenant"},
	{CapActive, "active"},
	{CapDelete, "delete"},
	{CapCreationAudited, "creation_audited"},
	{CapModificationAudited, "modification_audited"},
	{CapDeletionAudited, "deletion_audited"},
	{CapStatic, "static"},
	{CapRowVersion, "row_version"},
	{CapNotMapped, "not_mapped"},
}

func (c Capability) Has(other Capability) bool { return c&other == other }

func (c Capability) String() string {
	var parts []string
	for _, n := range capabilityNames {
		if c.Has(n.cap) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

var capabilityCache sync.Map // reflect.Type -> Capability

// Capabilities inspects a model (value or pointer) and reports which
// conventions it implements. Results are cached per type.
func Capabilities(model any) Capability {
	typ := indirectType(reflect.TypeOf(model))
	if typ == nil {
		return 0
	}
	if c, ok := capabilityCache.Load(typ); ok {
		return c.(Capability)
	}
	c := capabilitiesOf(reflect.New(typ).Interface())
	capabilityCache.Store(typ, c)
	return c
}

func capabilitiesOf(ptr any) Capability {
	var c Capability
	if _, ok := ptr.(TenantEntity); ok {
		c |= CapTenant
	}
	if _, ok := ptr.(ActiveEntity); ok {
		c |= CapActive
	}
	if _, ok := ptr.(DeleteEntity); ok {
		c |= CapDelete
	}
	if _, ok := ptr.(CreationAuditedEntity); ok {
		c |= CapCreationAudited
	}
	if _, ok := ptr.(ModificationAuditedEntity); ok {
		c |= CapModificationAudited
	}
	if _, ok := ptr.(DeletionAuditedEntity); ok {
		c |= CapDeletionAudited
	}
	if _, ok := ptr.(StaticEntity); ok {
		c |= CapStatic
	}
	if _, ok := ptr.(RowVersionedEntity); ok {
		c |= CapRowVersion
	}
	if _, ok := ptr.(NotMappedEntity); ok {
		c |= CapNotMapped
	}
	return c
}

// IsStatic reports whether the given entity instance is protected.
func IsStatic(model any) bool {
	s, ok := model.(StaticEntity)
	return ok && s.IsStatic()
}

// TypeName returns the bare struct name of a model.
func TypeName(model any) string {
	typ := indirectType(reflect.TypeOf(model))
	if typ == nil {
		return "<nil>"
	}
	return typ.Name()
}

func indirectType(t reflect.Type) reflect.Type {
	for t != nil && (t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice) {
		t = t.Elem()
	}
	return t
}
