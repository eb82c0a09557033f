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

// Shadow column names.
const (
	ColumnTenantID       = "tenant_id"
	ColumnIsActive       = "is_active"
	ColumnIsDelete       = "is_delete"
	ColumnCreatedDate    = "created_date"
	ColumnCreatedUserID  = "created_user_id"
	ColumnModifiedDate   = "modified_date"
	ColumnModifiedUserID = "modified_user_id"
	ColumnDeletedDate    = "deleted_date"
	ColumnDeletedUserID  = "deleted_user_id"
	ColumnRowVersion     = "row_version"
)

// ColumnKind is the storage family of a shadow column.
type ColumnKind int

const (
	KindString ColumnKind = iota
	KindBool
	KindTime
)

// Column describes a shadow column provisioned next to the mapped fields.
type Column struct {
	Name    string
	Kind    ColumnKind
	NotNull bool
	Default string // "true", "false" or empty
}

// Conventions toggles shadow columns and the global query filters.
type Conventions struct {
	TenantShadow  bool `json:"tenant_shadow" yaml:"tenant_shadow"`
	ActiveShadow  bool `json:"active_shadow" yaml:"active_shadow"`
	DeleteShadow  bool `json:"delete_shadow" yaml:"delete_shadow"`
	AuditedShadow bool `json:"audited_shadow" yaml:"audited_shadow"`

	TenantFilter bool `json:"tenant_filter" yaml:"tenant_filter"`
	ActiveFilter bool `json:"active_filter" yaml:"active_filter"`
	DeleteFilter bool `json:"delete_filter" yaml:"delete_filter"`

	// Referenced by convention foreign keys when set.
	TenantTable string `json:"tenant_table" yaml:"tenant_table"`
	UserTable   string `json:"user_table" yaml:"user_table"`
}

// DefaultConventions enables every shadow column and leaves filters off.
func DefaultConventions() Conventions {
	return Conventions{
		TenantShadow:  true,
		ActiveShadow:  true,
		DeleteShadow:  true,
		AuditedShadow: true,
	}
}

// Effective masks the capabilities whose shadow columns are switched off.
func (c Conventions) Effective(caps Capability) Capability {
	if !c.TenantShadow {
		caps &^= CapTenant
	}
	if !c.ActiveShadow {
		caps &^= CapActive
	}
	if !c.DeleteShadow {
		caps &^= CapDelete
	}
	if !c.AuditedShadow {
		caps &^= CapCreationAudited | CapModificationAudited | CapDeletionAudited
	}
	return caps
}

// ShadowColumns lists the shadow columns carried by a model with caps.
func ShadowColumns(caps Capability, conv Conventions) []Column {
	caps = conv.Effective(caps)
	if caps.Has(CapNotMapped) {
		return nil
	}
	var cols []Column
	if caps.Has(CapTenant) {
		cols = append(cols, Column{Name: ColumnTenantID, Kind: KindString})
	}
	if caps.Has(CapActive) {
		cols = append(cols, Column{Name: ColumnIsActive, Kind: KindBool, NotNull: true, Default: "true"})
	}
	if caps.Has(CapDelete) {
		cols = append(cols, Column{Name: ColumnIsDelete, Kind: KindBool, NotNull: true, Default: "false"})
	}
	if caps.Has(CapCreationAudited) {
		cols = append(cols,
			Column{Name: ColumnCreatedDate, Kind: KindTime},
			Column{Name: ColumnCreatedUserID, Kind: KindString})
	}
	if caps.Has(CapModificationAudited) {
		cols = append(cols,
			Column{Name: ColumnModifiedDate, Kind: KindTime},
			Column{Name: ColumnModifiedUserID, Kind: KindString})
	}
	if caps.Has(CapDeletionAudited) {
		cols = append(cols,
			Column{Name: ColumnDeletedDate, Kind: KindTime},
			Column{Name: ColumnDeletedUserID, Kind: KindString})
	}
	return cols
}

// ShadowColumnNames is ShadowColumns reduced to names.
func ShadowColumnNames(caps Capability, conv Conventions) []string {
	cols := ShadowColumns(caps, conv)
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
