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

// TenantEntity marks a model whose rows belong to a tenant.
type TenantEntity interface{ tenantScoped() }

// ActiveEntity marks a model carrying an is_active flag.
type ActiveEntity interface{ activeFlagged() }

// DeleteEntity marks a model that is soft deleted through is_delete.
type DeleteEntity interface{ softDeleted() }

// CreationAuditedEntity marks a model stamped with creation date and user.
type CreationAuditedEntity interface{ creationAudited() }

// ModificationAuditedEntity marks a model stamped on every update.
type ModificationAuditedEntity interface{ modificationAudited() }

// DeletionAuditedEntity marks a model stamped when deleted.
type DeletionAuditedEntity interface{ deletionAudited() }

// NotMappedEntity excludes a registered type from convention handling.
type NotMappedEntity interface{ notMapped() }

// StaticEntity is implemented by models with protected rows. A row whose
// IsStatic reports true can be neither hard nor soft deleted.
type StaticEntity interface {
	IsStatic() bool
}

// RowVersionedEntity is implemented by models with an optimistic
// concurrency stamp.
type RowVersionedEntity interface {
	GetRowVersion() int64
	SetRowVersion(version int64)
}

// The structs below are embedded into bun models to opt into a convention.
// They carry no columns; the matching shadow columns are provisioned and
// written by the database and repository packages.

type Tenant struct{}

func (Tenant) tenantScoped() {}

type Active struct{}

func (Active) activeFlagged() {}

type SoftDelete struct{}

func (SoftDelete) softDeleted() {}

type CreationAudited struct{}

func (CreationAudited) creationAudited() {}

type ModificationAudited struct{}

func (ModificationAudited) modificationAudited() {}

type DeletionAudited struct{}

func (DeletionAudited) deletionAudited() {}

// FullAudited combines creation, modification and deletion auditing.
type FullAudited struct{}

func (FullAudited) creationAudited()     {}
func (FullAudited) modificationAudited() {}
func (FullAudited) deletionAudited()     {}

type NotMapped struct{}

func (NotMapped) notMapped() {}

// Versioned is embedded to get a row_version column maintained by the
// unit of work.
type Versioned struct {
	RowVersion int64 `bun:"row_version,notnull,default:1" json:"row_version"`
}

func (v *Versioned) GetRowVersion() int64 { return v.RowVersion }

func (v *Versioned) SetRowVersion(version int64) { v.RowVersion = version }
