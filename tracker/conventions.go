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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomoncle/forge/entity"
	"github.com/tomoncle/forge/session"
)

var (
	ErrMissingTenant = errors.New("tenant id is required")
	ErrMissingUser   = errors.New("user id is required")
)

// ApplyConventions stamps the shadow columns of pending entries from the
// session in ctx. It must run before the entries are written.
func ApplyConventions(ctx context.Context, entries []*Entry, now time.Time, conv entity.Conventions) error {
	tenantID, hasTenant := session.TenantID(ctx)
	userID, hasUser := session.UserID(ctx)
	var user any
	if hasUser {
		user = userID
	}

	for _, en := range entries {
		caps := conv.Effective(en.caps)
		if caps.Has(entity.CapNotMapped) {
			continue
		}
		switch en.state {
		case Added:
			if caps.Has(entity.CapTenant) {
				if !hasTenant {
					return fmt.Errorf("%w: %s", ErrMissingTenant, en.TypeName())
				}
				en.SetProperty(entity.ColumnTenantID, tenantID)
			}
			if caps.Has(entity.CapActive) {
				en.SetProperty(entity.ColumnIsActive, true)
			}
			if caps.Has(entity.CapDelete) {
				en.SetProperty(entity.ColumnIsDelete, false)
			}
			if caps.Has(entity.CapCreationAudited) {
				if !hasUser {
					return fmt.Errorf("%w: %s", ErrMissingUser, en.TypeName())
				}
				en.SetProperty(entity.ColumnCreatedDate, now)
				en.SetProperty(entity.ColumnCreatedUserID, userID)
			}
			if rv, ok := en.entity.(entity.RowVersionedEntity); ok && rv.GetRowVersion() == 0 {
				rv.SetRowVersion(1)
			}

		case Modified:
			if caps.Has(entity.CapModificationAudited) {
				en.SetProperty(entity.ColumnModifiedDate, now)
				en.SetProperty(entity.ColumnModifiedUserID, user)
			}

		case Deleted:
			if caps.Has(entity.CapActive) {
				en.SetProperty(entity.ColumnIsActive, false)
			}
			if caps.Has(entity.CapDelete) {
				en.SetProperty(entity.ColumnIsDelete, true)
			}
			if caps.Has(entity.CapDeletionAudited) {
				en.SetProperty(entity.ColumnDeletedDate, now)
				en.SetProperty(entity.ColumnDeletedUserID, user)
			}
		}
	}
	return nil
}
