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

package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionValues(t *testing.T) {
	t.Parallel()

	ctx := With(context.Background(), "tenant-a", "user-1")
	tenant, ok := TenantID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "tenant-a", tenant)

	user, ok := UserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user-1", user)
}

func TestSessionMissing(t *testing.T) {
	t.Parallel()

	_, ok := TenantID(context.Background())
	assert.False(t, ok)

	_, ok = UserID(WithUser(context.Background(), "   "))
	assert.False(t, ok, "blank user counts as missing")
}
