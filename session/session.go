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

// Package session carries the caller's tenant and user through a
// context.Context.
package session

import (
	"context"
	"strings"
)

type ctxKey int

const (
	tenantKey ctxKey = iota
	userKey
)

// WithTenant returns a copy of ctx scoped to the given tenant.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// WithUser returns a copy of ctx acting as the given user.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// With sets both tenant and user.
func With(ctx context.Context, tenantID, userID string) context.Context {
	return WithUser(WithTenant(ctx, tenantID), userID)
}

// TenantID returns the tenant stored in ctx. Blank values count as missing.
func TenantID(ctx context.Context) (string, bool) {
	return lookup(ctx, tenantKey)
}

// UserID returns the user stored in ctx. Blank values count as missing.
func UserID(ctx context.Context) (string, bool) {
	return lookup(ctx, userKey)
}

func lookup(ctx context.Context, key ctxKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}
