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
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tomoncle/forge/tracker"
)

var (
	ErrNotFound            = errors.New("entity not found")
	ErrStaticEntity        = errors.New("static entity cannot be deleted")
	ErrConcurrencyConflict = errors.New("the row was changed or removed since it was read")
	ErrUnknownProperty     = errors.New("unknown property")
)

func notFound(typeName string) error {
	return fmt.Errorf("%w: %s: %w", ErrNotFound, typeName, sql.ErrNoRows)
}

// ConcurrencyError reports a save rejected because a row version did not
// match the value that was read.
type ConcurrencyError struct {
	Entries []string
	Err     error
}

func (e *ConcurrencyError) Error() string { return annotate(e.Err, e.Entries) }

func (e *ConcurrencyError) Unwrap() error { return e.Err }

// UpdateError reports a save rejected by a convention, such as deleting a
// static entity, or by a database constraint.
type UpdateError struct {
	Entries []string
	Err     error
}

func (e *UpdateError) Error() string { return annotate(e.Err, e.Entries) }

func (e *UpdateError) Unwrap() error { return e.Err }

// saveError is any other save failure.
type saveError struct {
	entries []string
	err     error
}

func (e *saveError) Error() string { return annotate(e.err, e.entries) }

func (e *saveError) Unwrap() error { return e.err }

// annotate appends one line per failed entry to the cause message.
func annotate(err error, entries []string) string {
	var b strings.Builder
	if err != nil {
		b.WriteString(err.Error())
	}
	for _, line := range entries {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}

func describe(entries []*tracker.Entry) []string {
	lines := make([]string, 0, len(entries))
	for _, en := range entries {
		lines = append(lines, en.Describe())
	}
	return lines
}
