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
	"database/sql/driver"
	"fmt"
	"strconv"
)

// Converter maps a model type M to the primitive P a column stores.
type Converter[M any, P any] struct {
	to   func(M) (P, error)
	from func(P) (M, error)
}

func NewConverter[M any, P any](to func(M) (P, error), from func(P) (M, error)) *Converter[M, P] {
	return &Converter[M, P]{to: to, from: from}
}

func (c *Converter[M, P]) ToProvider(m M) (P, error) { return c.to(m) }

func (c *Converter[M, P]) FromProvider(p P) (M, error) { return c.from(p) }

// EnumNameConverter stores an enumeration as its name.
func EnumNameConverter[V cmp.Ordered, E Enumeration[V]](set *EnumSet[V, E]) *Converter[E, string] {
	return NewConverter(
		func(e E) (string, error) { return e.Name(), nil },
		set.ByName,
	)
}

// EnumValueConverter stores an enumeration as its key.
func EnumValueConverter[V cmp.Ordered, E Enumeration[V]](set *EnumSet[V, E]) *Converter[E, V] {
	return NewConverter(
		func(e E) (V, error) { return e.Key(), nil },
		set.ByKey,
	)
}

var (
	statusConverter    = EnumNameConverter(Statuses)
	emailConverter     = stringValueConverter(NewEmail)
	nameConverter      = stringValueConverter(NewName)
	subdomainConverter = stringValueConverter(NewSubdomain)
)

func StatusConverter() *Converter[Status, string] { return statusConverter }

func EmailConverter() *Converter[Email, string] { return emailConverter }

func NameConverter() *Converter[Name, string] { return nameConverter }

func SubdomainConverter() *Converter[Subdomain, string] { return subdomainConverter }

type stringValue interface {
	String() string
	IsZero() bool
}

// stringValueConverter maps a validated value object to its text. Empty text
// maps to the zero value so nullable columns load cleanly.
func stringValueConverter[M stringValue](create func(string) (M, error)) *Converter[M, string] {
	return NewConverter(
		func(m M) (string, error) {
			if m.IsZero() {
				return "", nil
			}
			return m.String(), nil
		},
		func(s string) (M, error) {
			if s == "" {
				var zero M
				return zero, nil
			}
			return create(s)
		},
	)
}

// scanText reads a driver value that should hold text.
func scanText(src any) (string, error) {
	switch v := src.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("cannot scan %T into text", src)
	}
}

// ScanInt64 reads a driver value that should hold an integer.
func ScanInt64(src any) (int64, error) {
	switch v := src.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("cannot scan %T into int64", src)
	}
}

func providerValue[M any, P any](c *Converter[M, P], m M) (driver.Value, error) {
	p, err := c.ToProvider(m)
	if err != nil {
		return nil, err
	}
	return p, nil
}
