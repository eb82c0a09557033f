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
	"database/sql/driver"
)

// Status is the active/inactive enumeration, stored by name.
type Status struct{ Enum[int] }

var (
	StatusActive   = Status{NewEnum(1, "Active", "record is in use")}
	StatusInactive = Status{NewEnum(2, "Inactive", "record is disabled")}

	Statuses = NewEnumSet[int, Status](StatusActive, StatusInactive)
)

func ParseStatus(name string) (Status, error) { return Statuses.ByName(name) }

func (s Status) Value() (driver.Value, error) {
	if !s.IsValid() {
		return nil, nil
	}
	return providerValue(StatusConverter(), s)
}

func (s *Status) Scan(src any) error {
	text, err := scanText(src)
	if err != nil {
		return err
	}
	if text == "" {
		*s = Status{}
		return nil
	}
	v, err := StatusConverter().FromProvider(text)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
