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
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidEmail     = errors.New("invalid email")
	ErrInvalidName      = errors.New("invalid name")
	ErrInvalidSubdomain = errors.New("invalid subdomain")
)

const maxNameLength = 150

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// Email is a validated mailbox address without display name.
type Email struct{ value string }

func NewEmail(s string) (Email, error) {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return Email{}, fmt.Errorf("%w: %q", ErrInvalidEmail, s)
	}
	return Email{value: s}, nil
}

func (e Email) String() string { return e.value }

func (e Email) IsZero() bool { return e.value == "" }

func (e Email) Value() (driver.Value, error) { return providerValue(EmailConverter(), e) }

func (e *Email) Scan(src any) error {
	return scanValueObject(src, EmailConverter(), e)
}

// Name is a trimmed, non-empty person or entity name.
type Name struct{ value string }

func NewName(s string) (Name, error) {
	s = strings.TrimSpace(s)
	if s == "" || utf8.RuneCountInString(s) > maxNameLength {
		return Name{}, fmt.Errorf("%w: %q", ErrInvalidName, s)
	}
	return Name{value: s}, nil
}

func (n Name) String() string { return n.value }

func (n Name) IsZero() bool { return n.value == "" }

func (n Name) Value() (driver.Value, error) { return providerValue(NameConverter(), n) }

func (n *Name) Scan(src any) error {
	return scanValueObject(src, NameConverter(), n)
}

// Subdomain is a single lower-case DNS label, as in "documents" for
// documents.example.com.
type Subdomain struct{ value string }

func NewSubdomain(s string) (Subdomain, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !subdomainPattern.MatchString(s) {
		return Subdomain{}, fmt.Errorf("%w: %q", ErrInvalidSubdomain, s)
	}
	return Subdomain{value: s}, nil
}

func (s Subdomain) String() string { return s.value }

func (s Subdomain) IsZero() bool { return s.value == "" }

func (s Subdomain) Value() (driver.Value, error) { return providerValue(SubdomainConverter(), s) }

func (s *Subdomain) Scan(src any) error {
	return scanValueObject(src, SubdomainConverter(), s)
}

func scanValueObject[M any](src any, conv *Converter[M, string], dst *M) error {
	text, err := scanText(src)
	if err != nil {
		return err
	}
	v, err := conv.FromProvider(text)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
