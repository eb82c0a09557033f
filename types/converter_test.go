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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gender struct{ Enum[int] }

var (
	genderMale   = gender{NewEnum(1, "Male", "male")}
	genderFemale = gender{NewEnum(2, "Female", "female")}
	genders      = NewEnumSet[int, gender](genderMale, genderFemale)
)

func TestEnumNameConverter(t *testing.T) {
	t.Parallel()

	conv := EnumNameConverter(genders)

	name, err := conv.ToProvider(genderMale)
	require.NoError(t, err)
	assert.Equal(t, "Male", name)

	back, err := conv.FromProvider(name)
	require.NoError(t, err)
	assert.Equal(t, genderMale, back)

	_, err = conv.FromProvider("Other")
	assert.ErrorIs(t, err, ErrUnknownEnum)
}

func TestEnumValueConverter(t *testing.T) {
	t.Parallel()

	conv := EnumValueConverter(genders)

	v, err := conv.ToProvider(genderFemale)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	back, err := conv.FromProvider(v)
	require.NoError(t, err)
	assert.Equal(t, genderFemale, back)

	_, err = conv.FromProvider(42)
	assert.ErrorIs(t, err, ErrUnknownEnum)
}

func TestStatusConverter(t *testing.T) {
	t.Parallel()

	for _, status := range []Status{StatusActive, StatusInactive} {
		text, err := StatusConverter().ToProvider(status)
		require.NoError(t, err)
		assert.Equal(t, status.String(), text)

		back, err := StatusConverter().FromProvider(text)
		require.NoError(t, err)
		assert.Equal(t, status, back)
	}

	s, err := ParseStatus("inactive")
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, s)
}

func TestValueObjectConverters(t *testing.T) {
	t.Parallel()

	t.Run("email", func(t *testing.T) {
		e, err := NewEmail("email@email.com")
		require.NoError(t, err)
		text, err := EmailConverter().ToProvider(e)
		require.NoError(t, err)
		assert.Equal(t, "email@email.com", text)
		back, err := EmailConverter().FromProvider(text)
		require.NoError(t, err)
		assert.Equal(t, e.String(), back.String())
	})

	t.Run("name", func(t *testing.T) {
		n, err := NewName("Juan pedro")
		require.NoError(t, err)
		text, err := NameConverter().ToProvider(n)
		require.NoError(t, err)
		assert.Equal(t, "Juan pedro", text)
		back, err := NameConverter().FromProvider(text)
		require.NoError(t, err)
		assert.Equal(t, n, back)
	})

	t.Run("subdomain", func(t *testing.T) {
		s, err := NewSubdomain("documents")
		require.NoError(t, err)
		text, err := SubdomainConverter().ToProvider(s)
		require.NoError(t, err)
		assert.Equal(t, "documents", text)
		back, err := SubdomainConverter().FromProvider(text)
		require.NoError(t, err)
		assert.Equal(t, s, back)
	})

	t.Run("empty maps to zero", func(t *testing.T) {
		e, err := EmailConverter().FromProvider("")
		require.NoError(t, err)
		assert.True(t, e.IsZero())
		text, err := EmailConverter().ToProvider(Email{})
		require.NoError(t, err)
		assert.Empty(t, text)
	})
}

func TestValueObjectValidation(t *testing.T) {
	t.Parallel()

	_, err := NewEmail("not an email")
	assert.ErrorIs(t, err, ErrInvalidEmail)
	_, err = NewEmail("Juan <juan@example.com>")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = NewName("   ")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = NewSubdomain("-bad-")
	assert.ErrorIs(t, err, ErrInvalidSubdomain)
	s, err := NewSubdomain(" Docs ")
	require.NoError(t, err)
	assert.Equal(t, "docs", s.String())
}

func TestScanValuer(t *testing.T) {
	t.Parallel()

	var s Status
	require.NoError(t, s.Scan([]byte("Active")))
	assert.Equal(t, StatusActive, s)
	v, err := s.Value()
	require.NoError(t, err)
	assert.Equal(t, "Active", v)

	require.NoError(t, s.Scan(nil))
	assert.False(t, s.IsValid())

	var e Email
	require.NoError(t, e.Scan("a@b.io"))
	assert.Equal(t, "a@b.io", e.String())
	assert.Error(t, e.Scan(12))
}

func TestEnum(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, genderMale.Number())
	assert.Equal(t, "male", genderMale.Desc())
	assert.True(t, genderMale.IsValid())

	var zero gender
	assert.False(t, zero.IsValid())
	assert.Equal(t, IllegalName, zero.Name())

	textKeyed := NewEnum("m", "Male", "")
	assert.Equal(t, IllegalValue, textKeyed.Number())
	assert.Equal(t, IllegalDesc, textKeyed.Desc())

	if diff := cmp.Diff([]string{"Male", "Female"}, names(genders.All())); diff != "" {
		t.Errorf("All() mismatch (-want +got):\n%s", diff)
	}
}

func names(items []gender) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name()
	}
	return out
}
