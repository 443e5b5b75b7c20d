// Copyright (c) 2018 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package uuid

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// UUID represents a 16-byte universally unique identifier.
// This type is a wrapper around google/uuid with the following differences:
//   - type is a byte slice instead of [16]byte so that it is compatible with some db drivers
//   - db serialization converts uuid to bytes as opposed to string
type UUID []byte

// replayNamespace is the fixed namespace UUID used to derive deterministic,
// name-based UUIDs for RandomUUID (spec section 4.D.8): the name-based UUID
// is over runID + ":" + idCounter, so replaying the same history with the
// same idCounter sequence always yields the same UUIDs.
var replayNamespace = uuid.MustParse("b2f41b6e-8f2a-4f2e-9b8e-9e7e9b0c7a10")

func MustNewUUID() UUID {
	newUUID, err := uuid.NewRandom()
	if err != nil {
		panic(err)
	}
	return newUUID[:]
}

// NewDeterministic returns a name-based (version 5) UUID over
// runID + ":" + counter. Two calls with the same arguments always return
// the same UUID, which is what makes RandomUUID reproducible across replay.
func NewDeterministic(runID string, counter int64) UUID {
	name := fmt.Sprintf("%s:%d", runID, counter)
	derived := uuid.NewSHA1(replayNamespace, []byte(name))
	return derived[:]
}

// MustParseUUID returns a UUID parsed from the given string representation
// panics if the given input is malformed, including the empty string
func MustParseUUID(s string) UUID {
	parsed, err := uuid.Parse(s)
	if err != nil {
		panic("invalid UUID string: " + s)
	}
	return parsed[:]
}

// MustParsePtrUUID returns a UUID parsed from the given string representation
// returns nil if the input pointer is nil
// panics if the given input is malformed, including the empty string
func MustParsePtrUUID(s *string) UUID {
	if s == nil {
		return nil
	}
	return MustParseUUID(*s)
}

// ParseUUID decodes s into a UUID or returns an error.
func ParseUUID(s string) (UUID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID string: %s", s)
	}
	return parsed[:], nil
}

// UUIDPtr simply returns a pointer for the given value type
func UUIDPtr(u UUID) *UUID {
	return &u
}

// String returns the 36 byte hexstring representation of this uuid
// return empty string if this uuid is nil
func (u UUID) String() string {
	if u == nil {
		return ""
	}
	parsed, err := uuid.FromBytes(u)
	if err != nil {
		return ""
	}
	return parsed.String()
}

// Scan implements sql.Scanner interface to allow this type to be
// parsed transparently by database drivers
func (u *UUID) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	guuid := &uuid.UUID{}
	if err := guuid.Scan(src); err != nil {
		return err
	}
	*u = (*guuid)[:]
	return nil
}

// Value implements sql.Valuer so that UUIDs can be written to databases
// transparently. This method returns a byte slice representation of uuid
func (u UUID) Value() (driver.Value, error) {
	return []byte(u), nil
}
