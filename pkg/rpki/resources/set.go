// Copyright 2025 The OpenRPKI Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resources

import (
	"fmt"
	"time"
)

// Set is a complete resource set as carried by a resource certificate. The
// Inherit flags mark families whose resources are inherited from the issuer.
type Set struct {
	AS ASSet
	V4 IPSet
	V6 IPSet

	InheritAS bool
	InheritV4 bool
	InheritV6 bool

	// NotAfter optionally bounds the validity of the resources. It is not
	// part of any set operation.
	NotAfter time.Time
}

// Parse builds a set from the textual forms of the three families.
func Parse(as, v4, v6 string) (Set, error) {
	var s Set
	var err error
	if s.AS, err = ParseASSet(as); err != nil {
		return Set{}, err
	}
	if s.V4, err = ParseIPSet(IPv4, v4); err != nil {
		return Set{}, err
	}
	if s.V6, err = ParseIPSet(IPv6, v6); err != nil {
		return Set{}, err
	}
	return s, nil
}

// MustParse is like Parse but panics on error.
func MustParse(as, v4, v6 string) Set {
	s, err := Parse(as, v4, v6)
	if err != nil {
		panic(err)
	}
	return s
}

// IsEmpty reports whether no family holds resources or is inherited.
func (s Set) IsEmpty() bool {
	return s.AS.IsEmpty() && s.V4.IsEmpty() && s.V6.IsEmpty() &&
		!s.InheritAS && !s.InheritV4 && !s.InheritV6
}

// Equal compares the resources and inherit flags of both sets.
func (s Set) Equal(o Set) bool {
	return s.AS.Equal(o.AS) && s.V4.Equal(o.V4) && s.V6.Equal(o.V6) &&
		s.InheritAS == o.InheritAS && s.InheritV4 == o.InheritV4 &&
		s.InheritV6 == o.InheritV6
}

// Union merges both sets per family. Inherit flags are or'ed.
func (s Set) Union(o Set) Set {
	return Set{
		AS:        s.AS.Union(o.AS),
		V4:        s.V4.Union(o.V4),
		V6:        s.V6.Union(o.V6),
		InheritAS: s.InheritAS || o.InheritAS,
		InheritV4: s.InheritV4 || o.InheritV4,
		InheritV6: s.InheritV6 || o.InheritV6,
	}
}

// Intersect intersects both sets per family. A family that is inherited on one
// side takes the resources and inherit flag of the other side.
func (s Set) Intersect(o Set) Set {
	var r Set
	switch {
	case s.InheritAS:
		r.AS, r.InheritAS = o.AS, o.InheritAS
	case o.InheritAS:
		r.AS = s.AS
	default:
		r.AS = s.AS.Intersect(o.AS)
	}
	switch {
	case s.InheritV4:
		r.V4, r.InheritV4 = o.V4, o.InheritV4
	case o.InheritV4:
		r.V4 = s.V4
	default:
		r.V4 = s.V4.Intersect(o.V4)
	}
	switch {
	case s.InheritV6:
		r.V6, r.InheritV6 = o.V6, o.InheritV6
	case o.InheritV6:
		r.V6 = s.V6
	default:
		r.V6 = s.V6.Intersect(o.V6)
	}
	return r
}

// Contains reports whether o is a subset of s. An inherited family in o is
// contained only if s inherits it as well.
func (s Set) Contains(o Set) bool {
	if o.InheritAS && !s.InheritAS || o.InheritV4 && !s.InheritV4 ||
		o.InheritV6 && !s.InheritV6 {
		return false
	}
	return (s.InheritAS || s.AS.Contains(o.AS)) &&
		(s.InheritV4 || s.V4.Contains(o.V4)) &&
		(s.InheritV6 || s.V6.Contains(o.V6))
}

func (s Set) String() string {
	f := func(inherit bool, v fmt.Stringer) string {
		if inherit {
			return "inherit"
		}
		return v.String()
	}
	return fmt.Sprintf("as=%s ipv4=%s ipv6=%s",
		f(s.InheritAS, s.AS), f(s.InheritV4, s.V4), f(s.InheritV6, s.V6))
}
