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

// Package resources implements sets of Internet number resources: AS numbers
// and IPv4/IPv6 address ranges. Sets are always kept in normalized form, that
// is sorted with overlapping and adjacent ranges merged. The package also
// encodes and decodes the RFC 3779 certificate extensions.
package resources

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

// ErrInvalidResource indicates a malformed textual or encoded resource.
var ErrInvalidResource = errors.New("invalid resource")

// ASRange is an inclusive range of AS numbers.
type ASRange struct {
	Min uint32
	Max uint32
}

func (r ASRange) String() string {
	if r.Min == r.Max {
		return strconv.FormatUint(uint64(r.Min), 10)
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// ASSet is a normalized set of AS numbers. The zero value is the empty set.
type ASSet []ASRange

// NewASSet creates a normalized set from arbitrary ranges. Ranges with
// Min > Max are swapped.
func NewASSet(ranges ...ASRange) ASSet {
	if len(ranges) == 0 {
		return nil
	}
	rs := make([]ASRange, 0, len(ranges))
	for _, r := range ranges {
		if r.Min > r.Max {
			r.Min, r.Max = r.Max, r.Min
		}
		rs = append(rs, r)
	}
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].Min < rs[j].Min
	})
	out := ASSet{rs[0]}
	for _, r := range rs[1:] {
		last := &out[len(out)-1]
		// Merge overlapping and adjacent ranges.
		if last.Max == math.MaxUint32 || r.Min <= last.Max+1 {
			if r.Max > last.Max {
				last.Max = r.Max
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// ParseASSet parses a comma separated list of AS numbers and ranges, for
// example "64496-64511,65000". The empty string is the empty set.
func ParseASSet(s string) (ASSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var ranges []ASRange
	for _, elem := range strings.Split(s, ",") {
		elem = strings.TrimSpace(elem)
		lo, hi, isRange := strings.Cut(elem, "-")
		first, err := parseASN(lo)
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if last, err = parseASN(hi); err != nil {
				return nil, err
			}
			if last < first {
				return nil, serrors.JoinNoStack(ErrInvalidResource, nil, "range", elem)
			}
		}
		ranges = append(ranges, ASRange{Min: first, Max: last})
	}
	return NewASSet(ranges...), nil
}

func parseASN(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "AS")
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, serrors.JoinNoStack(ErrInvalidResource, err, "asn", s)
	}
	return uint32(v), nil
}

// MustParseASSet is like ParseASSet but panics on error.
func MustParseASSet(s string) ASSet {
	set, err := ParseASSet(s)
	if err != nil {
		panic(err)
	}
	return set
}

func (s ASSet) String() string {
	parts := make([]string, 0, len(s))
	for _, r := range s {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ",")
}

// IsEmpty reports whether the set contains no AS numbers.
func (s ASSet) IsEmpty() bool {
	return len(s) == 0
}

// Equal reports whether both sets contain the same AS numbers.
func (s ASSet) Equal(o ASSet) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Union returns the set of AS numbers in s or o.
func (s ASSet) Union(o ASSet) ASSet {
	all := make([]ASRange, 0, len(s)+len(o))
	all = append(all, s...)
	all = append(all, o...)
	return NewASSet(all...)
}

// Intersect returns the set of AS numbers in both s and o.
func (s ASSet) Intersect(o ASSet) ASSet {
	var out ASSet
	i, j := 0, 0
	for i < len(s) && j < len(o) {
		lo := max(s[i].Min, o[j].Min)
		hi := min(s[i].Max, o[j].Max)
		if lo <= hi {
			out = append(out, ASRange{Min: lo, Max: hi})
		}
		if s[i].Max < o[j].Max {
			i++
		} else {
			j++
		}
	}
	return out
}

// Contains reports whether o is a subset of s.
func (s ASSet) Contains(o ASSet) bool {
	return s.Intersect(o).Equal(o)
}

// ContainsASN reports whether asn is in s.
func (s ASSet) ContainsASN(asn uint32) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i].Max >= asn })
	return i < len(s) && s[i].Min <= asn
}
