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
	"net/netip"
	"strings"

	"go4.org/netipx"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

// Family is an IP address family.
type Family int

const (
	IPv4 Family = 4
	IPv6 Family = 6
)

func (f Family) String() string {
	if f == IPv6 {
		return "ipv6"
	}
	return "ipv4"
}

// Bits returns the address length of the family.
func (f Family) Bits() int {
	if f == IPv6 {
		return 128
	}
	return 32
}

// afi returns the RFC 3779 address family identifier.
func (f Family) afi() []byte {
	if f == IPv6 {
		return []byte{0, 2}
	}
	return []byte{0, 1}
}

func (f Family) matches(a netip.Addr) bool {
	if f == IPv6 {
		return a.Is6() && !a.Is4In6()
	}
	return a.Is4()
}

// IPSet is a normalized set of addresses of one family. The zero value is the
// empty set. IPSet values are immutable.
type IPSet struct {
	ranges []netipx.IPRange
}

func newIPSet(b *netipx.IPSetBuilder) IPSet {
	// The builder only errors on invalid input, which the callers rule out.
	s, err := b.IPSet()
	if err != nil {
		panic(err)
	}
	return IPSet{ranges: s.Ranges()}
}

func (s IPSet) netipx() *netipx.IPSet {
	var b netipx.IPSetBuilder
	for _, r := range s.ranges {
		b.AddRange(r)
	}
	set, _ := b.IPSet()
	return set
}

// NewIPSet creates a set from prefixes. All prefixes must be of the given
// family.
func NewIPSet(f Family, prefixes ...netip.Prefix) (IPSet, error) {
	var b netipx.IPSetBuilder
	for _, p := range prefixes {
		if !p.IsValid() || !f.matches(p.Addr()) {
			return IPSet{}, serrors.JoinNoStack(ErrInvalidResource, nil,
				"family", f, "prefix", p)
		}
		b.AddPrefix(p.Masked())
	}
	return newIPSet(&b), nil
}

// NewIPSetFromRanges creates a set from ranges. All ranges must be of the
// given family.
func NewIPSetFromRanges(f Family, ranges ...netipx.IPRange) (IPSet, error) {
	var b netipx.IPSetBuilder
	for _, r := range ranges {
		if !r.IsValid() || !f.matches(r.From()) {
			return IPSet{}, serrors.JoinNoStack(ErrInvalidResource, nil,
				"family", f, "range", r)
		}
		b.AddRange(r)
	}
	return newIPSet(&b), nil
}

// ParseIPSet parses a comma separated list of prefixes, ranges ("a-b") and
// single addresses of the given family. The empty string is the empty set.
func ParseIPSet(f Family, s string) (IPSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return IPSet{}, nil
	}
	var ranges []netipx.IPRange
	for _, elem := range strings.Split(s, ",") {
		elem = strings.TrimSpace(elem)
		var r netipx.IPRange
		switch {
		case strings.Contains(elem, "/"):
			p, err := netip.ParsePrefix(elem)
			if err != nil {
				return IPSet{}, serrors.JoinNoStack(ErrInvalidResource, err, "prefix", elem)
			}
			if p != p.Masked() {
				return IPSet{}, serrors.JoinNoStack(ErrInvalidResource, nil,
					"prefix", elem, "reason", "host bits set")
			}
			r = netipx.RangeOfPrefix(p)
		case strings.Contains(elem, "-"):
			var err error
			if r, err = netipx.ParseIPRange(elem); err != nil {
				return IPSet{}, serrors.JoinNoStack(ErrInvalidResource, err, "range", elem)
			}
		default:
			a, err := netip.ParseAddr(elem)
			if err != nil {
				return IPSet{}, serrors.JoinNoStack(ErrInvalidResource, err, "addr", elem)
			}
			r = netipx.IPRangeFrom(a, a)
		}
		ranges = append(ranges, r)
	}
	return NewIPSetFromRanges(f, ranges...)
}

// MustParseIPSet is like ParseIPSet but panics on error.
func MustParseIPSet(f Family, s string) IPSet {
	set, err := ParseIPSet(f, s)
	if err != nil {
		panic(err)
	}
	return set
}

// Ranges returns the normalized ranges of the set.
func (s IPSet) Ranges() []netipx.IPRange {
	return append([]netipx.IPRange(nil), s.ranges...)
}

// Prefixes returns the minimal list of prefixes covering the set.
func (s IPSet) Prefixes() []netip.Prefix {
	var out []netip.Prefix
	for _, r := range s.ranges {
		out = r.AppendPrefixes(out)
	}
	return out
}

// String formats the set as a comma separated list. Ranges that are exact
// prefixes are printed as prefixes.
func (s IPSet) String() string {
	parts := make([]string, 0, len(s.ranges))
	for _, r := range s.ranges {
		if p, ok := r.Prefix(); ok {
			parts = append(parts, p.String())
			continue
		}
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ",")
}

// IsEmpty reports whether the set contains no addresses.
func (s IPSet) IsEmpty() bool {
	return len(s.ranges) == 0
}

// Equal reports whether both sets contain the same addresses.
func (s IPSet) Equal(o IPSet) bool {
	if len(s.ranges) != len(o.ranges) {
		return false
	}
	for i := range s.ranges {
		if s.ranges[i] != o.ranges[i] {
			return false
		}
	}
	return true
}

// Union returns the set of addresses in s or o.
func (s IPSet) Union(o IPSet) IPSet {
	var b netipx.IPSetBuilder
	for _, r := range s.ranges {
		b.AddRange(r)
	}
	for _, r := range o.ranges {
		b.AddRange(r)
	}
	return newIPSet(&b)
}

// Intersect returns the set of addresses in both s and o.
func (s IPSet) Intersect(o IPSet) IPSet {
	if s.IsEmpty() || o.IsEmpty() {
		return IPSet{}
	}
	var b netipx.IPSetBuilder
	b.AddSet(s.netipx())
	b.Intersect(o.netipx())
	return newIPSet(&b)
}

// Contains reports whether o is a subset of s.
func (s IPSet) Contains(o IPSet) bool {
	if o.IsEmpty() {
		return true
	}
	set := s.netipx()
	for _, r := range o.ranges {
		if !set.ContainsRange(r) {
			return false
		}
	}
	return true
}

// ContainsPrefix reports whether all addresses of p are in s.
func (s IPSet) ContainsPrefix(p netip.Prefix) bool {
	return s.netipx().ContainsPrefix(p)
}
