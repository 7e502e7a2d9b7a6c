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
	"net/netip"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

// ROAPrefix is a prefix with a maximum length as authorized by a ROA.
type ROAPrefix struct {
	Prefix netip.Prefix
	MaxLen int
}

// ParseROAPrefix parses "192.0.2.0/24" or "192.0.2.0/24-26".
func ParseROAPrefix(s string) (ROAPrefix, error) {
	s = strings.TrimSpace(s)
	pfx, maxLen, hasMax := strings.Cut(s, "-")
	p, err := netip.ParsePrefix(pfx)
	if err != nil {
		return ROAPrefix{}, serrors.JoinNoStack(ErrInvalidResource, err, "roa_prefix", s)
	}
	r := ROAPrefix{Prefix: p, MaxLen: p.Bits()}
	if hasMax {
		if r.MaxLen, err = strconv.Atoi(maxLen); err != nil {
			return ROAPrefix{}, serrors.JoinNoStack(ErrInvalidResource, err, "roa_prefix", s)
		}
	}
	if err := r.Validate(); err != nil {
		return ROAPrefix{}, err
	}
	return r, nil
}

// Validate checks that the prefix has no host bits set and that the maximum
// length lies between the prefix length and the address length.
func (r ROAPrefix) Validate() error {
	if !r.Prefix.IsValid() || r.Prefix != r.Prefix.Masked() {
		return serrors.JoinNoStack(ErrInvalidResource, nil,
			"prefix", r.Prefix, "reason", "not a network prefix")
	}
	if r.MaxLen < r.Prefix.Bits() || r.MaxLen > r.Prefix.Addr().BitLen() {
		return serrors.JoinNoStack(ErrInvalidResource, nil,
			"prefix", r.Prefix, "max_len", r.MaxLen, "reason", "max length out of range")
	}
	return nil
}

// Family returns the address family of the prefix.
func (r ROAPrefix) Family() Family {
	if r.Prefix.Addr().Is4() {
		return IPv4
	}
	return IPv6
}

func (r ROAPrefix) String() string {
	if r.MaxLen == r.Prefix.Bits() {
		return r.Prefix.String()
	}
	return fmt.Sprintf("%s-%d", r.Prefix, r.MaxLen)
}

// ROAPrefixSet is a sorted list of ROA prefixes of one family.
type ROAPrefixSet []ROAPrefix

// ParseROAPrefixSet parses a comma separated list of ROA prefixes. All of them
// must belong to family f.
func ParseROAPrefixSet(f Family, s string) (ROAPrefixSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var set ROAPrefixSet
	for _, elem := range strings.Split(s, ",") {
		p, err := ParseROAPrefix(elem)
		if err != nil {
			return nil, err
		}
		if p.Family() != f {
			return nil, serrors.JoinNoStack(ErrInvalidResource, nil,
				"family", f, "roa_prefix", p)
		}
		set = append(set, p)
	}
	set.sort()
	return set, nil
}

func (s ROAPrefixSet) sort() {
	sort.Slice(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if c := a.Prefix.Addr().Compare(b.Prefix.Addr()); c != 0 {
			return c < 0
		}
		if a.Prefix.Bits() != b.Prefix.Bits() {
			return a.Prefix.Bits() < b.Prefix.Bits()
		}
		return a.MaxLen < b.MaxLen
	})
}

func (s ROAPrefixSet) String() string {
	parts := make([]string, 0, len(s))
	for _, p := range s {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, ",")
}

// IPSet returns the addresses covered by the prefixes.
func (s ROAPrefixSet) IPSet(f Family) IPSet {
	prefixes := make([]netip.Prefix, 0, len(s))
	for _, p := range s {
		prefixes = append(prefixes, p.Prefix)
	}
	// Prefixes were validated on construction.
	set, _ := NewIPSet(f, prefixes...)
	return set
}

// EncodeROAIPAddrBlocks encodes the ipAddrBlocks field of an RFC 6482
// RouteOriginAttestation: a SEQUENCE OF ROAIPAddressFamily, IPv4 first.
func EncodeROAIPAddrBlocks(v4, v6 ROAPrefixSet) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		for _, fam := range []struct {
			f   Family
			set ROAPrefixSet
		}{{IPv4, v4}, {IPv6, v6}} {
			if len(fam.set) == 0 {
				continue
			}
			b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1OctetString(fam.f.afi())
				b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
					for _, p := range fam.set {
						b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
							addPrefixBits(b, p.Prefix)
							if p.MaxLen != p.Prefix.Bits() {
								b.AddASN1Uint64(uint64(p.MaxLen))
							}
						})
					}
				})
			})
		}
	})
	return b.Bytes()
}

// ParseROAIPAddrBlocks decodes the ipAddrBlocks field of an RFC 6482
// RouteOriginAttestation.
func ParseROAIPAddrBlocks(der []byte) (ROAPrefixSet, ROAPrefixSet, error) {
	invalid := func(reason string) (ROAPrefixSet, ROAPrefixSet, error) {
		return nil, nil, serrors.JoinNoStack(ErrInvalidResource, nil,
			"field", "ROAIPAddrBlocks", "reason", reason)
	}
	input := cryptobyte.String(der)
	var families cryptobyte.String
	if !input.ReadASN1(&families, asn1.SEQUENCE) || !input.Empty() {
		return invalid("malformed sequence")
	}
	var v4, v6 ROAPrefixSet
	for !families.Empty() {
		var fam, addrs cryptobyte.String
		var afi []byte
		if !families.ReadASN1(&fam, asn1.SEQUENCE) ||
			!fam.ReadASN1Bytes(&afi, asn1.OCTET_STRING) ||
			!fam.ReadASN1(&addrs, asn1.SEQUENCE) || !fam.Empty() {
			return invalid("malformed address family")
		}
		var f Family
		switch string(afi) {
		case string(IPv4.afi()):
			f = IPv4
		case string(IPv6.afi()):
			f = IPv6
		default:
			return invalid("unsupported address family")
		}
		for !addrs.Empty() {
			var entry cryptobyte.String
			if !addrs.ReadASN1(&entry, asn1.SEQUENCE) {
				return invalid("malformed address")
			}
			p, ok := readPrefix(&entry, f)
			if !ok {
				return invalid("malformed prefix")
			}
			r := ROAPrefix{Prefix: p, MaxLen: p.Bits()}
			if !entry.Empty() {
				var maxLen uint64
				if !entry.ReadASN1Integer(&maxLen) || !entry.Empty() {
					return invalid("malformed max length")
				}
				r.MaxLen = int(maxLen)
			}
			if err := r.Validate(); err != nil {
				return nil, nil, err
			}
			if f == IPv4 {
				v4 = append(v4, r)
			} else {
				v6 = append(v6, r)
			}
		}
	}
	return v4, v6, nil
}
