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
	"bytes"
	encoding_asn1 "encoding/asn1"
	"math"
	"net/netip"

	"go4.org/netipx"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

var (
	// OIDASIdentifiers is id-pe-autonomousSysIds.
	OIDASIdentifiers = encoding_asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 8}
	// OIDIPAddrBlocks is id-pe-ipAddrBlocks.
	OIDIPAddrBlocks = encoding_asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 7}
)

var (
	tagASNum = asn1.Tag(0).Constructed().ContextSpecific()
	tagRDI   = asn1.Tag(1).Constructed().ContextSpecific()
)

// EncodeASIdentifiers encodes the AS part of s as the value of the
// id-pe-autonomousSysIds extension. It returns nil if s holds no AS resources
// and does not inherit them.
func EncodeASIdentifiers(s Set) ([]byte, error) {
	if s.AS.IsEmpty() && !s.InheritAS {
		return nil, nil
	}
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(tagASNum, func(b *cryptobyte.Builder) {
			if s.InheritAS {
				b.AddASN1NULL()
				return
			}
			b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
				for _, r := range s.AS {
					if r.Min == r.Max {
						b.AddASN1Uint64(uint64(r.Min))
						continue
					}
					b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
						b.AddASN1Uint64(uint64(r.Min))
						b.AddASN1Uint64(uint64(r.Max))
					})
				}
			})
		})
	})
	return b.Bytes()
}

// ParseASIdentifiers decodes the value of an id-pe-autonomousSysIds extension.
// Only the AS fields of the returned set are populated. Routing domain
// identifiers are ignored.
func ParseASIdentifiers(der []byte) (Set, error) {
	invalid := func(reason string) (Set, error) {
		return Set{}, serrors.JoinNoStack(ErrInvalidResource, nil,
			"extension", "ASIdentifiers", "reason", reason)
	}
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, asn1.SEQUENCE) || !input.Empty() {
		return invalid("malformed sequence")
	}
	var asnum cryptobyte.String
	var present bool
	if !seq.ReadOptionalASN1(&asnum, &present, tagASNum) {
		return invalid("malformed asnum")
	}
	if !seq.SkipOptionalASN1(tagRDI) || !seq.Empty() {
		return invalid("trailing data")
	}
	var s Set
	if !present {
		return s, nil
	}
	if asnum.PeekASN1Tag(asn1.NULL) {
		var null cryptobyte.String
		if !asnum.ReadASN1(&null, asn1.NULL) || !null.Empty() || !asnum.Empty() {
			return invalid("malformed inherit")
		}
		s.InheritAS = true
		return s, nil
	}
	var ids cryptobyte.String
	if !asnum.ReadASN1(&ids, asn1.SEQUENCE) || !asnum.Empty() {
		return invalid("malformed asIdsOrRanges")
	}
	var ranges []ASRange
	for !ids.Empty() {
		if ids.PeekASN1Tag(asn1.INTEGER) {
			v, ok := readASN(&ids)
			if !ok {
				return invalid("malformed id")
			}
			ranges = append(ranges, ASRange{Min: v, Max: v})
			continue
		}
		var rng cryptobyte.String
		if !ids.ReadASN1(&rng, asn1.SEQUENCE) {
			return invalid("malformed range")
		}
		lo, ok1 := readASN(&rng)
		hi, ok2 := readASN(&rng)
		if !ok1 || !ok2 || !rng.Empty() || hi < lo {
			return invalid("malformed range")
		}
		ranges = append(ranges, ASRange{Min: lo, Max: hi})
	}
	s.AS = NewASSet(ranges...)
	return s, nil
}

func readASN(s *cryptobyte.String) (uint32, bool) {
	var v uint64
	if !s.ReadASN1Integer(&v) || v > math.MaxUint32 {
		return 0, false
	}
	return uint32(v), true
}

// EncodeIPAddrBlocks encodes the IP part of s as the value of the
// id-pe-ipAddrBlocks extension in canonical form: IPv4 before IPv6, each
// range encoded as a prefix if it is one. It returns nil if s holds no IP
// resources and inherits none.
func EncodeIPAddrBlocks(s Set) ([]byte, error) {
	v4 := !s.V4.IsEmpty() || s.InheritV4
	v6 := !s.V6.IsEmpty() || s.InheritV6
	if !v4 && !v6 {
		return nil, nil
	}
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		if v4 {
			addIPAddressFamily(b, IPv4, s.V4, s.InheritV4)
		}
		if v6 {
			addIPAddressFamily(b, IPv6, s.V6, s.InheritV6)
		}
	})
	return b.Bytes()
}

func addIPAddressFamily(b *cryptobyte.Builder, f Family, set IPSet, inherit bool) {
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1OctetString(f.afi())
		if inherit {
			b.AddASN1NULL()
			return
		}
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			for _, r := range set.ranges {
				if p, ok := r.Prefix(); ok {
					addPrefixBits(b, p)
					continue
				}
				b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
					addBits(b, r.From().AsSlice(), trailingLen(r.From().AsSlice(), 0))
					addBits(b, r.To().AsSlice(), trailingLen(r.To().AsSlice(), 1))
				})
			}
		})
	})
}

func addPrefixBits(b *cryptobyte.Builder, p netip.Prefix) {
	addBits(b, p.Addr().AsSlice(), p.Bits())
}

// addBits writes the first n bits of addr as a BIT STRING. Unused bits are
// zero as DER requires.
func addBits(b *cryptobyte.Builder, addr []byte, n int) {
	nbytes := (n + 7) / 8
	data := append([]byte(nil), addr[:nbytes]...)
	unused := nbytes*8 - n
	if unused > 0 {
		data[nbytes-1] &= 0xff << unused
	}
	b.AddASN1(asn1.BIT_STRING, func(b *cryptobyte.Builder) {
		b.AddUint8(uint8(unused))
		b.AddBytes(data)
	})
}

// trailingLen returns the number of leading bits that remain after stripping
// all trailing bits equal to bit.
func trailingLen(addr []byte, bit byte) int {
	n := len(addr) * 8
	for n > 0 {
		i := n - 1
		if (addr[i/8]>>(7-i%8))&1 != bit {
			break
		}
		n--
	}
	return n
}

// ParseIPAddrBlocks decodes the value of an id-pe-ipAddrBlocks extension. Only
// the IP fields of the returned set are populated. Families other than IPv4
// and IPv6, and entries carrying a SAFI, are rejected.
func ParseIPAddrBlocks(der []byte) (Set, error) {
	invalid := func(reason string) (Set, error) {
		return Set{}, serrors.JoinNoStack(ErrInvalidResource, nil,
			"extension", "IPAddrBlocks", "reason", reason)
	}
	input := cryptobyte.String(der)
	var families cryptobyte.String
	if !input.ReadASN1(&families, asn1.SEQUENCE) || !input.Empty() {
		return invalid("malformed sequence")
	}
	var s Set
	seen := map[Family]bool{}
	for !families.Empty() {
		var fam cryptobyte.String
		var afi []byte
		if !families.ReadASN1(&fam, asn1.SEQUENCE) ||
			!fam.ReadASN1Bytes(&afi, asn1.OCTET_STRING) {
			return invalid("malformed address family")
		}
		var f Family
		switch {
		case bytes.Equal(afi, IPv4.afi()):
			f = IPv4
		case bytes.Equal(afi, IPv6.afi()):
			f = IPv6
		default:
			return invalid("unsupported address family")
		}
		if seen[f] {
			return invalid("duplicate address family")
		}
		seen[f] = true
		if fam.PeekASN1Tag(asn1.NULL) {
			var null cryptobyte.String
			if !fam.ReadASN1(&null, asn1.NULL) || !fam.Empty() {
				return invalid("malformed inherit")
			}
			if f == IPv4 {
				s.InheritV4 = true
			} else {
				s.InheritV6 = true
			}
			continue
		}
		var entries cryptobyte.String
		if !fam.ReadASN1(&entries, asn1.SEQUENCE) || !fam.Empty() {
			return invalid("malformed addressesOrRanges")
		}
		var ranges []netipx.IPRange
		for !entries.Empty() {
			if entries.PeekASN1Tag(asn1.BIT_STRING) {
				p, ok := readPrefix(&entries, f)
				if !ok {
					return invalid("malformed prefix")
				}
				ranges = append(ranges, netipx.RangeOfPrefix(p))
				continue
			}
			var rng cryptobyte.String
			if !entries.ReadASN1(&rng, asn1.SEQUENCE) {
				return invalid("malformed range")
			}
			lo, ok1 := readBound(&rng, f, 0)
			hi, ok2 := readBound(&rng, f, 0xff)
			if !ok1 || !ok2 || !rng.Empty() || hi.Less(lo) {
				return invalid("malformed range")
			}
			ranges = append(ranges, netipx.IPRangeFrom(lo, hi))
		}
		set, err := NewIPSetFromRanges(f, ranges...)
		if err != nil {
			return Set{}, err
		}
		if f == IPv4 {
			s.V4 = set
		} else {
			s.V6 = set
		}
	}
	return s, nil
}

func readBitString(s *cryptobyte.String, f Family) (encoding_asn1.BitString, bool) {
	var bs encoding_asn1.BitString
	if !s.ReadASN1BitString(&bs) || bs.BitLength > f.Bits() {
		return bs, false
	}
	return bs, true
}

func readPrefix(s *cryptobyte.String, f Family) (netip.Prefix, bool) {
	bs, ok := readBitString(s, f)
	if !ok {
		return netip.Prefix{}, false
	}
	a, ok := addrFromBits(bs, f, 0)
	if !ok {
		return netip.Prefix{}, false
	}
	return netip.PrefixFrom(a, bs.BitLength), true
}

// readBound reads a range bound. Bits beyond the encoded length are filled
// with fill, zeros for the lower bound and ones for the upper bound.
func readBound(s *cryptobyte.String, f Family, fill byte) (netip.Addr, bool) {
	bs, ok := readBitString(s, f)
	if !ok {
		return netip.Addr{}, false
	}
	return addrFromBits(bs, f, fill)
}

func addrFromBits(bs encoding_asn1.BitString, f Family, fill byte) (netip.Addr, bool) {
	raw := make([]byte, f.Bits()/8)
	for i := range raw {
		raw[i] = fill
	}
	copy(raw, bs.Bytes)
	if rem := bs.BitLength % 8; rem != 0 {
		i := bs.BitLength / 8
		keep := byte(0xff) << (8 - rem)
		raw[i] = raw[i]&keep | fill&^keep
	}
	return netip.AddrFromSlice(raw)
}
