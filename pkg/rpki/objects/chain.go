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

package objects

import (
	"errors"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

// ErrNotACertificateChain indicates that a set of certificates does not form
// exactly one linear chain.
var ErrNotACertificateChain = errors.New("not a certificate chain")

// Chainsort orders an unordered set of certificates into a chain, leaf
// first. The leaf is the unique certificate that is not the issuer of any
// other certificate. Self-issued certificates are not considered their own
// issuer.
func Chainsort(certs []*Certificate) ([]*Certificate, error) {
	if len(certs) == 0 {
		return nil, serrors.JoinNoStack(ErrNotACertificateChain, nil, "reason", "no certificates")
	}
	type node struct {
		cert    *Certificate
		subject string
		issuer  string
	}
	nodes := make([]node, 0, len(certs))
	bySubject := make(map[string]int, len(certs))
	issuers := make(map[string]bool, len(certs))
	for i, c := range certs {
		parsed, err := c.Parsed()
		if err != nil {
			return nil, err
		}
		n := node{
			cert:    c,
			subject: string(parsed.RawSubject),
			issuer:  string(parsed.RawIssuer),
		}
		if _, ok := bySubject[n.subject]; ok {
			return nil, serrors.JoinNoStack(ErrNotACertificateChain, nil,
				"reason", "duplicate subject", "subject", parsed.Subject)
		}
		bySubject[n.subject] = i
		if n.issuer != n.subject {
			issuers[n.issuer] = true
		}
		nodes = append(nodes, n)
	}
	leaf := -1
	for i, n := range nodes {
		if issuers[n.subject] {
			continue
		}
		if leaf != -1 {
			return nil, serrors.JoinNoStack(ErrNotACertificateChain, nil,
				"reason", "multiple leaves")
		}
		leaf = i
	}
	if leaf == -1 {
		return nil, serrors.JoinNoStack(ErrNotACertificateChain, nil, "reason", "no leaf")
	}

	chain := make([]*Certificate, 0, len(nodes))
	used := make(map[int]bool, len(nodes))
	for cur := leaf; ; {
		chain = append(chain, nodes[cur].cert)
		used[cur] = true
		n := nodes[cur]
		if n.issuer == n.subject {
			break
		}
		next, ok := bySubject[n.issuer]
		if !ok {
			break
		}
		if used[next] {
			return nil, serrors.JoinNoStack(ErrNotACertificateChain, nil, "reason", "cycle")
		}
		cur = next
	}
	if len(chain) != len(nodes) {
		return nil, serrors.JoinNoStack(ErrNotACertificateChain, nil,
			"reason", "missing issuer", "chained", len(chain), "total", len(nodes))
	}
	return chain, nil
}
