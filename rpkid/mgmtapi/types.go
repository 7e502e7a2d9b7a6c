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

package mgmtapi

// CA is the status of one hosted self.
type CA struct {
	Handle         string    `json:"handle"`
	TrustAnchor    bool      `json:"trust_anchor"`
	SKI            string    `json:"ski,omitempty"`
	CertURI        string    `json:"cert_uri,omitempty"`
	NotAfter       string    `json:"not_after,omitempty"`
	Resources      string    `json:"resources,omitempty"`
	CRLNumber      int64     `json:"crl_number"`
	ManifestNumber int64     `json:"manifest_number"`
	NextUpdate     string    `json:"next_update,omitempty"`
	Stale          bool      `json:"stale"`
	Parents        []string  `json:"parents"`
	Children       []CAChild `json:"children"`
	ROAs           int       `json:"roas"`
	Ghostbusters   int       `json:"ghostbusters"`
	Revoked        int       `json:"revoked"`
}

// CAChild is the status of a child of a hosted self.
type CAChild struct {
	Handle       string `json:"handle"`
	ID           int64  `json:"id"`
	Certificates int    `json:"certificates"`
}
