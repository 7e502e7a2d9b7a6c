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

package updown

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// DefaultReplayWindow is the default time a request is remembered.
const DefaultReplayWindow = 10 * time.Minute

// ReplayGuard rejects identical requests of a child within a time window.
type ReplayGuard struct {
	// Do not embed or use type directly to reduce the cache's API surface
	seen *cache.Cache
}

// NewReplayGuard creates a guard that remembers requests for window. Expired
// entries are only dropped by Prune.
func NewReplayGuard(window time.Duration) *ReplayGuard {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	return &ReplayGuard{seen: cache.New(window, 0)}
}

// Check records the request and reports whether it is fresh, i.e., not seen
// within the window.
func (g *ReplayGuard) Check(childID int64, der []byte) bool {
	sum := sha256.Sum256(der)
	key := strconv.FormatInt(childID, 10) + "/" + hex.EncodeToString(sum[:])
	return g.seen.Add(key, struct{}{}, cache.DefaultExpiration) == nil
}

// Prune drops expired entries.
func (g *ReplayGuard) Prune() {
	g.seen.DeleteExpired()
}
