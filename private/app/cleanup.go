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

// Package app contains helpers shared by the rpkid binaries.
package app

import (
	"github.com/openrpki/rpkid/pkg/log"
	"github.com/openrpki/rpkid/pkg/private/serrors"
)

// Cleanup collects functions that release resources at shutdown.
type Cleanup struct {
	funcs []func() error
}

// Add registers f. Functions run in reverse order of registration.
func (c *Cleanup) Add(f func() error) {
	c.funcs = append(c.funcs, f)
}

// Do runs all registered functions and returns the collected errors. Every
// function runs even if an earlier one failed.
func (c *Cleanup) Do() error {
	var errs serrors.List
	for i := len(c.funcs) - 1; i >= 0; i-- {
		if err := c.funcs[i](); err != nil {
			log.Info("Cleanup failed", "err", err)
			errs = append(errs, err)
		}
	}
	c.funcs = nil
	return errs.ToError()
}
