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

package env

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/openrpki/rpkid/pkg/log"
)

// StartupMessage is the banner logged when an application starts.
func StartupMessage(name, id string) string {
	return fmt.Sprintf("=====================> %s started %s", name, id)
}

// LogAppStarted logs the start of an application together with its build
// information.
func LogAppStarted(name, id string) error {
	inDocker := false
	if _, err := os.Stat("/.dockerenv"); err == nil {
		inDocker = true
	}
	info := VersionInfo()
	log.Info(StartupMessage(name, id), "version", info, "docker", inDocker)
	return nil
}

// LogAppStopped logs the end of an application.
func LogAppStopped(name, id string) {
	log.Info(fmt.Sprintf("=====================> %s stopped %s", name, id))
}

// VersionInfo returns a one line summary of the build.
func VersionInfo() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	parts := []string{bi.Main.Version, bi.GoVersion}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision", "vcs.time", "vcs.modified":
			parts = append(parts, s.Key+"="+s.Value)
		}
	}
	return strings.Join(parts, " ")
}
