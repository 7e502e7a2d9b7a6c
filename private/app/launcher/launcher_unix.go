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

//go:build !windows

package launcher

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openrpki/rpkid/pkg/log"
)

// platform holds no state on unix.
type platform struct{}

// Run sets up the common server harness, and then passes control to the
// Main function (if one exists). The context of Main is canceled on SIGINT
// or SIGTERM.
//
// Run uses the following globals:
//
//	os.Args
//
// Run will exit the application if it encounters a fatal error.
func (a *Application) Run() {
	if err := a.run(os.Args[1:]); err != nil {
		fmt.Fprintf(a.getErrorWriter(), "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func (a *Application) run(args []string) error {
	if _, err := a.setup(args, nil); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		defer log.HandlePanic()
		select {
		case s := <-sig:
			log.Info("Received signal, shutting down", "signal", s)
			cancel()
			forceShutdown(nil)
		case <-ctx.Done():
		}
	}()
	return a.cmd.ExecuteContext(ctx)
}

func (a *Application) redirectOutput() error {
	return nil
}
