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

//go:build windows

package launcher

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/debug"
	"golang.org/x/sys/windows/svc/eventlog"

	"github.com/openrpki/rpkid/pkg/log"
	"github.com/openrpki/rpkid/pkg/private/serrors"
)

// cfgLogFile redirects the console output. Services have no console.
const cfgLogFile = "logfile"

// Event log ids.
const (
	eventStarted = 1
	eventStopped = 2
	eventFailed  = 3
)

// platform is the service state. The event log source is the short name.
type platform struct {
	isService bool
	elog      debug.Log
	svcErr    error
}

// Run sets up the common server harness and runs it under the service
// control manager, or in a console if not started as service. A stop or
// shutdown request cancels the context of Main.
func (a *Application) Run() {
	if ec, err := a.run(os.Args[1:]); err != nil {
		fmt.Fprintf(a.getErrorWriter(), "fatal error: %v\n", err)
		os.Exit(ec)
	}
}

func (a *Application) run(args []string) (int, error) {
	var err error
	if a.isService, err = svc.IsWindowsService(); err != nil {
		return 1, err
	}
	shortName, err := a.setup(args, func(fs *pflag.FlagSet) []string {
		fs.String(cfgLogFile, "", "Log file (redirects console output)")
		return []string{cfgLogFile}
	})
	if err != nil {
		return 1, err
	}
	if a.isService {
		if a.elog, err = eventlog.Open(shortName); err != nil {
			return 1, err
		}
		err = svc.Run(shortName, a)
	} else {
		a.elog = debug.New(shortName)
		err = debug.Run(shortName, a)
	}
	if err != nil {
		if ec, ok := err.(syscall.Errno); ok {
			return int(ec), err
		}
		return 1, err
	}
	if a.svcErr != nil {
		return 1, a.svcErr
	}
	return 0, nil
}

// Execute implements svc.Handler.
func (a *Application) Execute(_ []string, r <-chan svc.ChangeRequest,
	changes chan<- svc.Status) (bool, uint32) {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		defer log.HandlePanic()
		done <- a.cmd.ExecuteContext(ctx)
	}()
	changes <- svc.Status{State: svc.Running, Accepts: svc.AcceptStop | svc.AcceptShutdown}
	a.elog.Info(eventStarted, "Service started")

	stopped := false
	for !stopped {
		select {
		case a.svcErr = <-done:
			return a.exit()
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				changes <- svc.Status{State: svc.StopPending}
				cancel()
				stopped = true
			default:
				a.elog.Warning(eventFailed,
					fmt.Sprintf("Ignoring unexpected control request %d", c.Cmd))
			}
		}
	}
	forceShutdown(func(msg string) { a.elog.Error(eventFailed, msg) })
	a.svcErr = <-done
	changes <- svc.Status{State: svc.Stopped}
	return a.exit()
}

func (a *Application) exit() (bool, uint32) {
	if a.svcErr != nil {
		a.elog.Error(eventFailed, a.svcErr.Error())
		return true, 1
	}
	a.elog.Info(eventStopped, "Service stopped")
	return true, 0
}

// redirectOutput points stdout and stderr to the configured log file. The
// file is never closed, loggers may still hold it.
func (a *Application) redirectOutput() error {
	file := a.config.GetString(cfgLogFile)
	if file == "" {
		return nil
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o660)
	if err != nil {
		return serrors.Wrap("opening log file", err, "file", file)
	}
	os.Stdout, os.Stderr = f, f
	return nil
}
