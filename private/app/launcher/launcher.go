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

// Package launcher includes the harness shared by rpkid server binaries:
// flag and config file handling, logging setup, metrics of the build and
// graceful shutdown. The platform specific parts decide how the process is
// started and how a shutdown request arrives.
package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/openrpki/rpkid/pkg/log"
	"github.com/openrpki/rpkid/pkg/private/prom"
	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/private/app/command"
	libconfig "github.com/openrpki/rpkid/private/config"
	"github.com/openrpki/rpkid/private/env"
)

// Configuration keys used by the launcher.
const (
	cfgConfigFile                = "config"
	cfgLogConsoleLevel           = "log.console.level"
	cfgLogConsoleFormat          = "log.console.format"
	cfgLogConsoleStacktraceLevel = "log.console.stacktrace_level"
	cfgGeneralID                 = "general.id"
)

// Application models an rpkid server application.
type Application struct {
	// TOMLConfig holds the Go data structure for the application-specific
	// TOML configuration.
	TOMLConfig libconfig.Config

	// Samplers contains additional configuration samplers to be included
	// under the sample subcommand.
	Samplers []func(command.Pather) *cobra.Command

	// ShortName is the short name of the application. If empty, the
	// executable name is used.
	ShortName string

	// Main is the custom logic of the application. If nil, no custom logic
	// is executed (and only the setup/teardown harness runs). If Main
	// returns an error, the Run method will return a non-zero exit code.
	// The context is canceled when the platform requests a shutdown.
	Main func(ctx context.Context) error

	// ErrorWriter specifies where error output should be printed. If nil,
	// os.Stderr is used.
	ErrorWriter io.Writer

	// cmd is the Cobra command for an rpkid server application.
	cmd *cobra.Command

	// config contains the Viper configuration KV store.
	config *viper.Viper

	// out overrides the output of the command. Used in tests.
	out io.Writer

	platform
}

// setup creates the command and the viper store. flags are bound to the
// viper keys of the same name in addition to the common ones.
func (a *Application) setup(args []string, flags func(*pflag.FlagSet) []string) (string, error) {
	executable := filepath.Base(os.Args[0])
	shortName := a.getShortName(executable)

	a.cmd = newCommandTemplate(executable, shortName, a.TOMLConfig, a.Samplers...)
	a.cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return a.executeCommand(cmd.Context(), shortName)
	}
	a.cmd.SetArgs(args)
	if a.out != nil {
		a.cmd.SetOut(a.out)
		a.cmd.SetErr(a.out)
	}
	a.config = viper.New()
	a.config.SetDefault(cfgLogConsoleLevel, log.DefaultConsoleLevel)
	a.config.SetDefault(cfgLogConsoleFormat, "human")
	a.config.SetDefault(cfgLogConsoleStacktraceLevel, log.DefaultStacktraceLevel)
	a.config.SetDefault(cfgGeneralID, executable)
	// The configuration file location is specified through command-line
	// flags. Once the command-line flags are parsed, we register the location
	// of the config file with the viper config.
	keys := []string{cfgConfigFile, cfgLogConsoleLevel}
	if flags != nil {
		keys = append(keys, flags(a.cmd.Flags())...)
	}
	for _, key := range keys {
		if err := a.config.BindPFlag(key, a.cmd.Flags().Lookup(key)); err != nil {
			return "", err
		}
	}
	return shortName, nil
}

func (a *Application) getShortName(executable string) string {
	if a.ShortName != "" {
		return a.ShortName
	}
	return executable
}

func (a *Application) executeCommand(ctx context.Context, shortName string) error {
	os.Setenv("TZ", "UTC")

	// Load launcher configurations from the same config file as the custom
	// application configuration.
	file := a.config.GetString(cfgConfigFile)
	a.config.SetConfigType("toml")
	a.config.SetConfigFile(file)
	if err := a.config.ReadInConfig(); err != nil {
		return serrors.Wrap("loading generic server config from file", err, "file", file)
	}
	if err := libconfig.LoadFile(file, a.TOMLConfig); err != nil {
		return serrors.Wrap("loading config from file", err, "file", file)
	}
	a.TOMLConfig.InitDefaults()

	if err := a.redirectOutput(); err != nil {
		return err
	}
	if err := log.Setup(a.getLogging(), newLogEntriesCounter()); err != nil {
		return serrors.Wrap("initialize logging", err)
	}
	defer log.Flush()
	id := a.config.GetString(cfgGeneralID)
	if err := env.LogAppStarted(shortName, id); err != nil {
		return err
	}
	defer env.LogAppStopped(shortName, id)
	defer log.HandlePanic()

	exportBuildInfo()
	prom.ExportElementID(id)
	if err := a.TOMLConfig.Validate(); err != nil {
		return serrors.Wrap("validate config", err)
	}

	if a.Main == nil {
		return nil
	}
	return a.Main(ctx)
}

func (a *Application) getLogging() log.Config {
	return log.Config{
		Console: log.ConsoleConfig{
			Level:           a.config.GetString(cfgLogConsoleLevel),
			Format:          a.config.GetString(cfgLogConsoleFormat),
			StacktraceLevel: a.config.GetString(cfgLogConsoleStacktraceLevel),
		},
	}
}

func (a *Application) getErrorWriter() io.Writer {
	if a.ErrorWriter != nil {
		return a.ErrorWriter
	}
	return os.Stderr
}

// forceShutdown panics once the grace interval has passed. report is called
// with the message before. If the main goroutine shuts down everything in
// time, the process exits before.
func forceShutdown(report func(msg string)) {
	time.AfterFunc(env.ShutdownGraceInterval, func() {
		defer log.HandlePanic()
		msg := fmt.Sprintf("Main goroutine did not shut down in time (waited %v). "+
			"It's probably stuck. Forcing shutdown.", env.ShutdownGraceInterval)
		if report != nil {
			report(msg)
		}
		panic(msg)
	})
}

func newCommandTemplate(executable, shortName string, config libconfig.Sampler,
	samplers ...func(command.Pather) *cobra.Command) *cobra.Command {

	cmd := &cobra.Command{
		Use:           executable + " --config <config.toml>",
		Short:         shortName,
		Example:       fmt.Sprintf("  %s --config %s.toml", executable, executable),
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
	}
	cmd.AddCommand(
		command.NewSample(cmd,
			append(samplers, command.NewSampleConfig(config))...,
		),
		command.NewVersion(cmd),
		command.NewGendocs(cmd),
	)
	addFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired(cfgConfigFile)
	return cmd
}

func addFlags(fs *pflag.FlagSet) {
	fs.String(cfgConfigFile, "", "Configuration file (required)")
	fs.String(cfgLogConsoleLevel, "", "Console log level, overrides the configuration file")
}

func newLogEntriesCounter() log.Option {
	logEntriesTotal := prom.SafeRegister(prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: prom.Namespace,
			Name:      "log_emitted_entries_total",
			Help:      "Total number of log entries emitted.",
		},
		[]string{"level"},
	)).(*prometheus.CounterVec)
	return log.WithEntriesCounter(log.EntriesCounter{
		Debug: logEntriesTotal.With(prometheus.Labels{"level": "debug"}),
		Info:  logEntriesTotal.With(prometheus.Labels{"level": "info"}),
		Error: logEntriesTotal.With(prometheus.Labels{"level": "error"}),
	})
}

// exportBuildInfo exports the build information as metric.
func exportBuildInfo() {
	labels := prometheus.Labels{"version": env.VersionInfo(), "go": "unknown"}
	if bi, ok := debug.ReadBuildInfo(); ok {
		labels["go"] = bi.GoVersion
	}
	prom.SafeRegister(prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: prom.Namespace,
			Name:      "build_info",
			Help:      "Build information of the running binary.",
		},
		[]string{"version", "go"},
	)).(*prometheus.GaugeVec).With(labels).Set(1)
}
