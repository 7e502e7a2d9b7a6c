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

//go:build linux

// Package processmetrics exports scheduling and file descriptor metrics of
// the running process that the default prometheus process collector does
// not offer. On platforms other than Linux, Init is a no-op.
//
// The running and runnable totals are summed over all threads. Their sum
// relative to wall clock time tells whether a slow maintenance cycle was
// CPU starved or waiting on the database.
package processmetrics

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"

	"github.com/openrpki/rpkid/pkg/private/prom"
	"github.com/openrpki/rpkid/pkg/private/serrors"
)

var (
	runningTime = prometheus.NewDesc(
		prometheus.BuildFQName(prom.Namespace, "process", "running_seconds_total"),
		"CPU time the process used since it started (all threads summed).",
		nil, nil,
	)
	runnableTime = prometheus.NewDesc(
		prometheus.BuildFQName(prom.Namespace, "process", "runnable_seconds_total"),
		"CPU time the process was denied since it started (all threads summed).",
		nil, nil,
	)
	openFDs = prometheus.NewDesc(
		prometheus.BuildFQName(prom.Namespace, "process", "open_fds"),
		"Number of open file descriptors, including database and publication files.",
		nil, nil,
	)
	goCores = prometheus.NewDesc(
		"go_sched_maxprocs_threads",
		"The current runtime.GOMAXPROCS setting.",
		nil, nil,
	)
)

// collector caches the thread list of the process. Go never terminates the
// threads it creates, so the list only needs refreshing when the link count
// of /proc/<pid>/task changes.
type collector struct {
	mtx       sync.Mutex
	proc      procfs.Proc
	threads   procfs.Procs
	taskDir   *os.File
	taskCount uint64
	running   uint64
	runnable  uint64
	fds       int
}

func (c *collector) update() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	var st syscall.Stat_t
	if err := syscall.Fstat(int(c.taskDir.Fd()), &st); err != nil {
		return err
	}
	//nolint:unconvert // Nlink is uint32 on arm64.
	count := uint64(st.Nlink - 2)
	if count != c.taskCount {
		threads, err := procfs.AllThreads(c.proc.PID)
		if err != nil {
			return err
		}
		c.threads, c.taskCount = threads, count
	}
	var running, runnable uint64
	var errs serrors.List
	for _, t := range c.threads {
		s, err := t.Schedstat()
		if err != nil {
			// The thread is gone; the others are still valid.
			errs = append(errs, err)
			continue
		}
		running += s.RunningNanoseconds
		runnable += s.WaitingNanoseconds
	}
	c.running, c.runnable = running, runnable
	fds, err := c.proc.FileDescriptorsLen()
	if err != nil {
		errs = append(errs, err)
	} else {
		c.fds = fds
	}
	return errs.ToError()
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	_ = c.update()
	c.mtx.Lock()
	defer c.mtx.Unlock()
	ch <- prometheus.MustNewConstMetric(runningTime, prometheus.CounterValue,
		float64(c.running)/1e9)
	ch <- prometheus.MustNewConstMetric(runnableTime, prometheus.CounterValue,
		float64(c.runnable)/1e9)
	ch <- prometheus.MustNewConstMetric(openFDs, prometheus.GaugeValue, float64(c.fds))
	ch <- prometheus.MustNewConstMetric(goCores, prometheus.GaugeValue,
		float64(runtime.GOMAXPROCS(-1)))
}

func newCollector() (*collector, error) {
	pid := os.Getpid()
	proc, err := procfs.NewProc(pid)
	if err != nil {
		return nil, serrors.Wrap("opening /proc entry", err, "pid", pid)
	}
	taskPath := filepath.Join(procfs.DefaultMountPoint, strconv.Itoa(pid), "task")
	taskDir, err := os.Open(taskPath)
	if err != nil {
		return nil, serrors.Wrap("opening task directory", err, "pid", pid)
	}
	c := &collector{proc: proc, taskDir: taskDir}
	if err := c.update(); err != nil {
		taskDir.Close()
		return nil, serrors.Wrap("first update", err)
	}
	return c, nil
}

// Init registers the process collector with the default registry. Call it
// once per process. It is safe to ignore the error, in which case the
// metrics are missing.
func Init() error {
	c, err := newCollector()
	if err != nil {
		return err
	}
	if err := prometheus.Register(c); err != nil {
		c.taskDir.Close()
		return serrors.Wrap("registering collector", err)
	}
	return nil
}
