/* Copyright 2025 Fieldsync Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package schedule runs the background jobs of the daemon: periodic sync,
// recovery polling and cleanup of synced items
package schedule

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/pkg/errors"
	"github.com/robfig/cron"
)

// job wraps a function so that a run is skipped while the previous one is
// still going, and so that it can be cancelled individually
type job struct {
	name      string
	fn        func()
	running   atomic.Bool
	cancelled atomic.Bool
}

func (j *job) Run() {
	if j.cancelled.Load() {
		return
	}
	if !j.running.CompareAndSwap(false, true) {
		log.Debug("skipping %s, the previous run is not done\n", j.name)
		return
	}
	defer j.running.Store(false)

	j.fn()
}

// Scheduler owns a set of jobs. Stop releases all of them.
type Scheduler struct {
	cron *cron.Cron

	mu      sync.Mutex
	started bool
	stopped bool
}

// New returns a scheduler that is not started yet
func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(),
	}
}

// Every runs fn every interval. Intervals are rounded down to whole seconds
// with a minimum of one second. The returned function cancels the job.
func (s *Scheduler) Every(interval time.Duration, name string, fn func()) func() {
	j := &job{name: name, fn: fn}
	s.cron.Schedule(cron.Every(interval), j)

	log.Debug("scheduled %s every %s\n", name, interval)

	return func() { j.cancelled.Store(true) }
}

// Cron runs fn on a cron spec with a leading seconds field, or a descriptor
// such as @hourly or @every 10m. The returned function cancels the job.
func (s *Scheduler) Cron(spec, name string, fn func()) (func(), error) {
	schedule, err := cron.Parse(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing schedule '%s' for %s", spec, name)
	}

	j := &job{name: name, fn: fn}
	s.cron.Schedule(schedule, j)

	log.Debug("scheduled %s at '%s'\n", name, spec)

	return func() { j.cancelled.Store(true) }, nil
}

// Start starts running the jobs in the background
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true

	s.cron.Start()
}

// Stop stops the scheduler. Runs in progress are not interrupted. Stopping
// more than once is harmless.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		s.stopped = true
		return
	}
	s.stopped = true

	s.cron.Stop()
}
