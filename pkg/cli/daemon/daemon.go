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

// Package daemon runs the agent in the background: it syncs when the server
// is reachable and on a schedule, captures files dropped in the inbox,
// cleans up synced items and reports interrupted syncs.
package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/custodial/fieldsync/pkg/cli/config"
	"github.com/custodial/fieldsync/pkg/cli/events"
	"github.com/custodial/fieldsync/pkg/cli/inbox"
	"github.com/custodial/fieldsync/pkg/cli/infra"
	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/custodial/fieldsync/pkg/cli/netwatch"
	"github.com/custodial/fieldsync/pkg/cli/output"
	"github.com/custodial/fieldsync/pkg/cli/recovery"
	"github.com/custodial/fieldsync/pkg/cli/schedule"
	"github.com/custodial/fieldsync/pkg/cli/syncer"
	"github.com/custodial/fieldsync/pkg/clock"
	"github.com/pkg/errors"
)

// Params are the dependencies of a daemon
type Params struct {
	Services *infra.Services
	Config   config.Config
	Prober   netwatch.Prober
	Clock    clock.Clock
	// InboxPollInterval defaults to inbox.DefaultPollInterval
	InboxPollInterval time.Duration
}

// Daemon owns the background components. Everything it starts is released
// by Stop.
type Daemon struct {
	services *infra.Services
	config   config.Config
	observer *netwatch.Observer
	sched    *schedule.Scheduler
	inbox    *inbox.Inbox

	inboxPollInterval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	release []func()

	// syncMu orders the start of background syncs with the shutdown
	syncMu sync.Mutex
	syncs  sync.WaitGroup

	mu              sync.Mutex
	reportedStartAt time.Time
}

// New returns a daemon that is not started yet
func New(p Params) *Daemon {
	d := &Daemon{
		services:          p.Services,
		config:            p.Config,
		observer:          netwatch.New(p.Prober, p.Config.ProbeInterval, p.Clock),
		sched:             schedule.New(),
		inboxPollInterval: p.InboxPollInterval,
	}

	if p.Config.InboxDir != "" {
		d.inbox = inbox.New(p.Config.InboxDir, p.Services.Store)
	}

	return d
}

// Observer returns the connectivity observer of the daemon
func (d *Daemon) Observer() *netwatch.Observer {
	return d.observer
}

// triggerSync runs a sync in the background unless one is running
func (d *Daemon) triggerSync(reason string) {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	if d.ctx.Err() != nil {
		return
	}
	if d.services.Engine.IsRunning() {
		log.Debug("not syncing on %s, a sync is running\n", reason)
		return
	}

	d.syncs.Add(1)
	go func() {
		defer d.syncs.Done()

		log.Debug("syncing on %s\n", reason)

		_, err := d.services.Engine.SyncPendingItems(d.ctx)
		if err != nil && errors.Cause(err) != syncer.ErrConcurrentSync {
			log.Errorf("syncing: %s\n", err.Error())
		}
	}()
}

func (d *Daemon) onConnectivity(e events.Event) {
	switch e.Name {
	case events.Online:
		d.triggerSync("reconnect")
	case events.Offline:
		// the upload in flight finishes; the rest waits for the connection
		d.services.Engine.Stop()
	}
}

// reportRecovery logs an interrupted run once
func (d *Daemon) reportRecovery(info recovery.Info) {
	if !info.NeedsRecovery || d.services.Engine.IsRunning() {
		return
	}

	d.mu.Lock()
	seen := info.StartedAt.Equal(d.reportedStartAt)
	d.reportedStartAt = info.StartedAt
	d.mu.Unlock()

	if seen {
		return
	}

	output.RecoveryBanner(info)
}

func (d *Daemon) cleanup() {
	n, err := d.services.Store.CleanupSynced(d.config.SyncedRetention)
	if err != nil {
		log.Errorf("cleaning up synced items: %s\n", err.Error())
		return
	}
	if n > 0 {
		log.Infof("removed %d synced items older than %s\n", n, d.config.SyncedRetention)
	}
}

// Start starts every component. The returned error reports a component that
// could not be started, in which case the ones already started are stopped.
func (d *Daemon) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.release = append(d.release, d.services.Bus.Subscribe(events.ListenerFunc(output.Event)))
	d.release = append(d.release, d.observer.Subscribe(events.ListenerFunc(output.Event)))
	d.release = append(d.release, d.observer.Subscribe(events.ListenerFunc(d.onConnectivity)))

	d.release = append(d.release, d.services.Recovery.Watch(d.sched, d.config.RecoveryPollInterval, d.reportRecovery))

	d.release = append(d.release, d.sched.Every(d.config.SyncInterval, "sync", func() {
		if d.observer.IsOnline() {
			d.triggerSync("schedule")
		}
	}))

	cancelCleanup, err := d.sched.Cron(d.config.CleanupSchedule, "cleanup", d.cleanup)
	if err != nil {
		d.Stop()
		return errors.Wrap(err, "scheduling the cleanup")
	}
	d.release = append(d.release, cancelCleanup)

	if d.inbox != nil {
		if err := d.inbox.Start(d.inboxPollInterval); err != nil {
			d.Stop()
			return errors.Wrap(err, "starting the inbox")
		}
		log.Infof("watching %s for photos\n", d.config.InboxDir)
	}

	d.sched.Start()
	d.observer.Start(d.ctx)

	return nil
}

// Stop stops every component and waits for a sync in progress to finish its
// current item
func (d *Daemon) Stop() {
	d.syncMu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.syncMu.Unlock()

	d.observer.Stop()
	d.sched.Stop()
	if d.inbox != nil {
		d.inbox.Close()
	}

	d.services.Engine.Stop()
	d.syncs.Wait()

	for _, fn := range d.release {
		fn()
	}
	d.release = nil
}

// Run starts the daemon and blocks until ctx is done
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutting down\n")
	d.Stop()

	return nil
}
