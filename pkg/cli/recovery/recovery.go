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

// Package recovery detects sync runs that were interrupted, for example by
// the process being killed, and lets the user retry or dismiss them
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/custodial/fieldsync/pkg/cli/syncer"
	"github.com/custodial/fieldsync/pkg/cli/tracker"
	"github.com/custodial/fieldsync/pkg/cli/utils"
	"github.com/pkg/errors"
)

// DefaultPollInterval is how often Watch re-checks the sync state
const DefaultPollInterval = 10 * time.Second

// MessageNoneUploaded is reported when nothing was uploaded before the interruption
const MessageNoneUploaded = "Sync was interrupted before any items could be uploaded."

// ErrSyncActive is returned when dismissing a run that is still executing
var ErrSyncActive = errors.New("the sync is still running")

// Tracker is the part of the sync state tracker used by the detector
type Tracker interface {
	GetState() (tracker.State, error)
	Clear() error
	LiveLock() (tracker.Lock, bool, error)
}

// Engine is the part of the sync engine used by the detector
type Engine interface {
	IsRunning() bool
	SyncPendingItems(ctx context.Context) (syncer.Result, error)
}

// Scheduler runs a function periodically and returns a handle cancelling it
type Scheduler interface {
	Every(interval time.Duration, name string, fn func()) func()
}

// InterruptedItem is the item that was in flight when a run was interrupted
type InterruptedItem struct {
	ID   string
	Kind string
}

// Info describes an interrupted run
type Info struct {
	NeedsRecovery   bool
	InterruptedItem *InterruptedItem
	CompletedCount  int
	FailedCount     int
	Message         string
	// StaleSession is set when the run was started by another process
	StaleSession bool
	StartedAt    time.Time
}

// Detector inspects the sync state left behind by previous runs
type Detector struct {
	tracker   Tracker
	engine    Engine
	sessionID string
}

// New returns a detector for the given session
func New(t Tracker, e Engine, sessionID string) *Detector {
	return &Detector{
		tracker:   t,
		engine:    e,
		sessionID: sessionID,
	}
}

func buildMessage(completed, failed, total int) string {
	if completed == 0 && failed == 0 {
		return MessageNoneUploaded
	}

	return fmt.Sprintf("Sync was interrupted. %d of %d %s uploaded before connection was lost.",
		completed, total, utils.Plural(total, "item", "items"))
}

// isLive reports whether a run recorded as in progress is still executing,
// either in this process or in another one holding the run lock
func (d *Detector) isLive(s tracker.State) (bool, error) {
	if s.SessionID == d.sessionID && d.engine.IsRunning() {
		return true, nil
	}

	l, held, err := d.tracker.LiveLock()
	if err != nil {
		return false, errors.Wrap(err, "reading sync lock")
	}
	if !held {
		return false, nil
	}
	// a lock this session failed to release is not a run
	if l.Owner == d.sessionID {
		return d.engine.IsRunning(), nil
	}

	return true, nil
}

// inProgressRun returns the state of a run that is in progress and no longer
// executing. It returns false when there is no such run.
func (d *Detector) inProgressRun() (tracker.State, bool, error) {
	s, err := d.tracker.GetState()
	if err != nil {
		return s, false, errors.Wrap(err, "reading sync state")
	}
	if !s.InProgress {
		return s, false, nil
	}

	live, err := d.isLive(s)
	if err != nil {
		return s, false, err
	}
	if live {
		return s, false, nil
	}

	// The run may have finished between reading the state and finding the
	// engine idle. A finished run is recorded before the engine goes idle.
	s, err = d.tracker.GetState()
	if err != nil {
		return s, false, errors.Wrap(err, "reading sync state")
	}

	return s, s.InProgress, nil
}

// CheckRecovery reports whether a run was interrupted. A run recorded as in
// progress is not interrupted while it is still executing, in this process
// or in another one.
func (d *Detector) CheckRecovery() (Info, error) {
	s, interrupted, err := d.inProgressRun()
	if err != nil {
		return Info{}, err
	}
	if !interrupted {
		return Info{}, nil
	}

	completed := len(s.CompletedItems)
	failed := len(s.FailedItems)
	total := completed + failed
	if s.CurrentItemID != "" {
		total++
	}

	info := Info{
		NeedsRecovery:  true,
		CompletedCount: completed,
		FailedCount:    failed,
		Message:        buildMessage(completed, failed, total),
		StaleSession:   s.SessionID != d.sessionID,
		StartedAt:      s.StartedAt,
	}
	if s.CurrentItemID != "" && s.ItemKind != "" {
		info.InterruptedItem = &InterruptedItem{ID: s.CurrentItemID, Kind: s.ItemKind}
	}

	return info, nil
}

// Retry starts a new sync. The interrupted item, left in syncing, is put back
// in the queue by the engine before anything else is uploaded.
func (d *Detector) Retry(ctx context.Context) (syncer.Result, error) {
	result, err := d.engine.SyncPendingItems(ctx)
	if err != nil {
		return result, errors.Wrap(err, "retrying the interrupted sync")
	}

	return result, nil
}

// Dismiss forgets the interrupted run without retrying it. Items stay in the
// queue. Dismissing twice is harmless. A run that is still executing cannot
// be dismissed.
func (d *Detector) Dismiss() error {
	s, err := d.tracker.GetState()
	if err != nil {
		return errors.Wrap(err, "reading sync state")
	}
	if s.InProgress {
		live, err := d.isLive(s)
		if err != nil {
			return err
		}
		if live {
			return ErrSyncActive
		}
	}

	if err := d.tracker.Clear(); err != nil {
		return errors.Wrap(err, "clearing sync state")
	}

	return nil
}

// Watch checks for an interrupted run now and then every interval, calling
// fn with every result. The returned function stops watching.
func (d *Detector) Watch(s Scheduler, interval time.Duration, fn func(Info)) func() {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	check := func() {
		info, err := d.CheckRecovery()
		if err != nil {
			log.Errorf("checking for an interrupted sync: %s\n", err.Error())
			return
		}

		fn(info)
	}

	check()

	return s.Every(interval, "recovery check", check)
}
