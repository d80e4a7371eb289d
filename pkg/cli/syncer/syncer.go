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

// Package syncer uploads queued capture items one at a time, oldest first,
// recording progress durably before every upload
package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodial/fieldsync/pkg/cli/client"
	"github.com/custodial/fieldsync/pkg/cli/events"
	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/custodial/fieldsync/pkg/cli/store"
	"github.com/custodial/fieldsync/pkg/cli/tracker"
	"github.com/custodial/fieldsync/pkg/clock"
	"github.com/pkg/errors"
)

// ErrConcurrentSync is returned when a sync is requested while a run is active
var ErrConcurrentSync = errors.New("a sync is already running")

const (
	// DefaultMaxRetries is the number of failed attempts after which an item
	// is no longer retried automatically
	DefaultMaxRetries = 3
	// DefaultUploadTimeout bounds a single upload attempt
	DefaultUploadTimeout = 30 * time.Second
)

// Store is the part of the item store used by the engine
type Store interface {
	Pending(includeFailed bool, maxRetries int) ([]store.Item, error)
	UpdateStatus(id string, status store.Status, retryCount *int) error
	UpdateStatusWithError(id string, status store.Status, retryCount *int, lastErr string) error
	Delete(id string) error
	ResetFailed() (int, error)
	RequeueStranded() (int, error)
	SetLastSyncAt(t time.Time) error
}

// Tracker is the part of the sync state tracker used by the engine
type Tracker interface {
	StartRun() error
	BeginItem(id, kind string) error
	CompleteItem(id string, outcome tracker.Outcome) error
	FinishRun() error
	AcquireLock() (bool, error)
	RenewLock() error
	ReleaseLock() error
}

// FailedItem is an item whose upload failed during a run
type FailedItem struct {
	ID    string
	Error string
}

// Result summarizes a sync run
type Result struct {
	SucceededItems []string
	FailedItems    []FailedItem
	// Stopped is set when the run ended before the queue was drained
	Stopped bool
}

// FailedIDs returns the ids of the failed items
func (r Result) FailedIDs() []string {
	ret := []string{}
	for _, f := range r.FailedItems {
		ret = append(ret, f.ID)
	}

	return ret
}

// Params are the dependencies and settings of an Engine
type Params struct {
	Store         Store
	Tracker       Tracker
	Uploader      client.Uploader
	Bus           *events.Bus
	Clock         clock.Clock
	MaxRetries    int
	DeleteOnSync  bool
	UploadTimeout time.Duration
	// HeartbeatInterval is how often a run renews its lock
	HeartbeatInterval time.Duration
}

// Engine runs sync passes. At most one pass runs at a time, across every
// process sharing the queue database.
type Engine struct {
	store         Store
	tracker       Tracker
	uploader      client.Uploader
	bus           *events.Bus
	clock         clock.Clock
	maxRetries    int
	deleteOnSync  bool
	uploadTimeout time.Duration
	heartbeat     time.Duration

	mu            sync.Mutex
	running       bool
	stopRequested atomic.Bool
}

// New returns an engine. Zero settings take their defaults.
func New(p Params) *Engine {
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.UploadTimeout <= 0 {
		p.UploadTimeout = DefaultUploadTimeout
	}
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	if p.HeartbeatInterval <= 0 {
		p.HeartbeatInterval = tracker.LockTTL / 3
	}

	return &Engine{
		store:         p.Store,
		tracker:       p.Tracker,
		uploader:      p.Uploader,
		bus:           p.Bus,
		clock:         p.Clock,
		maxRetries:    p.MaxRetries,
		deleteOnSync:  p.DeleteOnSync,
		uploadTimeout: p.UploadTimeout,
		heartbeat:     p.HeartbeatInterval,
	}
}

// MaxRetries returns the configured retry limit
func (e *Engine) MaxRetries() int {
	return e.maxRetries
}

// IsRunning reports whether a run is active
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.running
}

// Stop asks the active run not to begin another item. The upload in flight
// is allowed to finish.
func (e *Engine) Stop() {
	e.stopRequested.Store(true)
}

func (e *Engine) acquire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return false
	}
	e.running = true
	e.stopRequested.Store(false)

	return true
}

func (e *Engine) release() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.running = false
}

func (e *Engine) publish(ev events.Event) {
	ev.Time = e.clock.Now()
	e.bus.Publish(ev)
}

// SyncPendingItems uploads pending items, and failed items that have retries
// left, oldest first
func (e *Engine) SyncPendingItems(ctx context.Context) (Result, error) {
	return e.run(ctx, false)
}

// ForceSyncAll resets every failed item, regardless of its retry count, and
// runs a sync
func (e *Engine) ForceSyncAll(ctx context.Context) (Result, error) {
	return e.run(ctx, true)
}

func (e *Engine) run(ctx context.Context, force bool) (Result, error) {
	if !e.acquire() {
		return Result{}, ErrConcurrentSync
	}
	defer e.release()

	// another process may be running a sync on the same database
	locked, err := e.tracker.AcquireLock()
	if err != nil {
		return Result{}, e.abort(errors.Wrap(err, "taking the sync lock"))
	}
	if !locked {
		return Result{}, ErrConcurrentSync
	}
	defer e.releaseLock()

	stopHeartbeat := e.startHeartbeat()
	defer stopHeartbeat()

	result := Result{
		SucceededItems: []string{},
		FailedItems:    []FailedItem{},
	}

	e.publish(events.Event{Name: events.SyncStarted})

	items, err := e.prepare(force)
	if err != nil {
		return result, e.abort(err)
	}

	log.Debug("syncing %d items\n", len(items))

	for _, item := range items {
		if e.stopRequested.Load() || ctx.Err() != nil {
			log.Debug("sync stopped with %d items left\n", len(items)-len(result.SucceededItems)-len(result.FailedItems))
			result.Stopped = true
			return result, nil
		}

		if err := e.syncItem(ctx, item, &result); err != nil {
			return result, e.abort(err)
		}
	}

	if err := e.tracker.FinishRun(); err != nil {
		return result, e.abort(errors.Wrap(err, "finishing the run"))
	}
	if err := e.store.SetLastSyncAt(e.clock.Now()); err != nil {
		return result, e.abort(errors.Wrap(err, "recording the sync time"))
	}

	e.publish(events.Event{
		Name:      events.SyncCompleted,
		Succeeded: len(result.SucceededItems),
		Failed:    len(result.FailedItems),
	})

	return result, nil
}

// prepare returns the items to upload and records the start of the run
func (e *Engine) prepare(force bool) ([]store.Item, error) {
	if force {
		n, err := e.store.ResetFailed()
		if err != nil {
			return nil, errors.Wrap(err, "resetting failed items")
		}
		log.Debug("reset %d failed items\n", n)
	}

	n, err := e.store.RequeueStranded()
	if err != nil {
		return nil, errors.Wrap(err, "requeueing interrupted items")
	}
	if n > 0 {
		log.Debug("requeued %d interrupted items\n", n)
	}

	items, err := e.store.Pending(false, e.maxRetries)
	if err != nil {
		return nil, errors.Wrap(err, "getting pending items")
	}

	if err := e.tracker.StartRun(); err != nil {
		return nil, errors.Wrap(err, "starting the run")
	}

	return items, nil
}

func (e *Engine) releaseLock() {
	if err := e.tracker.ReleaseLock(); err != nil {
		log.Errorf("releasing the sync lock: %s\n", err.Error())
	}
}

// startHeartbeat keeps the run lock alive while uploads are in flight. The
// returned function stops it.
func (e *Engine) startHeartbeat() func() {
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(e.heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := e.tracker.RenewLock(); err != nil {
					log.Debug("renewing the sync lock: %s\n", err.Error())
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

// abort reports a failure of the local bookkeeping, after which the run
// cannot continue
func (e *Engine) abort(err error) error {
	e.publish(events.Event{Name: events.SyncError, Err: err})

	return err
}

func (e *Engine) upload(ctx context.Context, item store.Item) error {
	// the attempt is not interrupted by cancellation, only by its timeout
	uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.uploadTimeout)
	defer cancel()

	return e.uploader.Upload(uploadCtx, item)
}

func (e *Engine) syncItem(ctx context.Context, item store.Item, result *Result) error {
	// a run whose lock was taken over must not upload anything more
	if err := e.tracker.RenewLock(); err != nil {
		return errors.Wrapf(err, "keeping the sync lock before %s", item.ID)
	}
	if err := e.tracker.BeginItem(item.ID, string(item.Kind)); err != nil {
		return errors.Wrapf(err, "recording the start of %s", item.ID)
	}
	if err := e.store.UpdateStatus(item.ID, store.StatusSyncing, nil); err != nil {
		return errors.Wrapf(err, "marking %s as syncing", item.ID)
	}

	uploadErr := e.upload(ctx, item)
	if uploadErr == nil {
		return e.succeed(item, result)
	}

	return e.fail(item, uploadErr, result)
}

func (e *Engine) succeed(item store.Item, result *Result) error {
	if e.deleteOnSync {
		if err := e.store.Delete(item.ID); err != nil {
			return errors.Wrapf(err, "deleting synced item %s", item.ID)
		}
	} else {
		if err := e.store.UpdateStatus(item.ID, store.StatusSynced, nil); err != nil {
			return errors.Wrapf(err, "marking %s as synced", item.ID)
		}
	}

	if err := e.tracker.CompleteItem(item.ID, tracker.OutcomeSuccess); err != nil {
		return errors.Wrapf(err, "recording the completion of %s", item.ID)
	}

	result.SucceededItems = append(result.SucceededItems, item.ID)

	name := events.PhotoSynced
	if item.Kind == store.KindForm {
		name = events.FormSynced
	}
	e.publish(events.Event{Name: name, ItemID: item.ID, Kind: string(item.Kind)})

	log.Debug("synced %s %s\n", item.Kind, item.ID)

	return nil
}

// nextAttempt applies the retry policy to a failed upload
func (e *Engine) nextAttempt(item store.Item, uploadErr error) (store.Status, int) {
	if !client.IsRetryable(uploadErr) {
		return store.StatusFailed, e.maxRetries
	}

	retryCount := item.RetryCount + 1
	if retryCount >= e.maxRetries {
		return store.StatusFailed, e.maxRetries
	}

	return store.StatusPending, retryCount
}

func (e *Engine) fail(item store.Item, uploadErr error, result *Result) error {
	status, retryCount := e.nextAttempt(item, uploadErr)

	if err := e.store.UpdateStatusWithError(item.ID, status, &retryCount, uploadErr.Error()); err != nil {
		return errors.Wrapf(err, "recording the failure of %s", item.ID)
	}
	if err := e.tracker.CompleteItem(item.ID, tracker.OutcomeFailure); err != nil {
		return errors.Wrapf(err, "recording the failure of %s", item.ID)
	}

	result.FailedItems = append(result.FailedItems, FailedItem{ID: item.ID, Error: uploadErr.Error()})

	name := events.PhotoSyncFailed
	if item.Kind == store.KindForm {
		name = events.FormSyncFailed
	}
	e.publish(events.Event{Name: name, ItemID: item.ID, Kind: string(item.Kind), Err: uploadErr})
	e.publish(events.Event{Name: events.SyncFailed, ItemID: item.ID, Kind: string(item.Kind), Err: uploadErr})

	log.Debug("failed to sync %s %s (attempt %d, now %s): %s\n", item.Kind, item.ID, retryCount, status, uploadErr.Error())

	return nil
}
