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

package syncer

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/custodial/fieldsync/pkg/assert"
	"github.com/custodial/fieldsync/pkg/cli/client"
	"github.com/custodial/fieldsync/pkg/cli/database"
	"github.com/custodial/fieldsync/pkg/cli/events"
	"github.com/custodial/fieldsync/pkg/cli/store"
	"github.com/custodial/fieldsync/pkg/cli/tracker"
	"github.com/custodial/fieldsync/pkg/clock"
	"github.com/pkg/errors"
)

// uploaderFunc adapts a function to the client.Uploader interface
type uploaderFunc func(ctx context.Context, item store.Item) error

func (f uploaderFunc) Upload(ctx context.Context, item store.Item) error {
	return f(ctx, item)
}

// recordingUploader records the ids it was asked to upload and fails the
// ones listed in failures
type recordingUploader struct {
	mu       sync.Mutex
	uploaded []string
	failures map[string]error
}

func (u *recordingUploader) Upload(ctx context.Context, item store.Item) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.uploaded = append(u.uploaded, item.ID)

	return u.failures[item.ID]
}

func (u *recordingUploader) Uploaded() []string {
	u.mu.Lock()
	defer u.mu.Unlock()

	return append([]string{}, u.uploaded...)
}

type testEnv struct {
	db       *database.DB
	clock    *clock.Mock
	store    *store.Store
	tracker  *tracker.Tracker
	bus      *events.Bus
	recorder *events.Recorder
}

func newTestEnv(t *testing.T, db *database.DB, sessionID string) testEnv {
	c := clock.NewMock()
	bus := events.NewBus()
	rec := &events.Recorder{}
	bus.Subscribe(rec)

	return testEnv{
		db:       db,
		clock:    c,
		store:    store.New(db, c, nil, 0),
		tracker:  tracker.New(db, c, sessionID),
		bus:      bus,
		recorder: rec,
	}
}

func (env testEnv) engine(u client.Uploader) *Engine {
	return New(Params{
		Store:    env.store,
		Tracker:  env.tracker,
		Uploader: u,
		Bus:      env.bus,
		Clock:    env.clock,
	})
}

// capture saves n photo items one second apart and returns their ids in
// capture order
func (env testEnv) capture(t *testing.T, n int) []string {
	ids := []string{}
	for i := 0; i < n; i++ {
		id, err := env.store.Save(store.Item{Kind: store.KindPhoto, Payload: []byte(fmt.Sprintf("photo %d", i))})
		if err != nil {
			t.Fatal(errors.Wrap(err, "saving item"))
		}
		ids = append(ids, id)
		env.clock.Advance(time.Second)
	}

	return ids
}

func (env testEnv) mustGet(t *testing.T, id string) store.Item {
	item, err := env.store.Get(id)
	if err != nil {
		t.Fatal(errors.Wrapf(err, "getting %s", id))
	}

	return item
}

func (env testEnv) mustState(t *testing.T) tracker.State {
	s, err := env.tracker.GetState()
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting sync state"))
	}

	return s
}

func serverErr(code int) error {
	return errors.Wrap(&client.HTTPError{StatusCode: code, Message: http.StatusText(code)}, "uploading")
}

func TestSyncPendingItems_FIFO(t *testing.T) {
	env := newTestEnv(t, database.InitTestMemoryDB(t), "session-a")
	ids := env.capture(t, 3)

	// a form captured last
	formID, err := env.store.Save(store.Item{Kind: store.KindForm, Payload: []byte(`{"ok":true}`)})
	if err != nil {
		t.Fatal(err)
	}
	ids = append(ids, formID)

	u := &recordingUploader{}
	result, err := env.engine(u).SyncPendingItems(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	assert.DeepEqual(t, u.Uploaded(), ids, "upload order should follow capture order")
	assert.DeepEqual(t, result.SucceededItems, ids, "succeeded mismatch")
	assert.DeepEqual(t, result.FailedIDs(), []string{}, "failed mismatch")
	assert.Equal(t, result.Stopped, false, "stopped mismatch")

	for _, id := range ids {
		assert.Equal(t, env.mustGet(t, id).Status, store.StatusSynced, fmt.Sprintf("status of %s", id))
	}

	s := env.mustState(t)
	assert.Equal(t, s.InProgress, false, "run should be finished")
	assert.DeepEqual(t, s.CompletedItems, []string{}, "lists should be cleared")

	assert.DeepEqual(t, env.recorder.Names(), []events.Name{
		events.SyncStarted,
		events.PhotoSynced,
		events.PhotoSynced,
		events.PhotoSynced,
		events.FormSynced,
		events.SyncCompleted,
	}, "events mismatch")

	recorded := env.recorder.Events()
	last := recorded[len(recorded)-1]
	assert.Equal(t, last.Succeeded, 4, "succeeded count mismatch")
	assert.Equal(t, last.Failed, 0, "failed count mismatch")

	stats, err := env.store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, stats.LastSyncAt.Equal(env.clock.Now()), true, "last sync time mismatch")
}

func TestSyncPendingItems_Empty(t *testing.T) {
	env := newTestEnv(t, database.InitTestMemoryDB(t), "session-a")

	u := &recordingUploader{}
	result, err := env.engine(u).SyncPendingItems(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, len(u.Uploaded()), 0, "nothing should be uploaded")
	assert.Equal(t, len(result.SucceededItems), 0, "succeeded mismatch")
	assert.Equal(t, env.mustState(t).InProgress, false, "run should be finished")
	assert.DeepEqual(t, env.recorder.Names(), []events.Name{events.SyncStarted, events.SyncCompleted}, "events mismatch")
}

func TestSyncPendingItems_PartialFailure(t *testing.T) {
	env := newTestEnv(t, database.InitTestMemoryDB(t), "session-a")
	ids := env.capture(t, 3)

	u := &recordingUploader{failures: map[string]error{ids[1]: serverErr(http.StatusInternalServerError)}}
	result, err := env.engine(u).SyncPendingItems(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	assert.DeepEqual(t, u.Uploaded(), ids, "the failure should not stop the run")
	assert.DeepEqual(t, result.SucceededItems, []string{ids[0], ids[2]}, "succeeded mismatch")
	assert.DeepEqual(t, result.FailedIDs(), []string{ids[1]}, "failed mismatch")

	failed := env.mustGet(t, ids[1])
	assert.Equal(t, failed.Status, store.StatusPending, "a retryable failure should be requeued")
	assert.Equal(t, failed.RetryCount, 1, "retry count mismatch")
	assert.NotEqual(t, failed.LastError, "", "last error should be recorded")

	assert.DeepEqual(t, env.recorder.Names(), []events.Name{
		events.SyncStarted,
		events.PhotoSynced,
		events.PhotoSyncFailed,
		events.SyncFailed,
		events.PhotoSynced,
		events.SyncCompleted,
	}, "events mismatch")
}

func TestSyncPendingItems_RetryCap(t *testing.T) {
	env := newTestEnv(t, database.InitTestMemoryDB(t), "session-a")
	ids := env.capture(t, 1)
	id := ids[0]

	u := &recordingUploader{failures: map[string]error{id: serverErr(http.StatusServiceUnavailable)}}
	engine := env.engine(u)

	expected := []struct {
		status     store.Status
		retryCount int
	}{
		{status: store.StatusPending, retryCount: 1},
		{status: store.StatusPending, retryCount: 2},
		{status: store.StatusFailed, retryCount: 3},
	}

	for idx, tc := range expected {
		if _, err := engine.SyncPendingItems(context.Background()); err != nil {
			t.Fatal(err)
		}

		item := env.mustGet(t, id)
		assert.Equal(t, item.Status, tc.status, fmt.Sprintf("status after attempt %d", idx+1))
		assert.Equal(t, item.RetryCount, tc.retryCount, fmt.Sprintf("retry count after attempt %d", idx+1))
	}

	// an exhausted item is not picked up automatically
	if _, err := engine.SyncPendingItems(context.Background()); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, len(u.Uploaded()), 3, "exhausted item should be skipped")

	// but a forced sync resets it
	delete(u.failures, id)
	result, err := engine.ForceSyncAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, result.SucceededItems, []string{id}, "forced sync should upload the item")

	item := env.mustGet(t, id)
	assert.Equal(t, item.Status, store.StatusSynced, "status mismatch")
	assert.Equal(t, item.RetryCount, 0, "retry count should be reset")
}

func TestSyncPendingItems_ServerRejected(t *testing.T) {
	env := newTestEnv(t, database.InitTestMemoryDB(t), "session-a")
	ids := env.capture(t, 1)

	u := &recordingUploader{failures: map[string]error{ids[0]: serverErr(http.StatusBadRequest)}}
	engine := env.engine(u)

	if _, err := engine.SyncPendingItems(context.Background()); err != nil {
		t.Fatal(err)
	}

	item := env.mustGet(t, ids[0])
	assert.Equal(t, item.Status, store.StatusFailed, "a rejected item should fail at once")
	assert.Equal(t, item.RetryCount, DefaultMaxRetries, "retry count should be exhausted")

	if _, err := engine.SyncPendingItems(context.Background()); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, len(u.Uploaded()), 1, "a rejected item should not be retried automatically")
}

func TestSyncPendingItems_WriteBeforeSend(t *testing.T) {
	env := newTestEnv(t, database.InitTestMemoryDB(t), "session-a")
	ids := env.capture(t, 2)

	var observed []tracker.State
	var statuses []store.Status
	u := uploaderFunc(func(ctx context.Context, item store.Item) error {
		observed = append(observed, env.mustState(t))
		statuses = append(statuses, env.mustGet(t, item.ID).Status)
		return nil
	})

	if _, err := env.engine(u).SyncPendingItems(context.Background()); err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, len(observed), 2, "upload count mismatch")
	for i, s := range observed {
		assert.Equal(t, s.InProgress, true, fmt.Sprintf("in progress during upload %d", i))
		assert.Equal(t, s.CurrentItemID, ids[i], fmt.Sprintf("current item during upload %d", i))
		assert.Equal(t, s.ItemKind, "photo", fmt.Sprintf("kind during upload %d", i))
		assert.Equal(t, s.SessionID, "session-a", fmt.Sprintf("session during upload %d", i))
		assert.Equal(t, statuses[i], store.StatusSyncing, fmt.Sprintf("item status during upload %d", i))
	}
	assert.DeepEqual(t, observed[1].CompletedItems, []string{ids[0]}, "first item should be completed before the second begins")
}

func TestSyncPendingItems_ConcurrencyGuard(t *testing.T) {
	env := newTestEnv(t, database.InitTestMemoryDB(t), "session-a")
	ids := env.capture(t, 2)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	u := uploaderFunc(func(ctx context.Context, item store.Item) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	})
	engine := env.engine(u)

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome)
	go func() {
		r, err := engine.SyncPendingItems(context.Background())
		done <- outcome{r, err}
	}()

	<-started
	assert.Equal(t, engine.IsRunning(), true, "engine should be running")

	before := env.mustState(t)
	_, err := engine.SyncPendingItems(context.Background())
	assert.Equal(t, err, ErrConcurrentSync, "second call should be refused")
	_, err = engine.ForceSyncAll(context.Background())
	assert.Equal(t, err, ErrConcurrentSync, "forced call should be refused")
	after := env.mustState(t)
	assert.DeepEqual(t, after, before, "a refused call should not touch the sync state")

	close(release)
	first := <-done
	assert.Equal(t, first.err, nil, "first run should succeed")
	assert.DeepEqual(t, first.result.SucceededItems, ids, "first run should sync every item")
	assert.Equal(t, engine.IsRunning(), false, "engine should be idle")
}

func TestStop(t *testing.T) {
	env := newTestEnv(t, database.InitTestMemoryDB(t), "session-a")
	ids := env.capture(t, 3)

	var engine *Engine
	u := uploaderFunc(func(ctx context.Context, item store.Item) error {
		engine.Stop()
		return nil
	})
	engine = env.engine(u)

	result, err := engine.SyncPendingItems(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, result.Stopped, true, "stopped mismatch")
	assert.DeepEqual(t, result.SucceededItems, []string{ids[0]}, "the in-flight upload should complete")
	assert.Equal(t, env.mustGet(t, ids[1]).Status, store.StatusPending, "remaining items should stay pending")

	s := env.mustState(t)
	assert.Equal(t, s.InProgress, true, "a stopped run is not finished")
	assert.DeepEqual(t, s.CompletedItems, []string{ids[0]}, "completed mismatch")

	// the next run starts over and drains the queue
	result, err = engine.SyncPendingItems(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, result.Stopped, true, "every upload stops the run in this test")
	assert.DeepEqual(t, result.SucceededItems, []string{ids[1]}, "next run should resume with the oldest item")
}

func TestCancelledContext(t *testing.T) {
	env := newTestEnv(t, database.InitTestMemoryDB(t), "session-a")
	ids := env.capture(t, 2)

	ctx, cancel := context.WithCancel(context.Background())
	u := uploaderFunc(func(uploadCtx context.Context, item store.Item) error {
		cancel()
		// the upload itself is not cancelled
		return uploadCtx.Err()
	})

	result, err := env.engine(u).SyncPendingItems(ctx)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, result.Stopped, true, "stopped mismatch")
	assert.DeepEqual(t, result.SucceededItems, []string{ids[0]}, "succeeded mismatch")
}

func TestDeleteOnSync(t *testing.T) {
	env := newTestEnv(t, database.InitTestMemoryDB(t), "session-a")
	ids := env.capture(t, 2)

	engine := New(Params{
		Store:        env.store,
		Tracker:      env.tracker,
		Uploader:     &recordingUploader{},
		Bus:          env.bus,
		Clock:        env.clock,
		DeleteOnSync: true,
	})

	if _, err := engine.SyncPendingItems(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, id := range ids {
		_, err := env.store.Get(id)
		assert.Equal(t, errors.Cause(err), store.ErrNotFound, fmt.Sprintf("%s should be deleted", id))
	}
}

// failingStore fails to record the synced status
type failingStore struct {
	*store.Store
}

func (s failingStore) UpdateStatus(id string, status store.Status, retryCount *int) error {
	if status == store.StatusSynced {
		return errors.New("disk I/O error")
	}

	return s.Store.UpdateStatus(id, status, retryCount)
}

func TestSyncError(t *testing.T) {
	env := newTestEnv(t, database.InitTestMemoryDB(t), "session-a")
	ids := env.capture(t, 2)

	u := &recordingUploader{}
	engine := New(Params{
		Store:    failingStore{env.store},
		Tracker:  env.tracker,
		Uploader: u,
		Bus:      env.bus,
		Clock:    env.clock,
	})

	_, err := engine.SyncPendingItems(context.Background())
	assert.NotEqual(t, err, nil, "run should abort")
	assert.DeepEqual(t, u.Uploaded(), []string{ids[0]}, "no further item should be uploaded")

	names := env.recorder.Names()
	assert.Equal(t, names[len(names)-1], events.SyncError, "last event mismatch")
	assert.Equal(t, engine.IsRunning(), false, "guard should be released")
}

// TestOfflineThenOnline captures while the server is unreachable, then syncs
// once connectivity returns
func TestOfflineThenOnline(t *testing.T) {
	env := newTestEnv(t, database.InitTestMemoryDB(t), "session-a")
	ids := env.capture(t, 2)

	online := false
	u := uploaderFunc(func(ctx context.Context, item store.Item) error {
		if !online {
			return errors.Wrap(client.ErrNetwork, "dial tcp: connection refused")
		}
		return nil
	})
	engine := env.engine(u)

	result, err := engine.SyncPendingItems(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, result.FailedIDs(), ids, "every item should fail while offline")
	for _, id := range ids {
		item := env.mustGet(t, id)
		assert.Equal(t, item.Status, store.StatusPending, "offline failures should be requeued")
		assert.Equal(t, item.RetryCount, 1, "retry count mismatch")
	}

	online = true
	result, err = engine.SyncPendingItems(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, result.SucceededItems, ids, "every item should sync once online")
	assert.Equal(t, env.mustState(t).InProgress, false, "run should be finished")
}

// TestCrashMidRun abandons a run in the middle of an upload, as a killed
// process would, and checks what a restarted process finds
func TestCrashMidRun(t *testing.T) {
	db, dbPath := database.InitTestFileDB(t)
	env := newTestEnv(t, db, "session-a")
	ids := env.capture(t, 5)

	u := uploaderFunc(func(ctx context.Context, item store.Item) error {
		if item.ID == ids[2] {
			// the process dies while the third upload is in flight
			runtime.Goexit()
		}
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.engine(u).SyncPendingItems(context.Background())
	}()
	<-done

	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	restarted := newTestEnv(t, database.ReopenTestFileDB(t, dbPath), "session-b")

	s := restarted.mustState(t)
	assert.Equal(t, s.InProgress, true, "run should still be in progress")
	assert.Equal(t, s.CurrentItemID, ids[2], "current item mismatch")
	assert.DeepEqual(t, s.CompletedItems, []string{ids[0], ids[1]}, "completed mismatch")
	assert.Equal(t, s.SessionID, "session-a", "session mismatch")

	assert.Equal(t, restarted.mustGet(t, ids[2]).Status, store.StatusSyncing, "interrupted item should be left syncing")

	u2 := &recordingUploader{}
	result, err := restarted.engine(u2).SyncPendingItems(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	assert.DeepEqual(t, u2.Uploaded(), []string{ids[2], ids[3], ids[4]}, "the interrupted item should be retried first")
	assert.DeepEqual(t, result.SucceededItems, []string{ids[2], ids[3], ids[4]}, "succeeded mismatch")
	for _, id := range ids {
		assert.Equal(t, restarted.mustGet(t, id).Status, store.StatusSynced, fmt.Sprintf("status of %s", id))
	}
	assert.Equal(t, restarted.mustState(t).InProgress, false, "run should be finished")
}

func TestSyncPendingItems_ConcurrencyGuardAcrossProcesses(t *testing.T) {
	db, dbPath := database.InitTestFileDB(t)
	daemonEnv := newTestEnv(t, db, "daemon-session")
	cliEnv := newTestEnv(t, database.ReopenTestFileDB(t, dbPath), "cli-session")
	ids := daemonEnv.capture(t, 3)

	started := make(chan struct{})
	release := make(chan struct{})
	daemonUploader := &recordingUploader{}
	u := uploaderFunc(func(ctx context.Context, item store.Item) error {
		if item.ID == ids[1] {
			close(started)
			<-release
		}
		return daemonUploader.Upload(ctx, item)
	})
	daemon := daemonEnv.engine(u)

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome)
	go func() {
		r, err := daemon.SyncPendingItems(context.Background())
		done <- outcome{r, err}
	}()

	<-started
	before := cliEnv.mustState(t)

	cliUploader := &recordingUploader{}
	cli := cliEnv.engine(cliUploader)
	_, err := cli.SyncPendingItems(context.Background())
	assert.Equal(t, err, ErrConcurrentSync, "a sync in another process should be refused")
	_, err = cli.ForceSyncAll(context.Background())
	assert.Equal(t, err, ErrConcurrentSync, "a forced sync in another process should be refused")

	assert.DeepEqual(t, cliUploader.Uploaded(), []string{}, "the refused sync should upload nothing")
	assert.DeepEqual(t, cliEnv.mustState(t), before, "a refused sync should not touch the sync state")
	assert.Equal(t, cliEnv.mustGet(t, ids[1]).Status, store.StatusSyncing, "the in-flight item should stay syncing")

	close(release)
	first := <-done
	assert.Equal(t, first.err, nil, "the daemon run should succeed")
	assert.DeepEqual(t, daemonUploader.Uploaded(), ids, "the daemon should upload every item once")

	result, err := cli.SyncPendingItems(context.Background())
	if err != nil {
		t.Fatal(errors.Wrap(err, "syncing after the daemon run"))
	}
	assert.DeepEqual(t, result.SucceededItems, []string{}, "nothing should be left to upload")
	assert.DeepEqual(t, cliUploader.Uploaded(), []string{}, "no item should be uploaded twice")
}

func TestSyncPendingItems_LockLost(t *testing.T) {
	env := newTestEnv(t, database.InitTestMemoryDB(t), "session-a")
	ids := env.capture(t, 2)
	other := tracker.New(env.db, env.clock, "session-b")

	u := &recordingUploader{}
	hook := uploaderFunc(func(ctx context.Context, item store.Item) error {
		// the run stalls past the lock lifetime and another session takes over
		env.clock.Advance(tracker.LockTTL + time.Second)
		ok, err := other.AcquireLock()
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, ok, true, "the stale lock should be taken over")

		return u.Upload(ctx, item)
	})

	_, err := env.engine(hook).SyncPendingItems(context.Background())
	assert.Equal(t, errors.Cause(err), tracker.ErrLockLost, "the run should stop once its lock is lost")
	assert.DeepEqual(t, u.Uploaded(), []string{ids[0]}, "no item should be uploaded after the lock was lost")
	assert.Equal(t, env.mustGet(t, ids[1]).Status, store.StatusPending, "the remaining item should stay queued")

	_, live, err := other.LiveLock()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, live, true, "the run should not release a lock it lost")
}
