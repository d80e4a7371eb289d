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

package tracker

import (
	"testing"

	"github.com/custodial/fieldsync/pkg/assert"
	"github.com/custodial/fieldsync/pkg/cli/database"
	"github.com/custodial/fieldsync/pkg/clock"
)

func mustAcquire(t *testing.T, tr *Tracker) bool {
	t.Helper()

	ok, err := tr.AcquireLock()
	if err != nil {
		t.Fatal(err)
	}

	return ok
}

func TestAcquireLock(t *testing.T) {
	db, dbPath := database.InitTestFileDB(t)
	c := clock.NewMock()

	daemon := New(db, c, "daemon-session")
	cli := New(database.ReopenTestFileDB(t, dbPath), c, "cli-session")

	assert.Equal(t, mustAcquire(t, daemon), true, "a free lock should be taken")
	assert.Equal(t, mustAcquire(t, daemon), true, "the holder may take the lock again")
	assert.Equal(t, mustAcquire(t, cli), false, "a live lock of another process should be refused")

	l, live, err := cli.LiveLock()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, live, true, "the lock should be live")
	assert.Equal(t, l.Owner, "daemon-session", "owner mismatch")

	if err := daemon.ReleaseLock(); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, mustAcquire(t, cli), true, "a released lock should be taken")

	_, live, err = daemon.LiveLock()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, live, true, "the new holder's lock should be live")
}

func TestAcquireLock_Expired(t *testing.T) {
	db := database.InitTestMemoryDB(t)
	c := clock.NewMock()

	dead := New(db, c, "session-a")
	restarted := New(db, c, "session-b")

	assert.Equal(t, mustAcquire(t, dead), true, "first acquire")

	c.Advance(LockTTL / 2)
	assert.Equal(t, mustAcquire(t, restarted), false, "a recent heartbeat keeps the lock")

	c.Advance(LockTTL)
	_, live, err := restarted.LiveLock()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, live, false, "a lock without heartbeat should expire")
	assert.Equal(t, mustAcquire(t, restarted), true, "an expired lock should be taken over")

	assert.Equal(t, dead.RenewLock(), ErrLockLost, "the previous holder should learn it lost the lock")
}

func TestRenewLock(t *testing.T) {
	db := database.InitTestMemoryDB(t)
	c := clock.NewMock()

	holder := New(db, c, "session-a")
	other := New(db, c, "session-b")

	assert.Equal(t, holder.RenewLock(), ErrLockLost, "renewing a lock never taken")
	assert.Equal(t, mustAcquire(t, holder), true, "acquire")

	for i := 0; i < 3; i++ {
		c.Advance(LockTTL / 2)
		if err := holder.RenewLock(); err != nil {
			t.Fatal(err)
		}
	}

	assert.Equal(t, mustAcquire(t, other), false, "a renewed lock should not expire")
}

func TestReleaseLock(t *testing.T) {
	db := database.InitTestMemoryDB(t)
	c := clock.NewMock()

	holder := New(db, c, "session-a")
	other := New(db, c, "session-b")

	assert.Equal(t, holder.ReleaseLock(), nil, "releasing a lock never taken")
	assert.Equal(t, mustAcquire(t, holder), true, "acquire")

	// only the holder can release
	assert.Equal(t, other.ReleaseLock(), nil, "release by another session")
	_, live, err := holder.LiveLock()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, live, true, "another session should not release the lock")

	assert.Equal(t, holder.ReleaseLock(), nil, "release")
	assert.Equal(t, holder.ReleaseLock(), nil, "second release")
	_, live, err = holder.LiveLock()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, live, false, "the lock should be free")
}
