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
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// lockID is the id of the single run lock record
const lockID = "run"

// LockTTL is how long a run lock stays valid without a heartbeat. A process
// that dies while syncing blocks other runs for at most this long.
const LockTTL = 30 * time.Second

// ErrLockLost is returned when renewing a lock that another session took over
var ErrLockLost = errors.New("sync lock lost")

// Lock describes the holder of the run lock
type Lock struct {
	Owner     string
	Heartbeat time.Time
}

// AcquireLock takes the run lock for this session. It reports false when a
// live run of another session, possibly in another process, holds it. The
// lock is taken in a single statement so that two processes racing for it
// cannot both win.
func (t *Tracker) AcquireLock() (bool, error) {
	if _, err := t.db.Exec("INSERT OR IGNORE INTO sync_lock (id, owner, heartbeat) VALUES (?, '', 0)", lockID); err != nil {
		return false, errors.Wrap(err, "creating the sync lock")
	}

	now := t.clock.Now()
	res, err := t.db.Exec(`UPDATE sync_lock SET owner = ?, heartbeat = ?
		WHERE id = ? AND (owner = '' OR owner = ? OR heartbeat < ?)`,
		t.sessionID, now.UnixNano(), lockID, t.sessionID, now.Add(-LockTTL).UnixNano())
	if err != nil {
		return false, errors.Wrap(err, "taking the sync lock")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "counting affected rows")
	}

	return n == 1, nil
}

// RenewLock refreshes the heartbeat of the lock held by this session
func (t *Tracker) RenewLock() error {
	res, err := t.db.Exec("UPDATE sync_lock SET heartbeat = ? WHERE id = ? AND owner = ?",
		t.clock.Now().UnixNano(), lockID, t.sessionID)
	if err != nil {
		return errors.Wrap(err, "renewing the sync lock")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return ErrLockLost
	}

	return nil
}

// ReleaseLock gives up the lock if this session holds it. Releasing a lock
// that is not held is harmless.
func (t *Tracker) ReleaseLock() error {
	if _, err := t.db.Exec("UPDATE sync_lock SET owner = '', heartbeat = 0 WHERE id = ? AND owner = ?", lockID, t.sessionID); err != nil {
		return errors.Wrap(err, "releasing the sync lock")
	}

	return nil
}

// LiveLock returns the holder of the run lock and whether its heartbeat is
// recent enough for the run to be considered alive
func (t *Tracker) LiveLock() (Lock, bool, error) {
	var owner string
	var heartbeat int64

	err := t.db.QueryRow("SELECT owner, heartbeat FROM sync_lock WHERE id = ?", lockID).Scan(&owner, &heartbeat)
	if err == sql.ErrNoRows {
		return Lock{}, false, nil
	}
	if err != nil {
		return Lock{}, false, errors.Wrap(err, "reading the sync lock")
	}
	if owner == "" {
		return Lock{}, false, nil
	}

	l := Lock{Owner: owner, Heartbeat: time.Unix(0, heartbeat).UTC()}
	live := !l.Heartbeat.Before(t.clock.Now().Add(-LockTTL))

	return l, live, nil
}
