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

package database

import (
	"database/sql"

	"github.com/pkg/errors"
)

const (
	// SystemLastSyncAt is the unix timestamp of the last completed sync run
	SystemLastSyncAt = "last_sync_at"
	// SystemLastCleanupAt is the unix timestamp of the last cleanup of synced items
	SystemLastCleanupAt = "last_cleanup_at"
)

// GetSystem scans the value of the given system key into dest. It returns
// sql.ErrNoRows, unwrapped, if the key has never been written.
func GetSystem(db *DB, key string, dest interface{}) error {
	err := db.QueryRow("SELECT value FROM system WHERE key = ?", key).Scan(dest)
	if err == sql.ErrNoRows {
		return err
	}
	if err != nil {
		return errors.Wrapf(err, "finding system configuration record %s", key)
	}

	return nil
}

// UpdateSystem upserts the value of the given system key
func UpdateSystem(db *DB, key string, val interface{}) error {
	_, err := db.Exec(`INSERT INTO system (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, val)
	if err != nil {
		return errors.Wrapf(err, "updating system config for %s", key)
	}

	return nil
}
