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

// Package store persists capture items in the local queue database so that
// nothing captured offline is lost before it reaches the server
package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/custodial/fieldsync/pkg/checksum"
	"github.com/custodial/fieldsync/pkg/cli/database"
	"github.com/custodial/fieldsync/pkg/cli/events"
	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/custodial/fieldsync/pkg/cli/utils"
	"github.com/custodial/fieldsync/pkg/clock"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var (
	// ErrStorageFull is returned when an item cannot be saved because the
	// quota or the disk is exhausted
	ErrStorageFull = errors.New("storage is full")
	// ErrNotFound is returned when no item has the given id
	ErrNotFound = errors.New("item not found")
	// ErrInvalidKind is returned when saving an item of an unknown kind
	ErrInvalidKind = errors.New("invalid item kind")
	// ErrInvalidPayload is returned when a form payload is not valid JSON
	ErrInvalidPayload = errors.New("invalid form payload")
)

const itemColumns = "id, kind, payload, length(payload), metadata, status, retry_count, checksum, last_error, created_at, updated_at"

// listColumns omits the payload so that listings do not load photos
const listColumns = "id, kind, NULL, length(payload), metadata, status, retry_count, checksum, last_error, created_at, updated_at"

// Store is the durable item store
type Store struct {
	db         *database.DB
	clock      clock.Clock
	bus        *events.Bus
	quotaBytes int64
}

// New returns a store backed by the given database. A quotaBytes of zero
// disables the quota. The bus may be nil.
func New(db *database.DB, c clock.Clock, bus *events.Bus, quotaBytes int64) *Store {
	return &Store{
		db:         db,
		clock:      c,
		bus:        bus,
		quotaBytes: quotaBytes,
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(s scanner) (Item, error) {
	var item Item
	var metadata string
	var createdAt, updatedAt int64

	err := s.Scan(
		&item.ID,
		&item.Kind,
		&item.Payload,
		&item.Size,
		&metadata,
		&item.Status,
		&item.RetryCount,
		&item.Checksum,
		&item.LastError,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return item, err
	}

	if err := json.Unmarshal([]byte(metadata), &item.Metadata); err != nil {
		return item, errors.Wrapf(err, "decoding metadata of %s", item.ID)
	}

	item.CreatedAt = time.Unix(0, createdAt).UTC()
	item.UpdatedAt = time.Unix(0, updatedAt).UTC()

	return item, nil
}

func queryItems(db *database.DB, query string, args ...interface{}) ([]Item, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying items")
	}
	defer rows.Close()

	ret := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning item")
		}

		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating items")
	}

	return ret, nil
}

// isDiskFull reports whether SQLite could not write because the disk is full
func isDiskFull(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrFull
	}

	return false
}

func validate(item Item) error {
	if !item.Kind.Valid() {
		return errors.Wrapf(ErrInvalidKind, "'%s'", item.Kind)
	}
	if item.Kind == KindForm && !json.Valid(item.Payload) {
		return ErrInvalidPayload
	}

	return nil
}

func usedBytes(db *database.DB) (int64, error) {
	var used int64
	if err := db.QueryRow("SELECT COALESCE(SUM(length(payload)), 0) FROM items").Scan(&used); err != nil {
		return 0, errors.Wrap(err, "summing payload sizes")
	}

	return used, nil
}

// Save persists a new item with status pending and returns its id. An id is
// generated when the item does not carry one.
func (s *Store) Save(item Item) (string, error) {
	if err := validate(item); err != nil {
		return "", err
	}

	if item.ID == "" {
		id, err := utils.GenerateUUID()
		if err != nil {
			return "", errors.Wrap(err, "generating item id")
		}
		item.ID = id
	}

	metadata := item.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", errors.Wrap(err, "encoding metadata")
	}

	now := s.clock.Now().UnixNano()

	payload := item.Payload
	if payload == nil {
		payload = []byte{}
	}
	// forms are stored compact so that the bytes sent are the bytes summed
	if item.Kind == KindForm {
		var buf bytes.Buffer
		if err := json.Compact(&buf, payload); err != nil {
			return "", errors.Wrap(ErrInvalidPayload, err.Error())
		}
		payload = buf.Bytes()
	}
	size := int64(len(payload))

	tx, err := s.db.Begin()
	if err != nil {
		return "", errors.Wrap(err, "beginning a transaction")
	}

	used, err := usedBytes(tx)
	if err != nil {
		tx.Rollback()
		return "", err
	}
	if s.quotaBytes > 0 && used+size > s.quotaBytes {
		tx.Rollback()
		return "", errors.Wrapf(ErrStorageFull, "%d of %d bytes used, item needs %d", used, s.quotaBytes, size)
	}

	_, err = tx.Exec(`INSERT INTO items
		(id, kind, payload, metadata, status, retry_count, checksum, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, '', ?, ?)`,
		item.ID, item.Kind, payload, string(metadataJSON), StatusPending, checksum.Sum(payload), now, now)
	if err != nil {
		tx.Rollback()
		if isDiskFull(err) {
			return "", errors.Wrap(ErrStorageFull, "disk is full")
		}

		return "", errors.Wrapf(err, "inserting item %s", item.ID)
	}

	if err := tx.Commit(); err != nil {
		if isDiskFull(err) {
			return "", errors.Wrap(ErrStorageFull, "disk is full")
		}

		return "", errors.Wrap(err, "committing the item")
	}

	log.Debug("saved %s %s (%d bytes)\n", item.Kind, item.ID, size)

	name := events.PhotoSaved
	if item.Kind == KindForm {
		name = events.FormSaved
	}
	s.bus.Publish(events.Event{Name: name, ItemID: item.ID, Kind: string(item.Kind), Time: s.clock.Now()})

	if s.quotaBytes > 0 && float64(used+size)/float64(s.quotaBytes) >= WarningThreshold {
		s.bus.Publish(events.Event{Name: events.StorageWarning, Time: s.clock.Now()})
	}

	return item.ID, nil
}

// Get returns the item with the given id
func (s *Store) Get(id string) (Item, error) {
	row := s.db.QueryRow(fmt.Sprintf("SELECT %s FROM items WHERE id = ?", itemColumns), id)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return Item{}, errors.Wrapf(ErrNotFound, "'%s'", id)
	}
	if err != nil {
		return Item{}, errors.Wrapf(err, "finding item %s", id)
	}

	return item, nil
}

// List returns the items matching the filter, most recent first. Payloads
// are not loaded.
func (s *Store) List(f Filter) ([]Item, error) {
	conds := []string{}
	args := []interface{}{}

	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, f.Kind)
	}

	query := fmt.Sprintf("SELECT %s FROM items", listColumns)
	if len(conds) > 0 {
		query = fmt.Sprintf("%s WHERE %s", query, strings.Join(conds, " AND "))
	}
	query = query + " ORDER BY created_at DESC, rowid DESC"

	return queryItems(s.db, query, args...)
}

// Pending returns the items awaiting upload, oldest first. Failed items are
// included while their retry count is below maxRetries, or unconditionally
// when includeFailed is set.
func (s *Store) Pending(includeFailed bool, maxRetries int) ([]Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM items
		WHERE status = ? OR (status = ? AND (? OR retry_count < ?))
		ORDER BY created_at ASC, rowid ASC`, itemColumns)

	return queryItems(s.db, query, StatusPending, StatusFailed, includeFailed, maxRetries)
}

// UpdateStatus atomically sets the status and, when given, the retry count
// of an item. Updating a missing item is not an error.
func (s *Store) UpdateStatus(id string, status Status, retryCount *int) error {
	return s.update(id, status, retryCount, nil)
}

// UpdateStatusWithError is UpdateStatus that also records the message of the
// last failed attempt
func (s *Store) UpdateStatusWithError(id string, status Status, retryCount *int, lastErr string) error {
	return s.update(id, status, retryCount, &lastErr)
}

func (s *Store) update(id string, status Status, retryCount *int, lastErr *string) error {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{status, s.clock.Now().UnixNano()}

	if retryCount != nil {
		sets = append(sets, "retry_count = ?")
		args = append(args, *retryCount)
	}
	if lastErr != nil {
		sets = append(sets, "last_error = ?")
		args = append(args, *lastErr)
	} else if status == StatusSynced {
		sets = append(sets, "last_error = ''")
	}

	args = append(args, id)
	res, err := s.db.Exec(fmt.Sprintf("UPDATE items SET %s WHERE id = ?", strings.Join(sets, ", ")), args...)
	if err != nil {
		return errors.Wrapf(err, "updating status of %s", id)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		log.Debug("item %s not found while setting status %s\n", id, status)
	}

	return nil
}

// Delete removes the item. Deleting a missing item is not an error.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec("DELETE FROM items WHERE id = ?", id); err != nil {
		return errors.Wrapf(err, "deleting item %s", id)
	}

	return nil
}

// CleanupSynced deletes synced items created before now minus olderThan and
// returns how many were deleted. Pending and failed items are never touched.
func (s *Store) CleanupSynced(olderThan time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-olderThan).UnixNano()

	res, err := s.db.Exec("DELETE FROM items WHERE status = ? AND created_at < ?", StatusSynced, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "deleting synced items")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting deleted items")
	}

	if err := database.UpdateSystem(s.db, database.SystemLastCleanupAt, s.clock.Now().Unix()); err != nil {
		return int(n), errors.Wrap(err, "recording cleanup time")
	}

	return int(n), nil
}

// ResetFailed moves every failed item back to pending with a zero retry
// count and returns how many were reset
func (s *Store) ResetFailed() (int, error) {
	res, err := s.db.Exec("UPDATE items SET status = ?, retry_count = 0, updated_at = ? WHERE status = ?",
		StatusPending, s.clock.Now().UnixNano(), StatusFailed)
	if err != nil {
		return 0, errors.Wrap(err, "resetting failed items")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting reset items")
	}

	return int(n), nil
}

// RequeueStranded moves items left in syncing by an interrupted run back to
// pending. Their retry count is kept.
func (s *Store) RequeueStranded() (int, error) {
	res, err := s.db.Exec("UPDATE items SET status = ?, updated_at = ? WHERE status = ?",
		StatusPending, s.clock.Now().UnixNano(), StatusSyncing)
	if err != nil {
		return 0, errors.Wrap(err, "requeueing stranded items")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting requeued items")
	}

	return int(n), nil
}

// SetLastSyncAt records the time at which a sync run completed
func (s *Store) SetLastSyncAt(t time.Time) error {
	return database.UpdateSystem(s.db, database.SystemLastSyncAt, t.Unix())
}
