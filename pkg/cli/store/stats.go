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

package store

import (
	"database/sql"
	"encoding/json"
	"io"
	"time"

	"github.com/custodial/fieldsync/pkg/cli/database"
	"github.com/pkg/errors"
)

const (
	// WarningThreshold is the share of the quota above which storage is
	// reported as nearly full
	WarningThreshold = 0.8
	// CriticalThreshold is the share of the quota above which storage is
	// reported as critical
	CriticalThreshold = 0.95

	// ExportVersion is the version of the export document format
	ExportVersion = "1.0"
)

// Stats summarizes the queue and its storage usage
type Stats struct {
	Total          int       `json:"total"`
	Pending        int       `json:"pending"`
	Syncing        int       `json:"syncing"`
	Synced         int       `json:"synced"`
	Failed         int       `json:"failed"`
	UsedBytes      int64     `json:"usedBytes"`
	QuotaBytes     int64     `json:"quotaBytes"`
	AvailableBytes int64     `json:"availableBytes"`
	Percentage     float64   `json:"percentage"`
	Warning        bool      `json:"warning"`
	Critical       bool      `json:"critical"`
	LastSyncAt     time.Time `json:"lastSyncAt"`
}

// Stats returns per status counts and quota accounting
func (s *Store) Stats() (Stats, error) {
	ret := Stats{QuotaBytes: s.quotaBytes}

	rows, err := s.db.Query("SELECT status, count(*) FROM items GROUP BY status")
	if err != nil {
		return ret, errors.Wrap(err, "counting items")
	}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return ret, errors.Wrap(err, "scanning count")
		}

		switch status {
		case StatusPending:
			ret.Pending = count
		case StatusSyncing:
			ret.Syncing = count
		case StatusSynced:
			ret.Synced = count
		case StatusFailed:
			ret.Failed = count
		}
		ret.Total += count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return ret, errors.Wrap(err, "iterating counts")
	}
	rows.Close()

	used, err := usedBytes(s.db)
	if err != nil {
		return ret, err
	}
	ret.UsedBytes = used

	if s.quotaBytes > 0 {
		ret.AvailableBytes = s.quotaBytes - used
		if ret.AvailableBytes < 0 {
			ret.AvailableBytes = 0
		}

		ratio := float64(used) / float64(s.quotaBytes)
		ret.Percentage = ratio * 100
		ret.Warning = ratio >= WarningThreshold
		ret.Critical = ratio >= CriticalThreshold
	}

	var lastSyncAt int64
	err = database.GetSystem(s.db, database.SystemLastSyncAt, &lastSyncAt)
	if err != nil && err != sql.ErrNoRows {
		return ret, errors.Wrap(err, "reading last sync time")
	}
	if lastSyncAt > 0 {
		ret.LastSyncAt = time.Unix(lastSyncAt, 0).UTC()
	}

	return ret, nil
}

// exportDocument is the format written by Export
type exportDocument struct {
	Version    string    `json:"version"`
	ExportDate time.Time `json:"exportDate"`
	Items      []Item    `json:"items"`
}

// Export writes every item, without payloads, as a JSON document
func (s *Store) Export(w io.Writer) error {
	items, err := s.List(Filter{})
	if err != nil {
		return errors.Wrap(err, "listing items")
	}

	doc := exportDocument{
		Version:    ExportVersion,
		ExportDate: s.clock.Now().UTC(),
		Items:      items,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encoding export")
	}

	return nil
}
