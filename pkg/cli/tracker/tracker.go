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

// Package tracker durably records which item a sync run is working on, so
// that a restarted process can tell that a run was interrupted
package tracker

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/custodial/fieldsync/pkg/cli/database"
	"github.com/custodial/fieldsync/pkg/clock"
	"github.com/pkg/errors"
)

// stateID is the id of the single sync state record
const stateID = "current"

// Outcome is the result of one upload attempt
type Outcome int

const (
	// OutcomeSuccess means the server accepted the item
	OutcomeSuccess Outcome = iota
	// OutcomeFailure means the attempt failed
	OutcomeFailure
)

// State is the progress of the current or most recent sync run
type State struct {
	InProgress     bool
	CurrentItemID  string
	ItemKind       string
	CompletedItems []string
	FailedItems    []string
	SessionID      string
	StartedAt      time.Time
	LastUpdated    time.Time
}

// initialState is the state before any run, and after a run finishes
func initialState() State {
	return State{
		CompletedItems: []string{},
		FailedItems:    []string{},
	}
}

// Tracker persists the sync state. Every mutation is committed in its own
// transaction before the method returns.
type Tracker struct {
	db        *database.DB
	clock     clock.Clock
	sessionID string
}

// New returns a tracker that stamps runs with the given session id
func New(db *database.DB, c clock.Clock, sessionID string) *Tracker {
	return &Tracker{
		db:        db,
		clock:     c,
		sessionID: sessionID,
	}
}

// SessionID returns the id of the process session owning this tracker
func (t *Tracker) SessionID() string {
	return t.sessionID
}

func getState(db *database.DB) (State, error) {
	var ret State
	var inProgress int
	var completed, failed string
	var startedAt, lastUpdated int64

	err := db.QueryRow(`SELECT in_progress, current_item_id, item_kind, completed_items,
		failed_items, session_id, started_at, last_updated
		FROM sync_state WHERE id = ?`, stateID).Scan(
		&inProgress,
		&ret.CurrentItemID,
		&ret.ItemKind,
		&completed,
		&failed,
		&ret.SessionID,
		&startedAt,
		&lastUpdated,
	)
	if err == sql.ErrNoRows {
		return initialState(), nil
	}
	if err != nil {
		return ret, errors.Wrap(err, "reading sync state")
	}

	if err := json.Unmarshal([]byte(completed), &ret.CompletedItems); err != nil {
		return ret, errors.Wrap(err, "decoding completed items")
	}
	if err := json.Unmarshal([]byte(failed), &ret.FailedItems); err != nil {
		return ret, errors.Wrap(err, "decoding failed items")
	}

	ret.InProgress = inProgress == 1
	if startedAt > 0 {
		ret.StartedAt = time.Unix(0, startedAt).UTC()
	}
	if lastUpdated > 0 {
		ret.LastUpdated = time.Unix(0, lastUpdated).UTC()
	}

	return ret, nil
}

func putState(db *database.DB, s State) error {
	completed, err := json.Marshal(s.CompletedItems)
	if err != nil {
		return errors.Wrap(err, "encoding completed items")
	}
	failed, err := json.Marshal(s.FailedItems)
	if err != nil {
		return errors.Wrap(err, "encoding failed items")
	}

	var inProgress int
	if s.InProgress {
		inProgress = 1
	}
	var startedAt int64
	if !s.StartedAt.IsZero() {
		startedAt = s.StartedAt.UnixNano()
	}

	_, err = db.Exec(`INSERT OR REPLACE INTO sync_state
		(id, in_progress, current_item_id, item_kind, completed_items, failed_items, session_id, started_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stateID, inProgress, s.CurrentItemID, s.ItemKind, string(completed), string(failed),
		s.SessionID, startedAt, s.LastUpdated.UnixNano())
	if err != nil {
		return errors.Wrap(err, "writing sync state")
	}

	return nil
}

// mutate applies fn to the stored state in a single transaction
func (t *Tracker) mutate(fn func(*State)) error {
	tx, err := t.db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning a transaction")
	}

	s, err := getState(tx)
	if err != nil {
		tx.Rollback()
		return err
	}

	fn(&s)
	s.LastUpdated = t.clock.Now()

	if err := putState(tx, s); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing sync state")
	}

	return nil
}

// GetState returns the persisted state, or the initial state if none was
// ever written
func (t *Tracker) GetState() (State, error) {
	return getState(t.db)
}

// StartRun records the beginning of a new run owned by this session. The
// per-run lists are cleared. The run is not in progress until the first item
// begins.
func (t *Tracker) StartRun() error {
	return t.mutate(func(s *State) {
		*s = initialState()
		s.SessionID = t.sessionID
		s.StartedAt = t.clock.Now()
	})
}

// BeginItem durably marks the item as in flight. It must return before the
// upload of the item starts.
func (t *Tracker) BeginItem(id, kind string) error {
	return t.mutate(func(s *State) {
		if !s.InProgress {
			startedAt := s.StartedAt
			if s.SessionID != t.sessionID {
				startedAt = time.Time{}
			}

			*s = initialState()
			s.StartedAt = startedAt
		}

		s.InProgress = true
		s.CurrentItemID = id
		s.ItemKind = kind
		s.SessionID = t.sessionID
		if s.StartedAt.IsZero() {
			s.StartedAt = t.clock.Now()
		}
	})
}

// CompleteItem records the outcome of the item and clears the current item.
// The run stays in progress.
func (t *Tracker) CompleteItem(id string, outcome Outcome) error {
	return t.mutate(func(s *State) {
		if outcome == OutcomeSuccess {
			s.CompletedItems = append(s.CompletedItems, id)
		} else {
			s.FailedItems = append(s.FailedItems, id)
		}

		if s.CurrentItemID == id {
			s.CurrentItemID = ""
			s.ItemKind = ""
		}
	})
}

// FinishRun marks the run as no longer in progress and clears its lists
func (t *Tracker) FinishRun() error {
	return t.mutate(func(s *State) {
		sessionID := s.SessionID

		*s = initialState()
		s.SessionID = sessionID
	})
}

// Clear resets the state to its initial value. Clearing twice is harmless.
func (t *Tracker) Clear() error {
	return t.mutate(func(s *State) {
		*s = initialState()
	})
}
