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

package app

import (
	"encoding/json"
	"time"

	"github.com/custodial/fieldsync/pkg/server/database"
	"github.com/custodial/fieldsync/pkg/server/log"
	"github.com/pkg/errors"
)

// CreateNoteParams is the parameters for storing a custodial note
type CreateNoteParams struct {
	ItemID       string
	InspectionID string
	Checksum     string
	CapturedAt   time.Time
	Metadata     map[string]string
	Payload      json.RawMessage
}

// CreateNote stores a custodial note. The checksum covers the payload bytes as
// sent. If a note with the same item id was stored before, that note is
// returned and the boolean is true.
func (a *App) CreateNote(p CreateNoteParams) (database.Note, bool, error) {
	if p.ItemID == "" {
		return database.Note{}, false, ErrMissingItemID
	}

	var existing database.Note
	ok, err := findByItemID(a.DB, p.ItemID, &existing)
	if err != nil {
		return database.Note{}, false, err
	}
	if ok {
		logDuplicate("note", p.ItemID, existing.Checksum, p.Checksum)
		return existing, true, nil
	}

	if len(p.Payload) == 0 || string(p.Payload) == "null" {
		return database.Note{}, false, ErrEmptyPayload
	}
	if !json.Valid(p.Payload) {
		return database.Note{}, false, ErrInvalidPayload
	}
	if err := verifyChecksum(p.ItemID, p.Payload, p.Checksum); err != nil {
		return database.Note{}, false, err
	}

	metadata, err := encodeMetadata(p.Metadata)
	if err != nil {
		return database.Note{}, false, err
	}

	capturedAt := p.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = a.Clock.Now()
	}

	note := database.Note{
		ItemID:       p.ItemID,
		InspectionID: p.InspectionID,
		Payload:      string(p.Payload),
		Metadata:     metadata,
		Checksum:     p.Checksum,
		CapturedAt:   capturedAt.UTC(),
	}

	dup, err := create(a.DB, p.ItemID, &note, &existing)
	if err != nil {
		return database.Note{}, false, errors.Wrap(err, "storing note")
	}
	if dup {
		logDuplicate("note", p.ItemID, existing.Checksum, p.Checksum)
		return existing, true, nil
	}

	log.WithFields(log.Fields{
		"itemId":       note.ItemID,
		"inspectionId": note.InspectionID,
	}).Info("Stored note.")

	return note, false, nil
}

// GetNote returns the note with the given item id
func (a *App) GetNote(itemID string) (database.Note, error) {
	var note database.Note
	ok, err := findByItemID(a.DB, itemID, &note)
	if err != nil {
		return note, err
	}
	if !ok {
		return note, ErrNotFound
	}

	return note, nil
}
