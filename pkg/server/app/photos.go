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
	"time"

	"github.com/custodial/fieldsync/pkg/server/database"
	"github.com/custodial/fieldsync/pkg/server/log"
	"github.com/pkg/errors"
)

// CreatePhotoParams is the parameters for storing a photo
type CreatePhotoParams struct {
	ItemID       string
	InspectionID string
	Filename     string
	ContentType  string
	Checksum     string
	CapturedAt   time.Time
	Metadata     map[string]string
	Data         []byte
}

// CreatePhoto stores a photo. If a photo with the same item id was stored
// before, that photo is returned and the boolean is true.
func (a *App) CreatePhoto(p CreatePhotoParams) (database.Photo, bool, error) {
	if p.ItemID == "" {
		return database.Photo{}, false, ErrMissingItemID
	}

	var existing database.Photo
	ok, err := findByItemID(a.DB, p.ItemID, &existing)
	if err != nil {
		return database.Photo{}, false, err
	}
	if ok {
		logDuplicate("photo", p.ItemID, existing.Checksum, p.Checksum)
		return existing, true, nil
	}

	if len(p.Data) == 0 {
		return database.Photo{}, false, ErrEmptyPayload
	}
	if err := verifyChecksum(p.ItemID, p.Data, p.Checksum); err != nil {
		return database.Photo{}, false, err
	}

	metadata, err := encodeMetadata(p.Metadata)
	if err != nil {
		return database.Photo{}, false, err
	}

	capturedAt := p.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = a.Clock.Now()
	}

	photo := database.Photo{
		ItemID:       p.ItemID,
		InspectionID: p.InspectionID,
		Filename:     p.Filename,
		ContentType:  p.ContentType,
		Size:         int64(len(p.Data)),
		Checksum:     p.Checksum,
		Metadata:     metadata,
		Data:         p.Data,
		CapturedAt:   capturedAt.UTC(),
	}

	dup, err := create(a.DB, p.ItemID, &photo, &existing)
	if err != nil {
		return database.Photo{}, false, errors.Wrap(err, "storing photo")
	}
	if dup {
		logDuplicate("photo", p.ItemID, existing.Checksum, p.Checksum)
		return existing, true, nil
	}

	log.WithFields(log.Fields{
		"itemId":       photo.ItemID,
		"inspectionId": photo.InspectionID,
		"size":         photo.Size,
	}).Info("Stored photo.")

	return photo, false, nil
}

// GetPhoto returns the photo with the given item id
func (a *App) GetPhoto(itemID string) (database.Photo, error) {
	var photo database.Photo
	ok, err := findByItemID(a.DB, itemID, &photo)
	if err != nil {
		return photo, err
	}
	if !ok {
		return photo, ErrNotFound
	}

	return photo, nil
}
