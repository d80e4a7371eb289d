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

	"github.com/custodial/fieldsync/pkg/checksum"
	"github.com/custodial/fieldsync/pkg/server/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// verifyChecksum checks the content against the digest sent by the agent. An
// upload without a digest is accepted.
func verifyChecksum(itemID string, content []byte, digest string) error {
	if digest == "" {
		log.WithFields(log.Fields{
			"itemId": itemID,
		}).Debug("Upload without checksum.")
		return nil
	}

	if !checksum.Verify(content, digest) {
		return errors.Wrapf(ErrChecksumMismatch, "item %s", itemID)
	}

	return nil
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}

	b, err := json.Marshal(m)
	if err != nil {
		return "", errors.Wrap(err, "encoding metadata")
	}

	return string(b), nil
}

// findByItemID loads the upload with the given item id into dest and reports
// whether it exists
func findByItemID(db *gorm.DB, itemID string, dest interface{}) (bool, error) {
	err := db.Where("item_id = ?", itemID).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "finding item %s", itemID)
	}

	return true, nil
}

// create inserts a new upload. If the insert fails because another request
// stored the same item first, the stored row is loaded into existing and
// reported as a duplicate.
func create(db *gorm.DB, itemID string, row, existing interface{}) (bool, error) {
	err := db.Create(row).Error
	if err == nil {
		return false, nil
	}

	ok, findErr := findByItemID(db, itemID, existing)
	if findErr != nil || !ok {
		return false, errors.Wrapf(err, "inserting item %s", itemID)
	}

	return true, nil
}

func logDuplicate(kind, itemID, storedChecksum, digest string) {
	entry := log.WithFields(log.Fields{
		"kind":   kind,
		"itemId": itemID,
	})

	if digest != "" && storedChecksum != "" && digest != storedChecksum {
		entry.Warn("Duplicate upload with a different checksum, keeping the stored one.")
		return
	}

	entry.Info("Duplicate upload.")
}
