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

package presenters

import (
	"time"

	"github.com/custodial/fieldsync/pkg/server/database"
)

// Upload is a result of PresentPhoto and PresentNote
type Upload struct {
	ItemID       string    `json:"itemId"`
	InspectionID string    `json:"inspectionId"`
	Checksum     string    `json:"checksum"`
	Size         int64     `json:"size,omitempty"`
	CapturedAt   time.Time `json:"capturedAt"`
	ReceivedAt   time.Time `json:"receivedAt"`
}

// PresentPhoto presents a stored photo without its data
func PresentPhoto(p database.Photo) Upload {
	return Upload{
		ItemID:       p.ItemID,
		InspectionID: p.InspectionID,
		Checksum:     p.Checksum,
		Size:         p.Size,
		CapturedAt:   FormatTS(p.CapturedAt),
		ReceivedAt:   FormatTS(p.CreatedAt),
	}
}

// PresentNote presents a stored custodial note without its payload
func PresentNote(n database.Note) Upload {
	return Upload{
		ItemID:       n.ItemID,
		InspectionID: n.InspectionID,
		Checksum:     n.Checksum,
		CapturedAt:   FormatTS(n.CapturedAt),
		ReceivedAt:   FormatTS(n.CreatedAt),
	}
}
