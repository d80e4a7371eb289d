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
	"testing"
	"time"

	"github.com/custodial/fieldsync/pkg/assert"
	"github.com/custodial/fieldsync/pkg/server/database"
)

func TestPresentPhoto(t *testing.T) {
	createdAt := time.Date(2025, 1, 15, 10, 30, 45, 123456789, time.UTC)
	capturedAt := time.Date(2025, 1, 15, 9, 0, 0, 987654321, time.FixedZone("EST", -5*3600))

	input := database.Photo{
		Model: database.Model{
			ID:        1,
			CreatedAt: createdAt,
		},
		ItemID:       "a1b2c3d4-e5f6-4789-a012-3456789abcde",
		InspectionID: "insp-42",
		Filename:     "front.jpg",
		Size:         2048,
		Checksum:     "abc",
		Data:         []byte("jpeg"),
		CapturedAt:   capturedAt,
	}

	got := PresentPhoto(input)

	assert.Equal(t, got.ItemID, "a1b2c3d4-e5f6-4789-a012-3456789abcde", "ItemID mismatch")
	assert.Equal(t, got.InspectionID, "insp-42", "InspectionID mismatch")
	assert.Equal(t, got.Checksum, "abc", "Checksum mismatch")
	assert.Equal(t, got.Size, int64(2048), "Size mismatch")
	assert.Equal(t, got.CapturedAt, FormatTS(capturedAt), "CapturedAt mismatch")
	assert.Equal(t, got.CapturedAt.Location(), time.UTC, "CapturedAt should be in UTC")
	assert.Equal(t, got.ReceivedAt, FormatTS(createdAt), "ReceivedAt mismatch")
}

func TestPresentNote(t *testing.T) {
	createdAt := time.Date(2025, 2, 20, 14, 45, 30, 987654321, time.UTC)

	input := database.Note{
		Model: database.Model{
			ID:        3,
			CreatedAt: createdAt,
		},
		ItemID:       "f1e2d3c4-b5a6-4987-b654-321fedcba098",
		InspectionID: "insp-7",
		Payload:      `{"room":"101"}`,
		Checksum:     "def",
		CapturedAt:   createdAt,
	}

	got := PresentNote(input)

	assert.Equal(t, got.ItemID, "f1e2d3c4-b5a6-4987-b654-321fedcba098", "ItemID mismatch")
	assert.Equal(t, got.InspectionID, "insp-7", "InspectionID mismatch")
	assert.Equal(t, got.Checksum, "def", "Checksum mismatch")
	assert.Equal(t, got.Size, int64(0), "notes carry no size")
	assert.Equal(t, got.ReceivedAt, FormatTS(createdAt), "ReceivedAt mismatch")
}

func TestFormatTS(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 1500, time.FixedZone("X", 3600))

	got := FormatTS(ts)

	assert.Equal(t, got, time.Date(2025, 3, 1, 11, 0, 0, 2000, time.UTC), "timestamp mismatch")
}
