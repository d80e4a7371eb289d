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
	"testing"
	"time"

	"github.com/custodial/fieldsync/pkg/assert"
	"github.com/custodial/fieldsync/pkg/checksum"
	"github.com/custodial/fieldsync/pkg/server/database"
	"github.com/custodial/fieldsync/pkg/server/testutils"
	"github.com/pkg/errors"
)

func TestCreatePhoto(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	a := NewTest(db)

	data := []byte("jpeg bytes")
	capturedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	photo, duplicate, err := a.CreatePhoto(CreatePhotoParams{
		ItemID:       "item-1",
		InspectionID: "insp-1",
		Filename:     "IMG_0001.jpg",
		ContentType:  "image/jpeg",
		Checksum:     checksum.Sum(data),
		CapturedAt:   capturedAt,
		Metadata:     map[string]string{"room": "101"},
		Data:         data,
	})
	if err != nil {
		t.Fatal(errors.Wrap(err, "executing"))
	}

	assert.Equal(t, duplicate, false, "duplicate mismatch")
	assert.Equal(t, photo.Size, int64(len(data)), "size mismatch")

	var got database.Photo
	testutils.MustExec(t, db.Where("item_id = ?", "item-1").First(&got), "finding photo")
	assert.Equal(t, got.InspectionID, "insp-1", "inspection mismatch")
	assert.Equal(t, got.Filename, "IMG_0001.jpg", "filename mismatch")
	assert.Equal(t, string(got.Data), string(data), "data mismatch")
	assert.Equal(t, got.Metadata, `{"room":"101"}`, "metadata mismatch")
	assert.Equal(t, got.CapturedAt.Equal(capturedAt), true, "captured at mismatch")
}

func TestCreatePhoto_Duplicate(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	a := NewTest(db)

	data := []byte("jpeg bytes")
	p := CreatePhotoParams{ItemID: "item-1", Checksum: checksum.Sum(data), Data: data}

	if _, _, err := a.CreatePhoto(p); err != nil {
		t.Fatal(errors.Wrap(err, "first upload"))
	}

	photo, duplicate, err := a.CreatePhoto(p)
	if err != nil {
		t.Fatal(errors.Wrap(err, "second upload"))
	}
	assert.Equal(t, duplicate, true, "duplicate mismatch")
	assert.Equal(t, photo.ItemID, "item-1", "item id mismatch")

	var count int64
	testutils.MustExec(t, db.Model(&database.Photo{}).Count(&count), "counting photos")
	assert.Equal(t, count, int64(1), "the photo should be stored once")
}

func TestCreatePhoto_Invalid(t *testing.T) {
	data := []byte("jpeg bytes")

	testCases := []struct {
		name        string
		params      CreatePhotoParams
		expectedErr error
	}{
		{
			name:        "missing item id",
			params:      CreatePhotoParams{Data: data},
			expectedErr: ErrMissingItemID,
		},
		{
			name:        "empty data",
			params:      CreatePhotoParams{ItemID: "item-1"},
			expectedErr: ErrEmptyPayload,
		},
		{
			name:        "checksum mismatch",
			params:      CreatePhotoParams{ItemID: "item-1", Data: data, Checksum: checksum.Sum([]byte("other"))},
			expectedErr: ErrChecksumMismatch,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db := testutils.InitMemoryDB(t)
			a := NewTest(db)

			_, _, err := a.CreatePhoto(tc.params)
			assert.Equal(t, errors.Cause(err), tc.expectedErr, "error mismatch")

			var count int64
			testutils.MustExec(t, db.Model(&database.Photo{}).Count(&count), "counting photos")
			assert.Equal(t, count, int64(0), "nothing should be stored")
		})
	}
}

func TestCreatePhoto_WithoutChecksum(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	a := NewTest(db)

	_, duplicate, err := a.CreatePhoto(CreatePhotoParams{ItemID: "item-1", Data: []byte("jpeg")})
	if err != nil {
		t.Fatal(errors.Wrap(err, "executing"))
	}
	assert.Equal(t, duplicate, false, "duplicate mismatch")
}

func TestGetPhoto(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	a := NewTest(db)

	_, err := a.GetPhoto("missing")
	assert.Equal(t, errors.Cause(err), ErrNotFound, "error mismatch")

	if _, _, err := a.CreatePhoto(CreatePhotoParams{ItemID: "item-1", Data: []byte("jpeg")}); err != nil {
		t.Fatal(errors.Wrap(err, "creating"))
	}

	photo, err := a.GetPhoto("item-1")
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting"))
	}
	assert.Equal(t, photo.ItemID, "item-1", "item id mismatch")
}
