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
	"time"
)

// Model is the base model definition
type Model struct {
	ID        int       `gorm:"primaryKey" json:"-"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Photo is a model for an uploaded photo. ItemID is the id assigned by the
// agent and identifies repeated uploads of the same capture.
type Photo struct {
	Model
	ItemID       string    `json:"item_id" gorm:"uniqueIndex;type:text;not null"`
	InspectionID string    `json:"inspection_id" gorm:"index;type:text"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum" gorm:"type:text"`
	Metadata     string    `json:"metadata"`
	Data         []byte    `json:"-"`
	CapturedAt   time.Time `json:"captured_at"`
}

// Note is a model for an uploaded custodial note
type Note struct {
	Model
	ItemID       string    `json:"item_id" gorm:"uniqueIndex;type:text;not null"`
	InspectionID string    `json:"inspection_id" gorm:"index;type:text"`
	Payload      string    `json:"payload"`
	Metadata     string    `json:"metadata"`
	Checksum     string    `json:"checksum" gorm:"type:text"`
	CapturedAt   time.Time `json:"captured_at"`
}
