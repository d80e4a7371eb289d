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
	"time"
)

// Kind is the type of a capture item
type Kind string

const (
	// KindPhoto is an inspection photo
	KindPhoto Kind = "photo"
	// KindForm is a serialized custodial note form
	KindForm Kind = "form"
)

// Valid reports whether the kind is known
func (k Kind) Valid() bool {
	return k == KindPhoto || k == KindForm
}

// Status is the position of an item in its lifecycle
type Status string

const (
	// StatusPending means the item is waiting to be uploaded
	StatusPending Status = "pending"
	// StatusSyncing means an upload attempt is in flight
	StatusSyncing Status = "syncing"
	// StatusSynced means the server accepted the item
	StatusSynced Status = "synced"
	// StatusFailed means the item exhausted its retries or was rejected
	StatusFailed Status = "failed"
)

// Item is a unit of captured work waiting to be uploaded
type Item struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	Payload    []byte            `json:"-"`
	Size       int64             `json:"size"`
	Metadata   map[string]string `json:"metadata"`
	Status     Status            `json:"status"`
	RetryCount int               `json:"retryCount"`
	Checksum   string            `json:"checksum"`
	LastError  string            `json:"lastError,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Filter narrows down a listing. Empty fields match everything.
type Filter struct {
	Status Status
	Kind   Kind
}
