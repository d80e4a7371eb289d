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

// Package app implements the operations of the intake server
package app

import (
	"github.com/custodial/fieldsync/pkg/clock"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	// ErrEmptyDB is an error for missing database connection in the app configuration
	ErrEmptyDB = errors.New("No database connection was provided")
	// ErrEmptyClock is an error for missing clock in the app configuration
	ErrEmptyClock = errors.New("No clock was provided")
	// ErrEmptyCSRFKey is an error for missing CSRF key in the app configuration
	ErrEmptyCSRFKey = errors.New("No CSRF key was provided")

	// ErrMissingItemID is returned for an upload without an item id
	ErrMissingItemID = errors.New("itemId is required")
	// ErrEmptyPayload is returned for an upload without content
	ErrEmptyPayload = errors.New("payload is empty")
	// ErrInvalidPayload is returned for a note whose payload is not a JSON document
	ErrInvalidPayload = errors.New("payload is not a JSON document")
	// ErrChecksumMismatch is returned when the content does not match the
	// checksum sent with it
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrNotFound is returned when an upload does not exist
	ErrNotFound = errors.New("not found")
)

// App is an application context
type App struct {
	DB             *gorm.DB
	Clock          clock.Clock
	CSRFKey        []byte
	MaxUploadBytes int64
	// SecureCookies marks the CSRF cookie as HTTPS only
	SecureCookies bool
}

// Validate validates the app configuration
func (a *App) Validate() error {
	if a.Clock == nil {
		return ErrEmptyClock
	}
	if a.DB == nil {
		return ErrEmptyDB
	}
	if len(a.CSRFKey) == 0 {
		return ErrEmptyCSRFKey
	}

	return nil
}
