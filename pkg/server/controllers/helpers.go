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

package controllers

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/custodial/fieldsync/pkg/server/app"
	"github.com/custodial/fieldsync/pkg/server/log"
	"github.com/gorilla/schema"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidForm is returned for a request body that cannot be parsed
	ErrInvalidForm = errors.New("invalid request body")
	// ErrMissingFile is returned for a photo upload without a file part
	ErrMissingFile = errors.New("file is required")
	// ErrInvalidCapturedAt is returned for a capture time that is not RFC 3339
	ErrInvalidCapturedAt = errors.New("capturedAt must be an RFC 3339 time")
)

var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)

	return d
}

// parseForm decodes form values into dst
func parseForm(values url.Values, dst interface{}) error {
	if err := decoder.Decode(dst, values); err != nil {
		return errors.Wrap(ErrInvalidForm, err.Error())
	}

	return nil
}

// parseRequestData decodes the JSON body of the request into dst
func parseRequestData(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}

		return errors.Wrap(ErrInvalidForm, err.Error())
	}

	return nil
}

func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.ErrorWrap(err, "encoding response")
	}
}

// getStatusCode maps an error to the HTTP status code reported to clients
func getStatusCode(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}

	switch errors.Cause(err) {
	case app.ErrMissingItemID,
		app.ErrEmptyPayload,
		app.ErrInvalidPayload,
		app.ErrChecksumMismatch,
		ErrInvalidForm,
		ErrMissingFile,
		ErrInvalidCapturedAt:
		return http.StatusBadRequest
	case app.ErrNotFound:
		return http.StatusNotFound
	}

	return http.StatusInternalServerError
}

// handleJSONError logs the error and responds with its status code. Internal
// errors are not disclosed.
func handleJSONError(w http.ResponseWriter, err error, msg string) {
	statusCode := getStatusCode(err)

	if statusCode == http.StatusInternalServerError {
		log.ErrorWrap(err, msg)
		http.Error(w, "internal server error", statusCode)
		return
	}

	log.WithFields(log.Fields{
		"statusCode": statusCode,
		"error":      err,
	}).Info(msg)
	http.Error(w, errors.Cause(err).Error(), statusCode)
}
