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
	"io"
	"net/http"
	"time"

	"github.com/custodial/fieldsync/pkg/checksum"
	"github.com/custodial/fieldsync/pkg/server/app"
	"github.com/custodial/fieldsync/pkg/server/presenters"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

const (
	// headerItemID carries the item id when the body does not
	headerItemID = "X-Item-ID"
	// multipartMemory is the part of a multipart body kept in memory, the
	// rest is spooled to temporary files
	multipartMemory = 8 << 20
)

// NewUploads creates a new Uploads controller
func NewUploads(app *app.App) *Uploads {
	return &Uploads{
		app: app,
	}
}

// Uploads receives the items captured by agents
type Uploads struct {
	app *app.App
}

// UploadResp is the response of the upload endpoints
type UploadResp struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

// PhotoForm is the form data sent with a photo
type PhotoForm struct {
	ItemID       string `schema:"itemId"`
	InspectionID string `schema:"inspectionId"`
	CapturedAt   string `schema:"capturedAt"`
	Filename     string `schema:"filename"`
	ContentType  string `schema:"contentType"`
}

// reservedFields are form fields that are not kept as metadata
var reservedFields = map[string]bool{
	"itemId":     true,
	"capturedAt": true,
}

func parseCapturedAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrInvalidCapturedAt, "'%s'", s)
	}

	return t, nil
}

func respondUpload(w http.ResponseWriter, itemID string, duplicate bool) {
	statusCode := http.StatusCreated
	if duplicate {
		statusCode = http.StatusOK
	}

	respondJSON(w, statusCode, UploadResp{ID: itemID, Duplicate: duplicate})
}

func (u *Uploads) parsePhoto(r *http.Request) (app.CreatePhotoParams, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return app.CreatePhotoParams{}, err
		}
		return app.CreatePhotoParams{}, errors.Wrap(ErrInvalidForm, err.Error())
	}

	var form PhotoForm
	if err := parseForm(r.MultipartForm.Value, &form); err != nil {
		return app.CreatePhotoParams{}, err
	}

	capturedAt, err := parseCapturedAt(form.CapturedAt)
	if err != nil {
		return app.CreatePhotoParams{}, err
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		return app.CreatePhotoParams{}, ErrMissingFile
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return app.CreatePhotoParams{}, errors.Wrap(err, "reading file")
	}

	metadata := map[string]string{}
	for k, v := range r.MultipartForm.Value {
		if !reservedFields[k] && len(v) > 0 {
			metadata[k] = v[0]
		}
	}

	p := app.CreatePhotoParams{
		ItemID:       form.ItemID,
		InspectionID: form.InspectionID,
		Filename:     form.Filename,
		ContentType:  form.ContentType,
		Checksum:     r.Header.Get(checksum.HeaderName),
		CapturedAt:   capturedAt,
		Metadata:     metadata,
		Data:         data,
	}
	if p.ItemID == "" {
		p.ItemID = r.Header.Get(headerItemID)
	}
	if p.Filename == "" {
		p.Filename = header.Filename
	}
	if p.ContentType == "" {
		p.ContentType = header.Header.Get("Content-Type")
	}

	return p, nil
}

// CreatePhoto handles POST /api/photos
func (u *Uploads) CreatePhoto(w http.ResponseWriter, r *http.Request) {
	p, err := u.parsePhoto(r)
	if err != nil {
		handleJSONError(w, err, "parsing photo")
		return
	}

	photo, duplicate, err := u.app.CreatePhoto(p)
	if err != nil {
		handleJSONError(w, err, "creating photo")
		return
	}

	respondUpload(w, photo.ItemID, duplicate)
}

// NotePayload is the body of a custodial note upload
type NotePayload struct {
	ItemID       string            `json:"itemId"`
	InspectionID string            `json:"inspectionId"`
	CapturedAt   time.Time         `json:"capturedAt"`
	Metadata     map[string]string `json:"metadata"`
	Payload      json.RawMessage   `json:"payload"`
}

// CreateNote handles POST /api/custodial-notes
func (u *Uploads) CreateNote(w http.ResponseWriter, r *http.Request) {
	var body NotePayload
	if err := parseRequestData(r, &body); err != nil {
		handleJSONError(w, err, "parsing note")
		return
	}

	itemID := body.ItemID
	if itemID == "" {
		itemID = r.Header.Get(headerItemID)
	}

	note, duplicate, err := u.app.CreateNote(app.CreateNoteParams{
		ItemID:       itemID,
		InspectionID: body.InspectionID,
		Checksum:     r.Header.Get(checksum.HeaderName),
		CapturedAt:   body.CapturedAt,
		Metadata:     body.Metadata,
		Payload:      body.Payload,
	})
	if err != nil {
		handleJSONError(w, err, "creating note")
		return
	}

	respondUpload(w, note.ItemID, duplicate)
}

// ShowPhoto handles GET /api/photos/{itemId}
func (u *Uploads) ShowPhoto(w http.ResponseWriter, r *http.Request) {
	photo, err := u.app.GetPhoto(mux.Vars(r)["itemId"])
	if err != nil {
		handleJSONError(w, err, "getting photo")
		return
	}

	respondJSON(w, http.StatusOK, presenters.PresentPhoto(photo))
}

// ShowNote handles GET /api/custodial-notes/{itemId}
func (u *Uploads) ShowNote(w http.ResponseWriter, r *http.Request) {
	note, err := u.app.GetNote(mux.Vars(r)["itemId"])
	if err != nil {
		handleJSONError(w, err, "getting note")
		return
	}

	respondJSON(w, http.StatusOK, presenters.PresentNote(note))
}
