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

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"time"

	"github.com/custodial/fieldsync/pkg/checksum"
	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/custodial/fieldsync/pkg/cli/store"
	"github.com/pkg/errors"
)

const (
	// PhotosPath is the path, under the API endpoint, receiving photos
	PhotosPath = "/photos"
	// NotesPath is the path, under the API endpoint, receiving custodial note forms
	NotesPath = "/custodial-notes"

	// HeaderCSRFToken carries the CSRF token
	HeaderCSRFToken = "X-CSRF-Token"
	// HeaderItemID carries the id of the uploaded item so that the server
	// can recognize a repeated upload
	HeaderItemID = "X-Item-ID"
)

// Uploader sends a capture item to the server
type Uploader interface {
	Upload(ctx context.Context, item store.Item) error
}

// UploadResp is the response of the upload endpoints
type UploadResp struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

// NotePayload is the body of a custodial note upload
type NotePayload struct {
	ItemID       string            `json:"itemId"`
	InspectionID string            `json:"inspectionId"`
	CapturedAt   time.Time         `json:"capturedAt"`
	Metadata     map[string]string `json:"metadata"`
	Payload      json.RawMessage   `json:"payload"`
}

// HTTPUploader uploads items to the intake server
type HTTPUploader struct {
	endpoint   string
	version    string
	httpClient *http.Client
	tokens     *CSRFProvider
}

// NewHTTPUploader returns an uploader posting to the given API endpoint
func NewHTTPUploader(endpoint, version string, hc *http.Client, tokens *CSRFProvider) *HTTPUploader {
	return &HTTPUploader{
		endpoint:   endpoint,
		version:    version,
		httpClient: hc,
		tokens:     tokens,
	}
}

// Upload sends the item with a valid CSRF token. If the server refuses the
// token, a new one is fetched and the upload is attempted once more.
func (u *HTTPUploader) Upload(ctx context.Context, item store.Item) error {
	err := u.upload(ctx, item)
	if err == nil || !IsForbidden(err) {
		return err
	}

	log.Debug("csrf token rejected for %s, refreshing\n", item.ID)
	u.tokens.Invalidate()

	return u.upload(ctx, item)
}

func (u *HTTPUploader) upload(ctx context.Context, item store.Item) error {
	token, err := u.tokens.RefreshIfNeeded(ctx)
	if err != nil {
		return errors.Wrap(err, "getting csrf token")
	}

	var req *http.Request
	switch item.Kind {
	case store.KindPhoto:
		req, err = u.newPhotoReq(ctx, item)
	case store.KindForm:
		req, err = u.newNoteReq(ctx, item)
	default:
		return errors.Errorf("unknown item kind '%s'", item.Kind)
	}
	if err != nil {
		return errors.Wrapf(err, "building request for %s", item.ID)
	}

	req.Header.Set("CLI-Version", u.version)
	req.Header.Set(HeaderCSRFToken, token)
	req.Header.Set(HeaderItemID, item.ID)
	req.Header.Set(checksum.HeaderName, item.Checksum)

	res, err := do(u.httpClient, req)
	if err != nil {
		return errors.Wrapf(err, "uploading %s %s", item.Kind, item.ID)
	}
	defer res.Body.Close()

	var resp UploadResp
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		log.Debug("decoding upload response for %s: %s\n", item.ID, err.Error())
		return nil
	}
	if resp.Duplicate {
		log.Debug("server already had %s\n", item.ID)
	}

	return nil
}

func (u *HTTPUploader) newPhotoReq(ctx context.Context, item store.Item) (*http.Request, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fields := map[string]string{}
	for k, v := range item.Metadata {
		fields[k] = v
	}
	fields["itemId"] = item.ID
	fields["capturedAt"] = item.CreatedAt.UTC().Format(time.RFC3339Nano)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, errors.Wrapf(err, "writing field %s", k)
		}
	}

	filename := item.Metadata["filename"]
	if filename == "" {
		filename = fmt.Sprintf("%s.jpg", item.ID)
	}
	contentType := item.Metadata["contentType"]
	if contentType == "" {
		contentType = http.DetectContentType(item.Payload)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, errors.Wrap(err, "creating file part")
	}
	if _, err := part.Write(item.Payload); err != nil {
		return nil, errors.Wrap(err, "writing file part")
	}

	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "closing multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint+PhotosPath, &body)
	if err != nil {
		return nil, errors.Wrap(err, "constructing http request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return req, nil
}

func (u *HTTPUploader) newNoteReq(ctx context.Context, item store.Item) (*http.Request, error) {
	payload := NotePayload{
		ItemID:       item.ID,
		InspectionID: item.Metadata["inspectionId"],
		CapturedAt:   item.CreatedAt.UTC(),
		Metadata:     item.Metadata,
		Payload:      json.RawMessage(item.Payload),
	}

	// the payload must reach the server byte for byte so that its checksum
	// matches, hence no HTML escaping
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, errors.Wrap(err, "marshalling payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint+NotesPath, &body)
	if err != nil {
		return nil, errors.Wrap(err, "constructing http request")
	}
	req.Header.Set("Content-Type", contentTypeApplicationJSON)

	return req, nil
}
