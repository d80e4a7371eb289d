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
	"net/http"
	"time"

	"github.com/custodial/fieldsync/pkg/server/app"
	mw "github.com/custodial/fieldsync/pkg/server/middleware"
	"github.com/gorilla/csrf"
)

// NewCSRF creates a new CSRF controller
func NewCSRF(app *app.App) *CSRF {
	return &CSRF{}
}

// CSRF issues the tokens required by the upload endpoints
type CSRF struct {
}

// CSRFTokenResp is the response of the token endpoint
type CSRFTokenResp struct {
	CSRFToken string `json:"csrfToken"`
	ExpiresIn int    `json:"expiresIn"`
}

// Token handles GET /api/csrf-token. The token is only valid together with
// the cookie set on the same response.
func (c *CSRF) Token(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	respondJSON(w, http.StatusOK, CSRFTokenResp{
		CSRFToken: csrf.Token(r),
		ExpiresIn: int(mw.CSRFTokenLifetime / time.Second),
	})
}
