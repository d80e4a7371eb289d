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

// Package middleware provides the HTTP middlewares of the intake server
package middleware

import (
	"net/http"
	"time"

	"github.com/custodial/fieldsync/pkg/server/app"
	"github.com/custodial/fieldsync/pkg/server/helpers"
	"github.com/custodial/fieldsync/pkg/server/log"
	"github.com/gorilla/csrf"
)

const (
	// CSRFCookieName is the name of the cookie holding the CSRF secret
	CSRFCookieName = "fieldsync_csrf"
	// CSRFHeaderName is the request header carrying the CSRF token
	CSRFHeaderName = "X-CSRF-Token"
	// CSRFTokenLifetime is the lifetime announced to clients. The cookie
	// outlives it so that a token used right before expiry is still accepted.
	CSRFTokenLifetime = time.Hour
	// RequestIDHeaderName carries the id of a request in the response, and in
	// the request when a proxy already assigned one
	RequestIDHeaderName = "X-Request-ID"
)

// Middleware is a middleware for request handlers
type Middleware func(h http.HandlerFunc, app *app.App, rateLimit bool) http.Handler

// WebMw is the middleware for the web routes
func WebMw(h http.HandlerFunc, app *app.App, rateLimit bool) http.Handler {
	return ApplyLimit(h, rateLimit)
}

// APIMw is the middleware for the API routes. Request bodies are bounded by
// the configured upload size.
func APIMw(h http.HandlerFunc, app *app.App, rateLimit bool) http.Handler {
	return ApplyLimit(MaxBytes(h, app.MaxUploadBytes), rateLimit)
}

// MaxBytes limits the size of the request body
func MaxBytes(next http.HandlerFunc, limit int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if limit > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}

		next.ServeHTTP(w, r)
	}
}

func csrfFailure(w http.ResponseWriter, r *http.Request) {
	log.WithFields(log.Fields{
		"path":   r.URL.Path,
		"reason": csrf.FailureReason(r),
	}).Warn("Rejected request with invalid CSRF token.")

	http.Error(w, "invalid csrf token", http.StatusForbidden)
}

// plaintext marks requests received without TLS so that the CSRF check does
// not require a same origin Referer, which agents do not send
func plaintext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			r = csrf.PlaintextHTTPRequest(r)
		}

		next.ServeHTTP(w, r)
	})
}

// CSRF rejects state changing requests without a valid token
func CSRF(a *app.App, next http.Handler) http.Handler {
	protect := csrf.Protect(a.CSRFKey,
		csrf.CookieName(CSRFCookieName),
		csrf.RequestHeader(CSRFHeaderName),
		csrf.Path("/"),
		csrf.Secure(a.SecureCookies),
		csrf.HttpOnly(true),
		csrf.MaxAge(int(2*CSRFTokenLifetime/time.Second)),
		csrf.ErrorHandler(http.HandlerFunc(csrfFailure)),
	)

	return plaintext(protect(next))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Logging logs every request with its status and duration
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		requestID := r.Header.Get(RequestIDHeaderName)
		if !helpers.ValidateUUID(requestID) {
			id, err := helpers.GenUUID()
			if err != nil {
				log.ErrorWrap(err, "generating request id")
			}
			requestID = id
		}
		w.Header().Set(RequestIDHeaderName, requestID)

		next.ServeHTTP(rec, r)

		entry := log.WithFields(log.Fields{
			"request":  requestID,
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
			"ip":       lookupIP(r),
		})
		if rec.status >= http.StatusInternalServerError {
			entry.Error("Request failed.")
		} else {
			entry.Debug("Request.")
		}
	})
}

// Global is the middleware applied to every request
func Global(a *app.App, h http.Handler) http.Handler {
	return Logging(CSRF(a, h))
}
