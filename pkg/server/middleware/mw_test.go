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

package middleware

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/custodial/fieldsync/pkg/assert"
	"github.com/custodial/fieldsync/pkg/server/app"
	"github.com/custodial/fieldsync/pkg/server/helpers"
	"github.com/gorilla/csrf"
	"github.com/pkg/errors"
)

func newCSRFServer(t *testing.T) *httptest.Server {
	a := app.NewTest(nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, csrf.Token(r))
	})
	mux.HandleFunc("/write", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	server := httptest.NewServer(Global(&a, mux))
	t.Cleanup(server.Close)

	return server
}

func newJarClient(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(errors.Wrap(err, "creating cookie jar"))
	}

	return &http.Client{Jar: jar}
}

func post(t *testing.T, hc *http.Client, url, token string) *http.Response {
	req, err := http.NewRequest("POST", url, strings.NewReader("{}"))
	if err != nil {
		t.Fatal(errors.Wrap(err, "constructing request"))
	}
	if token != "" {
		req.Header.Set(CSRFHeaderName, token)
	}

	res, err := hc.Do(req)
	if err != nil {
		t.Fatal(errors.Wrap(err, "performing request"))
	}
	res.Body.Close()

	return res
}

func TestCSRF(t *testing.T) {
	server := newCSRFServer(t)

	t.Run("without token", func(t *testing.T) {
		res := post(t, newJarClient(t), server.URL+"/write", "")

		assert.StatusCodeEquals(t, res, http.StatusForbidden, "status code mismatch")
	})

	t.Run("with token", func(t *testing.T) {
		hc := newJarClient(t)

		res, err := hc.Get(server.URL + "/token")
		if err != nil {
			t.Fatal(errors.Wrap(err, "getting token"))
		}
		b, err := io.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			t.Fatal(errors.Wrap(err, "reading token"))
		}

		res = post(t, hc, server.URL+"/write", string(b))
		assert.StatusCodeEquals(t, res, http.StatusCreated, "status code mismatch")
	})

	t.Run("token without its cookie", func(t *testing.T) {
		res, err := http.Get(server.URL + "/token")
		if err != nil {
			t.Fatal(errors.Wrap(err, "getting token"))
		}
		b, _ := io.ReadAll(res.Body)
		res.Body.Close()

		res = post(t, newJarClient(t), server.URL+"/write", string(b))
		assert.StatusCodeEquals(t, res, http.StatusForbidden, "status code mismatch")
	})
}

func TestMaxBytes(t *testing.T) {
	h := MaxBytes(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}, 8)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/", strings.NewReader("short")))
	assert.Equal(t, w.Code, http.StatusOK, "small body should pass")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/", strings.NewReader("a body longer than the limit")))
	assert.Equal(t, w.Code, http.StatusRequestEntityTooLarge, "large body should be refused")
}

func TestLogging_RequestID(t *testing.T) {
	handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

		assert.Equal(t, w.Code, http.StatusNoContent, "status mismatch")
		assert.Equal(t, helpers.ValidateUUID(w.Header().Get(RequestIDHeaderName)), true, "a request id should be assigned")
	})

	t.Run("forwarded", func(t *testing.T) {
		id := "5d2a9c3e-6f1b-4f0e-9a43-6a2a9d1c2b7e"

		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set(RequestIDHeaderName, id)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, w.Header().Get(RequestIDHeaderName), id, "the forwarded id should be kept")
	})

	t.Run("invalid forwarded", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set(RequestIDHeaderName, "not-an-id")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.NotEqual(t, w.Header().Get(RequestIDHeaderName), "not-an-id", "an invalid id should be replaced")
	})
}
