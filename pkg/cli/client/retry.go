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
	"context"
	"net/http"

	"github.com/pkg/errors"
)

// IsRetryable reports whether a failed upload may succeed if attempted
// again: the server could not be reached, timed out, failed internally or
// asked the client to slow down
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch errors.Cause(err) {
	case ErrNetwork, ErrTimeout:
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode >= 500:
			return true
		case httpErr.StatusCode == http.StatusRequestTimeout:
			return true
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return true
		}
	}

	return false
}

// IsServerRejected reports whether the server refused the item in a way that
// retrying will not fix
func IsServerRejected(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}

	return httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 && !IsRetryable(err)
}

// IsForbidden reports whether the server refused the request with a 403,
// which is how a stale CSRF token is reported
func IsForbidden(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}

	return httpErr.StatusCode == http.StatusForbidden
}
