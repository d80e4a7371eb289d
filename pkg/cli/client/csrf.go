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
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/custodial/fieldsync/pkg/clock"
	"github.com/pkg/errors"
)

// tokenExpiryMargin is subtracted from the lifetime announced by the server
// so that a token is never sent right as it expires
const tokenExpiryMargin = time.Minute

// CSRFTokenPath is the path, under the API endpoint, serving CSRF tokens
const CSRFTokenPath = "/csrf-token"

// CSRFTokenResp is the response of the CSRF token endpoint
type CSRFTokenResp struct {
	CSRFToken string `json:"csrfToken"`
	ExpiresIn int    `json:"expiresIn"`
}

// CSRFProvider caches the CSRF token required by state changing requests
type CSRFProvider struct {
	endpoint   string
	httpClient *http.Client
	clock      clock.Clock

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewCSRFProvider returns a provider fetching tokens from the given API endpoint
func NewCSRFProvider(endpoint string, hc *http.Client, c clock.Clock) *CSRFProvider {
	return &CSRFProvider{
		endpoint:   endpoint,
		httpClient: hc,
		clock:      c,
	}
}

// GetToken returns the cached token, or an empty string if there is no valid one
func (p *CSRFProvider) GetToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == "" || !p.clock.Now().Before(p.expiresAt) {
		return ""
	}

	return p.token
}

// Fetch requests a new token from the server and caches it
func (p *CSRFProvider) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+CSRFTokenPath, nil)
	if err != nil {
		return "", errors.Wrap(err, "constructing http request")
	}

	res, err := do(p.httpClient, req)
	if err != nil {
		return "", errors.Wrap(err, "requesting a csrf token")
	}
	defer res.Body.Close()

	var resp CSRFTokenResp
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return "", errors.Wrap(err, "decoding csrf token response")
	}
	if resp.CSRFToken == "" {
		return "", errors.New("server returned an empty csrf token")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.token = resp.CSRFToken
	p.expiresAt = p.clock.Now().Add(time.Duration(resp.ExpiresIn)*time.Second - tokenExpiryMargin)

	return p.token, nil
}

// RefreshIfNeeded returns the cached token, fetching a new one if it is
// missing or about to expire
func (p *CSRFProvider) RefreshIfNeeded(ctx context.Context) (string, error) {
	if token := p.GetToken(); token != "" {
		return token, nil
	}

	return p.Fetch(ctx)
}

// Invalidate drops the cached token so that the next request fetches a new one
func (p *CSRFProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.token = ""
	p.expiresAt = time.Time{}
}
