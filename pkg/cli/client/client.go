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

// Package client talks to the intake server: it fetches CSRF tokens and
// uploads capture items
package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

var (
	// ErrNetwork is the cause of errors in which the server could not be reached
	ErrNetwork = errors.New("network error")
	// ErrTimeout is the cause of errors in which the server did not respond in time
	ErrTimeout = errors.New("request timed out")
	// ErrContentTypeMismatch is returned when the server responds with an unexpected Content-Type
	ErrContentTypeMismatch = errors.New("content type mismatch")
)

// HTTPError represents an HTTP error response from the server
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf(`response %d "%s"`, e.StatusCode, e.Message)
}

const (
	// clientRateLimitPerSecond is the max requests per second the client will make
	clientRateLimitPerSecond = 10
	// clientRateLimitBurst is the burst capacity for rate limiting
	clientRateLimitBurst = 20

	contentTypeApplicationJSON = "application/json"
)

// rateLimitedTransport wraps an http.RoundTripper with rate limiting
type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	return t.transport.RoundTrip(req)
}

// NewRateLimitedHTTPClient creates an HTTP client with rate limiting. It keeps
// cookies because the CSRF token is only valid with the cookie issued with it.
func NewRateLimitedHTTPClient() *http.Client {
	interval := time.Second / time.Duration(clientRateLimitPerSecond)

	transport := &rateLimitedTransport{
		transport: http.DefaultTransport,
		limiter:   rate.NewLimiter(rate.Every(interval), clientRateLimitBurst),
	}

	// cookiejar.New never fails without options
	jar, _ := cookiejar.New(nil)

	return &http.Client{
		Transport: transport,
		Jar:       jar,
	}
}

// classifyTransportErr turns an error from http.Client.Do into ErrTimeout or
// ErrNetwork, keeping the original message
func classifyTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(ErrTimeout, err.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrap(ErrTimeout, err.Error())
	}

	return errors.Wrap(ErrNetwork, err.Error())
}

// checkRespErr returns an *HTTPError if the response indicates an error
func checkRespErr(res *http.Response) error {
	if res.StatusCode < 400 {
		return nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrapf(err, "server responded with %d but client could not read the response body", res.StatusCode)
	}

	return &HTTPError{
		StatusCode: res.StatusCode,
		Message:    strings.TrimRight(string(body), "\n"),
	}
}

func checkContentType(res *http.Response) error {
	got := res.Header.Get("Content-Type")
	if !strings.HasPrefix(got, contentTypeApplicationJSON) {
		return errors.Wrapf(ErrContentTypeMismatch, "got: '%s' want: '%s'. Did you configure your endpoint correctly?", got, contentTypeApplicationJSON)
	}

	return nil
}

// do sends the request and returns the response if the server accepted it.
// The caller must close the body of a returned response.
func do(hc *http.Client, req *http.Request) (*http.Response, error) {
	log.Debug("HTTP %s %s\n", req.Method, req.URL.Path)

	res, err := hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(classifyTransportErr(err), "making http request")
	}

	log.Debug("HTTP %s\n", res.Status)

	if err := checkRespErr(res); err != nil {
		res.Body.Close()
		return nil, errors.Wrap(err, "server responded with an error")
	}

	if err := checkContentType(res); err != nil {
		res.Body.Close()
		return nil, errors.Wrap(err, "unexpected Content-Type")
	}

	return res, nil
}
