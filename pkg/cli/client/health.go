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

// HealthPath is the path of the liveness endpoint, relative to the API endpoint
const HealthPath = "/health"

// CheckHealth sends a HEAD request to the liveness endpoint of the server.
// Any response below 400 means the server is reachable.
func CheckHealth(ctx context.Context, hc *http.Client, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint+HealthPath, nil)
	if err != nil {
		return errors.Wrap(err, "constructing http request")
	}

	res, err := hc.Do(req)
	if err != nil {
		return errors.Wrap(classifyTransportErr(err), "checking health")
	}
	defer res.Body.Close()

	if err := checkRespErr(res); err != nil {
		return errors.Wrap(err, "checking health")
	}

	return nil
}
