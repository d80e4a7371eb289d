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

// Package context defines the agent context
package context

import (
	"net/http"

	"github.com/custodial/fieldsync/pkg/cli/config"
	"github.com/custodial/fieldsync/pkg/cli/database"
	"github.com/custodial/fieldsync/pkg/clock"
)

// Paths contain the base directory definitions
type Paths struct {
	Home   string
	Config string
	Data   string
	State  string
}

// FieldCtx is a context holding the information of the current runtime
type FieldCtx struct {
	Paths      Paths
	Version    string
	DB         *database.DB
	Clock      clock.Clock
	HTTPClient *http.Client
	// SessionID identifies this process in the persisted sync state
	SessionID string
	Config    config.Config
}
