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

package context

import (
	"net/http"
	"testing"

	"github.com/custodial/fieldsync/pkg/cli/config"
	"github.com/custodial/fieldsync/pkg/cli/database"
	"github.com/custodial/fieldsync/pkg/clock"
	"github.com/pkg/errors"
)

// InitTestCtx initializes a test context with an in-memory database, a mock
// clock and a temporary directory for all paths
func InitTestCtx(t *testing.T) FieldCtx {
	return InitTestCtxWithDB(t, database.InitTestMemoryDB(t))
}

// InitTestCtxWithDB initializes a test context with the provided database
func InitTestCtxWithDB(t *testing.T, db *database.DB) FieldCtx {
	tmpDir := t.TempDir()
	paths := Paths{
		Home:   tmpDir,
		Config: tmpDir,
		Data:   tmpDir,
		State:  tmpDir,
	}

	if err := InitDirs(paths); err != nil {
		t.Fatal(errors.Wrap(err, "creating test directories"))
	}

	return FieldCtx{
		Paths:      paths,
		Version:    "test",
		DB:         db,
		Clock:      clock.NewMock(),
		HTTPClient: http.DefaultClient,
		SessionID:  "test-session",
		Config:     config.Default(config.DefaultAPIEndpoint),
	}
}
