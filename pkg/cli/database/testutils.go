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

package database

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/custodial/fieldsync/pkg/cli/migrate"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MustScan scans the given row and fails a test in case of any errors
func MustScan(t *testing.T, message string, row *sql.Row, args ...interface{}) {
	t.Helper()

	err := row.Scan(args...)
	if err != nil {
		t.Fatal(errors.Wrap(errors.Wrap(err, "scanning a row"), message))
	}
}

// MustExec executes the given SQL query and fails a test if an error occurs
func MustExec(t *testing.T, message string, db *DB, query string, args ...interface{}) sql.Result {
	t.Helper()

	result, err := db.Exec(query, args...)
	if err != nil {
		t.Fatal(errors.Wrap(errors.Wrap(err, "executing sql"), message))
	}

	return result
}

// InitTestMemoryDB initializes a migrated in-memory test database
func InitTestMemoryDB(t *testing.T) *DB {
	t.Helper()

	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())

	return initTestDB(t, dbName)
}

// InitTestFileDB initializes a migrated file-based test database and returns
// it along with its path, so that tests can close and reopen it
func InitTestFileDB(t *testing.T) (*DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), fmt.Sprintf("fieldsync-%s.db", uuid.NewString()))

	return initTestDB(t, dbPath), dbPath
}

// ReopenTestFileDB opens the database at the given path again, as a restarted
// process would
func ReopenTestFileDB(t *testing.T, dbPath string) *DB {
	t.Helper()

	return initTestDB(t, dbPath)
}

func initTestDB(t *testing.T, path string) *DB {
	db, err := Open(path)
	if err != nil {
		t.Fatal(errors.Wrap(err, "opening test database"))
	}

	if _, err := migrate.Run(db.Conn); err != nil {
		t.Fatal(errors.Wrap(err, "migrating test database"))
	}

	t.Cleanup(func() { db.Close() })

	return db
}
