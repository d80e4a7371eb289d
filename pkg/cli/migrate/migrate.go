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

// Package migrate keeps the schema of the agent's queue database up to date
package migrate

import (
	"database/sql"

	"github.com/pkg/errors"
	sqlmigrate "github.com/rubenv/sql-migrate"
)

// TableName is the table in which applied migrations are recorded
const TableName = "gorp_migrations"

// Sequence is the ordered list of schema migrations. Never edit a migration
// that has shipped; append a new one instead.
var Sequence = &sqlmigrate.MemoryMigrationSource{
	Migrations: []*sqlmigrate.Migration{
		{
			Id: "1-create-items",
			Up: []string{
				`CREATE TABLE items
				(
					id text PRIMARY KEY,
					kind text NOT NULL,
					payload blob NOT NULL,
					metadata text NOT NULL DEFAULT '{}',
					status text NOT NULL,
					retry_count integer NOT NULL DEFAULT 0,
					checksum text NOT NULL,
					last_error text NOT NULL DEFAULT '',
					created_at integer NOT NULL,
					updated_at integer NOT NULL
				)`,
				"CREATE INDEX idx_items_status ON items(status)",
				"CREATE INDEX idx_items_created_at ON items(created_at)",
				`CREATE TABLE system
				(
					key text PRIMARY KEY,
					value text NOT NULL
				)`,
			},
			Down: []string{
				"DROP TABLE system",
				"DROP TABLE items",
			},
		},
		{
			Id: "2-create-sync-state",
			Up: []string{
				`CREATE TABLE sync_state
				(
					id text PRIMARY KEY,
					in_progress integer NOT NULL DEFAULT 0,
					current_item_id text NOT NULL DEFAULT '',
					item_kind text NOT NULL DEFAULT '',
					completed_items text NOT NULL DEFAULT '[]',
					failed_items text NOT NULL DEFAULT '[]',
					started_at integer NOT NULL DEFAULT 0,
					last_updated integer NOT NULL DEFAULT 0
				)`,
			},
			Down: []string{
				"DROP TABLE sync_state",
			},
		},
		{
			Id: "3-add-sync-state-session",
			Up: []string{
				"ALTER TABLE sync_state ADD COLUMN session_id text NOT NULL DEFAULT ''",
			},
			Down: []string{
				"ALTER TABLE sync_state DROP COLUMN session_id",
			},
		},
		{
			Id: "4-create-sync-lock",
			Up: []string{
				`CREATE TABLE sync_lock
				(
					id text PRIMARY KEY,
					owner text NOT NULL DEFAULT '',
					heartbeat integer NOT NULL DEFAULT 0
				)`,
			},
			Down: []string{
				"DROP TABLE sync_lock",
			},
		},
	},
}

func init() {
	sqlmigrate.SetTable(TableName)
}

// Run applies all pending migrations and returns how many were applied
func Run(conn *sql.DB) (int, error) {
	n, err := sqlmigrate.Exec(conn, "sqlite3", Sequence, sqlmigrate.Up)
	if err != nil {
		return n, errors.Wrap(err, "applying migrations")
	}

	return n, nil
}

// Rollback reverts the given number of most recently applied migrations
func Rollback(conn *sql.DB, steps int) (int, error) {
	n, err := sqlmigrate.ExecMax(conn, "sqlite3", Sequence, sqlmigrate.Down, steps)
	if err != nil {
		return n, errors.Wrap(err, "reverting migrations")
	}

	return n, nil
}

// Pending returns the ids of migrations that have not been applied yet
func Pending(conn *sql.DB) ([]string, error) {
	records, err := sqlmigrate.GetMigrationRecords(conn, "sqlite3")
	if err != nil {
		return nil, errors.Wrap(err, "reading migration records")
	}

	applied := map[string]bool{}
	for _, r := range records {
		applied[r.Id] = true
	}

	migrations, err := Sequence.FindMigrations()
	if err != nil {
		return nil, errors.Wrap(err, "listing migrations")
	}

	ret := []string{}
	for _, m := range migrations {
		if !applied[m.Id] {
			ret = append(ret, m.Id)
		}
	}

	return ret, nil
}
