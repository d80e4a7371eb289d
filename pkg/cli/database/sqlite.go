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

// Package database wraps the agent's SQLite connection
package database

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	// registers the sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// connParams makes every commit durable before it returns and lets
// concurrent writers wait for the lock instead of failing
const connParams = "_synchronous=FULL&_busy_timeout=5000&_foreign_keys=on"

// DB contains a database connection and, when inside a transaction, the
// transaction. Queries go through the transaction when one is open.
type DB struct {
	Conn *sql.DB
	Tx   *sql.Tx
}

func isMemory(path string) bool {
	return strings.Contains(path, "mode=memory") || path == ":memory:"
}

func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + connParams
	}

	return path + "?" + connParams
}

// Open opens a connection to the SQLite database at the given path,
// creating the parent directory if necessary
func Open(path string) (*DB, error) {
	if !isMemory(path) && !strings.HasPrefix(path, "file:") {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "creating database directory at %s", dir)
		}
	}

	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, errors.Wrap(err, "opening db connection")
	}

	// A single connection serializes writers from the sync engine, the
	// inbox watcher and the commands. Callers holding a transaction must
	// not use Conn until the transaction ends.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "pinging the database")
	}

	return &DB{Conn: conn}, nil
}

// Begin begins a transaction
func (d *DB) Begin() (*DB, error) {
	tx, err := d.Conn.Begin()
	if err != nil {
		return nil, err
	}

	return &DB{
		Conn: d.Conn,
		Tx:   tx,
	}, nil
}

// Commit commits a transaction
func (d *DB) Commit() error {
	if d.Tx == nil {
		return errors.New("no transaction in progress")
	}

	return d.Tx.Commit()
}

// Rollback rolls back a transaction. It is a no-op if the transaction has
// already been committed.
func (d *DB) Rollback() error {
	if d.Tx == nil {
		return nil
	}

	err := d.Tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}

	return err
}

// Exec executes a sql
func (d *DB) Exec(query string, values ...interface{}) (sql.Result, error) {
	if d.Tx != nil {
		return d.Tx.Exec(query, values...)
	}

	return d.Conn.Exec(query, values...)
}

// Query queries rows
func (d *DB) Query(query string, values ...interface{}) (*sql.Rows, error) {
	if d.Tx != nil {
		return d.Tx.Query(query, values...)
	}

	return d.Conn.Query(query, values...)
}

// QueryRow queries a row
func (d *DB) QueryRow(query string, values ...interface{}) *sql.Row {
	if d.Tx != nil {
		return d.Tx.QueryRow(query, values...)
	}

	return d.Conn.QueryRow(query, values...)
}

// Close closes a db connection
func (d *DB) Close() error {
	return d.Conn.Close()
}
