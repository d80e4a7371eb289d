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

// Package database persists the uploads received by the intake server
package database

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/custodial/fieldsync/pkg/server/log"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitSchema migrates database schema to reflect the latest model definition
func InitSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Photo{},
		&Note{},
	); err != nil {
		return errors.Wrap(err, "migrating the models")
	}

	return nil
}

// IsPostgresDSN reports whether the database path is a PostgreSQL
// connection URL rather than a SQLite file path
func IsPostgresDSN(dbPath string) bool {
	return strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://")
}

// getDBLogLevel maps the server log level to the gorm one. SQL statements
// are only logged when debugging.
func getDBLogLevel(level string) logger.LogLevel {
	switch level {
	case log.LevelDebug:
		return logger.Info
	case log.LevelWarn:
		return logger.Warn
	case log.LevelError:
		return logger.Error
	default:
		return logger.Silent
	}
}

func dialector(dbPath string) (gorm.Dialector, error) {
	if IsPostgresDSN(dbPath) {
		return postgres.Open(dbPath), nil
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating database directory at %s", dir)
	}

	return sqlite.Open(dbPath), nil
}

// Open initializes the database connection. A path starting with
// postgres:// selects PostgreSQL, anything else is a SQLite file.
func Open(dbPath string) (*gorm.DB, error) {
	d, err := dialector(dbPath)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(d, &gorm.Config{
		Logger: logger.Default.LogMode(getDBLogLevel(log.GetLevel())),
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening database connection")
	}

	if !IsPostgresDSN(dbPath) {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "getting the connection pool")
		}
		sqlDB.SetMaxOpenConns(1)

		if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
			sqlDB.Close()
			return nil, errors.Wrap(err, "enabling write-ahead logging")
		}
	}

	return db, nil
}

// Setup opens the database and brings its schema up to date
func Setup(dbPath string) (*gorm.DB, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	if err := InitSchema(db); err != nil {
		Close(db)
		return nil, err
	}
	if err := Migrate(db); err != nil {
		Close(db)
		return nil, errors.Wrap(err, "running migrations")
	}

	return db, nil
}

// Close closes the underlying connection pool
func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.Close()
	}
}
