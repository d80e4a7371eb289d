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
	"github.com/custodial/fieldsync/pkg/server/log"
	"github.com/pkg/errors"
	"github.com/robfig/cron"
	"gorm.io/gorm"
)

const (
	// walCheckpointSchedule bounds the growth of the SQLite write-ahead log
	walCheckpointSchedule = "@every 5m"
	// vacuumSchedule reclaims the space of deleted rows
	vacuumSchedule = "@daily"
)

func runMaintenance(db *gorm.DB, name, statement string) func() {
	return func() {
		if err := db.Exec(statement).Error; err != nil {
			log.WithFields(log.Fields{
				"task":  name,
				"error": err,
			}).Error("Database maintenance failed.")
			return
		}

		log.WithFields(log.Fields{
			"task": name,
		}).Debug("Database maintenance done.")
	}
}

// StartMaintenance schedules the periodic WAL checkpoint and VACUUM of a
// SQLite database. It does nothing for PostgreSQL, which maintains itself.
// The returned function stops the schedule.
func StartMaintenance(db *gorm.DB, dbPath string) (func(), error) {
	if IsPostgresDSN(dbPath) {
		return func() {}, nil
	}

	c := cron.New()
	if err := c.AddFunc(walCheckpointSchedule, runMaintenance(db, "wal checkpoint", "PRAGMA wal_checkpoint(TRUNCATE)")); err != nil {
		return nil, errors.Wrap(err, "scheduling wal checkpoint")
	}
	if err := c.AddFunc(vacuumSchedule, runMaintenance(db, "vacuum", "VACUUM")); err != nil {
		return nil, errors.Wrap(err, "scheduling vacuum")
	}

	c.Start()

	return c.Stop, nil
}
