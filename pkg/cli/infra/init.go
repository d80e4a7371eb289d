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

// Package infra provides operations and definitions for the local
// infrastructure of the agent
package infra

import (
	"path/filepath"

	"github.com/custodial/fieldsync/pkg/cli/client"
	"github.com/custodial/fieldsync/pkg/cli/config"
	"github.com/custodial/fieldsync/pkg/cli/consts"
	"github.com/custodial/fieldsync/pkg/cli/context"
	"github.com/custodial/fieldsync/pkg/cli/database"
	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/custodial/fieldsync/pkg/cli/migrate"
	"github.com/custodial/fieldsync/pkg/cli/utils"
	"github.com/custodial/fieldsync/pkg/clock"
	"github.com/custodial/fieldsync/pkg/dirs"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// RunEFunc is a function type of fieldsync commands
type RunEFunc func(*cobra.Command, []string) error

// GetDBPath returns the path of the queue database
func GetDBPath(paths context.Paths, customPath string) string {
	if customPath != "" {
		return customPath
	}

	return filepath.Join(paths.DataDir(), consts.DBFileName)
}

func getPaths() context.Paths {
	return context.Paths{
		Home:   dirs.Home,
		Config: dirs.ConfigHome,
		Data:   dirs.DataHome,
		State:  dirs.StateHome,
	}
}

// Init initializes the environment of the agent and returns a new context.
// apiEndpoint is written to the config file when one is created.
func Init(versionTag, apiEndpoint, dbPath string) (*context.FieldCtx, error) {
	paths := getPaths()

	if err := context.InitDirs(paths); err != nil {
		return nil, errors.Wrap(err, "creating the fieldsync dirs")
	}

	configPath := config.GetPath(paths.Config)
	if err := initConfigFile(configPath, apiEndpoint); err != nil {
		return nil, errors.Wrap(err, "generating the config file")
	}

	cf, err := config.Read(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}

	db, err := database.Open(GetDBPath(paths, dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to db")
	}

	n, err := migrate.Run(db.Conn)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "running migration")
	}
	if n > 0 {
		log.Debug("applied %d migrations\n", n)
	}

	sessionID, err := utils.GenerateUUID()
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "generating a session id")
	}

	ctx := context.FieldCtx{
		Paths:      paths,
		Version:    versionTag,
		DB:         db,
		Clock:      clock.New(),
		HTTPClient: client.NewRateLimitedHTTPClient(),
		SessionID:  sessionID,
		Config:     cf,
	}

	log.Debug("context: %+v\n", ctx)

	return &ctx, nil
}

// initConfigFile populates a new config file if it does not exist yet
func initConfigFile(path, apiEndpoint string) error {
	ok, err := utils.FileExists(path)
	if err != nil {
		return errors.Wrap(err, "checking if config exists")
	}
	if ok {
		return nil
	}

	if err := config.Write(path, config.Default(apiEndpoint)); err != nil {
		return errors.Wrap(err, "writing config")
	}

	return nil
}
