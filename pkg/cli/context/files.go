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
	"path/filepath"

	"github.com/custodial/fieldsync/pkg/cli/utils"
	"github.com/custodial/fieldsync/pkg/dirs"
	"github.com/pkg/errors"
)

// ConfigDir returns the directory holding the config file
func (p Paths) ConfigDir() string {
	return filepath.Join(p.Config, dirs.AppDirName)
}

// DataDir returns the directory holding the queue database
func (p Paths) DataDir() string {
	return filepath.Join(p.Data, dirs.AppDirName)
}

// StateDir returns the directory holding the daemon log and temporary files
func (p Paths) StateDir() string {
	return filepath.Join(p.State, dirs.AppDirName)
}

// InitDirs creates the application directories if they don't already exist
func InitDirs(paths Paths) error {
	if paths.Config != "" {
		if err := utils.EnsureDir(paths.ConfigDir()); err != nil {
			return errors.Wrap(err, "initializing config dir")
		}
	}
	if paths.Data != "" {
		if err := utils.EnsureDir(paths.DataDir()); err != nil {
			return errors.Wrap(err, "initializing data dir")
		}
	}
	if paths.State != "" {
		if err := utils.EnsureDir(paths.StateDir()); err != nil {
			return errors.Wrap(err, "initializing state dir")
		}
	}

	return nil
}
