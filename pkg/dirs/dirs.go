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

// Package dirs resolves the per-user base directories in which fieldsync
// keeps its configuration, queue database and daemon logs.
package dirs

import (
	"os"
	"os/user"
	"path/filepath"

	"github.com/pkg/errors"
)

// AppDirName is the name of the directory created under each base directory
const AppDirName = "fieldsync"

var (
	// Home is the home directory of the user
	Home string
	// ConfigHome is where user-specific configuration is written
	ConfigHome string
	// DataHome is where the queue database lives
	DataHome string
	// StateHome is where logs and other state that should survive a restart,
	// but is not portable, are written
	StateHome string
)

func init() {
	Reload()
}

// Reload re-reads the directory definitions from the environment
func Reload() {
	initDirs()
}

// Config returns the application config directory
func Config() string {
	return filepath.Join(ConfigHome, AppDirName)
}

// Data returns the application data directory
func Data() string {
	return filepath.Join(DataHome, AppDirName)
}

// State returns the application state directory
func State() string {
	return filepath.Join(StateHome, AppDirName)
}

func getHomeDir() string {
	if dir := os.Getenv("HOME"); dir != "" {
		return dir
	}

	usr, err := user.Current()
	if err != nil {
		panic(errors.Wrap(err, "getting home dir"))
	}

	return usr.HomeDir
}

func readPath(envName, defaultPath string) string {
	if dir := os.Getenv(envName); dir != "" {
		return dir
	}

	return defaultPath
}
