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

// Package config reads and writes the agent configuration file
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/custodial/fieldsync/pkg/cli/consts"
	"github.com/custodial/fieldsync/pkg/dirs"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	// DefaultAPIEndpoint is the default API endpoint used when none is configured
	DefaultAPIEndpoint = "http://localhost:3001/api"
	// DefaultMaxRetries is the number of failed uploads after which an item
	// is left out of regular syncs
	DefaultMaxRetries = 3
	// DefaultUploadTimeout bounds a single upload
	DefaultUploadTimeout = 30 * time.Second
	// DefaultSyncedRetention is how long synced items are kept before cleanup
	DefaultSyncedRetention = 7 * 24 * time.Hour
	// DefaultQuotaBytes caps the total size of stored payloads
	DefaultQuotaBytes = 100 * 1024 * 1024
	// DefaultProbeInterval is the time between two connectivity probes
	DefaultProbeInterval = 15 * time.Second
	// DefaultSyncInterval is the time between two background syncs
	DefaultSyncInterval = 30 * time.Second
	// DefaultRecoveryPollInterval is the time between two checks for an interrupted sync
	DefaultRecoveryPollInterval = 10 * time.Second
	// DefaultCleanupSchedule runs the cleanup of synced items
	DefaultCleanupSchedule = "@hourly"
	// DefaultEditor is used to write forms when $EDITOR is not set
	DefaultEditor = "vi"
)

// Config holds the agent configuration
type Config struct {
	APIEndpoint          string        `yaml:"apiEndpoint"`
	Editor               string        `yaml:"editor"`
	MaxRetries           int           `yaml:"maxRetries"`
	UploadTimeout        time.Duration `yaml:"uploadTimeout"`
	DeleteOnSync         bool          `yaml:"deleteOnSync"`
	SyncedRetention      time.Duration `yaml:"syncedRetention"`
	QuotaBytes           int64         `yaml:"quotaBytes"`
	InboxDir             string        `yaml:"inboxDir,omitempty"`
	ProbeInterval        time.Duration `yaml:"probeInterval"`
	SyncInterval         time.Duration `yaml:"syncInterval"`
	RecoveryPollInterval time.Duration `yaml:"recoveryPollInterval"`
	CleanupSchedule      string        `yaml:"cleanupSchedule"`
	LogFile              string        `yaml:"logFile,omitempty"`
}

// Default returns a configuration using the given endpoint and the default
// value of every other field
func Default(apiEndpoint string) Config {
	cf := Config{APIEndpoint: apiEndpoint}
	cf.FillDefaults()

	return cf
}

// FillDefaults sets every field missing from the file to its default value
func (cf *Config) FillDefaults() {
	if cf.APIEndpoint == "" {
		cf.APIEndpoint = DefaultAPIEndpoint
	}
	if cf.Editor == "" {
		cf.Editor = getEditorCommand()
	}
	if cf.MaxRetries <= 0 {
		cf.MaxRetries = DefaultMaxRetries
	}
	if cf.UploadTimeout <= 0 {
		cf.UploadTimeout = DefaultUploadTimeout
	}
	if cf.SyncedRetention <= 0 {
		cf.SyncedRetention = DefaultSyncedRetention
	}
	if cf.QuotaBytes <= 0 {
		cf.QuotaBytes = DefaultQuotaBytes
	}
	if cf.ProbeInterval <= 0 {
		cf.ProbeInterval = DefaultProbeInterval
	}
	if cf.SyncInterval <= 0 {
		cf.SyncInterval = DefaultSyncInterval
	}
	if cf.RecoveryPollInterval <= 0 {
		cf.RecoveryPollInterval = DefaultRecoveryPollInterval
	}
	if cf.CleanupSchedule == "" {
		cf.CleanupSchedule = DefaultCleanupSchedule
	}
}

// getEditorCommand returns the editor command of the user with the flags, if
// necessary, that make the command wait until the editor is closed
func getEditorCommand() string {
	switch editor := os.Getenv("EDITOR"); editor {
	case "":
		return DefaultEditor
	case "subl":
		return "subl -n -w"
	case "code":
		return "code -n -w"
	case "mate":
		return "mate -w"
	default:
		return editor
	}
}

// GetPath returns the path to the config file under the given config home
func GetPath(configHome string) string {
	return filepath.Join(configHome, dirs.AppDirName, consts.ConfigFilename)
}

// Read reads the config file and fills in the defaults
func Read(path string) (Config, error) {
	var ret Config

	b, err := os.ReadFile(path)
	if err != nil {
		return ret, errors.Wrap(err, "reading config file")
	}

	if err := yaml.Unmarshal(b, &ret); err != nil {
		return ret, errors.Wrap(err, "unmarshalling config")
	}

	ret.FillDefaults()

	return ret, nil
}

// Write writes the config to the config file
func Write(path string, cf Config) error {
	b, err := yaml.Marshal(cf)
	if err != nil {
		return errors.Wrap(err, "marshalling config into YAML")
	}

	if err := os.WriteFile(path, b, 0644); err != nil {
		return errors.Wrap(err, "writing the config file")
	}

	return nil
}
