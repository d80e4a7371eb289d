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

// Package config resolves the configuration of the intake server from flags,
// environment variables and defaults
package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"

	"github.com/custodial/fieldsync/pkg/dirs"
	"github.com/pkg/errors"
)

const (
	// AppEnvProduction represents an app environment for production.
	AppEnvProduction string = "PRODUCTION"
	// AppEnvTest represents an app environment for tests
	AppEnvTest string = "TEST"
	// DefaultDBDir is the default directory name for the server data
	DefaultDBDir = "fieldsync"
	// DefaultDBFilename is the default database filename
	DefaultDBFilename = "intake.db"
	// DefaultMaxUploadBytes bounds the size of an upload request
	DefaultMaxUploadBytes = 32 << 20

	csrfKeyLength = 32
)

var (
	// DefaultDBPath is the default path to the database file
	DefaultDBPath = filepath.Join(dirs.DataHome, DefaultDBDir, DefaultDBFilename)
)

var (
	// ErrDBMissingPath is an error for an incomplete configuration missing the database path
	ErrDBMissingPath = errors.New("DB Path is empty")
	// ErrPortInvalid is an error for an incomplete configuration with invalid port
	ErrPortInvalid = errors.New("Invalid Port")
	// ErrCSRFKeyInvalid is an error for a CSRF key that is not 32 bytes encoded in hex
	ErrCSRFKeyInvalid = errors.New("Invalid CSRF key")
	// ErrCSRFKeyMissing is an error for a production configuration without a CSRF key
	ErrCSRFKeyMissing = errors.New("CSRF key is required in production")
	// ErrMaxUploadBytesInvalid is an error for a non positive upload limit
	ErrMaxUploadBytesInvalid = errors.New("Invalid max upload size")
)

// getOrEnv returns value if non-empty, otherwise env var, otherwise default
func getOrEnv(value, envKey, defaultVal string) string {
	if value != "" {
		return value
	}
	if env := os.Getenv(envKey); env != "" {
		return env
	}
	return defaultVal
}

// Config is an application configuration
type Config struct {
	AppEnv         string
	Port           string
	DBPath         string
	CSRFKey        []byte
	MaxUploadBytes int64
	LogLevel       string
}

// Params are the configuration parameters for creating a new Config
type Params struct {
	AppEnv         string
	Port           string
	DBPath         string
	CSRFKey        string
	MaxUploadBytes string
	LogLevel       string
}

func parseCSRFKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil || len(key) != csrfKeyLength {
		return nil, ErrCSRFKeyInvalid
	}

	return key, nil
}

func randomCSRFKey() ([]byte, error) {
	key := make([]byte, csrfKeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "generating csrf key")
	}

	return key, nil
}

// New constructs and returns a new validated config.
// Empty string params will fall back to environment variables and defaults.
// Outside production, a missing CSRF key is replaced by a random one, which
// invalidates issued tokens on every restart.
func New(p Params) (Config, error) {
	c := Config{
		AppEnv:   getOrEnv(p.AppEnv, "APP_ENV", AppEnvProduction),
		Port:     getOrEnv(p.Port, "PORT", "3001"),
		DBPath:   getOrEnv(p.DBPath, "DBPath", DefaultDBPath),
		LogLevel: getOrEnv(p.LogLevel, "LOG_LEVEL", "info"),
	}

	maxUpload := getOrEnv(p.MaxUploadBytes, "MAX_UPLOAD_BYTES", strconv.Itoa(DefaultMaxUploadBytes))
	n, err := strconv.ParseInt(maxUpload, 10, 64)
	if err != nil {
		return Config{}, errors.Wrapf(ErrMaxUploadBytesInvalid, "'%s'", maxUpload)
	}
	c.MaxUploadBytes = n

	if key := getOrEnv(p.CSRFKey, "CSRF_KEY", ""); key != "" {
		c.CSRFKey, err = parseCSRFKey(key)
		if err != nil {
			return Config{}, err
		}
	} else if !c.IsProd() {
		c.CSRFKey, err = randomCSRFKey()
		if err != nil {
			return Config{}, err
		}
	}

	if err := validate(c); err != nil {
		return Config{}, err
	}

	return c, nil
}

// IsProd checks if the app environment is configured to be production.
func (c Config) IsProd() bool {
	return c.AppEnv == AppEnvProduction
}

func validate(c Config) error {
	if c.Port == "" {
		return ErrPortInvalid
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.Wrapf(ErrPortInvalid, "'%s'", c.Port)
	}
	if c.DBPath == "" {
		return ErrDBMissingPath
	}
	if len(c.CSRFKey) == 0 {
		return ErrCSRFKeyMissing
	}
	if len(c.CSRFKey) != csrfKeyLength {
		return ErrCSRFKeyInvalid
	}
	if c.MaxUploadBytes <= 0 {
		return ErrMaxUploadBytesInvalid
	}

	return nil
}
