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

package utils

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileExists checks if the file exists at the given path
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}

	return false, errors.Wrap(err, "getting file info")
}

// EnsureDir creates a directory if it doesn't exist.
// Returns nil if the directory already exists or was successfully created.
func EnsureDir(path string) error {
	ok, err := FileExists(path)
	if err != nil {
		return errors.Wrapf(err, "checking if dir exists at %s", path)
	}
	if ok {
		return nil
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return errors.Wrapf(err, "creating directory at %s", path)
	}

	return nil
}

// MoveFile moves src into destDir, keeping its base name. It falls back to
// copy and remove when a rename is not possible, e.g. across devices.
func MoveFile(src, destDir string) (string, error) {
	if err := EnsureDir(destDir); err != nil {
		return "", errors.Wrap(err, "preparing destination")
	}

	dest := filepath.Join(destDir, filepath.Base(src))
	if err := os.Rename(src, dest); err == nil {
		return dest, nil
	}

	if err := copyFile(src, dest); err != nil {
		return "", errors.Wrapf(err, "copying %s", src)
	}
	if err := os.Remove(src); err != nil {
		return "", errors.Wrapf(err, "removing %s", src)
	}

	return dest, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "opening the input file")
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return errors.Wrap(err, "creating the output file")
	}

	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrap(err, "copying the file content")
	}

	if err = out.Sync(); err != nil {
		out.Close()
		return errors.Wrap(err, "flushing the output file to disk")
	}

	return out.Close()
}
