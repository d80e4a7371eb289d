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
	"os"
	"path/filepath"
	"testing"

	"github.com/custodial/fieldsync/pkg/assert"
)

func TestEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()
	testPath := filepath.Join(tmpDir, "test", "nested", "dir")

	err := EnsureDir(testPath)
	assert.Equal(t, err, nil, "EnsureDir should succeed")

	info, err := os.Stat(testPath)
	assert.Equal(t, err, nil, "directory should exist")
	assert.Equal(t, info.IsDir(), true, "should be a directory")

	// existing directory
	err = EnsureDir(testPath)
	assert.Equal(t, err, nil, "EnsureDir should succeed on existing directory")
}

func TestMoveFile(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "IMG_0001.jpg")
	if err := os.WriteFile(src, []byte("jpeg"), 0644); err != nil {
		t.Fatal(err)
	}

	dest, err := MoveFile(src, filepath.Join(tmpDir, "processed"))
	assert.Equal(t, err, nil, "MoveFile should succeed")
	assert.Equal(t, dest, filepath.Join(tmpDir, "processed", "IMG_0001.jpg"), "destination mismatch")

	ok, err := FileExists(src)
	assert.Equal(t, err, nil, "checking source")
	assert.Equal(t, ok, false, "source should be gone")

	b, err := os.ReadFile(dest)
	assert.Equal(t, err, nil, "reading destination")
	assert.Equal(t, string(b), "jpeg", "content mismatch")
}

func TestPlural(t *testing.T) {
	assert.Equal(t, Plural(1, "item", "items"), "item", "singular")
	assert.Equal(t, Plural(0, "item", "items"), "items", "zero")
	assert.Equal(t, Plural(3, "item", "items"), "items", "plural")
}
