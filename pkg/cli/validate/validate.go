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

// Package validate checks user input of the capture commands
package validate

import (
	"strings"

	"github.com/pkg/errors"
)

// reservedMetadataKeys are set by the uploader and cannot be overridden
var reservedMetadataKeys = []string{"itemId", "capturedAt"}

var (
	// ErrInspectionIDEmpty is an error for an empty inspection id
	ErrInspectionIDEmpty = errors.New("The inspection id is empty")
	// ErrInspectionIDHasSpace is an error for an inspection id that has any space
	ErrInspectionIDHasSpace = errors.New("The inspection id cannot contain spaces")
	// ErrInspectionIDHasSeparator is an error for an inspection id containing a path separator
	ErrInspectionIDHasSeparator = errors.New("The inspection id cannot contain slashes")
	// ErrMetadataMalformed is an error for a metadata pair not in the key=value form
	ErrMetadataMalformed = errors.New("Metadata must be in the key=value form")
	// ErrMetadataKeyReserved is an error for a metadata key set by the uploader
	ErrMetadataKeyReserved = errors.New("The metadata key is reserved")
)

// InspectionID validates an inspection id. Inspection ids name directories
// in the inbox, so they are restricted to a single path element.
func InspectionID(id string) error {
	if id == "" {
		return ErrInspectionIDEmpty
	}

	if strings.ContainsAny(id, " \t\r\n") {
		return ErrInspectionIDHasSpace
	}

	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return ErrInspectionIDHasSeparator
	}

	return nil
}

func isReservedKey(key string) bool {
	for _, k := range reservedMetadataKeys {
		if key == k {
			return true
		}
	}

	return false
}

// MetadataPair parses a key=value pair
func MetadataPair(pair string) (string, string, error) {
	idx := strings.Index(pair, "=")
	if idx <= 0 {
		return "", "", ErrMetadataMalformed
	}

	key := strings.TrimSpace(pair[:idx])
	if key == "" {
		return "", "", ErrMetadataMalformed
	}
	if isReservedKey(key) {
		return "", "", errors.Wrap(ErrMetadataKeyReserved, key)
	}

	return key, pair[idx+1:], nil
}
