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

// Package checksum computes the content digest that the agent attaches to
// every upload and the intake server verifies.
package checksum

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// HeaderName is the HTTP header carrying the digest of an uploaded payload
const HeaderName = "X-Content-Checksum"

// Sum returns the hex encoded BLAKE2b-256 digest of the given payload
func Sum(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether the payload matches the given digest
func Verify(payload []byte, digest string) bool {
	return Sum(payload) == digest
}
