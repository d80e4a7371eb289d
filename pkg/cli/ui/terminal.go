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

package ui

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/pkg/errors"
)

// IsPiped reports whether the standard input is a pipe or a file rather than
// a terminal
func IsPiped() bool {
	fInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}

	return fInfo.Mode()&os.ModeCharDevice == 0
}

// ReadStdInput reads the whole standard input
func ReadStdInput() (string, error) {
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", errors.Wrap(err, "reading pipe")
	}

	return string(b), nil
}

// ReadYesNo reads an answer from r. An empty answer counts as a yes when
// optimistic is set.
func ReadYesNo(r io.Reader, optimistic bool) (bool, error) {
	input, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return false, errors.Wrap(err, "reading the answer")
	}

	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return optimistic, nil
	}

	return input == "y" || input == "yes", nil
}

// Confirm asks a yes or no question on the terminal
func Confirm(question string, optimistic bool) (bool, error) {
	choices := "(y/N)"
	if optimistic {
		choices = "(Y/n)"
	}
	log.Askf("%s %s", question, choices)

	confirmed, err := ReadYesNo(os.Stdin, optimistic)
	if err != nil {
		return false, errors.Wrap(err, "getting user input")
	}

	return confirmed, nil
}
