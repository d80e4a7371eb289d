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

// Package ui provides the user interface for the program
package ui

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/custodial/fieldsync/pkg/cli/context"
	"github.com/custodial/fieldsync/pkg/cli/utils"
	"github.com/pkg/errors"
)

const (
	tmpContentFileBase = "FIELDSYNC_FORM"
	tmpContentFileExt  = "json"
)

// GetTmpContentPath returns a path, not used by another session, for the
// temporary file holding a form being written
func GetTmpContentPath(ctx context.FieldCtx) (string, error) {
	for i := 0; ; i++ {
		filename := fmt.Sprintf("%s_%d.%s", tmpContentFileBase, i, tmpContentFileExt)
		candidate := filepath.Join(ctx.Paths.StateDir(), filename)

		ok, err := utils.FileExists(candidate)
		if err != nil {
			return "", errors.Wrapf(err, "checking if file exists at %s", candidate)
		}
		if !ok {
			return candidate, nil
		}
	}
}

func newEditorCmd(ctx context.FieldCtx, fpath string) (*exec.Cmd, error) {
	args := strings.Fields(ctx.Config.Editor)
	if len(args) == 0 {
		return nil, errors.New("no editor is configured")
	}
	args = append(args, fpath)

	return exec.Command(args[0], args[1:]...), nil
}

// GetEditorInput launches the configured editor on the file at fpath, seeded
// with the given template, and returns the content once the editor exits.
// The file is removed afterwards.
func GetEditorInput(ctx context.FieldCtx, fpath, template string) (string, error) {
	if err := os.WriteFile(fpath, []byte(template), 0600); err != nil {
		return "", errors.Wrap(err, "creating a temporary content file")
	}
	defer os.Remove(fpath)

	cmd, err := newEditorCmd(ctx, fpath)
	if err != nil {
		return "", errors.Wrap(err, "creating an editor command")
	}

	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", errors.Wrap(err, "running the editor")
	}

	b, err := os.ReadFile(fpath)
	if err != nil {
		return "", errors.Wrap(err, "reading the temporary content file")
	}

	return string(b), nil
}
