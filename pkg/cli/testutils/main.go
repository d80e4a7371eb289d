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

// Package testutils provides utilities used in tests of the fieldsync binary
package testutils

import (
	"bufio"
	"bytes"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
)

// Prompts for user input
const (
	PromptRemoveItem = "remove this item?"
)

// Timeout for waiting for prompts in tests
const promptTimeout = 10 * time.Second

// RunCmdOptions is an option for RunCmd
type RunCmdOptions struct {
	Env   []string
	Stdin string
}

func newCmd(opts RunCmdOptions, binaryName string, arg ...string) (*exec.Cmd, *bytes.Buffer, *bytes.Buffer, error) {
	var stderr, stdout bytes.Buffer

	binaryPath, err := filepath.Abs(binaryName)
	if err != nil {
		return &exec.Cmd{}, &stderr, &stdout, errors.Wrap(err, "getting the absolute path to the test binary")
	}

	cmd := exec.Command(binaryPath, arg...)
	cmd.Stderr = &stderr
	cmd.Stdout = &stdout
	cmd.Env = opts.Env
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}

	return cmd, &stderr, &stdout, nil
}

// RunCmd runs a fieldsync command, fails the test if it fails, and returns
// its stdout
func RunCmd(t *testing.T, opts RunCmdOptions, binaryName string, arg ...string) string {
	t.Logf("running: %s %s", binaryName, strings.Join(arg, " "))

	cmd, stderr, stdout, err := newCmd(opts, binaryName, arg...)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting command").Error())
	}

	if err := cmd.Run(); err != nil {
		t.Logf("\n%s", stdout)
		t.Fatal(errors.Wrapf(err, "running command %s", stderr.String()))
	}

	// Print stdout if and only if test fails later
	t.Logf("\n%s", stdout)

	return stdout.String()
}

// RunFailingCmd runs a fieldsync command that is expected to fail and returns
// its stdout
func RunFailingCmd(t *testing.T, opts RunCmdOptions, binaryName string, arg ...string) string {
	t.Logf("running: %s %s", binaryName, strings.Join(arg, " "))

	cmd, _, stdout, err := newCmd(opts, binaryName, arg...)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting command").Error())
	}

	if err := cmd.Run(); err == nil {
		t.Logf("\n%s", stdout)
		t.Fatal("expected the command to fail")
	}

	t.Logf("\n%s", stdout)

	return stdout.String()
}

// WaitCmd runs a fieldsync command and passes stdout and stdin to the callback
func WaitCmd(t *testing.T, opts RunCmdOptions, runFunc func(io.Reader, io.WriteCloser) error, binaryName string, arg ...string) (string, error) {
	t.Logf("running: %s %s", binaryName, strings.Join(arg, " "))

	binaryPath, err := filepath.Abs(binaryName)
	if err != nil {
		return "", errors.Wrap(err, "getting absolute path to test binary")
	}

	cmd := exec.Command(binaryPath, arg...)
	cmd.Env = opts.Env

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", errors.Wrap(err, "getting stdout pipe")
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", errors.Wrap(err, "getting stdin")
	}
	defer stdin.Close()

	if err = cmd.Start(); err != nil {
		return "", errors.Wrap(err, "starting command")
	}

	var output bytes.Buffer
	tee := io.TeeReader(stdout, &output)

	if err := runFunc(tee, stdin); err != nil {
		t.Logf("\n%s", output.String())
		return output.String(), errors.Wrap(err, "running callback")
	}

	io.Copy(&output, stdout)

	if err := cmd.Wait(); err != nil {
		t.Logf("\n%s", output.String())
		return output.String(), errors.Wrapf(err, "command failed: %s", stderr.String())
	}

	t.Logf("\n%s", output.String())
	return output.String(), nil
}

// MustWaitCmd is WaitCmd failing the test on error
func MustWaitCmd(t *testing.T, opts RunCmdOptions, runFunc func(io.Reader, io.WriteCloser) error, binaryName string, arg ...string) string {
	output, err := WaitCmd(t, opts, runFunc, binaryName, arg...)
	if err != nil {
		t.Fatal(err)
	}

	return output
}

// waitForPrompt reads stdout byte by byte until the expected prompt appears
func waitForPrompt(stdout io.Reader, expectedPrompt string, timeout time.Duration) error {
	resultCh := make(chan error, 1)

	go func() {
		reader := bufio.NewReader(stdout)
		var buffer strings.Builder

		for {
			b, err := reader.ReadByte()
			if err != nil {
				resultCh <- errors.Wrapf(err, "expected prompt '%s' not found in stdout", expectedPrompt)
				return
			}

			buffer.WriteByte(b)
			if strings.Contains(buffer.String(), expectedPrompt) {
				resultCh <- nil
				return
			}
		}
	}()

	select {
	case err := <-resultCh:
		return err
	case <-time.After(timeout):
		return errors.Errorf("timeout waiting for prompt '%s'", expectedPrompt)
	}
}

func respondToPrompt(stdout io.Reader, stdin io.WriteCloser, expectedPrompt, response string) error {
	if err := waitForPrompt(stdout, expectedPrompt, promptTimeout); err != nil {
		return err
	}

	if _, err := io.WriteString(stdin, response); err != nil {
		return errors.Wrap(err, "writing the response to stdin")
	}

	return nil
}

// ConfirmRemoveItem waits for the prompt for removing an item and confirms
func ConfirmRemoveItem(stdout io.Reader, stdin io.WriteCloser) error {
	return respondToPrompt(stdout, stdin, PromptRemoveItem, "y\n")
}

// CancelRemoveItem waits for the prompt for removing an item and declines
func CancelRemoveItem(stdout io.Reader, stdin io.WriteCloser) error {
	return respondToPrompt(stdout, stdin, PromptRemoveItem, "n\n")
}
