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

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/custodial/fieldsync/pkg/assert"
	"github.com/custodial/fieldsync/pkg/cli/store"
	"github.com/custodial/fieldsync/pkg/cli/testutils"
	"github.com/pkg/errors"
)

var binaryName = "test-fieldsync"

func TestMain(m *testing.M) {
	if err := exec.Command("go", "build", "-o", binaryName).Run(); err != nil {
		panic(errors.Wrap(err, "building a binary").Error())
	}

	code := m.Run()

	os.Remove(binaryName)
	os.Exit(code)
}

type testEnv struct {
	opts   testutils.RunCmdOptions
	dbPath string
	tmpDir string
}

func setupTestEnv(t *testing.T) testEnv {
	tmpDir := t.TempDir()

	return testEnv{
		opts: testutils.RunCmdOptions{
			Env: []string{
				fmt.Sprintf("XDG_CONFIG_HOME=%s", filepath.Join(tmpDir, "config")),
				fmt.Sprintf("XDG_DATA_HOME=%s", filepath.Join(tmpDir, "data")),
				fmt.Sprintf("XDG_STATE_HOME=%s", filepath.Join(tmpDir, "state")),
				fmt.Sprintf("HOME=%s", tmpDir),
			},
		},
		dbPath: filepath.Join(tmpDir, "fieldsync.db"),
		tmpDir: tmpDir,
	}
}

func (e testEnv) args(arg ...string) []string {
	return append(arg, "--dbPath", e.dbPath)
}

type exportDoc struct {
	Version string       `json:"version"`
	Items   []store.Item `json:"items"`
}

func exportItems(t *testing.T, e testEnv) []store.Item {
	out := testutils.RunCmd(t, e.opts, binaryName, e.args("export")...)

	var doc exportDoc
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatal(errors.Wrapf(err, "decoding export '%s'", out))
	}

	return doc.Items
}

func getStats(t *testing.T, e testEnv) store.Stats {
	out := testutils.RunCmd(t, e.opts, binaryName, e.args("status", "--json")...)

	var ret store.Stats
	if err := json.Unmarshal([]byte(out), &ret); err != nil {
		t.Fatal(errors.Wrapf(err, "decoding stats '%s'", out))
	}

	return ret
}

func writePhoto(t *testing.T, dir, name string) string {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("\xff\xd8\xff\xe0 not really a jpeg"), 0644); err != nil {
		t.Fatal(errors.Wrap(err, "writing photo"))
	}

	return path
}

func TestInit(t *testing.T) {
	e := setupTestEnv(t)

	testutils.RunCmd(t, e.opts, binaryName, e.args("version")...)

	configPath := filepath.Join(e.tmpDir, "config", "fieldsync", "fieldsyncrc")
	ok, err := fileExists(configPath)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ok, true, "config file was not created")

	ok, err = fileExists(e.dbPath)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ok, true, "database was not created")
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

func TestCaptureForm(t *testing.T) {
	e := setupTestEnv(t)

	testutils.RunCmd(t, e.opts, binaryName,
		e.args("capture", "form", "-i", "insp-1", "-m", "room=101", "-c", `{"condition": "clean"}`)...)

	items := exportItems(t, e)
	assert.Equal(t, len(items), 1, "item count mismatch")
	assert.Equal(t, items[0].Kind, store.KindForm, "kind mismatch")
	assert.Equal(t, items[0].Status, store.StatusPending, "status mismatch")
	assert.Equal(t, items[0].Metadata["inspectionId"], "insp-1", "inspection mismatch")
	assert.Equal(t, items[0].Metadata["room"], "101", "metadata mismatch")
}

func TestCaptureForm_Piped(t *testing.T) {
	e := setupTestEnv(t)

	opts := e.opts
	opts.Stdin = `{"condition": "dirty"}`
	testutils.RunCmd(t, opts, binaryName, e.args("capture", "form")...)

	items := exportItems(t, e)
	assert.Equal(t, len(items), 1, "item count mismatch")
	assert.Equal(t, items[0].Kind, store.KindForm, "kind mismatch")
}

func TestCaptureForm_Invalid(t *testing.T) {
	e := setupTestEnv(t)

	testutils.RunFailingCmd(t, e.opts, binaryName, e.args("capture", "form", "-c", "not json")...)
	testutils.RunFailingCmd(t, e.opts, binaryName, e.args("capture", "form", "-c", "{}", "-m", "itemId=x")...)
	testutils.RunFailingCmd(t, e.opts, binaryName, e.args("capture", "form", "-c", "{}", "-i", "a/b")...)

	assert.Equal(t, len(exportItems(t, e)), 0, "nothing should be saved")
}

func TestCapturePhoto(t *testing.T) {
	e := setupTestEnv(t)
	path := writePhoto(t, e.tmpDir, "IMG_0001.jpg")

	testutils.RunCmd(t, e.opts, binaryName, e.args("capture", "photo", path, "-i", "insp-2")...)

	items := exportItems(t, e)
	assert.Equal(t, len(items), 1, "item count mismatch")
	assert.Equal(t, items[0].Kind, store.KindPhoto, "kind mismatch")
	assert.Equal(t, items[0].Metadata["filename"], "IMG_0001.jpg", "filename mismatch")
	assert.Equal(t, items[0].Metadata["contentType"], "image/jpeg", "content type mismatch")
	assert.Equal(t, items[0].Metadata["inspectionId"], "insp-2", "inspection mismatch")
}

func TestCapturePhoto_UnsupportedType(t *testing.T) {
	e := setupTestEnv(t)
	path := writePhoto(t, e.tmpDir, "notes.txt")

	testutils.RunFailingCmd(t, e.opts, binaryName, e.args("capture", "photo", path)...)
}

func TestLs(t *testing.T) {
	e := setupTestEnv(t)

	out := testutils.RunCmd(t, e.opts, binaryName, e.args("ls")...)
	assert.Equal(t, strings.Contains(out, "no items"), true, "empty queue message missing")

	testutils.RunCmd(t, e.opts, binaryName, e.args("capture", "form", "-c", "{}")...)
	items := exportItems(t, e)

	out = testutils.RunCmd(t, e.opts, binaryName, e.args("ls", "--kind", "form")...)
	assert.Equal(t, strings.Contains(out, items[0].ID), true, "item missing from the list")

	out = testutils.RunCmd(t, e.opts, binaryName, e.args("ls", "--kind", "photo")...)
	assert.Equal(t, strings.Contains(out, items[0].ID), false, "filter not applied")

	testutils.RunFailingCmd(t, e.opts, binaryName, e.args("ls", "--status", "lost")...)
}

func TestStatus(t *testing.T) {
	e := setupTestEnv(t)

	testutils.RunCmd(t, e.opts, binaryName, e.args("capture", "form", "-c", "{}")...)
	testutils.RunCmd(t, e.opts, binaryName, e.args("capture", "form", "-c", `{"a": 1}`)...)

	stats := getStats(t, e)
	assert.Equal(t, stats.Total, 2, "total mismatch")
	assert.Equal(t, stats.Pending, 2, "pending mismatch")
	assert.Equal(t, stats.Failed, 0, "failed mismatch")

	out := testutils.RunCmd(t, e.opts, binaryName, e.args("status")...)
	assert.Equal(t, strings.Contains(out, "pending: 2"), true, "pending count missing")
}

func TestRemove(t *testing.T) {
	t.Run("confirmed", func(t *testing.T) {
		e := setupTestEnv(t)
		testutils.RunCmd(t, e.opts, binaryName, e.args("capture", "form", "-c", "{}")...)
		id := exportItems(t, e)[0].ID

		testutils.MustWaitCmd(t, e.opts, testutils.ConfirmRemoveItem, binaryName, e.args("remove", id)...)

		assert.Equal(t, len(exportItems(t, e)), 0, "item was not removed")
	})

	t.Run("cancelled", func(t *testing.T) {
		e := setupTestEnv(t)
		testutils.RunCmd(t, e.opts, binaryName, e.args("capture", "form", "-c", "{}")...)
		id := exportItems(t, e)[0].ID

		testutils.MustWaitCmd(t, e.opts, testutils.CancelRemoveItem, binaryName, e.args("remove", id)...)

		assert.Equal(t, len(exportItems(t, e)), 1, "item should be kept")
	})

	t.Run("yes flag", func(t *testing.T) {
		e := setupTestEnv(t)
		testutils.RunCmd(t, e.opts, binaryName, e.args("capture", "form", "-c", "{}")...)
		id := exportItems(t, e)[0].ID

		testutils.RunCmd(t, e.opts, binaryName, e.args("remove", "-y", id)...)

		assert.Equal(t, len(exportItems(t, e)), 0, "item was not removed")
	})

	t.Run("not found", func(t *testing.T) {
		e := setupTestEnv(t)

		testutils.RunFailingCmd(t, e.opts, binaryName, e.args("remove", "-y", "missing")...)
	})
}

func TestExport_File(t *testing.T) {
	e := setupTestEnv(t)
	testutils.RunCmd(t, e.opts, binaryName, e.args("capture", "form", "-c", "{}")...)

	outPath := filepath.Join(e.tmpDir, "queue.json")
	testutils.RunCmd(t, e.opts, binaryName, e.args("export", "-o", outPath)...)

	b, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(errors.Wrap(err, "reading export"))
	}

	var doc exportDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatal(errors.Wrap(err, "decoding export"))
	}
	assert.Equal(t, doc.Version, store.ExportVersion, "version mismatch")
	assert.Equal(t, len(doc.Items), 1, "item count mismatch")
}

// intakeStub is a minimal intake server recording the uploads it receives
type intakeStub struct {
	mu      sync.Mutex
	photos  int
	notes   int
	failing bool
}

func (s *intakeStub) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.photos, s.notes
}

func (s *intakeStub) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/csrf-token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"csrfToken": "token", "expiresIn": 3600}`)
	})
	upload := func(counter *int) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			s.mu.Lock()
			defer s.mu.Unlock()

			if s.failing {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
			if r.Header.Get("X-CSRF-Token") != "token" {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			*counter++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"id": "%s", "duplicate": false}`, r.Header.Get("X-Item-ID"))
		}
	}
	mux.HandleFunc("/api/photos", upload(&s.photos))
	mux.HandleFunc("/api/custodial-notes", upload(&s.notes))

	return mux
}

func TestSync(t *testing.T) {
	stub := &intakeStub{}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	e := setupTestEnv(t)
	endpoint := server.URL + "/api"

	path := writePhoto(t, e.tmpDir, "IMG_0002.jpg")
	testutils.RunCmd(t, e.opts, binaryName, e.args("capture", "photo", path)...)
	testutils.RunCmd(t, e.opts, binaryName, e.args("capture", "form", "-c", "{}")...)

	testutils.RunCmd(t, e.opts, binaryName, e.args("sync", "--apiEndpoint", endpoint)...)

	photos, notes := stub.counts()
	assert.Equal(t, photos, 1, "photo upload count mismatch")
	assert.Equal(t, notes, 1, "note upload count mismatch")

	stats := getStats(t, e)
	assert.Equal(t, stats.Synced, 2, "synced mismatch")
	assert.Equal(t, stats.Pending, 0, "pending mismatch")
	assert.Equal(t, stats.LastSyncAt.IsZero(), false, "last sync time was not recorded")

	testutils.RunCmd(t, e.opts, binaryName, e.args("cleanup", "--older-than", "0s")...)
	assert.Equal(t, getStats(t, e).Total, 0, "synced items were not cleaned up")
}

func TestSync_ServerFailure(t *testing.T) {
	stub := &intakeStub{failing: true}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	e := setupTestEnv(t)
	endpoint := server.URL + "/api"

	testutils.RunCmd(t, e.opts, binaryName, e.args("capture", "form", "-c", "{}")...)

	testutils.RunFailingCmd(t, e.opts, binaryName, e.args("sync", "--apiEndpoint", endpoint)...)

	items := exportItems(t, e)
	assert.Equal(t, items[0].Status, store.StatusPending, "a retryable failure keeps the item pending")
	assert.Equal(t, items[0].RetryCount, 1, "retry count mismatch")

	stub.mu.Lock()
	stub.failing = false
	stub.mu.Unlock()

	testutils.RunCmd(t, e.opts, binaryName, e.args("sync", "--apiEndpoint", endpoint)...)
	assert.Equal(t, getStats(t, e).Synced, 1, "synced mismatch")
}

func TestRecover_NothingToRecover(t *testing.T) {
	e := setupTestEnv(t)

	testutils.RunCmd(t, e.opts, binaryName, e.args("recover")...)
	testutils.RunCmd(t, e.opts, binaryName, e.args("recover", "--dismiss")...)
	testutils.RunFailingCmd(t, e.opts, binaryName, e.args("recover", "--dismiss", "--resume")...)
}
