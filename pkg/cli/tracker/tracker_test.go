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

package tracker

import (
	"testing"
	"time"

	"github.com/custodial/fieldsync/pkg/assert"
	"github.com/custodial/fieldsync/pkg/cli/database"
	"github.com/custodial/fieldsync/pkg/clock"
)

func mustGetState(t *testing.T, tr *Tracker) State {
	t.Helper()

	s, err := tr.GetState()
	if err != nil {
		t.Fatal(err)
	}

	return s
}

func TestGetState_Initial(t *testing.T) {
	db := database.InitTestMemoryDB(t)
	tr := New(db, clock.NewMock(), "session-a")

	s := mustGetState(t, tr)
	assert.Equal(t, s.InProgress, false, "in progress mismatch")
	assert.Equal(t, s.CurrentItemID, "", "current item mismatch")
	assert.DeepEqual(t, s.CompletedItems, []string{}, "completed mismatch")
	assert.DeepEqual(t, s.FailedItems, []string{}, "failed mismatch")
}

func TestRunLifecycle(t *testing.T) {
	db := database.InitTestMemoryDB(t)
	c := clock.NewMock()
	tr := New(db, c, "session-a")
	start := c.Now()

	if err := tr.StartRun(); err != nil {
		t.Fatal(err)
	}
	s := mustGetState(t, tr)
	assert.Equal(t, s.InProgress, false, "a started run is not in progress until an item begins")
	assert.Equal(t, s.SessionID, "session-a", "session mismatch")
	assert.Equal(t, s.StartedAt.Equal(start), true, "startedAt mismatch")

	c.Advance(time.Second)
	if err := tr.BeginItem("p1", "photo"); err != nil {
		t.Fatal(err)
	}
	s = mustGetState(t, tr)
	assert.Equal(t, s.InProgress, true, "in progress mismatch")
	assert.Equal(t, s.CurrentItemID, "p1", "current item mismatch")
	assert.Equal(t, s.ItemKind, "photo", "kind mismatch")
	assert.Equal(t, s.StartedAt.Equal(start), true, "startedAt should be kept")
	assert.Equal(t, s.LastUpdated.Equal(c.Now()), true, "lastUpdated mismatch")

	if err := tr.CompleteItem("p1", OutcomeSuccess); err != nil {
		t.Fatal(err)
	}
	if err := tr.BeginItem("f1", "form"); err != nil {
		t.Fatal(err)
	}
	if err := tr.CompleteItem("f1", OutcomeFailure); err != nil {
		t.Fatal(err)
	}

	s = mustGetState(t, tr)
	assert.Equal(t, s.InProgress, true, "run should stay in progress between items")
	assert.Equal(t, s.CurrentItemID, "", "current item should be cleared")
	assert.Equal(t, s.ItemKind, "", "kind should be cleared")
	assert.DeepEqual(t, s.CompletedItems, []string{"p1"}, "completed mismatch")
	assert.DeepEqual(t, s.FailedItems, []string{"f1"}, "failed mismatch")

	if err := tr.FinishRun(); err != nil {
		t.Fatal(err)
	}
	s = mustGetState(t, tr)
	assert.Equal(t, s.InProgress, false, "in progress mismatch")
	assert.DeepEqual(t, s.CompletedItems, []string{}, "completed should be cleared")
	assert.DeepEqual(t, s.FailedItems, []string{}, "failed should be cleared")
}

func TestStartRun_ResetsPreviousRun(t *testing.T) {
	db := database.InitTestMemoryDB(t)
	c := clock.NewMock()

	old := New(db, c, "session-old")
	if err := old.BeginItem("a", "photo"); err != nil {
		t.Fatal(err)
	}
	if err := old.CompleteItem("a", OutcomeSuccess); err != nil {
		t.Fatal(err)
	}
	if err := old.BeginItem("b", "photo"); err != nil {
		t.Fatal(err)
	}

	c.Advance(time.Hour)
	tr := New(db, c, "session-new")
	if err := tr.StartRun(); err != nil {
		t.Fatal(err)
	}

	s := mustGetState(t, tr)
	assert.Equal(t, s.InProgress, false, "in progress mismatch")
	assert.Equal(t, s.CurrentItemID, "", "current item mismatch")
	assert.DeepEqual(t, s.CompletedItems, []string{}, "completed mismatch")
	assert.Equal(t, s.SessionID, "session-new", "session mismatch")
	assert.Equal(t, s.StartedAt.Equal(c.Now()), true, "startedAt mismatch")
}

func TestBeginItem_WithoutStartRun(t *testing.T) {
	db := database.InitTestMemoryDB(t)
	c := clock.NewMock()
	tr := New(db, c, "session-a")

	if err := tr.BeginItem("a", "photo"); err != nil {
		t.Fatal(err)
	}

	s := mustGetState(t, tr)
	assert.Equal(t, s.InProgress, true, "in progress mismatch")
	assert.Equal(t, s.StartedAt.Equal(c.Now()), true, "startedAt should be set")
}

func TestClear_Idempotent(t *testing.T) {
	db := database.InitTestMemoryDB(t)
	tr := New(db, clock.NewMock(), "session-a")

	if err := tr.BeginItem("a", "photo"); err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, tr.Clear(), nil, "first clear")
	first := mustGetState(t, tr)
	assert.Equal(t, tr.Clear(), nil, "second clear")
	second := mustGetState(t, tr)

	assert.Equal(t, first.InProgress, false, "in progress mismatch")
	assert.Equal(t, first.CurrentItemID, "", "current item mismatch")
	assert.Equal(t, first.SessionID, "", "session mismatch")
	assert.DeepEqual(t, first, second, "clearing twice should yield the same state")
}

func TestBeginItem_Durable(t *testing.T) {
	db, dbPath := database.InitTestFileDB(t)
	c := clock.NewMock()

	tr := New(db, c, "session-a")
	if err := tr.StartRun(); err != nil {
		t.Fatal(err)
	}
	if err := tr.BeginItem("a", "photo"); err != nil {
		t.Fatal(err)
	}
	if err := tr.CompleteItem("a", OutcomeSuccess); err != nil {
		t.Fatal(err)
	}
	if err := tr.BeginItem("b", "form"); err != nil {
		t.Fatal(err)
	}

	// simulate a crash: the process ends without finishing the run
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	restarted := New(database.ReopenTestFileDB(t, dbPath), c, "session-b")
	s := mustGetState(t, restarted)

	assert.Equal(t, s.InProgress, true, "in progress mismatch")
	assert.Equal(t, s.CurrentItemID, "b", "current item mismatch")
	assert.Equal(t, s.ItemKind, "form", "kind mismatch")
	assert.DeepEqual(t, s.CompletedItems, []string{"a"}, "completed mismatch")
	assert.Equal(t, s.SessionID, "session-a", "session mismatch")
}
