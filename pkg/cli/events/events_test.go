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

package events

import (
	"testing"

	"github.com/custodial/fieldsync/pkg/assert"
)

func TestBus_PublishOrder(t *testing.T) {
	bus := NewBus()

	var got []string
	bus.Subscribe(ListenerFunc(func(e Event) { got = append(got, "first:"+string(e.Name)) }))
	bus.Subscribe(ListenerFunc(func(e Event) { got = append(got, "second:"+string(e.Name)) }))

	bus.Publish(Event{Name: SyncStarted})
	bus.Publish(Event{Name: SyncCompleted})

	assert.DeepEqual(t, got, []string{
		"first:syncStarted",
		"second:syncStarted",
		"first:syncCompleted",
		"second:syncCompleted",
	}, "delivery order mismatch")
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	a := &Recorder{}
	b := &Recorder{}
	unsubA := bus.Subscribe(a)
	bus.Subscribe(b)

	bus.Publish(Event{Name: Online})
	unsubA()
	unsubA()
	bus.Publish(Event{Name: Offline})

	assert.DeepEqual(t, a.Names(), []Name{Online}, "unsubscribed listener should stop receiving")
	assert.DeepEqual(t, b.Names(), []Name{Online, Offline}, "remaining listener should receive all")
}

func TestBus_SetsTime(t *testing.T) {
	bus := NewBus()
	r := &Recorder{}
	bus.Subscribe(r)

	bus.Publish(Event{Name: PhotoSaved, ItemID: "a"})

	events := r.Events()
	assert.Equal(t, len(events), 1, "event count mismatch")
	assert.Equal(t, events[0].Time.IsZero(), false, "time should be set")
	assert.Equal(t, events[0].ItemID, "a", "item id mismatch")
}

func TestBus_Nil(t *testing.T) {
	var bus *Bus

	// must not panic
	bus.Publish(Event{Name: SyncStarted})
}
