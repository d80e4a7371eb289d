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

// Package events delivers capture and sync notifications to listeners,
// such as the console printer of the daemon
package events

import (
	"sync"
	"time"
)

// Name identifies an event
type Name string

const (
	// PhotoSaved is published when a photo is persisted locally
	PhotoSaved Name = "photoSaved"
	// FormSaved is published when a form is persisted locally
	FormSaved Name = "formSaved"
	// PhotoSynced is published when a photo was accepted by the server
	PhotoSynced Name = "photoSynced"
	// FormSynced is published when a form was accepted by the server
	FormSynced Name = "formSynced"
	// PhotoSyncFailed is published when a photo upload attempt fails
	PhotoSyncFailed Name = "photoSyncFailed"
	// FormSyncFailed is published when a form upload attempt fails
	FormSyncFailed Name = "formSyncFailed"
	// SyncFailed is published for every failed upload attempt regardless of kind
	SyncFailed Name = "syncFailed"
	// SyncStarted is published when a sync run begins
	SyncStarted Name = "syncStarted"
	// SyncCompleted is published when a sync run drained the queue
	SyncCompleted Name = "syncCompleted"
	// SyncError is published when a run aborts because local bookkeeping failed
	SyncError Name = "syncError"
	// Online is published when connectivity is regained
	Online Name = "online"
	// Offline is published when connectivity is lost
	Offline Name = "offline"
	// StorageWarning is published when stored payloads cross the warning threshold
	StorageWarning Name = "storageWarning"
)

// Event is a notification about a capture item or a sync run. Only the fields
// relevant to the event name are set.
type Event struct {
	Name      Name
	ItemID    string
	Kind      string
	Err       error
	Succeeded int
	Failed    int
	Time      time.Time
}

// Listener receives events
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to the Listener interface
type ListenerFunc func(Event)

// OnEvent calls f(e)
func (f ListenerFunc) OnEvent(e Event) {
	f(e)
}

type subscription struct {
	id       int
	listener Listener
}

// Bus fans events out to its subscribers. The zero value is ready to use.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

// NewBus returns an empty bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers the listener and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(l Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, listener: l})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event synchronously to every subscriber in the order
// in which they subscribed. A nil bus drops the event.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}

	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		s.listener.OnEvent(e)
	}
}

// Recorder is a listener that keeps every event it receives
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// OnEvent records the event
func (r *Recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	ret := make([]Event, len(r.events))
	copy(ret, r.events)

	return ret
}

// Names returns the names of the recorded events in order
func (r *Recorder) Names() []Name {
	r.mu.Lock()
	defer r.mu.Unlock()

	ret := []Name{}
	for _, e := range r.events {
		ret = append(ret, e.Name)
	}

	return ret
}
