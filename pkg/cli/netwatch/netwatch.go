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

// Package netwatch observes connectivity to the intake server and notifies
// subscribers when it goes online or offline
package netwatch

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/custodial/fieldsync/pkg/cli/client"
	"github.com/custodial/fieldsync/pkg/cli/events"
	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/custodial/fieldsync/pkg/clock"
)

const (
	// DefaultInterval is the time between two probes
	DefaultInterval = 15 * time.Second
	// probeTimeout bounds a single probe
	probeTimeout = 5 * time.Second
)

// Prober reports whether the server can be reached
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to the Prober interface
type ProberFunc func(ctx context.Context) error

// Probe calls f(ctx)
func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// HTTPProber probes the health endpoint of the intake server
type HTTPProber struct {
	Endpoint   string
	HTTPClient *http.Client
}

// Probe sends a HEAD request to the health endpoint
func (p HTTPProber) Probe(ctx context.Context) error {
	return client.CheckHealth(ctx, p.HTTPClient, p.Endpoint)
}

// Observer keeps track of the connectivity state. The state is unknown until
// the first probe or Set, and every change is published once.
type Observer struct {
	prober   Prober
	interval time.Duration
	clock    clock.Clock
	bus      *events.Bus

	mu     sync.Mutex
	known  bool
	online bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns an observer probing with p every interval
func New(p Prober, interval time.Duration, c clock.Clock) *Observer {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Observer{
		prober:   p,
		interval: interval,
		clock:    c,
		bus:      events.NewBus(),
	}
}

// Subscribe registers a listener for Online and Offline events
func (o *Observer) Subscribe(l events.Listener) func() {
	return o.bus.Subscribe(l)
}

// IsOnline returns the last observed state. An unknown state counts as online
// so that a first sync is attempted.
func (o *Observer) IsOnline() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return !o.known || o.online
}

// Set records the connectivity state and publishes an event if it changed
func (o *Observer) Set(online bool) {
	o.mu.Lock()
	changed := !o.known || o.online != online
	o.known = true
	o.online = online
	o.mu.Unlock()

	if !changed {
		return
	}

	name := events.Offline
	if online {
		name = events.Online
	}

	log.Debug("connectivity changed: %s\n", name)
	o.bus.Publish(events.Event{Name: name, Time: o.clock.Now()})
}

// Check probes once and records the result
func (o *Observer) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := o.prober.Probe(ctx)
	if err != nil {
		log.Debug("probe failed: %s\n", err.Error())
	}

	online := err == nil
	o.Set(online)

	return online
}

// Start probes immediately and then every interval until Stop is called or
// ctx is done. Starting a started observer does nothing.
func (o *Observer) Start(ctx context.Context) {
	o.mu.Lock()
	if o.cancel != nil {
		o.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.cancel = cancel
	o.done = done
	o.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()

		o.Check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.Check(ctx)
			}
		}
	}()
}

// Stop ends probing and waits for an in-flight probe to return
func (o *Observer) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel = nil
	o.done = nil
	o.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}
