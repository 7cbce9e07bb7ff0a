/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"
)

// WriterState is the state of the debounced persistence path.
//
//	event \ state   Idle      Pending          InFlight              PendingWhileInFlight
//	Mutated         Pending   Pending (rearm)  PendingWhileInFlight  PendingWhileInFlight (rearm)
//	TimerFired      -         InFlight|Idle    -                     PendingWhileInFlight (queued)
//	Settled         -         -                Idle                  InFlight|Pending|Idle
//
// TimerFired always writes the local cache first. A remote write whose bytes
// equal the last successfully sent payload is skipped.
type WriterState int

const (
	WriterIdle WriterState = iota
	WriterPending
	WriterInFlight
	WriterPendingWhileInFlight
)

func (s WriterState) String() string {
	switch s {
	case WriterPending:
		return "pending"
	case WriterInFlight:
		return "in-flight"
	case WriterPendingWhileInFlight:
		return "pending-while-in-flight"
	default:
		return "idle"
	}
}

type writer struct {
	collectionID string
	cache        Cache
	remote       Remote
	clock        Clock
	delay        time.Duration
	timeout      time.Duration
	log          *slog.Logger
	observer     Observer

	mu       sync.Mutex
	latest   []byte // latest intended payload
	lastSent []byte // last payload the remote accepted
	timer    Timer
	gen      uint64 // invalidates stale timer callbacks
	inflight bool
	queued   bool // flush requested while a write was in flight
	wg       sync.WaitGroup
}

func (w *writer) state() WriterState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

func (w *writer) stateLocked() WriterState {
	waiting := w.timer != nil || w.queued
	switch {
	case w.inflight && waiting:
		return WriterPendingWhileInFlight
	case w.inflight:
		return WriterInFlight
	case waiting:
		return WriterPending
	default:
		return WriterIdle
	}
}

// mutated replaces the latest intended payload and rearms the debounce timer.
func (w *writer) mutated(payload []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.latest = payload
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.timer = w.clock.AfterFunc(w.delay, func() { w.timerFired(gen) })
}

func (w *writer) timerFired(gen uint64) {
	w.mu.Lock()
	if gen != w.gen || w.timer == nil {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	payload := w.latest
	w.mu.Unlock()

	w.writeCache(payload)

	w.mu.Lock()
	w.requestFlushLocked()
	w.mu.Unlock()
}

// requestFlushLocked starts a remote write of the latest payload unless one is
// already in flight, in which case the request is queued for after it settles.
func (w *writer) requestFlushLocked() {
	if w.remote == nil || w.latest == nil {
		return
	}
	if w.lastSent != nil && bytes.Equal(w.latest, w.lastSent) {
		return
	}
	if w.inflight {
		w.queued = true
		return
	}
	w.inflight = true
	payload := w.latest
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		err := w.send(payload)
		w.settled(payload, err)
	}()
}

func (w *writer) settled(payload []byte, err error) {
	w.mu.Lock()
	if err != nil {
		w.lastSent = nil
	} else {
		w.lastSent = payload
	}
	w.inflight = false
	if w.queued {
		w.queued = false
		w.requestFlushLocked()
	}
	w.mu.Unlock()

	if err != nil {
		w.log.Warn("remote layout write failed", slog.Any("err", err))
		if w.observer != nil {
			w.observer.RemoteWriteFailed(w.collectionID, err)
		}
	}
}

func (w *writer) send(payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	return w.remote.UpdateCollectionLayouts(ctx, w.collectionID, payload)
}

// flushNow writes the latest payload to the cache and fires a remote write
// that ignores the debounce timer and any write already in flight.
func (w *writer) flushNow() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.gen++
	payload := w.latest
	w.mu.Unlock()
	if payload == nil {
		return
	}
	w.writeCache(payload)
	w.fire(payload, "eager flush")
}

// fire sends payload once outside the coalescing path. Failures are logged only.
func (w *writer) fire(payload []byte, reason string) {
	if w.remote == nil {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.send(payload); err != nil {
			w.log.Warn("remote layout write failed", slog.String("reason", reason), slog.Any("err", err))
			if w.observer != nil {
				w.observer.RemoteWriteFailed(w.collectionID, err)
			}
		}
	}()
}

func (w *writer) writeCache(payload []byte) {
	if w.cache == nil {
		return
	}
	if err := w.cache.Set(CacheKey(w.collectionID), string(payload)); err != nil {
		w.log.Debug("local layout cache write failed", slog.Any("err", err))
	}
}

// stop cancels the timer without flushing.
func (w *writer) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.gen++
	w.queued = false
}

// wait blocks until every remote write started so far has returned or ctx is done.
func (w *writer) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
