/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package tracker keeps the host-side view of document modification state,
// independent of the rendering surface's own bookkeeping. It is fed
// exclusively by edit notifications relayed over the bridge and by save/load
// operations; it never inspects the document itself.
package tracker

import (
	"sync"
	"time"
)

// Tracker records whether the open document has unsaved changes.
//
// State transitions notify the registered callback only on the edge:
// repeated MarkModified calls raise one notification, repeated MarkSaved
// calls raise one. SetDocument and Reset always notify false, since the
// document identity changed underneath any listener.
type Tracker struct {
	mu             sync.Mutex
	modified       bool
	modCount       int
	lastModified   time.Time
	lastSaved      time.Time
	docID          string
	onStateChanged func(modified bool)

	now func() time.Time // test seam
}

// New creates a Tracker. onStateChanged may be nil.
func New(onStateChanged func(bool)) *Tracker {
	return &Tracker{onStateChanged: onStateChanged, now: time.Now}
}

// SetDocument associates the tracker with a new document identity and resets
// the modification flag and counter. The last-saved timestamp is kept; it is
// informational and refers to the tracker, not to one document.
func (t *Tracker) SetDocument(docID string) {
	t.mu.Lock()
	t.docID = docID
	t.modified = false
	t.modCount = 0
	t.lastModified = time.Time{}
	t.mu.Unlock()
	t.notify(false)
}

// MarkModified records an edit. The flag is idempotent; the counter is not.
func (t *Tracker) MarkModified() {
	t.mu.Lock()
	wasModified := t.modified
	t.modified = true
	t.modCount++
	t.lastModified = t.now()
	t.mu.Unlock()
	if !wasModified {
		t.notify(true)
	}
}

// MarkSaved records a successful save. The modification counter is kept; it
// counts edits since load, not unsaved ones.
func (t *Tracker) MarkSaved() {
	t.mu.Lock()
	wasModified := t.modified
	t.modified = false
	t.lastSaved = t.now()
	t.mu.Unlock()
	if wasModified {
		t.notify(false)
	}
}

// Reset clears all state including the document identity. Used when changes
// are discarded or the viewer returns to blank.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.modified = false
	t.modCount = 0
	t.lastModified = time.Time{}
	t.docID = ""
	t.mu.Unlock()
	t.notify(false)
}

// HasUnsavedChanges reports the modification flag.
func (t *Tracker) HasUnsavedChanges() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.modified
}

// DocumentID returns the current document identity, empty when not tracking.
func (t *Tracker) DocumentID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.docID
}

// IsTracking reports whether a document is associated.
func (t *Tracker) IsTracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.docID != ""
}

// ModificationCount returns the number of edits since the document was loaded.
func (t *Tracker) ModificationCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.modCount
}

// LastModified returns the time of the last edit; zero if never modified.
func (t *Tracker) LastModified() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastModified
}

// LastSaved returns the time of the last save; zero if never saved.
func (t *Tracker) LastSaved() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSaved
}

func (t *Tracker) notify(modified bool) {
	if t.onStateChanged != nil {
		t.onStateChanged(modified)
	}
}
