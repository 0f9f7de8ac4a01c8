/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package bridge defines the message types exchanged with the rendering
// surface. Events flow inbound (surface to backend), commands flow outbound.
// Commands are fire-and-forget: their only observable outcome is a later
// inbound event. Nothing here depends on a concrete surface implementation,
// so the backend's state machines are testable without a browser.
package bridge

import "fmt"

// Event is an inbound notification from the rendering surface.
type Event interface {
	event()
	String() string
}

// DocumentOpened reports that the viewer page finished loading a document.
type DocumentOpened struct {
	PageCount int
	Title     string
}

// EditOccurred reports an annotation or form modification.
type EditOccurred struct{}

// SaveStarted acknowledges that a save request is being processed.
type SaveStarted struct{}

// SaveDataReady carries the serialized document, including unsaved edits.
type SaveDataReady struct {
	Data          []byte
	SuggestedName string
}

// SaveFailed reports that the surface could not serialize the document.
type SaveFailed struct {
	Message string
}

// NavigationRequested reports a navigation initiated inside the surface's
// own UI (for example a clicked link).
type NavigationRequested struct {
	URL string
}

// PrintRequested reports that the user hit print inside the surface's UI.
type PrintRequested struct{}

// PageChanged reports the current page.
type PageChanged struct {
	Current int
	Total   int
}

// ErrorEvent reports a runtime error inside the surface.
type ErrorEvent struct {
	Message string
}

// SurfaceTerminated reports that the rendering process died.
type SurfaceTerminated struct {
	Reason string
}

func (DocumentOpened) event()      {}
func (EditOccurred) event()        {}
func (SaveStarted) event()         {}
func (SaveDataReady) event()       {}
func (SaveFailed) event()          {}
func (NavigationRequested) event() {}
func (PrintRequested) event()      {}
func (PageChanged) event()         {}
func (ErrorEvent) event()          {}
func (SurfaceTerminated) event()   {}

func (e DocumentOpened) String() string {
	return fmt.Sprintf("document-opened pages=%d title=%q", e.PageCount, e.Title)
}
func (EditOccurred) String() string { return "edit-occurred" }
func (SaveStarted) String() string  { return "save-started" }
func (e SaveDataReady) String() string {
	return fmt.Sprintf("save-data-ready bytes=%d name=%q", len(e.Data), e.SuggestedName)
}
func (e SaveFailed) String() string { return "save-failed: " + e.Message }
func (e NavigationRequested) String() string {
	return fmt.Sprintf("navigation-requested url=%q", e.URL)
}
func (PrintRequested) String() string { return "print-requested" }
func (e PageChanged) String() string {
	return fmt.Sprintf("page-changed %d/%d", e.Current, e.Total)
}
func (e ErrorEvent) String() string { return "error: " + e.Message }
func (e SurfaceTerminated) String() string {
	return "surface-terminated: " + e.Reason
}

// Command is an outbound instruction to the rendering surface.
type Command interface {
	command()
	String() string
}

// TriggerSave asks the surface to serialize its current edits; the surface
// answers with SaveStarted followed by SaveDataReady (or SaveFailed).
type TriggerSave struct{}

// ExitEditMode asks the surface to commit any in-progress interactive edit
// (an open freetext box, an unfinished ink stroke) before a save or close.
type ExitEditMode struct{}

// SuppressUnsavedWarning clears the surface's own unsaved-changes prompt;
// issued once the backend has taken responsibility for that decision.
type SuppressUnsavedWarning struct{}

// MarkSaved tells the surface its edits were persisted.
type MarkSaved struct{}

// GotoPage navigates the viewer to a page (1-based).
type GotoPage struct {
	Page int
}

// ProvidePassword hands a stored document password to the surface so its
// password prompt can be answered without asking the user again.
type ProvidePassword struct {
	Password string
}

func (TriggerSave) command()            {}
func (ExitEditMode) command()           {}
func (SuppressUnsavedWarning) command() {}
func (MarkSaved) command()              {}
func (GotoPage) command()               {}
func (ProvidePassword) command()        {}

func (TriggerSave) String() string            { return "trigger-save" }
func (ExitEditMode) String() string           { return "exit-edit-mode" }
func (SuppressUnsavedWarning) String() string { return "suppress-unsaved-warning" }
func (MarkSaved) String() string              { return "mark-saved" }
func (c GotoPage) String() string             { return fmt.Sprintf("goto-page %d", c.Page) }

// The password itself stays out of String, which ends up in logs.
func (ProvidePassword) String() string { return "provide-password" }

// Handler consumes inbound events. Implementations must not block; events
// are delivered in order on the backend's event loop.
type Handler func(Event)
