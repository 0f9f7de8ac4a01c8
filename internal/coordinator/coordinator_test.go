/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package coordinator

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"pdfviewer/internal/bridge"
	"pdfviewer/internal/config"
	"pdfviewer/internal/tracker"
)

// harness wires a Coordinator to recording fakes and a manual timer.
type harness struct {
	c        *Coordinator
	tr       *tracker.Tracker
	commands []string
	executed []string
	printed  [][]byte
	writes   map[string][]byte
	errors   []error

	promptChoice Choice
	promptCount  int
	targetPath   string
	targetOK     bool
	autoPath     string
	autoOK       bool

	timerFn      func()
	timerStopped bool
}

func newHarness(t *testing.T, policy string) *harness {
	t.Helper()
	h := &harness{
		writes:       map[string][]byte{},
		promptChoice: ChoiceCancel,
		targetOK:     false,
		autoOK:       false,
	}
	h.tr = tracker.New(nil)
	h.c = New(Config{
		Policy:     policy,
		AckTimeout: 3 * time.Second,
		Tracker:    h.tr,
		Timer: func(d time.Duration, fn func()) func() {
			h.timerFn = fn
			h.timerStopped = false
			return func() { h.timerStopped = true }
		},
		Hooks: Hooks{
			SendCommand: func(cmd bridge.Command) { h.commands = append(h.commands, cmd.String()) },
			PromptUnsavedChanges: func() Choice {
				h.promptCount++
				return h.promptChoice
			},
			PromptSaveTarget: func(suggested string) (string, bool) { return h.targetPath, h.targetOK },
			AutoSaveTarget:   func() (string, bool) { return h.autoPath, h.autoOK },
			WriteFile: func(path string, data []byte) error {
				h.writes[path] = append([]byte(nil), data...)
				return nil
			},
			DeliverPrintData: func(data []byte) { h.printed = append(h.printed, data) },
			ReportError:      func(err error) { h.errors = append(h.errors, err) },
		},
	})
	return h
}

func (h *harness) action(name string) Action {
	return Action{Kind: ActionOpen, Name: name, Run: func() { h.executed = append(h.executed, name) }}
}

func (h *harness) fireTimeout(t *testing.T) {
	t.Helper()
	if h.timerFn == nil {
		t.Fatalf("no ack timer armed")
	}
	fn := h.timerFn
	h.timerFn = nil
	fn()
}

func (h *harness) countTriggerSaves() int {
	n := 0
	for _, c := range h.commands {
		if c == "trigger-save" {
			n++
		}
	}
	return n
}

func TestNavigationWithoutChangesExecutesImmediately(t *testing.T) {
	h := newHarness(t, config.UnsavedPrompt)
	h.tr.SetDocument("a")

	if d := h.c.RequestNavigation(h.action("open-b")); d != Executed {
		t.Fatalf("disposition = %v, want executed", d)
	}
	if len(h.executed) != 1 || h.executed[0] != "open-b" {
		t.Fatalf("action did not run: %v", h.executed)
	}
	if h.promptCount != 0 {
		t.Fatalf("prompt shown without unsaved changes")
	}
}

func TestDisabledPolicyDropsChangesSilently(t *testing.T) {
	h := newHarness(t, config.UnsavedDisabled)
	h.tr.SetDocument("a")
	h.tr.MarkModified()

	if d := h.c.RequestNavigation(h.action("open-b")); d != Executed {
		t.Fatalf("disposition = %v", d)
	}
	if len(h.executed) != 1 {
		t.Fatalf("action did not run")
	}
	// surface's own prompt must be suppressed
	found := false
	for _, cmd := range h.commands {
		if cmd == "suppress-unsaved-warning" {
			found = true
		}
	}
	if !found {
		t.Fatalf("suppress-unsaved-warning not sent: %v", h.commands)
	}
	if h.countTriggerSaves() != 0 {
		t.Fatalf("no save should start in disabled mode")
	}
}

func TestAutoSaveFullSequence(t *testing.T) {
	h := newHarness(t, config.UnsavedAutoSave)
	h.tr.SetDocument("a")
	h.tr.MarkModified()
	h.autoPath = "/docs/a.pdf"
	h.autoOK = true

	if d := h.c.RequestNavigation(h.action("open-b")); d != Deferred {
		t.Fatalf("disposition = %v, want deferred", d)
	}
	if h.c.State() != AwaitingAck {
		t.Fatalf("state = %v", h.c.State())
	}
	if len(h.executed) != 0 {
		t.Fatalf("action ran before save resolved")
	}

	h.c.HandleEvent(bridge.SaveStarted{})
	if h.c.State() != AwaitingData {
		t.Fatalf("state after ack = %v", h.c.State())
	}
	if !h.timerStopped {
		t.Fatalf("ack timer not cancelled on acknowledgment")
	}

	h.c.HandleEvent(bridge.SaveDataReady{Data: []byte("pdfbytes"), SuggestedName: "a.pdf"})
	if h.c.State() != Idle {
		t.Fatalf("state after data = %v", h.c.State())
	}
	if string(h.writes["/docs/a.pdf"]) != "pdfbytes" {
		t.Fatalf("original path not overwritten: %v", h.writes)
	}
	if h.tr.HasUnsavedChanges() {
		t.Fatalf("tracker not marked saved")
	}
	if len(h.executed) != 1 || h.executed[0] != "open-b" {
		t.Fatalf("follow-up did not run after commit: %v", h.executed)
	}
}

func TestAtMostOneSaveAndLastWriteWins(t *testing.T) {
	h := newHarness(t, config.UnsavedAutoSave)
	h.tr.SetDocument("a")
	h.tr.MarkModified()
	h.autoPath = "/docs/a.pdf"
	h.autoOK = true

	h.c.RequestNavigation(h.action("A"))
	// three more requests while the save is outstanding
	if d := h.c.RequestNavigation(h.action("B")); d != Deferred {
		t.Fatalf("B disposition = %v", d)
	}
	h.c.HandleEvent(bridge.SaveStarted{})
	if d := h.c.RequestNavigation(h.action("C")); d != Deferred {
		t.Fatalf("C disposition = %v", d)
	}
	if d := h.c.RequestNavigation(h.action("D")); d != Deferred {
		t.Fatalf("D disposition = %v", d)
	}

	if n := h.countTriggerSaves(); n != 1 {
		t.Fatalf("trigger-save issued %d times, want 1", n)
	}

	h.c.HandleEvent(bridge.SaveDataReady{Data: []byte("x")})
	if len(h.executed) != 1 || h.executed[0] != "D" {
		t.Fatalf("expected only the newest follow-up to run, got %v", h.executed)
	}
}

func TestAckTimeoutAbandonsSaveButHonorsNavigation(t *testing.T) {
	h := newHarness(t, config.UnsavedAutoSave)
	h.tr.SetDocument("a")
	h.tr.MarkModified()
	h.autoPath = "/docs/a.pdf"
	h.autoOK = true

	h.c.RequestNavigation(h.action("open-b"))
	h.fireTimeout(t)

	if h.c.State() != Idle {
		t.Fatalf("state after timeout = %v", h.c.State())
	}
	if len(h.executed) != 1 || h.executed[0] != "open-b" {
		t.Fatalf("follow-up did not run after timeout: %v", h.executed)
	}
	if len(h.writes) != 0 {
		t.Fatalf("no write should happen on timeout: %v", h.writes)
	}
	if !h.tr.HasUnsavedChanges() {
		t.Fatalf("tracker flag must be unchanged, the save did not happen")
	}
}

func TestLateEventsAfterTimeoutAreIgnored(t *testing.T) {
	h := newHarness(t, config.UnsavedAutoSave)
	h.tr.SetDocument("a")
	h.tr.MarkModified()
	h.autoPath = "/docs/a.pdf"
	h.autoOK = true

	h.c.RequestNavigation(h.action("open-b"))
	h.fireTimeout(t)
	h.executed = nil

	h.c.HandleEvent(bridge.SaveStarted{})
	if h.c.State() != Idle {
		t.Fatalf("late ack changed state: %v", h.c.State())
	}
}

func TestDiscardResetsTrackerAndProceeds(t *testing.T) {
	h := newHarness(t, config.UnsavedPrompt)
	h.tr.SetDocument("a")
	h.tr.MarkModified()
	h.promptChoice = ChoiceDiscard

	if d := h.c.RequestNavigation(h.action("open-b")); d != Executed {
		t.Fatalf("disposition = %v", d)
	}
	if h.tr.HasUnsavedChanges() {
		t.Fatalf("discard should reset the tracker")
	}
	if len(h.executed) != 1 {
		t.Fatalf("action did not run after discard")
	}
	if len(h.writes) != 0 || h.countTriggerSaves() != 0 {
		t.Fatalf("discard must not save anything")
	}
}

func TestPromptCancelAbortsNavigation(t *testing.T) {
	h := newHarness(t, config.UnsavedPrompt)
	h.tr.SetDocument("a")
	h.tr.MarkModified()
	h.promptChoice = ChoiceCancel

	if d := h.c.RequestNavigation(h.action("open-b")); d != Cancelled {
		t.Fatalf("disposition = %v", d)
	}
	if len(h.executed) != 0 {
		t.Fatalf("cancelled action ran")
	}
	if !h.tr.HasUnsavedChanges() {
		t.Fatalf("tracker must be unchanged after cancel")
	}
	if h.c.State() != Idle {
		t.Fatalf("state = %v", h.c.State())
	}
}

func TestSaveAsCancellationAbortsEverything(t *testing.T) {
	h := newHarness(t, config.UnsavedPrompt)
	h.tr.SetDocument("a")
	h.tr.MarkModified()
	h.promptChoice = ChoiceSaveAs
	h.targetOK = false // user dismisses the target prompt

	if d := h.c.RequestNavigation(h.action("open-b")); d != Deferred {
		t.Fatalf("disposition = %v", d)
	}
	h.c.HandleEvent(bridge.SaveStarted{})
	h.c.HandleEvent(bridge.SaveDataReady{Data: []byte("x"), SuggestedName: "a.pdf"})

	if h.c.State() != Idle {
		t.Fatalf("state = %v", h.c.State())
	}
	if h.c.HasDeferred() {
		t.Fatalf("deferred action survived cancellation")
	}
	if len(h.executed) != 0 {
		t.Fatalf("follow-up ran despite cancellation: %v", h.executed)
	}
	if !h.tr.HasUnsavedChanges() {
		t.Fatalf("tracker must still report unsaved changes")
	}
	if len(h.writes) != 0 {
		t.Fatalf("nothing should be written on cancel")
	}
}

func TestWriteFailureAbortsWithoutFollowUp(t *testing.T) {
	h := newHarness(t, config.UnsavedAutoSave)
	h.tr.SetDocument("a")
	h.tr.MarkModified()
	h.autoPath = "/docs/a.pdf"
	h.autoOK = true
	wantErr := errors.New("disk full")
	h.c.cfg.Hooks.WriteFile = func(path string, data []byte) error { return wantErr }

	h.c.RequestNavigation(h.action("open-b"))
	h.c.HandleEvent(bridge.SaveStarted{})
	h.c.HandleEvent(bridge.SaveDataReady{Data: []byte("x")})

	if len(h.executed) != 0 {
		t.Fatalf("follow-up must not run after a write failure")
	}
	if len(h.errors) != 1 || !errors.Is(h.errors[0], wantErr) {
		t.Fatalf("error not reported: %v", h.errors)
	}
	if h.c.State() != Idle {
		t.Fatalf("state = %v", h.c.State())
	}
}

func TestAutoSaveFallsBackToSaveAsWithoutReadableOriginal(t *testing.T) {
	h := newHarness(t, config.UnsavedAutoSave)
	h.tr.SetDocument("a")
	h.tr.MarkModified()
	h.autoOK = false // memory-loaded document, no original path
	h.targetPath = "/picked/by/user.pdf"
	h.targetOK = true

	h.c.RequestNavigation(h.action("open-b"))
	h.c.HandleEvent(bridge.SaveStarted{})
	h.c.HandleEvent(bridge.SaveDataReady{Data: []byte("x"), SuggestedName: "doc.pdf"})

	if string(h.writes["/picked/by/user.pdf"]) != "x" {
		t.Fatalf("interactive target not used: %v", h.writes)
	}
	if len(h.executed) != 1 {
		t.Fatalf("follow-up did not run")
	}
}

func TestPrintCaptureDeliversBytesWithoutWrite(t *testing.T) {
	h := newHarness(t, config.UnsavedPrompt)
	h.tr.SetDocument("a")
	h.tr.MarkModified()

	if d := h.c.RequestPrintCapture(func() {}); d != Executed {
		t.Fatalf("disposition = %v", d)
	}
	h.c.HandleEvent(bridge.SaveStarted{})
	h.c.HandleEvent(bridge.SaveDataReady{Data: []byte("printme")})

	if len(h.printed) != 1 || string(h.printed[0]) != "printme" {
		t.Fatalf("print data not delivered: %v", h.printed)
	}
	if len(h.writes) != 0 {
		t.Fatalf("print capture must not write files")
	}
	// print capture is not a save
	if !h.tr.HasUnsavedChanges() {
		t.Fatalf("tracker must still report unsaved changes after print capture")
	}
	if h.c.State() != Idle {
		t.Fatalf("state = %v", h.c.State())
	}
}

func TestPrintWhileSavingIsDeferred(t *testing.T) {
	h := newHarness(t, config.UnsavedAutoSave)
	h.tr.SetDocument("a")
	h.tr.MarkModified()
	h.autoPath = "/docs/a.pdf"
	h.autoOK = true

	h.c.RequestNavigation(h.action("open-b"))
	reissued := false
	if d := h.c.RequestPrintCapture(func() { reissued = true }); d != Deferred {
		t.Fatalf("disposition = %v", d)
	}
	h.c.HandleEvent(bridge.SaveStarted{})
	h.c.HandleEvent(bridge.SaveDataReady{Data: []byte("x")})

	if !reissued {
		t.Fatalf("deferred print was not reissued after the save resolved")
	}
	if len(h.executed) != 0 {
		t.Fatalf("superseded navigation ran: %v", h.executed)
	}
}

func TestNavigationDeferredBehindPrintCaptureRuns(t *testing.T) {
	h := newHarness(t, config.UnsavedPrompt)
	h.tr.SetDocument("a")
	h.tr.MarkModified()

	if d := h.c.RequestPrintCapture(func() {}); d != Executed {
		t.Fatalf("disposition = %v", d)
	}
	if d := h.c.RequestNavigation(h.action("open-b")); d != Deferred {
		t.Fatalf("disposition = %v", d)
	}
	h.c.HandleEvent(bridge.SaveStarted{})
	h.c.HandleEvent(bridge.SaveDataReady{Data: []byte("printme")})

	if len(h.printed) != 1 || string(h.printed[0]) != "printme" {
		t.Fatalf("print data not delivered: %v", h.printed)
	}
	if len(h.executed) != 1 || h.executed[0] != "open-b" {
		t.Fatalf("navigation captured behind the print capture never ran: %v", h.executed)
	}
	if h.c.State() != Idle {
		t.Fatalf("state = %v", h.c.State())
	}
}

func TestSecondExplicitSaveIsRejected(t *testing.T) {
	h := newHarness(t, config.UnsavedPrompt)
	h.tr.SetDocument("a")
	h.autoPath = "/docs/a.pdf"
	h.autoOK = true

	if d := h.c.RequestDownload(false); d != Executed {
		t.Fatalf("first save disposition = %v", d)
	}
	if d := h.c.RequestDownload(false); d != Busy {
		t.Fatalf("second save disposition = %v, want busy", d)
	}
	if n := h.countTriggerSaves(); n != 1 {
		t.Fatalf("trigger-save issued %d times", n)
	}
}

func TestImplicitDownloadWhileIdle(t *testing.T) {
	h := newHarness(t, config.UnsavedPrompt)
	h.tr.SetDocument("a")
	h.targetPath = "/downloads/doc.pdf"
	h.targetOK = true

	// surface-initiated download: data arrives with no operation outstanding
	h.c.HandleEvent(bridge.SaveDataReady{Data: []byte("dl"), SuggestedName: "doc.pdf"})

	if string(h.writes["/downloads/doc.pdf"]) != "dl" {
		t.Fatalf("implicit download not written: %v", h.writes)
	}
	if h.c.State() != Idle {
		t.Fatalf("state = %v", h.c.State())
	}
}

func TestSurfaceSaveFailureAborts(t *testing.T) {
	h := newHarness(t, config.UnsavedAutoSave)
	h.tr.SetDocument("a")
	h.tr.MarkModified()
	h.autoPath = "/docs/a.pdf"
	h.autoOK = true

	h.c.RequestNavigation(h.action("open-b"))
	h.c.HandleEvent(bridge.SaveStarted{})
	h.c.HandleEvent(bridge.SaveFailed{Message: "serialization error"})

	if h.c.State() != Idle {
		t.Fatalf("state = %v", h.c.State())
	}
	if len(h.executed) != 0 {
		t.Fatalf("follow-up ran after surface failure")
	}
	if len(h.errors) != 1 {
		t.Fatalf("surface failure not reported: %v", h.errors)
	}
}

func TestEndToEndAutoSaveThenOpen(t *testing.T) {
	// Property 7 from the design discussion: auto_save policy, readable
	// original, open("B.pdf") while "A" has unsaved changes.
	h := newHarness(t, config.UnsavedAutoSave)
	h.tr.SetDocument("A")
	h.tr.MarkModified()
	h.autoPath = "/docs/A.pdf"
	h.autoOK = true

	opened := ""
	a := Action{Kind: ActionOpen, Name: "B.pdf", Run: func() {
		opened = "B.pdf"
		h.tr.SetDocument("B")
	}}
	if d := h.c.RequestNavigation(a); d != Deferred {
		t.Fatalf("disposition = %v", d)
	}
	h.c.HandleEvent(bridge.SaveStarted{})
	h.c.HandleEvent(bridge.SaveDataReady{Data: []byte("a-bytes"), SuggestedName: "A.pdf"})

	if string(h.writes["/docs/A.pdf"]) != "a-bytes" {
		t.Fatalf("A's original path not overwritten")
	}
	if opened != "B.pdf" {
		t.Fatalf("open did not execute")
	}
	if h.tr.DocumentID() != "B" || h.tr.HasUnsavedChanges() {
		t.Fatalf("new session wrong: id=%q modified=%v", h.tr.DocumentID(), h.tr.HasUnsavedChanges())
	}
}

func TestStateAndModeStrings(t *testing.T) {
	cases := []struct {
		got  fmt.Stringer
		want string
	}{
		{Idle, "idle"},
		{AwaitingAck, "awaiting-ack"},
		{AwaitingData, "awaiting-data"},
		{ModeAutoSave, "auto-save"},
		{ModePrintCapture, "print-capture"},
		{ActionBlank, "blank"},
		{Deferred, "deferred"},
	}
	for _, c := range cases {
		if c.got.String() != c.want {
			t.Errorf("String() = %q, want %q", c.got.String(), c.want)
		}
	}
}
