/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package coordinator implements the save/navigation state machine that
// arbitrates between the asynchronous rendering surface and the procedural
// backend API. It guarantees at most one outstanding save, defers navigation
// until a save resolves, and bounds the wait for the surface's
// acknowledgment so an absent surface can never hang the viewer.
//
// The coordinator is not goroutine-safe. The owning backend serializes all
// calls (including timer callbacks) on its event loop.
package coordinator

import (
	"fmt"
	"log/slog"
	"time"

	"pdfviewer/internal/bridge"
	"pdfviewer/internal/config"
	applog "pdfviewer/internal/log"
	"pdfviewer/internal/tracker"
)

// State of the coordinator.
type State int

const (
	// Idle: no save outstanding.
	Idle State = iota
	// AwaitingAck: trigger-save issued, waiting for the surface's
	// save-started acknowledgment under a short timeout.
	AwaitingAck
	// AwaitingData: acknowledged, waiting for save-data-ready. Unbounded:
	// a large document may legitimately take long to serialize, and the
	// acknowledgment already proved the surface is alive. Do not add a
	// timeout here; the asymmetry is what distinguishes "surface is gone"
	// from "surface is slow".
	AwaitingData
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingAck:
		return "awaiting-ack"
	case AwaitingData:
		return "awaiting-data"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Mode of the outstanding save operation.
type Mode int

const (
	// ModeDownload: user-initiated save; target chosen interactively when
	// the data arrives (also used for a download initiated inside the
	// surface's own UI).
	ModeDownload Mode = iota
	// ModeAutoSave: silent overwrite of the original source path.
	ModeAutoSave
	// ModeSaveAs: interactive target selection at data-arrival time.
	ModeSaveAs
	// ModePrintCapture: bytes go to the print subsystem, nothing is
	// written to disk and no follow-up is ever attached.
	ModePrintCapture
)

func (m Mode) String() string {
	switch m {
	case ModeDownload:
		return "download"
	case ModeAutoSave:
		return "auto-save"
	case ModeSaveAs:
		return "save-as"
	case ModePrintCapture:
		return "print-capture"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ActionKind identifies a deferrable action.
type ActionKind int

const (
	ActionOpen ActionKind = iota
	ActionBlank
	ActionClose
	ActionPrint
)

func (k ActionKind) String() string {
	switch k {
	case ActionOpen:
		return "open"
	case ActionBlank:
		return "blank"
	case ActionClose:
		return "close"
	case ActionPrint:
		return "print"
	default:
		return fmt.Sprintf("action(%d)", int(k))
	}
}

// Action is a navigation/close/print request. Run performs it; the
// coordinator only decides when (or whether) to call it. At most one Action
// is ever pending; capturing a new one replaces the old (last write wins).
type Action struct {
	Kind ActionKind
	Name string // target description for logging, e.g. a file name
	Run  func()
}

// Disposition tells the caller what happened to a request.
type Disposition int

const (
	// Executed: the action ran (or the save sequence started) immediately.
	Executed Disposition = iota
	// Deferred: a save is outstanding; the action was captured as the
	// follow-up and will run when the save resolves.
	Deferred
	// Cancelled: the user aborted the sequence; nothing ran.
	Cancelled
	// Busy: the request cannot run nor be deferred (second explicit save).
	Busy
)

func (d Disposition) String() string {
	switch d {
	case Executed:
		return "executed"
	case Deferred:
		return "deferred"
	case Cancelled:
		return "cancelled"
	case Busy:
		return "busy"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// Choice from the unsaved-changes prompt.
type Choice int

const (
	ChoiceSaveAs Choice = iota
	ChoiceSave
	ChoiceDiscard
	ChoiceCancel
)

// Hooks connect the coordinator to its environment. All hooks are invoked on
// the owner's event loop. Prompt hooks may pump a nested dialog loop but must
// return synchronously from the coordinator's point of view.
type Hooks struct {
	// SendCommand forwards an outbound command to the rendering surface.
	SendCommand func(bridge.Command)
	// PromptUnsavedChanges shows the Save As / Save / Discard dialog.
	PromptUnsavedChanges func() Choice
	// PromptSaveTarget asks for a target path. ok=false means user cancel.
	PromptSaveTarget func(suggested string) (path string, ok bool)
	// AutoSaveTarget returns the original source path if it is still
	// readable; ok=false forces interactive target selection.
	AutoSaveTarget func() (path string, ok bool)
	// WriteFile commits document bytes to disk.
	WriteFile func(path string, data []byte) error
	// DeliverPrintData hands captured bytes to the print subsystem.
	DeliverPrintData func(data []byte)
	// Saved is called after a successful write with the target path.
	Saved func(path string)
	// ReportError surfaces an asynchronous failure to the caller.
	ReportError func(err error)
}

// TimerFactory schedules fn after d and returns a stop function. The default
// uses time.AfterFunc; the owner must make fn run on its event loop. Tests
// substitute a manual timer.
type TimerFactory func(d time.Duration, fn func()) (stop func())

// DefaultAckTimeout bounds the wait for the save-started acknowledgment.
const DefaultAckTimeout = 3 * time.Second

// Config for a Coordinator.
type Config struct {
	// Policy is the unsaved-changes action: config.UnsavedDisabled,
	// config.UnsavedPrompt or config.UnsavedAutoSave.
	Policy     string
	AckTimeout time.Duration
	Tracker    *tracker.Tracker
	Hooks      Hooks
	Timer      TimerFactory
	Logger     *slog.Logger
}

// saveOp is the single outstanding save operation.
type saveOp struct {
	mode      Mode
	target    string  // resolved target path, empty for save-as/download
	suggested string  // suggested filename for interactive prompts
	deferred  *Action // captured follow-up, nil for print-capture
	stopTimer func()
}

// Coordinator is the save/navigation state machine.
type Coordinator struct {
	cfg    Config
	state  State
	op     *saveOp
	logger *slog.Logger
}

// New creates a Coordinator. Tracker and the non-prompt hooks are required.
func New(cfg Config) *Coordinator {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	if cfg.Timer == nil {
		cfg.Timer = func(d time.Duration, fn func()) func() {
			t := time.AfterFunc(d, fn)
			return func() { t.Stop() }
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = applog.WithComponent("coordinator")
	}
	return &Coordinator{cfg: cfg, state: Idle, logger: cfg.Logger}
}

// State returns the current state.
func (c *Coordinator) State() State { return c.state }

// HasDeferred reports whether a follow-up action is captured.
func (c *Coordinator) HasDeferred() bool { return c.op != nil && c.op.deferred != nil }

// RequestNavigation handles an open/blank/close request. If a save is
// outstanding the action is captured as the deferred follow-up. Otherwise the
// unsaved-changes policy decides whether the action runs now or a save starts
// first.
func (c *Coordinator) RequestNavigation(a Action) Disposition {
	if c.state != Idle {
		c.capture(a)
		return Deferred
	}
	if !c.cfg.Tracker.HasUnsavedChanges() {
		a.Run()
		return Executed
	}
	return c.applyPolicy(a)
}

// RequestPrintCapture starts a print-capture save to obtain the current
// document bytes, including unsaved edits. If a save is already outstanding
// the print is captured as the deferred follow-up; reissue re-runs it once
// the coordinator is idle again.
func (c *Coordinator) RequestPrintCapture(reissue func()) Disposition {
	if c.state != Idle {
		c.capture(Action{Kind: ActionPrint, Run: reissue})
		return Deferred
	}
	c.startSave(ModePrintCapture, "", "", nil)
	return Executed
}

// RequestDownload starts an explicit user save. saveAs forces interactive
// target selection; otherwise the original path is overwritten when still
// readable. A second explicit save while one is outstanding is rejected.
func (c *Coordinator) RequestDownload(saveAs bool) Disposition {
	if c.state != Idle {
		c.logger.Warn("save requested while a save is outstanding", slog.String("state", c.state.String()))
		return Busy
	}
	if saveAs {
		c.startSave(ModeSaveAs, "", "", nil)
		return Executed
	}
	if target, ok := c.cfg.Hooks.AutoSaveTarget(); ok {
		c.startSave(ModeAutoSave, target, "", nil)
	} else {
		c.startSave(ModeSaveAs, "", "", nil)
	}
	return Executed
}

// applyPolicy runs the unsaved-changes policy for a navigation action while
// Idle with unsaved changes present.
func (c *Coordinator) applyPolicy(a Action) Disposition {
	switch c.cfg.Policy {
	case config.UnsavedDisabled:
		// Deliberate: changes are lost silently in this mode.
		c.send(bridge.SuppressUnsavedWarning{})
		a.Run()
		return Executed
	case config.UnsavedAutoSave:
		return c.startPolicySave(ChoiceSave, a)
	case config.UnsavedPrompt:
		switch choice := c.cfg.Hooks.PromptUnsavedChanges(); choice {
		case ChoiceDiscard:
			c.cfg.Tracker.Reset()
			c.send(bridge.SuppressUnsavedWarning{})
			a.Run()
			return Executed
		case ChoiceCancel:
			return Cancelled
		default:
			return c.startPolicySave(choice, a)
		}
	default:
		// Unknown policy behaves like disabled rather than blocking.
		c.logger.Warn("unknown unsaved-changes policy", slog.String("policy", c.cfg.Policy))
		c.send(bridge.SuppressUnsavedWarning{})
		a.Run()
		return Executed
	}
}

func (c *Coordinator) startPolicySave(choice Choice, a Action) Disposition {
	if choice == ChoiceSave {
		if target, ok := c.cfg.Hooks.AutoSaveTarget(); ok {
			c.startSave(ModeAutoSave, target, "", &a)
			return Deferred
		}
	}
	c.startSave(ModeSaveAs, "", "", &a)
	return Deferred
}

func (c *Coordinator) startSave(mode Mode, target, suggested string, deferred *Action) {
	op := &saveOp{mode: mode, target: target, suggested: suggested, deferred: deferred}
	c.op = op
	c.state = AwaitingAck
	op.stopTimer = c.cfg.Timer(c.cfg.AckTimeout, c.onAckTimeout)
	c.logger.Debug("save started",
		slog.String("mode", mode.String()),
		slog.String("target", target),
		slog.Bool("has_followup", deferred != nil))
	c.send(bridge.ExitEditMode{})
	c.send(bridge.TriggerSave{})
}

// capture overwrites the deferred follow-up; the newest request supersedes
// any earlier one.
func (c *Coordinator) capture(a Action) {
	if c.op == nil {
		// Should not happen: non-idle implies an op. Recover by resetting.
		c.logger.Error("no save operation in non-idle state", slog.String("state", c.state.String()))
		c.state = Idle
		a.Run()
		return
	}
	if c.op.deferred != nil {
		c.logger.Debug("deferred action superseded",
			slog.String("old", c.op.deferred.Kind.String()),
			slog.String("new", a.Kind.String()))
	}
	c.op.deferred = &a
}

// onAckTimeout fires when the surface never acknowledged the save request.
// The surface is assumed unresponsive or absent: the save is abandoned, but a
// captured follow-up executes anyway, since blocking navigation forever is
// worse than losing an edit the surface never acknowledged. The tracker's
// modification flag is left as-is: no save happened.
func (c *Coordinator) onAckTimeout() {
	if c.state != AwaitingAck {
		return
	}
	op := c.op
	c.logger.Warn("save acknowledgment timed out, abandoning save",
		slog.String("mode", op.mode.String()))
	c.finish()
	if op.deferred != nil {
		op.deferred.Run()
	}
}

// HandleEvent feeds an inbound bridge event through the state machine.
// Events that do not concern the coordinator are ignored.
func (c *Coordinator) HandleEvent(ev bridge.Event) {
	switch e := ev.(type) {
	case bridge.SaveStarted:
		c.onSaveStarted()
	case bridge.SaveDataReady:
		c.onSaveData(e.Data, e.SuggestedName)
	case bridge.SaveFailed:
		c.onSaveFailed(e.Message)
	}
}

func (c *Coordinator) onSaveStarted() {
	if c.state != AwaitingAck {
		c.logger.Debug("unexpected save-started", slog.String("state", c.state.String()))
		return
	}
	c.op.stopTimer()
	c.op.stopTimer = nil
	c.state = AwaitingData
}

func (c *Coordinator) onSaveData(data []byte, suggested string) {
	if c.state == Idle {
		// No operation outstanding: the user hit download inside the
		// surface's own UI. Treat it as an implicit download.
		c.commitInteractive(ModeDownload, data, suggested, nil)
		return
	}
	op := c.op
	if op.stopTimer != nil {
		// Data can arrive without a separate acknowledgment.
		op.stopTimer()
		op.stopTimer = nil
	}
	c.finish()

	if op.mode == ModePrintCapture {
		c.cfg.Hooks.DeliverPrintData(data)
		c.runDeferred(op)
		return
	}
	if op.mode == ModeAutoSave {
		if err := c.commit(op.target, data); err != nil {
			// Abort without the follow-up: continuing navigation would
			// silently discard a recoverable error.
			c.cfg.Hooks.ReportError(err)
			return
		}
		c.runDeferred(op)
		return
	}
	if op.suggested == "" {
		op.suggested = suggested
	}
	c.commitInteractive(op.mode, data, op.suggested, op.deferred)
}

// commitInteractive prompts for a target now that the bytes are available,
// then writes. User cancellation abandons the entire sequence including any
// follow-up.
func (c *Coordinator) commitInteractive(mode Mode, data []byte, suggested string, deferred *Action) {
	path, ok := c.cfg.Hooks.PromptSaveTarget(suggested)
	if !ok {
		c.logger.Info("save cancelled by user", slog.String("mode", mode.String()))
		return
	}
	if err := c.commit(path, data); err != nil {
		c.cfg.Hooks.ReportError(err)
		return
	}
	if deferred != nil {
		deferred.Run()
	}
}

func (c *Coordinator) commit(path string, data []byte) error {
	if err := c.cfg.Hooks.WriteFile(path, data); err != nil {
		return fmt.Errorf("coordinator: write %s: %w", path, err)
	}
	c.cfg.Tracker.MarkSaved()
	c.send(bridge.MarkSaved{})
	c.send(bridge.SuppressUnsavedWarning{})
	if c.cfg.Hooks.Saved != nil {
		c.cfg.Hooks.Saved(path)
	}
	return nil
}

func (c *Coordinator) runDeferred(op *saveOp) {
	if op.deferred != nil {
		op.deferred.Run()
	}
}

func (c *Coordinator) onSaveFailed(msg string) {
	if c.state == Idle {
		return
	}
	op := c.op
	c.finish()
	// Like a write failure: abort without the follow-up.
	c.cfg.Hooks.ReportError(fmt.Errorf("coordinator: surface save failed (%s): %s", op.mode, msg))
}

// finish clears the outstanding operation and returns to Idle.
func (c *Coordinator) finish() {
	if c.op != nil && c.op.stopTimer != nil {
		c.op.stopTimer()
	}
	c.op = nil
	c.state = Idle
}

func (c *Coordinator) send(cmd bridge.Command) {
	if c.cfg.Hooks.SendCommand != nil {
		c.cfg.Hooks.SendCommand(cmd)
	}
}
