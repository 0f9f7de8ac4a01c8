/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package viewer is the backend facade: it owns the rendering surface, the
// modification tracker, the save coordinator, the session store and the
// print manager, and serializes everything on a single event loop. Public
// methods may be called from any goroutine; all state lives on the loop.
package viewer

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pdfviewer/internal/bridge"
	"pdfviewer/internal/config"
	"pdfviewer/internal/coordinator"
	"pdfviewer/internal/history"
	applog "pdfviewer/internal/log"
	"pdfviewer/internal/pdfinfo"
	"pdfviewer/internal/printing"
	"pdfviewer/internal/surface"
	"pdfviewer/internal/telemetry"
	"pdfviewer/internal/tempfiles"
	"pdfviewer/internal/tracker"
)

// ErrClosed is returned from operations on a closed viewer.
var ErrClosed = errors.New("viewer: closed")

// documentPassword looks up a stored password for a document id; stubbed
// in tests so they never touch the OS keyring.
var documentPassword = config.DocumentPassword

// Document describes the currently loaded document for the embedder.
type Document struct {
	DocID      string
	Filename   string
	SourcePath string // empty for memory-loaded documents
	PageCount  int
}

// Hooks are the embedder's callbacks. All run on the viewer's event loop;
// they must not call back into the viewer synchronously except where noted.
// Nil hooks are skipped; nil prompt hooks behave like a cancel.
type Hooks struct {
	Loaded          func(Document)
	Saved           func(path string)
	ModifiedChanged func(bool)
	PageChanged     func(current, total int)
	PrintCompleted  func(printing.Result)
	Error           func(error)
	// Recovered is called after a surface crash was handled, whether or
	// not the document could be restored.
	Recovered func(reason string, restored bool)

	PromptUnsavedChanges func() coordinator.Choice
	PromptSaveTarget     func(suggested string) (string, bool)
	// OpenExternal opens a link outside the viewer, typically in the
	// system browser. Nil drops external navigation silently.
	OpenExternal func(url string)
	// ConfirmExternalLink asks before following an external link.
	ConfirmExternalLink func(url string) bool
}

// SurfaceFactory builds a rendering surface delivering events to handler.
// Production wires surface.NewChromium; tests substitute a fake.
type SurfaceFactory func(handler bridge.Handler) (surface.Surface, error)

// session is the state of the loaded document.
type session struct {
	docID      string
	sourcePath string // original path, empty for memory documents
	tempPath   string // working copy shown to the surface
	filename   string
	page       int
	totalPages int
	fromMemory bool
}

// Viewer is the backend facade.
type Viewer struct {
	cfg        config.AppConfig
	hooks      Hooks
	newSurface SurfaceFactory
	temp       *tempfiles.Manager
	hist       *history.Store // optional
	track      *tracker.Tracker
	coord      *coordinator.Coordinator
	printer    *printing.Manager
	logger     *slog.Logger

	loop chan func()
	done chan struct{}

	// loop-owned state
	surf       surface.Surface
	surfaceGen int
	sess       *session
	recovering bool
	closed     bool
}

// Options for New. Surface is required; History may be nil to disable
// session persistence.
type Options struct {
	Config  config.AppConfig
	Surface SurfaceFactory
	History *history.Store
	Hooks   Hooks
	// EmitPrint receives document bytes when the emit print handler is
	// configured.
	EmitPrint printing.EmitFunc
}

// New assembles a Viewer and starts its event loop. The surface is built
// lazily on the first load so a headless Start without a document stays
// cheap.
func New(opts Options) (*Viewer, error) {
	if opts.Surface == nil {
		return nil, errors.New("viewer: surface factory is required")
	}
	v := &Viewer{
		cfg:        opts.Config,
		hooks:      opts.Hooks,
		newSurface: opts.Surface,
		temp:       tempfiles.NewManager(),
		hist:       opts.History,
		logger:     applog.WithComponent("viewer"),
		loop:       make(chan func(), 64),
		done:       make(chan struct{}),
	}
	v.track = tracker.New(func(modified bool) {
		if v.hooks.ModifiedChanged != nil {
			v.hooks.ModifiedChanged(modified)
		}
	})
	v.printer = printing.NewManager(opts.Config.Print, v.temp, opts.EmitPrint)
	v.coord = coordinator.New(coordinator.Config{
		Policy:  opts.Config.Features.UnsavedChangesAction,
		Tracker: v.track,
		Hooks:   v.coordinatorHooks(),
		Timer:   v.loopTimer,
	})
	go v.run()
	telemetry.Event("viewer_start", map[string]any{
		"save_enabled":  opts.Config.Features.SaveEnabled,
		"print_enabled": opts.Config.Features.PrintEnabled,
	})
	return v, nil
}

func (v *Viewer) run() {
	defer close(v.done)
	for fn := range v.loop {
		fn()
	}
}

// post schedules fn on the event loop. Returns false once closed.
func (v *Viewer) post(fn func()) bool {
	defer func() { recover() }() // loop channel may close concurrently
	select {
	case v.loop <- fn:
		return true
	case <-v.done:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (v *Viewer) call(fn func()) error {
	ch := make(chan struct{})
	if !v.post(func() { defer close(ch); fn() }) {
		return ErrClosed
	}
	<-ch
	return nil
}

// loopTimer is the coordinator's timer factory: callbacks are posted onto
// the event loop so the state machine stays single-threaded.
func (v *Viewer) loopTimer(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, func() { v.post(fn) })
	return func() { t.Stop() }
}

// Close tears the viewer down: surface, temp files, loop.
func (v *Viewer) Close() error {
	err := v.call(func() {
		if v.closed {
			return
		}
		v.closed = true
		if v.surf != nil {
			_ = v.surf.Close()
			v.surf = nil
		}
		v.temp.Cleanup()
	})
	if err != nil {
		return err
	}
	close(v.loop)
	<-v.done
	return nil
}

// ---- document loading ----

// OpenFile loads a PDF from disk. The file is validated and copied into
// the temp area before the surface sees it, so later saves never race the
// original. Navigation defers behind an outstanding save.
func (v *Viewer) OpenFile(path string, opts surface.Options) error {
	if err := pdfinfo.ValidateFile(path); err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("viewer: resolve path: %w", err)
	}
	return v.call(func() {
		if v.closed {
			return
		}
		a := coordinator.Action{
			Kind: coordinator.ActionOpen,
			Name: filepath.Base(abs),
			Run:  func() { v.loadFile(abs, opts) },
		}
		v.coord.RequestNavigation(a)
	})
}

// OpenBytes loads a PDF from memory. The document has no source path; an
// auto-save falls back to interactive target selection and a crash cannot
// restore it.
func (v *Viewer) OpenBytes(data []byte, filename string, opts surface.Options) error {
	if !pdfinfo.IsPDF(data) {
		return pdfinfo.ErrNotPDF
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if filename == "" {
		filename = "document.pdf"
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return v.call(func() {
		if v.closed {
			return
		}
		a := coordinator.Action{
			Kind: coordinator.ActionOpen,
			Name: filename,
			Run:  func() { v.loadBytes(buf, filename, opts) },
		}
		v.coord.RequestNavigation(a)
	})
}

// ShowBlank clears the viewer. Defers behind an outstanding save like any
// navigation.
func (v *Viewer) ShowBlank() error {
	return v.call(func() {
		if v.closed {
			return
		}
		v.coord.RequestNavigation(coordinator.Action{
			Kind: coordinator.ActionBlank,
			Run:  v.loadBlank,
		})
	})
}

func (v *Viewer) loadFile(abs string, opts surface.Options) {
	tempPath, err := v.temp.CopyIn(abs)
	if err != nil {
		v.reportError(fmt.Errorf("viewer: stage document: %w", err))
		return
	}
	sess := &session{
		docID:      docIDForPath(abs),
		sourcePath: abs,
		tempPath:   tempPath,
		filename:   filepath.Base(abs),
	}
	v.startDocument(sess, opts)
}

func (v *Viewer) loadBytes(data []byte, filename string, opts surface.Options) {
	tempPath, err := v.temp.WriteBytes(filename, data)
	if err != nil {
		v.reportError(fmt.Errorf("viewer: stage document: %w", err))
		return
	}
	sess := &session{
		docID:      randomDocID(),
		tempPath:   tempPath,
		filename:   filename,
		fromMemory: true,
	}
	v.startDocument(sess, opts)
}

func (v *Viewer) startDocument(sess *session, opts surface.Options) {
	if opts.Page == 0 && v.hist != nil && !sess.fromMemory {
		if p := v.hist.LastPage(context.Background(), sess.docID); p > 1 {
			opts.Page = p
		}
	}
	sess.page = opts.Page
	if sess.page < 1 {
		sess.page = 1
	}
	surf, err := v.ensureSurface()
	if err != nil {
		v.reportError(err)
		return
	}
	v.sess = sess
	v.track.SetDocument(sess.docID)
	if err := surf.Load(context.Background(), fileURL(sess.tempPath), opts); err != nil {
		// No document is showing; keeping the session would fool the
		// crash supervisor into treating the load as restored.
		v.sess = nil
		v.track.Reset()
		v.reportError(fmt.Errorf("viewer: load document: %w", err))
		return
	}
	if !sess.fromMemory {
		if pw, err := documentPassword(sess.docID); err == nil && pw != "" {
			v.sendCommand(bridge.ProvidePassword{Password: pw})
		}
	}
	v.logger.Info("document loading",
		slog.String("doc", sess.filename), slog.Bool("from_memory", sess.fromMemory))
}

func (v *Viewer) loadBlank() {
	surf, err := v.ensureSurface()
	if err != nil {
		v.reportError(err)
		return
	}
	v.sess = nil
	v.track.Reset()
	if err := surf.Load(context.Background(), "", surface.Options{}); err != nil {
		v.reportError(fmt.Errorf("viewer: load blank: %w", err))
	}
}

func (v *Viewer) ensureSurface() (surface.Surface, error) {
	if v.surf != nil {
		return v.surf, nil
	}
	v.surfaceGen++
	gen := v.surfaceGen
	surf, err := v.newSurface(func(ev bridge.Event) {
		v.post(func() { v.handleEvent(gen, ev) })
	})
	if err != nil {
		return nil, fmt.Errorf("viewer: create surface: %w", err)
	}
	v.surf = surf
	return surf, nil
}

// ---- save, print, navigation commands ----

// Save starts an explicit save. saveAs forces target selection. The
// result arrives via the Saved or Error hook; a save while another is
// outstanding reports busy via Error.
func (v *Viewer) Save(saveAs bool) error {
	return v.call(func() {
		if v.closed || v.sess == nil {
			return
		}
		if d := v.coord.RequestDownload(saveAs); d == coordinator.Busy {
			v.reportError(errors.New("viewer: a save is already in progress"))
		}
	})
}

// Print captures the current document bytes (unsaved edits included) and
// runs the configured print handler. If a save is outstanding the print
// re-issues itself once the save resolves.
func (v *Viewer) Print() error {
	return v.call(func() { v.requestPrint() })
}

func (v *Viewer) requestPrint() {
	if v.closed || v.sess == nil {
		return
	}
	if v.printer.Busy() {
		v.reportError(printing.ErrBusy)
		return
	}
	v.coord.RequestPrintCapture(func() { v.requestPrint() })
}

// GotoPage navigates the viewer to a 1-based page.
func (v *Viewer) GotoPage(page int) error {
	if page < 1 {
		return fmt.Errorf("viewer: page number must be >= 1, got %d", page)
	}
	return v.call(func() {
		if v.closed || v.surf == nil {
			return
		}
		v.sendCommand(bridge.GotoPage{Page: page})
	})
}

// HasUnsavedChanges reports the tracker state.
func (v *Viewer) HasUnsavedChanges() bool { return v.track.HasUnsavedChanges() }

// Busy reports whether a save or print operation is still outstanding.
// Embedders use this to hold a window close until a deferred save commits.
func (v *Viewer) Busy() bool {
	busy := false
	_ = v.call(func() {
		busy = v.coord.State() != coordinator.Idle || v.printer.Busy()
	})
	return busy
}

// CurrentDocument returns the loaded document, ok=false when blank.
func (v *Viewer) CurrentDocument() (Document, bool) {
	var doc Document
	var ok bool
	_ = v.call(func() {
		if v.sess != nil {
			doc = Document{
				DocID:      v.sess.docID,
				Filename:   v.sess.filename,
				SourcePath: v.sess.sourcePath,
				PageCount:  v.sess.totalPages,
			}
			ok = true
		}
	})
	return doc, ok
}

// ---- event handling ----

func (v *Viewer) handleEvent(gen int, ev bridge.Event) {
	if v.closed {
		return
	}
	if gen != v.surfaceGen {
		// Event from a surface that was already replaced.
		v.logger.Debug("dropping stale surface event", slog.String("event", ev.String()))
		return
	}
	switch e := ev.(type) {
	case bridge.DocumentOpened:
		v.onDocumentOpened(e)
	case bridge.EditOccurred:
		v.track.MarkModified()
	case bridge.PageChanged:
		v.onPageChanged(e)
	case bridge.NavigationRequested:
		v.onExternalNavigation(e.URL)
	case bridge.PrintRequested:
		v.requestPrint()
	case bridge.ErrorEvent:
		v.reportError(fmt.Errorf("viewer: surface: %s", e.Message))
	case bridge.SurfaceTerminated:
		v.recoverFromCrash(e.Reason)
	default:
		v.coord.HandleEvent(ev)
	}
}

func (v *Viewer) onDocumentOpened(e bridge.DocumentOpened) {
	if v.sess == nil {
		return
	}
	if e.PageCount > 0 {
		v.sess.totalPages = e.PageCount
	}
	if v.recovering {
		v.recovering = false
		v.logger.Info("document restored after crash", slog.String("doc", v.sess.filename))
	}
	if v.hist != nil && !v.sess.fromMemory {
		err := v.hist.RecordOpen(context.Background(), history.Session{
			DocID:      v.sess.docID,
			SourcePath: v.sess.sourcePath,
			Filename:   v.sess.filename,
			LastPage:   v.sess.page,
			TotalPages: v.sess.totalPages,
		})
		if err != nil {
			v.logger.Warn("record open", slog.Any("err", err))
		}
	}
	if v.hooks.Loaded != nil {
		v.hooks.Loaded(Document{
			DocID:      v.sess.docID,
			Filename:   v.sess.filename,
			SourcePath: v.sess.sourcePath,
			PageCount:  v.sess.totalPages,
		})
	}
}

func (v *Viewer) onPageChanged(e bridge.PageChanged) {
	if v.sess == nil || e.Current < 1 {
		return
	}
	v.sess.page = e.Current
	if e.Total > 0 {
		v.sess.totalPages = e.Total
	}
	if v.hist != nil && !v.sess.fromMemory {
		if err := v.hist.UpdatePage(context.Background(), v.sess.docID, v.sess.page, v.sess.totalPages); err != nil && !errors.Is(err, history.ErrNotFound) {
			v.logger.Warn("update page", slog.Any("err", err))
		}
	}
	if v.hooks.PageChanged != nil {
		v.hooks.PageChanged(e.Current, v.sess.totalPages)
	}
}

// onExternalNavigation applies the security policy to a link clicked
// inside the surface. The viewer itself never follows external links.
func (v *Viewer) onExternalNavigation(rawURL string) {
	sec := v.cfg.Security
	if !sec.AllowExternalLinks {
		v.logger.Info("external link blocked", slog.String("url", rawURL))
		return
	}
	u, err := url.Parse(rawURL)
	if err != nil || !protocolAllowed(sec.AllowedProtocols, u.Scheme) {
		v.logger.Warn("external link with disallowed protocol", slog.String("url", rawURL))
		return
	}
	if sec.ConfirmBeforeExternalLink {
		if v.hooks.ConfirmExternalLink == nil || !v.hooks.ConfirmExternalLink(rawURL) {
			return
		}
	}
	if v.hooks.OpenExternal != nil {
		v.hooks.OpenExternal(rawURL)
	}
}

func protocolAllowed(allowed []string, scheme string) bool {
	scheme = strings.ToLower(scheme)
	if scheme == "" {
		return false
	}
	for _, p := range allowed {
		if strings.EqualFold(p, scheme) {
			return true
		}
	}
	return false
}

// ---- crash recovery ----

// recoverFromCrash replaces the dead surface and reloads the document.
// Re-entrant crashes while a recovery is running are ignored; stale-
// generation filtering drops events from the dead surface itself.
// Memory-loaded documents cannot be restored: their bytes lived in the
// renderer.
func (v *Viewer) recoverFromCrash(reason string) {
	if v.recovering {
		v.logger.Warn("crash while recovering, ignored", slog.String("reason", reason))
		return
	}
	v.recovering = true
	v.logger.Error("rendering surface terminated", slog.String("reason", reason))

	if v.surf != nil {
		_ = v.surf.Close()
		v.surf = nil
	}
	// Any outstanding save died with the surface.
	v.coord.HandleEvent(bridge.SaveFailed{Message: "rendering surface terminated"})

	sess := v.sess
	restored := false
	switch {
	case sess == nil:
		v.loadBlank()
	case sess.fromMemory:
		v.sess = nil
		v.loadBlank()
		v.reportError(fmt.Errorf("viewer: document %s was loaded from memory and cannot be restored after a crash", sess.filename))
	default:
		page := sess.page
		if page < 1 && v.hist != nil {
			page = v.hist.LastPage(context.Background(), sess.docID)
		}
		v.sess = nil
		v.loadFile(sess.sourcePath, surface.Options{Page: page})
		restored = v.sess != nil
	}
	if !restored {
		v.recovering = false
	}
	telemetry.Event("crash_recovery", map[string]any{"restored": restored})
	if v.hooks.Recovered != nil {
		v.hooks.Recovered(reason, restored)
	}
}

// ---- coordinator wiring ----

func (v *Viewer) coordinatorHooks() coordinator.Hooks {
	return coordinator.Hooks{
		SendCommand: v.sendCommand,
		PromptUnsavedChanges: func() coordinator.Choice {
			if v.hooks.PromptUnsavedChanges == nil {
				return coordinator.ChoiceCancel
			}
			return v.hooks.PromptUnsavedChanges()
		},
		PromptSaveTarget: func(suggested string) (string, bool) {
			if v.hooks.PromptSaveTarget == nil {
				return "", false
			}
			return v.hooks.PromptSaveTarget(suggested)
		},
		AutoSaveTarget:   v.autoSaveTarget,
		WriteFile:        func(path string, data []byte) error { return os.WriteFile(path, data, 0o644) },
		DeliverPrintData: v.deliverPrintData,
		Saved:            v.onSaved,
		ReportError:      v.reportError,
	}
}

func (v *Viewer) sendCommand(cmd bridge.Command) {
	if v.surf == nil {
		return
	}
	if err := v.surf.Send(context.Background(), cmd); err != nil && !errors.Is(err, surface.ErrClosed) {
		v.logger.Warn("send command", slog.String("cmd", cmd.String()), slog.Any("err", err))
	}
}

// autoSaveTarget returns the original path when it can still be written.
func (v *Viewer) autoSaveTarget() (string, bool) {
	if v.sess == nil || v.sess.fromMemory || v.sess.sourcePath == "" {
		return "", false
	}
	f, err := os.OpenFile(v.sess.sourcePath, os.O_WRONLY, 0)
	if err != nil {
		v.logger.Warn("original not writable, falling back to save-as",
			slog.String("path", v.sess.sourcePath), slog.Any("err", err))
		return "", false
	}
	f.Close()
	return v.sess.sourcePath, true
}

func (v *Viewer) onSaved(path string) {
	if v.sess != nil && v.hist != nil && !v.sess.fromMemory {
		if err := v.hist.RecordSaved(context.Background(), v.sess.docID, time.Now()); err != nil && !errors.Is(err, history.ErrNotFound) {
			v.logger.Warn("record saved", slog.Any("err", err))
		}
	}
	if v.hooks.Saved != nil {
		v.hooks.Saved(path)
	}
}

// deliverPrintData runs the print job off the loop; the result is posted
// back. The coordinator is idle again by the time this is called, so a
// long spool cannot block saves or navigation.
func (v *Viewer) deliverPrintData(data []byte) {
	pages := 1
	if v.sess != nil && v.sess.totalPages > 0 {
		pages = v.sess.totalPages
	} else if n := pdfinfo.PageCount(data); n > 0 {
		pages = n
	}
	go func() {
		res, err := v.printer.Print(data, pages)
		v.post(func() {
			if err != nil {
				v.reportError(err)
				return
			}
			if v.hooks.PrintCompleted != nil {
				v.hooks.PrintCompleted(res)
			}
		})
	}()
}

func (v *Viewer) reportError(err error) {
	v.logger.Error("viewer error", slog.Any("err", err))
	if v.hooks.Error != nil {
		v.hooks.Error(err)
	}
}

// ---- ids and urls ----

// docIDForPath derives a stable id from the absolute path, so reopening
// the same file finds its previous session.
func docIDForPath(abs string) string {
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:8])
}

func randomDocID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("mem-%d", time.Now().UnixNano())
	}
	return "mem-" + hex.EncodeToString(b[:])
}

func fileURL(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}
