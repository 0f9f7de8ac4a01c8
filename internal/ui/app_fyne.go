//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"pdfviewer/internal/bridge"
	"pdfviewer/internal/config"
	"pdfviewer/internal/coordinator"
	"pdfviewer/internal/crash"
	"pdfviewer/internal/history"
	"pdfviewer/internal/i18n"
	applog "pdfviewer/internal/log"
	"pdfviewer/internal/printing"
	"pdfviewer/internal/surface"
	"pdfviewer/internal/viewer"
)

// Run starts the Fyne-based desktop shell around the viewer backend. An
// optional file path is opened immediately.
func Run(openPath string) error {
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("ui")
	l.Info("starting UI")

	crashInfo := &crash.Info{}
	defer func() { crash.Recover(crashInfo) }()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("ui: load config: %w", err)
	}
	msgs := i18n.New(cfg.General.Locale)

	viewerBase, err := resolveViewerBase()
	if err != nil {
		return err
	}

	var hist *history.Store
	if histPath, err := history.DefaultPath(); err == nil {
		if hist, err = history.Open(histPath); err != nil {
			l.Warn("session store unavailable", slog.Any("err", err))
			hist = nil
		} else {
			defer hist.Close()
		}
	}

	fyneApp := app.NewWithID("pdfviewer")
	w := fyneApp.NewWindow(appName)
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1100)
	winH := prefs.IntWithFallback("window.height", 800)
	if winW < 640 {
		winW = 640
	}
	if winH < 480 {
		winH = 480
	}
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	status := widget.NewLabel("Ready")
	pageInfo := widget.NewLabel("")
	setStatus := func(s string) { fyne.Do(func() { status.SetText(s) }) }

	var currentFile string
	setTitle := func(modified bool) {
		fyne.Do(func() { w.SetTitle(windowTitle(currentFile, modified)) })
	}

	// The coordinator's prompt hooks run on the backend loop and must
	// return synchronously; each one shows a dialog on the Fyne thread and
	// blocks on a channel for the user's answer.
	promptUnsaved := func() coordinator.Choice {
		ch := make(chan coordinator.Choice, 1)
		fyne.Do(func() {
			var d *dialog.CustomDialog
			pick := func(c coordinator.Choice) func() {
				return func() {
					// answer before Hide: the close callback sends a
					// cancel for dismissals and must find the buffer full
					ch <- c
					d.Hide()
				}
			}
			buttons := container.NewHBox(
				widget.NewButton(msgs.T("unsaved.save_as"), pick(coordinator.ChoiceSaveAs)),
				widget.NewButton(msgs.T("unsaved.save"), pick(coordinator.ChoiceSave)),
				widget.NewButton(msgs.T("unsaved.discard"), pick(coordinator.ChoiceDiscard)),
				widget.NewButton(msgs.T("unsaved.cancel"), pick(coordinator.ChoiceCancel)),
			)
			body := container.NewVBox(widget.NewLabel(msgs.T("unsaved.message")), buttons)
			d = dialog.NewCustomWithoutButtons(msgs.T("unsaved.title"), body, w)
			d.SetOnClosed(func() {
				select {
				case ch <- coordinator.ChoiceCancel:
				default:
				}
			})
			d.Show()
		})
		return <-ch
	}

	promptSaveTarget := func(suggested string) (string, bool) {
		type answer struct {
			path string
			ok   bool
		}
		ch := make(chan answer, 1)
		fyne.Do(func() {
			save := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
				if err != nil || uc == nil {
					ch <- answer{}
					return
				}
				path := uc.URI().Path()
				_ = uc.Close()
				ch <- answer{path: path, ok: true}
			}, w)
			save.SetFileName(suggestedSaveName(suggested, currentFile))
			save.SetFilter(fstorage.NewExtensionFileFilter([]string{".pdf"}))
			save.Show()
		})
		a := <-ch
		return a.path, a.ok
	}

	confirmExternal := func(url string) bool {
		ch := make(chan bool, 1)
		fyne.Do(func() {
			dialog.ShowConfirm(appName, "Open external link?\n\n"+url, func(ok bool) { ch <- ok }, w)
		})
		return <-ch
	}

	openExternal := func(url string) {
		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "windows":
			cmd = exec.Command("cmd", "/C", "start", "", url)
		case "darwin":
			cmd = exec.Command("open", url)
		default:
			cmd = exec.Command("xdg-open", url)
		}
		if err := cmd.Start(); err != nil {
			l.Warn("open external link", slog.Any("err", err))
		}
	}

	v, err := viewer.New(viewer.Options{
		Config: cfg,
		Surface: func(handler bridge.Handler) (surface.Surface, error) {
			return surface.NewChromium(cfg.Stability, viewerBase, handler)
		},
		History: hist,
		Hooks: viewer.Hooks{
			Loaded: func(doc viewer.Document) {
				currentFile = doc.Filename
				crashInfo.DocumentPath = doc.SourcePath
				setTitle(false)
				setStatus(doc.Filename)
				fyne.Do(func() { pageInfo.SetText(pageLabel(1, doc.PageCount)) })
			},
			Saved: func(path string) {
				setTitle(false)
				setStatus("Saved " + path)
				if cfg.General.AutoOpenFolderOnSave {
					// keep the save unobtrusive, just report it
					l.Info("document saved", slog.String("path", path))
				}
			},
			ModifiedChanged: func(modified bool) { setTitle(modified) },
			PageChanged: func(current, total int) {
				crashInfo.Page = current
				fyne.Do(func() { pageInfo.SetText(pageLabel(current, total)) })
			},
			PrintCompleted: func(res printing.Result) {
				if res.Success {
					setStatus(res.Message)
				} else {
					setStatus(msgs.T("print.cancelled"))
				}
			},
			Error: func(err error) {
				l.Error("viewer error", slog.Any("err", err))
				fyne.Do(func() { dialog.ShowError(err, w) })
			},
			Recovered: func(reason string, restored bool) {
				if restored {
					setStatus(msgs.T("recovery.in_progress"))
				} else {
					setStatus(msgs.T("recovery.lost"))
				}
			},
			PromptUnsavedChanges: promptUnsaved,
			PromptSaveTarget:     promptSaveTarget,
			ConfirmExternalLink:  confirmExternal,
			OpenExternal:         openExternal,
		},
	})
	if err != nil {
		return err
	}
	defer v.Close()

	openFileDialog := func() {
		open := dialog.NewFileOpen(func(ur fyne.URIReadCloser, err error) {
			if err != nil || ur == nil {
				return
			}
			path := ur.URI().Path()
			_ = ur.Close()
			go func() {
				if err := v.OpenFile(path, surface.Options{Zoom: cfg.General.DefaultZoom}); err != nil {
					fyne.Do(func() { dialog.ShowError(err, w) })
				}
			}()
		}, w)
		open.SetFilter(fstorage.NewExtensionFileFilter([]string{".pdf"}))
		open.Show()
	}

	gotoPageDialog := func() {
		entry := widget.NewEntry()
		entry.SetPlaceHolder("Page number")
		dialog.ShowForm("Go to Page", "Go", "Cancel",
			[]*widget.FormItem{widget.NewFormItem("Page", entry)},
			func(ok bool) {
				if !ok {
					return
				}
				page, err := strconv.Atoi(strings.TrimSpace(entry.Text))
				if err != nil || page < 1 {
					return
				}
				go func() { _ = v.GotoPage(page) }()
			}, w)
	}

	toolbar := container.NewHBox(
		widget.NewButton(msgs.T("open.dialog.title"), openFileDialog),
		widget.NewButton(msgs.T("unsaved.save"), func() {
			if !cfg.Features.SaveEnabled {
				return
			}
			go func() { _ = v.Save(false) }()
		}),
		widget.NewButton(msgs.T("unsaved.save_as"), func() {
			if !cfg.Features.SaveEnabled {
				return
			}
			go func() { _ = v.Save(true) }()
		}),
		widget.NewButton(msgs.T("print.dialog.title"), func() {
			if !cfg.Features.PrintEnabled {
				return
			}
			go func() { _ = v.Print() }()
		}),
		widget.NewButton("Go to Page", gotoPageDialog),
	)

	recentList := widget.NewLabel("")
	if hist != nil {
		if sessions, err := hist.Recent(context.Background(), 5); err == nil && len(sessions) > 0 {
			var names []string
			for _, s := range sessions {
				names = append(names, s.Filename)
			}
			recentList.SetText("Recent: " + strings.Join(names, ", "))
		}
	}

	statusBar := container.NewHBox(status, widget.NewSeparator(), pageInfo)
	w.SetContent(container.NewBorder(toolbar, container.NewVBox(recentList, statusBar), nil, nil, widget.NewLabel("")))

	w.SetCloseIntercept(func() {
		go func() {
			// ShowBlank runs the unsaved-changes policy before the
			// window goes away. A chosen save is only deferred at this
			// point; the window must stay up until it has committed.
			_ = v.ShowBlank()
			deadline := time.Now().Add(2 * time.Minute)
			for v.Busy() && time.Now().Before(deadline) {
				time.Sleep(100 * time.Millisecond)
			}
			fyne.Do(func() {
				sz := w.Canvas().Size()
				prefs.SetInt("window.width", int(sz.Width))
				prefs.SetInt("window.height", int(sz.Height))
				w.Close()
			})
		}()
	})

	if openPath != "" {
		go func() {
			if err := v.OpenFile(openPath, surface.Options{Zoom: cfg.General.DefaultZoom}); err != nil {
				fyne.Do(func() { dialog.ShowError(err, w) })
			}
		}()
	}

	w.ShowAndRun()
	return nil
}
