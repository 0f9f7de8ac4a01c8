/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package surface

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/rod/lib/launcher"

	"pdfviewer/internal/bridge"
	"pdfviewer/internal/config"
	applog "pdfviewer/internal/log"
)

// Chromium runs the PDF.js viewer in an embedded Chromium instance driven
// over the DevTools protocol. One Chromium hosts one viewer tab; on a
// renderer crash the owner discards the whole surface and builds a new one.
//
// Chromium is not safe for concurrent use. The owner serializes access the
// same way it serializes the rest of the backend.
type Chromium struct {
	viewerBase string
	handler    bridge.Handler
	logger     *slog.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewChromium starts a browser with the configured stability switches and
// installs the host bridge in the viewer page. viewerBase is the URL of
// viewer.html; handler receives all inbound events.
func NewChromium(cfg config.StabilityConfig, viewerBase string, handler bridge.Handler) (*Chromium, error) {
	if handler == nil {
		return nil, fmt.Errorf("surface: nil event handler")
	}
	l := applog.WithComponent("surface")

	bin, err := resolveBrowser()
	if err != nil {
		return nil, err
	}

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(bin),
		chromedp.Flag("headless", false),
	)
	allocOpts = append(allocOpts, flagOptions(cfg.ChromiumArgs())...)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser eagerly so errors surface at creation time.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("surface: starting browser: %w", err)
	}

	c := &Chromium{
		viewerBase:    viewerBase,
		handler:       handler,
		logger:        l,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}

	chromedp.ListenTarget(browserCtx, c.onTargetEvent)

	err = chromedp.Run(browserCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return runtime.AddBinding(hostBindingName).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(bootstrapJS).Do(ctx)
			return err
		}),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("surface: installing bridge: %w", err)
	}
	l.Debug("surface ready", slog.String("browser", bin))
	return c, nil
}

// resolveBrowser downloads a compatible Chromium binary if one is not
// already cached and returns the path to the executable.
func resolveBrowser() (string, error) {
	path, err := launcher.NewBrowser().Get()
	if err != nil {
		return "", fmt.Errorf("surface: resolving browser: %w", err)
	}
	return path, nil
}

// flagOptions translates command-line style switches (--name, --name=value)
// into allocator options.
func flagOptions(args []string) []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	for _, a := range args {
		a = strings.TrimPrefix(a, "--")
		if a == "" {
			continue
		}
		if name, value, ok := strings.Cut(a, "="); ok {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(a, true))
		}
	}
	return opts
}

func (c *Chromium) onTargetEvent(ev any) {
	switch e := ev.(type) {
	case *runtime.EventBindingCalled:
		if e.Name != hostBindingName {
			return
		}
		evt, err := decodeEvent(e.Payload)
		if err != nil {
			c.logger.Warn("dropping malformed viewer event", slog.Any("err", err))
			return
		}
		c.handler(evt)
	case *inspector.EventTargetCrashed:
		c.logger.Error("renderer crashed")
		c.handler(bridge.SurfaceTerminated{Reason: "renderer crashed"})
	case *inspector.EventDetached:
		c.logger.Error("devtools detached", slog.String("reason", string(e.Reason)))
		c.handler(bridge.SurfaceTerminated{Reason: string(e.Reason)})
	}
}

// Load navigates the viewer to a document.
func (c *Chromium) Load(ctx context.Context, fileURL string, opts Options) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	u, err := ViewerURL(c.viewerBase, fileURL, opts)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := chromedp.Run(c.browserCtx, chromedp.Navigate(u)); err != nil {
		return fmt.Errorf("surface: navigate: %w", err)
	}
	return nil
}

// Send dispatches a command into the viewer page. Fire-and-forget: a
// successful return means the page received the command, not that it acted
// on it.
func (c *Chromium) Send(ctx context.Context, cmd bridge.Command) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	payload, err := encodeCommand(cmd)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	expr := fmt.Sprintf(
		"window.dispatchEvent(new CustomEvent('pdfviewer-host-command', {detail: %s}))", payload)
	if err := chromedp.Run(c.browserCtx, chromedp.Evaluate(expr, nil)); err != nil {
		return fmt.Errorf("surface: send %s: %w", cmd, err)
	}
	return nil
}

// Close shuts the browser down. Idempotent.
func (c *Chromium) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.browserCancel()
	c.allocCancel()
	return nil
}

func (c *Chromium) checkClosed() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// bootstrapJS runs before the viewer page's own scripts. It forwards the
// viewer's event bus into the host binding and executes host commands. The
// binding only accepts strings, hence the JSON envelopes.
const bootstrapJS = `(() => {
  const post = (msg) => {
    try { window.` + hostBindingName + `(JSON.stringify(msg)); } catch (e) {}
  };
  const b64 = (bytes) => {
    let s = '';
    for (let i = 0; i < bytes.length; i += 0x8000) {
      s += String.fromCharCode.apply(null, bytes.subarray(i, i + 0x8000));
    }
    return btoa(s);
  };

  const hook = () => {
    const app = window.PDFViewerApplication;
    if (!app || !app.initializedPromise) { setTimeout(hook, 50); return; }
    app.initializedPromise.then(() => {
      const bus = app.eventBus;
      bus.on('documentloaded', () => {
        post({type: 'document-opened',
              page_count: app.pagesCount,
              title: app._title || app._docFilename || ''});
      });
      bus.on('annotationeditorstateschanged', () => post({type: 'edit-occurred'}));
      bus.on('dispatcheventinsandbox', () => post({type: 'edit-occurred'}));
      bus.on('pagechanging', (e) => {
        post({type: 'page-changed', current: e.pageNumber, total: app.pagesCount});
      });
      bus.on('print', () => post({type: 'print-requested'}));

      window.addEventListener('pdfviewer-host-command', async (ev) => {
        const cmd = ev.detail || {};
        switch (cmd.command) {
          case 'trigger-save': {
            post({type: 'save-started'});
            try {
              const data = await app.pdfDocument.saveDocument();
              post({type: 'save-data-ready', data: b64(data),
                    suggested_name: app._docFilename || 'document.pdf'});
            } catch (e) {
              post({type: 'save-failed', message: String(e)});
            }
            break;
          }
          case 'exit-edit-mode':
            bus.dispatch('switchannotationeditormode', {mode: 0});
            break;
          case 'suppress-unsaved-warning':
            app._saveInProgress = false;
            window.onbeforeunload = null;
            break;
          case 'mark-saved':
            if (app.pdfDocument && app.pdfDocument.annotationStorage) {
              app.pdfDocument.annotationStorage.resetModified();
            }
            break;
          case 'goto-page':
            app.page = cmd.page;
            break;
          case 'provide-password': {
            const prompt = app.passwordPrompt;
            if (prompt && cmd.password) {
              const stored = cmd.password;
              const origOpen = prompt.open.bind(prompt);
              let used = false;
              prompt.open = function () {
                // answer with the stored password once, then fall back to
                // the interactive prompt if it was rejected
                if (!used && typeof prompt.updateCallback === 'function') {
                  used = true;
                  prompt.updateCallback(stored);
                  return Promise.resolve();
                }
                return origOpen();
              };
            }
            break;
          }
        }
      });
    });
  };
  hook();

  window.addEventListener('error', (e) => {
    post({type: 'error', message: String(e.message || e)});
  });
})();`
