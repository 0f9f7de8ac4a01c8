/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package surface hosts the rendering surface: the embedded browser that runs
// the PDF.js viewer. The backend only sees the Surface interface and the
// bridge message types; the Chromium implementation lives behind it so the
// state machines can be driven by a fake in tests.
package surface

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"pdfviewer/internal/bridge"
)

// ErrClosed is returned from operations on a closed surface.
var ErrClosed = errors.New("surface: closed")

// Surface is a running viewer instance. Implementations deliver inbound
// bridge events to the handler they were created with; Send is
// fire-and-forget, its only observable outcome is a later event.
type Surface interface {
	// Load navigates the viewer to a document. fileURL is the already
	// encoded URL of the PDF; empty shows the blank viewer.
	Load(ctx context.Context, fileURL string, opts Options) error
	// Send delivers a command to the viewer page.
	Send(ctx context.Context, cmd bridge.Command) error
	// Close tears the surface down. Idempotent.
	Close() error
}

// Options select the initial viewer state for a document.
type Options struct {
	// Page is the 1-based page to open, 0 for the viewer default.
	Page int
	// Zoom is a named mode (page-width, page-height, page-fit, auto) or a
	// percentage between 10 and 1000, e.g. "150". Empty for the default.
	Zoom string
	// PageMode selects the sidebar: none, thumbs, bookmarks or attachments.
	PageMode string
	// NamedDest jumps to a named destination inside the document.
	NamedDest string
}

var (
	zoomModes = map[string]bool{"page-width": true, "page-height": true, "page-fit": true, "auto": true}
	pageModes = map[string]bool{"none": true, "thumbs": true, "bookmarks": true, "attachments": true}
)

// Validate checks the option values without touching a browser.
func (o Options) Validate() error {
	if o.Page < 0 {
		return fmt.Errorf("surface: page number must be >= 1, got %d", o.Page)
	}
	if o.Zoom != "" && !zoomModes[o.Zoom] {
		pct, err := strconv.ParseFloat(o.Zoom, 64)
		if err != nil {
			return fmt.Errorf("surface: invalid zoom mode %q", o.Zoom)
		}
		if pct < 10 || pct > 1000 {
			return fmt.Errorf("surface: zoom percentage must be between 10 and 1000, got %s", o.Zoom)
		}
	}
	if o.PageMode != "" && !pageModes[o.PageMode] {
		return fmt.Errorf("surface: invalid pagemode %q", o.PageMode)
	}
	return nil
}

// ViewerURL builds the viewer URL for a document. viewerBase is the URL of
// the PDF.js viewer.html, fileURL the encoded document URL (empty for the
// blank viewer). Options become the viewer's fragment parameters.
func ViewerURL(viewerBase, fileURL string, opts Options) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	u, err := url.Parse(viewerBase)
	if err != nil {
		return "", fmt.Errorf("surface: parse viewer url: %w", err)
	}
	q := url.Values{}
	q.Set("file", fileURL)
	u.RawQuery = q.Encode()

	var frags []string
	if opts.Page > 0 {
		frags = append(frags, "page="+strconv.Itoa(opts.Page))
	}
	if opts.Zoom != "" {
		frags = append(frags, "zoom="+opts.Zoom)
	}
	if opts.PageMode != "" {
		frags = append(frags, "pagemode="+opts.PageMode)
	}
	if opts.NamedDest != "" {
		frags = append(frags, "nameddest="+url.PathEscape(opts.NamedDest))
	}
	if len(frags) > 0 {
		u.Fragment = strings.Join(frags, "&")
	}
	return u.String(), nil
}
