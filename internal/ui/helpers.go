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
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// appName is the window and preference namespace.
const appName = "PDF Viewer"

// EnvViewerBase overrides the location of the PDF.js viewer page.
const EnvViewerBase = "PDFV_VIEWER_URL"

// resolveViewerBase locates viewer.html. Order: explicit env override, a
// pdfjs tree next to the executable, then a shared install location.
func resolveViewerBase() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvViewerBase)); v != "" {
		return v, nil
	}
	var candidates []string
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "pdfjs", "web", "viewer.html"))
	}
	candidates = append(candidates,
		filepath.Join(string(filepath.Separator), "usr", "share", "pdfviewer", "pdfjs", "web", "viewer.html"),
		filepath.Join(string(filepath.Separator), "usr", "local", "share", "pdfviewer", "pdfjs", "web", "viewer.html"),
	)
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return "file://" + filepath.ToSlash(c), nil
		}
	}
	return "", fmt.Errorf("ui: PDF.js viewer not found; set %s to its viewer.html", EnvViewerBase)
}

// suggestedSaveName derives the save dialog's preset filename.
func suggestedSaveName(suggested, currentFile string) string {
	name := strings.TrimSpace(suggested)
	if name == "" {
		name = strings.TrimSpace(currentFile)
	}
	if name == "" {
		name = "document.pdf"
	}
	name = filepath.Base(name)
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

// windowTitle renders the title bar: file name, a modified marker and the
// application name.
func windowTitle(filename string, modified bool) string {
	if filename == "" {
		return appName
	}
	marker := ""
	if modified {
		marker = "* "
	}
	return fmt.Sprintf("%s%s - %s", marker, filename, appName)
}

// pageLabel renders the status bar page indicator.
func pageLabel(current, total int) string {
	if total < 1 {
		return ""
	}
	if current < 1 {
		current = 1
	}
	return fmt.Sprintf("%d / %d", current, total)
}
