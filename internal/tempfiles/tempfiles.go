/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package tempfiles manages the viewer's private temporary directory.
// Documents are copied here before loading and print jobs stage their
// input here. The directory is created lazily and removed exactly once
// on shutdown, no matter how many paths request cleanup.
package tempfiles

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	applog "pdfviewer/internal/log"
)

// ErrClosed is returned by operations on a Manager after Cleanup.
var ErrClosed = errors.New("tempfiles: manager closed")

// Manager owns one unique temp directory per viewer instance.
type Manager struct {
	mu     sync.Mutex
	dir    string // empty until first use
	closed bool
	names  map[string]int // duplicate-name counters
	logger *slog.Logger
}

// NewManager returns a Manager. No directory is created until the first
// file request.
func NewManager() *Manager {
	return &Manager{
		names:  make(map[string]int),
		logger: applog.WithComponent("tempfiles"),
	}
}

// Dir returns the managed directory, creating it on first call.
func (m *Manager) Dir() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirLocked()
}

func (m *Manager) dirLocked() (string, error) {
	if m.closed {
		return "", ErrClosed
	}
	if m.dir != "" {
		return m.dir, nil
	}
	d, err := os.MkdirTemp("", "pdfviewer_")
	if err != nil {
		return "", fmt.Errorf("tempfiles: create dir: %w", err)
	}
	m.dir = d
	m.logger.Debug("temp dir created", slog.String("dir", d))
	return d, nil
}

// PathFor reserves a file path under the managed directory. When the same
// base name is requested again a counter is inserted before the extension,
// so "report.pdf" becomes "report_1.pdf", "report_2.pdf" and so on.
func (m *Manager) PathFor(baseName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.dirLocked()
	if err != nil {
		return "", err
	}
	base := filepath.Base(baseName)
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "document.pdf"
	}
	n := m.names[base]
	m.names[base] = n + 1
	if n == 0 {
		return filepath.Join(d, base), nil
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(d, fmt.Sprintf("%s_%d%s", stem, n, ext)), nil
}

// WriteBytes stores data under a reserved name and returns the path.
func (m *Manager) WriteBytes(baseName string, data []byte) (string, error) {
	p, err := m.PathFor(baseName)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", fmt.Errorf("tempfiles: write %s: %w", p, err)
	}
	return p, nil
}

// CopyIn copies src into the managed directory, keeping its base name
// (deduplicated) and returns the new path.
func (m *Manager) CopyIn(src string) (string, error) {
	dst, err := m.PathFor(filepath.Base(src))
	if err != nil {
		return "", err
	}
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("tempfiles: open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("tempfiles: create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("tempfiles: copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("tempfiles: close %s: %w", dst, err)
	}
	return dst, nil
}

// Cleanup removes the managed directory. It is idempotent: concurrent and
// repeated calls after the first are no-ops. The manager is unusable
// afterwards.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	dir := m.dir
	m.dir = ""
	m.mu.Unlock()

	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		// Best effort; a locked file on Windows can survive until reboot.
		m.logger.Warn("temp dir cleanup failed", slog.String("dir", dir), slog.String("error", err.Error()))
		return
	}
	m.logger.Debug("temp dir removed", slog.String("dir", dir))
}
