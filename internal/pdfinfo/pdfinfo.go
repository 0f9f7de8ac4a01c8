/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package pdfinfo answers two cheap questions about raw PDF bytes: is this a
// PDF at all, and roughly how many pages does it have. It does not parse the
// document; the page count is a byte-level heuristic used only to prime the
// print worker's progress display.
package pdfinfo

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
)

// ErrNotPDF is returned when the magic bytes are missing.
var ErrNotPDF = errors.New("pdfinfo: not a PDF document")

var pdfMagic = []byte("%PDF")

// IsPDF reports whether data starts with the PDF magic bytes.
func IsPDF(data []byte) bool {
	return len(data) >= len(pdfMagic) && bytes.Equal(data[:len(pdfMagic)], pdfMagic)
}

// ValidateFile checks that the file exists and carries the PDF magic bytes.
func ValidateFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("pdfinfo: open %s: %w", path, err)
	}
	defer f.Close()
	header := make([]byte, len(pdfMagic))
	if _, err := f.Read(header); err != nil {
		return fmt.Errorf("%w: %s", ErrNotPDF, path)
	}
	if !bytes.Equal(header, pdfMagic) {
		return fmt.Errorf("%w: %s", ErrNotPDF, path)
	}
	return nil
}

// countRe matches the page-tree count entry, /Count N.
var countRe = regexp.MustCompile(`/Type\s*/Pages[^>]*?/Count\s+(\d+)`)

// pageRe matches individual page objects. The negative check for "/Pages" is
// done via the boundary: "/Type /Page" must not be followed by "s".
var pageRe = regexp.MustCompile(`/Type\s*/Page([^s]|$)`)

// PageCount estimates the number of pages in data. When the count cannot be
// determined it returns 1, never 0; the result only drives the print
// dialog's page range and progress display.
func PageCount(data []byte) int {
	if !IsPDF(data) {
		return 1
	}
	// Prefer the page tree's own /Count entry; take the largest in case of
	// nested page trees or incremental updates.
	best := 0
	for _, m := range countRe.FindAllSubmatch(data, -1) {
		if n, err := strconv.Atoi(string(m[1])); err == nil && n > best {
			best = n
		}
	}
	if best > 0 {
		return best
	}
	if n := len(pageRe.FindAllIndex(data, -1)); n > 0 {
		return n
	}
	return 1
}
