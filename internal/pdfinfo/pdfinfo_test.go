/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package pdfinfo

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jung-kurt/gofpdf"
)

// makePDF renders a real PDF with the given number of pages.
func makePDF(t *testing.T, pages int) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for i := 0; i < pages; i++ {
		pdf.AddPage()
		pdf.Cell(40, 10, "page")
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("generate pdf: %v", err)
	}
	return buf.Bytes()
}

func TestIsPDF(t *testing.T) {
	if !IsPDF(makePDF(t, 1)) {
		t.Fatalf("real PDF not recognized")
	}
	if IsPDF([]byte("not a pdf")) {
		t.Fatalf("garbage recognized as PDF")
	}
	if IsPDF([]byte("%PD")) {
		t.Fatalf("truncated magic accepted")
	}
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.pdf")
	if err := os.WriteFile(good, makePDF(t, 1), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := ValidateFile(good); err != nil {
		t.Fatalf("ValidateFile(good): %v", err)
	}

	bad := filepath.Join(dir, "bad.pdf")
	if err := os.WriteFile(bad, []byte("<html></html>"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := ValidateFile(bad); !errors.Is(err, ErrNotPDF) {
		t.Fatalf("ValidateFile(bad) = %v, want ErrNotPDF", err)
	}

	if err := ValidateFile(filepath.Join(dir, "missing.pdf")); err == nil {
		t.Fatalf("missing file accepted")
	}
}

func TestPageCount(t *testing.T) {
	for _, pages := range []int{1, 2, 9} {
		data := makePDF(t, pages)
		if got := PageCount(data); got != pages {
			t.Fatalf("PageCount = %d, want %d", got, pages)
		}
	}
}

func TestPageCountFallsBackToOne(t *testing.T) {
	if got := PageCount([]byte("junk")); got != 1 {
		t.Fatalf("PageCount(junk) = %d, want 1", got)
	}
	// valid magic but no page objects
	if got := PageCount([]byte("%PDF-1.4\n%%EOF")); got != 1 {
		t.Fatalf("PageCount(empty pdf) = %d, want 1", got)
	}
}
