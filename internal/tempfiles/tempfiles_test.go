/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package tempfiles

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestDirIsLazyAndStable(t *testing.T) {
	m := NewManager()
	defer m.Cleanup()

	d1, err := m.Dir()
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	if fi, err := os.Stat(d1); err != nil || !fi.IsDir() {
		t.Fatalf("dir not created: %v", err)
	}
	d2, err := m.Dir()
	if err != nil || d2 != d1 {
		t.Fatalf("Dir not stable: %q vs %q (%v)", d1, d2, err)
	}
}

func TestPathForDeduplicatesNames(t *testing.T) {
	m := NewManager()
	defer m.Cleanup()

	p1, err := m.PathFor("report.pdf")
	if err != nil {
		t.Fatalf("PathFor: %v", err)
	}
	p2, _ := m.PathFor("report.pdf")
	p3, _ := m.PathFor("report.pdf")

	if filepath.Base(p1) != "report.pdf" {
		t.Fatalf("first name mangled: %q", p1)
	}
	if filepath.Base(p2) != "report_1.pdf" || filepath.Base(p3) != "report_2.pdf" {
		t.Fatalf("duplicate counter wrong: %q, %q", p2, p3)
	}
}

func TestPathForStripsDirectories(t *testing.T) {
	m := NewManager()
	defer m.Cleanup()

	p, err := m.PathFor(filepath.Join("..", "..", "evil.pdf"))
	if err != nil {
		t.Fatalf("PathFor: %v", err)
	}
	d, _ := m.Dir()
	if filepath.Dir(p) != d {
		t.Fatalf("path escaped managed dir: %q", p)
	}
}

func TestWriteBytesAndCopyIn(t *testing.T) {
	m := NewManager()
	defer m.Cleanup()

	p, err := m.WriteBytes("doc.pdf", []byte("%PDF-1.4 test"))
	if err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil || string(b) != "%PDF-1.4 test" {
		t.Fatalf("written content mismatch: %q %v", b, err)
	}

	src := filepath.Join(t.TempDir(), "source.pdf")
	if err := os.WriteFile(src, []byte("%PDF-1.7 src"), 0o600); err != nil {
		t.Fatalf("prepare source: %v", err)
	}
	cp, err := m.CopyIn(src)
	if err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if !strings.HasSuffix(cp, "source.pdf") {
		t.Fatalf("copy name wrong: %q", cp)
	}
	b, err = os.ReadFile(cp)
	if err != nil || string(b) != "%PDF-1.7 src" {
		t.Fatalf("copied content mismatch: %q %v", b, err)
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	m := NewManager()
	d, err := m.Dir()
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Cleanup()
		}()
	}
	wg.Wait()
	m.Cleanup()

	if _, err := os.Stat(d); !os.IsNotExist(err) {
		t.Fatalf("dir still exists after cleanup: %v", err)
	}
	if _, err := m.Dir(); err != ErrClosed {
		t.Fatalf("expected ErrClosed after cleanup, got %v", err)
	}
	if _, err := m.PathFor("x.pdf"); err != ErrClosed {
		t.Fatalf("expected ErrClosed from PathFor, got %v", err)
	}
}
