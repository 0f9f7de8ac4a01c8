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
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"pdfviewer/internal/bridge"
)

func TestViewerURL(t *testing.T) {
	base := "file:///opt/pdfjs/web/viewer.html"

	got, err := ViewerURL(base, "file:///tmp/doc.pdf", Options{})
	if err != nil {
		t.Fatalf("ViewerURL: %v", err)
	}
	if !strings.Contains(got, "file=file%3A%2F%2F%2Ftmp%2Fdoc.pdf") {
		t.Fatalf("file param not encoded: %s", got)
	}
	if strings.Contains(got, "#") {
		t.Fatalf("unexpected fragment without options: %s", got)
	}

	got, err = ViewerURL(base, "file:///tmp/doc.pdf", Options{
		Page: 5, Zoom: "page-width", PageMode: "thumbs", NamedDest: "chapter2",
	})
	if err != nil {
		t.Fatalf("ViewerURL(opts): %v", err)
	}
	frag := got[strings.Index(got, "#")+1:]
	for _, want := range []string{"page=5", "zoom=page-width", "pagemode=thumbs", "nameddest=chapter2"} {
		if !strings.Contains(frag, want) {
			t.Errorf("fragment missing %q: %s", want, frag)
		}
	}
}

func TestViewerURLBlank(t *testing.T) {
	got, err := ViewerURL("file:///opt/pdfjs/web/viewer.html", "", Options{})
	if err != nil {
		t.Fatalf("ViewerURL: %v", err)
	}
	if !strings.Contains(got, "file=") {
		t.Fatalf("blank viewer must keep an empty file param: %s", got)
	}
}

func TestOptionsValidate(t *testing.T) {
	valid := []Options{
		{},
		{Page: 1},
		{Zoom: "auto"},
		{Zoom: "150"},
		{Zoom: "10"},
		{Zoom: "1000"},
		{PageMode: "bookmarks"},
	}
	for _, o := range valid {
		if err := o.Validate(); err != nil {
			t.Errorf("Validate(%+v) = %v, want nil", o, err)
		}
	}

	invalid := []Options{
		{Page: -1},
		{Zoom: "huge"},
		{Zoom: "9"},
		{Zoom: "1001"},
		{PageMode: "sidebar"},
	}
	for _, o := range invalid {
		if err := o.Validate(); err == nil {
			t.Errorf("Validate(%+v) accepted invalid options", o)
		}
	}
}

func TestDecodeEvent(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte("%PDF-1.7 data"))
	cases := []struct {
		payload string
		want    bridge.Event
	}{
		{`{"type":"document-opened","page_count":12,"title":"report"}`,
			bridge.DocumentOpened{PageCount: 12, Title: "report"}},
		{`{"type":"edit-occurred"}`, bridge.EditOccurred{}},
		{`{"type":"save-started"}`, bridge.SaveStarted{}},
		{`{"type":"save-failed","message":"boom"}`, bridge.SaveFailed{Message: "boom"}},
		{`{"type":"navigation-requested","url":"https://example.com"}`,
			bridge.NavigationRequested{URL: "https://example.com"}},
		{`{"type":"print-requested"}`, bridge.PrintRequested{}},
		{`{"type":"page-changed","current":3,"total":9}`, bridge.PageChanged{Current: 3, Total: 9}},
		{`{"type":"error","message":"oops"}`, bridge.ErrorEvent{Message: "oops"}},
	}
	for _, c := range cases {
		got, err := decodeEvent(c.payload)
		if err != nil {
			t.Fatalf("decodeEvent(%s): %v", c.payload, err)
		}
		if got != c.want {
			t.Errorf("decodeEvent(%s) = %#v, want %#v", c.payload, got, c.want)
		}
	}

	got, err := decodeEvent(`{"type":"save-data-ready","data":"` + raw + `","suggested_name":"a.pdf"}`)
	if err != nil {
		t.Fatalf("decodeEvent(save-data-ready): %v", err)
	}
	sd, ok := got.(bridge.SaveDataReady)
	if !ok || string(sd.Data) != "%PDF-1.7 data" || sd.SuggestedName != "a.pdf" {
		t.Fatalf("save-data-ready mismatch: %#v", got)
	}
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	if _, err := decodeEvent("not json"); err == nil {
		t.Fatalf("malformed JSON accepted")
	}
	if _, err := decodeEvent(`{"type":"telemetry-blob"}`); err == nil {
		t.Fatalf("unknown event type accepted")
	}
	if _, err := decodeEvent(`{"type":"save-data-ready","data":"%%%"}`); err == nil {
		t.Fatalf("bad base64 accepted")
	}
}

func TestEncodeCommand(t *testing.T) {
	cases := []struct {
		cmd  bridge.Command
		want string
	}{
		{bridge.TriggerSave{}, `{"command":"trigger-save"}`},
		{bridge.ExitEditMode{}, `{"command":"exit-edit-mode"}`},
		{bridge.SuppressUnsavedWarning{}, `{"command":"suppress-unsaved-warning"}`},
		{bridge.MarkSaved{}, `{"command":"mark-saved"}`},
		{bridge.GotoPage{Page: 7}, `{"command":"goto-page","page":7}`},
		{bridge.ProvidePassword{Password: "hunch"}, `{"command":"provide-password","password":"hunch"}`},
	}
	for _, c := range cases {
		got, err := encodeCommand(c.cmd)
		if err != nil {
			t.Fatalf("encodeCommand(%s): %v", c.cmd, err)
		}
		if got != c.want {
			t.Errorf("encodeCommand(%s) = %s, want %s", c.cmd, got, c.want)
		}
	}
}

func TestEncodeCommandIsValidJSON(t *testing.T) {
	s, err := encodeCommand(bridge.GotoPage{Page: 2})
	if err != nil {
		t.Fatalf("encodeCommand: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("not valid JSON: %v", err)
	}
}

func TestFlagOptions(t *testing.T) {
	opts := flagOptions([]string{"--disable-gpu", "--force-color-profile=srgb", "", "--no-sandbox"})
	if len(opts) != 3 {
		t.Fatalf("flagOptions returned %d options, want 3", len(opts))
	}
}
