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
	"fmt"

	"pdfviewer/internal/bridge"
)

// hostBindingName is the function the bootstrap script exposes on the page
// for event delivery into the backend.
const hostBindingName = "pdfviewerHostEvent"

// wireEvent is the JSON envelope the viewer page posts through the host
// binding. Only the fields for the given type are set.
type wireEvent struct {
	Type          string `json:"type"`
	PageCount     int    `json:"page_count,omitempty"`
	Title         string `json:"title,omitempty"`
	Data          string `json:"data,omitempty"` // base64
	SuggestedName string `json:"suggested_name,omitempty"`
	Message       string `json:"message,omitempty"`
	URL           string `json:"url,omitempty"`
	Current       int    `json:"current,omitempty"`
	Total         int    `json:"total,omitempty"`
}

// decodeEvent parses a host-binding payload into a bridge event.
func decodeEvent(payload string) (bridge.Event, error) {
	var w wireEvent
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return nil, fmt.Errorf("surface: decode event: %w", err)
	}
	switch w.Type {
	case "document-opened":
		return bridge.DocumentOpened{PageCount: w.PageCount, Title: w.Title}, nil
	case "edit-occurred":
		return bridge.EditOccurred{}, nil
	case "save-started":
		return bridge.SaveStarted{}, nil
	case "save-data-ready":
		data, err := base64.StdEncoding.DecodeString(w.Data)
		if err != nil {
			return nil, fmt.Errorf("surface: decode save data: %w", err)
		}
		return bridge.SaveDataReady{Data: data, SuggestedName: w.SuggestedName}, nil
	case "save-failed":
		return bridge.SaveFailed{Message: w.Message}, nil
	case "navigation-requested":
		return bridge.NavigationRequested{URL: w.URL}, nil
	case "print-requested":
		return bridge.PrintRequested{}, nil
	case "page-changed":
		return bridge.PageChanged{Current: w.Current, Total: w.Total}, nil
	case "error":
		return bridge.ErrorEvent{Message: w.Message}, nil
	default:
		return nil, fmt.Errorf("surface: unknown event type %q", w.Type)
	}
}

// wireCommand is the JSON envelope dispatched to the viewer page.
type wireCommand struct {
	Command  string `json:"command"`
	Page     int    `json:"page,omitempty"`
	Password string `json:"password,omitempty"`
}

// encodeCommand serializes a bridge command for the viewer page.
func encodeCommand(cmd bridge.Command) (string, error) {
	w := wireCommand{Command: cmd.String()}
	switch c := cmd.(type) {
	case bridge.GotoPage:
		w.Command = "goto-page"
		w.Page = c.Page
	case bridge.ProvidePassword:
		w.Password = c.Password
	}
	b, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("surface: encode command: %w", err)
	}
	return string(b), nil
}
