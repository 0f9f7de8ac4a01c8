/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package printing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// The worker speaks a single request/response exchange over a local socket.
// The PDF itself travels by temp file path, not inline, so the messages stay
// small. Both sides validate messages against a schema before acting on
// them; a hostile or confused peer on the socket must not crash the app.

const (
	// maxResponseSize caps the response buffer.
	maxResponseSize = 10 * 1024 * 1024

	// connectTimeout is how long the worker gets to connect back.
	connectTimeout = 5 * time.Second

	// requestTimeout is how long the worker waits for the request.
	requestTimeout = 30 * time.Second

	// jobTimeout bounds the whole print operation, dialog included.
	jobTimeout = 5 * time.Minute
)

// request is sent from the application to the print worker.
type request struct {
	Command     string    `json:"command"`
	TotalPages  int       `json:"total_pages"`
	PDFFile     string    `json:"pdf_file"`
	PrintConfig jobConfig `json:"print_config"`
}

// jobConfig carries the rendering settings for one job.
type jobConfig struct {
	DPI       int  `json:"dpi"`
	FitToPage bool `json:"fit_to_page"`
	// ParallelPages is always 1; printing is sequential.
	ParallelPages int `json:"parallel_pages"`
}

// dialogResult reports the user's choices.
type dialogResult struct {
	Accepted    bool   `json:"accepted"`
	PrinterName string `json:"printer_name,omitempty"`
	Copies      int    `json:"num_copies,omitempty"`
	PrintToPDF  bool   `json:"print_to_pdf,omitempty"`
	OutputPath  string `json:"output_path,omitempty"`
}

// printResult reports the outcome of the actual print job.
type printResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// response is sent from the worker back to the application.
type response struct {
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
	DialogResult *dialogResult `json:"dialog_result,omitempty"`
	PrintResult  *printResult  `json:"print_result,omitempty"`
}

const requestSchema = `{
	"type": "object",
	"additionalProperties": false,
	"required": ["command", "total_pages", "pdf_file", "print_config"],
	"properties": {
		"command": {"type": "string", "enum": ["show_and_print"]},
		"total_pages": {"type": "integer", "minimum": 1},
		"pdf_file": {"type": "string", "minLength": 1},
		"print_config": {
			"type": "object",
			"additionalProperties": false,
			"required": ["dpi", "fit_to_page", "parallel_pages"],
			"properties": {
				"dpi": {"type": "integer", "minimum": 1},
				"fit_to_page": {"type": "boolean"},
				"parallel_pages": {"type": "integer", "enum": [1]}
			}
		}
	}
}`

const responseSchema = `{
	"type": "object",
	"additionalProperties": false,
	"required": ["status"],
	"properties": {
		"status": {"type": "string", "enum": ["ok", "error"]},
		"error": {"type": "string"},
		"dialog_result": {
			"type": "object",
			"additionalProperties": false,
			"required": ["accepted"],
			"properties": {
				"accepted": {"type": "boolean"},
				"printer_name": {"type": "string"},
				"num_copies": {"type": "integer", "minimum": 1},
				"print_to_pdf": {"type": "boolean"},
				"output_path": {"type": "string"}
			}
		},
		"print_result": {
			"type": "object",
			"additionalProperties": false,
			"required": ["success"],
			"properties": {
				"success": {"type": "boolean"},
				"message": {"type": "string"},
				"error": {"type": "string"}
			}
		}
	}
}`

// validateMessage checks raw JSON against a schema before decoding.
func validateMessage(schema string, raw []byte) error {
	res, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("printing: validate message: %w", err)
	}
	if !res.Valid() {
		var msgs []string
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("printing: message rejected: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// readMessage reads from conn until buf parses as complete JSON, the size
// cap is hit, or the deadline expires. Local sockets deliver large writes
// in chunks, so a short read is not an error by itself.
func readMessage(conn net.Conn, deadline time.Time) ([]byte, error) {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("printing: set deadline: %w", err)
	}
	var buf []byte
	chunk := make([]byte, 64*1024)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			if len(buf)+n > maxResponseSize {
				return nil, errors.New("printing: message exceeds maximum size")
			}
			buf = append(buf, chunk[:n]...)
			if json.Valid(buf) {
				return buf, nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && json.Valid(buf) {
				return buf, nil
			}
			return nil, fmt.Errorf("printing: read message: %w", err)
		}
	}
}
