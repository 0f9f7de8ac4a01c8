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
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	applog "pdfviewer/internal/log"
	"pdfviewer/internal/pdfinfo"
)

// Worker exit codes. Zero covers success and user cancellation; one is a
// clean refusal; anything above signals an unexpected failure to the
// parent.
const (
	ExitOK    = 0
	ExitUsage = 1
	ExitError = 2
)

// RunWorker is the child-process entry point. It connects back to the
// socket the parent listens on, reads the single job request, runs the job
// and writes the single response. The return value is the process exit
// code.
func RunWorker(socketPath string) int {
	l := applog.WithComponent("print-worker")
	if socketPath == "" {
		l.Error("no socket path given")
		return ExitUsage
	}

	conn, err := net.DialTimeout("unix", socketPath, connectTimeout)
	if err != nil {
		l.Error("connect to parent", slog.Any("err", err))
		return ExitError
	}
	defer conn.Close()

	raw, err := readMessage(conn, time.Now().Add(requestTimeout))
	if err != nil {
		l.Error("read request", slog.Any("err", err))
		return ExitError
	}
	if err := validateMessage(requestSchema, raw); err != nil {
		writeResponse(conn, response{Status: "error", Error: err.Error()})
		return ExitError
	}
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		writeResponse(conn, response{Status: "error", Error: err.Error()})
		return ExitError
	}

	resp := runJob(req, l)
	if !writeResponse(conn, resp) {
		return ExitError
	}
	if resp.Status == "error" {
		return ExitError
	}
	return ExitOK
}

func writeResponse(conn net.Conn, resp response) bool {
	raw, err := json.Marshal(resp)
	if err != nil {
		return false
	}
	if err := validateMessage(responseSchema, raw); err != nil {
		return false
	}
	if err := conn.SetWriteDeadline(time.Now().Add(connectTimeout)); err != nil {
		return false
	}
	_, err = conn.Write(raw)
	return err == nil
}

// runJob validates the staged document and submits it to the spooler. The
// settings dialog already ran in the parent process; the worker only does
// the part that has a habit of crashing.
func runJob(req request, l *slog.Logger) response {
	if err := pdfinfo.ValidateFile(req.PDFFile); err != nil {
		return response{Status: "error", Error: err.Error()}
	}
	l.Info("printing document",
		slog.String("file", req.PDFFile), slog.Int("pages", req.TotalPages))

	if err := submitToSpooler(req.PDFFile, 1, ""); err != nil {
		return response{
			Status:       "ok",
			DialogResult: &dialogResult{Accepted: true},
			PrintResult:  &printResult{Success: false, Error: err.Error()},
		}
	}
	return response{
		Status:       "ok",
		DialogResult: &dialogResult{Accepted: true},
		PrintResult:  &printResult{Success: true, Message: "document sent to printer"},
	}
}

// submitToSpooler hands the file to the platform print spooler.
// Replaceable in tests.
var submitToSpooler = func(path string, copies int, printer string) error {
	if copies < 1 {
		copies = 1
	}
	switch runtime.GOOS {
	case "windows":
		cmd := exec.Command("powershell", "-NoProfile", "-Command",
			"Start-Process", "-FilePath", strconv.Quote(path), "-Verb", "Print")
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("printing: spooler: %w", err)
		}
		return nil
	default:
		args := []string{"-n", strconv.Itoa(copies)}
		if printer != "" {
			args = append(args, "-d", printer)
		}
		args = append(args, path)
		if err := exec.Command("lp", args...).Run(); err == nil {
			return nil
		}
		// lp missing or failed, try lpr
		lprArgs := []string{"-#", strconv.Itoa(copies)}
		if printer != "" {
			lprArgs = append(lprArgs, "-P", printer)
		}
		lprArgs = append(lprArgs, path)
		if err := exec.Command("lpr", lprArgs...).Run(); err != nil {
			return fmt.Errorf("printing: spooler: %w", err)
		}
		return nil
	}
}
