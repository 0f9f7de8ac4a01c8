/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package printing turns captured document bytes into a print job. Three
// handlers exist: hand the file to the operating system, run the job in an
// isolated worker process, or emit the bytes to the embedding application.
// The worker process exists because driving a print spooler from the
// process that also hosts the browser has a history of taking the whole
// application down with it.
package printing

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"pdfviewer/internal/config"
	applog "pdfviewer/internal/log"
	"pdfviewer/internal/tempfiles"
)

// ErrBusy is returned when a print job is already in flight. Jobs are not
// queued; the caller reports the condition to the user.
var ErrBusy = errors.New("printing: a print job is already running")

// Result is the outcome of a finished job. Success false with an empty
// Err means the user cancelled.
type Result struct {
	Success bool
	Message string
}

// EmitFunc receives the raw document bytes when the emit handler is
// configured. The embedding application owns printing entirely.
type EmitFunc func(data []byte, totalPages int)

// Manager runs print jobs according to the configured handler.
type Manager struct {
	cfg    config.PrintConfig
	temp   *tempfiles.Manager
	emit   EmitFunc
	logger *slog.Logger

	mu     sync.Mutex
	active bool
}

// NewManager creates a Manager. temp stages job files; emit may be nil
// unless the emit handler is configured.
func NewManager(cfg config.PrintConfig, temp *tempfiles.Manager, emit EmitFunc) *Manager {
	return &Manager{
		cfg:    cfg,
		temp:   temp,
		emit:   emit,
		logger: applog.WithComponent("printing"),
	}
}

// Print runs one print job and blocks until it finishes. Concurrent calls
// beyond the first return ErrBusy.
func (m *Manager) Print(pdfData []byte, totalPages int) (Result, error) {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return Result{}, ErrBusy
	}
	m.active = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.active = false
		m.mu.Unlock()
	}()

	if totalPages < 1 {
		totalPages = 1
	}
	m.logger.Info("print job starting",
		slog.String("handler", m.cfg.Handler), slog.Int("pages", totalPages))

	switch m.cfg.Handler {
	case config.PrintHandlerSystem:
		return m.printViaSystem(pdfData)
	case config.PrintHandlerEmit:
		if m.emit == nil {
			return Result{}, errors.New("printing: emit handler configured without a callback")
		}
		m.emit(pdfData, totalPages)
		return Result{Success: true, Message: "print data emitted"}, nil
	case config.PrintHandlerDialog:
		return m.printViaWorker(pdfData, totalPages)
	default:
		return Result{}, fmt.Errorf("printing: unknown handler %q", m.cfg.Handler)
	}
}

// Busy reports whether a job is currently running.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// openWithSystem hands a file to the OS default application. Replaceable
// in tests.
var openWithSystem = func(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/C", "start", "", path)
	case "darwin":
		cmd = exec.Command("open", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}

func (m *Manager) printViaSystem(pdfData []byte) (Result, error) {
	path, err := m.temp.WriteBytes("print.pdf", pdfData)
	if err != nil {
		return Result{}, fmt.Errorf("printing: stage document: %w", err)
	}
	if err := openWithSystem(path); err != nil {
		return Result{}, fmt.Errorf("printing: open with system viewer: %w", err)
	}
	return Result{Success: true, Message: "document handed to system viewer"}, nil
}

// workerCommand builds the argv for the worker process. Replaceable in
// tests so the suite does not have to re-exec itself.
var workerCommand = func(socketPath string) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("printing: locate executable: %w", err)
	}
	return exec.Command(exe, "print-worker", socketPath), nil
}

// socketPath returns a fresh local socket path with a short random suffix.
func socketPath() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("printing: socket name: %w", err)
	}
	return filepath.Join(os.TempDir(), "pdfjs_print_"+hex.EncodeToString(b[:])+".sock"), nil
}

// printViaWorker spawns the isolated worker, hands it the job over a local
// socket and waits for the single response.
//
// The temp PDF and the listener are both ready before the process starts;
// the worker may connect immediately.
func (m *Manager) printViaWorker(pdfData []byte, totalPages int) (Result, error) {
	sock, err := socketPath()
	if err != nil {
		return Result{}, err
	}
	pdfPath, err := m.temp.WriteBytes("print_job.pdf", pdfData)
	if err != nil {
		return Result{}, fmt.Errorf("printing: stage document: %w", err)
	}
	defer os.Remove(pdfPath)

	ln, err := net.Listen("unix", sock)
	if err != nil {
		return Result{}, fmt.Errorf("printing: listen: %w", err)
	}
	defer func() {
		ln.Close()
		os.Remove(sock)
	}()

	cmd, err := workerCommand(sock)
	if err != nil {
		return Result{}, err
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("printing: start worker: %w", err)
	}
	defer m.reapWorker(cmd)

	req := request{
		Command:    "show_and_print",
		TotalPages: totalPages,
		PDFFile:    pdfPath,
		PrintConfig: jobConfig{
			DPI:           m.cfg.DPI,
			FitToPage:     m.cfg.FitToPage,
			ParallelPages: 1,
		},
	}
	resp, err := m.exchange(ln, req)
	if err != nil {
		return Result{}, err
	}
	return m.interpret(resp)
}

// exchange accepts the worker's connection, sends the request and reads
// the response. The overall deadline covers the user sitting in the print
// dialog.
func (m *Manager) exchange(ln net.Listener, req request) (response, error) {
	deadline := time.Now().Add(jobTimeout)
	if ul, ok := ln.(*net.UnixListener); ok {
		_ = ul.SetDeadline(time.Now().Add(connectTimeout))
	}
	conn, err := ln.Accept()
	if err != nil {
		return response{}, fmt.Errorf("printing: worker did not connect: %w", err)
	}
	defer conn.Close()

	raw, err := json.Marshal(req)
	if err != nil {
		return response{}, fmt.Errorf("printing: encode request: %w", err)
	}
	if err := validateMessage(requestSchema, raw); err != nil {
		return response{}, err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(connectTimeout)); err != nil {
		return response{}, fmt.Errorf("printing: set deadline: %w", err)
	}
	if _, err := conn.Write(raw); err != nil {
		return response{}, fmt.Errorf("printing: send request: %w", err)
	}

	rawResp, err := readMessage(conn, deadline)
	if err != nil {
		return response{}, err
	}
	if err := validateMessage(responseSchema, rawResp); err != nil {
		return response{}, err
	}
	var resp response
	if err := json.Unmarshal(rawResp, &resp); err != nil {
		return response{}, fmt.Errorf("printing: decode response: %w", err)
	}
	return resp, nil
}

// interpret maps a worker response onto a Result.
func (m *Manager) interpret(resp response) (Result, error) {
	switch resp.Status {
	case "error":
		if resp.Error == "" {
			resp.Error = "unknown error"
		}
		return Result{}, fmt.Errorf("printing: worker: %s", resp.Error)
	case "ok":
		if resp.DialogResult != nil && !resp.DialogResult.Accepted {
			return Result{Success: false, Message: "print cancelled by user"}, nil
		}
		if resp.PrintResult == nil {
			return Result{Success: false, Message: "print cancelled"}, nil
		}
		if !resp.PrintResult.Success {
			msg := resp.PrintResult.Error
			if msg == "" {
				msg = "print failed"
			}
			return Result{}, fmt.Errorf("printing: %s", msg)
		}
		msg := resp.PrintResult.Message
		if msg == "" {
			msg = "print completed"
		}
		return Result{Success: true, Message: msg}, nil
	default:
		return Result{}, fmt.Errorf("printing: unknown response status %q", resp.Status)
	}
}

// reapWorker waits for the process to exit, escalating to terminate and
// kill. Exit code 0 is success, 1 is a user cancel, anything above is an
// unexpected death worth logging.
func (m *Manager) reapWorker(cmd *exec.Cmd) {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		m.logExit(cmd, err)
		return
	case <-time.After(3 * time.Second):
	}

	_ = cmd.Process.Signal(os.Interrupt)
	select {
	case err := <-done:
		m.logExit(cmd, err)
		return
	case <-time.After(2 * time.Second):
	}

	_ = cmd.Process.Kill()
	m.logExit(cmd, <-done)
}

func (m *Manager) logExit(cmd *exec.Cmd, err error) {
	code := 0
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	switch {
	case code > 1:
		m.logger.Error("print worker exited unexpectedly", slog.Int("code", code))
	case err != nil && code != 1:
		m.logger.Warn("print worker wait", slog.Any("err", err))
	default:
		m.logger.Debug("print worker exited", slog.Int("code", code))
	}
}
