/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"pdfviewer/internal/config"
	"pdfviewer/internal/crash"
	applog "pdfviewer/internal/log"
	"pdfviewer/internal/pdfinfo"
	"pdfviewer/internal/printing"
	"pdfviewer/internal/ui"
	"pdfviewer/internal/version"
)

func usage() {
	fmt.Println("PDF Viewer — PDF.js based desktop viewer backend")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pdfviewer version|-v|--version       Show version")
	fmt.Println("  pdfviewer info <file.pdf>            Validate a PDF and print basic facts")
	fmt.Println("  pdfviewer config                     Print the effective configuration path and preset names")
	fmt.Println("  pdfviewer ui [<file.pdf>]            Launch desktop UI (build with -tags fyne for full UI)")
	fmt.Println("  pdfviewer print-worker <socket>      Internal: isolated print worker")
}

func main() {
	// initialize structured logging using environment defaults
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("cli")
	crashInfo := &crash.Info{}
	defer func() { crash.Recover(crashInfo) }()

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) > 1 {
		switch args[1] {
		case "version", "--version", "-v":
			fmt.Println("PDF Viewer — PDF.js based desktop viewer backend")
			fmt.Println(version.String())
			return
		case "info":
			if len(args) < 3 {
				fmt.Println("info requires <file.pdf>")
				usage()
				os.Exit(2)
			}
			abs, _ := filepath.Abs(args[2])
			crashInfo.DocumentPath = abs
			if err := pdfinfo.ValidateFile(abs); err != nil {
				l.Error("validate failed", slog.Any("err", err))
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			fmt.Printf("File:  %s\n", abs)
			fmt.Printf("Size:  %d bytes\n", len(data))
			fmt.Printf("Pages: %d\n", pdfinfo.PageCount(data))
			return
		case "config":
			path, err := config.ConfigPath()
			if err != nil {
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			fmt.Println("Config:", path)
			fmt.Println("Presets:", config.PresetNames())
			return
		case "print-worker":
			if len(args) < 3 {
				fmt.Fprintln(os.Stderr, "print-worker requires <socket>")
				os.Exit(printing.ExitUsage)
			}
			os.Exit(printing.RunWorker(args[2]))
		case "ui":
			var file string
			if len(args) >= 3 {
				file = args[2]
				crashInfo.DocumentPath = file
			}
			if err := ui.Run(file); err != nil {
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			return
		}
	}

	usage()
}
