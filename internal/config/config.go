/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package config holds the user-editable viewer configuration: feature flags,
// security policy, Chromium stability switches, print handling and logging.
// It is persisted to a YAML file in the user scope; environment variables are
// read-only overrides at runtime. Programmatic overrides go through
// ApplyOverrides, which validates against a JSON Schema so unknown keys are
// rejected instead of silently ignored.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnsavedChangesAction values. Controls what happens when the user navigates
// away from (or closes) a document with unsaved annotations.
const (
	UnsavedDisabled = "disabled"  // no warning, changes are dropped
	UnsavedPrompt   = "prompt"    // Save As / Save / Discard dialog
	UnsavedAutoSave = "auto_save" // save silently before leaving
)

// PrintHandler values.
const (
	PrintHandlerSystem = "system" // hand the file to the OS default viewer
	PrintHandlerDialog = "dialog" // isolated out-of-process print dialog
	PrintHandlerEmit   = "emit"   // deliver PDF bytes to the embedding caller
)

// FeatureConfig are the UI feature flags forwarded to the viewer page.
type FeatureConfig struct {
	PrintEnabled        bool `yaml:"print_enabled" json:"print_enabled"`
	SaveEnabled         bool `yaml:"save_enabled" json:"save_enabled"`
	LoadEnabled         bool `yaml:"load_enabled" json:"load_enabled"`
	PresentationMode    bool `yaml:"presentation_mode" json:"presentation_mode"`
	HighlightEnabled    bool `yaml:"highlight_enabled" json:"highlight_enabled"`
	FreetextEnabled     bool `yaml:"freetext_enabled" json:"freetext_enabled"`
	InkEnabled          bool `yaml:"ink_enabled" json:"ink_enabled"`
	StampEnabled        bool `yaml:"stamp_enabled" json:"stamp_enabled"`
	StampAltTextEnabled bool `yaml:"stamp_alttext_enabled" json:"stamp_alttext_enabled"`
	BookmarkEnabled     bool `yaml:"bookmark_enabled" json:"bookmark_enabled"`
	ScrollModeButtons   bool `yaml:"scroll_mode_buttons" json:"scroll_mode_buttons"`
	SpreadModeButtons   bool `yaml:"spread_mode_buttons" json:"spread_mode_buttons"`

	// UnsavedChangesAction: "disabled", "prompt" or "auto_save".
	UnsavedChangesAction string `yaml:"unsaved_changes_action" json:"unsaved_changes_action"`
}

// SecurityConfig restricts what the hosted viewer page may do.
type SecurityConfig struct {
	AllowExternalLinks        bool     `yaml:"allow_external_links" json:"allow_external_links"`
	ConfirmBeforeExternalLink bool     `yaml:"confirm_before_external_link" json:"confirm_before_external_link"`
	BlockRemoteContent        bool     `yaml:"block_remote_content" json:"block_remote_content"`
	AllowedProtocols          []string `yaml:"allowed_protocols" json:"allowed_protocols"`
	CustomCSP                 string   `yaml:"custom_csp" json:"custom_csp"`
}

// StabilityConfig maps to Chromium command-line switches. The defaults trade
// rendering features for crash resistance; PDF viewing needs very little.
type StabilityConfig struct {
	DisableGPU                 bool     `yaml:"disable_gpu" json:"disable_gpu"`
	DisableSandbox             bool     `yaml:"disable_sandbox" json:"disable_sandbox"`
	DisableSoftwareRasterizer  bool     `yaml:"disable_software_rasterizer" json:"disable_software_rasterizer"`
	DisableWebGL               bool     `yaml:"disable_webgl" json:"disable_webgl"`
	DisableGPUCompositing      bool     `yaml:"disable_gpu_compositing" json:"disable_gpu_compositing"`
	SingleProcess              bool     `yaml:"single_process" json:"single_process"`
	DisableUnnecessaryFeatures bool     `yaml:"disable_unnecessary_features" json:"disable_unnecessary_features"`
	ExtraArgs                  []string `yaml:"extra_args" json:"extra_args"`
}

// PrintConfig controls the print pipeline.
type PrintConfig struct {
	Handler   string `yaml:"handler" json:"handler"`
	DPI       int    `yaml:"dpi" json:"dpi"`
	FitToPage bool   `yaml:"fit_to_page" json:"fit_to_page"`

	// ParallelPages is deprecated and ignored; printing is sequential.
	// Kept so old config files still load. Normalize coerces it to 1.
	ParallelPages int `yaml:"parallel_pages" json:"parallel_pages"`
}

// GeneralConfig holds viewer-wide behavior not tied to one subsystem.
type GeneralConfig struct {
	TelemetryOptIn       bool   `yaml:"telemetry_opt_in" json:"telemetry_opt_in"`
	Locale               string `yaml:"locale" json:"locale"` // BCP 47 tag, "" = system
	AutoOpenFolderOnSave bool   `yaml:"auto_open_folder_on_save" json:"auto_open_folder_on_save"`
	DisableContextMenu   bool   `yaml:"disable_context_menu" json:"disable_context_menu"`
	DefaultZoom          string `yaml:"default_zoom" json:"default_zoom"` // "auto", "page-fit", "page-width" or percentage
	SidebarVisible       bool   `yaml:"sidebar_visible" json:"sidebar_visible"`
	SpreadMode           string `yaml:"spread_mode" json:"spread_mode"` // "none", "odd", "even"
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Source bool   `yaml:"source" json:"source"`
	File   string `yaml:"file" json:"file"`
}

// AppConfig is the complete viewer configuration.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int             `yaml:"config_version" json:"config_version"`
	General       GeneralConfig   `yaml:"general" json:"general"`
	Features      FeatureConfig   `yaml:"features" json:"features"`
	Security      SecurityConfig  `yaml:"security" json:"security"`
	Stability     StabilityConfig `yaml:"stability" json:"stability"`
	Print         PrintConfig     `yaml:"print" json:"print"`
	Logging       LoggingConfig   `yaml:"logging" json:"logging"`
}

// Defaults returns the application defaults (the "unrestricted" preset plus
// conservative stability switches).
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General: GeneralConfig{
			TelemetryOptIn:       false,
			Locale:               "",
			AutoOpenFolderOnSave: true,
			DisableContextMenu:   true,
			DefaultZoom:          "auto",
			SidebarVisible:       false,
			SpreadMode:           "none",
		},
		Features: FeatureConfig{
			PrintEnabled:         true,
			SaveEnabled:          true,
			LoadEnabled:          true,
			PresentationMode:     true,
			HighlightEnabled:     true,
			FreetextEnabled:      true,
			InkEnabled:           true,
			StampEnabled:         true,
			StampAltTextEnabled:  true,
			BookmarkEnabled:      true,
			ScrollModeButtons:    true,
			SpreadModeButtons:    true,
			UnsavedChangesAction: UnsavedDisabled,
		},
		Security: SecurityConfig{
			AllowExternalLinks:        true,
			ConfirmBeforeExternalLink: true,
			BlockRemoteContent:        true,
			AllowedProtocols:          []string{"http", "https"},
		},
		Stability: StabilityConfig{
			DisableGPU:                 true,
			DisableWebGL:               true,
			DisableGPUCompositing:      true,
			DisableUnnecessaryFeatures: true,
		},
		Print:   PrintConfig{Handler: PrintHandlerSystem, DPI: 300, FitToPage: true, ParallelPages: 1},
		Logging: LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvPreset         = "PDFV_PRESET"
	EnvTelemetryOptIn = "PDFV_TELEMETRY_OPT_IN"
	EnvLocale         = "PDFV_LOCALE"
	EnvPrintHandler   = "PDFV_PRINT_HANDLER"
	EnvSaferMode      = "PDFV_SAFER_MODE"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "PDFV_LOG_LEVEL"
	EnvLogFormat = "PDFV_LOG_FORMAT"
	EnvLogSource = "PDFV_LOG_SOURCE"
	EnvLogFile   = "PDFV_LOG_FILE"
)

// ErrInvalid wraps all validation failures.
var ErrInvalid = errors.New("config: invalid value")

// Validate checks the enumerated fields. Normalize should run first so
// deprecated knobs are already coerced.
func (c *AppConfig) Validate() error {
	switch c.Features.UnsavedChangesAction {
	case UnsavedDisabled, UnsavedPrompt, UnsavedAutoSave:
	default:
		return fmt.Errorf("%w: unsaved_changes_action %q (want disabled, prompt or auto_save)", ErrInvalid, c.Features.UnsavedChangesAction)
	}
	switch c.Print.Handler {
	case PrintHandlerSystem, PrintHandlerDialog, PrintHandlerEmit:
	default:
		return fmt.Errorf("%w: print handler %q (want system, dialog or emit)", ErrInvalid, c.Print.Handler)
	}
	switch c.General.SpreadMode {
	case "none", "odd", "even":
	default:
		return fmt.Errorf("%w: spread_mode %q (want none, odd or even)", ErrInvalid, c.General.SpreadMode)
	}
	if c.Print.DPI <= 0 {
		return fmt.Errorf("%w: print dpi %d", ErrInvalid, c.Print.DPI)
	}
	return nil
}

// Normalize coerces deprecated settings and returns warnings to be logged by
// the caller. Currently this only covers print.parallel_pages, which is
// ignored since printing became sequential.
func (c *AppConfig) Normalize() []string {
	var warnings []string
	if c.Print.ParallelPages != 1 && c.Print.ParallelPages != 0 {
		warnings = append(warnings, fmt.Sprintf(
			"print.parallel_pages=%d is deprecated and ignored; printing is sequential", c.Print.ParallelPages))
	}
	c.Print.ParallelPages = 1
	return warnings
}

// ChromiumArgs translates the stability switches into Chromium command-line
// arguments for the rendering surface.
func (s StabilityConfig) ChromiumArgs() []string {
	var args []string
	if s.DisableGPU {
		args = append(args, "--disable-gpu", "--disable-gpu-vsync", "--disable-gpu-watchdog")
		if s.DisableSoftwareRasterizer {
			args = append(args, "--disable-software-rasterizer")
		}
	}
	if s.DisableWebGL {
		args = append(args, "--disable-webgl", "--disable-webgl2")
	}
	if s.DisableGPUCompositing {
		args = append(args, "--disable-gpu-compositing")
	}
	if s.DisableSandbox {
		args = append(args, "--no-sandbox")
	}
	if s.SingleProcess {
		args = append(args, "--single-process")
	}
	if s.DisableUnnecessaryFeatures {
		args = append(args,
			"--log-level=0",
			"--disable-background-networking",
			"--disable-component-update",
			"--disable-domain-reliability",
			"--disable-sync",
			"--no-pings",
			"--disable-audio-output",
			"--disable-speech-api",
			"--autoplay-policy=document-user-activation-required",
			"--disable-notifications",
			"--disable-print-preview",
			"--no-first-run",
			"--no-default-browser-check",
			"--disable-backgrounding-occluded-windows",
			"--disable-hang-monitor",
			"--disable-smooth-scrolling",
		)
	}
	for _, a := range s.ExtraArgs {
		if strings.TrimSpace(a) != "" {
			args = append(args, a)
		}
	}
	return args
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "PDFViewer")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "PDFViewer")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "pdfviewer")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges
// environment overrides. PDFV_PRESET replaces the defaults with a named preset
// before the file is merged.
func Load() (AppConfig, error) {
	cfg := Defaults()
	if name := strings.TrimSpace(os.Getenv(EnvPreset)); name != "" {
		if p, err := Preset(name); err == nil {
			cfg = p
		}
	}
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	cfg.Normalize()
	return cfg, nil
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	dst.General.AutoOpenFolderOnSave = src.General.AutoOpenFolderOnSave
	dst.General.DisableContextMenu = src.General.DisableContextMenu
	dst.General.SidebarVisible = src.General.SidebarVisible
	if strings.TrimSpace(src.General.Locale) != "" {
		dst.General.Locale = strings.TrimSpace(src.General.Locale)
	}
	if strings.TrimSpace(src.General.DefaultZoom) != "" {
		dst.General.DefaultZoom = strings.TrimSpace(src.General.DefaultZoom)
	}
	if strings.TrimSpace(src.General.SpreadMode) != "" {
		dst.General.SpreadMode = strings.TrimSpace(src.General.SpreadMode)
	}
	dst.Features = src.Features
	if dst.Features.UnsavedChangesAction == "" {
		dst.Features.UnsavedChangesAction = UnsavedDisabled
	}
	dst.Security = src.Security
	dst.Stability = src.Stability
	if strings.TrimSpace(src.Print.Handler) != "" {
		dst.Print.Handler = strings.ToLower(strings.TrimSpace(src.Print.Handler))
	}
	if src.Print.DPI != 0 {
		dst.Print.DPI = src.Print.DPI
	}
	dst.Print.FitToPage = src.Print.FitToPage
	if src.Print.ParallelPages != 0 {
		dst.Print.ParallelPages = src.Print.ParallelPages
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = isTruthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLocale)); v != "" {
		cfg.General.Locale = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPrintHandler)); v != "" {
		cfg.Print.Handler = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvSaferMode)); v != "" && isTruthy(v) {
		cfg.Stability = saferStability()
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = isTruthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

func isTruthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	var env string
	switch key {
	case "general.telemetry_opt_in":
		env = EnvTelemetryOptIn
	case "general.locale":
		env = EnvLocale
	case "print.handler":
		env = EnvPrintHandler
	case "stability":
		env = EnvSaferMode
	case "logging.level":
		env = EnvLogLevel
	case "logging.format":
		env = EnvLogFormat
	case "logging.source":
		env = EnvLogSource
	case "logging.file":
		env = EnvLogFile
	default:
		return "", false
	}
	if os.Getenv(env) != "" {
		return env, true
	}
	return "", false
}
