/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"fmt"
	"strings"
)

// Preset names, from most to least restricted:
//
//	readonly     - view only, maximum security
//	simple       - print/save plus light annotation
//	annotation   - all annotation tools, isolated print dialog
//	form         - form filling focus
//	kiosk        - public terminal: print but no save/edit
//	safer        - minimal features, all stability switches on
//	unrestricted - everything enabled (the defaults)
var presetNames = []string{"readonly", "simple", "annotation", "form", "kiosk", "safer", "unrestricted"}

// PresetNames lists the available preset names.
func PresetNames() []string { return append([]string(nil), presetNames...) }

// Preset returns a named preset configuration.
func Preset(name string) (AppConfig, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "readonly":
		return presetReadonly(), nil
	case "simple":
		return presetSimple(), nil
	case "annotation":
		return presetAnnotation(), nil
	case "form":
		return presetForm(), nil
	case "kiosk":
		return presetKiosk(), nil
	case "safer":
		return presetSafer(), nil
	case "unrestricted":
		return Defaults(), nil
	default:
		return AppConfig{}, fmt.Errorf("config: unknown preset %q (available: %s)", name, strings.Join(presetNames, ", "))
	}
}

func presetReadonly() AppConfig {
	c := Defaults()
	c.Features = FeatureConfig{UnsavedChangesAction: UnsavedDisabled}
	c.Security = SecurityConfig{
		ConfirmBeforeExternalLink: true,
		BlockRemoteContent:        true,
		AllowedProtocols:          []string{},
	}
	c.General.AutoOpenFolderOnSave = false
	c.General.SidebarVisible = true
	c.Print.Handler = PrintHandlerSystem
	return c
}

func presetSimple() AppConfig {
	c := Defaults()
	c.Features = FeatureConfig{
		PrintEnabled:         true,
		SaveEnabled:          true,
		HighlightEnabled:     true,
		FreetextEnabled:      true,
		UnsavedChangesAction: UnsavedPrompt,
	}
	c.Security = SecurityConfig{
		AllowExternalLinks:        true,
		ConfirmBeforeExternalLink: true,
		BlockRemoteContent:        true,
		AllowedProtocols:          []string{"http", "https"},
	}
	c.Print.Handler = PrintHandlerSystem
	return c
}

func presetAnnotation() AppConfig {
	c := Defaults()
	c.Features = FeatureConfig{
		PrintEnabled:         true,
		SaveEnabled:          true,
		LoadEnabled:          true,
		HighlightEnabled:     true,
		FreetextEnabled:      true,
		InkEnabled:           true,
		StampEnabled:         true,
		StampAltTextEnabled:  true,
		ScrollModeButtons:    true,
		SpreadModeButtons:    true,
		UnsavedChangesAction: UnsavedPrompt,
	}
	c.Security = SecurityConfig{
		AllowExternalLinks:        true,
		ConfirmBeforeExternalLink: true,
		BlockRemoteContent:        false,
		AllowedProtocols:          []string{"http", "https", "mailto"},
	}
	c.General.SidebarVisible = true
	c.Print.Handler = PrintHandlerDialog
	return c
}

func presetForm() AppConfig {
	c := Defaults()
	c.Features = FeatureConfig{
		PrintEnabled:         true,
		SaveEnabled:          true,
		LoadEnabled:          true,
		FreetextEnabled:      true,
		UnsavedChangesAction: UnsavedPrompt,
	}
	c.Security = SecurityConfig{
		ConfirmBeforeExternalLink: true,
		BlockRemoteContent:        true,
		AllowedProtocols:          []string{},
	}
	c.Print.Handler = PrintHandlerDialog
	return c
}

func presetKiosk() AppConfig {
	c := Defaults()
	c.Features = FeatureConfig{
		PrintEnabled:         true,
		ScrollModeButtons:    true,
		UnsavedChangesAction: UnsavedDisabled,
	}
	c.Security = SecurityConfig{
		ConfirmBeforeExternalLink: true,
		BlockRemoteContent:        true,
		AllowedProtocols:          []string{},
	}
	c.General.AutoOpenFolderOnSave = false
	c.Print.Handler = PrintHandlerSystem
	return c
}

func presetSafer() AppConfig {
	c := Defaults()
	c.Features = FeatureConfig{
		PrintEnabled:         true,
		SaveEnabled:          true,
		UnsavedChangesAction: UnsavedPrompt,
	}
	c.Security = SecurityConfig{
		ConfirmBeforeExternalLink: true,
		BlockRemoteContent:        true,
		AllowedProtocols:          []string{},
	}
	c.Stability = saferStability()
	c.Print.Handler = PrintHandlerSystem
	return c
}

// saferStability turns on every stability switch that does not cost isolation.
func saferStability() StabilityConfig {
	return StabilityConfig{
		DisableGPU:                 true,
		DisableSoftwareRasterizer:  false,
		DisableWebGL:               true,
		DisableGPUCompositing:      true,
		DisableUnnecessaryFeatures: true,
	}
}

// Custom builds a configuration from a base preset and a nested override map.
// Overrides are validated against the config schema; unknown categories or
// keys are an error.
func Custom(base string, overrides map[string]any) (AppConfig, error) {
	c, err := Preset(base)
	if err != nil {
		return AppConfig{}, err
	}
	if err := ApplyOverrides(&c, overrides); err != nil {
		return AppConfig{}, err
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return AppConfig{}, err
	}
	return c, nil
}
