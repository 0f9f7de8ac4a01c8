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
	"errors"
	"strings"
	"testing"
)

func TestAllPresetsValidate(t *testing.T) {
	for _, name := range PresetNames() {
		c, err := Preset(name)
		if err != nil {
			t.Fatalf("Preset(%q): %v", name, err)
		}
		c.Normalize()
		if err := c.Validate(); err != nil {
			t.Fatalf("preset %q does not validate: %v", name, err)
		}
	}
}

func TestUnknownPreset(t *testing.T) {
	_, err := Preset("lockdown")
	if err == nil || !strings.Contains(err.Error(), "lockdown") {
		t.Fatalf("expected error naming the preset, got %v", err)
	}
}

func TestReadonlyPresetIsLocked(t *testing.T) {
	c, err := Preset("readonly")
	if err != nil {
		t.Fatalf("Preset: %v", err)
	}
	if c.Features.PrintEnabled || c.Features.SaveEnabled || c.Features.LoadEnabled {
		t.Fatalf("readonly preset left core actions enabled: %#v", c.Features)
	}
	if c.Features.HighlightEnabled || c.Features.InkEnabled || c.Features.StampEnabled {
		t.Fatalf("readonly preset left annotation tools enabled: %#v", c.Features)
	}
	if c.Security.AllowExternalLinks || len(c.Security.AllowedProtocols) != 0 {
		t.Fatalf("readonly preset too permissive: %#v", c.Security)
	}
}

func TestKioskPresetPrintsButNeverSaves(t *testing.T) {
	c, err := Preset("kiosk")
	if err != nil {
		t.Fatalf("Preset: %v", err)
	}
	if !c.Features.PrintEnabled {
		t.Fatalf("kiosk preset should allow printing")
	}
	if c.Features.SaveEnabled || c.Features.LoadEnabled {
		t.Fatalf("kiosk preset should not allow save/load: %#v", c.Features)
	}
	if c.Features.UnsavedChangesAction != UnsavedDisabled {
		t.Fatalf("kiosk unsaved action = %q", c.Features.UnsavedChangesAction)
	}
}

func TestSaferPresetEnablesStability(t *testing.T) {
	c, err := Preset("safer")
	if err != nil {
		t.Fatalf("Preset: %v", err)
	}
	s := c.Stability
	if !s.DisableGPU || !s.DisableWebGL || !s.DisableGPUCompositing || !s.DisableUnnecessaryFeatures {
		t.Fatalf("safer preset stability incomplete: %#v", s)
	}
	if c.Features.UnsavedChangesAction != UnsavedPrompt {
		t.Fatalf("safer preset should prompt on unsaved changes")
	}
}

func TestAnnotationPresetUsesDialogHandler(t *testing.T) {
	c, err := Preset("annotation")
	if err != nil {
		t.Fatalf("Preset: %v", err)
	}
	if c.Print.Handler != PrintHandlerDialog {
		t.Fatalf("annotation print handler = %q", c.Print.Handler)
	}
	if c.Security.BlockRemoteContent {
		t.Fatalf("annotation preset should allow remote content")
	}
}

func TestCustomAppliesOverrides(t *testing.T) {
	c, err := Custom("readonly", map[string]any{
		"features": map[string]any{"save_enabled": true},
		"security": map[string]any{"allow_external_links": true},
	})
	if err != nil {
		t.Fatalf("Custom: %v", err)
	}
	if !c.Features.SaveEnabled {
		t.Fatalf("override not applied to features")
	}
	if !c.Security.AllowExternalLinks {
		t.Fatalf("override not applied to security")
	}
	// untouched readonly fields survive
	if c.Features.PrintEnabled {
		t.Fatalf("base preset value clobbered")
	}
}

func TestCustomRejectsUnknownKey(t *testing.T) {
	_, err := Custom("simple", map[string]any{
		"features": map[string]any{"save_enabeld": true},
	})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for misspelled key, got %v", err)
	}
}
