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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// overrideSchema validates a partial configuration. additionalProperties is
// false everywhere so a typo in a key fails loudly instead of being ignored.
const overrideSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "config_version": {"type": "integer"},
    "general": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "telemetry_opt_in": {"type": "boolean"},
        "locale": {"type": "string"},
        "auto_open_folder_on_save": {"type": "boolean"},
        "disable_context_menu": {"type": "boolean"},
        "default_zoom": {"type": "string"},
        "sidebar_visible": {"type": "boolean"},
        "spread_mode": {"type": "string", "enum": ["none", "odd", "even"]}
      }
    },
    "features": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "print_enabled": {"type": "boolean"},
        "save_enabled": {"type": "boolean"},
        "load_enabled": {"type": "boolean"},
        "presentation_mode": {"type": "boolean"},
        "highlight_enabled": {"type": "boolean"},
        "freetext_enabled": {"type": "boolean"},
        "ink_enabled": {"type": "boolean"},
        "stamp_enabled": {"type": "boolean"},
        "stamp_alttext_enabled": {"type": "boolean"},
        "bookmark_enabled": {"type": "boolean"},
        "scroll_mode_buttons": {"type": "boolean"},
        "spread_mode_buttons": {"type": "boolean"},
        "unsaved_changes_action": {"type": "string", "enum": ["disabled", "prompt", "auto_save"]}
      }
    },
    "security": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "allow_external_links": {"type": "boolean"},
        "confirm_before_external_link": {"type": "boolean"},
        "block_remote_content": {"type": "boolean"},
        "allowed_protocols": {"type": "array", "items": {"type": "string"}},
        "custom_csp": {"type": "string"}
      }
    },
    "stability": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "disable_gpu": {"type": "boolean"},
        "disable_sandbox": {"type": "boolean"},
        "disable_software_rasterizer": {"type": "boolean"},
        "disable_webgl": {"type": "boolean"},
        "disable_gpu_compositing": {"type": "boolean"},
        "single_process": {"type": "boolean"},
        "disable_unnecessary_features": {"type": "boolean"},
        "extra_args": {"type": "array", "items": {"type": "string"}}
      }
    },
    "print": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "handler": {"type": "string", "enum": ["system", "dialog", "emit"]},
        "dpi": {"type": "integer", "minimum": 1},
        "fit_to_page": {"type": "boolean"},
        "parallel_pages": {"type": "integer"}
      }
    },
    "logging": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"type": "string", "enum": ["debug", "info", "warn", "error"]},
        "format": {"type": "string", "enum": ["console", "json"]},
        "source": {"type": "boolean"},
        "file": {"type": "string"}
      }
    }
  }
}`

// ApplyOverrides validates a nested override map against the config schema and
// merges it into cfg. Keys absent from the map keep their current values.
func ApplyOverrides(cfg *AppConfig, overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(overrideSchema),
		gojsonschema.NewGoLoader(overrides),
	)
	if err != nil {
		return fmt.Errorf("config: validate overrides: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: overrides rejected: %s", ErrInvalid, strings.Join(msgs, "; "))
	}
	// json round-trip: only keys present in the map touch the struct.
	data, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("config: encode overrides: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: apply overrides: %w", err)
	}
	return nil
}
