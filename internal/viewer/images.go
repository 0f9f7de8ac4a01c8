/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package viewer

import (
	"bytes"
	"fmt"
	"image"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// StampImage describes an image accepted by the stamp annotation tool.
type StampImage struct {
	Format string
	Width  int
	Height int
}

// maxStampPixels bounds stamp images; the viewer embeds them into the
// document and huge bitmaps make every later save slow.
const maxStampPixels = 64 * 1024 * 1024

// SniffStampImage checks that data is a decodable image in a supported
// format and returns its dimensions without decoding the pixels.
func SniffStampImage(data []byte) (StampImage, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return StampImage{}, fmt.Errorf("viewer: unsupported stamp image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxStampPixels {
		return StampImage{}, fmt.Errorf("viewer: stamp image dimensions %dx%d out of range", cfg.Width, cfg.Height)
	}
	return StampImage{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// ValidateStampImageFile runs SniffStampImage against a file.
func ValidateStampImageFile(path string) (StampImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StampImage{}, fmt.Errorf("viewer: read stamp image: %w", err)
	}
	return SniffStampImage(data)
}
