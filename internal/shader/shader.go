// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shader compiles WGSL sources for the hal backend.
package shader

import (
	"errors"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// ErrEmptySource is returned for an empty WGSL source.
var ErrEmptySource = errors.New("shader: empty source")

// Compile compiles WGSL to SPIR-V words.
func Compile(wgsl string) ([]uint32, error) {
	if wgsl == "" {
		return nil, ErrEmptySource
	}
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("shader: compile: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("shader: SPIR-V size %d is not a multiple of 4", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	if len(words) == 0 || words[0] != spirvMagic {
		return nil, errors.New("shader: compiler output is not SPIR-V")
	}
	return words, nil
}

// CreateModule compiles wgsl and creates a shader module from the SPIR-V.
func CreateModule(device hal.Device, label, wgsl string) (hal.ShaderModule, error) {
	words, err := Compile(wgsl)
	if err != nil {
		return nil, err
	}
	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: label,
		Source: hal.ShaderSource{
			SPIRV: words,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("shader: create module %q: %w", label, err)
	}
	return module, nil
}
