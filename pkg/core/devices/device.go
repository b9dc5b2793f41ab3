// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package devices defines Device, the placement of a tensor (or of the symbolic descriptor of one).
//
// A Device is a type ("cpu", "cuda", "meta", ...) and an optional index. The special "meta" device
// holds no data at all: tensors on it only carry their shape, and they are used to manipulate
// models without materializing their parameters.
package devices

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Device where a tensor lives.
//
// The zero value is not a valid device, use Make, Parse or one of the predefined devices.
type Device struct {
	// Type of the device, e.g.: "cpu", "cuda", "meta".
	Type string

	// Index of the device within its type, or NoIndex if not specified.
	Index int
}

// NoIndex is used as Device.Index when no index was given.
const NoIndex = -1

var (
	// CPU is the host device.
	CPU = Device{Type: "cpu", Index: NoIndex}

	// Meta is the data-free device: tensors on it have a shape but no values.
	Meta = Device{Type: "meta", Index: NoIndex}
)

// Make returns a device of the given type and index. Use NoIndex if index is not relevant.
func Make(deviceType string, index int) Device {
	return Device{Type: deviceType, Index: index}
}

// CUDA returns the cuda device with the given index.
func CUDA(index int) Device {
	return Device{Type: "cuda", Index: index}
}

// Parse a device from its textual representation, e.g.: "cpu", "cuda", "cuda:1" or "meta".
func Parse(text string) (Device, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Device{}, errors.New("empty device string")
	}
	deviceType, indexText, hasIndex := strings.Cut(text, ":")
	if deviceType == "" || strings.ContainsAny(deviceType, " \t") {
		return Device{}, errors.Errorf("invalid device type in %q", text)
	}
	if !hasIndex {
		return Device{Type: deviceType, Index: NoIndex}, nil
	}
	index, err := strconv.Atoi(indexText)
	if err != nil {
		return Device{}, errors.Wrapf(err, "invalid device index in %q", text)
	}
	if index < 0 {
		return Device{}, errors.Errorf("device index must be non-negative, got %q", text)
	}
	return Device{Type: deviceType, Index: index}, nil
}

// Ok returns whether the device has been set.
func (d Device) Ok() bool { return d.Type != "" }

// IsMeta returns whether d is the data-free "meta" device.
func (d Device) IsMeta() bool { return d.Type == Meta.Type }

// HasIndex returns whether an explicit index was given.
func (d Device) HasIndex() bool { return d.Index != NoIndex }

// String implements fmt.Stringer, and it is the inverse of Parse.
func (d Device) String() string {
	if !d.Ok() {
		return "<invalid device>"
	}
	if !d.HasIndex() {
		return d.Type
	}
	return fmt.Sprintf("%s:%d", d.Type, d.Index)
}
