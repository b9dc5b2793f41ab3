// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package symbolic defines the value-free descriptors of tensors attached to the nodes of a computation graph.
//
// A Descriptor holds the shape (dtype and dimensions) and the device of the value a node produces,
// but never its data. Descriptors are created by a Mode, the inference context: all descriptors
// used in one shape propagation must come from the same Mode.
//
// Descriptors are used for diagnostics and metadata only, never for execution.
package symbolic

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphsurgery/pkg/core/devices"
	"github.com/gomlx/graphsurgery/pkg/core/shapes"
	"github.com/gomlx/graphsurgery/pkg/core/tensors"
)

// Mode is the inference context that manufactures Descriptor objects.
type Mode struct {
	name string

	// numDescriptors created by this mode so far.
	numDescriptors int
}

// NewMode creates a new inference context. The name is only used for printing.
func NewMode(name string) *Mode {
	return &Mode{name: name}
}

// Name of the mode.
func (m *Mode) Name() string { return m.name }

// NumDescriptors returns the number of descriptors created by this mode so far.
func (m *Mode) NumDescriptors() int { return m.numDescriptors }

// String implements fmt.Stringer.
func (m *Mode) String() string {
	if m == nil {
		return "Mode(nil)"
	}
	return fmt.Sprintf("Mode(%q)", m.name)
}

// New creates a descriptor with the given shape and device.
func (m *Mode) New(shape shapes.Shape, device devices.Device) *Descriptor {
	m.numDescriptors++
	return &Descriptor{shape: shape.Clone(), device: device, mode: m}
}

// FromTensor creates a descriptor of the example tensor t: same (static) shape and device.
// The tensor data is never read, so t may be a meta tensor.
func (m *Mode) FromTensor(t *tensors.Tensor) *Descriptor {
	t.AssertValid()
	return m.New(t.Shape(), t.Device())
}

// Descriptor is the symbolic (data-free) description of a tensor: its shape and device.
//
// Descriptors are immutable: transformations return new descriptors.
type Descriptor struct {
	shape  shapes.Shape
	device devices.Device
	mode   *Mode
}

// Shape of the described tensor.
func (d *Descriptor) Shape() shapes.Shape { return d.shape }

// DType of the described tensor.
func (d *Descriptor) DType() dtypes.DType { return d.shape.DType }

// Device of the described tensor.
func (d *Descriptor) Device() devices.Device { return d.device }

// Mode that created the descriptor.
func (d *Descriptor) Mode() *Mode { return d.mode }

// To returns the descriptor remapped to the given device.
// It returns d itself if it is already on that device.
func (d *Descriptor) To(device devices.Device) *Descriptor {
	if d.device == device {
		return d
	}
	return &Descriptor{shape: d.shape.Clone(), device: device, mode: d.mode}
}

// Equal returns whether both descriptors describe the same shape on the same device.
// The Mode is not compared.
func (d *Descriptor) Equal(d2 *Descriptor) bool {
	if d == nil || d2 == nil {
		return d == d2
	}
	return d.shape.Equal(d2.shape) && d.device == d2.device
}

// String implements fmt.Stringer.
func (d *Descriptor) String() string {
	if d == nil {
		return "Descriptor(nil)"
	}
	return fmt.Sprintf("%s@%s", d.shape, d.device)
}

// TensorMeta is a plain summary of a descriptor, stored alongside it in the node metadata.
type TensorMeta struct {
	Shape  shapes.Shape
	DType  dtypes.DType
	Memory uintptr
}

// ExtractTensorMeta summarizes the descriptor d.
func ExtractTensorMeta(d *Descriptor) *TensorMeta {
	return &TensorMeta{
		Shape:  d.shape.Clone(),
		DType:  d.shape.DType,
		Memory: d.shape.Memory(),
	}
}

// String implements fmt.Stringer.
func (tm *TensorMeta) String() string {
	return fmt.Sprintf("%s (%s)", tm.Shape, humanize.Bytes(uint64(tm.Memory)))
}
