// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements Tensor, a concrete value (shape, device and flat data) owned by a
// module.Unit as a parameter or buffer.
//
// A Tensor on the devices.Meta device carries no data: only its shape. Moving a tensor to the meta
// device is how a model is "lifted" to a data-free representation, so it can be manipulated
// without materializing its parameters.
//
// There is no numeric execution in this package: tensors only hold and copy data.
package tensors

import (
	"fmt"
	"reflect"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphsurgery/pkg/core/devices"
	"github.com/gomlx/graphsurgery/pkg/core/shapes"
	"github.com/gomlx/graphsurgery/pkg/support/xslices"
	"golang.org/x/exp/constraints"
)

// Tensor represents a multidimensional array (from scalar with 0 dimensions, to arbitrarily large dimensions), defined
// by its shape, the device where it lives, and its contents stored as a flat (1D) slice of the Go type
// of its DType.
//
// Tensors are not safe for concurrent use.
type Tensor struct {
	shape  shapes.Shape
	device devices.Device

	// flat holds the array with actual data, nil for meta tensors.
	flat any
}

// FromShape returns a Tensor on the CPU with the given shape, with the data initialized with zeros.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape(%s): invalid shape", shape)
	}
	flatV := reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), shape.Size(), shape.Size())
	return &Tensor{shape: shape.Clone(), device: devices.CPU, flat: flatV.Interface()}
}

// FromFlatDataAndDimensions creates a tensor on the CPU with the given dimensions, filled with the flattened
// values given in `data`. The data is copied to the Tensor.
// The `DType` is inferred from the `data` type.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("FromFlatDataAndDimensions(%s): data size is %d, but dimensions size is %d",
			shape, len(data), shape.Size())
	}
	t := FromShape(shape)
	flatV := reflect.ValueOf(t.flat)
	dataV := reflect.ValueOf(data)
	if flatV.Type() == dataV.Type() {
		reflect.Copy(flatV, dataV)
		return t
	}
	// E.g.: `int` data stored as Int64.
	elemType := flatV.Type().Elem()
	for ii := range len(data) {
		flatV.Index(ii).Set(dataV.Index(ii).Convert(elemType))
	}
	return t
}

// FromScalar creates a CPU tensor with the given scalar.
func FromScalar[T dtypes.Supported](value T) *Tensor {
	return FromFlatDataAndDimensions([]T{value})
}

// Iota returns a CPU tensor with the given dimensions, filled with 0, 1, 2, ... in row-major order.
func Iota[T interface {
	dtypes.Supported
	constraints.Integer | constraints.Float
}](dimensions ...int) *Tensor {
	size := shapes.Make(dtypes.FromGenericsType[T](), dimensions...).Size()
	return FromFlatDataAndDimensions(xslices.Iota(T(0), size), dimensions...)
}

// NewMeta returns a data-free tensor on the meta device with the given shape.
func NewMeta(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.NewMeta(%s): invalid shape", shape)
	}
	return &Tensor{shape: shape.Clone(), device: devices.Meta}
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the tensor's shape.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank of the tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size returns the number of elements in the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// Memory returns the number of bytes used by the tensor data, or that would be used if it is a meta tensor.
func (t *Tensor) Memory() uintptr { return t.shape.Memory() }

// Device where the tensor lives.
func (t *Tensor) Device() devices.Device { return t.device }

// IsMeta returns whether the tensor is a data-free meta tensor.
func (t *Tensor) IsMeta() bool { return t.device.IsMeta() }

// Ok returns whether the tensor is valid.
func (t *Tensor) Ok() bool {
	return t != nil && t.shape.Ok() && t.device.Ok()
}

// AssertValid panics if the tensor is nil or in an invalid state.
func (t *Tensor) AssertValid() {
	if t == nil {
		exceptions.Panicf("tensor is nil")
	}
	if !t.shape.Ok() || !t.device.Ok() {
		exceptions.Panicf("tensor in an invalid state: shape=%s, device=%s", t.shape, t.device)
	}
	if !t.IsMeta() && t.flat == nil {
		exceptions.Panicf("tensor on device %s has no data", t.device)
	}
}

// ConstFlatData calls accessFn with the flattened data as a slice of the Go type corresponding to the DType type.
// Even scalar values have a flattened data representation of one element.
//
// The data should not be changed. It panics for meta tensors, which have no data.
func (t *Tensor) ConstFlatData(accessFn func(flat any)) {
	t.AssertValid()
	if t.IsMeta() {
		exceptions.Panicf("cannot access the data of a meta tensor (shape %s)", t.shape)
	}
	accessFn(t.flat)
}

// ConstFlatData is the generic version of Tensor.ConstFlatData.
func ConstFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	if t.shape.DType != dtypes.FromGenericsType[T]() {
		var v T
		exceptions.Panicf("ConstFlatData[%T] is incompatible with Tensor's dtype %s -- expected dtype %s",
			v, t.shape.DType, dtypes.FromGenericsType[T]())
	}
	t.ConstFlatData(func(anyFlat any) {
		accessFn(anyFlat.([]T))
	})
}

// Clone returns a detached deep copy of the tensor, on the same device.
// The clone of a meta tensor is another meta tensor.
func (t *Tensor) Clone() *Tensor {
	t.AssertValid()
	clone := &Tensor{shape: t.shape.Clone(), device: t.device}
	if t.IsMeta() {
		return clone
	}
	flatV := reflect.ValueOf(t.flat)
	cloneFlatV := reflect.MakeSlice(flatV.Type(), flatV.Len(), flatV.Len())
	reflect.Copy(cloneFlatV, flatV)
	clone.flat = cloneFlatV.Interface()
	return clone
}

// To returns the tensor on the given device.
//
// If the tensor is already on the device, it is returned itself. Otherwise, a new tensor is returned and t
// is left untouched. Moving to the meta device drops the data.
//
// It panics if t is a meta tensor and device is not: there is no data to copy.
func (t *Tensor) To(device devices.Device) *Tensor {
	t.AssertValid()
	if !device.Ok() {
		exceptions.Panicf("Tensor.To(): invalid device")
	}
	if t.device == device {
		return t
	}
	if device.IsMeta() {
		return NewMeta(t.shape)
	}
	if t.IsMeta() {
		exceptions.Panicf("cannot copy out of meta tensor (shape %s) to device %s: it has no data", t.shape, device)
	}
	moved := t.Clone()
	moved.device = device
	return moved
}

// Equal checks whether t and otherTensor have the same shape, the same device and the same values.
// Two meta tensors are equal if their shapes are equal.
func (t *Tensor) Equal(otherTensor *Tensor) bool {
	t.AssertValid()
	otherTensor.AssertValid()
	if t == otherTensor {
		return true
	}
	if !t.shape.Equal(otherTensor.shape) || t.device != otherTensor.device {
		return false
	}
	if t.IsMeta() {
		return true
	}
	t0V := reflect.ValueOf(t.flat)
	t1V := reflect.ValueOf(otherTensor.flat)
	if t0V.Len() != t1V.Len() {
		return false
	}
	for ii := range t0V.Len() {
		if !t0V.Index(ii).Equal(t1V.Index(ii)) {
			return false
		}
	}
	return true
}

// SharesData returns whether t and otherTensor use the same underlying storage.
func (t *Tensor) SharesData(otherTensor *Tensor) bool {
	if t.flat == nil || otherTensor.flat == nil {
		return false
	}
	v0 := reflect.ValueOf(t.flat)
	v1 := reflect.ValueOf(otherTensor.flat)
	return v0.Len() > 0 && v1.Len() > 0 && v0.Pointer() == v1.Pointer()
}

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	if t == nil {
		return "Tensor(nil)"
	}
	if t.IsMeta() {
		return fmt.Sprintf("Tensor(%s, device=meta)", t.shape)
	}
	return fmt.Sprintf("Tensor(%s, device=%s, mem=%s)", t.shape, t.device, humanize.Bytes(uint64(t.Memory())))
}
