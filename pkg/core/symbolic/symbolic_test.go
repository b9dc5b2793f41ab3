// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package symbolic

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphsurgery/pkg/core/devices"
	"github.com/gomlx/graphsurgery/pkg/core/shapes"
	"github.com/gomlx/graphsurgery/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
)

func TestDescriptor(t *testing.T) {
	mode := NewMode("test")
	d := mode.FromTensor(tensors.Iota[float32](2, 3))
	assert.Same(t, mode, d.Mode())
	assert.Equal(t, 1, mode.NumDescriptors())
	assert.True(t, d.Shape().Equal(shapes.Make(dtypes.Float32, 2, 3)))
	assert.Equal(t, devices.CPU, d.Device())
	assert.Equal(t, "(Float32)[2 3]@cpu", d.String())

	assert.Same(t, d, d.To(devices.CPU))
	onCuda := d.To(devices.CUDA(1))
	assert.Equal(t, devices.CUDA(1), onCuda.Device())
	assert.Equal(t, devices.CPU, d.Device(), "descriptors are immutable")
	assert.Same(t, mode, onCuda.Mode())
	assert.False(t, d.Equal(onCuda))
	assert.True(t, onCuda.Equal(mode.New(shapes.Make(dtypes.Float32, 2, 3), devices.CUDA(1))))

	// Meta tensors can be described: their data is never read.
	metaDesc := mode.FromTensor(tensors.NewMeta(shapes.Make(dtypes.Int32, 4)))
	assert.Equal(t, devices.Meta, metaDesc.Device())

	tm := ExtractTensorMeta(d)
	assert.Equal(t, dtypes.Float32, tm.DType)
	assert.Equal(t, uintptr(24), tm.Memory)
	assert.Equal(t, "(Float32)[2 3] (24 B)", tm.String())
}
