// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphsurgery/pkg/core/devices"
	"github.com/gomlx/graphsurgery/pkg/core/ir"
	"github.com/gomlx/graphsurgery/pkg/core/shapes"
	"github.com/gomlx/graphsurgery/pkg/core/symbolic"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	target, found := Lookup("to_device")
	require.True(t, found)
	assert.Same(t, ToDevice, target)
	assert.True(t, ToDevice.IsDeviceTransfer())
	assert.False(t, Add.IsDeviceTransfer())

	assert.Equal(t, ir.Pure, Zeros.Effect)
	assert.Equal(t, ir.Nondeterministic, Randn.Effect)
	assert.Equal(t, ir.Nondeterministic, Dropout.Effect)
	assert.Equal(t, ir.SideEffect, CopyInPlace.Effect)
	assert.Contains(t, Names(), "matmul")

	require.Panics(t, func() { Register(&ir.Target{Name: "add"}) })
}

func TestRules(t *testing.T) {
	mode := symbolic.NewMode("test")
	x := mode.New(shapes.Make(dtypes.Float32, 2, 3), devices.CPU)
	w := mode.New(shapes.Make(dtypes.Float32, 3, 4), devices.CPU)

	out := must.M1(MatMul.Infer(mode, []any{x, w}, nil))
	assert.True(t, out.Shape().Equal(shapes.Make(dtypes.Float32, 2, 4)))
	assert.Same(t, mode, out.Mode())

	// Constant operands are scalars.
	out = must.M1(Mul.Infer(mode, []any{x, 2.0}, nil))
	assert.True(t, out.Shape().Equal(x.Shape()))

	out = must.M1(Sum.Infer(mode, []any{x, []int{1}}, map[string]any{"keep_dims": true}))
	assert.True(t, out.Shape().Equal(shapes.Make(dtypes.Float32, 2, 1)), "got %s", out)

	out = must.M1(Concat.Infer(mode, []any{[]any{x, x}, 0}, nil))
	assert.True(t, out.Shape().Equal(shapes.Make(dtypes.Float32, 4, 3)), "got %s", out)

	out = must.M1(ToDevice.Infer(mode, []any{x, devices.CUDA(0)}, nil))
	assert.Equal(t, devices.CUDA(0), out.Device())

	out = must.M1(Zeros.Infer(mode, []any{[]int{5}}, map[string]any{"dtype": dtypes.Int32, "device": devices.Meta}))
	assert.True(t, out.Shape().Equal(shapes.Make(dtypes.Int32, 5)))
	assert.Equal(t, devices.Meta, out.Device())

	out = must.M1(Print.Infer(mode, []any{x}, nil))
	assert.Nil(t, out)

	// Errors.
	_, err := MatMul.Infer(mode, []any{x, x}, nil)
	require.Error(t, err)
	_, err = Add.Infer(mode, []any{x, x.To(devices.CUDA(0))}, nil)
	require.ErrorContains(t, err, "same device")
	_, err = Exp.Infer(mode, []any{mode.New(shapes.Make(dtypes.Int32, 2), devices.CPU)}, nil)
	require.Error(t, err)
	_, err = Reshape.Infer(mode, []any{x, []int{4, 2}}, nil)
	require.Error(t, err)
}
