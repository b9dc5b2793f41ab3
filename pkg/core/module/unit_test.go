// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package module

import (
	"testing"

	"github.com/gomlx/graphsurgery/pkg/core/devices"
	"github.com/gomlx/graphsurgery/pkg/core/ir"
	"github.com/gomlx/graphsurgery/pkg/core/tensors"
	"github.com/gomlx/graphsurgery/pkg/support/xslices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paths[T NamedUnit | NamedVariable](named []T) []string {
	return xslices.Map(named, func(e T) string {
		switch v := any(e).(type) {
		case NamedUnit:
			return v.Path
		case NamedVariable:
			return v.Path
		}
		return ""
	})
}

// buildTree builds:
//
//	root
//	├── encoder (weight, running_mean)
//	│   └── inner (bias)
//	└── head (weight)
func buildTree() (root, encoder, inner, head *Unit) {
	root = New("Root")
	encoder = root.AddChild("encoder", New("Encoder"))
	encoder.RegisterParameter("weight", tensors.Iota[float32](2, 3))
	encoder.RegisterBuffer("running_mean", tensors.Iota[float32](3))
	inner = encoder.AddChild("inner", New("Inner"))
	inner.RegisterParameter("bias", tensors.Iota[float32](3))
	head = root.AddChild("head", New("Head"))
	head.RegisterParameter("weight", tensors.Iota[float32](3, 1))
	return
}

func TestTreeNavigation(t *testing.T) {
	root, encoder, inner, _ := buildTree()
	assert.Equal(t, []string{"", "encoder", "encoder.inner", "head"}, paths(root.NamedUnits()))
	sub, err := root.GetSubmodule("encoder.inner")
	require.NoError(t, err)
	assert.Same(t, inner, sub)
	_, err = root.GetSubmodule("encoder.missing")
	require.Error(t, err)

	assert.Equal(t, []string{"encoder.weight", "encoder.running_mean", "encoder.inner.bias", "head.weight"},
		paths(root.NamedVariables(false)))
	assert.True(t, encoder.Variable("weight").Trainable)
	assert.False(t, encoder.Variable("running_mean").Trainable)

	require.Panics(t, func() { root.AddChild("encoder", New("Other")) })
	require.Panics(t, func() { root.AddChild("a.b", New("Other")) })
	require.Panics(t, func() { encoder.RegisterBuffer("inner", tensors.Iota[float32](1)) })

	owner, name := SplitPath("encoder.inner.bias")
	assert.Equal(t, "encoder.inner", owner)
	assert.Equal(t, "bias", name)
	owner, name = SplitPath("bias")
	assert.Equal(t, "", owner)
	assert.Equal(t, "bias", name)
}

func TestSharedUnitsAndVariables(t *testing.T) {
	root, encoder, _, head := buildTree()
	root.AddChild("encoder_alias", encoder)
	head.SetVariable("tied", encoder.Variable("weight"))

	// Deduplicated traversal.
	assert.Equal(t, []string{"", "encoder", "encoder.inner", "head"}, paths(root.NamedUnits()))
	assert.Equal(t, []string{"encoder.weight", "encoder.running_mean", "encoder.inner.bias", "head.weight"},
		paths(root.NamedVariables(true)))

	// Aliased paths are all listed.
	assert.Equal(t, []string{
		"encoder.weight", "encoder.running_mean", "encoder.inner.bias",
		"head.weight", "head.tied",
		"encoder_alias.weight", "encoder_alias.running_mean", "encoder_alias.inner.bias",
	}, paths(root.NamedVariables(false)))

	// Moving keeps sharing, and doesn't touch the original variables.
	original := encoder.Variable("weight")
	root.To(devices.Meta)
	moved := encoder.Variable("weight")
	assert.NotSame(t, original, moved)
	assert.Same(t, moved, head.Variable("tied"))
	assert.True(t, moved.Value.IsMeta())
	assert.True(t, moved.Trainable)
	assert.False(t, original.Value.IsMeta())
	assert.Equal(t, devices.Meta, encoder.Variable("running_mean").Value.Device())

	// Moving to the same device is a no-op.
	root.To(devices.Meta)
	assert.Same(t, moved, encoder.Variable("weight"))
}

func TestGraphUnit(t *testing.T) {
	relu := &ir.Target{Name: "relu", Effect: ir.Pure, DeviceArg: ir.NoDeviceArg}
	g := ir.NewGraph("forward")
	x := g.Placeholder("x")
	w := g.GetAttr("encoder.weight")
	sub := g.CallModule("encoder.inner", []ir.Arg{ir.Ref(x)})
	y := g.CallFunction(relu, []ir.Arg{ir.Ref(sub), ir.Ref(w)})
	g.Output(ir.Ref(y))

	root := NewGraphUnit("Root", g)
	encoder := root.AddChild("encoder", New("Encoder"))
	encoder.RegisterParameter("weight", tensors.Iota[float32](2))
	inner := encoder.AddChild("inner", New("Inner"))
	inner.AddChild("nested", New("Nested"))
	encoder.AddChild("unused", New("Unused"))
	root.AddChild("head", New("Head")).AddChild("deep", New("Deep"))

	assert.NotNil(t, root.Program())
	assert.Equal(t, 0, root.NumRecompiles())
	assert.Contains(t, root.Code(), "encoder_inner = self.encoder.inner(x)")
	require.NoError(t, root.Validate())

	// Prune: encoder is kept (ancestor), inner and its descendants (call_module), head and unused deleted.
	deleted := root.DeleteAllUnusedSubmodules()
	assert.Equal(t, []string{"encoder.unused", "head"}, deleted)
	assert.Equal(t, []string{"", "encoder", "encoder.inner", "encoder.inner.nested"}, paths(root.NamedUnits()))
	require.NoError(t, root.Validate())

	// Unresolvable target.
	encoder.DeleteChild("inner")
	require.Error(t, root.Validate())
	require.Panics(t, root.AssertValid)

	previousID := root.Program().ID
	root.Recompile()
	assert.Equal(t, 1, root.NumRecompiles())
	assert.Equal(t, previousID, root.Program().ID)

	assert.Contains(t, root.String(), "encoder: Encoder (1 variables, 8 B)")
	assert.Equal(t, uintptr(8), root.Memory())
	require.Panics(t, func() { New("NoGraph").Recompile() })
}

func TestIsNodeImpure(t *testing.T) {
	g := ir.NewGraph("calls")
	x := g.Placeholder("x")
	call := g.CallModule("sub", []ir.Arg{ir.Ref(x)})
	missing := g.CallModule("missing", []ir.Arg{ir.Ref(x)})
	g.Output(ir.Ref(x))
	root := NewGraphUnit("Root", g)
	sub := root.AddChild("sub", New("Sub"))

	assert.True(t, root.IsNodeImpure(x))
	assert.False(t, sub.Impure())
	assert.False(t, root.IsNodeImpure(call))
	assert.Same(t, sub, sub.SetImpure(true))
	assert.True(t, root.IsNodeImpure(call))
	assert.True(t, root.IsNodeImpure(missing))
}
