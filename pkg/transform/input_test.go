// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package transform

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphsurgery/pkg/core/devices"
	"github.com/gomlx/graphsurgery/pkg/core/ir"
	"github.com/gomlx/graphsurgery/pkg/core/module"
	"github.com/gomlx/graphsurgery/pkg/core/ops"
	"github.com/gomlx/graphsurgery/pkg/core/shapes"
	"github.com/gomlx/graphsurgery/pkg/core/symbolic"
	"github.com/gomlx/graphsurgery/pkg/core/tensors"
	"github.com/gomlx/graphsurgery/pkg/core/treespec"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildThreeInputs builds a unit computing `(x + y) * z`, with a signature.
func buildThreeInputs() *module.Unit {
	g := ir.NewGraph("three_inputs")
	x := g.Placeholder("x")
	y := g.Placeholder("y")
	z := g.Placeholder("z")
	add := g.CallFunction(ops.Add, []ir.Arg{ir.Ref(x), ir.Ref(y)})
	g.Output(ir.Ref(g.CallFunction(ops.Mul, []ir.Arg{ir.Ref(add), ir.Ref(z)})))
	g.SetSignature(&ir.Signature{
		InSpec: treespec.Tuple(
			treespec.Tuple(treespec.Leaf(), treespec.Leaf(), treespec.Leaf()),
			treespec.Dict(nil)),
		OutSpec:  treespec.Leaf(),
		OrigArgs: []string{"arg_x", "arg_y", "arg_z"},
	})
	return module.NewGraphUnit("ThreeInputs", g)
}

func TestAddGraphInput(t *testing.T) {
	tr, _ := newTestTransformer()
	unit := buildThreeInputs()
	g := unit.Graph()
	sig := g.Signature()
	require.Equal(t, 3, sig.InSpec.NumLeaves())

	node, err := tr.AddGraphInput(unit, "mask", tensors.Iota[float32](2, 3), nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Placeholder, node.Kind())
	assert.Equal(t, []string{"x", "y", "z", "mask", "add", "mul", "output"}, g.NodeNames())
	assert.Equal(t, 4, sig.InSpec.NumLeaves())
	assert.Equal(t, 4, sig.InSpec.Child(0).NumLeaves())
	assert.Equal(t, []string{"arg_x", "arg_y", "arg_z", "arg_mask"}, sig.OrigArgs)
	assert.Zero(t, node.NumUsers())
	// No Mode on the graph: no descriptor.
	assert.Nil(t, node.Meta.Val)
	require.NoError(t, unit.Validate())

	// Generated code lists the new argument.
	unit.Recompile()
	assert.Contains(t, unit.Code(), "arg_mask")
}

func TestAddGraphInputDescribed(t *testing.T) {
	tr, _ := newTestTransformer()
	unit := buildThreeInputs()
	mode := symbolic.NewMode("test")
	unit.Graph().NodeByName("x").Meta.Val = mode.New(shapes.Make(dtypes.Float32, 2, 3), devices.CPU)

	node, err := tr.AddGraphInput(unit, "mask", tensors.Iota[float32](5), nil)
	require.NoError(t, err)
	require.NotNil(t, node.Meta.Val)
	assert.Same(t, mode, node.Meta.Val.Mode())
	assert.True(t, node.Meta.Val.Shape().Equal(shapes.Make(dtypes.Float32, 5)))
	require.NotNil(t, node.Meta.TensorMeta)
	assert.Equal(t, uintptr(20), node.Meta.TensorMeta.Memory)

	// Without example, no descriptor.
	node, err = tr.AddGraphInput(unit, "other", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, node.Meta.Val)
	assert.Equal(t, "other", unit.Graph().NodeNames()[4])
}

func TestAddGraphInputNoPlaceholders(t *testing.T) {
	tr, _ := newTestTransformer()
	g := ir.NewGraph("constant")
	g.Output(ir.Ref(g.CallFunction(ops.Ones, []ir.Arg{ir.Const([]int{2})})))
	g.SetSignature(&ir.Signature{
		InSpec:  treespec.Tuple(treespec.Tuple(), treespec.Dict(nil)),
		OutSpec: treespec.Leaf(),
	})
	unit := module.NewGraphUnit("Constant", g)
	_, err := tr.AddGraphInput(unit, "x", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "ones", "output"}, g.NodeNames())
	assert.Equal(t, 1, g.Signature().InSpec.NumLeaves())
	require.NoError(t, unit.Validate())
}

func TestAddGraphInputErrors(t *testing.T) {
	tr, _ := newTestTransformer()
	unit := buildThreeInputs()

	_, err := tr.AddGraphInput(unit, "mask", nil, DynamicShape{0: "batch"})
	var unsupported *UnsupportedFeatureError
	require.True(t, errors.As(err, &unsupported))
	assert.Contains(t, unsupported.Feature, "dynamic shapes")
	assert.Equal(t, 3, unit.Graph().Signature().InSpec.NumLeaves())

	// Missing signature.
	unit.Graph().SetSignature(nil)
	_, err = tr.AddGraphInput(unit, "mask", nil, nil)
	require.Error(t, err)

	// Arguments not in a tuple.
	unit.Graph().SetSignature(&ir.Signature{InSpec: treespec.Tuple(treespec.List(), treespec.Dict(nil))})
	_, err = tr.AddGraphInput(unit, "mask", nil, nil)
	require.Error(t, err)

	// Units without graph.
	_, err = tr.AddGraphInput(module.New("Empty"), "mask", nil, nil)
	require.Error(t, err)
	assert.Len(t, unit.Graph().Placeholders(), 3)
}
