// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package transform

import (
	"fmt"
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
	"github.com/gomlx/graphsurgery/pkg/support/xslices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

// recordingLogger keeps the messages logged, for inspection in tests.
type recordingLogger struct {
	debug, warnings []string
}

func (l *recordingLogger) Debugf(format string, args ...any) {
	l.debug = append(l.debug, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Warningf(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func newTestTransformer() (*Transformer, *recordingLogger) {
	logger := &recordingLogger{}
	return New(logger), logger
}

// buildModel builds a unit with the graph:
//
//	add = add(a, b)                   # unused, pure
//	rand = rand([2 3])                # unused, nondeterministic
//	mul = mul(a, b)
//	layer = self.layer(mul)           # layer(x) = x + weight
//	zeros = zeros([2 3], device=cpu)
//	add_1 = add(layer, zeros)
//	to_device = to_device(add_1, cpu)
//	return to_device
//
// The root unit also has an "unused" child, and the "layer" child has a "weight" parameter and a "count" buffer.
func buildModel() *module.Unit {
	layerGraph := ir.NewGraph("layer")
	lx := layerGraph.Placeholder("x")
	lw := layerGraph.GetAttr("weight")
	layerGraph.Output(ir.Ref(layerGraph.CallFunction(ops.Add, []ir.Arg{ir.Ref(lx), ir.Ref(lw)})))
	layer := module.NewGraphUnit("Layer", layerGraph)
	layer.RegisterParameter("weight", tensors.Iota[float32](2, 3))
	layer.RegisterBuffer("count", tensors.FromScalar(int32(7)))

	g := ir.NewGraph("model")
	a := g.Placeholder("a")
	b := g.Placeholder("b")
	g.CallFunction(ops.Add, []ir.Arg{ir.Ref(a), ir.Ref(b)})
	g.CallFunction(ops.Rand, []ir.Arg{ir.Const([]int{2, 3})})
	mul := g.CallFunction(ops.Mul, []ir.Arg{ir.Ref(a), ir.Ref(b)})
	call := g.CallModule("layer", []ir.Arg{ir.Ref(mul)})
	zeros := g.CallFunction(ops.Zeros, []ir.Arg{ir.Const([]int{2, 3})}, ir.KW("device", ir.Const(devices.CPU)))
	sum := g.CallFunction(ops.Add, []ir.Arg{ir.Ref(call), ir.Ref(zeros)})
	moved := g.CallFunction(ops.ToDevice, []ir.Arg{ir.Ref(sum), ir.Const(devices.CPU)})
	g.Output(ir.Ref(moved))
	g.SetSignature(&ir.Signature{
		InSpec:   treespec.Tuple(treespec.Tuple(treespec.Leaf(), treespec.Leaf()), treespec.Dict(nil)),
		OutSpec:  treespec.Leaf(),
		OrigArgs: []string{"arg_a", "arg_b"},
	})

	root := module.NewGraphUnit("Model", g)
	root.AddChild("layer", layer)
	unused := root.AddChild("unused", module.New("Unused"))
	unused.RegisterParameter("weight", tensors.Iota[float32](4))
	return root
}

// setInputs describes the placeholders of the root graph with shapes [2 3] on the CPU.
func setInputs(root *module.Unit, mode *symbolic.Mode) {
	for _, node := range root.Graph().Placeholders() {
		node.Meta.Val = mode.New(shapes.Make(dtypes.Float32, 2, 3), devices.CPU)
	}
}

func TestNamedGraphUnits(t *testing.T) {
	root := buildModel()
	root.Child("layer").AddChild("nested", module.NewGraphUnit("Nested", ir.NewGraph("nested")))
	paths := xslices.Map(NamedGraphUnits(root), func(nu module.NamedUnit) string { return nu.Path })
	assert.Equal(t, []string{"", "layer", "layer.nested"}, paths)
	assert.Empty(t, NamedGraphUnits(module.New("Empty")))
}

func TestLoggers(t *testing.T) {
	logger := NewKlogLogger()
	assert.Equal(t, DefaultDebugLevel, logger.Level())
	assert.Same(t, logger, logger.WithLevel(3))
	assert.Equal(t, klog.Level(3), logger.Level())
	logger.Debugf("not shown: %d", 1)

	// Silent transformer behaves the same.
	silent := New(nil)
	root := buildModel()
	require.NoError(t, silent.Canonicalize(root, CanonicalizeConfig{ShapeInference: true}))
	assert.Nil(t, root.Child("unused"))
}
