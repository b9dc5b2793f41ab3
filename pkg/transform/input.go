// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package transform

import (
	"github.com/gomlx/graphsurgery/pkg/core/ir"
	"github.com/gomlx/graphsurgery/pkg/core/module"
	"github.com/gomlx/graphsurgery/pkg/core/shapeprop"
	"github.com/gomlx/graphsurgery/pkg/core/symbolic"
	"github.com/gomlx/graphsurgery/pkg/core/tensors"
	"github.com/gomlx/graphsurgery/pkg/core/treespec"
	"github.com/gomlx/graphsurgery/pkg/support/xslices"
	"github.com/pkg/errors"
)

// DynamicShape maps axes of an input to the name of their dynamic dimension.
type DynamicShape map[int]string

// UnsupportedFeatureError is returned when a transformation is asked to do something it doesn't support.
type UnsupportedFeatureError struct {
	Feature string
}

// Error implements the error interface.
func (e *UnsupportedFeatureError) Error() string {
	return "unsupported feature: " + e.Feature
}

// AddGraphInput adds a new input (placeholder) named name to the graph of unit, after the existing ones, and
// updates the graph signature accordingly: a leaf is appended to the positional arguments tuple of the input
// structure and "arg_"+name to the original argument names.
//
// If a Mode can be detected on the graph (see shapeprop.DetectMode) and example is given, the new placeholder is
// described from example.
//
// The new input is not used by any node: the caller is expected to wire it, and to canonicalize the unit afterwards.
// Dynamic shapes are not supported: a non-empty dynamicShape returns an *UnsupportedFeatureError.
func (t *Transformer) AddGraphInput(unit *module.Unit, name string, example *tensors.Tensor,
	dynamicShape DynamicShape) (*ir.Node, error) {
	if len(dynamicShape) > 0 {
		return nil, &UnsupportedFeatureError{Feature: "dynamic shapes for new graph inputs"}
	}
	g := unit.Graph()
	if g == nil {
		return nil, errors.Errorf("AddGraphInput(%q): unit %s has no graph", name, unit.TypeName())
	}
	sig := g.Signature()
	if sig == nil || sig.InSpec == nil {
		return nil, errors.Errorf("AddGraphInput(%q): graph %q has no input signature", name, g.Name())
	}
	if sig.InSpec.Kind() != treespec.TupleKind || len(sig.InSpec.Children()) == 0 ||
		sig.InSpec.Child(0).Kind() != treespec.TupleKind {
		return nil, errors.Errorf("AddGraphInput(%q): graph %q input structure %s doesn't start with a tuple of arguments",
			name, g.Name(), sig.InSpec)
	}

	var placeholder *ir.Node
	create := func() { placeholder = g.Placeholder(name) }
	nodes := g.Nodes()
	if placeholders := g.Placeholders(); len(placeholders) > 0 {
		g.InsertingAfter(xslices.Last(placeholders), create)
	} else if len(nodes) > 0 {
		g.InsertingBefore(nodes[0], create)
	} else {
		create()
	}

	sig.InSpec.Child(0).AppendChild(treespec.Leaf())
	sig.OrigArgs = append(sig.OrigArgs, "arg_"+name)
	sig.InSpec.Refresh()

	if mode := shapeprop.DetectMode(g); mode != nil && example != nil {
		placeholder.Meta.Val = mode.FromTensor(example)
		placeholder.Meta.TensorMeta = symbolic.ExtractTensorMeta(placeholder.Meta.Val)
	}
	t.logger.Debugf("AddGraphInput: added placeholder %q to graph %q, %d inputs", placeholder.Name(), g.Name(),
		sig.InSpec.NumLeaves())
	return placeholder, nil
}
