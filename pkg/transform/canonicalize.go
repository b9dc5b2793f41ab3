// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package transform

import (
	"github.com/gomlx/graphsurgery/pkg/core/module"
	"github.com/gomlx/graphsurgery/pkg/core/shapeprop"
	"github.com/gomlx/graphsurgery/pkg/core/symbolic"
	"github.com/gomlx/graphsurgery/pkg/core/tensors"
	"github.com/pkg/errors"
)

// CanonicalizeConfig configures Transformer.Canonicalize.
type CanonicalizeConfig struct {
	// ShapeInference enables the propagation of the placeholder descriptors through the graphs.
	ShapeInference bool

	// FallbackInputs are used to describe the placeholders of the root unit that have no descriptor.
	// Only used if ShapeInference is set, and if it has one tensor per placeholder.
	FallbackInputs []*tensors.Tensor
}

// Canonicalize cleans up the graphs of root and its descendants after a rewrite. For each graph unit, leaves first:
//
//  1. Dead code elimination, to a fixed point: see ir.Graph.EliminateDeadCode and module.Unit.IsNodeImpure.
//     Nondeterministic and side-effecting nodes, and calls to units marked impure, are never removed.
//  2. The unit is recompiled.
//  3. Submodules no longer used by the graph are deleted: see module.Unit.DeleteAllUnusedSubmodules.
//  4. If config.ShapeInference is set and every placeholder has a descriptor, the descriptors are propagated
//     through the graph (see shapeprop.Propagate). Otherwise, a warning is logged and propagation is skipped.
//  5. The graph is validated: an invalid graph is a bug, and it panics.
//
// It returns an error only if a shape rule fails during propagation. Canonicalizing a canonical tree changes
// nothing.
func (t *Transformer) Canonicalize(root *module.Unit, config CanonicalizeConfig) error {
	t.logger.Debugf("Before canonicalizing: %s", root)
	graphUnits := NamedGraphUnits(root)
	for ii := len(graphUnits) - 1; ii >= 0; ii-- {
		nu := graphUnits[ii]
		var fallbackInputs []*tensors.Tensor
		if nu.Unit == root {
			fallbackInputs = config.FallbackInputs
		}
		if err := t.canonicalizeUnit(nu, config.ShapeInference, fallbackInputs); err != nil {
			return err
		}
	}
	t.logger.Debugf("After canonicalizing: %s", root)
	return nil
}

func (t *Transformer) canonicalizeUnit(nu module.NamedUnit, shapeInference bool, fallbackInputs []*tensors.Tensor) error {
	unit, g := nu.Unit, nu.Unit.Graph()
	if numRemoved := g.EliminateDeadCode(unit.IsNodeImpure); numRemoved > 0 {
		t.logger.Debugf("Canonicalize: removed %d dead nodes from unit %q (%s)", numRemoved, nu.Path, unit.TypeName())
	}
	unit.Recompile()
	if deleted := unit.DeleteAllUnusedSubmodules(); len(deleted) > 0 {
		t.logger.Debugf("Canonicalize: deleted unused submodules %q of unit %q", deleted, nu.Path)
	}
	if shapeInference {
		if err := t.inferShapes(nu, fallbackInputs); err != nil {
			return err
		}
	}
	unit.AssertValid()
	return nil
}

// inferShapes propagates the descriptors of the placeholders of the unit, if they are all known.
func (t *Transformer) inferShapes(nu module.NamedUnit, fallbackInputs []*tensors.Tensor) error {
	g := nu.Unit.Graph()
	mode := shapeprop.DetectMode(g)
	placeholders := g.Placeholders()
	if mode == nil && len(placeholders) == 0 {
		// Nothing to describe: propagate the variables and constants with a fresh context.
		mode = symbolic.NewMode("canonicalize")
	}
	inputs := make([]*symbolic.Descriptor, len(placeholders))
	numMissing := 0
	for ii, node := range placeholders {
		inputs[ii] = node.Meta.Val
		if inputs[ii] == nil {
			numMissing++
		}
	}
	if numMissing > 0 && mode != nil && len(fallbackInputs) == len(placeholders) {
		for ii, input := range inputs {
			if input == nil && fallbackInputs[ii] != nil {
				inputs[ii] = mode.FromTensor(fallbackInputs[ii])
				numMissing--
			}
		}
	}
	if mode == nil {
		t.logger.Warningf("Canonicalize: skipping shape inference of unit %q (%s): no inference context found",
			nu.Path, nu.Unit.TypeName())
		return nil
	}
	if numMissing > 0 {
		t.logger.Warningf("Canonicalize: skipping shape inference of unit %q (%s): %d of %d placeholders have no descriptor",
			nu.Path, nu.Unit.TypeName(), numMissing, len(placeholders))
		return nil
	}
	if err := shapeprop.Propagate(nu.Unit, mode, inputs...); err != nil {
		return errors.WithMessagef(err, "Canonicalize: shape inference of unit %q (%s) failed", nu.Path, nu.Unit.TypeName())
	}
	return nil
}
