// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/graphsurgery/pkg/core/treespec"
	"github.com/gomlx/graphsurgery/pkg/support/sets"
	"github.com/pkg/errors"
)

// TargetResolver reports whether the dotted path of a CallModule or GetAttr node resolves in the module
// owning the graph.
type TargetResolver func(kind OpKind, path string) bool

// Validate checks the structural invariants of the graph, see ValidateWith. It doesn't check that
// CallModule and GetAttr targets resolve.
func (g *Graph) Validate() error {
	return g.ValidateWith(nil)
}

// ValidateWith checks the structural invariants of the graph:
//
//   - Node names are unique and every node belongs to the graph.
//   - Every referenced node belongs to the graph and comes before its user.
//   - Users are consistent with the references.
//   - Placeholders come first, and there is exactly one output node, the last one.
//   - CallFunction nodes have a target, and CallModule and GetAttr targets resolve (if resolve is not nil).
//   - If there is a signature, its input spec is a 2-tuple whose number of leaves matches the number of placeholders.
func (g *Graph) ValidateWith(resolve TargetResolver) error {
	seen := sets.Make[*Node](len(g.nodes))
	names := sets.Make[string](len(g.nodes))
	numPlaceholders := 0
	for ii, node := range g.nodes {
		if node.graph != g {
			return errors.Errorf("graph %q: node #%d %q belongs to another graph", g.name, ii, node.name)
		}
		if names.Has(node.name) {
			return errors.Errorf("graph %q: node name %q is used more than once", g.name, node.name)
		}
		names.Insert(node.name)

		// Inputs must come before.
		for _, input := range node.Inputs() {
			if input.graph != g {
				return errors.Errorf("graph %q: node %q references node %q which is not part of the graph",
					g.name, node.name, input.name)
			}
			if !seen.Has(input) {
				return errors.Errorf("graph %q: node %q references node %q defined after it",
					g.name, node.name, input.name)
			}
			if !input.users.Has(node) {
				return errors.Errorf("graph %q: node %q is not registered as a user of its input %q",
					g.name, node.name, input.name)
			}
		}
		seen.Insert(node)

		switch node.kind {
		case Placeholder:
			if numPlaceholders != ii {
				return errors.Errorf("graph %q: placeholder %q (#%d) is not among the first nodes of the graph",
					g.name, node.name, ii)
			}
			numPlaceholders++
		case Output:
			if ii != len(g.nodes)-1 {
				return errors.Errorf("graph %q: output node %q is #%d, but it must be the last node", g.name, node.name, ii)
			}
		case CallFunction:
			if node.fn == nil {
				return errors.Errorf("graph %q: call_function node %q has no target", g.name, node.name)
			}
		case CallModule, GetAttr:
			if node.path == "" {
				return errors.Errorf("graph %q: %s node %q has no target path", g.name, node.kind, node.name)
			}
			if resolve != nil && !resolve(node.kind, node.path) {
				return errors.Errorf("graph %q: %s node %q target %q doesn't exist", g.name, node.kind, node.name, node.path)
			}
		default:
			return errors.Errorf("graph %q: node %q has invalid kind %s", g.name, node.name, node.kind)
		}
	}
	if !g.names.Equal(names) {
		return errors.Errorf("graph %q: registered node names out of sync with the nodes", g.name)
	}
	if g.OutputNode() == nil {
		return errors.Errorf("graph %q has no output node", g.name)
	}

	// Users must point back.
	for _, node := range g.nodes {
		for user := range node.users {
			if user.graph != g {
				return errors.Errorf("graph %q: node %q lists user %q which is not part of the graph",
					g.name, node.name, user.name)
			}
			found := false
			user.walkInputs(func(input *Node) { found = found || input == node })
			if !found {
				return errors.Errorf("graph %q: node %q lists user %q which doesn't reference it",
					g.name, node.name, user.name)
			}
		}
	}

	if sig := g.signature; sig != nil && sig.InSpec != nil {
		inSpec := sig.InSpec
		if inSpec.Kind() != treespec.TupleKind || len(inSpec.Children()) != 2 {
			return errors.Errorf("graph %q: input spec must be a 2-tuple (args, kwargs), got %s", g.name, inSpec)
		}
		if inSpec.NumLeaves() != numPlaceholders {
			return errors.Errorf("graph %q: input spec %s has %d leaves, but the graph has %d placeholders",
				g.name, inSpec, inSpec.NumLeaves(), numPlaceholders)
		}
	}
	return nil
}

// AssertValid panics if the graph is not valid, see ValidateWith.
func (g *Graph) AssertValid(resolve TargetResolver) {
	if err := g.ValidateWith(resolve); err != nil {
		exceptions.Panicf("invalid graph: %+v", err)
	}
}
