// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

// EliminateDeadCode removes the nodes whose values are not used, until no more nodes can be removed.
//
// A node is removed if it has no users and isImpure returns false for it. If isImpure is nil,
// Node.IsImpure is used.
//
// It returns the number of nodes removed.
func (g *Graph) EliminateDeadCode(isImpure func(node *Node) bool) int {
	if isImpure == nil {
		isImpure = (*Node).IsImpure
	}
	numRemoved := 0
	for {
		// Reverse order: removing a node may free its inputs, visited next.
		changed := false
		for ii := len(g.nodes) - 1; ii >= 0; ii-- {
			node := g.nodes[ii]
			if node.NumUsers() > 0 || isImpure(node) {
				continue
			}
			g.EraseNode(node)
			numRemoved++
			changed = true
		}
		if !changed {
			return numRemoved
		}
	}
}
