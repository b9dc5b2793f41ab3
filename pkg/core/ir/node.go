/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package ir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/graphsurgery/pkg/core/symbolic"
	"github.com/gomlx/graphsurgery/pkg/support/sets"
)

// Meta holds the metadata attached to a Node. All fields are optional.
type Meta struct {
	// Val is the symbolic descriptor of the value produced by the node.
	Val *symbolic.Descriptor

	// TensorMeta is a summary of Val.
	TensorMeta *symbolic.TensorMeta
}

// Node is one operation in the computation graph.
//
// Its arguments (positional and keyword) may reference other nodes of the same graph: the referenced nodes
// are the node's inputs, and the node is registered as one of their users.
//
// Nodes are created with the Graph builder methods (Graph.Placeholder, Graph.CallFunction, ...) and
// mutated with Node.SetArg, Node.SetKwarg, Node.ReplaceAllUsesWith, which keep the users up-to-date.
//
// Node.String allows for a pretty-printing of node. To see the full graph with all nodes, use Graph.String.
type Node struct {
	graph *Graph
	name  string
	kind  OpKind

	// fn is the target of CallFunction nodes.
	fn *Target

	// path is the target of the other kinds: the dotted path for CallModule and GetAttr, the input name for
	// Placeholder and "output" for Output.
	path string

	args   []Arg
	kwargs *Kwargs

	// Meta information, freely accessible.
	Meta Meta

	users sets.Set[*Node]
}

// Graph that holds this Node. It is nil after the node is erased.
func (n *Node) Graph() *Graph {
	if n == nil {
		return nil
	}
	return n.graph
}

// Name of the node, unique within the graph.
func (n *Node) Name() string { return n.name }

// Kind of operation of the node.
func (n *Node) Kind() OpKind { return n.kind }

// Target returns the Target of a CallFunction node, or nil for other kinds.
func (n *Node) Target() *Target { return n.fn }

// TargetPath returns the dotted path of CallModule and GetAttr nodes, the input name of placeholders,
// and the target name of CallFunction nodes.
func (n *Node) TargetPath() string {
	if n.kind == CallFunction {
		return n.fn.Name
	}
	return n.path
}

// Args returns the positional arguments. The returned slice should not be changed: use SetArg or SetArgs.
func (n *Node) Args() []Arg { return n.args }

// NumArgs returns the number of positional arguments.
func (n *Node) NumArgs() int { return len(n.args) }

// Arg returns the i-th positional argument. It panics if out of range.
func (n *Node) Arg(i int) Arg {
	if i < 0 || i >= len(n.args) {
		exceptions.Panicf("node %q has %d positional arguments, cannot access #%d", n.name, len(n.args), i)
	}
	return n.args[i]
}

// Kwargs returns the keyword arguments. It should not be changed directly: use SetKwarg or DeleteKwarg.
func (n *Node) Kwargs() *Kwargs { return n.kwargs }

// Inputs returns the nodes referenced by the arguments (positional first, then keywords), without repetition.
func (n *Node) Inputs() []*Node {
	var inputs []*Node
	seen := sets.Make[*Node]()
	n.walkInputs(func(input *Node) {
		if !seen.Has(input) {
			seen.Insert(input)
			inputs = append(inputs, input)
		}
	})
	return inputs
}

func (n *Node) walkInputs(fn func(input *Node)) {
	for _, arg := range n.args {
		arg.walkNodes(fn)
	}
	n.kwargs.Range(func(_ string, arg Arg) {
		arg.walkNodes(fn)
	})
}

// NumUsers returns the number of nodes that use this node as input.
func (n *Node) NumUsers() int { return len(n.users) }

// Users returns the nodes that use this node as input, in graph order.
func (n *Node) Users() []*Node {
	users := make([]*Node, 0, len(n.users))
	for user := range n.users {
		users = append(users, user)
	}
	if n.graph != nil {
		slices.SortFunc(users, func(a, b *Node) int {
			return n.graph.position(a) - n.graph.position(b)
		})
	}
	return users
}

// IsImpure returns whether the node cannot be removed by dead-code elimination, even if unused:
// placeholders, the output, calls to submodules and calls to targets that are not Pure.
//
// The graph alone can't tell whether a submodule has side effects, so CallModule nodes are always impure here.
// See module.Unit.IsNodeImpure for the resolution against the owning unit.
func (n *Node) IsImpure() bool {
	switch n.kind {
	case Placeholder, Output, CallModule:
		return true
	case CallFunction:
		return n.fn.Effect != Pure
	}
	return false
}

// updateArgs runs mutate on the node's arguments, keeping the users of the inputs up-to-date.
func (n *Node) updateArgs(mutate func()) {
	n.walkInputs(func(input *Node) {
		delete(input.users, n)
	})
	mutate()
	n.walkInputs(func(input *Node) {
		if input.graph != n.graph {
			exceptions.Panicf("node %q cannot reference node %q from a different graph", n.name, input.name)
		}
		input.users.Insert(n)
	})
}

// SetArg sets the i-th positional argument. It panics if out of range.
func (n *Node) SetArg(i int, arg Arg) {
	_ = n.Arg(i)
	n.updateArgs(func() {
		n.args = slices.Clone(n.args)
		n.args[i] = arg
	})
}

// SetArgs replaces all positional arguments.
func (n *Node) SetArgs(args ...Arg) {
	n.updateArgs(func() {
		n.args = slices.Clone(args)
	})
}

// SetKwarg sets the keyword argument key. An existing key keeps its position.
func (n *Node) SetKwarg(key string, arg Arg) {
	n.updateArgs(func() {
		n.kwargs.set(key, arg)
	})
}

// DeleteKwarg removes the keyword argument key, and returns whether it was present.
func (n *Node) DeleteKwarg(key string) (found bool) {
	n.updateArgs(func() {
		found = n.kwargs.delete(key)
	})
	return
}

// ReplaceAllUsesWith replaces every reference to n in its users by a reference to replacement, and returns
// the users that were changed, in graph order.
func (n *Node) ReplaceAllUsesWith(replacement *Node) []*Node {
	if replacement.graph != n.graph {
		exceptions.Panicf("ReplaceAllUsesWith(%q): replacement belongs to a different graph", replacement.name)
	}
	users := n.Users()
	for _, user := range users {
		user.updateArgs(func() {
			for ii, arg := range user.args {
				user.args[ii] = arg.replaceNode(n, replacement)
			}
			newKwargs := NewKwargs()
			user.kwargs.Range(func(key string, arg Arg) {
				newKwargs.set(key, arg.replaceNode(n, replacement))
			})
			user.kwargs = newKwargs
		})
	}
	return users
}

// String implements fmt.Stringer, it prints the node as a line of the generated code.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	switch n.kind {
	case Placeholder:
		return fmt.Sprintf("%s = placeholder[target=%s]", n.name, n.path)
	case Output:
		return fmt.Sprintf("return %s", n.argsString())
	case GetAttr:
		return fmt.Sprintf("%s = self.%s", n.name, n.path)
	case CallModule:
		return fmt.Sprintf("%s = self.%s(%s)", n.name, n.path, n.argsString())
	}
	return fmt.Sprintf("%s = %s(%s)", n.name, n.fn.Name, n.argsString())
}

func (n *Node) argsString() string {
	parts := make([]string, 0, len(n.args)+n.kwargs.Len())
	for _, arg := range n.args {
		parts = append(parts, arg.String())
	}
	if n.kwargs.Len() > 0 {
		parts = append(parts, n.kwargs.String())
	}
	return strings.Join(parts, ", ")
}
