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

// Package ir implements the intermediate representation of a computation: a Graph of Node objects, each
// one an operation (placeholder, call_function, call_module, get_attr or output) with its arguments
// and metadata.
//
// The Graph owns the nodes and keeps them in execution order: placeholders first, the single output
// node last. Nodes track their users, so the graph can be rewritten in place: see Graph.InsertingAfter,
// Node.ReplaceAllUsesWith, Graph.EraseNode and Graph.EliminateDeadCode.
//
// A Graph doesn't execute anything: it can only generate a Program, the rendered listing of its forward
// function, and be validated (Graph.Validate).
package ir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/graphsurgery/pkg/core/treespec"
	"github.com/gomlx/graphsurgery/pkg/support/sets"
)

// Signature holds the information needed to map the original call arguments of a graph to its
// placeholders, and its output to the returned structure.
type Signature struct {
	// InSpec is the structure of the inputs: a 2-tuple `(args tuple, kwargs dict)`, whose leaves
	// correspond, in order, to the placeholders.
	InSpec *treespec.Spec

	// OutSpec is the structure of the outputs.
	OutSpec *treespec.Spec

	// OrigArgs are the names of the original arguments.
	OrigArgs []string
}

// Graph is an ordered list of nodes representing one computation.
//
// Graphs are not safe for concurrent use.
type Graph struct {
	name  string
	nodes []*Node
	names sets.Set[string]

	// Insertion point: if cursor is nil, new nodes are inserted before the output node (or at the end).
	cursor      *Node
	cursorAfter bool

	signature *Signature
}

// NewGraph creates an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{name: name, names: sets.Make[string]()}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// WithName sets the name of the Graph. Returns the graph itself.
func (g *Graph) WithName(name string) *Graph {
	g.name = name
	return g
}

// Signature returns the signature of the graph, or nil if not set.
func (g *Graph) Signature() *Signature { return g.signature }

// SetSignature sets the signature of the graph. It can be set to nil.
func (g *Graph) SetSignature(signature *Signature) {
	g.signature = signature
}

// NumNodes returns the number of nodes in the graph.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Nodes returns a copy of the list of nodes, in order.
func (g *Graph) Nodes() []*Node { return slices.Clone(g.nodes) }

// NodeNames returns the names of the nodes, in order.
func (g *Graph) NodeNames() []string {
	names := make([]string, len(g.nodes))
	for ii, node := range g.nodes {
		names[ii] = node.name
	}
	return names
}

// NodeByName returns the node with the given name, or nil if not found.
func (g *Graph) NodeByName(name string) *Node {
	for _, node := range g.nodes {
		if node.name == name {
			return node
		}
	}
	return nil
}

// FindNodes returns the nodes of the given kind, in graph order.
func (g *Graph) FindNodes(kind OpKind) []*Node {
	var found []*Node
	for _, node := range g.nodes {
		if node.kind == kind {
			found = append(found, node)
		}
	}
	return found
}

// Placeholders returns the input nodes, in order.
func (g *Graph) Placeholders() []*Node {
	return g.FindNodes(Placeholder)
}

// OutputNode returns the output node, or nil if it hasn't been created yet.
func (g *Graph) OutputNode() *Node {
	if len(g.nodes) > 0 && g.nodes[len(g.nodes)-1].kind == Output {
		return g.nodes[len(g.nodes)-1]
	}
	return nil
}

// position of the node in the graph, or -1 if not found.
func (g *Graph) position(node *Node) int {
	return slices.Index(g.nodes, node)
}

// InsertingAfter calls fn with the insertion point of new nodes set right after node.
// Nodes created in fn are inserted in the order they are created.
func (g *Graph) InsertingAfter(node *Node, fn func()) {
	g.insertingAt(node, true, fn)
}

// InsertingBefore calls fn with the insertion point of new nodes set right before node.
// Nodes created in fn are inserted in the order they are created.
func (g *Graph) InsertingBefore(node *Node, fn func()) {
	g.insertingAt(node, false, fn)
}

func (g *Graph) insertingAt(node *Node, after bool, fn func()) {
	if node.graph != g {
		exceptions.Panicf("Graph(%q): cannot insert around node %q of a different graph", g.name, node.name)
	}
	savedCursor, savedAfter := g.cursor, g.cursorAfter
	g.cursor, g.cursorAfter = node, after
	defer func() {
		g.cursor, g.cursorAfter = savedCursor, savedAfter
	}()
	fn()
}

// uniqueName returns a name based on candidate not yet used in the graph.
func (g *Graph) uniqueName(candidate string) string {
	candidate = strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(candidate)
	if candidate == "" {
		candidate = "node"
	}
	name := candidate
	for ii := 1; g.names.Has(name); ii++ {
		name = fmt.Sprintf("%s_%d", candidate, ii)
	}
	return name
}

// newNode creates the node, registers it with its inputs and inserts it at the current insertion point.
func (g *Graph) newNode(kind OpKind, nameCandidate string, fn *Target, path string, args []Arg, kwargs []Kwarg) *Node {
	node := &Node{
		graph:  g,
		name:   g.uniqueName(nameCandidate),
		kind:   kind,
		fn:     fn,
		path:   path,
		kwargs: NewKwargs(),
		users:  sets.Make[*Node](),
	}
	node.updateArgs(func() {
		node.args = slices.Clone(args)
		for _, kw := range kwargs {
			node.kwargs.set(kw.Key, kw.Arg)
		}
	})
	g.names.Insert(node.name)
	g.insert(node)
	return node
}

func (g *Graph) insert(node *Node) {
	var pos int
	switch {
	case node.kind == Output:
		pos = len(g.nodes)
	case g.cursor != nil:
		pos = g.position(g.cursor)
		if pos < 0 {
			exceptions.Panicf("Graph(%q): insertion point node %q is no longer in the graph", g.name, g.cursor.name)
		}
		if g.cursorAfter {
			pos++
			g.cursor = node
		}
	case g.OutputNode() != nil:
		pos = len(g.nodes) - 1
	default:
		pos = len(g.nodes)
	}
	g.nodes = slices.Insert(g.nodes, pos, node)
}

// Kwarg is a keyword argument given to the builder methods.
type Kwarg struct {
	Key string
	Arg Arg
}

// KW is a shortcut to create a Kwarg.
func KW(key string, arg Arg) Kwarg {
	return Kwarg{Key: key, Arg: arg}
}

// Placeholder creates a new input named name.
func (g *Graph) Placeholder(name string) *Node {
	return g.newNode(Placeholder, name, nil, name, nil, nil)
}

// CallFunction creates a node calling target with the given arguments.
func (g *Graph) CallFunction(target *Target, args []Arg, kwargs ...Kwarg) *Node {
	if target == nil {
		exceptions.Panicf("Graph(%q).CallFunction(): target cannot be nil", g.name)
	}
	return g.newNode(CallFunction, target.Name, target, "", args, kwargs)
}

// CallModule creates a node calling the graph of the submodule at the dotted path.
func (g *Graph) CallModule(path string, args []Arg, kwargs ...Kwarg) *Node {
	if path == "" {
		exceptions.Panicf("Graph(%q).CallModule(): path cannot be empty", g.name)
	}
	return g.newNode(CallModule, path, nil, path, args, kwargs)
}

// GetAttr creates a node fetching the attribute (usually a variable) at the dotted path of the owning module.
func (g *Graph) GetAttr(path string) *Node {
	if path == "" {
		exceptions.Panicf("Graph(%q).GetAttr(): path cannot be empty", g.name)
	}
	return g.newNode(GetAttr, path, nil, path, nil, nil)
}

// Output creates the output node, always at the end of the graph. There can be only one.
func (g *Graph) Output(result Arg) *Node {
	if output := g.OutputNode(); output != nil {
		exceptions.Panicf("Graph(%q) already has an output node %q", g.name, output.name)
	}
	return g.newNode(Output, "output", nil, "output", []Arg{result}, nil)
}

// EraseNode removes node from the graph. It panics if node still has users.
func (g *Graph) EraseNode(node *Node) {
	if node.graph != g {
		exceptions.Panicf("Graph(%q).EraseNode(%q): node is not part of the graph", g.name, node.name)
	}
	if node.NumUsers() > 0 {
		exceptions.Panicf("Graph(%q).EraseNode(%q): node still has %d users: %v", g.name, node.name,
			node.NumUsers(), node.Users())
	}
	pos := g.position(node)
	node.updateArgs(func() {
		node.args = nil
		node.kwargs = NewKwargs()
	})
	if g.cursor == node {
		g.cursor = nil
	}
	g.nodes = slices.Delete(g.nodes, pos, pos+1)
	g.names.Remove(node.name)
	node.graph = nil
}

// String implements fmt.Stringer, it lists the nodes of the graph.
func (g *Graph) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "Graph %q: %d nodes\n", g.name, len(g.nodes))
	for ii, node := range g.nodes {
		_, _ = fmt.Fprintf(&sb, "\t#%d %s\n", ii, node)
	}
	return sb.String()
}
