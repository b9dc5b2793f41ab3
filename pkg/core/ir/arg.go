// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphsurgery/pkg/core/devices"
	"github.com/gomlx/graphsurgery/pkg/core/shapes"
	"github.com/gomlx/graphsurgery/pkg/support/xslices"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type argKind uint8

const (
	constArg argKind = iota
	nodeArg
	listArg
)

// Arg is an argument of a Node: either a reference to another node of the same graph, a constant,
// or a list of arguments.
//
// The zero value is the constant nil.
type Arg struct {
	kind  argKind
	node  *Node
	value any
	list  []Arg
}

// Ref creates an argument referencing node.
func Ref(node *Node) Arg {
	if node == nil {
		exceptions.Panicf("ir.Ref(nil): referenced node cannot be nil")
	}
	return Arg{kind: nodeArg, node: node}
}

// Const creates a constant argument. Accepted values are nil, bools, ints, floats, strings, dtypes.DType,
// devices.Device, shapes.Shape and slices of ints, floats or strings.
//
// It panics for other types, in particular for *Node: use Ref instead.
func Const(value any) Arg {
	switch value.(type) {
	case nil, bool, int, int32, int64, float32, float64, string,
		dtypes.DType, devices.Device, shapes.Shape, []int, []float64, []string:
		return Arg{kind: constArg, value: value}
	case *Node:
		exceptions.Panicf("ir.Const() given a *Node, use ir.Ref() to reference nodes")
	default:
		exceptions.Panicf("ir.Const() of unsupported type %T", value)
	}
	return Arg{}
}

// List creates an argument holding a list of arguments (e.g.: the values returned by the output node).
func List(args ...Arg) Arg {
	return Arg{kind: listArg, list: args}
}

// Refs is a shortcut to a list of references to the given nodes.
func Refs(nodes ...*Node) Arg {
	return List(xslices.Map(nodes, Ref)...)
}

// IsNode returns whether the argument is a reference to a node.
func (a Arg) IsNode() bool { return a.kind == nodeArg }

// IsList returns whether the argument is a list of arguments.
func (a Arg) IsList() bool { return a.kind == listArg }

// IsConst returns whether the argument is a constant.
func (a Arg) IsConst() bool { return a.kind == constArg }

// Node referenced by the argument, or nil if it is not a reference.
func (a Arg) Node() *Node { return a.node }

// Value of a constant argument, or nil.
func (a Arg) Value() any { return a.value }

// List of arguments of a list argument, or nil.
func (a Arg) List() []Arg { return a.list }

// Device returns the constant device held by the argument, if any.
func (a Arg) Device() (devices.Device, bool) {
	device, ok := a.value.(devices.Device)
	return device, ok && a.kind == constArg
}

// Nodes returns all nodes referenced by the argument, recursively, in order.
func (a Arg) Nodes() []*Node {
	var nodes []*Node
	a.walkNodes(func(n *Node) { nodes = append(nodes, n) })
	return nodes
}

func (a Arg) walkNodes(fn func(n *Node)) {
	switch a.kind {
	case nodeArg:
		fn(a.node)
	case listArg:
		for _, sub := range a.list {
			sub.walkNodes(fn)
		}
	}
}

// replaceNode returns a copy of the argument with the references to oldNode replaced by newNode.
func (a Arg) replaceNode(oldNode, newNode *Node) Arg {
	switch a.kind {
	case nodeArg:
		if a.node == oldNode {
			return Ref(newNode)
		}
	case listArg:
		list := make([]Arg, len(a.list))
		for ii, sub := range a.list {
			list[ii] = sub.replaceNode(oldNode, newNode)
		}
		return List(list...)
	}
	return a
}

// String implements fmt.Stringer, it prints the argument as in the generated code.
func (a Arg) String() string {
	switch a.kind {
	case nodeArg:
		return a.node.Name()
	case listArg:
		parts := make([]string, len(a.list))
		for ii, sub := range a.list {
			parts[ii] = sub.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	switch v := a.value.(type) {
	case nil:
		return "None"
	case string:
		return fmt.Sprintf("%q", v)
	case devices.Device:
		return fmt.Sprintf("device(%q)", v.String())
	case dtypes.DType:
		return "dtypes." + v.String()
	}
	return fmt.Sprintf("%v", a.value)
}

// Kwargs holds the keyword arguments of a Node, in insertion order.
type Kwargs struct {
	om *orderedmap.OrderedMap[string, Arg]
}

// NewKwargs creates an empty Kwargs.
func NewKwargs() *Kwargs {
	return &Kwargs{om: orderedmap.New[string, Arg]()}
}

// Len returns the number of keyword arguments.
func (kw *Kwargs) Len() int {
	if kw == nil || kw.om == nil {
		return 0
	}
	return kw.om.Len()
}

// Get returns the argument for key, and whether it is present.
func (kw *Kwargs) Get(key string) (Arg, bool) {
	if kw.Len() == 0 {
		return Arg{}, false
	}
	return kw.om.Get(key)
}

// Has returns whether key is present.
func (kw *Kwargs) Has(key string) bool {
	_, found := kw.Get(key)
	return found
}

// Keys returns the keys in insertion order.
func (kw *Kwargs) Keys() []string {
	keys := make([]string, 0, kw.Len())
	kw.Range(func(key string, _ Arg) {
		keys = append(keys, key)
	})
	return keys
}

// Range calls fn for each keyword argument, in insertion order.
func (kw *Kwargs) Range(fn func(key string, arg Arg)) {
	if kw.Len() == 0 {
		return
	}
	for pair := kw.om.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// set the value for a key: an existing key keeps its position.
func (kw *Kwargs) set(key string, arg Arg) {
	kw.om.Set(key, arg)
}

func (kw *Kwargs) delete(key string) bool {
	_, found := kw.om.Delete(key)
	return found
}

// String implements fmt.Stringer.
func (kw *Kwargs) String() string {
	parts := make([]string, 0, kw.Len())
	kw.Range(func(key string, arg Arg) {
		parts = append(parts, fmt.Sprintf("%s=%s", key, arg))
	})
	return strings.Join(parts, ", ")
}
