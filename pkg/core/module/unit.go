// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package module implements the Module Tree: a tree of named Unit objects, each owning variables
// (parameters and buffers), child units and, optionally, a computation graph (ir.Graph) with its derived
// Program.
//
// Units and variables are addressed by dotted paths relative to a unit, e.g. "encoder.layer0.weight".
// The root unit itself has the empty path "".
package module

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/emirpasic/gods/v2/lists/arraylist"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/graphsurgery/pkg/core/devices"
	"github.com/gomlx/graphsurgery/pkg/core/ir"
	"github.com/gomlx/graphsurgery/pkg/core/tensors"
	"github.com/gomlx/graphsurgery/pkg/support/sets"
	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Unit is a node of the Module Tree.
//
// Units are not safe for concurrent use.
type Unit struct {
	typeName  string
	children  *orderedmap.OrderedMap[string, *Unit]
	variables *orderedmap.OrderedMap[string, *Variable]

	graph         *ir.Graph
	program       *ir.Program
	numRecompiles int
	impure        bool
}

// NamedUnit is a unit with its dotted path.
type NamedUnit struct {
	Path string
	Unit *Unit
}

// NamedVariable is a variable with its dotted path.
type NamedVariable struct {
	Path     string
	Variable *Variable
}

// New creates a unit without a graph. The typeName is only used for printing.
func New(typeName string) *Unit {
	return &Unit{
		typeName:  typeName,
		children:  orderedmap.New[string, *Unit](),
		variables: orderedmap.New[string, *Variable](),
	}
}

// NewGraphUnit creates a unit owning the given graph, and generates its Program.
func NewGraphUnit(typeName string, graph *ir.Graph) *Unit {
	if graph == nil {
		exceptions.Panicf("module.NewGraphUnit(%q): graph cannot be nil", typeName)
	}
	u := New(typeName)
	u.graph = graph
	u.program = graph.GenerateProgram()
	return u
}

// TypeName of the unit.
func (u *Unit) TypeName() string { return u.typeName }

// JoinPath joins a dotted path prefix and a name. The empty path is the root.
func JoinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if name == "" {
		return prefix
	}
	return prefix + "." + name
}

// SplitPath splits a dotted path at its last ".": the owner's path and the name. The owner's path is empty
// if there is no ".".
func SplitPath(path string) (owner, name string) {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

// AddChild adds a child unit with the given name and returns the child.
// It panics if the name is invalid or already used by a child or a variable.
func (u *Unit) AddChild(name string, child *Unit) *Unit {
	assertValidName("child", name)
	if child == nil {
		exceptions.Panicf("Unit(%s).AddChild(%q): child cannot be nil", u.typeName, name)
	}
	if u.children.GetPair(name) != nil || u.variables.GetPair(name) != nil {
		exceptions.Panicf("Unit(%s).AddChild(%q): name already in use", u.typeName, name)
	}
	u.children.Set(name, child)
	return child
}

// Child returns the direct child with the given name, or nil.
func (u *Unit) Child(name string) *Unit {
	child, _ := u.children.Get(name)
	return child
}

// Children returns the direct children, in insertion order.
func (u *Unit) Children() []NamedUnit {
	children := make([]NamedUnit, 0, u.children.Len())
	for pair := u.children.Oldest(); pair != nil; pair = pair.Next() {
		children = append(children, NamedUnit{Path: pair.Key, Unit: pair.Value})
	}
	return children
}

// DeleteChild removes the direct child with the given name. It returns false if there was no such child.
func (u *Unit) DeleteChild(name string) bool {
	_, found := u.children.Delete(name)
	return found
}

// GetSubmodule returns the unit at the given dotted path. The empty path returns u itself.
func (u *Unit) GetSubmodule(path string) (*Unit, error) {
	if path == "" {
		return u, nil
	}
	current := u
	for _, name := range strings.Split(path, ".") {
		child := current.Child(name)
		if child == nil {
			return nil, errors.Errorf("Unit(%s) has no submodule %q: %q not found in Unit(%s)",
				u.typeName, path, name, current.typeName)
		}
		current = child
	}
	return current, nil
}

// DeleteSubmodule removes the unit at the given dotted path from its parent. It returns false if it
// didn't exist.
func (u *Unit) DeleteSubmodule(path string) bool {
	ownerPath, name := SplitPath(path)
	owner, err := u.GetSubmodule(ownerPath)
	if err != nil || name == "" {
		return false
	}
	return owner.DeleteChild(name)
}

// NamedUnits returns u (with path "") and all its descendants, in pre-order. Units reachable through
// more than one path are listed only once, under the first path found.
func (u *Unit) NamedUnits() []NamedUnit {
	return u.namedUnits(true)
}

func (u *Unit) namedUnits(removeDuplicate bool) []NamedUnit {
	var result []NamedUnit
	seen := sets.Make[*Unit]()
	stack := arraylist.New[NamedUnit](NamedUnit{Path: "", Unit: u})
	for !stack.Empty() {
		top, _ := stack.Get(stack.Size() - 1)
		stack.Remove(stack.Size() - 1)
		if removeDuplicate {
			if seen.Has(top.Unit) {
				continue
			}
			seen.Insert(top.Unit)
		}
		result = append(result, top)

		// Push children in reverse, so they are visited in order.
		children := top.Unit.Children()
		for ii := len(children) - 1; ii >= 0; ii-- {
			stack.Add(NamedUnit{Path: JoinPath(top.Path, children[ii].Path), Unit: children[ii].Unit})
		}
	}
	return result
}

// RegisterParameter registers a trainable variable with the given name and value, and returns it.
func (u *Unit) RegisterParameter(name string, value *tensors.Tensor) *Variable {
	return u.registerVariable(name, NewVariable(value, true))
}

// RegisterBuffer registers a non-trainable variable with the given name and value, and returns it.
func (u *Unit) RegisterBuffer(name string, value *tensors.Tensor) *Variable {
	return u.registerVariable(name, NewVariable(value, false))
}

func (u *Unit) registerVariable(name string, v *Variable) *Variable {
	assertValidName("variable", name)
	if u.children.GetPair(name) != nil || u.variables.GetPair(name) != nil {
		exceptions.Panicf("Unit(%s): cannot register variable %q, name already in use", u.typeName, name)
	}
	u.variables.Set(name, v)
	return v
}

// Variable returns the direct variable with the given name, or nil.
func (u *Unit) Variable(name string) *Variable {
	v, _ := u.variables.Get(name)
	return v
}

// SetVariable sets the direct variable name to v, replacing the previous one if present (in place, keeping
// its position).
func (u *Unit) SetVariable(name string, v *Variable) {
	assertValidName("variable", name)
	if v == nil {
		exceptions.Panicf("Unit(%s).SetVariable(%q): variable cannot be nil", u.typeName, name)
	}
	if u.children.GetPair(name) != nil {
		exceptions.Panicf("Unit(%s).SetVariable(%q): name is used by a child unit", u.typeName, name)
	}
	u.variables.Set(name, v)
}

// Variables returns the direct variables, in insertion order.
func (u *Unit) Variables() []NamedVariable {
	vars := make([]NamedVariable, 0, u.variables.Len())
	for pair := u.variables.Oldest(); pair != nil; pair = pair.Next() {
		vars = append(vars, NamedVariable{Path: pair.Key, Variable: pair.Value})
	}
	return vars
}

// NamedVariables returns the variables of u and all its descendants, keyed by dotted path, in pre-order of the
// units (each unit's own variables first).
//
// If removeDuplicate is false, variables reachable through more than one path (shared units, or the same variable
// registered under two names) are listed once per path. Otherwise, only the first path is listed.
func (u *Unit) NamedVariables(removeDuplicate bool) []NamedVariable {
	var result []NamedVariable
	seen := sets.Make[*Variable]()
	for _, nu := range u.namedUnits(removeDuplicate) {
		for _, nv := range nu.Unit.Variables() {
			if removeDuplicate {
				if seen.Has(nv.Variable) {
					continue
				}
				seen.Insert(nv.Variable)
			}
			result = append(result, NamedVariable{Path: JoinPath(nu.Path, nv.Path), Variable: nv.Variable})
		}
	}
	return result
}

// HasTarget returns whether the dotted path resolves in u for the kind of node: CallModule paths must name a
// unit, GetAttr paths a variable or a unit.
func (u *Unit) HasTarget(kind ir.OpKind, path string) bool {
	if _, err := u.GetSubmodule(path); err == nil {
		return kind == ir.CallModule || kind == ir.GetAttr
	}
	if kind != ir.GetAttr {
		return false
	}
	ownerPath, name := SplitPath(path)
	owner, err := u.GetSubmodule(ownerPath)
	return err == nil && owner.Variable(name) != nil
}

// To moves the variables of u and all its descendants to device. Variables not on device are replaced by new
// ones, see Variable.To. Variables shared by more than one unit stay shared.
func (u *Unit) To(device devices.Device) *Unit {
	if !device.Ok() {
		exceptions.Panicf("Unit(%s).To(): invalid device", u.typeName)
	}
	moved := make(map[*Variable]*Variable)
	for _, nu := range u.NamedUnits() {
		for _, nv := range nu.Unit.Variables() {
			newV, found := moved[nv.Variable]
			if !found {
				newV = nv.Variable.To(device)
				moved[nv.Variable] = newV
			}
			nu.Unit.variables.Set(nv.Path, newV)
		}
	}
	return u
}

// Graph returns the graph owned by the unit, or nil.
func (u *Unit) Graph() *ir.Graph { return u.graph }

// Program returns the Program generated by the last Recompile, or nil if the unit has no graph.
func (u *Unit) Program() *ir.Program { return u.program }

// Code returns the source of the unit's Program, or "" if the unit has no graph.
func (u *Unit) Code() string {
	if u.program == nil {
		return ""
	}
	return u.program.Source
}

// Recompile regenerates the Program from the current graph and returns it.
// It panics if the unit has no graph.
func (u *Unit) Recompile() *ir.Program {
	if u.graph == nil {
		exceptions.Panicf("Unit(%s).Recompile(): unit has no graph", u.typeName)
	}
	u.program = u.graph.GenerateProgram()
	u.numRecompiles++
	return u.program
}

// NumRecompiles returns the number of times Recompile was called.
func (u *Unit) NumRecompiles() int { return u.numRecompiles }

// SetImpure marks calls to u as having side effects: dead-code elimination keeps them even if their
// result is unused. It returns u itself.
func (u *Unit) SetImpure(impure bool) *Unit {
	u.impure = impure
	return u
}

// Impure returns whether calls to u have side effects, see SetImpure. Units are pure by default.
func (u *Unit) Impure() bool { return u.impure }

// IsNodeImpure returns whether node of u's graph must survive dead-code elimination.
//
// CallModule nodes are impure if the called unit is marked impure, or if the path doesn't resolve.
// Other nodes follow ir.Node.IsImpure.
func (u *Unit) IsNodeImpure(node *ir.Node) bool {
	if node.Kind() != ir.CallModule {
		return node.IsImpure()
	}
	sub, err := u.GetSubmodule(node.TargetPath())
	return err != nil || sub.Impure()
}

// Validate the unit's graph, including that its CallModule and GetAttr targets resolve.
func (u *Unit) Validate() error {
	if u.graph == nil {
		return errors.Errorf("Unit(%s) has no graph to validate", u.typeName)
	}
	return u.graph.ValidateWith(u.HasTarget)
}

// AssertValid panics if Validate fails.
func (u *Unit) AssertValid() {
	if err := u.Validate(); err != nil {
		exceptions.Panicf("Unit(%s) is invalid: %+v", u.typeName, err)
	}
}

// DeleteAllUnusedSubmodules removes the descendants of u not referenced by its graph's CallModule and GetAttr
// nodes. A referenced path keeps all its ancestors, and a CallModule target also keeps all its descendants.
//
// It returns the paths of the deleted units, in pre-order. It's a no-op if u has no graph.
func (u *Unit) DeleteAllUnusedSubmodules() []string {
	if u.graph == nil {
		return nil
	}
	used := sets.MakeWith("")
	markWithAncestors := func(path string) {
		for path != "" {
			used.Insert(path)
			path, _ = SplitPath(path)
		}
	}
	for _, node := range u.graph.Nodes() {
		switch node.Kind() {
		case ir.CallModule:
			markWithAncestors(node.TargetPath())
			if sub, err := u.GetSubmodule(node.TargetPath()); err == nil {
				for _, nu := range sub.namedUnits(false) {
					used.Insert(JoinPath(node.TargetPath(), nu.Path))
				}
			}
		case ir.GetAttr:
			markWithAncestors(node.TargetPath())
		}
	}
	var deleted []string
	for _, nu := range u.namedUnits(false) {
		if !used.Has(nu.Path) && u.DeleteSubmodule(nu.Path) {
			deleted = append(deleted, nu.Path)
		}
	}
	return deleted
}

// Memory returns the number of bytes used by all the variables (deduplicated) of u and its descendants.
func (u *Unit) Memory() uintptr {
	var total uintptr
	for _, nv := range u.NamedVariables(true) {
		total += nv.Variable.Value.Memory()
	}
	return total
}

// String implements fmt.Stringer. It lists the units, their variables and graphs.
func (u *Unit) String() string {
	var sb strings.Builder
	w := func(format string, args ...any) { _, _ = fmt.Fprintf(&sb, format, args...) }
	for _, nu := range u.NamedUnits() {
		path := nu.Path
		if path == "" {
			path = "<root>"
		}
		numVars := nu.Unit.variables.Len()
		w("%s: %s (%d variables, %s)\n", path, nu.Unit.typeName, numVars, humanize.Bytes(uint64(nu.Unit.ownMemory())))
		for _, nv := range nu.Unit.Variables() {
			w("  .%s = %s\n", nv.Path, nv.Variable)
		}
		if nu.Unit.graph != nil {
			w("%s\n", nu.Unit.graph.Tabular())
		}
	}
	return sb.String()
}

func (u *Unit) ownMemory() uintptr {
	var total uintptr
	for pair := u.variables.Oldest(); pair != nil; pair = pair.Next() {
		total += pair.Value.Value.Memory()
	}
	return total
}
