// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package treespec implements Spec, the structural description of a nested container of values (tuples, lists
// and dicts of leaves).
//
// A graph's signature uses it to map the flat list of placeholders (its leaves, in order) to the structure
// of the original call arguments: the input spec of a graph is a 2-tuple `(args tuple, kwargs dict)`.
package treespec

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Kind of Spec node.
type Kind uint8

const (
	InvalidKind Kind = iota
	LeafKind
	TupleKind
	ListKind
	DictKind
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case LeafKind:
		return "Leaf"
	case TupleKind:
		return "Tuple"
	case ListKind:
		return "List"
	case DictKind:
		return "Dict"
	}
	return "Invalid"
}

// Spec is a node of a structural description tree. Leaves have no children, containers have zero or more.
//
// The number of leaves under a Spec is cached: after structural changes (see AppendChild) Refresh must be
// called to update it.
type Spec struct {
	kind     Kind
	children []*Spec

	// keys (the context) of a DictKind Spec, one per child.
	keys []string

	numLeaves int
}

// Leaf creates a Spec for a single value.
func Leaf() *Spec {
	return &Spec{kind: LeafKind, numLeaves: 1}
}

// Tuple creates a tuple Spec with the given children.
func Tuple(children ...*Spec) *Spec {
	return newContainer(TupleKind, nil, children)
}

// List creates a list Spec with the given children.
func List(children ...*Spec) *Spec {
	return newContainer(ListKind, nil, children)
}

// Dict creates a dict Spec. There must be one key per child, and keys must be unique.
func Dict(keys []string, children ...*Spec) *Spec {
	if len(keys) != len(children) {
		exceptions.Panicf("treespec.Dict(): %d keys given for %d children", len(keys), len(children))
	}
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			exceptions.Panicf("treespec.Dict(): duplicate key %q", key)
		}
		seen[key] = true
	}
	return newContainer(DictKind, append([]string(nil), keys...), children)
}

func newContainer(kind Kind, keys []string, children []*Spec) *Spec {
	for ii, child := range children {
		if child == nil {
			exceptions.Panicf("treespec.%s(): child #%d is nil", kind, ii)
		}
	}
	s := &Spec{kind: kind, keys: keys, children: append([]*Spec(nil), children...)}
	s.Refresh()
	return s
}

// Kind of the Spec node.
func (s *Spec) Kind() Kind { return s.kind }

// IsLeaf returns whether the Spec is a leaf.
func (s *Spec) IsLeaf() bool { return s.kind == LeafKind }

// Children returns the children of the Spec. It should not be changed: use AppendChild instead.
func (s *Spec) Children() []*Spec { return s.children }

// Child returns the i-th child. It panics if out of range.
func (s *Spec) Child(i int) *Spec {
	if i < 0 || i >= len(s.children) {
		exceptions.Panicf("treespec.Spec.Child(%d): spec %s has %d children", i, s, len(s.children))
	}
	return s.children[i]
}

// Keys returns the keys (context) of a Dict spec, or nil for other kinds.
func (s *Spec) Keys() []string { return s.keys }

// NumLeaves returns the cached number of leaves under s. See Refresh.
func (s *Spec) NumLeaves() int { return s.numLeaves }

// AppendChild appends a child to a Tuple or List spec.
//
// The cached leaf counts of s and its ancestors are not updated: call Refresh on the root after the changes.
func (s *Spec) AppendChild(child *Spec) {
	if s.kind != TupleKind && s.kind != ListKind {
		exceptions.Panicf("treespec.Spec.AppendChild() only works for Tuple or List, spec is a %s", s.kind)
	}
	s.children = append(s.children, child)
}

// Refresh recomputes the cached number of leaves, children first, and returns the updated count.
func (s *Spec) Refresh() int {
	if s.kind == LeafKind {
		s.numLeaves = 1
		return 1
	}
	s.numLeaves = 0
	for _, child := range s.children {
		s.numLeaves += child.Refresh()
	}
	return s.numLeaves
}

// Clone returns a deep copy of the Spec.
func (s *Spec) Clone() *Spec {
	clone := &Spec{kind: s.kind, numLeaves: s.numLeaves}
	if s.keys != nil {
		clone.keys = append([]string(nil), s.keys...)
	}
	if s.children != nil {
		clone.children = make([]*Spec, len(s.children))
		for ii, child := range s.children {
			clone.children[ii] = child.Clone()
		}
	}
	return clone
}

// Equal returns whether both specs describe the same structure (including the cached leaf counts).
func (s *Spec) Equal(s2 *Spec) bool {
	if s == nil || s2 == nil {
		return s == s2
	}
	if s.kind != s2.kind || s.numLeaves != s2.numLeaves || len(s.children) != len(s2.children) ||
		len(s.keys) != len(s2.keys) {
		return false
	}
	for ii, key := range s.keys {
		if s2.keys[ii] != key {
			return false
		}
	}
	for ii, child := range s.children {
		if !child.Equal(s2.children[ii]) {
			return false
		}
	}
	return true
}

// Flatten the tree (a nested structure of []any and map[string]any) described by the spec into its leaves,
// in order.
func (s *Spec) Flatten(tree any) ([]any, error) {
	leaves := make([]any, 0, s.numLeaves)
	err := s.flattenInto(tree, "", &leaves)
	if err != nil {
		return nil, err
	}
	return leaves, nil
}

func (s *Spec) flattenInto(tree any, path string, leaves *[]any) error {
	switch s.kind {
	case LeafKind:
		*leaves = append(*leaves, tree)
		return nil
	case TupleKind, ListKind:
		values, ok := tree.([]any)
		if !ok {
			return errors.Errorf("treespec: value at %q is a %T, expected []any for a %s", pathOrRoot(path), tree, s.kind)
		}
		if len(values) != len(s.children) {
			return errors.Errorf("treespec: value at %q has %d elements, expected %d", pathOrRoot(path), len(values), len(s.children))
		}
		for ii, child := range s.children {
			if err := child.flattenInto(values[ii], fmt.Sprintf("%s[%d]", path, ii), leaves); err != nil {
				return err
			}
		}
		return nil
	case DictKind:
		values, ok := tree.(map[string]any)
		if !ok {
			return errors.Errorf("treespec: value at %q is a %T, expected map[string]any for a Dict", pathOrRoot(path), tree)
		}
		if len(values) != len(s.keys) {
			return errors.Errorf("treespec: value at %q has %d keys, expected %v", pathOrRoot(path), len(values), s.keys)
		}
		for ii, key := range s.keys {
			value, found := values[key]
			if !found {
				return errors.Errorf("treespec: value at %q is missing key %q", pathOrRoot(path), key)
			}
			if err := s.children[ii].flattenInto(value, fmt.Sprintf("%s[%q]", path, key), leaves); err != nil {
				return err
			}
		}
		return nil
	}
	return errors.Errorf("treespec: invalid spec kind %s", s.kind)
}

func pathOrRoot(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}

// Unflatten rebuilds the nested structure described by the spec from its leaves.
// Tuples and lists become []any, dicts become map[string]any.
func (s *Spec) Unflatten(leaves []any) (any, error) {
	if numLeaves := s.countLeaves(); len(leaves) != numLeaves {
		return nil, errors.Errorf("treespec: Unflatten() got %d leaves, spec %s has %d", len(leaves), s, numLeaves)
	}
	tree, _ := s.unflatten(leaves)
	return tree, nil
}

// countLeaves without using or updating the cache.
func (s *Spec) countLeaves() int {
	if s.kind == LeafKind {
		return 1
	}
	count := 0
	for _, child := range s.children {
		count += child.countLeaves()
	}
	return count
}

func (s *Spec) unflatten(leaves []any) (tree any, rest []any) {
	switch s.kind {
	case LeafKind:
		return leaves[0], leaves[1:]
	case DictKind:
		values := make(map[string]any, len(s.keys))
		rest = leaves
		for ii, key := range s.keys {
			values[key], rest = s.children[ii].unflatten(rest)
		}
		return values, rest
	default:
		values := make([]any, len(s.children))
		rest = leaves
		for ii, child := range s.children {
			values[ii], rest = child.unflatten(rest)
		}
		return values, rest
	}
}

// String implements fmt.Stringer. E.g.: `Tuple(Tuple(*, *), Dict(bias=*))`.
func (s *Spec) String() string {
	if s == nil {
		return "<nil>"
	}
	if s.kind == LeafKind {
		return "*"
	}
	parts := make([]string, len(s.children))
	for ii, child := range s.children {
		if s.kind == DictKind {
			parts[ii] = fmt.Sprintf("%s=%s", s.keys[ii], child)
		} else {
			parts[ii] = child.String()
		}
	}
	return fmt.Sprintf("%s(%s)", s.kind, strings.Join(parts, ", "))
}
