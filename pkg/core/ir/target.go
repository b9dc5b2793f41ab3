// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"github.com/gomlx/graphsurgery/pkg/core/symbolic"
)

// OpKind is the kind of operation a Node performs.
type OpKind uint8

const (
	InvalidOp OpKind = iota

	// Placeholder is a graph input.
	Placeholder

	// CallFunction calls a Target (a standard operation).
	CallFunction

	// CallModule calls the graph of a submodule, referred by its dotted path.
	CallModule

	// GetAttr fetches a variable (or other attribute) of the owning module, referred by its dotted path.
	GetAttr

	// Output is the graph output: it must be the last node, and there is exactly one per graph.
	Output
)

// String implements fmt.Stringer.
func (k OpKind) String() string {
	switch k {
	case Placeholder:
		return "placeholder"
	case CallFunction:
		return "call_function"
	case CallModule:
		return "call_module"
	case GetAttr:
		return "get_attr"
	case Output:
		return "output"
	}
	return "invalid"
}

// Effect classifies the purity of a Target.
type Effect uint8

const (
	// Pure operations can be removed if their outputs are not used.
	Pure Effect = iota

	// Nondeterministic operations (e.g. random number generation) are seeded and otherwise pure,
	// but are never removed by dead-code elimination.
	Nondeterministic

	// SideEffect operations (e.g. in-place updates, printing) are never removed.
	SideEffect
)

// String implements fmt.Stringer.
func (e Effect) String() string {
	switch e {
	case Pure:
		return "pure"
	case Nondeterministic:
		return "nondeterministic"
	case SideEffect:
		return "side-effect"
	}
	return "invalid"
}

// InferFn computes the descriptor of the output of an operation, given its arguments resolved:
// node references are replaced by their *symbolic.Descriptor, constants are passed as is, and list
// arguments become []any.
type InferFn func(mode *symbolic.Mode, args []any, kwargs map[string]any) (*symbolic.Descriptor, error)

// NoDeviceArg is the value of Target.DeviceArg for operations that don't transfer data across devices.
const NoDeviceArg = -1

// Target is the classification of a CallFunction operation. Targets are created once and registered
// (see package ops), and nodes point to them.
type Target struct {
	// Name of the operation, used in listings and generated code.
	Name string

	// Effect of the operation: fixed at registration time.
	Effect Effect

	// DeviceArg is the index of the positional argument selecting the destination device, for
	// device-transfer operations. NoDeviceArg (-1) otherwise.
	DeviceArg int

	// Infer is the shape rule of the operation. It may be nil, in which case shape propagation fails
	// on nodes using the target.
	Infer InferFn
}

// IsDeviceTransfer returns whether the target moves data to the device given by one of its positional arguments.
func (t *Target) IsDeviceTransfer() bool {
	return t.DeviceArg >= 0
}

// String implements fmt.Stringer.
func (t *Target) String() string {
	if t == nil {
		return "<nil target>"
	}
	return t.Name
}
