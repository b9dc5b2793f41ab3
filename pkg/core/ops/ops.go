// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ops is the registry of the standard targets (operations) used in CallFunction nodes, with their
// purity classification, device-transfer flag and shape rule.
//
// Targets are registered once, at package initialization, and referred by pointer from the nodes. Use Lookup
// to find a target by name, or the exported variables (Add, MatMul, ToDevice, ...).
package ops

import (
	"sort"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/graphsurgery/pkg/core/ir"
	"github.com/gomlx/graphsurgery/pkg/core/shapeinference"
)

var registry = make(map[string]*ir.Target)

// Register a new target. It panics if a target with the same name is already registered.
// It returns the target itself, for convenience.
func Register(target *ir.Target) *ir.Target {
	if target == nil || target.Name == "" {
		exceptions.Panicf("ops.Register(): target must be non-nil and named")
	}
	if _, found := registry[target.Name]; found {
		exceptions.Panicf("ops.Register(%q): target already registered", target.Name)
	}
	registry[target.Name] = target
	return target
}

// Lookup returns the registered target with the given name.
func Lookup(name string) (target *ir.Target, found bool) {
	target, found = registry[name]
	return
}

// Names of all registered targets, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func pure(name string, infer ir.InferFn) *ir.Target {
	return Register(&ir.Target{Name: name, Effect: ir.Pure, DeviceArg: ir.NoDeviceArg, Infer: infer})
}

// Arithmetic and element-wise operations.
var (
	Add = pure("add", binaryRule("add", shapeinference.NumberDTypes))
	Sub = pure("sub", binaryRule("sub", shapeinference.NumberDTypes))
	Mul = pure("mul", binaryRule("mul", shapeinference.NumberDTypes))
	Div = pure("div", binaryRule("div", shapeinference.NumberDTypes))
	Pow = pure("pow", binaryRule("pow", shapeinference.FloatDTypes))

	Neg  = pure("neg", unaryRule("neg", shapeinference.SignedDTypes))
	Exp  = pure("exp", unaryRule("exp", shapeinference.FloatDTypes))
	Tanh = pure("tanh", unaryRule("tanh", shapeinference.FloatDTypes))
	Relu = pure("relu", unaryRule("relu", shapeinference.NumberDTypes))
)

// Shape manipulation and contractions.
var (
	// MatMul(lhs, rhs)
	MatMul = pure("matmul", matMulRule)

	// Reshape(x, dims []int)
	Reshape = pure("reshape", reshapeRule)

	// Transpose(x, permutations []int)
	Transpose = pure("transpose", transposeRule)

	// Sum(x, axes []int), with optional keyword argument keep_dims (bool).
	Sum = pure("sum", sumRule)

	// Concat(list of tensors, axis int)
	Concat = pure("concat", concatRule)
)

// ToDevice(x, device) copies x to the device given as its second positional argument.
var ToDevice = Register(&ir.Target{Name: "to_device", Effect: ir.Pure, DeviceArg: 1, Infer: toDeviceRule})

// Factories create new tensors of the shape given as first argument ([]int). They take the optional keyword
// arguments dtype (defaults to Float32) and device (defaults to CPU).
var (
	Zeros = pure("zeros", factoryRule("zeros"))
	Ones  = pure("ones", factoryRule("ones"))
	Empty = pure("empty", factoryRule("empty"))
)

// Nondeterministic targets: random number generation.
var (
	// Rand and Randn are factories, see Zeros.
	Rand  = Register(&ir.Target{Name: "rand", Effect: ir.Nondeterministic, DeviceArg: ir.NoDeviceArg, Infer: factoryRule("rand")})
	Randn = Register(&ir.Target{Name: "randn", Effect: ir.Nondeterministic, DeviceArg: ir.NoDeviceArg, Infer: factoryRule("randn")})

	// Dropout(x, rate float64)
	Dropout = Register(&ir.Target{Name: "dropout", Effect: ir.Nondeterministic, DeviceArg: ir.NoDeviceArg,
		Infer: unaryRule("dropout", shapeinference.FloatDTypes)})
)

// Side-effect targets.
var (
	// CopyInPlace(dst, src) copies src into dst in place, and returns dst.
	CopyInPlace = Register(&ir.Target{Name: "copy_", Effect: ir.SideEffect, DeviceArg: ir.NoDeviceArg, Infer: copyRule})

	// Print(x) prints x. It has no output value.
	Print = Register(&ir.Target{Name: "print", Effect: ir.SideEffect, DeviceArg: ir.NoDeviceArg, Infer: printRule})
)
