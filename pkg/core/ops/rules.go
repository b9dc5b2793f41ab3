// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphsurgery/pkg/core/devices"
	"github.com/gomlx/graphsurgery/pkg/core/ir"
	"github.com/gomlx/graphsurgery/pkg/core/shapeinference"
	"github.com/gomlx/graphsurgery/pkg/core/shapes"
	"github.com/gomlx/graphsurgery/pkg/core/symbolic"
	"github.com/pkg/errors"
)

// tensorArg returns the i-th argument as a descriptor.
func tensorArg(opName string, args []any, i int) (*symbolic.Descriptor, error) {
	if i >= len(args) {
		return nil, errors.Errorf("%s: missing argument #%d, got only %d arguments", opName, i, len(args))
	}
	d, ok := args[i].(*symbolic.Descriptor)
	if !ok || d == nil {
		return nil, errors.Errorf("%s: argument #%d must be a tensor, got %T", opName, i, args[i])
	}
	return d, nil
}

// intsArg returns the i-th argument as a []int. A single int is accepted as a one-element list.
func intsArg(opName string, args []any, i int) ([]int, error) {
	if i >= len(args) {
		return nil, errors.Errorf("%s: missing argument #%d, got only %d arguments", opName, i, len(args))
	}
	switch v := args[i].(type) {
	case []int:
		return v, nil
	case int:
		return []int{v}, nil
	case []any:
		ints := make([]int, len(v))
		for ii, e := range v {
			value, ok := e.(int)
			if !ok {
				return nil, errors.Errorf("%s: argument #%d must be a list of ints, element #%d is a %T", opName, i, ii, e)
			}
			ints[ii] = value
		}
		return ints, nil
	}
	return nil, errors.Errorf("%s: argument #%d must be a list of ints, got %T", opName, i, args[i])
}

// sameDevice returns the common device of the descriptors, or an error if they differ.
func sameDevice(opName string, descs ...*symbolic.Descriptor) (devices.Device, error) {
	device := descs[0].Device()
	for ii, d := range descs[1:] {
		if d.Device() != device {
			return device, errors.Errorf("%s: all tensors must be on the same device, got %s for #0 and %s for #%d",
				opName, device, d.Device(), ii+1)
		}
	}
	return device, nil
}

// scalarOrTensor returns the shape of the i-th argument, which may also be a Go number constant, taken
// as a scalar of the given dtype.
func scalarOrTensor(opName string, args []any, i int, dtype dtypes.DType) (shape shapes.Shape, desc *symbolic.Descriptor, err error) {
	if i < len(args) {
		switch args[i].(type) {
		case int, int32, int64, float32, float64:
			return shapes.Make(dtype), nil, nil
		}
	}
	desc, err = tensorArg(opName, args, i)
	if err != nil {
		return
	}
	return desc.Shape(), desc, nil
}

func binaryRule(opName string, class shapeinference.DTypeClass) ir.InferFn {
	return func(mode *symbolic.Mode, args []any, _ map[string]any) (*symbolic.Descriptor, error) {
		// At least one of the operands must be a tensor, to define the dtype and device.
		var first *symbolic.Descriptor
		for _, arg := range args {
			if d, ok := arg.(*symbolic.Descriptor); ok && d != nil {
				first = d
				break
			}
		}
		if first == nil {
			return nil, errors.Errorf("%s: requires at least one tensor operand, got %v", opName, args)
		}
		lhs, lhsDesc, err := scalarOrTensor(opName, args, 0, first.DType())
		if err != nil {
			return nil, err
		}
		rhs, rhsDesc, err := scalarOrTensor(opName, args, 1, first.DType())
		if err != nil {
			return nil, err
		}
		if lhsDesc != nil && rhsDesc != nil {
			if _, err = sameDevice(opName, lhsDesc, rhsDesc); err != nil {
				return nil, err
			}
		}
		output, err := shapeinference.BinaryOp(opName, class, lhs, rhs)
		if err != nil {
			return nil, err
		}
		return mode.New(output, first.Device()), nil
	}
}

func unaryRule(opName string, class shapeinference.DTypeClass) ir.InferFn {
	return func(mode *symbolic.Mode, args []any, _ map[string]any) (*symbolic.Descriptor, error) {
		operand, err := tensorArg(opName, args, 0)
		if err != nil {
			return nil, err
		}
		output, err := shapeinference.UnaryOp(opName, class, operand.Shape())
		if err != nil {
			return nil, err
		}
		return mode.New(output, operand.Device()), nil
	}
}

func matMulRule(mode *symbolic.Mode, args []any, _ map[string]any) (*symbolic.Descriptor, error) {
	lhs, err := tensorArg("matmul", args, 0)
	if err != nil {
		return nil, err
	}
	rhs, err := tensorArg("matmul", args, 1)
	if err != nil {
		return nil, err
	}
	device, err := sameDevice("matmul", lhs, rhs)
	if err != nil {
		return nil, err
	}
	output, err := shapeinference.MatMulOp(lhs.Shape(), rhs.Shape())
	if err != nil {
		return nil, err
	}
	return mode.New(output, device), nil
}

func reshapeRule(mode *symbolic.Mode, args []any, _ map[string]any) (*symbolic.Descriptor, error) {
	operand, err := tensorArg("reshape", args, 0)
	if err != nil {
		return nil, err
	}
	dims, err := intsArg("reshape", args, 1)
	if err != nil {
		return nil, err
	}
	output, err := shapeinference.ReshapeOp(operand.Shape(), dims)
	if err != nil {
		return nil, err
	}
	return mode.New(output, operand.Device()), nil
}

func transposeRule(mode *symbolic.Mode, args []any, _ map[string]any) (*symbolic.Descriptor, error) {
	operand, err := tensorArg("transpose", args, 0)
	if err != nil {
		return nil, err
	}
	permutations, err := intsArg("transpose", args, 1)
	if err != nil {
		return nil, err
	}
	output, err := shapeinference.TransposeOp(operand.Shape(), permutations)
	if err != nil {
		return nil, err
	}
	return mode.New(output, operand.Device()), nil
}

func sumRule(mode *symbolic.Mode, args []any, kwargs map[string]any) (*symbolic.Descriptor, error) {
	operand, err := tensorArg("sum", args, 0)
	if err != nil {
		return nil, err
	}
	var axes []int
	if len(args) > 1 && args[1] != nil {
		axes, err = intsArg("sum", args, 1)
		if err != nil {
			return nil, err
		}
	}
	keepDims, _ := kwargs["keep_dims"].(bool)
	output, err := shapeinference.ReduceOp(operand.Shape(), axes, keepDims)
	if err != nil {
		return nil, err
	}
	return mode.New(output, operand.Device()), nil
}

func concatRule(mode *symbolic.Mode, args []any, _ map[string]any) (*symbolic.Descriptor, error) {
	if len(args) < 2 {
		return nil, errors.Errorf("concat: requires a list of tensors and an axis, got %d arguments", len(args))
	}
	list, ok := args[0].([]any)
	if !ok || len(list) == 0 {
		return nil, errors.Errorf("concat: first argument must be a non-empty list of tensors, got %T", args[0])
	}
	descs := make([]*symbolic.Descriptor, len(list))
	inputShapes := make([]shapes.Shape, len(list))
	for ii := range list {
		descs[ii], _ = list[ii].(*symbolic.Descriptor)
		if descs[ii] == nil {
			return nil, errors.Errorf("concat: element #%d of the list is not a tensor, got %T", ii, list[ii])
		}
		inputShapes[ii] = descs[ii].Shape()
	}
	axis, ok := args[1].(int)
	if !ok {
		return nil, errors.Errorf("concat: axis must be an int, got %T", args[1])
	}
	device, err := sameDevice("concat", descs...)
	if err != nil {
		return nil, err
	}
	output, err := shapeinference.ConcatenateOp(inputShapes, axis)
	if err != nil {
		return nil, err
	}
	return mode.New(output, device), nil
}

func toDeviceRule(mode *symbolic.Mode, args []any, _ map[string]any) (*symbolic.Descriptor, error) {
	operand, err := tensorArg("to_device", args, 0)
	if err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return nil, errors.Errorf("to_device: missing the device argument")
	}
	device, ok := args[1].(devices.Device)
	if !ok {
		return nil, errors.Errorf("to_device: second argument must be a device, got %T", args[1])
	}
	return mode.New(operand.Shape(), device), nil
}

func factoryRule(opName string) ir.InferFn {
	return func(mode *symbolic.Mode, args []any, kwargs map[string]any) (*symbolic.Descriptor, error) {
		dims, err := intsArg(opName, args, 0)
		if err != nil {
			return nil, err
		}
		for axis, dim := range dims {
			if dim <= 0 {
				return nil, errors.Errorf("%s: invalid dimension %d for axis #%d", opName, dim, axis)
			}
		}
		dtype := dtypes.Float32
		if value, found := kwargs["dtype"]; found && value != nil {
			if dtype, found = value.(dtypes.DType); !found {
				return nil, errors.Errorf("%s: dtype must be a dtypes.DType, got %T", opName, value)
			}
		}
		device := devices.CPU
		if value, found := kwargs["device"]; found && value != nil {
			if device, found = value.(devices.Device); !found {
				return nil, errors.Errorf("%s: device must be a devices.Device, got %T", opName, value)
			}
		}
		return mode.New(shapes.Make(dtype, dims...), device), nil
	}
}

func copyRule(mode *symbolic.Mode, args []any, _ map[string]any) (*symbolic.Descriptor, error) {
	dst, err := tensorArg("copy_", args, 0)
	if err != nil {
		return nil, err
	}
	src, err := tensorArg("copy_", args, 1)
	if err != nil {
		return nil, err
	}
	if _, err = shapeinference.BinaryOp("copy_", shapeinference.AnyDType, dst.Shape(), src.Shape()); err != nil {
		return nil, err
	}
	return mode.New(dst.Shape(), dst.Device()), nil
}

func printRule(_ *symbolic.Mode, args []any, _ map[string]any) (*symbolic.Descriptor, error) {
	if _, err := tensorArg("print", args, 0); err != nil {
		return nil, err
	}
	return nil, nil
}
