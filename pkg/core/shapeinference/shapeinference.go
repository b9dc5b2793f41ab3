// Package shapeinference calculates the shape resulting from operations and validates its inputs.
//
// It is used by the shape propagation of graphs to compute the symbolic descriptors of every node, without
// executing anything.
//
// BinaryOp handles the majority of the binary functions, using numpy-like broadcasting rules. UnaryOp handles
// the ones that don't change the shape. For the remainder ops there is one function per operation.
package shapeinference

import (
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphsurgery/pkg/core/shapes"
	"github.com/gomlx/graphsurgery/pkg/support/sets"
	"github.com/pkg/errors"
)

// DTypeClass restricts the data types accepted by an operation.
type DTypeClass int

const (
	// AnyDType accepts any valid data type.
	AnyDType DTypeClass = iota

	// NumberDTypes accepts integers, floats or complex numbers.
	NumberDTypes

	// SignedDTypes accepts signed integers, floats or complex numbers.
	SignedDTypes

	// FloatDTypes accepts only floats (not complex numbers).
	FloatDTypes

	// BoolDType accepts only booleans.
	BoolDType
)

// String implements fmt.Stringer.
func (c DTypeClass) String() string {
	switch c {
	case AnyDType:
		return "any"
	case NumberDTypes:
		return "number"
	case SignedDTypes:
		return "signed number"
	case FloatDTypes:
		return "float"
	case BoolDType:
		return "boolean"
	}
	return "unknown"
}

// Accepts returns whether dtype belongs to the class.
func (c DTypeClass) Accepts(dtype dtypes.DType) bool {
	if dtype == dtypes.InvalidDType {
		return false
	}
	isNumber := dtype.IsInt() || dtype.IsFloat() || dtype.IsComplex()
	switch c {
	case NumberDTypes:
		return isNumber
	case SignedDTypes:
		return isNumber && !dtype.IsUnsigned()
	case FloatDTypes:
		return dtype.IsFloat()
	case BoolDType:
		return dtype == dtypes.Bool
	}
	return true
}

// BinaryOp returns the broadcast shape of lhsShape and rhsShape, or an error if they are not compatible.
//
// Broadcasting aligns the dimensions of the operands to the right: each pair of dimensions must either match,
// or one of them must be 1. The operand with the smaller rank is implicitly prefixed with dimensions 1.
//
// It returns an error if the data type (shape.DType) is invalid for the operation, e.g.: non-matching
// dtypes, or a float operation on integers.
func BinaryOp(opName string, class DTypeClass, lhsShape, rhsShape shapes.Shape) (output shapes.Shape, err error) {
	if lhsShape.DType == dtypes.InvalidDType || rhsShape.DType == dtypes.InvalidDType {
		err = errors.Errorf("invalid shape for %s or %s for BinaryOp %s", lhsShape, rhsShape, opName)
		return
	}
	if lhsShape.DType != rhsShape.DType {
		err = errors.Errorf("data types (DType) for BinaryOp %s must match, got %s and %s", opName, lhsShape, rhsShape)
		return
	}
	if !class.Accepts(lhsShape.DType) {
		err = errors.Errorf("BinaryOp %s must have a %s data type as input, got %s", opName, class, lhsShape)
		return
	}
	return broadcast(opName, lhsShape, rhsShape)
}

func broadcast(opName string, lhsShape, rhsShape shapes.Shape) (output shapes.Shape, err error) {
	// Trivial cases: if one of the sides is a scalar, return the other side shape.
	if lhsShape.IsScalar() {
		return rhsShape.Clone(), nil
	}
	if rhsShape.IsScalar() {
		return lhsShape.Clone(), nil
	}

	rank := max(lhsShape.Rank(), rhsShape.Rank())
	output = shapes.Make(lhsShape.DType)
	output.Dimensions = make([]int, rank)
	for axis := range rank {
		lhsDim, rhsDim := 1, 1
		if lhsAxis := axis - (rank - lhsShape.Rank()); lhsAxis >= 0 {
			lhsDim = lhsShape.Dimensions[lhsAxis]
		}
		if rhsAxis := axis - (rank - rhsShape.Rank()); rhsAxis >= 0 {
			rhsDim = rhsShape.Dimensions[rhsAxis]
		}
		if lhsDim != 1 && rhsDim != 1 && lhsDim != rhsDim {
			err = errors.Errorf("dimension of output axis #%d doesn't match and cannot be broadcast for BinaryOp (%s), got shapes %s and %s",
				axis, opName, lhsShape, rhsShape)
			return shapes.Invalid(), err
		}
		output.Dimensions[axis] = max(lhsDim, rhsDim)
	}
	return
}

// UnaryOp checks the validity of the data type for an operation that doesn't change the shape, and returns either an
// error or the output shape, which is the same as the operand.
func UnaryOp(opName string, class DTypeClass, operand shapes.Shape) (output shapes.Shape, err error) {
	if operand.DType == dtypes.InvalidDType {
		err = errors.Errorf("invalid shape %s for UnaryOp %s", operand, opName)
		return
	}
	if !class.Accepts(operand.DType) {
		err = errors.Errorf("UnaryOp %s must have a %s data type as input, got %s", opName, class, operand)
		return
	}
	output = operand.Clone()
	return
}

// ReshapeOp to the given dimensions, checking that the sizes are the same.
//
// At most one of the dimensions can be set to -1, in which case it is inferred from the size of the operand.
func ReshapeOp(operand shapes.Shape, dims []int) (output shapes.Shape, err error) {
	if operand.DType == dtypes.InvalidDType {
		return shapes.Invalid(), errors.Errorf("invalid shape %s for Reshape()", operand)
	}
	dims = slices.Clone(dims)
	inferredAxis := -1
	knownSize := 1
	for axis, dim := range dims {
		switch {
		case dim == -1 && inferredAxis == -1:
			inferredAxis = axis
		case dim <= 0:
			return shapes.Invalid(), errors.Errorf("Reshape(%s, %v) has an invalid dimension %d for axis #%d",
				operand, dims, dim, axis)
		default:
			knownSize *= dim
		}
	}
	if inferredAxis >= 0 {
		if operand.Size()%knownSize != 0 {
			return shapes.Invalid(), errors.Errorf("Reshape() cannot reshape %s to dimensions %v: size %d is not divisible by %d",
				operand, dims, operand.Size(), knownSize)
		}
		dims[inferredAxis] = operand.Size() / knownSize
	}
	output = shapes.Make(operand.DType, dims...)
	if operand.Size() != output.Size() {
		err = errors.Errorf("Reshape() cannot reshape %s to dimensions %v, their size don't match",
			operand, dims)
		return shapes.Invalid(), err
	}
	return
}

// TransposeOp all axes of the operand.
// There must be one value in permutations for each axis in the operand.
// The output will have: output.Shape.Dimension[ii] = operand.Shape.Dimension[permutations[i]].
func TransposeOp(operand shapes.Shape, permutations []int) (output shapes.Shape, err error) {
	rank := operand.Rank()
	if len(permutations) != rank {
		err = errors.Errorf("Transpose() requires all axes permutations to be defined, operand has shape %s, but %d permutations were given",
			operand, len(permutations))
		return
	}
	if rank == 0 {
		return operand, nil
	}

	// Check permutation axes are within range and unique.
	axesSet := slices.Clone(permutations)
	slices.Sort(axesSet)
	for ii, srcAxis := range axesSet {
		if srcAxis < 0 || srcAxis >= rank {
			err = errors.Errorf("invalid permutation axis %d given to Transpose(%s), it must be within the range of its rank",
				srcAxis, operand)
			return
		}
		if ii > 0 && srcAxis == axesSet[ii-1] {
			err = errors.Errorf("invalid permutations given to Transpose(%s, %v), there cannot be any repeated axis, each must appear exactly once",
				operand, permutations)
			return
		}
	}

	output = operand.Clone()
	for axis := range output.Dimensions {
		srcAxis := permutations[axis]
		output.Dimensions[axis] = operand.Dimensions[srcAxis]
	}
	return
}

// ReduceOp works for the reduce operations (sum, max, mean, ...) over the given axes.
// Negative axes are counted from the end. If no axes are given, all axes are reduced.
// If keepDims is true, the reduced axes are kept with dimension 1.
func ReduceOp(operand shapes.Shape, axes []int, keepDims bool) (output shapes.Shape, err error) {
	if operand.DType == dtypes.InvalidDType {
		return shapes.Invalid(), errors.Errorf("invalid shape %s for Reduce()", operand)
	}
	rank := operand.Rank()
	axesSet := sets.Make[int](len(axes))
	for _, axis := range axes {
		adjusted := axis
		if adjusted < 0 {
			adjusted += rank
		}
		if adjusted < 0 || adjusted >= rank {
			return shapes.Invalid(), errors.Errorf("Reduce operation require each axis to be -rank <= axis < rank, but got invalid axis %d for shape %s", axis, operand)
		}
		axesSet.Insert(adjusted)
	}
	if len(axes) == 0 {
		for axis := range rank {
			axesSet.Insert(axis)
		}
	}
	output = shapes.Make(operand.DType)
	for axis, dim := range operand.Dimensions {
		switch {
		case !axesSet.Has(axis):
			output.Dimensions = append(output.Dimensions, dim)
		case keepDims:
			output.Dimensions = append(output.Dimensions, 1)
		}
	}
	return output, nil
}

// MatMulOp returns the shape of the matrix multiplication of lhs and rhs.
//
// Operands of rank 1 are treated as vectors. For operands of rank >= 2, the last two axes are the matrix
// axes, and the leading (batch) axes are broadcast.
func MatMulOp(lhs, rhs shapes.Shape) (output shapes.Shape, err error) {
	if lhs.DType == dtypes.InvalidDType || rhs.DType == dtypes.InvalidDType {
		return shapes.Invalid(), errors.Errorf("invalid shape for %s or %s for MatMul()", lhs, rhs)
	}
	if lhs.DType != rhs.DType {
		return shapes.Invalid(), errors.Errorf("data types (DType) for MatMul() must match, got %s and %s", lhs, rhs)
	}
	if !NumberDTypes.Accepts(lhs.DType) {
		return shapes.Invalid(), errors.Errorf("MatMul() requires numbers, got %s", lhs)
	}
	if lhs.IsScalar() || rhs.IsScalar() {
		return shapes.Invalid(), errors.Errorf("MatMul() doesn't accept scalars, got %s and %s", lhs, rhs)
	}

	// Promote vectors to matrices, and remember to drop the promoted axes at the end.
	lhsDims, rhsDims := slices.Clone(lhs.Dimensions), slices.Clone(rhs.Dimensions)
	lhsVector, rhsVector := len(lhsDims) == 1, len(rhsDims) == 1
	if lhsVector {
		lhsDims = []int{1, lhsDims[0]}
	}
	if rhsVector {
		rhsDims = []int{rhsDims[0], 1}
	}
	lhsContracting, rhsContracting := lhsDims[len(lhsDims)-1], rhsDims[len(rhsDims)-2]
	if lhsContracting != rhsContracting {
		return shapes.Invalid(), errors.Errorf("MatMul() contracting dimensions don't match (%d != %d) for shapes %s and %s",
			lhsContracting, rhsContracting, lhs, rhs)
	}

	// Batch axes.
	lhsBatch := shapes.Make(lhs.DType, lhsDims[:len(lhsDims)-2]...)
	rhsBatch := shapes.Make(rhs.DType, rhsDims[:len(rhsDims)-2]...)
	batch, err := broadcast("MatMul", lhsBatch, rhsBatch)
	if err != nil {
		return shapes.Invalid(), errors.WithMessagef(err, "MatMul() batch axes of %s and %s", lhs, rhs)
	}
	output = batch
	if !lhsVector {
		output.Dimensions = append(output.Dimensions, lhsDims[len(lhsDims)-2])
	}
	if !rhsVector {
		output.Dimensions = append(output.Dimensions, rhsDims[len(rhsDims)-1])
	}
	return output, nil
}

// ConcatenateOp calculates the output shape of a Concatenate operation.
// It takes a slice of input shapes and the axis along which to concatenate. Negative axes are counted
// from the end.
func ConcatenateOp(inputs []shapes.Shape, axis int) (output shapes.Shape, err error) {
	if len(inputs) == 0 {
		return shapes.Invalid(), errors.Errorf("ConcatenateOp requires at least one input shape")
	}

	// Initialize output dimensions with the first shape.
	firstShape := inputs[0]
	dtype := firstShape.DType
	rank := firstShape.Rank()
	output = firstShape.Clone()
	if dtype == dtypes.InvalidDType {
		return shapes.Invalid(), errors.Errorf("invalid shape %s for first input of ConcatenateOp", firstShape)
	}
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return shapes.Invalid(), errors.Errorf("invalid concatenation axis %d for shapes with rank %d", axis, rank)
	}

	// Validate further inputs and accumulate the concatenation axis size.
	for ii := 1; ii < len(inputs); ii++ {
		currentShape := inputs[ii]
		if currentShape.DType != dtype {
			return shapes.Invalid(), errors.Errorf("mismatched DTypes for ConcatenateOp: input #0 has %s, input #%d has %s",
				dtype, ii, currentShape.DType)
		}
		if currentShape.Rank() != rank {
			return shapes.Invalid(), errors.Errorf("mismatched ranks for ConcatenateOp: input #0 has rank %d, input #%d has rank %d",
				rank, ii, currentShape.Rank())
		}
		for d := range rank {
			if d == axis {
				output.Dimensions[d] += currentShape.Dimensions[d]
			} else if currentShape.Dimensions[d] != output.Dimensions[d] {
				return shapes.Invalid(), errors.Errorf("mismatched dimensions for ConcatenateOp at axis %d (non-concatenation axis): input #0 has %d, input #%d has %d",
					d, output.Dimensions[d], ii, currentShape.Dimensions[d])
			}
		}
	}
	return output, nil
}
