package shapeinference

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphsurgery/pkg/core/shapes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

// Aliases
var (
	Bool = dtypes.Bool
	I32  = dtypes.Int32
	F32  = dtypes.Float32
	U8   = dtypes.Uint8

	MS = shapes.Make
)

func TestBinaryOp(t *testing.T) {
	// Invalid data types check.
	var err error
	_, err = BinaryOp("add", NumberDTypes, MS(Bool, 1), MS(Bool, 1))
	require.Error(t, err)
	_, err = BinaryOp("add", NumberDTypes, MS(F32, 1), MS(I32, 1))
	require.Error(t, err)
	_, err = BinaryOp("pow", FloatDTypes, MS(I32, 1), MS(I32, 1))
	require.Error(t, err)
	_, err = BinaryOp("add", NumberDTypes, shapes.Invalid(), MS(I32, 1))
	require.Error(t, err)

	// The same shape should be ok.
	matrixShape := MS(F32, 2, 3)
	output := must.M1(BinaryOp("mul", NumberDTypes, matrixShape, matrixShape))
	require.True(t, matrixShape.Equal(output))

	// Scalar with matrix.
	output = must.M1(BinaryOp("mul", NumberDTypes, MS(F32), matrixShape))
	require.True(t, matrixShape.Equal(output))
	output = must.M1(BinaryOp("mul", NumberDTypes, matrixShape, MS(F32)))
	require.True(t, matrixShape.Equal(output))

	// Broadcasting, including different ranks.
	output = must.M1(BinaryOp("sub", NumberDTypes, MS(F32, 4, 1, 3), MS(F32, 5, 1)))
	require.True(t, MS(F32, 4, 5, 3).Equal(output), "got %s", output)
	output = must.M1(BinaryOp("sub", NumberDTypes, MS(F32, 3), MS(F32, 2, 3)))
	require.True(t, MS(F32, 2, 3).Equal(output), "got %s", output)

	// Non-broadcastable.
	_, err = BinaryOp("add", NumberDTypes, MS(F32, 2, 3), MS(F32, 3, 2))
	require.Error(t, err)
}

func TestUnaryOp(t *testing.T) {
	_, err := UnaryOp("neg", SignedDTypes, MS(U8, 3))
	require.Error(t, err)
	_, err = UnaryOp("exp", FloatDTypes, MS(I32, 3))
	require.Error(t, err)
	_, err = UnaryOp("not", BoolDType, MS(I32, 3))
	require.Error(t, err)
	output := must.M1(UnaryOp("neg", SignedDTypes, MS(I32, 3)))
	require.True(t, MS(I32, 3).Equal(output))
}

func TestReshapeAndTranspose(t *testing.T) {
	output := must.M1(ReshapeOp(MS(F32, 2, 6), []int{3, -1}))
	require.True(t, MS(F32, 3, 4).Equal(output), "got %s", output)
	_, err := ReshapeOp(MS(F32, 2, 6), []int{5, -1})
	require.Error(t, err)
	_, err = ReshapeOp(MS(F32, 2, 6), []int{5, 2})
	require.Error(t, err)
	_, err = ReshapeOp(MS(F32, 2, 6), []int{-1, -1})
	require.Error(t, err)

	output = must.M1(TransposeOp(MS(F32, 2, 3, 4), []int{2, 0, 1}))
	require.True(t, MS(F32, 4, 2, 3).Equal(output), "got %s", output)
	_, err = TransposeOp(MS(F32, 2, 3), []int{0, 0})
	require.Error(t, err)
	_, err = TransposeOp(MS(F32, 2, 3), []int{0})
	require.Error(t, err)
}

func TestReduceOp(t *testing.T) {
	output := must.M1(ReduceOp(MS(F32, 2, 3, 4), []int{1}, false))
	require.True(t, MS(F32, 2, 4).Equal(output), "got %s", output)
	output = must.M1(ReduceOp(MS(F32, 2, 3, 4), []int{-1}, true))
	require.True(t, MS(F32, 2, 3, 1).Equal(output), "got %s", output)
	output = must.M1(ReduceOp(MS(F32, 2, 3, 4), nil, false))
	require.True(t, output.IsScalar(), "got %s", output)
	_, err := ReduceOp(MS(F32, 2, 3), []int{2}, false)
	require.Error(t, err)
}

func TestMatMulOp(t *testing.T) {
	output := must.M1(MatMulOp(MS(F32, 2, 3), MS(F32, 3, 5)))
	require.True(t, MS(F32, 2, 5).Equal(output), "got %s", output)
	output = must.M1(MatMulOp(MS(F32, 7, 1, 2, 3), MS(F32, 4, 3, 5)))
	require.True(t, MS(F32, 7, 4, 2, 5).Equal(output), "got %s", output)
	output = must.M1(MatMulOp(MS(F32, 3), MS(F32, 3, 5)))
	require.True(t, MS(F32, 5).Equal(output), "got %s", output)
	output = must.M1(MatMulOp(MS(F32, 3), MS(F32, 3)))
	require.True(t, output.IsScalar(), "got %s", output)

	_, err := MatMulOp(MS(F32, 2, 3), MS(F32, 2, 3))
	require.Error(t, err)
	_, err = MatMulOp(MS(F32, 2, 3), MS(I32, 3, 2))
	require.Error(t, err)
	_, err = MatMulOp(MS(F32), MS(F32, 3, 2))
	require.Error(t, err)
}

func TestConcatenateOp(t *testing.T) {
	output := must.M1(ConcatenateOp([]shapes.Shape{MS(F32, 2, 3), MS(F32, 2, 4)}, -1))
	require.True(t, MS(F32, 2, 7).Equal(output), "got %s", output)
	_, err := ConcatenateOp([]shapes.Shape{MS(F32, 2, 3), MS(F32, 3, 3)}, 1)
	require.Error(t, err)
	_, err = ConcatenateOp(nil, 0)
	require.Error(t, err)
}
