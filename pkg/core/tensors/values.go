// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/x448/float16"
)

// Float64s returns a copy of the tensor values converted to float64, for diagnostics and tests.
//
// It handles the half-precision types (Float16 and BFloat16) as well as all integer and float types.
// It panics for meta tensors and for non-numeric dtypes.
func (t *Tensor) Float64s() (values []float64) {
	t.ConstFlatData(func(flat any) {
		switch typed := flat.(type) {
		case []float16.Float16:
			values = make([]float64, len(typed))
			for ii, v := range typed {
				values[ii] = float64(v.Float32())
			}
		case []bfloat16.BFloat16:
			values = make([]float64, len(typed))
			for ii, v := range typed {
				values[ii] = float64(v.Float32())
			}
		case []bool:
			exceptions.Panicf("Tensor.Float64s() not defined for dtype %s", t.DType())
		default:
			flatV := reflect.ValueOf(flat)
			float64Type := reflect.TypeOf(float64(0))
			if !flatV.Type().Elem().ConvertibleTo(float64Type) {
				exceptions.Panicf("Tensor.Float64s() not defined for dtype %s", t.DType())
			}
			values = make([]float64, flatV.Len())
			for ii := range values {
				values[ii] = flatV.Index(ii).Convert(float64Type).Float()
			}
		}
	})
	return
}
