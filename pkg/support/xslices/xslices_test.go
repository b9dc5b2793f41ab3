// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlices(t *testing.T) {
	s := []int{1, 2, 3}
	assert.Equal(t, 3, Last(s))
	assert.Equal(t, 2, At(s, -2))
	assert.Equal(t, []string{"1", "2", "3"}, Map(s, strconv.Itoa))
	assert.Equal(t, []int{1, 3}, Filter(s, func(e int) bool { return e%2 == 1 }))
	assert.Equal(t, []float32{3, 4}, Iota(float32(3), 2))
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 1, "a": 2, "b": 3}))
}
