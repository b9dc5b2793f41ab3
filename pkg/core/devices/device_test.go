// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package devices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		text string
		want Device
	}{
		{"cpu", CPU},
		{"meta", Meta},
		{"cuda", Make("cuda", NoIndex)},
		{"cuda:1", CUDA(1)},
		{" cuda:0 ", CUDA(0)},
	} {
		got, err := Parse(tc.text)
		require.NoErrorf(t, err, "Parse(%q)", tc.text)
		assert.Equalf(t, tc.want, got, "Parse(%q)", tc.text)
	}

	for _, text := range []string{"", "cuda:x", "cuda:-1", ":1"} {
		_, err := Parse(text)
		assert.Errorf(t, err, "Parse(%q) should have failed", text)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "cpu", CPU.String())
	assert.Equal(t, "cuda:3", CUDA(3).String())
	assert.Equal(t, "<invalid device>", Device{}.String())
	d, err := Parse(CUDA(2).String())
	require.NoError(t, err)
	assert.Equal(t, CUDA(2), d)
	assert.True(t, Meta.IsMeta())
	assert.False(t, CPU.IsMeta())
}
