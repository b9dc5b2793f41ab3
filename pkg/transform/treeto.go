// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package transform

import (
	"github.com/gomlx/graphsurgery/pkg/core/devices"
	"github.com/gomlx/graphsurgery/pkg/core/module"
	"github.com/gomlx/graphsurgery/pkg/core/tensors"
)

// TreeTo returns a copy of tree with every tensor moved to device.
//
// Tensors and variables are found recursively inside []any, map[string]any and StateDict values.
// Any other value is returned as is. Tensors already on device are not copied.
func TreeTo(tree any, device devices.Device) any {
	switch v := tree.(type) {
	case *tensors.Tensor:
		if v == nil {
			return v
		}
		return v.To(device)
	case *module.Variable:
		if v == nil {
			return v
		}
		return v.To(device)
	case StateDict:
		moved := make(StateDict, len(v))
		for path, variable := range v {
			if variable != nil {
				variable = variable.To(device)
			}
			moved[path] = variable
		}
		return moved
	case []any:
		moved := make([]any, len(v))
		for ii, child := range v {
			moved[ii] = TreeTo(child, device)
		}
		return moved
	case map[string]any:
		moved := make(map[string]any, len(v))
		for key, child := range v {
			moved[key] = TreeTo(child, device)
		}
		return moved
	default:
		return tree
	}
}
