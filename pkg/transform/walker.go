// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package transform

import (
	"github.com/gomlx/graphsurgery/pkg/core/module"
	"github.com/gomlx/graphsurgery/pkg/support/xslices"
)

// NamedGraphUnits returns root (path "") and every descendant that owns a graph, in pre-order: a unit always comes
// before its descendants. Iterate in reverse for a leaves-first order.
//
// Units shared by more than one parent are listed once.
func NamedGraphUnits(root *module.Unit) []module.NamedUnit {
	return xslices.Filter(root.NamedUnits(), func(nu module.NamedUnit) bool {
		return nu.Unit.Graph() != nil
	})
}
