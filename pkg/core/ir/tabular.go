// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/graphsurgery/pkg/support/xslices"
)

// Tabular returns a table (rendered for the terminal) listing the nodes of the graph: their kind, target,
// arguments, users and symbolic descriptor.
func (g *Graph) Tabular() string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row < 0 {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("#", "name", "op", "target", "args", "users", "val")
	for ii, node := range g.nodes {
		target := node.TargetPath()
		var args string
		if node.kind != Placeholder && node.kind != GetAttr {
			args = node.argsString()
		}
		users := strings.Join(xslices.Map(node.Users(), (*Node).Name), ", ")
		val := "-"
		if node.Meta.Val != nil {
			val = node.Meta.Val.String()
		}
		table.Row(fmt.Sprintf("%d", ii), node.name, node.kind.String(), target, args, users, val)
	}
	return table.String()
}
