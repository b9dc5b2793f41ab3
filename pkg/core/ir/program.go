// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"strings"

	"github.com/gomlx/graphsurgery/pkg/support/xslices"
	"github.com/google/uuid"
)

// Program is the code derived from a Graph: the rendered listing of its forward function.
//
// Programs are never executed in this library. They are regenerated whenever the graph changes in a way that
// affects the code (see module.Unit.Recompile), and the ID identifies the code: equal sources yield equal IDs.
type Program struct {
	Source string
	ID     uuid.UUID
}

// GenerateProgram renders the graph's forward function. Node metadata doesn't affect the generated code.
func (g *Graph) GenerateProgram() *Program {
	var sb strings.Builder
	w := func(format string, args ...any) { _, _ = fmt.Fprintf(&sb, format, args...) }

	placeholders := xslices.Map(g.Placeholders(), (*Node).Name)
	sig := g.signature
	if sig != nil && sig.InSpec != nil {
		w("def forward(self, %s):\n", strings.Join(sig.OrigArgs, ", "))
		if len(placeholders) > 0 {
			w("    %s = tree_flatten((%s), in_spec=%s)\n",
				strings.Join(placeholders, ", "), strings.Join(sig.OrigArgs, ", "), sig.InSpec)
		}
	} else {
		w("def forward(self, %s):\n", strings.Join(placeholders, ", "))
	}
	for _, node := range g.nodes {
		switch node.kind {
		case Placeholder:
			continue
		case Output:
			if sig != nil && sig.OutSpec != nil {
				w("    return tree_unflatten(%s, out_spec=%s)\n", node.argsString(), sig.OutSpec)
			} else {
				w("    %s\n", node)
			}
		default:
			w("    %s\n", node)
		}
	}
	source := sb.String()
	return &Program{
		Source: source,
		ID:     uuid.NewSHA1(uuid.NameSpaceOID, []byte(source)),
	}
}

// String implements fmt.Stringer.
func (p *Program) String() string {
	if p == nil {
		return "Program(nil)"
	}
	return fmt.Sprintf("Program(id=%s):\n%s", p.ID, p.Source)
}
