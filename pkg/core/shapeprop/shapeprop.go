// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeprop propagates symbolic descriptors forward through the graph of a module.Unit, setting the
// Meta.Val and Meta.TensorMeta of every node that produces a value.
//
// Nothing is executed: each CallFunction node's descriptor is computed by the shape rule (ir.Target.Infer) of its
// target, GetAttr nodes are described from the variables they fetch, and CallModule nodes are propagated
// recursively through the graph of the called unit.
package shapeprop

import (
	"github.com/gomlx/graphsurgery/pkg/core/ir"
	"github.com/gomlx/graphsurgery/pkg/core/module"
	"github.com/gomlx/graphsurgery/pkg/core/symbolic"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DetectMode returns the Mode of the descriptors attached to the graph's nodes, looking at the placeholders
// first. It returns nil if no node has a descriptor.
func DetectMode(g *ir.Graph) *symbolic.Mode {
	for _, node := range g.Placeholders() {
		if node.Meta.Val != nil && node.Meta.Val.Mode() != nil {
			return node.Meta.Val.Mode()
		}
	}
	for _, node := range g.Nodes() {
		if node.Meta.Val != nil && node.Meta.Val.Mode() != nil {
			return node.Meta.Val.Mode()
		}
	}
	return nil
}

// Propagate the input descriptors (one per placeholder, in order) through the graph of unit.
//
// All new descriptors are created with mode. Errors from the shape rules are returned annotated with
// the node that failed: the nodes before it are already updated.
func Propagate(unit *module.Unit, mode *symbolic.Mode, inputs ...*symbolic.Descriptor) error {
	_, err := propagate(unit, "", mode, inputs)
	return err
}

func propagate(unit *module.Unit, path string, mode *symbolic.Mode, inputs []*symbolic.Descriptor) (any, error) {
	g := unit.Graph()
	if g == nil {
		return nil, errors.Errorf("shapeprop: unit %q (%s) has no graph", path, unit.TypeName())
	}
	if mode == nil {
		return nil, errors.Errorf("shapeprop: graph %q: no Mode given", g.Name())
	}
	placeholders := g.Placeholders()
	if len(inputs) != len(placeholders) {
		return nil, errors.Errorf("shapeprop: graph %q has %d placeholders, but %d inputs were given",
			g.Name(), len(placeholders), len(inputs))
	}
	env := make(map[*ir.Node]*symbolic.Descriptor, g.NumNodes())
	inputIdx := 0
	var result any
	for _, node := range g.Nodes() {
		var desc *symbolic.Descriptor
		switch node.Kind() {
		case ir.Placeholder:
			desc = inputs[inputIdx]
			inputIdx++
			if desc == nil {
				return nil, errors.Errorf("shapeprop: graph %q: no input descriptor for placeholder %q", g.Name(), node.Name())
			}

		case ir.GetAttr:
			ownerPath, name := module.SplitPath(node.TargetPath())
			owner, err := unit.GetSubmodule(ownerPath)
			if err != nil {
				return nil, errors.WithMessagef(err, "shapeprop: graph %q, node %q", g.Name(), node.Name())
			}
			v := owner.Variable(name)
			if v == nil {
				// Not a variable (e.g. a unit): no value to describe.
				continue
			}
			desc = mode.FromTensor(v.Value)

		case ir.CallFunction:
			args, kwargs, err := resolveArgs(node, env)
			if err != nil {
				return nil, err
			}
			if node.Target().Infer == nil {
				return nil, errors.Errorf("shapeprop: graph %q, node %q: target %q has no shape rule",
					g.Name(), node.Name(), node.Target().Name)
			}
			desc, err = node.Target().Infer(mode, args, kwargs)
			if err != nil {
				return nil, errors.WithMessagef(err, "shapeprop: graph %q, node %q", g.Name(), node.Name())
			}

		case ir.CallModule:
			sub, err := unit.GetSubmodule(node.TargetPath())
			if err != nil {
				return nil, errors.WithMessagef(err, "shapeprop: graph %q, node %q", g.Name(), node.Name())
			}
			args, _, err := resolveArgs(node, env)
			if err != nil {
				return nil, err
			}
			subInputs := make([]*symbolic.Descriptor, len(args))
			for ii, arg := range args {
				subInputs[ii], _ = arg.(*symbolic.Descriptor)
			}
			subResult, err := propagate(sub, module.JoinPath(path, node.TargetPath()), mode, subInputs)
			if err != nil {
				return nil, errors.WithMessagef(err, "shapeprop: graph %q, node %q", g.Name(), node.Name())
			}
			desc, _ = subResult.(*symbolic.Descriptor)

		case ir.Output:
			args, _, err := resolveArgs(node, env)
			if err != nil {
				return nil, err
			}
			if len(args) > 0 {
				result = args[0]
			}
			continue
		}

		if desc != nil {
			env[node] = desc
			node.Meta.Val = desc
			node.Meta.TensorMeta = symbolic.ExtractTensorMeta(desc)
		}
	}
	klog.V(2).Infof("shapeprop: propagated %d descriptors through graph %q", len(env), g.Name())
	return result, nil
}

// resolveArgs replaces node references by their descriptors, and lists by []any.
func resolveArgs(node *ir.Node, env map[*ir.Node]*symbolic.Descriptor) (args []any, kwargs map[string]any, err error) {
	args = make([]any, node.NumArgs())
	for ii, arg := range node.Args() {
		args[ii], err = resolveArg(node, arg, env)
		if err != nil {
			return
		}
	}
	kwargs = make(map[string]any, node.Kwargs().Len())
	node.Kwargs().Range(func(key string, arg ir.Arg) {
		if err != nil {
			return
		}
		kwargs[key], err = resolveArg(node, arg, env)
	})
	return
}

func resolveArg(node *ir.Node, arg ir.Arg, env map[*ir.Node]*symbolic.Descriptor) (any, error) {
	switch {
	case arg.IsNode():
		desc, found := env[arg.Node()]
		if !found {
			return nil, errors.Errorf("shapeprop: node %q uses %q, which has no descriptor", node.Name(), arg.Node().Name())
		}
		return desc, nil
	case arg.IsList():
		values := make([]any, len(arg.List()))
		for ii, sub := range arg.List() {
			value, err := resolveArg(node, sub, env)
			if err != nil {
				return nil, err
			}
			values[ii] = value
		}
		return values, nil
	}
	return arg.Value(), nil
}
