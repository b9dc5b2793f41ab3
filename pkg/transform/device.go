// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package transform

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/graphsurgery/pkg/core/devices"
	"github.com/gomlx/graphsurgery/pkg/core/ir"
	"github.com/gomlx/graphsurgery/pkg/core/module"
	"github.com/pkg/errors"
)

// DeviceKwarg is the keyword argument naming the device on which an operation creates its result.
const DeviceKwarg = "device"

// MoveToDevice moves root to device: its variables, and every device mentioned by the graphs of root and its
// descendants.
//
// For each graph unit, leaves first:
//
//   - Nodes with a "device" keyword argument have it rewritten, even if it already names device.
//   - Nodes whose target is a device transfer (ir.Target.DeviceArg) have the destination argument rewritten.
//   - The descriptor of every node (Meta.Val) is remapped to device.
//
// Units whose graph changed are validated (it panics on failure) and recompiled. The others keep their Program.
func (t *Transformer) MoveToDevice(root *module.Unit, device devices.Device) {
	if !device.Ok() {
		exceptions.Panicf("MoveToDevice(): invalid device")
	}
	root.To(device)
	graphUnits := NamedGraphUnits(root)
	for ii := len(graphUnits) - 1; ii >= 0; ii-- {
		nu := graphUnits[ii]
		nu.Unit.To(device)
		numRewrites := moveGraphToDevice(nu.Unit.Graph(), device)
		if numRewrites == 0 {
			continue
		}
		nu.Unit.AssertValid()
		nu.Unit.Recompile()
		t.logger.Debugf("MoveToDevice(%s): unit %q (%s) recompiled after %d device rewrites",
			device, nu.Path, nu.Unit.TypeName(), numRewrites)
	}
}

// moveGraphToDevice rewrites the device arguments and descriptors of the nodes of g, and returns the number of
// arguments rewritten. Descriptor changes are not counted.
func moveGraphToDevice(g *ir.Graph, device devices.Device) (numRewrites int) {
	deviceArg := ir.Const(device)
	for _, node := range g.Nodes() {
		if node.Kwargs().Has(DeviceKwarg) {
			node.SetKwarg(DeviceKwarg, deviceArg)
			numRewrites++
		}
		if node.Kind() == ir.CallFunction && node.Target().IsDeviceTransfer() && node.Target().DeviceArg < node.NumArgs() {
			node.SetArg(node.Target().DeviceArg, deviceArg)
			numRewrites++
		}
		if node.Meta.Val != nil {
			node.Meta.Val = node.Meta.Val.To(device)
		}
	}
	return
}

// MoveToDeviceString is like MoveToDevice, but it takes the device in textual form, e.g.: "cpu", "cuda:0" or
// "meta". It returns an error if the text is not a valid device.
func (t *Transformer) MoveToDeviceString(root *module.Unit, text string) error {
	device, err := devices.Parse(text)
	if err != nil {
		return errors.WithMessagef(err, "MoveToDeviceString(%q)", text)
	}
	t.MoveToDevice(root, device)
	return nil
}
