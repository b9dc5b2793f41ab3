// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package transform

import (
	"fmt"
	"strings"

	"github.com/gomlx/graphsurgery/pkg/core/module"
	"github.com/gomlx/graphsurgery/pkg/support/sets"
	"github.com/gomlx/graphsurgery/pkg/support/xslices"
	"github.com/pkg/errors"
)

// StateDict maps dotted paths to the variables of a unit.
type StateDict map[string]*module.Variable

// Paths returns the sorted paths of the state dict.
func (sd StateDict) Paths() []string {
	return xslices.SortedKeys(sd)
}

// Collect returns every variable (parameter or buffer) of unit and its descendants, keyed by dotted path.
//
// Variables reachable through more than one path are listed under each of them. The values are the
// variables owned by the units, not copies.
func Collect(unit *module.Unit) StateDict {
	named := unit.NamedVariables(false)
	sd := make(StateDict, len(named))
	for _, nv := range named {
		sd[nv.Path] = nv.Variable
	}
	return sd
}

// RestoreError is returned by Restore when the state dict doesn't match the unit's variables and the
// corresponding strict flag is set.
type RestoreError struct {
	// Missing paths: expected by the unit but not in the state dict. Only filled if strictMissing was set.
	Missing []string

	// Unexpected paths: in the state dict but not expected by the unit. Only filled if strictUnexpected was set.
	Unexpected []string
}

// Error implements the error interface.
func (e *RestoreError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing keys: %v", e.Missing))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, fmt.Sprintf("unexpected keys: %v", e.Unexpected))
	}
	return "failed to restore state dict: " + strings.Join(parts, "; ")
}

// Restore writes the variables of stateDict into unit and its descendants.
//
// The expected paths are those returned by Collect(unit):
//
//   - missing = expected paths not in stateDict: if strictMissing is set and there are any, nothing is written
//     and a *RestoreError is returned. Otherwise, they keep their current values.
//   - unexpected = paths in stateDict not expected: if strictUnexpected is set and there are any, nothing is
//     written and a *RestoreError is returned. Otherwise, they are ignored.
//
// If clone is true, a detached copy of each variable is written (see module.Variable.Clone), otherwise the
// variables of the state dict themselves.
func Restore(unit *module.Unit, stateDict StateDict, strictMissing, strictUnexpected, clone bool) error {
	expected := sets.Make[string]()
	for _, nv := range unit.NamedVariables(false) {
		expected.Insert(nv.Path)
	}
	given := sets.Make[string](len(stateDict))
	for path := range stateDict {
		given.Insert(path)
	}
	missing := expected.Sub(given)
	unexpected := given.Sub(expected)

	restoreErr := &RestoreError{}
	if strictMissing && len(missing) > 0 {
		restoreErr.Missing = xslices.SortedKeys(missing)
	}
	if strictUnexpected && len(unexpected) > 0 {
		restoreErr.Unexpected = xslices.SortedKeys(unexpected)
	}
	if len(restoreErr.Missing) > 0 || len(restoreErr.Unexpected) > 0 {
		return restoreErr
	}

	// Check everything before writing anything.
	paths := xslices.SortedKeys(expected.Sub(missing))
	owners := make([]*module.Unit, len(paths))
	names := make([]string, len(paths))
	for ii, path := range paths {
		if v := stateDict[path]; v == nil || v.Value == nil {
			return errors.Errorf("failed to restore state dict: variable %q is nil", path)
		}
		ownerPath, name := module.SplitPath(path)
		owner, err := unit.GetSubmodule(ownerPath)
		if err != nil {
			return errors.WithMessagef(err, "failed to restore state dict: variable %q", path)
		}
		owners[ii], names[ii] = owner, name
	}
	for ii, path := range paths {
		v := stateDict[path]
		if clone {
			v = v.Clone()
		}
		owners[ii].SetVariable(names[ii], v)
	}
	return nil
}
