// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package transform

import (
	"github.com/gomlx/graphsurgery/pkg/core/devices"
	"github.com/gomlx/graphsurgery/pkg/core/module"
	"github.com/pkg/errors"
)

// MetaLift is a guard holding the variables of a unit while the unit is lifted to the meta device.
// See NewMetaLift and Transformer.LiftToMeta.
type MetaLift struct {
	unit                            *module.Unit
	stateDict                       StateDict
	strictMissing, strictUnexpected bool
	restored                        bool
}

// NewMetaLift collects the variables of unit (see Collect) and moves the unit to the meta device.
//
// The caller must call MetaLift.Restore to load the collected variables back, usually with defer.
// Prefer Transformer.LiftToMeta, which does that.
func NewMetaLift(unit *module.Unit, strictMissing, strictUnexpected bool) *MetaLift {
	ml := &MetaLift{
		unit:             unit,
		stateDict:        Collect(unit),
		strictMissing:    strictMissing,
		strictUnexpected: strictUnexpected,
	}
	unit.To(devices.Meta)
	return ml
}

// StateDict returns the variables collected before lifting. Changes to it (new values, added or removed paths)
// are taken into account by Restore.
func (ml *MetaLift) StateDict() StateDict { return ml.stateDict }

// Restored returns whether Restore was already called.
func (ml *MetaLift) Restored() bool { return ml.restored }

// Restore loads the state dict back into the unit, see transform.Restore. Only the first call has an effect,
// further calls return nil.
func (ml *MetaLift) Restore() error {
	if ml.restored {
		return nil
	}
	ml.restored = true
	return Restore(ml.unit, ml.stateDict, ml.strictMissing, ml.strictUnexpected, false)
}

// LiftToMeta lifts unit to the meta device, calls fn with the collected state dict, and restores the state dict
// into the unit on every exit path of fn: normal return, error or panic.
//
// The failure of fn is never hidden: if fn returns an error, it is returned, annotated with the restoration
// error if restoring also failed. If fn panics, the panic continues after the restoration. Otherwise, the
// restoration error (e.g. a *RestoreError) is returned.
func (t *Transformer) LiftToMeta(unit *module.Unit, strictMissing, strictUnexpected bool,
	fn func(stateDict StateDict) error) (err error) {
	ml := NewMetaLift(unit, strictMissing, strictUnexpected)
	t.logger.Debugf("Lifted %d variables to the meta device", len(ml.StateDict()))
	fnReturned := false
	defer func() {
		restoreErr := ml.Restore()
		if restoreErr == nil {
			return
		}
		switch {
		case !fnReturned:
			// fn panicked: the panic continues, only report the restoration failure.
			t.logger.Warningf("Failed to restore state dict while handling a panic: %v", restoreErr)
		case err != nil:
			err = errors.WithMessagef(err, "(additionally, restoring the state dict failed: %v)", restoreErr)
		default:
			err = restoreErr
		}
	}()
	err = fn(ml.StateDict())
	fnReturned = true
	return err
}
