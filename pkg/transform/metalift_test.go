// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package transform

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/graphsurgery/pkg/core/module"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireConcreteAndEqual checks that the variables of unit are back off the meta device, with the values
// collected at the start.
func requireConcreteAndEqual(t *testing.T, unit *module.Unit, want StateDict) {
	t.Helper()
	got := Collect(unit)
	require.Equal(t, want.Paths(), got.Paths())
	for path, v := range got {
		require.False(t, v.Value.IsMeta(), "variable %q still on the meta device", path)
		require.True(t, want[path].Value.Equal(v.Value), "variable %q changed", path)
	}
}

func TestMetaLiftGuard(t *testing.T) {
	root := buildModel()
	want := Collect(root)
	ml := NewMetaLift(root, true, true)
	assert.True(t, root.Child("layer").Variable("weight").Value.IsMeta())
	assert.False(t, ml.StateDict()["layer.weight"].Value.IsMeta())
	assert.False(t, ml.Restored())

	require.NoError(t, ml.Restore())
	assert.True(t, ml.Restored())
	requireConcreteAndEqual(t, root, want)

	// Second call is a no-op: it would fail otherwise.
	delete(ml.StateDict(), "layer.weight")
	require.NoError(t, ml.Restore())
	requireConcreteAndEqual(t, root, want)
}

func TestLiftToMeta(t *testing.T) {
	t.Run("Completes", func(t *testing.T) {
		tr, _ := newTestTransformer()
		root := buildModel()
		want := Collect(root)
		var numVariables int
		err := tr.LiftToMeta(root, true, true, func(sd StateDict) error {
			numVariables = len(sd)
			for _, nv := range root.NamedVariables(false) {
				assert.True(t, nv.Variable.Value.IsMeta(), "variable %q", nv.Path)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, numVariables)
		requireConcreteAndEqual(t, root, want)
	})

	t.Run("Panics", func(t *testing.T) {
		tr, _ := newTestTransformer()
		root := buildModel()
		want := Collect(root)
		panicked := exceptions.TryCatch[error](func() {
			_ = tr.LiftToMeta(root, true, true, func(StateDict) error {
				panic(errors.New("surgery failed"))
			})
		})
		require.Error(t, panicked)
		assert.Contains(t, panicked.Error(), "surgery failed")
		requireConcreteAndEqual(t, root, want)
	})

	t.Run("ReturnsError", func(t *testing.T) {
		tr, _ := newTestTransformer()
		root := buildModel()
		want := Collect(root)
		err := tr.LiftToMeta(root, true, true, func(StateDict) error {
			return errors.New("surgery failed")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "surgery failed")
		requireConcreteAndEqual(t, root, want)
	})

	t.Run("RestoreFails", func(t *testing.T) {
		tr, _ := newTestTransformer()
		root := buildModel()
		err := tr.LiftToMeta(root, true, true, func(sd StateDict) error {
			delete(sd, "layer.weight")
			return nil
		})
		var restoreErr *RestoreError
		require.True(t, errors.As(err, &restoreErr))
		assert.Equal(t, []string{"layer.weight"}, restoreErr.Missing)
	})

	t.Run("BothFail", func(t *testing.T) {
		tr, _ := newTestTransformer()
		root := buildModel()
		err := tr.LiftToMeta(root, true, true, func(sd StateDict) error {
			delete(sd, "layer.weight")
			return errors.New("surgery failed")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "surgery failed")
		assert.Contains(t, err.Error(), "layer.weight")
	})

	t.Run("PanicsAndRestoreFails", func(t *testing.T) {
		tr, logger := newTestTransformer()
		root := buildModel()
		require.Panics(t, func() {
			_ = tr.LiftToMeta(root, true, true, func(sd StateDict) error {
				delete(sd, "layer.weight")
				panic("surgery failed")
			})
		})
		require.Len(t, logger.warnings, 1)
		assert.Contains(t, logger.warnings[0], "layer.weight")
	})
}
