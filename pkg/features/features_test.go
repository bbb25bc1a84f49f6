package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.firedancer.io/settle/pkg/base58"
)

// The TestFeatures_EnableAndDisable function tests that the
// enable and disable features work correctly.
func TestFeatures_EnableAndDisable(t *testing.T) {
	f := NewFeaturesDefault()
	assert.Equal(t, false, f.IsActive(CheckContributionsRequiresTarget))
	f.EnableFeature(CheckContributionsRequiresTarget, 0)
	assert.Equal(t, true, f.IsActive(CheckContributionsRequiresTarget))
	f.DisableFeature(CheckContributionsRequiresTarget)
	assert.Equal(t, false, f.IsActive(CheckContributionsRequiresTarget))
}

// The TestFeatures_ListEnabled function tests that the AllEnabled function works
// as expected.
func TestFeatures_ListEnabled(t *testing.T) {
	var f Features
	f.EnableFeature(CheckContributionsRequiresTarget, 0)
	addr := base58.Encode(CheckContributionsRequiresTarget.Address[:])
	assert.Equal(t, []string{"feature CheckContributionsRequiresTarget (" + addr + ") enabled"}, f.AllEnabled())
}

func TestFeatures_GateByName(t *testing.T) {
	gate, ok := GateByName("ContributionsCloseAtDeadline")
	assert.True(t, ok)
	assert.Equal(t, ContributionsCloseAtDeadline, gate)

	_, ok = GateByName("NoSuchGate")
	assert.False(t, ok)
}
