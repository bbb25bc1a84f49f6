package features

import (
	"fmt"
	"sort"

	"go.firedancer.io/settle/pkg/base58"
)

type Features struct {
	enabled map[FeatureGate]uint64
}

func NewFeaturesDefault() *Features {
	return &Features{enabled: make(map[FeatureGate]uint64)}
}

// EnableFeature activates gate as of slot.
func (f *Features) EnableFeature(gate FeatureGate, slot uint64) {
	if f.enabled == nil {
		f.enabled = make(map[FeatureGate]uint64)
	}
	f.enabled[gate] = slot
}

func (f *Features) DisableFeature(gate FeatureGate) {
	delete(f.enabled, gate)
}

func (f *Features) IsActive(gate FeatureGate) bool {
	_, ok := f.enabled[gate]
	return ok
}

func (f *Features) AllEnabled() []string {
	var out []string
	for gate := range f.enabled {
		out = append(out, fmt.Sprintf("feature %s (%s) enabled", gate.Name, base58.Encode(gate.Address[:])))
	}
	sort.Strings(out)
	return out
}
