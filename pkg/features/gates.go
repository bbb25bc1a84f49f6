package features

import (
	"github.com/samber/lo"
	"go.firedancer.io/settle/pkg/base58"
)

type FeatureGate struct {
	Name    string
	Address [32]byte
}

// CheckContributionsRequiresTarget flips the maker-claim predicate so that a
// claim succeeds only once the vault holds at least the target. Inactive by
// default: the deployed fundraiser rejects claims once the target is met.
var CheckContributionsRequiresTarget = FeatureGate{Name: "CheckContributionsRequiresTarget", Address: base58.MustDecodeFromString("CkCtrbTRG7ReqTarget1111111111111111111111111")}

// ContributionsCloseAtDeadline rejects contributions once the campaign
// duration has elapsed.
var ContributionsCloseAtDeadline = FeatureGate{Name: "ContributionsCloseAtDeadline", Address: base58.MustDecodeFromString("CtrbDead1ine1111111111111111111111111111111")}

var AllGates = []FeatureGate{CheckContributionsRequiresTarget, ContributionsCloseAtDeadline}

// GateByName looks a gate up by its Name.
func GateByName(name string) (FeatureGate, bool) {
	return lo.Find(AllGates, func(gate FeatureGate) bool {
		return gate.Name == name
	})
}
