package global

import (
	"go.firedancer.io/settle/pkg/features"
	"go.firedancer.io/settle/pkg/metrics"
)

// GlobalCtx carries state shared by every execution on one ledger.
type GlobalCtx struct {
	Features features.Features
	Metrics  *metrics.Metrics
}

func NewGlobalCtxDefault() *GlobalCtx {
	features := features.NewFeaturesDefault()
	return &GlobalCtx{Features: *features}
}
