package cu

import (
	"errors"

	"go.firedancer.io/settle/pkg/safemath"
	"k8s.io/klog/v2"
)

var ErrComputeExceeded = errors.New("Compute exceeded")

const DefaultTransactionBudget = 200000

// ComputeMeter is the per-transaction compute budget. Charges may be
// attributed to a label (usually a program name) for reporting.
type ComputeMeter struct {
	computeMeter    uint64
	startingBalance uint64
	exceeded        bool
	disable         bool
	usage           map[string]uint64
}

func NewComputeMeter(budget uint64) ComputeMeter {
	return ComputeMeter{computeMeter: budget, startingBalance: budget}
}

func NewComputeMeterDefault() ComputeMeter {
	return NewComputeMeter(DefaultTransactionBudget)
}

func (cm *ComputeMeter) Consume(cost uint64) error {
	cm.exceeded = cm.computeMeter < cost
	cm.computeMeter = safemath.SaturatingSubU64(cm.computeMeter, cost)

	if cm.exceeded {
		if cm.disable {
			klog.Infof("CU limit exceeded in Consume, but skipping")
		} else {
			return ErrComputeExceeded
		}
	}

	return nil
}

// ConsumeFor charges cost and attributes it to label.
func (cm *ComputeMeter) ConsumeFor(label string, cost uint64) error {
	if cm.usage == nil {
		cm.usage = make(map[string]uint64)
	}
	cm.usage[label] = safemath.SaturatingAddU64(cm.usage[label], cost)
	return cm.Consume(cost)
}

// Usage returns a copy of the per-label charges.
func (cm *ComputeMeter) Usage() map[string]uint64 {
	out := make(map[string]uint64, len(cm.usage))
	for label, units := range cm.usage {
		out[label] = units
	}
	return out
}

func (cm *ComputeMeter) Used() uint64 {
	return cm.startingBalance - cm.computeMeter
}

func (cm *ComputeMeter) Exceeded() bool {
	return cm.exceeded
}

func (cm *ComputeMeter) Remaining() uint64 {
	return cm.computeMeter
}

func (cm *ComputeMeter) Disable() {
	cm.disable = true
}
