package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_ObserveInstruction(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveInstruction("escrow", nil)
	m.ObserveInstruction("escrow", errors.New("boom"))
	m.ObserveInstruction("token", nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.InstructionsTotal.WithLabelValues("escrow")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InstructionErrorsTotal.WithLabelValues("escrow")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.InstructionErrorsTotal.WithLabelValues("token")))
}

func TestMetrics_ObserveTransferAndTransaction(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveTransfer(10_000_000)
	m.ObserveTransfer(5)
	m.ObserveTransaction(nil)
	m.ObserveTransaction(errors.New("rolled back"))

	assert.Equal(t, float64(10_000_005), testutil.ToFloat64(m.TokensTransferredTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("committed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("failed")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveInstruction("escrow", nil)
		m.ObserveTransfer(1)
		m.ObserveTransaction(nil)
	})
}
