// Package metrics exposes prometheus counters for the settlement runtime.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "settle"

// Metrics holds the runtime counters. A nil *Metrics is valid and records
// nothing, so executions that were not handed a registry stay silent.
type Metrics struct {
	InstructionsTotal      *prometheus.CounterVec
	InstructionErrorsTotal *prometheus.CounterVec
	TokensTransferredTotal prometheus.Counter
	TransactionsTotal      *prometheus.CounterVec
}

// NewMetrics registers the runtime counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		InstructionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instructions_total",
			Help:      "Total number of instructions dispatched, by program",
		}, []string{"program"}),
		InstructionErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instruction_errors_total",
			Help:      "Total number of instructions that returned an error, by program",
		}, []string{"program"}),
		TokensTransferredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_transferred_total",
			Help:      "Total token base units moved by the token program",
		}),
		TransactionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Total number of processed transactions, by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveInstruction(program string, err error) {
	if m == nil {
		return
	}
	m.InstructionsTotal.WithLabelValues(program).Inc()
	if err != nil {
		m.InstructionErrorsTotal.WithLabelValues(program).Inc()
	}
}

func (m *Metrics) ObserveTransfer(amount uint64) {
	if m == nil {
		return
	}
	m.TokensTransferredTotal.Add(float64(amount))
}

func (m *Metrics) ObserveTransaction(err error) {
	if m == nil {
		return
	}
	outcome := "committed"
	if err != nil {
		outcome = "failed"
	}
	m.TransactionsTotal.WithLabelValues(outcome).Inc()
}
