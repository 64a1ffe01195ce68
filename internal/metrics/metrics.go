package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// InventoryMetrics tracks allocation, redemption and sweep activity.
type InventoryMetrics struct {
	allocationAttempts *prometheus.CounterVec
	codesAllocated     prometheus.Counter
	amountAllocated    prometheus.Counter
	codesRedeemed      prometheus.Counter
	codesExpired       prometheus.Counter
}

var (
	inventoryOnce    sync.Once
	inventoryMetrics *InventoryMetrics
)

// Inventory returns the process-wide inventory metrics, registering the
// collectors on first use.
func Inventory() *InventoryMetrics {
	inventoryOnce.Do(func() {
		inventoryMetrics = newInventoryMetrics(prometheus.DefaultRegisterer)
	})
	return inventoryMetrics
}

func newInventoryMetrics(registerer prometheus.Registerer) *InventoryMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	allocationAttempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftvault_allocation_attempts_total",
			Help: "Allocation attempts by outcome (fulfilled or insufficient).",
		},
		[]string{"outcome"},
	)
	codesAllocated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "giftvault_codes_allocated_total",
		Help: "Gift codes transitioned to ALLOCATED.",
	})
	amountAllocated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "giftvault_amount_allocated_cents_total",
		Help: "Total face value reserved by allocations, in minor units.",
	})
	codesRedeemed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "giftvault_codes_redeemed_total",
		Help: "Gift codes transitioned to REDEEMED.",
	})
	codesExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "giftvault_codes_expired_total",
		Help: "Gift codes transitioned to EXPIRED by the sweeper.",
	})

	registerer.MustRegister(allocationAttempts, codesAllocated, amountAllocated, codesRedeemed, codesExpired)

	return &InventoryMetrics{
		allocationAttempts: allocationAttempts,
		codesAllocated:     codesAllocated,
		amountAllocated:    amountAllocated,
		codesRedeemed:      codesRedeemed,
		codesExpired:       codesExpired,
	}
}

// ObserveAllocation records one allocation attempt and its reservations.
func (m *InventoryMetrics) ObserveAllocation(fulfilled bool, codes int, amount int64) {
	if m == nil {
		return
	}
	outcome := "fulfilled"
	if !fulfilled {
		outcome = "insufficient"
	}
	m.allocationAttempts.WithLabelValues(outcome).Inc()
	m.codesAllocated.Add(float64(codes))
	m.amountAllocated.Add(float64(amount))
}

// ObserveRedemption records one successful redemption.
func (m *InventoryMetrics) ObserveRedemption() {
	if m == nil {
		return
	}
	m.codesRedeemed.Inc()
}

// ObserveSweep records the number of codes expired by one sweep run.
func (m *InventoryMetrics) ObserveSweep(expired int64) {
	if m == nil || expired <= 0 {
		return
	}
	m.codesExpired.Add(float64(expired))
}
