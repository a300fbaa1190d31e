// Package metrics exposes Prometheus instrumentation for the ledger and
// the scheduling engines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var TransactionsPosted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "paghetta",
	Name:      "transactions_posted_total",
	Help:      "Ledger transactions posted, by kind.",
}, []string{"kind"})

var AllowancesPaid = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "paghetta",
	Name:      "allowances_paid_total",
	Help:      "Allowance payouts posted by the scheduler.",
})

var InterestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "paghetta",
	Name:      "interest_runs_total",
	Help:      "Interest accrual runs per child, by outcome.",
}, []string{"outcome"})

var LoansCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "paghetta",
	Name:      "loans_created_total",
	Help:      "Installment loans created.",
})

var InstallmentsPaid = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "paghetta",
	Name:      "installments_paid_total",
	Help:      "Loan installments paid.",
})

var RateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "paghetta",
	Name:      "rate_limit_hits_total",
	Help:      "Requests rejected by the per-client rate limit.",
})

var StoreFallbackReads = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "paghetta",
	Name:      "store_fallback_reads_total",
	Help:      "Reads served from the degraded local cache after a primary store failure.",
})
