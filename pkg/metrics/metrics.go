package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ledgerd",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledgerd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.56s
		},
		[]string{"method", "path"},
	)

	eventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Total events ingested, grouped by event type and outcome.",
		},
		[]string{"event_type", "outcome"},
	)

	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledgerd",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Duration of engine dispatch for a single event.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"engine", "status"},
	)

	journalPostings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Subsystem: "journal",
			Name:      "postings_total",
			Help:      "Total journal entries written, grouped by ledger and outcome.",
		},
		[]string{"ledger", "outcome"},
	)

	journalUnbalanced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Subsystem: "journal",
			Name:      "unbalanced_rejections_total",
			Help:      "Total journal write attempts rejected for failing to balance by currency.",
		},
		[]string{"ledger"},
	)

	outcomeRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Subsystem: "outcome",
			Name:      "retries_total",
			Help:      "Total interpretation retry attempts, grouped by failure type and result.",
		},
		[]string{"failure_type", "result"},
	)

	outcomePending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ledgerd",
			Subsystem: "outcome",
			Name:      "pending_total",
			Help:      "Current count of interpretation outcomes awaiting retry, by failure type.",
		},
		[]string{"failure_type"},
	)

	auditChainFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Subsystem: "audit",
			Name:      "chain_verification_failures_total",
			Help:      "Total audit hash-chain verification failures detected.",
		},
		[]string{"entity_ref"},
	)

	reconciliationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Subsystem: "subledger",
			Name:      "reconciliation_failures_total",
			Help:      "Total subledger reconciliation failures, grouped by control account.",
		},
		[]string{"control_account"},
	)

	approvalDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Subsystem: "approval",
			Name:      "decisions_total",
			Help:      "Total approval decisions recorded, grouped by decision.",
		},
		[]string{"decision"},
	)

	periodCloseSweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Subsystem: "period",
			Name:      "close_sweeps_total",
			Help:      "Total scheduled fiscal period close sweeps, grouped by result.",
		},
		[]string{"result"},
	)

	guardEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Subsystem: "guard",
			Name:      "evaluations_total",
			Help:      "Total guard expression evaluations, grouped by disposition.",
		},
		[]string{"disposition"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		eventsIngested,
		dispatchDuration,
		journalPostings,
		journalUnbalanced,
		outcomeRetries,
		outcomePending,
		auditChainFailures,
		reconciliationFailures,
		approvalDecisions,
		periodCloseSweeps,
		guardEvaluations,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordEventIngested records an ingestion attempt outcome (the lowercased outcome status, or error).
func RecordEventIngested(eventType, outcome string) {
	eventsIngested.WithLabelValues(orUnknown(eventType), orUnknown(outcome)).Inc()
}

// RecordDispatch records the duration and status of a single engine invocation.
func RecordDispatch(engine, status string, d time.Duration) {
	dispatchDuration.WithLabelValues(orUnknown(engine), orUnknown(status)).Observe(d.Seconds())
}

// RecordJournalPosting records a journal write outcome (posted|already_posted|rejected).
func RecordJournalPosting(ledger, outcome string) {
	journalPostings.WithLabelValues(orUnknown(ledger), orUnknown(outcome)).Inc()
}

// RecordJournalUnbalanced records a rejection caused by a non-balancing currency total.
func RecordJournalUnbalanced(ledger string) {
	journalUnbalanced.WithLabelValues(orUnknown(ledger)).Inc()
}

// RecordOutcomeRetry records a retry attempt and its result (succeeded|failed|exhausted).
func RecordOutcomeRetry(failureType, result string) {
	outcomeRetries.WithLabelValues(orUnknown(failureType), orUnknown(result)).Inc()
}

// SetOutcomePending publishes the current backlog size for a failure type.
func SetOutcomePending(failureType string, count int) {
	outcomePending.WithLabelValues(orUnknown(failureType)).Set(float64(count))
}

// RecordAuditChainFailure records a detected tamper or gap in the audit hash chain.
func RecordAuditChainFailure(entityRef string) {
	auditChainFailures.WithLabelValues(orUnknown(entityRef)).Inc()
}

// RecordReconciliationFailure records a subledger-to-control-account mismatch.
func RecordReconciliationFailure(controlAccount string) {
	reconciliationFailures.WithLabelValues(orUnknown(controlAccount)).Inc()
}

// RecordApprovalDecision records an approval decision (approved|denied).
func RecordApprovalDecision(decision string) {
	approvalDecisions.WithLabelValues(orUnknown(decision)).Inc()
}

// RecordPeriodCloseSweep records a scheduled period-close sweep result (closed|skipped|error).
func RecordPeriodCloseSweep(result string) {
	periodCloseSweeps.WithLabelValues(orUnknown(result)).Inc()
}

// RecordGuardEvaluation records a guard disposition (pass|reject|block|warn).
func RecordGuardEvaluation(disposition string) {
	guardEvaluations.WithLabelValues(orUnknown(disposition)).Inc()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses path parameters into stable labels so Prometheus
// cardinality stays bounded regardless of how many distinct event/approval
// IDs pass through the API.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "events":
		if len(parts) == 1 {
			return "/events"
		}
		if len(parts) >= 3 && parts[2] == "outcome" {
			return "/events/:id/outcome"
		}
		return "/events/:id"
	case "approvals":
		if len(parts) >= 3 && parts[2] == "decision" {
			return "/approvals/:id/decision"
		}
		return "/approvals/:id"
	default:
		return "/" + parts[0]
	}
}
