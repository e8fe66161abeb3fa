// Package sweep implements the two scheduled jobs SPEC_FULL.md's
// CronConfig names: the retry sweep, which re-enters FAILED-but-retryable
// outcomes into the pipeline, and the period-close sweep, which closes
// fiscal periods whose grace window has elapsed. Neither is part of the
// synchronous posting path; both run off a robfig/cron/v3 schedule wired
// in cmd/ledgerd.
package sweep

import (
	"context"
	"database/sql"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/acctkernel/ledger/domain/engine"
	"github.com/acctkernel/ledger/domain/outcome"
	"github.com/acctkernel/ledger/domain/policy"
	"github.com/acctkernel/ledger/internal/coordinator"
	"github.com/acctkernel/ledger/internal/eventstore"
	"github.com/acctkernel/ledger/internal/period"
	"github.com/acctkernel/ledger/ledgererrors"
	"github.com/acctkernel/ledger/pkg/metrics"
)

// sweepRecorder emits ad-hoc pass-duration metrics the fixed named
// collectors in pkg/metrics don't cover, without growing that package's
// API for every new scheduled job.
var sweepRecorder = metrics.NewRecorder(nil)

// PendingLister is the work-queue read used to find retry candidates;
// internal/tracesel.PostgresReader satisfies this.
type PendingLister interface {
	ListPending(ctx context.Context) ([]outcome.Outcome, error)
}

// Retry drives the retry sweep: every listed outcome that is still FAILED
// and under its retry cap is replayed through the coordinator, each in its
// own transaction so one bad replay cannot roll back another's.
type Retry struct {
	db          *sql.DB
	pending     PendingLister
	events      eventstore.Store
	coordinator *coordinator.Coordinator
	packLoader  func() policy.Pack
	buildCtx    coordinator.EvalContextBuilder
	contracts   coordinator.RequiredEngineContracts
	paramMap    func(p policy.Policy, name engine.Name) map[string]string
	invokers    map[engine.Name]engine.Invoker
	log         *logrus.Entry
}

// NewRetry constructs a Retry sweep.
func NewRetry(
	db *sql.DB,
	pending PendingLister,
	events eventstore.Store,
	coord *coordinator.Coordinator,
	packLoader func() policy.Pack,
	buildCtx coordinator.EvalContextBuilder,
	contracts coordinator.RequiredEngineContracts,
	paramMap func(p policy.Policy, name engine.Name) map[string]string,
	invokers map[engine.Name]engine.Invoker,
	log *logrus.Entry,
) *Retry {
	return &Retry{
		db: db, pending: pending, events: events, coordinator: coord, packLoader: packLoader,
		buildCtx: buildCtx, contracts: contracts, paramMap: paramMap, invokers: invokers, log: log,
	}
}

// Run executes one sweep pass.
func (r *Retry) Run(ctx context.Context) error {
	start := time.Now()
	items, err := r.pending.ListPending(ctx)
	if err != nil {
		return ledgererrors.Internal("retry sweep: failed to list pending outcomes", err)
	}
	defer func() {
		sweepRecorder.Histogram("retry_sweep_pass_seconds", nil, time.Since(start).Seconds())
	}()

	pending := 0
	for _, o := range items {
		if !o.CanRetry() {
			continue
		}
		pending++
		result, err := r.retryOne(ctx, o)
		if err != nil {
			metrics.RecordOutcomeRetry(string(o.FailureType), "failed")
			r.log.WithError(err).WithField("event_id", o.EventID).Warn("retry sweep: attempt failed")
			continue
		}
		switch {
		case result.Status == outcome.StatusPosted:
			metrics.RecordOutcomeRetry(string(o.FailureType), "succeeded")
		case !result.CanRetry():
			metrics.RecordOutcomeRetry(string(o.FailureType), "exhausted")
		default:
			metrics.RecordOutcomeRetry(string(o.FailureType), "failed")
		}
	}
	metrics.SetOutcomePending("retryable", pending)
	return nil
}

func (r *Retry) retryOne(ctx context.Context, prior outcome.Outcome) (outcome.Outcome, error) {
	evt, found, err := r.events.Get(ctx, prior.EventID)
	if err != nil {
		return outcome.Outcome{}, err
	}
	if !found {
		return outcome.Outcome{}, ledgererrors.NotFound("event", prior.EventID)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return outcome.Outcome{}, ledgererrors.Internal("retry sweep: failed to begin transaction", err)
	}

	pack := r.packLoader()
	result, err := r.coordinator.Retry(ctx, tx, prior, evt, pack, r.buildCtx, r.contracts, r.paramMap, r.invokers)
	if err != nil {
		_ = tx.Rollback()
		return outcome.Outcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return outcome.Outcome{}, ledgererrors.Internal("retry sweep: failed to commit transaction", err)
	}
	return result, nil
}

// PeriodClose drives the period-close sweep: every OPEN period whose end
// date plus grace window has elapsed moves to CLOSING and then, if every
// declared subledger's close-time reconciliation passes, to CLOSED
// (spec.md §4.3).
type PeriodClose struct {
	db         *sql.DB
	periodSvc  *period.Service
	graceHours int
	log        *logrus.Entry
}

// NewPeriodClose constructs a PeriodClose sweep.
func NewPeriodClose(db *sql.DB, periodSvc *period.Service, graceHours int, log *logrus.Entry) *PeriodClose {
	return &PeriodClose{db: db, periodSvc: periodSvc, graceHours: graceHours, log: log}
}

// Run executes one sweep pass.
func (p *PeriodClose) Run(ctx context.Context) error {
	start := time.Now()
	defer func() {
		sweepRecorder.Histogram("period_close_sweep_pass_seconds", nil, time.Since(start).Seconds())
	}()

	due, err := p.periodSvc.DueForClose(ctx, time.Now().UTC(), p.graceHours)
	if err != nil {
		return ledgererrors.Internal("period-close sweep: failed to list due periods", err)
	}
	sweepRecorder.Gauge("period_close_sweep_due_periods", nil, float64(len(due)))

	for _, code := range due {
		if err := p.closeOne(ctx, code); err != nil {
			metrics.RecordPeriodCloseSweep("error")
			p.log.WithError(err).WithField("period", code).Warn("period-close sweep: close attempt failed")
			continue
		}
		metrics.RecordPeriodCloseSweep("closed")
	}
	return nil
}

func (p *PeriodClose) closeOne(ctx context.Context, code string) error {
	if err := p.runInTx(ctx, func(tx *sql.Tx) error {
		return p.periodSvc.BeginClose(ctx, tx, code)
	}); err != nil {
		return err
	}
	return p.runInTx(ctx, func(tx *sql.Tx) error {
		return p.periodSvc.Close(ctx, tx, code)
	})
}

func (p *PeriodClose) runInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return ledgererrors.Internal("period-close sweep: failed to begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
