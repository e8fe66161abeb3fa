// Package coordinator orchestrates the full interpretation pipeline for
// one event inside one transaction (spec.md §4.10, R7): ingest
// verification, period check, policy selection, guard evaluation, engine
// dispatch, journal posting, subledger reconciliation, and durable outcome
// recording. Every event produces exactly one Outcome, including
// REJECTED/FAILED ones (P15; spec.md §9 "outcomes must be durable").
package coordinator

import (
	"context"
	"database/sql"
	"time"

	"github.com/acctkernel/ledger/domain/audit"
	"github.com/acctkernel/ledger/domain/engine"
	"github.com/acctkernel/ledger/domain/event"
	"github.com/acctkernel/ledger/domain/outcome"
	"github.com/acctkernel/ledger/domain/policy"
	"github.com/acctkernel/ledger/internal/dispatch"
	"github.com/acctkernel/ledger/internal/guardeval"
	"github.com/acctkernel/ledger/internal/ingest"
	"github.com/acctkernel/ledger/internal/journalwriter"
	"github.com/acctkernel/ledger/internal/period"
	"github.com/acctkernel/ledger/internal/registry"
	"github.com/acctkernel/ledger/internal/selector"
	"github.com/acctkernel/ledger/ledgererrors"
)

// OutcomeStore persists interpretation outcomes.
type OutcomeStore interface {
	Get(ctx context.Context, eventID string) (outcome.Outcome, bool, error)
	Upsert(ctx context.Context, tx *sql.Tx, o outcome.Outcome) error
}

// AuditAppender records one side-channel audit entry inside tx. It is the
// same signature as internal/auditlog.Log.Append, kept as an interface
// here so the coordinator does not import a concrete store type.
type AuditAppender interface {
	Append(ctx context.Context, tx *sql.Tx, entityRef, action string, payload interface{}, recordedAt time.Time) (audit.Event, error)
}

// Coordinator wires together every pipeline stage.
type Coordinator struct {
	ingestor    *ingest.Ingestor
	periodSvc   *period.Service
	registry    *registry.Registry
	dispatcher  *dispatch.Dispatcher
	writer      *journalwriter.Writer
	outcomes    OutcomeStore
	audit       AuditAppender
	maxRetries  int
	fiscalOf    func(effectiveDate time.Time) string
}

// New constructs a Coordinator. fiscalOf maps an event's effective date to
// the fiscal period code it posts against.
func New(
	ingestor *ingest.Ingestor,
	periodSvc *period.Service,
	reg *registry.Registry,
	dispatcher *dispatch.Dispatcher,
	writer *journalwriter.Writer,
	outcomes OutcomeStore,
	audit AuditAppender,
	maxRetries int,
	fiscalOf func(time.Time) string,
) *Coordinator {
	return &Coordinator{
		ingestor:   ingestor,
		periodSvc:  periodSvc,
		registry:   reg,
		dispatcher: dispatcher,
		writer:     writer,
		outcomes:   outcomes,
		audit:      audit,
		maxRetries: maxRetries,
		fiscalOf:   fiscalOf,
	}
}

// RequiredEngineContracts resolves a policy's declared engine contracts
// from the pack, keyed by engine name, for Dispatch calls.
type RequiredEngineContracts func(p policy.Policy, pack policy.Pack) map[engine.Name]policy.EngineContract

// EvalContextBuilder builds the guardeval.Context a given event should
// evaluate where-predicates, guards, and line mappings against.
type EvalContextBuilder func(evt event.Event) guardeval.Context

// PostEvent runs the full pipeline for evt inside tx and returns the
// durable Outcome. It never returns a bare error for business-rule
// failures (guard rejection, unbalanced entry, missing role, ...) — those
// become a FAILED/REJECTED/BLOCKED Outcome instead, recorded via
// o.outcomes.Upsert before PostEvent returns, per spec.md §9 ("exceptions
// re-architected as explicit typed result values... outcomes must be
// durable even for REJECTED/FAILED"). A non-nil error return means the
// transaction itself could not complete (infrastructure failure) and the
// caller must roll back.
func (c *Coordinator) PostEvent(
	ctx context.Context,
	tx *sql.Tx,
	evt event.Event,
	pack policy.Pack,
	buildCtx EvalContextBuilder,
	contractsFor RequiredEngineContracts,
	paramMappingFor func(p policy.Policy, engineName engine.Name) map[string]string,
	invokeEngines map[engine.Name]engine.Invoker,
) (outcome.Outcome, error) {
	now := time.Now().UTC()

	isNew, err := c.ingestor.ClaimIdempotency(ctx, tx, evt)
	if err != nil {
		return c.fail(ctx, tx, evt, outcome.FailureAuthority, err, now)
	}
	if !isNew {
		if existing, found, gerr := c.outcomes.Get(ctx, evt.EventID); gerr == nil && found {
			return existing, nil
		}
	}

	if err := c.ingestor.Verify(evt); err != nil {
		return c.fail(ctx, tx, evt, outcome.FailureContract, err, now)
	}

	fiscalPeriod := c.fiscalOf(evt.EffectiveDate)

	evalCtx := buildCtx(evt)

	candidates, err := c.registry.FindFor(string(evt.EventType), evalCtx, evt.OccurredAt.Unix())
	if err != nil {
		return c.fail(ctx, tx, evt, outcome.FailureContract, err, now)
	}
	chosen, err := selector.Select(string(evt.EventType), candidates)
	if err != nil {
		return c.fail(ctx, tx, evt, outcome.FailureContract, err, now)
	}

	// Period gate (R12, R13, R25): only once the policy is selected do we
	// know whether this posting is an adjustment/close-step write, since
	// that is a property of the chosen policy, not the raw event.
	if err := c.periodSvc.CheckAcceptsPosting(ctx, fiscalPeriod, chosen.IsAdjustment); err != nil {
		return c.fail(ctx, tx, evt, outcome.FailureContract, err, now)
	}

	disposition, err := selector.EvaluateGuards(chosen, evalCtx)
	if err != nil {
		return c.fail(ctx, tx, evt, outcome.FailureGuard, err, now)
	}
	switch disposition.Action {
	case policy.DispositionReject:
		return c.record(ctx, tx, evt, outcome.Outcome{
			EventID: evt.EventID, Status: outcome.StatusRejected, PolicyName: chosen.Name,
			FailureType: outcome.FailureGuard, FailureCode: disposition.ReasonCode,
			FailureDetail: map[string]interface{}{"message": disposition.Message},
			CreatedAt: now, UpdatedAt: now,
		})
	case policy.DispositionBlock:
		return c.record(ctx, tx, evt, outcome.Outcome{
			EventID: evt.EventID, Status: outcome.StatusBlocked, PolicyName: chosen.Name,
			FailureType: outcome.FailureGuard, FailureCode: disposition.ReasonCode,
			FailureDetail: map[string]interface{}{"message": disposition.Message},
			CreatedAt: now, UpdatedAt: now,
		})
	}

	traces := make(map[engine.Name]engine.Trace, len(chosen.RequiredEngines))
	contracts := contractsFor(chosen, pack)
	dispatcher := dispatch.New(invokeEngines)
	for _, name := range chosen.RequiredEngines {
		engName := engine.Name(name)
		contract := contracts[engName]
		mapping := paramMappingFor(chosen, engName)
		trace, err := dispatcher.Dispatch(engName, contract, evt, evalCtx, mapping)
		if err != nil {
			return c.fail(ctx, tx, evt, outcome.FailureEngine, err, now)
		}
		traces[engName] = trace
	}
	// N required engines must produce N success traces (spec.md §4.6).
	if len(traces) != len(chosen.RequiredEngines) {
		return c.fail(ctx, tx, evt, outcome.FailureEngine,
			ledgererrors.Internal("not all required engines produced a trace", nil), now)
	}

	entry, err := c.writer.Post(ctx, tx, journalwriter.PostInput{
		Event: evt, Policy: chosen, Pack: pack, EvalCtx: evalCtx, Traces: traces,
		FiscalPeriod: fiscalPeriod,
	})
	if err != nil {
		if ledgererrors.HasCode(err, ledgererrors.CodeStaleSnapshot) {
			return c.fail(ctx, tx, evt, outcome.FailureSnapshot, err, now)
		}
		if ledgererrors.HasCode(err, ledgererrors.CodeSubledgerReconciliationFailed) {
			return c.fail(ctx, tx, evt, outcome.FailureReconciliation, err, now)
		}
		return c.fail(ctx, tx, evt, outcome.FailureContract, err, now)
	}

	return c.record(ctx, tx, evt, outcome.Outcome{
		EventID: evt.EventID, Status: outcome.StatusPosted, PolicyName: chosen.Name,
		JournalEntry: entry.EntryID, CreatedAt: now, UpdatedAt: now,
	})
}

// Retry re-enters a FAILED event's outcome into the pipeline, replaying it
// against the CURRENT compiled pack (spec.md §4.10 "Retry contract"). The
// event's payload, actor, and timestamps are immutable; only pack state
// may differ between attempts. RETRY_EXHAUSTED once RetryCount reaches
// MaxRetries.
func (c *Coordinator) Retry(ctx context.Context, tx *sql.Tx, prior outcome.Outcome, evt event.Event, pack policy.Pack,
	buildCtx EvalContextBuilder, contractsFor RequiredEngineContracts,
	paramMappingFor func(p policy.Policy, engineName engine.Name) map[string]string,
	invokeEngines map[engine.Name]engine.Invoker,
) (outcome.Outcome, error) {
	if !prior.CanRetry() {
		return outcome.Outcome{}, ledgererrors.RetryExhausted(evt.EventID, prior.MaxRetries)
	}
	retrying := prior
	retrying.Status = outcome.StatusRetrying
	retrying.RetryCount++
	retrying.UpdatedAt = time.Now().UTC()
	if err := c.outcomes.Upsert(ctx, tx, retrying); err != nil {
		return outcome.Outcome{}, ledgererrors.Internal("coordinator: failed to record retrying state", err)
	}

	result, err := c.PostEvent(ctx, tx, evt, pack, buildCtx, contractsFor, paramMappingFor, invokeEngines)
	if err != nil {
		return result, err
	}
	if result.Status != outcome.StatusPosted {
		result.Status = outcome.StatusFailed
		result.RetryCount = retrying.RetryCount
		result.MaxRetries = prior.MaxRetries
		if err := c.outcomes.Upsert(ctx, tx, result); err != nil {
			return outcome.Outcome{}, ledgererrors.Internal("coordinator: failed to record retry failure", err)
		}
	}
	return result, nil
}

func (c *Coordinator) fail(ctx context.Context, tx *sql.Tx, evt event.Event, failureType outcome.FailureType, err error, now time.Time) (outcome.Outcome, error) {
	lerr := ledgererrors.As(err)
	code := ""
	var details map[string]interface{}
	if lerr != nil {
		code = string(lerr.Code)
		details = lerr.Details
	} else if err != nil {
		details = map[string]interface{}{"error": err.Error()}
	}
	o := outcome.Outcome{
		EventID:       evt.EventID,
		Status:        outcome.StatusFailed,
		FailureType:   failureType,
		FailureCode:   code,
		FailureDetail: details,
		MaxRetries:    c.maxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return c.record(ctx, tx, evt, o)
}

func (c *Coordinator) record(ctx context.Context, tx *sql.Tx, evt event.Event, o outcome.Outcome) (outcome.Outcome, error) {
	if err := c.outcomes.Upsert(ctx, tx, o); err != nil {
		return outcome.Outcome{}, ledgererrors.Internal("coordinator: failed to persist outcome", err)
	}
	if c.audit != nil {
		if _, err := c.audit.Append(ctx, tx, "event:"+evt.EventID, "outcome_recorded", o, time.Now().UTC()); err != nil {
			return outcome.Outcome{}, ledgererrors.Internal("coordinator: failed to append audit record", err)
		}
	}
	return o, nil
}
