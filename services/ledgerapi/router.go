// Package ledgerapi exposes the kernel's external interface over HTTP
// (spec.md §6 "External Interfaces"): posting events, reading decision
// traces and the work queue, recording approval decisions, and the
// supplemented trial-balance/audit-verification endpoints.
package ledgerapi

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/acctkernel/ledger/domain/approval"
	"github.com/acctkernel/ledger/domain/engine"
	"github.com/acctkernel/ledger/domain/event"
	"github.com/acctkernel/ledger/domain/outcome"
	"github.com/acctkernel/ledger/domain/policy"
	"github.com/acctkernel/ledger/infrastructure/httputil"
	"github.com/acctkernel/ledger/infrastructure/middleware"
	"github.com/acctkernel/ledger/internal/approvalsvc"
	"github.com/acctkernel/ledger/internal/auditlog"
	"github.com/acctkernel/ledger/internal/coordinator"
	"github.com/acctkernel/ledger/internal/eventstore"
	"github.com/acctkernel/ledger/internal/tracesel"
	"github.com/acctkernel/ledger/ledgererrors"
	"github.com/acctkernel/ledger/pkg/metrics"
	"github.com/acctkernel/ledger/pkg/pgnotify"
)

// PackLoader returns the compiled policy pack loaded at process start. It
// is a function rather than a stored value so every handler reads the pack
// through one seam, even though the pack itself is immutable for the
// lifetime of the process (spec.md §6 "compiled configuration consumption
// rules"; spec.md §9 "the pack is loaded once and treated as immutable").
type PackLoader func() policy.Pack

// EngineInvokers is the fixed engine-name -> invoker table built at
// process start (spec.md §9).
type EngineInvokers map[engine.Name]engine.Invoker

// Deps bundles everything the router needs to build request handlers.
type Deps struct {
	DB           *sql.DB
	Logger       *logrus.Entry
	Coordinator  *coordinator.Coordinator
	Approvals    *approvalsvc.Service
	TraceSel     *tracesel.Selector
	Audit        *auditlog.Log
	Events       eventstore.Store
	Bus          *pgnotify.Bus
	PackLoader   PackLoader
	BuildEvalCtx coordinator.EvalContextBuilder
	Contracts    coordinator.RequiredEngineContracts
	ParamMapping func(p policy.Policy, name engine.Name) map[string]string
	Invokers     EngineInvokers
}

// NewRouter builds the chi router for the ledger HTTP ingress.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.LoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger).Handler)
	r.Use(middleware.NewTimeoutMiddleware(30 * time.Second).Handler)

	r.Post("/events", postEventHandler(deps))
	r.Get("/events/{eventID}/outcome", getOutcomeHandler(deps))
	r.Get("/work-queue", workQueueHandler(deps))
	r.Post("/approvals/{requestID}/decision", decisionHandler(deps))
	r.Get("/trial-balance", trialBalanceHandler(deps))
	r.Get("/audit/verify", auditVerifyHandler(deps))
	r.Get("/healthz", middleware.LivenessHandler())
	r.Handle("/metrics", metrics.Handler())

	return metrics.InstrumentHandler(r)
}

// PostEventRequest is the wire shape for POST /events (spec.md §6
// "post_event_from_external").
type PostEventRequest struct {
	EventID        string                 `json:"event_id"`
	EventType      string                 `json:"event_type"`
	SchemaVersion  string                 `json:"schema_version"`
	Payload        map[string]interface{} `json:"payload"`
	ActorID        string                 `json:"actor_id"`
	Producer       string                 `json:"producer"`
	OccurredAt     time.Time              `json:"occurred_at"`
	EffectiveDate  time.Time              `json:"effective_date"`
	IdempotencyKey string                 `json:"idempotency_key"`
}

// IntegrationPostResult mirrors spec.md §6's external result shape.
type IntegrationPostResult struct {
	EventID      string `json:"event_id"`
	Status       string `json:"status"`
	JournalEntry string `json:"journal_entry,omitempty"`
	FailureCode  string `json:"failure_code,omitempty"`
}

func postEventHandler(deps Deps) http.HandlerFunc {
	return httputil.HandleJSON(deps.Logger, func(ctx context.Context, req *PostEventRequest) (IntegrationPostResult, error) {
		evt, err := event.New(req.EventID, event.Type(req.EventType), req.SchemaVersion, req.Payload,
			req.ActorID, req.Producer, req.OccurredAt, req.EffectiveDate, req.IdempotencyKey)
		if err != nil {
			return IntegrationPostResult{}, err
		}
		if deps.Events != nil {
			if err := deps.Events.Insert(ctx, evt); err != nil {
				return IntegrationPostResult{}, ledgererrors.Internal("failed to record event", err)
			}
		}

		pack := deps.PackLoader()
		var result outcome.Outcome
		txErr := withTx(ctx, deps.DB, func(tx *sql.Tx) error {
			var err error
			result, err = deps.Coordinator.PostEvent(ctx, tx, evt, pack, deps.BuildEvalCtx, deps.Contracts,
				deps.ParamMapping, deps.Invokers)
			return err
		})
		if txErr != nil {
			metrics.RecordEventIngested(string(evt.EventType), "error")
			return IntegrationPostResult{}, txErr
		}
		metrics.RecordEventIngested(string(evt.EventType), strings.ToLower(string(result.Status)))

		if deps.Bus != nil && result.Status == outcome.StatusPosted {
			if err := deps.Bus.Publish(ctx, "ledger.journal_entries", result); err != nil {
				deps.Logger.WithError(err).Warn("failed to publish journal-entry notification")
			}
		}

		return IntegrationPostResult{
			EventID:      result.EventID,
			Status:       string(result.Status),
			JournalEntry: result.JournalEntry,
			FailureCode:  result.FailureCode,
		}, nil
	})
}

func getOutcomeHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "eventID")
		trace, err := deps.TraceSel.GetDecisionTrace(r.Context(), eventID)
		if err != nil {
			writeErr(w, r, deps.Logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, trace)
	}
}

// WorkQueueStore lists outcomes awaiting operator attention: BLOCKED
// (pending approval) and FAILED-but-retryable (SPEC_FULL.md §3 "GET
// /work-queue").
type WorkQueueStore interface {
	ListPending(ctx context.Context) ([]outcome.Outcome, error)
}

func workQueueHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := deps.TraceSel.Reader().(WorkQueueStore)
		if !ok {
			writeErr(w, r, deps.Logger, ledgererrors.Internal("work-queue store not available", nil))
			return
		}
		items, err := store.ListPending(r.Context())
		if err != nil {
			writeErr(w, r, deps.Logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, items)
	}
}

// DecisionRequest is the wire shape for POST /approvals/{id}/decision.
type DecisionRequest struct {
	ActorID   string `json:"actor_id"`
	Outcome   string `json:"outcome"`
	Rationale string `json:"rationale"`
}

func decisionHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := chi.URLParam(r, "requestID")
		var req DecisionRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}

		var decision approval.Decision
		txErr := withTx(r.Context(), deps.DB, func(tx *sql.Tx) error {
			var err error
			decision, err = deps.Approvals.Decide(r.Context(), tx, requestID, req.ActorID, approval.Status(req.Outcome), req.Rationale)
			return err
		})
		if txErr != nil {
			writeErr(w, r, deps.Logger, txErr)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, decision)
	}
}

func trialBalanceHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		period := r.URL.Query().Get("period")
		lines, err := deps.TraceSel.TrialBalance(r.Context(), period)
		if err != nil {
			writeErr(w, r, deps.Logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, lines)
	}
}

func auditVerifyHandler(deps Deps) http.HandlerFunc {
	return httputil.HandleNoBody(deps.Logger, func(ctx context.Context) (map[string]interface{}, error) {
		if err := deps.Audit.VerifyAll(ctx); err != nil {
			return nil, err
		}
		return map[string]interface{}{"verified": true}, nil
	})
}

func writeErr(w http.ResponseWriter, r *http.Request, logger *logrus.Entry, err error) {
	if lerr := ledgererrors.As(err); lerr != nil {
		httputil.WriteErrorResponse(w, r, lerr.HTTPStatus, string(lerr.Code), lerr.Message, lerr.Details)
		return
	}
	httputil.WriteErrorResponse(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}

// withTx runs fn inside a new transaction, committing on success and
// rolling back on any error (R7: one transaction per post attempt).
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return ledgererrors.Internal("failed to begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
