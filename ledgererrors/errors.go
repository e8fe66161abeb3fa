// Package ledgererrors provides unified, typed error handling for the
// ledger kernel. Every error that crosses a component boundary (registry,
// selector, dispatcher, journal writer, coordinator) is a *Error carrying a
// stable machine-readable Code (R18); there is no silent coercion (R19).
package ledgererrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error identifier as enumerated in
// spec.md §7.
type Code string

const (
	// Protocol violations.
	CodeProtocolViolation Code = "PROTOCOL_VIOLATION"
	CodeInvalidActor      Code = "INVALID_ACTOR"
	CodeActorFrozen       Code = "ACTOR_FROZEN"
	CodeUncompiledPolicy  Code = "UNCOMPILED_POLICY"

	// Policy errors.
	CodeProfileNotFound  Code = "PROFILE_NOT_FOUND"
	CodeAmbiguousDispatch Code = "AMBIGUOUS_DISPATCH"
	CodeGuardRejected    Code = "GUARD_REJECTED"
	CodeGuardBlocked     Code = "GUARD_BLOCKED"

	// Posting errors.
	CodeUnbalanced        Code = "UNBALANCED"
	CodeMissingRoleBinding Code = "MISSING_ROLE_BINDING"
	CodeStaleSnapshot     Code = "STALE_SNAPSHOT"
	CodeInvalidQuantity   Code = "INVALID_QUANTITY"
	CodeNegativeAmount    Code = "NEGATIVE_AMOUNT"

	// Period errors.
	CodePeriodClosed          Code = "PERIOD_CLOSED"
	CodePeriodClosing         Code = "PERIOD_CLOSING"
	CodeAdjustmentsNotAllowed Code = "ADJUSTMENTS_NOT_ALLOWED"

	// Idempotency.
	CodeAlreadyPosted      Code = "ALREADY_POSTED"
	CodeIdempotencyConflict Code = "IDEMPOTENCY_CONFLICT"

	// Subledger / integrity.
	CodeSubledgerReconciliationFailed Code = "SUBLEDGER_RECONCILIATION_FAILED"
	CodeLinkCycle       Code = "LINK_CYCLE"
	CodeLinkSelf        Code = "LINK_SELF"
	CodeInvalidLinkType Code = "INVALID_LINK_TYPE"

	// Engine errors.
	CodeEngineNotRegistered Code = "ENGINE_NOT_REGISTERED"
	CodeEngineParamInvalid  Code = "ENGINE_PARAM_INVALID"
	CodeEngineFailed        Code = "ENGINE_FAILED"

	// Approval errors.
	CodeApprovalRequired  Code = "APPROVAL_REQUIRED"
	CodeApprovalConflict  Code = "APPROVAL_CONFLICT"
	CodePolicyDowngrade   Code = "POLICY_DOWNGRADE_REJECTED"

	// Generic.
	CodeInternal    Code = "INTERNAL"
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeNotFound    Code = "NOT_FOUND"
	CodeRetryExhausted Code = "RETRY_EXHAUSTED"
)

// Error is a structured, typed error with a stable Code, an HTTP status
// hint for the ingress layer, and optional structured Details for the
// failure work queue.
type Error struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches a structured detail key/value and returns e for chaining.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New constructs an Error with no underlying cause.
func New(code Code, message string, httpStatus int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap constructs an Error that preserves an underlying cause via Unwrap.
func Wrap(code Code, message string, httpStatus int, err error) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// As extracts an *Error from an error chain.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// HasCode reports whether err's structured Code matches code.
func HasCode(err error, code Code) bool {
	if e := As(err); e != nil {
		return e.Code == code
	}
	return false
}

// Constructors for the error kinds spec.md §7 names explicitly. Each one
// carries the Code the failure work queue and the outcome recorder key off.

func ProtocolViolation(eventID string) *Error {
	return New(CodeProtocolViolation, "payload hash does not match the original event", http.StatusConflict).
		WithDetails("event_id", eventID)
}

func InvalidActor(actorID string) *Error {
	return New(CodeInvalidActor, "actor could not be verified", http.StatusUnauthorized).
		WithDetails("actor_id", actorID)
}

func ActorFrozen(actorID string) *Error {
	return New(CodeActorFrozen, "actor is frozen", http.StatusForbidden).
		WithDetails("actor_id", actorID)
}

func UncompiledPolicy(policyName string) *Error {
	return New(CodeUncompiledPolicy, "policy was not admitted through the compiler", http.StatusUnprocessableEntity).
		WithDetails("policy_name", policyName)
}

func ProfileNotFound(eventType string) *Error {
	return New(CodeProfileNotFound, "no admissible policy for event type", http.StatusUnprocessableEntity).
		WithDetails("event_type", eventType)
}

func AmbiguousDispatch(eventType string, candidates []string) *Error {
	return New(CodeAmbiguousDispatch, "multiple equally specific policies match", http.StatusUnprocessableEntity).
		WithDetails("event_type", eventType).
		WithDetails("candidates", candidates)
}

func GuardRejected(reasonCode, message string) *Error {
	return New(CodeGuardRejected, message, http.StatusUnprocessableEntity).
		WithDetails("reason_code", reasonCode)
}

func GuardBlocked(reasonCode, message string) *Error {
	return New(CodeGuardBlocked, message, http.StatusAccepted).
		WithDetails("reason_code", reasonCode)
}

func Unbalanced(currency string, residual string) *Error {
	return New(CodeUnbalanced, "debits and credits do not balance within tolerance", http.StatusUnprocessableEntity).
		WithDetails("currency", currency).
		WithDetails("residual", residual)
}

func MissingRoleBinding(role string) *Error {
	return New(CodeMissingRoleBinding, "role has no account/ledger binding", http.StatusUnprocessableEntity).
		WithDetails("role", role)
}

func StaleSnapshot(component string) *Error {
	return New(CodeStaleSnapshot, "reference snapshot is stale", http.StatusConflict).
		WithDetails("component", component)
}

func InvalidQuantity(field string) *Error {
	return New(CodeInvalidQuantity, "quantity is invalid", http.StatusBadRequest).
		WithDetails("field", field)
}

func NegativeAmount(field string) *Error {
	return New(CodeNegativeAmount, "amount must be non-negative", http.StatusBadRequest).
		WithDetails("field", field)
}

func PeriodClosed(periodCode string) *Error {
	return New(CodePeriodClosed, "fiscal period is closed", http.StatusUnprocessableEntity).
		WithDetails("period", periodCode)
}

func PeriodClosing(periodCode string) *Error {
	return New(CodePeriodClosing, "fiscal period is closing; only close-steps may post", http.StatusUnprocessableEntity).
		WithDetails("period", periodCode)
}

func AdjustmentsNotAllowed(periodCode string) *Error {
	return New(CodeAdjustmentsNotAllowed, "period does not allow adjustments", http.StatusUnprocessableEntity).
		WithDetails("period", periodCode)
}

func AlreadyPosted(entryID string) *Error {
	return New(CodeAlreadyPosted, "event was already posted", http.StatusOK).
		WithDetails("entry_id", entryID)
}

func IdempotencyConflict(key string) *Error {
	return New(CodeIdempotencyConflict, "idempotency key collision with different content", http.StatusConflict).
		WithDetails("idempotency_key", key)
}

func SubledgerReconciliationFailed(subledgerType, currency string) *Error {
	return New(CodeSubledgerReconciliationFailed, "subledger balance does not match GL control account", http.StatusConflict).
		WithDetails("subledger_type", subledgerType).
		WithDetails("currency", currency)
}

func LinkCycle(parentRef, childRef string) *Error {
	return New(CodeLinkCycle, "link would create a cycle", http.StatusConflict).
		WithDetails("parent_ref", parentRef).
		WithDetails("child_ref", childRef)
}

func LinkSelf(ref string) *Error {
	return New(CodeLinkSelf, "an artifact cannot link to itself", http.StatusBadRequest).
		WithDetails("ref", ref)
}

func InvalidLinkType(linkType, parentType, childType string) *Error {
	return New(CodeInvalidLinkType, "link type is not admissible between these artifact types", http.StatusBadRequest).
		WithDetails("link_type", linkType).
		WithDetails("parent_type", parentType).
		WithDetails("child_type", childType)
}

func EngineNotRegistered(name string) *Error {
	return New(CodeEngineNotRegistered, "engine has no registered invoker", http.StatusUnprocessableEntity).
		WithDetails("engine", name)
}

func EngineParamInvalid(name, reason string) *Error {
	return New(CodeEngineParamInvalid, "engine parameters failed schema validation", http.StatusBadRequest).
		WithDetails("engine", name).
		WithDetails("reason", reason)
}

func EngineFailed(name string, err error) *Error {
	return Wrap(CodeEngineFailed, "engine invocation failed", http.StatusUnprocessableEntity, err).
		WithDetails("engine", name)
}

func Internal(message string, err error) *Error {
	return Wrap(CodeInternal, message, http.StatusInternalServerError, err)
}

func InvalidInput(field, reason string) *Error {
	return New(CodeInvalidInput, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func NotFound(resource, id string) *Error {
	return New(CodeNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func RetryExhausted(eventID string, maxRetries int) *Error {
	return New(CodeRetryExhausted, "retry count has reached the configured maximum", http.StatusConflict).
		WithDetails("event_id", eventID).
		WithDetails("max_retries", maxRetries)
}

// HTTPStatus extracts the HTTP status hint for err, defaulting to 500.
func HTTPStatus(err error) int {
	if e := As(err); e != nil {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}
