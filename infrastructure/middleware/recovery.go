// Package middleware provides HTTP middleware functions
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/acctkernel/ledger/infrastructure/httputil"
	"github.com/acctkernel/ledger/ledgererrors"
)

// RecoveryMiddleware recovers from panics and logs them.
type RecoveryMiddleware struct {
	logger *logrus.Entry
}

// NewRecoveryMiddleware creates a new recovery middleware.
func NewRecoveryMiddleware(logger *logrus.Entry) *RecoveryMiddleware {
	return &RecoveryMiddleware{
		logger: logger,
	}
}

// Handler returns the recovery middleware handler.
func (m *RecoveryMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				stack := debug.Stack()
				if m.logger != nil {
					m.logger.WithContext(r.Context()).WithFields(logrus.Fields{
						"panic":       fmt.Sprintf("%v", rec),
						"stack":       string(stack),
						"path":        r.URL.Path,
						"method":      r.Method,
						"remote_addr": r.RemoteAddr,
					}).Error("panic recovered")
				}

				svcErr := ledgererrors.Internal("internal server error", fmt.Errorf("%v", rec))
				httputil.WriteErrorResponse(w, r, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message, svcErr.Details)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
