package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/phc/phc/internal/platform/audit"
	"github.com/phc/phc/internal/platform/auth"
)

// AuditTargetKey lets a handler name the record it created when the route
// has no id parameter.
const AuditTargetKey = "audit_target"

// Audit records every successful write. The entry lands in the partition's
// audit_log when the request was resolved to a tenant, otherwise in the
// platform audit log. A failing recorder never fails the request.
func Audit(recorder audit.Recorder, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			req := c.Request()
			status := c.Response().Status
			if err != nil || !isWrite(req.Method) || status >= http.StatusBadRequest {
				return err
			}

			ctx := req.Context()
			rid, _ := c.Get("request_id").(string)
			entry := audit.Entry{
				Action:   req.Method + " " + c.Path(),
				ActorID:  auth.UserIDFromContext(ctx),
				Role:     auth.RoleFromContext(ctx),
				TargetID: auditTarget(c),
				Details: map[string]interface{}{
					"status":     status,
					"request_id": rid,
					"remote_ip":  c.RealIP(),
				},
			}

			if recErr := recorder.Record(context.WithoutCancel(ctx), entry); recErr != nil {
				partition, _ := c.Get("partition").(string)
				logger.Error().Err(recErr).
					Str("request_id", rid).
					Str("partition", partition).
					Str("action", entry.Action).
					Msg("failed to record audit entry")
			}
			return nil
		}
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func auditTarget(c echo.Context) string {
	if id, ok := c.Get(AuditTargetKey).(string); ok && id != "" {
		return id
	}
	for _, name := range []string{"id", "bedId"} {
		if v := c.Param(name); v != "" {
			return v
		}
	}
	return ""
}
