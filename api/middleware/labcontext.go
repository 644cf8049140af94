package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/mukhtabar/mukhtabar-backend/api/responses"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
)

// Identity headers are set by the gateway after it verifies the session.
// This service trusts them and never sees raw credentials.
const (
	userIDHeader = "X-User-ID"
	labIDHeader  = "X-Lab-ID"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	labIDKey  contextKey = "lab_id"
)

// LabContext requires the gateway identity headers and stores the parsed
// ids on the request context.
func LabContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := uuid.Parse(r.Header.Get(userIDHeader))
			if err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeUnauthorized, "missing or invalid user identity"))
				return
			}
			labID, err := uuid.Parse(r.Header.Get(labIDHeader))
			if err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeUnauthorized, "missing or invalid lab identity"))
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, labIDKey, labID)
			ctx = logg.WithLabID(ctx, labID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext returns the authenticated user id, if present.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// LabIDFromContext returns the acting lab id, if present.
func LabIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(labIDKey).(uuid.UUID)
	return id, ok
}

// Identity pulls both ids or fails with an unauthorized error. Handlers
// behind LabContext use this instead of re-parsing headers.
func Identity(ctx context.Context) (userID, labID uuid.UUID, err error) {
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user identity")
	}
	labID, ok = LabIDFromContext(ctx)
	if !ok {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing lab identity")
	}
	return userID, labID, nil
}
