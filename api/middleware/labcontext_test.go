package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
)

func middlewareTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestLabContextExtractsIdentity(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	labID := uuid.New()

	var gotUser, gotLab uuid.UUID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		gotUser, ok = UserIDFromContext(r.Context())
		require.True(t, ok)
		gotLab, ok = LabIDFromContext(r.Context())
		require.True(t, ok)
		w.WriteHeader(http.StatusNoContent)
	})

	handler := LabContext(middlewareTestLogger())(next)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallets/me", nil)
	req.Header.Set("X-User-ID", userID.String())
	req.Header.Set("X-Lab-ID", labID.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, userID, gotUser)
	assert.Equal(t, labID, gotLab)
}

func TestLabContextRejectsMissingHeaders(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without identity")
	})

	handler := LabContext(middlewareTestLogger())(next)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallets/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLabContextRejectsMalformedLabID(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with a bad lab id")
	})

	handler := LabContext(middlewareTestLogger())(next)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallets/me", nil)
	req.Header.Set("X-User-ID", uuid.NewString())
	req.Header.Set("X-Lab-ID", "not-a-uuid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
