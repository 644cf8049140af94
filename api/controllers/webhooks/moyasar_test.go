package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalwebhooks "github.com/mukhtabar/mukhtabar-backend/internal/webhooks"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
	"github.com/mukhtabar/mukhtabar-backend/pkg/types"
)

type stubWebhookService struct {
	events []internalwebhooks.Event
	err    error
}

func (s *stubWebhookService) HandleEvent(_ context.Context, event internalwebhooks.Event) error {
	s.events = append(s.events, event)
	return s.err
}

type stubSecret string

func (s stubSecret) WebhookSecret() string { return string(s) }

func sign(t *testing.T, payload, secret string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

const eventPayload = `{"id":"evt_1","type":"payment_paid","data":{"id":"pay_1","status":"paid","amount":11500,"metadata":{"order_id":"4a8f6a3e-0c1d-4f6e-9a6e-1b2c3d4e5f60"}}}`

func TestMoyasarWebhookRoutesSignedEvent(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{}
	handler := MoyasarWebhook(svc, stubSecret("whsec"), webhookTestLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(eventPayload))
	req.Header.Set(signatureHeader, sign(t, eventPayload, "whsec"))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.events, 1)
	assert.Equal(t, internalwebhooks.EventPaymentPaid, svc.events[0].Type)
	assert.Equal(t, int64(11500), svc.events[0].Data.Amount)
}

func TestMoyasarWebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{}
	handler := MoyasarWebhook(svc, stubSecret("whsec"), webhookTestLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(eventPayload))
	req.Header.Set(signatureHeader, sign(t, eventPayload, "wrong-secret"))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.events)

	var envelope types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, string(pkgerrors.CodeSignatureInvalid), envelope.Error.Code)
}

func TestMoyasarWebhookAcknowledgesUnsignedProbe(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{}
	handler := MoyasarWebhook(svc, stubSecret("whsec"), webhookTestLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, svc.events)
}

func TestMoyasarWebhookPropagatesRetryableFailure(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{err: pkgerrors.New(pkgerrors.CodeDependency, "redis down")}
	handler := MoyasarWebhook(svc, stubSecret("whsec"), webhookTestLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(eventPayload))
	req.Header.Set(signatureHeader, sign(t, eventPayload, "whsec"))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
