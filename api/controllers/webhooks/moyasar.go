package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/mukhtabar/mukhtabar-backend/api/responses"
	internalwebhooks "github.com/mukhtabar/mukhtabar-backend/internal/webhooks"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
)

const (
	signatureHeader = "X-Signature"
	maxPayloadBytes = 1 << 20
)

type secretProvider interface {
	WebhookSecret() string
}

// MoyasarPing answers the provider's endpoint verification probe.
func MoyasarPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

// MoyasarWebhook verifies and routes provider payment events. Unsigned
// deliveries are acknowledged without processing so endpoint checks pass;
// a bad signature is rejected outright.
func MoyasarWebhook(svc internalwebhooks.Service, client secretProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment client unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(signatureHeader)
		if signature == "" {
			if logg != nil {
				logg.Info(ctx, "unsigned webhook delivery acknowledged without processing")
			}
			responses.WriteSuccess(w, map[string]string{"status": "unprocessed"})
			return
		}

		if !verifySignature(payload, signature, client.WebhookSecret()) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignatureInvalid, "webhook signature mismatch"))
			return
		}

		var event internalwebhooks.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook payload"))
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "processed"})
	}
}

func verifySignature(payload []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
