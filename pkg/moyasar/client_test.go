package moyasar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukhtabar/mukhtabar-backend/pkg/config"
)

func testConfig(baseURL string) config.MoyasarConfig {
	return config.MoyasarConfig{
		APIKey:         "sk_test_abc",
		WebhookSecret:  "whsec_test",
		BaseURL:        baseURL,
		RequestTimeout: 2 * time.Second,
	}
}

func TestNewClientRequiresSecrets(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://api.moyasar.com")
	cfg.APIKey = ""
	_, err := NewClient(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, errAPIKeyRequired)

	cfg = testConfig("https://api.moyasar.com")
	cfg.WebhookSecret = "  "
	_, err = NewClient(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, errSecretRequired)
}

func TestFetchPayment(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "sk_test_abc", user)
		assert.Equal(t, "/v1/payments/pay_123", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pay_123","status":"paid","amount":57500,"currency":"SAR"}`))
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), testConfig(server.URL), nil)
	require.NoError(t, err)

	payment, err := client.FetchPayment(context.Background(), "pay_123")
	require.NoError(t, err)
	assert.Equal(t, "pay_123", payment.ID)
	assert.Equal(t, StatusPaid, payment.Status)
	assert.Equal(t, int64(57500), payment.Amount)
}

func TestFetchPaymentAPIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"payment not found","type":"invalid_request_error"}`))
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), testConfig(server.URL), nil)
	require.NoError(t, err)

	_, err = client.FetchPayment(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "payment not found", apiErr.Message)
}
