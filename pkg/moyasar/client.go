package moyasar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mukhtabar/mukhtabar-backend/pkg/config"
	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
)

const (
	// StatusPaid is the provider status for a captured payment.
	StatusPaid = "paid"
	// StatusFailed is the provider status for a declined payment.
	StatusFailed = "failed"
	// StatusRefunded is the provider status after a refund settles.
	StatusRefunded = "refunded"
)

var (
	errAPIKeyRequired = errors.New("moyasar api key is required")
	errSecretRequired = errors.New("moyasar webhook secret is required")
)

// Payment is the subset of the provider's payment resource the platform
// reads. Amount is in halalas, matching the provider's minor units.
type Payment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	InvoiceID   string `json:"invoice_id"`
	Source      struct {
		Type    string `json:"type"`
		Company string `json:"company"`
		Message string `json:"message"`
	} `json:"source"`
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
	Type       string `json:"type"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("moyasar: %d %s", e.StatusCode, e.Message)
}

// Client calls the Moyasar REST API with the configured credentials.
type Client struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	http          *http.Client
}

// NewClient validates the configured secrets and builds an API client.
func NewClient(ctx context.Context, cfg config.MoyasarConfig, logg *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errSecretRequired
	}

	if logg != nil {
		logg.Info(ctx, "moyasar client initialized")
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        apiKey,
		webhookSecret: secret,
		http:          &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}

// WebhookSecret returns the shared secret used to verify webhook signatures.
func (c *Client) WebhookSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// FetchPayment retrieves the payment resource by provider id.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, errors.New("payment id is required")
	}

	url := fmt.Sprintf("%s/v1/payments/%s", c.baseURL, paymentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, "")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch payment %s: %w", paymentID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read payment response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if unmarshalErr := json.Unmarshal(body, apiErr); unmarshalErr != nil {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return nil, apiErr
	}

	var payment Payment
	if err := json.Unmarshal(body, &payment); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	return &payment, nil
}
