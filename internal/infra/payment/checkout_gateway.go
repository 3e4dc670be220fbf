package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"marketplace-billing/internal/domain"
	"marketplace-billing/internal/domain/ports/adapter"
)

var _ adapter.CheckoutGateway = (*HTTPCheckoutGateway)(nil)

// HTTPCheckoutGateway implements adapter.CheckoutGateway using direct HTTP
// calls against the gateway's REST API.
type HTTPCheckoutGateway struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewHTTPCheckoutGateway(baseURL, secretKey string, timeout time.Duration) *HTTPCheckoutGateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPCheckoutGateway{
		baseURL:   baseURL,
		secretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
	}
}

type checkoutSessionResponse struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Customer      string `json:"customer"`
	Subscription  string `json:"subscription"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Error         string `json:"error"`
}

func (g *HTTPCheckoutGateway) CreateCheckoutSession(ctx context.Context, p adapter.CreateCheckoutParams) (string, string, error) {
	mode := "subscription"
	if p.PaymentType != "" && p.PaymentType != "subscription" {
		mode = "payment"
	}
	requestData := map[string]interface{}{
		"mode":           mode,
		"price":          p.PriceID,
		"customer_email": p.Email,
		"success_url":    p.SuccessURL,
		"cancel_url":     p.CancelURL,
		"metadata": map[string]string{
			"userId":        p.TenantID,
			"userType":      string(p.TenantType),
			"plan":          p.Plan,
			"paymentType":   string(p.PaymentType),
			"applicationId": p.ApplicationID,
		},
	}

	var response checkoutSessionResponse
	if err := g.post(ctx, "/v1/checkout/sessions", requestData, &response); err != nil {
		return "", "", err
	}
	if response.URL == "" || response.ID == "" {
		return "", "", fmt.Errorf("gateway returned no redirect url: %w", domain.ErrGateway)
	}
	return response.URL, response.ID, nil
}

func (g *HTTPCheckoutGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*adapter.CheckoutSessionStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/checkout/sessions/"+sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var response checkoutSessionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(body))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, gatewayError(resp.StatusCode, response.Error, body)
	}

	return &adapter.CheckoutSessionStatus{
		SessionID:      response.ID,
		CustomerID:     response.Customer,
		SubscriptionID: response.Subscription,
		Status:         response.Status,
		PaymentStatus:  response.PaymentStatus,
	}, nil
}

func (g *HTTPCheckoutGateway) post(ctx context.Context, path string, payload interface{}, out *checkoutSessionResponse) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// A non-JSON error body is still a gateway failure; keep raw text.
			return gatewayError(resp.StatusCode, "", body)
		}
		return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(body))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gatewayError(resp.StatusCode, out.Error, body)
	}
	return nil
}

// gatewayError prefers the JSON error field as message, falling back to the
// raw body.
func gatewayError(status int, errField string, body []byte) error {
	msg := errField
	if msg == "" {
		msg = string(body)
	}
	return fmt.Errorf("gateway status %d: %s: %w", status, msg, domain.ErrGateway)
}
