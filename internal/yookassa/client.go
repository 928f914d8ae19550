// Package yookassa is a minimal client for the YooKassa server-side REST
// API: creating a payment and polling its status.
package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// DefaultBaseURL is the public YooKassa API endpoint.
const DefaultBaseURL = "https://api.yookassa.ru/v3"

// descriptionLimit is the YooKassa cap on the description field.
const descriptionLimit = 128

// Client calls the YooKassa payments API with shop credentials.
type Client struct {
	httpClient *http.Client
	baseURL    string
	shopID     string
	secretKey  string
	returnURL  string
}

// NewClient creates a YooKassa client. returnURL is where the payer lands
// after finishing the checkout page.
func NewClient(httpClient *http.Client, baseURL, shopID, secretKey, returnURL string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		shopID:     shopID,
		secretKey:  secretKey,
		returnURL:  returnURL,
	}
}

// Amount is a YooKassa money value.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Confirmation carries the redirect checkout link.
type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// PaymentMethod identifies how the payer paid (bank_card, sbp, ...).
type PaymentMethod struct {
	Type string `json:"type"`
}

// Payment is the provider's payment object, reduced to the fields the bot
// uses.
type Payment struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Paid          bool           `json:"paid"`
	Amount        Amount         `json:"amount"`
	Confirmation  *Confirmation  `json:"confirmation,omitempty"`
	PaymentMethod *PaymentMethod `json:"payment_method,omitempty"`
}

// ConfirmationURL returns the checkout link, or "" when the provider did not
// send one.
func (p Payment) ConfirmationURL() string {
	if p.Confirmation == nil {
		return ""
	}
	return p.Confirmation.ConfirmationURL
}

// MethodType returns the payment method type, or "" when not yet known.
func (p Payment) MethodType() string {
	if p.PaymentMethod == nil {
		return ""
	}
	return p.PaymentMethod.Type
}

type createRequest struct {
	Amount       Amount         `json:"amount"`
	Capture      bool           `json:"capture"`
	Confirmation Confirmation   `json:"confirmation"`
	Description  string         `json:"description"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// CreatePayment creates a redirect payment for the given ruble amount. Each
// call sends a fresh Idempotence-Key, so retries at the HTTP layer cannot
// duplicate a charge.
func (c *Client) CreatePayment(ctx context.Context, amountRub int, description string, metadata map[string]any) (Payment, error) {
	if err := c.checkCredentials(); err != nil {
		return Payment{}, err
	}

	body, err := json.Marshal(createRequest{
		Amount:       Amount{Value: fmt.Sprintf("%d.00", amountRub), Currency: "RUB"},
		Capture:      true,
		Confirmation: Confirmation{Type: "redirect", ReturnURL: c.returnURL},
		Description:  truncate(description, descriptionLimit),
		Metadata:     metadata,
	})
	if err != nil {
		return Payment{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return Payment{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", uuid.New().String())
	req.SetBasicAuth(c.shopID, c.secretKey)

	return c.do(req)
}

// GetPayment fetches the payment state by the provider's payment ID.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	if err := c.checkCredentials(); err != nil {
		return Payment{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+paymentID, nil)
	if err != nil {
		return Payment{}, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.shopID, c.secretKey)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (Payment, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Payment{}, fmt.Errorf("http call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Payment{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return Payment{}, fmt.Errorf("yookassa status %d: %s", resp.StatusCode, string(respBody))
	}

	var payment Payment
	if err := json.Unmarshal(respBody, &payment); err != nil {
		return Payment{}, fmt.Errorf("decode response: %w", err)
	}
	if payment.ID == "" {
		return Payment{}, fmt.Errorf("yookassa response has no payment id")
	}
	return payment, nil
}

func (c *Client) checkCredentials() error {
	if c.shopID == "" || c.secretKey == "" {
		return fmt.Errorf("yookassa shop credentials are not configured")
	}
	return nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
