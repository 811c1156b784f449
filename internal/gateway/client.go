// Package gateway implements the card processor client used for credit card
// payments. The service wraps any error in ErrPaymentProcessor; this client
// only speaks the processor's HTTP API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ledgerline/ledgerline/internal/payments"
)

// Client calls the external card processor over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a new client. The overall deadline still comes from
// the caller's context; the HTTP timeout is a backstop.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type chargeBody struct {
	Amount    string `json:"amount"`
	CardToken string `json:"card_token"`
	Reference string `json:"reference"`
}

type chargeResponse struct {
	ExternalID string    `json:"external_id"`
	SettledAt  time.Time `json:"settled_at"`
}

// Charge captures the amount against the card token.
func (c *Client) Charge(ctx context.Context, in payments.ChargeRequest) (payments.ChargeResult, error) {
	payload, err := json.Marshal(chargeBody{
		Amount:    in.Amount.StringFixed(2),
		CardToken: in.CardToken,
		Reference: in.Reference,
	})
	if err != nil {
		return payments.ChargeResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/charges", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return payments.ChargeResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return payments.ChargeResult{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return payments.ChargeResult{}, fmt.Errorf("processor returned status %d", resp.StatusCode)
	}

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return payments.ChargeResult{}, err
	}
	return payments.ChargeResult{ExternalID: out.ExternalID, SettledAt: out.SettledAt}, nil
}
