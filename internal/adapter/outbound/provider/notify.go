package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/paylink/reconciler/internal/model"
)

// callbackPayload is the webhook body simulated rails deliver.
type callbackPayload struct {
	ExternalID             string `json:"externalId"`
	Amount                 string `json:"amount"`
	Currency               string `json:"currency"`
	Status                 string `json:"status"`
	FinancialTransactionID string `json:"financialTransactionId,omitempty"`
	PayeeNote              string `json:"payeeNote,omitempty"`
}

// callbackNotifier posts simulated provider webhooks to our own endpoint.
type callbackNotifier struct {
	client  *http.Client
	baseURL string
}

// notify delivers event as the webhook for leg at <baseURL>/<leg>.
func (n *callbackNotifier) notify(ctx context.Context, event *model.ProviderStatusEvent, leg model.Leg) error {
	if n.baseURL == "" {
		return fmt.Errorf("no callback url configured")
	}

	body, err := json.Marshal(callbackPayload{
		ExternalID:             event.CorrelationID,
		Amount:                 event.Amount.String(),
		Currency:               event.Currency,
		Status:                 string(event.Status),
		FinancialTransactionID: "sandbox-" + event.CorrelationID,
		PayeeNote:              "sandbox",
	})
	if err != nil {
		return fmt.Errorf("encode callback: %w", err)
	}

	url := strings.TrimRight(n.baseURL, "/") + "/" + strings.ToLower(string(leg))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("callback %s returned %d", url, resp.StatusCode)
	}
	return nil
}
