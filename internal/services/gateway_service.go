package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var ErrSessionNotFound = errors.New("checkout session not found")

// CheckoutSession is the gateway's authoritative view of one checkout.
// Price arrives in decimal major units; callers convert to cents exactly
// once via centsFromDecimal.
type CheckoutSession struct {
	ID                string  `json:"id"`
	Status            string  `json:"status"`         // open | complete | expired
	PaymentStatus     string  `json:"payment_status"` // paid | unpaid
	Price             float64 `json:"price"`
	Currency          string  `json:"currency"`
	ClientReferenceID string  `json:"client_reference_id"`
	CustomerID        string  `json:"customer_id"`
	Plan              string  `json:"plan,omitempty"`
	URL               string  `json:"url,omitempty"`
}

type CreateCheckoutSessionInput struct {
	ClientReferenceID string  `json:"client_reference_id"`
	Price             float64 `json:"price"`
	Currency          string  `json:"currency"`
	Plan              string  `json:"plan,omitempty"`
	SuccessURL        string  `json:"success_url"`
	CancelURL         string  `json:"cancel_url"`
}

type CheckoutGateway interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	CreateCheckoutSession(ctx context.Context, input CreateCheckoutSessionInput) (*CheckoutSession, error)
}

type HTTPCheckoutGateway struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewHTTPCheckoutGateway(baseURL, secretKey string) *HTTPCheckoutGateway {
	return &HTTPCheckoutGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: http.DefaultClient,
	}
}

func (g *HTTPCheckoutGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	sessionURL := fmt.Sprintf("%s/v1/checkout/sessions/%s", g.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sessionURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrSessionNotFound
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("fetch session: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("session id missing from response")
	}

	return &session, nil
}

func (g *HTTPCheckoutGateway) CreateCheckoutSession(ctx context.Context, input CreateCheckoutSessionInput) (*CheckoutSession, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal session payload: %w", err)
	}

	createURL := fmt.Sprintf("%s/v1/checkout/sessions", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, createURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("create session: status %d: %s", resp.StatusCode, strings.TrimSpace(string(responseBody)))
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode create response: %w", err)
	}
	if session.URL == "" {
		return nil, fmt.Errorf("redirect url missing from response")
	}

	return &session, nil
}
