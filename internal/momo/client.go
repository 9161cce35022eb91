// Package momo implements a client for the MTN Mobile Money collection API:
// credential provisioning, bearer token exchange, request-to-pay submission
// and status retrieval.
package momo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/momo-gateway/internal/resilience"
)

const (
	headerSubscriptionKey   = "Ocp-Apim-Subscription-Key"
	headerTargetEnvironment = "X-Target-Environment"
	headerReferenceID       = "X-Reference-Id"

	// PartyIDTypeMSISDN identifies payers by subscriber phone number.
	PartyIDTypeMSISDN = "MSISDN"
)

// ErrUnauthorized indicates the provider rejected the supplied credentials or token.
var ErrUnauthorized = errors.New("momo: unauthorized")

// ErrMalformed indicates a 2xx provider response whose body could not be decoded.
var ErrMalformed = errors.New("momo: malformed provider response")

// APIError describes a non-2xx provider response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("momo: provider returned %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Is maps 401 responses onto ErrUnauthorized so callers can errors.Is against it.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Client talks to a single collection-product deployment of the provider API.
type Client struct {
	BaseURL           string
	SubscriptionKey   string
	TargetEnvironment string
	CallbackHost      string
	HTTP              *resilience.HTTPClient
}

// Party identifies one side of a payment at the provider.
type Party struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

// RequestToPay is the body of a request-to-pay submission. Amount is a
// decimal string, as required by the provider.
type RequestToPay struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExternalID   string `json:"externalId"`
	Payer        Party  `json:"payer"`
	PayerMessage string `json:"payerMessage"`
	PayeeNote    string `json:"payeeNote"`
}

// RequestToPayStatus is the provider's view of a submitted request-to-pay.
type RequestToPayStatus struct {
	Amount                 string          `json:"amount"`
	Currency               string          `json:"currency"`
	ExternalID             string          `json:"externalId"`
	Payer                  Party           `json:"payer"`
	Status                 string          `json:"status"`
	FinancialTransactionID string          `json:"financialTransactionId,omitempty"`
	Reason                 json.RawMessage `json:"reason,omitempty"`
}

// Balance reports the available balance on the collection account.
type Balance struct {
	AvailableBalance string `json:"availableBalance"`
	Currency         string `json:"currency"`
}

// Provider-defined terminal status tokens.
const (
	StatusPending    = "PENDING"
	StatusSuccessful = "SUCCESSFUL"
	StatusFailed     = "FAILED"
)

// SubmitRequestToPay issues a request-to-pay under the caller-supplied
// reference ID. The provider deduplicates on the X-Reference-Id header, so
// retrying the same reference after a transport failure is safe. A nil error
// means the provider explicitly accepted the request; the payment outcome is
// resolved separately via RequestToPayStatus.
func (c *Client) SubmitRequestToPay(ctx context.Context, token string, referenceID uuid.UUID, body RequestToPay) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("momo: encode requesttopay: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/collection/v1_0/requesttopay"), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set(headerReferenceID, referenceID.String())
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp)
	}
	return nil
}

// RequestToPayStatus fetches the current status for a reference ID.
func (c *Client) RequestToPayStatus(ctx context.Context, token string, referenceID uuid.UUID) (RequestToPayStatus, error) {
	var out RequestToPayStatus
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/collection/v1_0/requesttopay/"+referenceID.String()), nil)
	if err != nil {
		return out, err
	}
	c.setHeaders(req)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.do(ctx, req)
	if err != nil {
		return out, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, c.apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return RequestToPayStatus{}, fmt.Errorf("%w: decode status: %v", ErrMalformed, err)
	}
	return out, nil
}

// AccountBalance fetches the collection account balance.
func (c *Client) AccountBalance(ctx context.Context, token string) (Balance, error) {
	var out Balance
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/collection/v1_0/account/balance"), nil)
	if err != nil {
		return out, err
	}
	c.setHeaders(req)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.do(ctx, req)
	if err != nil {
		return out, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, c.apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Balance{}, fmt.Errorf("%w: decode balance: %v", ErrMalformed, err)
	}
	return out, nil
}

// FetchToken exchanges the provisioned credentials for a bearer token using
// basic auth against the collection token endpoint.
func (c *Client) FetchToken(ctx context.Context, creds Credentials) (AccessToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/collection/token/"), nil)
	if err != nil {
		return AccessToken{}, err
	}
	req.Header.Set(headerSubscriptionKey, c.SubscriptionKey)
	basic := base64.StdEncoding.EncodeToString([]byte(creds.UserID + ":" + creds.APIKey))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := c.do(ctx, req)
	if err != nil {
		return AccessToken{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return AccessToken{}, c.apiError(resp)
	}
	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return AccessToken{}, fmt.Errorf("momo: decode token: %w", err)
	}
	if strings.TrimSpace(body.AccessToken) == "" {
		return AccessToken{}, errors.New("momo: token endpoint returned empty access_token")
	}
	return newAccessToken(body.AccessToken, body.ExpiresIn), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set(headerSubscriptionKey, c.SubscriptionKey)
	req.Header.Set(headerTargetEnvironment, c.TargetEnvironment)
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.HTTP != nil {
		return c.HTTP.Do(ctx, req)
	}
	return http.DefaultClient.Do(req)
}

func (c *Client) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
}
