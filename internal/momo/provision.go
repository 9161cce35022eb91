package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// APIUser describes a provisioned sandbox API user.
type APIUser struct {
	ProviderCallbackHost string `json:"providerCallbackHost"`
	TargetEnvironment    string `json:"targetEnvironment"`
}

// CreateAPIUser provisions a new API user and returns its ID. The ID doubles
// as the reference used on the creation call, mirroring the sandbox flow.
func (c *Client) CreateAPIUser(ctx context.Context) (uuid.UUID, error) {
	userID := uuid.New()
	payload, err := json.Marshal(map[string]string{"providerCallbackHost": c.CallbackHost})
	if err != nil {
		return uuid.Nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/v1_0/apiuser"), bytes.NewReader(payload))
	if err != nil {
		return uuid.Nil, err
	}
	req.Header.Set(headerSubscriptionKey, c.SubscriptionKey)
	req.Header.Set(headerReferenceID, userID.String())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, req)
	if err != nil {
		return uuid.Nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return uuid.Nil, c.apiError(resp)
	}
	return userID, nil
}

// GetAPIUser fetches the provisioning record for an API user.
func (c *Client) GetAPIUser(ctx context.Context, userID uuid.UUID) (APIUser, error) {
	var out APIUser
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/v1_0/apiuser/"+userID.String()), nil)
	if err != nil {
		return out, err
	}
	req.Header.Set(headerSubscriptionKey, c.SubscriptionKey)

	resp, err := c.do(ctx, req)
	if err != nil {
		return out, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, c.apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return APIUser{}, fmt.Errorf("momo: decode apiuser: %w", err)
	}
	return out, nil
}

// CreateAPIKey mints the API key for a provisioned user. The provider returns
// the key exactly once; it must be stored by the operator.
func (c *Client) CreateAPIKey(ctx context.Context, userID uuid.UUID) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/v1_0/apiuser/"+userID.String()+"/apikey"), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set(headerSubscriptionKey, c.SubscriptionKey)

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", c.apiError(resp)
	}
	var body struct {
		APIKey string `json:"apiKey"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("momo: decode apikey: %w", err)
	}
	return body.APIKey, nil
}
