// Package aggregator is the HTTP client for the brokerage aggregation
// provider. It registers per-user identities, lists linked accounts and
// authorizations, and fetches positions and activity history.
package aggregator

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// CodeIdentityExists is the provider error code for "a user with this id
// already exists". Seeing it when no local identity row exists means local
// and provider state have diverged.
const CodeIdentityExists = 1010

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"detail"`
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aggregator API error (status %d, code %d): %s", e.StatusCode, e.Code, e.Message)
}

// Identity is the provider-side registration for one internal user.
type Identity struct {
	ProviderUserID string `json:"userId"`
	ProviderSecret string `json:"userSecret"`
}

type Client struct {
	httpClient     *http.Client
	baseURL        string
	clientID       string
	consumerSecret string
}

var _ ClientInterface = (*Client)(nil)

func NewClient(baseURL, clientID, consumerSecret string, timeout time.Duration) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        baseURL,
		clientID:       clientID,
		consumerSecret: consumerSecret,
	}
}

// RegisterIdentity creates a provider-side user for the internal user
// reference. The provider responds with CodeIdentityExists if the reference
// is already registered.
func (c *Client) RegisterIdentity(ctx context.Context, internalUserRef string) (*Identity, error) {
	body := map[string]string{"userId": internalUserRef}

	var identity Identity
	if err := c.do(ctx, http.MethodPost, "/registerUser", nil, body, &identity); err != nil {
		return nil, err
	}

	if identity.ProviderUserID == "" || identity.ProviderSecret == "" {
		return nil, fmt.Errorf("provider returned incomplete identity for registration")
	}

	return &identity, nil
}

// DeleteIdentity removes the provider-side user. Provider deletion is
// asynchronous; a 2xx only acknowledges the request.
func (c *Client) DeleteIdentity(ctx context.Context, providerUserID string) error {
	params := url.Values{"userId": {providerUserID}}
	return c.do(ctx, http.MethodDelete, "/deleteUser", params, nil, nil)
}

// ListAccounts returns all brokerage accounts linked under the identity.
func (c *Client) ListAccounts(ctx context.Context, providerUserID, providerSecret string) ([]Account, error) {
	params := url.Values{
		"userId":     {providerUserID},
		"userSecret": {providerSecret},
	}

	var accounts []Account
	if err := c.do(ctx, http.MethodGet, "/accounts", params, nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListAuthorizations returns the brokerage authorizations (one per linked
// institution connection) under the identity.
func (c *Client) ListAuthorizations(ctx context.Context, providerUserID, providerSecret string) ([]Authorization, error) {
	params := url.Values{
		"userId":     {providerUserID},
		"userSecret": {providerSecret},
	}

	var auths []Authorization
	if err := c.do(ctx, http.MethodGet, "/authorizations", params, nil, &auths); err != nil {
		return nil, err
	}
	return auths, nil
}

// GetPositions returns the holdings of one account.
func (c *Client) GetPositions(ctx context.Context, providerUserID, providerSecret, accountID string) ([]Position, error) {
	params := url.Values{
		"userId":     {providerUserID},
		"userSecret": {providerSecret},
	}

	var positions []Position
	path := "/accounts/" + url.PathEscape(accountID) + "/positions"
	if err := c.do(ctx, http.MethodGet, path, params, nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// ListActivities returns trade and transfer history across all accounts.
func (c *Client) ListActivities(ctx context.Context, providerUserID, providerSecret string) ([]Activity, error) {
	params := url.Values{
		"userId":     {providerUserID},
		"userSecret": {providerSecret},
	}

	var activities []Activity
	if err := c.do(ctx, http.MethodGet, "/activities", params, nil, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("clientId", c.clientID)
	params.Set("timestamp", strconv.FormatInt(time.Now().Unix(), 10))

	var reqBody io.Reader
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(bodyBytes)
	}

	fullURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Signature", c.sign(path, params, bodyBytes))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("aggregator request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// sign computes the request signature over path, query and body, as the
// provider requires for every call.
func (c *Client) sign(path string, params url.Values, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.consumerSecret))
	mac.Write([]byte(path))
	mac.Write([]byte("?"))
	mac.Write([]byte(params.Encode()))
	if len(body) > 0 {
		mac.Write(body)
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func parseAPIError(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	// Provider error bodies carry {"detail": "...", "code": "1010"} where
	// code may be a string or a number.
	var envelope struct {
		Detail string          `json:"detail"`
		Code   json.RawMessage `json:"code"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Message = envelope.Detail
		apiErr.Code = parseErrorCode(envelope.Code)
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil {
				apiErr.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	}

	return apiErr
}

func parseErrorCode(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}
