// Package provider talks to the upstream gateway that fronts the top-up providers
// (Smile.one, Yokcash, Hopestore): catalog listing, player validation and account
// balances. It also holds the per-provider profiles.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"topup_store/internal/catalog"
	"topup_store/internal/models"
	"topup_store/internal/pkg/logger"
	"topup_store/internal/workflow"

	"go.uber.org/zap"
)

var (
	// ErrNotJSON indicates a gateway response without a JSON body.
	ErrNotJSON = errors.New("provider: response is not JSON")
	// ErrMissingGameID indicates a catalog request for a provider that needs a game id.
	ErrMissingGameID = errors.New("provider: api game id is required")
	// ErrUnknownProvider indicates a provider without a profile.
	ErrUnknownProvider = errors.New("provider: unknown provider")
)

// NetworkError is returned when the gateway cannot be reached, answers with a
// non-2xx status, or does not answer with JSON.
type NetworkError struct {
	Method string
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider: %s %s: status %d", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("provider: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Gateway is the set of upstream calls the storefront depends on.
type Gateway interface {
	FetchCatalog(ctx context.Context, provider models.Provider, apiGameID string) (*catalog.Catalog, error)
	ValidateUser(ctx context.Context, req workflow.ValidateRequest) (workflow.ValidateResult, error)
	Balances(ctx context.Context) ([]models.ProviderBalance, error)
}

// Session carries the gateway address and the bearer token of one authenticated
// service session. It is built once and passed to the client.
type Session struct {
	BaseURL string
	Token   string
}

// NewSession returns a gateway session.
func NewSession(baseURL, token string) Session {
	return Session{BaseURL: strings.TrimRight(baseURL, "/"), Token: token}
}

// Client is the HTTP implementation of Gateway. Every call is a single attempt.
type Client struct {
	session    Session
	profiles   Profiles
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a gateway client with the given per-call timeout.
func NewClient(session Session, profiles Profiles, timeout time.Duration, l *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return NewClientWithHTTPClient(session, profiles, &http.Client{Timeout: timeout}, l)
}

// NewClientWithHTTPClient creates a gateway client around a custom HTTP client.
func NewClientWithHTTPClient(session Session, profiles Profiles, httpClient *http.Client, l *logger.Logger) *Client {
	return &Client{
		session:    session,
		profiles:   profiles,
		httpClient: httpClient,
		log:        l.Component("provider"),
	}
}

// doRequest performs one JSON request and returns the status and body. A transport
// failure or a non-JSON body is reported as a NetworkError; the status is left to
// the caller.
func (c *Client) doRequest(ctx context.Context, method, path string, payload interface{}) (int, []byte, error) {
	endpoint := c.session.BaseURL + path

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("provider: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("provider: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Sugar().Errorf("Gateway request %s %s failed: %s", method, path, err)
		return 0, nil, &NetworkError{Method: method, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &NetworkError{Method: method, URL: endpoint, Status: resp.StatusCode, Err: err}
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		c.log.Sugar().Errorf("Gateway request %s %s returned %d with non-JSON body", method, path, resp.StatusCode)
		return resp.StatusCode, respBody, &NetworkError{Method: method, URL: endpoint, Err: ErrNotJSON}
	}

	return resp.StatusCode, respBody, nil
}

func statusError(method, endpoint string, status int) error {
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		return nil
	}
	return &NetworkError{Method: method, URL: endpoint, Status: status}
}

// FetchCatalog lists a provider's products and normalizes them. On failure the
// returned catalog is empty, never nil.
func (c *Client) FetchCatalog(ctx context.Context, provider models.Provider, apiGameID string) (*catalog.Catalog, error) {
	empty := &catalog.Catalog{Provider: provider, Products: []models.NormalizedProduct{}, Servers: []models.ProviderServer{}}

	profile, ok := c.profiles[provider]
	if !ok {
		return empty, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	var path string
	switch profile.Catalog {
	case CatalogPacks:
		apiGameID = strings.TrimSpace(apiGameID)
		if apiGameID == "" {
			return empty, ErrMissingGameID
		}
		path = "/games/api-packs/" + url.PathEscape(apiGameID)
	default:
		path = "/games/api-products/" + url.PathEscape(string(provider))
	}

	status, body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return empty, err
	}
	if err := statusError(http.MethodGet, c.session.BaseURL+path, status); err != nil {
		c.log.Sugar().Errorf("Catalog fetch for %s returned status %d", provider, status)
		return empty, err
	}

	result, err := catalog.Normalize(provider, body)
	if err != nil {
		c.log.Sugar().Errorf("Catalog for %s could not be normalized: %s", provider, err)
		return result, err
	}
	if result.Dropped > 0 {
		c.log.Warn("dropped malformed catalog entries",
			zap.String("provider", string(provider)),
			zap.Int("dropped", result.Dropped),
			zap.Int("kept", len(result.Products)))
	}
	return result, nil
}

type validateUserRequest struct {
	GameID   string          `json:"gameId"`
	Provider models.Provider `json:"provider"`
	UserID   string          `json:"userId"`
	ServerID *string         `json:"serverId"`
}

type validateUserResponse struct {
	Success bool            `json:"success"`
	Valid   bool            `json:"valid"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ValidateUser asks the provider whether a player ID exists. A rejection, whether
// answered with 2xx or 4xx, is a result with Valid=false, not an error.
func (c *Client) ValidateUser(ctx context.Context, req workflow.ValidateRequest) (workflow.ValidateResult, error) {
	const path = "/games/validate-user"

	payload := validateUserRequest{GameID: req.GameID, Provider: req.Provider, UserID: req.UserID}
	if req.ServerID != "" {
		serverID := req.ServerID
		payload.ServerID = &serverID
	}

	status, body, err := c.doRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return workflow.ValidateResult{}, err
	}

	var resp validateUserResponse
	decodeErr := json.Unmarshal(body, &resp)

	if status >= http.StatusBadRequest && status < http.StatusInternalServerError && decodeErr == nil {
		return workflow.ValidateResult{Valid: false, Message: resp.Message}, nil
	}
	if err := statusError(http.MethodPost, c.session.BaseURL+path, status); err != nil {
		return workflow.ValidateResult{}, err
	}
	if decodeErr != nil {
		return workflow.ValidateResult{}, &NetworkError{Method: http.MethodPost, URL: c.session.BaseURL + path, Status: status, Err: decodeErr}
	}

	result := workflow.ValidateResult{Valid: resp.Valid, Message: resp.Message}
	if resp.Valid && len(resp.Data) > 0 && string(resp.Data) != "null" {
		var player struct {
			Username string `json:"username"`
		}
		if err := json.Unmarshal(resp.Data, &player); err == nil {
			result.Player.Username = player.Username
		}
		result.Player.Data = resp.Data
	}
	return result, nil
}

type balancesResponse struct {
	Success  bool                     `json:"success"`
	Message  string                   `json:"message"`
	Balances []models.ProviderBalance `json:"balances"`
}

// Balances returns the account balance held at each provider.
func (c *Client) Balances(ctx context.Context) ([]models.ProviderBalance, error) {
	const path = "/balances"
	endpoint := c.session.BaseURL + path

	status, body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if err := statusError(http.MethodGet, endpoint, status); err != nil {
		return nil, err
	}

	var resp balancesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &NetworkError{Method: http.MethodGet, URL: endpoint, Status: status, Err: err}
	}
	if !resp.Success {
		return nil, fmt.Errorf("provider: balances unavailable: %s", resp.Message)
	}
	if resp.Balances == nil {
		resp.Balances = []models.ProviderBalance{}
	}
	return resp.Balances, nil
}
