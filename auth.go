package aiola

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Authentication endpoints, relative to the auth base URL.
const (
	tokenPath   = "/voip-auth/apiKey2Token"
	sessionPath = "/voip-auth/session"
)

// GrantTokenResponse is the result of exchanging an API key for a session.
type GrantTokenResponse struct {
	AccessToken string `json:"accessToken"`
	SessionID   string `json:"sessionId"`
}

// SessionCloseResponse is returned when a session is closed.
type SessionCloseResponse struct {
	Status    string `json:"status"`
	DeletedAt string `json:"deletedAt"`
}

// AuthService resolves access tokens and manages the API-key session
// exchange. The cached session is guarded by a mutex, but callers that need
// independent sessions should use separate clients.
type AuthService struct {
	options *ClientOptions
	req     requester
	now     func() time.Time

	mu          sync.Mutex
	accessToken string
	sessionID   string
}

func newAuthService(options *ClientOptions, httpClient *http.Client, logger zerolog.Logger, m *metrics) *AuthService {
	return &AuthService{
		options: options,
		req: requester{
			httpClient: httpClient,
			logger:     logger.With().Str("component", "auth").Logger(),
			metrics:    m,
		},
		now: time.Now,
	}
}

// AccessToken returns a currently valid bearer token.
//
// A provided access token is returned unchanged unless it is expired or
// unparsable; it is never refreshed. Otherwise the API key is exchanged
// for a session token, reusing a cached one while it is still valid.
func (a *AuthService) AccessToken(ctx context.Context, accessToken, apiKey, workflowID string) (string, error) {
	if accessToken != "" {
		expired, err := a.isExpired(accessToken)
		if err != nil {
			return "", err
		}
		if expired {
			return "", &AuthenticationError{Message: "Provided access token is expired"}
		}
		return accessToken, nil
	}

	if apiKey == "" {
		return "", &AuthenticationError{Message: "No valid credentials provided"}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" {
		if expired, err := a.isExpired(a.accessToken); err == nil && !expired {
			return a.accessToken, nil
		}
	}

	grant, err := a.GrantToken(ctx, apiKey, a.options.AuthBaseURL, workflowID)
	if err != nil {
		return "", err
	}
	a.accessToken = grant.AccessToken
	a.sessionID = grant.SessionID
	return grant.AccessToken, nil
}

// token resolves a token from the client credentials.
func (a *AuthService) token(ctx context.Context) (string, error) {
	return a.AccessToken(ctx, a.options.AccessToken, a.options.APIKey, a.options.WorkflowID)
}

// GrantToken exchanges apiKey for a temporary token and then for a
// session-bound access token. No request is sent when apiKey is empty.
func (a *AuthService) GrantToken(ctx context.Context, apiKey, authBaseURL, workflowID string) (*GrantTokenResponse, error) {
	if apiKey == "" {
		return nil, &AuthenticationError{Message: "API key is required"}
	}
	authBaseURL = strings.TrimSuffix(authBaseURL, "/")

	var tokenResp struct {
		Context struct {
			Token string `json:"token"`
		} `json:"context"`
	}
	if err := a.postJSON(ctx, authBaseURL+tokenPath, "token", map[string]string{"apiKey": apiKey}, &tokenResp); err != nil {
		a.req.metrics.tokenGrant("error")
		return nil, err
	}
	if tokenResp.Context.Token == "" {
		a.req.metrics.tokenGrant("error")
		return nil, &AuthenticationError{Message: "Invalid token response: missing temporary token"}
	}
	a.req.logger.Debug().Msg("temporary token issued")

	var sessionResp struct {
		JWT       string `json:"jwt"`
		SessionID string `json:"sessionId"`
	}
	body := map[string]string{"token": tokenResp.Context.Token, "workflow_id": workflowID}
	if err := a.postJSON(ctx, authBaseURL+sessionPath, "session", body, &sessionResp); err != nil {
		a.req.metrics.tokenGrant("error")
		return nil, err
	}
	if sessionResp.JWT == "" {
		a.req.metrics.tokenGrant("error")
		return nil, &AuthenticationError{Message: "Invalid session response: missing access token"}
	}

	a.req.metrics.tokenGrant("success")
	a.req.logger.Debug().Str("session_id", sessionResp.SessionID).Msg("session created")
	return &GrantTokenResponse{AccessToken: sessionResp.JWT, SessionID: sessionResp.SessionID}, nil
}

func (a *AuthService) postJSON(ctx context.Context, url, endpoint string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Message: "failed to encode " + endpoint + " request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Error{Message: "failed to build " + endpoint + " request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.req.do(req, endpoint)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &AuthenticationError{Message: endpoint + " request failed", Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &AuthenticationError{Message: "invalid " + endpoint + " response", Cause: err}
	}
	return nil
}

// CloseSession ends the server-side session bound to accessToken and clears
// the cached session.
func (a *AuthService) CloseSession(ctx context.Context, accessToken string) (*SessionCloseResponse, error) {
	if accessToken == "" {
		return nil, &AuthenticationError{Message: "Access token is required"}
	}

	url := strings.TrimSuffix(a.options.AuthBaseURL, "/") + sessionPath
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return nil, &Error{Message: "failed to build close session request", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.req.do(req, "session")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, handleAPIError(resp)
	}

	var result SessionCloseResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &Error{Message: "invalid close session response", Cause: err}
	}

	a.ClearSession()
	a.req.logger.Info().Str("status", result.Status).Msg("session closed")
	return &result, nil
}

// ClearSession drops the cached access token and session id.
func (a *AuthService) ClearSession() {
	a.mu.Lock()
	a.accessToken = ""
	a.sessionID = ""
	a.mu.Unlock()
}

// SessionID returns the cached session id, if any.
func (a *AuthService) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

func (a *AuthService) isExpired(token string) (bool, error) {
	claims, err := parseJWTPayload(token)
	if err != nil {
		return false, err
	}
	if claims.Exp == nil {
		return false, nil
	}
	now := float64(a.now().UnixNano()) / float64(time.Second)
	return *claims.Exp <= now, nil
}

type jwtClaims struct {
	Exp *float64 `json:"exp"`
}

// parseJWTPayload decodes the claims segment of a JWT. The signature is not
// verified; only the expiry is read.
func parseJWTPayload(token string) (*jwtClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, &AuthenticationError{Message: "Failed to parse JWT payload"}
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, &AuthenticationError{Message: "Failed to parse JWT payload", Cause: err}
	}

	var claims jwtClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, &AuthenticationError{Message: "Failed to parse JWT payload", Cause: err}
	}
	return &claims, nil
}

// GrantToken exchanges apiKey for an access token without building a full
// client. Only the auth base URL, workflow, HTTP client, logger and metrics
// options are consulted.
func GrantToken(ctx context.Context, apiKey string, opts ...ClientOption) (*GrantTokenResponse, error) {
	c := standaloneClient(opts)
	return c.auth.GrantToken(ctx, apiKey, c.options.AuthBaseURL, c.options.WorkflowID)
}

// CloseSession closes the session bound to accessToken without building a
// full client.
func CloseSession(ctx context.Context, accessToken string, opts ...ClientOption) (*SessionCloseResponse, error) {
	c := standaloneClient(opts)
	return c.auth.CloseSession(ctx, accessToken)
}

func standaloneClient(opts []ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.options.applyDefaults()
	c.applyTimeout()
	c.metrics = newMetrics(c.registerer)
	c.auth = newAuthService(&c.options, c.httpClient, c.logger, c.metrics)
	return c
}
