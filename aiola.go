package aiola

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Service defaults.
const (
	DefaultBaseURL     = "https://apis.aiola.ai"
	DefaultAuthBaseURL = "https://auth.aiola.ai"
	DefaultWorkflowID  = "c47c3c7a-a0a2-4b6c-9d9c-6a2d1f0a3b7e"
	DefaultTimeout     = 30 * time.Second
)

// ClientOptions is the shared, read-only configuration of a Client.
type ClientOptions struct {
	BaseURL     string
	AuthBaseURL string
	APIKey      string
	AccessToken string
	WorkflowID  string
	Timeout     time.Duration
}

func (o *ClientOptions) applyDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.AuthBaseURL == "" {
		o.AuthBaseURL = DefaultAuthBaseURL
	}
	if o.WorkflowID == "" {
		o.WorkflowID = DefaultWorkflowID
	}
}

func (o *ClientOptions) validate() error {
	if o.APIKey == "" && o.AccessToken == "" {
		return &ValidationError{Message: "Either api_key or access_token must be provided"}
	}
	for name, raw := range map[string]string{"base_url": o.BaseURL, "auth_base_url": o.AuthBaseURL} {
		if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
			return &ValidationError{Param: name, Message: "must be an http(s) URL"}
		}
	}
	if strings.ContainsAny(o.WorkflowID, " \t\r\n") {
		return &ValidationError{Param: "workflow_id", Message: "must not contain whitespace"}
	}
	if o.Timeout < 0 {
		return &ValidationError{Param: "timeout", Message: "must not be negative"}
	}
	return nil
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key exchanged for access tokens.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.options.APIKey = apiKey
	}
}

// WithAccessToken sets a pre-issued access token. It is used as long as it
// has not expired and is never refreshed by the SDK.
func WithAccessToken(token string) ClientOption {
	return func(c *Client) {
		c.options.AccessToken = token
	}
}

// WithBaseURL sets the speech API base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.options.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithAuthBaseURL sets the authentication service base URL.
func WithAuthBaseURL(authBaseURL string) ClientOption {
	return func(c *Client) {
		c.options.AuthBaseURL = strings.TrimSuffix(authBaseURL, "/")
	}
}

// WithWorkflowID sets the client-level default workflow.
func WithWorkflowID(workflowID string) ClientOption {
	return func(c *Client) {
		c.options.WorkflowID = workflowID
	}
}

// WithTimeout sets the HTTP request and streaming handshake timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.options.Timeout = timeout
		c.timeoutSet = true
	}
}

// WithHTTPClient sets a custom HTTP client. The client is never modified;
// combined with WithTimeout, a copy carrying the timeout is used instead.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient == nil {
			return
		}
		c.httpClient = httpClient
		c.customHTTP = true
	}
}

// WithLogger sets the structured logger. The default logger discards everything.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics registers SDK metrics on reg.
func WithMetrics(reg prometheus.Registerer) ClientOption {
	return func(c *Client) {
		c.registerer = reg
	}
}

// WithTransport replaces the streaming transport used by STT streams.
// The factory is called once per stream.
func WithTransport(factory TransportFactory) ClientOption {
	return func(c *Client) {
		c.newTransport = factory
	}
}

// Client is the aiOla API client.
type Client struct {
	options      ClientOptions
	httpClient   *http.Client
	logger       zerolog.Logger
	registerer   prometheus.Registerer
	metrics      *metrics
	newTransport TransportFactory
	timeoutSet   bool
	customHTTP   bool

	mu   sync.Mutex
	auth *AuthService
	stt  *STTService
	tts  *TTSService
}

// NewClient creates a new aiOla client. Either an API key or an access
// token is required.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		options: ClientOptions{
			Timeout: DefaultTimeout,
		},
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.options.applyDefaults()
	if err := c.options.validate(); err != nil {
		return nil, err
	}
	c.applyTimeout()

	c.metrics = newMetrics(c.registerer)
	if c.newTransport == nil {
		c.newTransport = defaultTransport(c.options.Timeout, c.logger)
	}

	return c, nil
}

// applyTimeout puts an explicit timeout on the HTTP client, copying a
// caller-supplied client first.
func (c *Client) applyTimeout() {
	if !c.timeoutSet {
		return
	}
	if c.customHTTP {
		hc := *c.httpClient
		c.httpClient = &hc
	}
	c.httpClient.Timeout = c.options.Timeout
}

// Options returns a copy of the client configuration.
func (c *Client) Options() ClientOptions {
	return c.options
}

// Auth returns the credential resolver, creating it on first use.
func (c *Client) Auth() *AuthService {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authLocked()
}

func (c *Client) authLocked() *AuthService {
	if c.auth == nil {
		c.auth = newAuthService(&c.options, c.httpClient, c.logger, c.metrics)
	}
	return c.auth
}

// STT returns the speech-to-text service, creating it on first use.
func (c *Client) STT() *STTService {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stt == nil {
		c.stt = &STTService{client: c, auth: c.authLocked()}
	}
	return c.stt
}

// TTS returns the text-to-speech service, creating it on first use.
func (c *Client) TTS() *TTSService {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tts == nil {
		c.tts = &TTSService{client: c, auth: c.authLocked()}
	}
	return c.tts
}

// BaseURL returns the speech API base URL.
func (c *Client) BaseURL() string {
	return c.options.BaseURL
}

// AuthBaseURL returns the authentication service base URL.
func (c *Client) AuthBaseURL() string {
	return c.options.AuthBaseURL
}
