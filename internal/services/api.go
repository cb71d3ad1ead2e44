package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/qbx/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public catalog API root.
const DefaultBaseURL = "https://www.qobuz.com/api.json/0.2"

// APIService makes raw HTTP requests to the catalog API.
type APIService struct {
	baseURL    string
	appID      string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	limiter    *rate.Limiter
}

// Option configures an [APIService].
type Option func(*APIService)

// WithAppID sets the application id sent with every catalog request.
func WithAppID(appID string) Option {
	return func(a *APIService) { a.appID = appID }
}

// WithTokenSource sets where the user auth token comes from.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(a *APIService) { a.tokens = ts }
}

// WithUserAuthToken is [WithTokenSource] over a fixed token. An empty token leaves the service unauthenticated.
func WithUserAuthToken(token string) Option {
	return func(a *APIService) {
		if token == "" {
			a.tokens = nil
			return
		}
		a.tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	}
}

// WithRateLimit caps catalog requests per second. Zero or less disables the limiter.
func WithRateLimit(perSecond float64) Option {
	return func(a *APIService) {
		if perSecond <= 0 {
			a.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewAPIService creates a new API service instance for the catalog.
func NewAPIService(baseURL string, client *http.Client, opts ...Option) *APIService {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	a := &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AppID returns the configured application id.
func (a *APIService) AppID() string {
	return a.appID
}

// Authenticated reports whether a user auth token is available.
func (a *APIService) Authenticated() bool {
	if a.tokens == nil {
		return false
	}
	tok, err := a.tokens.Token()
	return err == nil && tok.AccessToken != ""
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
}

// MimeType returns the response content type without parameters.
func (r *APIResponse) MimeType() string {
	ct := r.Headers.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt, _, _ = strings.Cut(ct, ";")
		return strings.ToLower(strings.TrimSpace(mt))
	}
	return mt
}

// ErrorMessage describes a failed reply. It prefers the catalog's JSON error message and
// falls back to the HTTP status code. A 200 reply has no message.
func (r *APIResponse) ErrorMessage() string {
	if r.StatusCode == http.StatusOK {
		return ""
	}

	var payload struct {
		Status  string `json:"status"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if r.IsJSON && json.Unmarshal(r.Body, &payload) == nil && payload.Message != "" {
		return fmt.Sprintf("%s (%d)", payload.Message, payload.Code)
	}
	return fmt.Sprintf("Received HTTP code %d", r.StatusCode)
}

// Err wraps [APIResponse.ErrorMessage] in [shared.ErrAPIRequest], or returns nil for a 200 reply.
func (r *APIResponse) Err() error {
	if msg := r.ErrorMessage(); msg != "" {
		return fmt.Errorf("%w: %s", shared.ErrAPIRequest, msg)
	}
	return nil
}

// CreateRequest performs a GET to path under the base URL with params encoded in order.
func (a *APIService) CreateRequest(ctx context.Context, path string, params []Param) (*APIResponse, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	fullURL := a.baseURL + "/" + strings.TrimLeft(path, "/")
	if q := encodeParams(params); q != "" {
		fullURL += "?" + q
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if a.appID != "" {
		req.Header.Set("X-App-Id", a.appID)
	}
	if a.tokens != nil {
		tok, err := a.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
		}
		req.Header.Set("X-User-Auth-Token", tok.AccessToken)
	}

	return a.do(req)
}

// Fetch performs a GET of an absolute URL without catalog credentials.
func (a *APIService) Fetch(ctx context.Context, rawURL string) (*APIResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return a.do(req)
}

func (a *APIService) do(req *http.Request) (*APIResponse, error) {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		IsJSON:     json.Valid(body),
	}, nil
}

// encodeParams keeps caller order, unlike [url.Values.Encode] which sorts keys.
func encodeParams(params []Param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, url.QueryEscape(p.Key)+"="+url.QueryEscape(p.Value))
	}
	return strings.Join(parts, "&")
}
