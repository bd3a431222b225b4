package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/get-hunter/hero365-app-sub007/internal/config"
	"github.com/get-hunter/hero365-app-sub007/internal/domain"
)

const (
	defaultHTTPTimeout = 5 * time.Second
	userPath           = "/auth/v1/user"
)

// Provider verifies provider-issued opaque credentials by calling the
// external identity provider's user endpoint.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
}

type Option func(*Provider)

func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

func NewProvider(cfg config.Config, opts ...Option) (*Provider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.ProviderURL), "/")
	if baseURL == "" {
		return nil, errors.New("IDENTITY_PROVIDER_URL is required")
	}
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	p := &Provider{
		baseURL:    baseURL,
		apiKey:     cfg.ProviderAPIKey,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type userResponse struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	Phone       string            `json:"phone"`
	AppMetadata map[string]any    `json:"app_metadata"`
	Metadata    map[string]string `json:"user_metadata"`
}

type providerError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"msg"`
}

// Verify resolves an opaque provider credential to an identity. Provider
// outages degrade to ErrUpstreamUnavailable so the pipeline can fail the
// request as unauthenticated instead of surfacing a 5xx.
func (p *Provider) Verify(ctx context.Context, credential string) (domain.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return domain.Identity{}, domain.ErrTokenMalformed
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+userPath, nil)
	if err != nil {
		return domain.Identity{}, domain.ErrUpstreamUnavailable
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	if p.apiKey != "" {
		req.Header.Set("apikey", p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.Identity{}, domain.ErrUpstreamUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return decodeIdentity(resp)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		var body providerError
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.ErrorCode == "token_expired" || strings.Contains(strings.ToLower(body.Message), "expired") {
			return domain.Identity{}, domain.ErrTokenExpired
		}
		return domain.Identity{}, domain.ErrTokenMalformed
	default:
		return domain.Identity{}, domain.ErrUpstreamUnavailable
	}
}

func decodeIdentity(resp *http.Response) (domain.Identity, error) {
	var payload userResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Identity{}, domain.ErrUpstreamUnavailable
	}
	if strings.TrimSpace(payload.ID) == "" {
		return domain.Identity{}, domain.ErrTokenMalformed
	}
	identity := domain.Identity{
		ID:       payload.ID,
		Email:    payload.Email,
		Phone:    payload.Phone,
		Metadata: payload.Metadata,
	}
	if flag, ok := payload.AppMetadata["is_superuser"].(bool); ok {
		identity.IsSuperuser = flag
	}
	return identity, nil
}

var _ domain.IdentityProvider = (*Provider)(nil)
