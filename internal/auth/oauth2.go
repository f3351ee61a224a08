package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/leon4s4/httpsource/internal/logger"
	"github.com/leon4s4/httpsource/internal/template"
)

// ClientAuthMode selects how client credentials reach the token endpoint.
type ClientAuthMode int

const (
	ClientAuthHeader ClientAuthMode = iota
	ClientAuthBody
)

// MetricsRecorder lets the OAuth2Provider report refresh outcomes without
// depending on internal/metrics directly, the same nil-safe-interface
// pattern internal/breaker uses for its MetricsCollector.
type MetricsRecorder interface {
	RecordOAuth2Refresh(ctx context.Context, ok bool)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) RecordOAuth2Refresh(ctx context.Context, ok bool) {}

// OAuth2Config configures the client-credentials provider.
type OAuth2Config struct {
	TokenURL            string
	ClientID            string
	ClientSecret        string
	ClientAuthMode      ClientAuthMode
	TokenPropertyName   string // defaults to "access_token"
	RefreshIntervalMins int
}

// OAuth2Provider applies "Authorization: Bearer <token>" using a token
// obtained via the client-credentials grant and refreshed on a background
// ticker, grounded on the teacher's StartHeartbeat goroutine
// (core/discovery.go): a ticker loop selecting on ctx.Done() alongside
// ticker.C, logging and continuing past transient refresh failures instead
// of tearing down the provider.
type OAuth2Provider struct {
	cfg     OAuth2Config
	logger  logger.Logger
	metrics MetricsRecorder
	client  *http.Client

	token atomic.Value // holds string

	mu sync.Mutex // serializes concurrent RefreshNow calls
}

// NewOAuth2Provider constructs a provider with no token yet loaded; call
// RefreshNow once before serving traffic, then Start to keep it current.
func NewOAuth2Provider(cfg OAuth2Config, log logger.Logger, metrics MetricsRecorder) *OAuth2Provider {
	if cfg.TokenPropertyName == "" {
		cfg.TokenPropertyName = "access_token"
	}
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	if metrics == nil {
		metrics = noopMetricsRecorder{}
	}
	p := &OAuth2Provider{
		cfg:     cfg,
		logger:  log,
		metrics: metrics,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	p.token.Store("")
	return p
}

// ApplyTo attaches the most recently fetched bearer token. It never blocks
// on a network call: if no token has been fetched yet the request goes out
// unauthenticated and will surface as an Authentication failure the caller's
// retry policy already knows never to retry.
func (p *OAuth2Provider) ApplyTo(req *http.Request) error {
	token, _ := p.token.Load().(string)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// RefreshNow fetches a new token synchronously. A failed refresh leaves the
// previously cached token (if any) in place per spec.md §4.6, so a
// temporarily unreachable token endpoint doesn't immediately break every
// endpoint sharing this provider.
func (p *OAuth2Provider) RefreshNow(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	token, err := p.fetch(ctx)
	if err != nil {
		p.logger.Warn("oauth2 token refresh failed, keeping previous token", map[string]interface{}{
			"error": err.Error(),
		})
		p.metrics.RecordOAuth2Refresh(ctx, false)
		return err
	}
	p.token.Store(token)
	p.metrics.RecordOAuth2Refresh(ctx, true)
	return nil
}

func (p *OAuth2Provider) fetch(ctx context.Context) (string, error) {
	if p.cfg.TokenPropertyName == "access_token" {
		return p.fetchStandard(ctx)
	}
	return p.fetchCustomProperty(ctx)
}

// fetchStandard delegates to golang.org/x/oauth2/clientcredentials, which
// already implements the standard access_token/expires_in response shape
// and both AuthStyleInHeader and AuthStyleInParams client-credential
// delivery.
func (p *OAuth2Provider) fetchStandard(ctx context.Context) (string, error) {
	style := oauth2.AuthStyleInParams
	if p.cfg.ClientAuthMode == ClientAuthHeader {
		style = oauth2.AuthStyleInHeader
	}
	cc := &clientcredentials.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		TokenURL:     p.cfg.TokenURL,
		AuthStyle:    style,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := cc.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch oauth2 token: %w", err)
	}
	return token.AccessToken, nil
}

// fetchCustomProperty handles token endpoints that return the bearer token
// under a non-standard JSON field, extracting it with the same RFC-6901
// pointer machinery the engine uses for response bodies.
func (p *OAuth2Provider) fetchCustomProperty(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if p.cfg.ClientAuthMode == ClientAuthHeader {
		req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	} else {
		form.Set("client_id", p.cfg.ClientID)
		form.Set("client_secret", p.cfg.ClientSecret)
	}
	req.Body = io.NopCloser(strings.NewReader(form.Encode()))

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	raw, err := template.ExtractValue(doc, "/"+p.cfg.TokenPropertyName)
	if err != nil {
		return "", err
	}
	var tok string
	if err := json.Unmarshal(raw, &tok); err != nil {
		return "", fmt.Errorf("token property %q is not a string", p.cfg.TokenPropertyName)
	}
	return tok, nil
}

// Start launches the background refresh loop; it returns once ctx is done.
// Call from a goroutine.
func (p *OAuth2Provider) Start(ctx context.Context) {
	interval := time.Duration(p.cfg.RefreshIntervalMins) * time.Minute
	if interval <= 0 {
		interval = 55 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.RefreshNow(ctx)
		}
	}
}
