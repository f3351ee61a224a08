package engine

import (
	"time"

	"github.com/leon4s4/httpsource/internal/auth"
	"github.com/leon4s4/httpsource/internal/breaker"
	"github.com/leon4s4/httpsource/internal/config"
	"github.com/leon4s4/httpsource/internal/httpclient"
	"github.com/leon4s4/httpsource/internal/offset"
	"github.com/leon4s4/httpsource/internal/retry"
)

// Endpoint is the runtime state for one configured api{N} block: its static
// config, its offset strategy, its own circuit breaker (spec.md §4.4 scopes
// breaker state per endpoint, not per task), and its own HTTP client (since
// connect/request timeouts are configured per endpoint).
type Endpoint struct {
	Config  config.EndpointConfig
	Offset  offset.Strategy
	Breaker *breaker.CircuitBreaker
	Client  *httpclient.Client
}

// newEndpoint wires one EndpointConfig into a runtime Endpoint, building its
// offset strategy, a breaker sized from DefaultConfig and overridden with
// the endpoint's own name for logging/metrics tagging, and its HTTP client.
func newEndpoint(ep config.EndpointConfig, proxy config.ProxyConfig, metrics breaker.MetricsCollector) (*Endpoint, error) {
	strat, err := offset.New(ep)
	if err != nil {
		return nil, err
	}
	bc := breaker.DefaultConfig(ep.ID)
	bc.Metrics = metrics

	client, err := httpclient.New(ep.ConnectTimeout, ep.RequestTimeout, proxy)
	if err != nil {
		return nil, err
	}

	return &Endpoint{
		Config:  ep,
		Offset:  strat,
		Breaker: breaker.New(bc),
		Client:  client,
	}, nil
}

// retryPolicy derives the internal/retry.Policy from the endpoint's backoff
// configuration.
func (e *Endpoint) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries: e.Config.MaxRetries,
		Backoff:    e.Config.BackoffPolicy,
		BaseDelay:  time.Duration(e.Config.BackoffMs) * time.Millisecond,
	}
}

// authProvider aliases auth.Provider, the shared task-level auth provider
// type; Task holds the concrete provider, so Endpoint needs no knowledge of
// OAuth2's background refresher.
type authProvider = auth.Provider
