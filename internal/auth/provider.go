// Package auth implements the five authentication schemes of spec.md §4.6.
// Each Provider exposes ApplyTo, the single seam the engine's request
// builder calls last (after template expansion), mirroring the teacher's
// own pattern of a small interface with one side-effecting method per
// concern (core.Logger's WithField, resilience.CircuitBreaker's Allow).
package auth

import "net/http"

// Provider applies one endpoint's auth scheme to an already-built request.
type Provider interface {
	ApplyTo(req *http.Request) error
}

// NoneProvider applies no credentials.
type NoneProvider struct{}

func (NoneProvider) ApplyTo(req *http.Request) error { return nil }

// BasicProvider applies HTTP Basic auth.
type BasicProvider struct {
	Username string
	Password string
}

func (p BasicProvider) ApplyTo(req *http.Request) error {
	req.SetBasicAuth(p.Username, p.Password)
	return nil
}

// BearerProvider applies a static bearer token.
type BearerProvider struct {
	Token string
}

func (p BearerProvider) ApplyTo(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+p.Token)
	return nil
}

// APIKeyLocation mirrors config.APIKeyLocation without importing the config
// package, keeping auth a leaf package the same way the teacher's
// resilience package has no dependency back on core.
type APIKeyLocation int

const (
	APIKeyHeader APIKeyLocation = iota
	APIKeyQuery
)

// APIKeyProvider injects a static credential as a header or query parameter.
type APIKeyProvider struct {
	Name     string
	Value    string
	Location APIKeyLocation
}

func (p APIKeyProvider) ApplyTo(req *http.Request) error {
	switch p.Location {
	case APIKeyQuery:
		q := req.URL.Query()
		q.Set(p.Name, p.Value)
		req.URL.RawQuery = q.Encode()
	default:
		req.Header.Set(p.Name, p.Value)
	}
	return nil
}
