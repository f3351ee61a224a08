// Package engine implements the endpoint poll loop of spec.md §4.1: request
// building (§4.8), the retry/breaker-guarded HTTP round trip, record
// extraction, and cursor advancement, wired into a pull-style per-endpoint
// scheduler (SPEC_FULL.md §6). Grounded on the teacher's agent/tool
// dispatch loop in core/base_agent.go for the overall "build request,
// execute, handle result" shape, generalized from the teacher's one-shot
// tool invocation into a recurring poll.
package engine

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/leon4s4/httpsource/internal/config"
	"github.com/leon4s4/httpsource/internal/template"
)

// requestVars bundles everything the template expander needs for one poll:
// the endpoint's current offset cursor plus any chaining variables
// published by its parent.
func requestVars(cursor string, chainVars map[string]string) map[string]string {
	vars := map[string]string{"offset": cursor}
	for k, v := range chainVars {
		vars[k] = v
	}
	return vars
}

// buildRequest assembles the *http.Request for one poll, applying template
// expansion to the path/URL, then the query params, then the body, then the
// headers; auth is applied last by the caller once the request is otherwise
// complete.
func buildRequest(baseURL string, ep config.EndpointConfig, vars map[string]string, odataFullURLOverride string) (*http.Request, error) {
	rawURL := odataFullURLOverride
	if rawURL == "" {
		rawURL = strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(template.Expand(ep.Path, vars), "/")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint url: %w", err)
	}

	if odataFullURLOverride == "" && ep.ParamsTemplate != "" {
		q := u.Query()
		for _, kv := range template.ParseSeparated(template.Expand(ep.ParamsTemplate, vars), ep.ParamsSeparator) {
			q.Set(kv.Key, kv.Value)
		}
		u.RawQuery = q.Encode()
	}

	var body []byte
	if ep.BodyTemplate != "" {
		body = []byte(template.Expand(ep.BodyTemplate, vars))
	}

	method := ep.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequest(method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if ep.HeadersTemplate != "" {
		for _, kv := range template.ParseSeparated(template.Expand(ep.HeadersTemplate, vars), ep.HeadersSeparator) {
			req.Header.Set(kv.Key, kv.Value)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}
