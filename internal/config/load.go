package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LoadFromMap parses the flat key/value configuration input of spec.md §6.
// Keys are grouped by a 1-based index prefix "api{N}." for per-endpoint
// values; global keys carry no prefix.
func LoadFromMap(values map[string]string) (*TaskConfig, error) {
	cfg := &TaskConfig{
		ChainingParentOf: map[string]string{},
		BehaviorOnError:  BehaviorIgnore,
	}

	cfg.BaseURL = values["http.api.base.url"]

	numStr := values["apis.num"]
	if numStr == "" {
		numStr = "1"
	}
	num, err := strconv.Atoi(numStr)
	if err != nil || num < 1 || num > 15 {
		return nil, fmt.Errorf("apis.num must be an integer in 1..15, got %q", numStr)
	}

	cfg.Auth, err = parseAuthConfig(values)
	if err != nil {
		return nil, err
	}
	cfg.Proxy = parseProxyConfig(values)

	if raw, ok := values["api.chaining.parent.child.relationship"]; ok && raw != "" {
		cfg.ChainingParentOf, err = parseChainingRelationship(raw)
		if err != nil {
			return nil, err
		}
	}

	if raw, ok := values["behavior_on_error"]; ok && raw != "" {
		switch BehaviorOnError(raw) {
		case BehaviorFail, BehaviorIgnore:
			cfg.BehaviorOnError = BehaviorOnError(raw)
		default:
			return nil, fmt.Errorf("behavior_on_error must be fail or ignore, got %q", raw)
		}
	}
	cfg.DeadLetterEnabled = parseBool(values["dead.letter.enabled"], false)

	for i := 1; i <= num; i++ {
		prefix := fmt.Sprintf("api%d.", i)
		ep, err := parseEndpoint(fmt.Sprintf("%d", i), prefix, values)
		if err != nil {
			return nil, fmt.Errorf("api%d: %w", i, err)
		}
		cfg.Endpoints = append(cfg.Endpoints, ep)
	}

	return cfg, nil
}

func get(values map[string]string, prefix, key string) (string, bool) {
	v, ok := values[prefix+key]
	return v, ok
}

func parseEndpoint(id, prefix string, values map[string]string) (EndpointConfig, error) {
	ep := EndpointConfig{
		ID:               id,
		Method:           "GET",
		InitialOffset:    "0",
		MaxRetries:       0,
		BackoffPolicy:    BackoffConstant,
		BackoffMs:        1000,
		IntervalMs:       60000,
		HeadersSeparator: "|",
		ParamsSeparator:  "&",
		ODataTokenMode:   ODataFullURL,
	}

	ep.Path, _ = get(values, prefix, "http.api.path")
	ep.Topic, _ = get(values, prefix, "topics")

	if v, ok := get(values, prefix, "http.request.method"); ok && v != "" {
		ep.Method = strings.ToUpper(v)
	}
	ep.HeadersTemplate, _ = get(values, prefix, "http.request.headers")
	ep.ParamsTemplate, _ = get(values, prefix, "http.request.parameters")
	ep.BodyTemplate, _ = get(values, prefix, "http.request.body")

	if v, ok := get(values, prefix, "http.request.headers.separator"); ok && v != "" {
		ep.HeadersSeparator = v
	}
	if v, ok := get(values, prefix, "http.request.parameters.separator"); ok && v != "" {
		ep.ParamsSeparator = v
	}

	var err error
	if ep.ConnectTimeout, err = parseMillis(values, prefix, "http.connect.timeout.ms", 10*time.Second); err != nil {
		return ep, err
	}
	if ep.RequestTimeout, err = parseMillis(values, prefix, "http.request.timeout.ms", 30*time.Second); err != nil {
		return ep, err
	}

	mode, _ := get(values, prefix, "http.offset.mode")
	if mode == "" {
		mode = string(OffsetSimpleIncrementing)
	}
	ep.OffsetMode = OffsetMode(mode)

	if v, ok := get(values, prefix, "http.initial.offset"); ok {
		ep.InitialOffset = v
	}

	if v, ok := get(values, prefix, "max.retries"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ep, fmt.Errorf("max.retries: %w", err)
		}
		ep.MaxRetries = n
	}
	if v, ok := get(values, prefix, "retry.backoff.policy"); ok && v != "" {
		ep.BackoffPolicy = BackoffPolicy(v)
	}
	if n, err := parseIntField(values, prefix, "retry.backoff.ms"); err != nil {
		return ep, err
	} else if n != nil {
		ep.BackoffMs = *n
	}
	if v, ok := get(values, prefix, "retry.on.status.codes"); ok {
		ranges, err := ParseStatusRanges(v)
		if err != nil {
			return ep, err
		}
		ep.RetryRanges = ranges
	}

	ep.DataPointer, _ = get(values, prefix, "http.response.data.json.pointer")
	ep.OffsetPointer, _ = get(values, prefix, "http.offset.json.pointer")
	ep.NextPagePointer, _ = get(values, prefix, "http.next.page.json.pointer")
	ep.ChainingPointer, _ = get(values, prefix, "http.chaining.json.pointer")

	if n, err := parseIntField(values, prefix, "request.interval.ms"); err != nil {
		return ep, err
	} else if n != nil {
		ep.IntervalMs = *n
	}

	ep.ODataNextLinkField, _ = get(values, prefix, "odata.nextlink.field")
	ep.ODataDeltaLinkField, _ = get(values, prefix, "odata.deltalink.field")
	if v, ok := get(values, prefix, "odata.token.mode"); ok && v != "" {
		ep.ODataTokenMode = ODataTokenMode(v)
	}
	ep.ODataSkipTokenParam, _ = get(values, prefix, "odata.skiptoken.param")
	ep.ODataDeltaTokenParam, _ = get(values, prefix, "odata.deltatoken.param")
	if n, err := parseIntField(values, prefix, "odata.nextlink.poll.interval.ms"); err != nil {
		return ep, err
	} else if n != nil {
		ep.ODataNextLinkIntervalMs = *n
	} else {
		ep.ODataNextLinkIntervalMs = ep.IntervalMs
	}
	if n, err := parseIntField(values, prefix, "odata.deltalink.poll.interval.ms"); err != nil {
		return ep, err
	} else if n != nil {
		ep.ODataDeltaLinkIntervalMs = *n
	} else {
		ep.ODataDeltaLinkIntervalMs = ep.IntervalMs
	}

	return ep, nil
}

func parseIntField(values map[string]string, prefix, key string) (*int, error) {
	v, ok := get(values, prefix, key)
	if !ok || v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &n, nil
}

func parseMillis(values map[string]string, prefix, key string, def time.Duration) (time.Duration, error) {
	n, err := parseIntField(values, prefix, key)
	if err != nil {
		return 0, err
	}
	if n == nil {
		return def, nil
	}
	return time.Duration(*n) * time.Millisecond, nil
}

func parseBool(v string, def bool) bool {
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func parseAuthConfig(values map[string]string) (AuthConfig, error) {
	auth := AuthConfig{
		Type:           AuthType(values["auth.type"]),
		APIKeyLocation: APIKeyHeader,
	}
	if auth.Type == "" {
		auth.Type = AuthNone
	}

	auth.BasicUsername = values["auth.basic.username"]
	auth.BasicPassword = values["auth.basic.password"]
	auth.BearerToken = values["auth.bearer.token"]
	auth.APIKeyName = values["auth.apikey.name"]
	auth.APIKeyValue = values["auth.apikey.value"]
	if v := values["auth.apikey.location"]; v != "" {
		auth.APIKeyLocation = APIKeyLocation(v)
	}

	auth.OAuth2 = OAuth2Config{
		TokenURL:            values["auth.oauth2.token.url"],
		ClientID:            values["auth.oauth2.client.id"],
		ClientSecret:        values["auth.oauth2.client.secret"],
		ClientAuthMode:      OAuth2ClientAuthMode(values["auth.oauth2.client.auth.mode"]),
		TokenPropertyName:   values["auth.oauth2.token.property"],
		RefreshIntervalMins: 55,
	}
	if auth.OAuth2.ClientAuthMode == "" {
		auth.OAuth2.ClientAuthMode = OAuth2ClientAuthHeader
	}
	if auth.OAuth2.TokenPropertyName == "" {
		auth.OAuth2.TokenPropertyName = "access_token"
	}
	if v := values["auth.oauth2.refresh.interval.minutes"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return auth, fmt.Errorf("auth.oauth2.refresh.interval.minutes: %w", err)
		}
		auth.OAuth2.RefreshIntervalMins = n
	}

	return auth, nil
}

func parseProxyConfig(values map[string]string) ProxyConfig {
	p := ProxyConfig{
		Host:     values["proxy.host"],
		Username: values["proxy.user"],
		Password: values["proxy.password"],
	}
	if v := values["proxy.port"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Port = n
		}
	}
	return p
}

// parseChainingRelationship parses "child:parent,child2:parent2" into a map.
func parseChainingRelationship(raw string) (map[string]string, error) {
	result := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid chaining relationship entry %q, want child:parent", pair)
		}
		if parts[0] == parts[1] {
			return nil, fmt.Errorf("endpoint %q cannot chain to itself", parts[0])
		}
		result[parts[0]] = parts[1]
	}
	return result, nil
}
