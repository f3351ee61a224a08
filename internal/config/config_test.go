package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseValues() map[string]string {
	return map[string]string{
		"http.api.base.url":               "http://h/v1",
		"apis.num":                        "1",
		"api1.http.api.path":               "/users",
		"api1.http.offset.mode":            "SIMPLE_INCREMENTING",
		"api1.http.response.data.json.pointer": "/data",
		"api1.request.interval.ms":         "1000",
		"api1.topics":                      "users",
	}
}

func TestLoadFromMap_Simple(t *testing.T) {
	cfg, err := NewConfig(baseValues())
	require.NoError(t, err)
	assert.Equal(t, "http://h/v1", cfg.BaseURL)
	require.Len(t, cfg.Endpoints, 1)

	ep := cfg.Endpoints[0]
	assert.Equal(t, "1", ep.ID)
	assert.Equal(t, "/users", ep.Path)
	assert.Equal(t, OffsetSimpleIncrementing, ep.OffsetMode)
	assert.Equal(t, "0", ep.InitialOffset)
	assert.Equal(t, "GET", ep.Method)
	assert.Equal(t, "|", ep.HeadersSeparator)
	assert.Equal(t, "&", ep.ParamsSeparator)
	assert.Equal(t, 1000, ep.IntervalMs)
}

func TestLoadFromMap_MissingBaseURL(t *testing.T) {
	values := baseValues()
	delete(values, "http.api.base.url")
	_, err := NewConfig(values)
	assert.Error(t, err)
}

func TestLoadFromMap_InvalidApisNum(t *testing.T) {
	values := baseValues()
	values["apis.num"] = "16"
	_, err := NewConfig(values)
	assert.Error(t, err)
}

func TestLoadFromMap_CursorPaginationRequiresPointer(t *testing.T) {
	values := baseValues()
	values["api1.http.offset.mode"] = "CURSOR_PAGINATION"
	_, err := NewConfig(values)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "next.page.json.pointer")
}

func TestLoadFromMap_ChainingRequiresPointer(t *testing.T) {
	values := baseValues()
	values["apis.num"] = "2"
	values["api2.http.api.path"] = "/children"
	values["api2.http.offset.mode"] = "CHAINING"
	values["api.chaining.parent.child.relationship"] = "2:1"
	_, err := NewConfig(values)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chaining.json.pointer")
}

func TestLoadFromMap_CircularChaining(t *testing.T) {
	values := baseValues()
	values["apis.num"] = "2"
	values["api2.http.api.path"] = "/children"
	values["api2.http.offset.mode"] = "SIMPLE_INCREMENTING"
	values["api.chaining.parent.child.relationship"] = "1:2,2:1"
	_, err := NewConfig(values)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular")
}

func TestLoadFromMap_UnknownChainingParent(t *testing.T) {
	values := baseValues()
	values["api.chaining.parent.child.relationship"] = "1:99"
	_, err := NewConfig(values)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown parent")
}

func TestParseStatusRanges(t *testing.T) {
	ranges, err := ParseStatusRanges("400-,404,500-502")
	require.NoError(t, err)
	require.Len(t, ranges, 3)

	assert.True(t, ranges[0].Contains(450))
	assert.True(t, ranges[0].Contains(999))
	assert.False(t, ranges[0].Contains(399))

	assert.True(t, ranges[1].Contains(404))
	assert.False(t, ranges[1].Contains(405))

	assert.True(t, ranges[2].Contains(501))
	assert.False(t, ranges[2].Contains(503))
}

func TestAuthConfig_OAuth2Defaults(t *testing.T) {
	values := baseValues()
	values["auth.type"] = "OAUTH2"
	values["auth.oauth2.token.url"] = "http://auth/token"
	cfg, err := NewConfig(values)
	require.NoError(t, err)
	assert.Equal(t, AuthOAuth2, cfg.Auth.Type)
	assert.Equal(t, "access_token", cfg.Auth.OAuth2.TokenPropertyName)
	assert.Equal(t, OAuth2ClientAuthHeader, cfg.Auth.OAuth2.ClientAuthMode)
	assert.Equal(t, 55, cfg.Auth.OAuth2.RefreshIntervalMins)
}

func TestLoadTaskFile(t *testing.T) {
	doc := []byte(`
baseUrl: http://h/v1
apis:
  - http.api.path: /users
    http.offset.mode: SIMPLE_INCREMENTING
    http.response.data.json.pointer: /data
    request.interval.ms: "1000"
    topics: users
`)
	cfg, err := LoadTaskFile(doc)
	require.NoError(t, err)
	assert.Equal(t, "http://h/v1", cfg.BaseURL)
	require.Len(t, cfg.Endpoints, 1)
	assert.Equal(t, "/users", cfg.Endpoints[0].Path)
}
