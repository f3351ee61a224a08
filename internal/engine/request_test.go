package engine

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leon4s4/httpsource/internal/config"
)

func TestBuildRequest_ExpandsPathParamsHeadersBody(t *testing.T) {
	ep := config.EndpointConfig{
		Path:             "/items/${offset}",
		Method:           "POST",
		ParamsTemplate:   "limit=50&since=${offset}",
		ParamsSeparator:  "&",
		HeadersTemplate:  "X-Trace=${offset}",
		HeadersSeparator: "|",
		BodyTemplate:     `{"cursor":"${offset}"}`,
	}

	req, err := buildRequest("https://api.example.com", ep, requestVars("42", nil), "")
	require.NoError(t, err)

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/items/42", req.URL.Path)
	assert.Equal(t, "50", req.URL.Query().Get("limit"))
	assert.Equal(t, "42", req.URL.Query().Get("since"))
	assert.Equal(t, "42", req.Header.Get("X-Trace"))

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"cursor":"42"}`, string(body))
}

func TestBuildRequest_ODataFullURLOverrideSkipsPathAndParams(t *testing.T) {
	ep := config.EndpointConfig{Path: "/items", ParamsTemplate: "limit=50"}

	req, err := buildRequest("https://api.example.com", ep, requestVars("", nil), "https://api.example.com/items?$skiptoken=AAA")
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/items?$skiptoken=AAA", req.URL.String())
}

func TestBuildRequest_ChainingVariablesExpand(t *testing.T) {
	ep := config.EndpointConfig{Path: "/children/${parent_value}"}
	vars := requestVars("", map[string]string{"parent_value": "p1", "parent_api_id": "p1"})

	req, err := buildRequest("https://api.example.com", ep, vars, "")
	require.NoError(t, err)
	assert.Equal(t, "/children/p1", req.URL.Path)
}
