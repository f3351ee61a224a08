package template

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand_UnknownVariableIsEmpty(t *testing.T) {
	out := Expand("/entities/${offset}/children/${missing}", map[string]string{"offset": "42"})
	assert.Equal(t, "/entities/42/children/", out)
}

func TestExpand_EnvVariable(t *testing.T) {
	require.NoError(t, os.Setenv("HTTPSOURCE_TEST_VAR", "hello"))
	defer os.Unsetenv("HTTPSOURCE_TEST_VAR")

	out := Expand("prefix-${env:HTTPSOURCE_TEST_VAR}-suffix", nil)
	assert.Equal(t, "prefix-hello-suffix", out)
}

// Idempotence: Expand(Expand(s, v), v) == Expand(s, v) for any s, v without
// self-referential values (invariant 8 in spec.md §8).
func TestExpand_Idempotent(t *testing.T) {
	vars := map[string]string{"offset": "5", "parent_value": "42"}
	s := "http://h/companies/${parent_value}/employees?since=${offset}"

	once := Expand(s, vars)
	twice := Expand(once, vars)
	assert.Equal(t, once, twice)
}

func TestParseSeparated(t *testing.T) {
	pairs := ParseSeparated("Authorization=Bearer x|X-Request-Id=abc", "|")
	require.Len(t, pairs, 2)
	assert.Equal(t, KeyValue{Key: "Authorization", Value: "Bearer x"}, pairs[0])
	assert.Equal(t, KeyValue{Key: "X-Request-Id", Value: "abc"}, pairs[1])
}

func TestParseSeparated_CustomSeparator(t *testing.T) {
	pairs := ParseSeparated("a=1;b=2", ";")
	require.Len(t, pairs, 2)
	assert.Equal(t, "1", pairs[0].Value)
	assert.Equal(t, "2", pairs[1].Value)
}
