package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractString_SimplePointer(t *testing.T) {
	body := []byte(`{"pagination":{"next_cursor":"abc123"}}`)
	v, err := ExtractString(body, "/pagination/next_cursor")
	require.NoError(t, err)
	assert.Equal(t, "abc123", v)
}

func TestExtractString_MissingPathReturnsEmpty(t *testing.T) {
	body := []byte(`{"data":[]}`)
	v, err := ExtractString(body, "/pagination/next_cursor")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestExtract_ArrayIndex(t *testing.T) {
	body := []byte(`{"companies":[{"id":42,"name":"A"}]}`)
	raw, err := Extract(body, "/companies/0/id")
	require.NoError(t, err)
	assert.Equal(t, "42", string(raw))
}

func TestExtractValue_PerRecordOffset(t *testing.T) {
	record := map[string]interface{}{"id": float64(7), "ts": "2026-01-01"}
	raw, err := ExtractValue(record, "/id")
	require.NoError(t, err)
	assert.Equal(t, "7", string(raw))
}

func TestExtract_NullBodyIsEmpty(t *testing.T) {
	raw, err := Extract(nil, "/data")
	require.NoError(t, err)
	assert.Nil(t, raw)
}
