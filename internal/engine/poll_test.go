package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leon4s4/httpsource/internal/config"
)

// spec.md §4.1 edge cases: a data pointer resolving to a JSON object (rather
// than an array) is one record, not a DataFormat error; an absent pointer
// value is zero records.
func TestExtractRecords_NonListExtractionIsSingleRecord(t *testing.T) {
	task := &Task{}
	ep := &Endpoint{Config: config.EndpointConfig{ID: "ep1", Topic: "t", DataPointer: "/data"}}

	records, err := task.extractRecords(ep, []byte(`{"data":{"id":7,"name":"solo"}}`), time.Now())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.JSONEq(t, `{"id":7,"name":"solo"}`, string(records[0].Value))
}

func TestExtractRecords_ArrayExtractionYieldsOneRecordPerElement(t *testing.T) {
	task := &Task{}
	ep := &Endpoint{Config: config.EndpointConfig{ID: "ep1", Topic: "t", DataPointer: "/data"}}

	records, err := task.extractRecords(ep, []byte(`{"data":[{"id":1},{"id":2}]}`), time.Now())
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestExtractRecords_MissingPointerYieldsNoRecords(t *testing.T) {
	task := &Task{}
	ep := &Endpoint{Config: config.EndpointConfig{ID: "ep1", Topic: "t", DataPointer: "/missing"}}

	records, err := task.extractRecords(ep, []byte(`{"data":[{"id":1}]}`), time.Now())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtractRecords_EmptyDataPointerTreatsWholeBodyAsOneRecord(t *testing.T) {
	task := &Task{}
	ep := &Endpoint{Config: config.EndpointConfig{ID: "ep1", Topic: "t"}}

	records, err := task.extractRecords(ep, []byte(`{"id":1}`), time.Now())
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestExtractRecords_InvalidJSONArrayIsDataFormatError(t *testing.T) {
	task := &Task{}
	ep := &Endpoint{Config: config.EndpointConfig{ID: "ep1", Topic: "t", DataPointer: "/data"}}

	_, err := task.extractRecords(ep, []byte(`{"data":[{"id":1}`), time.Now())
	assert.Error(t, err)
}

// Regression test: an OData endpoint in TOKEN_ONLY mode must keep building
// requests against the base path with the token re-attached as a query
// parameter even once it has entered the deltaLink phase, per spec.md
// §4.2's OData dual-link description. Only FULL_URL mode ever replaces the
// path with the persisted link verbatim.
func TestTask_ODataTokenOnly_DeltaPhaseKeepsBasePathRequest(t *testing.T) {
	var hits int32
	var secondRequestURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			w.Write([]byte(`{"@odata.deltaLink":"http://example/entities?$deltatoken=BBB"}`))
			return
		}
		secondRequestURL = r.URL.String()
		w.Write([]byte(`{"@odata.deltaLink":"http://example/entities?$deltatoken=CCC"}`))
	}))
	defer srv.Close()

	ep := config.EndpointConfig{
		ID:                   "ep1",
		Path:                 "/entities",
		ParamsTemplate:       "$deltatoken=${offset}",
		ParamsSeparator:      "&",
		OffsetMode:           config.OffsetODataPagination,
		ODataNextLinkField:   "@odata.nextLink",
		ODataDeltaLinkField:  "@odata.deltaLink",
		ODataTokenMode:       config.ODataTokenOnly,
		ODataDeltaTokenParam: "$deltatoken",
		IntervalMs:           20,
	}

	task, err := New(baseTaskConfig(srv.URL, ep), Options{})
	require.NoError(t, err)

	task.Run(context.Background())
	defer task.Stop(context.Background())

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&hits) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "/entities?%24deltatoken=BBB", secondRequestURL)
}
