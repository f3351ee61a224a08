// Package offset implements the five offset/pagination strategies of
// spec.md §4.2, each exposing the same small surface the engine's poll loop
// drives: CurrentCursor for building the next request, DeriveNext for
// folding a response back into state, and Reset for seeding a cursor
// loaded from the OffsetStore. Grounded on the teacher's
// preference for one small interface per concern (core.Registry,
// core.Discovery) rather than a single fat poller type.
package offset

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/leon4s4/httpsource/internal/classify"
	"github.com/leon4s4/httpsource/internal/config"
	"github.com/leon4s4/httpsource/internal/template"
)

// ResponsePage is what the engine hands a Strategy after one HTTP round
// trip: the raw body, the status, and the already-extracted record list, so
// a strategy can derive its next cursor either from the body as a whole
// (CursorPagination, OData) or per record (SimpleIncrementing's count,
// Chaining's per-record pointer).
type ResponsePage struct {
	Body        []byte
	StatusCode  int
	RecordCount int
	Records     []json.RawMessage
}

// Strategy is the per-endpoint pagination/offset state machine.
type Strategy interface {
	// CurrentCursor returns the value to substitute for ${offset} (or the
	// equivalent placeholder) when building the next request.
	CurrentCursor() string
	// DeriveNext folds one response into the strategy's state, returning
	// whether another page should be fetched immediately (true) or whether
	// the poll loop should wait for the next scheduled tick (false).
	DeriveNext(page ResponsePage) (fetchAnotherPage bool, err error)
	// Reset replaces the cursor; engine.New uses it to seed a cursor loaded
	// from the OffsetStore before the first poll.
	Reset(cursor string)
	// PartitionKey returns the stable {"url": "..."} shape spec.md §4.2/§6
	// persists cursors under, computed from the task's base URL and this
	// endpoint's configured path (just the base URL for an OData endpoint in
	// TOKEN_ONLY mode, per spec.md §6's durable-state-layout carve-out).
	PartitionKey(baseURL string) string
}

// urlPartitionKey renders the spec.md §6 partition-key shape: a one-field
// JSON object {"url": "<base>"} or {"url": "<base>/<path>"} when path is
// non-empty.
func urlPartitionKey(baseURL, path string) string {
	url := strings.TrimRight(baseURL, "/")
	if path != "" {
		url += "/" + strings.TrimLeft(path, "/")
	}
	raw, _ := json.Marshal(map[string]string{"url": url})
	return string(raw)
}

// NewSimpleIncrementing builds the SIMPLE_INCREMENTING strategy: the cursor
// is a monotonically increasing integer encoded as a string, starting from
// ep.InitialOffset (default "0") and advanced by the number of records each
// successful response carries, per spec.md §4.2 and literal scenario S1 (two
// records from initial "0" persist offset "2").
func NewSimpleIncrementing(ep config.EndpointConfig) *SimpleIncrementing {
	cursor := ep.InitialOffset
	if cursor == "" {
		cursor = "0"
	}
	return &SimpleIncrementing{path: ep.Path, cursor: cursor}
}

// SimpleIncrementing is spec.md §4.2's simplest mode: a single integer
// cursor advanced by the count of records each poll emits.
type SimpleIncrementing struct {
	mu     sync.Mutex
	path   string
	cursor string
}

func (s *SimpleIncrementing) CurrentCursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// DeriveNext advances the cursor by page.RecordCount, per spec.md §4.2:
// "cursor ← cursor + N". A response with no records leaves the cursor
// unchanged, preserving invariant 2 (non-decreasing, strictly increasing
// only when records are produced).
func (s *SimpleIncrementing) DeriveNext(page ResponsePage) (bool, error) {
	if page.RecordCount == 0 {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := strconv.ParseInt(s.cursor, 10, 64)
	if err != nil {
		return false, classify.New("offset.DeriveNext", "", classify.Configuration,
			fmt.Errorf("simple_incrementing cursor %q is not an integer: %w", s.cursor, err))
	}
	n += int64(page.RecordCount)
	s.cursor = strconv.FormatInt(n, 10)
	return false, nil
}

func (s *SimpleIncrementing) Reset(cursor string) {
	s.mu.Lock()
	s.cursor = cursor
	s.mu.Unlock()
}

func (s *SimpleIncrementing) PartitionKey(baseURL string) string {
	return urlPartitionKey(baseURL, s.path)
}

// NewCursorPagination builds the CURSOR_PAGINATION strategy: the response
// carries an explicit "next page" pointer (often a full URL or an opaque
// cursor token); an empty/missing value at that pointer means the current
// page was the last one.
func NewCursorPagination(ep config.EndpointConfig) *CursorPagination {
	return &CursorPagination{nextPointer: ep.NextPagePointer, path: ep.Path, initial: ep.InitialOffset, cursor: ep.InitialOffset}
}

type CursorPagination struct {
	mu          sync.Mutex
	nextPointer string
	path        string
	initial     string
	cursor      string
}

func (c *CursorPagination) CurrentCursor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// DeriveNext reads the next-page pointer out of the response. An
// empty/absent value means pagination is complete: per spec.md §4.2/§9 Open
// Question (b), the cursor is cleared back to the endpoint's configured
// initial offset rather than left at its last value, so the next tick
// re-issues the base request (literal scenario S2's third tick).
func (c *CursorPagination) DeriveNext(page ResponsePage) (bool, error) {
	next, err := template.ExtractString(page.Body, c.nextPointer)
	if err != nil {
		return false, classify.New("offset.DeriveNext", "", classify.DataFormat, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if next == "" {
		c.cursor = c.initial
		return false, nil
	}
	c.cursor = next
	return true, nil
}

func (c *CursorPagination) Reset(cursor string) {
	c.mu.Lock()
	c.cursor = cursor
	c.mu.Unlock()
}

func (c *CursorPagination) PartitionKey(baseURL string) string {
	return urlPartitionKey(baseURL, c.path)
}

// NewSnapshotPagination builds the SNAPSHOT_PAGINATION strategy: like
// CursorPagination, but the loop of "fetch another page immediately" is
// also terminated by an empty data array even when a next-page pointer is
// still present, per spec.md §4.2's snapshot-mode invariant that a
// full-table dump ends on an empty page regardless of pagination metadata.
func NewSnapshotPagination(ep config.EndpointConfig) *SnapshotPagination {
	return &SnapshotPagination{
		nextPointer: ep.NextPagePointer,
		dataPointer: ep.DataPointer,
		path:        ep.Path,
		cursor:      ep.InitialOffset,
	}
}

type SnapshotPagination struct {
	mu          sync.Mutex
	nextPointer string
	dataPointer string
	path        string
	cursor      string
}

func (s *SnapshotPagination) CurrentCursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *SnapshotPagination) DeriveNext(page ResponsePage) (bool, error) {
	if s.dataPointer != "" {
		raw, err := template.Extract(page.Body, s.dataPointer)
		if err != nil {
			return false, classify.New("offset.DeriveNext", "", classify.DataFormat, err)
		}
		if isEmptyJSONArray(raw) {
			return false, nil
		}
	}

	next, err := template.ExtractString(page.Body, s.nextPointer)
	if err != nil {
		return false, classify.New("offset.DeriveNext", "", classify.DataFormat, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if next == "" {
		return false, nil
	}
	s.cursor = next
	return true, nil
}

func (s *SnapshotPagination) Reset(cursor string) {
	s.mu.Lock()
	s.cursor = cursor
	s.mu.Unlock()
}

func (s *SnapshotPagination) PartitionKey(baseURL string) string {
	return urlPartitionKey(baseURL, s.path)
}

func isEmptyJSONArray(raw json.RawMessage) bool {
	if raw == nil {
		return true
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return false
	}
	return len(arr) == 0
}

// NewChaining builds the CHAINING (offset-from-record) strategy of spec.md
// §4.2: distinct from the parent/child endpoint relationship of §4.3 that
// happens to share the name, this mode derives perRecordOffset by applying
// ep.OffsetPointer to each extracted record and persists the last such
// value as its cursor.
func NewChaining(ep config.EndpointConfig) *Chaining {
	return &Chaining{pointer: ep.OffsetPointer, path: ep.Path, cursor: ep.InitialOffset}
}

type Chaining struct {
	mu      sync.Mutex
	pointer string
	path    string
	cursor  string
}

func (c *Chaining) CurrentCursor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// DeriveNext applies c.pointer to each record in the page and persists the
// last resolved value as the cursor, per spec.md §4.2: "cursor persisted =
// last such value. Fails with Configuration when pointer missing."
func (c *Chaining) DeriveNext(page ResponsePage) (bool, error) {
	if c.pointer == "" {
		return false, classify.New("offset.DeriveNext", "", classify.Configuration,
			fmt.Errorf("chaining offset strategy requires an offset json pointer"))
	}
	if len(page.Records) == 0 {
		return false, nil
	}

	var last string
	var found bool
	for _, record := range page.Records {
		var doc interface{}
		if err := json.Unmarshal(record, &doc); err != nil {
			continue
		}
		raw, err := template.ExtractValue(doc, c.pointer)
		if err != nil || raw == nil {
			continue
		}
		value, err := template.RawToString(raw)
		if err != nil || value == "" {
			continue
		}
		last = value
		found = true
	}
	if !found {
		return false, classify.New("offset.DeriveNext", "", classify.Configuration,
			fmt.Errorf("chaining offset pointer %q did not resolve on any record", c.pointer))
	}

	c.mu.Lock()
	c.cursor = last
	c.mu.Unlock()
	return false, nil
}

func (c *Chaining) Reset(cursor string) {
	c.mu.Lock()
	c.cursor = cursor
	c.mu.Unlock()
}

func (c *Chaining) PartitionKey(baseURL string) string {
	return urlPartitionKey(baseURL, c.path)
}

// tokenRegex extracts a skip/delta token from an OData nextLink/deltaLink
// URL's query string, compiled once per endpoint rather than per poll.
func tokenRegex(param string) *regexp.Regexp {
	return regexp.MustCompile(`[?&]` + regexp.QuoteMeta(param) + `=([^&]+)`)
}

// NewODataPagination builds the OData dual-link strategy: nextLink pages
// drive same-tick re-fetches until the server returns a deltaLink, after
// which the endpoint idles until its next scheduled tick using the
// deltaLink (or its extracted delta token) as the cursor, per spec.md
// §4.2's OData dual-mode description.
func NewODataPagination(ep config.EndpointConfig) *ODataPagination {
	o := &ODataPagination{
		nextLinkField:  ep.ODataNextLinkField,
		deltaLinkField: ep.ODataDeltaLinkField,
		tokenMode:      ep.ODataTokenMode,
		path:           ep.Path,
		cursor:         ep.InitialOffset,
	}
	if ep.ODataSkipTokenParam != "" {
		o.skipTokenRe = tokenRegex(ep.ODataSkipTokenParam)
	}
	if ep.ODataDeltaTokenParam != "" {
		o.deltaTokenRe = tokenRegex(ep.ODataDeltaTokenParam)
	}
	return o
}

type ODataPagination struct {
	mu sync.Mutex

	nextLinkField  string
	deltaLinkField string
	tokenMode      config.ODataTokenMode
	skipTokenRe    *regexp.Regexp
	deltaTokenRe   *regexp.Regexp
	path           string

	cursor  string
	isDelta bool // true once the cursor holds a deltaLink/delta token rather than a nextLink
}

func (o *ODataPagination) CurrentCursor() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cursor
}

// IsDeltaPhase reports whether the strategy is currently idling on a
// deltaLink (true) versus mid-pagination on a nextLink (false); the engine
// uses this to choose between the deltaLink and the standard poll interval.
func (o *ODataPagination) IsDeltaPhase() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isDelta
}

func (o *ODataPagination) DeriveNext(page ResponsePage) (bool, error) {
	next, err := template.ExtractString(page.Body, "/"+o.nextLinkField)
	if err != nil {
		return false, classify.New("offset.DeriveNext", "", classify.DataFormat, err)
	}
	if next != "" {
		o.mu.Lock()
		o.cursor = o.persistedValue(next, o.skipTokenRe)
		o.isDelta = false
		o.mu.Unlock()
		return true, nil
	}

	delta, err := template.ExtractString(page.Body, "/"+o.deltaLinkField)
	if err != nil {
		return false, classify.New("offset.DeriveNext", "", classify.DataFormat, err)
	}
	if delta == "" {
		return false, fmt.Errorf("odata response carried neither %s nor %s", o.nextLinkField, o.deltaLinkField)
	}
	o.mu.Lock()
	o.cursor = o.persistedValue(delta, o.deltaTokenRe)
	o.isDelta = true
	o.mu.Unlock()
	return false, nil
}

// persistedValue renders link per the endpoint's ODataTokenMode: the full
// URL verbatim, or just the extracted token when TOKEN_ONLY and a token
// regex is configured for this link kind.
func (o *ODataPagination) persistedValue(link string, tokenRe *regexp.Regexp) string {
	if o.tokenMode != config.ODataTokenOnly || tokenRe == nil {
		return link
	}
	m := tokenRe.FindStringSubmatch(link)
	if len(m) != 2 {
		return link
	}
	return m[1]
}

func (o *ODataPagination) Reset(cursor string) {
	o.mu.Lock()
	o.cursor = cursor
	o.isDelta = false
	o.mu.Unlock()
}

// PartitionKey follows spec.md §6's durable-state-layout carve-out: TOKEN_ONLY
// mode persists cursors under the base URL alone (the path is implied by
// the token, and the same token is re-attached to the base path on every
// request), while FULL_URL mode keys under the full base+path the way every
// other strategy does.
func (o *ODataPagination) PartitionKey(baseURL string) string {
	if o.tokenMode == config.ODataTokenOnly {
		return urlPartitionKey(baseURL, "")
	}
	return urlPartitionKey(baseURL, o.path)
}

// New builds the Strategy configured for ep's OffsetMode.
func New(ep config.EndpointConfig) (Strategy, error) {
	switch ep.OffsetMode {
	case config.OffsetSimpleIncrementing:
		return NewSimpleIncrementing(ep), nil
	case config.OffsetChaining:
		return NewChaining(ep), nil
	case config.OffsetCursorPagination:
		return NewCursorPagination(ep), nil
	case config.OffsetSnapshotPagination:
		return NewSnapshotPagination(ep), nil
	case config.OffsetODataPagination:
		return NewODataPagination(ep), nil
	default:
		return nil, fmt.Errorf("%w: %q", classify.ErrInvalidOffsetMode, ep.OffsetMode)
	}
}
