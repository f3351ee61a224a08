package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/leon4s4/httpsource/internal/classify"
	"github.com/leon4s4/httpsource/internal/config"
	"github.com/leon4s4/httpsource/internal/httpclient"
	"github.com/leon4s4/httpsource/internal/offset"
	"github.com/leon4s4/httpsource/internal/retry"
	"github.com/leon4s4/httpsource/internal/sink"
	"github.com/leon4s4/httpsource/internal/template"
)

var pollTracer = otel.Tracer("httpsource/engine")

// poll executes one full cycle of spec.md §4.1 for ep:
//  1. skip if the breaker is open
//  2. resolve chaining variables if this endpoint has a parent
//  3. build the request (special-cased for OData FULL_URL mode)
//  4. execute with retry, classifying failures and recording breaker outcome
//  5. extract the record array, publish to the sink
//  6. advance the offset strategy, persist the cursor
//  7. if this endpoint is itself a parent, publish its extracted value to
//     the chaining coordinator
//
// Returns fetchAnotherPage so the caller can immediately re-poll
// CURSOR_PAGINATION/SNAPSHOT_PAGINATION/OData-nextLink endpoints without
// waiting for the next scheduler tick.
func (t *Task) poll(ctx context.Context, ep *Endpoint) (fetchAnotherPage bool, err error) {
	ctx, span := pollTracer.Start(ctx, "engine.poll", trace.WithAttributes(
		attribute.String("httpsource.endpoint", ep.Config.ID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	now := t.clock.Now()
	if !ep.Breaker.Allow(now) {
		t.metrics.RecordRejection(ep.Config.ID)
		t.logger.Debug("breaker open, skipping poll", map[string]interface{}{"endpoint": ep.Config.ID})
		return false, nil
	}

	vars := requestVars(ep.Offset.CurrentCursor(), nil)
	if t.chaining != nil {
		if chainVars, ready, cerr := t.chaining.VariablesFor(ep.Config.ID); cerr == nil {
			if !ready {
				return false, nil
			}
			vars = requestVars(ep.Offset.CurrentCursor(), chainVars)
		}
		// cerr != nil means ep.Config.ID has no configured parent; vars stays as built above.
	}

	// OData FULL_URL mode persists the entire nextLink/deltaLink and reuses it
	// verbatim as the next request's URL, for either link kind; TOKEN_ONLY
	// mode persists just the extracted token and relies on the normal
	// path/param template expansion to re-attach it under its configured
	// parameter name, so it must never hit this override.
	fullURLOverride := ""
	if ep.Config.OffsetMode == config.OffsetODataPagination && ep.Config.ODataTokenMode == config.ODataFullURL {
		if cursor := ep.Offset.CurrentCursor(); cursor != "" && cursor != ep.Config.InitialOffset {
			fullURLOverride = cursor
		}
	}

	resp, attempt, pollErr := t.doRequest(ctx, ep, vars, fullURLOverride)
	if pollErr != nil {
		ep.Breaker.RecordFailure(attempt.Category, now)
		t.metrics.RecordPoll(ctx, ep.Config.ID, "error", 0)
		return false, pollErr
	}
	ep.Breaker.RecordSuccess()

	records, err := t.extractRecords(ep, resp.Body, now)
	if err != nil {
		t.metrics.RecordPoll(ctx, ep.Config.ID, "extract_error", 0)
		return false, err
	}

	if len(records) > 0 {
		if err := t.sink.Publish(ctx, records); err != nil {
			return false, fmt.Errorf("publish records for %s: %w", ep.Config.ID, err)
		}
	}
	t.metrics.RecordPoll(ctx, ep.Config.ID, "success", len(records))

	fetchAnotherPage, err = ep.Offset.DeriveNext(offset.ResponsePage{
		Body:        resp.Body,
		StatusCode:  resp.Status,
		RecordCount: len(records),
		Records:     rawRecordValues(records),
	})
	if err != nil {
		return false, err
	}

	partitionKey := ep.Offset.PartitionKey(t.cfg.BaseURL)
	if err := t.offsets.Save(ctx, partitionKey, ep.Offset.CurrentCursor()); err != nil {
		t.logger.Warn("failed to persist offset", map[string]interface{}{
			"endpoint": ep.Config.ID, "error": err.Error(),
		})
	}

	if ep.Config.ChainingPointer != "" && t.chaining != nil {
		if value, verr := template.ExtractString(resp.Body, ep.Config.ChainingPointer); verr == nil && value != "" {
			t.chaining.PublishParent(ep.Config.ID, value, value)
		}
	}

	return fetchAnotherPage, nil
}

// doRequest runs the retry-wrapped HTTP round trip for one poll attempt,
// returning the final successful response alongside the Attempt classifying
// whatever error retry.Do gave up on (zero value when err is nil).
func (t *Task) doRequest(ctx context.Context, ep *Endpoint, vars map[string]string, fullURLOverride string) (*httpclient.Response, retry.Attempt, error) {
	var resp *httpclient.Response
	var lastAttempt retry.Attempt
	attempts := 0

	op := func() (retry.Attempt, error) {
		attempts++
		if attempts > 1 {
			t.metrics.RecordRetry(ctx, ep.Config.ID)
		}
		req, err := buildRequest(t.cfg.BaseURL, ep.Config, vars, fullURLOverride)
		if err != nil {
			lastAttempt = retry.Attempt{Category: classify.Configuration}
			return lastAttempt, err
		}
		req = req.WithContext(ctx)

		if t.auth != nil {
			if err := t.auth.ApplyTo(req); err != nil {
				lastAttempt = retry.Attempt{Category: classify.Authentication}
				return lastAttempt, err
			}
		}

		r, err := ep.Client.Do(req, "engine.poll", ep.Config.ID)
		if err != nil {
			lastAttempt = retry.Attempt{Category: classify.CategoryOf(err), Status: statusOf(err)}
			return lastAttempt, err
		}
		resp = r
		lastAttempt = retry.Attempt{}
		return lastAttempt, nil
	}

	err := retry.Do(ctx, ep.retryPolicy(), ep.Config.RetryRanges, op)
	if err != nil {
		return nil, lastAttempt, err
	}
	return resp, retry.Attempt{}, nil
}

// rawRecordValues re-exposes each sink.Record's already-extracted JSON body
// as an offset.ResponsePage.Records entry, letting strategies like Chaining
// apply their own pointer per record without re-parsing the response.
func rawRecordValues(records []sink.Record) []json.RawMessage {
	if len(records) == 0 {
		return nil
	}
	values := make([]json.RawMessage, len(records))
	for i, r := range records {
		values[i] = json.RawMessage(r.Value)
	}
	return values
}

func statusOf(err error) int {
	var httpErr *classify.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

// extractRecords pulls the array at ep.Config.DataPointer (or treats the
// whole body as a single-element array when DataPointer is empty) and turns
// each element into a sink.Record, keyed by OffsetPointer when present.
func (t *Task) extractRecords(ep *Endpoint, body []byte, polledAt time.Time) ([]sink.Record, error) {
	var elements []json.RawMessage

	if ep.Config.DataPointer == "" {
		elements = []json.RawMessage{body}
	} else {
		raw, err := template.Extract(body, ep.Config.DataPointer)
		if err != nil {
			return nil, classify.New("engine.extractRecords", ep.Config.ID, classify.DataFormat, err)
		}
		if raw == nil {
			return nil, nil
		}
		// A non-array extraction (the pointer resolves to a single object or
		// scalar) is treated as one record rather than a DataFormat error,
		// per spec.md §4.1's "non-list extraction ⇒ treat as single record".
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			elements = []json.RawMessage{raw}
		} else if err := json.Unmarshal(raw, &elements); err != nil {
			return nil, classify.New("engine.extractRecords", ep.Config.ID, classify.DataFormat,
				fmt.Errorf("data pointer %q did not resolve to valid JSON: %w", ep.Config.DataPointer, err))
		}
	}

	records := make([]sink.Record, 0, len(elements))
	for _, el := range elements {
		key := ""
		if ep.Config.OffsetPointer != "" {
			var doc interface{}
			if err := json.Unmarshal(el, &doc); err == nil {
				if raw, err := template.ExtractValue(doc, ep.Config.OffsetPointer); err == nil && raw != nil {
					key = string(raw)
				}
			}
		}
		records = append(records, sink.Record{
			EndpointID: ep.Config.ID,
			Topic:      ep.Config.Topic,
			Key:        key,
			Value:      el,
			PolledAt:   polledAt,
		})
	}
	return records, nil
}
