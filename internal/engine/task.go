package engine

import (
	"context"
	"sync"
	"time"

	"github.com/leon4s4/httpsource/internal/auth"
	"github.com/leon4s4/httpsource/internal/chaining"
	"github.com/leon4s4/httpsource/internal/config"
	"github.com/leon4s4/httpsource/internal/logger"
	"github.com/leon4s4/httpsource/internal/metrics"
	"github.com/leon4s4/httpsource/internal/offset"
	"github.com/leon4s4/httpsource/internal/sink"
)

// DefaultShutdownTimeout bounds Stop when the caller's context carries no
// deadline of its own (SPEC_FULL.md §10: graceful shutdown).
const DefaultShutdownTimeout = 30 * time.Second

// Task owns every endpoint configured for one TaskConfig and the pull-style
// scheduler that polls them, grounded on the teacher's StartHeartbeat
// ticker-per-resource pattern (core/discovery.go) generalized to one ticker
// goroutine per endpoint instead of one per registered service.
type Task struct {
	cfg *config.TaskConfig

	endpoints map[string]*Endpoint
	order     []string

	auth     auth.Provider
	oauth2   *auth.OAuth2Provider
	chaining *chaining.Coordinator

	sink    sink.RecordSink
	offsets sink.OffsetStore
	clock   sink.Clock
	logger  logger.Logger
	metrics *metrics.Collector

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Options bundles the external interfaces a Task is wired to (spec.md §7).
type Options struct {
	Sink    sink.RecordSink
	Offsets sink.OffsetStore
	Clock   sink.Clock
	Logger  logger.Logger
	Metrics *metrics.Collector
}

// New builds a Task from a validated TaskConfig, constructing one Endpoint
// (offset strategy + breaker + HTTP client) per configured api{N} block, the
// shared auth provider, and the chaining coordinator when any endpoint
// declares a parent.
func New(cfg *config.TaskConfig, opts Options) (*Task, error) {
	if opts.Sink == nil {
		opts.Sink = sink.NewLoggingSink(opts.Logger)
	}
	if opts.Offsets == nil {
		opts.Offsets = sink.NewMemoryOffsetStore()
	}
	if opts.Clock == nil {
		opts.Clock = sink.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDefaultLogger()
	}

	t := &Task{
		cfg:       cfg,
		endpoints: make(map[string]*Endpoint, len(cfg.Endpoints)),
		sink:      opts.Sink,
		offsets:   opts.Offsets,
		clock:     opts.Clock,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}

	for _, ep := range cfg.Endpoints {
		runtime, err := newEndpoint(ep, cfg.Proxy, t.breakerMetrics())
		if err != nil {
			return nil, err
		}
		// Seed the offset strategy with any durably persisted cursor before
		// the first poll, preferring it over the endpoint's InitialOffset.
		// Keyed by the strategy's PartitionKey (spec.md §4.2/§6's stable
		// {"url": ...} shape), not the bare endpoint id, so a cursor only
		// resumes when the endpoint's URL still matches what produced it.
		partitionKey := runtime.Offset.PartitionKey(cfg.BaseURL)
		if cursor, ok, err := opts.Offsets.Load(context.Background(), partitionKey); err == nil && ok {
			runtime.Offset.Reset(cursor)
		}
		t.endpoints[ep.ID] = runtime
		t.order = append(t.order, ep.ID)
	}

	if len(cfg.ChainingParentOf) > 0 {
		t.chaining = chaining.New(cfg.ChainingParentOf)
	}

	t.auth = buildAuthProvider(cfg.Auth, opts.Logger, t.metrics)
	if cfg.Auth.Type == config.AuthOAuth2 {
		if p, ok := t.auth.(*auth.OAuth2Provider); ok {
			t.oauth2 = p
		}
	}

	return t, nil
}

func (t *Task) breakerMetrics() *metrics.Collector {
	return t.metrics
}

// buildAuthProvider selects the auth.Provider matching cfg.Type, per
// spec.md §4.6.
func buildAuthProvider(cfg config.AuthConfig, log logger.Logger, m *metrics.Collector) auth.Provider {
	switch cfg.Type {
	case config.AuthBasic:
		return auth.BasicProvider{Username: cfg.BasicUsername, Password: cfg.BasicPassword}
	case config.AuthBearer:
		return auth.BearerProvider{Token: cfg.BearerToken}
	case config.AuthAPIKey:
		loc := auth.APIKeyHeader
		if cfg.APIKeyLocation == config.APIKeyQuery {
			loc = auth.APIKeyQuery
		}
		return auth.APIKeyProvider{Name: cfg.APIKeyName, Value: cfg.APIKeyValue, Location: loc}
	case config.AuthOAuth2:
		mode := auth.ClientAuthHeader
		if cfg.OAuth2.ClientAuthMode == config.OAuth2ClientAuthBody {
			mode = auth.ClientAuthBody
		}
		var recorder auth.MetricsRecorder
		if m != nil {
			recorder = m
		}
		return auth.NewOAuth2Provider(auth.OAuth2Config{
			TokenURL:            cfg.OAuth2.TokenURL,
			ClientID:            cfg.OAuth2.ClientID,
			ClientSecret:        cfg.OAuth2.ClientSecret,
			ClientAuthMode:      mode,
			TokenPropertyName:   cfg.OAuth2.TokenPropertyName,
			RefreshIntervalMins: cfg.OAuth2.RefreshIntervalMins,
		}, log, recorder)
	default:
		return auth.NoneProvider{}
	}
}

// Run starts one scheduler goroutine per endpoint and, when the task uses
// OAuth2, the background token refresher; it returns immediately. Callers
// stop the task via Stop.
func (t *Task) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	if t.oauth2 != nil {
		if err := t.oauth2.RefreshNow(ctx); err != nil {
			t.logger.Warn("initial oauth2 token fetch failed", map[string]interface{}{"error": err.Error()})
		}
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.oauth2.Start(ctx)
		}()
	}

	for _, id := range t.order {
		ep := t.endpoints[id]
		t.wg.Add(1)
		go func(ep *Endpoint) {
			defer t.wg.Done()
			t.schedule(ctx, ep)
		}(ep)
	}
}

// schedule drives one endpoint's ticker loop, grounded on the teacher's
// StartHeartbeat loop: select on ctx.Done() and the ticker channel, with an
// immediate re-poll loop (fetchAnotherPage) spliced in for pagination modes
// that need to drain multiple pages before idling until the next tick.
func (t *Task) schedule(ctx context.Context, ep *Endpoint) {
	interval := t.intervalFor(ep)
	ticker := t.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			t.drain(ctx, ep)
		}
	}
}

// intervalFor returns the scheduler tick for ep. For an OData endpoint it
// returns ODataDeltaLinkIntervalMs when the strategy is in its deltaLink
// phase and that interval is set, else the standard interval; ODataNextLinkIntervalMs is not used,
// since drain fetches nextLink pages back to back within one tick.
// schedule calls it once, when the endpoint's ticker is created, so a later
// phase change does not alter the tick.
func (t *Task) intervalFor(ep *Endpoint) time.Duration {
	base := time.Duration(ep.Config.IntervalMs) * time.Millisecond
	if ep.Config.OffsetMode != config.OffsetODataPagination {
		return base
	}
	odata, ok := ep.Offset.(*offset.ODataPagination)
	if !ok {
		return base
	}
	if odata.IsDeltaPhase() && ep.Config.ODataDeltaLinkIntervalMs > 0 {
		return time.Duration(ep.Config.ODataDeltaLinkIntervalMs) * time.Millisecond
	}
	return base
}

// drain polls ep once, and keeps polling immediately while poll reports
// more pages are available, per spec.md §4.2's pagination-exhaustion
// invariant.
func (t *Task) drain(ctx context.Context, ep *Endpoint) {
	for {
		more, err := t.poll(ctx, ep)
		if err != nil {
			t.logger.Error("poll failed", map[string]interface{}{
				"endpoint": ep.Config.ID,
				"error":    err.Error(),
			})
			if t.cfg.BehaviorOnError == config.BehaviorFail {
				return
			}
		}
		if !more {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Stop cancels the scheduler and waits for every goroutine to exit, bounded
// by ctx's deadline or DefaultShutdownTimeout when ctx carries none.
func (t *Task) Stop(ctx context.Context) error {
	if t.cancel == nil {
		return nil
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultShutdownTimeout)
		defer cancel()
	}

	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
