// Package orchestrator runs the query pipeline: parse the question into
// an intent, look up indicator candidates, build provider chains, fan
// out fetches, and normalize the results. Progress is reported on an
// optional event stream; partial failures become warnings rather than
// aborting the whole query.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/macroquery/internal/index"
	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/provider"
	"github.com/seenimoa/macroquery/internal/router"
	"github.com/seenimoa/macroquery/pkg/models"
)

// retryAfterCap bounds how long a rate-limit retry may sleep; upstream
// hints beyond this yield to the next provider instead.
const retryAfterCap = 10 * time.Second

// Config tunes the pipeline.
type Config struct {
	// TotalBudget caps one query end to end, LLM call included.
	TotalBudget time.Duration
	// CandidateLimit is how many index hits to consider per indicator.
	CandidateLimit int
	// MaxConcurrent bounds the fetch fan-out.
	MaxConcurrent int
}

// DefaultConfig returns the production pipeline settings.
func DefaultConfig() Config {
	return Config{
		TotalBudget:    90 * time.Second,
		CandidateLimit: 5,
		MaxConcurrent:  8,
	}
}

// IntentResolver turns a question into a ParsedIntent and vets index
// candidates for semantic fit.
type IntentResolver interface {
	Resolve(ctx context.Context, query string, conversation []string) (*models.ParsedIntent, error)
	ValidateCandidate(ctx context.Context, label string, candidate index.ScoredRecord) bool
}

// Searcher is the indicator-index lookup surface.
type Searcher interface {
	Search(ctx context.Context, query, providerFilter string, limit int) ([]index.ScoredRecord, error)
}

// Orchestrator composes the resolver, index, router, and adapters into
// the query pipeline.
type Orchestrator struct {
	resolver IntentResolver
	idx      Searcher
	router   *router.Router
	reg      *provider.Registry
	cache    *infra.Cache
	breakers *infra.Breakers
	limiters *infra.Limiters
	cfg      Config
	log      zerolog.Logger
}

// New creates an orchestrator. idx, cache, breakers, and limiters may
// each be nil; the pipeline then skips the corresponding concern.
func New(resolver IntentResolver, idx Searcher, rt *router.Router, reg *provider.Registry,
	cache *infra.Cache, breakers *infra.Breakers, limiters *infra.Limiters,
	cfg Config, log zerolog.Logger) *Orchestrator {
	if cfg.TotalBudget <= 0 {
		cfg.TotalBudget = DefaultConfig().TotalBudget
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultConfig().CandidateLimit
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	return &Orchestrator{
		resolver: resolver,
		idx:      idx,
		router:   rt,
		reg:      reg,
		cache:    cache,
		breakers: breakers,
		limiters: limiters,
		cfg:      cfg,
		log:      log.With().Str("component", "orchestrator").Logger(),
	}
}

// Query answers a question without streaming progress.
func (o *Orchestrator) Query(ctx context.Context, query string, conversation []string) (*models.QueryResult, error) {
	return o.run(ctx, query, conversation, emitter{})
}

// Stream answers a question while emitting progress events. The stream
// always terminates with a done event; on failure an error event
// precedes it. The caller owns the channel and closes it after Stream
// returns.
func (o *Orchestrator) Stream(ctx context.Context, query string, conversation []string, events chan<- Event) (*models.QueryResult, error) {
	em := emitter{ch: events}
	result, err := o.run(ctx, query, conversation, em)
	if err != nil {
		em.emit(ctx, Event{
			Type:     EventError,
			Kind:     ErrorKind(err),
			Message:  err.Error(),
			Provider: errorProvider(err),
		})
	}
	em.emit(ctx, Event{Type: EventDone})
	return result, err
}

func (o *Orchestrator) run(ctx context.Context, query string, conversation []string, em emitter) (*models.QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TotalBudget)
	defer cancel()

	intent, err := o.stageParse(ctx, em, query, conversation)
	if err != nil {
		return nil, err
	}

	candidates := o.stageIndexLookup(ctx, em, intent)

	routes, err := o.stageRoute(ctx, em, intent, candidates)
	if err != nil {
		return nil, err
	}

	data, warnings, err := o.stageFetch(ctx, em, intent, routes)
	if err != nil {
		return nil, err
	}

	data, warnings = o.stageNormalize(ctx, em, intent, data, warnings)
	em.emit(ctx, Event{Type: EventStep, Step: StepCacheStore, Status: StatusOK})

	for _, w := range warnings {
		em.emit(ctx, Event{Type: EventWarning, Message: w})
	}
	result := &models.QueryResult{Intent: intent, Data: data, Warnings: warnings}
	em.emit(ctx, Event{Type: EventData, Result: result})
	return result, nil
}

func (o *Orchestrator) stageParse(ctx context.Context, em emitter, query string, conversation []string) (*models.ParsedIntent, error) {
	em.emit(ctx, Event{Type: EventStep, Step: StepParse, Status: StatusStarted})
	start := time.Now()
	intent, err := o.resolver.Resolve(ctx, query, conversation)
	if err != nil {
		em.emit(ctx, Event{Type: EventStep, Step: StepParse, Status: StatusFailed, DurationMS: ms(start)})
		return nil, err
	}
	em.emit(ctx, Event{Type: EventStep, Step: StepParse, Status: StatusOK, DurationMS: ms(start)})
	return intent, nil
}

// stageIndexLookup collects index candidates per indicator label. Index
// trouble degrades to static routing rather than failing the query.
func (o *Orchestrator) stageIndexLookup(ctx context.Context, em emitter, intent *models.ParsedIntent) map[string][]index.ScoredRecord {
	em.emit(ctx, Event{Type: EventStep, Step: StepIndexLookup, Status: StatusStarted})
	start := time.Now()
	candidates := o.lookupCandidates(ctx, intent)
	em.emit(ctx, Event{Type: EventStep, Step: StepIndexLookup, Status: StatusOK, DurationMS: ms(start)})
	return candidates
}

func (o *Orchestrator) lookupCandidates(ctx context.Context, intent *models.ParsedIntent) map[string][]index.ScoredRecord {
	if o.idx == nil {
		return nil
	}
	filter := ""
	if len(intent.Providers) == 1 {
		filter = intent.Providers[0]
	}
	out := make(map[string][]index.ScoredRecord)
	for _, ind := range intent.Indicators {
		if ind.ExplicitCode != "" {
			continue
		}
		hits, err := o.idx.Search(ctx, ind.Label, filter, o.cfg.CandidateLimit)
		if err != nil {
			o.log.Warn().Err(err).Str("indicator", ind.Label).Msg("index lookup failed, falling back to static routing")
			continue
		}
		var kept []index.ScoredRecord
		for _, h := range hits {
			if o.resolver.ValidateCandidate(ctx, ind.Label, h) {
				kept = append(kept, h)
			}
		}
		if len(kept) > 0 {
			out[ind.Label] = kept
		}
	}
	return out
}

func (o *Orchestrator) stageRoute(ctx context.Context, em emitter, intent *models.ParsedIntent, candidates map[string][]index.ScoredRecord) ([]router.Route, error) {
	em.emit(ctx, Event{Type: EventStep, Step: StepRoute, Status: StatusStarted})
	routes, err := o.router.Route(intent, candidates)
	if err != nil {
		em.emit(ctx, Event{Type: EventStep, Step: StepRoute, Status: StatusFailed})
		return nil, err
	}
	em.emit(ctx, Event{Type: EventStep, Step: StepRoute, Status: StatusOK})
	return routes, nil
}

// branch is one fan-out unit: an indicator, its provider chain, and one
// geography (plus the trade partner when set).
type branch struct {
	indicator models.IndicatorRequest
	chain     []string
	codes     map[string]string // provider → index-resolved series code
	geo       models.GeoSelector
	partner   models.GeoSelector
	window    models.TimeRange
	freq      models.Frequency
}

func (b branch) describe() string {
	where := b.geo.Value
	if b.geo.Kind == models.GeoWorld || where == "" {
		where = "world"
	}
	if b.partner != (models.GeoSelector{}) {
		where += " vs " + b.partner.Value
	}
	return fmt.Sprintf("%q for %s", b.indicator.Label, where)
}

// buildBranches expands routes into fetch branches. Trade intents keep
// one branch per indicator: the first geography is the reporter, the
// second the partner. Everything else fans out per geography; adapters
// handle group selectors natively.
func buildBranches(intent *models.ParsedIntent, routes []router.Route) []branch {
	var out []branch
	for _, rt := range routes {
		base := branch{indicator: rt.Indicator, chain: rt.Chain, codes: rt.Codes, window: intent.Time, freq: intent.Frequency}
		if intent.IsTradeQuery {
			b := base
			if len(intent.Geography) > 0 {
				b.geo = intent.Geography[0]
			}
			if len(intent.Geography) > 1 {
				b.partner = intent.Geography[1]
			}
			out = append(out, b)
			continue
		}
		if len(intent.Geography) == 0 {
			out = append(out, base)
			continue
		}
		for _, geo := range intent.Geography {
			b := base
			b.geo = geo
			out = append(out, b)
		}
	}
	return out
}

// stageFetch fans out the branches and collects partial results. The
// query fails only when every branch fails.
func (o *Orchestrator) stageFetch(ctx context.Context, em emitter, intent *models.ParsedIntent, routes []router.Route) ([]models.NormalizedSeries, []string, error) {
	em.emit(ctx, Event{Type: EventStep, Step: StepFetch, Status: StatusStarted})
	start := time.Now()

	branches := buildBranches(intent, routes)
	results := make([][]models.NormalizedSeries, len(branches))
	failures := make([]error, len(branches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxConcurrent)
	for i, br := range branches {
		i, br := i, br
		g.Go(func() error {
			results[i], failures[i] = o.fetchBranch(gctx, em, br)
			return nil
		})
	}
	g.Wait()

	var data []models.NormalizedSeries
	var warnings []string
	var firstErr error
	for i, br := range branches {
		if failures[i] != nil {
			if firstErr == nil {
				firstErr = failures[i]
			}
			warnings = append(warnings, fmt.Sprintf("%s: %v", br.describe(), failures[i]))
			continue
		}
		data = append(data, results[i]...)
	}

	if len(data) == 0 {
		em.emit(ctx, Event{Type: EventStep, Step: StepFetch, Status: StatusFailed, DurationMS: ms(start)})
		if firstErr == nil {
			firstErr = &provider.DataNotAvailableError{Detail: "no data for any requested series"}
		}
		return nil, nil, firstErr
	}
	em.emit(ctx, Event{Type: EventStep, Step: StepFetch, Status: StatusOK, DurationMS: ms(start)})
	return data, warnings, nil
}

// fetchBranch walks the provider chain until one answers. Recoverable
// failures pass to the next link; cancellation aborts the branch.
func (o *Orchestrator) fetchBranch(ctx context.Context, em emitter, br branch) ([]models.NormalizedSeries, error) {
	q := provider.Query{
		Indicator: br.indicator,
		Geo:       br.geo,
		Time:      br.window,
		Frequency: br.freq,
		Partner:   br.partner,
	}

	var lastErr error
	for _, name := range br.chain {
		series, cached, err := o.fetchProvider(ctx, name, pinCode(q, br.codes[name]))
		if err == nil {
			status := StatusOK
			if cached {
				status = StatusCacheHit
			}
			em.emit(ctx, Event{Type: EventStep, Step: StepFetch, Status: status, Provider: name})
			return series, nil
		}
		lastErr = err
		if !provider.Recoverable(err) {
			return nil, err
		}
		o.log.Debug().Err(err).Str("provider", name).Str("branch", br.describe()).Msg("provider failed, trying next")
	}
	if lastErr == nil {
		lastErr = &provider.DataNotAvailableError{Indicator: br.indicator.Label, Detail: "empty provider chain"}
	}
	return nil, lastErr
}

// pinCode sets the index-resolved series code on the outgoing query. A
// code the user typed themselves always wins.
func pinCode(q provider.Query, code string) provider.Query {
	if code == "" || q.Indicator.ExplicitCode != "" {
		return q
	}
	q.Indicator.ExplicitCode = code
	return q
}

// fetchProvider performs one provider fetch through the rate limiter,
// breaker, and cache. The bool reports whether the result came from the
// cache or a coalesced in-flight call rather than a fresh upstream
// request.
func (o *Orchestrator) fetchProvider(ctx context.Context, name string, q provider.Query) ([]models.NormalizedSeries, bool, error) {
	a, err := o.reg.Get(name)
	if err != nil {
		return nil, false, err
	}

	attempt := func(ctx context.Context) (any, error) {
		if o.limiters != nil {
			if err := o.limiters.Wait(ctx, name); err != nil {
				return nil, err
			}
		}
		fetch := func() (any, error) { return a.Fetch(ctx, q) }
		if o.breakers != nil {
			return o.breakers.Do(name, fetch)
		}
		return fetch()
	}

	// One retry when the upstream says how long to back off and the
	// hint fits the budget; otherwise the chain moves on.
	producer := func(ctx context.Context) (any, error) {
		v, err := attempt(ctx)
		var rl *provider.RateLimitError
		if err != nil && errors.As(err, &rl) && rl.RetryAfter > 0 && rl.RetryAfter <= retryAfterCap {
			select {
			case <-time.After(rl.RetryAfter):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			v, err = attempt(ctx)
		}
		return v, err
	}

	var (
		v      any
		cached bool
	)
	if o.cache != nil {
		v, cached, err = o.cache.GetOrCompute(ctx, cacheKey(name, q), o.ttlFor(name, q), producer)
	} else {
		v, err = producer(ctx)
	}
	if err != nil {
		return nil, false, err
	}
	// Cached values are shared across requests and normalization
	// mutates, so every caller gets its own copy.
	return cloneSeries(v.([]models.NormalizedSeries)), cached, nil
}

func cloneSeries(in []models.NormalizedSeries) []models.NormalizedSeries {
	out := make([]models.NormalizedSeries, len(in))
	for i, s := range in {
		out[i] = s
		out[i].Points = append([]models.NormalizedPoint(nil), s.Points...)
	}
	return out
}

// cacheKey fingerprints the logical fetch so identical requests collapse
// regardless of which API key or parameter order an adapter would use.
func cacheKey(name string, q provider.Query) string {
	v := url.Values{}
	v.Set("indicator", strings.ToLower(q.Indicator.Label))
	if q.Indicator.ExplicitCode != "" {
		v.Set("code", q.Indicator.ExplicitCode)
	}
	if len(q.Indicator.Qualifiers) > 0 {
		quals := make([]string, len(q.Indicator.Qualifiers))
		for i, qu := range q.Indicator.Qualifiers {
			quals[i] = string(qu)
		}
		sort.Strings(quals)
		v.Set("qualifiers", strings.Join(quals, ","))
	}
	v.Set("geo", string(q.Geo.Kind)+":"+q.Geo.Value)
	if q.Partner != (models.GeoSelector{}) {
		v.Set("partner", string(q.Partner.Kind)+":"+q.Partner.Value)
	}
	v.Set("start", q.Time.Start)
	v.Set("end", q.Time.End)
	if q.Time.Relative != nil {
		v.Set("relative", string(q.Time.Relative.Kind)+":"+strconv.Itoa(q.Time.Relative.N)+":"+strconv.Itoa(q.Time.Relative.Year))
	}
	v.Set("freq", string(q.Frequency))
	return "fetch:" + infra.Fingerprint("macroquery://"+name+"/fetch?"+v.Encode())
}

// ttlFor picks the cache lifetime before the series cadence is known:
// intraday for live spot quotes, otherwise by the requested or likely
// frequency.
func (o *Orchestrator) ttlFor(name string, q provider.Query) time.Duration {
	if q.Time.LatestOnly() && (name == provider.CoinGecko || name == provider.ExchangeRate) {
		return infra.TTLIntraday
	}
	if q.Frequency != "" {
		return infra.TTLFor(q.Frequency)
	}
	if name == provider.CoinGecko {
		return infra.TTLFor(models.FreqDaily)
	}
	return infra.TTLFor(models.FreqMonthly)
}

// stageNormalize sorts every series and applies frequency conversion
// when the intent asked for a coarser cadence than a provider returned.
func (o *Orchestrator) stageNormalize(ctx context.Context, em emitter, intent *models.ParsedIntent, data []models.NormalizedSeries, warnings []string) ([]models.NormalizedSeries, []string) {
	em.emit(ctx, Event{Type: EventStep, Step: StepNormalize, Status: StatusStarted})
	for i := range data {
		if data[i].SortPoints() {
			warnings = append(warnings, fmt.Sprintf("%s %s: duplicate dates collapsed, later value kept",
				data[i].Metadata.SourceProvider, data[i].Metadata.IndicatorCode))
		}
		if intent.Frequency != "" {
			convertFrequency(&data[i], intent.Frequency)
		}
	}
	em.emit(ctx, Event{Type: EventStep, Step: StepNormalize, Status: StatusOK})
	return data, warnings
}

func ms(start time.Time) int64 { return time.Since(start).Milliseconds() }

// ErrorKind maps a pipeline error onto the stable kind tags used in
// error events and API responses.
func ErrorKind(err error) string {
	var (
		dna *provider.DataNotAvailableError
		unk *provider.IndicatorUnknownError
		up  *provider.UpstreamError
		rl  *provider.RateLimitError
		ne  *provider.NetworkError
		te  *provider.TimeoutError
		co  *provider.CircuitOpenError
	)
	switch {
	case errors.As(err, &dna):
		return "data_not_available"
	case errors.As(err, &unk):
		return "indicator_unknown"
	case errors.As(err, &rl):
		return "rate_limited"
	case errors.As(err, &co):
		return "circuit_open"
	case errors.As(err, &te), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &ne):
		return "network"
	case errors.As(err, &up):
		return "upstream"
	}
	return "internal"
}

func errorProvider(err error) string {
	var (
		dna *provider.DataNotAvailableError
		unk *provider.IndicatorUnknownError
		up  *provider.UpstreamError
		rl  *provider.RateLimitError
		ne  *provider.NetworkError
		te  *provider.TimeoutError
		co  *provider.CircuitOpenError
	)
	switch {
	case errors.As(err, &dna):
		return dna.Provider
	case errors.As(err, &unk):
		return unk.Provider
	case errors.As(err, &rl):
		return rl.Provider
	case errors.As(err, &co):
		return co.Provider
	case errors.As(err, &te):
		return te.Provider
	case errors.As(err, &ne):
		return ne.Provider
	case errors.As(err, &up):
		return up.Provider
	}
	return ""
}
