package main

import (
	"context"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/zakupki-realty/internal/config"
	"github.com/sells-group/zakupki-realty/internal/extract"
	"github.com/sells-group/zakupki-realty/internal/fetcher"
	"github.com/sells-group/zakupki-realty/internal/gis"
	"github.com/sells-group/zakupki-realty/internal/listing"
	"github.com/sells-group/zakupki-realty/internal/pipeline"
	"github.com/sells-group/zakupki-realty/internal/portal"
	"github.com/sells-group/zakupki-realty/internal/resilience"
	"github.com/sells-group/zakupki-realty/internal/scrape"
	"github.com/sells-group/zakupki-realty/internal/store"
	"github.com/sells-group/zakupki-realty/pkg/anthropic"
	"github.com/sells-group/zakupki-realty/pkg/jina"
	"github.com/sells-group/zakupki-realty/pkg/openrouter"
)

// pipelineEnv holds the store and the pipeline built on it.
type pipelineEnv struct {
	Store    *store.SQLiteStore
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured SQLite database and applies migrations.
func initStore(ctx context.Context) (*store.SQLiteStore, error) {
	opts := store.DefaultOptions()
	if cfg.Store.BusyTimeoutMS > 0 {
		opts.BusyTimeout = time.Duration(cfg.Store.BusyTimeoutMS) * time.Millisecond
	}
	if r := cfg.Store.Retry; r.MaxAttempts > 0 {
		opts.Retry.MaxAttempts = r.MaxAttempts
		if r.InitialBackoffMS > 0 {
			opts.Retry.InitialBackoff = time.Duration(r.InitialBackoffMS) * time.Millisecond
		}
		if r.MaxBackoffMS > 0 {
			opts.Retry.MaxBackoff = time.Duration(r.MaxBackoffMS) * time.Millisecond
		}
	}

	st, err := store.NewSQLite(cfg.Store.Path, opts)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initPipeline validates the config for mode, opens the store and wires
// every collaborator. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	src, err := newPortal(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	collector, err := newCollector(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	p := pipeline.New(st, src, newExtractor(cfg), newURLBuilder(cfg), collector, pipeline.Options{
		MaxPages: cfg.Portal.MaxPages,
		TopN:     cfg.Listings.TopN,
	})

	zap.L().Info("pipeline ready",
		zap.String("store", cfg.Store.Path),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.ExtractModel()),
	)
	return &pipelineEnv{Store: st, Pipeline: p}, nil
}

// newPortal builds the registry client on a rate-limited HTTP fetcher.
func newPortal(c *config.Config) (*portal.Client, error) {
	host := hostOf(c.Portal.BaseURL)
	f, err := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: c.Portal.UserAgent,
		Timeout:   time.Duration(c.Portal.TimeoutSecs) * time.Second,
		HostRates: map[string]float64{host: c.Portal.RatePerSec},
		Headers: map[string]string{
			"Accept-Language": "ru-RU,ru;q=0.9",
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "init portal fetcher")
	}
	return portal.New(f, portal.Options{
		BaseURL:          c.Portal.BaseURL,
		OKPD2Codes:       c.Portal.OKPD2Codes,
		ExcludedKeywords: c.Portal.ExcludedKeywords,
		DocsDir:          c.Portal.DocsDir,
		DocWorkers:       c.Portal.DocWorkers,
	}), nil
}

// newExtractor picks the completer for the configured provider and guards
// it with a circuit breaker.
func newExtractor(c *config.Config) *extract.Extractor {
	settings := extract.ModelSettings{
		Model:       c.ExtractModel(),
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
	}

	var llm extract.Completer
	if c.LLM.Provider == config.ProviderAnthropic {
		llm = extract.NewAnthropicCompleter(anthropic.NewClient(c.Anthropic.Key), settings)
	} else {
		llm = extract.NewOpenRouterCompleter(
			openrouter.NewClient(c.OpenRouter.Key, openrouter.WithBaseURL(c.OpenRouter.BaseURL)),
			settings,
		)
	}

	breaker := resilience.NewCircuitBreaker(resilience.FromCircuitConfig(
		"llm", c.LLM.Breaker.FailureThreshold, c.LLM.Breaker.ResetTimeoutSecs,
	))
	return extract.New(llm, breaker, resilience.DefaultRetryConfig())
}

func newURLBuilder(c *config.Config) *gis.Builder {
	opts := gis.DefaultURLOptions()
	if c.GIS.Zoom > 0 {
		opts.Zoom = c.GIS.Zoom
	}
	return gis.NewBuilder(gis.NewLocator(c.GIS.CoordinatesCSV), opts)
}

// newCollector builds the listing collector over a local-then-reader scrape
// chain, one page per rate_limit_secs.
func newCollector(c *config.Config) (*listing.Collector, error) {
	pageTimeout := time.Duration(c.Listings.PageTimeoutSecs) * time.Second
	local, err := scrape.NewLocalScraper(scrape.LocalOptions{
		Proxy:   c.Listings.Proxy,
		Timeout: pageTimeout,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init local scraper")
	}
	reader := scrape.NewJinaAdapter(
		jina.NewClient(c.Jina.Key, jina.WithBaseURL(c.Jina.BaseURL)),
		scrape.JinaOptions{
			PageTimeout: pageTimeout,
			Proxy:       c.Listings.Proxy,
		},
	)

	chain := scrape.NewChain(local, reader)
	if c.Listings.RateLimitSecs > 0 {
		every := time.Duration(c.Listings.RateLimitSecs) * time.Second
		chain = chain.WithRateLimit(rate.NewLimiter(rate.Every(every), 1))
	}
	return listing.New(chain, listing.Options{Retries: c.Listings.Retries}), nil
}

// hostOf returns the host part of a base URL, or "" when it does not parse.
func hostOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return u.Host
}
