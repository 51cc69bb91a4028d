// MacroQuery — natural-language queries over public economic data.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/seenimoa/macroquery/api"
	"github.com/seenimoa/macroquery/internal/config"
	"github.com/seenimoa/macroquery/internal/index"
	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/intent"
	"github.com/seenimoa/macroquery/internal/llm"
	"github.com/seenimoa/macroquery/internal/orchestrator"
	"github.com/seenimoa/macroquery/internal/provider"
	"github.com/seenimoa/macroquery/internal/providers"
	"github.com/seenimoa/macroquery/internal/router"
	"github.com/seenimoa/macroquery/pkg/models"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "macroquery",
	Short: "MacroQuery — ask economic questions in plain language",
	Long: `MacroQuery answers natural-language questions about economic data
by routing them across FRED, World Bank, IMF, Eurostat, OECD, BIS,
UN Comtrade, Statistics Canada, ExchangeRate-API, and CoinGecko,
and returning normalized, provenance-tagged time series.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Wiring ---

func buildLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.Logging.Format == "json" {
		log = zerolog.New(os.Stderr)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return log.Level(level).With().Timestamp().Logger()
}

// buildLLM assembles the backend failover order: the configured primary
// first, then every other backend with a usable credential.
func buildLLM(log zerolog.Logger) (*llm.Router, error) {
	available := map[string]func() (llm.Provider, error){
		"openai": func() (llm.Provider, error) {
			if cfg.LLM.OpenAIKey == "" {
				return nil, nil
			}
			return llm.NewOpenAI(llm.Config{APIKey: cfg.LLM.OpenAIKey, Model: cfg.LLM.Model})
		},
		"anthropic": func() (llm.Provider, error) {
			if cfg.LLM.AnthropicKey == "" {
				return nil, nil
			}
			return llm.NewAnthropic(llm.Config{APIKey: cfg.LLM.AnthropicKey, Model: cfg.LLM.Model})
		},
		"ollama": func() (llm.Provider, error) {
			return llm.NewOllama(llm.Config{BaseURL: cfg.LLM.OllamaURL, Model: cfg.LLM.Model}), nil
		},
	}

	order := []string{cfg.LLM.Primary}
	for _, name := range []string{"openai", "anthropic", "ollama"} {
		if name != cfg.LLM.Primary {
			order = append(order, name)
		}
	}

	var backends []llm.Provider
	for _, name := range order {
		build, ok := available[name]
		if !ok {
			continue
		}
		p, err := build()
		if err != nil {
			return nil, fmt.Errorf("llm backend %s: %w", name, err)
		}
		if p != nil {
			backends = append(backends, p)
		}
	}
	return llm.NewRouter(log, backends...)
}

// pipeline holds the assembled query stack shared by serve and query.
type pipeline struct {
	orch     *orchestrator.Orchestrator
	reg      *provider.Registry
	cache    *infra.Cache
	breakers *infra.Breakers
	idx      *index.Index
}

func buildPipeline(log zerolog.Logger) (*pipeline, error) {
	llmRouter, err := buildLLM(log)
	if err != nil {
		return nil, err
	}

	poolCfg := infra.DefaultPoolConfig()
	if cfg.Pool.RequestTimeoutSec > 0 {
		poolCfg.RequestTimeout = cfg.Pool.RequestTimeout()
	}
	if cfg.Pool.MaxIdleConns > 0 {
		poolCfg.MaxIdleConns = cfg.Pool.MaxIdleConns
	}
	if cfg.Pool.MaxPerHost > 0 {
		poolCfg.MaxIdleConnsPerHost = cfg.Pool.MaxPerHost
	}
	pool := infra.NewPool(poolCfg, log)

	cache := infra.NewCache(cfg.Cache.MaxEntries, cfg.Cache.SweepInterval())
	breakers := infra.NewBreakers(infra.BreakerConfig{
		FailureThreshold: uint32(cfg.Breaker.FailureThreshold),
		OpenTimeout:      cfg.Breaker.OpenTimeout(),
		HalfOpenMax:      uint32(cfg.Breaker.HalfOpenMax),
	}, log)
	limiters := infra.NewLimiters(cfg.Limits.PerSecond, cfg.Limits.Burst, cfg.Limits.Overrides)

	// The indicator index is optional: routing degrades to strong
	// bindings and the static fallback map without it.
	var idx *index.Index
	if _, statErr := os.Stat(cfg.Index.Path); statErr == nil {
		idx, err = index.Open(cfg.Index.Path, log)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.Index.Path).Msg("indicator index unavailable")
			idx = nil
		}
	} else {
		log.Info().Str("path", cfg.Index.Path).Msg("no indicator index, run `macroquery index build`")
	}

	resolver := intent.NewResolver(llmRouter, cache, log)

	opts := providers.Options{Flows: resolver}
	if idx != nil {
		opts.Products = idx
	}
	reg := provider.NewRegistry()
	providers.Register(reg, pool, providers.Keys{
		FRED:         cfg.Providers.FREDKey,
		Comtrade:     cfg.Providers.ComtradeKey,
		ExchangeRate: cfg.Providers.ExchangeRateKey,
		CoinGecko:    cfg.Providers.CoinGeckoKey,
	}, opts, log)

	rt := router.New(reg, breakers, router.Config{
		ScarceRequiresExplicit: cfg.Router.ScarceRequiresExplicit,
	}, log)

	var searcher orchestrator.Searcher
	if idx != nil {
		searcher = idx
	}
	orch := orchestrator.New(resolver, searcher, rt, reg, cache, breakers, limiters, orchestrator.Config{
		TotalBudget:    cfg.Orchestrator.TotalBudget(),
		CandidateLimit: cfg.Orchestrator.CandidateLimit,
		MaxConcurrent:  cfg.Orchestrator.MaxConcurrent,
	}, log)

	return &pipeline{orch: orch, reg: reg, cache: cache, breakers: breakers, idx: idx}, nil
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("MacroQuery %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := buildLogger()
		p, err := buildPipeline(log)
		if err != nil {
			return err
		}
		defer p.cache.Close()
		if p.idx != nil {
			defer p.idx.Close()
		}

		srv := api.NewServer(cfg, api.Deps{
			Orchestrator: p.orch,
			Registry:     p.reg,
			Cache:        p.cache,
			Breakers:     p.breakers,
		}, log)

		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		fmt.Printf("🌐 MacroQuery API listening on %s\n", addr)
		return srv.ListenAndServe(addr)
	},
}

// --- Query Command (one-shot) ---

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Answer one natural-language question and print the series",
	Long: `Run a single query through the full pipeline and print the result.

Examples:
  macroquery query "unemployment rate in Germany over the last 5 years"
  macroquery query "GDP of the G7, annual, since 2015"
  macroquery query --json "canadian crude oil exports to the US"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := buildLogger()
		p, err := buildPipeline(log)
		if err != nil {
			return err
		}
		defer p.cache.Close()
		if p.idx != nil {
			defer p.idx.Close()
		}

		question := strings.Join(args, " ")
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Orchestrator.TotalBudget())
		defer cancel()

		result, err := p.orch.Query(ctx, question, nil)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		printResult(result)
		return nil
	},
}

func init() {
	queryCmd.Flags().Bool("json", false, "print the full result as JSON")
}

// --- Index Command ---

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the indicator-discovery index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a new index snapshot from a provider catalog file",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, _ := cmd.Flags().GetString("catalog")
		if catalog == "" {
			return fmt.Errorf("--catalog is required")
		}
		n, err := index.Build(cmd.Context(), cfg.Index.Path, catalog)
		if err != nil {
			return err
		}
		fmt.Printf("✅ indexed %d indicators into %s\n", n, cfg.Index.Path)
		return nil
	},
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print index record counts per provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := buildLogger()
		ix, err := index.Open(cfg.Index.Path, log)
		if err != nil {
			return err
		}
		defer ix.Close()

		stats, err := ix.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Index: %s (generation %d)\n", cfg.Index.Path, ix.Generation())
		for name, count := range stats {
			fmt.Printf("  %-14s %d\n", name, count)
		}
		return nil
	},
}

func init() {
	indexBuildCmd.Flags().String("catalog", "", "path to the harvested catalog JSON")
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexStatsCmd)
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  MacroQuery — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:      %s (%s)\n", version, commit)
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    LLM Backend:   %s (model: %s)\n", cfg.LLM.Primary, cfg.LLM.Model)
		fmt.Printf("    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Printf("    Index:         %s\n", cfg.Index.Path)
		fmt.Printf("    Cache:         %d entries max\n", cfg.Cache.MaxEntries)
		fmt.Println()

		fmt.Println("  API Keys:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-25s %s\n", k.Name+":", status)
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}

// printResult renders series as small tables with provenance footers.
func printResult(result *models.QueryResult) {
	for i := range result.Data {
		s := &result.Data[i]
		fmt.Printf("\n%s — %s (%s)\n", s.Metadata.IndicatorDisplay, s.Metadata.CountryOrRegion, s.Metadata.SourceProvider)
		if s.Metadata.Unit != "" {
			fmt.Printf("Unit: %s", s.Metadata.Unit)
			if s.Metadata.Aggregation != "" {
				fmt.Printf(" (aggregated: %s)", s.Metadata.Aggregation)
			}
			fmt.Println()
		}
		for _, pt := range s.Points {
			if pt.Value == nil {
				fmt.Printf("  %-12s —\n", pt.Date)
				continue
			}
			fmt.Printf("  %-12s %g\n", pt.Date, *pt.Value)
		}
		fmt.Printf("Source: %s\n", s.Metadata.APIURLEcho)
	}
	for _, w := range result.Warnings {
		fmt.Printf("\n⚠️  %s\n", w)
	}
}
