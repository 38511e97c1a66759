package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"iaicore/adapters/api"
	jsonlsink "iaicore/adapters/audit/jsonl"
	pgsink "iaicore/adapters/audit/postgres"
	sqlitesink "iaicore/adapters/audit/sqlite"
	"iaicore/adapters/excel"
	"iaicore/adapters/llm"
	"iaicore/domain/audit"
	"iaicore/domain/core"
	"iaicore/domain/hypothesis"
	"iaicore/domain/invariant"
	"iaicore/internal"
	"iaicore/internal/authority"
	"iaicore/internal/challenger"
	"iaicore/internal/config"
	apperrors "iaicore/internal/errors"
	"iaicore/internal/evaluator"
	"iaicore/internal/orchestrator"
	"iaicore/internal/registry"
	"iaicore/internal/report"
	"iaicore/internal/testkit"
	"iaicore/ports"
)

const version = "0.1.0"

func main() {
	// Best effort: a missing .env is the normal case in production.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "iaicore",
		Short: "Governance lifecycle engine: evaluate, challenge, authorize, audit",
	}
	rootCmd.AddCommand(
		newRunCmd(),
		newReplayCmd(),
		newVerifyCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var scenarioPath string
	var resumeRunID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the governance loop for a scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			scenario, err := config.LoadScenario(scenarioPath)
			if err != nil {
				return apperrors.Wrap(err, "load scenario")
			}
			cfg.Authority.Strictness = scenario.Strictness

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sink, closeSink, err := openSink(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeSink()

			runID := core.RunID(core.NewID())
			if resumeRunID != "" {
				runID = core.RunID(resumeRunID)
			}

			orch, err := buildOrchestrator(runID, cfg, scenario, sink)
			if err != nil {
				return err
			}
			if resumeRunID != "" {
				if err := orch.Resume(ctx); err != nil {
					return err
				}
			}

			fmt.Printf("run %s: scenario %q, %d generations, strictness %s\n",
				runID, scenario.Name, scenario.Generations, scenario.Strictness)

			if err := orch.Run(ctx); err != nil {
				return err
			}

			records, err := sink.List(ctx, runID)
			if err != nil {
				return err
			}
			fmt.Println(report.RunSummary(runID, records))
			return nil
		},
	}
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "YAML scenario file (built-in bandit demo when omitted)")
	cmd.Flags().StringVar(&resumeRunID, "resume", "", "resume an existing run from its audit history")
	return cmd
}

func newReplayCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Reconstruct the invariant history of a run from its audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sink, closeSink, err := openSink(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeSink()

			records, err := sink.List(ctx, core.RunID(runID))
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("run %s has no audit history", runID)
			}

			bootstrap := invariant.Bootstrap(records[0].ResultingSet.PrimaryMetric, nil)
			final, err := audit.Replay(records, bootstrap)
			if err != nil {
				return err
			}

			for _, rec := range records {
				marker := "held"
				if rec.ResultingSet.Version != rec.ActiveVersion {
					marker = fmt.Sprintf("revised to v%d", rec.ResultingSet.Version)
				}
				fmt.Printf("generation %d: v%d %s\n", rec.Generation, rec.ActiveVersion, marker)
			}
			out, err := json.MarshalIndent(final, "", "  ")
			if err != nil {
				return err
			}
			fmt.Printf("final invariant set:\n%s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run identifier")
	cmd.MarkFlagRequired("run")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the hash chain integrity of a run's audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sink, closeSink, err := openSink(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeSink()

			records, err := sink.List(ctx, core.RunID(runID))
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("run %s has no audit history", runID)
			}
			if err := audit.VerifyChain(records); err != nil {
				return err
			}
			fmt.Printf("run %s: %d records, chain intact\n", runID, len(records))
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run identifier")
	cmd.MarkFlagRequired("run")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only audit inspection API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sink, closeSink, err := openSink(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeSink()

			// Ops endpoints live on their own listener so probes never
			// contend with inspection traffic.
			ops := chi.NewRouter()
			ops.Use(middleware.Recoverer)
			ops.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			ops.Get("/version", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{"version": version})
			})
			go func() {
				if err := http.ListenAndServe(":"+cfg.Server.OpsPort, ops); err != nil {
					internal.DefaultLogger.Error("ops listener: %v", err)
				}
			}()

			server := api.NewServer(sink, cfg.Server.GinMode)
			internal.DefaultLogger.Info("inspection API on :%s, ops on :%s", cfg.Server.Port, cfg.Server.OpsPort)
			return server.Run(":" + cfg.Server.Port)
		},
	}
}

// openSink builds the configured audit backend.
func openSink(ctx context.Context, cfg *config.Config) (ports.AuditSinkPort, func() error, error) {
	switch cfg.Audit.Backend {
	case "sqlite":
		s, err := sqlitesink.Open(ctx, cfg.Audit.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := pgsink.Open(ctx, cfg.Audit.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := jsonlsink.Open(cfg.Audit.JSONLPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
}

// buildOrchestrator assembles the engine for one scenario.
func buildOrchestrator(runID core.RunID, cfg *config.Config, scenario config.Scenario, sink ports.AuditSinkPort) (*orchestrator.Orchestrator, error) {
	reg := registry.New()
	for _, sh := range scenario.Hypotheses {
		h := hypothesis.New(sh.Name, sh.Description, paramsFromMap(sh.Params), 0)
		if err := reg.Register(h); err != nil {
			return nil, err
		}
	}

	var datasets ports.DatasetPort
	if scenario.Dataset.Path != "" {
		datasets = excel.NewProvider(scenario.Dataset.Path)
	} else {
		datasets = &testkit.StaticDataset{
			Dataset: testkit.GenerateOutcomes(scenario.Seed, scenario.Dataset.Records, scenario.Dataset.Mean, scenario.Dataset.Noise),
		}
	}

	optimizer := &testkit.BanditOptimizer{
		Steps:     scenario.Optimizer.Steps,
		ShiftStep: scenario.Optimizer.ShiftStep,
		Epsilon:   scenario.Optimizer.Epsilon,
		Seed:      scenario.Seed,
	}

	backend, err := buildAuthority(cfg)
	if err != nil {
		return nil, err
	}

	deps := orchestrator.Deps{
		Optimizer:  optimizer,
		Dataset:    datasets,
		Evaluator:  evaluator.New(cfg.Evaluator),
		Challenger: challenger.New(cfg.Challenger),
		Authority:  authority.NewFailsafe(backend, cfg.Authority.ReviewTimeout),
		Registry:   reg,
		Sink:       sink,
		Logger:     internal.DefaultLogger,
	}
	orchCfg := config.OrchestratorConfig{
		MaxGenerations:  scenario.Generations,
		EvalParallelism: cfg.Orchestrator.EvalParallelism,
	}
	bootstrap := invariant.Bootstrap(scenario.PrimaryMetric, scenario.Thresholds)
	return orchestrator.New(runID, bootstrap, deps, orchCfg, cfg.Evaluator.Timeout), nil
}

// buildAuthority picks the review backend: the external LLM reviewer when
// credentials are configured, the rule table otherwise.
func buildAuthority(cfg *config.Config) (ports.AuthorityPort, error) {
	if cfg.Authority.LLMAPIKey != "" {
		client, err := llm.NewClient(llm.Config{
			APIKey:  cfg.Authority.LLMAPIKey,
			BaseURL: cfg.Authority.LLMBaseURL,
			Model:   cfg.Authority.LLMModel,
			Timeout: cfg.Authority.ReviewTimeout,
		})
		if err != nil {
			return nil, err
		}
		return llm.NewAuthority(client, cfg.Authority.LLMModel), nil
	}
	return authority.New(cfg.Authority, cfg.Evaluator.MinSampleSize), nil
}

func paramsFromMap(in map[string]float64) hypothesis.Params {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)
	params := make(hypothesis.Params, 0, len(names))
	for _, name := range names {
		params = append(params, hypothesis.Param{Name: name, Value: in[name]})
	}
	return params
}
