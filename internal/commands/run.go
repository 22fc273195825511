// Copyright 2026 The Cascade Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cascadehq/cascade/internal/config"
	"github.com/cascadehq/cascade/internal/log"
	"github.com/cascadehq/cascade/internal/tracing"
	"github.com/cascadehq/cascade/internal/tracing/storage"
	"github.com/cascadehq/cascade/pkg/pipeline"
	"github.com/cascadehq/cascade/pkg/pipeline/guard"
	"github.com/cascadehq/cascade/pkg/pipeline/perf"
	"github.com/cascadehq/cascade/pkg/pipeline/trace"
)

// echoExecutor is the built-in task executor for CLI runs: it prints
// each task and returns its interpolated parameters as the result.
type echoExecutor struct {
	out io.Writer
}

func (e echoExecutor) ExecuteStep(ctx context.Context, step *pipeline.StepDefinition, params map[string]interface{}) (interface{}, error) {
	fmt.Fprintf(e.out, "▶ %s (%s)\n", step.ID, step.Action)
	return params, nil
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	var (
		cfgPath     string
		entry       string
		inputs      []string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run <definition.yaml> [more.yaml...]",
		Short: "Execute a pipeline definition",
		Long: `Load one or more pipeline definitions, execute the entry pipeline with
the built-in echo task executor, and print the execution tree and
performance report.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			logger := log.New(log.FromEnv())
			cmd.Flags().Visit(func(f *pflag.Flag) {
				logger.Debug("flag set", "name", f.Name, "value", f.Value.String())
			})

			registry := pipeline.NewRegistry()
			first := ""
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				def, err := pipeline.Parse(data)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := registry.Register(def); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if first == "" {
					first = def.Name
				}
			}
			if entry == "" {
				entry = first
			}

			tracer := trace.NewTracer().WithLogger(logger)

			if cfg.Trace.ConsoleExport {
				provider, err := tracing.NewProvider(tracing.ProviderConfig{
					ServiceName:    "cascade",
					ServiceVersion: "dev",
					ConsoleExport:  true,
				})
				if err != nil {
					return err
				}
				defer provider.Shutdown(cmd.Context())
				tracer = tracer.WithObserver(tracing.NewBridge(provider))
			}

			if metricsAddr != "" {
				promReg := prometheus.NewRegistry()
				mp, err := tracing.NewMeterProvider(promReg)
				if err != nil {
					return err
				}
				collector, err := tracing.NewMetricsCollector(mp)
				if err != nil {
					return err
				}
				tracer = tracer.WithObserver(collector)
				go func() {
					server := &http.Server{Addr: metricsAddr, Handler: tracing.MetricsHandler(promReg)}
					if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Warn("metrics server stopped", "error", err)
					}
				}()
			}

			var store *storage.SQLiteStore
			if cfg.Trace.StorePath != "" {
				store, err = storage.New(storage.Config{Path: cfg.Trace.StorePath})
				if err != nil {
					return err
				}
				defer store.Close()
			}

			runner := pipeline.NewRunner(registry, echoExecutor{out: cmd.OutOrStdout()},
				pipeline.WithLimits(cfg.Limits),
				pipeline.WithTracer(tracer),
				pipeline.WithLogger(logger),
			)

			vars := make(map[string]interface{}, len(cfg.Variables)+len(inputs))
			for k, v := range cfg.Variables {
				vars[k] = v
			}
			for _, pair := range inputs {
				key, value, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("invalid input %q, expected key=value", pair)
				}
				vars[key] = value
			}

			res, runErr := runner.Run(cmd.Context(), entry, vars)

			if res != nil && res.Trace != nil {
				if store != nil {
					if err := store.SaveTrace(cmd.Context(), res.Trace); err != nil {
						logger.Warn("failed to persist trace", "error", err)
					}
				}

				tree := trace.BuildExecutionTree(res.Trace)
				cmd.Println()
				cmd.Print(trace.Visualize(tree, trace.VisualizeOptions{ShowStatus: true, ShowTimings: true}))

				usage := guard.NewResourceSampler().Sample()
				report := perf.NewAnalyzer().Analyze(perf.CollectRunStats(tree, usage.MemoryBytes))
				cmd.Println()
				cmd.Print(perf.FormatReport(report))
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to configuration file")
	cmd.Flags().StringVar(&entry, "pipeline", "", "entry pipeline name (defaults to the first file's pipeline)")
	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "input variable as key=value (repeatable)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	return cmd
}
