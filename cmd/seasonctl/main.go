// Command seasonctl runs one personal color analysis from the command line
// against the configured vendor panel.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/seasonal/internal/adapters/http/api"
	"github.com/okian/seasonal/internal/adapters/provider"
	service "github.com/okian/seasonal/internal/app"
	"github.com/okian/seasonal/internal/client"
	"github.com/okian/seasonal/internal/config"
	"github.com/okian/seasonal/internal/domain/aggregate"
	"github.com/okian/seasonal/internal/domain/types"
	"github.com/okian/seasonal/pkg/logger"
)

// Analyzer runs synchronous analyses.
type Analyzer interface {
	AnalyzeParallel(ctx context.Context, img image.Image, method string) (types.AnalysisResponse, error)
	AnalyzeHybrid(ctx context.Context, img image.Image, judge string) (types.AnalysisResponse, error)
}

// Builder constructs an Analyzer from configuration.
type Builder func(cfg *config.Config) (Analyzer, error)

func main() {
	root := newRootCmd(buildService)
	root.SilenceUsage = true
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildService(cfg *config.Config) (Analyzer, error) {
	svc, err := service.FromConfig(cfg, logger.Get())
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func newRootCmd(build Builder) *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "seasonctl",
		Short: "Personal color analysis from the command line",
		Long:  "seasonctl sends a portrait to the configured vision models and prints the verdict as JSON.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithWriter(cmd.ErrOrStderr())); err != nil {
				return err
			}
			level := "warn"
			if verbose {
				level = "debug"
			}
			return logger.SetLevelString(level)
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (overrides "+config.EnvConfigFile+")")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log provider calls to stderr")

	load := func(ctx context.Context) (*config.Config, Analyzer, error) {
		if configPath != "" {
			if err := os.Setenv(config.EnvConfigFile, configPath); err != nil {
				return nil, nil, err
			}
		}
		cfg, err := config.Load(ctx)
		if err != nil {
			return nil, nil, err
		}
		a, err := build(cfg)
		if err != nil {
			return nil, nil, err
		}
		return cfg, a, nil
	}

	cmd.AddCommand(parallelCmd(load))
	cmd.AddCommand(hybridCmd(load))
	cmd.AddCommand(methodsCmd())
	cmd.AddCommand(submitCmd())
	return cmd
}

type loader func(ctx context.Context) (*config.Config, Analyzer, error)

func parallelCmd(load loader) *cobra.Command {
	var method string
	c := &cobra.Command{
		Use:   "parallel IMAGE",
		Short: "Aggregate the verdicts of every provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, a, err := load(ctx)
			if err != nil {
				return err
			}
			img, err := readImage(args[0], cfg)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(ctx, cfg)
			defer cancel()
			resp, err := a.AnalyzeParallel(ctx, img, method)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	c.Flags().StringVarP(&method, "method", "m", "", "aggregation method: voting, weighted_average or consensus")
	return c
}

func hybridCmd(load loader) *cobra.Command {
	var judge string
	c := &cobra.Command{
		Use:   "hybrid IMAGE",
		Short: "Let a judge provider adjudicate the panel's verdicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, a, err := load(ctx)
			if err != nil {
				return err
			}
			img, err := readImage(args[0], cfg)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(ctx, cfg)
			defer cancel()
			resp, err := a.AnalyzeHybrid(ctx, img, judge)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	c.Flags().StringVarP(&judge, "judge", "j", "", "judge provider: gemini, openai or claude")
	return c
}

func methodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List aggregation methods and providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			methods := make([]string, 0, len(aggregate.Methods()))
			for _, m := range aggregate.Methods() {
				methods = append(methods, m.String())
			}
			return printJSON(cmd.OutOrStdout(), map[string][]string{
				"methods":   methods,
				"providers": provider.Names(),
			})
		},
	}
}

func submitCmd() *cobra.Command {
	var (
		server string
		req    client.Request
		key    string
		wait   bool
	)
	c := &cobra.Command{
		Use:   "submit IMAGE",
		Short: "Queue an analysis on a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			req.Image = client.EncodeImage(raw)

			ctx := cmd.Context()
			cl := client.New(server)
			ack, err := cl.Submit(ctx, req, key)
			if err != nil {
				return err
			}
			if !wait {
				return printJSON(cmd.OutOrStdout(), ack)
			}
			rec, err := cl.Wait(ctx, ack.ID)
			if perr := printJSON(cmd.OutOrStdout(), rec); perr != nil {
				return perr
			}
			return err
		},
	}
	c.Flags().StringVar(&server, "server", "http://localhost:9080", "base URL of the seasonal server")
	c.Flags().StringVar(&req.Mode, "mode", "parallel", "analysis mode: parallel or hybrid")
	c.Flags().StringVarP(&req.Method, "method", "m", "", "aggregation method for parallel mode")
	c.Flags().StringVarP(&req.Judge, "judge", "j", "", "judge provider for hybrid mode")
	c.Flags().StringVar(&key, "idempotency-key", "", "reuse the analysis bound to this key")
	c.Flags().BoolVarP(&wait, "wait", "w", false, "poll until the analysis finishes")
	return c
}

func readImage(path string, cfg *config.Config) (image.Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, _, err := api.DecodeImageBytes(raw, api.ImageLimits{
		MaxBytes:     cfg.MaxImageBytes,
		MinDimension: cfg.MinImageDimension,
		MaxDimension: cfg.MaxImageDimension,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

func withTimeout(ctx context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, time.Duration(cfg.AnalysisTimeoutSeconds)*time.Second)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
