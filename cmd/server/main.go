package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/session-authority-service/internal/app"
	"github.com/sandeepkv93/session-authority-service/internal/config"
	"github.com/sandeepkv93/session-authority-service/internal/tools/loadgen"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "session-authority",
		Short:         "Session authority service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to an optional env file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}

	var (
		baseURL     string
		profile     string
		duration    time.Duration
		rps         int
		concurrency int
		seed        int64
	)
	traffic := &cobra.Command{
		Use:   "loadgen",
		Short: "Generate synthetic traffic against a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := loadgen.Run(context.Background(), loadgen.Config{
				BaseURL:     baseURL,
				Profile:     profile,
				Duration:    duration,
				RPS:         rps,
				Concurrency: concurrency,
				Seed:        seed,
			})
			if res != nil {
				fmt.Printf("requests=%d failures=%d classes=%v\n", res.TotalRequests, res.Failures, res.StatusClasses)
			}
			return err
		},
	}
	traffic.Flags().StringVar(&baseURL, "base-url", "http://localhost:8080", "API base URL")
	traffic.Flags().StringVar(&profile, "profile", "mixed", "traffic profile: auth, health or mixed")
	traffic.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to run")
	traffic.Flags().IntVar(&rps, "rps", 20, "requests per second")
	traffic.Flags().IntVar(&concurrency, "concurrency", 4, "worker count")
	traffic.Flags().Int64Var(&seed, "seed", 42, "target selection seed")

	root.AddCommand(serve, traffic)
	return root
}
