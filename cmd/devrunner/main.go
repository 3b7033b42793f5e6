// Command devrunner runs a job script file locally and prints its result JSON.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/chromeserver/internal/app"
	"github.com/shehryarbajwa/chromeserver/internal/config"
	"github.com/shehryarbajwa/chromeserver/internal/invocation"
	"github.com/shehryarbajwa/chromeserver/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		params         []string
		autoScreenshot bool
		verbose        bool
	)

	cmd := &cobra.Command{
		Use:          "devrunner <script.js>",
		Short:        "Run a job script against a local browser and print the result",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			source, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read script: %w", err)
			}

			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			if autoScreenshot {
				parsed[invocation.AutoScreenshotParam] = ""
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			level := "warn"
			if verbose {
				level = "debug"
			}
			logger, err := logging.New(logging.Config{Level: level, Development: true})
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			inv := invocation.New(invocation.Options{
				Params:         parsed,
				Store:          application.Store,
				ArtifactPrefix: cfg.Artifact.Prefix,
				Logger:         logger,
			})
			out := application.Runner.Run(ctx, inv, string(source))

			body, err := out.MarshalPretty()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(body))

			if out.Error != nil {
				logger.Debug("job failed", zap.String("error", *out.Error))
				return fmt.Errorf("job failed: %s", *out.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "job parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&autoScreenshot, "error-auto-screenshot", false, "upload a screenshot of the last page when the job fails")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	return cmd
}

// parseParams turns key=value pairs into a map. A bare key maps to "".
func parseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, _ := strings.Cut(pair, "=")
		if key == "" {
			return nil, fmt.Errorf("invalid param %q: empty key", pair)
		}
		params[key] = value
	}
	return params, nil
}
