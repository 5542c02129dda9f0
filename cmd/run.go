// cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/actuator/internal/clock"
	"github.com/xkilldash9x/actuator/internal/config"
	"github.com/xkilldash9x/actuator/internal/observability"
	"github.com/xkilldash9x/actuator/internal/session"
	"github.com/xkilldash9x/actuator/internal/surface"
	"github.com/xkilldash9x/actuator/internal/surface/cdp"
	"github.com/xkilldash9x/actuator/internal/surface/gorod"
)

// errFatalSession marks a run ended by a fatal health condition.
var errFatalSession = errors.New("session ended on a fatal condition")

// surfaceProvider opens the browser surface a session drives. Tests inject a fake.
type surfaceProvider interface {
	Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (surface.Surface, func(), error)
}

// defaultSurfaceProvider launches or attaches to a real browser.
type defaultSurfaceProvider struct{}

func (defaultSurfaceProvider) Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (surface.Surface, func(), error) {
	switch cfg.Driver {
	case config.DriverRod:
		return gorod.Open(ctx, gorod.Options{
			ControlURL:     cfg.ControlURL,
			BinaryPath:     cfg.BinaryPath,
			Headless:       cfg.Headless,
			DisableGPU:     cfg.DisableGPU,
			Args:           cfg.Args,
			ViewportWidth:  cfg.ViewportWidth,
			ViewportHeight: cfg.ViewportHeight,
			ActionTimeout:  cfg.ActionTimeout,
		}, logger)
	case config.DriverCDP:
		return cdp.Open(ctx, cdp.Options{
			ControlURL:     cfg.ControlURL,
			BinaryPath:     cfg.BinaryPath,
			Headless:       cfg.Headless,
			DisableGPU:     cfg.DisableGPU,
			Args:           cfg.Args,
			ViewportWidth:  cfg.ViewportWidth,
			ViewportHeight: cfg.ViewportHeight,
			ActionTimeout:  cfg.ActionTimeout,
		}, logger)
	default:
		return nil, nil, fmt.Errorf("unknown browser driver %q", cfg.Driver)
	}
}

type runOptions struct {
	planPath string
	startURL string
	output   string
	format   string
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs a session plan against a browser.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Flags override the config file and environment.
			for key, flag := range map[string]string{
				"browser.driver":   "driver",
				"browser.headless": "headless",
				"session.seed":     "seed",
				"session.deadline": "deadline",
			} {
				if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return validateFormat(opts.format)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSession(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	f := runCmd.Flags()
	f.StringVarP(&opts.planPath, "plan", "p", "", "session plan file")
	_ = runCmd.MarkFlagRequired("plan")
	f.StringVar(&opts.startURL, "url", "", "overrides the plan's start_url")
	f.StringVarP(&opts.output, "output", "o", "", "write the report to this file instead of stdout")
	f.StringVar(&opts.format, "format", formatText, "report format: text, json or yaml")
	f.String("driver", config.DriverCDP, "browser driver: cdp or rod")
	f.Bool("headless", true, "run the browser without a window")
	f.Int64("seed", 0, "random seed for a reproducible run, 0 seeds from the clock")
	f.Duration("deadline", 0, "hard limit on the run when the plan sets none")
	return runCmd
}

func (a *app) runSession(ctx context.Context, stdout io.Writer, opts runOptions) error {
	logger := observability.GetLogger()

	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		return err
	}
	plan, err := session.LoadPlan(opts.planPath)
	if err != nil {
		return err
	}
	switch {
	case opts.startURL != "":
		plan.StartURL = opts.startURL
	case plan.StartURL == "":
		plan.StartURL = cfg.Browser().StartURL
	}

	surf, cleanup, err := a.surfaces.Open(ctx, cfg.Browser(), logger)
	if err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	defer cleanup()

	hcfg := cfg.Humanoid()
	hcfg.ViewportWidth = float64(cfg.Browser().ViewportWidth)
	hcfg.ViewportHeight = float64(cfg.Browser().ViewportHeight)

	sess := session.Assemble(cfg.Session(), hcfg, cfg.Executor(), cfg.Monitor(), logger, clock.NewReal(), surf)
	logger.Info("Running plan.",
		zap.String("session_id", sess.ID()),
		zap.String("plan", plan.Name),
		zap.String("driver", cfg.Browser().Driver),
	)

	report, runErr := sess.Run(ctx, plan)
	if report != nil {
		if err := writeReport(stdout, opts.output, opts.format, report); err != nil {
			return errors.Join(runErr, err)
		}
	}

	var fatal *session.FatalError
	switch {
	case errors.As(runErr, &fatal):
		return fmt.Errorf("%w: %w", errFatalSession, runErr)
	case errors.Is(runErr, context.Canceled):
		logger.Warn("Session aborted by signal.", zap.String("session_id", sess.ID()))
		return fmt.Errorf("session aborted: %w", runErr)
	}
	return runErr
}

// writeReport renders the report to path, or to stdout when path is empty.
func writeReport(stdout io.Writer, path, format string, report *session.Report) error {
	if path == "" {
		return renderReport(stdout, format, report)
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("expanding report path: %w", err)
	}
	f, err := os.Create(expanded)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	if err := renderReport(f, format, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
