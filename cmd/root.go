// cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/actuator/internal/config"
	"github.com/xkilldash9x/actuator/internal/observability"
)

// Exit codes returned by Execute.
const (
	exitOK      = 0
	exitFailure = 1
	// exitFatal marks a session ended by a fatal health condition.
	exitFatal = 2
)

// app carries the state shared by the root command and its subcommands.
type app struct {
	v        *viper.Viper
	cfgFile  string
	surfaces surfaceProvider
}

// newRootCmd builds a fresh command tree. Each tree owns its own viper instance.
func newRootCmd(surfaces surfaceProvider) *cobra.Command {
	a := &app{v: viper.New(), surfaces: surfaces}

	rootCmd := &cobra.Command{
		Use:           "actuator",
		Short:         "Actuator drives scripted, human-paced browser sessions.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(a.v, a.cfgFile); err != nil {
				return err
			}
			config.SetDefaults(a.v)

			var logCfg config.LoggerConfig
			if err := a.v.UnmarshalKey("logger", &logCfg); err != nil {
				_ = observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "actuator"})
				return fmt.Errorf("failed to unmarshal logger config: %w", err)
			}
			logFile, err := homedir.Expand(logCfg.LogFile)
			if err != nil {
				return fmt.Errorf("expanding logger.log_file: %w", err)
			}
			logCfg.LogFile = logFile
			if err := observability.InitializeLogger(logCfg); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			observability.GetLogger().Debug("Starting actuator.", zap.String("version", Version))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = observability.Close()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd(a), newCheckCmd(a), newVersionCmd())
	return rootCmd
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	rootCmd := newRootCmd(defaultSurfaceProvider{})
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	if errors.Is(err, errFatalSession) {
		return exitFatal
	}
	return exitFailure
}

// initializeConfig reads in the config file and ACTUATOR_* environment variables.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("ACTUATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
