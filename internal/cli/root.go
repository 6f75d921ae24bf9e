package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"blood-report-service/internal/config"
)

var (
	cfgFile string
	vp      = config.New()
)

var rootCmd = &cobra.Command{
	Use:          "bloodreport",
	Short:        "Blood test report analysis service: HTTP API and pipeline workers",
	SilenceUsage: true,
}

// Execute is the entry point called from cmd/bloodreport/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./bloodreport.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug | info | warn | error")
	bindFlag("log_level", rootCmd.PersistentFlags(), "log-level")

	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	config.LoadDotEnv()

	used, err := config.ReadFile(vp, cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error reading config file:", err)
		os.Exit(1)
	}
	if used != "" {
		fmt.Fprintln(os.Stderr, "config:", used)
	}
}

// loadConfig decodes the merged settings and builds the process logger.
func loadConfig(service string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(vp)
	if err != nil {
		return nil, nil, err
	}
	logger := buildLogger(cfg.LogLevel, service)
	logger.Info("config loaded", slog.Any("settings", cfg.Redacted()))
	return cfg, logger, nil
}

func buildLogger(level, service string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})).
		With(slog.String("service", service))
}

// flagBinding maps a command flag onto a config key.
type flagBinding struct{ key, flag string }

// bindFlags returns a PreRunE binding the running command's flags into vp.
// Several commands expose the same key (http.addr, worker.concurrency) and
// viper keeps one flag per key, so binding at init would let the last
// registered command win.
func bindFlags(bindings ...flagBinding) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		for _, b := range bindings {
			if err := vp.BindPFlag(b.key, cmd.Flags().Lookup(b.flag)); err != nil {
				return fmt.Errorf("bind --%s to %s: %w", b.flag, b.key, err)
			}
		}
		return nil
	}
}

func bindFlag(viperKey string, fs *pflag.FlagSet, flagName string) {
	if err := vp.BindPFlag(viperKey, fs.Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("bindFlag %q → %q: %v", flagName, viperKey, err))
	}
}
