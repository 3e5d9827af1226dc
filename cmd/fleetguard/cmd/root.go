package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmcleod/fleetguard/internal/config"
)

var (
	cfgFile string
	v       = viper.New()
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fleetguard",
	Short: "fleetguard guards sign-in and session health for the fleet client",
	Long: `Security guard for the fleet-management client: rate-limited sign-in and
registration, credential hygiene, session liveness and a security audit trail.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadWith(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = cfg.Log.NewLogger(os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./fleetguard.yaml or $HOME/fleetguard.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("storage-driver", config.DriverBolt, "storage backend: memory, bbolt or postgres")
	pf.String("storage-path", "./data/fleetguard.db", "bbolt database file")
	pf.String("storage-dsn", "", "postgres connection string")

	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("log.format", pf.Lookup("log-format"))
	_ = v.BindPFlag("storage.driver", pf.Lookup("storage-driver"))
	_ = v.BindPFlag("storage.path", pf.Lookup("storage-path"))
	_ = v.BindPFlag("storage.dsn", pf.Lookup("storage-dsn"))
}
