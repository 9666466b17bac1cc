package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app is the state shared by every subcommand once configuration is loaded.
type app struct {
	configPath string
	cfg        Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "financed",
		Short: "Federated resource billing and enforcement daemon",
		Long: `financed bills users of federated compute providers according to
their plans and suspends or resumes their resources as they fall behind on
or settle their debts.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(viper.New(), a.configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			slog.SetDefault(logger)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("FINANCE_CONFIG"),
		"config file (default: ./financed.yaml or /etc/finance/financed.yaml)")

	rootCmd.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newPlansCmd(a),
		newUsersCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}
