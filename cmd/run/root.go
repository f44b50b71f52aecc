package run

import (
	"os"

	"github.com/spf13/cobra"

	"wgobfs/internal/conf"
	"wgobfs/internal/flog"
)

var confPath string

var rootCmd = &cobra.Command{
	Use:           "wgobfs",
	Short:         "Obfuscating UDP relay for WireGuard traffic",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relay with the given config",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := conf.LoadFromFile(confPath)
		if err != nil {
			return err
		}
		if err := flog.Init(cfg.Log.Level, cfg.Log.File); err != nil {
			return err
		}
		defer flog.Sync()
		start(cfg)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&confPath, "config", "c", "config.yaml", "path to config file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
