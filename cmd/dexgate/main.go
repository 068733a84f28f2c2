package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "dexgate",
		Short:         "Token screening and trade authorization gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml or ./configs/config.yaml)")

	root.AddCommand(
		newServeCmd(&configPath),
		newScreenCmd(&configPath),
		newBlacklistCmd(&configPath),
	)
	return root
}
