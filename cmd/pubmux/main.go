package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// Import plugins to trigger self-registration via init()
	_ "github.com/miladsoleymani/pubmux/plugins/kafka"
	_ "github.com/miladsoleymani/pubmux/plugins/nats"
	_ "github.com/miladsoleymani/pubmux/plugins/rabbitmq"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "pubmux",
		Short: "Topic-routed publish gateway",
		Long: `pubmux accepts client publishes over WebSocket and broker subscriptions,
routes each publish by topic pattern and forwards it to a message broker.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newTokenCommand())
	rootCmd.AddCommand(newRoutesCommand())
	rootCmd.AddCommand(newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
