package main

import (
	"fmt"
	"os"

	"launchpad-deployment/internal/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "launchpad",
	Short: "Launchpad deployment service",
	Long:  "Launchpad detects the framework of an uploaded application, packages it and deploys it to Vercel, then verifies the live URL.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Initialize()
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "An error occurred: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, detectCmd, packageCmd)
}
