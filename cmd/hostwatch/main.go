package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "hostwatch",
	Short: "hostwatch samples host resources and raises threshold alerts",
	Long: `hostwatch samples CPU, RAM, temperature, disk and network connectivity,
evaluates each channel against its alert policy and publishes alert,
recovery and reminder notifications.`,
	SilenceUsage: true,
}

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the hostwatch config file")
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(policyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
