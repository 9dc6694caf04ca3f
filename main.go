package main

import (
	"os"

	"option-ledger/config"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "option-ledger",
	Short: "Option contract lifecycle ledger",
}

func init() {
	rootCmd.PersistentFlags().String("env-file", config.DefaultEnvFile, "optional dotenv file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(pruneCmd)
}

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
