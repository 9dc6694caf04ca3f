package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"option-ledger/database"
	"option-ledger/interfaces"
	"option-ledger/models"

	"github.com/mr-tron/base58"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ed25519 caller keypair",
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return fmt.Errorf("failed to generate keypair: %w", err)
		}

		out, err := json.MarshalIndent(map[string]string{
			"public_key":  base58.Encode(pub),
			"private_key": base58.Encode(priv),
		}, "", "  ")
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode <hex|base64>",
	Short: "Decode a stored option account and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := decodeAccountArg(args[0])
		if err != nil {
			return err
		}

		record, err := models.DecodeOptionAccount(data)
		if err != nil {
			return fmt.Errorf("failed to decode option account: %w", err)
		}

		out, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete ledger events older than a number of days",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, err := cmd.Flags().GetInt("days")
		if err != nil {
			return fmt.Errorf("error getting days: %w", err)
		}
		if days < 1 {
			return fmt.Errorf("days must be at least 1, got %d", days)
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		storage, err := database.NewLocalStorage(cfg.DatabasePath, interfaces.SystemClock{})
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer storage.Close()
		storage.SetLogLevel(cfg.LogLevel)

		deleted, err := storage.CleanupOldData(time.Now().AddDate(0, 0, -days))
		if err != nil {
			return err
		}

		log.WithField("deleted", deleted).Info("Prune complete")
		return nil
	},
}

func init() {
	pruneCmd.Flags().Int("days", 30, "keep events from the last N days")
}

// decodeAccountArg accepts hex (optionally 0x-prefixed) or standard base64
func decodeAccountArg(arg string) ([]byte, error) {
	arg = strings.TrimSpace(arg)

	if data, err := hex.DecodeString(strings.TrimPrefix(arg, "0x")); err == nil {
		return data, nil
	}
	if data, err := base64.StdEncoding.DecodeString(arg); err == nil {
		return data, nil
	}

	return nil, fmt.Errorf("account data is neither hex nor base64")
}
