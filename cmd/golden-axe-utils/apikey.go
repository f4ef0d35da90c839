package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/indexsupply/golden-axe/db"
	"github.com/indexsupply/golden-axe/dbtypes"
	"github.com/indexsupply/golden-axe/types"
	"github.com/indexsupply/golden-axe/utils"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Create or update an api account",
	RunE:  runApikey,
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.Flags().String("config", "", "Path to the config file")
	apikeyCmd.Flags().String("key", "", "Api key to create or update, a random key is generated when empty")
	apikeyCmd.Flags().String("name", "", "Account name")
	apikeyCmd.Flags().Uint32("rate-limit", 0, "Requests per second, 0 uses the configured default")
	apikeyCmd.Flags().Uint32("statement-timeout", 0, "Statement timeout in milliseconds, 0 uses the configured default")
	apikeyCmd.Flags().Uint32("max-connections", 0, "Concurrent live query limit, 0 uses the configured default")
	apikeyCmd.Flags().Bool("disabled", false, "Disable the account")
}

func runApikey(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	key, _ := cmd.Flags().GetString("key")
	name, _ := cmd.Flags().GetString("name")
	rateLimit, _ := cmd.Flags().GetUint32("rate-limit")
	statementTimeout, _ := cmd.Flags().GetUint32("statement-timeout")
	maxConnections, _ := cmd.Flags().GetUint32("max-connections")
	disabled, _ := cmd.Flags().GetBool("disabled")

	cfg := &types.Config{}
	if err := utils.ReadConfig(cfg, configPath); err != nil {
		return err
	}
	utils.Config = cfg

	if key == "" {
		raw := make([]byte, 16)
		if _, err := rand.Read(raw); err != nil {
			return err
		}
		key = hex.EncodeToString(raw)
	}

	db.MustInitDB()
	defer db.MustCloseDB()

	account := &dbtypes.ApiAccount{
		Key:                key,
		Name:               name,
		RateLimit:          rateLimit,
		StatementTimeoutMs: statementTimeout,
		MaxConnections:     maxConnections,
		Disabled:           disabled,
		Created:            uint64(time.Now().Unix()),
	}

	tx, err := db.WriterDb.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := db.UpsertApiAccount(account, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	fmt.Printf("api key: %s\n", key)
	return nil
}
