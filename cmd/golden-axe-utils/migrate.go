package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/indexsupply/golden-axe/db"
	"github.com/indexsupply/golden-axe/types"
	"github.com/indexsupply/golden-axe/utils"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database schema migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().String("config", "", "Path to the config file")
	migrateCmd.Flags().Int64("version", -2, "Target schema version, -2 applies all pending migrations")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	version, _ := cmd.Flags().GetInt64("version")

	cfg := &types.Config{}
	if err := utils.ReadConfig(cfg, configPath); err != nil {
		return err
	}
	utils.Config = cfg

	db.MustInitDB()
	defer db.MustCloseDB()

	if err := db.ApplyEmbeddedDbSchema(version); err != nil {
		return err
	}
	logrus.Info("schema migration complete")
	return nil
}
