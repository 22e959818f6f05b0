package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/issueboard/issueboard/internal/config"
	"github.com/issueboard/issueboard/internal/seed"
	"github.com/issueboard/issueboard/internal/storage"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Wipe and repopulate the database with demo data",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer log.Sync()

		dbCfg := config.LoadDatabase()
		store, err := storage.Open(cmd.Context(), storage.Options{
			Path:            dbCfg.Path,
			MigrationDir:    dbCfg.MigrationDir,
			MaxOpenConns:    dbCfg.MaxOpenConns,
			MaxIdleConns:    dbCfg.MaxIdleConns,
			ConnMaxLifetime: dbCfg.ConnMaxLifetime,
		})
		if err != nil {
			log.Error("store open failed", zap.Error(err))
			return err
		}
		defer store.Close()

		path := seedFile
		if path == "" {
			path = os.Getenv("SEED_FILE")
		}
		data, err := seed.Load(path)
		if err != nil {
			log.Error("seed data load failed", zap.Error(err))
			return err
		}
		if err := seed.Run(cmd.Context(), store, data); err != nil {
			log.Error("seeding failed", zap.Error(err))
			return err
		}

		users, labels, issues, err := seed.Counts(cmd.Context(), store.DB())
		if err != nil {
			log.Error("count check failed", zap.Error(err))
			return err
		}
		log.Info("seeding complete",
			zap.Int("users", users),
			zap.Int("labels", labels),
			zap.Int("issues", issues),
		)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "seed data file (YAML); embedded defaults when empty")
	rootCmd.AddCommand(seedCmd)
}
