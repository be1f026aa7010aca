package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"echogate/internal/storage"
)

func migrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the chat_logs table and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbType := opts.cfg.BasicConfig.DatabaseType
			db, err := storage.Open(dbType, opts.cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			if err := storage.Migrate(db, dbType); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
			logrus.WithField("db", dbType).Info("chat_logs table ready")
			return nil
		},
	}
}
