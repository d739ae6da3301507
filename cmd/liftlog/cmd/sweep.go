package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/liftlog/auth"
	"github.com/jmcleod/liftlog/config"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired sessions once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.StorageDriver == config.DriverMemory {
			return fmt.Errorf("nothing to sweep with the %q driver", config.DriverMemory)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		repo, err := openRepository(ctx, cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		res, err := auth.NewSessionManager(repo).Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d temporary sessions and %d sessions\n", res.TempSessions, res.Sessions)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
