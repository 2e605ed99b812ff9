package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the crawl cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired crawl cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "store", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Store.DeleteExpiredCrawls(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("pruned crawl cache", zap.Int("deleted", n))
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired crawl(s)\n", n)
		return err
	},
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
