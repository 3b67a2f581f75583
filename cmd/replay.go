package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/vaultgraph/vaultgraph/internal/chain"
	"github.com/vaultgraph/vaultgraph/internal/config"
	"github.com/vaultgraph/vaultgraph/internal/logger"
	"go.uber.org/zap"
)

var replayCmd = &cobra.Command{
	Use:   "replay <records-file>",
	Short: "Fold a recorded event file into the projection database and exit",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		initRunCmd(cmd)
		cfg := config.NewConfig()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

		f, err := os.Open(args[0])
		if err != nil {
			l.Sugar().Fatalw("Failed to open records file", zap.Error(err))
		}
		defer f.Close()

		ms, engine := setupEngine(cfg, l)

		if err := foldFeed(chain.NewFeedReader(f), engine, ms, l); err != nil {
			l.Sugar().Fatalw("Replay failed", zap.Error(err))
		}
	},
}
