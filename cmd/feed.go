package cmd

import (
	"encoding/hex"
	"io"
	"time"

	"github.com/vaultgraph/vaultgraph/internal/chain"
	"github.com/vaultgraph/vaultgraph/internal/metrics"
	"github.com/vaultgraph/vaultgraph/internal/metrics/metricsTypes"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/stateEngine"
	"go.uber.org/zap"
)

// foldFeed drains one record stream through the engine. Records arrive in
// ascending (block, txIndex, logIndex) order; a block boundary closes the
// previous block with a state root and a processed-block gauge tick.
func foldFeed(
	feed *chain.FeedReader,
	engine *stateEngine.StateEngine,
	ms *metrics.MetricsSink,
	l *zap.Logger,
) error {
	var currentBlock uint64
	var blockStartedAt time.Time
	records := 0

	for {
		record, err := feed.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		blockNumber := recordBlockNumber(record)
		if currentBlock != 0 && blockNumber != currentBlock {
			if err := closeBlock(engine, ms, l, currentBlock, blockStartedAt); err != nil {
				return err
			}
		}
		if blockNumber != currentBlock {
			currentBlock = blockNumber
			blockStartedAt = time.Now()
		}

		switch record.Kind {
		case chain.RecordKind_Event:
			err = engine.HandleEvent(record.Event)
		case chain.RecordKind_Call:
			err = engine.HandleCall(record.Call)
		}
		if err != nil {
			return err
		}
		records++
	}

	if currentBlock != 0 {
		if err := closeBlock(engine, ms, l, currentBlock, blockStartedAt); err != nil {
			return err
		}
	}

	l.Sugar().Infow("Feed drained",
		zap.Int("records", records),
		zap.Uint64("lastBlock", currentBlock),
	)
	return nil
}

func recordBlockNumber(record *chain.Record) uint64 {
	if record.Kind == chain.RecordKind_Event {
		return record.Event.BlockNumber
	}
	return record.Call.BlockNumber
}

func closeBlock(
	engine *stateEngine.StateEngine,
	ms *metrics.MetricsSink,
	l *zap.Logger,
	blockNumber uint64,
	startedAt time.Time,
) error {
	root, err := engine.GenerateStateRoot(blockNumber)
	if err != nil {
		return err
	}
	if root != nil {
		l.Sugar().Debugw("Block state root",
			zap.Uint64("blockNumber", blockNumber),
			zap.String("root", hex.EncodeToString(root)),
		)
	}
	if ms != nil {
		_ = ms.Gauge(metricsTypes.Metric_Gauge_LastBlockProcessed, float64(blockNumber), nil)
		_ = ms.Timing(metricsTypes.Metric_Timing_BlockProcessDuration, time.Since(startedAt), nil)
	}
	return nil
}
