// Package vaultDayData folds every vault update into a per-UTC-day rollup.
// Daily counters accumulate by addition; the cumulative return total is
// carried forward from the most recent prior day within a bounded backward
// search.
package vaultDayData

import (
	"context"
	"errors"
	"math/big"

	"github.com/vaultgraph/vaultgraph/internal/ids"
	"github.com/vaultgraph/vaultgraph/internal/storage"
	"github.com/vaultgraph/vaultgraph/internal/types/numbers"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/prices"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

// maxBackfillDays bounds the backward walk for the prior cumulative total.
// A vault quiet for longer than this has its total reset, which is a known
// approximation for very sparse vaults.
const maxBackfillDays = 100

type Aggregator struct {
	Db     *gorm.DB
	logger *zap.Logger
	prices *prices.PriceResolver
}

func NewAggregator(grm *gorm.DB, pr *prices.PriceResolver, l *zap.Logger) *Aggregator {
	return &Aggregator{
		Db:     grm,
		logger: l,
		prices: pr,
	}
}

// Rollup merges one vault update into its day bucket. The token price is
// re-resolved on every call so USD figures reflect the price at this event,
// not a stale cache.
func (a *Aggregator) Rollup(ctx context.Context, vault *storage.Vault, update *storage.VaultUpdate) (*storage.VaultDayData, error) {
	dayIndex := ids.DayIndex(update.Timestamp)
	id := ids.VaultDayData(vault.Id, dayIndex)

	dayData := &storage.VaultDayData{}
	existed := true
	res := a.Db.First(dayData, "id = ?", id)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		existed = false
		dayData = &storage.VaultDayData{
			Id:                        id,
			VaultId:                   vault.Id,
			DayIndex:                  dayIndex,
			Timestamp:                 dayIndex * ids.MillisPerDay,
			PricePerShare:             update.PricePerShare,
			Deposited:                 "0",
			Withdrawn:                 "0",
			DayReturnsGenerated:       "0",
			TotalReturnsGenerated:     "0",
			DepositedUsdc:             "0",
			WithdrawnUsdc:             "0",
			DayReturnsGeneratedUsdc:   "0",
			TotalReturnsGeneratedUsdc: "0",
			TokenPriceUsdc:            "0",
		}
	} else if res.Error != nil {
		return nil, xerrors.Errorf("failed to look up day data '%s': %w", id, res.Error)
	}

	deposited, err := numbers.FromNumeric(update.TokensDeposited)
	if err != nil {
		return nil, err
	}
	withdrawn, err := numbers.FromNumeric(update.TokensWithdrawn)
	if err != nil {
		return nil, err
	}
	returns, err := numbers.FromNumeric(update.ReturnsGenerated)
	if err != nil {
		return nil, err
	}

	if dayData.Deposited, err = numbers.AddNumeric(dayData.Deposited, deposited); err != nil {
		return nil, err
	}
	if dayData.Withdrawn, err = numbers.AddNumeric(dayData.Withdrawn, withdrawn); err != nil {
		return nil, err
	}
	if dayData.DayReturnsGenerated, err = numbers.AddNumeric(dayData.DayReturnsGenerated, returns); err != nil {
		return nil, err
	}

	if existed {
		if dayData.TotalReturnsGenerated, err = numbers.AddNumeric(dayData.TotalReturnsGenerated, returns); err != nil {
			return nil, err
		}
	} else {
		priorTotal, err := a.priorTotalReturns(vault.Id, dayIndex)
		if err != nil {
			return nil, err
		}
		total := new(big.Int).Add(priorTotal, returns)
		dayData.TotalReturnsGenerated = total.String()
	}

	dayData.PricePerShare = update.PricePerShare
	dayData.TokenPriceUsdc = a.prices.ResolveUnitPriceUsdc(ctx, vault.TokenId, update.BlockNumber).String()

	if deposited.Sign() > 0 {
		usd := a.prices.ResolveUsdValue(ctx, vault.TokenId, deposited, update.BlockNumber)
		if dayData.DepositedUsdc, err = numbers.AddNumeric(dayData.DepositedUsdc, usd); err != nil {
			return nil, err
		}
	}
	if withdrawn.Sign() > 0 {
		usd := a.prices.ResolveUsdValue(ctx, vault.TokenId, withdrawn, update.BlockNumber)
		if dayData.WithdrawnUsdc, err = numbers.AddNumeric(dayData.WithdrawnUsdc, usd); err != nil {
			return nil, err
		}
	}
	if returns.Sign() > 0 {
		usd := a.prices.ResolveUsdValue(ctx, vault.TokenId, returns, update.BlockNumber)
		if dayData.DayReturnsGeneratedUsdc, err = numbers.AddNumeric(dayData.DayReturnsGeneratedUsdc, usd); err != nil {
			return nil, err
		}
		if dayData.TotalReturnsGeneratedUsdc, err = numbers.AddNumeric(dayData.TotalReturnsGeneratedUsdc, usd); err != nil {
			return nil, err
		}
	}

	if res := a.Db.Save(dayData); res.Error != nil {
		return nil, xerrors.Errorf("failed to save day data '%s': %w", id, res.Error)
	}
	return dayData, nil
}

// priorTotalReturns walks backward day by day until it finds the vault's
// most recent bucket. Beyond the bound the total resets as if this were the
// vault's first recorded day.
func (a *Aggregator) priorTotalReturns(vaultId string, dayIndex uint64) (*big.Int, error) {
	for i := uint64(1); i <= maxBackfillDays && i <= dayIndex; i++ {
		prior := &storage.VaultDayData{}
		res := a.Db.First(prior, "id = ?", ids.VaultDayData(vaultId, dayIndex-i))
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			continue
		}
		if res.Error != nil {
			return nil, xerrors.Errorf("failed to look up prior day data: %w", res.Error)
		}
		return numbers.FromNumeric(prior.TotalReturnsGenerated)
	}

	a.logger.Sugar().Warnw("No prior day bucket within search bound, resetting cumulative returns",
		zap.String("vaultId", vaultId),
		zap.Uint64("dayIndex", dayIndex),
	)
	return big.NewInt(0), nil
}
