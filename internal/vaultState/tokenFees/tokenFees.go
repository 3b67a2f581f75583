// Package tokenFees is the two-phase fee ledger. Share transfers that land
// on a strategy or on the vault's rewards address accrue into unrecognized
// counters; the next strategy report recognizes them into the permanent
// totals. Recognition must run exactly once per report, which is the report
// handler's responsibility.
package tokenFees

import (
	"errors"
	"math/big"

	"github.com/vaultgraph/vaultgraph/internal/ids"
	"github.com/vaultgraph/vaultgraph/internal/storage"
	"github.com/vaultgraph/vaultgraph/internal/types/numbers"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

type FeeKind int

const (
	FeeKind_None FeeKind = iota
	FeeKind_Strategy
	FeeKind_Treasury
)

type Classification struct {
	IsFee bool
	Kind  FeeKind
}

type FeeLedger struct {
	Db     *gorm.DB
	logger *zap.Logger
}

func NewFeeLedger(grm *gorm.DB, l *zap.Logger) *FeeLedger {
	return &FeeLedger{
		Db:     grm,
		logger: l,
	}
}

// ClassifyAndAccrue decides whether a transfer to toAccount is a fee for the
// given vault and, if so, adds the raw share amount to the matching
// unrecognized counter. The strategy check runs before the treasury check;
// a strategy that is also the rewards address counts as a strategy fee.
func (fl *FeeLedger) ClassifyAndAccrue(vault *storage.Vault, toAccount string, amount *big.Int) (Classification, error) {
	none := Classification{IsFee: false, Kind: FeeKind_None}

	strategy := &storage.Strategy{}
	res := fl.Db.First(strategy, "id = ?", toAccount)
	if res.Error == nil {
		if err := fl.accrue(vault, amount, FeeKind_Strategy); err != nil {
			return none, err
		}
		return Classification{IsFee: true, Kind: FeeKind_Strategy}, nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return none, xerrors.Errorf("failed to look up strategy '%s': %w", toAccount, res.Error)
	}

	if vault.Rewards != "" && toAccount == vault.Rewards {
		if err := fl.accrue(vault, amount, FeeKind_Treasury); err != nil {
			return none, err
		}
		return Classification{IsFee: true, Kind: FeeKind_Treasury}, nil
	}

	return none, nil
}

func (fl *FeeLedger) accrue(vault *storage.Vault, amount *big.Int, kind FeeKind) error {
	fee, err := fl.getOrCreate(vault)
	if err != nil {
		return err
	}

	switch kind {
	case FeeKind_Strategy:
		updated, err := numbers.AddNumeric(fee.UnrecognizedStrategyFees, amount)
		if err != nil {
			return err
		}
		fee.UnrecognizedStrategyFees = updated
	case FeeKind_Treasury:
		updated, err := numbers.AddNumeric(fee.UnrecognizedTreasuryFees, amount)
		if err != nil {
			return err
		}
		fee.UnrecognizedTreasuryFees = updated
	}

	if res := fl.Db.Save(fee); res.Error != nil {
		return xerrors.Errorf("failed to save token fee '%s': %w", fee.Id, res.Error)
	}

	fl.logger.Sugar().Debugw("Accrued fee transfer",
		zap.String("vaultId", vault.Id),
		zap.String("amount", amount.String()),
		zap.Int("kind", int(kind)),
	)
	return nil
}

// Recognize atomically moves both unrecognized balances into the cumulative
// totals and zeroes them, returning the strategist and treasury deltas.
func (fl *FeeLedger) Recognize(vault *storage.Vault) (*big.Int, *big.Int, error) {
	fee, err := fl.getOrCreate(vault)
	if err != nil {
		return nil, nil, err
	}

	strategistDelta, err := numbers.FromNumeric(fee.UnrecognizedStrategyFees)
	if err != nil {
		return nil, nil, err
	}
	treasuryDelta, err := numbers.FromNumeric(fee.UnrecognizedTreasuryFees)
	if err != nil {
		return nil, nil, err
	}

	if fee.TotalStrategyFees, err = numbers.AddNumeric(fee.TotalStrategyFees, strategistDelta); err != nil {
		return nil, nil, err
	}
	if fee.TotalTreasuryFees, err = numbers.AddNumeric(fee.TotalTreasuryFees, treasuryDelta); err != nil {
		return nil, nil, err
	}
	recognized := new(big.Int).Add(strategistDelta, treasuryDelta)
	if fee.TotalFees, err = numbers.AddNumeric(fee.TotalFees, recognized); err != nil {
		return nil, nil, err
	}
	fee.UnrecognizedStrategyFees = "0"
	fee.UnrecognizedTreasuryFees = "0"

	if res := fl.Db.Save(fee); res.Error != nil {
		return nil, nil, xerrors.Errorf("failed to save token fee '%s': %w", fee.Id, res.Error)
	}

	return strategistDelta, treasuryDelta, nil
}

// TotalFees returns the cumulative recognized fees for a vault.
func (fl *FeeLedger) TotalFees(vaultId string) (*big.Int, error) {
	fee := &storage.TokenFee{}
	res := fl.Db.First(fee, "id = ?", vaultId)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return big.NewInt(0), nil
	}
	if res.Error != nil {
		return nil, xerrors.Errorf("failed to look up token fee '%s': %w", vaultId, res.Error)
	}
	return numbers.FromNumeric(fee.TotalFees)
}

func (fl *FeeLedger) getOrCreate(vault *storage.Vault) (*storage.TokenFee, error) {
	id := ids.TokenFeeId(vault.Id)

	fee := &storage.TokenFee{}
	res := fl.Db.First(fee, "id = ?", id)
	if res.Error == nil {
		return fee, nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, xerrors.Errorf("failed to look up token fee '%s': %w", id, res.Error)
	}

	fee = &storage.TokenFee{
		Id:                       id,
		TokenId:                  vault.TokenId,
		UnrecognizedStrategyFees: "0",
		UnrecognizedTreasuryFees: "0",
		TotalStrategyFees:        "0",
		TotalTreasuryFees:        "0",
		TotalFees:                "0",
	}
	if res := fl.Db.Create(fee); res.Error != nil {
		return nil, xerrors.Errorf("failed to create token fee '%s': %w", id, res.Error)
	}
	return fee, nil
}
