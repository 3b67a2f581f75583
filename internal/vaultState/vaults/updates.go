package vaults

import (
	"errors"
	"math/big"

	"github.com/vaultgraph/vaultgraph/internal/chain"
	"github.com/vaultgraph/vaultgraph/internal/ids"
	"github.com/vaultgraph/vaultgraph/internal/storage"
	"github.com/vaultgraph/vaultgraph/internal/types/numbers"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

// handleParameterUpdate applies single-field changes. Fee, rewards and
// health-check changes land in the update chain; role changes are
// out-of-band metadata and only touch the vault row.
func (vm *VaultModel) handleParameterUpdate(event *chain.Event) error {
	vault, err := vm.GetVault(event.ContractAddress)
	if err != nil {
		return err
	}
	if vault == nil {
		vm.logger.Sugar().Warnw("Parameter update for unknown vault, skipping",
			zap.String("vault", event.ContractAddress),
			zap.String("event", event.Name),
		)
		return nil
	}

	switch event.Name {
	case Event_UpdatePerformanceFee:
		fee, err := chain.BigParam(event.Params, "performanceFee")
		if err != nil {
			return err
		}
		vault.PerformanceFeeBps = fee.Uint64()
		return vm.saveWithUpdate(vault, event, func(update *storage.VaultUpdate) {
			v := fee.Uint64()
			update.NewPerformanceFee = &v
		})

	case Event_UpdateManagementFee:
		fee, err := chain.BigParam(event.Params, "managementFee")
		if err != nil {
			return err
		}
		vault.ManagementFeeBps = fee.Uint64()
		return vm.saveWithUpdate(vault, event, func(update *storage.VaultUpdate) {
			v := fee.Uint64()
			update.NewManagementFee = &v
		})

	case Event_UpdateRewards:
		rewards, err := chain.AddressParam(event.Params, "rewards")
		if err != nil {
			return err
		}
		vault.Rewards = rewards
		return vm.saveWithUpdate(vault, event, func(update *storage.VaultUpdate) {
			update.NewRewards = &rewards
		})

	case Event_UpdateHealthCheck:
		healthCheck, err := chain.AddressParam(event.Params, "healthCheck")
		if err != nil {
			return err
		}
		// The zero address clears the reference.
		if chain.IsZeroAddress(healthCheck) {
			vault.HealthCheck = ""
		} else {
			vault.HealthCheck = healthCheck
		}
		return vm.saveWithUpdate(vault, event, func(update *storage.VaultUpdate) {
			update.NewHealthCheck = &vault.HealthCheck
		})

	case Event_UpdateGuardian:
		guardian, err := chain.AddressParam(event.Params, "guardian")
		if err != nil {
			return err
		}
		vault.Guardian = guardian
		return vm.save(vault)

	case Event_UpdateManagement:
		management, err := chain.AddressParam(event.Params, "management")
		if err != nil {
			return err
		}
		vault.Management = management
		return vm.save(vault)

	case Event_UpdateGovernance:
		governance, err := chain.AddressParam(event.Params, "governance")
		if err != nil {
			return err
		}
		vault.Governance = governance
		return vm.save(vault)

	case Event_UpdateDepositLimit:
		limit, err := chain.BigParam(event.Params, "depositLimit")
		if err != nil {
			return err
		}
		vault.DepositLimit = limit.String()
		if vault.AvailableDepositLimit, err = availableDepositLimit(vault.DepositLimit, vault.BalanceTokens); err != nil {
			return err
		}
		return vm.save(vault)
	}
	return nil
}

func (vm *VaultModel) save(vault *storage.Vault) error {
	if res := vm.Db.Save(vault); res.Error != nil {
		return xerrors.Errorf("failed to save vault '%s': %w", vault.Id, res.Error)
	}
	return nil
}

func (vm *VaultModel) saveWithUpdate(vault *storage.Vault, event *chain.Event, mutate func(*storage.VaultUpdate)) error {
	if err := vm.save(vault); err != nil {
		return err
	}
	tx, err := vm.transactions.ResolveEvent(event, "vault."+event.Name)
	if err != nil {
		return err
	}
	_, err = vm.newVaultUpdate(vault, tx, func(update *storage.VaultUpdate) error {
		mutate(update)
		return nil
	})
	return err
}

// handleQueueEvent maintains the ordered withdrawal queue and each
// strategy's inQueue flag.
func (vm *VaultModel) handleQueueEvent(event *chain.Event) error {
	vault, err := vm.GetVault(event.ContractAddress)
	if err != nil {
		return err
	}
	if vault == nil {
		vm.logger.Sugar().Warnw("Queue event for unknown vault, skipping",
			zap.String("vault", event.ContractAddress),
			zap.String("event", event.Name),
		)
		return nil
	}

	switch event.Name {
	case Event_AddedToQueue:
		strategy, err := chain.AddressParam(event.Params, "strategy")
		if err != nil {
			return err
		}
		for _, s := range vault.WithdrawalQueue {
			if s == strategy {
				return nil
			}
		}
		vault.WithdrawalQueue = append(vault.WithdrawalQueue, strategy)
		if err := vm.setInQueue(strategy, true); err != nil {
			return err
		}
		return vm.save(vault)

	case Event_RemovedFromQueue:
		strategy, err := chain.AddressParam(event.Params, "strategy")
		if err != nil {
			return err
		}
		return vm.RemoveFromQueue(vault, strategy)

	case Event_UpdateQueue:
		newQueue, err := chain.AddressListParam(event.Params, "queue")
		if err != nil {
			return err
		}
		// Clear the old members first so a strategy present in both
		// queues ends flagged, never transiently dropped.
		for _, s := range vault.WithdrawalQueue {
			if err := vm.setInQueue(s, false); err != nil {
				return err
			}
		}
		queue := make([]string, 0, len(newQueue))
		for _, s := range newQueue {
			if chain.IsZeroAddress(s) {
				continue
			}
			queue = append(queue, s)
			if err := vm.setInQueue(s, true); err != nil {
				return err
			}
		}
		vault.WithdrawalQueue = queue
		return vm.save(vault)
	}
	return nil
}

// RemoveFromQueue is shared with strategy migration handling.
func (vm *VaultModel) RemoveFromQueue(vault *storage.Vault, strategy string) error {
	queue := make([]string, 0, len(vault.WithdrawalQueue))
	for _, s := range vault.WithdrawalQueue {
		if s != strategy {
			queue = append(queue, s)
		}
	}
	vault.WithdrawalQueue = queue
	if err := vm.setInQueue(strategy, false); err != nil {
		return err
	}
	return vm.save(vault)
}

func (vm *VaultModel) setInQueue(strategyId string, inQueue bool) error {
	strategy := &storage.Strategy{}
	res := vm.Db.First(strategy, "id = ?", strategyId)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		vm.logger.Sugar().Warnw("Queue event for unknown strategy",
			zap.String("strategyId", strategyId),
		)
		return nil
	}
	if res.Error != nil {
		return xerrors.Errorf("failed to look up strategy '%s': %w", strategyId, res.Error)
	}
	strategy.InQueue = inQueue
	if res := vm.Db.Save(strategy); res.Error != nil {
		return xerrors.Errorf("failed to save strategy '%s': %w", strategyId, res.Error)
	}
	return nil
}

// handleStrategyReported normalizes both report shapes, records the report,
// recognizes accrued fees and writes the net-of-fees return into the update
// chain. The older shape has no debtPaid and carries its ratio in debtLimit.
func (vm *VaultModel) handleStrategyReported(event *chain.Event) error {
	strategyAddr, err := chain.AddressParam(event.Params, "strategy")
	if err != nil {
		return err
	}
	gain, err := chain.BigParam(event.Params, "gain")
	if err != nil {
		return err
	}
	loss, err := chain.BigParam(event.Params, "loss")
	if err != nil {
		return err
	}
	totalGain, err := chain.BigParam(event.Params, "totalGain")
	if err != nil {
		return err
	}
	totalLoss, err := chain.BigParam(event.Params, "totalLoss")
	if err != nil {
		return err
	}
	totalDebt, err := chain.BigParam(event.Params, "totalDebt")
	if err != nil {
		return err
	}
	debtAdded, err := chain.BigParam(event.Params, "debtAdded")
	if err != nil {
		return err
	}

	debtPaid := big.NewInt(0)
	if chain.HasParam(event.Params, "debtPaid") {
		if debtPaid, err = chain.BigParam(event.Params, "debtPaid"); err != nil {
			return err
		}
	}
	debtRatio := big.NewInt(0)
	if chain.HasParam(event.Params, "debtRatio") {
		if debtRatio, err = chain.BigParam(event.Params, "debtRatio"); err != nil {
			return err
		}
	} else if chain.HasParam(event.Params, "debtLimit") {
		if debtRatio, err = chain.BigParam(event.Params, "debtLimit"); err != nil {
			return err
		}
	}

	vault, err := vm.GetVault(event.ContractAddress)
	if err != nil {
		return err
	}
	if vault == nil {
		vm.logger.Sugar().Warnw("Strategy report for unknown vault, skipping",
			zap.String("vault", event.ContractAddress),
		)
		return nil
	}

	strategy := &storage.Strategy{}
	res := vm.Db.First(strategy, "id = ?", strategyAddr)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		vm.logger.Sugar().Warnw("Strategy report for unknown strategy, skipping",
			zap.String("strategyId", strategyAddr),
			zap.String("vaultId", vault.Id),
		)
		return nil
	}
	if res.Error != nil {
		return xerrors.Errorf("failed to look up strategy '%s': %w", strategyAddr, res.Error)
	}

	tx, err := vm.transactions.ResolveEvent(event, "vault.strategyReported")
	if err != nil {
		return err
	}

	reportId := ids.StrategyReport(strategyAddr, tx.TransactionHash, tx.LogIndex)
	existingReport := &storage.StrategyReport{}
	res = vm.Db.First(existingReport, "id = ?", reportId)
	if res.Error == nil {
		vm.logger.Sugar().Debugw("Strategy report already recorded, skipping",
			zap.String("reportId", reportId),
		)
		return nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return xerrors.Errorf("failed to look up report '%s': %w", reportId, res.Error)
	}

	report := &storage.StrategyReport{
		Id:            reportId,
		StrategyId:    strategyAddr,
		TransactionId: tx.Id,
		Timestamp:     tx.Timestamp,
		BlockNumber:   tx.BlockNumber,
		Gain:          gain.String(),
		Loss:          loss.String(),
		TotalGain:     totalGain.String(),
		TotalLoss:     totalLoss.String(),
		TotalDebt:     totalDebt.String(),
		DebtAdded:     debtAdded.String(),
		DebtPaid:      debtPaid.String(),
		DebtRatio:     debtRatio.String(),
	}
	if res := vm.Db.Create(report); res.Error != nil {
		return xerrors.Errorf("failed to create report '%s': %w", reportId, res.Error)
	}

	if err := vm.createReportResult(strategy, report, tx); err != nil {
		return err
	}

	strategy.LatestReportId = reportId
	if res := vm.Db.Save(strategy); res.Error != nil {
		return xerrors.Errorf("failed to save strategy '%s': %w", strategyAddr, res.Error)
	}

	strategistFees, treasuryFees, err := vm.feeLedger.Recognize(vault)
	if err != nil {
		return err
	}
	feesPaid := new(big.Int).Add(strategistFees, treasuryFees)
	grossReturns := new(big.Int).Sub(gain, loss)
	netReturns := new(big.Int).Sub(grossReturns, feesPaid)

	_, err = vm.newVaultUpdate(vault, tx, func(update *storage.VaultUpdate) error {
		update.ReturnsGenerated = netReturns.String()
		return nil
	})
	return err
}

// createReportResult diffs this report against the strategy's previous one.
// A first report produces nothing.
func (vm *VaultModel) createReportResult(strategy *storage.Strategy, current *storage.StrategyReport, tx *storage.Transaction) error {
	if strategy.LatestReportId == "" || strategy.LatestReportId == current.Id {
		return nil
	}

	previous := &storage.StrategyReport{}
	res := vm.Db.First(previous, "id = ?", strategy.LatestReportId)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		vm.logger.Sugar().Warnw("Previous report missing, skipping report result",
			zap.String("previousReportId", strategy.LatestReportId),
		)
		return nil
	}
	if res.Error != nil {
		return xerrors.Errorf("failed to look up previous report: %w", res.Error)
	}

	curGain, err := numbers.FromNumeric(current.TotalGain)
	if err != nil {
		return err
	}
	prevGain, err := numbers.FromNumeric(previous.TotalGain)
	if err != nil {
		return err
	}
	totalDebt, err := numbers.FromNumeric(current.TotalDebt)
	if err != nil {
		return err
	}
	profit := new(big.Int).Sub(curGain, prevGain)

	duration := uint64(0)
	if current.Timestamp > previous.Timestamp {
		duration = current.Timestamp - previous.Timestamp
	}
	profitRatio := numbers.RatioOf(profit, totalDebt)
	apr, err := numbers.AnnualizedRatio(profitRatio, duration)
	if err != nil {
		return err
	}

	result := &storage.StrategyReportResult{
		Id:               ids.StrategyReportResult(previous.Id, current.Id),
		StrategyId:       strategy.Id,
		PreviousReportId: previous.Id,
		CurrentReportId:  current.Id,
		StartTimestamp:   previous.Timestamp,
		EndTimestamp:     current.Timestamp,
		Duration:         duration,
		ProfitRatio:      profitRatio,
		Apr:              apr,
		TransactionId:    tx.Id,
	}
	if res := vm.Db.Create(result); res.Error != nil {
		return xerrors.Errorf("failed to create report result '%s': %w", result.Id, res.Error)
	}
	return nil
}
