// Package strategies projects strategy lifecycle events: both add-strategy
// shapes, cloning, migration, harvests, and single-field attribute updates.
package strategies

import (
	"context"
	"errors"
	"math/big"

	"github.com/vaultgraph/vaultgraph/internal/chain"
	"github.com/vaultgraph/vaultgraph/internal/config"
	"github.com/vaultgraph/vaultgraph/internal/contractReader"
	"github.com/vaultgraph/vaultgraph/internal/featureFlags"
	"github.com/vaultgraph/vaultgraph/internal/ids"
	"github.com/vaultgraph/vaultgraph/internal/metrics"
	"github.com/vaultgraph/vaultgraph/internal/metrics/metricsTypes"
	"github.com/vaultgraph/vaultgraph/internal/storage"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/stateEngine"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/transactions"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/types"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/vaults"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

const (
	Event_StrategyAdded           = "StrategyAdded"
	Event_StrategyMigrated        = "StrategyMigrated"
	Event_Cloned                  = "Cloned"
	Event_Harvested               = "Harvested"
	Event_SetHealthCheck          = "SetHealthCheck"
	Event_SetDoHealthCheck        = "SetDoHealthCheck"
	Event_UpdatedKeeper           = "UpdatedKeeper"
	Event_UpdatedStrategist       = "UpdatedStrategist"
	Event_UpdatedRewards          = "UpdatedRewards"
	Event_EmergencyExitEnabled    = "EmergencyExitEnabled"
	Event_UpdateDebtRatio         = "StrategyUpdateDebtRatio"
	Event_UpdateMinDebtPerHarvest = "StrategyUpdateMinDebtPerHarvest"
	Event_UpdateMaxDebtPerHarvest = "StrategyUpdateMaxDebtPerHarvest"
	Event_UpdatePerformanceFee    = "StrategyUpdatePerformanceFee"

	Call_SetHealthCheck   = "setHealthCheck"
	Call_SetDoHealthCheck = "setDoHealthCheck"
)

var interestingEvents = map[string]bool{
	Event_StrategyAdded:           true,
	Event_StrategyMigrated:        true,
	Event_Cloned:                  true,
	Event_Harvested:               true,
	Event_SetHealthCheck:          true,
	Event_SetDoHealthCheck:        true,
	Event_UpdatedKeeper:           true,
	Event_UpdatedStrategist:       true,
	Event_UpdatedRewards:          true,
	Event_EmergencyExitEnabled:    true,
	Event_UpdateDebtRatio:         true,
	Event_UpdateMinDebtPerHarvest: true,
	Event_UpdateMaxDebtPerHarvest: true,
	Event_UpdatePerformanceFee:    true,
}

type StrategyModel struct {
	Db           *gorm.DB
	logger       *zap.Logger
	globalConfig *config.Config
	reader       contractReader.ContractReader
	transactions *transactions.TransactionResolver
	vaults       *vaults.VaultModel
	metricsSink  *metrics.MetricsSink
}

func NewStrategyModel(
	engine *stateEngine.StateEngine,
	grm *gorm.DB,
	reader contractReader.ContractReader,
	tr *transactions.TransactionResolver,
	vm *vaults.VaultModel,
	ms *metrics.MetricsSink,
	l *zap.Logger,
	cfg *config.Config,
) (*StrategyModel, error) {
	model := &StrategyModel{
		Db:           grm,
		logger:       l,
		globalConfig: cfg,
		reader:       reader,
		transactions: tr,
		vaults:       vm,
		metricsSink:  ms,
	}
	engine.RegisterModel(model, 2)
	return model, nil
}

func (sm *StrategyModel) ModelName() string {
	return "StrategyModel"
}

func (sm *StrategyModel) InterestingEvent(event *chain.Event) bool {
	return interestingEvents[event.Name]
}

func (sm *StrategyModel) InterestingCall(call *chain.Call) bool {
	return call.Name == Call_SetHealthCheck || call.Name == Call_SetDoHealthCheck
}

func (sm *StrategyModel) HandleEvent(event *chain.Event) error {
	switch event.Name {
	case Event_StrategyAdded:
		return sm.handleStrategyAdded(event)
	case Event_StrategyMigrated:
		return sm.handleStrategyMigrated(event)
	case Event_Cloned:
		return sm.handleCloned(event)
	case Event_Harvested:
		return sm.handleHarvested(event)
	case Event_SetHealthCheck, Event_SetDoHealthCheck, Event_UpdatedKeeper,
		Event_UpdatedStrategist, Event_UpdatedRewards, Event_EmergencyExitEnabled:
		return sm.handleAttributeUpdate(event)
	case Event_UpdateDebtRatio, Event_UpdateMinDebtPerHarvest,
		Event_UpdateMaxDebtPerHarvest, Event_UpdatePerformanceFee:
		return sm.handleDebtOrFeeUpdate(event)
	}
	return nil
}

// HandleCall covers the legacy health-check call surface, gated the same way
// vault deposit calls are.
func (sm *StrategyModel) HandleCall(call *chain.Call) error {
	strategy, err := sm.getStrategy(call.ContractAddress)
	if err != nil {
		return err
	}
	if strategy == nil {
		return nil
	}
	if featureFlags.VersionGreaterThan(strategy.ApiVersion, featureFlags.VaultVersionCutoff, sm.logger) {
		sm.logger.Sugar().Debugw("Skipping superseded strategy call handler",
			zap.String("strategyId", strategy.Id),
			zap.String("call", call.Name),
		)
		if sm.metricsSink != nil {
			_ = sm.metricsSink.Incr(metricsTypes.Metric_Incr_VersionGateSkip, []metricsTypes.MetricsLabel{{Name: "callName", Value: call.Name}}, 1)
		}
		return nil
	}

	switch call.Name {
	case Call_SetHealthCheck:
		healthCheck, err := chain.AddressParam(call.Inputs, "_healthCheck")
		if err != nil {
			return err
		}
		strategy.HealthCheck = healthCheck
	case Call_SetDoHealthCheck:
		doHealthCheck, err := chain.BoolParam(call.Inputs, "_doHealthCheck")
		if err != nil {
			return err
		}
		strategy.DoHealthCheck = doHealthCheck
	}
	return sm.save(strategy)
}

func (sm *StrategyModel) getStrategy(id string) (*storage.Strategy, error) {
	strategy := &storage.Strategy{}
	res := sm.Db.First(strategy, "id = ?", id)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if res.Error != nil {
		return nil, xerrors.Errorf("failed to look up strategy '%s': %w", id, res.Error)
	}
	return strategy, nil
}

func (sm *StrategyModel) save(strategy *storage.Strategy) error {
	if res := sm.Db.Save(strategy); res.Error != nil {
		return xerrors.Errorf("failed to save strategy '%s': %w", strategy.Id, res.Error)
	}
	return nil
}

// handleStrategyAdded normalizes the v1 (debtLimit/rateLimit) and v2
// (debtRatio/min/maxDebtPerHarvest) shapes. Creation is idempotent; a clone
// that was created without a vault gets attached here.
func (sm *StrategyModel) handleStrategyAdded(event *chain.Event) error {
	strategyAddr, err := chain.AddressParam(event.Params, "strategy")
	if err != nil {
		return err
	}
	performanceFee, err := chain.BigParam(event.Params, "performanceFee")
	if err != nil {
		return err
	}

	debtLimit, rateLimit := big.NewInt(0), big.NewInt(0)
	debtRatio, minDebt, maxDebt := big.NewInt(0), big.NewInt(0), big.NewInt(0)
	if chain.HasParam(event.Params, "debtRatio") {
		if debtRatio, err = chain.BigParam(event.Params, "debtRatio"); err != nil {
			return err
		}
		if minDebt, err = chain.BigParam(event.Params, "minDebtPerHarvest"); err != nil {
			return err
		}
		if maxDebt, err = chain.BigParam(event.Params, "maxDebtPerHarvest"); err != nil {
			return err
		}
	} else {
		if debtLimit, err = chain.BigParam(event.Params, "debtLimit"); err != nil {
			return err
		}
		if chain.HasParam(event.Params, "rateLimit") {
			if rateLimit, err = chain.BigParam(event.Params, "rateLimit"); err != nil {
				return err
			}
		}
	}

	tx, err := sm.transactions.ResolveEvent(event, "strategy.added")
	if err != nil {
		return err
	}
	vault, err := sm.vaults.GetOrCreateVault(event.ContractAddress, tx, storage.VaultClassification_Experimental, "", event.BlockNumber)
	if err != nil {
		return err
	}

	existing, err := sm.getStrategy(strategyAddr)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.VaultId == "" {
			existing.VaultId = vault.Id
			existing.DebtLimit = debtLimit.String()
			existing.RateLimit = rateLimit.String()
			existing.DebtRatio = debtRatio.String()
			existing.MinDebtPerHarvest = minDebt.String()
			existing.MaxDebtPerHarvest = maxDebt.String()
			existing.PerformanceFeeBps = performanceFee.Uint64()
			return sm.save(existing)
		}
		sm.logger.Sugar().Debugw("Strategy already exists, skipping add",
			zap.String("strategyId", strategyAddr),
		)
		return nil
	}

	strategy := sm.newStrategy(strategyAddr, vault.Id, tx, event.BlockNumber)
	strategy.DebtLimit = debtLimit.String()
	strategy.RateLimit = rateLimit.String()
	strategy.DebtRatio = debtRatio.String()
	strategy.MinDebtPerHarvest = minDebt.String()
	strategy.MaxDebtPerHarvest = maxDebt.String()
	strategy.PerformanceFeeBps = performanceFee.Uint64()

	if res := sm.Db.Create(strategy); res.Error != nil {
		return xerrors.Errorf("failed to create strategy '%s': %w", strategyAddr, res.Error)
	}
	sm.logger.Sugar().Infow("Created strategy",
		zap.String("strategyId", strategyAddr),
		zap.String("vaultId", vault.Id),
	)
	return nil
}

// newStrategy reads the optional accessor set with revert-tolerant defaults.
func (sm *StrategyModel) newStrategy(address string, vaultId string, tx *storage.Transaction, blockNumber uint64) *storage.Strategy {
	ctx := context.Background()
	return &storage.Strategy{
		Id:                address,
		VaultId:           vaultId,
		Name:              sm.reader.StrategyName(ctx, address, blockNumber).OrDefault("TBD"),
		ApiVersion:        sm.reader.ApiVersion(ctx, address, blockNumber).OrDefault(""),
		DebtLimit:         "0",
		RateLimit:         "0",
		DebtRatio:         "0",
		MinDebtPerHarvest: "0",
		MaxDebtPerHarvest: "0",
		Keeper:            sm.reader.Keeper(ctx, address, blockNumber).OrDefault(chain.ZeroAddress),
		Strategist:        sm.reader.Strategist(ctx, address, blockNumber).OrDefault(chain.ZeroAddress),
		Rewards:           sm.reader.StrategyRewards(ctx, address, blockNumber).OrDefault(chain.ZeroAddress),
		HealthCheck:       sm.reader.HealthCheck(ctx, address, blockNumber).OrDefault(""),
		DoHealthCheck:     sm.reader.DoHealthCheck(ctx, address, blockNumber).OrDefault(false),
		EmergencyExit:     sm.reader.EmergencyExit(ctx, address, blockNumber).OrDefault(false),
		TransactionId:     tx.Id,
		Timestamp:         tx.Timestamp,
	}
}

// handleCloned creates the clone with zeroed limits; the vault link arrives
// with the eventual StrategyAdded.
func (sm *StrategyModel) handleCloned(event *chain.Event) error {
	clone, err := chain.AddressParam(event.Params, "clone")
	if err != nil {
		return err
	}

	existing, err := sm.getStrategy(clone)
	if err != nil {
		return err
	}
	if existing != nil {
		sm.logger.Sugar().Debugw("Clone already exists, skipping",
			zap.String("strategyId", clone),
		)
		return nil
	}

	tx, err := sm.transactions.ResolveEvent(event, "strategy.cloned")
	if err != nil {
		return err
	}

	strategy := sm.newStrategy(clone, "", tx, event.BlockNumber)
	strategy.ClonedFromId = event.ContractAddress
	if res := sm.Db.Create(strategy); res.Error != nil {
		return xerrors.Errorf("failed to create clone '%s': %w", clone, res.Error)
	}
	return nil
}

// handleStrategyMigrated replaces a strategy: the new one inherits the old
// limits, a one-time migration record links the pair, and the old strategy
// leaves the withdrawal queue.
func (sm *StrategyModel) handleStrategyMigrated(event *chain.Event) error {
	oldAddr, err := chain.AddressParam(event.Params, "oldVersion")
	if err != nil {
		return err
	}
	newAddr, err := chain.AddressParam(event.Params, "newVersion")
	if err != nil {
		return err
	}

	oldStrategy, err := sm.getStrategy(oldAddr)
	if err != nil {
		return err
	}
	if oldStrategy == nil {
		sm.logger.Sugar().Warnw("Migration from unknown strategy, skipping",
			zap.String("oldStrategyId", oldAddr),
		)
		return nil
	}

	migrationId := ids.StrategyMigration(oldAddr, newAddr)
	existingMigration := &storage.StrategyMigration{}
	res := sm.Db.First(existingMigration, "id = ?", migrationId)
	if res.Error == nil {
		sm.logger.Sugar().Debugw("Migration already recorded, skipping",
			zap.String("migrationId", migrationId),
		)
		return nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return xerrors.Errorf("failed to look up migration '%s': %w", migrationId, res.Error)
	}

	tx, err := sm.transactions.ResolveEvent(event, "strategy.migrated")
	if err != nil {
		return err
	}

	newStrategy, err := sm.getStrategy(newAddr)
	if err != nil {
		return err
	}
	if newStrategy == nil {
		newStrategy = sm.newStrategy(newAddr, oldStrategy.VaultId, tx, event.BlockNumber)
		newStrategy.DebtLimit = oldStrategy.DebtLimit
		newStrategy.RateLimit = oldStrategy.RateLimit
		newStrategy.DebtRatio = oldStrategy.DebtRatio
		newStrategy.MinDebtPerHarvest = oldStrategy.MinDebtPerHarvest
		newStrategy.MaxDebtPerHarvest = oldStrategy.MaxDebtPerHarvest
		newStrategy.PerformanceFeeBps = oldStrategy.PerformanceFeeBps
		if res := sm.Db.Create(newStrategy); res.Error != nil {
			return xerrors.Errorf("failed to create strategy '%s': %w", newAddr, res.Error)
		}
	}

	migration := &storage.StrategyMigration{
		Id:            migrationId,
		OldStrategyId: oldAddr,
		NewStrategyId: newAddr,
		VaultId:       oldStrategy.VaultId,
		TransactionId: tx.Id,
		Timestamp:     tx.Timestamp,
	}
	if res := sm.Db.Create(migration); res.Error != nil {
		return xerrors.Errorf("failed to create migration '%s': %w", migrationId, res.Error)
	}

	vault, err := sm.vaults.GetVault(oldStrategy.VaultId)
	if err != nil {
		return err
	}
	if vault != nil {
		if err := sm.vaults.RemoveFromQueue(vault, oldAddr); err != nil {
			return err
		}
	}
	return nil
}

func (sm *StrategyModel) handleHarvested(event *chain.Event) error {
	profit, err := chain.BigParam(event.Params, "profit")
	if err != nil {
		return err
	}
	loss, err := chain.BigParam(event.Params, "loss")
	if err != nil {
		return err
	}
	debtPayment, err := chain.BigParam(event.Params, "debtPayment")
	if err != nil {
		return err
	}
	debtOutstanding, err := chain.BigParam(event.Params, "debtOutstanding")
	if err != nil {
		return err
	}

	strategy, err := sm.getStrategy(event.ContractAddress)
	if err != nil {
		return err
	}
	if strategy == nil {
		sm.logger.Sugar().Warnw("Harvest for unknown strategy, skipping",
			zap.String("strategyId", event.ContractAddress),
		)
		return nil
	}

	tx, err := sm.transactions.ResolveEvent(event, "strategy.harvested")
	if err != nil {
		return err
	}

	harvestId := ids.Harvest(strategy.Id, tx.TransactionHash, tx.TransactionIndex)
	existing := &storage.Harvest{}
	res := sm.Db.First(existing, "id = ?", harvestId)
	if res.Error == nil {
		sm.logger.Sugar().Debugw("Harvest already recorded, skipping",
			zap.String("harvestId", harvestId),
		)
		return nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return xerrors.Errorf("failed to look up harvest '%s': %w", harvestId, res.Error)
	}

	harvest := &storage.Harvest{
		Id:              harvestId,
		StrategyId:      strategy.Id,
		VaultId:         strategy.VaultId,
		TransactionId:   tx.Id,
		Timestamp:       tx.Timestamp,
		Profit:          profit.String(),
		Loss:            loss.String(),
		DebtPayment:     debtPayment.String(),
		DebtOutstanding: debtOutstanding.String(),
	}
	if res := sm.Db.Create(harvest); res.Error != nil {
		return xerrors.Errorf("failed to create harvest '%s': %w", harvestId, res.Error)
	}
	return nil
}

// handleAttributeUpdate mutates exactly one field on the strategy emitting
// the event; unknown strategies are warned about and skipped.
func (sm *StrategyModel) handleAttributeUpdate(event *chain.Event) error {
	strategy, err := sm.getStrategy(event.ContractAddress)
	if err != nil {
		return err
	}
	if strategy == nil {
		sm.logger.Sugar().Warnw("Attribute update for unknown strategy, skipping",
			zap.String("strategyId", event.ContractAddress),
			zap.String("event", event.Name),
		)
		return nil
	}

	switch event.Name {
	case Event_SetHealthCheck:
		healthCheck, err := chain.AddressParam(event.Params, "healthCheck")
		if err != nil {
			return err
		}
		if chain.IsZeroAddress(healthCheck) {
			strategy.HealthCheck = ""
		} else {
			strategy.HealthCheck = healthCheck
		}
	case Event_SetDoHealthCheck:
		doHealthCheck, err := chain.BoolParam(event.Params, "doHealthCheck")
		if err != nil {
			return err
		}
		strategy.DoHealthCheck = doHealthCheck
	case Event_UpdatedKeeper:
		keeper, err := chain.AddressParam(event.Params, "newKeeper")
		if err != nil {
			return err
		}
		strategy.Keeper = keeper
	case Event_UpdatedStrategist:
		strategist, err := chain.AddressParam(event.Params, "newStrategist")
		if err != nil {
			return err
		}
		strategy.Strategist = strategist
	case Event_UpdatedRewards:
		rewards, err := chain.AddressParam(event.Params, "rewards")
		if err != nil {
			return err
		}
		strategy.Rewards = rewards
	case Event_EmergencyExitEnabled:
		strategy.EmergencyExit = true
	}
	return sm.save(strategy)
}

// handleDebtOrFeeUpdate covers the vault-emitted per-strategy parameter
// events. A target strategy that is missing, or linked to a different
// vault, violates the projection's invariants and aborts this event.
func (sm *StrategyModel) handleDebtOrFeeUpdate(event *chain.Event) error {
	strategyAddr, err := chain.AddressParam(event.Params, "strategy")
	if err != nil {
		return err
	}

	strategy, err := sm.getStrategy(strategyAddr)
	if err != nil {
		return err
	}
	if strategy == nil {
		return xerrors.Errorf("%s targets unknown strategy '%s': %w",
			event.Name, strategyAddr, types.ErrInvariantViolation)
	}
	if strategy.VaultId != event.ContractAddress {
		return xerrors.Errorf("%s for strategy '%s' names vault '%s' but strategy belongs to '%s': %w",
			event.Name, strategyAddr, event.ContractAddress, strategy.VaultId, types.ErrInvariantViolation)
	}

	switch event.Name {
	case Event_UpdateDebtRatio:
		ratio, err := chain.BigParam(event.Params, "debtRatio")
		if err != nil {
			return err
		}
		strategy.DebtRatio = ratio.String()
	case Event_UpdateMinDebtPerHarvest:
		minDebt, err := chain.BigParam(event.Params, "minDebtPerHarvest")
		if err != nil {
			return err
		}
		strategy.MinDebtPerHarvest = minDebt.String()
	case Event_UpdateMaxDebtPerHarvest:
		maxDebt, err := chain.BigParam(event.Params, "maxDebtPerHarvest")
		if err != nil {
			return err
		}
		strategy.MaxDebtPerHarvest = maxDebt.String()
	case Event_UpdatePerformanceFee:
		fee, err := chain.BigParam(event.Params, "performanceFee")
		if err != nil {
			return err
		}
		strategy.PerformanceFeeBps = fee.Uint64()
	}
	return sm.save(strategy)
}
