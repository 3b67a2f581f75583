// Package vaults is the central projection state machine. It folds vault
// contract events and legacy calls into Vault, VaultUpdate, Deposit,
// Withdrawal and Transfer entities, delegating fee accounting, position
// bookkeeping, pricing and day rollups to their own components.
package vaults

import (
	"context"
	"errors"
	"math/big"

	"github.com/vaultgraph/vaultgraph/internal/chain"
	"github.com/vaultgraph/vaultgraph/internal/config"
	"github.com/vaultgraph/vaultgraph/internal/contractReader"
	"github.com/vaultgraph/vaultgraph/internal/ids"
	"github.com/vaultgraph/vaultgraph/internal/metrics"
	"github.com/vaultgraph/vaultgraph/internal/metrics/metricsTypes"
	"github.com/vaultgraph/vaultgraph/internal/storage"
	"github.com/vaultgraph/vaultgraph/internal/types/numbers"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/positions"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/prices"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/stateEngine"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/tokenFees"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/transactions"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/vaultDayData"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

const (
	Event_Deposit              = "Deposit"
	Event_Withdraw             = "Withdraw"
	Event_Transfer             = "Transfer"
	Event_StrategyReported     = "StrategyReported"
	Event_UpdatePerformanceFee = "UpdatePerformanceFee"
	Event_UpdateManagementFee  = "UpdateManagementFee"
	Event_UpdateRewards        = "UpdateRewards"
	Event_UpdateGuardian       = "UpdateGuardian"
	Event_UpdateManagement     = "UpdateManagement"
	Event_UpdateGovernance     = "UpdateGovernance"
	Event_UpdateDepositLimit   = "UpdateDepositLimit"
	Event_UpdateHealthCheck    = "UpdateHealthCheck"
	Event_AddedToQueue         = "StrategyAddedToQueue"
	Event_RemovedFromQueue     = "StrategyRemovedFromQueue"
	Event_UpdateQueue          = "UpdateWithdrawalQueue"

	Call_Deposit  = "deposit"
	Call_Withdraw = "withdraw"
)

var interestingEvents = map[string]bool{
	Event_Deposit:              true,
	Event_Withdraw:             true,
	Event_Transfer:             true,
	Event_StrategyReported:     true,
	Event_UpdatePerformanceFee: true,
	Event_UpdateManagementFee:  true,
	Event_UpdateRewards:        true,
	Event_UpdateGuardian:       true,
	Event_UpdateManagement:     true,
	Event_UpdateGovernance:     true,
	Event_UpdateDepositLimit:   true,
	Event_UpdateHealthCheck:    true,
	Event_AddedToQueue:         true,
	Event_RemovedFromQueue:     true,
	Event_UpdateQueue:          true,
}

type VaultModel struct {
	Db           *gorm.DB
	logger       *zap.Logger
	globalConfig *config.Config
	reader       contractReader.ContractReader
	transactions *transactions.TransactionResolver
	feeLedger    *tokenFees.FeeLedger
	positions    *positions.PositionManager
	prices       *prices.PriceResolver
	dayData      *vaultDayData.Aggregator
	metricsSink  *metrics.MetricsSink
}

func NewVaultModel(
	engine *stateEngine.StateEngine,
	grm *gorm.DB,
	reader contractReader.ContractReader,
	tr *transactions.TransactionResolver,
	fl *tokenFees.FeeLedger,
	pm *positions.PositionManager,
	pr *prices.PriceResolver,
	dd *vaultDayData.Aggregator,
	ms *metrics.MetricsSink,
	l *zap.Logger,
	cfg *config.Config,
) (*VaultModel, error) {
	model := &VaultModel{
		Db:           grm,
		logger:       l,
		globalConfig: cfg,
		reader:       reader,
		transactions: tr,
		feeLedger:    fl,
		positions:    pm,
		prices:       pr,
		dayData:      dd,
		metricsSink:  ms,
	}
	engine.RegisterModel(model, 1)
	return model, nil
}

func (vm *VaultModel) ModelName() string {
	return "VaultModel"
}

func (vm *VaultModel) incr(name string, labels []metricsTypes.MetricsLabel) {
	if vm.metricsSink != nil {
		_ = vm.metricsSink.Incr(name, labels, 1)
	}
}

func (vm *VaultModel) InterestingEvent(event *chain.Event) bool {
	return interestingEvents[event.Name]
}

func (vm *VaultModel) InterestingCall(call *chain.Call) bool {
	return call.Name == Call_Deposit || call.Name == Call_Withdraw
}

func (vm *VaultModel) HandleEvent(event *chain.Event) error {
	switch event.Name {
	case Event_Deposit:
		return vm.handleDepositEvent(event)
	case Event_Withdraw:
		return vm.handleWithdrawEvent(event)
	case Event_Transfer:
		return vm.handleTransferEvent(event)
	case Event_StrategyReported:
		return vm.handleStrategyReported(event)
	case Event_UpdatePerformanceFee, Event_UpdateManagementFee, Event_UpdateRewards,
		Event_UpdateGuardian, Event_UpdateManagement, Event_UpdateGovernance,
		Event_UpdateDepositLimit, Event_UpdateHealthCheck:
		return vm.handleParameterUpdate(event)
	case Event_AddedToQueue, Event_RemovedFromQueue, Event_UpdateQueue:
		return vm.handleQueueEvent(event)
	}
	return nil
}

func (vm *VaultModel) HandleCall(call *chain.Call) error {
	switch call.Name {
	case Call_Deposit:
		return vm.handleDepositCall(call)
	case Call_Withdraw:
		return vm.handleWithdrawCall(call)
	}
	return nil
}

// GetVault returns a tracked vault or nil when the address is unknown.
func (vm *VaultModel) GetVault(id string) (*storage.Vault, error) {
	vault := &storage.Vault{}
	res := vm.Db.First(vault, "id = ?", id)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if res.Error != nil {
		return nil, xerrors.Errorf("failed to look up vault '%s': %w", id, res.Error)
	}
	return vault, nil
}

// GetOrCreateVault creates a vault on first sight, reading every optional
// accessor revert-tolerantly. Vaults first seen outside a registry event
// default to the Experimental classification.
func (vm *VaultModel) GetOrCreateVault(
	address string,
	tx *storage.Transaction,
	classification string,
	registryId string,
	blockNumber uint64,
) (*storage.Vault, error) {
	existing, err := vm.GetVault(address)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	ctx := context.Background()
	zero := big.NewInt(0)

	token := vm.reader.Token(ctx, address, blockNumber).OrDefault(chain.ZeroAddress)
	if _, err := vm.ensureToken(ctx, token, blockNumber); err != nil {
		return nil, err
	}
	if _, err := vm.ensureToken(ctx, address, blockNumber); err != nil {
		return nil, err
	}

	depositLimit := vm.reader.DepositLimit(ctx, address, blockNumber).OrDefault(zero)

	vault := &storage.Vault{
		Id:                    address,
		TokenId:               token,
		ShareTokenId:          address,
		RegistryId:            registryId,
		Classification:        classification,
		ApiVersion:            vm.reader.ApiVersion(ctx, address, blockNumber).OrDefault(""),
		Tags:                  []string{},
		SharesSupply:          "0",
		BalanceTokens:         "0",
		BalanceTokensIdle:     "0",
		DepositLimit:          depositLimit.String(),
		AvailableDepositLimit: depositLimit.String(),
		ManagementFeeBps:      vm.reader.ManagementFee(ctx, address, blockNumber).OrDefault(zero).Uint64(),
		PerformanceFeeBps:     vm.reader.PerformanceFee(ctx, address, blockNumber).OrDefault(zero).Uint64(),
		Governance:            vm.reader.Governance(ctx, address, blockNumber).OrDefault(chain.ZeroAddress),
		Management:            vm.reader.Management(ctx, address, blockNumber).OrDefault(chain.ZeroAddress),
		Guardian:              vm.reader.Guardian(ctx, address, blockNumber).OrDefault(chain.ZeroAddress),
		Rewards:               vm.reader.Rewards(ctx, address, blockNumber).OrDefault(chain.ZeroAddress),
		WithdrawalQueue:       []string{},
		Activation:            vm.reader.Activation(ctx, address, blockNumber).OrDefault(zero).Uint64() * 1000,
	}
	if res := vm.Db.Create(vault); res.Error != nil {
		return nil, xerrors.Errorf("failed to create vault '%s': %w", address, res.Error)
	}

	vm.logger.Sugar().Infow("Created vault",
		zap.String("vaultId", address),
		zap.String("classification", classification),
		zap.String("apiVersion", vault.ApiVersion),
	)
	return vault, nil
}

// Endorse reclassifies a vault when a registry endorses it.
func (vm *VaultModel) Endorse(vault *storage.Vault, classification string, registryId string) error {
	vault.Classification = classification
	if registryId != "" {
		vault.RegistryId = registryId
	}
	if res := vm.Db.Save(vault); res.Error != nil {
		return xerrors.Errorf("failed to save vault '%s': %w", vault.Id, res.Error)
	}
	return nil
}

// SetTags applies registry tagging.
func (vm *VaultModel) SetTags(vault *storage.Vault, tags []string) error {
	vault.Tags = tags
	if res := vm.Db.Save(vault); res.Error != nil {
		return xerrors.Errorf("failed to save vault '%s': %w", vault.Id, res.Error)
	}
	return nil
}

func (vm *VaultModel) ensureToken(ctx context.Context, address string, blockNumber uint64) (*storage.Token, error) {
	if chain.IsZeroAddress(address) {
		return nil, nil
	}
	token := &storage.Token{}
	res := vm.Db.First(token, "id = ?", address)
	if res.Error == nil {
		return token, nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, xerrors.Errorf("failed to look up token '%s': %w", address, res.Error)
	}

	token = &storage.Token{
		Id:       address,
		Name:     vm.reader.TokenName(ctx, address, blockNumber).OrDefault("Unknown Token"),
		Symbol:   vm.reader.TokenSymbol(ctx, address, blockNumber).OrDefault("UNKNOWN"),
		Decimals: vm.reader.TokenDecimals(ctx, address, blockNumber).OrDefault(18),
	}
	if res := vm.Db.Create(token); res.Error != nil {
		return nil, xerrors.Errorf("failed to create token '%s': %w", address, res.Error)
	}
	return token, nil
}

// availableDepositLimit is zero once the balance reaches the limit.
func availableDepositLimit(depositLimit string, balanceTokens string) (string, error) {
	limit, err := numbers.FromNumeric(depositLimit)
	if err != nil {
		return "", err
	}
	balance, err := numbers.FromNumeric(balanceTokens)
	if err != nil {
		return "", err
	}
	if limit.Cmp(balance) <= 0 {
		return "0", nil
	}
	return new(big.Int).Sub(limit, balance).String(), nil
}

// newVaultUpdate snapshots running totals alongside the event's deltas,
// links it into the vault's backward chain and feeds the day aggregator.
func (vm *VaultModel) newVaultUpdate(
	vault *storage.Vault,
	tx *storage.Transaction,
	build func(update *storage.VaultUpdate) error,
) (*storage.VaultUpdate, error) {
	ctx := context.Background()

	totalFees, err := vm.feeLedger.TotalFees(vault.Id)
	if err != nil {
		return nil, err
	}

	update := &storage.VaultUpdate{
		Id:                   ids.VaultUpdate(vault.Id, tx.TransactionHash, tx.LogIndex, tx.TransactionIndex),
		VaultId:              vault.Id,
		TransactionId:        tx.Id,
		Timestamp:            tx.Timestamp,
		BlockNumber:          tx.BlockNumber,
		TokensDeposited:      "0",
		TokensWithdrawn:      "0",
		SharesMinted:         "0",
		SharesBurnt:          "0",
		PricePerShare:        vm.reader.PricePerShare(ctx, vault.Id, tx.BlockNumber).OrDefault(big.NewInt(0)).String(),
		TotalFees:            totalFees.String(),
		CurrentBalanceTokens: vault.BalanceTokens,
		ReturnsGenerated:     "0",
	}
	if err := build(update); err != nil {
		return nil, err
	}
	update.CurrentBalanceTokens = vault.BalanceTokens

	existing := &storage.VaultUpdate{}
	res := vm.Db.First(existing, "id = ?", update.Id)
	if res.Error == nil {
		vm.logger.Sugar().Debugw("Vault update already exists, skipping",
			zap.String("vaultUpdateId", update.Id),
		)
		vm.incr(metricsTypes.Metric_Incr_DuplicateEntity, []metricsTypes.MetricsLabel{{Name: "entity", Value: "vaultUpdate"}})
		return existing, nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, xerrors.Errorf("failed to look up vault update '%s': %w", update.Id, res.Error)
	}

	if res := vm.Db.Create(update); res.Error != nil {
		return nil, xerrors.Errorf("failed to create vault update '%s': %w", update.Id, res.Error)
	}

	vault.AvailableDepositLimit, err = availableDepositLimit(vault.DepositLimit, vault.BalanceTokens)
	if err != nil {
		return nil, err
	}
	vault.LatestUpdateId = update.Id
	vault.LatestUpdateBlock = update.BlockNumber
	if res := vm.Db.Save(vault); res.Error != nil {
		return nil, xerrors.Errorf("failed to save vault '%s': %w", vault.Id, res.Error)
	}

	if _, err := vm.dayData.Rollup(ctx, vault, update); err != nil {
		return nil, err
	}
	return update, nil
}
