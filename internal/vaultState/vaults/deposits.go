package vaults

import (
	"context"
	"errors"
	"math/big"

	"github.com/vaultgraph/vaultgraph/internal/chain"
	"github.com/vaultgraph/vaultgraph/internal/featureFlags"
	"github.com/vaultgraph/vaultgraph/internal/ids"
	"github.com/vaultgraph/vaultgraph/internal/metrics/metricsTypes"
	"github.com/vaultgraph/vaultgraph/internal/storage"
	"github.com/vaultgraph/vaultgraph/internal/types/numbers"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/tokenFees"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

func (vm *VaultModel) handleDepositEvent(event *chain.Event) error {
	recipient, err := chain.AddressParam(event.Params, "recipient")
	if err != nil {
		return err
	}
	shares, err := chain.BigParam(event.Params, "shares")
	if err != nil {
		return err
	}
	amount, err := chain.BigParam(event.Params, "amount")
	if err != nil {
		return err
	}

	tx, err := vm.transactions.ResolveEvent(event, "vault.deposit")
	if err != nil {
		return err
	}
	vault, err := vm.GetOrCreateVault(event.ContractAddress, tx, storage.VaultClassification_Experimental, "", event.BlockNumber)
	if err != nil {
		return err
	}

	return vm.applyDeposit(vault, recipient, amount, shares, tx, event.BlockNumber)
}

// handleDepositCall covers legacy vaults that only expose the call surface.
// Skipped entirely when the vault's API version is event-capable, and when
// the call is a minimal-proxy artifact bouncing between two tracked vaults.
func (vm *VaultModel) handleDepositCall(call *chain.Call) error {
	vault, skip, err := vm.gateCall(call, "deposit")
	if err != nil || skip {
		return err
	}

	shares := big.NewInt(0)
	if chain.HasParam(call.Outputs, "shares") {
		if shares, err = chain.BigParam(call.Outputs, "shares"); err != nil {
			return err
		}
	}

	// No amount input, or the max-uint sentinel, means "deposit all":
	// back-derive the amount from the minted shares at the current share
	// price instead of storing the sentinel.
	var amount *big.Int
	if chain.HasParam(call.Inputs, "_amount") {
		if amount, err = chain.BigParam(call.Inputs, "_amount"); err != nil {
			return err
		}
	}
	if amount == nil || amount.Cmp(chain.MaxUint256) == 0 {
		ctx := context.Background()
		totalAssets := vm.reader.TotalAssets(ctx, vault.Id, call.BlockNumber).OrDefault(big.NewInt(0))
		totalSupply := vm.reader.TotalSupply(ctx, vault.Id, call.BlockNumber).OrDefault(big.NewInt(0))
		amount = numbers.MulDiv(shares, totalAssets, totalSupply)
	}

	recipient := call.Caller
	if chain.HasParam(call.Inputs, "_recipient") {
		if recipient, err = chain.AddressParam(call.Inputs, "_recipient"); err != nil {
			return err
		}
	}

	tx, err := vm.transactions.ResolveCall(call, "vault.deposit.call")
	if err != nil {
		return err
	}
	return vm.applyDeposit(vault, recipient, amount, shares, tx, call.BlockNumber)
}

func (vm *VaultModel) applyDeposit(
	vault *storage.Vault,
	account string,
	amount *big.Int,
	shares *big.Int,
	tx *storage.Transaction,
	blockNumber uint64,
) error {
	depositId := ids.AccountUpdate(account, tx.TransactionHash, tx.LogIndex, tx.TransactionIndex)
	existing := &storage.Deposit{}
	res := vm.Db.First(existing, "id = ?", depositId)
	if res.Error == nil {
		vm.logger.Sugar().Debugw("Deposit already recorded, skipping",
			zap.String("depositId", depositId),
		)
		vm.incr(metricsTypes.Metric_Incr_DuplicateEntity, []metricsTypes.MetricsLabel{{Name: "entity", Value: "deposit"}})
		return nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return xerrors.Errorf("failed to look up deposit '%s': %w", depositId, res.Error)
	}

	ctx := context.Background()
	usd := vm.prices.ResolveUsdValue(ctx, vault.TokenId, amount, blockNumber)

	deposit := &storage.Deposit{
		Id:              depositId,
		AccountId:       account,
		VaultId:         vault.Id,
		TransactionId:   tx.Id,
		Timestamp:       tx.Timestamp,
		BlockNumber:     tx.BlockNumber,
		TokenAmount:     amount.String(),
		TokenAmountUsdc: usd.String(),
		SharesMinted:    shares.String(),
	}
	if res := vm.Db.Create(deposit); res.Error != nil {
		return xerrors.Errorf("failed to create deposit '%s': %w", depositId, res.Error)
	}

	if _, err := vm.positions.HandleDeposit(account, vault, tx, amount, shares); err != nil {
		return err
	}

	var err error
	if vault.SharesSupply, err = numbers.AddNumeric(vault.SharesSupply, shares); err != nil {
		return err
	}
	if vault.BalanceTokens, err = numbers.AddNumeric(vault.BalanceTokens, amount); err != nil {
		return err
	}
	if vault.BalanceTokensIdle, err = numbers.AddNumeric(vault.BalanceTokensIdle, amount); err != nil {
		return err
	}

	_, err = vm.newVaultUpdate(vault, tx, func(update *storage.VaultUpdate) error {
		update.TokensDeposited = amount.String()
		update.SharesMinted = shares.String()
		return nil
	})
	return err
}

func (vm *VaultModel) handleWithdrawEvent(event *chain.Event) error {
	recipient, err := chain.AddressParam(event.Params, "recipient")
	if err != nil {
		return err
	}
	shares, err := chain.BigParam(event.Params, "shares")
	if err != nil {
		return err
	}
	amount, err := chain.BigParam(event.Params, "amount")
	if err != nil {
		return err
	}

	tx, err := vm.transactions.ResolveEvent(event, "vault.withdraw")
	if err != nil {
		return err
	}
	vault, err := vm.GetOrCreateVault(event.ContractAddress, tx, storage.VaultClassification_Experimental, "", event.BlockNumber)
	if err != nil {
		return err
	}

	return vm.applyWithdrawal(vault, recipient, amount, shares, tx, event.BlockNumber)
}

func (vm *VaultModel) handleWithdrawCall(call *chain.Call) error {
	vault, skip, err := vm.gateCall(call, "withdraw")
	if err != nil || skip {
		return err
	}

	withdrawn := big.NewInt(0)
	if chain.HasParam(call.Outputs, "amount") {
		if withdrawn, err = chain.BigParam(call.Outputs, "amount"); err != nil {
			return err
		}
	}

	// The no-argument withdraw variant burns however many shares the
	// returned amount was worth at the current share price.
	var shares *big.Int
	if chain.HasParam(call.Inputs, "_shares") {
		if shares, err = chain.BigParam(call.Inputs, "_shares"); err != nil {
			return err
		}
	}
	if shares == nil {
		ctx := context.Background()
		totalAssets := vm.reader.TotalAssets(ctx, vault.Id, call.BlockNumber).OrDefault(big.NewInt(0))
		totalSupply := vm.reader.TotalSupply(ctx, vault.Id, call.BlockNumber).OrDefault(big.NewInt(0))
		if totalAssets.Sign() == 0 {
			shares = new(big.Int).Set(withdrawn)
		} else {
			shares = numbers.MulDiv(withdrawn, totalSupply, totalAssets)
		}
	}

	recipient := call.Caller
	if chain.HasParam(call.Inputs, "_recipient") {
		if recipient, err = chain.AddressParam(call.Inputs, "_recipient"); err != nil {
			return err
		}
	}

	tx, err := vm.transactions.ResolveCall(call, "vault.withdraw.call")
	if err != nil {
		return err
	}
	return vm.applyWithdrawal(vault, recipient, withdrawn, shares, tx, call.BlockNumber)
}

func (vm *VaultModel) applyWithdrawal(
	vault *storage.Vault,
	account string,
	amount *big.Int,
	shares *big.Int,
	tx *storage.Transaction,
	blockNumber uint64,
) error {
	withdrawalId := ids.AccountUpdate(account, tx.TransactionHash, tx.LogIndex, tx.TransactionIndex)
	existing := &storage.Withdrawal{}
	res := vm.Db.First(existing, "id = ?", withdrawalId)
	if res.Error == nil {
		vm.logger.Sugar().Debugw("Withdrawal already recorded, skipping",
			zap.String("withdrawalId", withdrawalId),
		)
		vm.incr(metricsTypes.Metric_Incr_DuplicateEntity, []metricsTypes.MetricsLabel{{Name: "entity", Value: "withdrawal"}})
		return nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return xerrors.Errorf("failed to look up withdrawal '%s': %w", withdrawalId, res.Error)
	}

	ctx := context.Background()
	usd := vm.prices.ResolveUsdValue(ctx, vault.TokenId, amount, blockNumber)

	withdrawal := &storage.Withdrawal{
		Id:              withdrawalId,
		AccountId:       account,
		VaultId:         vault.Id,
		TransactionId:   tx.Id,
		Timestamp:       tx.Timestamp,
		BlockNumber:     tx.BlockNumber,
		TokenAmount:     amount.String(),
		TokenAmountUsdc: usd.String(),
		SharesBurnt:     shares.String(),
	}
	if res := vm.Db.Create(withdrawal); res.Error != nil {
		return xerrors.Errorf("failed to create withdrawal '%s': %w", withdrawalId, res.Error)
	}

	if _, err := vm.positions.HandleWithdrawal(account, vault, tx, amount, shares); err != nil {
		return err
	}

	var err error
	if vault.SharesSupply, err = numbers.SubNumeric(vault.SharesSupply, shares); err != nil {
		return err
	}
	if vault.BalanceTokens, err = numbers.SubNumeric(vault.BalanceTokens, amount); err != nil {
		return err
	}
	if vault.BalanceTokensIdle, err = numbers.SubNumeric(vault.BalanceTokensIdle, amount); err != nil {
		return err
	}

	_, err = vm.newVaultUpdate(vault, tx, func(update *storage.VaultUpdate) error {
		update.TokensWithdrawn = amount.String()
		update.SharesBurnt = shares.String()
		return nil
	})
	return err
}

// handleTransferEvent processes share movements between two live accounts.
// Mint and burn transfers are covered by deposit and withdraw handling, and
// transfers on untracked contracts are ignored.
func (vm *VaultModel) handleTransferEvent(event *chain.Event) error {
	sender, err := chain.AddressParam(event.Params, "sender")
	if err != nil {
		return err
	}
	receiver, err := chain.AddressParam(event.Params, "receiver")
	if err != nil {
		return err
	}
	shares, err := chain.BigParam(event.Params, "value")
	if err != nil {
		return err
	}

	if chain.IsZeroAddress(sender) || chain.IsZeroAddress(receiver) {
		return nil
	}

	vault, err := vm.GetVault(event.ContractAddress)
	if err != nil {
		return err
	}
	if vault == nil {
		return nil
	}

	tx, err := vm.transactions.ResolveEvent(event, "vault.transfer")
	if err != nil {
		return err
	}

	// The dedupe check runs before fee accrual: a redelivered transfer must
	// not accrue into the unrecognized counters a second time.
	transferId := ids.Transfer(sender, receiver, tx.Id)
	existing := &storage.Transfer{}
	res := vm.Db.First(existing, "id = ?", transferId)
	if res.Error == nil {
		vm.logger.Sugar().Debugw("Transfer already recorded, skipping",
			zap.String("transferId", transferId),
		)
		vm.incr(metricsTypes.Metric_Incr_DuplicateEntity, []metricsTypes.MetricsLabel{{Name: "entity", Value: "transfer"}})
		return nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return xerrors.Errorf("failed to look up transfer '%s': %w", transferId, res.Error)
	}

	ctx := context.Background()
	totalAssets := vm.reader.TotalAssets(ctx, vault.Id, event.BlockNumber).OrDefault(big.NewInt(0))
	totalSupply := vm.reader.TotalSupply(ctx, vault.Id, event.BlockNumber).OrDefault(big.NewInt(0))
	tokenAmount := numbers.MulDiv(shares, totalAssets, totalSupply)

	classification, err := vm.feeLedger.ClassifyAndAccrue(vault, receiver, shares)
	if err != nil {
		return err
	}

	if _, err := vm.positions.EnsureAccount(sender); err != nil {
		return err
	}
	if _, err := vm.positions.EnsureAccount(receiver); err != nil {
		return err
	}

	usd := vm.prices.ResolveUsdValue(ctx, vault.TokenId, tokenAmount, event.BlockNumber)
	transfer := &storage.Transfer{
		Id:              transferId,
		FromAccountId:   sender,
		ToAccountId:     receiver,
		VaultId:         vault.Id,
		TokenId:         vault.ShareTokenId,
		TransactionId:   tx.Id,
		Timestamp:       tx.Timestamp,
		ShareAmount:     shares.String(),
		TokenAmount:     tokenAmount.String(),
		TokenAmountUsdc: usd.String(),
		IsFeeToStrategy: classification.Kind == tokenFees.FeeKind_Strategy,
		IsFeeToTreasury: classification.Kind == tokenFees.FeeKind_Treasury,
	}
	if res := vm.Db.Create(transfer); res.Error != nil {
		return xerrors.Errorf("failed to create transfer '%s': %w", transferId, res.Error)
	}

	return vm.positions.HandleTransfer(sender, receiver, vault, tx, shares, tokenAmount)
}

// gateCall applies the version gate and the proxy de-duplication check to a
// legacy call. Returns skip=true when the call must not be processed.
func (vm *VaultModel) gateCall(call *chain.Call, kind string) (*storage.Vault, bool, error) {
	tx, err := vm.transactions.ResolveCall(call, "vault."+kind+".call")
	if err != nil {
		return nil, false, err
	}
	vault, err := vm.GetOrCreateVault(call.ContractAddress, tx, storage.VaultClassification_Experimental, "", call.BlockNumber)
	if err != nil {
		return nil, false, err
	}

	apiVersion := vault.ApiVersion
	if apiVersion == "" {
		apiVersion = vm.reader.ApiVersion(context.Background(), vault.Id, call.BlockNumber).OrDefault("")
	}
	if featureFlags.VersionGreaterThan(apiVersion, featureFlags.VaultVersionCutoff, vm.logger) {
		vm.logger.Sugar().Debugw("Skipping superseded call handler",
			zap.String("vaultId", vault.Id),
			zap.String("call", kind),
			zap.String("apiVersion", apiVersion),
		)
		vm.incr(metricsTypes.Metric_Incr_VersionGateSkip, []metricsTypes.MetricsLabel{{Name: "callName", Value: kind}})
		return vault, true, nil
	}

	// A deposit or withdraw call whose caller is itself a tracked vault is
	// a minimal-proxy double delivery of the same user action.
	callerVault, err := vm.GetVault(call.Caller)
	if err != nil {
		return nil, false, err
	}
	if callerVault != nil {
		vm.logger.Sugar().Debugw("Skipping proxy double call",
			zap.String("vaultId", vault.Id),
			zap.String("caller", call.Caller),
		)
		return vault, true, nil
	}

	return vault, false, nil
}
