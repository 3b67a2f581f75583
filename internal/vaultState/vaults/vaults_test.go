package vaults

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vaultgraph/vaultgraph/internal/chain"
	"github.com/vaultgraph/vaultgraph/internal/config"
	"github.com/vaultgraph/vaultgraph/internal/ids"
	"github.com/vaultgraph/vaultgraph/internal/logger"
	"github.com/vaultgraph/vaultgraph/internal/storage"
	"github.com/vaultgraph/vaultgraph/internal/tests"
	"github.com/vaultgraph/vaultgraph/internal/tests/chainmock"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/positions"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/prices"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/stateEngine"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/tokenFees"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/transactions"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/vaultDayData"
	"gorm.io/gorm"
)

const (
	vaultAddr    = "0x19d3364a399d251e894ac732651be8b0e4e85001"
	tokenAddr    = "0x6b175474e89094c44da98b954eedeac495271d0f"
	strategyAddr = "0x4031afd3b0f71bace9181e554a9e680ee4abe7df"
	rewardsAddr  = "0x93a62da5a14c80f265dabc077fcee437b1a0efde"
	alice        = "0xfeb4acf3df3cdea7399794d0869ef76a6efaff52"
)

func setup() (*config.Config, *gorm.DB, *chainmock.Reader, *VaultModel, error) {
	cfg := tests.GetConfig()
	_, grm, err := tests.GetDatabaseConnection(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	l := logger.NewTestLogger()
	reader := chainmock.NewReader()

	engine := stateEngine.NewStateEngine(grm, l, nil)
	tr := transactions.NewTransactionResolver(grm, l)
	fl := tokenFees.NewFeeLedger(grm, l)
	pm := positions.NewPositionManager(grm, l)
	pr := prices.NewPriceResolver(grm, reader, cfg.PriceSources(), l, nil)
	dd := vaultDayData.NewAggregator(grm, pr, l)

	vm, err := NewVaultModel(engine, grm, reader, tr, fl, pm, pr, dd, nil, l, cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return cfg, grm, reader, vm, nil
}

func newEvent(name string, txHash string, logIndex uint64, params map[string]interface{}) *chain.Event {
	return &chain.Event{
		ContractAddress:  vaultAddr,
		BlockNumber:      12000000,
		BlockTimestamp:   1609502400,
		TransactionHash:  txHash,
		TransactionIndex: 1,
		LogIndex:         logIndex,
		TransactionFrom:  alice,
		TransactionTo:    vaultAddr,
		Name:             name,
		Params:           params,
	}
}

func scriptVault(reader *chainmock.Reader, apiVersion string) {
	reader.SetString("token", vaultAddr, tokenAddr)
	reader.SetString("apiVersion", vaultAddr, apiVersion)
	reader.SetString("rewards", vaultAddr, rewardsAddr)
}

func latestVaultUpdate(grm *gorm.DB, vault *storage.Vault) (*storage.VaultUpdate, error) {
	update := &storage.VaultUpdate{}
	res := grm.First(update, "id = ?", vault.LatestUpdateId)
	return update, res.Error
}

func Test_BootstrapDeposit(t *testing.T) {
	_, grm, reader, vm, err := setup()
	if err != nil {
		t.Fatal(err)
	}
	scriptVault(reader, "0.3.0")

	event := newEvent(Event_Deposit, "0xaaa", 1, map[string]interface{}{
		"recipient": alice,
		"shares":    "79056085",
		"amount":    "79056085",
	})

	t.Run("First deposit into an empty vault mints one to one", func(t *testing.T) {
		assert.True(t, vm.InterestingEvent(event))
		assert.Nil(t, vm.HandleEvent(event))

		vault, err := vm.GetVault(vaultAddr)
		assert.Nil(t, err)
		assert.NotNil(t, vault)
		assert.Equal(t, "79056085", vault.SharesSupply)
		assert.Equal(t, "79056085", vault.BalanceTokens)
		assert.Equal(t, "79056085", vault.BalanceTokensIdle)
		assert.Equal(t, tokenAddr, vault.TokenId)
		assert.Equal(t, storage.VaultClassification_Experimental, vault.Classification)

		deposit := &storage.Deposit{}
		depositId := ids.AccountUpdate(alice, "0xaaa", 1, 1)
		assert.Nil(t, grm.First(deposit, "id = ?", depositId).Error)
		assert.Equal(t, "79056085", deposit.TokenAmount)
		assert.Equal(t, "79056085", deposit.SharesMinted)

		update, err := latestVaultUpdate(grm, vault)
		assert.Nil(t, err)
		assert.Equal(t, "79056085", update.TokensDeposited)
		assert.Equal(t, "79056085", update.SharesMinted)
		assert.Equal(t, "0", update.TokensWithdrawn)

		position := &storage.AccountVaultPosition{}
		assert.Nil(t, grm.First(position, "id = ?", ids.AccountVaultPosition(alice, vaultAddr)).Error)
		assert.Equal(t, "79056085", position.BalanceShares)
	})

	t.Run("Redelivery of the same event changes nothing", func(t *testing.T) {
		assert.Nil(t, vm.HandleEvent(event))

		vault, err := vm.GetVault(vaultAddr)
		assert.Nil(t, err)
		assert.Equal(t, "79056085", vault.SharesSupply)

		var count int64
		grm.Model(&storage.Deposit{}).Count(&count)
		assert.Equal(t, int64(1), count)
	})
}

func Test_FeeSplitAndRecognition(t *testing.T) {
	_, grm, reader, vm, err := setup()
	if err != nil {
		t.Fatal(err)
	}
	scriptVault(reader, "0.3.0")
	reader.SetBig("totalAssets", vaultAddr, big.NewInt(100000000))
	reader.SetBig("totalSupply", vaultAddr, big.NewInt(100000000))

	// Fund the vault so the share transfers have something to move.
	assert.Nil(t, vm.HandleEvent(newEvent(Event_Deposit, "0xaaa", 1, map[string]interface{}{
		"recipient": alice,
		"shares":    "100000000",
		"amount":    "100000000",
	})))

	res := grm.Create(&storage.Strategy{Id: strategyAddr, VaultId: vaultAddr})
	assert.Nil(t, res.Error)

	t.Run("Fee transfers accrue by destination", func(t *testing.T) {
		strategyFee := newEvent(Event_Transfer, "0xbbb", 2, map[string]interface{}{
			"sender":   alice,
			"receiver": strategyAddr,
			"value":    "3304563",
		})
		assert.Nil(t, vm.HandleEvent(strategyFee))
		assert.Nil(t, vm.HandleEvent(newEvent(Event_Transfer, "0xbbb", 3, map[string]interface{}{
			"sender":   alice,
			"receiver": rewardsAddr,
			"value":    "16570558",
		})))

		// Redelivery of an already-recorded transfer must not accrue again.
		assert.Nil(t, vm.HandleEvent(strategyFee))

		strategyTransfer := &storage.Transfer{}
		transferId := ids.Transfer(alice, strategyAddr, ids.Transaction("0xbbb", 2))
		assert.Nil(t, grm.First(strategyTransfer, "id = ?", transferId).Error)
		assert.True(t, strategyTransfer.IsFeeToStrategy)
		assert.False(t, strategyTransfer.IsFeeToTreasury)

		treasuryTransfer := &storage.Transfer{}
		transferId = ids.Transfer(alice, rewardsAddr, ids.Transaction("0xbbb", 3))
		assert.Nil(t, grm.First(treasuryTransfer, "id = ?", transferId).Error)
		assert.True(t, treasuryTransfer.IsFeeToTreasury)

		fee := &storage.TokenFee{}
		assert.Nil(t, grm.First(fee, "id = ?", vaultAddr).Error)
		assert.Equal(t, "3304563", fee.UnrecognizedStrategyFees)
		assert.Equal(t, "16570558", fee.UnrecognizedTreasuryFees)

		var count int64
		grm.Model(&storage.Transfer{}).Count(&count)
		assert.Equal(t, int64(2), count)
	})

	t.Run("The next report recognizes fees and nets them out of returns", func(t *testing.T) {
		assert.Nil(t, vm.HandleEvent(newEvent(Event_StrategyReported, "0xccc", 4, map[string]interface{}{
			"strategy":  strategyAddr,
			"gain":      "33043378",
			"loss":      "0",
			"totalGain": "33043378",
			"totalLoss": "0",
			"totalDebt": "50000000",
			"debtAdded": "0",
			"debtPaid":  "0",
			"debtRatio": "5000",
		})))

		vault, err := vm.GetVault(vaultAddr)
		assert.Nil(t, err)
		update, err := latestVaultUpdate(grm, vault)
		assert.Nil(t, err)
		// 33043378 - (3304563 + 16570558)
		assert.Equal(t, "13168257", update.ReturnsGenerated)
		assert.Equal(t, "19875121", update.TotalFees)

		fee := &storage.TokenFee{}
		assert.Nil(t, grm.First(fee, "id = ?", vaultAddr).Error)
		assert.Equal(t, "0", fee.UnrecognizedStrategyFees)
		assert.Equal(t, "0", fee.UnrecognizedTreasuryFees)
		assert.Equal(t, "19875121", fee.TotalFees)

		report := &storage.StrategyReport{}
		reportId := ids.StrategyReport(strategyAddr, "0xccc", 4)
		assert.Nil(t, grm.First(report, "id = ?", reportId).Error)
		assert.Equal(t, "33043378", report.Gain)
		assert.Equal(t, "5000", report.DebtRatio)
	})

	t.Run("A second report produces a report result", func(t *testing.T) {
		assert.Nil(t, vm.HandleEvent(newEvent(Event_StrategyReported, "0xddd", 5, map[string]interface{}{
			"strategy":  strategyAddr,
			"gain":      "1000000",
			"loss":      "0",
			"totalGain": "34043378",
			"totalLoss": "0",
			"totalDebt": "50000000",
			"debtAdded": "0",
			"debtPaid":  "0",
			"debtRatio": "5000",
		})))

		firstId := ids.StrategyReport(strategyAddr, "0xccc", 4)
		secondId := ids.StrategyReport(strategyAddr, "0xddd", 5)
		result := &storage.StrategyReportResult{}
		assert.Nil(t, grm.First(result, "id = ?", ids.StrategyReportResult(firstId, secondId)).Error)
		assert.Equal(t, "0.02", result.ProfitRatio)

		strategy := &storage.Strategy{}
		assert.Nil(t, grm.First(strategy, "id = ?", strategyAddr).Error)
		assert.Equal(t, secondId, strategy.LatestReportId)
	})
}

func Test_LegacyReportShape(t *testing.T) {
	_, grm, reader, vm, err := setup()
	if err != nil {
		t.Fatal(err)
	}
	scriptVault(reader, "0.3.0")

	assert.Nil(t, vm.HandleEvent(newEvent(Event_Deposit, "0xaaa", 1, map[string]interface{}{
		"recipient": alice,
		"shares":    "1000",
		"amount":    "1000",
	})))
	res := grm.Create(&storage.Strategy{Id: strategyAddr, VaultId: vaultAddr})
	assert.Nil(t, res.Error)

	// Old vaults report without debtPaid and call the ratio debtLimit.
	assert.Nil(t, vm.HandleEvent(newEvent(Event_StrategyReported, "0xbbb", 2, map[string]interface{}{
		"strategy":  strategyAddr,
		"gain":      "100",
		"loss":      "0",
		"totalGain": "100",
		"totalLoss": "0",
		"totalDebt": "900",
		"debtAdded": "0",
		"debtLimit": "4000",
	})))

	report := &storage.StrategyReport{}
	assert.Nil(t, grm.First(report, "id = ?", ids.StrategyReport(strategyAddr, "0xbbb", 2)).Error)
	assert.Equal(t, "0", report.DebtPaid)
	assert.Equal(t, "4000", report.DebtRatio)
}

func Test_VersionGatedCalls(t *testing.T) {
	_, grm, reader, vm, err := setup()
	if err != nil {
		t.Fatal(err)
	}

	newCall := func(name string, txHash string, inputs map[string]interface{}, outputs map[string]interface{}) *chain.Call {
		return &chain.Call{
			ContractAddress:  vaultAddr,
			Caller:           alice,
			BlockNumber:      12000000,
			BlockTimestamp:   1609502400,
			TransactionHash:  txHash,
			TransactionIndex: 1,
			Name:             name,
			Inputs:           inputs,
			Outputs:          outputs,
		}
	}

	t.Run("Calls on an event-capable vault are skipped", func(t *testing.T) {
		scriptVault(reader, "0.4.4")

		call := newCall(Call_Deposit, "0xaaa",
			map[string]interface{}{"_amount": "79056085"},
			map[string]interface{}{"shares": "79056085"},
		)
		assert.True(t, vm.InterestingCall(call))
		assert.Nil(t, vm.HandleCall(call))

		var count int64
		grm.Model(&storage.Deposit{}).Count(&count)
		assert.Equal(t, int64(0), count)
	})

	t.Run("The max-uint sentinel derives the amount from share price", func(t *testing.T) {
		scriptVault(reader, "0.3.0")
		reader.SetString("apiVersion", vaultAddr, "0.3.0")
		reader.SetBig("totalAssets", vaultAddr, big.NewInt(2000))
		reader.SetBig("totalSupply", vaultAddr, big.NewInt(1000))

		// The previous subtest created the vault with version 0.4.4 cached;
		// use a fresh vault row instead.
		grm.Where("id = ?", vaultAddr).Delete(&storage.Vault{})

		call := newCall(Call_Deposit, "0xbbb",
			map[string]interface{}{"_amount": chain.MaxUint256.String()},
			map[string]interface{}{"shares": "500"},
		)
		assert.Nil(t, vm.HandleCall(call))

		deposit := &storage.Deposit{}
		depositId := ids.AccountUpdate(alice, "0xbbb", 0, 1)
		assert.Nil(t, grm.First(deposit, "id = ?", depositId).Error)
		assert.Equal(t, "1000", deposit.TokenAmount)
		assert.Equal(t, "500", deposit.SharesMinted)
	})

	t.Run("The no-share withdraw call derives shares from the amount", func(t *testing.T) {
		reader.SetBig("totalAssets", vaultAddr, big.NewInt(2000))
		reader.SetBig("totalSupply", vaultAddr, big.NewInt(1000))

		call := newCall(Call_Withdraw, "0xccc",
			map[string]interface{}{},
			map[string]interface{}{"amount": "200"},
		)
		assert.Nil(t, vm.HandleCall(call))

		withdrawal := &storage.Withdrawal{}
		withdrawalId := ids.AccountUpdate(alice, "0xccc", 0, 1)
		assert.Nil(t, grm.First(withdrawal, "id = ?", withdrawalId).Error)
		assert.Equal(t, "200", withdrawal.TokenAmount)
		assert.Equal(t, "100", withdrawal.SharesBurnt)
	})

	t.Run("A call whose caller is a tracked vault is a proxy artifact", func(t *testing.T) {
		res := grm.Create(&storage.Vault{Id: alice, TokenId: tokenAddr, ApiVersion: "0.3.0"})
		assert.Nil(t, res.Error)

		call := newCall(Call_Deposit, "0xddd",
			map[string]interface{}{"_amount": "100"},
			map[string]interface{}{"shares": "100"},
		)
		assert.Nil(t, vm.HandleCall(call))

		deposit := &storage.Deposit{}
		depositId := ids.AccountUpdate(alice, "0xddd", 0, 1)
		res = grm.First(deposit, "id = ?", depositId)
		assert.NotNil(t, res.Error)
	})
}

func Test_ParameterUpdates(t *testing.T) {
	_, grm, reader, vm, err := setup()
	if err != nil {
		t.Fatal(err)
	}
	scriptVault(reader, "0.3.0")

	assert.Nil(t, vm.HandleEvent(newEvent(Event_Deposit, "0xaaa", 1, map[string]interface{}{
		"recipient": alice,
		"shares":    "1000",
		"amount":    "1000",
	})))

	countUpdates := func() int64 {
		var count int64
		grm.Model(&storage.VaultUpdate{}).Count(&count)
		return count
	}

	t.Run("Fee updates land in the update chain", func(t *testing.T) {
		before := countUpdates()
		assert.Nil(t, vm.HandleEvent(newEvent(Event_UpdatePerformanceFee, "0xbbb", 2, map[string]interface{}{
			"performanceFee": "2000",
		})))

		vault, err := vm.GetVault(vaultAddr)
		assert.Nil(t, err)
		assert.Equal(t, uint64(2000), vault.PerformanceFeeBps)
		assert.Equal(t, before+1, countUpdates())

		update, err := latestVaultUpdate(grm, vault)
		assert.Nil(t, err)
		assert.NotNil(t, update.NewPerformanceFee)
		assert.Equal(t, uint64(2000), *update.NewPerformanceFee)
	})

	t.Run("Role updates touch only the vault row", func(t *testing.T) {
		before := countUpdates()
		assert.Nil(t, vm.HandleEvent(newEvent(Event_UpdateGuardian, "0xccc", 3, map[string]interface{}{
			"guardian": rewardsAddr,
		})))

		vault, err := vm.GetVault(vaultAddr)
		assert.Nil(t, err)
		assert.Equal(t, rewardsAddr, vault.Guardian)
		assert.Equal(t, before, countUpdates())
	})

	t.Run("The zero address clears the health check", func(t *testing.T) {
		assert.Nil(t, vm.HandleEvent(newEvent(Event_UpdateHealthCheck, "0xddd", 4, map[string]interface{}{
			"healthCheck": rewardsAddr,
		})))
		vault, err := vm.GetVault(vaultAddr)
		assert.Nil(t, err)
		assert.Equal(t, rewardsAddr, vault.HealthCheck)

		assert.Nil(t, vm.HandleEvent(newEvent(Event_UpdateHealthCheck, "0xeee", 5, map[string]interface{}{
			"healthCheck": chain.ZeroAddress,
		})))
		vault, err = vm.GetVault(vaultAddr)
		assert.Nil(t, err)
		assert.Equal(t, "", vault.HealthCheck)
	})

	t.Run("Deposit limit updates recompute the available headroom", func(t *testing.T) {
		assert.Nil(t, vm.HandleEvent(newEvent(Event_UpdateDepositLimit, "0xfff", 6, map[string]interface{}{
			"depositLimit": "5000",
		})))
		vault, err := vm.GetVault(vaultAddr)
		assert.Nil(t, err)
		assert.Equal(t, "5000", vault.DepositLimit)
		// 5000 limit minus the 1000 tokens already in the vault.
		assert.Equal(t, "4000", vault.AvailableDepositLimit)

		assert.Nil(t, vm.HandleEvent(newEvent(Event_UpdateDepositLimit, "0x111", 7, map[string]interface{}{
			"depositLimit": "800",
		})))
		vault, err = vm.GetVault(vaultAddr)
		assert.Nil(t, err)
		assert.Equal(t, "0", vault.AvailableDepositLimit)
	})

	t.Run("Updates for unknown vaults are skipped", func(t *testing.T) {
		event := newEvent(Event_UpdatePerformanceFee, "0x222", 8, map[string]interface{}{
			"performanceFee": "100",
		})
		event.ContractAddress = "0x0000000000000000000000000000000000001234"
		assert.Nil(t, vm.HandleEvent(event))
	})
}

func Test_WithdrawalQueue(t *testing.T) {
	_, grm, reader, vm, err := setup()
	if err != nil {
		t.Fatal(err)
	}
	scriptVault(reader, "0.3.0")

	assert.Nil(t, vm.HandleEvent(newEvent(Event_Deposit, "0xaaa", 1, map[string]interface{}{
		"recipient": alice,
		"shares":    "1000",
		"amount":    "1000",
	})))

	other := "0x8c347cf01f2c09ee14eec7dcf01fca238010e73d"
	assert.Nil(t, grm.Create(&storage.Strategy{Id: strategyAddr, VaultId: vaultAddr}).Error)
	assert.Nil(t, grm.Create(&storage.Strategy{Id: other, VaultId: vaultAddr}).Error)

	inQueue := func(id string) bool {
		strategy := &storage.Strategy{}
		if err := grm.First(strategy, "id = ?", id).Error; err != nil {
			return false
		}
		return strategy.InQueue
	}

	t.Run("AddedToQueue appends once", func(t *testing.T) {
		event := newEvent(Event_AddedToQueue, "0xbbb", 2, map[string]interface{}{
			"strategy": strategyAddr,
		})
		assert.Nil(t, vm.HandleEvent(event))
		assert.Nil(t, vm.HandleEvent(event))

		vault, err := vm.GetVault(vaultAddr)
		assert.Nil(t, err)
		assert.Equal(t, []string{strategyAddr}, vault.WithdrawalQueue)
		assert.True(t, inQueue(strategyAddr))
	})

	t.Run("UpdateWithdrawalQueue replaces wholesale and drops zero addresses", func(t *testing.T) {
		assert.Nil(t, vm.HandleEvent(newEvent(Event_UpdateQueue, "0xccc", 3, map[string]interface{}{
			"queue": []string{other, chain.ZeroAddress},
		})))

		vault, err := vm.GetVault(vaultAddr)
		assert.Nil(t, err)
		assert.Equal(t, []string{other}, vault.WithdrawalQueue)
		assert.False(t, inQueue(strategyAddr))
		assert.True(t, inQueue(other))
	})

	t.Run("RemovedFromQueue clears flag and membership", func(t *testing.T) {
		assert.Nil(t, vm.HandleEvent(newEvent(Event_RemovedFromQueue, "0xddd", 4, map[string]interface{}{
			"strategy": other,
		})))

		vault, err := vm.GetVault(vaultAddr)
		assert.Nil(t, err)
		assert.Equal(t, []string{}, vault.WithdrawalQueue)
		assert.False(t, inQueue(other))
	})
}

func Test_TransferEdgeCases(t *testing.T) {
	_, grm, reader, vm, err := setup()
	if err != nil {
		t.Fatal(err)
	}
	scriptVault(reader, "0.3.0")

	t.Run("Transfers on untracked contracts are ignored", func(t *testing.T) {
		assert.Nil(t, vm.HandleEvent(newEvent(Event_Transfer, "0xaaa", 1, map[string]interface{}{
			"sender":   alice,
			"receiver": rewardsAddr,
			"value":    "100",
		})))
		var count int64
		grm.Model(&storage.Transfer{}).Count(&count)
		assert.Equal(t, int64(0), count)
	})

	t.Run("Mint and burn transfers are ignored", func(t *testing.T) {
		assert.Nil(t, vm.HandleEvent(newEvent(Event_Deposit, "0xbbb", 1, map[string]interface{}{
			"recipient": alice,
			"shares":    "1000",
			"amount":    "1000",
		})))
		assert.Nil(t, vm.HandleEvent(newEvent(Event_Transfer, "0xccc", 2, map[string]interface{}{
			"sender":   chain.ZeroAddress,
			"receiver": alice,
			"value":    "1000",
		})))
		var count int64
		grm.Model(&storage.Transfer{}).Count(&count)
		assert.Equal(t, int64(0), count)
	})
}
