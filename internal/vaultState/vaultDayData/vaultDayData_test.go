package vaultDayData

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vaultgraph/vaultgraph/internal/ids"
	"github.com/vaultgraph/vaultgraph/internal/logger"
	"github.com/vaultgraph/vaultgraph/internal/storage"
	"github.com/vaultgraph/vaultgraph/internal/tests"
	"github.com/vaultgraph/vaultgraph/internal/tests/chainmock"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/prices"
	"gorm.io/gorm"
)

const (
	vaultAddr = "0x19d3364a399d251e894ac732651be8b0e4e85001"
	tokenAddr = "0x6b175474e89094c44da98b954eedeac495271d0f"
	baseDay   = uint64(18000)
)

func setup() (*gorm.DB, *Aggregator, *storage.Vault, error) {
	cfg := tests.GetConfig()
	_, grm, err := tests.GetDatabaseConnection(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	l := logger.NewTestLogger()
	pr := prices.NewPriceResolver(grm, chainmock.NewReader(), cfg.PriceSources(), l, nil)

	vault := &storage.Vault{Id: vaultAddr, TokenId: tokenAddr, ShareTokenId: vaultAddr}
	if res := grm.Create(vault); res.Error != nil {
		return nil, nil, nil, res.Error
	}
	return grm, NewAggregator(grm, pr, l), vault, nil
}

func updateAt(day uint64, deposited string, withdrawn string, returns string) *storage.VaultUpdate {
	ts := day * ids.MillisPerDay
	return &storage.VaultUpdate{
		Id:               ids.VaultUpdate(vaultAddr, "0xaaa", 1, 1),
		VaultId:          vaultAddr,
		Timestamp:        ts,
		BlockNumber:      100,
		TokensDeposited:  deposited,
		TokensWithdrawn:  withdrawn,
		ReturnsGenerated: returns,
		PricePerShare:    "1000000000000000000",
	}
}

func Test_SameDayAccumulation(t *testing.T) {
	_, a, vault, err := setup()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	first, err := a.Rollup(ctx, vault, updateAt(baseDay, "1000", "0", "0"))
	assert.Nil(t, err)
	assert.Equal(t, ids.VaultDayData(vaultAddr, baseDay), first.Id)
	assert.Equal(t, "1000", first.Deposited)
	assert.Equal(t, baseDay*ids.MillisPerDay, first.Timestamp)

	second, err := a.Rollup(ctx, vault, updateAt(baseDay, "500", "200", "40"))
	assert.Nil(t, err)
	assert.Equal(t, first.Id, second.Id)
	assert.Equal(t, "1500", second.Deposited)
	assert.Equal(t, "200", second.Withdrawn)
	assert.Equal(t, "40", second.DayReturnsGenerated)
	assert.Equal(t, "40", second.TotalReturnsGenerated)
}

func Test_BackfillFromPriorDay(t *testing.T) {
	_, a, vault, err := setup()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	t.Run("Gap of three quiet days carries the cumulative total forward", func(t *testing.T) {
		_, err := a.Rollup(ctx, vault, updateAt(baseDay, "0", "0", "700"))
		assert.Nil(t, err)

		bucket, err := a.Rollup(ctx, vault, updateAt(baseDay+3, "0", "0", "50"))
		assert.Nil(t, err)
		assert.Equal(t, "50", bucket.DayReturnsGenerated)
		assert.Equal(t, "750", bucket.TotalReturnsGenerated)
	})

	t.Run("Exactly at the search bound still finds the prior bucket", func(t *testing.T) {
		bucket, err := a.Rollup(ctx, vault, updateAt(baseDay+3+maxBackfillDays, "0", "0", "10"))
		assert.Nil(t, err)
		assert.Equal(t, "760", bucket.TotalReturnsGenerated)
	})
}

func Test_ResetBeyondSearchBound(t *testing.T) {
	_, a, vault, err := setup()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	_, err = a.Rollup(ctx, vault, updateAt(baseDay, "0", "0", "700"))
	assert.Nil(t, err)

	// One day past the bound: the cumulative total restarts from this event.
	bucket, err := a.Rollup(ctx, vault, updateAt(baseDay+maxBackfillDays+1, "0", "0", "50"))
	assert.Nil(t, err)
	assert.Equal(t, "50", bucket.DayReturnsGenerated)
	assert.Equal(t, "50", bucket.TotalReturnsGenerated)
}
