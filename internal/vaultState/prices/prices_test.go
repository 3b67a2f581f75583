package prices

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vaultgraph/vaultgraph/internal/config"
	"github.com/vaultgraph/vaultgraph/internal/logger"
	"github.com/vaultgraph/vaultgraph/internal/storage"
	"github.com/vaultgraph/vaultgraph/internal/tests"
	"github.com/vaultgraph/vaultgraph/internal/tests/chainmock"
	"gorm.io/gorm"
)

const (
	tokenAddr  = "0x6b175474e89094c44da98b954eedeac495271d0f"
	vaultAddr  = "0x19d3364a399d251e894ac732651be8b0e4e85001"
	poolAddr   = "0x93a62da5a14c80f265dabc077fcee437b1a0efde"
	coinAddr   = "0x4031afd3b0f71bace9181e554a9e680ee4abe7df"
	weirdToken = "0xfeb4acf3df3cdea7399794d0869ef76a6efaff52"
)

func setup() (*gorm.DB, *chainmock.Reader, *PriceResolver, error) {
	cfg := tests.GetConfig()
	_, grm, err := tests.GetDatabaseConnection(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	l := logger.NewTestLogger()
	reader := chainmock.NewReader()
	pr := NewPriceResolver(grm, reader, cfg.PriceSources(), l, nil)
	return grm, reader, pr, nil
}

func Test_PriceCascade(t *testing.T) {
	ctx := context.Background()

	t.Run("Oracle answers first", func(t *testing.T) {
		_, reader, pr, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		reader.SetBig("getNormalizedValueUsdc", tokenAddr, big.NewInt(1000000))
		// The sushi value must never be consulted when the oracle answers.
		reader.SetBig("getPriceUsdc", tokenAddr, big.NewInt(999))

		v := pr.ResolveUsdValue(ctx, tokenAddr, big.NewInt(1), 100)
		assert.Equal(t, "1000000", v.String())
	})

	t.Run("Share tokens convert through price per share then re-resolve", func(t *testing.T) {
		grm, reader, pr, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		res := grm.Create(&storage.Vault{Id: vaultAddr, TokenId: tokenAddr, ShareTokenId: vaultAddr})
		assert.Nil(t, res.Error)

		// 2 shares at pps 1.5e18 with 18 decimals is 3 underlying units.
		reader.SetBig("pricePerShare", vaultAddr, big.NewInt(1500000000000000000))
		reader.SetUint8("decimals", vaultAddr, 18)
		reader.SetBig("getNormalizedValueUsdc", tokenAddr, big.NewInt(3000000))

		v := pr.ResolveUsdValue(ctx, vaultAddr, big.NewInt(2000000000000000000), 100)
		assert.Equal(t, "3000000", v.String())
	})

	t.Run("Sushi is consulted when oracle and share price miss", func(t *testing.T) {
		_, reader, pr, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		// Price of one whole unit is 2 USDC at 6 token decimals.
		reader.SetBig("getPriceUsdc", tokenAddr, big.NewInt(2000000))
		reader.SetUint8("decimals", tokenAddr, 6)

		v := pr.ResolveUsdValue(ctx, tokenAddr, big.NewInt(5000000), 100)
		assert.Equal(t, "10000000", v.String())
	})

	t.Run("Curve LP tokens price through pool and underlying coin", func(t *testing.T) {
		_, reader, pr, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		reader.SetString("getPool", tokenAddr, poolAddr)
		reader.SetString("getUnderlyingCoinFromPool", poolAddr, coinAddr)
		reader.SetBig("getPriceUsdc", coinAddr, big.NewInt(1000000))
		reader.SetUint8("decimals", tokenAddr, 6)

		v := pr.ResolveUsdValue(ctx, tokenAddr, big.NewInt(7000000), 100)
		assert.Equal(t, "7000000", v.String())
	})

	t.Run("Total miss yields zero, not an error", func(t *testing.T) {
		_, _, pr, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		v := pr.ResolveUsdValue(ctx, weirdToken, big.NewInt(12345), 100)
		assert.Equal(t, 0, v.Sign())
	})

	t.Run("Zero amounts short-circuit", func(t *testing.T) {
		_, reader, pr, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		reader.SetBig("getNormalizedValueUsdc", tokenAddr, big.NewInt(1000000))
		v := pr.ResolveUsdValue(ctx, tokenAddr, big.NewInt(0), 100)
		assert.Equal(t, 0, v.Sign())
		assert.Equal(t, 0, pr.ResolveUsdValue(ctx, tokenAddr, nil, 100).Sign())
	})
}

func Test_UnitPrice(t *testing.T) {
	_, reader, pr, err := setup()
	if err != nil {
		t.Fatal(err)
	}
	reader.SetUint8("decimals", tokenAddr, 6)
	reader.SetBig("getPriceUsdc", tokenAddr, big.NewInt(1500000))

	v := pr.ResolveUnitPriceUsdc(context.Background(), tokenAddr, 100)
	assert.Equal(t, "1500000", v.String())
}

func Test_DisabledSourcesAreSkipped(t *testing.T) {
	cfg := tests.GetConfig()
	cfg.Chain = config.Chain_ArbitrumOne

	_, grm, err := tests.GetDatabaseConnection(cfg)
	if err != nil {
		t.Fatal(err)
	}
	reader := chainmock.NewReader()
	pr := NewPriceResolver(grm, reader, cfg.PriceSources(), logger.NewTestLogger(), nil)

	// The curve calculator is not deployed on this chain: only pool discovery
	// is scripted, so pricing must miss instead of calling the empty address.
	reader.SetString("getPool", tokenAddr, poolAddr)
	reader.SetString("getUnderlyingCoinFromPool", poolAddr, coinAddr)

	v := pr.ResolveUsdValue(context.Background(), tokenAddr, big.NewInt(1000), 100)
	assert.Equal(t, 0, v.Sign())
}
