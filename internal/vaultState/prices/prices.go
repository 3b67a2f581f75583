// Package prices resolves token amounts to USDC values through a fixed
// cascade of price sources. Every step is allowed to fail; only the order is
// fixed. A total miss is a normal, loggable condition that yields zero.
package prices

import (
	"context"
	"math/big"

	"github.com/vaultgraph/vaultgraph/internal/chain"
	"github.com/vaultgraph/vaultgraph/internal/config"
	"github.com/vaultgraph/vaultgraph/internal/contractReader"
	"github.com/vaultgraph/vaultgraph/internal/metrics"
	"github.com/vaultgraph/vaultgraph/internal/metrics/metricsTypes"
	"github.com/vaultgraph/vaultgraph/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxShareDepth bounds the share-price recursion for vaults whose underlying
// token is itself a vault share.
const maxShareDepth = 4

type PriceResolver struct {
	Db          *gorm.DB
	logger      *zap.Logger
	reader      contractReader.ContractReader
	sources     config.PriceSourceAddresses
	metricsSink *metrics.MetricsSink
}

func NewPriceResolver(
	grm *gorm.DB,
	reader contractReader.ContractReader,
	sources config.PriceSourceAddresses,
	l *zap.Logger,
	ms *metrics.MetricsSink,
) *PriceResolver {
	return &PriceResolver{
		Db:          grm,
		logger:      l,
		reader:      reader,
		sources:     sources,
		metricsSink: ms,
	}
}

// ResolveUsdValue prices amount units of token in USDC. Never returns an
// error; zero means no source could price the token.
func (pr *PriceResolver) ResolveUsdValue(ctx context.Context, token string, amount *big.Int, blockNumber uint64) *big.Int {
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0)
	}
	value := pr.resolve(ctx, token, amount, blockNumber, 0)
	if value.Sign() == 0 {
		pr.logger.Sugar().Debugw("No price source could resolve token",
			zap.String("token", token),
			zap.Uint64("blockNumber", blockNumber),
		)
		if pr.metricsSink != nil {
			_ = pr.metricsSink.Incr(metricsTypes.Metric_Incr_PriceCascadeMiss, nil, 1)
		}
	}
	return value
}

func (pr *PriceResolver) resolve(ctx context.Context, token string, amount *big.Int, blockNumber uint64, depth int) *big.Int {
	if v := pr.fromOracle(ctx, token, amount, blockNumber); v.Sign() > 0 {
		return v
	}
	if v := pr.fromSharePrice(ctx, token, amount, blockNumber, depth); v.Sign() > 0 {
		return v
	}
	if v := pr.fromSushi(ctx, token, amount, blockNumber); v.Sign() > 0 {
		return v
	}
	if v := pr.fromCurve(ctx, token, amount, blockNumber); v.Sign() > 0 {
		return v
	}
	return big.NewInt(0)
}

func (pr *PriceResolver) fromOracle(ctx context.Context, token string, amount *big.Int, blockNumber uint64) *big.Int {
	if chain.IsZeroAddress(pr.sources.UsdcOracle) {
		return big.NewInt(0)
	}
	res := pr.reader.NormalizedValueUsdc(ctx, pr.sources.UsdcOracle, token, amount, blockNumber)
	return res.OrDefault(big.NewInt(0))
}

// fromSharePrice prices a vault share token by converting shares into the
// vault's underlying asset at the current price per share, then pricing the
// underlying through the cascade again.
func (pr *PriceResolver) fromSharePrice(ctx context.Context, token string, amount *big.Int, blockNumber uint64, depth int) *big.Int {
	if depth >= maxShareDepth {
		return big.NewInt(0)
	}

	vault := &storage.Vault{}
	if res := pr.Db.First(vault, "id = ?", token); res.Error != nil {
		return big.NewInt(0)
	}
	if chain.IsZeroAddress(vault.TokenId) {
		return big.NewInt(0)
	}

	pps := pr.reader.PricePerShare(ctx, token, blockNumber).OrDefault(big.NewInt(0))
	if pps.Sign() == 0 {
		return big.NewInt(0)
	}
	decimals := pr.reader.TokenDecimals(ctx, token, blockNumber).OrDefault(18)

	underlyingAmount := new(big.Int).Mul(amount, pps)
	underlyingAmount.Div(underlyingAmount, pow10(decimals))

	return pr.resolve(ctx, vault.TokenId, underlyingAmount, blockNumber, depth+1)
}

func (pr *PriceResolver) fromSushi(ctx context.Context, token string, amount *big.Int, blockNumber uint64) *big.Int {
	if chain.IsZeroAddress(pr.sources.CalculationsSushiSwap) {
		return big.NewInt(0)
	}
	price := pr.reader.SushiPriceUsdc(ctx, pr.sources.CalculationsSushiSwap, token, blockNumber).OrDefault(big.NewInt(0))
	if price.Sign() == 0 {
		return big.NewInt(0)
	}
	return pr.scaleByDecimals(ctx, token, price, amount, blockNumber)
}

// fromCurve discovers the pool behind a curve LP token, takes one of the
// pool's underlying coins and prices that through the AMM calculator.
func (pr *PriceResolver) fromCurve(ctx context.Context, token string, amount *big.Int, blockNumber uint64) *big.Int {
	if chain.IsZeroAddress(pr.sources.CalculationsCurve) {
		return big.NewInt(0)
	}
	pool := pr.reader.CurvePool(ctx, pr.sources.CalculationsCurve, token, blockNumber).OrDefault(chain.ZeroAddress)
	if chain.IsZeroAddress(pool) {
		return big.NewInt(0)
	}
	coin := pr.reader.CurveUnderlyingCoin(ctx, pr.sources.CalculationsCurve, pool, blockNumber).OrDefault(chain.ZeroAddress)
	if chain.IsZeroAddress(coin) {
		return big.NewInt(0)
	}
	if chain.IsZeroAddress(pr.sources.CalculationsSushiSwap) {
		return big.NewInt(0)
	}
	price := pr.reader.SushiPriceUsdc(ctx, pr.sources.CalculationsSushiSwap, coin, blockNumber).OrDefault(big.NewInt(0))
	if price.Sign() == 0 {
		return big.NewInt(0)
	}
	return pr.scaleByDecimals(ctx, token, price, amount, blockNumber)
}

// ResolveUnitPriceUsdc prices one whole unit of the token.
func (pr *PriceResolver) ResolveUnitPriceUsdc(ctx context.Context, token string, blockNumber uint64) *big.Int {
	decimals := pr.reader.TokenDecimals(ctx, token, blockNumber).OrDefault(18)
	return pr.ResolveUsdValue(ctx, token, pow10(decimals), blockNumber)
}

func (pr *PriceResolver) scaleByDecimals(ctx context.Context, token string, pricePerUnit *big.Int, amount *big.Int, blockNumber uint64) *big.Int {
	decimals := pr.reader.TokenDecimals(ctx, token, blockNumber).OrDefault(18)
	v := new(big.Int).Mul(pricePerUnit, amount)
	return v.Div(v, pow10(decimals))
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
