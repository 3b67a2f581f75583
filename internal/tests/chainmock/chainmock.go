// Package chainmock is a scripted contractReader fake. Any read that was not
// explicitly scripted reverts, which mirrors how older contracts behave when
// an accessor is missing.
package chainmock

import (
	"context"
	"fmt"
	"math/big"

	"github.com/vaultgraph/vaultgraph/internal/contractReader"
)

type Reader struct {
	bigValues    map[string]*big.Int
	stringValues map[string]string
	boolValues   map[string]bool
	uint8Values  map[string]uint8
}

func NewReader() *Reader {
	return &Reader{
		bigValues:    make(map[string]*big.Int),
		stringValues: make(map[string]string),
		boolValues:   make(map[string]bool),
		uint8Values:  make(map[string]uint8),
	}
}

func key(method string, address string) string {
	return fmt.Sprintf("%s:%s", method, address)
}

func (m *Reader) SetBig(method string, address string, v *big.Int) *Reader {
	m.bigValues[key(method, address)] = v
	return m
}

func (m *Reader) SetString(method string, address string, v string) *Reader {
	m.stringValues[key(method, address)] = v
	return m
}

func (m *Reader) SetBool(method string, address string, v bool) *Reader {
	m.boolValues[key(method, address)] = v
	return m
}

func (m *Reader) SetUint8(method string, address string, v uint8) *Reader {
	m.uint8Values[key(method, address)] = v
	return m
}

func (m *Reader) big(method string, address string) contractReader.Result[*big.Int] {
	if v, ok := m.bigValues[key(method, address)]; ok {
		return contractReader.Ok(new(big.Int).Set(v))
	}
	return contractReader.Reverted[*big.Int]()
}

func (m *Reader) str(method string, address string) contractReader.Result[string] {
	if v, ok := m.stringValues[key(method, address)]; ok {
		return contractReader.Ok(v)
	}
	return contractReader.Reverted[string]()
}

func (m *Reader) boolean(method string, address string) contractReader.Result[bool] {
	if v, ok := m.boolValues[key(method, address)]; ok {
		return contractReader.Ok(v)
	}
	return contractReader.Reverted[bool]()
}

func (m *Reader) TotalAssets(ctx context.Context, vault string, blockNumber uint64) contractReader.Result[*big.Int] {
	return m.big("totalAssets", vault)
}

func (m *Reader) TotalSupply(ctx context.Context, vault string, blockNumber uint64) contractReader.Result[*big.Int] {
	return m.big("totalSupply", vault)
}

func (m *Reader) PricePerShare(ctx context.Context, vault string, blockNumber uint64) contractReader.Result[*big.Int] {
	return m.big("pricePerShare", vault)
}

func (m *Reader) ApiVersion(ctx context.Context, contract string, blockNumber uint64) contractReader.Result[string] {
	return m.str("apiVersion", contract)
}

func (m *Reader) Token(ctx context.Context, vault string, blockNumber uint64) contractReader.Result[string] {
	return m.str("token", vault)
}

func (m *Reader) DepositLimit(ctx context.Context, vault string, blockNumber uint64) contractReader.Result[*big.Int] {
	return m.big("depositLimit", vault)
}

func (m *Reader) ManagementFee(ctx context.Context, vault string, blockNumber uint64) contractReader.Result[*big.Int] {
	return m.big("managementFee", vault)
}

func (m *Reader) PerformanceFee(ctx context.Context, vault string, blockNumber uint64) contractReader.Result[*big.Int] {
	return m.big("performanceFee", vault)
}

func (m *Reader) Rewards(ctx context.Context, vault string, blockNumber uint64) contractReader.Result[string] {
	return m.str("rewards", vault)
}

func (m *Reader) Governance(ctx context.Context, vault string, blockNumber uint64) contractReader.Result[string] {
	return m.str("governance", vault)
}

func (m *Reader) Management(ctx context.Context, vault string, blockNumber uint64) contractReader.Result[string] {
	return m.str("management", vault)
}

func (m *Reader) Guardian(ctx context.Context, vault string, blockNumber uint64) contractReader.Result[string] {
	return m.str("guardian", vault)
}

func (m *Reader) Activation(ctx context.Context, vault string, blockNumber uint64) contractReader.Result[*big.Int] {
	return m.big("activation", vault)
}

func (m *Reader) TokenName(ctx context.Context, token string, blockNumber uint64) contractReader.Result[string] {
	return m.str("name", token)
}

func (m *Reader) TokenSymbol(ctx context.Context, token string, blockNumber uint64) contractReader.Result[string] {
	return m.str("symbol", token)
}

func (m *Reader) TokenDecimals(ctx context.Context, token string, blockNumber uint64) contractReader.Result[uint8] {
	if v, ok := m.uint8Values[key("decimals", token)]; ok {
		return contractReader.Ok(v)
	}
	return contractReader.Reverted[uint8]()
}

func (m *Reader) StrategyName(ctx context.Context, strategy string, blockNumber uint64) contractReader.Result[string] {
	return m.str("strategyName", strategy)
}

func (m *Reader) Keeper(ctx context.Context, strategy string, blockNumber uint64) contractReader.Result[string] {
	return m.str("keeper", strategy)
}

func (m *Reader) Strategist(ctx context.Context, strategy string, blockNumber uint64) contractReader.Result[string] {
	return m.str("strategist", strategy)
}

func (m *Reader) StrategyRewards(ctx context.Context, strategy string, blockNumber uint64) contractReader.Result[string] {
	return m.str("strategyRewards", strategy)
}

func (m *Reader) EmergencyExit(ctx context.Context, strategy string, blockNumber uint64) contractReader.Result[bool] {
	return m.boolean("emergencyExit", strategy)
}

func (m *Reader) HealthCheck(ctx context.Context, strategy string, blockNumber uint64) contractReader.Result[string] {
	return m.str("healthCheck", strategy)
}

func (m *Reader) DoHealthCheck(ctx context.Context, strategy string, blockNumber uint64) contractReader.Result[bool] {
	return m.boolean("doHealthCheck", strategy)
}

func (m *Reader) Want(ctx context.Context, strategy string, blockNumber uint64) contractReader.Result[string] {
	return m.str("want", strategy)
}

func (m *Reader) NormalizedValueUsdc(ctx context.Context, oracle string, token string, amount *big.Int, blockNumber uint64) contractReader.Result[*big.Int] {
	return m.big("getNormalizedValueUsdc", token)
}

func (m *Reader) SushiPriceUsdc(ctx context.Context, calculations string, token string, blockNumber uint64) contractReader.Result[*big.Int] {
	return m.big("getPriceUsdc", token)
}

func (m *Reader) CurvePool(ctx context.Context, calculations string, token string, blockNumber uint64) contractReader.Result[string] {
	return m.str("getPool", token)
}

func (m *Reader) CurveUnderlyingCoin(ctx context.Context, calculations string, pool string, blockNumber uint64) contractReader.Result[string] {
	return m.str("getUnderlyingCoinFromPool", pool)
}
