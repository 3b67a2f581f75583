package contractReader

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vaultgraph/vaultgraph/internal/chain"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

const vaultAbiJson = `[
	{"name":"totalAssets","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"totalSupply","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"pricePerShare","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"apiVersion","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"name":"token","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"name":"depositLimit","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"managementFee","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"performanceFee","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"rewards","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"name":"governance","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"name":"management","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"name":"guardian","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"name":"activation","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const tokenAbiJson = `[
	{"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

const strategyAbiJson = `[
	{"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"name":"keeper","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"name":"strategist","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"name":"rewards","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"name":"emergencyExit","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
	{"name":"healthCheck","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"name":"doHealthCheck","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
	{"name":"want","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

const oracleAbiJson = `[
	{"name":"getNormalizedValueUsdc","type":"function","stateMutability":"view","inputs":[{"name":"tokenAddress","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const sushiAbiJson = `[
	{"name":"getPriceUsdc","type":"function","stateMutability":"view","inputs":[{"name":"tokenAddress","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const curveAbiJson = `[
	{"name":"getPool","type":"function","stateMutability":"view","inputs":[{"name":"tokenAddress","type":"address"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"getUnderlyingCoinFromPool","type":"function","stateMutability":"view","inputs":[{"name":"poolAddress","type":"address"}],"outputs":[{"name":"","type":"address"}]}
]`

// EthereumContractReader reads contract state through an archive-capable RPC
// node, pinned to the block being processed.
type EthereumContractReader struct {
	client *ethclient.Client
	logger *zap.Logger

	vaultAbi    abi.ABI
	tokenAbi    abi.ABI
	strategyAbi abi.ABI
	oracleAbi   abi.ABI
	sushiAbi    abi.ABI
	curveAbi    abi.ABI
}

func NewEthereumContractReader(client *ethclient.Client, l *zap.Logger) (*EthereumContractReader, error) {
	r := &EthereumContractReader{
		client: client,
		logger: l,
	}

	abis := []struct {
		raw  string
		dest *abi.ABI
	}{
		{vaultAbiJson, &r.vaultAbi},
		{tokenAbiJson, &r.tokenAbi},
		{strategyAbiJson, &r.strategyAbi},
		{oracleAbiJson, &r.oracleAbi},
		{sushiAbiJson, &r.sushiAbi},
		{curveAbiJson, &r.curveAbi},
	}
	for _, a := range abis {
		parsed, err := abi.JSON(strings.NewReader(a.raw))
		if err != nil {
			return nil, xerrors.Errorf("failed to parse abi: %w", err)
		}
		*a.dest = parsed
	}

	return r, nil
}

func (r *EthereumContractReader) call(
	ctx context.Context,
	contractAbi abi.ABI,
	address string,
	blockNumber uint64,
	method string,
	args ...interface{},
) ([]interface{}, error) {
	if chain.IsZeroAddress(address) {
		return nil, xerrors.Errorf("no contract address for method '%s'", method)
	}
	contract := bind.NewBoundContract(common.HexToAddress(address), contractAbi, r.client, r.client, r.client)

	out := make([]interface{}, 0)
	opts := &bind.CallOpts{
		Context:     ctx,
		BlockNumber: new(big.Int).SetUint64(blockNumber),
	}
	if err := contract.Call(opts, &out, method, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *EthereumContractReader) bigRead(ctx context.Context, contractAbi abi.ABI, address string, blockNumber uint64, method string, args ...interface{}) Result[*big.Int] {
	out, err := r.call(ctx, contractAbi, address, blockNumber, method, args...)
	if err != nil || len(out) == 0 {
		return Reverted[*big.Int]()
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return Reverted[*big.Int]()
	}
	return Ok(v)
}

func (r *EthereumContractReader) addressRead(ctx context.Context, contractAbi abi.ABI, address string, blockNumber uint64, method string, args ...interface{}) Result[string] {
	out, err := r.call(ctx, contractAbi, address, blockNumber, method, args...)
	if err != nil || len(out) == 0 {
		return Reverted[string]()
	}
	v, ok := out[0].(common.Address)
	if !ok {
		return Reverted[string]()
	}
	return Ok(chain.NormalizeAddress(v.Hex()))
}

func (r *EthereumContractReader) stringRead(ctx context.Context, contractAbi abi.ABI, address string, blockNumber uint64, method string) Result[string] {
	out, err := r.call(ctx, contractAbi, address, blockNumber, method)
	if err != nil || len(out) == 0 {
		return Reverted[string]()
	}
	v, ok := out[0].(string)
	if !ok {
		return Reverted[string]()
	}
	return Ok(v)
}

func (r *EthereumContractReader) boolRead(ctx context.Context, contractAbi abi.ABI, address string, blockNumber uint64, method string) Result[bool] {
	out, err := r.call(ctx, contractAbi, address, blockNumber, method)
	if err != nil || len(out) == 0 {
		return Reverted[bool]()
	}
	v, ok := out[0].(bool)
	if !ok {
		return Reverted[bool]()
	}
	return Ok(v)
}

func (r *EthereumContractReader) TotalAssets(ctx context.Context, vault string, blockNumber uint64) Result[*big.Int] {
	return r.bigRead(ctx, r.vaultAbi, vault, blockNumber, "totalAssets")
}

func (r *EthereumContractReader) TotalSupply(ctx context.Context, vault string, blockNumber uint64) Result[*big.Int] {
	return r.bigRead(ctx, r.vaultAbi, vault, blockNumber, "totalSupply")
}

func (r *EthereumContractReader) PricePerShare(ctx context.Context, vault string, blockNumber uint64) Result[*big.Int] {
	return r.bigRead(ctx, r.vaultAbi, vault, blockNumber, "pricePerShare")
}

func (r *EthereumContractReader) ApiVersion(ctx context.Context, contract string, blockNumber uint64) Result[string] {
	return r.stringRead(ctx, r.vaultAbi, contract, blockNumber, "apiVersion")
}

func (r *EthereumContractReader) Token(ctx context.Context, vault string, blockNumber uint64) Result[string] {
	return r.addressRead(ctx, r.vaultAbi, vault, blockNumber, "token")
}

func (r *EthereumContractReader) DepositLimit(ctx context.Context, vault string, blockNumber uint64) Result[*big.Int] {
	return r.bigRead(ctx, r.vaultAbi, vault, blockNumber, "depositLimit")
}

func (r *EthereumContractReader) ManagementFee(ctx context.Context, vault string, blockNumber uint64) Result[*big.Int] {
	return r.bigRead(ctx, r.vaultAbi, vault, blockNumber, "managementFee")
}

func (r *EthereumContractReader) PerformanceFee(ctx context.Context, vault string, blockNumber uint64) Result[*big.Int] {
	return r.bigRead(ctx, r.vaultAbi, vault, blockNumber, "performanceFee")
}

func (r *EthereumContractReader) Rewards(ctx context.Context, vault string, blockNumber uint64) Result[string] {
	return r.addressRead(ctx, r.vaultAbi, vault, blockNumber, "rewards")
}

func (r *EthereumContractReader) Governance(ctx context.Context, vault string, blockNumber uint64) Result[string] {
	return r.addressRead(ctx, r.vaultAbi, vault, blockNumber, "governance")
}

func (r *EthereumContractReader) Management(ctx context.Context, vault string, blockNumber uint64) Result[string] {
	return r.addressRead(ctx, r.vaultAbi, vault, blockNumber, "management")
}

func (r *EthereumContractReader) Guardian(ctx context.Context, vault string, blockNumber uint64) Result[string] {
	return r.addressRead(ctx, r.vaultAbi, vault, blockNumber, "guardian")
}

func (r *EthereumContractReader) Activation(ctx context.Context, vault string, blockNumber uint64) Result[*big.Int] {
	return r.bigRead(ctx, r.vaultAbi, vault, blockNumber, "activation")
}

func (r *EthereumContractReader) TokenName(ctx context.Context, token string, blockNumber uint64) Result[string] {
	return r.stringRead(ctx, r.tokenAbi, token, blockNumber, "name")
}

func (r *EthereumContractReader) TokenSymbol(ctx context.Context, token string, blockNumber uint64) Result[string] {
	return r.stringRead(ctx, r.tokenAbi, token, blockNumber, "symbol")
}

func (r *EthereumContractReader) TokenDecimals(ctx context.Context, token string, blockNumber uint64) Result[uint8] {
	out, err := r.call(ctx, r.tokenAbi, token, blockNumber, "decimals")
	if err != nil || len(out) == 0 {
		return Reverted[uint8]()
	}
	v, ok := out[0].(uint8)
	if !ok {
		return Reverted[uint8]()
	}
	return Ok(v)
}

func (r *EthereumContractReader) StrategyName(ctx context.Context, strategy string, blockNumber uint64) Result[string] {
	return r.stringRead(ctx, r.strategyAbi, strategy, blockNumber, "name")
}

func (r *EthereumContractReader) Keeper(ctx context.Context, strategy string, blockNumber uint64) Result[string] {
	return r.addressRead(ctx, r.strategyAbi, strategy, blockNumber, "keeper")
}

func (r *EthereumContractReader) Strategist(ctx context.Context, strategy string, blockNumber uint64) Result[string] {
	return r.addressRead(ctx, r.strategyAbi, strategy, blockNumber, "strategist")
}

func (r *EthereumContractReader) StrategyRewards(ctx context.Context, strategy string, blockNumber uint64) Result[string] {
	return r.addressRead(ctx, r.strategyAbi, strategy, blockNumber, "rewards")
}

func (r *EthereumContractReader) EmergencyExit(ctx context.Context, strategy string, blockNumber uint64) Result[bool] {
	return r.boolRead(ctx, r.strategyAbi, strategy, blockNumber, "emergencyExit")
}

func (r *EthereumContractReader) HealthCheck(ctx context.Context, strategy string, blockNumber uint64) Result[string] {
	return r.addressRead(ctx, r.strategyAbi, strategy, blockNumber, "healthCheck")
}

func (r *EthereumContractReader) DoHealthCheck(ctx context.Context, strategy string, blockNumber uint64) Result[bool] {
	return r.boolRead(ctx, r.strategyAbi, strategy, blockNumber, "doHealthCheck")
}

func (r *EthereumContractReader) Want(ctx context.Context, strategy string, blockNumber uint64) Result[string] {
	return r.addressRead(ctx, r.strategyAbi, strategy, blockNumber, "want")
}

func (r *EthereumContractReader) NormalizedValueUsdc(ctx context.Context, oracle string, token string, amount *big.Int, blockNumber uint64) Result[*big.Int] {
	return r.bigRead(ctx, r.oracleAbi, oracle, blockNumber, "getNormalizedValueUsdc", common.HexToAddress(token), amount)
}

func (r *EthereumContractReader) SushiPriceUsdc(ctx context.Context, calculations string, token string, blockNumber uint64) Result[*big.Int] {
	return r.bigRead(ctx, r.sushiAbi, calculations, blockNumber, "getPriceUsdc", common.HexToAddress(token))
}

func (r *EthereumContractReader) CurvePool(ctx context.Context, calculations string, token string, blockNumber uint64) Result[string] {
	return r.addressRead(ctx, r.curveAbi, calculations, blockNumber, "getPool", common.HexToAddress(token))
}

func (r *EthereumContractReader) CurveUnderlyingCoin(ctx context.Context, calculations string, pool string, blockNumber uint64) Result[string] {
	return r.addressRead(ctx, r.curveAbi, calculations, blockNumber, "getUnderlyingCoinFromPool", common.HexToAddress(pool))
}
