// Package contractReader exposes point-in-time reads of vault, strategy,
// token and price-source contracts. Every read is revert-tolerant: a revert
// or transport failure yields a Result with Reverted set, never an error,
// because older contract versions simply do not implement many of these
// accessors.
package contractReader

import (
	"context"
	"math/big"
)

type Result[T any] struct {
	Value    T
	Reverted bool
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func Reverted[T any]() Result[T] {
	return Result[T]{Reverted: true}
}

// OrDefault folds a reverted read into its documented default at the call
// site.
func (r Result[T]) OrDefault(def T) T {
	if r.Reverted {
		return def
	}
	return r.Value
}

type ContractReader interface {
	// Vault accessors.
	TotalAssets(ctx context.Context, vault string, blockNumber uint64) Result[*big.Int]
	TotalSupply(ctx context.Context, vault string, blockNumber uint64) Result[*big.Int]
	PricePerShare(ctx context.Context, vault string, blockNumber uint64) Result[*big.Int]
	ApiVersion(ctx context.Context, contract string, blockNumber uint64) Result[string]
	Token(ctx context.Context, vault string, blockNumber uint64) Result[string]
	DepositLimit(ctx context.Context, vault string, blockNumber uint64) Result[*big.Int]
	ManagementFee(ctx context.Context, vault string, blockNumber uint64) Result[*big.Int]
	PerformanceFee(ctx context.Context, vault string, blockNumber uint64) Result[*big.Int]
	Rewards(ctx context.Context, vault string, blockNumber uint64) Result[string]
	Governance(ctx context.Context, vault string, blockNumber uint64) Result[string]
	Management(ctx context.Context, vault string, blockNumber uint64) Result[string]
	Guardian(ctx context.Context, vault string, blockNumber uint64) Result[string]
	Activation(ctx context.Context, vault string, blockNumber uint64) Result[*big.Int]

	// Token accessors.
	TokenName(ctx context.Context, token string, blockNumber uint64) Result[string]
	TokenSymbol(ctx context.Context, token string, blockNumber uint64) Result[string]
	TokenDecimals(ctx context.Context, token string, blockNumber uint64) Result[uint8]

	// Strategy accessors.
	StrategyName(ctx context.Context, strategy string, blockNumber uint64) Result[string]
	Keeper(ctx context.Context, strategy string, blockNumber uint64) Result[string]
	Strategist(ctx context.Context, strategy string, blockNumber uint64) Result[string]
	StrategyRewards(ctx context.Context, strategy string, blockNumber uint64) Result[string]
	EmergencyExit(ctx context.Context, strategy string, blockNumber uint64) Result[bool]
	HealthCheck(ctx context.Context, strategy string, blockNumber uint64) Result[string]
	DoHealthCheck(ctx context.Context, strategy string, blockNumber uint64) Result[bool]
	Want(ctx context.Context, strategy string, blockNumber uint64) Result[string]

	// Price-source accessors.
	NormalizedValueUsdc(ctx context.Context, oracle string, token string, amount *big.Int, blockNumber uint64) Result[*big.Int]
	SushiPriceUsdc(ctx context.Context, calculations string, token string, blockNumber uint64) Result[*big.Int]
	CurvePool(ctx context.Context, calculations string, token string, blockNumber uint64) Result[string]
	CurveUnderlyingCoin(ctx context.Context, calculations string, pool string, blockNumber uint64) Result[string]
}
