// Package positions maintains per-account vault positions and their
// append-only update chains. Every mutation lands as one
// AccountVaultPositionUpdate keyed by a per-position ordinal.
package positions

import (
	"errors"
	"math/big"

	"github.com/vaultgraph/vaultgraph/internal/ids"
	"github.com/vaultgraph/vaultgraph/internal/storage"
	"github.com/vaultgraph/vaultgraph/internal/types/numbers"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

type PositionManager struct {
	Db     *gorm.DB
	logger *zap.Logger
}

func NewPositionManager(grm *gorm.DB, l *zap.Logger) *PositionManager {
	return &PositionManager{
		Db:     grm,
		logger: l,
	}
}

func (pm *PositionManager) EnsureAccount(id string) (*storage.Account, error) {
	account := &storage.Account{}
	res := pm.Db.First(account, "id = ?", id)
	if res.Error == nil {
		return account, nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, xerrors.Errorf("failed to look up account '%s': %w", id, res.Error)
	}
	account = &storage.Account{Id: id}
	if res := pm.Db.Create(account); res.Error != nil {
		return nil, xerrors.Errorf("failed to create account '%s': %w", id, res.Error)
	}
	return account, nil
}

// update carries the signed movement one event applies to a position.
type update struct {
	deposits       *big.Int
	withdrawals    *big.Int
	sharesMinted   *big.Int
	sharesBurnt    *big.Int
	sharesSent     *big.Int
	sharesReceived *big.Int
	tokensSent     *big.Int
	tokensReceived *big.Int
}

func newUpdate() *update {
	z := func() *big.Int { return big.NewInt(0) }
	return &update{
		deposits:       z(),
		withdrawals:    z(),
		sharesMinted:   z(),
		sharesBurnt:    z(),
		sharesSent:     z(),
		sharesReceived: z(),
		tokensSent:     z(),
		tokensReceived: z(),
	}
}

func (pm *PositionManager) HandleDeposit(
	accountId string,
	vault *storage.Vault,
	tx *storage.Transaction,
	deposited *big.Int,
	minted *big.Int,
) (*storage.AccountVaultPosition, error) {
	u := newUpdate()
	u.deposits = deposited
	u.sharesMinted = minted
	return pm.apply(accountId, vault, tx, u)
}

// HandleWithdrawal tolerates a missing position: accounts that deposited
// before the vault was tracked show up here with no history. A zero-amount
// withdrawal is a recognized degenerate case; a non-zero one is a
// data-quality anomaly but is still processed.
func (pm *PositionManager) HandleWithdrawal(
	accountId string,
	vault *storage.Vault,
	tx *storage.Transaction,
	withdrawn *big.Int,
	burnt *big.Int,
) (*storage.AccountVaultPosition, error) {
	positionId := ids.AccountVaultPosition(accountId, vault.Id)
	existing := &storage.AccountVaultPosition{}
	res := pm.Db.First(existing, "id = ?", positionId)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		if withdrawn.Sign() == 0 && burnt.Sign() == 0 {
			pm.logger.Sugar().Infow("Zero-amount withdrawal against unknown position",
				zap.String("positionId", positionId),
				zap.String("transactionId", tx.Id),
			)
		} else {
			pm.logger.Sugar().Warnw("Withdrawal against unknown position",
				zap.String("positionId", positionId),
				zap.String("withdrawn", withdrawn.String()),
				zap.String("transactionId", tx.Id),
			)
		}
	} else if res.Error != nil {
		return nil, xerrors.Errorf("failed to look up position '%s': %w", positionId, res.Error)
	}

	u := newUpdate()
	u.withdrawals = withdrawn
	u.sharesBurnt = burnt
	return pm.apply(accountId, vault, tx, u)
}

// HandleTransfer debits the sender and credits the recipient without
// touching vault totals.
func (pm *PositionManager) HandleTransfer(
	fromId string,
	toId string,
	vault *storage.Vault,
	tx *storage.Transaction,
	shares *big.Int,
	tokens *big.Int,
) error {
	out := newUpdate()
	out.sharesSent = shares
	out.tokensSent = tokens
	if _, err := pm.apply(fromId, vault, tx, out); err != nil {
		return err
	}

	in := newUpdate()
	in.sharesReceived = shares
	in.tokensReceived = tokens
	if _, err := pm.apply(toId, vault, tx, in); err != nil {
		return err
	}
	return nil
}

func (pm *PositionManager) apply(
	accountId string,
	vault *storage.Vault,
	tx *storage.Transaction,
	u *update,
) (*storage.AccountVaultPosition, error) {
	if _, err := pm.EnsureAccount(accountId); err != nil {
		return nil, err
	}

	positionId := ids.AccountVaultPosition(accountId, vault.Id)
	position := &storage.AccountVaultPosition{}
	res := pm.Db.First(position, "id = ?", positionId)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		position = &storage.AccountVaultPosition{
			Id:            positionId,
			AccountId:     accountId,
			VaultId:       vault.Id,
			TokenId:       vault.TokenId,
			ShareTokenId:  vault.ShareTokenId,
			TransactionId: tx.Id,
			BalanceShares: "0",
			BalanceTokens: "0",
			UpdateCount:   0,
		}
		if res := pm.Db.Create(position); res.Error != nil {
			return nil, xerrors.Errorf("failed to create position '%s': %w", positionId, res.Error)
		}
	} else if res.Error != nil {
		return nil, xerrors.Errorf("failed to look up position '%s': %w", positionId, res.Error)
	}

	shareDelta := new(big.Int).Add(u.sharesMinted, u.sharesReceived)
	shareDelta.Sub(shareDelta, u.sharesBurnt)
	shareDelta.Sub(shareDelta, u.sharesSent)

	tokenDelta := new(big.Int).Add(u.deposits, u.tokensReceived)
	tokenDelta.Sub(tokenDelta, u.withdrawals)
	tokenDelta.Sub(tokenDelta, u.tokensSent)

	balanceShares, err := numbers.AddNumeric(position.BalanceShares, shareDelta)
	if err != nil {
		return nil, err
	}
	balanceTokens, err := numbers.AddNumeric(position.BalanceTokens, tokenDelta)
	if err != nil {
		return nil, err
	}
	position.BalanceShares = pm.clampNonNegative(positionId, "balanceShares", balanceShares)
	position.BalanceTokens = pm.clampNonNegative(positionId, "balanceTokens", balanceTokens)

	ordinal := position.UpdateCount
	positionUpdate := &storage.AccountVaultPositionUpdate{
		Id:             ids.AccountVaultPositionUpdate(accountId, vault.Id, ordinal),
		Ordinal:        ordinal,
		PositionId:     positionId,
		AccountId:      accountId,
		VaultId:        vault.Id,
		TransactionId:  tx.Id,
		Timestamp:      tx.Timestamp,
		BlockNumber:    tx.BlockNumber,
		Deposits:       u.deposits.String(),
		Withdrawals:    u.withdrawals.String(),
		SharesMinted:   u.sharesMinted.String(),
		SharesBurnt:    u.sharesBurnt.String(),
		SharesSent:     u.sharesSent.String(),
		SharesReceived: u.sharesReceived.String(),
		TokensSent:     u.tokensSent.String(),
		TokensReceived: u.tokensReceived.String(),
		BalanceShares:  position.BalanceShares,
		BalanceTokens:  position.BalanceTokens,
	}
	if res := pm.Db.Create(positionUpdate); res.Error != nil {
		return nil, xerrors.Errorf("failed to create position update '%s': %w", positionUpdate.Id, res.Error)
	}

	position.LatestUpdateId = positionUpdate.Id
	position.UpdateCount = ordinal + 1
	position.TransactionId = tx.Id
	if res := pm.Db.Save(position); res.Error != nil {
		return nil, xerrors.Errorf("failed to save position '%s': %w", positionId, res.Error)
	}

	return position, nil
}

func (pm *PositionManager) clampNonNegative(positionId string, field string, value string) string {
	n, err := numbers.FromNumeric(value)
	if err != nil || n.Sign() < 0 {
		pm.logger.Sugar().Warnw("Position balance went negative, clamping to zero",
			zap.String("positionId", positionId),
			zap.String("field", field),
			zap.String("value", value),
		)
		return "0"
	}
	return value
}
