// Package transactions resolves raw events and calls into canonical
// Transaction rows. Resolution is idempotent under at-least-once delivery:
// the first writer for a (txHash, logIndex) pair wins and later calls reuse
// the stored row untouched.
package transactions

import (
	"errors"

	"github.com/vaultgraph/vaultgraph/internal/chain"
	"github.com/vaultgraph/vaultgraph/internal/ids"
	"github.com/vaultgraph/vaultgraph/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

type TransactionResolver struct {
	Db     *gorm.DB
	logger *zap.Logger
}

func NewTransactionResolver(grm *gorm.DB, l *zap.Logger) *TransactionResolver {
	return &TransactionResolver{
		Db:     grm,
		logger: l,
	}
}

// ResolveEvent returns the canonical Transaction for an event, creating it
// if absent. The cause label is diagnostic only and plays no part in the
// identity.
func (tr *TransactionResolver) ResolveEvent(event *chain.Event, cause string) (*storage.Transaction, error) {
	return tr.resolve(
		event.TransactionHash,
		event.LogIndex,
		event.TransactionFrom,
		event.TransactionTo,
		event.BlockNumber,
		event.TimestampMillis(),
		event.TransactionIndex,
		cause,
	)
}

// ResolveCall resolves a call the same way. Calls carry no log index, so
// zero stands in; a call and the first log of the same transaction therefore
// share a Transaction row, which is the intended de-duplication.
func (tr *TransactionResolver) ResolveCall(call *chain.Call, cause string) (*storage.Transaction, error) {
	return tr.resolve(
		call.TransactionHash,
		0,
		call.Caller,
		call.ContractAddress,
		call.BlockNumber,
		call.TimestampMillis(),
		call.TransactionIndex,
		cause,
	)
}

func (tr *TransactionResolver) resolve(
	txHash string,
	logIndex uint64,
	from string,
	to string,
	blockNumber uint64,
	timestampMillis uint64,
	txIndex uint64,
	cause string,
) (*storage.Transaction, error) {
	id := ids.Transaction(txHash, logIndex)

	existing := &storage.Transaction{}
	res := tr.Db.First(existing, "id = ?", id)
	if res.Error == nil {
		tr.logger.Sugar().Debugw("Reusing existing transaction",
			zap.String("transactionId", id),
			zap.String("cause", cause),
		)
		return existing, nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, xerrors.Errorf("failed to look up transaction '%s': %w", id, res.Error)
	}

	tx := &storage.Transaction{
		Id:               id,
		TransactionHash:  txHash,
		LogIndex:         logIndex,
		From:             chain.NormalizeAddress(from),
		To:               chain.NormalizeAddress(to),
		Value:            "0",
		GasLimit:         "0",
		GasPrice:         "0",
		BlockNumber:      blockNumber,
		Timestamp:        timestampMillis,
		TransactionIndex: txIndex,
		Event:            cause,
	}
	if res := tr.Db.Create(tx); res.Error != nil {
		return nil, xerrors.Errorf("failed to create transaction '%s': %w", id, res.Error)
	}
	return tx, nil
}
