// Package ids builds the deterministic identity keys every entity is stored
// under. All functions are pure; addresses are assumed to be normalized
// (lower-case, 0x-prefixed) before they get here.
package ids

import "fmt"

// MillisPerDay buckets timestamps into UTC days.
const MillisPerDay uint64 = 86_400_000

func Transaction(txHash string, logIndex uint64) string {
	return fmt.Sprintf("%s-%d", txHash, logIndex)
}

func VaultUpdate(vault string, txHash string, logIndex uint64, txIndex uint64) string {
	return fmt.Sprintf("%s-%s-%d-%d", vault, txHash, logIndex, txIndex)
}

// AccountUpdate keys Deposit and Withdrawal records, which share the
// VaultUpdate shape but are keyed by the account instead of the vault.
func AccountUpdate(account string, txHash string, logIndex uint64, txIndex uint64) string {
	return fmt.Sprintf("%s-%s-%d-%d", account, txHash, logIndex, txIndex)
}

func AccountVaultPosition(account string, vault string) string {
	return fmt.Sprintf("%s-%s", account, vault)
}

// AccountVaultPositionUpdate uses a per-position monotonically increasing
// ordinal, not the global transaction index.
func AccountVaultPositionUpdate(account string, vault string, ordinal uint64) string {
	return fmt.Sprintf("%s-%s-%d", account, vault, ordinal)
}

func DayIndex(timestampMillis uint64) uint64 {
	return timestampMillis / MillisPerDay
}

func VaultDayData(vault string, dayIndex uint64) string {
	return fmt.Sprintf("%s-%d", vault, dayIndex)
}

func StrategyReport(strategy string, txHash string, logIndex uint64) string {
	return fmt.Sprintf("%s-%s-%d", strategy, txHash, logIndex)
}

func StrategyReportResult(previousReportId string, currentReportId string) string {
	return fmt.Sprintf("%s-%s", previousReportId, currentReportId)
}

func Harvest(strategy string, txHash string, txIndex uint64) string {
	return fmt.Sprintf("%s-%s-%d", strategy, txHash, txIndex)
}

func StrategyMigration(oldStrategy string, newStrategy string) string {
	return fmt.Sprintf("%s-%s", oldStrategy, newStrategy)
}

func Transfer(fromAccountId string, toAccountId string, transactionId string) string {
	return fmt.Sprintf("%s-%s-%s", fromAccountId, toAccountId, transactionId)
}

// TokenFeeId is the vault's id; the ledger is one row per vault.
func TokenFeeId(vault string) string {
	return vault
}
