// Package storage defines the projected entity tables. Every row is keyed by
// a deterministic string identity built in the ids package; uint256 values
// are carried as base-10 strings in numeric columns.
package storage

import "time"

type Account struct {
	Id        string `gorm:"primaryKey"`
	CreatedAt time.Time
}

type Token struct {
	Id        string `gorm:"primaryKey"`
	Name      string
	Symbol    string
	Decimals  uint8
	CreatedAt time.Time
}

// Transaction is immutable once created; the resolver reuses an existing row
// for a repeated (txHash, logIndex) pair.
type Transaction struct {
	Id               string `gorm:"primaryKey"`
	TransactionHash  string
	LogIndex         uint64
	From             string `gorm:"column:from_address"`
	To               string `gorm:"column:to_address"`
	Value            string `gorm:"type:numeric"`
	GasLimit         string `gorm:"type:numeric"`
	GasPrice         string `gorm:"type:numeric"`
	BlockNumber      uint64
	Timestamp        uint64
	TransactionIndex uint64
	Event            string
	CreatedAt        time.Time
}

type Vault struct {
	Id                    string `gorm:"primaryKey"`
	TokenId               string
	ShareTokenId          string
	RegistryId            string
	Classification        string
	ApiVersion            string
	Tags                  []string `gorm:"serializer:json"`
	SharesSupply          string   `gorm:"type:numeric"`
	BalanceTokens         string   `gorm:"type:numeric"`
	BalanceTokensIdle     string   `gorm:"type:numeric"`
	DepositLimit          string   `gorm:"type:numeric"`
	AvailableDepositLimit string   `gorm:"type:numeric"`
	ManagementFeeBps      uint64
	PerformanceFeeBps     uint64
	Governance            string
	Management            string
	Guardian              string
	Rewards               string
	HealthCheck           string
	WithdrawalQueue       []string `gorm:"serializer:json"`
	LatestUpdateId        string
	LatestUpdateBlock     uint64
	Activation            uint64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

const (
	VaultClassification_Experimental = "Experimental"
	VaultClassification_Endorsed     = "Endorsed"
	VaultClassification_Released     = "Released"
)

// VaultUpdate is one immutable link in a vault's backward-linked update
// chain. The New* fields are nil unless this update's cause changed them.
type VaultUpdate struct {
	Id                   string `gorm:"primaryKey"`
	VaultId              string
	TransactionId        string
	Timestamp            uint64
	BlockNumber          uint64
	TokensDeposited      string `gorm:"type:numeric"`
	TokensWithdrawn      string `gorm:"type:numeric"`
	SharesMinted         string `gorm:"type:numeric"`
	SharesBurnt          string `gorm:"type:numeric"`
	PricePerShare        string `gorm:"type:numeric"`
	TotalFees            string `gorm:"type:numeric"`
	CurrentBalanceTokens string `gorm:"type:numeric"`
	ReturnsGenerated     string `gorm:"type:numeric"`
	NewManagementFee     *uint64
	NewPerformanceFee    *uint64
	NewRewards           *string
	NewHealthCheck       *string
	CreatedAt            time.Time
}

type Strategy struct {
	Id                string `gorm:"primaryKey"`
	VaultId           string
	Name              string
	ApiVersion        string
	DebtLimit         string `gorm:"type:numeric"`
	RateLimit         string `gorm:"type:numeric"`
	DebtRatio         string `gorm:"type:numeric"`
	MinDebtPerHarvest string `gorm:"type:numeric"`
	MaxDebtPerHarvest string `gorm:"type:numeric"`
	PerformanceFeeBps uint64
	Keeper            string
	Strategist        string
	Rewards           string
	HealthCheck       string
	DoHealthCheck     bool
	EmergencyExit     bool
	InQueue           bool
	ClonedFromId      string
	LatestReportId    string
	TransactionId     string
	Timestamp         uint64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type StrategyReport struct {
	Id            string `gorm:"primaryKey"`
	StrategyId    string
	TransactionId string
	Timestamp     uint64
	BlockNumber   uint64
	Gain          string `gorm:"type:numeric"`
	Loss          string `gorm:"type:numeric"`
	TotalGain     string `gorm:"type:numeric"`
	TotalLoss     string `gorm:"type:numeric"`
	TotalDebt     string `gorm:"type:numeric"`
	DebtAdded     string `gorm:"type:numeric"`
	DebtPaid      string `gorm:"type:numeric"`
	DebtRatio     string `gorm:"type:numeric"`
	CreatedAt     time.Time
}

// StrategyReportResult diffs two consecutive reports for one strategy; it is
// never created for a strategy's first report.
type StrategyReportResult struct {
	Id               string `gorm:"primaryKey"`
	StrategyId       string
	PreviousReportId string
	CurrentReportId  string
	StartTimestamp   uint64
	EndTimestamp     uint64
	Duration         uint64
	ProfitRatio      string `gorm:"type:numeric"`
	Apr              string `gorm:"type:numeric"`
	TransactionId    string
	CreatedAt        time.Time
}

type Harvest struct {
	Id              string `gorm:"primaryKey"`
	StrategyId      string
	VaultId         string
	TransactionId   string
	Timestamp       uint64
	Profit          string `gorm:"type:numeric"`
	Loss            string `gorm:"type:numeric"`
	DebtPayment     string `gorm:"type:numeric"`
	DebtOutstanding string `gorm:"type:numeric"`
	CreatedAt       time.Time
}

type StrategyMigration struct {
	Id            string `gorm:"primaryKey"`
	OldStrategyId string
	NewStrategyId string
	VaultId       string
	TransactionId string
	Timestamp     uint64
	CreatedAt     time.Time
}

type Deposit struct {
	Id              string `gorm:"primaryKey"`
	AccountId       string
	VaultId         string
	TransactionId   string
	Timestamp       uint64
	BlockNumber     uint64
	TokenAmount     string `gorm:"type:numeric"`
	TokenAmountUsdc string `gorm:"type:numeric"`
	SharesMinted    string `gorm:"type:numeric"`
	CreatedAt       time.Time
}

type Withdrawal struct {
	Id              string `gorm:"primaryKey"`
	AccountId       string
	VaultId         string
	TransactionId   string
	Timestamp       uint64
	BlockNumber     uint64
	TokenAmount     string `gorm:"type:numeric"`
	TokenAmountUsdc string `gorm:"type:numeric"`
	SharesBurnt     string `gorm:"type:numeric"`
	CreatedAt       time.Time
}

type Transfer struct {
	Id              string `gorm:"primaryKey"`
	FromAccountId   string
	ToAccountId     string
	VaultId         string
	TokenId         string
	TransactionId   string
	Timestamp       uint64
	ShareAmount     string `gorm:"type:numeric"`
	TokenAmount     string `gorm:"type:numeric"`
	TokenAmountUsdc string `gorm:"type:numeric"`
	IsFeeToStrategy bool
	IsFeeToTreasury bool
	CreatedAt       time.Time
}

type AccountVaultPosition struct {
	Id             string `gorm:"primaryKey"`
	AccountId      string
	VaultId        string
	TokenId        string
	ShareTokenId   string
	TransactionId  string
	BalanceShares  string `gorm:"type:numeric"`
	BalanceTokens  string `gorm:"type:numeric"`
	LatestUpdateId string
	UpdateCount    uint64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type AccountVaultPositionUpdate struct {
	Id              string `gorm:"primaryKey"`
	Ordinal         uint64
	PositionId      string
	AccountId       string
	VaultId         string
	TransactionId   string
	Timestamp       uint64
	BlockNumber     uint64
	Deposits        string `gorm:"type:numeric"`
	Withdrawals     string `gorm:"type:numeric"`
	SharesMinted    string `gorm:"type:numeric"`
	SharesBurnt     string `gorm:"type:numeric"`
	SharesSent      string `gorm:"type:numeric"`
	SharesReceived  string `gorm:"type:numeric"`
	TokensSent      string `gorm:"type:numeric"`
	TokensReceived  string `gorm:"type:numeric"`
	BalanceShares   string `gorm:"type:numeric"`
	BalanceTokens   string `gorm:"type:numeric"`
	CreatedAt       time.Time
}

// TokenFee carries the two-phase fee ledger for one vault: accrue into the
// unrecognized counters on transfer classification, move them into the
// totals on the next strategy report.
type TokenFee struct {
	Id                       string `gorm:"primaryKey"`
	TokenId                  string
	UnrecognizedStrategyFees string `gorm:"type:numeric"`
	UnrecognizedTreasuryFees string `gorm:"type:numeric"`
	TotalStrategyFees        string `gorm:"type:numeric"`
	TotalTreasuryFees        string `gorm:"type:numeric"`
	TotalFees                string `gorm:"type:numeric"`
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

type VaultDayData struct {
	Id                        string `gorm:"primaryKey"`
	VaultId                   string
	DayIndex                  uint64
	Timestamp                 uint64
	PricePerShare             string `gorm:"type:numeric"`
	Deposited                 string `gorm:"type:numeric"`
	Withdrawn                 string `gorm:"type:numeric"`
	DayReturnsGenerated       string `gorm:"type:numeric"`
	TotalReturnsGenerated     string `gorm:"type:numeric"`
	DepositedUsdc             string `gorm:"type:numeric"`
	WithdrawnUsdc             string `gorm:"type:numeric"`
	DayReturnsGeneratedUsdc   string `gorm:"type:numeric"`
	TotalReturnsGeneratedUsdc string `gorm:"type:numeric"`
	TokenPriceUsdc            string `gorm:"type:numeric"`
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

type Registry struct {
	Id                     string `gorm:"primaryKey"`
	ReleaseCount           uint64
	VaultCount             uint64
	ExperimentalVaultCount uint64
	TransactionId          string
	Timestamp              uint64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// AllTables drives migration.
func AllTables() []interface{} {
	return []interface{}{
		&Account{},
		&Token{},
		&Transaction{},
		&Vault{},
		&VaultUpdate{},
		&Strategy{},
		&StrategyReport{},
		&StrategyReportResult{},
		&Harvest{},
		&StrategyMigration{},
		&Deposit{},
		&Withdrawal{},
		&Transfer{},
		&AccountVaultPosition{},
		&AccountVaultPositionUpdate{},
		&TokenFee{},
		&VaultDayData{},
		&Registry{},
	}
}
