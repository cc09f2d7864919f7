package model

import "time"

// WalletCategory is the behavioral classification of a wallet.
type WalletCategory string

const (
	CategoryNew          WalletCategory = "new"
	CategoryDormant      WalletCategory = "dormant"
	CategoryWhale        WalletCategory = "whale"
	CategoryActiveTrader WalletCategory = "active-trader"
	CategoryHodler       WalletCategory = "hodler"
)

// PortfolioHealth describes the diversification state of a wallet.
type PortfolioHealth string

const (
	HealthEmpty        PortfolioHealth = "empty"
	HealthConcentrated PortfolioHealth = "concentrated"
	HealthUnderfunded  PortfolioHealth = "underfunded"
	HealthDiversified  PortfolioHealth = "diversified"
)

// NoAnomalies is the sentinel returned when no anomaly rule fires. Callers
// must treat a single-element list containing it as "no anomalies", not as an
// anomaly itself.
const NoAnomalies = "No anomalies detected"

// Balances holds raw asset balances as decimal strings.
type Balances struct {
	ETH  string `json:"ETH"`
	USDC string `json:"USDC"`
}

// IntelReport is the composite wallet-intelligence product. It is built fresh
// per request and never persisted; only the expenses incurred while building
// it (and the revenue charged for it) reach the ledger.
type IntelReport struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	Timestamp time.Time `json:"timestamp"`

	Balances    Balances `json:"balances"`
	EthPriceUsd string   `json:"ethPriceUsd"`

	PortfolioValueUsd string          `json:"portfolioValueUsd"`
	RiskScore         int             `json:"riskScore"`
	WalletCategory    WalletCategory  `json:"walletCategory"`
	PortfolioHealth   PortfolioHealth `json:"portfolioHealth"`
	ActivityPattern   string          `json:"activityPattern"`
	Anomalies         []string        `json:"anomalies"`

	AISummary      string `json:"aiSummary"`
	Recommendation string `json:"recommendation"`

	CostToGenerate string   `json:"costToGenerate"`
	SkillsUsed     []string `json:"skillsUsed"`
}

// QuickCheck is the narrow payload of the cheaper balance-check product.
type QuickCheck struct {
	Address   string   `json:"address"`
	Balances  Balances `json:"balances"`
	RiskScore int      `json:"riskScore"`
	Health    string   `json:"health"`
}
