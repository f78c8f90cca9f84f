package vault

import "time"

// Vault represents the on-ledger container for a tokenized track's token
// supply, as mirrored off-chain. The ledger object is the source of truth;
// this record is a cache kept approximately consistent by the services.
type Vault struct {
	ID             string
	TrackIDHex     string
	CreatorAddress string
	CoinType       string
	CurveID        string
	IsStaked       bool
	Protocol       string
	StakeAmount    string
	YieldEarned    string
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ClaimableReward records yield accrued from staking a vault, redeemable by
// its owner. Created with amount "0" on stake and updated on unstake.
type ClaimableReward struct {
	ID        string
	UserID    string
	VaultID   string
	Amount    string
	Protocol  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// YieldStats is the read-only yield view for a staked vault. Absent ledger
// data defaults every field to "0" rather than failing the read.
type YieldStats struct {
	VaultID     string
	Principal   string
	YieldEarned string
	APR         string
}

// ZeroYieldStats returns stats with every figure zeroed.
func ZeroYieldStats(vaultID string) YieldStats {
	return YieldStats{VaultID: vaultID, Principal: "0", YieldEarned: "0", APR: "0"}
}
