package song

import (
	"strconv"
	"time"
)

// Song is the mirror record backing fast reads for a tokenized track.
// TokensAvailable and Holders are hand-maintained counters; the reconciler
// rewrites them from ledger events so the record stays a rebuildable cache.
type Song struct {
	ID              string
	TrackIDHex      string
	CreatorAddress  string
	Title           string
	Artist          string
	Tokenized       bool
	TokenPrice      float64
	TokensAvailable int64
	Holders         int64
	Earnings        float64
	CurveID         string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RevenueRecord is one appended sale event for a creator. Records are never
// mutated after creation.
type RevenueRecord struct {
	ID           string
	Creator      string
	Title        string
	VaultRevenue string
	YieldEarned  string
	DAOSupport   string
	Protocol     string
	Withdrawable string
	CreatedAt    time.Time
}

// FormatAmount renders a monetary amount the way revenue records store it.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
