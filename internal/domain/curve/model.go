package curve

import "time"

// Curve types understood by the ledger module.
const (
	TypeLinear      = "linear"
	TypeExponential = "exponential"
)

// Curve mirrors a bonding curve object. Exactly one curve exists per vault
// and it is created only after the vault itself; parameters change only
// through governance updates.
type Curve struct {
	ID        string
	VaultID   string
	Slope     float64
	BasePrice float64
	CurveType string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PriceAt evaluates the curve locally at a cumulative quantity. This is the
// off-chain fallback; pricing truth lives in the ledger's simulation call.
func (c Curve) PriceAt(quantity int64) float64 {
	return c.BasePrice + c.Slope*float64(quantity)
}
