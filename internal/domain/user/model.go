package user

import "time"

// KYC review states.
const (
	KYCPending  = "pending"
	KYCVerified = "verified"
	KYCRejected = "rejected"
)

// User is the mirrored account record the staking and listener services
// consult. Account CRUD itself lives outside this service.
type User struct {
	ID            string
	Email         string
	PasswordHash  string
	Role          string // "user" or "creator"
	WalletAddress string
	DisplayName   string
	Bio           string
	KYCStatus     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Export is the sanitized view returned by data exports. It deliberately has
// no field for credentials or KYC material, so an export structurally cannot
// leak them.
type Export struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	WalletAddress string    `json:"walletAddress"`
	DisplayName   string    `json:"displayName"`
	Bio           string    `json:"bio"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ExportOf builds the sanitized export view of a user.
func ExportOf(u User) Export {
	return Export{
		ID:            u.ID,
		Email:         u.Email,
		Role:          u.Role,
		WalletAddress: u.WalletAddress,
		DisplayName:   u.DisplayName,
		Bio:           u.Bio,
		CreatedAt:     u.CreatedAt,
	}
}
