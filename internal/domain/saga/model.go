package saga

import "time"

// State is a tokenization saga step cursor position. Steps are strictly
// ordered; a cursor only ever advances.
type State string

const (
	StatePending          State = "PENDING"
	StateCreatedVault     State = "CREATED_VAULT"
	StateCurveInitialized State = "CURVE_INITIALIZED"
	StateTokensMinted     State = "TOKENS_MINTED"
	StateStakeRequested   State = "STAKE_REQUESTED"
	StateMirrorUpdated    State = "MIRROR_UPDATED"
)

var order = map[State]int{
	StatePending:          0,
	StateCreatedVault:     1,
	StateCurveInitialized: 2,
	StateTokensMinted:     3,
	StateStakeRequested:   4,
	StateMirrorUpdated:    5,
}

// Reached reports whether s is at or past target.
func (s State) Reached(target State) bool {
	return order[s] >= order[target]
}

// Cursor persists tokenization progress keyed by track id. Ledger object ids
// produced by completed steps are recorded so a resumed saga never re-issues
// a committed call. The mint parameters are pinned once the mint commits:
// later attempts must match them, otherwise the mirror would record supply
// that was never minted.
type Cursor struct {
	TrackIDHex    string
	State         State
	VaultID       string
	CurveID       string
	VaultTx       string
	CurveTx       string
	MintTx        string
	StakeTx       string
	MintedTo      string
	MintedAmount  int64
	TokenPrice    float64
	CurveInitSent bool // set before curve init is submitted; init is not idempotent
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Checkpoint stores the reconciler's position in the ledger event stream.
type Checkpoint struct {
	ID        string
	Cursor    string // digest of the last processed event transaction
	UpdatedAt time.Time
}
