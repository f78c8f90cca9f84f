// Package mirror defines the off-chain state mirror: cached vault, curve,
// song, reward and revenue records backing fast reads. The ledger remains
// the source of truth; these stores are kept approximately consistent by
// the services and can be rebuilt by the reconciler.
package mirror

import (
	"context"

	"github.com/tunevault/service_layer/internal/domain/curve"
	"github.com/tunevault/service_layer/internal/domain/saga"
	"github.com/tunevault/service_layer/internal/domain/song"
	"github.com/tunevault/service_layer/internal/domain/user"
	"github.com/tunevault/service_layer/internal/domain/vault"
)

// VaultStore persists mirrored vault records.
type VaultStore interface {
	CreateVault(ctx context.Context, v vault.Vault) (vault.Vault, error)
	UpdateVault(ctx context.Context, v vault.Vault) (vault.Vault, error)
	GetVault(ctx context.Context, id string) (vault.Vault, error)
	GetVaultByTrack(ctx context.Context, trackIDHex string) (vault.Vault, error)
	ListVaults(ctx context.Context, creatorAddress string) ([]vault.Vault, error)
}

// CurveStore persists mirrored bonding curve records.
type CurveStore interface {
	CreateCurve(ctx context.Context, c curve.Curve) (curve.Curve, error)
	UpdateCurve(ctx context.Context, c curve.Curve) (curve.Curve, error)
	GetCurve(ctx context.Context, id string) (curve.Curve, error)
	GetCurveByVault(ctx context.Context, vaultID string) (curve.Curve, error)
}

// SongStore persists mirrored song records and their sale counters. Counter
// mutations are atomic conditional updates so concurrent purchases cannot
// drive TokensAvailable negative.
type SongStore interface {
	UpsertSong(ctx context.Context, s song.Song) (song.Song, error)
	GetSong(ctx context.Context, id string) (song.Song, error)
	GetSongByTrack(ctx context.Context, creatorAddress, trackIDHex string) (song.Song, error)
	ListSongs(ctx context.Context) ([]song.Song, error)

	// ReserveTokens decrements TokensAvailable by quantity only when enough
	// tokens remain, returning the updated record. Insufficient inventory is
	// a validation error and leaves the record untouched.
	ReserveTokens(ctx context.Context, songID string, quantity int64) (song.Song, error)
	// ReleaseTokens returns a failed reservation to inventory.
	ReleaseTokens(ctx context.Context, songID string, quantity int64) error
	// FinalizeSale applies the post-transfer counter updates: holders
	// increment and earnings accumulation.
	FinalizeSale(ctx context.Context, songID string, amount float64) (song.Song, error)
	// ReplaceCounters overwrites the sale counters from ledger truth.
	ReplaceCounters(ctx context.Context, songID string, tokensAvailable, holders int64) error
}

// RewardStore persists claimable reward rows keyed by (user, vault).
type RewardStore interface {
	UpsertReward(ctx context.Context, r vault.ClaimableReward) (vault.ClaimableReward, error)
	GetReward(ctx context.Context, userID, vaultID string) (vault.ClaimableReward, error)
	ListRewards(ctx context.Context, userID string) ([]vault.ClaimableReward, error)
}

// RevenueStore appends immutable sale records. There is deliberately no
// update or delete: the revenue ledger is append-only.
type RevenueStore interface {
	AppendRevenue(ctx context.Context, rec song.RevenueRecord) (song.RevenueRecord, error)
	ListRevenue(ctx context.Context, creator string) ([]song.RevenueRecord, error)
}

// UserStore resolves mirrored user records for ownership checks and exports.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
}

// SagaStore persists tokenization step cursors and reconciler checkpoints.
type SagaStore interface {
	GetCursor(ctx context.Context, trackIDHex string) (saga.Cursor, error)
	SaveCursor(ctx context.Context, c saga.Cursor) (saga.Cursor, error)

	GetCheckpoint(ctx context.Context, id string) (saga.Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp saga.Checkpoint) (saga.Checkpoint, error)
}
