// Package postgres implements the mirror interfaces backed by PostgreSQL.
// Counter mutations use conditional UPDATEs so concurrent purchases cannot
// oversell inventory.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tunevault/service_layer/internal/apperr"
	"github.com/tunevault/service_layer/internal/domain/curve"
	"github.com/tunevault/service_layer/internal/domain/saga"
	"github.com/tunevault/service_layer/internal/domain/song"
	"github.com/tunevault/service_layer/internal/domain/user"
	"github.com/tunevault/service_layer/internal/domain/vault"
	"github.com/tunevault/service_layer/internal/mirror"
)

// Store implements the mirror interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ mirror.VaultStore = (*Store)(nil)
var _ mirror.CurveStore = (*Store)(nil)
var _ mirror.SongStore = (*Store)(nil)
var _ mirror.RewardStore = (*Store)(nil)
var _ mirror.RevenueStore = (*Store)(nil)
var _ mirror.UserStore = (*Store)(nil)
var _ mirror.SagaStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- VaultStore -------------------------------------------------------------

const vaultColumns = `id, track_id_hex, creator_address, coin_type, curve_id,
	is_staked, protocol, stake_amount, yield_earned, version, created_at, updated_at`

func (s *Store) CreateVault(ctx context.Context, v vault.Vault) (vault.Vault, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	v.Version = 1

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mirror_vaults (id, track_id_hex, creator_address, coin_type, curve_id,
			is_staked, protocol, stake_amount, yield_earned, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, v.ID, v.TrackIDHex, v.CreatorAddress, v.CoinType, v.CurveID,
		v.IsStaked, v.Protocol, v.StakeAmount, v.YieldEarned, v.Version, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return vault.Vault{}, err
	}
	return v, nil
}

func (s *Store) UpdateVault(ctx context.Context, v vault.Vault) (vault.Vault, error) {
	v.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE mirror_vaults
		SET coin_type = $2, curve_id = $3, is_staked = $4, protocol = $5,
			stake_amount = $6, yield_earned = $7, version = version + 1, updated_at = $8
		WHERE id = $1
	`, v.ID, v.CoinType, v.CurveID, v.IsStaked, v.Protocol, v.StakeAmount, v.YieldEarned, v.UpdatedAt)
	if err != nil {
		return vault.Vault{}, err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return vault.Vault{}, apperr.NotFound("vault", v.ID)
	}
	return s.GetVault(ctx, v.ID)
}

func (s *Store) GetVault(ctx context.Context, id string) (vault.Vault, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+vaultColumns+` FROM mirror_vaults WHERE id = $1
	`, id)
	v, err := scanVault(row)
	if errors.Is(err, sql.ErrNoRows) {
		return vault.Vault{}, apperr.NotFound("vault", id)
	}
	return v, err
}

func (s *Store) GetVaultByTrack(ctx context.Context, trackIDHex string) (vault.Vault, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+vaultColumns+` FROM mirror_vaults WHERE lower(track_id_hex) = lower($1)
	`, trackIDHex)
	v, err := scanVault(row)
	if errors.Is(err, sql.ErrNoRows) {
		return vault.Vault{}, apperr.NotFound("vault for track", trackIDHex)
	}
	return v, err
}

func (s *Store) ListVaults(ctx context.Context, creatorAddress string) ([]vault.Vault, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+vaultColumns+` FROM mirror_vaults
		WHERE $1 = '' OR lower(creator_address) = lower($1)
		ORDER BY created_at
	`, creatorAddress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vault.Vault
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVault(row rowScanner) (vault.Vault, error) {
	var v vault.Vault
	err := row.Scan(&v.ID, &v.TrackIDHex, &v.CreatorAddress, &v.CoinType, &v.CurveID,
		&v.IsStaked, &v.Protocol, &v.StakeAmount, &v.YieldEarned, &v.Version, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

// --- CurveStore -------------------------------------------------------------

func (s *Store) CreateCurve(ctx context.Context, c curve.Curve) (curve.Curve, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mirror_curves (id, vault_id, slope, base_price, curve_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.VaultID, c.Slope, c.BasePrice, c.CurveType, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return curve.Curve{}, err
	}
	return c, nil
}

func (s *Store) UpdateCurve(ctx context.Context, c curve.Curve) (curve.Curve, error) {
	c.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE mirror_curves
		SET slope = $2, base_price = $3, curve_type = $4, updated_at = $5
		WHERE id = $1
	`, c.ID, c.Slope, c.BasePrice, c.CurveType, c.UpdatedAt)
	if err != nil {
		return curve.Curve{}, err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return curve.Curve{}, apperr.NotFound("curve", c.ID)
	}
	return s.GetCurve(ctx, c.ID)
}

func (s *Store) GetCurve(ctx context.Context, id string) (curve.Curve, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, vault_id, slope, base_price, curve_type, created_at, updated_at
		FROM mirror_curves WHERE id = $1
	`, id)
	c, err := scanCurve(row)
	if errors.Is(err, sql.ErrNoRows) {
		return curve.Curve{}, apperr.NotFound("curve", id)
	}
	return c, err
}

func (s *Store) GetCurveByVault(ctx context.Context, vaultID string) (curve.Curve, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, vault_id, slope, base_price, curve_type, created_at, updated_at
		FROM mirror_curves WHERE vault_id = $1
	`, vaultID)
	c, err := scanCurve(row)
	if errors.Is(err, sql.ErrNoRows) {
		return curve.Curve{}, apperr.NotFound("curve for vault", vaultID)
	}
	return c, err
}

func scanCurve(row rowScanner) (curve.Curve, error) {
	var c curve.Curve
	err := row.Scan(&c.ID, &c.VaultID, &c.Slope, &c.BasePrice, &c.CurveType, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// --- SongStore --------------------------------------------------------------

const songColumns = `id, track_id_hex, creator_address, title, artist, tokenized,
	token_price, tokens_available, holders, earnings, curve_id, version, created_at, updated_at`

func (s *Store) UpsertSong(ctx context.Context, rec song.Song) (song.Song, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO mirror_songs (id, track_id_hex, creator_address, title, artist, tokenized,
			token_price, tokens_available, holders, earnings, curve_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $12)
		ON CONFLICT (creator_address, track_id_hex) DO UPDATE
		SET title = EXCLUDED.title, artist = EXCLUDED.artist, tokenized = EXCLUDED.tokenized,
			token_price = EXCLUDED.token_price, tokens_available = EXCLUDED.tokens_available,
			holders = EXCLUDED.holders, earnings = EXCLUDED.earnings, curve_id = EXCLUDED.curve_id,
			version = mirror_songs.version + 1, updated_at = EXCLUDED.updated_at
		RETURNING `+songColumns+`
	`, rec.ID, rec.TrackIDHex, rec.CreatorAddress, rec.Title, rec.Artist, rec.Tokenized,
		rec.TokenPrice, rec.TokensAvailable, rec.Holders, rec.Earnings, rec.CurveID, now)
	return scanSong(row)
}

func (s *Store) GetSong(ctx context.Context, id string) (song.Song, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+songColumns+` FROM mirror_songs WHERE id = $1
	`, id)
	rec, err := scanSong(row)
	if errors.Is(err, sql.ErrNoRows) {
		return song.Song{}, apperr.NotFound("song", id)
	}
	return rec, err
}

func (s *Store) GetSongByTrack(ctx context.Context, creatorAddress, trackIDHex string) (song.Song, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+songColumns+` FROM mirror_songs
		WHERE lower(creator_address) = lower($1) AND lower(track_id_hex) = lower($2)
	`, creatorAddress, trackIDHex)
	rec, err := scanSong(row)
	if errors.Is(err, sql.ErrNoRows) {
		return song.Song{}, apperr.NotFound("song for track", trackIDHex)
	}
	return rec, err
}

func (s *Store) ListSongs(ctx context.Context) ([]song.Song, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+songColumns+` FROM mirror_songs ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []song.Song
	for rows.Next() {
		rec, err := scanSong(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ReserveTokens is the serialization point for purchases: the decrement only
// applies when enough tokens remain, evaluated atomically by the database.
func (s *Store) ReserveTokens(ctx context.Context, songID string, quantity int64) (song.Song, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE mirror_songs
		SET tokens_available = tokens_available - $2, version = version + 1, updated_at = $3
		WHERE id = $1 AND tokens_available >= $2
		RETURNING `+songColumns+`
	`, songID, quantity, time.Now().UTC())

	rec, err := scanSong(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the song is unknown or inventory is short; distinguish so
		// buyers get the right error.
		if _, getErr := s.GetSong(ctx, songID); getErr != nil {
			return song.Song{}, getErr
		}
		return song.Song{}, apperr.Validation("insufficient tokens for song %s", songID)
	}
	return rec, err
}

func (s *Store) ReleaseTokens(ctx context.Context, songID string, quantity int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE mirror_songs
		SET tokens_available = tokens_available + $2, version = version + 1, updated_at = $3
		WHERE id = $1
	`, songID, quantity, time.Now().UTC())
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperr.NotFound("song", songID)
	}
	return nil
}

func (s *Store) FinalizeSale(ctx context.Context, songID string, amount float64) (song.Song, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE mirror_songs
		SET holders = holders + 1, earnings = earnings + $2, version = version + 1, updated_at = $3
		WHERE id = $1
		RETURNING `+songColumns+`
	`, songID, amount, time.Now().UTC())

	rec, err := scanSong(row)
	if errors.Is(err, sql.ErrNoRows) {
		return song.Song{}, apperr.NotFound("song", songID)
	}
	return rec, err
}

func (s *Store) ReplaceCounters(ctx context.Context, songID string, tokensAvailable, holders int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE mirror_songs
		SET tokens_available = $2, holders = $3, version = version + 1, updated_at = $4
		WHERE id = $1
	`, songID, tokensAvailable, holders, time.Now().UTC())
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperr.NotFound("song", songID)
	}
	return nil
}

func scanSong(row rowScanner) (song.Song, error) {
	var rec song.Song
	err := row.Scan(&rec.ID, &rec.TrackIDHex, &rec.CreatorAddress, &rec.Title, &rec.Artist,
		&rec.Tokenized, &rec.TokenPrice, &rec.TokensAvailable, &rec.Holders, &rec.Earnings,
		&rec.CurveID, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

// --- RewardStore ------------------------------------------------------------

func (s *Store) UpsertReward(ctx context.Context, r vault.ClaimableReward) (vault.ClaimableReward, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO mirror_rewards (id, user_id, vault_id, amount, protocol, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id, vault_id) DO UPDATE
		SET amount = EXCLUDED.amount, protocol = EXCLUDED.protocol, updated_at = EXCLUDED.updated_at
		RETURNING id, user_id, vault_id, amount, protocol, created_at, updated_at
	`, r.ID, r.UserID, r.VaultID, r.Amount, r.Protocol, now)

	var out vault.ClaimableReward
	err := row.Scan(&out.ID, &out.UserID, &out.VaultID, &out.Amount, &out.Protocol, &out.CreatedAt, &out.UpdatedAt)
	return out, err
}

func (s *Store) GetReward(ctx context.Context, userID, vaultID string) (vault.ClaimableReward, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, vault_id, amount, protocol, created_at, updated_at
		FROM mirror_rewards WHERE user_id = $1 AND vault_id = $2
	`, userID, vaultID)

	var r vault.ClaimableReward
	err := row.Scan(&r.ID, &r.UserID, &r.VaultID, &r.Amount, &r.Protocol, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return vault.ClaimableReward{}, apperr.NotFound("claimable reward", vaultID)
	}
	return r, err
}

func (s *Store) ListRewards(ctx context.Context, userID string) ([]vault.ClaimableReward, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, vault_id, amount, protocol, created_at, updated_at
		FROM mirror_rewards WHERE user_id = $1 ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vault.ClaimableReward
	for rows.Next() {
		var r vault.ClaimableReward
		if err := rows.Scan(&r.ID, &r.UserID, &r.VaultID, &r.Amount, &r.Protocol, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- RevenueStore -----------------------------------------------------------

func (s *Store) AppendRevenue(ctx context.Context, rec song.RevenueRecord) (song.RevenueRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mirror_revenue (id, creator, title, vault_revenue, yield_earned,
			dao_support, protocol, withdrawable, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.Creator, rec.Title, rec.VaultRevenue, rec.YieldEarned,
		rec.DAOSupport, rec.Protocol, rec.Withdrawable, rec.CreatedAt)
	if err != nil {
		return song.RevenueRecord{}, err
	}
	return rec, nil
}

func (s *Store) ListRevenue(ctx context.Context, creator string) ([]song.RevenueRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, creator, title, vault_revenue, yield_earned, dao_support, protocol, withdrawable, created_at
		FROM mirror_revenue
		WHERE $1 = '' OR creator = $1
		ORDER BY created_at
	`, creator)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []song.RevenueRecord
	for rows.Next() {
		var rec song.RevenueRecord
		if err := rows.Scan(&rec.ID, &rec.Creator, &rec.Title, &rec.VaultRevenue, &rec.YieldEarned,
			&rec.DAOSupport, &rec.Protocol, &rec.Withdrawable, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mirror_users (id, email, password_hash, role, wallet_address,
			display_name, bio, kyc_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.Email, u.PasswordHash, u.Role, u.WalletAddress, u.DisplayName, u.Bio, u.KYCStatus, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, wallet_address, display_name, bio, kyc_status, created_at, updated_at
		FROM mirror_users WHERE id = $1
	`, id)

	var u user.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.WalletAddress,
		&u.DisplayName, &u.Bio, &u.KYCStatus, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, apperr.NotFound("user", id)
	}
	return u, err
}

// --- SagaStore --------------------------------------------------------------

func (s *Store) GetCursor(ctx context.Context, trackIDHex string) (saga.Cursor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT track_id_hex, state, vault_id, curve_id, vault_tx, curve_tx, mint_tx, stake_tx,
			minted_to, minted_amount, token_price, curve_init_sent, last_error, created_at, updated_at
		FROM saga_cursors WHERE lower(track_id_hex) = lower($1)
	`, trackIDHex)

	var c saga.Cursor
	err := row.Scan(&c.TrackIDHex, &c.State, &c.VaultID, &c.CurveID, &c.VaultTx, &c.CurveTx,
		&c.MintTx, &c.StakeTx, &c.MintedTo, &c.MintedAmount, &c.TokenPrice,
		&c.CurveInitSent, &c.LastError, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return saga.Cursor{}, apperr.NotFound("saga cursor", trackIDHex)
	}
	return c, err
}

func (s *Store) SaveCursor(ctx context.Context, c saga.Cursor) (saga.Cursor, error) {
	now := time.Now().UTC()

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO saga_cursors (track_id_hex, state, vault_id, curve_id, vault_tx, curve_tx,
			mint_tx, stake_tx, minted_to, minted_amount, token_price, curve_init_sent,
			last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		ON CONFLICT (track_id_hex) DO UPDATE
		SET state = EXCLUDED.state, vault_id = EXCLUDED.vault_id, curve_id = EXCLUDED.curve_id,
			vault_tx = EXCLUDED.vault_tx, curve_tx = EXCLUDED.curve_tx, mint_tx = EXCLUDED.mint_tx,
			stake_tx = EXCLUDED.stake_tx, minted_to = EXCLUDED.minted_to,
			minted_amount = EXCLUDED.minted_amount, token_price = EXCLUDED.token_price,
			curve_init_sent = EXCLUDED.curve_init_sent,
			last_error = EXCLUDED.last_error, updated_at = EXCLUDED.updated_at
		RETURNING track_id_hex, state, vault_id, curve_id, vault_tx, curve_tx, mint_tx, stake_tx,
			minted_to, minted_amount, token_price, curve_init_sent, last_error, created_at, updated_at
	`, c.TrackIDHex, c.State, c.VaultID, c.CurveID, c.VaultTx, c.CurveTx, c.MintTx, c.StakeTx,
		c.MintedTo, c.MintedAmount, c.TokenPrice, c.CurveInitSent, c.LastError, now)

	var out saga.Cursor
	err := row.Scan(&out.TrackIDHex, &out.State, &out.VaultID, &out.CurveID, &out.VaultTx,
		&out.CurveTx, &out.MintTx, &out.StakeTx, &out.MintedTo, &out.MintedAmount, &out.TokenPrice,
		&out.CurveInitSent, &out.LastError, &out.CreatedAt, &out.UpdatedAt)
	return out, err
}

func (s *Store) GetCheckpoint(ctx context.Context, id string) (saga.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, cursor, updated_at FROM reconcile_checkpoints WHERE id = $1
	`, id)

	var cp saga.Checkpoint
	err := row.Scan(&cp.ID, &cp.Cursor, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return saga.Checkpoint{}, apperr.NotFound("checkpoint", id)
	}
	return cp, err
}

func (s *Store) SaveCheckpoint(ctx context.Context, cp saga.Checkpoint) (saga.Checkpoint, error) {
	cp.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconcile_checkpoints (id, cursor, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET cursor = EXCLUDED.cursor, updated_at = EXCLUDED.updated_at
	`, cp.ID, cp.Cursor, cp.UpdatedAt)
	if err != nil {
		return saga.Checkpoint{}, err
	}
	return cp, nil
}
