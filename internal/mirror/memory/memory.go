// Package memory provides an in-memory mirror implementation. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
package memory

import (
	"context"
	"strings"
	"sync"
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

// Store is an in-memory implementation of every mirror interface.
type Store struct {
	mu            sync.RWMutex
	vaults        map[string]vault.Vault
	vaultsByTrack map[string]string
	curves        map[string]curve.Curve
	curvesByVault map[string]string
	songs         map[string]song.Song
	songsByTrack  map[string]string // creatorAddress|trackIDHex -> song id
	rewards       map[string]vault.ClaimableReward
	revenue       []song.RevenueRecord
	users         map[string]user.User
	cursors       map[string]saga.Cursor
	checkpoints   map[string]saga.Checkpoint
}

var _ mirror.VaultStore = (*Store)(nil)
var _ mirror.CurveStore = (*Store)(nil)
var _ mirror.SongStore = (*Store)(nil)
var _ mirror.RewardStore = (*Store)(nil)
var _ mirror.RevenueStore = (*Store)(nil)
var _ mirror.UserStore = (*Store)(nil)
var _ mirror.SagaStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		vaults:        make(map[string]vault.Vault),
		vaultsByTrack: make(map[string]string),
		curves:        make(map[string]curve.Curve),
		curvesByVault: make(map[string]string),
		songs:         make(map[string]song.Song),
		songsByTrack:  make(map[string]string),
		rewards:       make(map[string]vault.ClaimableReward),
		users:         make(map[string]user.User),
		cursors:       make(map[string]saga.Cursor),
		checkpoints:   make(map[string]saga.Checkpoint),
	}
}

func trackKey(creatorAddress, trackIDHex string) string {
	return strings.ToLower(creatorAddress) + "|" + strings.ToLower(trackIDHex)
}

func rewardKey(userID, vaultID string) string {
	return userID + "|" + vaultID
}

// VaultStore --------------------------------------------------------------

func (s *Store) CreateVault(_ context.Context, v vault.Vault) (vault.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	v.Version = 1

	s.vaults[v.ID] = v
	if v.TrackIDHex != "" {
		s.vaultsByTrack[strings.ToLower(v.TrackIDHex)] = v.ID
	}
	return v, nil
}

func (s *Store) UpdateVault(_ context.Context, v vault.Vault) (vault.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.vaults[v.ID]
	if !ok {
		return vault.Vault{}, apperr.NotFound("vault", v.ID)
	}

	v.CreatedAt = original.CreatedAt
	v.UpdatedAt = time.Now().UTC()
	v.Version = original.Version + 1

	s.vaults[v.ID] = v
	return v, nil
}

func (s *Store) GetVault(_ context.Context, id string) (vault.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vaults[id]
	if !ok {
		return vault.Vault{}, apperr.NotFound("vault", id)
	}
	return v, nil
}

func (s *Store) GetVaultByTrack(_ context.Context, trackIDHex string) (vault.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.vaultsByTrack[strings.ToLower(trackIDHex)]
	if !ok {
		return vault.Vault{}, apperr.NotFound("vault for track", trackIDHex)
	}
	return s.vaults[id], nil
}

func (s *Store) ListVaults(_ context.Context, creatorAddress string) ([]vault.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []vault.Vault
	for _, v := range s.vaults {
		if creatorAddress == "" || strings.EqualFold(v.CreatorAddress, creatorAddress) {
			out = append(out, v)
		}
	}
	return out, nil
}

// CurveStore --------------------------------------------------------------

func (s *Store) CreateCurve(_ context.Context, c curve.Curve) (curve.Curve, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	s.curves[c.ID] = c
	if c.VaultID != "" {
		s.curvesByVault[c.VaultID] = c.ID
	}
	return c, nil
}

func (s *Store) UpdateCurve(_ context.Context, c curve.Curve) (curve.Curve, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.curves[c.ID]
	if !ok {
		return curve.Curve{}, apperr.NotFound("curve", c.ID)
	}

	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	s.curves[c.ID] = c
	return c, nil
}

func (s *Store) GetCurve(_ context.Context, id string) (curve.Curve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.curves[id]
	if !ok {
		return curve.Curve{}, apperr.NotFound("curve", id)
	}
	return c, nil
}

func (s *Store) GetCurveByVault(_ context.Context, vaultID string) (curve.Curve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.curvesByVault[vaultID]
	if !ok {
		return curve.Curve{}, apperr.NotFound("curve for vault", vaultID)
	}
	return s.curves[id], nil
}

// SongStore ---------------------------------------------------------------

func (s *Store) UpsertSong(_ context.Context, rec song.Song) (song.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := trackKey(rec.CreatorAddress, rec.TrackIDHex)
	now := time.Now().UTC()

	if existingID, ok := s.songsByTrack[key]; ok && rec.ID == "" {
		rec.ID = existingID
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	if original, ok := s.songs[rec.ID]; ok {
		rec.CreatedAt = original.CreatedAt
		rec.Version = original.Version + 1
	} else {
		rec.CreatedAt = now
		rec.Version = 1
	}
	rec.UpdatedAt = now

	s.songs[rec.ID] = rec
	s.songsByTrack[key] = rec.ID
	return rec, nil
}

func (s *Store) GetSong(_ context.Context, id string) (song.Song, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.songs[id]
	if !ok {
		return song.Song{}, apperr.NotFound("song", id)
	}
	return rec, nil
}

func (s *Store) GetSongByTrack(_ context.Context, creatorAddress, trackIDHex string) (song.Song, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.songsByTrack[trackKey(creatorAddress, trackIDHex)]
	if !ok {
		return song.Song{}, apperr.NotFound("song for track", trackIDHex)
	}
	return s.songs[id], nil
}

func (s *Store) ListSongs(_ context.Context) ([]song.Song, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]song.Song, 0, len(s.songs))
	for _, rec := range s.songs {
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) ReserveTokens(_ context.Context, songID string, quantity int64) (song.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.songs[songID]
	if !ok {
		return song.Song{}, apperr.NotFound("song", songID)
	}
	if rec.TokensAvailable < quantity {
		return song.Song{}, apperr.Validation("insufficient tokens: %d available, %d requested", rec.TokensAvailable, quantity)
	}

	rec.TokensAvailable -= quantity
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	s.songs[songID] = rec
	return rec, nil
}

func (s *Store) ReleaseTokens(_ context.Context, songID string, quantity int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.songs[songID]
	if !ok {
		return apperr.NotFound("song", songID)
	}
	rec.TokensAvailable += quantity
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	s.songs[songID] = rec
	return nil
}

func (s *Store) FinalizeSale(_ context.Context, songID string, amount float64) (song.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.songs[songID]
	if !ok {
		return song.Song{}, apperr.NotFound("song", songID)
	}
	rec.Holders++
	rec.Earnings += amount
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	s.songs[songID] = rec
	return rec, nil
}

func (s *Store) ReplaceCounters(_ context.Context, songID string, tokensAvailable, holders int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.songs[songID]
	if !ok {
		return apperr.NotFound("song", songID)
	}
	rec.TokensAvailable = tokensAvailable
	rec.Holders = holders
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	s.songs[songID] = rec
	return nil
}

// RewardStore -------------------------------------------------------------

func (s *Store) UpsertReward(_ context.Context, r vault.ClaimableReward) (vault.ClaimableReward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rewardKey(r.UserID, r.VaultID)
	now := time.Now().UTC()

	if existing, ok := s.rewards[key]; ok {
		r.ID = existing.ID
		r.CreatedAt = existing.CreatedAt
	} else {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	s.rewards[key] = r
	return r, nil
}

func (s *Store) GetReward(_ context.Context, userID, vaultID string) (vault.ClaimableReward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rewards[rewardKey(userID, vaultID)]
	if !ok {
		return vault.ClaimableReward{}, apperr.NotFound("claimable reward", vaultID)
	}
	return r, nil
}

func (s *Store) ListRewards(_ context.Context, userID string) ([]vault.ClaimableReward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []vault.ClaimableReward
	for _, r := range s.rewards {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

// RevenueStore ------------------------------------------------------------

func (s *Store) AppendRevenue(_ context.Context, rec song.RevenueRecord) (song.RevenueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()

	s.revenue = append(s.revenue, rec)
	return rec, nil
}

func (s *Store) ListRevenue(_ context.Context, creator string) ([]song.RevenueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []song.RevenueRecord
	for _, rec := range s.revenue {
		if creator == "" || rec.Creator == creator {
			out = append(out, rec)
		}
	}
	return out, nil
}

// UserStore ---------------------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, apperr.NotFound("user", id)
	}
	return u, nil
}

// SagaStore ---------------------------------------------------------------

func (s *Store) GetCursor(_ context.Context, trackIDHex string) (saga.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cursors[strings.ToLower(trackIDHex)]
	if !ok {
		return saga.Cursor{}, apperr.NotFound("saga cursor", trackIDHex)
	}
	return c, nil
}

func (s *Store) SaveCursor(_ context.Context, c saga.Cursor) (saga.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(c.TrackIDHex)
	now := time.Now().UTC()
	if existing, ok := s.cursors[key]; ok {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	s.cursors[key] = c
	return c, nil
}

func (s *Store) GetCheckpoint(_ context.Context, id string) (saga.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[id]
	if !ok {
		return saga.Checkpoint{}, apperr.NotFound("checkpoint", id)
	}
	return cp, nil
}

func (s *Store) SaveCheckpoint(_ context.Context, cp saga.Checkpoint) (saga.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp.UpdatedAt = time.Now().UTC()
	s.checkpoints[cp.ID] = cp
	return cp, nil
}
