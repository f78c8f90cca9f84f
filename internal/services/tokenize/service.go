// Package tokenize drives the tokenization saga: vault creation, curve
// initialization, token minting, auto-staking and the mirror update. The
// steps are independent remote calls with no cross-step atomicity; progress
// is persisted in a step cursor keyed by track id so a failed saga can be
// resumed instead of leaving silent orphaned state.
package tokenize

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tunevault/service_layer/internal/apperr"
	"github.com/tunevault/service_layer/internal/domain/curve"
	"github.com/tunevault/service_layer/internal/domain/saga"
	"github.com/tunevault/service_layer/internal/domain/song"
	"github.com/tunevault/service_layer/internal/domain/vault"
	"github.com/tunevault/service_layer/internal/ledger"
	"github.com/tunevault/service_layer/internal/metrics"
	"github.com/tunevault/service_layer/internal/mirror"
	"github.com/tunevault/service_layer/pkg/logger"
)

// Executor submits signed mutating calls through the ordered dispatch queue.
type Executor interface {
	Execute(ctx context.Context, call *ledger.MoveCall) (*ledger.TxResult, error)
}

// CurveInitializer creates the bonding curve for a vault.
type CurveInitializer interface {
	InitCurve(ctx context.Context, vaultID string, slope, basePrice float64) (curve.Curve, *ledger.TxResult, error)
}

// AutoStaker stakes a freshly created vault into the yield protocol.
type AutoStaker interface {
	AutoStake(ctx context.Context, vaultID string) (*ledger.TxResult, error)
}

// Request carries one tokenization request.
type Request struct {
	ToAddress      string
	Amount         int64
	CreatorAddress string
	TrackIDHex     string
	TokenPrice     float64
	Slope          float64
	BasePrice      float64
	Title          string
	Artist         string
}

// Result reports the transactions of a completed saga.
type Result struct {
	VaultID string
	CurveID string
	VaultTx string
	CurveTx string
	MintTx  string
	StakeTx string
	Staked  bool
}

// Service orchestrates the tokenization saga.
type Service struct {
	contracts ledger.Contracts
	executor  Executor
	curves    CurveInitializer
	staker    AutoStaker
	vaults    mirror.VaultStore
	songs     mirror.SongStore
	sagas     mirror.SagaStore
	log       *logger.Logger
}

// New constructs the orchestrator.
func New(contracts ledger.Contracts, executor Executor, curves CurveInitializer, staker AutoStaker,
	vaults mirror.VaultStore, songs mirror.SongStore, sagas mirror.SagaStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("tokenize")
	}
	return &Service{
		contracts: contracts,
		executor:  executor,
		curves:    curves,
		staker:    staker,
		vaults:    vaults,
		songs:     songs,
		sagas:     sagas,
		log:       log,
	}
}

// ErrCurveInitAmbiguous is returned when a previous run submitted curve
// initialization but its outcome is unknown. Curve init is not idempotent,
// so the saga refuses to re-submit it without operator resolution.
var ErrCurveInitAmbiguous = fmt.Errorf("curve initialization outcome unknown; resolve on ledger before retrying")

// Tokenize runs the saga for a track, resuming from the persisted cursor
// when a previous attempt failed partway. Completed steps are never
// re-issued. A caller disconnect between steps stops the saga; the cursor
// keeps the progress for the next attempt.
func (s *Service) Tokenize(ctx context.Context, req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}
	trackID, err := hex.DecodeString(strings.TrimPrefix(req.TrackIDHex, "0x"))
	if err != nil {
		return Result{}, apperr.Validation("trackIdHex is not valid hex: %v", err)
	}

	cursor, err := s.sagas.GetCursor(ctx, req.TrackIDHex)
	if apperr.IsNotFound(err) {
		cursor = saga.Cursor{TrackIDHex: req.TrackIDHex, State: saga.StatePending}
	} else if err != nil {
		return Result{}, err
	}

	if cursor.State == saga.StateMirrorUpdated {
		return Result{}, apperr.Validation("track %s is already tokenized", req.TrackIDHex)
	}

	// Once the mint has committed, the supply and price are fixed on ledger.
	// A resume carrying different parameters would have the mirror record
	// tokens that were never minted, so it is refused.
	if cursor.State.Reached(saga.StateTokensMinted) &&
		(req.ToAddress != cursor.MintedTo || req.Amount != cursor.MintedAmount || req.TokenPrice != cursor.TokenPrice) {
		return Result{}, apperr.Validation(
			"track %s already minted %d tokens to %s at price %v; resume with the original parameters",
			req.TrackIDHex, cursor.MintedAmount, cursor.MintedTo, cursor.TokenPrice)
	}

	if cursor, err = s.stepCreateVault(ctx, cursor, trackID, req); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if cursor, err = s.stepInitCurve(ctx, cursor, req); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if cursor, err = s.stepMint(ctx, cursor, trackID, req); err != nil {
		return Result{}, err
	}
	cursor = s.stepAutoStake(ctx, cursor)
	if cursor, err = s.stepUpdateMirror(ctx, cursor, req); err != nil {
		return Result{}, err
	}

	return Result{
		VaultID: cursor.VaultID,
		CurveID: cursor.CurveID,
		VaultTx: cursor.VaultTx,
		CurveTx: cursor.CurveTx,
		MintTx:  cursor.MintTx,
		StakeTx: cursor.StakeTx,
		Staked:  cursor.StakeTx != "",
	}, nil
}

func validate(req Request) error {
	switch {
	case req.ToAddress == "":
		return apperr.Validation("toAddress is required")
	case req.Amount <= 0:
		return apperr.Validation("amount must be positive")
	case req.CreatorAddress == "":
		return apperr.Validation("creatorAddress is required")
	case req.TrackIDHex == "":
		return apperr.Validation("trackIdHex is required")
	case req.TokenPrice < 0:
		return apperr.Validation("tokenPrice must not be negative")
	}
	return nil
}

func (s *Service) stepCreateVault(ctx context.Context, cursor saga.Cursor, trackID []byte, req Request) (saga.Cursor, error) {
	if cursor.State.Reached(saga.StateCreatedVault) {
		return cursor, nil
	}

	call := s.contracts.CreateVault(trackID, req.CreatorAddress)
	result, err := s.executor.Execute(ctx, call)
	if err != nil {
		metrics.ObserveSagaStep("create_vault", "failure")
		return s.fail(ctx, cursor, err)
	}
	if !result.Succeeded() {
		metrics.ObserveSagaStep("create_vault", "failure")
		return s.fail(ctx, cursor, apperr.Ledger(call.Target(), fmt.Errorf("transaction status %q", result.Status)))
	}
	if len(result.CreatedObjects) == 0 {
		metrics.ObserveSagaStep("create_vault", "failure")
		return s.fail(ctx, cursor, apperr.Ledger(call.Target(), fmt.Errorf("no vault object in effects")))
	}

	cursor.VaultID = result.CreatedObjects[0]
	cursor.VaultTx = result.Digest
	cursor.State = saga.StateCreatedVault

	if _, err := s.vaults.CreateVault(ctx, vault.Vault{
		ID:             cursor.VaultID,
		TrackIDHex:     req.TrackIDHex,
		CreatorAddress: req.CreatorAddress,
		StakeAmount:    "0",
		YieldEarned:    "0",
	}); err != nil {
		s.log.WithError(err).Warnf("vault %s mirror write failed", cursor.VaultID)
	}

	metrics.ObserveSagaStep("create_vault", "success")
	s.log.WithField("vault_id", cursor.VaultID).Infof("vault created for track %s", req.TrackIDHex)
	return s.save(ctx, cursor)
}

func (s *Service) stepInitCurve(ctx context.Context, cursor saga.Cursor, req Request) (saga.Cursor, error) {
	if cursor.State.Reached(saga.StateCurveInitialized) {
		return cursor, nil
	}

	// Curve init is not idempotent: if a previous run submitted it and died
	// before recording the outcome, blindly retrying could mint a second
	// curve object. Refuse and require the ledger state to be resolved.
	if cursor.CurveInitSent && cursor.CurveID == "" {
		return cursor, ErrCurveInitAmbiguous
	}

	cursor.CurveInitSent = true
	saved, err := s.save(ctx, cursor)
	if err != nil {
		return cursor, err
	}
	cursor = saved

	crv, result, err := s.curves.InitCurve(ctx, cursor.VaultID, req.Slope, req.BasePrice)
	if err != nil {
		metrics.ObserveSagaStep("init_curve", "failure")
		// A definitive rejection means nothing was created; clear the marker
		// so a retry may submit again. Ambiguous outcomes keep it set.
		if apperr.IsLedger(err) && !apperr.IsRetryable(err) {
			cursor.CurveInitSent = false
		}
		return s.fail(ctx, cursor, err)
	}

	cursor.CurveID = crv.ID
	if result != nil {
		cursor.CurveTx = result.Digest
	}
	cursor.State = saga.StateCurveInitialized

	metrics.ObserveSagaStep("init_curve", "success")
	return s.save(ctx, cursor)
}

func (s *Service) stepMint(ctx context.Context, cursor saga.Cursor, trackID []byte, req Request) (saga.Cursor, error) {
	if cursor.State.Reached(saga.StateTokensMinted) {
		return cursor, nil
	}

	call := s.contracts.MintContentTokens(req.ToAddress, req.Amount, req.CreatorAddress, trackID)
	result, err := s.executor.Execute(ctx, call)
	if err != nil {
		metrics.ObserveSagaStep("mint", "failure")
		return s.fail(ctx, cursor, err)
	}
	if !result.Succeeded() {
		metrics.ObserveSagaStep("mint", "failure")
		return s.fail(ctx, cursor, apperr.Ledger(call.Target(), fmt.Errorf("transaction status %q", result.Status)))
	}

	cursor.MintTx = result.Digest
	cursor.MintedTo = req.ToAddress
	cursor.MintedAmount = req.Amount
	cursor.TokenPrice = req.TokenPrice
	cursor.State = saga.StateTokensMinted

	metrics.ObserveSagaStep("mint", "success")
	s.log.Infof("minted %d tokens for track %s", req.Amount, req.TrackIDHex)
	return s.save(ctx, cursor)
}

// stepAutoStake is best-effort: staking failure is logged but does not fail
// the tokenization.
func (s *Service) stepAutoStake(ctx context.Context, cursor saga.Cursor) saga.Cursor {
	if cursor.State.Reached(saga.StateStakeRequested) {
		return cursor
	}

	result, err := s.staker.AutoStake(ctx, cursor.VaultID)
	if err != nil {
		metrics.ObserveSagaStep("auto_stake", "failure")
		s.log.WithError(err).Warnf("auto-stake of vault %s failed", cursor.VaultID)
	} else {
		metrics.ObserveSagaStep("auto_stake", "success")
		cursor.StakeTx = result.Digest
	}

	cursor.State = saga.StateStakeRequested
	saved, err := s.save(ctx, cursor)
	if err != nil {
		return cursor
	}
	return saved
}

func (s *Service) stepUpdateMirror(ctx context.Context, cursor saga.Cursor, req Request) (saga.Cursor, error) {
	if cursor.State.Reached(saga.StateMirrorUpdated) {
		return cursor, nil
	}

	// Supply and price come from the cursor, pinned when the mint committed.
	_, err := s.songs.UpsertSong(ctx, song.Song{
		TrackIDHex:      req.TrackIDHex,
		CreatorAddress:  req.CreatorAddress,
		Title:           req.Title,
		Artist:          req.Artist,
		Tokenized:       true,
		TokenPrice:      cursor.TokenPrice,
		TokensAvailable: cursor.MintedAmount,
		Holders:         1,
		CurveID:         cursor.CurveID,
	})
	if err != nil {
		metrics.ObserveSagaStep("update_mirror", "failure")
		return s.fail(ctx, cursor, err)
	}

	cursor.State = saga.StateMirrorUpdated
	cursor.LastError = ""
	metrics.ObserveSagaStep("update_mirror", "success")
	return s.save(ctx, cursor)
}

func (s *Service) save(ctx context.Context, cursor saga.Cursor) (saga.Cursor, error) {
	saved, err := s.sagas.SaveCursor(ctx, cursor)
	if err != nil {
		return cursor, fmt.Errorf("persist saga cursor: %w", err)
	}
	return saved, nil
}

func (s *Service) fail(ctx context.Context, cursor saga.Cursor, cause error) (saga.Cursor, error) {
	cursor.LastError = cause.Error()
	if _, err := s.sagas.SaveCursor(ctx, cursor); err != nil {
		s.log.WithError(err).Warn("failed to persist saga failure")
	}
	return cursor, cause
}
