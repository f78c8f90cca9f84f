// Package staking manages vault staking in the yield protocol and the
// claimable reward mirror rows.
package staking

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/tunevault/service_layer/internal/apperr"
	"github.com/tunevault/service_layer/internal/domain/vault"
	"github.com/tunevault/service_layer/internal/ledger"
	"github.com/tunevault/service_layer/internal/mirror"
	"github.com/tunevault/service_layer/pkg/logger"
)

// placeholderStake is recorded until the ledger reports the real figure.
const placeholderStake = "1"

// Executor submits signed mutating calls through the ordered dispatch queue.
type Executor interface {
	Execute(ctx context.Context, call *ledger.MoveCall) (*ledger.TxResult, error)
}

// Inspector runs read-only simulation calls.
type Inspector interface {
	Inspect(ctx context.Context, call *ledger.MoveCall) ([]byte, error)
}

// Service implements the yield staking manager.
type Service struct {
	contracts ledger.Contracts
	executor  Executor
	inspector Inspector
	vaults    mirror.VaultStore
	rewards   mirror.RewardStore
	users     mirror.UserStore
	retry     ledger.RetryConfig
	log       *logger.Logger
}

// New constructs a staking service.
func New(contracts ledger.Contracts, executor Executor, inspector Inspector,
	vaults mirror.VaultStore, rewards mirror.RewardStore, users mirror.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("staking")
	}
	return &Service{
		contracts: contracts,
		executor:  executor,
		inspector: inspector,
		vaults:    vaults,
		rewards:   rewards,
		users:     users,
		retry:     ledger.DefaultRetryConfig(),
		log:       log,
	}
}

// AutoStake stakes a vault into the yield protocol right after creation and
// reflects the staked state in the mirror.
func (s *Service) AutoStake(ctx context.Context, vaultID string) (*ledger.TxResult, error) {
	if vaultID == "" {
		return nil, apperr.Validation("vaultId is required")
	}

	call := s.contracts.Stake(vaultID)
	result, err := s.executor.Execute(ctx, call)
	if err != nil {
		return nil, err
	}
	if !result.Succeeded() {
		return result, apperr.Ledger(call.Target(), fmt.Errorf("transaction status %q", result.Status))
	}

	if v, err := s.vaults.GetVault(ctx, vaultID); err == nil {
		v.IsStaked = true
		v.Protocol = "yield_protocol"
		v.StakeAmount = placeholderStake
		if _, err := s.vaults.UpdateVault(ctx, v); err != nil {
			s.log.WithError(err).Warnf("stake mirror update failed for vault %s", vaultID)
		}
	} else {
		s.log.WithError(err).Warnf("staked vault %s has no mirror record", vaultID)
	}

	s.log.WithField("digest", result.Digest).Infof("vault %s staked", vaultID)
	return result, nil
}

// Stake stakes a vault on behalf of a user. An already-staked vault is
// rejected before any ledger call is issued.
func (s *Service) Stake(ctx context.Context, userID, vaultID, walletAddress string) (*ledger.TxResult, error) {
	v, err := s.authorize(ctx, userID, vaultID, walletAddress)
	if err != nil {
		return nil, err
	}
	if v.IsStaked {
		return nil, apperr.Validation("vault %s is already staked", vaultID)
	}

	call := s.contracts.Stake(vaultID)
	result, err := s.executor.Execute(ctx, call)
	if err != nil {
		return nil, err
	}
	if !result.Succeeded() {
		return result, apperr.Ledger(call.Target(), fmt.Errorf("transaction status %q", result.Status))
	}

	v.IsStaked = true
	v.Protocol = "yield_protocol"
	v.StakeAmount = placeholderStake
	if _, err := s.vaults.UpdateVault(ctx, v); err != nil {
		s.log.WithError(err).Warnf("stake mirror update failed for vault %s", vaultID)
	}

	if _, err := s.rewards.UpsertReward(ctx, vault.ClaimableReward{
		UserID:   userID,
		VaultID:  vaultID,
		Amount:   "0",
		Protocol: "yield_protocol",
	}); err != nil {
		s.log.WithError(err).Warnf("claimable reward write failed for vault %s", vaultID)
	}

	return result, nil
}

// Unstake withdraws a vault from the yield protocol. A vault that is not
// staked is rejected before any ledger call is issued. Yield stats are read
// best-effort: missing data defaults every figure to "0".
func (s *Service) Unstake(ctx context.Context, userID, vaultID, walletAddress string) (*ledger.TxResult, error) {
	v, err := s.authorize(ctx, userID, vaultID, walletAddress)
	if err != nil {
		return nil, err
	}
	if !v.IsStaked {
		return nil, apperr.Validation("vault %s is not staked", vaultID)
	}

	call := s.contracts.Unstake(vaultID)
	result, err := s.executor.Execute(ctx, call)
	if err != nil {
		return nil, err
	}
	if !result.Succeeded() {
		return result, apperr.Ledger(call.Target(), fmt.Errorf("transaction status %q", result.Status))
	}

	stats := s.YieldStats(ctx, vaultID)

	v.IsStaked = false
	v.StakeAmount = "0"
	v.YieldEarned = stats.YieldEarned
	if _, err := s.vaults.UpdateVault(ctx, v); err != nil {
		s.log.WithError(err).Warnf("unstake mirror update failed for vault %s", vaultID)
	}

	if _, err := s.rewards.UpsertReward(ctx, vault.ClaimableReward{
		UserID:   userID,
		VaultID:  vaultID,
		Amount:   stats.YieldEarned,
		Protocol: "yield_protocol",
	}); err != nil {
		s.log.WithError(err).Warnf("claimable reward update failed for vault %s", vaultID)
	}

	return result, nil
}

// Rewards lists a user's claimable rewards.
func (s *Service) Rewards(ctx context.Context, userID string) ([]vault.ClaimableReward, error) {
	if userID == "" {
		return nil, apperr.Validation("userId is required")
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.rewards.ListRewards(ctx, userID)
}

// authorize resolves the user and vault and checks wallet ownership.
func (s *Service) authorize(ctx context.Context, userID, vaultID, walletAddress string) (vault.Vault, error) {
	if userID == "" || vaultID == "" || walletAddress == "" {
		return vault.Vault{}, apperr.Validation("userId, vaultId and walletAddress are required")
	}

	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return vault.Vault{}, err
	}
	if u.WalletAddress != walletAddress {
		return vault.Vault{}, apperr.Validation("wallet address does not match user %s", userID)
	}

	return s.vaults.GetVault(ctx, vaultID)
}

// YieldStats reads accumulated yield read-only. Absent or unreadable data
// yields zeroed stats rather than an error.
func (s *Service) YieldStats(ctx context.Context, vaultID string) vault.YieldStats {
	stats := vault.ZeroYieldStats(vaultID)

	err := s.retry.Do(ctx, func(ctx context.Context) error {
		raw, err := s.inspector.Inspect(ctx, s.contracts.GetYieldStats(vaultID))
		if err != nil {
			return err
		}
		doc := gjson.ParseBytes(raw)
		if v := doc.Get("results.0.principal"); v.Exists() {
			stats.Principal = v.String()
		}
		if v := doc.Get("results.0.yieldEarned"); v.Exists() {
			stats.YieldEarned = v.String()
		}
		if v := doc.Get("results.0.apr"); v.Exists() {
			stats.APR = v.String()
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).Warnf("yield stats unavailable for vault %s, defaulting to zero", vaultID)
	}
	return stats
}
