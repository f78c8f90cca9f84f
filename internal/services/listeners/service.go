// Package listeners serves listener-facing reads: profiles, data exports and
// reward summaries.
package listeners

import (
	"context"

	"github.com/tunevault/service_layer/internal/apperr"
	"github.com/tunevault/service_layer/internal/domain/user"
	"github.com/tunevault/service_layer/internal/domain/vault"
	"github.com/tunevault/service_layer/internal/mirror"
	"github.com/tunevault/service_layer/pkg/logger"
)

// Service implements listener reads over the mirror stores.
type Service struct {
	users   mirror.UserStore
	rewards mirror.RewardStore
	revenue mirror.RevenueStore
	log     *logger.Logger
}

// New constructs a listeners service.
func New(users mirror.UserStore, rewards mirror.RewardStore, revenue mirror.RevenueStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("listeners")
	}
	return &Service{users: users, rewards: rewards, revenue: revenue, log: log}
}

// Profile returns the sanitized public view of a user.
func (s *Service) Profile(ctx context.Context, userID string) (user.Export, error) {
	if userID == "" {
		return user.Export{}, apperr.Validation("userId is required")
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return user.Export{}, err
	}
	return user.ExportOf(u), nil
}

// ExportData bundles everything stored about a user: the sanitized account
// view plus claimable rewards. Credentials and KYC material are structurally
// absent from the export type.
type ExportData struct {
	User    user.Export             `json:"user"`
	Rewards []vault.ClaimableReward `json:"rewards"`
}

// Export assembles a user's data export.
func (s *Service) Export(ctx context.Context, userID string) (ExportData, error) {
	if userID == "" {
		return ExportData{}, apperr.Validation("userId is required")
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return ExportData{}, err
	}
	rewards, err := s.rewards.ListRewards(ctx, userID)
	if err != nil {
		s.log.WithError(err).Warnf("reward listing failed during export for user %s", userID)
		rewards = nil
	}
	return ExportData{User: user.ExportOf(u), Rewards: rewards}, nil
}
