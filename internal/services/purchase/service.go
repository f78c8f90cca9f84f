// Package purchase executes token purchases: quote, ledger transfer and
// mirror counter updates. Inventory is reserved through an atomic
// conditional decrement before the transfer, so two concurrent buyers can
// never drive the available counter negative.
package purchase

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tunevault/service_layer/internal/apperr"
	"github.com/tunevault/service_layer/internal/domain/song"
	"github.com/tunevault/service_layer/internal/ledger"
	"github.com/tunevault/service_layer/internal/metrics"
	"github.com/tunevault/service_layer/internal/mirror"
	"github.com/tunevault/service_layer/pkg/logger"
)

// Executor submits signed mutating calls through the ordered dispatch queue.
type Executor interface {
	Execute(ctx context.Context, call *ledger.MoveCall) (*ledger.TxResult, error)
}

// Quoter returns the current curve price for a quantity.
type Quoter interface {
	QuotePrice(ctx context.Context, curveID string, quantity int64) (float64, error)
}

// Request carries one purchase.
type Request struct {
	SongID         string
	Quantity       int64
	BuyerAddress   string
	CreatorAddress string
}

// Receipt reports a completed purchase.
type Receipt struct {
	TransactionID string
	TokenPrice    float64
	Total         float64
	Song          song.Song
}

// Service implements the purchase engine.
type Service struct {
	contracts ledger.Contracts
	executor  Executor
	quoter    Quoter
	songs     mirror.SongStore
	revenue   mirror.RevenueStore
	log       *logger.Logger
}

// New constructs a purchase service.
func New(contracts ledger.Contracts, executor Executor, quoter Quoter,
	songs mirror.SongStore, revenue mirror.RevenueStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("purchase")
	}
	return &Service{
		contracts: contracts,
		executor:  executor,
		quoter:    quoter,
		songs:     songs,
		revenue:   revenue,
		log:       log,
	}
}

// Buy quotes, transfers and records a token purchase. The availability
// check runs against the mirror, which may lag behind the ledger's actual
// token distribution; the reconciler closes that gap over time.
func (s *Service) Buy(ctx context.Context, req Request) (Receipt, error) {
	if req.Quantity <= 0 {
		metrics.ObservePurchase("invalid")
		return Receipt{}, apperr.Validation("quantity must be positive")
	}
	if req.BuyerAddress == "" {
		metrics.ObservePurchase("invalid")
		return Receipt{}, apperr.Validation("buyerAddress is required")
	}

	rec, err := s.songs.GetSong(ctx, req.SongID)
	if err != nil {
		metrics.ObservePurchase("not_found")
		return Receipt{}, err
	}
	if !rec.Tokenized {
		metrics.ObservePurchase("not_found")
		return Receipt{}, apperr.NotFound("tokenized song", req.SongID)
	}

	price := s.quote(ctx, rec, req.Quantity)

	// Reserve before transferring: the conditional decrement is the
	// serialization point that keeps concurrent buyers from overselling.
	rec, err = s.songs.ReserveTokens(ctx, req.SongID, req.Quantity)
	if err != nil {
		if apperr.IsValidation(err) {
			metrics.ObserveOversellRejection()
			metrics.ObservePurchase("oversold")
		}
		return Receipt{}, err
	}

	trackID, err := hex.DecodeString(strings.TrimPrefix(rec.TrackIDHex, "0x"))
	if err != nil {
		s.release(ctx, req)
		return Receipt{}, apperr.Validation("song %s has invalid track id: %v", req.SongID, err)
	}

	call := s.contracts.TransferTokens(req.BuyerAddress, req.Quantity, rec.CreatorAddress, trackID)
	result, err := s.executor.Execute(ctx, call)
	if err != nil {
		s.release(ctx, req)
		metrics.ObservePurchase("ledger_failure")
		return Receipt{}, err
	}
	if !result.Succeeded() {
		s.release(ctx, req)
		metrics.ObservePurchase("ledger_failure")
		return Receipt{}, apperr.Ledger(call.Target(), fmt.Errorf("transaction status %q", result.Status))
	}

	total := float64(req.Quantity) * price
	rec, err = s.songs.FinalizeSale(ctx, req.SongID, total)
	if err != nil {
		// The transfer is committed; the mirror will catch up through
		// reconciliation.
		s.log.WithError(err).Warnf("sale finalize failed for song %s", req.SongID)
	}

	if _, err := s.revenue.AppendRevenue(ctx, song.RevenueRecord{
		Creator:      rec.CreatorAddress,
		Title:        rec.Title,
		VaultRevenue: song.FormatAmount(total),
		YieldEarned:  song.FormatAmount(0),
		DAOSupport:   song.FormatAmount(0),
		Protocol:     "yield_protocol",
		Withdrawable: song.FormatAmount(total),
	}); err != nil {
		s.log.WithError(err).Warnf("revenue append failed for song %s", req.SongID)
	}

	metrics.ObservePurchase("success")
	s.log.WithField("digest", result.Digest).Infof("sold %d tokens of song %s at %.2f", req.Quantity, req.SongID, price)

	return Receipt{
		TransactionID: result.Digest,
		TokenPrice:    price,
		Total:         total,
		Song:          rec,
	}, nil
}

// quote returns the live curve price, falling back to the mirrored token
// price when the live quote is unavailable.
func (s *Service) quote(ctx context.Context, rec song.Song, quantity int64) float64 {
	if rec.CurveID != "" {
		price, err := s.quoter.QuotePrice(ctx, rec.CurveID, quantity)
		if err == nil {
			return price
		}
		s.log.WithError(err).Warnf("live quote failed for curve %s, using mirrored price", rec.CurveID)
	}
	return rec.TokenPrice
}

func (s *Service) release(ctx context.Context, req Request) {
	if err := s.songs.ReleaseTokens(ctx, req.SongID, req.Quantity); err != nil {
		s.log.WithError(err).Warnf("release of %d tokens for song %s failed", req.Quantity, req.SongID)
	}
}
