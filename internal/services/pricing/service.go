// Package pricing manages bonding curves: initialization, live quotes via
// the ledger's read-only simulation and governance parameter updates.
package pricing

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tunevault/service_layer/internal/apperr"
	"github.com/tunevault/service_layer/internal/domain/curve"
	"github.com/tunevault/service_layer/internal/ledger"
	"github.com/tunevault/service_layer/internal/metrics"
	"github.com/tunevault/service_layer/internal/mirror"
	"github.com/tunevault/service_layer/pkg/logger"
)

// priceScale converts between float prices and the integer units the curve
// module stores on the ledger.
const priceScale = 100

// Executor submits signed mutating calls through the ordered dispatch queue.
type Executor interface {
	Execute(ctx context.Context, call *ledger.MoveCall) (*ledger.TxResult, error)
}

// Inspector runs read-only simulation calls.
type Inspector interface {
	Inspect(ctx context.Context, call *ledger.MoveCall) ([]byte, error)
}

// QuoteCache caches price quotes for a short TTL. A quote is only a
// snapshot either way, so a brief cache does not change semantics.
type QuoteCache interface {
	Get(ctx context.Context, curveID string, quantity int64) (float64, bool)
	Set(ctx context.Context, curveID string, quantity int64, price float64)
}

// Service implements bonding curve pricing.
type Service struct {
	contracts ledger.Contracts
	executor  Executor
	inspector Inspector
	curves    mirror.CurveStore
	vaults    mirror.VaultStore
	cache     QuoteCache
	retry     ledger.RetryConfig
	log       *logger.Logger
}

// New constructs a pricing service. cache may be nil.
func New(contracts ledger.Contracts, executor Executor, inspector Inspector,
	curves mirror.CurveStore, vaults mirror.VaultStore, cache QuoteCache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("pricing")
	}
	return &Service{
		contracts: contracts,
		executor:  executor,
		inspector: inspector,
		curves:    curves,
		vaults:    vaults,
		cache:     cache,
		retry:     ledger.DefaultRetryConfig(),
		log:       log,
	}
}

// InitCurve creates the bonding curve for a vault with one ledger call and
// mirrors the result. The call must be issued exactly once per vault:
// submitting it twice creates two distinct curve objects, so it is never
// retried here after an ambiguous failure.
func (s *Service) InitCurve(ctx context.Context, vaultID string, slope, basePrice float64) (curve.Curve, *ledger.TxResult, error) {
	if vaultID == "" {
		return curve.Curve{}, nil, apperr.Validation("vaultId is required")
	}
	if basePrice < 0 || slope < 0 {
		return curve.Curve{}, nil, apperr.Validation("slope and basePrice must be non-negative")
	}

	call := s.contracts.InitializeCurve(toUnits(slope), toUnits(basePrice), vaultID)
	result, err := s.executor.Execute(ctx, call)
	if err != nil {
		return curve.Curve{}, nil, err
	}
	if !result.Succeeded() {
		return curve.Curve{}, result, apperr.Ledger(call.Target(), fmt.Errorf("transaction status %q", result.Status))
	}
	if len(result.CreatedObjects) == 0 {
		return curve.Curve{}, result, apperr.Ledger(call.Target(), fmt.Errorf("no curve object in effects"))
	}

	mirrored, err := s.curves.CreateCurve(ctx, curve.Curve{
		ID:        result.CreatedObjects[0],
		VaultID:   vaultID,
		Slope:     slope,
		BasePrice: basePrice,
		CurveType: curve.TypeLinear,
	})
	if err != nil {
		// The curve exists on the ledger regardless; the reconciler will
		// repopulate the mirror.
		s.log.WithError(err).Warnf("curve %s created on ledger but mirror write failed", result.CreatedObjects[0])
		return curve.Curve{ID: result.CreatedObjects[0], VaultID: vaultID, Slope: slope, BasePrice: basePrice}, result, nil
	}

	s.log.WithField("curve_id", mirrored.ID).Infof("curve initialized for vault %s", vaultID)
	return mirrored, result, nil
}

// QuotePrice asks the ledger to evaluate the curve at the requested quantity
// through a state-preserving simulation. The quote is a snapshot, not a
// reservation: it can race with concurrent purchases. When the simulation
// fails but the curve is mirrored, the price is derived locally.
func (s *Service) QuotePrice(ctx context.Context, curveID string, quantity int64) (float64, error) {
	if curveID == "" {
		return 0, apperr.Validation("curveId is required")
	}
	if quantity < 0 {
		return 0, apperr.Validation("amount must not be negative")
	}

	if s.cache != nil {
		if price, ok := s.cache.Get(ctx, curveID, quantity); ok {
			return price, nil
		}
	}

	var price float64
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		raw, err := s.inspector.Inspect(ctx, s.contracts.GetCurvePrice(curveID, quantity))
		if err != nil {
			return err
		}
		p, err := parseQuote(raw)
		if err != nil {
			return err
		}
		price = p
		return nil
	})
	if err != nil {
		derived, derr := s.derivePrice(ctx, curveID, quantity)
		if derr != nil {
			return 0, err
		}
		metrics.ObserveQuoteFallback()
		s.log.WithError(err).Warnf("live quote for curve %s unavailable, derived locally", curveID)
		price = derived
	}

	if s.cache != nil {
		s.cache.Set(ctx, curveID, quantity, price)
	}
	return price, nil
}

// UpdateParams submits a governance-gated curve parameter change. No local
// authorization happens here: the ledger module rejects unauthorized
// callers.
func (s *Service) UpdateParams(ctx context.Context, governanceID, trackIDHex string, basePrice, slope float64, curveType string) (*ledger.TxResult, error) {
	if governanceID == "" || trackIDHex == "" {
		return nil, apperr.Validation("governanceId and trackIdHex are required")
	}
	if curveType != curve.TypeLinear && curveType != curve.TypeExponential {
		return nil, apperr.Validation("unknown curve type %q", curveType)
	}
	trackID, err := hex.DecodeString(strings.TrimPrefix(trackIDHex, "0x"))
	if err != nil {
		return nil, apperr.Validation("trackIdHex is not valid hex: %v", err)
	}

	call := s.contracts.UpdateCurveParams(governanceID, trackID, toUnits(basePrice), toUnits(slope), curveType)
	result, err := s.executor.Execute(ctx, call)
	if err != nil {
		return nil, err
	}
	if !result.Succeeded() {
		return result, apperr.Ledger(call.Target(), fmt.Errorf("transaction status %q", result.Status))
	}

	s.mirrorParamUpdate(ctx, trackIDHex, basePrice, slope, curveType)
	return result, nil
}

// mirrorParamUpdate reflects a committed governance change into the cache.
// Failures here are logged only: the ledger already holds the new truth.
func (s *Service) mirrorParamUpdate(ctx context.Context, trackIDHex string, basePrice, slope float64, curveType string) {
	v, err := s.vaults.GetVaultByTrack(ctx, trackIDHex)
	if err != nil {
		s.log.WithError(err).Warnf("governance update mirrored lookup failed for track %s", trackIDHex)
		return
	}
	c, err := s.curves.GetCurveByVault(ctx, v.ID)
	if err != nil {
		s.log.WithError(err).Warnf("no mirrored curve for vault %s", v.ID)
		return
	}
	c.BasePrice = basePrice
	c.Slope = slope
	c.CurveType = curveType
	if _, err := s.curves.UpdateCurve(ctx, c); err != nil {
		s.log.WithError(err).Warnf("mirror update failed for curve %s", c.ID)
	}
}

func (s *Service) derivePrice(ctx context.Context, curveID string, quantity int64) (float64, error) {
	c, err := s.curves.GetCurve(ctx, curveID)
	if err != nil {
		return 0, err
	}
	return c.PriceAt(quantity), nil
}

// parseQuote extracts the evaluated price from a dev-inspect result. The
// curve module returns the price in integer units as a little-endian u64.
func parseQuote(raw []byte) (float64, error) {
	doc := gjson.ParseBytes(raw)
	if errMsg := doc.Get("error"); errMsg.Exists() && errMsg.String() != "" {
		return 0, apperr.Ledger("curve::get_curve_price", fmt.Errorf("%s", errMsg.String()))
	}

	values := doc.Get("results.0.returnValues.0.0")
	if !values.Exists() {
		return 0, apperr.Ledger("curve::get_curve_price", fmt.Errorf("no return value in simulation result"))
	}

	var units uint64
	for i, b := range values.Array() {
		if i >= 8 {
			break
		}
		units |= uint64(b.Uint()) << (8 * i)
	}
	return fromUnits(int64(units)), nil
}

func toUnits(price float64) int64 {
	return int64(math.Round(price * priceScale))
}

func fromUnits(units int64) float64 {
	return float64(units) / priceScale
}
