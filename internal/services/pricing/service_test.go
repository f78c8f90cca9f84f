package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/tunevault/service_layer/internal/apperr"
	"github.com/tunevault/service_layer/internal/domain/curve"
	"github.com/tunevault/service_layer/internal/domain/vault"
	"github.com/tunevault/service_layer/internal/ledger"
	"github.com/tunevault/service_layer/internal/mirror/memory"
)

func vaultFixture(trackIDHex string) vault.Vault {
	return vault.Vault{TrackIDHex: trackIDHex, CreatorAddress: "0xcreator"}
}

type fakeExecutor struct {
	calls   []*ledger.MoveCall
	results []*ledger.TxResult
	errs    []error
}

func (f *fakeExecutor) Execute(_ context.Context, call *ledger.MoveCall) (*ledger.TxResult, error) {
	i := len(f.calls)
	f.calls = append(f.calls, call)
	var res *ledger.TxResult
	var err error
	if i < len(f.results) {
		res = f.results[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return res, err
}

type fakeInspector struct {
	calls   int
	payload []byte
	err     error
}

func (f *fakeInspector) Inspect(context.Context, *ledger.MoveCall) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func fastRetryService(s *Service) *Service {
	s.retry = ledger.RetryConfig{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
	return s
}

// quotePayload encodes integer price units as the little-endian byte array a
// dev-inspect result carries.
func quotePayload(t *testing.T, units uint64) []byte {
	t.Helper()
	bytes := make([]int, 8)
	for i := range bytes {
		bytes[i] = int((units >> (8 * i)) & 0xff)
	}
	raw, err := json.Marshal(map[string]interface{}{
		"results": []map[string]interface{}{
			{"returnValues": [][]interface{}{{bytes, "u64"}}},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestInitCurveMirrorsCreatedObject(t *testing.T) {
	store := memory.New()
	exec := &fakeExecutor{results: []*ledger.TxResult{
		{Digest: "d1", Status: "success", CreatedObjects: []string{"0xcurve1"}},
	}}

	svc := New(ledger.Contracts{PackageID: "0xpkg"}, exec, &fakeInspector{}, store, store, nil, nil)

	mirrored, result, err := svc.InitCurve(context.Background(), "0xvault1", 0.1, 2.0)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if result.Digest != "d1" {
		t.Fatalf("digest %q", result.Digest)
	}
	if mirrored.ID != "0xcurve1" {
		t.Fatalf("curve id %q", mirrored.ID)
	}

	if len(exec.calls) != 1 {
		t.Fatalf("executor calls %d", len(exec.calls))
	}
	if got := exec.calls[0].Target(); got != "curve::initialize" {
		t.Fatalf("call target %q", got)
	}

	stored, err := store.GetCurveByVault(context.Background(), "0xvault1")
	if err != nil {
		t.Fatalf("mirror lookup: %v", err)
	}
	if stored.BasePrice != 2.0 || stored.Slope != 0.1 {
		t.Fatalf("mirrored params %+v", stored)
	}
}

func TestInitCurveNeverRetriesFailure(t *testing.T) {
	store := memory.New()
	exec := &fakeExecutor{errs: []error{apperr.LedgerTransient("curve::initialize", fmt.Errorf("timeout"))}}

	svc := fastRetryService(New(ledger.Contracts{}, exec, &fakeInspector{}, store, store, nil, nil))

	_, _, err := svc.InitCurve(context.Background(), "0xvault1", 0.1, 2.0)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(exec.calls) != 1 {
		t.Fatalf("transient failure re-submitted: %d calls", len(exec.calls))
	}
}

func TestQuotePriceAtZeroIsBasePrice(t *testing.T) {
	store := memory.New()
	insp := &fakeInspector{payload: quotePayload(t, 200)} // 2.00 in units

	svc := New(ledger.Contracts{}, &fakeExecutor{}, insp, store, store, nil, nil)

	price, err := svc.QuotePrice(context.Background(), "0xcurve1", 0)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if price != 2.0 {
		t.Fatalf("price %f", price)
	}
}

func TestQuotePriceFallsBackToMirror(t *testing.T) {
	store := memory.New()
	if _, err := store.CreateCurve(context.Background(), curve.Curve{
		ID: "0xcurve1", VaultID: "0xvault1", Slope: 0.1, BasePrice: 2.0, CurveType: curve.TypeLinear,
	}); err != nil {
		t.Fatalf("seed curve: %v", err)
	}
	insp := &fakeInspector{err: apperr.Ledger("curve::get_curve_price", fmt.Errorf("node down"))}

	svc := fastRetryService(New(ledger.Contracts{}, &fakeExecutor{}, insp, store, store, nil, nil))

	price, err := svc.QuotePrice(context.Background(), "0xcurve1", 5)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if price != 2.5 {
		t.Fatalf("derived price %f", price)
	}
}

func TestQuotePriceFailsWhenUnmirrored(t *testing.T) {
	store := memory.New()
	insp := &fakeInspector{err: apperr.Ledger("curve::get_curve_price", fmt.Errorf("node down"))}

	svc := fastRetryService(New(ledger.Contracts{}, &fakeExecutor{}, insp, store, store, nil, nil))

	if _, err := svc.QuotePrice(context.Background(), "0xunknown", 5); err == nil {
		t.Fatal("expected error with no mirror fallback")
	}
}

func TestQuotePriceValidation(t *testing.T) {
	svc := New(ledger.Contracts{}, &fakeExecutor{}, &fakeInspector{}, memory.New(), memory.New(), nil, nil)

	if _, err := svc.QuotePrice(context.Background(), "", 1); !apperr.IsValidation(err) {
		t.Fatalf("empty curve id: %v", err)
	}
	if _, err := svc.QuotePrice(context.Background(), "0xcurve", -1); !apperr.IsValidation(err) {
		t.Fatalf("negative amount: %v", err)
	}
}

type mapCache struct {
	values map[string]float64
	sets   int
}

func (c *mapCache) Get(_ context.Context, curveID string, quantity int64) (float64, bool) {
	v, ok := c.values[fmt.Sprintf("%s:%d", curveID, quantity)]
	return v, ok
}

func (c *mapCache) Set(_ context.Context, curveID string, quantity int64, price float64) {
	c.sets++
	c.values[fmt.Sprintf("%s:%d", curveID, quantity)] = price
}

func TestQuotePriceUsesCache(t *testing.T) {
	store := memory.New()
	insp := &fakeInspector{payload: quotePayload(t, 300)}
	cache := &mapCache{values: map[string]float64{}}

	svc := New(ledger.Contracts{}, &fakeExecutor{}, insp, store, store, cache, nil)

	first, err := svc.QuotePrice(context.Background(), "0xcurve1", 2)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	second, err := svc.QuotePrice(context.Background(), "0xcurve1", 2)
	if err != nil {
		t.Fatalf("cached quote: %v", err)
	}
	if first != second {
		t.Fatalf("cache changed price: %f vs %f", first, second)
	}
	if insp.calls != 1 {
		t.Fatalf("inspector calls %d, want 1", insp.calls)
	}
	if cache.sets != 1 {
		t.Fatalf("cache sets %d", cache.sets)
	}
}

func TestUpdateParamsValidatesInput(t *testing.T) {
	store := memory.New()
	exec := &fakeExecutor{}
	svc := New(ledger.Contracts{}, exec, &fakeInspector{}, store, store, nil, nil)

	if _, err := svc.UpdateParams(context.Background(), "", "0xabc", 1, 1, curve.TypeLinear); !apperr.IsValidation(err) {
		t.Fatalf("missing governance id: %v", err)
	}
	if _, err := svc.UpdateParams(context.Background(), "0xgov", "0xabc", 1, 1, "hyperbolic"); !apperr.IsValidation(err) {
		t.Fatalf("bad curve type: %v", err)
	}
	if _, err := svc.UpdateParams(context.Background(), "0xgov", "0xZZ", 1, 1, curve.TypeLinear); !apperr.IsValidation(err) {
		t.Fatalf("bad hex: %v", err)
	}
	if len(exec.calls) != 0 {
		t.Fatalf("invalid input reached the ledger: %d calls", len(exec.calls))
	}
}

func TestUpdateParamsMirrorsChange(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	v, _ := store.CreateVault(ctx, vaultFixture("0xabcd"))
	if _, err := store.CreateCurve(ctx, curve.Curve{
		ID: "0xcurve1", VaultID: v.ID, Slope: 0.1, BasePrice: 2.0, CurveType: curve.TypeLinear,
	}); err != nil {
		t.Fatalf("seed curve: %v", err)
	}

	exec := &fakeExecutor{results: []*ledger.TxResult{{Digest: "d2", Status: "success"}}}
	svc := New(ledger.Contracts{}, exec, &fakeInspector{}, store, store, nil, nil)

	result, err := svc.UpdateParams(ctx, "0xgov", "0xabcd", 3.0, 0.2, curve.TypeExponential)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if result.Digest != "d2" {
		t.Fatalf("digest %q", result.Digest)
	}

	updated, err := store.GetCurve(ctx, "0xcurve1")
	if err != nil {
		t.Fatalf("get curve: %v", err)
	}
	if updated.BasePrice != 3.0 || updated.Slope != 0.2 || updated.CurveType != curve.TypeExponential {
		t.Fatalf("mirror not updated: %+v", updated)
	}
}

func TestParseQuoteRejectsEmptyResult(t *testing.T) {
	if _, err := parseQuote([]byte(`{"results":[]}`)); err == nil {
		t.Fatal("expected error")
	}
	if _, err := parseQuote([]byte(`{"error":"abort code 7"}`)); err == nil {
		t.Fatal("expected error from aborted simulation")
	}
}
