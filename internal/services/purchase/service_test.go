package purchase

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/tunevault/service_layer/internal/apperr"
	"github.com/tunevault/service_layer/internal/domain/song"
	"github.com/tunevault/service_layer/internal/ledger"
	"github.com/tunevault/service_layer/internal/mirror/memory"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls []*ledger.MoveCall
	fail  error
}

func (f *fakeExecutor) Execute(_ context.Context, call *ledger.MoveCall) (*ledger.TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.fail != nil {
		return nil, f.fail
	}
	return &ledger.TxResult{Digest: fmt.Sprintf("digest-%d", len(f.calls)), Status: "success"}, nil
}

type fakeQuoter struct {
	price float64
	err   error
}

func (f *fakeQuoter) QuotePrice(context.Context, string, int64) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.price, nil
}

func seedSong(t *testing.T, store *memory.Store) song.Song {
	t.Helper()
	rec, err := store.UpsertSong(context.Background(), song.Song{
		TrackIDHex:      "0xdeadbeef",
		CreatorAddress:  "0xcreator",
		Title:           "First Light",
		Tokenized:       true,
		TokenPrice:      1.5,
		TokensAvailable: 50,
		Holders:         1,
		CurveID:         "0xcurve1",
	})
	if err != nil {
		t.Fatalf("seed song: %v", err)
	}
	return rec
}

func TestBuyHappyPath(t *testing.T) {
	store := memory.New()
	rec := seedSong(t, store)
	exec := &fakeExecutor{}

	svc := New(ledger.Contracts{}, exec, &fakeQuoter{price: 2.0}, store, store, nil)

	receipt, err := svc.Buy(context.Background(), Request{
		SongID:       rec.ID,
		Quantity:     10,
		BuyerAddress: "0xbuyer",
	})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	if receipt.TokenPrice != 2.0 {
		t.Fatalf("price %f", receipt.TokenPrice)
	}
	if receipt.Total != 20.0 {
		t.Fatalf("total %f", receipt.Total)
	}
	if receipt.TransactionID == "" {
		t.Fatal("no transaction id")
	}

	after, _ := store.GetSong(context.Background(), rec.ID)
	if after.TokensAvailable != 40 {
		t.Fatalf("inventory %d", after.TokensAvailable)
	}
	if after.Holders != 2 {
		t.Fatalf("holders %d", after.Holders)
	}
	if after.Earnings != 20.0 {
		t.Fatalf("earnings %f", after.Earnings)
	}

	revs, _ := store.ListRevenue(context.Background(), "0xcreator")
	if len(revs) != 1 {
		t.Fatalf("revenue records %d", len(revs))
	}
	if revs[0].VaultRevenue != "20.00" || revs[0].Withdrawable != "20.00" {
		t.Fatalf("revenue %+v", revs[0])
	}

	if len(exec.calls) != 1 || exec.calls[0].Function != "transfer_tokens" {
		t.Fatalf("ledger calls %v", exec.calls)
	}
}

func TestBuyUsesMirroredPriceWhenQuoteFails(t *testing.T) {
	store := memory.New()
	rec := seedSong(t, store)
	quoter := &fakeQuoter{err: apperr.Ledger("curve::get_curve_price", fmt.Errorf("node down"))}

	svc := New(ledger.Contracts{}, &fakeExecutor{}, quoter, store, store, nil)

	receipt, err := svc.Buy(context.Background(), Request{SongID: rec.ID, Quantity: 4, BuyerAddress: "0xbuyer"})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if receipt.TokenPrice != 1.5 {
		t.Fatalf("fallback price %f", receipt.TokenPrice)
	}
	if receipt.Total != 6.0 {
		t.Fatalf("total %f", receipt.Total)
	}
}

func TestBuyRefusesOversell(t *testing.T) {
	store := memory.New()
	rec := seedSong(t, store)
	exec := &fakeExecutor{}

	svc := New(ledger.Contracts{}, exec, &fakeQuoter{price: 2.0}, store, store, nil)

	_, err := svc.Buy(context.Background(), Request{SongID: rec.ID, Quantity: 60, BuyerAddress: "0xbuyer"})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(exec.calls) != 0 {
		t.Fatal("oversold purchase reached the ledger")
	}

	after, _ := store.GetSong(context.Background(), rec.ID)
	if after.TokensAvailable != 50 {
		t.Fatalf("inventory %d after rejected buy", after.TokensAvailable)
	}
}

func TestBuyConcurrentBuyersCannotOversell(t *testing.T) {
	store := memory.New()
	rec := seedSong(t, store)
	// 50 available, two buyers want 30 each.
	svc := New(ledger.Contracts{}, &fakeExecutor{}, &fakeQuoter{price: 2.0}, store, store, nil)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Buy(context.Background(), Request{SongID: rec.ID, Quantity: 30, BuyerAddress: "0xbuyer"})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, rejections int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case apperr.IsValidation(err):
			rejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || rejections != 1 {
		t.Fatalf("wins %d rejections %d", wins, rejections)
	}

	after, _ := store.GetSong(context.Background(), rec.ID)
	if after.TokensAvailable != 20 {
		t.Fatalf("inventory %d", after.TokensAvailable)
	}
}

func TestBuyReleasesReservationOnLedgerFailure(t *testing.T) {
	store := memory.New()
	rec := seedSong(t, store)
	exec := &fakeExecutor{fail: apperr.LedgerTransient("content_token::transfer_tokens", fmt.Errorf("timeout"))}

	svc := New(ledger.Contracts{}, exec, &fakeQuoter{price: 2.0}, store, store, nil)

	if _, err := svc.Buy(context.Background(), Request{SongID: rec.ID, Quantity: 10, BuyerAddress: "0xbuyer"}); err == nil {
		t.Fatal("expected error")
	}

	after, _ := store.GetSong(context.Background(), rec.ID)
	if after.TokensAvailable != 50 {
		t.Fatalf("reservation leaked: inventory %d", after.TokensAvailable)
	}
	if after.Holders != 1 {
		t.Fatalf("holders %d after failed buy", after.Holders)
	}

	revs, _ := store.ListRevenue(context.Background(), "0xcreator")
	if len(revs) != 0 {
		t.Fatal("revenue recorded for failed purchase")
	}
}

func TestBuyValidation(t *testing.T) {
	store := memory.New()
	rec := seedSong(t, store)
	exec := &fakeExecutor{}
	svc := New(ledger.Contracts{}, exec, &fakeQuoter{price: 2.0}, store, store, nil)

	if _, err := svc.Buy(context.Background(), Request{SongID: rec.ID, Quantity: 0, BuyerAddress: "0xbuyer"}); !apperr.IsValidation(err) {
		t.Fatalf("zero quantity: %v", err)
	}
	if _, err := svc.Buy(context.Background(), Request{SongID: rec.ID, Quantity: 5}); !apperr.IsValidation(err) {
		t.Fatalf("missing buyer: %v", err)
	}
	if _, err := svc.Buy(context.Background(), Request{SongID: "missing", Quantity: 5, BuyerAddress: "0xbuyer"}); !apperr.IsNotFound(err) {
		t.Fatalf("unknown song: %v", err)
	}
	if len(exec.calls) != 0 {
		t.Fatalf("invalid buys reached the ledger: %d", len(exec.calls))
	}
}

func TestBuyRejectsUntokenizedSong(t *testing.T) {
	store := memory.New()
	rec, err := store.UpsertSong(context.Background(), song.Song{
		TrackIDHex:      "0xfeed",
		CreatorAddress:  "0xcreator",
		Tokenized:       false,
		TokensAvailable: 100,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := New(ledger.Contracts{}, &fakeExecutor{}, &fakeQuoter{price: 2.0}, store, store, nil)
	if _, err := svc.Buy(context.Background(), Request{SongID: rec.ID, Quantity: 1, BuyerAddress: "0xbuyer"}); !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
