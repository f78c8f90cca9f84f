package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/tunevault/service_layer/internal/apperr"
	"github.com/tunevault/service_layer/internal/domain/saga"
	"github.com/tunevault/service_layer/internal/domain/song"
	"github.com/tunevault/service_layer/internal/domain/user"
	"github.com/tunevault/service_layer/internal/domain/vault"
)

func TestVaultLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateVault(ctx, vault.Vault{
		TrackIDHex:     "0xABCDEF",
		CreatorAddress: "0xcreator",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("no id assigned")
	}
	if created.Version != 1 {
		t.Fatalf("version %d", created.Version)
	}

	byTrack, err := store.GetVaultByTrack(ctx, "0xabcdef")
	if err != nil {
		t.Fatalf("get by track: %v", err)
	}
	if byTrack.ID != created.ID {
		t.Fatal("track lookup is case sensitive")
	}

	created.IsStaked = true
	updated, err := store.UpdateVault(ctx, created)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("version %d after update", updated.Version)
	}

	if _, err := store.GetVault(ctx, "missing"); !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpsertSongResolvesByTrack(t *testing.T) {
	store := New()
	ctx := context.Background()

	first, err := store.UpsertSong(ctx, song.Song{
		TrackIDHex:     "0xtrack1",
		CreatorAddress: "0xCreator",
		Title:          "First Light",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Same creator and track with no id must update, not duplicate.
	second, err := store.UpsertSong(ctx, song.Song{
		TrackIDHex:     "0xTRACK1",
		CreatorAddress: "0xcreator",
		Title:          "First Light",
		Tokenized:      true,
	})
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate song created: %s vs %s", second.ID, first.ID)
	}
	if second.Version != 2 {
		t.Fatalf("version %d", second.Version)
	}

	all, err := store.ListSongs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("songs %d", len(all))
	}
}

func TestReserveTokensRefusesOversell(t *testing.T) {
	store := New()
	ctx := context.Background()

	rec, err := store.UpsertSong(ctx, song.Song{
		TrackIDHex:      "0xtrack",
		CreatorAddress:  "0xcreator",
		TokensAvailable: 10,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, err := store.ReserveTokens(ctx, rec.ID, 11); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	after, err := store.GetSong(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.TokensAvailable != 10 {
		t.Fatalf("failed reserve changed inventory: %d", after.TokensAvailable)
	}
}

func TestReserveTokensConcurrent(t *testing.T) {
	store := New()
	ctx := context.Background()

	rec, err := store.UpsertSong(ctx, song.Song{
		TrackIDHex:      "0xtrack",
		CreatorAddress:  "0xcreator",
		TokensAvailable: 100,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Two buyers want 60 of 100 each; exactly one can win.
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ReserveTokens(ctx, rec.ID, 60)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		if err == nil {
			wins++
		} else if apperr.IsValidation(err) {
			losses++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("wins %d losses %d", wins, losses)
	}

	after, _ := store.GetSong(ctx, rec.ID)
	if after.TokensAvailable != 40 {
		t.Fatalf("inventory %d, want 40", after.TokensAvailable)
	}
}

func TestReleaseAndFinalize(t *testing.T) {
	store := New()
	ctx := context.Background()

	rec, _ := store.UpsertSong(ctx, song.Song{
		TrackIDHex:      "0xtrack",
		CreatorAddress:  "0xcreator",
		TokensAvailable: 50,
		Holders:         1,
	})

	if _, err := store.ReserveTokens(ctx, rec.ID, 10); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.ReleaseTokens(ctx, rec.ID, 10); err != nil {
		t.Fatalf("release: %v", err)
	}

	after, _ := store.GetSong(ctx, rec.ID)
	if after.TokensAvailable != 50 {
		t.Fatalf("inventory %d after release", after.TokensAvailable)
	}

	sold, err := store.FinalizeSale(ctx, rec.ID, 20.0)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if sold.Holders != 2 {
		t.Fatalf("holders %d", sold.Holders)
	}
	if sold.Earnings != 20.0 {
		t.Fatalf("earnings %f", sold.Earnings)
	}

	if err := store.ReplaceCounters(ctx, rec.ID, 30, 7); err != nil {
		t.Fatalf("replace: %v", err)
	}
	after, _ = store.GetSong(ctx, rec.ID)
	if after.TokensAvailable != 30 || after.Holders != 7 {
		t.Fatalf("counters %d/%d", after.TokensAvailable, after.Holders)
	}
}

func TestRewardUpsertIsKeyedByUserAndVault(t *testing.T) {
	store := New()
	ctx := context.Background()

	first, err := store.UpsertReward(ctx, vault.ClaimableReward{
		UserID: "u1", VaultID: "v1", Amount: "0", Protocol: "yield_protocol",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	second, err := store.UpsertReward(ctx, vault.ClaimableReward{
		UserID: "u1", VaultID: "v1", Amount: "3.50", Protocol: "yield_protocol",
	})
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("reward duplicated")
	}

	got, err := store.GetReward(ctx, "u1", "v1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != "3.50" {
		t.Fatalf("amount %q", got.Amount)
	}

	listed, _ := store.ListRewards(ctx, "u1")
	if len(listed) != 1 {
		t.Fatalf("rewards %d", len(listed))
	}
}

func TestRevenueIsAppendOnly(t *testing.T) {
	store := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.AppendRevenue(ctx, song.RevenueRecord{
			Creator:      "0xcreator",
			VaultRevenue: "10.00",
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	recs, err := store.ListRevenue(ctx, "0xcreator")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records %d", len(recs))
	}
}

func TestSagaCursorRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.GetCursor(ctx, "0xdeadbeef"); !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	saved, err := store.SaveCursor(ctx, saga.Cursor{
		TrackIDHex:   "0xDEADBEEF",
		State:        saga.StateCreatedVault,
		VaultID:      "0xvault",
		MintedTo:     "0xbuyer",
		MintedAmount: 250,
		TokenPrice:   2.0,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.GetCursor(ctx, "0xdeadbeef")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != saga.StateCreatedVault || got.VaultID != "0xvault" {
		t.Fatalf("cursor %+v", got)
	}
	if got.MintedTo != "0xbuyer" || got.MintedAmount != 250 || got.TokenPrice != 2.0 {
		t.Fatalf("pinned mint parameters lost: %+v", got)
	}
	if got.CreatedAt != saved.CreatedAt {
		t.Fatal("created timestamp lost")
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.SaveCheckpoint(ctx, saga.Checkpoint{ID: "reconcile:events", Cursor: "digest1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	cp, err := store.GetCheckpoint(ctx, "reconcile:events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cp.Cursor != "digest1" {
		t.Fatalf("cursor %q", cp.Cursor)
	}
}

func TestUserRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateUser(ctx, user.User{Email: "a@b.c", WalletAddress: "0xw"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.GetUser(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.WalletAddress != "0xw" {
		t.Fatalf("user %+v", got)
	}
}
