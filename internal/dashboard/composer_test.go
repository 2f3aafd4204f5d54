package dashboard

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/escape23/crypto-dashboard/internal/models"
	"github.com/escape23/crypto-dashboard/internal/session"
	"github.com/escape23/crypto-dashboard/internal/storage"
	"github.com/escape23/crypto-dashboard/internal/watchlist"
)

type fakeMarket struct {
	assets       map[models.Currency][]models.Asset
	history      map[string][]models.PricePoint
	err          error
	marketCalls  int
	historyCalls int
}

func (f *fakeMarket) Markets(_ context.Context, currency models.Currency) ([]models.Asset, error) {
	f.marketCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.assets[currency], nil
}

func (f *fakeMarket) History(_ context.Context, assetID string, _ models.Currency, _ string) ([]models.PricePoint, error) {
	f.historyCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.history[assetID], nil
}

func defaultFake() *fakeMarket {
	return &fakeMarket{
		assets: map[models.Currency][]models.Asset{
			models.CurrencyUSD: {
				{ID: "bitcoin", Name: "Bitcoin", CurrentPrice: 50000},
				{ID: "ethereum", Name: "Ethereum", CurrentPrice: 2600},
			},
			models.CurrencyEUR: {
				{ID: "bitcoin", Name: "Bitcoin", CurrentPrice: 46000},
				{ID: "ethereum", Name: "Ethereum", CurrentPrice: 2400},
			},
		},
		history: map[string][]models.PricePoint{
			"bitcoin": {
				{Timestamp: 1700000000000, Price: 50000},
				{Timestamp: 1700003600000, Price: 50500},
			},
			"ethereum": {
				{Timestamp: 1700000000000, Price: 2600},
			},
		},
	}
}

func setupComposer(t *testing.T, fm *fakeMarket) (*Composer, *storage.KV) {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "composer.db")
	sqlDB, err := storage.Open(dbFile)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	kv := storage.NewKV(sqlDB)
	watch := watchlist.NewStore(kv)
	sess := session.New(kv, models.CurrencyUSD, "1h")
	return New(fm, watch, sess, nil), kv
}

func TestStartLoadsPersistedStateAndFetches(t *testing.T) {
	fm := defaultFake()
	c, kv := setupComposer(t, fm)
	ctx := context.Background()

	if err := kv.Put(ctx, storage.KeyUser, "satoshi"); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := kv.Put(ctx, storage.KeyWatchlist, `[{"id":"dogecoin","name":"Dogecoin","current_price":0.07,"price_change_percentage_24h":null,"addedAt":"2026-01-01T00:00:00Z"}]`); err != nil {
		t.Fatalf("seed watchlist: %v", err)
	}

	c.Start(ctx)

	view := c.Snapshot()
	if view.Session.DisplayName != "satoshi" {
		t.Fatalf("expected restored display name, got %q", view.Session.DisplayName)
	}
	if len(view.Watchlist) != 1 || view.Watchlist[0].ID != "dogecoin" {
		t.Fatalf("expected restored watchlist, got %+v", view.Watchlist)
	}
	if len(view.Assets) != 2 || view.Assets[0].ID != "bitcoin" {
		t.Fatalf("expected initial market fetch, got %+v", view.Assets)
	}
	if fm.marketCalls != 1 {
		t.Fatalf("expected exactly one market fetch at startup, got %d", fm.marketCalls)
	}

	// An id restored from the watchlist counts as previously seen.
	if _, err := c.ViewHistory(ctx, "dogecoin"); err != nil {
		t.Fatalf("history for watchlist-restored id should be allowed: %v", err)
	}
}

func TestWatchlistAddThenRemove(t *testing.T) {
	fm := defaultFake()
	c, _ := setupComposer(t, fm)
	ctx := context.Background()
	c.Start(ctx)

	if err := c.AddToWatchlist(ctx, "bitcoin"); err != nil {
		t.Fatalf("add: %v", err)
	}

	view := c.Snapshot()
	if len(view.Watchlist) != 1 || view.Watchlist[0].ID != "bitcoin" {
		t.Fatalf("expected exactly one bitcoin entry, got %+v", view.Watchlist)
	}

	// Second add of the same id must not duplicate.
	if err := c.AddToWatchlist(ctx, "bitcoin"); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if got := len(c.Snapshot().Watchlist); got != 1 {
		t.Fatalf("expected 1 entry after re-add, got %d", got)
	}

	c.RemoveFromWatchlist(ctx, "bitcoin")
	if got := len(c.Snapshot().Watchlist); got != 0 {
		t.Fatalf("expected empty watchlist after remove, got %d", got)
	}

	if err := c.AddToWatchlist(ctx, "nope"); !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestFetchFailureKeepsPreviousAssets(t *testing.T) {
	fm := defaultFake()
	c, _ := setupComposer(t, fm)
	ctx := context.Background()
	c.Start(ctx)

	before := c.Snapshot().Assets
	if len(before) == 0 {
		t.Fatalf("expected assets from startup fetch")
	}

	fm.err = errors.New("network down")
	if err := c.RefreshMarkets(ctx); err == nil {
		t.Fatalf("expected refresh error")
	}

	after := c.Snapshot().Assets
	if len(after) != len(before) || after[0].ID != before[0].ID {
		t.Fatalf("failed fetch must not touch displayed assets: %+v", after)
	}
}

func TestCurrencyChangeRefetchesButLeavesHistoryStale(t *testing.T) {
	fm := defaultFake()
	c, _ := setupComposer(t, fm)
	ctx := context.Background()
	c.Start(ctx)

	if _, err := c.ViewHistory(ctx, "bitcoin"); err != nil {
		t.Fatalf("view history: %v", err)
	}
	historyBefore := c.Snapshot().History

	eur := models.CurrencyEUR
	if err := c.UpdateSession(ctx, SessionUpdate{Currency: &eur}); err != nil {
		t.Fatalf("update session: %v", err)
	}

	view := c.Snapshot()
	if view.Session.Currency != models.CurrencyEUR {
		t.Fatalf("expected eur session, got %q", view.Session.Currency)
	}
	if view.Assets[0].CurrentPrice != 46000 {
		t.Fatalf("expected refetched eur prices, got %+v", view.Assets[0])
	}
	if fm.marketCalls != 2 {
		t.Fatalf("expected refetch on currency change, calls=%d", fm.marketCalls)
	}

	// The open series stays as fetched for the old currency.
	if fm.historyCalls != 1 {
		t.Fatalf("currency change must not refetch history, calls=%d", fm.historyCalls)
	}
	if len(view.History) != len(historyBefore) || view.HistoryAssetID != "bitcoin" {
		t.Fatalf("history should be left untouched: %+v", view)
	}
}

func TestUnchangedCurrencyDoesNotRefetch(t *testing.T) {
	fm := defaultFake()
	c, _ := setupComposer(t, fm)
	ctx := context.Background()
	c.Start(ctx)

	usd := models.CurrencyUSD
	if err := c.UpdateSession(ctx, SessionUpdate{Currency: &usd}); err != nil {
		t.Fatalf("update session: %v", err)
	}
	if fm.marketCalls != 1 {
		t.Fatalf("expected no refetch for unchanged currency, calls=%d", fm.marketCalls)
	}
}

func TestViewHistoryReplacesSeries(t *testing.T) {
	fm := defaultFake()
	c, _ := setupComposer(t, fm)
	ctx := context.Background()
	c.Start(ctx)

	if _, err := c.ViewHistory(ctx, "bitcoin"); err != nil {
		t.Fatalf("view bitcoin history: %v", err)
	}
	if _, err := c.ViewHistory(ctx, "ethereum"); err != nil {
		t.Fatalf("view ethereum history: %v", err)
	}

	view := c.Snapshot()
	if view.HistoryAssetID != "ethereum" || len(view.History) != 1 {
		t.Fatalf("expected ethereum series to replace bitcoin's: %+v", view)
	}

	if _, err := c.ViewHistory(ctx, "unknown"); !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestHistoryFetchFailureKeepsDisplayedSeries(t *testing.T) {
	fm := defaultFake()
	c, _ := setupComposer(t, fm)
	ctx := context.Background()
	c.Start(ctx)

	if _, err := c.ViewHistory(ctx, "bitcoin"); err != nil {
		t.Fatalf("view history: %v", err)
	}

	fm.err = errors.New("network down")
	if _, err := c.ViewHistory(ctx, "ethereum"); err == nil {
		t.Fatalf("expected history fetch error")
	}

	view := c.Snapshot()
	if view.HistoryAssetID != "bitcoin" || len(view.History) != 2 {
		t.Fatalf("failed fetch must not replace displayed series: %+v", view)
	}
}

func TestApplyPriceUpdatesUpsertsByID(t *testing.T) {
	fm := defaultFake()
	c, _ := setupComposer(t, fm)
	ctx := context.Background()
	c.Start(ctx)

	c.ApplyPriceUpdates(map[string]float64{
		"bitcoin": 51234.5,
		"unknown": 1, // never fetched, must be dropped
	})

	view := c.Snapshot()
	if len(view.Assets) != 2 {
		t.Fatalf("upsert must not insert unknown assets: %+v", view.Assets)
	}
	if view.Assets[0].CurrentPrice != 51234.5 {
		t.Fatalf("expected streamed bitcoin price, got %v", view.Assets[0].CurrentPrice)
	}
	if view.Assets[1].CurrentPrice != 2600 {
		t.Fatalf("untouched asset changed: %v", view.Assets[1].CurrentPrice)
	}
}
