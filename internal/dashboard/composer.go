package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/escape23/crypto-dashboard/internal/models"
	"github.com/escape23/crypto-dashboard/internal/session"
	"github.com/escape23/crypto-dashboard/internal/watchlist"
)

// ErrUnknownAsset is returned for operations on an asset id that no market
// fetch or watchlist load has ever produced.
var ErrUnknownAsset = errors.New("unknown asset id")

// MarketAPI is the slice of the market client the composer needs.
type MarketAPI interface {
	Markets(ctx context.Context, currency models.Currency) ([]models.Asset, error)
	History(ctx context.Context, assetID string, currency models.Currency, window string) ([]models.PricePoint, error)
}

// Broadcaster pushes view snapshots to connected clients.
type Broadcaster interface {
	BroadcastJSON(v any)
}

// Composer owns the whole view model: the current asset list, the open
// history series, the session and the watchlist. Every user action funnels
// through it, so renderers always observe a consistent frame.
//
// Fetch failures never blank existing data: the previous assets or series
// stay on display and the failure is only logged.
type Composer struct {
	market MarketAPI
	watch  *watchlist.Store
	hub    Broadcaster

	mu             sync.RWMutex
	session        *session.State
	assets         []models.Asset
	history        []models.PricePoint
	historyAssetID string
	seen           map[string]struct{}
	marketsStale   bool
	updatedAt      time.Time
}

// New wires the composer to its collaborators. hub may be nil when no push
// channel is configured. Changing the session currency marks the asset list
// stale; the next composer entry point re-runs the market fetch.
func New(m MarketAPI, w *watchlist.Store, st *session.State, hub Broadcaster) *Composer {
	c := &Composer{
		market:  m,
		watch:   w,
		hub:     hub,
		session: st,
		assets:  make([]models.Asset, 0),
		seen:    make(map[string]struct{}),
	}
	st.OnCurrencyChange(func(models.Currency) {
		c.marketsStale = true
	})
	return c
}

// Start loads persisted state and performs the initial market fetch.
// Persistence and network problems degrade to defaults rather than failing
// startup.
func (c *Composer) Start(ctx context.Context) {
	if err := c.watch.Load(ctx); err != nil {
		slog.Warn("watchlist load failed, starting empty", "error", err)
	}

	c.mu.Lock()
	if err := c.session.Load(ctx); err != nil {
		slog.Warn("session load failed, using defaults", "error", err)
	}
	for _, e := range c.watch.All() {
		c.seen[e.ID] = struct{}{}
	}
	c.mu.Unlock()

	if err := c.RefreshMarkets(ctx); err != nil {
		slog.Warn("initial market fetch failed", "error", err)
	}
}

// RefreshMarkets re-runs the market fetch for the current currency and
// replaces the asset list wholesale on success.
func (c *Composer) RefreshMarkets(ctx context.Context) error {
	c.mu.Lock()
	currency := c.session.Currency()
	c.marketsStale = false
	c.mu.Unlock()

	assets, err := c.market.Markets(ctx, currency)
	if err != nil {
		slog.Warn("market fetch failed", "currency", currency, "error", err)
		return err
	}

	c.mu.Lock()
	c.assets = assets
	for _, a := range assets {
		c.seen[a.ID] = struct{}{}
	}
	c.updatedAt = time.Now().UTC()
	c.mu.Unlock()

	c.broadcast()
	return nil
}

// ViewHistory fetches the price series for assetID using the session's
// currency and lookback window, replacing any series on display. When two
// fetches race, the later response wins.
func (c *Composer) ViewHistory(ctx context.Context, assetID string) ([]models.PricePoint, error) {
	c.mu.RLock()
	_, known := c.seen[assetID]
	currency := c.session.Currency()
	window := c.session.Window()
	c.mu.RUnlock()

	if !known {
		return nil, ErrUnknownAsset
	}

	points, err := c.market.History(ctx, assetID, currency, window)
	if err != nil {
		slog.Warn("history fetch failed", "asset", assetID, "error", err)
		return nil, err
	}

	c.mu.Lock()
	c.history = points
	c.historyAssetID = assetID
	c.updatedAt = time.Now().UTC()
	c.mu.Unlock()

	c.broadcast()
	return points, nil
}

// AddToWatchlist snapshots an asset from the current list into the
// watchlist. The store deduplicates by id. Persistence is fire-and-forget:
// a failed write keeps the in-memory entry and is only logged.
func (c *Composer) AddToWatchlist(ctx context.Context, assetID string) error {
	c.mu.RLock()
	var found *models.Asset
	for i := range c.assets {
		if c.assets[i].ID == assetID {
			a := c.assets[i]
			found = &a
			break
		}
	}
	c.mu.RUnlock()

	if found == nil {
		return ErrUnknownAsset
	}

	if err := c.watch.Add(ctx, *found); err != nil {
		slog.Warn("watchlist persist failed", "asset", assetID, "error", err)
	}
	c.broadcast()
	return nil
}

func (c *Composer) RemoveFromWatchlist(ctx context.Context, assetID string) {
	if err := c.watch.Remove(ctx, assetID); err != nil {
		slog.Warn("watchlist persist failed", "asset", assetID, "error", err)
	}
	c.broadcast()
}

// SessionUpdate is a partial session mutation; nil fields are untouched.
type SessionUpdate struct {
	Currency    *models.Currency
	Window      *string
	DarkMode    *bool
	DisplayName *string
}

// UpdateSession applies upd. A currency change re-runs the market fetch; a
// failed refetch keeps the stale asset list on display (and leaves any open
// history series untouched, so it can go stale relative to the new
// currency).
func (c *Composer) UpdateSession(ctx context.Context, upd SessionUpdate) error {
	c.mu.Lock()
	var err error
	if upd.Window != nil {
		err = c.session.SetWindow(*upd.Window)
	}
	if err == nil && upd.DarkMode != nil {
		c.session.SetDarkMode(*upd.DarkMode)
	}
	if err == nil && upd.DisplayName != nil {
		if perr := c.session.SetDisplayName(ctx, *upd.DisplayName); perr != nil {
			slog.Warn("display name persist failed", "error", perr)
		}
	}
	if err == nil && upd.Currency != nil {
		err = c.session.SetCurrency(*upd.Currency)
	}
	stale := c.marketsStale
	c.mu.Unlock()

	if err != nil {
		return err
	}

	if stale {
		if ferr := c.RefreshMarkets(ctx); ferr != nil {
			slog.Warn("refetch after currency change failed", "error", ferr)
		}
	}
	c.broadcast()
	return nil
}

// ApplyPriceUpdates merges a batch of streamed prices into the displayed
// asset list by id. Ids we have never fetched are dropped, not inserted.
func (c *Composer) ApplyPriceUpdates(prices map[string]float64) {
	if len(prices) == 0 {
		return
	}

	c.mu.Lock()
	changed := false
	for i := range c.assets {
		if p, ok := prices[c.assets[i].ID]; ok {
			c.assets[i].CurrentPrice = p
			changed = true
		}
	}
	if changed {
		c.updatedAt = time.Now().UTC()
	}
	c.mu.Unlock()

	if changed {
		c.broadcast()
	}
}

// Snapshot returns a copy of the full view model.
func (c *Composer) Snapshot() models.DashboardView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	view := models.DashboardView{
		Assets:         make([]models.Asset, len(c.assets)),
		Watchlist:      c.watch.All(),
		HistoryAssetID: c.historyAssetID,
		Session:        c.session.View(),
		UpdatedAt:      c.updatedAt,
	}
	copy(view.Assets, c.assets)
	if len(c.history) > 0 {
		view.History = make([]models.PricePoint, len(c.history))
		copy(view.History, c.history)
	}
	return view
}

func (c *Composer) broadcast() {
	if c.hub == nil {
		return
	}
	c.hub.BroadcastJSON(c.Snapshot())
}
