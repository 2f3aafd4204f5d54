package models

import "time"

// Currency is the quote currency for market and history requests.
type Currency string

const (
	CurrencyUSD Currency = "usd"
	CurrencyEUR Currency = "eur"
	CurrencyBTC Currency = "btc"
)

func (c Currency) Valid() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyBTC:
		return true
	}
	return false
}

// Asset is one market entry as returned by the remote source. Never mutated
// locally; the only retained copy is the snapshot inside a WatchlistEntry.
type Asset struct {
	ID                       string   `json:"id"`
	Name                     string   `json:"name"`
	CurrentPrice             float64  `json:"current_price"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
}

// PricePoint is one sample of a history series. Timestamp is epoch millis
// as delivered by the remote source.
type PricePoint struct {
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
}

// WatchlistEntry retains the Asset as it looked when the user added it.
type WatchlistEntry struct {
	Asset
	AddedAt time.Time `json:"addedAt"`
}

// SessionView is the session slice of a dashboard snapshot.
type SessionView struct {
	Currency    Currency `json:"currency"`
	Window      string   `json:"window"`
	DarkMode    bool     `json:"darkMode"`
	DisplayName string   `json:"displayName,omitempty"`
}

// DashboardView is everything a renderer needs for one frame.
type DashboardView struct {
	Assets         []Asset          `json:"assets"`
	Watchlist      []WatchlistEntry `json:"watchlist"`
	History        []PricePoint     `json:"history,omitempty"`
	HistoryAssetID string           `json:"historyAssetId,omitempty"`
	Session        SessionView      `json:"session"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}
