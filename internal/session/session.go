package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/escape23/crypto-dashboard/internal/models"
	"github.com/escape23/crypto-dashboard/internal/storage"
)

// State holds the per-session view configuration: quote currency, lookback
// window, dark mode and an optional display name. Only the display name is
// durable, under the reserved "user" key; everything else resets with the
// process.
//
// State is owned by the dashboard composer, which serializes all access.
type State struct {
	kv *storage.KV

	currency    models.Currency
	window      string
	darkMode    bool
	displayName string

	onCurrency func(models.Currency)
}

func New(kv *storage.KV, currency models.Currency, window string) *State {
	return &State{
		kv:       kv,
		currency: currency,
		window:   window,
	}
}

// Load restores the persisted display name, if any. Inaccessible storage
// degrades to the default empty name.
func (s *State) Load(ctx context.Context) error {
	name, ok, err := s.kv.Get(ctx, storage.KeyUser)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if ok {
		s.displayName = name
	}
	return nil
}

// OnCurrencyChange registers the single listener notified after the currency
// changes. The composer uses this to re-run the market fetch.
func (s *State) OnCurrencyChange(fn func(models.Currency)) {
	s.onCurrency = fn
}

func (s *State) Currency() models.Currency { return s.currency }
func (s *State) Window() string            { return s.window }
func (s *State) DarkMode() bool            { return s.darkMode }
func (s *State) DisplayName() string       { return s.displayName }

func (s *State) SetCurrency(c models.Currency) error {
	if !c.Valid() {
		return fmt.Errorf("unsupported currency %q", c)
	}
	if c == s.currency {
		return nil
	}
	s.currency = c
	if s.onCurrency != nil {
		s.onCurrency(c)
	}
	return nil
}

func (s *State) SetWindow(window string) error {
	if window == "" {
		return fmt.Errorf("empty lookback window")
	}
	s.window = window
	return nil
}

func (s *State) SetDarkMode(on bool) {
	s.darkMode = on
}

// SetDisplayName records who is "logged in". This is a label, not an
// identity: there are no credentials anywhere. A non-empty name is persisted;
// an empty name logs out and clears the persisted key.
func (s *State) SetDisplayName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	s.displayName = name

	if name == "" {
		if err := s.kv.Delete(ctx, storage.KeyUser); err != nil {
			return fmt.Errorf("clear display name: %w", err)
		}
		return nil
	}
	if err := s.kv.Put(ctx, storage.KeyUser, name); err != nil {
		return fmt.Errorf("persist display name: %w", err)
	}
	return nil
}

// View exports the state for a dashboard snapshot.
func (s *State) View() models.SessionView {
	return models.SessionView{
		Currency:    s.currency,
		Window:      s.window,
		DarkMode:    s.darkMode,
		DisplayName: s.displayName,
	}
}
