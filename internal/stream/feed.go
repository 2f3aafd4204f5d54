package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// Feed consumes a live price websocket and hands each batch of updates to
// the sink. The upstream speaks the coincap convention: one JSON object per
// message, asset id to decimal price string, e.g.
//
//	{"bitcoin":"50123.45","ethereum":"2610.02"}
//
// The sink decides the merge policy; the feed only parses.
type Feed struct {
	url       string
	sink      func(map[string]float64)
	reconnect time.Duration
}

func New(url string, sink func(map[string]float64)) *Feed {
	return &Feed{
		url:       url,
		sink:      sink,
		reconnect: 5 * time.Second,
	}
}

// Run connects and consumes until ctx is done, redialing after read or dial
// failures. Intended to run on its own goroutine.
func (f *Feed) Run(ctx context.Context) {
	for {
		if err := f.consume(ctx); err != nil {
			slog.Warn("price feed disconnected", "url", f.url, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.reconnect):
		}
	}
}

func (f *Feed) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	slog.Info("price feed connected", "url", f.url)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		var raw map[string]string
		if err := json.Unmarshal(message, &raw); err != nil {
			slog.Warn("price feed message skipped", "error", err)
			continue
		}

		updates := make(map[string]float64, len(raw))
		for id, s := range raw {
			price, err := strconv.ParseFloat(s, 64)
			if err != nil {
				continue
			}
			updates[id] = price
		}
		if len(updates) > 0 {
			f.sink(updates)
		}
	}
}
