package deribit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	appconfig "optionsflow/config"
	"optionsflow/internal/channel"
	"optionsflow/logger"
	"optionsflow/models"

	"github.com/gorilla/websocket"
)

// Deribit_Trades_WS streams option trades over the Deribit websocket as a
// lower latency companion to the poller. Prints arriving on both paths share
// trade ids, so the dedup stage collapses them. Websocket trades carry no
// ticker enrichment.
type Deribit_Trades_WS struct {
	config   *appconfig.Config
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

type wsSubscribeRequest struct {
	JSONRPC string   `json:"jsonrpc"`
	ID      int      `json:"id"`
	Method  string   `json:"method"`
	Params  wsParams `json:"params"`
}

type wsParams struct {
	Channels []string `json:"channels"`
}

type wsNotification struct {
	Method string `json:"method"`
	Params struct {
		Channel string            `json:"channel"`
		Data    []json.RawMessage `json:"data"`
	} `json:"params"`
}

func Deribit_Trades_NewWS(cfg *appconfig.Config, ch *channel.Channels) *Deribit_Trades_WS {
	return &Deribit_Trades_WS{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (w *Deribit_Trades_WS) Deribit_Trades_WS_Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("websocket reader already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	cfg := w.config.Source.Deribit
	log := w.log.WithComponent("deribit_ws").WithFields(logger.Fields{"operation": "Deribit_Trades_WS_Start"})
	if !cfg.Websocket.Enabled {
		log.Warn("deribit websocket is disabled")
		return fmt.Errorf("deribit websocket is disabled")
	}

	log.WithFields(logger.Fields{
		"url":        cfg.Websocket.URL,
		"currencies": cfg.Currencies,
	}).Info("starting deribit websocket reader")

	w.wg.Add(1)
	go w.connectLoop(cfg)

	return nil
}

func (w *Deribit_Trades_WS) Deribit_Trades_WS_Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.log.WithComponent("deribit_ws").Info("stopping deribit websocket reader")
	w.wg.Wait()
	w.log.WithComponent("deribit_ws").Info("deribit websocket reader stopped")
}

func (w *Deribit_Trades_WS) connectLoop(cfg appconfig.DeribitSourceConfig) {
	defer w.wg.Done()

	log := w.log.WithComponent("deribit_ws")
	delay := cfg.Websocket.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}

	for {
		if w.ctx.Err() != nil {
			return
		}
		if err := w.stream(cfg); err != nil {
			log.WithError(err).Warn("websocket stream ended, reconnecting")
		}
		select {
		case <-w.ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (w *Deribit_Trades_WS) stream(cfg appconfig.DeribitSourceConfig) error {
	log := w.log.WithComponent("deribit_ws")

	conn, _, err := websocket.DefaultDialer.DialContext(w.ctx, cfg.Websocket.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial websocket: %w", err)
	}
	defer conn.Close()

	channels := make([]string, 0, len(cfg.Currencies))
	for _, currency := range cfg.Currencies {
		channels = append(channels, fmt.Sprintf("trades.option.%s.raw", currency))
	}
	sub := wsSubscribeRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "public/subscribe",
		Params:  wsParams{Channels: channels},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	log.WithFields(logger.Fields{"channels": channels}).Info("websocket subscribed")

	// Unblock the read loop when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-w.ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if w.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("websocket read failed: %w", err)
		}

		var note wsNotification
		if err := json.Unmarshal(payload, &note); err != nil || note.Method != "subscription" {
			continue
		}
		currency := currencyFromChannel(note.Params.Channel)
		for _, data := range note.Params.Data {
			if w.channels.SendRaw(models.RawTradeMessage{
				Venue:     models.VenueDeribit,
				Currency:  currency,
				Data:      data,
				FetchedAt: time.Now().UTC(),
			}) {
				logger.IncrementTradeFetch(len(data))
			}
		}
	}
}

// currencyFromChannel extracts BTC from trades.option.BTC.raw.
func currencyFromChannel(channel string) string {
	parts := strings.Split(channel, ".")
	if len(parts) >= 3 {
		return parts[2]
	}
	return ""
}
