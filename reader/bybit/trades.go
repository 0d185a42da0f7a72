package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	appconfig "optionsflow/config"
	"optionsflow/internal/channel"
	"optionsflow/logger"
	"optionsflow/models"
	"optionsflow/store"

	bybit "github.com/bybit-exchange/bybit.go.api"
)

// Bybit_Trades_Reader polls option trades per symbol from Bybit. The option
// symbol universe is large and changes daily, so the instrument list is
// fetched per currency and cached in the store. Only block prints are
// forwarded, Bybit's on-screen option flow is dominated by dust.
type Bybit_Trades_Reader struct {
	config   *appconfig.Config
	client   *bybit.Client
	channels *channel.Channels
	store    store.Store
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

type bybitTradesResult struct {
	List []models.BybitTradePayload `json:"list"`
}

type bybitInstrumentsResult struct {
	List []struct {
		Symbol string `json:"symbol"`
	} `json:"list"`
}

// Bybit_Trades_NewReader creates an option trade poller for the configured
// currencies.
func Bybit_Trades_NewReader(cfg *appconfig.Config, ch *channel.Channels, st store.Store) *Bybit_Trades_Reader {
	log := logger.GetLogger()

	transport := &http.Transport{
		MaxIdleConns:        cfg.Reader.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Reader.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.Reader.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.Reader.ConnectionPool.IdleConnTimeout,
	}
	httpClient := &http.Client{Transport: transport, Timeout: cfg.Reader.Timeout}

	base := cfg.Source.Bybit.TradesURL
	if parsed, err := url.Parse(cfg.Source.Bybit.TradesURL); err == nil && parsed.Host != "" {
		base = fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	}
	client := bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(base))
	client.HTTPClient = httpClient

	r := &Bybit_Trades_Reader{
		config:   cfg,
		client:   client,
		channels: ch,
		store:    st,
		wg:       &sync.WaitGroup{},
		log:      log,
	}

	log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"timeout": cfg.Reader.Timeout,
	}).Info("bybit trade reader initialized")

	return r
}

// Bybit_Trades_Start launches one polling worker per configured currency.
func (r *Bybit_Trades_Reader) Bybit_Trades_Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("bybit_reader").WithFields(logger.Fields{"operation": "Bybit_Trades_Start"})

	cfg := r.config.Source.Bybit
	if !cfg.Enabled {
		log.Warn("bybit trades are disabled")
		return fmt.Errorf("bybit trades are disabled")
	}

	log.WithFields(logger.Fields{
		"currencies": cfg.Currencies,
		"interval":   cfg.IntervalMs,
	}).Info("starting bybit trade reader")

	for _, currency := range cfg.Currencies {
		r.wg.Add(1)
		go r.fetchWorker(currency, cfg)
	}

	log.Info("bybit trade reader started successfully")
	return nil
}

// Bybit_Trades_Stop signals workers to stop and waits for them.
func (r *Bybit_Trades_Reader) Bybit_Trades_Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("bybit_reader").Info("stopping bybit trade reader")
	r.wg.Wait()
	r.log.WithComponent("bybit_reader").Info("bybit trade reader stopped")
}

func (r *Bybit_Trades_Reader) fetchWorker(currency string, cfg appconfig.BybitSourceConfig) {
	defer r.wg.Done()

	log := r.log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"currency": currency,
		"worker":   "trade_fetcher",
	})
	log.Info("starting trade worker")

	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case <-ticker.C:
			r.fetchCurrency(currency, cfg)
		}
	}
}

func (r *Bybit_Trades_Reader) fetchCurrency(currency string, cfg appconfig.BybitSourceConfig) {
	log := r.log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"currency":  currency,
		"operation": "fetch_trades",
	})

	symbols, err := r.symbols(currency, cfg)
	if err != nil {
		log.WithError(err).Warn("failed to resolve option symbols")
		return
	}

	pause := time.Duration(cfg.SymbolPauseMs) * time.Millisecond
	forwarded := 0
	for _, symbol := range symbols {
		if r.ctx.Err() != nil {
			return
		}
		forwarded += r.fetchSymbol(symbol, currency)
		if pause > 0 {
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(pause):
			}
		}
	}

	if forwarded > 0 {
		logger.LogDataFlowEntry(log, "bybit_api", "raw_channel", forwarded, "trades")
	}
}

func (r *Bybit_Trades_Reader) fetchSymbol(symbol, currency string) int {
	log := r.log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"symbol":    symbol,
		"operation": "fetch_symbol",
	})

	params := map[string]interface{}{
		"category": "option",
		"symbol":   symbol,
	}

	start := time.Now()
	resp, err := r.client.NewUtaBybitServiceWithParams(params).GetPublicRecentTrades(r.ctx)
	if err != nil {
		log.WithError(err).Warn("failed to fetch recent trades")
		return 0
	}
	logger.LogPerformanceEntry(log, "bybit_reader", "api_request", time.Since(start), logger.Fields{"symbol": symbol})

	raw, err := json.Marshal(resp.Result)
	if err != nil {
		log.WithError(err).Warn("failed to marshal trades result")
		return 0
	}
	var result bybitTradesResult
	if err := json.Unmarshal(raw, &result); err != nil {
		log.WithError(err).Warn("failed to decode trades result")
		return 0
	}

	forwarded := 0
	for _, trade := range result.List {
		if !trade.IsBlockTrade {
			continue
		}
		seen, err := r.store.Seen(r.ctx, "trade:"+models.VenueBybit+"_"+trade.ExecID)
		if err == nil && seen {
			continue
		}
		payload, err := json.Marshal(trade)
		if err != nil {
			continue
		}
		if r.channels.SendRaw(models.RawTradeMessage{
			Venue:     models.VenueBybit,
			Currency:  currency,
			Data:      payload,
			FetchedAt: time.Now().UTC(),
		}) {
			forwarded++
			logger.IncrementTradeFetch(len(payload))
		}
	}
	return forwarded
}

// symbols returns the tradable option symbols for a currency, served from
// the store cache while it is fresh.
func (r *Bybit_Trades_Reader) symbols(currency string, cfg appconfig.BybitSourceConfig) ([]string, error) {
	cacheKey := "bybit_symbols_" + currency

	if cached, found, err := r.store.Get(r.ctx, cacheKey); err == nil && found {
		var symbols []string
		if err := json.Unmarshal([]byte(cached), &symbols); err == nil && len(symbols) > 0 {
			return symbols, nil
		}
	}

	params := map[string]interface{}{
		"category": "option",
		"baseCoin": currency,
		"status":   "Trading",
		"limit":    1000,
	}
	resp, err := r.client.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(r.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instruments: %w", err)
	}

	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal instruments result: %w", err)
	}
	var result bybitInstrumentsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode instruments result: %w", err)
	}

	symbols := make([]string, 0, len(result.List))
	for _, inst := range result.List {
		symbols = append(symbols, inst.Symbol)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no tradable option symbols for %s", currency)
	}

	encoded, err := json.Marshal(symbols)
	if err == nil {
		ttl := cfg.SymbolCacheTTL
		if ttl <= 0 {
			ttl = 30 * time.Minute
		}
		if err := r.store.Set(r.ctx, cacheKey, string(encoded), ttl); err != nil {
			r.log.WithComponent("bybit_reader").WithError(err).Warn("failed to cache symbols")
		}
	}

	r.log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"currency": currency,
		"symbols":  len(symbols),
	}).Info("refreshed option symbol universe")

	return symbols, nil
}
