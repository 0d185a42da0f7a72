package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	appconfig "optionsflow/config"
	"optionsflow/internal/channel"
	ratemetrics "optionsflow/internal/metrics/rate"
	"optionsflow/logger"
	"optionsflow/models"
	"optionsflow/store"

	futures "github.com/adshao/go-binance/v2/futures"
)

// Binance_Trades_Reader polls recent option trades from the Binance European
// options API. The endpoint is per symbol, so the tradable symbol universe
// is fetched from exchange info and cached in the store.
type Binance_Trades_Reader struct {
	config   *appconfig.Config
	client   *futures.Client
	channels *channel.Channels
	store    store.Store
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
	infoURL  string
}

type binanceExchangeInfo struct {
	OptionSymbols []struct {
		Symbol     string `json:"symbol"`
		Underlying string `json:"underlying"`
	} `json:"optionSymbols"`
}

// Binance_Trades_NewReader creates an option trade poller for the configured
// currencies.
func Binance_Trades_NewReader(cfg *appconfig.Config, ch *channel.Channels, st store.Store) *Binance_Trades_Reader {
	log := logger.GetLogger()

	transport := &http.Transport{
		MaxIdleConns:        cfg.Reader.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Reader.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.Reader.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.Reader.ConnectionPool.IdleConnTimeout,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.Reader.Timeout,
	}

	client := futures.NewClient("", "")
	client.HTTPClient = httpClient

	infoURL := ""
	if parsed, err := url.Parse(cfg.Source.Binance.TradesURL); err == nil && parsed.Host != "" {
		infoURL = fmt.Sprintf("%s://%s/eapi/v1/exchangeInfo", parsed.Scheme, parsed.Host)
	}

	reader := &Binance_Trades_Reader{
		config:   cfg,
		client:   client,
		channels: ch,
		store:    st,
		wg:       &sync.WaitGroup{},
		log:      log,
		infoURL:  infoURL,
	}

	log.WithComponent("binance_reader").WithFields(logger.Fields{
		"timeout": cfg.Reader.Timeout,
	}).Info("binance trade reader initialized")

	return reader
}

// Binance_Trades_Start begins polling option trades for the configured
// currencies.
func (br *Binance_Trades_Reader) Binance_Trades_Start(ctx context.Context) error {
	br.mu.Lock()
	if br.running {
		br.mu.Unlock()
		return fmt.Errorf("reader already running")
	}
	br.running = true
	br.ctx = ctx
	br.mu.Unlock()

	log := br.log.WithComponent("binance_reader").WithFields(logger.Fields{"operation": "Binance_Trades_Start"})

	cfg := br.config.Source.Binance
	if !cfg.Enabled {
		log.Warn("binance trades are disabled")
		return fmt.Errorf("binance trades are disabled")
	}

	log.WithFields(logger.Fields{
		"currencies": cfg.Currencies,
		"interval":   cfg.IntervalMs,
	}).Info("starting binance trade reader")

	for _, currency := range cfg.Currencies {
		br.wg.Add(1)
		go br.fetchWorker(currency, cfg)
	}

	log.Info("binance trade reader started successfully")
	return nil
}

// Binance_Trades_Stop signals all workers to stop and waits for completion.
func (br *Binance_Trades_Reader) Binance_Trades_Stop() {
	br.mu.Lock()
	br.running = false
	br.mu.Unlock()

	br.log.WithComponent("binance_reader").Info("stopping binance trade reader")
	br.wg.Wait()
	br.log.WithComponent("binance_reader").Info("binance trade reader stopped")
}

func (br *Binance_Trades_Reader) fetchWorker(currency string, cfg appconfig.BinanceSourceConfig) {
	defer br.wg.Done()

	log := br.log.WithComponent("binance_reader").WithFields(logger.Fields{
		"currency": currency,
		"worker":   "trade_fetcher",
	})
	log.Info("starting trade worker")

	interval := time.Duration(cfg.IntervalMs) * time.Millisecond

	now := time.Now()
	nextTick := now.Truncate(interval).Add(interval)
	timer := time.NewTimer(nextTick.Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-br.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case <-timer.C:
			start := time.Now()
			br.fetchCurrency(currency, cfg)
			duration := time.Since(start)

			if duration > interval {
				log.WithFields(logger.Fields{
					"duration": duration.Milliseconds(),
					"interval": cfg.IntervalMs,
				}).Warn("fetch took longer than interval")
			}

			nextTick = start.Truncate(interval).Add(interval)
			timer.Reset(time.Until(nextTick))
		}
	}
}

func (br *Binance_Trades_Reader) fetchCurrency(currency string, cfg appconfig.BinanceSourceConfig) {
	log := br.log.WithComponent("binance_reader").WithFields(logger.Fields{
		"currency":  currency,
		"operation": "fetch_trades",
	})

	symbols, err := br.symbols(currency)
	if err != nil {
		log.WithError(err).Warn("failed to resolve option symbols")
		return
	}

	forwarded := 0
	for _, symbol := range symbols {
		if br.ctx.Err() != nil {
			return
		}
		forwarded += br.fetchSymbol(symbol, currency, cfg)
	}

	if forwarded > 0 {
		logger.LogDataFlowEntry(log, "binance_api", "raw_channel", forwarded, "trades")
	}
}

func (br *Binance_Trades_Reader) fetchSymbol(symbol, currency string, cfg appconfig.BinanceSourceConfig) int {
	log := br.log.WithComponent("binance_reader").WithFields(logger.Fields{
		"symbol":    symbol,
		"operation": "fetch_symbol",
	})

	start := time.Now()
	reqURL := fmt.Sprintf("%s?symbol=%s&limit=100", cfg.TradesURL, url.QueryEscape(symbol))
	body, header, err := br.get(reqURL)
	if err != nil {
		log.WithError(err).Warn("failed to fetch recent trades")
		return 0
	}
	logger.LogPerformanceEntry(log, "binance_reader", "api_request", time.Since(start), logger.Fields{"symbol": symbol})

	ratemetrics.ReportBinanceUsedWeight(br.log, header, currency)

	var trades []models.BinanceTradePayload
	if err := json.Unmarshal(body, &trades); err != nil {
		log.WithError(err).Warn("failed to decode trades")
		return 0
	}

	forwarded := 0
	for _, trade := range trades {
		key := fmt.Sprintf("trade:%s_%s_%d", models.VenueBinance, trade.Symbol, trade.ID)
		seen, err := br.store.Seen(br.ctx, key)
		if err == nil && seen {
			continue
		}
		payload, err := json.Marshal(trade)
		if err != nil {
			continue
		}
		if br.channels.SendRaw(models.RawTradeMessage{
			Venue:     models.VenueBinance,
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
func (br *Binance_Trades_Reader) symbols(currency string) ([]string, error) {
	cacheKey := "binance_symbols_" + currency

	if cached, found, err := br.store.Get(br.ctx, cacheKey); err == nil && found {
		var symbols []string
		if err := json.Unmarshal([]byte(cached), &symbols); err == nil && len(symbols) > 0 {
			return symbols, nil
		}
	}

	if br.infoURL == "" {
		return nil, fmt.Errorf("exchange info URL is not configured")
	}
	body, _, err := br.get(br.infoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exchange info: %w", err)
	}

	var info binanceExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode exchange info: %w", err)
	}

	var symbols []string
	for _, opt := range info.OptionSymbols {
		if strings.HasPrefix(opt.Symbol, currency+"-") {
			symbols = append(symbols, opt.Symbol)
		}
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no tradable option symbols for %s", currency)
	}

	if encoded, err := json.Marshal(symbols); err == nil {
		if err := br.store.Set(br.ctx, cacheKey, string(encoded), 30*time.Minute); err != nil {
			br.log.WithComponent("binance_reader").WithError(err).Warn("failed to cache symbols")
		}
	}

	br.log.WithComponent("binance_reader").WithFields(logger.Fields{
		"currency": currency,
		"symbols":  len(symbols),
	}).Info("refreshed option symbol universe")

	return symbols, nil
}

func (br *Binance_Trades_Reader) get(rawURL string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(br.ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := br.client.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.Header, err
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
		ratemetrics.ReportRateLimitExceeded(br.log, models.VenueBinance, "", "")
		return nil, resp.Header, fmt.Errorf("binance rate limited: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.Header, fmt.Errorf("binance returned %s", resp.Status)
	}
	return body, resp.Header, nil
}
