package deribit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	appconfig "optionsflow/config"
	"optionsflow/internal/channel"
	ratemetrics "optionsflow/internal/metrics/rate"
	"optionsflow/logger"
	"optionsflow/models"
	"optionsflow/store"

	"golang.org/x/time/rate"
)

// Deribit_Trades_Reader polls recent trades per currency from the Deribit
// public API and forwards them to the raw channel. Option prints are
// enriched with ticker context (greeks, book, open interest delta) before
// forwarding, so the pipeline downstream never talks to the venue.
type Deribit_Trades_Reader struct {
	config     *appconfig.Config
	httpClient *http.Client
	channels   *channel.Channels
	store      store.Store
	ctx        context.Context
	wg         *sync.WaitGroup
	mu         sync.RWMutex
	running    bool
	log        *logger.Log
	limiter    *rate.Limiter
}

type deribitTradesResponse struct {
	Result struct {
		Trades []models.DeribitTradePayload `json:"trades"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type deribitTickerResponse struct {
	Result deribitTicker `json:"result"`
}

type deribitTicker struct {
	Greeks        *models.Greeks `json:"greeks"`
	BestBidPrice  float64        `json:"best_bid_price"`
	BestBidAmount float64        `json:"best_bid_amount"`
	BestAskPrice  float64        `json:"best_ask_price"`
	BestAskAmount float64        `json:"best_ask_amount"`
	MarkPrice     float64        `json:"mark_price"`
	OpenInterest  float64        `json:"open_interest"`
	IndexPrice    float64        `json:"index_price"`
}

// Deribit_Trades_NewReader creates a trade poller for the configured
// currencies.
func Deribit_Trades_NewReader(cfg *appconfig.Config, ch *channel.Channels, st store.Store) *Deribit_Trades_Reader {
	log := logger.GetLogger()

	transport := &http.Transport{
		MaxIdleConns:        cfg.Reader.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Reader.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.Reader.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.Reader.ConnectionPool.IdleConnTimeout,
	}

	rl := cfg.Reader.RateLimit
	rps := rl.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := rl.BurstSize
	if burst <= 0 {
		burst = 1
	}

	r := &Deribit_Trades_Reader{
		config:     cfg,
		httpClient: &http.Client{Transport: transport, Timeout: cfg.Reader.Timeout},
		channels:   ch,
		store:      st,
		wg:         &sync.WaitGroup{},
		log:        log,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}

	log.WithComponent("deribit_reader").WithFields(logger.Fields{
		"timeout": cfg.Reader.Timeout,
	}).Info("deribit trade reader initialized")

	return r
}

// Deribit_Trades_Start launches one polling worker per configured currency.
func (r *Deribit_Trades_Reader) Deribit_Trades_Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("deribit_reader").WithFields(logger.Fields{"operation": "Deribit_Trades_Start"})

	cfg := r.config.Source.Deribit
	if !cfg.Enabled {
		log.Warn("deribit trades are disabled")
		return fmt.Errorf("deribit trades are disabled")
	}

	log.WithFields(logger.Fields{
		"currencies": cfg.Currencies,
		"interval":   cfg.IntervalMs,
	}).Info("starting deribit trade reader")

	for _, currency := range cfg.Currencies {
		r.wg.Add(1)
		go r.fetchWorker(currency, cfg)
	}

	log.Info("deribit trade reader started successfully")
	return nil
}

// Deribit_Trades_Stop signals workers to stop and waits for them.
func (r *Deribit_Trades_Reader) Deribit_Trades_Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("deribit_reader").Info("stopping deribit trade reader")
	r.wg.Wait()
	r.log.WithComponent("deribit_reader").Info("deribit trade reader stopped")
}

func (r *Deribit_Trades_Reader) fetchWorker(currency string, cfg appconfig.DeribitSourceConfig) {
	defer r.wg.Done()

	log := r.log.WithComponent("deribit_reader").WithFields(logger.Fields{
		"currency": currency,
		"worker":   "trade_fetcher",
	})
	log.Info("starting trade worker")

	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	backoff := r.config.Reader.Retry.BaseDelay

	for {
		select {
		case <-r.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case <-ticker.C:
			if err := r.fetchTrades(currency, cfg); err != nil {
				log.WithError(err).Warn("trade fetch failed, backing off")
				select {
				case <-r.ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if max := r.config.Reader.Retry.MaxDelay; backoff > max {
					backoff = max
				}
			} else {
				backoff = r.config.Reader.Retry.BaseDelay
			}
		}
	}
}

func (r *Deribit_Trades_Reader) fetchTrades(currency string, cfg appconfig.DeribitSourceConfig) error {
	log := r.log.WithComponent("deribit_reader").WithFields(logger.Fields{
		"currency":  currency,
		"operation": "fetch_trades",
	})

	if err := r.limiter.Wait(r.ctx); err != nil {
		return err
	}

	params := url.Values{}
	params.Set("currency", currency)
	params.Set("kind", "any")
	params.Set("count", strconv.Itoa(cfg.Count))
	params.Set("sorting", "desc")

	start := time.Now()
	body, err := r.get(cfg.TradesURL+"?"+params.Encode(), currency)
	if err != nil {
		return err
	}
	logger.LogPerformanceEntry(log, "deribit_reader", "api_request", time.Since(start), logger.Fields{"currency": currency})

	var resp deribitTradesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to decode trades response: %w", err)
	}
	if resp.Error != nil {
		ratemetrics.ReportLimitFromMessage(r.log, models.VenueDeribit, currency, "", resp.Error.Message)
		return fmt.Errorf("deribit error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	// Ticker lookups are cached per batch, combo legs share instruments.
	tickers := make(map[string]*deribitTicker)
	forwarded := 0

	// The response is newest first, forward in time order.
	trades := resp.Result.Trades
	for i := len(trades) - 1; i >= 0; i-- {
		trade := trades[i]

		seen, err := r.store.Seen(r.ctx, "trade:"+models.VenueDeribit+"_"+trade.TradeID)
		if err == nil && seen {
			continue
		}

		// Standalone futures prints carry no IV and are not alertable.
		if trade.IV == nil && trade.BlockTradeID == "" {
			continue
		}

		if trade.IV != nil {
			r.enrich(&trade, cfg, tickers)
		}

		payload, err := json.Marshal(trade)
		if err != nil {
			log.WithError(err).Warn("failed to marshal trade")
			continue
		}
		if r.channels.SendRaw(models.RawTradeMessage{
			Venue:     models.VenueDeribit,
			Currency:  currency,
			Data:      payload,
			FetchedAt: time.Now().UTC(),
		}) {
			forwarded++
			logger.IncrementTradeFetch(len(payload))
		}
	}

	if forwarded > 0 {
		logger.LogDataFlowEntry(log, "deribit_api", "raw_channel", forwarded, "trades")
	}
	return nil
}

// enrich attaches ticker context to an option print: greeks, top of book and
// the open interest delta against the last observed baseline.
func (r *Deribit_Trades_Reader) enrich(trade *models.DeribitTradePayload, cfg appconfig.DeribitSourceConfig, tickers map[string]*deribitTicker) {
	log := r.log.WithComponent("deribit_reader").WithFields(logger.Fields{
		"instrument": trade.Instrument,
		"operation":  "enrich_ticker",
	})

	ticker, ok := tickers[trade.Instrument]
	if !ok {
		fetched, err := r.fetchTicker(trade.Instrument, cfg)
		if err != nil {
			log.WithError(err).Warn("ticker enrichment failed")
			return
		}
		tickers[trade.Instrument] = fetched
		ticker = fetched
	}
	if ticker == nil {
		return
	}

	trade.Greeks = ticker.Greeks
	trade.Quote = &models.Quote{
		Bid:       ticker.BestBidPrice,
		BidAmount: ticker.BestBidAmount,
		Ask:       ticker.BestAskPrice,
		AskAmount: ticker.BestAskAmount,
		Mark:      ticker.MarkPrice,
	}
	if trade.IndexPrice == nil && ticker.IndexPrice > 0 {
		idx := ticker.IndexPrice
		trade.IndexPrice = &idx
	}

	oiKey := "oi_" + trade.Instrument
	if prev, found, err := r.store.Get(r.ctx, oiKey); err == nil && found {
		if prevOI, err := strconv.ParseFloat(prev, 64); err == nil {
			trade.OIChange = ticker.OpenInterest - prevOI
		}
	}
	if err := r.store.Set(r.ctx, oiKey, strconv.FormatFloat(ticker.OpenInterest, 'f', -1, 64), 0); err != nil {
		log.WithError(err).Warn("failed to update open interest baseline")
	}
}

func (r *Deribit_Trades_Reader) fetchTicker(instrument string, cfg appconfig.DeribitSourceConfig) (*deribitTicker, error) {
	if err := r.limiter.Wait(r.ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("instrument_name", instrument)
	body, err := r.get(cfg.TickerURL+"?"+params.Encode(), "")
	if err != nil {
		return nil, err
	}

	var resp deribitTickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode ticker response: %w", err)
	}
	return &resp.Result, nil
}

func (r *Deribit_Trades_Reader) get(rawURL, currency string) ([]byte, error) {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		ratemetrics.ReportRateLimitExceeded(r.log, models.VenueDeribit, currency, "")
		return nil, fmt.Errorf("deribit rate limited: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deribit returned %s", resp.Status)
	}
	return body, nil
}
