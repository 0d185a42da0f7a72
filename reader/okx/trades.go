package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
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

// Okx_Trades_Reader polls the public option trades feed per instrument
// family. OKX reports sizes in contracts, the normalizer converts them to
// coins.
type Okx_Trades_Reader struct {
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

type okxTradesResponse struct {
	Code string                   `json:"code"`
	Msg  string                   `json:"msg"`
	Data []models.OkxTradePayload `json:"data"`
}

// Okx_Trades_NewReader creates an option trade poller for the configured
// currencies.
func Okx_Trades_NewReader(cfg *appconfig.Config, ch *channel.Channels, st store.Store) *Okx_Trades_Reader {
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

	r := &Okx_Trades_Reader{
		config: cfg,
		httpClient: &http.Client{
			Transport: userAgentTransport{agent: "optionsflow", base: transport},
			Timeout:   cfg.Reader.Timeout,
		},
		channels: ch,
		store:    st,
		wg:       &sync.WaitGroup{},
		log:      log,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}

	log.WithComponent("okx_reader").WithFields(logger.Fields{
		"timeout": cfg.Reader.Timeout,
	}).Info("okx trade reader initialized")

	return r
}

// Okx_Trades_Start launches one polling worker per configured currency.
func (r *Okx_Trades_Reader) Okx_Trades_Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("okx_reader").WithFields(logger.Fields{"operation": "Okx_Trades_Start"})

	cfg := r.config.Source.Okx
	if !cfg.Enabled {
		log.Warn("okx trades are disabled")
		return fmt.Errorf("okx trades are disabled")
	}

	log.WithFields(logger.Fields{
		"currencies": cfg.Currencies,
		"interval":   cfg.IntervalMs,
	}).Info("starting okx trade reader")

	for _, currency := range cfg.Currencies {
		r.wg.Add(1)
		go r.fetchWorker(currency, cfg)
	}

	log.Info("okx trade reader started successfully")
	return nil
}

// Okx_Trades_Stop signals workers to stop and waits for them.
func (r *Okx_Trades_Reader) Okx_Trades_Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("okx_reader").Info("stopping okx trade reader")
	r.wg.Wait()
	r.log.WithComponent("okx_reader").Info("okx trade reader stopped")
}

func (r *Okx_Trades_Reader) fetchWorker(currency string, cfg appconfig.OkxSourceConfig) {
	defer r.wg.Done()

	log := r.log.WithComponent("okx_reader").WithFields(logger.Fields{
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

func (r *Okx_Trades_Reader) fetchTrades(currency string, cfg appconfig.OkxSourceConfig) error {
	log := r.log.WithComponent("okx_reader").WithFields(logger.Fields{
		"currency":  currency,
		"operation": "fetch_trades",
	})

	if err := r.limiter.Wait(r.ctx); err != nil {
		return err
	}

	params := url.Values{}
	params.Set("instFamily", currency+"-USD")

	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, cfg.TradesURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	logger.LogPerformanceEntry(log, "okx_reader", "api_request", time.Since(start), logger.Fields{"currency": currency})

	ratemetrics.ReportOkxUsedWeight(r.log, resp.Header, currency)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		ratemetrics.ReportRateLimitExceeded(r.log, models.VenueOkx, currency, "")
		return fmt.Errorf("okx rate limited: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("okx returned %s", resp.Status)
	}

	var trades okxTradesResponse
	if err := json.Unmarshal(body, &trades); err != nil {
		return fmt.Errorf("failed to decode trades response: %w", err)
	}
	if trades.Code != "0" {
		ratemetrics.ReportLimitFromMessage(r.log, models.VenueOkx, currency, "", trades.Msg)
		return fmt.Errorf("okx error %s: %s", trades.Code, trades.Msg)
	}

	forwarded := 0
	for i := len(trades.Data) - 1; i >= 0; i-- {
		trade := trades.Data[i]

		key := fmt.Sprintf("trade:%s_%s_%s_%s", models.VenueOkx, trade.InstID, trade.TradeID, trade.Timestamp)
		seen, err := r.store.Seen(r.ctx, key)
		if err == nil && seen {
			continue
		}

		payload, err := json.Marshal(trade)
		if err != nil {
			continue
		}
		if r.channels.SendRaw(models.RawTradeMessage{
			Venue:     models.VenueOkx,
			Currency:  currency,
			Data:      payload,
			FetchedAt: time.Now().UTC(),
		}) {
			forwarded++
			logger.IncrementTradeFetch(len(payload))
		}
	}

	if forwarded > 0 {
		logger.LogDataFlowEntry(log, "okx_api", "raw_channel", forwarded, "trades")
	}
	return nil
}
