package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	appconfig "optionsflow/config"
	"optionsflow/internal/channel"
	"optionsflow/internal/symbols"
	"optionsflow/logger"
	"optionsflow/models"
	"optionsflow/store"
)

// Normalizer converts venue-native payloads from the raw channel into
// canonical trades, deduplicates them against the store and forwards the
// survivors downstream. When an archive channel is attached every accepted
// trade is also teed into it.
type Normalizer struct {
	config   *appconfig.Config
	store    store.Store
	channels *channel.Channels
	archive  chan<- models.Trade
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	// Metrics
	messagesSeen    int64
	tradesAccepted  int64
	duplicatesDrop  int64
	malformedDrop   int64
	validationDrops int64
}

// NewNormalizer builds a normalizer. archive may be nil to disable the tee.
func NewNormalizer(cfg *appconfig.Config, st store.Store, channels *channel.Channels, archive chan<- models.Trade) *Normalizer {
	return &Normalizer{
		config:   cfg,
		store:    st,
		channels: channels,
		archive:  archive,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (n *Normalizer) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return fmt.Errorf("normalizer already running")
	}
	n.running = true
	n.ctx = ctx
	n.mu.Unlock()

	log := n.log.WithComponent("normalizer").WithFields(logger.Fields{"operation": "start"})

	numWorkers := n.config.Processor.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	log.WithFields(logger.Fields{"workers": numWorkers}).Info("starting normalizer workers")

	for i := 0; i < numWorkers; i++ {
		n.wg.Add(1)
		go n.worker(i)
	}
	go n.metricsReporter(ctx)

	return nil
}

func (n *Normalizer) Stop() {
	n.mu.Lock()
	n.running = false
	n.mu.Unlock()

	n.wg.Wait()
	n.log.WithComponent("normalizer").Info("normalizer stopped")
}

func (n *Normalizer) worker(workerID int) {
	defer n.wg.Done()

	log := n.log.WithComponent("normalizer").WithFields(logger.Fields{"worker_id": workerID})

	for {
		select {
		case <-n.ctx.Done():
			return
		case msg, ok := <-n.channels.RawMessageChan:
			if !ok {
				log.Info("raw channel closed, worker stopping")
				return
			}
			n.handleMessage(msg)
		}
	}
}

func (n *Normalizer) handleMessage(msg models.RawTradeMessage) {
	log := n.log.WithComponent("normalizer").WithFields(logger.Fields{"venue": msg.Venue})

	n.mu.Lock()
	n.messagesSeen++
	n.mu.Unlock()

	trade, err := n.Normalize(msg)
	if err != nil {
		n.mu.Lock()
		n.malformedDrop++
		n.mu.Unlock()
		log.WithError(err).Warn("dropping malformed trade payload")
		return
	}

	if err := trade.Validate(); err != nil {
		n.mu.Lock()
		n.validationDrops++
		n.mu.Unlock()
		log.WithError(err).Warn("dropping invalid trade")
		return
	}

	first, err := n.store.MarkSeen(n.ctx, "trade:"+trade.ID, n.config.Store.DedupTTL)
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{"trade_id": trade.ID}).Error("dedup check failed, forwarding trade")
	} else if !first {
		n.mu.Lock()
		n.duplicatesDrop++
		n.mu.Unlock()
		return
	}

	if n.channels.SendTrade(trade) {
		n.mu.Lock()
		n.tradesAccepted++
		n.mu.Unlock()
	}
	if n.archive != nil {
		select {
		case n.archive <- trade:
		default:
		}
	}
}

// Normalize maps one raw message into a canonical trade. The venue field on
// the envelope selects the payload shape.
func (n *Normalizer) Normalize(msg models.RawTradeMessage) (models.Trade, error) {
	switch msg.Venue {
	case models.VenueDeribit:
		return parseDeribit(msg.Data)
	case models.VenueBybit:
		return parseBybit(msg.Data)
	case models.VenueOkx:
		return parseOkx(msg.Data, n.config.Source.Okx.Contracts)
	case models.VenueBinance:
		return parseBinance(msg.Data)
	default:
		return models.Trade{}, fmt.Errorf("unknown venue %q", msg.Venue)
	}
}

func parseDeribit(data []byte) (models.Trade, error) {
	var p models.DeribitTradePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return models.Trade{}, fmt.Errorf("failed to decode deribit payload: %w", err)
	}
	symbol := symbols.FromDeribit(p.Instrument)
	return models.Trade{
		ID:          fmt.Sprintf("%s_%s", models.VenueDeribit, p.TradeID),
		Venue:       models.VenueDeribit,
		Symbol:      symbol,
		Currency:    symbols.Currency(symbol),
		Direction:   strings.ToLower(p.Direction),
		Price:       p.Price,
		Size:        p.Amount,
		IV:          p.IV,
		IndexPrice:  p.IndexPrice,
		Timestamp:   p.Timestamp,
		BlockID:     p.BlockTradeID,
		Liquidation: p.Liquidation != "",
		Greeks:      p.Greeks,
		OIChange:    p.OIChange,
		Quote:       p.Quote,
	}, nil
}

func parseBybit(data []byte) (models.Trade, error) {
	var p models.BybitTradePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return models.Trade{}, fmt.Errorf("failed to decode bybit payload: %w", err)
	}
	symbol, err := symbols.FromBybit(p.Symbol)
	if err != nil {
		return models.Trade{}, err
	}
	price, err := strconv.ParseFloat(p.Price, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("bybit trade %s has invalid price %q", p.ExecID, p.Price)
	}
	size, err := strconv.ParseFloat(p.Size, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("bybit trade %s has invalid size %q", p.ExecID, p.Size)
	}
	ts, err := strconv.ParseInt(p.Time, 10, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("bybit trade %s has invalid timestamp %q", p.ExecID, p.Time)
	}
	trade := models.Trade{
		ID:        fmt.Sprintf("%s_%s", models.VenueBybit, p.ExecID),
		Venue:     models.VenueBybit,
		Symbol:    symbol,
		Currency:  symbols.Currency(symbol),
		Direction: strings.ToLower(p.Side),
		Price:     price,
		Size:      size,
		Timestamp: ts,
		BlockID:   p.BlockTradeID,
	}
	if iv := parseOptionalFloat(p.IV); iv != nil {
		trade.IV = iv
	}
	if idx := parseOptionalFloat(p.IndexPrice); idx != nil {
		trade.IndexPrice = idx
	}
	return trade, nil
}

func parseOkx(data []byte, contracts map[string]float64) (models.Trade, error) {
	var p models.OkxTradePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return models.Trade{}, fmt.Errorf("failed to decode okx payload: %w", err)
	}
	symbol, err := symbols.FromOkx(p.InstID)
	if err != nil {
		return models.Trade{}, err
	}
	currency := symbols.Currency(symbol)
	price, err := strconv.ParseFloat(p.Price, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("okx trade %s has invalid price %q", p.TradeID, p.Price)
	}
	size, err := strconv.ParseFloat(p.Size, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("okx trade %s has invalid size %q", p.TradeID, p.Size)
	}
	ts, err := strconv.ParseInt(p.Timestamp, 10, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("okx trade %s has invalid timestamp %q", p.TradeID, p.Timestamp)
	}
	// OKX sizes are in contracts, not coins.
	if divisor, ok := contracts[currency]; ok && divisor > 0 {
		size /= divisor
	}
	trade := models.Trade{
		// Trade ids restart per instrument, so the id alone does not
		// identify a print across the venue.
		ID:        fmt.Sprintf("%s_%s_%s_%s", models.VenueOkx, p.InstID, p.TradeID, p.Timestamp),
		Venue:     models.VenueOkx,
		Symbol:    symbol,
		Currency:  currency,
		Direction: strings.ToLower(p.Side),
		Price:     price,
		Size:      size,
		Timestamp: ts,
	}
	if iv := parseOptionalFloat(p.FillVol); iv != nil {
		trade.IV = iv
	}
	if idx := parseOptionalFloat(p.IndexPrice); idx != nil {
		trade.IndexPrice = idx
	}
	return trade, nil
}

func parseBinance(data []byte) (models.Trade, error) {
	var p models.BinanceTradePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return models.Trade{}, fmt.Errorf("failed to decode binance payload: %w", err)
	}
	symbol, err := symbols.FromBinance(p.Symbol)
	if err != nil {
		return models.Trade{}, err
	}
	price, err := strconv.ParseFloat(p.Price, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("binance trade %d has invalid price %q", p.ID, p.Price)
	}
	size, err := strconv.ParseFloat(p.Quantity, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("binance trade %d has invalid quantity %q", p.ID, p.Quantity)
	}
	direction := models.DirectionBuy
	if p.Side < 0 {
		direction = models.DirectionSell
	}
	return models.Trade{
		// Ids are unique per symbol only.
		ID:        fmt.Sprintf("%s_%s_%d", models.VenueBinance, p.Symbol, p.ID),
		Venue:     models.VenueBinance,
		Symbol:    symbol,
		Currency:  symbols.Currency(symbol),
		Direction: direction,
		Price:     price,
		Size:      size,
		Timestamp: p.Time,
	}, nil
}

func parseOptionalFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func (n *Normalizer) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.mu.RLock()
			seen := n.messagesSeen
			accepted := n.tradesAccepted
			dupes := n.duplicatesDrop
			malformed := n.malformedDrop
			invalid := n.validationDrops
			n.mu.RUnlock()

			n.log.LogMetric("normalizer", "messages_seen", seen, "counter", logger.Fields{})
			n.log.LogMetric("normalizer", "trades_accepted", accepted, "counter", logger.Fields{})
			n.log.LogMetric("normalizer", "duplicates_dropped", dupes, "counter", logger.Fields{})
			n.log.LogMetric("normalizer", "malformed_dropped", malformed, "counter", logger.Fields{})
			n.log.LogMetric("normalizer", "invalid_dropped", invalid, "counter", logger.Fields{})
		}
	}
}
