package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	appconfig "optionsflow/config"
	"optionsflow/internal/channel"
	"optionsflow/logger"
	"optionsflow/models"
	"optionsflow/store"
)

// blockEntry tracks one open block in the arena. Legs live in the store
// queue; the entry only carries the timing needed to decide completion.
type blockEntry struct {
	currency  string
	firstSeen time.Time
	lastPush  time.Time
}

// Grouper assembles normalized trades into dispatchable groups. Standalone
// prints pass through as singleton groups immediately. Block legs accumulate
// in a store-backed queue per block id and the group seals only after no new
// leg has arrived for the settle window, or unconditionally once the block
// reaches its maximum age. Queue emptiness is never used as the completion
// signal: a concurrent poller can be mid-push while the queue reads empty.
type Grouper struct {
	config   *appconfig.Config
	store    store.Store
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.Mutex
	running  bool
	log      *logger.Log

	arena map[string]*blockEntry

	// Metrics
	singlesEmitted int64
	blocksSealed   int64
	legsQueued     int64
	noiseFiltered  int64
}

func NewGrouper(cfg *appconfig.Config, st store.Store, channels *channel.Channels) *Grouper {
	return &Grouper{
		config:   cfg,
		store:    st,
		channels: channels,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		arena:    make(map[string]*blockEntry),
	}
}

func (g *Grouper) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return fmt.Errorf("grouper already running")
	}
	g.running = true
	g.ctx = ctx
	g.mu.Unlock()

	log := g.log.WithComponent("grouper").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"settle_window": g.config.Grouping.SettleWindow.String(),
		"max_wait":      g.config.Grouping.MaxWait.String(),
	}).Info("starting grouper")

	// A single consumer keeps queue pushes in arrival order per block.
	g.wg.Add(1)
	go g.consume()

	g.wg.Add(1)
	go g.scanner()

	return nil
}

func (g *Grouper) Stop() {
	g.mu.Lock()
	g.running = false
	g.mu.Unlock()

	g.log.WithComponent("grouper").Info("stopping grouper, sealing open blocks")
	g.sealAll()
	g.wg.Wait()
	g.log.WithComponent("grouper").Info("grouper stopped")
}

func (g *Grouper) consume() {
	defer g.wg.Done()

	log := g.log.WithComponent("grouper")

	for {
		select {
		case <-g.ctx.Done():
			return
		case trade, ok := <-g.channels.TradeChan:
			if !ok {
				log.Info("trade channel closed, consumer stopping")
				return
			}
			g.handleTrade(trade)
		}
	}
}

func (g *Grouper) handleTrade(trade models.Trade) {
	log := g.log.WithComponent("grouper").WithFields(logger.Fields{
		"trade_id": trade.ID,
		"venue":    trade.Venue,
	})

	if trade.BlockID == "" {
		if trade.Price <= g.config.Dispatch.MinPrice {
			g.mu.Lock()
			g.noiseFiltered++
			g.mu.Unlock()
			log.WithFields(logger.Fields{"price": trade.Price}).Debug("dropping dust print")
			return
		}
		g.channels.SendGroup(models.BlockGroup{
			ID:       trade.ID,
			Currency: trade.Currency,
			Block:    false,
			Trades:   []models.Trade{trade},
		})
		g.mu.Lock()
		g.singlesEmitted++
		g.mu.Unlock()
		return
	}

	payload, err := json.Marshal(trade)
	if err != nil {
		log.WithError(err).Error("failed to marshal block leg")
		return
	}
	if err := g.store.PushQueue(g.ctx, blockQueueKey(trade.BlockID), payload); err != nil {
		log.WithError(err).Error("failed to queue block leg")
		return
	}

	now := time.Now()
	g.mu.Lock()
	entry, exists := g.arena[trade.BlockID]
	if !exists {
		entry = &blockEntry{currency: trade.Currency, firstSeen: now}
		g.arena[trade.BlockID] = entry
	}
	entry.lastPush = now
	g.legsQueued++
	g.mu.Unlock()
}

func (g *Grouper) scanner() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.config.Grouping.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			g.sealSettled(time.Now())
		}
	}
}

// sealSettled seals every block whose last leg is older than the settle
// window, plus any block that has been open longer than the maximum wait
// regardless of recent pushes.
func (g *Grouper) sealSettled(now time.Time) {
	g.mu.Lock()
	var due []string
	for id, entry := range g.arena {
		settled := now.Sub(entry.lastPush) >= g.config.Grouping.SettleWindow
		expired := now.Sub(entry.firstSeen) >= g.config.Grouping.MaxWait
		if settled || expired {
			due = append(due, id)
		}
	}
	entries := make(map[string]*blockEntry, len(due))
	for _, id := range due {
		entries[id] = g.arena[id]
		delete(g.arena, id)
	}
	g.mu.Unlock()

	for _, id := range due {
		g.seal(id, entries[id])
	}
}

func (g *Grouper) sealAll() {
	g.mu.Lock()
	entries := g.arena
	g.arena = make(map[string]*blockEntry)
	g.mu.Unlock()

	for id, entry := range entries {
		g.seal(id, entry)
	}
}

func (g *Grouper) seal(blockID string, entry *blockEntry) {
	log := g.log.WithComponent("grouper").WithFields(logger.Fields{"block_id": blockID})

	payloads, err := g.store.DrainQueue(g.ctx, blockQueueKey(blockID))
	if err != nil {
		// Legs stay queued; the block re-seals on a later scan.
		g.mu.Lock()
		g.arena[blockID] = entry
		g.mu.Unlock()
		log.WithError(err).Error("failed to drain block queue")
		return
	}
	if len(payloads) == 0 {
		return
	}

	trades := make([]models.Trade, 0, len(payloads))
	for _, payload := range payloads {
		var trade models.Trade
		if err := json.Unmarshal(payload, &trade); err != nil {
			log.WithError(err).Error("failed to decode queued block leg")
			continue
		}
		trades = append(trades, trade)
	}
	if len(trades) == 0 {
		return
	}

	g.channels.SendGroup(models.BlockGroup{
		ID:       blockID,
		Currency: entry.currency,
		Block:    true,
		Trades:   trades,
	})
	g.mu.Lock()
	g.blocksSealed++
	g.mu.Unlock()

	log.WithFields(logger.Fields{"legs": len(trades)}).Info("block sealed")
}

func blockQueueKey(blockID string) string {
	return "block:" + blockID
}
