package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "optionsflow/config"
	"optionsflow/internal/channel"
	"optionsflow/logger"
	"optionsflow/models"
)

// Classifier consumes sealed groups, canonicalizes their legs, matches them
// against the strategy taxonomy and emits dispatchable signals with premium
// and aggregate risk attached.
type Classifier struct {
	config   *appconfig.Config
	channels *channel.Channels
	taxonomy *Taxonomy
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	// Metrics
	groupsClassified int64
	customMatches    int64
	signalsEmitted   int64
}

func NewClassifier(cfg *appconfig.Config, channels *channel.Channels) (*Classifier, error) {
	taxonomy, err := LoadTaxonomy()
	if err != nil {
		return nil, err
	}
	return &Classifier{
		config:   cfg,
		channels: channels,
		taxonomy: taxonomy,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}, nil
}

func (c *Classifier) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("classifier already running")
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	log := c.log.WithComponent("classifier").WithFields(logger.Fields{"operation": "start"})

	numWorkers := c.config.Processor.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	log.WithFields(logger.Fields{"workers": numWorkers, "rules": c.taxonomy.Size()}).Info("starting classifier workers")

	for i := 0; i < numWorkers; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	go c.metricsReporter(ctx)

	return nil
}

func (c *Classifier) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
	c.log.WithComponent("classifier").Info("classifier stopped")
}

func (c *Classifier) worker(workerID int) {
	defer c.wg.Done()

	log := c.log.WithComponent("classifier").WithFields(logger.Fields{"worker_id": workerID})

	for {
		select {
		case <-c.ctx.Done():
			return
		case group, ok := <-c.channels.GroupChan:
			if !ok {
				log.Info("group channel closed, worker stopping")
				return
			}

			start := time.Now()
			signal := c.Classify(group)
			c.mu.Lock()
			c.groupsClassified++
			if signal.Class.Custom {
				c.customMatches++
			}
			c.mu.Unlock()

			if c.channels.SendSignal(signal) {
				c.mu.Lock()
				c.signalsEmitted++
				c.mu.Unlock()
			}

			logger.LogPerformanceEntry(log, "classifier", "classify_group", time.Since(start), logger.Fields{
				"group_id": group.ID,
				"legs":     len(group.Trades),
				"strategy": signal.Class.Name,
			})
		}
	}
}

// Classify turns one sealed group into a signal. The classification is a
// pure function of the group contents and the rule table.
func (c *Classifier) Classify(group models.BlockGroup) models.Signal {
	legs := BuildLegs(group.Trades)
	CanonicalSort(legs)

	key := DeriveKey(legs)
	rule, matched := c.taxonomy.Lookup(key)
	premium := NetPremium(legs)
	risk, hasRisk := AggregateGreeks(legs)

	class := models.Classification{SizeRatio: key.SizeRatio}
	switch {
	case matched:
		name := rule.Name
		if strings.HasPrefix(name, "SHORT") {
			premium = -premium
		}
		if name == "FUTURES SPREAD" {
			class.Futures = true
			class.Name = fmt.Sprintf("%s FUTURES SPREAD", group.Currency)
		} else {
			// Open interest drawdown on a single print implies the
			// position was unwound rather than opened, so the
			// directional prefix flips.
			if len(legs) == 1 && rule.View == "" && legs[0].Trade.OIChange != 0 {
				if legs[0].Trade.OIChange > 0 {
					class.OpenClose = models.PositionOpened
				} else {
					name = swapLongShort(name)
					class.OpenClose = models.PositionClosed
				}
			}
			class.Name = substituteCurrency(name, group.Currency)
		}
		class.View = rule.View
		class.ShortName = rule.ShortName
	case len(legs) == 1 && !legs[0].IsOption():
		class.Futures = true
		class.Name = fmt.Sprintf("%s FUTURES OUTRIGHT", group.Currency)
		class.ShortName = "Futures"
	default:
		class.Custom = true
		class.Name = fmt.Sprintf("CUSTOM %s STRATEGY", group.Currency)
		class.ShortName = "Custom"
	}

	indexPrice := 0.0
	if idx := group.IndexPrice(); idx != nil {
		indexPrice = *idx
	}

	return models.Signal{
		AlertID:    uuid.New().String(),
		Group:      group,
		Legs:       legs,
		Class:      class,
		Premium:    premium,
		Risk:       risk,
		HasRisk:    hasRisk,
		TotalSize:  group.TotalSize(),
		IndexPrice: indexPrice,
	}
}

func (c *Classifier) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			classified := c.groupsClassified
			custom := c.customMatches
			emitted := c.signalsEmitted
			c.mu.RUnlock()

			c.log.LogMetric("classifier", "groups_classified", classified, "counter", logger.Fields{})
			c.log.LogMetric("classifier", "custom_matches", custom, "counter", logger.Fields{})
			c.log.LogMetric("classifier", "signals_emitted", emitted, "counter", logger.Fields{})
		}
	}
}
