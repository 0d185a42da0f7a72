package channel

import (
	"context"
	"sync"
	"time"

	"optionsflow/logger"
	"optionsflow/models"
)

type ChannelStats struct {
	RawMessagesSent    int64
	TradesSent         int64
	GroupsSent         int64
	SignalsSent        int64
	RawMessagesDropped int64
	TradesDropped      int64
	GroupsDropped      int64
	SignalsDropped     int64
}

// Channels owns the bounded queues between the pipeline stages: venue
// readers push raw payloads, the normalizer emits trades, the grouper emits
// sealed groups and the classifier emits dispatchable signals.
type Channels struct {
	RawMessageChan chan models.RawTradeMessage
	TradeChan      chan models.Trade
	GroupChan      chan models.BlockGroup
	SignalChan     chan models.Signal

	stats               ChannelStats
	statsMutex          sync.RWMutex
	log                 *logger.Log
	ctx                 context.Context
	metricsReportTicker *time.Ticker
}

func NewChannels(rawBufferSize, tradeBufferSize, groupBufferSize int) *Channels {
	log := logger.GetLogger()

	c := &Channels{
		RawMessageChan: make(chan models.RawTradeMessage, rawBufferSize),
		TradeChan:      make(chan models.Trade, tradeBufferSize),
		GroupChan:      make(chan models.BlockGroup, groupBufferSize),
		SignalChan:     make(chan models.Signal, groupBufferSize),
		log:            log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"raw_buffer_size":   rawBufferSize,
		"trade_buffer_size": tradeBufferSize,
		"group_buffer_size": groupBufferSize,
	}).Info("channels initialized")

	return c
}

// SendRaw enqueues a raw venue payload without blocking. When the buffer is
// full the message is dropped and counted so the report surfaces backpressure
// instead of stalling a poll loop.
func (c *Channels) SendRaw(msg models.RawTradeMessage) bool {
	select {
	case c.RawMessageChan <- msg:
		c.statsMutex.Lock()
		c.stats.RawMessagesSent++
		c.statsMutex.Unlock()
		logger.RecordChannelMessage("raw", len(msg.Data))
		return true
	default:
		c.statsMutex.Lock()
		c.stats.RawMessagesDropped++
		c.statsMutex.Unlock()
		c.log.WithComponent("channels").WithFields(logger.Fields{
			"venue":    msg.Venue,
			"currency": msg.Currency,
		}).Warn("raw channel full, dropping message")
		return false
	}
}

// SendTrade enqueues a normalized trade, dropping when the buffer is full.
func (c *Channels) SendTrade(trade models.Trade) bool {
	select {
	case c.TradeChan <- trade:
		c.statsMutex.Lock()
		c.stats.TradesSent++
		c.statsMutex.Unlock()
		return true
	default:
		c.statsMutex.Lock()
		c.stats.TradesDropped++
		c.statsMutex.Unlock()
		c.log.WithComponent("channels").WithFields(logger.Fields{
			"trade_id": trade.ID,
			"venue":    trade.Venue,
		}).Warn("trade channel full, dropping trade")
		return false
	}
}

// SendGroup enqueues a sealed group, dropping when the buffer is full. A
// dropped group is a lost alert, so this logs at error level.
func (c *Channels) SendGroup(group models.BlockGroup) bool {
	select {
	case c.GroupChan <- group:
		c.statsMutex.Lock()
		c.stats.GroupsSent++
		c.statsMutex.Unlock()
		return true
	default:
		c.statsMutex.Lock()
		c.stats.GroupsDropped++
		c.statsMutex.Unlock()
		c.log.WithComponent("channels").WithFields(logger.Fields{
			"group_id": group.ID,
			"trades":   len(group.Trades),
		}).Error("group channel full, dropping group")
		return false
	}
}

// SendSignal enqueues a classified signal, dropping when the buffer is full.
func (c *Channels) SendSignal(sig models.Signal) bool {
	select {
	case c.SignalChan <- sig:
		c.statsMutex.Lock()
		c.stats.SignalsSent++
		c.statsMutex.Unlock()
		return true
	default:
		c.statsMutex.Lock()
		c.stats.SignalsDropped++
		c.statsMutex.Unlock()
		c.log.WithComponent("channels").WithFields(logger.Fields{
			"alert_id": sig.AlertID,
		}).Error("signal channel full, dropping signal")
		return false
	}
}

func (c *Channels) StartMetricsReporting(ctx context.Context) {
	c.ctx = ctx
	c.metricsReportTicker = time.NewTicker(30 * time.Second)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.metricsReportTicker.Stop()
				return
			case <-c.metricsReportTicker.C:
				c.logChannelStats(c.log)
			}
		}
	}()
}

func (c *Channels) logChannelStats(log *logger.Log) {
	c.statsMutex.RLock()
	stats := c.stats
	c.statsMutex.RUnlock()

	log.WithComponent("channels").WithFields(logger.Fields{
		"raw_messages_sent":    stats.RawMessagesSent,
		"trades_sent":          stats.TradesSent,
		"groups_sent":          stats.GroupsSent,
		"signals_sent":         stats.SignalsSent,
		"raw_messages_dropped": stats.RawMessagesDropped,
		"trades_dropped":       stats.TradesDropped,
		"groups_dropped":       stats.GroupsDropped,
		"signals_dropped":      stats.SignalsDropped,
		"raw_channel_len":      len(c.RawMessageChan),
		"raw_channel_cap":      cap(c.RawMessageChan),
		"trade_channel_len":    len(c.TradeChan),
		"trade_channel_cap":    cap(c.TradeChan),
		"group_channel_len":    len(c.GroupChan),
		"group_channel_cap":    cap(c.GroupChan),
		"signal_channel_len":   len(c.SignalChan),
		"signal_channel_cap":   cap(c.SignalChan),
	}).Info("channel statistics")
}

func (c *Channels) Close() {
	if c.metricsReportTicker != nil {
		c.metricsReportTicker.Stop()
	}

	close(c.RawMessageChan)
	close(c.TradeChan)
	close(c.GroupChan)
	close(c.SignalChan)

	c.log.WithComponent("channels").Info("all channels closed")
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
